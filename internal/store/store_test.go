package store

import (
	"testing"

	"qstore/internal/intern"
	"qstore/internal/notify"
	"qstore/internal/qerr"
	"qstore/internal/schema"
)

// testFixture bootstraps a store with Object/Root plus a "Device" type
// carrying a Name (inherited) and a Count int field, and creates the
// Root entity. Mirrors cmd/qserver/main.go's bootstrap, trimmed to
// what store-level tests need.
type testFixture struct {
	store      *Store
	in         *intern.Interner
	reg        *schema.Registry
	deviceType intern.EntityType
	countField intern.FieldType
	rootID     intern.EntityId
}

func newFixture(t *testing.T) *testFixture {
	t.Helper()
	in := intern.New()
	reg := schema.NewRegistry()
	hub := notify.NewHub(64)
	st := New(in, reg, hub, SystemClock, 1)

	objectType := in.InternEntityType(intern.ObjectTypeName)
	nameField := in.InternFieldType(intern.NameFieldName)
	parentField := in.InternFieldType(intern.ParentFieldName)
	childrenField := in.InternFieldType(intern.ChildrenFieldName)

	if _, err := reg.Update(schema.Schema{
		Type: objectType,
		Fields: map[intern.FieldType]schema.FieldDescriptor{
			nameField: {Field: nameField, Variant: schema.VariantString, StorageScope: schema.Persistent},
		},
	}); err != nil {
		t.Fatalf("register Object: %v", err)
	}

	rootType := in.InternEntityType(intern.RootTypeName)
	if _, err := reg.Update(schema.Schema{
		Type:    rootType,
		Parents: []intern.EntityType{objectType},
		Fields: map[intern.FieldType]schema.FieldDescriptor{
			parentField:   {Field: parentField, Variant: schema.VariantEntityReference, StorageScope: schema.Persistent},
			childrenField: {Field: childrenField, Variant: schema.VariantEntityList, StorageScope: schema.Persistent},
		},
	}); err != nil {
		t.Fatalf("register Root: %v", err)
	}

	deviceType := in.InternEntityType("Device")
	countField := in.InternFieldType("Count")
	if _, err := reg.Update(schema.Schema{
		Type:    deviceType,
		Parents: []intern.EntityType{objectType},
		Fields: map[intern.FieldType]schema.FieldDescriptor{
			parentField:   {Field: parentField, Variant: schema.VariantEntityReference, StorageScope: schema.Persistent},
			childrenField: {Field: childrenField, Variant: schema.VariantEntityList, StorageScope: schema.Persistent},
			countField:    {Field: countField, Variant: schema.VariantInt, Default: schema.IntValue(0), StorageScope: schema.Persistent},
		},
	}); err != nil {
		t.Fatalf("register Device: %v", err)
	}

	create := &CreateRequest{EntityType: rootType, Name: "Root"}
	if _, err := st.Execute(NewRequests(nil, create)); err != nil {
		t.Fatalf("create root: %v", err)
	}

	return &testFixture{
		store:      st,
		in:         in,
		reg:        reg,
		deviceType: deviceType,
		countField: countField,
		rootID:     create.CreatedEntityID,
	}
}

func (f *testFixture) createDevice(t *testing.T, name string) intern.EntityId {
	t.Helper()
	create := &CreateRequest{EntityType: f.deviceType, ParentID: &f.rootID, Name: name}
	if _, err := f.store.Execute(NewRequests(nil, create)); err != nil {
		t.Fatalf("create device %s: %v", name, err)
	}
	return create.CreatedEntityID
}

func TestCreate_ChildAppearsInParentChildren(t *testing.T) {
	f := newFixture(t)
	devID := f.createDevice(t, "d1")

	childrenField, _ := f.in.GetFieldType(intern.ChildrenFieldName)
	read := &ReadRequest{EntityID: f.rootID, FieldPath: []intern.FieldType{childrenField}}
	if _, err := f.store.Execute(NewRequests(nil, read)); err != nil {
		t.Fatalf("read root children: %v", err)
	}
	if len(read.Value.List) != 1 || read.Value.List[0] != devID {
		t.Fatalf("expected root.Children == [%d], got %v", devID, read.Value.List)
	}
}

func TestCreate_RootAlreadyExists(t *testing.T) {
	f := newFixture(t)
	rootType, _ := f.in.GetEntityType(intern.RootTypeName)
	create := &CreateRequest{EntityType: rootType, Name: "Root2"}
	_, err := f.store.Execute(NewRequests(nil, create))
	if !qerr.Is(err, qerr.RootAlreadyExists) {
		t.Fatalf("expected RootAlreadyExists, got %v", err)
	}
}

func TestWriteAndReadRoundTrip(t *testing.T) {
	f := newFixture(t)
	devID := f.createDevice(t, "d1")

	write := &WriteRequest{
		EntityID:  devID,
		FieldPath: []intern.FieldType{f.countField},
		Value:     schema.IntValue(7),
	}
	if _, err := f.store.Execute(NewRequests(nil, write)); err != nil {
		t.Fatalf("write: %v", err)
	}
	if !write.WriteProcessed {
		t.Fatal("expected write to be processed")
	}

	read := &ReadRequest{EntityID: devID, FieldPath: []intern.FieldType{f.countField}}
	if _, err := f.store.Execute(NewRequests(nil, read)); err != nil {
		t.Fatalf("read: %v", err)
	}
	if read.Value.Int != 7 {
		t.Fatalf("expected 7, got %d", read.Value.Int)
	}
}

func TestWrite_PushOnChangeSkipsNoop(t *testing.T) {
	f := newFixture(t)
	devID := f.createDevice(t, "d1")

	first := &WriteRequest{EntityID: devID, FieldPath: []intern.FieldType{f.countField}, Value: schema.IntValue(3)}
	if _, err := f.store.Execute(NewRequests(nil, first)); err != nil {
		t.Fatalf("first write: %v", err)
	}

	noop := &WriteRequest{
		EntityID:      devID,
		FieldPath:     []intern.FieldType{f.countField},
		Value:         schema.IntValue(3),
		PushCondition: PushOnChange,
	}
	if _, err := f.store.Execute(NewRequests(nil, noop)); err != nil {
		t.Fatalf("noop write: %v", err)
	}
	if noop.WriteProcessed {
		t.Fatal("expected PushOnChange to suppress an unchanged write")
	}
}

func TestWrite_AddAdjustOnInt(t *testing.T) {
	f := newFixture(t)
	devID := f.createDevice(t, "d1")

	f.store.Execute(NewRequests(nil, &WriteRequest{EntityID: devID, FieldPath: []intern.FieldType{f.countField}, Value: schema.IntValue(10)}))

	add := &WriteRequest{
		EntityID:       devID,
		FieldPath:      []intern.FieldType{f.countField},
		Value:          schema.IntValue(5),
		AdjustBehavior: AdjustAdd,
	}
	if _, err := f.store.Execute(NewRequests(nil, add)); err != nil {
		t.Fatalf("add write: %v", err)
	}

	read := &ReadRequest{EntityID: devID, FieldPath: []intern.FieldType{f.countField}}
	f.store.Execute(NewRequests(nil, read))
	if read.Value.Int != 15 {
		t.Fatalf("expected 15 after add, got %d", read.Value.Int)
	}
}

func TestDelete_ScrubsInboundReferences(t *testing.T) {
	f := newFixture(t)
	devA := f.createDevice(t, "a")
	devB := f.createDevice(t, "b")

	refField := f.in.InternFieldType("LinkedTo")
	f.reg.Update(schema.Schema{
		Type: f.deviceType,
		Parents: func() []intern.EntityType {
			s, _ := f.reg.GetSingle(f.deviceType)
			return s.Parents
		}(),
		Fields: func() map[intern.FieldType]schema.FieldDescriptor {
			s, _ := f.reg.GetSingle(f.deviceType)
			m := make(map[intern.FieldType]schema.FieldDescriptor, len(s.Fields)+1)
			for k, v := range s.Fields {
				m[k] = v
			}
			m[refField] = schema.FieldDescriptor{Field: refField, Variant: schema.VariantEntityReference, StorageScope: schema.Persistent}
			return m
		}(),
	})

	f.store.Execute(NewRequests(nil, &WriteRequest{
		EntityID:  devA,
		FieldPath: []intern.FieldType{refField},
		Value:     schema.EntityRefValue(&devB),
	}))

	if _, err := f.store.Execute(NewRequests(nil, &DeleteRequest{EntityID: devB})); err != nil {
		t.Fatalf("delete devB: %v", err)
	}

	read := &ReadRequest{EntityID: devA, FieldPath: []intern.FieldType{refField}}
	f.store.Execute(NewRequests(nil, read))
	if read.Value.Ref != nil {
		t.Fatalf("expected reference to devB to be scrubbed, got %v", *read.Value.Ref)
	}
}

func TestDelete_RecursivelyDeletesChildren(t *testing.T) {
	f := newFixture(t)
	devID := f.createDevice(t, "parent")

	subCreate := &CreateRequest{EntityType: f.deviceType, ParentID: &devID, Name: "child"}
	if _, err := f.store.Execute(NewRequests(nil, subCreate)); err != nil {
		t.Fatalf("create sub-device: %v", err)
	}
	childID := subCreate.CreatedEntityID

	if _, err := f.store.Execute(NewRequests(nil, &DeleteRequest{EntityID: devID})); err != nil {
		t.Fatalf("delete parent: %v", err)
	}

	exists := &EntityExistsRequest{EntityID: childID}
	f.store.Execute(NewRequests(nil, exists))
	if exists.Exists {
		t.Fatal("expected child entity to be deleted along with its parent")
	}
}

func TestIndirection_ResolvesThroughReference(t *testing.T) {
	f := newFixture(t)
	devID := f.createDevice(t, "d1")

	parentField, _ := f.in.GetFieldType(intern.ParentFieldName)
	nameField, _ := f.in.GetFieldType(intern.NameFieldName)

	read := &ReadRequest{
		EntityID:  devID,
		FieldPath: []intern.FieldType{parentField, nameField},
	}
	if _, err := f.store.Execute(NewRequests(nil, read)); err != nil {
		t.Fatalf("indirected read: %v", err)
	}
	if read.Value.Str != "Root" {
		t.Fatalf("expected indirection to reach Root's name, got %q", read.Value.Str)
	}
}

func TestIndirection_ResolvesThroughList(t *testing.T) {
	f := newFixture(t)
	devID := f.createDevice(t, "d1")
	nameField, _ := f.in.GetFieldType(intern.NameFieldName)
	childrenField, _ := f.in.GetFieldType(intern.ChildrenFieldName)

	read := &ReadRequest{
		EntityID:  f.rootID,
		FieldPath: []intern.FieldType{childrenField, ListIndex(0), nameField},
	}
	if _, err := f.store.Execute(NewRequests(nil, read)); err != nil {
		t.Fatalf("list-indirected read: %v", err)
	}
	if read.Value.Str != "d1" {
		t.Fatalf("expected indirection through Children[0] to reach %q, got %q", "d1", read.Value.Str)
	}
	_ = devID
}

func TestSchemaUpdate_AddedFieldBackfillsExistingEntities(t *testing.T) {
	f := newFixture(t)
	devID := f.createDevice(t, "d1")

	newField := f.in.InternFieldType("Firmware")
	single, _ := f.reg.GetSingle(f.deviceType)
	fields := make(map[intern.FieldType]schema.FieldDescriptor, len(single.Fields)+1)
	for k, v := range single.Fields {
		fields[k] = v
	}
	fields[newField] = schema.FieldDescriptor{Field: newField, Variant: schema.VariantString, Default: schema.StringValue("unknown"), StorageScope: schema.Persistent}

	update := &SchemaUpdateRequest{Schema: schema.Schema{Type: f.deviceType, Parents: single.Parents, Fields: fields}}
	if _, err := f.store.Execute(NewRequests(nil, update)); err != nil {
		t.Fatalf("schema update: %v", err)
	}

	read := &ReadRequest{EntityID: devID, FieldPath: []intern.FieldType{newField}}
	f.store.Execute(NewRequests(nil, read))
	if read.Value.Str != "unknown" {
		t.Fatalf("expected backfilled default %q, got %q", "unknown", read.Value.Str)
	}
}

// A schema update on an ancestor type (Object) must backfill cells on
// every live descendant type (Device), not just entities of the exact
// type updated.
func TestSchemaUpdate_AncestorUpdateBackfillsExistingDescendants(t *testing.T) {
	f := newFixture(t)
	devID := f.createDevice(t, "d1")

	objectType := f.in.InternEntityType(intern.ObjectTypeName)
	newField := f.in.InternFieldType("SerialNumber")
	single, _ := f.reg.GetSingle(objectType)
	fields := make(map[intern.FieldType]schema.FieldDescriptor, len(single.Fields)+1)
	for k, v := range single.Fields {
		fields[k] = v
	}
	fields[newField] = schema.FieldDescriptor{Field: newField, Variant: schema.VariantString, Default: schema.StringValue("none"), StorageScope: schema.Persistent}

	update := &SchemaUpdateRequest{Schema: schema.Schema{Type: objectType, Parents: single.Parents, Fields: fields}}
	if _, err := f.store.Execute(NewRequests(nil, update)); err != nil {
		t.Fatalf("schema update: %v", err)
	}

	read := &ReadRequest{EntityID: devID, FieldPath: []intern.FieldType{newField}}
	if _, err := f.store.Execute(NewRequests(nil, read)); err != nil {
		t.Fatalf("read backfilled field on pre-existing descendant entity: %v", err)
	}
	if read.Value.Str != "none" {
		t.Fatalf("expected backfilled default %q, got %q", "none", read.Value.Str)
	}
}

func TestFindEntitiesExact_Paginates(t *testing.T) {
	f := newFixture(t)
	f.createDevice(t, "d1")
	f.createDevice(t, "d2")
	f.createDevice(t, "d3")

	find := &FindEntitiesExactRequest{EntityType: f.deviceType, PageOpts: PageOpts{Limit: 2}}
	if _, err := f.store.Execute(NewRequests(nil, find)); err != nil {
		t.Fatalf("find: %v", err)
	}
	if len(find.Result.Items) != 2 {
		t.Fatalf("expected 2 items on first page, got %d", len(find.Result.Items))
	}
	if find.Result.Total != 3 {
		t.Fatalf("expected total 3, got %d", find.Result.Total)
	}
	if find.Result.NextCursor == nil {
		t.Fatal("expected a next cursor for a partial page")
	}
}
