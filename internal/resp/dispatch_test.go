package resp

import (
	"testing"

	"qstore/internal/intern"
	"qstore/internal/schema"
	"qstore/internal/store"
)

func commandRoundTrip(t *testing.T, req store.Request) store.Request {
	t.Helper()
	cmd, err := EncodeCommand(req)
	if err != nil {
		t.Fatalf("encode command: %v", err)
	}
	got, err := DecodeCommand(cmd)
	if err != nil {
		t.Fatalf("decode command: %v", err)
	}
	return got
}

func TestCommandCodec_Read(t *testing.T) {
	req := &store.ReadRequest{EntityID: intern.NewEntityId(1, 1), FieldPath: []intern.FieldType{2, 3}}
	got, ok := commandRoundTrip(t, req).(*store.ReadRequest)
	if !ok {
		t.Fatalf("expected *store.ReadRequest, got %T", got)
	}
	if got.EntityID != req.EntityID || len(got.FieldPath) != 2 || got.FieldPath[1] != 3 {
		t.Fatalf("unexpected decode: %+v", got)
	}
}

func TestCommandCodec_WriteWithWriterAndTimestamp(t *testing.T) {
	ts := uint64(1000)
	writer := intern.NewEntityId(1, 9)
	req := &store.WriteRequest{
		EntityID:       intern.NewEntityId(2, 1),
		FieldPath:      []intern.FieldType{4},
		Value:          schema.IntValue(7),
		PushCondition:  store.PushOnChange,
		AdjustBehavior: store.AdjustAdd,
		WriteTime:      &ts,
		WriterID:       &writer,
	}
	got, ok := commandRoundTrip(t, req).(*store.WriteRequest)
	if !ok {
		t.Fatalf("expected *store.WriteRequest, got %T", got)
	}
	if got.PushCondition != store.PushOnChange || got.AdjustBehavior != store.AdjustAdd {
		t.Fatalf("unexpected enums: %+v", got)
	}
	if got.WriteTime == nil || *got.WriteTime != ts {
		t.Fatalf("expected write time to round trip, got %v", got.WriteTime)
	}
	if got.WriterID == nil || *got.WriterID != writer {
		t.Fatalf("expected writer id to round trip, got %v", got.WriterID)
	}
	if !got.Value.Equal(req.Value) {
		t.Fatalf("expected value to round trip, got %+v", got.Value)
	}
}

func TestCommandCodec_WriteWithoutOptionalFields(t *testing.T) {
	req := &store.WriteRequest{EntityID: intern.NewEntityId(2, 1), FieldPath: []intern.FieldType{4}, Value: schema.IntValue(1)}
	got, ok := commandRoundTrip(t, req).(*store.WriteRequest)
	if !ok {
		t.Fatalf("expected *store.WriteRequest, got %T", got)
	}
	if got.WriteTime != nil || got.WriterID != nil {
		t.Fatalf("expected nil optionals to round trip to nil, got %+v", got)
	}
}

func TestCommandCodec_CreateWithParentAndTimestamp(t *testing.T) {
	parent := intern.NewEntityId(1, 1)
	ts := uint64(55)
	req := &store.CreateRequest{EntityType: 3, ParentID: &parent, Name: "child", Timestamp: &ts}
	got, ok := commandRoundTrip(t, req).(*store.CreateRequest)
	if !ok {
		t.Fatalf("expected *store.CreateRequest, got %T", got)
	}
	if got.ParentID == nil || *got.ParentID != parent {
		t.Fatalf("expected parent id to round trip, got %v", got.ParentID)
	}
	if got.Name != "child" || got.Timestamp == nil || *got.Timestamp != ts {
		t.Fatalf("unexpected decode: %+v", got)
	}
}

func TestCommandCodec_CreateWithoutParent(t *testing.T) {
	req := &store.CreateRequest{EntityType: 3, Name: "root-like"}
	got, ok := commandRoundTrip(t, req).(*store.CreateRequest)
	if !ok {
		t.Fatalf("expected *store.CreateRequest, got %T", got)
	}
	if got.ParentID != nil {
		t.Fatalf("expected nil parent to round trip to nil, got %v", got.ParentID)
	}
}

func TestCommandCodec_Delete(t *testing.T) {
	req := &store.DeleteRequest{EntityID: intern.NewEntityId(1, 1)}
	got, ok := commandRoundTrip(t, req).(*store.DeleteRequest)
	if !ok {
		t.Fatalf("expected *store.DeleteRequest, got %T", got)
	}
	if got.EntityID != req.EntityID {
		t.Fatalf("unexpected decode: %+v", got)
	}
}

func TestCommandCodec_SchemaUpdate(t *testing.T) {
	s := schema.Schema{
		Type:    7,
		Parents: []intern.EntityType{1},
		Fields: map[intern.FieldType]schema.FieldDescriptor{
			1: {Field: 1, Variant: schema.VariantString, StorageScope: schema.Persistent},
		},
	}
	req := &store.SchemaUpdateRequest{Schema: s}
	got, ok := commandRoundTrip(t, req).(*store.SchemaUpdateRequest)
	if !ok {
		t.Fatalf("expected *store.SchemaUpdateRequest, got %T", got)
	}
	if got.Schema.Type != 7 || len(got.Schema.Parents) != 1 || len(got.Schema.Fields) != 1 {
		t.Fatalf("unexpected decode: %+v", got.Schema)
	}
}

func TestCommandCodec_FindEntitiesPaginated(t *testing.T) {
	cursor := uint64(3)
	req := &store.FindEntitiesRequest{EntityType: 5, PageOpts: store.PageOpts{Limit: 10, Cursor: &cursor}, Filter: "Name == 'x'"}
	got, ok := commandRoundTrip(t, req).(*store.FindEntitiesRequest)
	if !ok {
		t.Fatalf("expected *store.FindEntitiesRequest, got %T", got)
	}
	if got.EntityType != 5 || got.Filter != "Name == 'x'" || got.PageOpts.Cursor == nil || *got.PageOpts.Cursor != 3 {
		t.Fatalf("unexpected decode: %+v", got)
	}
}

func TestDecodeCommand_RejectsMalformedFrame(t *testing.T) {
	if _, err := DecodeCommand(NewInteger(1)); err == nil {
		t.Fatal("expected an error decoding a non-array command frame")
	}
}

func TestDecodeCommand_RejectsUnknownOpcode(t *testing.T) {
	if _, err := DecodeCommand(NewArray([]Value{NewBulkString("NOPE")})); err == nil {
		t.Fatal("expected an error decoding an unknown opcode")
	}
}

func resultRoundTrip(t *testing.T, op store.Request, apply store.Request) {
	t.Helper()
	frame := EncodeResult(op)
	if err := ApplyResult(apply, frame); err != nil {
		t.Fatalf("apply result: %v", err)
	}
}

func TestResultCodec_Read(t *testing.T) {
	writer := intern.NewEntityId(1, 1)
	op := &store.ReadRequest{Value: schema.IntValue(9), WriteTime: 12, Writer: &writer}
	apply := &store.ReadRequest{}
	resultRoundTrip(t, op, apply)
	if !apply.Value.Equal(op.Value) || apply.WriteTime != 12 || apply.Writer == nil || *apply.Writer != writer {
		t.Fatalf("unexpected applied result: %+v", apply)
	}
}

func TestResultCodec_Create(t *testing.T) {
	op := &store.CreateRequest{CreatedEntityID: intern.NewEntityId(2, 4)}
	apply := &store.CreateRequest{}
	resultRoundTrip(t, op, apply)
	if apply.CreatedEntityID != op.CreatedEntityID {
		t.Fatalf("unexpected applied result: %+v", apply)
	}
}

func TestResultCodec_GetEntitySchemaNotFound(t *testing.T) {
	op := &store.GetEntitySchemaRequest{Found: false}
	apply := &store.GetEntitySchemaRequest{}
	resultRoundTrip(t, op, apply)
	if apply.Found {
		t.Fatal("expected Found to remain false on an absent schema")
	}
}

func TestResultCodec_GetEntitySchemaFound(t *testing.T) {
	op := &store.GetEntitySchemaRequest{Found: true, Schema: schema.Schema{
		Type:   4,
		Fields: map[intern.FieldType]schema.FieldDescriptor{1: {Field: 1, Variant: schema.VariantBool}},
	}}
	apply := &store.GetEntitySchemaRequest{}
	resultRoundTrip(t, op, apply)
	if !apply.Found || apply.Schema.Type != 4 || len(apply.Schema.Fields) != 1 {
		t.Fatalf("unexpected applied result: %+v", apply)
	}
}

func TestResultCodec_FindEntitiesPage(t *testing.T) {
	cursor := uint64(8)
	op := &store.FindEntitiesRequest{Result: store.PageResult[intern.EntityId]{
		Items:      []intern.EntityId{intern.NewEntityId(1, 1), intern.NewEntityId(1, 2)},
		Total:      2,
		NextCursor: &cursor,
	}}
	apply := &store.FindEntitiesRequest{}
	resultRoundTrip(t, op, apply)
	if len(apply.Result.Items) != 2 || apply.Result.Total != 2 || apply.Result.NextCursor == nil || *apply.Result.NextCursor != 8 {
		t.Fatalf("unexpected applied result: %+v", apply.Result)
	}
}

func TestFieldDescriptorCodec_RoundTrip(t *testing.T) {
	fd := schema.FieldDescriptor{
		Field:        3,
		Variant:      schema.VariantChoice,
		Default:      schema.ChoiceValue(1),
		Rank:         2,
		Choices:      []string{"a", "b"},
		StorageScope: schema.Runtime,
	}
	got, err := DecodeFieldDescriptor(EncodeFieldDescriptor(fd))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Field != fd.Field || got.Variant != fd.Variant || got.Rank != fd.Rank || got.StorageScope != fd.StorageScope {
		t.Fatalf("unexpected decode: %+v", got)
	}
	if len(got.Choices) != 2 || got.Choices[1] != "b" {
		t.Fatalf("expected choices to round trip, got %v", got.Choices)
	}
}
