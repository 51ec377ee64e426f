package store

import (
	"testing"

	"qstore/internal/intern"
	"qstore/internal/schema"
)

func TestFindEntitiesExact_FilterDSL(t *testing.T) {
	f := newFixture(t)
	a := f.createDevice(t, "a")
	b := f.createDevice(t, "b")

	f.store.Execute(NewRequests(nil, &WriteRequest{EntityID: a, FieldPath: []intern.FieldType{f.countField}, Value: schema.IntValue(3)}))
	f.store.Execute(NewRequests(nil, &WriteRequest{EntityID: b, FieldPath: []intern.FieldType{f.countField}, Value: schema.IntValue(30)}))

	find := &FindEntitiesExactRequest{
		EntityType: f.deviceType,
		PageOpts:   DefaultPageOpts(),
		Filter:     "Count > 10",
	}
	if _, err := f.store.Execute(NewRequests(nil, find)); err != nil {
		t.Fatalf("filtered find: %v", err)
	}
	if len(find.Result.Items) != 1 || find.Result.Items[0] != b {
		t.Fatalf("expected only device b to match Count > 10, got %v", find.Result.Items)
	}
}

func TestFindEntitiesExact_FilterOnIndirectedField(t *testing.T) {
	f := newFixture(t)
	f.createDevice(t, "match-me")
	f.createDevice(t, "other")

	find := &FindEntitiesExactRequest{
		EntityType: f.deviceType,
		PageOpts:   DefaultPageOpts(),
		Filter:     `Parent->Name == "Root"`,
	}
	if _, err := f.store.Execute(NewRequests(nil, find)); err != nil {
		t.Fatalf("indirected filter: %v", err)
	}
	if len(find.Result.Items) != 2 {
		t.Fatalf("expected both devices to match Parent->Name == Root, got %d", len(find.Result.Items))
	}
}

func TestFindEntitiesExact_UnsupportedFilterSyntax(t *testing.T) {
	f := newFixture(t)
	find := &FindEntitiesExactRequest{EntityType: f.deviceType, PageOpts: DefaultPageOpts(), Filter: "Count >>> 1"}
	if _, err := f.store.Execute(NewRequests(nil, find)); err == nil {
		t.Fatal("expected malformed filter syntax to error")
	}
}

func TestFindEntities_InheritanceAwareIncludesDescendants(t *testing.T) {
	f := newFixture(t)
	f.createDevice(t, "d1")

	find := &FindEntitiesRequest{EntityType: f.deviceType, PageOpts: DefaultPageOpts()}
	if _, err := f.store.Execute(NewRequests(nil, find)); err != nil {
		t.Fatalf("find: %v", err)
	}
	if find.Result.Total != 1 {
		t.Fatalf("expected 1 device, got %d", find.Result.Total)
	}

	objectType, _ := f.in.GetEntityType(intern.ObjectTypeName)
	findAll := &FindEntitiesRequest{EntityType: objectType, PageOpts: DefaultPageOpts()}
	if _, err := f.store.Execute(NewRequests(nil, findAll)); err != nil {
		t.Fatalf("find all objects: %v", err)
	}
	// Root + the one device, both descend from Object.
	if findAll.Result.Total != 2 {
		t.Fatalf("expected 2 entities descending from Object, got %d", findAll.Result.Total)
	}
}
