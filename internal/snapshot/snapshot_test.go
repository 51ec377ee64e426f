package snapshot

import (
	"testing"

	"qstore/internal/intern"
	"qstore/internal/schema"
	"qstore/internal/store"
)

func sampleSnapshot() store.StoreSnapshot {
	rootID := intern.NewEntityId(2, 1)
	writer := intern.NewEntityId(2, 1)
	return store.StoreSnapshot{
		EntityNames: []string{"Object", "Root"},
		FieldNames:  []string{"Name", "Parent", "Children"},
		Schemas: []schema.Schema{
			{Type: 1, Fields: map[intern.FieldType]schema.FieldDescriptor{
				1: {Field: 1, Variant: schema.VariantString, StorageScope: schema.Persistent},
			}},
			{Type: 2, Parents: []intern.EntityType{1}, Fields: map[intern.FieldType]schema.FieldDescriptor{
				2: {Field: 2, Variant: schema.VariantEntityReference, StorageScope: schema.Persistent},
				3: {Field: 3, Variant: schema.VariantEntityList, StorageScope: schema.Persistent},
			}},
		},
		Entities: []store.EntitySnapshot{
			{
				ID:   rootID,
				Type: 2,
				Name: "Root",
				Cells: []store.CellSnapshot{
					{Field: 1, Value: schema.StringValue("Root"), WriteTime: 1, Writer: &writer},
				},
			},
		},
	}
}

func TestBinaryCodec_RoundTrip(t *testing.T) {
	snap := sampleSnapshot()
	blob, err := Encode(snap)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	got, err := Decode(blob)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got.EntityNames) != 2 || len(got.FieldNames) != 3 {
		t.Fatalf("unexpected name tables: %+v", got)
	}
	if len(got.Schemas) != 2 || len(got.Entities) != 1 {
		t.Fatalf("unexpected counts: schemas=%d entities=%d", len(got.Schemas), len(got.Entities))
	}
	if got.Entities[0].Name != "Root" || len(got.Entities[0].Cells) != 1 {
		t.Fatalf("unexpected entity: %+v", got.Entities[0])
	}
	if !got.Entities[0].Cells[0].Value.Equal(schema.StringValue("Root")) {
		t.Fatalf("expected cell value to round trip, got %+v", got.Entities[0].Cells[0].Value)
	}
}

func TestDecode_RejectsMissingMagic(t *testing.T) {
	if _, err := Decode([]byte("not a snapshot")); err == nil {
		t.Fatal("expected an error decoding a blob without the QSNP magic")
	}
}

func TestDecode_RejectsTruncatedBlob(t *testing.T) {
	if _, err := Decode([]byte("QS")); err == nil {
		t.Fatal("expected an error decoding a blob shorter than the magic")
	}
}
