package store

import (
	"github.com/RoaringBitmap/roaring/v2"

	"qstore/internal/intern"
)

// typeIndex maintains, for each EntityType, the compressed bitmap of
// arena indices of entities whose EXACT type is that type. Roaring
// bitmaps give cheap membership/union/iteration over the u32 index
// space without materializing a Go map per type.
type typeIndex struct {
	byType map[intern.EntityType]*roaring.Bitmap
}

func newTypeIndex() *typeIndex {
	return &typeIndex{byType: make(map[intern.EntityType]*roaring.Bitmap)}
}

func (ti *typeIndex) add(id intern.EntityId) {
	b := ti.byType[id.Type()]
	if b == nil {
		b = roaring.New()
		ti.byType[id.Type()] = b
	}
	b.Add(id.Index())
}

func (ti *typeIndex) remove(id intern.EntityId) {
	if b, ok := ti.byType[id.Type()]; ok {
		b.Remove(id.Index())
	}
}

// exact returns the ascending-index ids of the exact type t.
func (ti *typeIndex) exact(t intern.EntityType) []intern.EntityId {
	b, ok := ti.byType[t]
	if !ok {
		return nil
	}
	out := make([]intern.EntityId, 0, b.GetCardinality())
	it := b.Iterator()
	for it.HasNext() {
		out = append(out, intern.NewEntityId(t, it.Next()))
	}
	return out
}

func (ti *typeIndex) countExact(t intern.EntityType) uint64 {
	b, ok := ti.byType[t]
	if !ok {
		return 0
	}
	return b.GetCardinality()
}

// maxIndex returns the highest arena index in use for the exact type
// t, and false if t has no live entities. Restore uses this to seed
// each type's id allocator clear of every index a restored entity
// already occupies.
func (ti *typeIndex) maxIndex(t intern.EntityType) (uint32, bool) {
	b, ok := ti.byType[t]
	if !ok || b.IsEmpty() {
		return 0, false
	}
	return b.Maximum(), true
}
