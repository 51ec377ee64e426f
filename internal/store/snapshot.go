package store

import (
	"sort"

	"qstore/internal/intern"
	"qstore/internal/schema"
)

// CellSnapshot is one persisted field value, restricted to fields
// whose storage_scope == Persistent (spec.md §4.H); Runtime-scoped
// fields are recomputable and omitted by Snapshot.
type CellSnapshot struct {
	Field     intern.FieldType
	Value     schema.Value
	WriteTime uint64
	Writer    *intern.EntityId
}

// EntitySnapshot is one persisted entity: its identity plus its
// Persistent-scoped cells.
type EntitySnapshot struct {
	ID    intern.EntityId
	Type  intern.EntityType
	Name  string
	Cells []CellSnapshot
}

// StoreSnapshot is the full serializable image described by spec.md
// §4.H: interner tables, every schema, and every entity's persisted
// cells. Entities are ordered parent-before-child so Restore can
// reconstitute Parent/Children invariants incrementally.
type StoreSnapshot struct {
	EntityNames []string
	FieldNames  []string
	Schemas     []schema.Schema
	Entities    []EntitySnapshot
}

// Snapshot takes a stop-the-world consistent read: the whole store is
// held under its read lock for the duration, so no write can
// interleave (spec.md §4.H), while other concurrent readers are still
// admitted by the underlying sync.RWMutex.
func (s *Store) Snapshot() StoreSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entityNames, fieldNames := s.interner.Snapshot()
	snap := StoreSnapshot{
		EntityNames: entityNames,
		FieldNames:  fieldNames,
		Schemas:     s.registry.Snapshot(),
	}

	ordered := s.parentBeforeChildLocked()
	snap.Entities = make([]EntitySnapshot, 0, len(ordered))
	for _, id := range ordered {
		ent := s.entities[id]
		complete, _ := s.registry.GetComplete(ent.Type)
		es := EntitySnapshot{ID: ent.ID, Type: ent.Type, Name: ent.Name}
		for field, cell := range ent.Cells {
			fd, ok := complete.Fields[field]
			if !ok || fd.StorageScope != schema.Persistent {
				continue
			}
			es.Cells = append(es.Cells, CellSnapshot{
				Field:     field,
				Value:     cell.Value.Clone(),
				WriteTime: cell.WriteTime,
				Writer:    cell.Writer,
			})
		}
		sort.Slice(es.Cells, func(i, j int) bool { return es.Cells[i].Field < es.Cells[j].Field })
		snap.Entities = append(snap.Entities, es)
	}
	return snap
}

// parentBeforeChildLocked returns every live EntityId in an order
// where an entity always precedes its children, via a BFS from the
// root (callers hold s.mu). Entities unreachable from root (should not
// happen in a well-formed tree, but tolerated defensively) are
// appended afterwards in ascending live order.
func (s *Store) parentBeforeChildLocked() []intern.EntityId {
	seen := make(map[intern.EntityId]bool, len(s.entities))
	var order []intern.EntityId

	childrenField, hasChildrenField := s.interner.GetFieldType(intern.ChildrenFieldName)
	if s.root != nil {
		queue := []intern.EntityId{*s.root}
		for len(queue) > 0 {
			id := queue[0]
			queue = queue[1:]
			if seen[id] {
				continue
			}
			seen[id] = true
			order = append(order, id)
			ent, ok := s.entities[id]
			if !ok || !hasChildrenField {
				continue
			}
			if cell, ok := ent.Cells[childrenField]; ok {
				queue = append(queue, cell.Value.List...)
			}
		}
	}

	var rest []intern.EntityId
	for id := range s.entities {
		if !seen[id] {
			rest = append(rest, id)
		}
	}
	sort.Slice(rest, func(i, j int) bool { return rest[i] < rest[j] })
	return append(order, rest...)
}

// Restore replaces the store's entire state from snap: interner,
// schemas, then entities in snap's given (parent-before-child) order,
// so Parent/Children invariants hold at every step. Restore takes the
// exclusive write lock for the duration.
func (s *Store) Restore(snap StoreSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.interner.Restore(snap.EntityNames, snap.FieldNames)

	for _, sch := range snap.Schemas {
		if _, err := s.registry.Update(sch); err != nil {
			return err
		}
	}

	s.entities = make(map[intern.EntityId]*Entity, len(snap.Entities))
	s.types = newTypeIndex()
	s.root = nil
	s.idAllocs = make(map[intern.EntityType]IDAllocator)

	for _, es := range snap.Entities {
		complete, _ := s.registry.GetComplete(es.Type)
		ent := newEntity(es.ID, es.Type, es.Name, complete)
		for _, cs := range es.Cells {
			ent.Cells[cs.Field] = Cell{Value: cs.Value.Clone(), WriteTime: cs.WriteTime, Writer: cs.Writer}
		}
		s.entities[es.ID] = ent
		s.types.add(es.ID)

		if name, ok := s.interner.ResolveEntityType(es.Type); ok && name == intern.RootTypeName {
			rootID := es.ID
			s.root = &rootID
		}
	}

	// idAllocs started empty above: unlike the old wall-clock-derived
	// scheme, the counter-based allocator has no basis for knowing what
	// indices a prior process already issued, so every restored type
	// must seed its allocator past the highest arena index already in
	// use or a later Create could collide with a restored entity.
	for t := range s.types.byType {
		if maxIdx, ok := s.types.maxIndex(t); ok {
			s.allocatorFor(t).Seed(maxIdx + 1)
		}
	}
	s.recomputeRefBearingTypes()
	return nil
}
