// Package store implements the Store Core (spec.md §4.C): the entity
// arena, the type/parent index, the request pipeline executor, and
// (via indirection.go and filter.go) the Indirection Resolver and the
// FindEntities predicate DSL.
package store

import (
	"sync"

	"qstore/internal/intern"
	"qstore/internal/notify"
	"qstore/internal/qerr"
	"qstore/internal/schema"
)

// Store owns the entity table, the inverted type index, the root
// pointer, and the id allocator. A single sync.RWMutex implements the
// concurrency model of spec.md §5: a whole request batch takes the
// write lock if it contains any mutation, otherwise the read lock.
type Store struct {
	mu sync.RWMutex

	interner *intern.Interner
	registry *schema.Registry
	notify   *notify.Hub
	clock    Clock

	entities map[intern.EntityId]*Entity
	types    *typeIndex
	root     *intern.EntityId

	idAllocFactory func() IDAllocator
	idAllocs       map[intern.EntityType]IDAllocator

	// refBearingTypes caches, per entity type, the field types whose
	// descriptor is EntityReference/EntityList, recomputed on every
	// SchemaUpdate, Restore and Delete. Used by Delete to scrub inbound references
	// without scanning every live entity of every type.
	refBearingTypes map[intern.EntityType][]intern.FieldType

	filterCache sync.Map // filter source text -> *filterProgram
}

func New(interner *intern.Interner, registry *schema.Registry, hub *notify.Hub, clock Clock, nodeID uint64) *Store {
	if clock == nil {
		clock = SystemClock
	}
	return &Store{
		interner:        interner,
		registry:        registry,
		notify:          hub,
		clock:           clock,
		entities:        make(map[intern.EntityId]*Entity),
		types:           newTypeIndex(),
		idAllocFactory:  func() IDAllocator { return NewSnowflakeAllocator(nodeID) },
		idAllocs:        make(map[intern.EntityType]IDAllocator),
		refBearingTypes: make(map[intern.EntityType][]intern.FieldType),
	}
}

func (s *Store) Interner() *intern.Interner { return s.interner }
func (s *Store) Registry() *schema.Registry { return s.registry }
func (s *Store) Notify() *notify.Hub        { return s.notify }

func (s *Store) allocIndex(t intern.EntityType) uint32 {
	return s.allocatorFor(t).Next()
}

// allocatorFor returns the id allocator for t, creating one on first
// use. Restore also calls this directly, to seed an allocator before
// any Next() call ever reaches it.
func (s *Store) allocatorFor(t intern.EntityType) IDAllocator {
	a, ok := s.idAllocs[t]
	if !ok {
		a = s.idAllocFactory()
		s.idAllocs[t] = a
	}
	return a
}

// Execute runs a batch of requests sequentially: earlier writes are
// visible to later reads within the batch. On the first operation
// error, execution stops; already-applied operations remain applied.
// Returns the index of the failing operation, or -1 on full success.
func (s *Store) Execute(batch *Requests) (int, error) {
	write := false
	for _, op := range batch.Ops {
		if isMutatingOp(op) {
			write = true
			break
		}
	}

	if write {
		s.mu.Lock()
		defer s.mu.Unlock()
	} else {
		s.mu.RLock()
		defer s.mu.RUnlock()
	}

	for i, op := range batch.Ops {
		if err := s.execOne(op, batch.Originator); err != nil {
			return i, err
		}
	}
	return -1, nil
}

func isMutatingOp(op Request) bool {
	switch op.(type) {
	case *WriteRequest, *CreateRequest, *DeleteRequest, *SchemaUpdateRequest:
		return true
	default:
		return false
	}
}

func (s *Store) execOne(op Request, originator *intern.EntityId) error {
	switch r := op.(type) {
	case *ReadRequest:
		return s.execRead(r)
	case *WriteRequest:
		return s.execWrite(r, originator)
	case *CreateRequest:
		return s.execCreate(r)
	case *DeleteRequest:
		return s.execDelete(r)
	case *SchemaUpdateRequest:
		return s.execSchemaUpdate(r)
	case *GetEntityTypeRequest:
		r.Type, r.Found = s.interner.GetEntityType(r.Name)
		return nil
	case *ResolveEntityTypeRequest:
		r.Name, r.Found = s.interner.ResolveEntityType(r.Type)
		return nil
	case *GetFieldTypeRequest:
		r.Field, r.Found = s.interner.GetFieldType(r.Name)
		return nil
	case *ResolveFieldTypeRequest:
		r.Name, r.Found = s.interner.ResolveFieldType(r.Field)
		return nil
	case *GetEntitySchemaRequest:
		r.Schema, r.Found = s.registry.GetSingle(r.Type)
		return nil
	case *GetCompleteEntitySchemaRequest:
		r.Schema, r.Found = s.registry.GetComplete(r.Type)
		return nil
	case *GetFieldSchemaRequest:
		r.Descriptor, r.Found = s.registry.GetFieldSchema(r.Type, r.Field)
		return nil
	case *EntityExistsRequest:
		_, r.Exists = s.entities[r.EntityID]
		return nil
	case *FieldExistsRequest:
		ent, ok := s.entities[r.EntityID]
		if !ok {
			r.Exists = false
			return nil
		}
		_, r.Exists = ent.Cells[r.Field]
		return nil
	case *ResolveIndirectionRequest:
		e, f, err := s.resolveIndirection(r.StartID, r.FieldPath)
		if err != nil {
			return err
		}
		r.TerminalID, r.TerminalField = e, f
		return nil
	case *FindEntitiesRequest:
		return s.execFindEntities(r)
	case *FindEntitiesExactRequest:
		return s.execFindEntitiesExact(r)
	case *GetEntityTypesRequest:
		return s.execGetEntityTypes(r)
	default:
		return qerr.InternalErr("unknown request type %T", op)
	}
}

func (s *Store) execRead(r *ReadRequest) error {
	e, f, err := s.resolveIndirection(r.EntityID, r.FieldPath)
	if err != nil {
		return err
	}
	ent, ok := s.entities[e]
	if !ok {
		return qerr.NotFoundErr("entity %s does not exist", e.String(s.interner))
	}
	cell, ok := ent.Cells[f]
	if !ok {
		return qerr.NotFoundErr("field not found on %s", e.String(s.interner))
	}
	r.Value = cell.Value.Clone()
	r.WriteTime = cell.WriteTime
	r.Writer = cell.Writer
	return nil
}
