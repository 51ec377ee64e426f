package schema

import (
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"qstore/internal/intern"
	"qstore/internal/qerr"
)

// Registry stores each type's single schema (local fields + parent
// list) and a memoized complete schema, in a sync.RWMutex-guarded
// map keyed by EntityType.
type Registry struct {
	mu      sync.RWMutex
	schemas map[intern.EntityType]Schema

	// children maps a type to the set of types that directly declare
	// it as a parent; used to invalidate descendants' memoized
	// complete schemas on update, and to compute descendants().
	children map[intern.EntityType]map[intern.EntityType]struct{}

	complete *lru.Cache[intern.EntityType, Schema]
}

const completeSchemaCacheSize = 4096

func NewRegistry() *Registry {
	cache, err := lru.New[intern.EntityType, Schema](completeSchemaCacheSize)
	if err != nil {
		// Only returns an error for a non-positive size, which is a
		// compile-time constant here.
		panic(err)
	}
	return &Registry{
		schemas:  make(map[intern.EntityType]Schema),
		children: make(map[intern.EntityType]map[intern.EntityType]struct{}),
		complete: cache,
	}
}

// Update replaces the local schema for s.Type, invalidates the
// memoized complete schema for this type and all its descendants, and
// returns a Diff of local field changes for Store Core to migrate
// cells from.
func (r *Registry) Update(s Schema) (Diff, error) {
	s = s.Clone()

	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.checkCycleLocked(s.Type, s.Parents); err != nil {
		return Diff{}, err
	}

	old, existed := r.schemas[s.Type]

	// Remove this type's old parent-edges before installing the new
	// ones, then rebuild the children index entries for it.
	if existed {
		for _, p := range old.Parents {
			delete(r.children[p], s.Type)
		}
	}
	for _, p := range s.Parents {
		if r.children[p] == nil {
			r.children[p] = make(map[intern.EntityType]struct{})
		}
		r.children[p][s.Type] = struct{}{}
	}

	r.schemas[s.Type] = s
	r.invalidateLocked(s.Type)

	if !existed {
		return Diff{Added: fieldSlice(s.Fields)}, nil
	}
	return diffFields(old.Fields, s.Fields), nil
}

func fieldSlice(m map[intern.FieldType]FieldDescriptor) []FieldDescriptor {
	out := make([]FieldDescriptor, 0, len(m))
	for _, fd := range m {
		out = append(out, fd)
	}
	return out
}

func diffFields(old, new map[intern.FieldType]FieldDescriptor) Diff {
	var d Diff
	for ft, nfd := range new {
		ofd, ok := old[ft]
		if !ok {
			d.Added = append(d.Added, nfd)
			continue
		}
		if !ofd.Equal(nfd) {
			d.Changed = append(d.Changed, FieldChange{Old: ofd, New: nfd})
		}
	}
	for ft, ofd := range old {
		if _, ok := new[ft]; !ok {
			d.Removed = append(d.Removed, ofd)
		}
	}
	return d
}

// checkCycleLocked walks the proposed parent list of t (as if s.Type's
// schema were already t -> parents) to ensure no ancestor chain loops
// back to t. Must be called with r.mu held.
func (r *Registry) checkCycleLocked(t intern.EntityType, parents []intern.EntityType) error {
	visited := map[intern.EntityType]bool{t: true}
	var walk func([]intern.EntityType) error
	walk = func(ps []intern.EntityType) error {
		for _, p := range ps {
			if visited[p] {
				return qerr.SchemaCycleErr("type %d participates in an inheritance cycle", t)
			}
			visited[p] = true
			if sch, ok := r.schemas[p]; ok {
				if err := walk(sch.Parents); err != nil {
					return err
				}
			}
			delete(visited, p)
		}
		return nil
	}
	return walk(parents)
}

// invalidateLocked drops the memoized complete schema for t and every
// type transitively descended from it. Must be called with r.mu held.
func (r *Registry) invalidateLocked(t intern.EntityType) {
	r.complete.Remove(t)
	for c := range r.children[t] {
		r.invalidateLocked(c)
	}
}

// GetSingle returns the raw, non-flattened schema for t.
func (r *Registry) GetSingle(t intern.EntityType) (Schema, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.schemas[t]
	if !ok {
		return Schema{}, false
	}
	return s.Clone(), true
}

// GetComplete returns the flattened schema for t: ancestors merged
// first (in parent-list order, depth-first), then t's own local
// fields overriding any inherited descriptor of the same field.
func (r *Registry) GetComplete(t intern.EntityType) (Schema, bool) {
	if cached, ok := r.complete.Get(t); ok {
		return cached.Clone(), true
	}

	r.mu.RLock()
	local, ok := r.schemas[t]
	if !ok {
		r.mu.RUnlock()
		return Schema{}, false
	}
	local = local.Clone()
	r.mu.RUnlock()

	merged := make(map[intern.FieldType]FieldDescriptor)
	for _, p := range local.Parents {
		anc, ok := r.GetComplete(p)
		if !ok {
			continue
		}
		for ft, fd := range anc.Fields {
			merged[ft] = fd
		}
	}
	for ft, fd := range local.Fields {
		merged[ft] = fd
	}

	complete := Schema{Type: t, Parents: local.Parents, Fields: merged}
	r.complete.Add(t, complete.Clone())
	return complete, true
}

// Descendants returns every type whose complete schema transitively
// includes t as an ancestor (including t itself), in a stable order:
// ascending numeric EntityType id.
func (r *Registry) Descendants(t intern.EntityType) []intern.EntityType {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := map[intern.EntityType]struct{}{t: {}}
	var walk func(intern.EntityType)
	walk = func(cur intern.EntityType) {
		for c := range r.children[cur] {
			if _, ok := seen[c]; ok {
				continue
			}
			seen[c] = struct{}{}
			walk(c)
		}
	}
	walk(t)

	out := make([]intern.EntityType, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	sortEntityTypes(out)
	return out
}

func sortEntityTypes(s []intern.EntityType) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j-1] > s[j]; j-- {
			s[j-1], s[j] = s[j], s[j-1]
		}
	}
}

// IsSubtype reports whether a == b or b is an ancestor of a.
func (r *Registry) IsSubtype(a, b intern.EntityType) bool {
	if a == b {
		return true
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	visited := map[intern.EntityType]bool{}
	var walk func(intern.EntityType) bool
	walk = func(cur intern.EntityType) bool {
		if visited[cur] {
			return false
		}
		visited[cur] = true
		sch, ok := r.schemas[cur]
		if !ok {
			return false
		}
		for _, p := range sch.Parents {
			if p == b || walk(p) {
				return true
			}
		}
		return false
	}
	return walk(a)
}

// GetFieldSchema is a convenience lookup into the complete schema.
func (r *Registry) GetFieldSchema(t intern.EntityType, f intern.FieldType) (FieldDescriptor, bool) {
	complete, ok := r.GetComplete(t)
	if !ok {
		return FieldDescriptor{}, false
	}
	fd, ok := complete.Fields[f]
	return fd, ok
}

// Snapshot returns every registered type's raw local schema, for
// persisting in a snapshot blob. Order is unspecified; callers sort
// by resolved type name if a stable order is required.
func (r *Registry) Snapshot() []Schema {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Schema, 0, len(r.schemas))
	for _, s := range r.schemas {
		out = append(out, s.Clone())
	}
	return out
}
