// Package intern implements the bidirectional name<->id maps for
// entity types and field types, and the EntityId value type.
package intern

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
)

// EntityType is a 32-bit interned identifier for an entity type name.
type EntityType uint32

// FieldType is a 64-bit interned identifier for a field name.
type FieldType uint64

// EntityId packs an EntityType and a per-type arena index into one
// 64-bit integer for cheap hashing and equality.
type EntityId uint64

func NewEntityId(t EntityType, index uint32) EntityId {
	return EntityId(uint64(t)<<32 | uint64(index))
}

func (id EntityId) Type() EntityType { return EntityType(id >> 32) }
func (id EntityId) Index() uint32    { return uint32(id) }

// String returns the "<TypeName>$<index>" textual form using reg to
// resolve the type name; if the type cannot be resolved, the numeric
// type id is used instead.
func (id EntityId) String(reg *Interner) string {
	name, ok := reg.ResolveEntityType(id.Type())
	if !ok {
		name = strconv.FormatUint(uint64(id.Type()), 10)
	}
	return fmt.Sprintf("%s$%d", name, id.Index())
}

// ParseEntityId parses the "<TypeName>$<index>" textual form.
func ParseEntityId(reg *Interner, s string) (EntityId, bool) {
	i := strings.LastIndexByte(s, '$')
	if i < 0 {
		return 0, false
	}
	typeName, idxStr := s[:i], s[i+1:]
	idx, err := strconv.ParseUint(idxStr, 10, 32)
	if err != nil {
		return 0, false
	}
	t, ok := reg.GetEntityType(typeName)
	if !ok {
		return 0, false
	}
	return NewEntityId(t, uint32(idx)), true
}

// Interner maintains the name<->id maps for entity types and field
// types. Identifiers are allocated sequentially starting at 1 (0 is
// reserved as the "no type"/"no field" sentinel) and are never reused,
// even after a name is no longer referenced by any live schema.
type Interner struct {
	mu sync.RWMutex

	entityNameToID map[string]EntityType
	entityIDToName map[EntityType]string
	nextEntityType EntityType

	fieldNameToID map[string]FieldType
	fieldIDToName map[FieldType]string
	nextFieldType FieldType
}

func New() *Interner {
	return &Interner{
		entityNameToID: make(map[string]EntityType),
		entityIDToName: make(map[EntityType]string),
		nextEntityType: 1,
		fieldNameToID:  make(map[string]FieldType),
		fieldIDToName:  make(map[FieldType]string),
		nextFieldType:  1,
	}
}

// InternEntityType returns the existing id for name, or allocates the
// next sequential one.
func (in *Interner) InternEntityType(name string) EntityType {
	in.mu.Lock()
	defer in.mu.Unlock()
	if id, ok := in.entityNameToID[name]; ok {
		return id
	}
	id := in.nextEntityType
	in.nextEntityType++
	in.entityNameToID[name] = id
	in.entityIDToName[id] = name
	return id
}

func (in *Interner) InternFieldType(name string) FieldType {
	in.mu.Lock()
	defer in.mu.Unlock()
	if id, ok := in.fieldNameToID[name]; ok {
		return id
	}
	id := in.nextFieldType
	in.nextFieldType++
	in.fieldNameToID[name] = id
	in.fieldIDToName[id] = name
	return id
}

// GetEntityType looks up name without allocating.
func (in *Interner) GetEntityType(name string) (EntityType, bool) {
	in.mu.RLock()
	defer in.mu.RUnlock()
	id, ok := in.entityNameToID[name]
	return id, ok
}

func (in *Interner) GetFieldType(name string) (FieldType, bool) {
	in.mu.RLock()
	defer in.mu.RUnlock()
	id, ok := in.fieldNameToID[name]
	return id, ok
}

func (in *Interner) ResolveEntityType(id EntityType) (string, bool) {
	in.mu.RLock()
	defer in.mu.RUnlock()
	name, ok := in.entityIDToName[id]
	return name, ok
}

func (in *Interner) ResolveFieldType(id FieldType) (string, bool) {
	in.mu.RLock()
	defer in.mu.RUnlock()
	name, ok := in.fieldIDToName[id]
	return name, ok
}

// EntityTypes returns every interned entity type name, in the stable
// order they were interned (ascending id).
func (in *Interner) EntityTypes() []string {
	in.mu.RLock()
	defer in.mu.RUnlock()
	out := make([]string, 0, len(in.entityIDToName))
	for id := EntityType(1); id < in.nextEntityType; id++ {
		if name, ok := in.entityIDToName[id]; ok {
			out = append(out, name)
		}
	}
	return out
}

// Snapshot returns the full entity/field name tables in allocation
// order, for persisting in a snapshot blob.
func (in *Interner) Snapshot() (entityNames []string, fieldNames []string) {
	in.mu.RLock()
	defer in.mu.RUnlock()
	for id := EntityType(1); id < in.nextEntityType; id++ {
		entityNames = append(entityNames, in.entityIDToName[id])
	}
	for id := FieldType(1); id < in.nextFieldType; id++ {
		fieldNames = append(fieldNames, in.fieldIDToName[id])
	}
	return
}

// Restore repopulates the interner from snapshot name tables,
// preserving the original id assignment (position i -> id i+1).
func (in *Interner) Restore(entityNames, fieldNames []string) {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.entityNameToID = make(map[string]EntityType, len(entityNames))
	in.entityIDToName = make(map[EntityType]string, len(entityNames))
	for i, name := range entityNames {
		id := EntityType(i + 1)
		in.entityNameToID[name] = id
		in.entityIDToName[id] = name
	}
	in.nextEntityType = EntityType(len(entityNames) + 1)

	in.fieldNameToID = make(map[string]FieldType, len(fieldNames))
	in.fieldIDToName = make(map[FieldType]string, len(fieldNames))
	for i, name := range fieldNames {
		id := FieldType(i + 1)
		in.fieldNameToID[name] = id
		in.fieldIDToName[id] = name
	}
	in.nextFieldType = FieldType(len(fieldNames) + 1)
}

// Constants for the built-in types/fields, grounded on
// original_source/src/data/constants.rs.
const (
	ObjectTypeName = "Object"
	RootTypeName   = "Root"

	NameFieldName     = "Name"
	ParentFieldName   = "Parent"
	ChildrenFieldName = "Children"

	IndirectionDelimiter = "->"
)
