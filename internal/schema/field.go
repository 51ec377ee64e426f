package schema

import "qstore/internal/intern"

// StorageScope controls whether a snapshot persists a field's cells.
type StorageScope uint8

const (
	Runtime StorageScope = iota
	Persistent
)

// FieldDescriptor describes one field of one entity type: its value
// variant, default, rank (stable ordering within a schema), the
// optional choice labels for Choice fields, and its storage scope.
type FieldDescriptor struct {
	Field        intern.FieldType
	Variant      Variant
	Default      Value
	Rank         int
	Choices      []string
	StorageScope StorageScope
}

func (fd FieldDescriptor) Equal(o FieldDescriptor) bool {
	if fd.Field != o.Field || fd.Variant != o.Variant || fd.Rank != o.Rank || fd.StorageScope != o.StorageScope {
		return false
	}
	if !fd.Default.Equal(o.Default) {
		return false
	}
	if len(fd.Choices) != len(o.Choices) {
		return false
	}
	for i := range fd.Choices {
		if fd.Choices[i] != o.Choices[i] {
			return false
		}
	}
	return true
}

func (fd FieldDescriptor) Clone() FieldDescriptor {
	out := fd
	out.Default = fd.Default.Clone()
	if fd.Choices != nil {
		out.Choices = append([]string(nil), fd.Choices...)
	}
	return out
}

// Schema is the single (non-flattened) per-type schema: its direct
// parent types and its own locally declared fields.
type Schema struct {
	Type    intern.EntityType
	Parents []intern.EntityType
	Fields  map[intern.FieldType]FieldDescriptor
}

func (s Schema) Clone() Schema {
	out := Schema{
		Type:    s.Type,
		Parents: append([]intern.EntityType(nil), s.Parents...),
		Fields:  make(map[intern.FieldType]FieldDescriptor, len(s.Fields)),
	}
	for k, v := range s.Fields {
		out.Fields[k] = v.Clone()
	}
	return out
}

// Diff describes what changed between an old and new local schema, as
// returned by Registry.Update for Store Core to migrate cells.
type Diff struct {
	Added   []FieldDescriptor
	Removed []FieldDescriptor
	Changed []FieldChange
}

type FieldChange struct {
	Old FieldDescriptor
	New FieldDescriptor
}
