package store

import (
	"qstore/internal/intern"
	"qstore/internal/schema"
)

// Cell is the stored (value, write_time, writer) triple for one
// entity/field pair.
type Cell struct {
	Value     schema.Value
	WriteTime uint64 // nanos since epoch
	Writer    *intern.EntityId
}

func (c Cell) Clone() Cell {
	out := Cell{Value: c.Value.Clone(), WriteTime: c.WriteTime}
	if c.Writer != nil {
		w := *c.Writer
		out.Writer = &w
	}
	return out
}

// Entity is a live record: its type, name, and one cell per field of
// its complete schema.
type Entity struct {
	ID     intern.EntityId
	Type   intern.EntityType
	Name   string
	Cells  map[intern.FieldType]Cell
}

func newEntity(id intern.EntityId, t intern.EntityType, name string, complete schema.Schema) *Entity {
	cells := make(map[intern.FieldType]Cell, len(complete.Fields))
	for ft, fd := range complete.Fields {
		cells[ft] = Cell{Value: fd.Default.Clone()}
	}
	return &Entity{ID: id, Type: t, Name: name, Cells: cells}
}
