package store

import (
	"qstore/internal/intern"
	"qstore/internal/qerr"
	"qstore/internal/schema"
)

// resolveIndirection follows fieldPath from start, advancing through
// EntityReference/EntityList cells, and returns the terminal
// (entity, field). It never mutates the store. fieldPath must be
// non-empty.
//
// Per spec.md §4.D: for i = 1..n-1, the cell at (e, fieldPath[i]) must
// be an EntityReference (advance to the referenced entity, error if
// None) or an EntityList (the path element is treated as an ordinal
// index into the list, advancing to that entity). Any other
// descriptor variant, or a missing cell/entity, fails with BadPath.
func (s *Store) resolveIndirection(start intern.EntityId, fieldPath []intern.FieldType) (intern.EntityId, intern.FieldType, error) {
	if len(fieldPath) == 0 {
		return 0, 0, qerr.BadPathErr("empty field path")
	}

	e := start
	i := 0
	for i < len(fieldPath)-1 {
		ent, ok := s.entities[e]
		if !ok {
			return 0, 0, qerr.BadPathErr("entity %s does not exist", e.String(s.interner))
		}
		cell, ok := ent.Cells[fieldPath[i]]
		if !ok {
			return 0, 0, qerr.BadPathErr("field does not exist on %s", e.String(s.interner))
		}

		switch cell.Value.Variant {
		case schema.VariantEntityReference:
			if cell.Value.Ref == nil {
				return 0, 0, qerr.BadPathErr("indirection through None reference")
			}
			e = *cell.Value.Ref
			i++
		case schema.VariantEntityList:
			// The next path element doubles as the ordinal index
			// into the list for this hop.
			i++
			if i > len(fieldPath)-1 {
				return 0, 0, qerr.BadPathErr("path ends inside an EntityList hop")
			}
			idx, ok := asListIndex(fieldPath[i])
			if !ok {
				return 0, 0, qerr.BadPathErr("expected numeric index after EntityList field")
			}
			if idx < 0 || idx >= len(cell.Value.List) {
				return 0, 0, qerr.BadPathErr("EntityList index %d out of range", idx)
			}
			e = cell.Value.List[idx]
			i++
		default:
			return 0, 0, qerr.BadPathErr("field is not EntityReference or EntityList")
		}
	}

	return e, fieldPath[len(fieldPath)-1], nil
}

// asListIndex interprets a FieldType encountered where an EntityList
// ordinal index was expected. Callers pack a literal index into the
// low bits of a reserved FieldType range so that a field path (a
// []FieldType) can still carry it; see ListIndex.
func asListIndex(ft intern.FieldType) (int, bool) {
	if ft&listIndexMarker == 0 {
		return 0, false
	}
	return int(ft &^ listIndexMarker), true
}

// listIndexMarker flags a FieldType value in a field path as carrying
// a literal EntityList ordinal rather than a real interned field.
const listIndexMarker intern.FieldType = 1 << 62

// ListIndex packs a literal ordinal index for use as a field-path
// element following an EntityList field.
func ListIndex(i int) intern.FieldType {
	return listIndexMarker | intern.FieldType(i)
}
