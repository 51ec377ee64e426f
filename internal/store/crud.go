package store

import (
	"qstore/internal/intern"
	"qstore/internal/notify"
	"qstore/internal/qerr"
	"qstore/internal/schema"
)

// execCreate implements spec.md §4.C Create.
func (s *Store) execCreate(r *CreateRequest) error {
	complete, ok := s.registry.GetComplete(r.EntityType)
	if !ok {
		return qerr.UnknownTypeErr(s.typeName(r.EntityType))
	}

	typeName, _ := s.interner.ResolveEntityType(r.EntityType)
	isRoot := typeName == intern.RootTypeName

	if isRoot {
		if s.root != nil {
			return qerr.RootAlreadyExistsErr()
		}
		if r.ParentID != nil {
			return qerr.InvalidParentErr("root entity cannot have a parent")
		}
	} else {
		if r.ParentID == nil {
			return qerr.InvalidParentErr("parent is required for non-root entities")
		}
		if _, ok := s.entities[*r.ParentID]; !ok {
			return qerr.InvalidParentErr("parent %s does not exist", r.ParentID.String(s.interner))
		}
	}

	idx := s.allocIndex(r.EntityType)
	id := intern.NewEntityId(r.EntityType, idx)
	ent := newEntity(id, r.EntityType, r.Name, complete)

	if nameField, ok := s.interner.GetFieldType(intern.NameFieldName); ok {
		if _, has := ent.Cells[nameField]; has {
			ent.Cells[nameField] = Cell{Value: schema.StringValue(r.Name), WriteTime: s.timestampOrNow(r.Timestamp)}
		}
	}

	if r.ParentID != nil {
		if parentField, ok := s.interner.GetFieldType(intern.ParentFieldName); ok {
			id2 := *r.ParentID
			ent.Cells[parentField] = Cell{Value: schema.EntityRefValue(&id2), WriteTime: s.timestampOrNow(r.Timestamp)}
		}
		s.appendChild(*r.ParentID, id, r.Timestamp)
	}

	s.entities[id] = ent
	s.types.add(id)
	if isRoot {
		rootID := id
		s.root = &rootID
	}

	r.CreatedEntityID = id
	return nil
}

func (s *Store) appendChild(parent, child intern.EntityId, ts *uint64) {
	childrenField, ok := s.interner.GetFieldType(intern.ChildrenFieldName)
	if !ok {
		return
	}
	p, ok := s.entities[parent]
	if !ok {
		return
	}
	cell := p.Cells[childrenField]
	cell.Value = schema.EntityListValue(append(cell.Value.List, child))
	cell.WriteTime = s.timestampOrNow(ts)
	p.Cells[childrenField] = cell
}

func (s *Store) removeChild(parent, child intern.EntityId, ts *uint64) {
	childrenField, ok := s.interner.GetFieldType(intern.ChildrenFieldName)
	if !ok {
		return
	}
	p, ok := s.entities[parent]
	if !ok {
		return
	}
	cell := p.Cells[childrenField]
	filtered := cell.Value.List[:0]
	for _, c := range cell.Value.List {
		if c != child {
			filtered = append(filtered, c)
		}
	}
	cell.Value = schema.EntityListValue(filtered)
	cell.WriteTime = s.timestampOrNow(ts)
	p.Cells[childrenField] = cell
}

func (s *Store) timestampOrNow(ts *uint64) uint64 {
	if ts != nil {
		return *ts
	}
	return s.clock.NowNanos()
}

func (s *Store) typeName(t intern.EntityType) string {
	if name, ok := s.interner.ResolveEntityType(t); ok {
		return name
	}
	return "?"
}

// execDelete implements spec.md §4.C Delete: post-order recursive
// deletion of children, inbound-reference scrubbing, parent.Children
// membership removal, per-entity notifications, slot release.
func (s *Store) execDelete(r *DeleteRequest) error {
	// Schemas registered straight through Registry() bypass
	// execSchemaUpdate, so refresh the reference-field cache first.
	s.recomputeRefBearingTypes()
	return s.deleteOne(r.EntityID, r.Timestamp, true)
}

func (s *Store) deleteOne(id intern.EntityId, ts *uint64, unlinkFromParent bool) error {
	ent, ok := s.entities[id]
	if !ok {
		return qerr.NotFoundErr("entity %s does not exist", id.String(s.interner))
	}

	childrenField, hasChildrenField := s.interner.GetFieldType(intern.ChildrenFieldName)
	if hasChildrenField {
		if cell, ok := ent.Cells[childrenField]; ok {
			for _, child := range append([]intern.EntityId(nil), cell.Value.List...) {
				if err := s.deleteOne(child, ts, false); err != nil {
					return err
				}
			}
		}
	}

	if unlinkFromParent {
		if parentField, ok := s.interner.GetFieldType(intern.ParentFieldName); ok {
			if cell, ok := ent.Cells[parentField]; ok && cell.Value.Ref != nil {
				s.removeChild(*cell.Value.Ref, id, ts)
			}
		}
	}

	s.scrubInboundReferences(id, ts)

	for field, cell := range ent.Cells {
		fd, ok := s.registry.GetFieldSchema(ent.Type, field)
		if !ok {
			continue
		}
		s.fireNotification(id, ent.Type, field, fd.Default, cell.Value, ts)
	}

	delete(s.entities, id)
	s.types.remove(id)
	if s.root != nil && *s.root == id {
		s.root = nil
	}
	return nil
}

// scrubInboundReferences removes id from every EntityReference/
// EntityList cell across the store that points to it.
func (s *Store) scrubInboundReferences(id intern.EntityId, ts *uint64) {
	for typeName := range s.refBearingFieldsByType() {
		fields := s.refBearingTypes[typeName]
		for _, candidate := range s.types.exact(typeName) {
			other, ok := s.entities[candidate]
			if !ok {
				continue
			}
			for _, field := range fields {
				cell, ok := other.Cells[field]
				if !ok {
					continue
				}
				changed := false
				switch cell.Value.Variant {
				case schema.VariantEntityReference:
					if cell.Value.Ref != nil && *cell.Value.Ref == id {
						cell.Value = schema.EntityRefValue(nil)
						changed = true
					}
				case schema.VariantEntityList:
					out := cell.Value.List[:0]
					for _, e := range cell.Value.List {
						if e != id {
							out = append(out, e)
						}
					}
					if len(out) != len(cell.Value.List) {
						cell.Value = schema.EntityListValue(out)
						changed = true
					}
				}
				if changed {
					cell.WriteTime = s.timestampOrNow(ts)
					other.Cells[field] = cell
				}
			}
		}
	}
}

func (s *Store) refBearingFieldsByType() map[intern.EntityType][]intern.FieldType {
	return s.refBearingTypes
}

// execWrite implements spec.md §4.C Write.
func (s *Store) execWrite(r *WriteRequest, originator *intern.EntityId) error {
	e, f, err := s.resolveIndirection(r.EntityID, r.FieldPath)
	if err != nil {
		return err
	}
	ent, ok := s.entities[e]
	if !ok {
		return qerr.NotFoundErr("entity %s does not exist", e.String(s.interner))
	}
	fd, ok := s.registry.GetFieldSchema(ent.Type, f)
	if !ok {
		return qerr.UnknownFieldErr(s.fieldName(f))
	}
	old, ok := ent.Cells[f]
	if !ok {
		old = Cell{Value: fd.Default.Clone()}
	}

	newValue, err := applyAdjust(fd, old.Value, r.Value, r.AdjustBehavior)
	if err != nil {
		return err
	}

	if r.PushCondition == PushOnChange && newValue.Equal(old.Value) {
		r.WriteProcessed = false
		return nil
	}

	writer := r.WriterID
	if writer == nil {
		writer = originator
	}

	cell := Cell{Value: newValue, WriteTime: s.timestampOrNow(r.WriteTime), Writer: writer}
	ent.Cells[f] = cell
	r.WriteProcessed = true

	s.fireNotification(e, ent.Type, f, old.Value, newValue, r.WriteTime)
	return nil
}

func (s *Store) fieldName(f intern.FieldType) string {
	if name, ok := s.interner.ResolveFieldType(f); ok {
		return name
	}
	return "?"
}

// applyAdjust implements Set/Add/Subtract per spec.md §4.C: Set
// replaces; Add/Subtract are componentwise for numeric types and
// ordered-insertion-without-duplicates / set-difference for
// EntityList.
func applyAdjust(fd schema.FieldDescriptor, old, incoming schema.Value, adjust AdjustBehavior) (schema.Value, error) {
	if adjust == AdjustSet {
		if incoming.Variant != fd.Variant {
			return schema.Value{}, qerr.TypeMismatchErr("field is %s, got %s", fd.Variant, incoming.Variant)
		}
		return incoming.Clone(), nil
	}

	switch fd.Variant {
	case schema.VariantInt:
		if incoming.Variant != schema.VariantInt {
			return schema.Value{}, qerr.TypeMismatchErr("expected Int")
		}
		if adjust == AdjustAdd {
			return schema.IntValue(old.Int + incoming.Int), nil
		}
		return schema.IntValue(old.Int - incoming.Int), nil
	case schema.VariantFloat:
		if incoming.Variant != schema.VariantFloat {
			return schema.Value{}, qerr.TypeMismatchErr("expected Float")
		}
		if adjust == AdjustAdd {
			return schema.FloatValue(old.Float + incoming.Float), nil
		}
		return schema.FloatValue(old.Float - incoming.Float), nil
	case schema.VariantEntityList:
		if incoming.Variant != schema.VariantEntityList {
			return schema.Value{}, qerr.TypeMismatchErr("expected EntityList")
		}
		if adjust == AdjustAdd {
			return schema.EntityListValue(unionOrdered(old.List, incoming.List)), nil
		}
		return schema.EntityListValue(difference(old.List, incoming.List)), nil
	default:
		return schema.Value{}, qerr.InvalidAdjustErr("Add/Subtract unsupported on %s", fd.Variant)
	}
}

// unionOrdered appends each of add not already present, preserving
// insertion order and deduplicating (spec.md §9 Open Questions).
func unionOrdered(base, add []intern.EntityId) []intern.EntityId {
	present := make(map[intern.EntityId]bool, len(base))
	out := append([]intern.EntityId(nil), base...)
	for _, id := range base {
		present[id] = true
	}
	for _, id := range add {
		if !present[id] {
			present[id] = true
			out = append(out, id)
		}
	}
	return out
}

func difference(base, remove []intern.EntityId) []intern.EntityId {
	drop := make(map[intern.EntityId]bool, len(remove))
	for _, id := range remove {
		drop[id] = true
	}
	out := make([]intern.EntityId, 0, len(base))
	for _, id := range base {
		if !drop[id] {
			out = append(out, id)
		}
	}
	return out
}

// fireNotification dispatches a committed write to (e, f) through the
// Notification Engine, walking ancestors of type(e) for ByType fan-out.
func (s *Store) fireNotification(e intern.EntityId, t intern.EntityType, f intern.FieldType, previous, current schema.Value, ts *uint64) {
	if s.notify == nil {
		return
	}
	ancestors := s.ancestorChain(t)
	rec := notify.Record{
		EntityID:  e,
		FieldType: f,
		Current:   current.Clone(),
		Previous:  previous.Clone(),
		WriteTime: s.timestampOrNow(ts),
	}
	_ = s.notify.Dispatch(rec, ancestors, s.resolveContext)
}

func (s *Store) resolveContext(entity intern.EntityId, path []intern.FieldType) (schema.Value, bool) {
	e, f, err := s.resolveIndirection(entity, path)
	if err != nil {
		return schema.Value{}, false
	}
	ent, ok := s.entities[e]
	if !ok {
		return schema.Value{}, false
	}
	cell, ok := ent.Cells[f]
	if !ok {
		return schema.Value{}, false
	}
	return cell.Value.Clone(), true
}

// ancestorChain returns t followed by its ancestors, closest first.
func (s *Store) ancestorChain(t intern.EntityType) []intern.EntityType {
	out := []intern.EntityType{t}
	seen := map[intern.EntityType]bool{t: true}
	queue := []intern.EntityType{t}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		single, ok := s.registry.GetSingle(cur)
		if !ok {
			continue
		}
		for _, p := range single.Parents {
			if !seen[p] {
				seen[p] = true
				out = append(out, p)
				queue = append(queue, p)
			}
		}
	}
	return out
}

// execSchemaUpdate implements spec.md §4.C SchemaUpdate. A field cell
// exists iff the field is in the complete schema of the entity's
// type, so updating an ancestor's schema must migrate cells on every
// live descendant type, not just entities of the exact type updated —
// a subtype that overrides the field locally keeps its own
// descriptor, found via that subtype's own complete schema rather
// than the descriptor just installed on the ancestor.
func (s *Store) execSchemaUpdate(r *SchemaUpdateRequest) error {
	diff, err := s.registry.Update(r.Schema)
	if err != nil {
		return err
	}

	s.recomputeRefBearingTypes()

	descendants := s.registry.Descendants(r.Schema.Type)

	for _, fd := range diff.Added {
		for _, dt := range descendants {
			effective, ok := s.registry.GetFieldSchema(dt, fd.Field)
			if !ok {
				continue
			}
			for _, id := range s.types.exact(dt) {
				ent := s.entities[id]
				if _, has := ent.Cells[fd.Field]; has {
					continue
				}
				ent.Cells[fd.Field] = Cell{Value: effective.Default.Clone(), WriteTime: s.timestampOrNow(r.Timestamp)}
				s.fireNotification(id, ent.Type, fd.Field, effective.Default, effective.Default, r.Timestamp)
			}
		}
	}
	for _, fd := range diff.Removed {
		for _, dt := range descendants {
			if _, stillPresent := s.registry.GetFieldSchema(dt, fd.Field); stillPresent {
				continue
			}
			for _, id := range s.types.exact(dt) {
				ent := s.entities[id]
				old, ok := ent.Cells[fd.Field]
				if !ok {
					continue
				}
				delete(ent.Cells, fd.Field)
				s.fireNotification(id, ent.Type, fd.Field, old.Value, fd.Default, r.Timestamp)
			}
		}
	}
	for _, ch := range diff.Changed {
		for _, dt := range descendants {
			effective, ok := s.registry.GetFieldSchema(dt, ch.New.Field)
			if !ok {
				continue
			}
			for _, id := range s.types.exact(dt) {
				ent := s.entities[id]
				old, ok := ent.Cells[ch.New.Field]
				oldVal := effective.Default
				if ok {
					oldVal = old.Value
				}
				ent.Cells[ch.New.Field] = Cell{Value: effective.Default.Clone(), WriteTime: s.timestampOrNow(r.Timestamp)}
				s.fireNotification(id, ent.Type, ch.New.Field, oldVal, effective.Default, r.Timestamp)
			}
		}
	}
	return nil
}

func (s *Store) recomputeRefBearingTypes() {
	s.refBearingTypes = make(map[intern.EntityType][]intern.FieldType)
	for _, name := range s.interner.EntityTypes() {
		t, ok := s.interner.GetEntityType(name)
		if !ok {
			continue
		}
		complete, ok := s.registry.GetComplete(t)
		if !ok {
			continue
		}
		var fields []intern.FieldType
		for ft, fd := range complete.Fields {
			if fd.Variant == schema.VariantEntityReference || fd.Variant == schema.VariantEntityList {
				fields = append(fields, ft)
			}
		}
		if len(fields) > 0 {
			s.refBearingTypes[t] = fields
		}
	}
}
