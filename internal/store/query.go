package store

import (
	"qstore/internal/intern"
	"qstore/internal/qerr"
)

// execFindEntities implements spec.md §4.C FindEntities: inheritance-
// aware (exact type or any descendant), paginated over the stable
// (type, ascending index) enumeration order, with an optional filter
// applied to the materialized page.
func (s *Store) execFindEntities(r *FindEntitiesRequest) error {
	if _, ok := s.registry.GetComplete(r.EntityType); !ok {
		return qerr.UnknownTypeErr(s.typeName(r.EntityType))
	}
	ids := s.enumerateInheritanceAware(r.EntityType)
	return s.paginateAndFilter(ids, r.PageOpts, r.Filter, &r.Result)
}

// execFindEntitiesExact implements FindEntitiesExact.
func (s *Store) execFindEntitiesExact(r *FindEntitiesExactRequest) error {
	if _, ok := s.registry.GetComplete(r.EntityType); !ok {
		return qerr.UnknownTypeErr(s.typeName(r.EntityType))
	}
	ids := s.types.exact(r.EntityType)
	return s.paginateAndFilter(ids, r.PageOpts, r.Filter, &r.Result)
}

func (s *Store) enumerateInheritanceAware(t intern.EntityType) []intern.EntityId {
	var out []intern.EntityId
	for _, dt := range s.registry.Descendants(t) {
		out = append(out, s.types.exact(dt)...)
	}
	return out
}

func (s *Store) paginateAndFilter(ids []intern.EntityId, opts PageOpts, filter string, result *PageResult[intern.EntityId]) error {
	if opts.Limit <= 0 {
		opts = DefaultPageOpts()
	}

	start := 0
	if opts.Cursor != nil {
		start = int(*opts.Cursor)
	}
	if start > len(ids) {
		start = len(ids)
	}
	end := start + opts.Limit
	if end > len(ids) {
		end = len(ids)
	}
	page := ids[start:end]

	var prog *filterProgram
	if filter != "" {
		p, err := s.compileFilter(filter)
		if err != nil {
			return err
		}
		prog = p
	}

	items := make([]intern.EntityId, 0, len(page))
	for _, id := range page {
		if prog != nil {
			ok, err := s.filterMatches(prog, id)
			if err != nil {
				return err
			}
			if !ok {
				continue
			}
		}
		items = append(items, id)
	}

	result.Items = items
	result.Total = len(ids)
	if end < len(ids) {
		next := uint64(end)
		result.NextCursor = &next
	} else {
		result.NextCursor = nil
	}
	return nil
}

// execGetEntityTypes implements GetEntityTypes[Paginated]: every
// interned entity type name, paginated in allocation order.
func (s *Store) execGetEntityTypes(r *GetEntityTypesRequest) error {
	names := s.interner.EntityTypes()
	types := make([]intern.EntityType, 0, len(names))
	for _, name := range names {
		if t, ok := s.interner.GetEntityType(name); ok {
			types = append(types, t)
		}
	}

	opts := r.PageOpts
	if opts.Limit <= 0 {
		opts = DefaultPageOpts()
	}
	start := 0
	if opts.Cursor != nil {
		start = int(*opts.Cursor)
	}
	if start > len(types) {
		start = len(types)
	}
	end := start + opts.Limit
	if end > len(types) {
		end = len(types)
	}

	r.Result.Items = append([]intern.EntityType(nil), types[start:end]...)
	r.Result.Total = len(types)
	if end < len(types) {
		next := uint64(end)
		r.Result.NextCursor = &next
	} else {
		r.Result.NextCursor = nil
	}
	return nil
}
