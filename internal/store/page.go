package store

// PageOpts are pagination options for a paginated query, grounded on
// original_source/src/data/pagination.rs's PageOpts.
type PageOpts struct {
	Limit  int
	Cursor *uint64
}

// DefaultPageOpts matches the source's Default impl (limit=100, no
// cursor).
func DefaultPageOpts() PageOpts {
	return PageOpts{Limit: 100}
}

// PageResult is the result of a paginated query.
type PageResult[T any] struct {
	Items      []T
	Total      int
	NextCursor *uint64
}
