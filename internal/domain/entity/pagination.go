package entity

// Page is one page of a cursor-paginated upstream listing.
type Page[T any] struct {
	Items   []T
	HasMore bool
	// NextCursor is the identifier of the last item; empty when Items is empty.
	NextCursor string
}

// PageLimits bounds a paginated read.
type PageLimits struct {
	PageSize int
	MaxPages int
	// MaxItems caps the number of collected items. Zero means no cap.
	MaxItems int
}

// Pagination constants
const (
	DefaultPageSize = 100
	MaxPageSize     = 100
	DefaultMaxPages = 200
)

// Normalize clamps the page size into [1, MaxPageSize] and defaults MaxPages.
func (l PageLimits) Normalize() PageLimits {
	if l.PageSize < 1 {
		l.PageSize = DefaultPageSize
	} else if l.PageSize > MaxPageSize {
		l.PageSize = MaxPageSize
	}
	if l.MaxPages < 1 {
		l.MaxPages = DefaultMaxPages
	}
	if l.MaxItems < 0 {
		l.MaxItems = 0
	}
	return l
}
