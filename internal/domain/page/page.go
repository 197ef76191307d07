// Package page holds the pagination contract shared by every list endpoint.
package page

const (
	DefaultSize = 10
	MaxSize     = 100
)

// Request is a 1-based page selection.
type Request struct {
	Page int
	Size int
}

// Normalize applies defaults and clamps the page size.
func (r Request) Normalize() Request {
	if r.Page < 1 {
		r.Page = 1
	}
	switch {
	case r.Size < 1:
		r.Size = DefaultSize
	case r.Size > MaxSize:
		r.Size = MaxSize
	}
	return r
}

// Offset is the number of rows to skip for this page.
func (r Request) Offset() int {
	n := r.Normalize()
	return (n.Page - 1) * n.Size
}

// Limit is the normalized page size.
func (r Request) Limit() int {
	return r.Normalize().Size
}

// Result is one page of T together with totals.
type Result[T any] struct {
	Items      []T
	Total      int
	Page       int
	Size       int
	TotalPages int
}

// NewResult builds a Result for items fetched with req out of total rows.
func NewResult[T any](items []T, total int, req Request) Result[T] {
	req = req.Normalize()
	if items == nil {
		items = []T{}
	}
	return Result[T]{
		Items:      items,
		Total:      total,
		Page:       req.Page,
		Size:       req.Size,
		TotalPages: (total + req.Size - 1) / req.Size,
	}
}

// Slice returns the window of items selected by req. In-memory stores use
// it; SQL stores page with LIMIT/OFFSET instead.
func Slice[T any](items []T, req Request) []T {
	off, lim := req.Offset(), req.Limit()
	if off >= len(items) {
		return []T{}
	}
	end := min(off+lim, len(items))
	return items[off:end]
}
