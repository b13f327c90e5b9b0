package models

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// PageRequest selects one page of a descending-time listing.
// Construct via NewPageRequest so the clamps always apply.
type PageRequest struct {
	Number int
	Size   int
}

// NewPageRequest clamps the raw values: number below 1 becomes 1, size below
// 1 falls back to the default, size above the cap is truncated to the cap.
func NewPageRequest(number, size int) PageRequest {
	if number < 1 {
		number = 1
	}
	switch {
	case size < 1:
		size = DefaultPageSize
	case size > MaxPageSize:
		size = MaxPageSize
	}
	return PageRequest{Number: number, Size: size}
}

func (p PageRequest) Skip() int {
	return (p.Number - 1) * p.Size
}

// Page is one page of results plus the derived paging metadata.
type Page[T any] struct {
	Items      []T `json:"items"`
	TotalCount int `json:"totalCount"`
	Number     int `json:"pageNumber"`
	Size       int `json:"pageSize"`
}

func (p Page[T]) TotalPages() int {
	if p.Size == 0 {
		return 0
	}
	return (p.TotalCount + p.Size - 1) / p.Size
}

func (p Page[T]) HasPrevious() bool {
	return p.Number > 1
}

func (p Page[T]) HasNext() bool {
	return p.Number < p.TotalPages()
}
