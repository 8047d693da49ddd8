package types

// PaginationResponse represents standardized pagination metadata
type PaginationResponse struct {
	Total  int `json:"total"`
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}

// ListResponse is the envelope of every list endpoint
type ListResponse[T any] struct {
	Items      []T                `json:"items"`
	Pagination PaginationResponse `json:"pagination"`
}

// NewListResponse wraps items with the paging values of filter
func NewListResponse[T any](items []T, total int, filter BaseFilter) ListResponse[T] {
	if items == nil {
		items = []T{}
	}
	resp := ListResponse[T]{
		Items:      items,
		Pagination: PaginationResponse{Total: total},
	}
	if filter != nil {
		resp.Pagination.Limit = filter.GetLimit()
		resp.Pagination.Offset = filter.GetOffset()
	}
	return resp
}
