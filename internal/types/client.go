package types

// ClientFilter represents the filter for listing clients
type ClientFilter struct {
	*QueryFilter

	ClientIDs []string `json:"client_ids,omitempty" form:"client_ids"`
	Email     string   `json:"email,omitempty" form:"email"`
}

func NewClientFilter() *ClientFilter {
	return &ClientFilter{
		QueryFilter: NewDefaultQueryFilter(),
	}
}

func (f *ClientFilter) Validate() error {
	if f == nil {
		return nil
	}
	return f.QueryFilter.Validate()
}
