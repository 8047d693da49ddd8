package dto

import "time"

// SuccessResponse represents a generic success response
type SuccessResponse struct {
	Message string `json:"message"`
}

// SweepResponse reports how many records a cron sweep changed
type SweepResponse struct {
	Updated int `json:"updated"`
}

// SweepRequest narrows a cron sweep. Empty tenants means the default tenant,
// an unset as_of means now.
type SweepRequest struct {
	TenantIDs []string   `json:"tenant_ids,omitempty"`
	AsOf      *time.Time `json:"as_of,omitempty"`
}
