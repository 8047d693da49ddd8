package types

// Status is the row lifecycle status stored on every record.
// Business state (invoice status, payment status, ...) lives in dedicated columns.
type Status string

const (
	StatusPublished Status = "published"
	StatusArchived  Status = "archived"
	StatusDeleted   Status = "deleted"
)
