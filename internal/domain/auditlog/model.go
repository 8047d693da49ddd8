package auditlog

import (
	"time"

	"github.com/casebill/casebill/internal/types"
)

// AuditLog records who did what to a sensitive record
type AuditLog struct {
	ID          string                `db:"id" json:"id"`
	TenantID    string                `db:"tenant_id" json:"tenant_id"`
	EntityType  types.AuditEntityType `db:"entity_type" json:"entity_type"`
	EntityID    string                `db:"entity_id" json:"entity_id"`
	Action      string                `db:"action" json:"action"`
	PerformedBy string                `db:"performed_by" json:"performed_by"`
	Details     types.Metadata        `db:"details" json:"details"`
	CreatedAt   time.Time             `db:"created_at" json:"created_at"`
}

// New returns an audit entry stamped with the tenant of the context
func New(tenantID string, entityType types.AuditEntityType, entityID, action, performedBy string, details types.Metadata, at time.Time) *AuditLog {
	if details == nil {
		details = types.Metadata{}
	}
	return &AuditLog{
		ID:          types.GenerateUUIDWithPrefix(types.UUID_PREFIX_AUDIT_LOG),
		TenantID:    tenantID,
		EntityType:  entityType,
		EntityID:    entityID,
		Action:      action,
		PerformedBy: performedBy,
		Details:     details,
		CreatedAt:   at,
	}
}
