package auditlog

import (
	"context"

	"github.com/casebill/casebill/internal/types"
)

type Repository interface {
	Create(ctx context.Context, entry *AuditLog) error
	ListByEntity(ctx context.Context, entityType types.AuditEntityType, entityID string) ([]*AuditLog, error)
}
