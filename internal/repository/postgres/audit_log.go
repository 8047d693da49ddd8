package postgres

import (
	"context"

	"github.com/casebill/casebill/internal/domain/auditlog"
	"github.com/casebill/casebill/internal/logger"
	"github.com/casebill/casebill/internal/postgres"
	"github.com/casebill/casebill/internal/types"
)

type auditLogRepository struct {
	db     *postgres.DB
	logger *logger.Logger
}

func NewAuditLogRepository(db *postgres.DB, logger *logger.Logger) auditlog.Repository {
	return &auditLogRepository{db: db, logger: logger}
}

func (r *auditLogRepository) Create(ctx context.Context, entry *auditlog.AuditLog) error {
	return insertAuditLog(ctx, r.db, entry)
}

func (r *auditLogRepository) ListByEntity(ctx context.Context, entityType types.AuditEntityType, entityID string) ([]*auditlog.AuditLog, error) {
	query := `
		SELECT * FROM audit_logs
		WHERE tenant_id = :tenant_id AND entity_type = :entity_type AND entity_id = :entity_id
		ORDER BY created_at ASC, id ASC`

	rows, err := r.db.NamedQueryContext(ctx, query, map[string]interface{}{
		"tenant_id":   types.GetTenantID(ctx),
		"entity_type": entityType,
		"entity_id":   entityID,
	})
	if err != nil {
		return nil, dbError(err, "Audit log", "list")
	}
	items, err := scanAll[auditlog.AuditLog](rows)
	if err != nil {
		return nil, dbError(err, "Audit log", "list")
	}
	return items, nil
}

// insertAuditLog is shared with the trust ledger commit so both land in the same transaction
func insertAuditLog(ctx context.Context, db *postgres.DB, entry *auditlog.AuditLog) error {
	query := `
		INSERT INTO audit_logs (
			id, tenant_id, entity_type, entity_id, action, performed_by, details, created_at
		) VALUES (
			:id, :tenant_id, :entity_type, :entity_id, :action, :performed_by, :details, :created_at
		)`

	if _, err := db.NamedExecContext(ctx, query, entry); err != nil {
		return dbError(err, "Audit log", "create")
	}
	return nil
}
