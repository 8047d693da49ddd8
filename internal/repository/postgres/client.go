package postgres

import (
	"context"

	"github.com/casebill/casebill/internal/domain/client"
	"github.com/casebill/casebill/internal/logger"
	"github.com/casebill/casebill/internal/postgres"
	"github.com/casebill/casebill/internal/types"
)

type clientRepository struct {
	db     *postgres.DB
	logger *logger.Logger
}

func NewClientRepository(db *postgres.DB, logger *logger.Logger) client.Repository {
	return &clientRepository{db: db, logger: logger}
}

func (r *clientRepository) Create(ctx context.Context, c *client.Client) error {
	query := `
		INSERT INTO clients (
			id, tenant_id, name, email, phone, jurisdiction, stripe_customer_id, metadata,
			status, created_at, updated_at, created_by, updated_by
		) VALUES (
			:id, :tenant_id, :name, :email, :phone, :jurisdiction, :stripe_customer_id, :metadata,
			:status, :created_at, :updated_at, :created_by, :updated_by
		)`

	r.logger.Debugw("creating client", "client_id", c.ID, "tenant_id", c.TenantID)

	if _, err := r.db.NamedExecContext(ctx, query, c); err != nil {
		return dbError(err, "Client", "create")
	}
	return nil
}

func (r *clientRepository) Get(ctx context.Context, id string) (*client.Client, error) {
	rows, err := r.db.NamedQueryContext(ctx, "SELECT * FROM clients WHERE id = :id AND tenant_id = :tenant_id AND status = :status", map[string]interface{}{
		"id":        id,
		"tenant_id": types.GetTenantID(ctx),
		"status":    types.StatusPublished,
	})
	if err != nil {
		return nil, dbError(err, "Client", "get")
	}
	c, err := scanOne[client.Client](rows)
	if err != nil {
		if isNoRows(err) {
			return nil, notFound("Client", id)
		}
		return nil, dbError(err, "Client", "get")
	}
	return c, nil
}

func (r *clientRepository) Update(ctx context.Context, c *client.Client) error {
	query := `
		UPDATE clients SET
			name = :name,
			email = :email,
			phone = :phone,
			jurisdiction = :jurisdiction,
			stripe_customer_id = :stripe_customer_id,
			metadata = :metadata,
			updated_at = :updated_at,
			updated_by = :updated_by
		WHERE id = :id AND tenant_id = :tenant_id AND status = :status`

	result, err := r.db.NamedExecContext(ctx, query, c)
	if err != nil {
		return dbError(err, "Client", "update")
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return dbError(err, "Client", "update")
	}
	if affected == 0 {
		return notFound("Client", c.ID)
	}
	return nil
}

func (r *clientRepository) List(ctx context.Context, filter *types.ClientFilter) ([]*client.Client, error) {
	if filter == nil {
		filter = &types.ClientFilter{QueryFilter: types.NewNoLimitQueryFilter()}
	}
	b := r.filter(ctx, filter)
	query := "SELECT * FROM clients" + b.where() + b.page("created_at", filter)

	rows, err := r.db.NamedQueryContext(ctx, query, b.params)
	if err != nil {
		return nil, dbError(err, "Client", "list")
	}
	items, err := scanAll[client.Client](rows)
	if err != nil {
		return nil, dbError(err, "Client", "list")
	}
	return items, nil
}

func (r *clientRepository) Count(ctx context.Context, filter *types.ClientFilter) (int, error) {
	total, err := count(ctx, r.db, "clients", r.filter(ctx, filter))
	if err != nil {
		return 0, dbError(err, "Client", "count")
	}
	return total, nil
}

func (r *clientRepository) filter(ctx context.Context, f *types.ClientFilter) *queryBuilder {
	b := newQueryBuilder(ctx)
	if f == nil {
		return b
	}
	b.in("id", f.ClientIDs).eq("email", f.Email)
	return b
}
