package postgres

import (
	"context"

	"github.com/casebill/casebill/internal/domain/payment"
	"github.com/casebill/casebill/internal/logger"
	"github.com/casebill/casebill/internal/postgres"
	"github.com/casebill/casebill/internal/types"
)

type paymentRepository struct {
	db     *postgres.DB
	logger *logger.Logger
}

func NewPaymentRepository(db *postgres.DB, logger *logger.Logger) payment.Repository {
	return &paymentRepository{db: db, logger: logger}
}

func (r *paymentRepository) Create(ctx context.Context, p *payment.Payment) error {
	query := `
		INSERT INTO payments (
			id, tenant_id, client_id, invoice_id, case_id, payment_plan_id, purpose, amount, currency,
			payment_method, payment_status, external_transaction_id, check_number, receipt_number,
			processing_fee, net_amount, is_refunded, refunded_amount, refund_reason, failure_reason,
			idempotency_key, processed_date, succeeded_at, failed_at, refunded_at, metadata, version,
			status, created_at, updated_at, created_by, updated_by
		) VALUES (
			:id, :tenant_id, :client_id, :invoice_id, :case_id, :payment_plan_id, :purpose, :amount, :currency,
			:payment_method, :payment_status, :external_transaction_id, :check_number, :receipt_number,
			:processing_fee, :net_amount, :is_refunded, :refunded_amount, :refund_reason, :failure_reason,
			:idempotency_key, :processed_date, :succeeded_at, :failed_at, :refunded_at, :metadata, :version,
			:status, :created_at, :updated_at, :created_by, :updated_by
		)`

	r.logger.Debugw("creating payment",
		"payment_id", p.ID,
		"tenant_id", p.TenantID,
		"payment_method", p.PaymentMethod,
		"amount", p.Amount,
	)

	if _, err := r.db.NamedExecContext(ctx, query, p); err != nil {
		return dbError(err, "Payment", "create")
	}
	return nil
}

func (r *paymentRepository) Get(ctx context.Context, id string) (*payment.Payment, error) {
	return r.getBy(ctx, "id", id)
}

func (r *paymentRepository) GetByIdempotencyKey(ctx context.Context, key string) (*payment.Payment, error) {
	return r.getBy(ctx, "idempotency_key", key)
}

func (r *paymentRepository) GetByExternalTransactionID(ctx context.Context, externalID string) (*payment.Payment, error) {
	return r.getBy(ctx, "external_transaction_id", externalID)
}

func (r *paymentRepository) getBy(ctx context.Context, column, value string) (*payment.Payment, error) {
	query := `SELECT * FROM payments WHERE ` + column + ` = :value AND tenant_id = :tenant_id AND status = :status
		ORDER BY created_at DESC LIMIT 1` + lockClause(ctx)

	rows, err := r.db.NamedQueryContext(ctx, query, map[string]interface{}{
		"value":     value,
		"tenant_id": types.GetTenantID(ctx),
		"status":    types.StatusPublished,
	})
	if err != nil {
		return nil, dbError(err, "Payment", "get")
	}
	p, err := scanOne[payment.Payment](rows)
	if err != nil {
		if isNoRows(err) {
			return nil, notFound("Payment", value)
		}
		return nil, dbError(err, "Payment", "get")
	}
	return p, nil
}

func (r *paymentRepository) Update(ctx context.Context, p *payment.Payment) error {
	query := `
		UPDATE payments SET
			payment_status = :payment_status,
			external_transaction_id = :external_transaction_id,
			receipt_number = :receipt_number,
			processing_fee = :processing_fee,
			net_amount = :net_amount,
			is_refunded = :is_refunded,
			refunded_amount = :refunded_amount,
			refund_reason = :refund_reason,
			failure_reason = :failure_reason,
			processed_date = :processed_date,
			succeeded_at = :succeeded_at,
			failed_at = :failed_at,
			refunded_at = :refunded_at,
			payment_plan_id = :payment_plan_id,
			metadata = :metadata,
			version = version + 1,
			updated_at = :updated_at,
			updated_by = :updated_by
		WHERE id = :id AND tenant_id = :tenant_id AND version = :version`

	r.logger.Debugw("updating payment",
		"payment_id", p.ID,
		"version", p.Version,
		"payment_status", p.PaymentStatus,
	)

	result, err := r.db.NamedExecContext(ctx, query, p)
	if err != nil {
		return dbError(err, "Payment", "update")
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return dbError(err, "Payment", "update")
	}
	if affected == 0 {
		return versionConflict("Payment", p.ID, p.Version)
	}
	p.Version++
	return nil
}

func (r *paymentRepository) List(ctx context.Context, filter *types.PaymentFilter) ([]*payment.Payment, error) {
	if filter == nil {
		filter = types.NewNoLimitPaymentFilter()
	}
	b := r.filter(ctx, filter)
	query := "SELECT * FROM payments" + b.where() + b.page("created_at", filter)

	rows, err := r.db.NamedQueryContext(ctx, query, b.params)
	if err != nil {
		return nil, dbError(err, "Payment", "list")
	}
	items, err := scanAll[payment.Payment](rows)
	if err != nil {
		return nil, dbError(err, "Payment", "list")
	}
	return items, nil
}

func (r *paymentRepository) Count(ctx context.Context, filter *types.PaymentFilter) (int, error) {
	total, err := count(ctx, r.db, "payments", r.filter(ctx, filter))
	if err != nil {
		return 0, dbError(err, "Payment", "count")
	}
	return total, nil
}

func (r *paymentRepository) filter(ctx context.Context, f *types.PaymentFilter) *queryBuilder {
	b := newQueryBuilder(ctx)
	if f == nil {
		return b
	}
	b.in("id", f.PaymentIDs).
		eq("client_id", f.ClientID).
		eq("case_id", f.CaseID).
		eq("invoice_id", f.InvoiceID).
		eq("external_transaction_id", f.ExternalTransactionID).
		eq("idempotency_key", f.IdempotencyKey).
		in("payment_status", stringsOf(f.PaymentStatus)).
		in("payment_method", stringsOf(f.PaymentMethod)).
		timeRange("created_at", f.TimeRangeFilter)
	return b
}
