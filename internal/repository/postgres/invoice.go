package postgres

import (
	"context"

	"github.com/casebill/casebill/internal/domain/invoice"
	"github.com/casebill/casebill/internal/logger"
	"github.com/casebill/casebill/internal/postgres"
	"github.com/casebill/casebill/internal/types"
)

type invoiceRepository struct {
	db     *postgres.DB
	logger *logger.Logger
}

func NewInvoiceRepository(db *postgres.DB, logger *logger.Logger) invoice.Repository {
	return &invoiceRepository{db: db, logger: logger}
}

func (r *invoiceRepository) Create(ctx context.Context, inv *invoice.Invoice) error {
	query := `
		INSERT INTO invoices (
			id, tenant_id, case_id, client_id, invoice_number, invoice_status, currency, line_items,
			subtotal, tax_rate, tax_amount, discount_amount, total_amount, paid_amount, balance_due,
			payment_terms, late_fee_percentage, accepted_payment_methods, billing_period_start, billing_period_end,
			issued_date, due_date, sent_date, viewed_date, paid_date, cancelled_date, notes, document_url,
			applied_payment_ids, metadata, version, status, created_at, updated_at, created_by, updated_by
		) VALUES (
			:id, :tenant_id, :case_id, :client_id, :invoice_number, :invoice_status, :currency, :line_items,
			:subtotal, :tax_rate, :tax_amount, :discount_amount, :total_amount, :paid_amount, :balance_due,
			:payment_terms, :late_fee_percentage, :accepted_payment_methods, :billing_period_start, :billing_period_end,
			:issued_date, :due_date, :sent_date, :viewed_date, :paid_date, :cancelled_date, :notes, :document_url,
			:applied_payment_ids, :metadata, :version, :status, :created_at, :updated_at, :created_by, :updated_by
		)`

	r.logger.Debugw("creating invoice",
		"invoice_id", inv.ID,
		"invoice_number", inv.InvoiceNumber,
		"tenant_id", inv.TenantID,
	)

	if _, err := r.db.NamedExecContext(ctx, query, inv); err != nil {
		return dbError(err, "Invoice", "create")
	}
	return nil
}

func (r *invoiceRepository) Get(ctx context.Context, id string) (*invoice.Invoice, error) {
	query := `SELECT * FROM invoices WHERE id = :id AND tenant_id = :tenant_id AND status = :status` + lockClause(ctx)

	rows, err := r.db.NamedQueryContext(ctx, query, map[string]interface{}{
		"id":        id,
		"tenant_id": types.GetTenantID(ctx),
		"status":    types.StatusPublished,
	})
	if err != nil {
		return nil, dbError(err, "Invoice", "get")
	}

	inv, err := scanOne[invoice.Invoice](rows)
	if err != nil {
		if isNoRows(err) {
			return nil, notFound("Invoice", id)
		}
		return nil, dbError(err, "Invoice", "get")
	}
	if err := inv.Validate(); err != nil {
		r.logger.Errorw("stored invoice failed validation", "invoice_id", id, "error", err)
		return nil, err
	}
	return inv, nil
}

func (r *invoiceRepository) Update(ctx context.Context, inv *invoice.Invoice) error {
	query := `
		UPDATE invoices SET
			invoice_status = :invoice_status,
			line_items = :line_items,
			subtotal = :subtotal,
			tax_rate = :tax_rate,
			tax_amount = :tax_amount,
			discount_amount = :discount_amount,
			total_amount = :total_amount,
			paid_amount = :paid_amount,
			balance_due = :balance_due,
			due_date = :due_date,
			sent_date = :sent_date,
			viewed_date = :viewed_date,
			paid_date = :paid_date,
			cancelled_date = :cancelled_date,
			notes = :notes,
			document_url = :document_url,
			applied_payment_ids = :applied_payment_ids,
			metadata = :metadata,
			version = version + 1,
			updated_at = :updated_at,
			updated_by = :updated_by
		WHERE id = :id AND tenant_id = :tenant_id AND version = :version`

	r.logger.Debugw("updating invoice",
		"invoice_id", inv.ID,
		"version", inv.Version,
		"invoice_status", inv.InvoiceStatus,
	)

	result, err := r.db.NamedExecContext(ctx, query, inv)
	if err != nil {
		return dbError(err, "Invoice", "update")
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return dbError(err, "Invoice", "update")
	}
	if affected == 0 {
		return versionConflict("Invoice", inv.ID, inv.Version)
	}
	inv.Version++
	return nil
}

func (r *invoiceRepository) List(ctx context.Context, filter *types.InvoiceFilter) ([]*invoice.Invoice, error) {
	if filter == nil {
		filter = types.NewNoLimitInvoiceFilter()
	}
	b := r.filter(ctx, filter)
	query := "SELECT * FROM invoices" + b.where() + b.page("issued_date", filter)

	rows, err := r.db.NamedQueryContext(ctx, query, b.params)
	if err != nil {
		return nil, dbError(err, "Invoice", "list")
	}
	items, err := scanAll[invoice.Invoice](rows)
	if err != nil {
		return nil, dbError(err, "Invoice", "list")
	}
	return items, nil
}

func (r *invoiceRepository) Count(ctx context.Context, filter *types.InvoiceFilter) (int, error) {
	total, err := count(ctx, r.db, "invoices", r.filter(ctx, filter))
	if err != nil {
		return 0, dbError(err, "Invoice", "count")
	}
	return total, nil
}

// NextInvoiceSequence bumps the tenant's counter for year in a single
// statement, so concurrent callers always receive distinct values.
func (r *invoiceRepository) NextInvoiceSequence(ctx context.Context, year int) (int64, error) {
	query := `
		INSERT INTO invoice_sequences (tenant_id, year, last_value)
		VALUES ($1, $2, 1)
		ON CONFLICT (tenant_id, year)
		DO UPDATE SET last_value = invoice_sequences.last_value + 1, updated_at = NOW()
		RETURNING last_value`

	var seq int64
	if err := r.db.GetQuerier(ctx).GetContext(ctx, &seq, query, types.GetTenantID(ctx), year); err != nil {
		return 0, dbError(err, "Invoice sequence", "reserve")
	}
	return seq, nil
}

func (r *invoiceRepository) filter(ctx context.Context, f *types.InvoiceFilter) *queryBuilder {
	b := newQueryBuilder(ctx)
	if f == nil {
		return b
	}
	b.in("id", f.InvoiceIDs).
		eq("client_id", f.ClientID).
		eq("case_id", f.CaseID).
		in("invoice_status", stringsOf(f.InvoiceStatus)).
		timeRange("issued_date", f.TimeRangeFilter)
	return b
}
