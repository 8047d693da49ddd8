package postgres

import (
	"context"

	"github.com/casebill/casebill/internal/domain/paymentplan"
	"github.com/casebill/casebill/internal/logger"
	"github.com/casebill/casebill/internal/postgres"
	"github.com/casebill/casebill/internal/types"
)

type paymentPlanRepository struct {
	db     *postgres.DB
	logger *logger.Logger
}

func NewPaymentPlanRepository(db *postgres.DB, logger *logger.Logger) paymentplan.Repository {
	return &paymentPlanRepository{db: db, logger: logger}
}

func (r *paymentPlanRepository) Create(ctx context.Context, plan *paymentplan.PaymentPlan) error {
	query := `
		INSERT INTO payment_plans (
			id, tenant_id, client_id, case_id, plan_status, total_amount, down_payment, remaining_balance,
			monthly_payment, number_of_payments, completed_payments, missed_payments, start_date, end_date,
			next_payment_date, schedule, auto_pay_enabled, late_fee_amount, grace_period_days, down_payment_id,
			metadata, version, status, created_at, updated_at, created_by, updated_by
		) VALUES (
			:id, :tenant_id, :client_id, :case_id, :plan_status, :total_amount, :down_payment, :remaining_balance,
			:monthly_payment, :number_of_payments, :completed_payments, :missed_payments, :start_date, :end_date,
			:next_payment_date, :schedule, :auto_pay_enabled, :late_fee_amount, :grace_period_days, :down_payment_id,
			:metadata, :version, :status, :created_at, :updated_at, :created_by, :updated_by
		)`

	r.logger.Debugw("creating payment plan",
		"payment_plan_id", plan.ID,
		"case_id", plan.CaseID,
		"number_of_payments", plan.NumberOfPayments,
	)

	if _, err := r.db.NamedExecContext(ctx, query, plan); err != nil {
		return dbError(err, "Payment plan", "create")
	}
	return nil
}

func (r *paymentPlanRepository) Get(ctx context.Context, id string) (*paymentplan.PaymentPlan, error) {
	return r.getOne(ctx, "id = :id", map[string]interface{}{"id": id}, id)
}

func (r *paymentPlanRepository) GetActiveByCase(ctx context.Context, caseID string) (*paymentplan.PaymentPlan, error) {
	return r.getOne(ctx, "case_id = :case_id AND plan_status = :plan_status", map[string]interface{}{
		"case_id":     caseID,
		"plan_status": types.PaymentPlanStatusActive,
	}, caseID)
}

func (r *paymentPlanRepository) getOne(ctx context.Context, clause string, params map[string]interface{}, key string) (*paymentplan.PaymentPlan, error) {
	params["tenant_id"] = types.GetTenantID(ctx)
	params["status"] = types.StatusPublished
	query := `SELECT * FROM payment_plans WHERE ` + clause + ` AND tenant_id = :tenant_id AND status = :status` + lockClause(ctx)

	rows, err := r.db.NamedQueryContext(ctx, query, params)
	if err != nil {
		return nil, dbError(err, "Payment plan", "get")
	}
	plan, err := scanOne[paymentplan.PaymentPlan](rows)
	if err != nil {
		if isNoRows(err) {
			return nil, notFound("Payment plan", key)
		}
		return nil, dbError(err, "Payment plan", "get")
	}
	if err := plan.Validate(); err != nil {
		r.logger.Errorw("stored payment plan failed validation", "payment_plan_id", plan.ID, "error", err)
		return nil, err
	}
	return plan, nil
}

func (r *paymentPlanRepository) Update(ctx context.Context, plan *paymentplan.PaymentPlan) error {
	query := `
		UPDATE payment_plans SET
			plan_status = :plan_status,
			completed_payments = :completed_payments,
			missed_payments = :missed_payments,
			next_payment_date = :next_payment_date,
			schedule = :schedule,
			auto_pay_enabled = :auto_pay_enabled,
			down_payment_id = :down_payment_id,
			metadata = :metadata,
			version = version + 1,
			updated_at = :updated_at,
			updated_by = :updated_by
		WHERE id = :id AND tenant_id = :tenant_id AND version = :version`

	r.logger.Debugw("updating payment plan",
		"payment_plan_id", plan.ID,
		"version", plan.Version,
		"plan_status", plan.PlanStatus,
	)

	result, err := r.db.NamedExecContext(ctx, query, plan)
	if err != nil {
		return dbError(err, "Payment plan", "update")
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return dbError(err, "Payment plan", "update")
	}
	if affected == 0 {
		return versionConflict("Payment plan", plan.ID, plan.Version)
	}
	plan.Version++
	return nil
}

func (r *paymentPlanRepository) List(ctx context.Context, filter *types.PaymentPlanFilter) ([]*paymentplan.PaymentPlan, error) {
	if filter == nil {
		filter = types.NewNoLimitPaymentPlanFilter()
	}
	b := r.filter(ctx, filter)
	query := "SELECT * FROM payment_plans" + b.where() + b.page("created_at", filter)

	rows, err := r.db.NamedQueryContext(ctx, query, b.params)
	if err != nil {
		return nil, dbError(err, "Payment plan", "list")
	}
	items, err := scanAll[paymentplan.PaymentPlan](rows)
	if err != nil {
		return nil, dbError(err, "Payment plan", "list")
	}
	return items, nil
}

func (r *paymentPlanRepository) Count(ctx context.Context, filter *types.PaymentPlanFilter) (int, error) {
	total, err := count(ctx, r.db, "payment_plans", r.filter(ctx, filter))
	if err != nil {
		return 0, dbError(err, "Payment plan", "count")
	}
	return total, nil
}

func (r *paymentPlanRepository) filter(ctx context.Context, f *types.PaymentPlanFilter) *queryBuilder {
	b := newQueryBuilder(ctx)
	if f == nil {
		return b
	}
	b.in("id", f.PlanIDs).
		eq("client_id", f.ClientID).
		eq("case_id", f.CaseID).
		in("plan_status", stringsOf(f.Status))
	return b
}
