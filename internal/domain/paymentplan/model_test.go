package paymentplan

import (
	"testing"
	"time"

	ierr "github.com/casebill/casebill/internal/errors"
	"github.com/casebill/casebill/internal/types"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPlan(total, down decimal.Decimal, n int, start time.Time) *PaymentPlan {
	remaining := total.Sub(down)
	schedule, monthly := BuildSchedule(remaining, n, start)
	plan := &PaymentPlan{
		ID:               "plan_test",
		PlanStatus:       types.PaymentPlanStatusActive,
		TotalAmount:      total,
		DownPayment:      down,
		RemainingBalance: remaining,
		MonthlyPayment:   monthly,
		NumberOfPayments: n,
		StartDate:        start,
		EndDate:          schedule[n-1].DueDate,
		Schedule:         schedule,
		GracePeriodDays:  types.DefaultPlanGracePeriodDays,
	}
	plan.refresh()
	return plan
}

func TestBuildSchedule(t *testing.T) {
	start := time.Date(2025, 1, 31, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name        string
		remaining   decimal.Decimal
		n           int
		monthly     decimal.Decimal
		lastAmount  decimal.Decimal
		lastDueDate time.Time
	}{
		{
			name:        "even_split",
			remaining:   decimal.NewFromInt(1200),
			n:           12,
			monthly:     decimal.NewFromInt(100),
			lastAmount:  decimal.NewFromInt(100),
			lastDueDate: time.Date(2026, 1, 31, 0, 0, 0, 0, time.UTC),
		},
		{
			name:        "remainder_absorbed_by_last",
			remaining:   decimal.NewFromInt(8000),
			n:           12,
			monthly:     decimal.RequireFromString("666.66"),
			lastAmount:  decimal.RequireFromString("666.74"),
			lastDueDate: time.Date(2026, 1, 31, 0, 0, 0, 0, time.UTC),
		},
		{
			name:        "thirds",
			remaining:   decimal.NewFromInt(1000),
			n:           3,
			monthly:     decimal.RequireFromString("333.33"),
			lastAmount:  decimal.RequireFromString("333.34"),
			lastDueDate: time.Date(2025, 4, 30, 0, 0, 0, 0, time.UTC),
		},
		{
			name:        "single_installment",
			remaining:   decimal.RequireFromString("99.99"),
			n:           1,
			monthly:     decimal.RequireFromString("99.99"),
			lastAmount:  decimal.RequireFromString("99.99"),
			lastDueDate: time.Date(2025, 2, 28, 0, 0, 0, 0, time.UTC),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			schedule, monthly := BuildSchedule(tt.remaining, tt.n, start)
			require.Len(t, schedule, tt.n)
			assert.True(t, tt.monthly.Equal(monthly), "monthly: want %s got %s", tt.monthly, monthly)
			assert.True(t, tt.remaining.Equal(schedule.Sum()), "sum: want %s got %s", tt.remaining, schedule.Sum())

			last := schedule[tt.n-1]
			assert.True(t, tt.lastAmount.Equal(last.Amount), "last: want %s got %s", tt.lastAmount, last.Amount)
			assert.Equal(t, tt.lastDueDate, last.DueDate)
			for i, inst := range schedule {
				assert.Equal(t, i+1, inst.InstallmentNumber)
				assert.Equal(t, types.InstallmentStatusPending, inst.Status)
			}
		})
	}
}

func TestBuildSchedule_ClampsMonthEnd(t *testing.T) {
	start := time.Date(2025, 1, 31, 0, 0, 0, 0, time.UTC)
	schedule, _ := BuildSchedule(decimal.NewFromInt(300), 3, start)

	assert.Equal(t, time.Date(2025, 2, 28, 0, 0, 0, 0, time.UTC), schedule[0].DueDate)
	assert.Equal(t, time.Date(2025, 3, 31, 0, 0, 0, 0, time.UTC), schedule[1].DueDate)
	assert.Equal(t, time.Date(2025, 4, 30, 0, 0, 0, 0, time.UTC), schedule[2].DueDate)
}

func TestPaymentPlan_ApplyPayment(t *testing.T) {
	start := time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC)
	now := time.Date(2025, 2, 10, 0, 0, 0, 0, time.UTC)

	t.Run("fills_earliest_payable_first", func(t *testing.T) {
		plan := newPlan(decimal.NewFromInt(3000), decimal.Zero, 3, start)

		applied, err := plan.ApplyPayment("pay_1", decimal.NewFromInt(1000), now)
		require.NoError(t, err)
		assert.True(t, applied)
		assert.Equal(t, types.InstallmentStatusPaid, plan.Schedule[0].Status)
		assert.Equal(t, "pay_1", *plan.Schedule[0].PaymentID)
		assert.Equal(t, 1, plan.CompletedPayments)
		require.NotNil(t, plan.NextPaymentDate)
		assert.Equal(t, plan.Schedule[1].DueDate, *plan.NextPaymentDate)
		require.NoError(t, plan.Validate())
	})

	t.Run("idempotent_per_payment", func(t *testing.T) {
		plan := newPlan(decimal.NewFromInt(3000), decimal.Zero, 3, start)

		_, err := plan.ApplyPayment("pay_1", decimal.NewFromInt(1000), now)
		require.NoError(t, err)
		applied, err := plan.ApplyPayment("pay_1", decimal.NewFromInt(1000), now)
		require.NoError(t, err)
		assert.False(t, applied)
		assert.Equal(t, 1, plan.CompletedPayments)
	})

	t.Run("late_entry_is_payable_before_later_pending", func(t *testing.T) {
		plan := newPlan(decimal.NewFromInt(3000), decimal.Zero, 3, start)
		plan.MarkLate(time.Date(2025, 2, 25, 0, 0, 0, 0, time.UTC), types.DefaultPlanDefaultThreshold)
		require.Equal(t, types.InstallmentStatusLate, plan.Schedule[0].Status)

		_, err := plan.ApplyPayment("pay_1", decimal.NewFromInt(1000), now)
		require.NoError(t, err)
		assert.Equal(t, types.InstallmentStatusPaid, plan.Schedule[0].Status)
		assert.Equal(t, types.InstallmentStatusPending, plan.Schedule[1].Status)
	})

	t.Run("completes_when_all_settled", func(t *testing.T) {
		plan := newPlan(decimal.NewFromInt(2000), decimal.Zero, 2, start)

		_, err := plan.ApplyPayment("pay_1", decimal.NewFromInt(1000), now)
		require.NoError(t, err)
		_, err = plan.ApplyPayment("pay_2", decimal.NewFromInt(1000), now)
		require.NoError(t, err)

		assert.Equal(t, types.PaymentPlanStatusCompleted, plan.PlanStatus)
		assert.Nil(t, plan.NextPaymentDate)
		assert.Equal(t, 2, plan.CompletedPayments)
	})

	t.Run("settles_several_installments_in_due_order", func(t *testing.T) {
		plan := newPlan(decimal.NewFromInt(3000), decimal.Zero, 3, start)

		applied, err := plan.ApplyPayment("pay_1", decimal.NewFromInt(2000), now)
		require.NoError(t, err)
		assert.True(t, applied)
		assert.Equal(t, types.InstallmentStatusPaid, plan.Schedule[0].Status)
		assert.Equal(t, types.InstallmentStatusPaid, plan.Schedule[1].Status)
		assert.Equal(t, types.InstallmentStatusPending, plan.Schedule[2].Status)
		assert.Equal(t, 2, plan.CompletedPayments)
		assert.True(t, plan.HasPayment("pay_1"))
	})

	t.Run("partial_or_excess_amount_leaves_plan_unchanged", func(t *testing.T) {
		for _, amount := range []string{"1", "999.99", "1500", "3001"} {
			plan := newPlan(decimal.NewFromInt(3000), decimal.Zero, 3, start)

			applied, err := plan.ApplyPayment("pay_1", decimal.RequireFromString(amount), now)
			require.Error(t, err, amount)
			assert.False(t, applied)
			assert.True(t, ierr.IsValidation(err), amount)
			assert.Zero(t, plan.CompletedPayments)
			assert.False(t, plan.HasPayment("pay_1"))
		}
	})

	t.Run("no_payable_entry_is_rejected", func(t *testing.T) {
		plan := newPlan(decimal.NewFromInt(1000), decimal.Zero, 1, start)
		require.NoError(t, plan.Waive(1))
		plan.PlanStatus = types.PaymentPlanStatusActive

		_, err := plan.ApplyPayment("pay_extra", decimal.NewFromInt(1000), now)
		require.Error(t, err)
		assert.True(t, ierr.IsInvalidOperation(err))
	})
}

func TestPaymentPlan_MarkLate(t *testing.T) {
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	plan := newPlan(decimal.NewFromInt(4000), decimal.Zero, 4, start)

	// first due Feb 1, grace ends Feb 6
	marked := plan.MarkLate(time.Date(2025, 2, 6, 0, 0, 0, 0, time.UTC), 3)
	assert.Equal(t, 0, marked)

	marked = plan.MarkLate(time.Date(2025, 2, 7, 0, 0, 0, 0, time.UTC), 3)
	assert.Equal(t, 1, marked)
	assert.Equal(t, 1, plan.MissedPayments)
	assert.Equal(t, types.PaymentPlanStatusActive, plan.PlanStatus)

	// already late entries are not counted twice
	marked = plan.MarkLate(time.Date(2025, 4, 10, 0, 0, 0, 0, time.UTC), 3)
	assert.Equal(t, 2, marked)
	assert.Equal(t, 3, plan.MissedPayments)
	assert.Equal(t, types.PaymentPlanStatusDefaulted, plan.PlanStatus)
}

func TestPaymentPlan_Validate(t *testing.T) {
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	plan := newPlan(decimal.NewFromInt(10000), decimal.NewFromInt(2000), 12, start)
	require.NoError(t, plan.Validate())

	plan.Schedule[3].Amount = plan.Schedule[3].Amount.Add(decimal.RequireFromString("0.01"))
	err := plan.Validate()
	require.Error(t, err)
	assert.True(t, ierr.IsValidation(err))
}

func TestSchedule_ScanValue(t *testing.T) {
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	schedule, _ := BuildSchedule(decimal.NewFromInt(500), 2, start)

	raw, err := schedule.Value()
	require.NoError(t, err)

	var scanned Schedule
	require.NoError(t, scanned.Scan(raw))
	require.Len(t, scanned, 2)
	assert.True(t, schedule.Sum().Equal(scanned.Sum()))
	assert.True(t, schedule[1].DueDate.Equal(scanned[1].DueDate))
}
