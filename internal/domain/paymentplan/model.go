package paymentplan

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	ierr "github.com/casebill/casebill/internal/errors"
	"github.com/casebill/casebill/internal/types"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
)

// PaymentPlan amortizes a balance into monthly installments
type PaymentPlan struct {
	ID                string                  `db:"id" json:"id"`
	ClientID          string                  `db:"client_id" json:"client_id"`
	CaseID            string                  `db:"case_id" json:"case_id"`
	PlanStatus        types.PaymentPlanStatus `db:"plan_status" json:"plan_status"`
	TotalAmount       decimal.Decimal         `db:"total_amount" json:"total_amount"`
	DownPayment       decimal.Decimal         `db:"down_payment" json:"down_payment"`
	RemainingBalance  decimal.Decimal         `db:"remaining_balance" json:"remaining_balance"`
	MonthlyPayment    decimal.Decimal         `db:"monthly_payment" json:"monthly_payment"`
	NumberOfPayments  int                     `db:"number_of_payments" json:"number_of_payments"`
	CompletedPayments int                     `db:"completed_payments" json:"completed_payments"`
	MissedPayments    int                     `db:"missed_payments" json:"missed_payments"`
	StartDate         time.Time               `db:"start_date" json:"start_date"`
	EndDate           time.Time               `db:"end_date" json:"end_date"`
	NextPaymentDate   *time.Time              `db:"next_payment_date" json:"next_payment_date,omitempty"`
	Schedule          Schedule                `db:"schedule" json:"schedule"`
	AutoPayEnabled    bool                    `db:"auto_pay_enabled" json:"auto_pay_enabled"`
	LateFeeAmount     decimal.Decimal         `db:"late_fee_amount" json:"late_fee_amount"`
	GracePeriodDays   int                     `db:"grace_period_days" json:"grace_period_days"`
	DownPaymentID     *string                 `db:"down_payment_id" json:"down_payment_id,omitempty"`
	Metadata          types.Metadata          `db:"metadata" json:"metadata,omitempty"`
	Version           int                     `db:"version" json:"version"`
	types.BaseModel
}

// Installment is one scheduled payment. Due dates never change after creation.
type Installment struct {
	InstallmentNumber int                     `json:"installment_number"`
	DueDate           time.Time               `json:"due_date"`
	Amount            decimal.Decimal         `json:"amount"`
	Status            types.InstallmentStatus `json:"status"`
	PaidDate          *time.Time              `json:"paid_date,omitempty"`
	PaymentID         *string                 `json:"payment_id,omitempty"`
}

// Schedule is stored as one JSONB column and validated on every read
type Schedule []Installment

func (s *Schedule) Scan(value interface{}) error {
	if value == nil {
		*s = Schedule{}
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return fmt.Errorf("failed to unmarshal payment schedule: %v", value)
	}
	var schedule Schedule
	if err := json.Unmarshal(bytes, &schedule); err != nil {
		return err
	}
	*s = schedule
	return nil
}

func (s Schedule) Value() (driver.Value, error) {
	if s == nil {
		return json.Marshal([]Installment{})
	}
	return json.Marshal([]Installment(s))
}

// Sum returns the total of all installment amounts
func (s Schedule) Sum() decimal.Decimal {
	return lo.Reduce(s, func(sum decimal.Decimal, inst Installment, _ int) decimal.Decimal {
		return sum.Add(inst.Amount)
	}, decimal.Zero)
}

// PayableTotal returns the amount still expected from the client
func (s Schedule) PayableTotal() decimal.Decimal {
	return lo.Reduce(s, func(sum decimal.Decimal, inst Installment, _ int) decimal.Decimal {
		if inst.Status.IsPayable() {
			return sum.Add(inst.Amount)
		}
		return sum
	}, decimal.Zero)
}

// NextPayable returns the index of the earliest payable installment by due date, or -1
func (s Schedule) NextPayable() int {
	idx := -1
	for i, inst := range s {
		if !inst.Status.IsPayable() {
			continue
		}
		if idx == -1 || inst.DueDate.Before(s[idx].DueDate) {
			idx = i
		}
	}
	return idx
}

// Allocate returns the payable installments, earliest due first, that amount
// settles in full. The amount must end exactly on an installment boundary so
// no part of a payment is dropped and no installment is settled short.
func (s Schedule) Allocate(amount decimal.Decimal) ([]int, error) {
	payable := lo.Filter(lo.Range(len(s)), func(i int, _ int) bool {
		return s[i].Status.IsPayable()
	})
	sort.SliceStable(payable, func(a, b int) bool {
		return s[payable[a]].DueDate.Before(s[payable[b]].DueDate)
	})
	if len(payable) == 0 {
		return nil, ierr.NewError("payment plan has no outstanding installment").
			WithHint("Every installment of this plan is already settled").
			Mark(ierr.ErrInvalidOperation)
	}

	covered := decimal.Zero
	for n, idx := range payable {
		covered = covered.Add(s[idx].Amount)
		if covered.Equal(amount) {
			return payable[:n+1], nil
		}
		if covered.GreaterThan(amount) {
			break
		}
	}

	next := s[payable[0]].Amount
	if amount.LessThan(next) {
		return nil, ierr.NewError("payment is less than the next installment").
			WithHintf("The next installment is %s", next.StringFixed(2)).
			WithReportableDetails(map[string]any{
				"amount":      amount.String(),
				"installment": next.String(),
			}).
			Mark(ierr.ErrValidation)
	}
	return nil, ierr.NewError("payment does not match whole installments").
		WithHintf("Pay %s for the next installment, or the exact total of the next few installments", next.StringFixed(2)).
		WithReportableDetails(map[string]any{
			"amount":      amount.String(),
			"installment": next.String(),
			"payable":     s.PayableTotal().String(),
		}).
		Mark(ierr.ErrValidation)
}

// BuildSchedule splits remaining into n monthly installments due one month
// apart starting one month after start. Every installment is the amount
// rounded down to cents; the final one absorbs the remainder so the schedule
// sums exactly to remaining.
func BuildSchedule(remaining decimal.Decimal, n int, start time.Time) (Schedule, decimal.Decimal) {
	monthly := remaining.Div(decimal.NewFromInt(int64(n))).RoundDown(2)
	schedule := make(Schedule, 0, n)
	allocated := decimal.Zero
	for i := 1; i <= n; i++ {
		amount := monthly
		if i == n {
			amount = remaining.Sub(allocated)
		}
		allocated = allocated.Add(amount)
		schedule = append(schedule, Installment{
			InstallmentNumber: i,
			DueDate:           types.InstallmentDueDate(start, i),
			Amount:            amount,
			Status:            types.InstallmentStatusPending,
		})
	}
	return schedule, monthly
}

// HasPayment reports whether paymentID already settled an installment
func (p *PaymentPlan) HasPayment(paymentID string) bool {
	return lo.ContainsBy(p.Schedule, func(inst Installment) bool {
		return inst.PaymentID != nil && *inst.PaymentID == paymentID
	})
}

// ApplyPayment settles installments earliest first with amount, which must
// cover whole installments. Re-applying a payment that already settled an
// installment is a no-op that returns false. On error the plan is unchanged.
func (p *PaymentPlan) ApplyPayment(paymentID string, amount decimal.Decimal, at time.Time) (bool, error) {
	if p.HasPayment(paymentID) {
		return false, nil
	}
	if p.PlanStatus != types.PaymentPlanStatusActive {
		return false, ierr.NewError("payment plan is not active").
			WithHintf("Payment plan is %s", p.PlanStatus).
			WithReportableDetails(map[string]any{
				"payment_plan_id": p.ID,
				"payment_id":      paymentID,
			}).
			Mark(ierr.ErrInvalidOperation)
	}

	settled, err := p.Schedule.Allocate(amount)
	if err != nil {
		return false, ierr.WithError(err).
			WithReportableDetails(map[string]any{
				"payment_plan_id": p.ID,
				"payment_id":      paymentID,
			}).
			Error()
	}

	for _, idx := range settled {
		paidAt := at
		pid := paymentID
		p.Schedule[idx].Status = types.InstallmentStatusPaid
		p.Schedule[idx].PaidDate = &paidAt
		p.Schedule[idx].PaymentID = &pid
	}
	p.refresh()
	return true, nil
}

// Waive forgives the installment with the given number
func (p *PaymentPlan) Waive(installmentNumber int) error {
	for i := range p.Schedule {
		if p.Schedule[i].InstallmentNumber != installmentNumber {
			continue
		}
		if !p.Schedule[i].Status.IsPayable() {
			return ierr.NewError("installment is already settled").
				WithHintf("Installment %d is %s", installmentNumber, p.Schedule[i].Status).
				Mark(ierr.ErrInvalidOperation)
		}
		p.Schedule[i].Status = types.InstallmentStatusWaived
		p.refresh()
		return nil
	}
	return ierr.NewError("installment not found").
		WithHintf("Installment %d does not exist on this plan", installmentNumber).
		Mark(ierr.ErrNotFound)
}

// MarkLate flags pending installments past their due date plus the grace
// period and defaults the plan once missed payments reach threshold.
// It returns the number of installments newly marked late.
func (p *PaymentPlan) MarkLate(asOf time.Time, threshold int) int {
	if p.PlanStatus != types.PaymentPlanStatusActive {
		return 0
	}
	marked := 0
	for i := range p.Schedule {
		inst := &p.Schedule[i]
		if inst.Status != types.InstallmentStatusPending {
			continue
		}
		if asOf.After(inst.DueDate.AddDate(0, 0, p.GracePeriodDays)) {
			inst.Status = types.InstallmentStatusLate
			p.MissedPayments++
			marked++
		}
	}
	if threshold > 0 && p.MissedPayments >= threshold {
		p.PlanStatus = types.PaymentPlanStatusDefaulted
	}
	return marked
}

// refresh recomputes the counters derived from the schedule
func (p *PaymentPlan) refresh() {
	p.CompletedPayments = lo.CountBy(p.Schedule, func(inst Installment) bool {
		return inst.Status == types.InstallmentStatusPaid
	})

	p.NextPaymentDate = nil
	if idx := p.Schedule.NextPayable(); idx != -1 {
		next := p.Schedule[idx].DueDate
		p.NextPaymentDate = &next
	}

	settled := lo.CountBy(p.Schedule, func(inst Installment) bool {
		return inst.Status.IsSettled()
	})
	if p.PlanStatus == types.PaymentPlanStatusActive && settled == p.NumberOfPayments {
		p.PlanStatus = types.PaymentPlanStatusCompleted
	}
}

// Validate checks the schedule invariants. It runs on create and on every read.
func (p *PaymentPlan) Validate() error {
	if err := p.PlanStatus.Validate(); err != nil {
		return err
	}
	if p.NumberOfPayments <= 0 {
		return ierr.NewError("number of payments must be positive").
			WithHint("A payment plan needs at least one installment").
			Mark(ierr.ErrValidation)
	}
	if p.DownPayment.IsNegative() || p.DownPayment.GreaterThan(p.TotalAmount) {
		return ierr.NewError("down payment out of range").
			WithHint("Down payment must be between zero and the total amount").
			Mark(ierr.ErrValidation)
	}
	details := map[string]any{
		"payment_plan_id":   p.ID,
		"remaining_balance": p.RemainingBalance.String(),
		"schedule_sum":      p.Schedule.Sum().String(),
	}
	if !p.TotalAmount.Sub(p.DownPayment).Equal(p.RemainingBalance) {
		return ierr.NewError("remaining balance must equal total minus down payment").
			WithHint("Payment plan balances are inconsistent").
			WithReportableDetails(details).
			Mark(ierr.ErrValidation)
	}
	if len(p.Schedule) != p.NumberOfPayments {
		return ierr.NewError("schedule length does not match number of payments").
			WithHint("Payment plan schedule is inconsistent").
			WithReportableDetails(details).
			Mark(ierr.ErrValidation)
	}
	if !p.Schedule.Sum().Equal(p.RemainingBalance) {
		return ierr.NewError("schedule does not sum to the remaining balance").
			WithHint("Payment plan schedule is inconsistent").
			WithReportableDetails(details).
			Mark(ierr.ErrValidation)
	}
	if !sort.SliceIsSorted(p.Schedule, func(i, j int) bool {
		return p.Schedule[i].DueDate.Before(p.Schedule[j].DueDate)
	}) {
		return ierr.NewError("schedule is not ordered by due date").
			WithHint("Payment plan schedule is inconsistent").
			WithReportableDetails(details).
			Mark(ierr.ErrValidation)
	}
	for _, inst := range p.Schedule {
		if err := inst.Status.Validate(); err != nil {
			return err
		}
		if inst.Amount.IsNegative() {
			return ierr.NewError("installment amount cannot be negative").
				WithHint("Payment plan schedule is inconsistent").
				WithReportableDetails(details).
				Mark(ierr.ErrValidation)
		}
	}
	return nil
}
