package types

import (
	ierr "github.com/casebill/casebill/internal/errors"
	"github.com/samber/lo"
)

// PaymentPlanStatus is the lifecycle state of a payment plan
type PaymentPlanStatus string

const (
	PaymentPlanStatusActive    PaymentPlanStatus = "active"
	PaymentPlanStatusCompleted PaymentPlanStatus = "completed"
	PaymentPlanStatusDefaulted PaymentPlanStatus = "defaulted"
	PaymentPlanStatusCancelled PaymentPlanStatus = "cancelled"
)

func (s PaymentPlanStatus) Validate() error {
	allowed := []PaymentPlanStatus{
		PaymentPlanStatusActive,
		PaymentPlanStatusCompleted,
		PaymentPlanStatusDefaulted,
		PaymentPlanStatusCancelled,
	}
	if !lo.Contains(allowed, s) {
		return ierr.NewError("invalid payment plan status").
			WithHint("Please provide a valid payment plan status").
			WithReportableDetails(map[string]any{
				"allowed": allowed,
			}).
			Mark(ierr.ErrValidation)
	}
	return nil
}

// InstallmentStatus is the state of one schedule entry
type InstallmentStatus string

const (
	InstallmentStatusPending InstallmentStatus = "pending"
	InstallmentStatusPaid    InstallmentStatus = "paid"
	InstallmentStatusLate    InstallmentStatus = "late"
	InstallmentStatusWaived  InstallmentStatus = "waived"
)

func (s InstallmentStatus) Validate() error {
	allowed := []InstallmentStatus{
		InstallmentStatusPending,
		InstallmentStatusPaid,
		InstallmentStatusLate,
		InstallmentStatusWaived,
	}
	if !lo.Contains(allowed, s) {
		return ierr.NewError("invalid installment status").
			WithHint("Please provide a valid installment status").
			Mark(ierr.ErrValidation)
	}
	return nil
}

// IsPayable reports whether a payment can still settle the installment
func (s InstallmentStatus) IsPayable() bool {
	return s == InstallmentStatusPending || s == InstallmentStatusLate
}

// IsSettled reports whether the installment no longer counts as outstanding
func (s InstallmentStatus) IsSettled() bool {
	return s == InstallmentStatusPaid || s == InstallmentStatusWaived
}

const (
	DefaultPlanLateFeeAmount    = 25
	DefaultPlanGracePeriodDays  = 5
	DefaultPlanDefaultThreshold = 3
)

// PaymentPlanFilter represents the filter for listing payment plans
type PaymentPlanFilter struct {
	*QueryFilter

	PlanIDs  []string            `json:"plan_ids,omitempty" form:"plan_ids"`
	ClientID string              `json:"client_id,omitempty" form:"client_id"`
	CaseID   string              `json:"case_id,omitempty" form:"case_id"`
	Status   []PaymentPlanStatus `json:"plan_status,omitempty" form:"plan_status"`
}

func NewPaymentPlanFilter() *PaymentPlanFilter {
	return &PaymentPlanFilter{
		QueryFilter: NewDefaultQueryFilter(),
	}
}

func NewNoLimitPaymentPlanFilter() *PaymentPlanFilter {
	return &PaymentPlanFilter{
		QueryFilter: NewNoLimitQueryFilter(),
	}
}

func (f *PaymentPlanFilter) Validate() error {
	if f == nil {
		return nil
	}
	if err := f.QueryFilter.Validate(); err != nil {
		return err
	}
	for _, s := range f.Status {
		if err := s.Validate(); err != nil {
			return err
		}
	}
	return nil
}
