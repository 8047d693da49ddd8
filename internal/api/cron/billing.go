package cron

import (
	"context"
	"net/http"
	"time"

	"github.com/casebill/casebill/internal/api/dto"
	ierr "github.com/casebill/casebill/internal/errors"
	"github.com/casebill/casebill/internal/logger"
	"github.com/casebill/casebill/internal/service"
	"github.com/casebill/casebill/internal/types"
	"github.com/gin-gonic/gin"
	"github.com/samber/lo"
)

// BillingHandler runs the periodic billing sweeps. A scheduler outside the
// service calls these endpoints with the cron key.
type BillingHandler struct {
	invoiceService service.InvoiceService
	planService    service.PaymentPlanService
	trustService   service.TrustAccountService
	logger         *logger.Logger
}

func NewBillingHandler(
	invoiceService service.InvoiceService,
	planService service.PaymentPlanService,
	trustService service.TrustAccountService,
	logger *logger.Logger,
) *BillingHandler {
	return &BillingHandler{
		invoiceService: invoiceService,
		planService:    planService,
		trustService:   trustService,
		logger:         logger,
	}
}

// MarkOverdueInvoices moves invoices past their due date to overdue
func (h *BillingHandler) MarkOverdueInvoices(c *gin.Context) {
	h.sweep(c, "mark overdue invoices", h.invoiceService.MarkOverdueInvoices)
}

// MarkLateInstallments flags plan installments past their grace period and
// defaults plans that crossed the late threshold
func (h *BillingHandler) MarkLateInstallments(c *gin.Context) {
	h.sweep(c, "mark late installments", h.planService.MarkLateInstallments)
}

// VerifyTrustAccounts replays every active trust ledger
func (h *BillingHandler) VerifyTrustAccounts(c *gin.Context) {
	req, ok := h.bindSweep(c)
	if !ok {
		return
	}
	h.logger.Infow("starting trust verification cron job", "tenants", len(req.TenantIDs))

	resp := &dto.TrustVerificationSweepResponse{Inconsistent: make([]*dto.TrustVerificationResponse, 0)}
	for _, tenantID := range req.TenantIDs {
		res, err := h.trustService.VerifyAllTrustAccounts(tenantContext(c.Request.Context(), tenantID))
		if err != nil {
			h.logger.Errorw("trust verification failed", "tenant_id", tenantID, "error", err)
			c.Error(err)
			return
		}
		resp.Checked += res.Checked
		resp.Inconsistent = append(resp.Inconsistent, res.Inconsistent...)
	}

	h.logger.Infow("completed trust verification cron job",
		"checked", resp.Checked,
		"inconsistent", len(resp.Inconsistent),
	)
	c.JSON(http.StatusOK, resp)
}

func (h *BillingHandler) sweep(c *gin.Context, name string, run func(ctx context.Context, asOf time.Time) (int, error)) {
	req, ok := h.bindSweep(c)
	if !ok {
		return
	}
	asOf := lo.FromPtrOr(req.AsOf, time.Now().UTC())
	h.logger.Infow("starting cron job", "job", name, "as_of", asOf.Format(time.RFC3339))

	resp := &dto.SweepResponse{}
	for _, tenantID := range req.TenantIDs {
		updated, err := run(tenantContext(c.Request.Context(), tenantID), asOf)
		if err != nil {
			h.logger.Errorw("cron job failed", "job", name, "tenant_id", tenantID, "error", err)
			c.Error(err)
			return
		}
		resp.Updated += updated
	}

	h.logger.Infow("completed cron job", "job", name, "updated", resp.Updated)
	c.JSON(http.StatusOK, resp)
}

// bindSweep reads the optional body, defaulting to the default tenant
func (h *BillingHandler) bindSweep(c *gin.Context) (*dto.SweepRequest, bool) {
	var req dto.SweepRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.Error(ierr.WithError(err).
				WithHint("Invalid request parameters").
				Mark(ierr.ErrValidation))
			return nil, false
		}
	}
	req.TenantIDs = lo.Uniq(lo.Compact(req.TenantIDs))
	if len(req.TenantIDs) == 0 {
		req.TenantIDs = []string{types.DefaultTenantID}
	}
	return &req, true
}

func tenantContext(ctx context.Context, tenantID string) context.Context {
	ctx = types.SetTenantID(ctx, tenantID)
	return types.SetUserID(ctx, types.DefaultUserID)
}
