package v1

import (
	"net/http"

	"github.com/casebill/casebill/internal/api/dto"
	"github.com/casebill/casebill/internal/service"
	"github.com/casebill/casebill/internal/types"
	"github.com/gin-gonic/gin"
)

type PaymentHandler struct {
	service service.PaymentProcessorService
}

func NewPaymentHandler(service service.PaymentProcessorService) *PaymentHandler {
	return &PaymentHandler{service: service}
}

// @Summary Process a payment
// @Description Card payments are charged immediately. ACH, wire and check payments wait for confirmation.
// @Tags Payments
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param payment body dto.ProcessPaymentRequest true "Payment"
// @Success 201 {object} dto.PaymentResponse
// @Failure 402 {object} ierr.ErrorResponse
// @Router /payments [post]
func (h *PaymentHandler) ProcessPayment(c *gin.Context) {
	var req dto.ProcessPaymentRequest
	if !bindJSON(c, &req) {
		return
	}
	if req.IdempotencyKey == "" {
		req.IdempotencyKey = c.GetHeader("Idempotency-Key")
	}

	resp, err := h.service.ProcessPayment(c.Request.Context(), req)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, resp)
}

// @Summary Get a payment
// @Tags Payments
// @Produce json
// @Security ApiKeyAuth
// @Param id path string true "Payment ID"
// @Success 200 {object} dto.PaymentResponse
// @Router /payments/{id} [get]
func (h *PaymentHandler) GetPayment(c *gin.Context) {
	resp, err := h.service.GetPayment(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// @Summary List payments
// @Tags Payments
// @Produce json
// @Security ApiKeyAuth
// @Param filter query types.PaymentFilter false "Filter"
// @Success 200 {object} dto.ListPaymentsResponse
// @Router /payments [get]
func (h *PaymentHandler) ListPayments(c *gin.Context) {
	var filter types.PaymentFilter
	if !bindQuery(c, &filter) {
		return
	}
	filter.QueryFilter = pageOrDefault(filter.QueryFilter)

	resp, err := h.service.ListPayments(c.Request.Context(), &filter)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// @Summary Confirm a pending payment
// @Description Settle or fail an ACH, wire or check payment after reconciliation
// @Tags Payments
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param id path string true "Payment ID"
// @Param request body dto.ConfirmPaymentRequest true "Outcome"
// @Success 200 {object} dto.PaymentResponse
// @Router /payments/{id}/confirm [post]
func (h *PaymentHandler) ConfirmPayment(c *gin.Context) {
	var req dto.ConfirmPaymentRequest
	if !bindJSON(c, &req) {
		return
	}

	resp, err := h.service.ConfirmPayment(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// @Summary Refund a payment
// @Tags Payments
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param id path string true "Payment ID"
// @Param request body dto.RefundPaymentRequest true "Refund"
// @Success 200 {object} dto.PaymentResponse
// @Router /payments/{id}/refund [post]
func (h *PaymentHandler) RefundPayment(c *gin.Context) {
	var req dto.RefundPaymentRequest
	if !bindJSON(c, &req) {
		return
	}

	resp, err := h.service.RefundPayment(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}
