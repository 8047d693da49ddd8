package v1

import (
	"net/http"

	"github.com/casebill/casebill/internal/api/dto"
	"github.com/casebill/casebill/internal/service"
	"github.com/casebill/casebill/internal/types"
	"github.com/gin-gonic/gin"
)

type PaymentPlanHandler struct {
	service service.PaymentPlanService
}

func NewPaymentPlanHandler(service service.PaymentPlanService) *PaymentPlanHandler {
	return &PaymentPlanHandler{service: service}
}

// @Summary Create a payment plan
// @Tags Payment Plans
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param plan body dto.CreatePaymentPlanRequest true "Payment plan"
// @Success 201 {object} dto.PaymentPlanResponse
// @Router /payment-plans [post]
func (h *PaymentPlanHandler) CreatePaymentPlan(c *gin.Context) {
	var req dto.CreatePaymentPlanRequest
	if !bindJSON(c, &req) {
		return
	}

	resp, err := h.service.CreatePaymentPlan(c.Request.Context(), req)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, resp)
}

func (h *PaymentPlanHandler) GetPaymentPlan(c *gin.Context) {
	resp, err := h.service.GetPaymentPlan(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (h *PaymentPlanHandler) ListPaymentPlans(c *gin.Context) {
	var filter types.PaymentPlanFilter
	if !bindQuery(c, &filter) {
		return
	}
	filter.QueryFilter = pageOrDefault(filter.QueryFilter)

	resp, err := h.service.ListPaymentPlans(c.Request.Context(), &filter)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (h *PaymentPlanHandler) CancelPaymentPlan(c *gin.Context) {
	resp, err := h.service.CancelPaymentPlan(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// @Summary Waive an installment
// @Tags Payment Plans
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param id path string true "Payment plan ID"
// @Param request body dto.WaiveInstallmentRequest true "Installment"
// @Success 200 {object} dto.PaymentPlanResponse
// @Router /payment-plans/{id}/waive [post]
func (h *PaymentPlanHandler) WaiveInstallment(c *gin.Context) {
	var req dto.WaiveInstallmentRequest
	if !bindJSON(c, &req) {
		return
	}

	resp, err := h.service.WaiveInstallment(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}
