package v1

import (
	"net/http"

	"github.com/casebill/casebill/internal/api/dto"
	"github.com/casebill/casebill/internal/service"
	"github.com/casebill/casebill/internal/types"
	"github.com/gin-gonic/gin"
)

type ClientHandler struct {
	service service.ClientService
	summary service.BillingSummaryService
}

func NewClientHandler(service service.ClientService, summary service.BillingSummaryService) *ClientHandler {
	return &ClientHandler{
		service: service,
		summary: summary,
	}
}

// @Summary Create a client
// @Tags Clients
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param client body dto.CreateClientRequest true "Client"
// @Success 201 {object} dto.ClientResponse
// @Failure 400 {object} ierr.ErrorResponse
// @Router /clients [post]
func (h *ClientHandler) CreateClient(c *gin.Context) {
	var req dto.CreateClientRequest
	if !bindJSON(c, &req) {
		return
	}

	resp, err := h.service.CreateClient(c.Request.Context(), req)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, resp)
}

// @Summary Get a client
// @Tags Clients
// @Produce json
// @Security ApiKeyAuth
// @Param id path string true "Client ID"
// @Success 200 {object} dto.ClientResponse
// @Failure 404 {object} ierr.ErrorResponse
// @Router /clients/{id} [get]
func (h *ClientHandler) GetClient(c *gin.Context) {
	resp, err := h.service.GetClient(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// @Summary List clients
// @Tags Clients
// @Produce json
// @Security ApiKeyAuth
// @Param filter query types.ClientFilter false "Filter"
// @Success 200 {object} dto.ListClientsResponse
// @Router /clients [get]
func (h *ClientHandler) ListClients(c *gin.Context) {
	var filter types.ClientFilter
	if !bindQuery(c, &filter) {
		return
	}
	filter.QueryFilter = pageOrDefault(filter.QueryFilter)

	resp, err := h.service.ListClients(c.Request.Context(), &filter)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// @Summary Update a client
// @Tags Clients
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param id path string true "Client ID"
// @Param client body dto.UpdateClientRequest true "Client"
// @Success 200 {object} dto.ClientResponse
// @Router /clients/{id} [put]
func (h *ClientHandler) UpdateClient(c *gin.Context) {
	var req dto.UpdateClientRequest
	if !bindJSON(c, &req) {
		return
	}

	resp, err := h.service.UpdateClient(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// @Summary Get a client's billing summary
// @Description Totals billed, paid and outstanding with trust balances and upcoming installments
// @Tags Clients
// @Produce json
// @Security ApiKeyAuth
// @Param id path string true "Client ID"
// @Success 200 {object} dto.ClientBillingSummaryResponse
// @Router /clients/{id}/billing-summary [get]
func (h *ClientHandler) GetBillingSummary(c *gin.Context) {
	resp, err := h.summary.GetClientBillingSummary(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// @Summary Generate a financial report
// @Tags Reports
// @Produce json
// @Security ApiKeyAuth
// @Param filter query dto.FinancialReportRequest true "Report period"
// @Success 200 {object} dto.FinancialReportResponse
// @Router /reports/financial [get]
func (h *ClientHandler) GetFinancialReport(c *gin.Context) {
	var req dto.FinancialReportRequest
	if !bindQuery(c, &req) {
		return
	}

	resp, err := h.summary.GenerateFinancialReport(c.Request.Context(), req)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}
