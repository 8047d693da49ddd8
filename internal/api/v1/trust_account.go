package v1

import (
	"net/http"

	"github.com/casebill/casebill/internal/api/dto"
	"github.com/casebill/casebill/internal/service"
	"github.com/casebill/casebill/internal/types"
	"github.com/gin-gonic/gin"
)

type TrustAccountHandler struct {
	service service.TrustAccountService
}

func NewTrustAccountHandler(service service.TrustAccountService) *TrustAccountHandler {
	return &TrustAccountHandler{service: service}
}

// @Summary Post a trust transaction
// @Description Deposit, withdraw, hold, release or transfer client funds. The account opens on first deposit.
// @Tags Trust Accounts
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param transaction body dto.TrustTransactionRequest true "Transaction"
// @Success 201 {object} dto.TrustTransactionResponse
// @Failure 422 {object} ierr.ErrorResponse
// @Router /trust-accounts/transactions [post]
func (h *TrustAccountHandler) ProcessTransaction(c *gin.Context) {
	var req dto.TrustTransactionRequest
	if !bindJSON(c, &req) {
		return
	}

	resp, err := h.service.ProcessTrustTransaction(c.Request.Context(), req)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, resp)
}

func (h *TrustAccountHandler) GetTrustAccount(c *gin.Context) {
	resp, err := h.service.GetTrustAccount(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (h *TrustAccountHandler) ListTrustAccounts(c *gin.Context) {
	var filter types.TrustAccountFilter
	if !bindQuery(c, &filter) {
		return
	}
	filter.QueryFilter = pageOrDefault(filter.QueryFilter)

	resp, err := h.service.ListTrustAccounts(c.Request.Context(), &filter)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// @Summary List an account's ledger
// @Tags Trust Accounts
// @Produce json
// @Security ApiKeyAuth
// @Param id path string true "Trust account ID"
// @Param filter query types.TrustTransactionFilter false "Filter"
// @Success 200 {object} dto.ListTrustTransactionsResponse
// @Router /trust-accounts/{id}/transactions [get]
func (h *TrustAccountHandler) ListTransactions(c *gin.Context) {
	var filter types.TrustTransactionFilter
	if !bindQuery(c, &filter) {
		return
	}
	filter.QueryFilter = pageOrDefault(filter.QueryFilter)
	filter.TrustAccountID = c.Param("id")

	resp, err := h.service.ListTrustTransactions(c.Request.Context(), &filter)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// @Summary Verify an account against its ledger
// @Description Replays the ledger. A mismatch is reported in the body, not as an error status.
// @Tags Trust Accounts
// @Produce json
// @Security ApiKeyAuth
// @Param id path string true "Trust account ID"
// @Success 200 {object} dto.TrustVerificationResponse
// @Router /trust-accounts/{id}/verify [get]
func (h *TrustAccountHandler) VerifyTrustAccount(c *gin.Context) {
	resp, err := h.service.VerifyTrustAccount(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (h *TrustAccountHandler) CloseTrustAccount(c *gin.Context) {
	var req dto.CloseTrustAccountRequest
	if !bindJSON(c, &req) {
		return
	}

	resp, err := h.service.CloseTrustAccount(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}
