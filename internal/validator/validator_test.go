package validator

import (
	"testing"

	ierr "github.com/casebill/casebill/internal/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type request struct {
	ClientID string          `json:"client_id" validate:"required"`
	Amount   decimal.Decimal `json:"amount" validate:"required"`
	Method   string          `json:"method" validate:"omitempty,oneof=ach check"`
}

func TestValidateRequest(t *testing.T) {
	require.NoError(t, ValidateRequest(request{ClientID: "client_1", Amount: decimal.NewFromInt(10)}))

	err := ValidateRequest(request{Method: "bitcoin"})
	require.Error(t, err)
	assert.True(t, ierr.IsValidation(err))

	details := ierr.GetSafeDetails(err)
	assert.Contains(t, details, "client_id")
	assert.Contains(t, details, "amount")
	assert.Contains(t, details, "method")
}
