package client

import (
	"strings"

	ierr "github.com/casebill/casebill/internal/errors"
	"github.com/casebill/casebill/internal/types"
)

// Client is the billed party. Cases belong to clients outside of billing.
type Client struct {
	ID           string `db:"id" json:"id"`
	Name         string `db:"name" json:"name"`
	Email        string `db:"email" json:"email"`
	Phone        string `db:"phone" json:"phone"`
	Jurisdiction string `db:"jurisdiction" json:"jurisdiction"`
	// StripeCustomerID links the client to the gateway when cards are saved
	StripeCustomerID *string        `db:"stripe_customer_id" json:"stripe_customer_id,omitempty"`
	Metadata         types.Metadata `db:"metadata" json:"metadata,omitempty"`
	types.BaseModel
}

func (c *Client) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return ierr.NewError("client name is required").
			WithHint("Client name is required").
			Mark(ierr.ErrValidation)
	}
	return nil
}

// HasEmail reports whether invoices and receipts can be delivered
func (c *Client) HasEmail() bool {
	return strings.TrimSpace(c.Email) != ""
}
