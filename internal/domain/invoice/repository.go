package invoice

import (
	"context"

	"github.com/casebill/casebill/internal/types"
)

// Repository defines the interface for invoice persistence operations
type Repository interface {
	// Create inserts a new invoice. A duplicate invoice number fails with ErrAlreadyExists.
	Create(ctx context.Context, invoice *Invoice) error

	// Get retrieves an invoice by ID
	Get(ctx context.Context, id string) (*Invoice, error)

	// Update writes the invoice if its stored version still equals invoice.Version,
	// bumping the version. A stale version fails with ErrVersionConflict.
	Update(ctx context.Context, invoice *Invoice) error

	// List retrieves invoices based on filter criteria
	List(ctx context.Context, filter *types.InvoiceFilter) ([]*Invoice, error)

	// Count returns the total count of invoices based on filter criteria
	Count(ctx context.Context, filter *types.InvoiceFilter) (int, error)

	// NextInvoiceSequence atomically reserves the next sequence number for year.
	// Callers run it outside a transaction so a reserved number is never reissued.
	NextInvoiceSequence(ctx context.Context, year int) (int64, error)
}
