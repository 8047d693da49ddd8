package document

import (
	"bytes"
	"context"
	"embed"
	"html/template"

	ierr "github.com/casebill/casebill/internal/errors"
	"github.com/shopspring/decimal"
)

//go:embed templates/*.html
var templateFS embed.FS

var hundred = decimal.NewFromInt(100)

// Renderer turns billing records into client facing documents
type Renderer interface {
	RenderInvoice(ctx context.Context, data *InvoiceData) ([]byte, error)
}

type htmlRenderer struct {
	templates *template.Template
}

// NewRenderer parses the embedded document templates
func NewRenderer() (Renderer, error) {
	t, err := template.ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, ierr.WithError(err).
			WithHint("failed to parse document templates").
			Mark(ierr.ErrSystem)
	}
	return &htmlRenderer{templates: t}, nil
}

func (r *htmlRenderer) RenderInvoice(ctx context.Context, data *InvoiceData) ([]byte, error) {
	var buf bytes.Buffer
	if err := r.templates.ExecuteTemplate(&buf, "invoice.html", data); err != nil {
		return nil, ierr.WithError(err).
			WithHint("failed to render invoice document").
			WithReportableDetails(map[string]any{
				"invoice_id": data.ID,
			}).
			Mark(ierr.ErrSystem)
	}
	return buf.Bytes(), nil
}
