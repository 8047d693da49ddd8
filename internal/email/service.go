package email

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"html/template"
	"sort"
	"strings"
	textTemplate "text/template"

	ierr "github.com/casebill/casebill/internal/errors"
	"github.com/casebill/casebill/internal/logger"
	"github.com/casebill/casebill/internal/types"
)

//go:embed templates/*.html
var templateFS embed.FS

var subjects = map[types.EmailTemplate]string{
	types.EmailTemplateInvoice:              "Invoice {{.invoice_number}} is ready",
	types.EmailTemplatePaymentReceipt:       "Payment receipt {{.receipt_number}}",
	types.EmailTemplatePaymentPlanAgreement: "Your payment plan agreement",
	types.EmailTemplateStaffNotification:    "[{{.priority}}] {{.title}}",
}

// Sender delivers templated billing emails
type Sender interface {
	SendTemplate(ctx context.Context, to string, tmpl types.EmailTemplate, data map[string]string) (*SendEmailResponse, error)
}

// Email renders billing templates and sends them through the email client
type Email struct {
	client   *EmailClient
	bodies   *template.Template
	subjects map[types.EmailTemplate]*textTemplate.Template
	logger   *logger.Logger
}

// NewEmail parses the embedded templates
func NewEmail(client *EmailClient, logger *logger.Logger) (*Email, error) {
	bodies, err := template.ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, err
	}

	parsed := make(map[types.EmailTemplate]*textTemplate.Template, len(subjects))
	for name, subject := range subjects {
		t, err := textTemplate.New(string(name)).Option("missingkey=zero").Parse(subject)
		if err != nil {
			return nil, err
		}
		parsed[name] = t
	}

	return &Email{
		client:   client,
		bodies:   bodies,
		subjects: parsed,
		logger:   logger,
	}, nil
}

// Render renders the subject, HTML body and text body of a template
func (s *Email) Render(tmpl types.EmailTemplate, data map[string]string) (*Rendered, error) {
	subject, ok := s.subjects[tmpl]
	if !ok {
		return nil, ierr.NewErrorf("unknown email template %s", tmpl).
			WithHint("Unknown email template").
			Mark(ierr.ErrValidation)
	}

	var subjectBuf bytes.Buffer
	if err := subject.Execute(&subjectBuf, data); err != nil {
		return nil, err
	}

	var body bytes.Buffer
	if err := s.bodies.ExecuteTemplate(&body, string(tmpl)+".html", data); err != nil {
		return nil, err
	}

	return &Rendered{
		Subject: subjectBuf.String(),
		HTML:    body.String(),
		Text:    plainText(data),
	}, nil
}

// SendTemplate renders and sends a template. A disabled client is not an error.
func (s *Email) SendTemplate(ctx context.Context, to string, tmpl types.EmailTemplate, data map[string]string) (*SendEmailResponse, error) {
	if to == "" {
		return nil, ierr.NewError("recipient is required").
			WithHint("Email recipient is missing").
			Mark(ierr.ErrValidation)
	}

	rendered, err := s.Render(tmpl, data)
	if err != nil {
		s.logger.Errorw("failed to render email template",
			"error", err,
			"template", tmpl,
		)
		return nil, err
	}

	if !s.client.IsEnabled() {
		s.logger.Warnw("email client is disabled, skipping email send",
			"to", to,
			"subject", rendered.Subject,
			"template", tmpl,
		)
		return &SendEmailResponse{
			Success: false,
			Error:   "email client is disabled",
		}, nil
	}

	messageID, err := s.client.SendEmail(ctx, s.client.GetFromAddress(), to, rendered.Subject, rendered.HTML, rendered.Text)
	if err != nil {
		s.logger.Errorw("failed to send templated email",
			"error", err,
			"to", to,
			"template", tmpl,
		)
		return &SendEmailResponse{
			Success: false,
			Error:   err.Error(),
		}, err
	}

	s.logger.Infow("templated email sent successfully",
		"message_id", messageID,
		"to", to,
		"template", tmpl,
	)

	return &SendEmailResponse{
		MessageID: messageID,
		Success:   true,
	}, nil
}

// plainText lists the template data as key: value lines for text only clients
func plainText(data map[string]string) string {
	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&b, "%s: %s\n", strings.ReplaceAll(k, "_", " "), data[k])
	}
	return b.String()
}
