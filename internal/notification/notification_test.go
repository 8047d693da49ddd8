package notification

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/casebill/casebill/internal/config"
	"github.com/casebill/casebill/internal/email"
	"github.com/casebill/casebill/internal/logger"
	"github.com/casebill/casebill/internal/pubsub/memory"
	pubsubRouter "github.com/casebill/casebill/internal/pubsub/router"
	"github.com/casebill/casebill/internal/sentry"
	"github.com/casebill/casebill/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sentEmail struct {
	to       string
	template types.EmailTemplate
	data     map[string]string
	tenantID string
}

type recordingSender struct {
	mu   sync.Mutex
	sent []sentEmail
}

func (r *recordingSender) SendTemplate(ctx context.Context, to string, tmpl types.EmailTemplate, data map[string]string) (*email.SendEmailResponse, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, sentEmail{to: to, template: tmpl, data: data, tenantID: types.GetTenantID(ctx)})
	return &email.SendEmailResponse{Success: true}, nil
}

func (r *recordingSender) all() []sentEmail {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]sentEmail(nil), r.sent...)
}

func setup(t *testing.T, cfg *config.Configuration) (Publisher, *recordingSender) {
	t.Helper()
	log := logger.NewNoopLogger()
	ps := memory.NewPubSub(log)
	sender := &recordingSender{}

	r, err := pubsubRouter.NewRouter(cfg, ps, log, sentry.NewSentryService(cfg, log))
	require.NoError(t, err)
	NewHandler(ps, cfg, sender, log).RegisterHandler(r)

	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = r.Run(ctx) }()
	<-r.Running()
	t.Cleanup(func() {
		cancel()
		_ = r.Close()
	})

	return NewPublisher(ps, cfg, log), sender
}

func TestEmailIsDispatched(t *testing.T) {
	cfg := config.GetDefaultConfig()
	pub, sender := setup(t, cfg)

	ctx := types.SetTenantID(context.Background(), "tenant_1")
	pub.SendEmail(ctx, &Email{
		To:       "client@example.com",
		Template: types.EmailTemplatePaymentReceipt,
		Data:     map[string]string{"receipt_number": "RCP123"},
	})

	require.Eventually(t, func() bool { return len(sender.all()) == 1 }, 2*time.Second, 5*time.Millisecond)
	got := sender.all()[0]
	assert.Equal(t, "client@example.com", got.to)
	assert.Equal(t, types.EmailTemplatePaymentReceipt, got.template)
	assert.Equal(t, "RCP123", got.data["receipt_number"])
	assert.Equal(t, "tenant_1", got.tenantID)
}

func TestNotificationGoesToStaff(t *testing.T) {
	cfg := config.GetDefaultConfig()
	cfg.Notification.StaffEmail = "billing@firm.example"
	pub, sender := setup(t, cfg)

	pub.Notify(context.Background(), &Notification{
		Type:     types.NotificationTypePaymentDisputed,
		Priority: types.NotificationPriorityHigh,
		Title:    "Payment disputed",
		Message:  "A card payment was disputed",
	})

	require.Eventually(t, func() bool { return len(sender.all()) == 1 }, 2*time.Second, 5*time.Millisecond)
	got := sender.all()[0]
	assert.Equal(t, "billing@firm.example", got.to)
	assert.Equal(t, types.EmailTemplateStaffNotification, got.template)
	assert.Equal(t, "high", got.data["priority"])
}

func TestDisabledPublisherDropsMessages(t *testing.T) {
	cfg := config.GetDefaultConfig()
	cfg.Notification.Enabled = false
	pub, sender := setup(t, cfg)

	pub.SendEmail(context.Background(), &Email{To: "client@example.com", Template: types.EmailTemplateInvoice})
	pub.SendEmail(context.Background(), &Email{Template: types.EmailTemplateInvoice})

	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, sender.all())
}
