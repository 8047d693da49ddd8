package stripe

import (
	"errors"
	"fmt"
	"testing"
	"time"

	ierr "github.com/casebill/casebill/internal/errors"
	"github.com/casebill/casebill/internal/gateway"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"
)

func TestChargeResultFromIntent(t *testing.T) {
	tests := []struct {
		name   string
		intent *stripe.PaymentIntent
		status gateway.ChargeStatus
		reason string
	}{
		{
			name:   "succeeded",
			intent: &stripe.PaymentIntent{ID: "pi_1", Amount: 104750, Status: stripe.PaymentIntentStatusSucceeded},
			status: gateway.ChargeStatusSucceeded,
		},
		{
			name: "declined after confirm",
			intent: &stripe.PaymentIntent{
				ID:               "pi_2",
				Status:           stripe.PaymentIntentStatusRequiresPaymentMethod,
				LastPaymentError: &stripe.Error{Msg: "Your card has insufficient funds."},
			},
			status: gateway.ChargeStatusFailed,
			reason: "Your card has insufficient funds.",
		},
		{
			name:   "processing",
			intent: &stripe.PaymentIntent{ID: "pi_3", Status: stripe.PaymentIntentStatusProcessing},
			status: gateway.ChargeStatusProcessing,
		},
		{
			name:   "requires action",
			intent: &stripe.PaymentIntent{ID: "pi_4", Status: stripe.PaymentIntentStatusRequiresAction},
			status: gateway.ChargeStatusProcessing,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := chargeResultFromIntent(tt.intent)
			assert.Equal(t, tt.status, result.Status)
			assert.Equal(t, tt.intent.ID, result.ID)
			if tt.reason != "" {
				assert.Equal(t, tt.reason, result.FailureReason)
			}
		})
	}
}

func TestDeclined(t *testing.T) {
	cardErr := &stripe.Error{
		Type:          stripe.ErrorTypeCard,
		Code:          stripe.ErrorCodeCardDeclined,
		Msg:           "Your card was declined.",
		PaymentIntent: &stripe.PaymentIntent{ID: "pi_9", Amount: 5000},
	}
	result, ok := declined(fmt.Errorf("create intent: %w", cardErr))
	require.True(t, ok)
	assert.Equal(t, gateway.ChargeStatusFailed, result.Status)
	assert.Equal(t, "Your card was declined.", result.FailureReason)
	assert.Equal(t, "pi_9", result.ID)

	_, ok = declined(&stripe.Error{Type: stripe.ErrorTypeAPI, Msg: "boom"})
	assert.False(t, ok)

	_, ok = declined(errors.New("connection reset"))
	assert.False(t, ok)

	assert.True(t, ierr.IsPaymentGateway(unknownOutcome(errors.New("timeout"), "charge")))
}

func signed(t *testing.T, payload, secret string) string {
	t.Helper()
	sp := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   []byte(payload),
		Secret:    secret,
		Timestamp: time.Now(),
	})
	return sp.Header
}

func TestParseWebhookEvent(t *testing.T) {
	const secret = "whsec_test"

	tests := []struct {
		name    string
		payload string
		want    *gateway.Event
	}{
		{
			name:    "payment intent succeeded",
			payload: `{"id":"evt_1","object":"event","type":"payment_intent.succeeded","data":{"object":{"id":"pi_1","object":"payment_intent","amount":104750,"status":"succeeded","metadata":{"tenant_id":"tenant-1"}}}}`,
			want:    &gateway.Event{ID: "evt_1", Type: gateway.EventPaymentSucceeded, ChargeID: "pi_1", AmountCents: 104750, TenantID: "tenant-1"},
		},
		{
			name:    "payment intent failed",
			payload: `{"id":"evt_2","object":"event","type":"payment_intent.payment_failed","data":{"object":{"id":"pi_2","object":"payment_intent","amount":5000,"last_payment_error":{"message":"Your card was declined."}}}}`,
			want:    &gateway.Event{ID: "evt_2", Type: gateway.EventPaymentFailed, ChargeID: "pi_2", AmountCents: 5000, FailureReason: "Your card was declined."},
		},
		{
			name:    "charge refunded",
			payload: `{"id":"evt_3","object":"event","type":"charge.refunded","data":{"object":{"id":"ch_3","object":"charge","amount_refunded":2500,"payment_intent":"pi_3"}}}`,
			want:    &gateway.Event{ID: "evt_3", Type: gateway.EventChargeRefunded, ChargeID: "pi_3", AmountCents: 2500},
		},
		{
			name:    "dispute created",
			payload: `{"id":"evt_4","object":"event","type":"charge.dispute.created","data":{"object":{"id":"dp_4","object":"dispute","amount":7000,"reason":"fraudulent","payment_intent":"pi_4"}}}`,
			want:    &gateway.Event{ID: "evt_4", Type: gateway.EventDisputeCreated, ChargeID: "pi_4", AmountCents: 7000, DisputeID: "dp_4", DisputeReason: "fraudulent"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			event, err := parseWebhookEvent([]byte(tt.payload), signed(t, tt.payload, secret), secret)
			require.NoError(t, err)
			assert.Equal(t, tt.want, event)
		})
	}

	t.Run("unhandled type", func(t *testing.T) {
		payload := `{"id":"evt_5","object":"event","type":"customer.created","data":{"object":{"id":"cus_1","object":"customer"}}}`
		event, err := parseWebhookEvent([]byte(payload), signed(t, payload, secret), secret)
		require.NoError(t, err)
		assert.Nil(t, event)
	})

	t.Run("bad signature", func(t *testing.T) {
		payload := `{"id":"evt_6","object":"event","type":"payment_intent.succeeded","data":{"object":{"id":"pi_6"}}}`
		_, err := parseWebhookEvent([]byte(payload), signed(t, payload, "whsec_other"), secret)
		assert.True(t, ierr.IsValidation(err))
	})
}
