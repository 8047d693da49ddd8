package notification

import (
	"time"

	"github.com/casebill/casebill/internal/types"
)

// Kind tells the dispatcher what to do with an outbox message
type Kind string

const (
	KindNotification Kind = "notification"
	KindEmail        Kind = "email"
)

// Notification is a staff facing alert about billing activity
type Notification struct {
	Type     types.NotificationType     `json:"type"`
	Priority types.NotificationPriority `json:"priority"`
	Title    string                     `json:"title"`
	Message  string                     `json:"message"`
	Metadata map[string]string          `json:"metadata,omitempty"`
}

// Email is a templated email to a client
type Email struct {
	To       string              `json:"to"`
	Template types.EmailTemplate `json:"template"`
	Data     map[string]string   `json:"data,omitempty"`
}

// Message is the outbox envelope published for every side effect
type Message struct {
	ID           string        `json:"id"`
	TenantID     string        `json:"tenant_id"`
	UserID       string        `json:"user_id,omitempty"`
	Kind         Kind          `json:"kind"`
	Notification *Notification `json:"notification,omitempty"`
	Email        *Email        `json:"email,omitempty"`
	CreatedAt    time.Time     `json:"created_at"`
}
