package testutil

import (
	"context"
	"sync"

	"github.com/casebill/casebill/internal/notification"
	"github.com/casebill/casebill/internal/types"
)

var _ notification.Publisher = (*InMemoryNotifier)(nil)

// InMemoryNotifier records staff notifications and client emails instead of
// publishing them to the outbox
type InMemoryNotifier struct {
	mu            sync.RWMutex
	notifications []*notification.Notification
	emails        []*notification.Email
}

func NewInMemoryNotifier() *InMemoryNotifier {
	return &InMemoryNotifier{
		notifications: make([]*notification.Notification, 0),
		emails:        make([]*notification.Email, 0),
	}
}

func (n *InMemoryNotifier) Notify(ctx context.Context, msg *notification.Notification) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notifications = append(n.notifications, msg)
}

func (n *InMemoryNotifier) SendEmail(ctx context.Context, e *notification.Email) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.emails = append(n.emails, e)
}

// GetNotifications returns every notification of type t, or all when t is empty
func (n *InMemoryNotifier) GetNotifications(t types.NotificationType) []*notification.Notification {
	n.mu.RLock()
	defer n.mu.RUnlock()

	result := make([]*notification.Notification, 0)
	for _, msg := range n.notifications {
		if t == "" || msg.Type == t {
			result = append(result, msg)
		}
	}
	return result
}

// GetEmails returns every email sent with template, or all when template is empty
func (n *InMemoryNotifier) GetEmails(template types.EmailTemplate) []*notification.Email {
	n.mu.RLock()
	defer n.mu.RUnlock()

	result := make([]*notification.Email, 0)
	for _, e := range n.emails {
		if template == "" || e.Template == template {
			result = append(result, e)
		}
	}
	return result
}

func (n *InMemoryNotifier) Clear() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notifications = make([]*notification.Notification, 0)
	n.emails = make([]*notification.Email, 0)
}
