package testutil

import (
	"context"
	"sync"

	"github.com/casebill/casebill/internal/domain/auditlog"
	"github.com/casebill/casebill/internal/types"
)

// InMemoryAuditLogStore implements auditlog.Repository
type InMemoryAuditLogStore struct {
	mu      sync.RWMutex
	entries []*auditlog.AuditLog
}

func NewInMemoryAuditLogStore() *InMemoryAuditLogStore {
	return &InMemoryAuditLogStore{
		entries: make([]*auditlog.AuditLog, 0),
	}
}

func copyAuditLog(entry *auditlog.AuditLog) *auditlog.AuditLog {
	out := *entry
	out.Details = cloneMetadata(entry.Details)
	return &out
}

func (s *InMemoryAuditLogStore) Create(ctx context.Context, entry *auditlog.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, copyAuditLog(entry))
	return nil
}

// ListByEntity returns the entries of one record, oldest first
func (s *InMemoryAuditLogStore) ListByEntity(ctx context.Context, entityType types.AuditEntityType, entityID string) ([]*auditlog.AuditLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*auditlog.AuditLog, 0)
	for _, entry := range s.entries {
		if entry.EntityType == entityType && entry.EntityID == entityID && CheckTenantFilter(ctx, entry.TenantID) {
			result = append(result, copyAuditLog(entry))
		}
	}
	return result, nil
}

func (s *InMemoryAuditLogStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make([]*auditlog.AuditLog, 0)
}
