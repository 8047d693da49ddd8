package testutil

import (
	"context"
	"sort"
	"sync"

	ierr "github.com/casebill/casebill/internal/errors"
	"github.com/casebill/casebill/internal/types"
	"github.com/samber/lo"
)

// FilterFunc is a generic filter function type
type FilterFunc[T any] func(ctx context.Context, item T, filter interface{}) bool

// SortFunc is a generic sort function type
type SortFunc[T any] func(i, j T) bool

// CloneFunc copies an item so callers never share memory with the store
type CloneFunc[T any] func(T) T

// InMemoryStore implements a generic in-memory store. Items are cloned on the
// way in and on the way out, like rows in a database.
type InMemoryStore[T any] struct {
	mu    sync.RWMutex
	items map[string]T
	clone CloneFunc[T]
}

// NewInMemoryStore creates a new InMemoryStore
func NewInMemoryStore[T any](clone CloneFunc[T]) *InMemoryStore[T] {
	return &InMemoryStore[T]{
		items: make(map[string]T),
		clone: clone,
	}
}

// Create adds a new item to the store
func (s *InMemoryStore[T]) Create(ctx context.Context, id string, item T) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.items[id]; exists {
		return ierr.NewErrorf("item %s already exists", id).
			WithHint("Item already exists").
			Mark(ierr.ErrAlreadyExists)
	}

	s.items[id] = s.clone(item)
	return nil
}

// Get retrieves an item by ID
func (s *InMemoryStore[T]) Get(ctx context.Context, id string) (T, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if item, exists := s.items[id]; exists {
		return s.clone(item), nil
	}

	var zero T
	return zero, notFound(id)
}

// Find returns the first item matching fn
func (s *InMemoryStore[T]) Find(ctx context.Context, fn func(T) bool) (T, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, item := range s.items {
		if fn(item) {
			return s.clone(item), true
		}
	}
	var zero T
	return zero, false
}

// List retrieves items based on filter
func (s *InMemoryStore[T]) List(ctx context.Context, filter interface{}, filterFn FilterFunc[T], sortFn SortFunc[T]) ([]T, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]T, 0)
	for _, item := range s.items {
		if filterFn == nil || filterFn(ctx, item, filter) {
			result = append(result, s.clone(item))
		}
	}

	if sortFn != nil {
		sort.SliceStable(result, func(i, j int) bool {
			return sortFn(result[i], result[j])
		})
	}

	// Apply pagination if filter implements BaseFilter
	if f, ok := filter.(types.BaseFilter); ok && !f.IsUnlimited() {
		start := f.GetOffset()
		if start >= len(result) {
			return []T{}, nil
		}

		end := start + f.GetLimit()
		if end > len(result) {
			end = len(result)
		}
		return result[start:end], nil
	}

	return result, nil
}

// Count returns the total number of items matching the filter
func (s *InMemoryStore[T]) Count(ctx context.Context, filter interface{}, filterFn FilterFunc[T]) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, item := range s.items {
		if filterFn == nil || filterFn(ctx, item, filter) {
			count++
		}
	}

	return count, nil
}

// CompareAndSwap replaces the stored item when check accepts the current one
func (s *InMemoryStore[T]) CompareAndSwap(ctx context.Context, id string, item T, check func(current T) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, exists := s.items[id]
	if !exists {
		return notFound(id)
	}
	if check != nil {
		if err := check(current); err != nil {
			return err
		}
	}

	s.items[id] = s.clone(item)
	return nil
}

// Clear removes all items from the store
func (s *InMemoryStore[T]) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = make(map[string]T)
}

// CheckTenantFilter reports whether an item belongs to the tenant of the context
func CheckTenantFilter(ctx context.Context, itemTenantID string) bool {
	tenantID := types.GetTenantID(ctx)
	return tenantID == "" || itemTenantID == tenantID
}

// sortByTime orders by t then id in the direction of the filter, like the
// ORDER BY clause of the postgres repositories
func sortByTime[T any](filter types.BaseFilter, at func(T) int64, id func(T) string) SortFunc[T] {
	desc := filter == nil || filter.GetOrder() != types.OrderAsc
	return func(a, b T) bool {
		ta, tb := at(a), at(b)
		if ta == tb {
			if desc {
				return id(a) > id(b)
			}
			return id(a) < id(b)
		}
		if desc {
			return ta > tb
		}
		return ta < tb
	}
}

func notFound(id string) error {
	return ierr.NewErrorf("item %s not found", id).
		WithHint("Item not found").
		WithReportableDetails(map[string]any{
			"id": id,
		}).
		Mark(ierr.ErrNotFound)
}

func versionConflict(id string, version int) error {
	return ierr.NewErrorf("item %s was modified concurrently", id).
		WithHint("Item was modified by another request, please retry").
		WithReportableDetails(map[string]any{
			"id":      id,
			"version": version,
		}).
		Mark(ierr.ErrVersionConflict)
}

func matchesTime(r *types.TimeRangeFilter, t int64) bool {
	if r == nil {
		return true
	}
	if r.StartTime != nil && t < r.StartTime.UnixNano() {
		return false
	}
	if r.EndTime != nil && t > r.EndTime.UnixNano() {
		return false
	}
	return true
}

func matchesAny[T comparable](values []T, v T) bool {
	return len(values) == 0 || lo.Contains(values, v)
}

func cloneMetadata(m types.Metadata) types.Metadata {
	if m == nil {
		return nil
	}
	out := make(types.Metadata, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
