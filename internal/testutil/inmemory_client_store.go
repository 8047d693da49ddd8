package testutil

import (
	"context"

	"github.com/casebill/casebill/internal/domain/client"
	"github.com/casebill/casebill/internal/types"
	"github.com/samber/lo"
)

// InMemoryClientStore implements client.Repository
type InMemoryClientStore struct {
	*InMemoryStore[*client.Client]
}

func NewInMemoryClientStore() *InMemoryClientStore {
	return &InMemoryClientStore{
		InMemoryStore: NewInMemoryStore[*client.Client](copyClient),
	}
}

func copyClient(c *client.Client) *client.Client {
	if c == nil {
		return nil
	}
	out := *c
	out.Metadata = cloneMetadata(c.Metadata)
	return &out
}

func clientFilterFn(ctx context.Context, c *client.Client, filter interface{}) bool {
	if !CheckTenantFilter(ctx, c.TenantID) {
		return false
	}
	f, ok := filter.(*types.ClientFilter)
	if !ok || f == nil {
		return true
	}
	if len(f.ClientIDs) > 0 && !lo.Contains(f.ClientIDs, c.ID) {
		return false
	}
	return f.Email == "" || f.Email == c.Email
}

func (s *InMemoryClientStore) Create(ctx context.Context, c *client.Client) error {
	return s.InMemoryStore.Create(ctx, c.ID, c)
}

func (s *InMemoryClientStore) Get(ctx context.Context, id string) (*client.Client, error) {
	c, err := s.InMemoryStore.Get(ctx, id)
	if err != nil || !CheckTenantFilter(ctx, c.TenantID) {
		return nil, notFound(id)
	}
	return c, nil
}

func (s *InMemoryClientStore) Update(ctx context.Context, c *client.Client) error {
	return s.InMemoryStore.CompareAndSwap(ctx, c.ID, c, nil)
}

func (s *InMemoryClientStore) List(ctx context.Context, filter *types.ClientFilter) ([]*client.Client, error) {
	return s.InMemoryStore.List(ctx, filter, clientFilterFn, sortByTime(filter,
		func(c *client.Client) int64 { return c.CreatedAt.UnixNano() },
		func(c *client.Client) string { return c.ID },
	))
}

func (s *InMemoryClientStore) Count(ctx context.Context, filter *types.ClientFilter) (int, error) {
	return s.InMemoryStore.Count(ctx, filter, clientFilterFn)
}
