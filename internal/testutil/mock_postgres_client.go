package testutil

import (
	"context"
	"sync/atomic"

	"github.com/casebill/casebill/internal/logger"
	"github.com/casebill/casebill/internal/postgres"
)

var _ postgres.IClient = (*MockPostgresClient)(nil) // Ensure MockPostgresClient implements IClient

type txMarker struct{}

// MockPostgresClient is a mock implementation of postgres client for testing.
// The in-memory stores do their own locking, so a transaction only marks the context.
type MockPostgresClient struct {
	logger *logger.Logger
	txs    atomic.Int64
}

// NewMockPostgresClient creates a new mock postgres client
func NewMockPostgresClient(logger *logger.Logger) *MockPostgresClient {
	return &MockPostgresClient{
		logger: logger,
	}
}

// WithTx executes the given function within a transaction
func (c *MockPostgresClient) WithTx(ctx context.Context, fn func(context.Context) error) error {
	// If we're already in a transaction, reuse it
	if InTx(ctx) {
		return fn(ctx)
	}

	c.txs.Add(1)
	return fn(context.WithValue(ctx, txMarker{}, true))
}

// Transactions returns how many outermost transactions were started
func (c *MockPostgresClient) Transactions() int64 {
	return c.txs.Load()
}

// InTx reports whether ctx is inside a WithTx call
func InTx(ctx context.Context) bool {
	v, _ := ctx.Value(txMarker{}).(bool)
	return v
}
