package testutil

import (
	"context"

	"github.com/casebill/casebill/internal/gateway"
	"github.com/stretchr/testify/mock"
)

var _ gateway.Gateway = (*MockGateway)(nil)

type MockGateway struct {
	mock.Mock
}

func NewMockGateway() *MockGateway {
	return &MockGateway{}
}

func (m *MockGateway) Charge(ctx context.Context, req gateway.ChargeRequest) (*gateway.ChargeResult, error) {
	args := m.Called(ctx, req)
	if res, ok := args.Get(0).(*gateway.ChargeResult); ok {
		return res, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockGateway) Refund(ctx context.Context, req gateway.RefundRequest) (*gateway.RefundResult, error) {
	args := m.Called(ctx, req)
	if res, ok := args.Get(0).(*gateway.RefundResult); ok {
		return res, args.Error(1)
	}
	return nil, args.Error(1)
}
