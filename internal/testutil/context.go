package testutil

import (
	"context"

	"github.com/casebill/casebill/internal/types"
)

// TenantContext is a request context acting as the default user of tenantID
func TenantContext(tenantID string) context.Context {
	ctx := types.SetTenantID(context.Background(), tenantID)
	ctx = types.SetUserID(ctx, types.DefaultUserID)
	return types.SetRequestID(ctx, types.GenerateUUID())
}
