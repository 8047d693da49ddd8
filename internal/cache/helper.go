package cache

import (
	"context"

	"github.com/casebill/casebill/internal/types"
	"github.com/getsentry/sentry-go"
)

// startSpan opens a span for a cache read. Requests without a sentry hub get nil.
func startSpan(ctx context.Context, backend, operation, key string) *sentry.Span {
	if sentry.GetHubFromContext(ctx) == nil {
		return nil
	}

	span := sentry.StartSpan(ctx, "db.cache", sentry.WithDescription("cache."+backend+"."+operation))
	span.SetData("cache.backend", backend)
	span.SetData("cache.key", key)
	span.SetTag("tenant_id", types.GetTenantID(ctx))
	return span
}

func finishSpan(span *sentry.Span) {
	if span != nil {
		span.Finish()
	}
}
