package middleware

import (
	"time"

	"github.com/casebill/casebill/internal/auth"
	"github.com/casebill/casebill/internal/config"
	"github.com/casebill/casebill/internal/types"
	sentrygin "github.com/getsentry/sentry-go/gin"
	"github.com/gin-gonic/gin"
)

// SentryMiddleware attaches a hub to each request and reports panics
func SentryMiddleware(cfg *config.Configuration) gin.HandlerFunc {
	if !cfg.Sentry.Enabled {
		return func(c *gin.Context) {
			c.Next()
		}
	}

	return sentrygin.New(sentrygin.Options{
		Repanic: true,
		Timeout: 2 * time.Second,
	})
}

// tagSentryScope labels events captured for this request with the caller
func tagSentryScope(c *gin.Context, principal *auth.Principal) {
	hub := sentrygin.GetHubFromContext(c)
	if hub == nil {
		return
	}
	scope := hub.Scope()
	scope.SetTag("tenant_id", principal.TenantID)
	scope.SetTag("api_key", principal.Name)
	scope.SetTag("request_id", types.GetRequestID(c.Request.Context()))
}
