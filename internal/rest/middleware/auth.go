package middleware

import (
	"net/http"

	"github.com/casebill/casebill/internal/auth"
	"github.com/casebill/casebill/internal/config"
	"github.com/casebill/casebill/internal/logger"
	"github.com/casebill/casebill/internal/types"
	"github.com/gin-gonic/gin"
)

// GuestAuthenticateMiddleware lets unauthenticated requests through under the default tenant
func GuestAuthenticateMiddleware(c *gin.Context) {
	ctx := c.Request.Context()
	ctx = types.SetTenantID(ctx, types.DefaultTenantID)
	ctx = types.SetUserID(ctx, types.DefaultUserID)
	c.Request = c.Request.WithContext(ctx)
	c.Next()
}

// AuthenticateMiddleware resolves the API key header to a tenant and user and
// stores both in the request context for the services
func AuthenticateMiddleware(cfg *config.Configuration, logger *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.GetHeader(cfg.Auth.APIKey.Header)
		if key == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Missing API key"})
			return
		}

		principal, ok := auth.ValidateAPIKey(cfg, key)
		if !ok {
			logger.Debugw("invalid api key", "path", c.FullPath())
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid API key"})
			return
		}

		ctx := c.Request.Context()
		ctx = types.SetTenantID(ctx, principal.TenantID)
		ctx = types.SetUserID(ctx, principal.UserID)
		c.Request = c.Request.WithContext(ctx)
		tagSentryScope(c, principal)
		c.Next()
	}
}

// CronAuthMiddleware guards the sweep endpoints with the cron key. The sweep
// handlers pick the tenants themselves.
func CronAuthMiddleware(cfg *config.Configuration, logger *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !auth.ValidateCronKey(cfg, c.GetHeader(cfg.Auth.APIKey.Header)) {
			logger.Warnw("rejected cron request", "path", c.FullPath())
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid cron key"})
			return
		}
		GuestAuthenticateMiddleware(c)
	}
}
