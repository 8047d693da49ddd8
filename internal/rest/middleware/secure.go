package middleware

import (
	"github.com/casebill/casebill/internal/config"
	"github.com/casebill/casebill/internal/types"
	"github.com/gin-gonic/gin"
	"github.com/unrolled/secure"
)

// SecureHeadersMiddleware sets the browser hardening headers. Invoices and
// statements are served as JSON only, so framing and sniffing are denied.
func SecureHeadersMiddleware(cfg *config.Configuration) gin.HandlerFunc {
	s := secure.New(secure.Options{
		FrameDeny:             true,
		ContentTypeNosniff:    true,
		BrowserXssFilter:      true,
		ReferrerPolicy:        "no-referrer",
		ContentSecurityPolicy: "default-src 'none'; frame-ancestors 'none'",
		SSLRedirect:           cfg.Server.SSLRedirect,
		SSLProxyHeaders:       map[string]string{"X-Forwarded-Proto": "https"},
		IsDevelopment:         cfg.Deployment.Mode == types.ModeLocal,
	})

	return func(c *gin.Context) {
		// secure writes the redirect or rejection itself before returning an error
		if err := s.Process(c.Writer, c.Request); err != nil {
			c.Abort()
			return
		}
		c.Next()
	}
}
