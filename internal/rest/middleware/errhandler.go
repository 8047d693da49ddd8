package middleware

import (
	"net/http"
	"strings"

	ierr "github.com/casebill/casebill/internal/errors"
	"github.com/casebill/casebill/internal/logger"
	"github.com/casebill/casebill/internal/sentry"
	"github.com/cockroachdb/errors"
	"github.com/gin-gonic/gin"
	"github.com/samber/lo"
)

// ErrorHandler renders the last handler error as an ierr.ErrorResponse.
// Server side failures are logged and reported, client errors are not.
func ErrorHandler(log *logger.Logger, sentrySvc *sentry.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}

		err := c.Errors.Last().Err
		status := ierr.HTTPStatusFromErr(err)
		if status >= http.StatusInternalServerError {
			ctx := c.Request.Context()
			log.WithContext(ctx).Errorw("request failed",
				"method", c.Request.Method,
				"path", c.FullPath(),
				"error", err,
			)
			sentrySvc.CaptureExceptionWithContext(ctx, err)
		}

		details := ierr.GetSafeDetails(err)
		c.JSON(status, ierr.ErrorResponse{
			Success: false,
			Error: ierr.ErrorDetail{
				Display: getDisplayMessage(err),
				Code:    ierr.CodeFromErr(err),
				Details: lo.Ternary(len(details) > 0, details, nil),
			},
		})
	}
}

func getDisplayMessage(err error) string {
	// GetAllHints is a post-order traversal, the first non-empty hint is the innermost
	for _, hint := range errors.GetAllHints(err) {
		if hint = strings.TrimSpace(hint); hint != "" {
			return hint
		}
	}
	return "An unexpected error occurred"
}
