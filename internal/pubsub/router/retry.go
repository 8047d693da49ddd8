package router

import (
	"context"
	"errors"
	"net"

	ierr "github.com/casebill/casebill/internal/errors"
	"github.com/casebill/casebill/internal/logger"
)

func shouldRetry(logger *logger.Logger, err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		logger.Debugw("retrying due to network timeout", "error", netErr)
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	// business errors do not heal on retry
	if ierr.IsValidation(err) ||
		ierr.IsNotFound(err) ||
		ierr.IsPermissionDenied(err) {
		return false
	}

	return true
}
