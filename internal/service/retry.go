package service

import (
	"context"

	"github.com/casebill/casebill/internal/config"
	ierr "github.com/casebill/casebill/internal/errors"
	"github.com/cenkalti/backoff/v4"
)

// retryOnConflict runs op until it succeeds, fails with an error that is not
// retryable, or the retry budget runs out. op must re-read whatever it writes.
func retryOnConflict[T any](ctx context.Context, cfg config.RetryConfig, retryable func(error) bool, op func(ctx context.Context) (T, error)) (T, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = cfg.InitialInterval
	b.MaxInterval = cfg.MaxInterval
	b.MaxElapsedTime = cfg.MaxElapsedTime

	policy := backoff.WithContext(backoff.WithMaxRetries(b, cfg.MaxRetries), ctx)
	return backoff.RetryWithData(func() (T, error) {
		res, err := op(ctx)
		if err != nil && !retryable(err) {
			return res, backoff.Permanent(err)
		}
		return res, err
	}, policy)
}

// isVersionConflict is the retry predicate of every read-modify-write
func isVersionConflict(err error) bool {
	return ierr.IsVersionConflict(err)
}
