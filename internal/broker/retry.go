package broker

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/example/dshauth/token"
)

// retryable reports whether a failed fetch may succeed when repeated:
// transport failures and 5xx answers of the platform.
func retryable(err error) bool {
	var call *token.DshCallError
	switch {
	case errors.As(err, &call):
		return call.Temporary()
	case errors.Is(err, token.ErrMalformedToken),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return false
	}
	var invalid *token.InvalidClientIDError
	return !errors.As(err, &invalid)
}

func exponentialBackOff(maxElapsed time.Duration) func() backoff.BackOff {
	return func() backoff.BackOff {
		b := backoff.NewExponentialBackOff()
		b.InitialInterval = 200 * time.Millisecond
		b.MaxElapsedTime = maxElapsed
		return b
	}
}

// withRetry runs op until it succeeds, fails permanently or the back-off
// gives up. The last error is returned.
func withRetry[T any](ctx context.Context, newBackOff func() backoff.BackOff, op func() (T, error)) (T, error) {
	var result T
	err := backoff.Retry(func() error {
		v, err := op()
		if err != nil {
			if !retryable(err) {
				return backoff.Permanent(err)
			}
			return err
		}
		result = v
		return nil
	}, backoff.WithContext(newBackOff(), ctx))
	return result, err
}
