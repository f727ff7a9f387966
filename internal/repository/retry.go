package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
)

const maxStorageRetries = 3

func newBackOff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 20 * time.Millisecond
	b.MaxInterval = 250 * time.Millisecond
	b.MaxElapsedTime = 2 * time.Second
	return backoff.WithContext(backoff.WithMaxRetries(b, maxStorageRetries), ctx)
}

// withRetry runs op until it succeeds, fails permanently, or the retry budget
// is spent. Not-found, conflict and aborted mutations are permanent; anything
// else is treated as a transient storage failure and surfaces as ErrStorage.
func withRetry(ctx context.Context, op func() error) error {
	return backoff.Retry(func() error {
		err := op()
		if err == nil {
			return nil
		}
		var abort abortError
		if errors.As(err, &abort) {
			return backoff.Permanent(abort.err)
		}
		if errors.Is(err, ErrNotFound) || errors.Is(err, ErrConflict) {
			return backoff.Permanent(err)
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return backoff.Permanent(fmt.Errorf("%w: %v", ErrStorage, err))
		}
		if errors.Is(err, ErrStorage) {
			return err
		}
		return fmt.Errorf("%w: %v", ErrStorage, err)
	}, newBackOff(ctx))
}
