package store

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// RetryRead runs an idempotent read, retrying once after a short pause when
// it fails with ErrTransient. Single-use consumption must not go through
// here.
func RetryRead[T any](ctx context.Context, read func(context.Context) (T, error)) (T, error) {
	return backoff.Retry(ctx, func() (T, error) {
		v, err := read(ctx)
		if err != nil && !errors.Is(err, ErrTransient) {
			return v, backoff.Permanent(err)
		}
		return v, err
	},
		backoff.WithBackOff(backoff.NewConstantBackOff(50*time.Millisecond)),
		backoff.WithMaxTries(2),
	)
}
