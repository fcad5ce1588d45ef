package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/locate-annotation-service/internal/domain"
)

// Poll calls check every interval until it reports done, returns an error,
// or maxWait elapses. The interval is fixed; there is no backoff. Running out
// of time returns an error wrapping domain.ErrUpstreamUnavailable.
func Poll(ctx context.Context, clock clockwork.Clock, interval, maxWait time.Duration, check func(context.Context) (bool, error)) error {
	deadline := clock.Now().Add(maxWait)
	for {
		done, err := check(ctx)
		if err != nil {
			return err
		}
		if done {
			return nil
		}
		if !clock.Now().Before(deadline) {
			return fmt.Errorf("query still running after %s: %w", maxWait, domain.ErrUpstreamUnavailable)
		}
		if !sleepWithContext(ctx, clock, interval) {
			return ctx.Err()
		}
	}
}

func sleepWithContext(ctx context.Context, clock clockwork.Clock, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}

	timer := clock.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.Chan():
		return true
	}
}
