// Package context holds small context helpers shared by the coordinator and
// the fan-out policies.
package context

import (
	"context"
	"time"
)

// Sleep suspends for d or until ctx ends, whichever comes first. It returns
// ctx.Err() when the context ended before the timer fired.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
