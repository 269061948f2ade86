package bucket

import (
	"context"
	"math"
	"time"

	fctx "github.com/vnykmshr/fanflow/pkg/common/context"
)

// TryConsume refills the bucket up to now and takes one permit if one is
// available, returning zero. Otherwise it takes nothing and returns how long
// the caller should wait before trying again.
func (tb *TokenBucket) TryConsume(now time.Time) time.Duration {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	tb.refill(now)

	if tb.available >= 1 {
		tb.available--
		return 0
	}

	missing := 1 - tb.available
	wait := time.Duration(math.Ceil(float64(time.Second) * missing / tb.rate))
	if wait <= 0 {
		wait = time.Nanosecond
	}
	return wait
}

// Reserve calls TryConsume with the bucket's clock. The error is always nil;
// the signature lets the bucket stand in wherever a remote permit source can.
func (tb *TokenBucket) Reserve(_ context.Context) (time.Duration, error) {
	return tb.TryConsume(tb.clock.Now()), nil
}

// Wait blocks until a permit is taken or ctx ends. Each iteration
// re-measures the clock, so the loop ends as soon as enough time has passed.
// It returns the total time spent waiting.
func (tb *TokenBucket) Wait(ctx context.Context) (time.Duration, error) {
	var waited time.Duration
	for {
		if err := ctx.Err(); err != nil {
			return waited, err
		}

		delay := tb.TryConsume(tb.clock.Now())
		if delay <= 0 {
			return waited, nil
		}

		start := time.Now()
		err := fctx.Sleep(ctx, delay)
		waited += time.Since(start)
		if err != nil {
			return waited, err
		}
	}
}

// Tokens returns the number of permits currently available.
func (tb *TokenBucket) Tokens() float64 {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	tb.refill(tb.clock.Now())
	return tb.available
}

// Rate returns the refill rate in permits per second.
func (tb *TokenBucket) Rate() float64 {
	return tb.rate
}

// Capacity returns the maximum number of stored permits.
func (tb *TokenBucket) Capacity() float64 {
	return tb.capacity
}

// refill adds permits for the time elapsed since the last refill.
// Must be called with tb.mu held.
func (tb *TokenBucket) refill(now time.Time) {
	elapsed := now.Sub(tb.lastRefill)
	if elapsed <= 0 {
		return
	}

	tb.available = math.Min(tb.available+elapsed.Seconds()*tb.rate, tb.capacity)
	tb.lastRefill = now
}
