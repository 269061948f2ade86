package leakybucket

import (
	"context"
	"math"
	"time"
)

// TryAdmit drains the bucket up to now and adds one admission if it fits,
// returning zero. Otherwise it returns how long until there is room.
func (lb *LeakyBucket) TryAdmit(now time.Time) time.Duration {
	lb.mu.Lock()
	defer lb.mu.Unlock()

	lb.leak(now)

	if lb.level+1 <= lb.capacity {
		lb.level++
		return 0
	}

	overflow := lb.level + 1 - lb.capacity
	wait := time.Duration(math.Ceil(float64(time.Second) * overflow / lb.leakRate))
	if wait <= 0 {
		wait = time.Nanosecond
	}
	return wait
}

// Reserve calls TryAdmit with the bucket's clock, matching the
// coordinator's permit-source interface.
func (lb *LeakyBucket) Reserve(_ context.Context) (time.Duration, error) {
	return lb.TryAdmit(lb.clock.Now()), nil
}

// Level returns the current fill level.
func (lb *LeakyBucket) Level() float64 {
	lb.mu.Lock()
	defer lb.mu.Unlock()

	lb.leak(lb.clock.Now())
	return lb.level
}

// LeakRate returns the drain rate in admissions per second.
func (lb *LeakyBucket) LeakRate() float64 {
	return lb.leakRate
}

// leak drains the bucket for the time elapsed since the last leak.
// Must be called with lb.mu held.
func (lb *LeakyBucket) leak(now time.Time) {
	elapsed := now.Sub(lb.lastLeak)
	if elapsed <= 0 {
		return
	}

	lb.level = math.Max(0, lb.level-elapsed.Seconds()*lb.leakRate)
	lb.lastLeak = now
}
