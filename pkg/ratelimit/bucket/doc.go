/*
Package bucket provides the token bucket that paces admissions in fanflow.

The bucket holds up to Capacity permits and refills continuously at Rate
permits per second. Refill is lazy: it is computed from the elapsed time on
every check, so an idle bucket costs nothing.

TryConsume is synchronous and never sleeps. It either takes a permit and
returns zero, or returns the time the caller must wait before a permit will
exist:

	tb, _ := bucket.New(20) // 20 permits/s, capacity 20, starts full
	if wait := tb.TryConsume(time.Now()); wait > 0 {
		time.Sleep(wait)
		// try again
	}

Wait wraps this in a bounded loop that re-measures the clock on every
iteration and honours context cancellation. Reserve adapts the bucket to the
coordinator's permit-source interface.

For every window of length T the number of permits granted never exceeds
floor(Capacity + Rate*T).
*/
package bucket
