/*
Package ratelimit provides the admission primitives used by the coordinator.

  - bucket: Token bucket rate limiter allowing bursts up to its capacity
  - leakybucket: Pacer spacing admissions evenly, without bursts
  - distributed: Token bucket whose state lives in Redis
  - concurrency: FIFO gate limiting operations in flight

Token Bucket vs Leaky Bucket:

A token bucket lets a batch start quickly and then settles to its rate:

	tb, _ := bucket.New(20) // 20 permits/sec, starts with 20
	wait := tb.TryConsume(time.Now())

A leaky bucket spaces every start by 1/rate:

	lb, _ := leakybucket.New(20) // one admission every 50ms
	wait := lb.TryAdmit(time.Now())

Neither sleeps. Both report how long the caller must wait, and both
implement Reserve(ctx) so either can be a coordinator's permit source, as
can distributed.RedisBucket when several processes share one quota.

Concurrency gate:

	gate, _ := concurrency.New(10)
	slot, err := gate.Acquire(ctx)
	if err != nil {
		return err
	}
	defer slot.Release()

Waiters are served in arrival order and a cancelled waiter never takes a
slot.
*/
package ratelimit
