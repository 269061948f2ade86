// Package coordinator admits operations through a rate limit and a
// concurrency limit, in that order.
//
// An operation first waits for a permit from the coordinator's permit
// source (a token bucket by default), then for a slot in a FIFO
// concurrency gate, and only then runs. Because the rate is checked first,
// callers held back by the rate never occupy a slot.
//
//	c, err := coordinator.New(10, 20) // 10 in flight, 20 starts per second
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	wait, err := c.Execute(ctx, coordinator.TaskFunc(func(ctx context.Context) error {
//		return client.Do(ctx, req)
//	}))
//
// Execute returns the task's error unchanged, together with the time spent
// waiting for admission. The slot is released on every exit path,
// including a panic in the task, which is recovered and reported as an
// error wrapping errors.ErrPanicked.
//
// The permit source can be replaced through Config.Permits with any type
// that implements Permits, such as leakybucket.LeakyBucket for evenly
// spaced starts or distributed.RedisBucket for a limit shared between
// processes.
package coordinator
