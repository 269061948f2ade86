package coordinator

import (
	"context"
	"fmt"
	"time"

	"github.com/sourcegraph/conc/panics"

	fctx "github.com/vnykmshr/fanflow/pkg/common/context"
	"github.com/vnykmshr/fanflow/pkg/common/errors"
)

// Execute admits task and runs it. It waits for a permit, then for a
// concurrency slot, runs the task and releases the slot on every exit path.
// The returned duration is the total admission wait, measured from before
// the permit wait. The task's error is returned unchanged; a panic in the
// task is recovered and returned wrapping errors.ErrPanicked. If ctx ends
// during admission the task never runs and ctx.Err() is returned.
func (c *Coordinator) Execute(ctx context.Context, task Task) (time.Duration, error) {
	if task == nil {
		return 0, fmt.Errorf("coordinator: task cannot be nil")
	}

	start := c.clock.Now()

	rateDelayed, err := c.awaitPermit(ctx)
	if err != nil {
		return c.clock.Now().Sub(start), err
	}

	slot, err := c.gate.Acquire(ctx)
	wait := c.clock.Now().Sub(start)
	if err != nil {
		return wait, err
	}
	defer func() {
		slot.Release()
		c.publishGate()
	}()

	c.admitted.Add(1)
	c.totalWait.Add(int64(wait))
	c.publishGate()
	if c.metrics != nil {
		c.metrics.ObserveAdmission(c.name, wait, rateDelayed)
	}
	c.logger.Debug().
		Dur("wait", wait).
		Bool("rate_delayed", rateDelayed).
		Int("in_flight", c.gate.InUse()).
		Msg("admitted")

	return wait, c.run(ctx, task)
}

// awaitPermit loops until the permit source grants a permit. Each pass asks
// the source again, so the wait is recomputed from the current clock.
func (c *Coordinator) awaitPermit(ctx context.Context) (bool, error) {
	delayed := false
	for {
		if err := ctx.Err(); err != nil {
			return delayed, err
		}

		wait, err := c.permits.Reserve(ctx)
		if err != nil {
			return delayed, err
		}
		if wait <= 0 {
			return delayed, nil
		}

		delayed = true
		c.logger.Debug().Dur("retry_in", wait).Msg("rate limited")
		if err := fctx.Sleep(ctx, wait); err != nil {
			return delayed, err
		}
	}
}

func (c *Coordinator) run(ctx context.Context, task Task) error {
	var pc panics.Catcher
	var err error

	pc.Try(func() {
		err = task.Execute(ctx)
	})

	if r := pc.Recovered(); r != nil {
		c.logger.Error().
			Interface("panic", r.Value).
			Bytes("stack", r.Stack).
			Msg("task panicked")
		return fmt.Errorf("%w: %v", errors.ErrPanicked, r.Value)
	}
	return err
}

func (c *Coordinator) publishGate() {
	if c.metrics != nil {
		c.metrics.SetConcurrency(c.name, c.gate.InUse(), c.gate.Waiting())
	}
}
