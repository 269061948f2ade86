package fanout

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc"
	"github.com/sourcegraph/conc/panics"

	gferrors "github.com/vnykmshr/fanflow/pkg/common/errors"
	"github.com/vnykmshr/fanflow/pkg/coordinator"
	"github.com/vnykmshr/fanflow/pkg/metrics"
	"github.com/vnykmshr/fanflow/pkg/stats"
)

// event carries an outcome from its operation goroutine to the collector.
type event[Resp any] struct {
	outcome    Outcome[Resp]
	finishedAt time.Time
}

type reply[Resp any] struct {
	value Resp
	err   error
}

// collector owns a batch in flight: every operation goroutine sends exactly
// one event, and the collector settles events into the batch. It is not
// safe for concurrent use.
type collector[Resp any] struct {
	name     string
	logger   zerolog.Logger
	metrics  *metrics.Registry
	recorder Recorder

	parent context.Context
	cancel context.CancelFunc
	events chan event[Resp]
	wg     conc.WaitGroup
	start  time.Time

	batch    *Batch[Resp]
	received int
	aborted  bool
	abortAt  time.Time
	finished bool
}

// run adds what the operation goroutines need to a collector.
type run[Req, Resp any] struct {
	*collector[Resp]
	o       *Orchestrator[Req, Resp]
	ctx     context.Context
	ops     []Descriptor[Req]
	timeout time.Duration
}

// launch starts every operation of ops and returns the running batch.
func (o *Orchestrator[Req, Resp]) launch(ctx context.Context, policy Policy, ops []Descriptor[Req], opts []RunOption) *run[Req, Resp] {
	bctx, cancel := context.WithCancel(ctx)

	r := &run[Req, Resp]{
		collector: &collector[Resp]{
			name:     o.name,
			logger:   o.logger,
			metrics:  o.metrics,
			recorder: o.recorder,
			parent:   ctx,
			cancel:   cancel,
			events:   make(chan event[Resp], len(ops)),
			start:    time.Now(),
			batch: &Batch[Resp]{
				ID:       uuid.NewString(),
				Policy:   policy,
				Outcomes: make([]Outcome[Resp], len(ops)),
			},
		},
		o:       o,
		ctx:     bctx,
		ops:     make([]Descriptor[Req], len(ops)),
		timeout: o.runTimeout(opts),
	}

	for i, op := range ops {
		if op.ID == "" {
			op.ID = uuid.NewString()
		}
		r.ops[i] = op
		r.batch.Outcomes[i] = Outcome[Resp]{Index: i, ID: op.ID}
	}

	o.logger.Debug().
		Str("batch_id", r.batch.ID).
		Str("policy", string(policy)).
		Int("operations", len(ops)).
		Dur("timeout", r.timeout).
		Msg("batch started")

	for i := range r.ops {
		r.wg.Go(func() {
			r.events <- r.execute(i)
		})
	}
	return r
}

// execute admits and runs operation i and reports how it ended.
func (r *run[Req, Resp]) execute(i int) event[Resp] {
	op := r.ops[i]
	ctx, cancel := context.WithCancel(r.ctx)
	defer cancel()

	out := Outcome[Resp]{Index: i, ID: op.ID}
	ran := false

	wait, err := r.o.executor.Execute(ctx, coordinator.TaskFunc(func(ctx context.Context) error {
		ran = true
		started := time.Now()
		out.Value, out.Kind, out.Err = r.issue(ctx, cancel, op.Request)
		out.Duration = time.Since(started)
		return out.Err
	}))
	out.Wait = wait

	if !ran {
		out.Kind, out.Err = notAdmitted(ctx, op.ID, err)
	}
	return event[Resp]{outcome: out, finishedAt: time.Now()}
}

// notAdmitted classifies an operation the executor never ran. Only a done
// context counts as a cancellation; any other admission error, such as an
// unreachable permit store, fails the operation.
func notAdmitted(ctx context.Context, id string, err error) (Kind, error) {
	if ctx.Err() != nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		if err == nil {
			return Cancelled, fmt.Errorf("%w before admission", gferrors.ErrCancelled)
		}
		return Cancelled, fmt.Errorf("%w before admission: %w", gferrors.ErrCancelled, err)
	}
	if err == nil {
		err = errors.New("executor returned without running the operation")
	}
	return Failed, gferrors.NewOperationError("fanout", "admit", err).WithContext("op " + id)
}

// issue races the collaborator call against the operation's context and
// the per-operation timer. A reply that arrives once the context is done is
// discarded.
func (r *run[Req, Resp]) issue(ctx context.Context, cancel context.CancelFunc, req Req) (Resp, Kind, error) {
	var zero Resp
	if r.o.collab == nil {
		return zero, Failed, gferrors.NewValidationError("fanout", "collaborator", nil, "cannot be nil")
	}

	replies := make(chan reply[Resp], 1)
	go func() {
		var pc panics.Catcher
		var rep reply[Resp]
		pc.Try(func() {
			rep.value, rep.err = r.o.collab.Issue(ctx, req)
		})
		if rec := pc.Recovered(); rec != nil {
			r.logger.Error().
				Interface("panic", rec.Value).
				Bytes("stack", rec.Stack).
				Msg("collaborator panicked")
			rep.err = fmt.Errorf("%w: %v", gferrors.ErrPanicked, rec.Value)
		}
		replies <- rep
	}()

	var expired <-chan time.Time
	if r.timeout > 0 {
		timer := time.NewTimer(r.timeout)
		defer timer.Stop()
		expired = timer.C
	}

	select {
	case rep := <-replies:
		if err := ctx.Err(); err != nil {
			return zero, Cancelled, fmt.Errorf("%w: %w", gferrors.ErrCancelled, err)
		}
		if rep.err != nil {
			return zero, Failed, rep.err
		}
		return rep.value, Succeeded, nil
	case <-expired:
		cancel()
		return zero, TimedOut, fmt.Errorf("%w after %v", gferrors.ErrTimeout, r.timeout)
	case <-ctx.Done():
		return zero, Cancelled, fmt.Errorf("%w: %w", gferrors.ErrCancelled, ctx.Err())
	}
}

func (c *collector[Resp]) done() bool {
	return c.received == len(c.batch.Outcomes)
}

// settle stores ev in the batch. Once the batch is aborted, operations that
// finish after the abort are reported as cancelled whatever they returned.
func (c *collector[Resp]) settle(ev event[Resp]) Outcome[Resp] {
	out := ev.outcome
	if c.aborted && ev.finishedAt.After(c.abortAt) {
		if out.Kind != Cancelled {
			var zero Resp
			out.Value = zero
			out.Kind = Cancelled
			out.Err = fmt.Errorf("%w: batch aborted", gferrors.ErrCancelled)
		}
		c.batch.Pending = append(c.batch.Pending, out.ID)
	}

	c.batch.Outcomes[out.Index] = out
	c.batch.Counts.add(out.Kind)
	c.received++

	c.logger.Debug().
		Str("batch_id", c.batch.ID).
		Str("op_id", out.ID).
		Str("kind", out.Kind.String()).
		Dur("wait", out.Wait).
		Dur("duration", out.Duration).
		Err(out.Err).
		Msg("operation finished")

	if c.metrics != nil {
		c.metrics.ObserveOperation(c.name, string(c.batch.Policy), out.Kind.String(), out.Duration)
	}
	return out
}

// abort cancels every operation still running.
func (c *collector[Resp]) abort(trigger *Outcome[Resp]) {
	if c.aborted {
		return
	}
	c.aborted = true
	c.abortAt = time.Now()
	c.batch.Aborted = true
	if trigger != nil {
		t := *trigger
		c.batch.Trigger = &t
	}
	c.cancel()
}

// collect settles every event, aborting the batch the first time stop
// reports true.
func (c *collector[Resp]) collect(stop Predicate[Resp]) {
	for !c.done() {
		out := c.settle(<-c.events)
		if stop != nil && !c.aborted && stop(out) {
			c.abort(&out)
		}
	}
	c.finish()
}

// finish waits for every operation goroutine, then logs and records the
// batch. It runs once.
func (c *collector[Resp]) finish() {
	if c.finished {
		return
	}
	c.finished = true

	c.wg.Wait()
	c.cancel()

	b := c.batch
	b.Elapsed = time.Since(c.start)

	ev := c.logger.Info()
	if b.Aborted {
		ev = c.logger.Warn()
	}
	ev = ev.Str("batch_id", b.ID).
		Str("policy", string(b.Policy)).
		Int("total", len(b.Outcomes)).
		Int("completed", b.Counts.Completed).
		Int("failed", b.Counts.Failed).
		Int("timed_out", b.Counts.TimedOut).
		Int("cancelled", b.Counts.Cancelled).
		Dur("elapsed", b.Elapsed)
	if b.Trigger != nil {
		ev = ev.Str("trigger", b.Trigger.ID)
	}
	ev.Msg("batch finished")

	if c.metrics != nil {
		c.metrics.ObserveBatch(c.name, string(b.Policy), b.Aborted, b.Elapsed)
	}

	if c.recorder != nil {
		ctx := context.WithoutCancel(c.parent)
		if err := c.recorder.Record(ctx, c.summary()); err != nil {
			c.logger.Warn().Err(err).Str("batch_id", b.ID).Msg("failed to record batch")
		}
	}
}

func (c *collector[Resp]) summary() stats.Summary {
	b := c.batch
	s := stats.Summary{
		BatchID: b.ID,
		Name:    c.name,
		Policy:  string(b.Policy),
		Total:   len(b.Outcomes),
		Counts: stats.Counts{
			Completed: b.Counts.Completed,
			Failed:    b.Counts.Failed,
			Cancelled: b.Counts.Cancelled,
			TimedOut:  b.Counts.TimedOut,
		},
		Aborted:       b.Aborted,
		AdmissionWait: b.AdmissionWait(),
		Elapsed:       b.Elapsed,
		FinishedAt:    time.Now(),
	}
	if b.Trigger != nil {
		s.Trigger = b.Trigger.ID
	}
	return s
}
