package fanout

import (
	"context"

	gferrors "github.com/vnykmshr/fanflow/pkg/common/errors"
)

// RunAll runs every operation and waits for all of them. Failures and
// timeouts are captured in the batch; nothing is cancelled unless ctx ends,
// in which case the unfinished operations report Cancelled and ctx.Err() is
// returned with the batch.
func (o *Orchestrator[Req, Resp]) RunAll(ctx context.Context, ops []Descriptor[Req], opts ...RunOption) (*Batch[Resp], error) {
	r := o.launch(ctx, PolicyAll, ops, opts)
	r.collect(nil)
	return r.batch, ctx.Err()
}

// RunFirst runs every operation and returns the first success. All
// operations still running at that point are cancelled and report
// Cancelled in the batch. If nothing succeeds, RunFirst returns
// ErrNoSuccess, or ctx.Err() if ctx ended first, along with the batch.
func (o *Orchestrator[Req, Resp]) RunFirst(ctx context.Context, ops []Descriptor[Req], opts ...RunOption) (Outcome[Resp], *Batch[Resp], error) {
	r := o.launch(ctx, PolicyFirst, ops, opts)
	r.collect(func(out Outcome[Resp]) bool {
		return out.Kind == Succeeded
	})

	b := r.batch
	if b.Trigger == nil {
		if err := ctx.Err(); err != nil {
			return Outcome[Resp]{}, b, err
		}
		return Outcome[Resp]{}, b, gferrors.ErrNoSuccess
	}
	return *b.Trigger, b, nil
}

// RunUntil runs every operation like RunAll, but the first outcome for
// which stop returns true aborts the batch: every operation still running
// is cancelled, Aborted is set, Trigger holds the matching outcome and
// Pending the IDs of the cancelled operations. Results that arrive after
// the abort are discarded.
func (o *Orchestrator[Req, Resp]) RunUntil(ctx context.Context, ops []Descriptor[Req], stop Predicate[Resp], opts ...RunOption) (*Batch[Resp], error) {
	return o.runUntil(ctx, PolicyUntil, ops, stop, opts)
}

// RunUntilFirstFailure is RunUntil with IsFailure: the first operation that
// fails or times out aborts the batch.
func (o *Orchestrator[Req, Resp]) RunUntilFirstFailure(ctx context.Context, ops []Descriptor[Req], opts ...RunOption) (*Batch[Resp], error) {
	return o.runUntil(ctx, PolicyUntilFirstFailure, ops, IsFailure[Resp], opts)
}

func (o *Orchestrator[Req, Resp]) runUntil(ctx context.Context, policy Policy, ops []Descriptor[Req], stop Predicate[Resp], opts []RunOption) (*Batch[Resp], error) {
	r := o.launch(ctx, policy, ops, opts)
	r.collect(stop)
	return r.batch, ctx.Err()
}
