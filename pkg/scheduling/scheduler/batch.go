package scheduler

import (
	"context"
	"fmt"

	"github.com/vnykmshr/fanflow/pkg/coordinator"
	"github.com/vnykmshr/fanflow/pkg/fanout"
)

// RunFunc is the shape of the orchestrator's batch policies, such as
// orch.RunAll or orch.RunUntilFirstFailure.
type RunFunc[Req, Resp any] func(ctx context.Context, ops []fanout.Descriptor[Req], opts ...fanout.RunOption) (*fanout.Batch[Resp], error)

// BatchJob turns a fan-out policy into a schedulable task. ops is called on
// every run to build that run's batch, and report, if not nil, receives each
// finished batch. The task fails when the run fails or when any operation
// failed or timed out.
func BatchJob[Req, Resp any](run RunFunc[Req, Resp], ops func() []fanout.Descriptor[Req], report func(*fanout.Batch[Resp], error), opts ...fanout.RunOption) coordinator.Task {
	return coordinator.TaskFunc(func(ctx context.Context) error {
		batch, err := run(ctx, ops(), opts...)
		if report != nil {
			report(batch, err)
		}
		if err != nil {
			return err
		}
		if bad := batch.Counts.Failed + batch.Counts.TimedOut; bad > 0 {
			return fmt.Errorf("batch %s: %d of %d operations failed", batch.ID, bad, len(batch.Outcomes))
		}
		return nil
	})
}
