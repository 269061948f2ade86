/*
Package fanflow coordinates throttled, cancellable fan-out calls to a remote
service.

Admission (pkg/ratelimit, pkg/coordinator):
  - bucket: Token bucket with lazy refill and burst capacity
  - leakybucket: Pacer admitting one operation per 1/rate, no burst
  - distributed: Token bucket held in Redis, shared across processes
  - concurrency: FIFO gate bounding operations in flight
  - coordinator: Rate first, then concurrency, then run

Orchestration (pkg/fanout):
  - RunAll: every operation, partial failures kept in place
  - RunFirst: first success wins, the rest are cancelled
  - RunProgressive: outcomes in completion order, stoppable early
  - RunUntilFirstFailure and RunUntil: abort the batch on a signal

Supporting packages:
  - metrics: Prometheus instrumentation
  - stats: In-memory and Redis batch summaries
  - scheduling/scheduler: Cron and interval batch jobs
  - config: Viper-loaded settings that build the above

Example usage:

	import (
		"github.com/vnykmshr/fanflow/pkg/coordinator"
		"github.com/vnykmshr/fanflow/pkg/fanout"
	)

	c, _ := coordinator.New(10, 20) // 10 in flight, 20 starts per second
	orch := fanout.New[string, Product](client, fanout.WithCoordinator(c))

	batch, err := orch.RunAll(ctx, ops)
*/
package fanflow
