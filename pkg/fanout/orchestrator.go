package fanout

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/vnykmshr/fanflow/pkg/coordinator"
	"github.com/vnykmshr/fanflow/pkg/metrics"
	"github.com/vnykmshr/fanflow/pkg/stats"
)

// Collaborator performs one remote operation. It must observe ctx and
// return promptly once ctx is done.
type Collaborator[Req, Resp any] interface {
	Issue(ctx context.Context, req Req) (Resp, error)
}

// IssueFunc adapts a function to the Collaborator interface.
type IssueFunc[Req, Resp any] func(ctx context.Context, req Req) (Resp, error)

// Issue implements Collaborator.
func (f IssueFunc[Req, Resp]) Issue(ctx context.Context, req Req) (Resp, error) {
	return f(ctx, req)
}

// Executor admits and runs tasks. *coordinator.Coordinator implements it.
type Executor interface {
	Execute(ctx context.Context, task coordinator.Task) (time.Duration, error)
}

// Recorder persists batch summaries. The recorders in package stats
// implement it.
type Recorder interface {
	Record(ctx context.Context, s stats.Summary) error
}

// Option configures an Orchestrator.
type Option func(*options)

type options struct {
	executor Executor
	timeout  time.Duration
	logger   zerolog.Logger
	metrics  metrics.Config
	name     string
	recorder Recorder
}

// WithCoordinator routes every operation through e for admission. Without
// it, or with a nil e, operations run unthrottled.
func WithCoordinator(e Executor) Option {
	return func(o *options) { o.executor = e }
}

// WithTimeout sets the default per-operation timeout. Zero disables it.
func WithTimeout(d time.Duration) Option {
	return func(o *options) { o.timeout = d }
}

// WithLogger sets the logger for batch and operation events.
func WithLogger(logger zerolog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithMetrics enables Prometheus metrics under the given orchestrator name.
func WithMetrics(config metrics.Config, name string) Option {
	return func(o *options) {
		o.metrics = config
		if name != "" {
			o.name = name
		}
	}
}

// WithRecorder records a summary of every finished batch.
func WithRecorder(r Recorder) Option {
	return func(o *options) { o.recorder = r }
}

// WithName names the orchestrator in logs, metrics and summaries.
func WithName(name string) Option {
	return func(o *options) {
		if name != "" {
			o.name = name
		}
	}
}

// RunOption adjusts a single policy run.
type RunOption func(*runOptions)

type runOptions struct {
	timeout time.Duration
}

// Timeout overrides the orchestrator's per-operation timeout for one run.
func Timeout(d time.Duration) RunOption {
	return func(o *runOptions) { o.timeout = d }
}

// Orchestrator runs batches of operations through a collaborator under a
// completion policy. It is safe for concurrent use; each call runs its own
// batch.
type Orchestrator[Req, Resp any] struct {
	collab   Collaborator[Req, Resp]
	executor Executor
	timeout  time.Duration
	name     string
	logger   zerolog.Logger
	metrics  *metrics.Registry
	recorder Recorder
}

// New creates an orchestrator that issues operations through c.
func New[Req, Resp any](c Collaborator[Req, Resp], opts ...Option) *Orchestrator[Req, Resp] {
	o := options{name: "default"}
	for _, opt := range opts {
		opt(&o)
	}

	executor := o.executor
	if executor == nil {
		executor = direct{}
	}
	timeout := o.timeout
	if timeout < 0 {
		timeout = 0
	}

	return &Orchestrator[Req, Resp]{
		collab:   c,
		executor: executor,
		timeout:  timeout,
		name:     o.name,
		logger:   o.logger.With().Str("orchestrator", o.name).Logger(),
		metrics:  metrics.FromConfig(o.metrics),
		recorder: o.recorder,
	}
}

func (o *Orchestrator[Req, Resp]) runTimeout(opts []RunOption) time.Duration {
	ro := runOptions{timeout: o.timeout}
	for _, opt := range opts {
		opt(&ro)
	}
	if ro.timeout < 0 {
		return 0
	}
	return ro.timeout
}

// direct runs tasks without admission control.
type direct struct{}

func (direct) Execute(ctx context.Context, task coordinator.Task) (time.Duration, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return 0, task.Execute(ctx)
}
