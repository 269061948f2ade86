package coordinator

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/vnykmshr/fanflow/pkg/common/errors"
	"github.com/vnykmshr/fanflow/pkg/common/validation"
	"github.com/vnykmshr/fanflow/pkg/metrics"
	"github.com/vnykmshr/fanflow/pkg/ratelimit/bucket"
	"github.com/vnykmshr/fanflow/pkg/ratelimit/concurrency"
)

// Task represents a unit of work admitted by the coordinator.
type Task interface {
	// Execute runs the task with the given context.
	// It should respect context cancellation and return any error encountered.
	Execute(ctx context.Context) error
}

// TaskFunc is a function type that implements the Task interface.
type TaskFunc func(ctx context.Context) error

// Execute implements the Task interface for TaskFunc.
func (f TaskFunc) Execute(ctx context.Context) error {
	return f(ctx)
}

// Permits is a source of rate-limit permits. Reserve takes one permit and
// returns zero, or returns how long to wait before asking again.
// *bucket.TokenBucket, *leakybucket.LeakyBucket and
// *distributed.RedisBucket implement it.
type Permits interface {
	Reserve(ctx context.Context) (time.Duration, error)
}

// Config holds configuration options for creating a coordinator.
type Config struct {
	// MaxConcurrent is the number of operations allowed in flight at once.
	// Must be greater than 0.
	MaxConcurrent int

	// PermitsPerSecond is the admission rate of the default token bucket.
	// Ignored when Permits is set.
	PermitsPerSecond float64

	// Burst is the default bucket's capacity. Zero means one second worth
	// of permits.
	Burst float64

	// Permits replaces the default token bucket, for example with a pacer
	// or a Redis-backed bucket shared by several processes.
	Permits Permits

	// Clock measures admission waits and drives the default bucket.
	// Defaults to the system clock.
	Clock bucket.Clock

	// Name identifies the coordinator in logs and metrics.
	Name string

	// Logger receives admission events. The zero value discards them.
	Logger zerolog.Logger

	// Metrics enables Prometheus instrumentation.
	Metrics metrics.Config
}

// Stats is a snapshot of the coordinator's pools.
type Stats struct {
	// InFlight is the number of operations holding a slot
	InFlight int

	// Waiting is the number of operations queued for a slot
	Waiting int

	// Capacity is MaxConcurrent
	Capacity int

	// Tokens is the permit level of the default bucket, or -1 when the
	// permit source does not report one
	Tokens float64

	// Admitted counts operations that passed both gates
	Admitted int64

	// TotalWait sums the admission wait of all admitted operations
	TotalWait time.Duration
}

// AverageWait returns the mean admission wait.
func (s Stats) AverageWait() time.Duration {
	if s.Admitted == 0 {
		return 0
	}
	return s.TotalWait / time.Duration(s.Admitted)
}

// Coordinator admits operations through a permit source and then a
// concurrency gate. Rate is checked first, so an operation delayed by the
// rate never holds a slot while it waits.
type Coordinator struct {
	name    string
	permits Permits
	gate    *concurrency.Gate
	clock   bucket.Clock
	logger  zerolog.Logger
	metrics *metrics.Registry

	admitted  atomic.Int64
	totalWait atomic.Int64
}

// New creates a coordinator with a token bucket of permitsPerSecond and a
// gate of maxConcurrent slots.
func New(maxConcurrent int, permitsPerSecond float64) (*Coordinator, error) {
	return NewWithConfig(Config{
		MaxConcurrent:    maxConcurrent,
		PermitsPerSecond: permitsPerSecond,
	})
}

// NewWithConfig creates a coordinator with the specified configuration.
func NewWithConfig(config Config) (*Coordinator, error) {
	if err := validation.ValidatePositive("coordinator", "maxConcurrent", config.MaxConcurrent); err != nil {
		return nil, err
	}
	if config.Clock == nil {
		config.Clock = bucket.SystemClock{}
	}
	if config.Name == "" {
		config.Name = "default"
	}

	permits := config.Permits
	if permits == nil {
		if err := validation.ValidatePositiveFloat("coordinator", "permitsPerSecond", config.PermitsPerSecond); err != nil {
			return nil, err
		}
		if config.Burst < 0 {
			return nil, errors.NewValidationError("coordinator", "burst", config.Burst, "cannot be negative").
				WithHint("use 0 for one second of burst")
		}
		tb, err := bucket.NewWithConfig(bucket.Config{
			Rate:          config.PermitsPerSecond,
			Capacity:      config.Burst,
			Clock:         config.Clock,
			InitialTokens: -1,
		})
		if err != nil {
			return nil, err
		}
		permits = tb
	}

	gate, err := concurrency.New(config.MaxConcurrent)
	if err != nil {
		return nil, err
	}

	return &Coordinator{
		name:    config.Name,
		permits: permits,
		gate:    gate,
		clock:   config.Clock,
		logger:  config.Logger.With().Str("coordinator", config.Name).Logger(),
		metrics: metrics.FromConfig(config.Metrics),
	}, nil
}

// Name returns the coordinator's name.
func (c *Coordinator) Name() string {
	return c.name
}

// InFlight returns the number of operations currently holding a slot.
func (c *Coordinator) InFlight() int {
	return c.gate.InUse()
}

// Stats returns a snapshot of the coordinator's pools.
func (c *Coordinator) Stats() Stats {
	tokens := -1.0
	if tr, ok := c.permits.(interface{ Tokens() float64 }); ok {
		tokens = tr.Tokens()
	}
	return Stats{
		InFlight:  c.gate.InUse(),
		Waiting:   c.gate.Waiting(),
		Capacity:  c.gate.Capacity(),
		Tokens:    tokens,
		Admitted:  c.admitted.Load(),
		TotalWait: time.Duration(c.totalWait.Load()),
	}
}
