package leakybucket

import (
	"sync"
	"time"

	"github.com/vnykmshr/fanflow/pkg/common/validation"
	"github.com/vnykmshr/fanflow/pkg/ratelimit/bucket"
)

// Config holds configuration options for creating a leaky bucket.
type Config struct {
	// LeakRate is the number of admissions drained per second.
	LeakRate float64

	// Capacity is how many admissions may be queued in the bucket at once.
	// 1 (the default) spaces admissions exactly 1/LeakRate apart.
	Capacity int

	// Clock provides the current time. If nil, bucket.SystemClock is used.
	Clock bucket.Clock
}

// LeakyBucket is a permit source that smooths admissions to a constant pace.
// Unlike the token bucket it does not save up idle time as burst: with
// Capacity 1 no two admissions are closer than 1/LeakRate.
type LeakyBucket struct {
	mu       sync.Mutex
	leakRate float64
	capacity float64
	level    float64
	lastLeak time.Time
	clock    bucket.Clock
}

// New creates a leaky bucket admitting leakRate operations per second, one
// at a time.
func New(leakRate float64) (*LeakyBucket, error) {
	return NewWithConfig(Config{LeakRate: leakRate, Capacity: 1})
}

// NewWithConfig creates a leaky bucket from config.
func NewWithConfig(config Config) (*LeakyBucket, error) {
	if err := validation.ValidatePositiveFloat("leakybucket", "leakRate", config.LeakRate); err != nil {
		return nil, err
	}
	if config.Capacity == 0 {
		config.Capacity = 1
	}
	if err := validation.ValidatePositive("leakybucket", "capacity", config.Capacity); err != nil {
		return nil, err
	}
	if config.Clock == nil {
		config.Clock = bucket.SystemClock{}
	}

	return &LeakyBucket{
		leakRate: config.LeakRate,
		capacity: float64(config.Capacity),
		lastLeak: config.Clock.Now(),
		clock:    config.Clock,
	}, nil
}
