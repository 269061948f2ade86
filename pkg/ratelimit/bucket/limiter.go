package bucket

import (
	"math"
	"sync"
	"time"

	"github.com/vnykmshr/fanflow/pkg/common/errors"
	"github.com/vnykmshr/fanflow/pkg/common/validation"
)

// Clock provides the current time. It can be mocked for testing.
type Clock interface {
	Now() time.Time
}

// SystemClock implements Clock using the system time. time.Now carries a
// monotonic reading, so elapsed-time arithmetic is immune to wall-clock jumps.
type SystemClock struct{}

// Now returns the current system time.
func (SystemClock) Now() time.Time {
	return time.Now()
}

// Config holds configuration options for creating a TokenBucket.
type Config struct {
	// Rate is the number of permits added per second. Must be positive.
	Rate float64

	// Capacity is the maximum number of permits the bucket holds.
	// If zero, it defaults to Rate (one second worth of burst), and never
	// less than one permit. A capacity below one could never admit anything.
	Capacity float64

	// Clock provides the current time. If nil, SystemClock is used.
	Clock Clock

	// InitialTokens is the number of permits to start with.
	// If negative, the bucket starts full.
	InitialTokens float64
}

// TokenBucket tracks available permits and refills them lazily from the
// time elapsed since the last check. It never sleeps: TryConsume reports how
// long the caller must wait instead. Safe for concurrent use.
type TokenBucket struct {
	mu         sync.Mutex
	rate       float64
	capacity   float64
	available  float64
	lastRefill time.Time
	clock      Clock
}

// New creates a TokenBucket that refills permitsPerSecond permits per second
// and holds at most permitsPerSecond permits (at least one). It starts full.
func New(permitsPerSecond float64) (*TokenBucket, error) {
	return NewWithConfig(Config{
		Rate:          permitsPerSecond,
		Clock:         SystemClock{},
		InitialTokens: -1,
	})
}

// NewWithConfig creates a TokenBucket from config. A non-positive rate or
// capacity is rejected with a validation error.
func NewWithConfig(config Config) (*TokenBucket, error) {
	if err := validation.ValidatePositiveFloat("bucket", "rate", config.Rate); err != nil {
		return nil, err
	}
	if config.Capacity == 0 {
		config.Capacity = math.Max(config.Rate, 1)
	}
	if err := validation.ValidatePositiveFloat("bucket", "capacity", config.Capacity); err != nil {
		return nil, err
	}
	if config.Capacity < 1 {
		return nil, errors.NewValidationError("bucket", "capacity", config.Capacity, "must hold at least one permit").
			WithHint("use a capacity of 1 or more")
	}
	if config.Clock == nil {
		config.Clock = SystemClock{}
	}

	initial := config.InitialTokens
	if initial < 0 || initial > config.Capacity {
		initial = config.Capacity
	}

	return &TokenBucket{
		rate:       config.Rate,
		capacity:   config.Capacity,
		available:  initial,
		lastRefill: config.Clock.Now(),
		clock:      config.Clock,
	}, nil
}
