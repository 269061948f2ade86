package distributed

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vnykmshr/fanflow/pkg/common/errors"
	"github.com/vnykmshr/fanflow/pkg/common/validation"
)

// LocalPermits is the permit-source shape of the in-process buckets. It is
// used as a fallback while Redis is unreachable.
type LocalPermits interface {
	Reserve(ctx context.Context) (time.Duration, error)
}

// Config holds configuration for a Redis-backed token bucket.
type Config struct {
	// Redis client for coordination
	Redis redis.UniversalClient

	// Key is the Redis key prefix for this bucket. Every process using the
	// same key shares one permit pool.
	Key string

	// Rate is the number of permits added per second
	Rate float64

	// Capacity is the maximum number of stored permits. Defaults to Rate,
	// and never less than one.
	Capacity float64

	// Fallback, if set, serves permits while Redis calls fail.
	Fallback LocalPermits

	// RedisTimeout bounds each Redis round trip (defaults to 500ms)
	RedisTimeout time.Duration

	// KeyTTL expires idle bucket state (defaults to 1 hour)
	KeyTTL time.Duration
}

// Stats holds the shared bucket's state and counters.
type Stats struct {
	Tokens     float64
	LastRefill time.Time
	Admitted   int64
	Delayed    int64
}

// RedisBucket implements the token bucket algorithm with its state held in
// Redis. Refill and consumption run in one Lua script, so concurrent
// processes see a single consistent pool, and the script reads Redis' own
// clock so host clock skew does not skew the rate.
type RedisBucket struct {
	config Config
	keys   bucketKeys
	script *redis.Script
}

// New creates a RedisBucket. It does not contact Redis; the bucket state is
// created on first use.
func New(config Config) (*RedisBucket, error) {
	if err := validation.ValidateNotNil("distributed", "redis", config.Redis); err != nil {
		return nil, err
	}
	if err := validation.ValidateNotEmpty("distributed", "key", config.Key); err != nil {
		return nil, err
	}
	if err := validation.ValidatePositiveFloat("distributed", "rate", config.Rate); err != nil {
		return nil, err
	}
	if config.Capacity == 0 {
		config.Capacity = maxFloat(config.Rate, 1)
	}
	if config.Capacity < 1 {
		return nil, errors.NewValidationError("distributed", "capacity", config.Capacity, "must hold at least one permit").
			WithHint("use a capacity of 1 or more")
	}
	if config.RedisTimeout == 0 {
		config.RedisTimeout = 500 * time.Millisecond
	}
	if config.KeyTTL == 0 {
		config.KeyTTL = time.Hour
	}

	return &RedisBucket{
		config: config,
		keys:   redisKeys(config.Key),
		script: redis.NewScript(luaTryConsume),
	}, nil
}
