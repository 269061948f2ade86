package distributed

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vnykmshr/fanflow/pkg/common/errors"
)

// Reserve refills the shared bucket and takes one permit if available,
// returning zero; otherwise it returns how long to wait before retrying.
// When Redis fails and a Fallback is configured, the fallback answers.
func (rb *RedisBucket) Reserve(ctx context.Context) (time.Duration, error) {
	wait, err := rb.reserve(ctx)
	if err != nil && rb.config.Fallback != nil && ctx.Err() == nil {
		return rb.config.Fallback.Reserve(ctx)
	}
	return wait, err
}

func (rb *RedisBucket) reserve(ctx context.Context) (time.Duration, error) {
	ctx, cancel := context.WithTimeout(ctx, rb.config.RedisTimeout)
	defer cancel()

	result, err := rb.script.Run(ctx, rb.config.Redis,
		[]string{rb.keys.state, rb.keys.stats},
		rb.config.Rate,
		rb.config.Capacity,
		rb.config.KeyTTL.Milliseconds(),
	).Text()
	if err != nil {
		return 0, errors.NewOperationError("distributed", "Reserve", err).
			WithContext("key " + rb.config.Key)
	}

	wait, err := secondsToDuration(result)
	if err != nil {
		return 0, errors.NewOperationError("distributed", "Reserve", fmt.Errorf("invalid script result %q: %w", result, err))
	}
	return wait, nil
}

// Stats returns the shared bucket's current state and counters.
func (rb *RedisBucket) Stats(ctx context.Context) (*Stats, error) {
	ctx, cancel := context.WithTimeout(ctx, rb.config.RedisTimeout)
	defer cancel()

	pipe := rb.config.Redis.Pipeline()
	stateCmd := pipe.HGetAll(ctx, rb.keys.state)
	statsCmd := pipe.HGetAll(ctx, rb.keys.stats)

	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return nil, errors.NewOperationError("distributed", "Stats", err)
	}

	state := stateCmd.Val()
	counters := statsCmd.Val()

	stats := &Stats{Tokens: rb.config.Capacity}
	if v, err := strconv.ParseFloat(state["tokens"], 64); err == nil {
		stats.Tokens = v
	}
	if v, err := strconv.ParseFloat(state["last"], 64); err == nil {
		stats.LastRefill = floatToTime(v)
	}
	stats.Admitted, _ = strconv.ParseInt(counters["admitted"], 10, 64)
	stats.Delayed, _ = strconv.ParseInt(counters["delayed"], 10, 64)

	return stats, nil
}

// Reset deletes the shared state; the next Reserve starts from a full bucket.
func (rb *RedisBucket) Reset(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, rb.config.RedisTimeout)
	defer cancel()

	if err := rb.config.Redis.Del(ctx, rb.keys.state, rb.keys.stats).Err(); err != nil {
		return errors.NewOperationError("distributed", "Reset", err)
	}
	return nil
}

// luaTryConsume refills and consumes atomically using the server clock.
const luaTryConsume = `
-- KEYS[1]: bucket state hash (tokens, last)
-- KEYS[2]: stats hash
-- ARGV[1]: refill rate (permits/second)
-- ARGV[2]: capacity
-- ARGV[3]: key ttl in milliseconds

local rate = tonumber(ARGV[1])
local capacity = tonumber(ARGV[2])
local ttl = tonumber(ARGV[3])

local t = redis.call('TIME')
local now = tonumber(t[1]) + tonumber(t[2]) / 1000000

local state = redis.call('HMGET', KEYS[1], 'tokens', 'last')
local tokens = tonumber(state[1]) or capacity
local last = tonumber(state[2]) or now

local elapsed = now - last
if elapsed > 0 then
    tokens = math.min(capacity, tokens + elapsed * rate)
    last = now
end

local delay = 0
if tokens >= 1 then
    tokens = tokens - 1
    redis.call('HINCRBY', KEYS[2], 'admitted', 1)
else
    delay = (1 - tokens) / rate
    redis.call('HINCRBY', KEYS[2], 'delayed', 1)
end

redis.call('HSET', KEYS[1], 'tokens', tostring(tokens), 'last', tostring(last))
if ttl > 0 then
    redis.call('PEXPIRE', KEYS[1], ttl)
    redis.call('PEXPIRE', KEYS[2], ttl)
end

return tostring(delay)
`
