package stats

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vnykmshr/fanflow/pkg/common/errors"
)

// RedisRecorder aggregates summaries in Redis hashes so several processes
// share one view. Totals live in "<prefix>:<name>:<policy>" and are
// cumulative; the recent list "<prefix>:<name>:recent" is capped and
// expires after the configured TTL.
type RedisRecorder struct {
	rdb redis.UniversalClient

	prefix string
	ttl    time.Duration
	keep   int64
}

// RedisOption configures a RedisRecorder.
type RedisOption func(*RedisRecorder)

// WithPrefix sets the key prefix (default "fanflow:stats").
func WithPrefix(prefix string) RedisOption {
	return func(r *RedisRecorder) {
		if p := strings.Trim(prefix, ":"); p != "" {
			r.prefix = p
		}
	}
}

// WithTTL sets the expiry of the recent list. Zero disables expiry.
func WithTTL(d time.Duration) RedisOption {
	return func(r *RedisRecorder) { r.ttl = d }
}

// WithRecent sets how many summaries the recent list keeps (default 100).
func WithRecent(n int) RedisOption {
	return func(r *RedisRecorder) {
		if n > 0 {
			r.keep = int64(n)
		}
	}
}

// NewRedisRecorder creates a recorder backed by rdb.
func NewRedisRecorder(rdb redis.UniversalClient, opts ...RedisOption) *RedisRecorder {
	r := &RedisRecorder{
		rdb:    rdb,
		prefix: "fanflow:stats",
		ttl:    24 * time.Hour,
		keep:   100,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Record adds s to the shared totals and pushes it onto the recent list.
func (r *RedisRecorder) Record(ctx context.Context, s Summary) error {
	if r == nil || r.rdb == nil {
		return nil
	}

	payload, err := json.Marshal(s)
	if err != nil {
		return errors.NewOperationError("stats", "Record", err)
	}

	totalKey := r.totalsKey(s.Name, s.Policy)
	recentKey := r.recentKey(s.Name)

	aborted := int64(0)
	if s.Aborted {
		aborted = 1
	}

	pipe := r.rdb.Pipeline()
	pipe.HIncrBy(ctx, totalKey, "batches", 1)
	pipe.HIncrBy(ctx, totalKey, "aborted", aborted)
	pipe.HIncrBy(ctx, totalKey, "completed", int64(s.Counts.Completed))
	pipe.HIncrBy(ctx, totalKey, "failed", int64(s.Counts.Failed))
	pipe.HIncrBy(ctx, totalKey, "cancelled", int64(s.Counts.Cancelled))
	pipe.HIncrBy(ctx, totalKey, "timed_out", int64(s.Counts.TimedOut))
	pipe.HIncrBy(ctx, totalKey, "elapsed_us", s.Elapsed.Microseconds())

	pipe.LPush(ctx, recentKey, payload)
	pipe.LTrim(ctx, recentKey, 0, r.keep-1)
	if r.ttl > 0 {
		pipe.Expire(ctx, recentKey, r.ttl)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return errors.NewOperationError("stats", "Record", err).WithContext("key " + totalKey)
	}
	return nil
}

// Totals reads the accumulated totals for name and policy.
func (r *RedisRecorder) Totals(ctx context.Context, name, policy string) (Totals, error) {
	fields, err := r.rdb.HGetAll(ctx, r.totalsKey(name, policy)).Result()
	if err != nil {
		return Totals{}, errors.NewOperationError("stats", "Totals", err)
	}

	num := func(field string) int64 {
		v, _ := strconv.ParseInt(fields[field], 10, 64)
		return v
	}
	return Totals{
		Batches:   num("batches"),
		Aborted:   num("aborted"),
		Completed: num("completed"),
		Failed:    num("failed"),
		Cancelled: num("cancelled"),
		TimedOut:  num("timed_out"),
		Elapsed:   time.Duration(num("elapsed_us")) * time.Microsecond,
	}, nil
}

// Recent returns up to n summaries of name, newest first.
func (r *RedisRecorder) Recent(ctx context.Context, name string, n int) ([]Summary, error) {
	if n <= 0 {
		n = int(r.keep)
	}
	raw, err := r.rdb.LRange(ctx, r.recentKey(name), 0, int64(n-1)).Result()
	if err != nil {
		return nil, errors.NewOperationError("stats", "Recent", err)
	}

	out := make([]Summary, 0, len(raw))
	for _, item := range raw {
		var s Summary
		if err := json.Unmarshal([]byte(item), &s); err != nil {
			return nil, errors.NewOperationError("stats", "Recent", err)
		}
		out = append(out, s)
	}
	return out, nil
}

func (r *RedisRecorder) totalsKey(name, policy string) string {
	return r.prefix + ":" + name + ":" + policy
}

func (r *RedisRecorder) recentKey(name string) string {
	return r.prefix + ":" + name + ":recent"
}
