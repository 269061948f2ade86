package distributed

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	gferrors "github.com/vnykmshr/fanflow/pkg/common/errors"
	"github.com/vnykmshr/fanflow/pkg/ratelimit/bucket"
)

// redisClient returns a client for a local Redis or skips the test.
func redisClient(t *testing.T) *redis.Client {
	t.Helper()

	rdb := redis.NewClient(&redis.Options{
		Addr: "localhost:6379",
		DB:   15,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		t.Skip("Redis not available, skipping")
	}
	t.Cleanup(func() { _ = rdb.Close() })
	return rdb
}

// unreachableClient returns a client whose every command fails fast.
func unreachableClient(t *testing.T) *redis.Client {
	t.Helper()

	rdb := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	t.Cleanup(func() { _ = rdb.Close() })
	return rdb
}

func testKey() string {
	return fmt.Sprintf("fanflow_test_%s", uuid.NewString())
}

func TestNew(t *testing.T) {
	rdb := unreachableClient(t)

	tests := []struct {
		name    string
		config  Config
		wantErr bool
	}{
		{"valid", Config{Redis: rdb, Key: "k", Rate: 10}, false},
		{"missing client", Config{Key: "k", Rate: 10}, true},
		{"missing key", Config{Redis: rdb, Rate: 10}, true},
		{"zero rate", Config{Redis: rdb, Key: "k"}, true},
		{"capacity below one", Config{Redis: rdb, Key: "k", Rate: 10, Capacity: 0.5}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rb, err := New(tt.config)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				if !gferrors.IsConfiguration(err) {
					t.Errorf("expected configuration error, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if rb.config.Capacity != 10 {
				t.Errorf("expected default capacity 10, got %v", rb.config.Capacity)
			}
			if rb.config.RedisTimeout != 500*time.Millisecond {
				t.Errorf("expected default timeout, got %v", rb.config.RedisTimeout)
			}
		})
	}
}

func TestRedisKeysShareHashTag(t *testing.T) {
	keys := redisKeys("api")
	if keys.state != "{api}:bucket" || keys.stats != "{api}:stats" {
		t.Errorf("unexpected keys: %+v", keys)
	}
}

func TestReserveRedisDown(t *testing.T) {
	rb, err := New(Config{Redis: unreachableClient(t), Key: testKey(), Rate: 10})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	_, err = rb.Reserve(context.Background())
	if err == nil {
		t.Fatal("expected error with Redis unreachable")
	}
	var opErr *gferrors.OperationError
	if !errors.As(err, &opErr) {
		t.Fatalf("expected OperationError, got %T", err)
	}
	if opErr.Module != "distributed" || opErr.Operation != "Reserve" {
		t.Errorf("unexpected error origin: %v", opErr)
	}
}

func TestReserveFallback(t *testing.T) {
	local, err := bucket.NewWithConfig(bucket.Config{Rate: 10, Capacity: 1, InitialTokens: -1})
	if err != nil {
		t.Fatalf("bucket: %v", err)
	}

	rb, err := New(Config{
		Redis:    unreachableClient(t),
		Key:      testKey(),
		Rate:     10,
		Fallback: local,
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	ctx := context.Background()
	if wait, err := rb.Reserve(ctx); err != nil || wait != 0 {
		t.Fatalf("first reserve: wait=%v err=%v", wait, err)
	}
	wait, err := rb.Reserve(ctx)
	if err != nil {
		t.Fatalf("second reserve: %v", err)
	}
	if wait <= 0 {
		t.Errorf("expected fallback bucket to ask for a wait, got %v", wait)
	}
}

func TestReserveSharedPool(t *testing.T) {
	rdb := redisClient(t)
	ctx := context.Background()
	key := testKey()

	config := Config{Redis: rdb, Key: key, Rate: 5, Capacity: 2}
	first, err := New(config)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	second, err := New(config)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer func() { _ = first.Reset(ctx) }()

	if wait, err := first.Reserve(ctx); err != nil || wait != 0 {
		t.Fatalf("reserve 1: wait=%v err=%v", wait, err)
	}
	if wait, err := second.Reserve(ctx); err != nil || wait != 0 {
		t.Fatalf("reserve 2: wait=%v err=%v", wait, err)
	}

	wait, err := first.Reserve(ctx)
	if err != nil {
		t.Fatalf("reserve 3: %v", err)
	}
	if wait <= 0 || wait > 200*time.Millisecond {
		t.Errorf("expected wait in (0, 200ms], got %v", wait)
	}

	stats, err := second.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats.Admitted != 2 || stats.Delayed != 1 {
		t.Errorf("expected 2 admitted and 1 delayed, got %+v", stats)
	}
	if stats.Tokens >= 1 {
		t.Errorf("expected an empty bucket, got %v tokens", stats.Tokens)
	}
}

func TestReset(t *testing.T) {
	rdb := redisClient(t)
	ctx := context.Background()

	rb, err := New(Config{Redis: rdb, Key: testKey(), Rate: 1, Capacity: 1})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer func() { _ = rb.Reset(ctx) }()

	if wait, _ := rb.Reserve(ctx); wait != 0 {
		t.Fatalf("expected immediate admit, got %v", wait)
	}
	if wait, _ := rb.Reserve(ctx); wait == 0 {
		t.Fatal("expected empty bucket")
	}

	if err := rb.Reset(ctx); err != nil {
		t.Fatalf("Reset failed: %v", err)
	}
	if wait, err := rb.Reserve(ctx); err != nil || wait != 0 {
		t.Errorf("expected full bucket after reset: wait=%v err=%v", wait, err)
	}
}
