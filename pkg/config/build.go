package config

import (
	"io"
	"os"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/vnykmshr/fanflow/pkg/coordinator"
	"github.com/vnykmshr/fanflow/pkg/fanout"
	"github.com/vnykmshr/fanflow/pkg/metrics"
	"github.com/vnykmshr/fanflow/pkg/ratelimit/bucket"
	"github.com/vnykmshr/fanflow/pkg/ratelimit/distributed"
	"github.com/vnykmshr/fanflow/pkg/ratelimit/leakybucket"
	"github.com/vnykmshr/fanflow/pkg/stats"
)

// Logger builds a logger writing to stderr.
func (c *Config) Logger() zerolog.Logger {
	return c.Log.build(os.Stderr)
}

func (l LogConfig) build(w io.Writer) zerolog.Logger {
	level, err := zerolog.ParseLevel(l.Level)
	if err != nil || l.Level == "" {
		level = zerolog.InfoLevel
	}
	if l.Format == "console" {
		w = zerolog.ConsoleWriter{Out: w}
	}
	return zerolog.New(w).Level(level).With().Timestamp().Logger()
}

// MetricsConfig returns the metrics settings in the form components take.
func (c *Config) MetricsConfig() metrics.Config {
	mc := metrics.DefaultConfig()
	mc.Enabled = c.Metrics.Enabled
	if c.Metrics.Namespace != "" {
		mc.Namespace = c.Metrics.Namespace
	}
	return mc
}

// RedisClient connects to the configured Redis, or returns nil when Redis
// is disabled. The caller closes the client.
func (c *Config) RedisClient() redis.UniversalClient {
	if !c.Redis.Enabled {
		return nil
	}
	return redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:    []string{c.Redis.Addr},
		Password: c.Redis.Password,
		DB:       c.Redis.DB,
	})
}

// Build constructs an in-process coordinator from these settings.
func (c CoordinatorConfig) Build(logger zerolog.Logger) (*coordinator.Coordinator, error) {
	return c.build(logger, nil, metrics.Config{})
}

func (c CoordinatorConfig) build(logger zerolog.Logger, permits coordinator.Permits, mc metrics.Config) (*coordinator.Coordinator, error) {
	if permits == nil && c.Pacing == PacingLeakyBucket {
		lb, err := leakybucket.New(c.PermitsPerSecond)
		if err != nil {
			return nil, err
		}
		permits = lb
	}
	return coordinator.NewWithConfig(coordinator.Config{
		Name:             c.Name,
		MaxConcurrent:    c.MaxConcurrent,
		PermitsPerSecond: c.PermitsPerSecond,
		Burst:            c.Burst,
		Permits:          permits,
		Logger:           logger,
		Metrics:          mc,
	})
}

// NewCoordinator constructs the coordinator described by c. When Redis is
// enabled and rdb is not nil, permits come from a Redis bucket shared by
// every process using the same key, with an optional local fallback.
func (c *Config) NewCoordinator(logger zerolog.Logger, rdb redis.UniversalClient) (*coordinator.Coordinator, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	if !c.Redis.Enabled || rdb == nil {
		return c.Coordinator.build(logger, nil, c.MetricsConfig())
	}

	var fallback distributed.LocalPermits
	if c.Redis.Fallback {
		local, err := c.Coordinator.localPermits()
		if err != nil {
			return nil, err
		}
		fallback = local
	}

	shared, err := distributed.New(distributed.Config{
		Redis:        rdb,
		Key:          c.Redis.Key,
		Rate:         c.Coordinator.PermitsPerSecond,
		Capacity:     c.Coordinator.Burst,
		Fallback:     fallback,
		RedisTimeout: c.Redis.Timeout,
	})
	if err != nil {
		return nil, err
	}
	return c.Coordinator.build(logger, shared, c.MetricsConfig())
}

func (c CoordinatorConfig) localPermits() (coordinator.Permits, error) {
	if c.Pacing == PacingLeakyBucket {
		return leakybucket.New(c.PermitsPerSecond)
	}
	return bucket.NewWithConfig(bucket.Config{
		Rate:          c.PermitsPerSecond,
		Capacity:      c.Burst,
		InitialTokens: -1,
	})
}

// NewRecorder returns the configured batch recorder, or nil when stats are
// disabled.
func (c *Config) NewRecorder(rdb redis.UniversalClient) fanout.Recorder {
	if !c.Stats.Enabled {
		return nil
	}
	if c.Stats.Backend == BackendRedis && rdb != nil {
		return stats.NewRedisRecorder(rdb,
			stats.WithPrefix(c.Stats.Prefix),
			stats.WithTTL(c.Stats.TTL),
			stats.WithRecent(c.Stats.Recent),
		)
	}
	return stats.NewMemoryRecorder(stats.WithKeepRecent(c.Stats.Recent))
}

// FanoutOptions returns orchestrator options wired to coord and rec.
// Either may be nil.
func (c *Config) FanoutOptions(name string, logger zerolog.Logger, coord *coordinator.Coordinator, rec fanout.Recorder) []fanout.Option {
	opts := []fanout.Option{
		fanout.WithName(name),
		fanout.WithLogger(logger),
		fanout.WithTimeout(c.Fanout.Timeout),
		fanout.WithMetrics(c.MetricsConfig(), name),
	}
	if coord != nil {
		opts = append(opts, fanout.WithCoordinator(coord))
	}
	if rec != nil {
		opts = append(opts, fanout.WithRecorder(rec))
	}
	return opts
}
