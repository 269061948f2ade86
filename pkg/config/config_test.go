package config

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/vnykmshr/fanflow/pkg/common/errors"
	"github.com/vnykmshr/fanflow/pkg/coordinator"
	"github.com/vnykmshr/fanflow/pkg/fanout"
	"github.com/vnykmshr/fanflow/pkg/ratelimit/leakybucket"
	"github.com/vnykmshr/fanflow/pkg/stats"
)

// ConfigTestSuite tests loading from defaults, files and the environment.
type ConfigTestSuite struct {
	suite.Suite
	tempDir string
	origDir string
}

func TestConfigSuite(t *testing.T) {
	suite.Run(t, new(ConfigTestSuite))
}

func (s *ConfigTestSuite) SetupTest() {
	var err error
	s.origDir, err = os.Getwd()
	s.Require().NoError(err)

	s.tempDir = s.T().TempDir()
	s.Require().NoError(os.Chdir(s.tempDir))
}

func (s *ConfigTestSuite) TearDownTest() {
	if s.origDir != "" {
		_ = os.Chdir(s.origDir)
	}
}

func (s *ConfigTestSuite) writeConfig(name, content string) string {
	path := filepath.Join(s.tempDir, name)
	s.Require().NoError(os.WriteFile(path, []byte(content), 0o600))
	return path
}

func (s *ConfigTestSuite) TestLoadDefaults() {
	cfg, err := Load("")
	s.Require().NoError(err)

	s.Equal("default", cfg.Coordinator.Name)
	s.Equal(10, cfg.Coordinator.MaxConcurrent)
	s.Equal(20.0, cfg.Coordinator.PermitsPerSecond)
	s.Equal(PacingTokenBucket, cfg.Coordinator.Pacing)
	s.Equal(time.Duration(0), cfg.Fanout.Timeout)
	s.False(cfg.Redis.Enabled)
	s.Equal(500*time.Millisecond, cfg.Redis.Timeout)
	s.Equal(24*time.Hour, cfg.Stats.TTL)
	s.Equal("info", cfg.Log.Level)

	s.Equal(Default(), cfg)
}

func (s *ConfigTestSuite) TestLoadDefaultFileName() {
	s.writeConfig("fanflow.yaml", `
coordinator:
  name: dashboard
  max_concurrent: 4
`)

	cfg, err := Load("")
	s.Require().NoError(err)
	s.Equal("dashboard", cfg.Coordinator.Name)
	s.Equal(4, cfg.Coordinator.MaxConcurrent)
	s.Equal(20.0, cfg.Coordinator.PermitsPerSecond, "unset keys keep defaults")
}

func (s *ConfigTestSuite) TestLoadFile() {
	path := s.writeConfig("custom.yaml", `
coordinator:
  max_concurrent: 5
  permits_per_second: 2.5
  burst: 5
  pacing: leaky_bucket
fanout:
  timeout: 3s
redis:
  enabled: true
  addr: redis:6379
  key: bulk:permits
stats:
  enabled: true
  backend: redis
  recent: 10
log:
  level: debug
  format: console
`)

	cfg, err := Load(path)
	s.Require().NoError(err)

	s.Equal(5, cfg.Coordinator.MaxConcurrent)
	s.Equal(2.5, cfg.Coordinator.PermitsPerSecond)
	s.Equal(5.0, cfg.Coordinator.Burst)
	s.Equal(PacingLeakyBucket, cfg.Coordinator.Pacing)
	s.Equal(3*time.Second, cfg.Fanout.Timeout)
	s.True(cfg.Redis.Enabled)
	s.Equal("redis:6379", cfg.Redis.Addr)
	s.Equal("bulk:permits", cfg.Redis.Key)
	s.Equal(BackendRedis, cfg.Stats.Backend)
	s.Equal(10, cfg.Stats.Recent)
	s.Equal("console", cfg.Log.Format)
}

func (s *ConfigTestSuite) TestEnvOverrides() {
	path := s.writeConfig("custom.yaml", `
coordinator:
  max_concurrent: 5
`)
	s.T().Setenv("FANFLOW_COORDINATOR_MAX_CONCURRENT", "3")
	s.T().Setenv("FANFLOW_FANOUT_TIMEOUT", "250ms")
	s.T().Setenv("FANFLOW_METRICS_ENABLED", "true")

	cfg, err := Load(path)
	s.Require().NoError(err)
	s.Equal(3, cfg.Coordinator.MaxConcurrent)
	s.Equal(250*time.Millisecond, cfg.Fanout.Timeout)
	s.True(cfg.Metrics.Enabled)
}

func (s *ConfigTestSuite) TestLoadRejectsInvalidValues() {
	path := s.writeConfig("bad.yaml", `
coordinator:
  max_concurrent: 0
`)

	_, err := Load(path)
	s.Require().Error(err)
	s.True(errors.IsConfiguration(err))
	s.Contains(err.Error(), "coordinator.max_concurrent")
}

func (s *ConfigTestSuite) TestLoadMissingExplicitFile() {
	_, err := Load(filepath.Join(s.tempDir, "missing.yaml"))
	s.Error(err)
}

func (s *ConfigTestSuite) TestLoadMalformedFile() {
	path := s.writeConfig("broken.yaml", "coordinator: [unterminated")
	_, err := Load(path)
	s.Error(err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
		field  string
	}{
		{"negative permits", func(c *Config) { c.Coordinator.PermitsPerSecond = -1 }, "coordinator.permits_per_second"},
		{"negative burst", func(c *Config) { c.Coordinator.Burst = -1 }, "coordinator.burst"},
		{"unknown pacing", func(c *Config) { c.Coordinator.Pacing = "gcra" }, "coordinator.pacing"},
		{"negative timeout", func(c *Config) { c.Fanout.Timeout = -time.Second }, "fanout.timeout"},
		{"negative redis timeout", func(c *Config) { c.Redis.Timeout = -time.Millisecond }, "redis.timeout"},
		{"negative stats ttl", func(c *Config) { c.Stats.TTL = -time.Hour }, "stats.ttl"},
		{"redis without addr", func(c *Config) { c.Redis.Enabled = true; c.Redis.Addr = "" }, "redis.addr"},
		{"redis without key", func(c *Config) { c.Redis.Enabled = true; c.Redis.Key = "" }, "redis.key"},
		{"redis stats without redis", func(c *Config) { c.Stats.Enabled = true; c.Stats.Backend = BackendRedis }, "stats.backend"},
		{"unknown stats backend", func(c *Config) { c.Stats.Enabled = true; c.Stats.Backend = "sqlite" }, "stats.backend"},
		{"unknown log format", func(c *Config) { c.Log.Format = "xml" }, "log.format"},
	}

	require.NoError(t, Default().Validate())

	cfg := Default()
	cfg.Fanout.Timeout, cfg.Redis.Timeout, cfg.Stats.TTL = 0, 0, 0
	require.NoError(t, cfg.Validate(), "zero durations mean disabled")

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(cfg)

			err := cfg.Validate()
			require.Error(t, err)
			assert.True(t, errors.IsValidationError(err))
			assert.Contains(t, err.Error(), tt.field)
		})
	}
}

func TestDefault(t *testing.T) {
	var cfg *Config
	require.NotPanics(t, func() { cfg = Default() })

	assert.Equal(t, 500*time.Millisecond, cfg.Redis.Timeout)
	assert.Equal(t, 24*time.Hour, cfg.Stats.TTL)
	assert.NotSame(t, cfg, Default(), "each call returns a fresh copy")
}

func TestLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := LogConfig{Level: "warn", Format: "json"}.build(&buf)

	logger.Info().Msg("hidden")
	logger.Warn().Msg("shown")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), `"message":"shown"`)

	buf.Reset()
	logger = LogConfig{Level: "bogus"}.build(&buf)
	logger.Debug().Msg("hidden")
	logger.Info().Msg("info")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "info")
}

func TestBuildCoordinator(t *testing.T) {
	cfg := Default()
	cfg.Coordinator.MaxConcurrent = 3

	c, err := cfg.Coordinator.Build(cfg.Logger())
	require.NoError(t, err)
	assert.Equal(t, "default", c.Name())
	assert.Equal(t, 3, c.Stats().Capacity)
	assert.Equal(t, 20.0, c.Stats().Tokens, "bucket starts full")

	cfg.Coordinator.Pacing = PacingLeakyBucket
	c, err = cfg.Coordinator.Build(cfg.Logger())
	require.NoError(t, err)
	assert.Equal(t, -1.0, c.Stats().Tokens, "pacer does not report a token level")
}

func TestNewCoordinatorRedisFallback(t *testing.T) {
	rdb := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer rdb.Close()

	cfg := Default()
	cfg.Redis.Enabled = true
	cfg.Redis.Timeout = 100 * time.Millisecond

	c, err := cfg.NewCoordinator(cfg.Logger(), rdb)
	require.NoError(t, err)

	ran := false
	_, err = c.Execute(context.Background(), coordinator.TaskFunc(func(context.Context) error {
		ran = true
		return nil
	}))
	require.NoError(t, err, "fallback bucket serves permits while redis is down")
	assert.True(t, ran)

	cfg.Redis.Fallback = false
	c, err = cfg.NewCoordinator(cfg.Logger(), rdb)
	require.NoError(t, err)
	_, err = c.Execute(context.Background(), coordinator.TaskFunc(func(context.Context) error { return nil }))
	assert.Error(t, err, "without a fallback a redis failure rejects admission")
}

func TestNewCoordinatorWithoutRedisClient(t *testing.T) {
	cfg := Default()
	cfg.Redis.Enabled = true

	c, err := cfg.NewCoordinator(cfg.Logger(), nil)
	require.NoError(t, err)
	assert.Equal(t, 20.0, c.Stats().Tokens, "falls back to an in-process bucket")

	cfg.Coordinator.MaxConcurrent = 0
	_, err = cfg.NewCoordinator(cfg.Logger(), nil)
	assert.True(t, errors.IsConfiguration(err))
}

func TestLocalPermits(t *testing.T) {
	cc := Default().Coordinator
	p, err := cc.localPermits()
	require.NoError(t, err)
	assert.NotNil(t, p)

	cc.Pacing = PacingLeakyBucket
	p, err = cc.localPermits()
	require.NoError(t, err)
	assert.IsType(t, &leakybucket.LeakyBucket{}, p)
}

func TestNewRecorder(t *testing.T) {
	cfg := Default()
	assert.Nil(t, cfg.NewRecorder(nil), "stats disabled")

	cfg.Stats.Enabled = true
	assert.IsType(t, &stats.MemoryRecorder{}, cfg.NewRecorder(nil))

	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"})
	defer rdb.Close()

	cfg.Stats.Backend = BackendRedis
	assert.IsType(t, &stats.RedisRecorder{}, cfg.NewRecorder(rdb))
	assert.IsType(t, &stats.MemoryRecorder{}, cfg.NewRecorder(nil), "no client, memory fallback")
}

func TestRedisClient(t *testing.T) {
	cfg := Default()
	assert.Nil(t, cfg.RedisClient())

	cfg.Redis.Enabled = true
	rdb := cfg.RedisClient()
	require.NotNil(t, rdb)
	assert.NoError(t, rdb.Close())
}

func TestFanoutOptions(t *testing.T) {
	cfg := Default()
	cfg.Stats.Enabled = true
	cfg.Fanout.Timeout = time.Second

	logger := cfg.Logger()
	coord, err := cfg.NewCoordinator(logger, nil)
	require.NoError(t, err)
	rec := cfg.NewRecorder(nil)

	orch := fanout.New[string, string](
		fanout.IssueFunc[string, string](func(_ context.Context, req string) (string, error) { return req, nil }),
		cfg.FanoutOptions("bulk", logger, coord, rec)...,
	)

	batch, err := orch.RunAll(context.Background(), []fanout.Descriptor[string]{{Request: "a"}, {Request: "b"}})
	require.NoError(t, err)
	assert.Equal(t, 2, batch.Counts.Completed)

	totals := rec.(*stats.MemoryRecorder).Totals("bulk", string(fanout.PolicyAll))
	assert.Equal(t, int64(1), totals.Batches)
	assert.Equal(t, int64(2), totals.Completed)
	assert.Equal(t, int64(2), coord.Stats().Admitted)
}
