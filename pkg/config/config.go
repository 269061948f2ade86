package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/vnykmshr/fanflow/pkg/common/errors"
	"github.com/vnykmshr/fanflow/pkg/common/validation"
)

// Config stores all fanflow settings.
// The values are read by viper from a config file or FANFLOW_ environment variables.
type Config struct {
	Coordinator CoordinatorConfig `mapstructure:"coordinator"`
	Fanout      FanoutConfig      `mapstructure:"fanout"`
	Redis       RedisConfig       `mapstructure:"redis"`
	Stats       StatsConfig       `mapstructure:"stats"`
	Metrics     MetricsConfig     `mapstructure:"metrics"`
	Log         LogConfig         `mapstructure:"log"`
}

// CoordinatorConfig sizes the admission gates.
type CoordinatorConfig struct {
	Name             string  `mapstructure:"name"`
	MaxConcurrent    int     `mapstructure:"max_concurrent"`
	PermitsPerSecond float64 `mapstructure:"permits_per_second"`
	Burst            float64 `mapstructure:"burst"`  // 0 means one second of permits
	Pacing           string  `mapstructure:"pacing"` // "token_bucket" or "leaky_bucket"
}

// FanoutConfig holds orchestrator defaults.
type FanoutConfig struct {
	Timeout time.Duration `mapstructure:"timeout"` // Per-operation timeout, 0 for none
}

// RedisConfig enables the shared permit pool.
type RedisConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	Key      string        `mapstructure:"key"`      // Bucket key shared by every process
	Timeout  time.Duration `mapstructure:"timeout"`  // Per round trip
	Fallback bool          `mapstructure:"fallback"` // Use a local bucket while Redis is down
}

// StatsConfig selects where batch summaries are recorded.
type StatsConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	Backend string        `mapstructure:"backend"` // "memory" or "redis"
	Prefix  string        `mapstructure:"prefix"`
	TTL     time.Duration `mapstructure:"ttl"`
	Recent  int           `mapstructure:"recent"`
}

// MetricsConfig controls Prometheus instrumentation.
type MetricsConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Namespace string `mapstructure:"namespace"`
}

// LogConfig controls the zerolog logger.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // "json" or "console"
}

const (
	PacingTokenBucket = "token_bucket"
	PacingLeakyBucket = "leaky_bucket"

	BackendMemory = "memory"
	BackendRedis  = "redis"
)

func setDefaults(v *viper.Viper) {
	v.SetDefault("coordinator.name", "default")
	v.SetDefault("coordinator.max_concurrent", 10)
	v.SetDefault("coordinator.permits_per_second", 20.0)
	v.SetDefault("coordinator.burst", 0.0)
	v.SetDefault("coordinator.pacing", PacingTokenBucket)

	v.SetDefault("fanout.timeout", "0s")

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.key", "fanflow:permits")
	v.SetDefault("redis.timeout", "500ms")
	v.SetDefault("redis.fallback", true)

	v.SetDefault("stats.enabled", false)
	v.SetDefault("stats.backend", BackendMemory)
	v.SetDefault("stats.prefix", "fanflow:stats")
	v.SetDefault("stats.ttl", "24h")
	v.SetDefault("stats.recent", 100)

	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.namespace", "fanflow")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

// Load reads configuration from path, or from fanflow.yaml in the working
// directory when path is empty. A missing default file is not an error.
// Environment variables override file values, e.g. FANFLOW_COORDINATOR_MAX_CONCURRENT.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("fanflow")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix("FANFLOW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the configuration Load produces with no file or environment.
// It panics if the built-in defaults fail to decode.
func Default() *Config {
	v := viper.New()
	setDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		panic(fmt.Sprintf("config: decode defaults: %v", err))
	}
	return &cfg
}

// Validate reports the first invalid setting as a *errors.ValidationError.
func (c *Config) Validate() error {
	invalid := func(field string, value interface{}, reason string) *errors.ValidationError {
		return errors.NewValidationError("config", field, value, reason)
	}

	co := c.Coordinator
	if co.MaxConcurrent <= 0 {
		return invalid("coordinator.max_concurrent", co.MaxConcurrent, "must be positive")
	}
	if co.PermitsPerSecond <= 0 {
		return invalid("coordinator.permits_per_second", co.PermitsPerSecond, "must be positive")
	}
	if co.Burst < 0 {
		return invalid("coordinator.burst", co.Burst, "cannot be negative")
	}
	switch co.Pacing {
	case PacingTokenBucket, PacingLeakyBucket:
	default:
		return invalid("coordinator.pacing", co.Pacing, "unknown pacing").
			WithHint("use token_bucket or leaky_bucket")
	}

	durations := []struct {
		field string
		value time.Duration
	}{
		{"fanout.timeout", c.Fanout.Timeout},
		{"redis.timeout", c.Redis.Timeout},
		{"stats.ttl", c.Stats.TTL},
	}
	for _, d := range durations {
		if err := validation.ValidateNonNegativeDuration("config", d.field, d.value); err != nil {
			return err
		}
	}

	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			return invalid("redis.addr", c.Redis.Addr, "required when redis is enabled")
		}
		if c.Redis.Key == "" {
			return invalid("redis.key", c.Redis.Key, "required when redis is enabled")
		}
	}

	if c.Stats.Enabled {
		switch c.Stats.Backend {
		case BackendMemory:
		case BackendRedis:
			if !c.Redis.Enabled {
				return invalid("stats.backend", c.Stats.Backend, "redis backend needs redis.enabled").
					WithHint("enable redis or use the memory backend")
			}
		default:
			return invalid("stats.backend", c.Stats.Backend, "unknown backend").
				WithHint("use memory or redis")
		}
		if c.Stats.Recent < 0 {
			return invalid("stats.recent", c.Stats.Recent, "cannot be negative")
		}
	}

	switch c.Log.Format {
	case "json", "console":
	default:
		return invalid("log.format", c.Log.Format, "unknown format").
			WithHint("use json or console")
	}
	return nil
}
