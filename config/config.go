// Package config loads broker-rpc settings from YAML and the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"broker-rpc/codec"

	"github.com/spf13/viper"
)

// Config is the root configuration shared by servers and clients.
type Config struct {
	// Module is the name this process serves under; queues are module.object.
	Module string `mapstructure:"module"`
	// Workers is the number of requests executed concurrently.
	Workers int `mapstructure:"workers"`
	// Codec is msgpack, cbor or json. Every process of a deployment must agree.
	Codec string `mapstructure:"codec"`

	Redis     RedisConfig     `mapstructure:"redis"`
	Client    ClientConfig    `mapstructure:"client"`
	Etcd      EtcdConfig      `mapstructure:"etcd"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	// HandlerTimeout is the deadline put on each dispatch context; 0 disables it.
	HandlerTimeout time.Duration `mapstructure:"handler_timeout"`
	Log            LogConfig     `mapstructure:"log"`
}

type RedisConfig struct {
	URL      string `mapstructure:"url"`
	PoolSize int    `mapstructure:"pool_size"`
}

type ClientConfig struct {
	Timeout time.Duration `mapstructure:"timeout"`
	// Balancer picks among modules found through etcd: round_robin,
	// weighted_random or consistent_hash.
	Balancer string `mapstructure:"balancer"`
}

// EtcdConfig enables discovery when Endpoints is non-empty.
type EtcdConfig struct {
	Endpoints []string `mapstructure:"endpoints"`
	// TTL of the registration lease, in seconds.
	TTL int64 `mapstructure:"ttl"`
}

// RateLimitConfig limits dispatches per second; RPS 0 disables it.
type RateLimitConfig struct {
	RPS   float64 `mapstructure:"rps"`
	Burst int     `mapstructure:"burst"`
}

// LogConfig defines logger settings.
type LogConfig struct {
	// Level: debug, info, warn, error
	Level string `mapstructure:"level"`
	// Format: console or json
	Format string `mapstructure:"format"`
	// Outputs: stdout, stderr, or file paths
	Outputs     []string       `mapstructure:"outputs"`
	Rotation    RotationConfig `mapstructure:"rotation"`
	Development bool           `mapstructure:"development"`
}

// RotationConfig controls log file rotation for file outputs.
type RotationConfig struct {
	Enable     bool `mapstructure:"enable"`
	MaxSizeMB  int  `mapstructure:"max_size_mb"`
	MaxBackups int  `mapstructure:"max_backups"`
	MaxAgeDays int  `mapstructure:"max_age_days"`
	Compress   bool `mapstructure:"compress"`
}

func Default() *Config {
	return &Config{
		Module:  "server",
		Workers: 8,
		Codec:   "msgpack",
		Redis: RedisConfig{
			URL:      "redis://localhost:6379/0",
			PoolSize: 16,
		},
		Client: ClientConfig{
			Timeout:  30 * time.Second,
			Balancer: "round_robin",
		},
		Etcd: EtcdConfig{TTL: 10},
		RateLimit: RateLimitConfig{
			RPS:   0,
			Burst: 1,
		},
		Log: LogConfig{
			Level:   "info",
			Format:  "console",
			Outputs: []string{"stdout"},
			Rotation: RotationConfig{
				MaxSizeMB:  50,
				MaxBackups: 3,
				MaxAgeDays: 28,
				Compress:   true,
			},
		},
	}
}

// Load reads the file at path (if non-empty, or BROKERRPC_CONFIG) on top of
// the defaults. Environment variables use the prefix BROKERRPC with `.`
// replaced by `_`, e.g. BROKERRPC_REDIS_URL.
func Load(path string) (*Config, error) {
	cfg := Default()

	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix("BROKERRPC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	// seed defaults so env-only configs work
	v.SetDefault("module", cfg.Module)
	v.SetDefault("workers", cfg.Workers)
	v.SetDefault("codec", cfg.Codec)
	v.SetDefault("redis.url", cfg.Redis.URL)
	v.SetDefault("redis.pool_size", cfg.Redis.PoolSize)
	v.SetDefault("client.timeout", cfg.Client.Timeout)
	v.SetDefault("client.balancer", cfg.Client.Balancer)
	v.SetDefault("etcd.endpoints", cfg.Etcd.Endpoints)
	v.SetDefault("etcd.ttl", cfg.Etcd.TTL)
	v.SetDefault("rate_limit.rps", cfg.RateLimit.RPS)
	v.SetDefault("rate_limit.burst", cfg.RateLimit.Burst)
	v.SetDefault("handler_timeout", cfg.HandlerTimeout)
	v.SetDefault("log.level", cfg.Log.Level)
	v.SetDefault("log.format", cfg.Log.Format)
	v.SetDefault("log.outputs", cfg.Log.Outputs)
	v.SetDefault("log.development", cfg.Log.Development)
	v.SetDefault("log.rotation.enable", cfg.Log.Rotation.Enable)
	v.SetDefault("log.rotation.max_size_mb", cfg.Log.Rotation.MaxSizeMB)
	v.SetDefault("log.rotation.max_backups", cfg.Log.Rotation.MaxBackups)
	v.SetDefault("log.rotation.max_age_days", cfg.Log.Rotation.MaxAgeDays)
	v.SetDefault("log.rotation.compress", cfg.Log.Rotation.Compress)

	if path == "" {
		path = os.Getenv("BROKERRPC_CONFIG")
	}
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	// comma-separated env lists arrive as one element
	if len(cfg.Etcd.Endpoints) == 1 && strings.Contains(cfg.Etcd.Endpoints[0], ",") {
		cfg.Etcd.Endpoints = strings.Split(cfg.Etcd.Endpoints[0], ",")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	switch strings.ToLower(strings.TrimSpace(c.Log.Level)) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("invalid log.level: %q", c.Log.Level)
	}
	if _, err := codec.ParseCodecType(c.Codec); err != nil {
		return fmt.Errorf("invalid codec: %w", err)
	}
	if strings.TrimSpace(c.Module) == "" {
		return errors.New("module must not be empty")
	}
	if c.Workers < 1 {
		return fmt.Errorf("workers must be at least 1, got %d", c.Workers)
	}
	if c.Client.Timeout <= 0 {
		return fmt.Errorf("client.timeout must be positive, got %s", c.Client.Timeout)
	}
	if c.HandlerTimeout < 0 {
		return fmt.Errorf("handler_timeout must not be negative, got %s", c.HandlerTimeout)
	}
	if c.RateLimit.RPS < 0 {
		return fmt.Errorf("rate_limit.rps must not be negative, got %v", c.RateLimit.RPS)
	}

	if c.Log.Format == "" {
		c.Log.Format = "console"
	}
	if len(c.Log.Outputs) == 0 {
		c.Log.Outputs = []string{"stdout"}
	}
	if c.Redis.PoolSize < 1 {
		c.Redis.PoolSize = c.Workers + 1
	}
	if c.RateLimit.Burst < 1 {
		c.RateLimit.Burst = 1
	}
	return nil
}

// CodecType returns the configured codec. Call after Validate.
func (c *Config) CodecType() codec.CodecType {
	t, _ := codec.ParseCodecType(c.Codec)
	return t
}
