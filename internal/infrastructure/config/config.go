package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig
	Logging   LogConfig
	RateLimit RateLimitConfig
	Breaker   BreakerConfig
	Retry     RetryConfig
	Degrade   DegradeConfig
	Stream    StreamConfig
	Upstream  UpstreamConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port string `envconfig:"PORT" default:"8000"`
	Host string `envconfig:"HOST" default:"0.0.0.0"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" default:"info"`
	Development bool   `envconfig:"LOG_DEV" default:"false"`
}

// RateLimitConfig holds inbound per-identity rate limiting configuration.
type RateLimitConfig struct {
	Enabled           bool          `envconfig:"RATE_LIMIT_ENABLED" default:"true"`
	Algorithm         string        `envconfig:"RATE_LIMIT_ALGORITHM" default:"token_bucket"`
	RequestsPerSecond float64       `envconfig:"RATE_LIMIT_RPS" default:"20"`
	Burst             float64       `envconfig:"RATE_LIMIT_BURST" default:"40"`
	WindowSize        time.Duration `envconfig:"RATE_LIMIT_WINDOW" default:"1s"`
	SweepInterval     time.Duration `envconfig:"RATE_LIMIT_SWEEP" default:"1m"`
	IdleExpiry        time.Duration `envconfig:"RATE_LIMIT_IDLE" default:"3m"`
}

// BreakerConfig holds circuit breaker configuration shared by all
// upstream breakers.
type BreakerConfig struct {
	MaxFailures       uint32        `envconfig:"BREAKER_MAX_FAILURES" default:"5"`
	OpenTimeout       time.Duration `envconfig:"BREAKER_OPEN_TIMEOUT" default:"30s"`
	HalfOpenMaxProbes uint32        `envconfig:"BREAKER_HALF_OPEN_PROBES" default:"2"`
}

// RetryConfig holds outbound retry/backoff configuration.
type RetryConfig struct {
	MaxRetries     int           `envconfig:"RETRY_MAX" default:"3"`
	BaseWait       time.Duration `envconfig:"RETRY_BASE_WAIT" default:"500ms"`
	MaxWait        time.Duration `envconfig:"RETRY_MAX_WAIT" default:"10s"`
	RequestTimeout time.Duration `envconfig:"RETRY_REQUEST_TIMEOUT" default:"15s"`
}

// DegradeConfig holds degradation service configuration.
type DegradeConfig struct {
	CacheTTL       time.Duration `envconfig:"DEGRADE_CACHE_TTL" default:"10m"`
	FastWindow     time.Duration `envconfig:"DEGRADE_FAST_WINDOW" default:"2s"`
	RefreshTimeout time.Duration `envconfig:"DEGRADE_REFRESH_TIMEOUT" default:"30s"`
}

// StreamConfig holds streaming session configuration.
type StreamConfig struct {
	MaxSessions uint32 `envconfig:"STREAM_MAX_SESSIONS" default:"256"`
}

// UpstreamConfig maps logical source names to provider URLs and sets
// outbound pacing.
type UpstreamConfig struct {
	Sources           map[string]string `envconfig:"UPSTREAM_SOURCES" default:"news:https://news.example.com/feed.json,markets:https://markets.example.com/quotes.json"`
	RequestsPerSecond float64           `envconfig:"UPSTREAM_RPS" default:"0"`
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}

// LoadOrDefault loads configuration from environment or returns default.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port: "8000",
			Host: "0.0.0.0",
		},
		Logging: LogConfig{
			Level:       "info",
			Development: false,
		},
		RateLimit: RateLimitConfig{
			Enabled:           true,
			Algorithm:         "token_bucket",
			RequestsPerSecond: 20,
			Burst:             40,
			WindowSize:        time.Second,
			SweepInterval:     time.Minute,
			IdleExpiry:        3 * time.Minute,
		},
		Breaker: BreakerConfig{
			MaxFailures:       5,
			OpenTimeout:       30 * time.Second,
			HalfOpenMaxProbes: 2,
		},
		Retry: RetryConfig{
			MaxRetries:     3,
			BaseWait:       500 * time.Millisecond,
			MaxWait:        10 * time.Second,
			RequestTimeout: 15 * time.Second,
		},
		Degrade: DegradeConfig{
			CacheTTL:       10 * time.Minute,
			FastWindow:     2 * time.Second,
			RefreshTimeout: 30 * time.Second,
		},
		Stream: StreamConfig{
			MaxSessions: 256,
		},
		Upstream: UpstreamConfig{
			Sources: map[string]string{
				"news":    "https://news.example.com/feed.json",
				"markets": "https://markets.example.com/quotes.json",
			},
			RequestsPerSecond: 0,
		},
	}
}
