// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Durations are integers suffixed with _ms so YAML and env layers stay flat.
// - New builds a Config with defaults; Load layers .env, YAML and env on top.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Store backends.
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogFormat selects the log handler: text, json or tint.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":9080".
	Addr string `koanf:"addr"`

	// CORSOrigins lists allowed browser origins for the HTTP API.
	CORSOrigins []string `koanf:"cors_origins"`

	// StoreBackend selects the shared store: memory or redis.
	StoreBackend string `koanf:"store_backend"`

	RedisAddr     string `koanf:"redis_addr"`
	RedisPassword string `koanf:"redis_password"`
	RedisDB       int    `koanf:"redis_db"`
	// RedisPrefix namespaces every key written by this deployment.
	RedisPrefix string `koanf:"redis_prefix"`
	// RedisLeaseSweepIntervalMS is how often expired presence leases are
	// turned into their offline record.
	RedisLeaseSweepIntervalMS int `koanf:"redis_lease_sweep_interval_ms"`

	// MatchmakingPollIntervalMS is how often a searching client calls tryMatchmaking.
	MatchmakingPollIntervalMS int `koanf:"matchmaking_poll_interval_ms"`

	// MatchmakingSearchLimit caps the candidates considered per attempt.
	MatchmakingSearchLimit int `koanf:"matchmaking_search_limit"`

	// PvpDifficulty is the difficulty used for every PvP puzzle.
	PvpDifficulty string `koanf:"pvp_difficulty"`

	HeartbeatIntervalMS int `koanf:"heartbeat_interval_ms"`
	PresenceTTLMS       int `koanf:"presence_ttl_ms"`
	ProgressIntervalMS  int `koanf:"progress_interval_ms"`
	LiveTimeLimitMS     int `koanf:"live_time_limit_ms"`

	// OrphanTTLMS is the age after which an unreferenced WAITING match is swept.
	OrphanTTLMS             int `koanf:"orphan_ttl_ms"`
	OrphanSweepIntervalMS   int `koanf:"orphan_sweep_interval_ms"`
	MaxHints                int `koanf:"max_hints"`
	MoveDedupeSize          int `koanf:"move_dedupe_size"`
	OutboxSize              int `koanf:"outbox_size"`
	OutboxOpTimeoutMS       int `koanf:"outbox_op_timeout_ms"`
	TeardownDrainTimeoutMS  int `koanf:"teardown_drain_timeout_ms"`

	// MetricsEnabled turns Prometheus recording on or off.
	MetricsEnabled bool `koanf:"metrics_enabled"`
	// MetricsRefreshIntervalMS is how often system gauges are sampled.
	MetricsRefreshIntervalMS int `koanf:"metrics_refresh_interval_ms"`

	// PuzzlesFile optionally points at a JSON array of puzzles; empty uses the bundled set.
	PuzzlesFile string `koanf:"puzzles_file"`
}

// New creates a Config populated with defaults.
func New() *Config {
	return &Config{
		LogLevel:                  "info",
		LogFormat:                 "text",
		Addr:                      ":9080",
		CORSOrigins:               []string{"*"},
		StoreBackend:              BackendMemory,
		RedisAddr:                 "localhost:6379",
		RedisPrefix:               "gridduel:",
		RedisLeaseSweepIntervalMS: 1000,
		MatchmakingPollIntervalMS: 2000,
		MatchmakingSearchLimit:    20,
		PvpDifficulty:             "medium",
		HeartbeatIntervalMS:       5000,
		PresenceTTLMS:             15000,
		ProgressIntervalMS:        3000,
		LiveTimeLimitMS:           600_000,
		OrphanTTLMS:               300_000,
		OrphanSweepIntervalMS:     60_000,
		MaxHints:                  3,
		MoveDedupeSize:            100_000,
		OutboxSize:                1024,
		OutboxOpTimeoutMS:         5000,
		TeardownDrainTimeoutMS:    3000,
		MetricsEnabled:            true,
		MetricsRefreshIntervalMS:  10_000,
	}
}

// Validate reports the first invalid field wrapped in ErrInvalidConfig.
func (c *Config) Validate() error {
	switch {
	case strings.TrimSpace(c.Addr) == "":
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	case c.StoreBackend != BackendMemory && c.StoreBackend != BackendRedis:
		return fmt.Errorf("%w: store_backend %q", ErrInvalidConfig, c.StoreBackend)
	case c.StoreBackend == BackendRedis && c.RedisAddr == "":
		return fmt.Errorf("%w: redis_addr required for redis backend", ErrInvalidConfig)
	case c.MatchmakingSearchLimit <= 0:
		return fmt.Errorf("%w: matchmaking_search_limit must be positive", ErrInvalidConfig)
	case c.HeartbeatIntervalMS <= 0 || c.PresenceTTLMS <= c.HeartbeatIntervalMS:
		return fmt.Errorf("%w: presence_ttl_ms must exceed heartbeat_interval_ms", ErrInvalidConfig)
	case c.ProgressIntervalMS <= 0 || c.LiveTimeLimitMS <= 0 || c.MatchmakingPollIntervalMS <= 0:
		return fmt.Errorf("%w: intervals must be positive", ErrInvalidConfig)
	case c.StoreBackend == BackendRedis && c.RedisLeaseSweepIntervalMS <= 0:
		return fmt.Errorf("%w: redis_lease_sweep_interval_ms must be positive", ErrInvalidConfig)
	case c.OrphanTTLMS <= 0 || c.OrphanSweepIntervalMS <= 0:
		return fmt.Errorf("%w: orphan settings must be positive", ErrInvalidConfig)
	case c.MaxHints < 0:
		return fmt.Errorf("%w: max_hints must not be negative", ErrInvalidConfig)
	case c.MoveDedupeSize <= 0 || c.OutboxSize <= 0:
		return fmt.Errorf("%w: move_dedupe_size and outbox_size must be positive", ErrInvalidConfig)
	case c.MetricsRefreshIntervalMS <= 0:
		return fmt.Errorf("%w: metrics_refresh_interval_ms must be positive", ErrInvalidConfig)
	}
	switch c.PvpDifficulty {
	case "easy", "medium", "hard", "expert":
	default:
		return fmt.Errorf("%w: pvp_difficulty %q", ErrInvalidConfig, c.PvpDifficulty)
	}
	return nil
}

func ms(v int) time.Duration { return time.Duration(v) * time.Millisecond }

func (c *Config) MatchmakingPollInterval() time.Duration { return ms(c.MatchmakingPollIntervalMS) }
func (c *Config) HeartbeatInterval() time.Duration       { return ms(c.HeartbeatIntervalMS) }
func (c *Config) PresenceTTL() time.Duration             { return ms(c.PresenceTTLMS) }
func (c *Config) ProgressInterval() time.Duration        { return ms(c.ProgressIntervalMS) }
func (c *Config) LiveTimeLimit() time.Duration           { return ms(c.LiveTimeLimitMS) }
func (c *Config) OrphanTTL() time.Duration               { return ms(c.OrphanTTLMS) }
func (c *Config) OrphanSweepInterval() time.Duration     { return ms(c.OrphanSweepIntervalMS) }
func (c *Config) OutboxOpTimeout() time.Duration         { return ms(c.OutboxOpTimeoutMS) }
func (c *Config) TeardownDrainTimeout() time.Duration    { return ms(c.TeardownDrainTimeoutMS) }
func (c *Config) RedisLeaseSweepInterval() time.Duration { return ms(c.RedisLeaseSweepIntervalMS) }
func (c *Config) MetricsRefreshInterval() time.Duration  { return ms(c.MetricsRefreshIntervalMS) }
