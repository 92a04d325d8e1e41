package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Config represents <data-dir>/config.toml. Zero values fall back to
// Default(); the Telegram token may instead come from the environment.
type Config struct {
	Telegram  TelegramConfig  `toml:"telegram"`
	Poll      PollConfig      `toml:"poll"`
	Cache     CacheConfig     `toml:"cache"`
	RateLimit RateLimitConfig `toml:"rate_limit"`
	Log       LogConfig       `toml:"log"`
	Sentry    SentryConfig    `toml:"sentry"`
}

// TelegramConfig holds transport credentials and the optional admin chat
// that receives start/stop notices.
type TelegramConfig struct {
	Token       string `toml:"token"`
	AdminChatID int64  `toml:"admin_chat_id"`
}

// PollConfig tunes the update loop and its retry backoff.
type PollConfig struct {
	TimeoutSeconds int `toml:"timeout_seconds"`
	Limit          int `toml:"limit"`
	BackoffBaseMs  int `toml:"backoff_base_ms"`
	BackoffCapMs   int `toml:"backoff_cap_ms"`
	MaxAttempts    int `toml:"max_attempts"`
}

// Timeout returns the long-poll wait as a duration.
func (p PollConfig) Timeout() time.Duration {
	return time.Duration(p.TimeoutSeconds) * time.Second
}

// BackoffBase returns the first retry delay.
func (p PollConfig) BackoffBase() time.Duration {
	return time.Duration(p.BackoffBaseMs) * time.Millisecond
}

// BackoffCap returns the retry delay ceiling.
func (p PollConfig) BackoffCap() time.Duration {
	return time.Duration(p.BackoffCapMs) * time.Millisecond
}

// CacheConfig tunes the in-memory message cache eviction.
type CacheConfig struct {
	SweepIntervalSeconds int `toml:"sweep_interval_seconds"`
	RetentionSeconds     int `toml:"retention_seconds"`
	MaxPerConversation   int `toml:"max_per_conversation"`
}

// SweepInterval returns how often the eviction sweep runs.
func (c CacheConfig) SweepInterval() time.Duration {
	return time.Duration(c.SweepIntervalSeconds) * time.Second
}

// Retention returns how long cached messages are kept.
func (c CacheConfig) Retention() time.Duration {
	return time.Duration(c.RetentionSeconds) * time.Second
}

// RateLimitConfig bounds command replies per sender.
type RateLimitConfig struct {
	Messages      int `toml:"messages"`
	WindowSeconds int `toml:"window_seconds"`
}

// Window returns the sliding window size.
func (r RateLimitConfig) Window() time.Duration {
	return time.Duration(r.WindowSeconds) * time.Second
}

// LogConfig selects the zap level.
type LogConfig struct {
	Level string `toml:"level"`
}

// SentryConfig enables error forwarding when DSN is non-empty.
type SentryConfig struct {
	DSN string `toml:"dsn"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Poll: PollConfig{
			TimeoutSeconds: 50,
			Limit:          100,
			BackoffBaseMs:  1000,
			BackoffCapMs:   30000,
			MaxAttempts:    5,
		},
		Cache: CacheConfig{
			SweepIntervalSeconds: 300,
			RetentionSeconds:     3600,
			MaxPerConversation:   1000,
		},
		RateLimit: RateLimitConfig{
			Messages:      30,
			WindowSeconds: 60,
		},
		Log: LogConfig{Level: "info"},
	}
}

// Load reads config from the given path, layered over Default().
// A missing file is not an error: defaults apply.
func Load(path string) (*Config, error) {
	cfg := Default()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}
	return cfg, nil
}

// Save writes config to the given path, creating parent dirs as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(cfg)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}
