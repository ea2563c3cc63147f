// Package config provides application configuration.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Port           string
	GRPCPort       string
	DBPath         string
	LogLevel       slog.Level
	AllowedOrigins []string
	HistoryLimit   int
	Model          ModelConfig
	Scheduler      SchedulerConfig
	RateLimit      RateLimitConfig
}

// ModelConfig selects and configures the language-model provider.
type ModelConfig struct {
	Provider string // "openrouter" or "gemini"
	Name     string
	APIKey   string
	BaseURL  string
	Timeout  time.Duration
}

// SchedulerConfig controls the notification loop.
type SchedulerConfig struct {
	Interval     time.Duration
	DigestHour   int
	DigestMinute int
}

// RateLimitConfig bounds chat requests per user.
type RateLimitConfig struct {
	RequestsPerWindow int
	WindowDuration    time.Duration
}

// Supported model providers.
const (
	ProviderOpenRouter = "openrouter"
	ProviderGemini     = "gemini"
)

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		Port:           getEnv("PORT", "8080"),
		GRPCPort:       getEnv("GRPC_PORT", "9090"),
		DBPath:         getEnv("DB_PATH", "./data/timem.db"),
		LogLevel:       parseLevel(getEnv("LOG_LEVEL", "info")),
		AllowedOrigins: splitList(getEnv("ALLOWED_ORIGINS", "*")),
		HistoryLimit:   getEnvInt("HISTORY_LIMIT", 10),
		Model: ModelConfig{
			Provider: strings.ToLower(getEnv("MODEL_PROVIDER", ProviderOpenRouter)),
			Name:     getEnv("MODEL_NAME", "meta-llama/llama-3.3-70b-instruct:free"),
			APIKey:   getEnv("MODEL_API_KEY", ""),
			BaseURL:  getEnv("MODEL_BASE_URL", "https://openrouter.ai/api/v1"),
			Timeout:  getEnvDuration("MODEL_TIMEOUT", 60*time.Second),
		},
		Scheduler: SchedulerConfig{
			Interval:     getEnvDuration("SCHEDULER_INTERVAL", time.Minute),
			DigestHour:   getEnvInt("MORNING_REPORT_HOUR", 9),
			DigestMinute: getEnvInt("MORNING_REPORT_MINUTE", 0),
		},
		RateLimit: RateLimitConfig{
			RequestsPerWindow: getEnvInt("RATE_LIMIT_REQUESTS", 10),
			WindowDuration:    getEnvDuration("RATE_LIMIT_WINDOW", time.Minute),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	if c.DBPath == "" {
		return fmt.Errorf("DB_PATH cannot be empty")
	}
	switch c.Model.Provider {
	case ProviderOpenRouter, ProviderGemini:
	default:
		return fmt.Errorf("MODEL_PROVIDER must be %q or %q, got %q", ProviderOpenRouter, ProviderGemini, c.Model.Provider)
	}
	if c.Model.APIKey == "" {
		return fmt.Errorf("MODEL_API_KEY cannot be empty")
	}
	if c.Model.Timeout <= 0 {
		return fmt.Errorf("MODEL_TIMEOUT must be > 0")
	}
	if c.Scheduler.Interval <= 0 || c.Scheduler.Interval > time.Minute {
		// Digest matching compares hour:minute exactly; a longer period skips minutes.
		return fmt.Errorf("SCHEDULER_INTERVAL must be in (0, 1m]")
	}
	if c.Scheduler.DigestHour < 0 || c.Scheduler.DigestHour > 23 {
		return fmt.Errorf("MORNING_REPORT_HOUR must be in [0, 23]")
	}
	if c.Scheduler.DigestMinute < 0 || c.Scheduler.DigestMinute > 59 {
		return fmt.Errorf("MORNING_REPORT_MINUTE must be in [0, 59]")
	}
	if c.HistoryLimit < 0 {
		return fmt.Errorf("HISTORY_LIMIT must be >= 0")
	}
	if c.RateLimit.RequestsPerWindow <= 0 || c.RateLimit.WindowDuration <= 0 {
		return fmt.Errorf("RATE_LIMIT_REQUESTS and RATE_LIMIT_WINDOW must be > 0")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return d
}

func parseLevel(value string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(value))); err != nil {
		return slog.LevelInfo
	}
	return level
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
