package config

import (
	"log/slog"
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("MODEL_API_KEY", "sk-test")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Port != "8080" || cfg.DBPath != "./data/timem.db" {
		t.Errorf("unexpected defaults: port=%s db=%s", cfg.Port, cfg.DBPath)
	}
	if cfg.Model.Provider != ProviderOpenRouter {
		t.Errorf("expected openrouter provider, got %s", cfg.Model.Provider)
	}
	if cfg.Scheduler.Interval != time.Minute || cfg.Scheduler.DigestHour != 9 || cfg.Scheduler.DigestMinute != 0 {
		t.Errorf("unexpected scheduler defaults: %+v", cfg.Scheduler)
	}
	if cfg.HistoryLimit != 10 {
		t.Errorf("expected history limit 10, got %d", cfg.HistoryLimit)
	}
	if cfg.LogLevel != slog.LevelInfo {
		t.Errorf("expected info level, got %v", cfg.LogLevel)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("MODEL_API_KEY", "key")
	t.Setenv("MODEL_PROVIDER", "Gemini")
	t.Setenv("MORNING_REPORT_HOUR", "7")
	t.Setenv("MORNING_REPORT_MINUTE", "30")
	t.Setenv("SCHEDULER_INTERVAL", "30s")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example, https://b.example")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Model.Provider != ProviderGemini {
		t.Errorf("expected gemini, got %s", cfg.Model.Provider)
	}
	if cfg.Scheduler.DigestHour != 7 || cfg.Scheduler.DigestMinute != 30 || cfg.Scheduler.Interval != 30*time.Second {
		t.Errorf("unexpected scheduler config: %+v", cfg.Scheduler)
	}
	if cfg.LogLevel != slog.LevelDebug {
		t.Errorf("expected debug level, got %v", cfg.LogLevel)
	}
	if len(cfg.AllowedOrigins) != 2 || cfg.AllowedOrigins[1] != "https://b.example" {
		t.Errorf("unexpected origins: %v", cfg.AllowedOrigins)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"missing key", map[string]string{"MODEL_API_KEY": ""}, "MODEL_API_KEY"},
		{"bad provider", map[string]string{"MODEL_API_KEY": "k", "MODEL_PROVIDER": "llama"}, "MODEL_PROVIDER"},
		{"bad hour", map[string]string{"MODEL_API_KEY": "k", "MORNING_REPORT_HOUR": "24"}, "MORNING_REPORT_HOUR"},
		{"slow ticker", map[string]string{"MODEL_API_KEY": "k", "SCHEDULER_INTERVAL": "5m"}, "SCHEDULER_INTERVAL"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error mentioning %s, got %v", tt.want, err)
			}
		})
	}
}

func TestGetEnvIntFallback(t *testing.T) {
	t.Setenv("SOME_INT", "not-a-number")
	if got := getEnvInt("SOME_INT", 5); got != 5 {
		t.Fatalf("expected fallback 5, got %d", got)
	}
}
