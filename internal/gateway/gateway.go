// Package gateway wraps a single language-model text completion.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ashureev/timem/internal/config"
	"github.com/ashureev/timem/internal/domain"
)

// ErrModelUnavailable is returned for every failure to obtain a completion:
// network errors, timeouts, auth rejections, non-2xx responses and empty output.
var ErrModelUnavailable = errors.New("model unavailable")

// Turn is one prior conversation message sent as context.
type Turn struct {
	Role    domain.Role
	Content string
}

// Request describes a single completion.
type Request struct {
	System  string
	History []Turn
	Message string
	// JSON asks the provider for a JSON object response where supported.
	JSON bool
}

// Gateway returns the raw completion text for a request.
// Implementations never retry.
type Gateway interface {
	Complete(ctx context.Context, req Request) (string, error)
	Close() error
}

// New creates the gateway selected by cfg.Provider.
func New(ctx context.Context, cfg config.ModelConfig, logger *slog.Logger) (Gateway, error) {
	if logger == nil {
		logger = slog.Default()
	}
	switch cfg.Provider {
	case config.ProviderOpenRouter:
		return NewOpenRouterClient(cfg, logger), nil
	case config.ProviderGemini:
		return NewGeminiClient(ctx, cfg, logger)
	default:
		return nil, fmt.Errorf("unknown model provider %q", cfg.Provider)
	}
}

func unavailable(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrModelUnavailable, fmt.Sprintf(format, args...))
}
