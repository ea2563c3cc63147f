package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/ashureev/timem/internal/config"
	"github.com/ashureev/timem/internal/domain"
)

// GeminiClient calls the Gemini API through the genai SDK.
type GeminiClient struct {
	client  *genai.Client
	model   string
	timeout time.Duration
	logger  *slog.Logger
}

// NewGeminiClient creates a Gemini-backed gateway.
func NewGeminiClient(ctx context.Context, cfg config.ModelConfig, logger *slog.Logger) (*GeminiClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}
	model := cfg.Name
	if model == "" || strings.Contains(model, "/") {
		model = "gemini-2.5-flash"
	}
	return &GeminiClient{client: client, model: model, timeout: cfg.Timeout, logger: logger}, nil
}

// Complete sends one GenerateContent call.
func (g *GeminiClient) Complete(ctx context.Context, req Request) (string, error) {
	if _, ok := ctx.Deadline(); !ok && g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}
	start := time.Now()

	contents := make([]*genai.Content, 0, len(req.History)+1)
	for _, turn := range req.History {
		contents = append(contents, genai.NewContentFromText(turn.Content, geminiRole(turn.Role)))
	}
	contents = append(contents, genai.NewContentFromText(req.Message, genai.RoleUser))

	genCfg := &genai.GenerateContentConfig{}
	if req.System != "" {
		genCfg.SystemInstruction = genai.NewContentFromText(req.System, genai.RoleUser)
	}
	if req.JSON {
		genCfg.ResponseMIMEType = "application/json"
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, genCfg)
	if err != nil {
		return "", unavailable("generate content: %v", err)
	}
	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", unavailable("empty completion")
	}

	g.logger.Debug("Model completion finished",
		"provider", "gemini",
		"model", g.model,
		"duration", time.Since(start),
		"response_len", len(text),
	)
	return text, nil
}

// Close releases nothing; the genai client has no explicit shutdown.
func (g *GeminiClient) Close() error { return nil }

func geminiRole(r domain.Role) genai.Role {
	if r == domain.RoleAssistant {
		return genai.RoleModel
	}
	return genai.RoleUser
}

var _ Gateway = (*GeminiClient)(nil)
