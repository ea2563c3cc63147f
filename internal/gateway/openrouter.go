package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/ashureev/timem/internal/config"
)

const maxResponseBytes = 4 * 1024 * 1024

// OpenRouterClient talks to an OpenAI-compatible chat completions endpoint.
type OpenRouterClient struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
	logger     *slog.Logger
}

type openRouterMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openRouterResponseFormat struct {
	Type string `json:"type"`
}

type openRouterRequest struct {
	Model          string                    `json:"model"`
	Messages       []openRouterMessage       `json:"messages"`
	ResponseFormat *openRouterResponseFormat `json:"response_format,omitempty"`
}

type openRouterResponse struct {
	Choices []struct {
		Message openRouterMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// NewOpenRouterClient creates a client from the model configuration.
func NewOpenRouterClient(cfg config.ModelConfig, logger *slog.Logger) *OpenRouterClient {
	return &OpenRouterClient{
		apiKey:     cfg.APIKey,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		model:      cfg.Name,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logger,
	}
}

// Complete sends one chat completion request.
func (c *OpenRouterClient) Complete(ctx context.Context, req Request) (string, error) {
	start := time.Now()

	messages := make([]openRouterMessage, 0, len(req.History)+2)
	if req.System != "" {
		messages = append(messages, openRouterMessage{Role: "system", Content: req.System})
	}
	for _, turn := range req.History {
		messages = append(messages, openRouterMessage{Role: string(turn.Role), Content: turn.Content})
	}
	messages = append(messages, openRouterMessage{Role: "user", Content: req.Message})

	body := openRouterRequest{Model: c.model, Messages: messages}
	if req.JSON {
		body.ResponseFormat = &openRouterResponseFormat{Type: "json_object"}
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return "", unavailable("marshal request: %v", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return "", unavailable("create request: %v", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("X-Title", "timem")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", unavailable("request failed: %v", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", unavailable("read response: %v", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", unavailable("status %d: %s", resp.StatusCode, truncate(string(raw), 256))
	}

	var decoded openRouterResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return "", unavailable("decode response: %v", err)
	}
	if decoded.Error != nil {
		return "", unavailable("api error: %s", decoded.Error.Message)
	}
	if len(decoded.Choices) == 0 {
		return "", unavailable("no choices returned")
	}

	text := strings.TrimSpace(decoded.Choices[0].Message.Content)
	if text == "" {
		return "", unavailable("empty completion")
	}

	c.logger.Debug("Model completion finished",
		"provider", "openrouter",
		"model", c.model,
		"duration", time.Since(start),
		"response_len", len(text),
	)
	return text, nil
}

// Close is a no-op; the HTTP client holds no dedicated resources.
func (c *OpenRouterClient) Close() error { return nil }

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

var _ Gateway = (*OpenRouterClient)(nil)
