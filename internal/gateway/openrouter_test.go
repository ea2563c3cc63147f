package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ashureev/timem/internal/config"
	"github.com/ashureev/timem/internal/domain"
)

func newTestClient(url string) *OpenRouterClient {
	return NewOpenRouterClient(config.ModelConfig{
		Provider: config.ProviderOpenRouter,
		Name:     "test-model",
		APIKey:   "sk-test",
		BaseURL:  url,
		Timeout:  2 * time.Second,
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestOpenRouterCompleteSendsConversation(t *testing.T) {
	var got openRouterRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer sk-test" {
			t.Errorf("missing auth header")
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode body: %v", err)
		}
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"  {\"reply\":\"ok\"}  "}}]}`))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	text, err := c.Complete(context.Background(), Request{
		System: "sys",
		History: []Turn{
			{Role: domain.RoleUser, Content: "hi"},
			{Role: domain.RoleAssistant, Content: "hello"},
		},
		Message: "buy milk",
		JSON:    true,
	})
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if text != `{"reply":"ok"}` {
		t.Errorf("unexpected text %q", text)
	}

	if got.Model != "test-model" {
		t.Errorf("expected model test-model, got %s", got.Model)
	}
	wantRoles := []string{"system", "user", "assistant", "user"}
	if len(got.Messages) != len(wantRoles) {
		t.Fatalf("expected %d messages, got %d", len(wantRoles), len(got.Messages))
	}
	for i, role := range wantRoles {
		if got.Messages[i].Role != role {
			t.Errorf("message %d: expected role %s, got %s", i, role, got.Messages[i].Role)
		}
	}
	if got.Messages[3].Content != "buy milk" {
		t.Errorf("last message should be the user message, got %q", got.Messages[3].Content)
	}
	if got.ResponseFormat == nil || got.ResponseFormat.Type != "json_object" {
		t.Errorf("expected json_object response format")
	}
}

func TestOpenRouterFailuresAreUnavailable(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"server error", func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "boom", http.StatusBadGateway)
		}},
		{"unauthorized", func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "no", http.StatusUnauthorized)
		}},
		{"empty choices", func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`{"choices":[]}`))
		}},
		{"blank content", func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"   "}}]}`))
		}},
		{"api error body", func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`{"error":{"message":"quota"}}`))
		}},
		{"garbage", func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`not json`))
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			_, err := newTestClient(srv.URL).Complete(context.Background(), Request{Message: "x"})
			if !errors.Is(err, ErrModelUnavailable) {
				t.Fatalf("expected ErrModelUnavailable, got %v", err)
			}
		})
	}
}

func TestOpenRouterTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := newTestClient(srv.URL).Complete(ctx, Request{Message: "x"})
	if !errors.Is(err, ErrModelUnavailable) {
		t.Fatalf("expected ErrModelUnavailable on timeout, got %v", err)
	}
}

func TestNewRejectsUnknownProvider(t *testing.T) {
	_, err := New(context.Background(), config.ModelConfig{Provider: "llama"}, nil)
	if err == nil {
		t.Fatal("expected error for unknown provider")
	}
}
