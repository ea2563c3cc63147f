// Package chat runs a single natural-language chat turn against the task list.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ashureev/timem/internal/domain"
	"github.com/ashureev/timem/internal/gateway"
	"github.com/ashureev/timem/internal/intent"
	"github.com/ashureev/timem/internal/prompt"
	"github.com/ashureev/timem/internal/reconcile"
	"github.com/ashureev/timem/internal/store"
	"github.com/ashureev/timem/internal/transport"
)

// ErrNotRegistered is returned for chat identities without a profile.
var ErrNotRegistered = errors.New("user not registered")

// FailureReply is shown to the user when the model cannot be reached.
const FailureReply = "Sorry, I couldn't process that right now. Please try again in a moment. 🙏"

// Config tunes a Service.
type Config struct {
	HistoryLimit int
	ModelTimeout time.Duration
}

// Service handles chat turns.
type Service struct {
	repo     store.Repository
	model    gateway.Gateway
	prompts  *prompt.Registry
	engine   *reconcile.Engine
	notifier transport.Notifier
	cfg      Config
	logger   *slog.Logger
	now      func() time.Time
}

// NewService wires a chat service. notifier may be nil.
func NewService(repo store.Repository, model gateway.Gateway, prompts *prompt.Registry, notifier transport.Notifier, cfg Config, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:     repo,
		model:    model,
		prompts:  prompts,
		engine:   reconcile.NewEngine(repo, logger),
		notifier: notifier,
		cfg:      cfg,
		logger:   logger,
		now:      time.Now,
	}
}

// HandleMessage turns one user message into task mutations and a reply.
// On model failure it returns FailureReply together with the wrapped error.
func (s *Service) HandleMessage(ctx context.Context, chatID, text string) (string, error) {
	log := s.logger.With("user_id", chatID)

	user, err := s.repo.GetUser(ctx, chatID)
	if err != nil {
		return "", fmt.Errorf("get user: %w", err)
	}
	if user == nil {
		return "", ErrNotRegistered
	}

	if s.notifier != nil {
		if err := s.notifier.SendTypingIndicator(ctx, chatID); err != nil {
			log.Debug("Typing indicator not delivered", "error", err)
		}
	}

	tasks, err := s.repo.GetTasks(ctx, chatID)
	if err != nil {
		return "", fmt.Errorf("get tasks: %w", err)
	}
	history, err := s.repo.GetRecentHistory(ctx, chatID, s.cfg.HistoryLimit)
	if err != nil {
		return "", fmt.Errorf("get history: %w", err)
	}

	system, err := s.prompts.Render(prompt.Extract, prompt.ExtractData{
		Now:   domain.FormatDeadline(user.LocalTime(s.now())),
		Tasks: taskLines(tasks),
	})
	if err != nil {
		return "", err
	}

	callCtx := ctx
	if s.cfg.ModelTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, s.cfg.ModelTimeout)
		defer cancel()
	}

	raw, err := s.model.Complete(callCtx, gateway.Request{
		System:  system,
		History: turns(history),
		Message: text,
		JSON:    true,
	})
	if err != nil {
		log.Error("Model call failed", "error", err)
		return FailureReply, fmt.Errorf("chat turn: %w", err)
	}

	set := intent.Parse(raw)
	out := s.engine.Apply(ctx, chatID, set)
	if out.Err != nil {
		log.Warn("Some actions were not applied", "error", out.Err)
	}
	log.Info("Chat turn applied",
		"added", out.Added,
		"deleted", out.Deleted,
		"updated", out.Updated,
		"profile_updated", out.ProfileUpdated,
	)

	if err := s.repo.AppendHistory(ctx, chatID, domain.RoleUser, text); err != nil {
		log.Warn("Failed to store user turn", "error", err)
	} else if err := s.repo.AppendHistory(ctx, chatID, domain.RoleAssistant, out.Reply); err != nil {
		log.Warn("Failed to store assistant turn", "error", err)
	}

	return out.Reply, nil
}

func taskLines(tasks []*domain.Task) []prompt.TaskLine {
	lines := make([]prompt.TaskLine, 0, len(tasks))
	for _, t := range tasks {
		lines = append(lines, prompt.TaskLine{
			Name:        t.Name,
			Description: t.Description,
			Deadline:    t.Deadline.Format("2006-01-02 15:04"),
			Time:        t.Deadline.Format("15:04"),
		})
	}
	return lines
}

func turns(history []domain.ConversationTurn) []gateway.Turn {
	out := make([]gateway.Turn, 0, len(history))
	for _, h := range history {
		if strings.TrimSpace(h.Content) == "" {
			continue
		}
		out = append(out, gateway.Turn{Role: h.Role, Content: h.Content})
	}
	return out
}
