// Package notify runs the periodic morning digest and deadline reminder jobs.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ashureev/timem/internal/domain"
	"github.com/ashureev/timem/internal/gateway"
	"github.com/ashureev/timem/internal/prompt"
	"github.com/ashureev/timem/internal/shared"
	"github.com/ashureev/timem/internal/store"
	"github.com/ashureev/timem/internal/transport"
)

// Config controls the scheduler.
type Config struct {
	Interval     time.Duration
	DigestHour   int
	DigestMinute int
}

// Scheduler checks every user on each tick and delivers whatever is due.
type Scheduler struct {
	repo     store.Repository
	model    gateway.Gateway
	prompts  *prompt.Registry
	notifier transport.Notifier
	cfg      Config
	logger   *slog.Logger
	retry    shared.RetryPolicy
	now      func() time.Time

	mu sync.Mutex
	// digestSent maps user ID to the local date of the last delivered digest.
	digestSent map[string]string
}

// NewScheduler creates a scheduler.
func NewScheduler(repo store.Repository, model gateway.Gateway, prompts *prompt.Registry, notifier transport.Notifier, cfg Config, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	return &Scheduler{
		repo:       repo,
		model:      model,
		prompts:    prompts,
		notifier:   notifier,
		cfg:        cfg,
		logger:     logger,
		retry:      shared.DefaultRetryPolicy,
		now:        time.Now,
		digestSent: make(map[string]string),
	}
}

// Run ticks until ctx is cancelled. Missed ticks are not replayed.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()
	s.logger.Info("Notification scheduler started",
		"interval", s.cfg.Interval,
		"digest_at", fmt.Sprintf("%02d:%02d", s.cfg.DigestHour, s.cfg.DigestMinute),
	)

	for {
		select {
		case <-ticker.C:
			s.Tick(ctx)
		case <-ctx.Done():
			s.logger.Info("Notification scheduler shutting down", "reason", ctx.Err())
			return nil
		}
	}
}

// Tick runs both jobs once against the current time.
func (s *Scheduler) Tick(ctx context.Context) {
	now := s.now()
	s.sendDigests(ctx, now)
	s.sendReminders(ctx, now)
}

func (s *Scheduler) sendDigests(ctx context.Context, now time.Time) {
	users, err := s.repo.GetAllUsers(ctx)
	if err != nil {
		s.logger.Error("Digest job failed to list users", "error", err)
		return
	}

	for _, user := range users {
		if ctx.Err() != nil {
			return
		}
		local := user.LocalTime(now)
		if local.Hour() != s.cfg.DigestHour || local.Minute() != s.cfg.DigestMinute {
			continue
		}
		date := local.Format("2006-01-02")
		if s.digestDelivered(user.ID, date) {
			continue
		}
		delivered, err := s.sendDigest(ctx, user, local)
		if err != nil {
			s.logger.Error("Failed to send morning digest", "user_id", user.ID, "error", err)
			continue
		}
		s.markDigest(user.ID, date)
		s.logger.Info("Morning digest sent", "user_id", user.ID, "local_date", date, "delivered", delivered)
	}
}

// sendDigest phrases the user's tasks for the local day and records the text
// in the assistant history. Offline users only get the history entry, which
// they see once they reconnect.
func (s *Scheduler) sendDigest(ctx context.Context, user *domain.User, local time.Time) (bool, error) {
	tasks, err := s.repo.GetTasksForDay(ctx, user.ID, local)
	if err != nil {
		return false, fmt.Errorf("get tasks for day: %w", err)
	}
	msg, err := s.prompts.Render(prompt.Digest, prompt.PersonData{Name: user.Name, Tasks: taskLines(tasks)})
	if err != nil {
		return false, err
	}
	text, err := s.model.Complete(ctx, gateway.Request{Message: msg})
	if err != nil {
		return false, err
	}

	delivered := false
	if s.reachable(user.ID) {
		err := s.notifier.SendMessage(ctx, user.ID, text)
		switch {
		case err == nil:
			delivered = true
		case errors.Is(err, transport.ErrNoSubscribers):
			s.logger.Debug("Digest not pushed, user offline", "user_id", user.ID)
		default:
			return false, fmt.Errorf("send: %w", err)
		}
	}
	if err := s.repo.AppendHistory(ctx, user.ID, domain.RoleAssistant, text); err != nil {
		if !delivered {
			return false, fmt.Errorf("store digest: %w", err)
		}
		s.logger.Warn("Failed to store digest in history", "user_id", user.ID, "error", err)
	}
	return delivered, nil
}

func (s *Scheduler) digestDelivered(userID, date string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.digestSent[userID] == date
}

func (s *Scheduler) markDigest(userID, date string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.digestSent[userID] = date
}

type reminderBatch struct {
	user  *domain.User
	tasks []*domain.Task
}

func (s *Scheduler) sendReminders(ctx context.Context, now time.Time) {
	pending, err := s.repo.GetPendingReminders(ctx)
	if err != nil {
		s.logger.Error("Reminder job failed to list pending tasks", "error", err)
		return
	}

	for _, batch := range dueBatches(pending, now) {
		if ctx.Err() != nil {
			return
		}
		if !s.reachable(batch.user.ID) {
			s.logger.Debug("Reminders deferred, user offline", "user_id", batch.user.ID, "count", len(batch.tasks))
			continue
		}
		if err := s.deliverBatch(ctx, batch); err != nil {
			s.logger.Error("Failed to deliver reminders",
				"user_id", batch.user.ID,
				"count", len(batch.tasks),
				"error", err,
			)
		}
	}
}

// dueBatches groups due tasks by owner, keeping first-seen user order.
func dueBatches(pending []domain.PendingReminder, now time.Time) []reminderBatch {
	var batches []reminderBatch
	index := make(map[string]int)
	for _, p := range pending {
		if p.Task == nil || p.User == nil {
			continue
		}
		if !p.Task.IsDue(p.User.LocalTime(now)) {
			continue
		}
		i, ok := index[p.User.ID]
		if !ok {
			i = len(batches)
			index[p.User.ID] = i
			batches = append(batches, reminderBatch{user: p.User})
		}
		batches[i].tasks = append(batches[i].tasks, p.Task)
	}
	return batches
}

// deliverBatch sends one message for every due task of a user. Tasks are
// marked reminded only after the message was delivered.
func (s *Scheduler) deliverBatch(ctx context.Context, batch reminderBatch) error {
	msg, err := s.prompts.Render(prompt.Reminder, prompt.PersonData{Name: batch.user.Name, Tasks: taskLines(batch.tasks)})
	if err != nil {
		return err
	}
	text, err := s.model.Complete(ctx, gateway.Request{Message: msg})
	if err != nil {
		return err
	}
	if err := s.notifier.SendMessage(ctx, batch.user.ID, text); err != nil {
		return fmt.Errorf("send: %w", err)
	}

	for _, task := range batch.tasks {
		err := shared.RetryOnConflict(ctx, s.retry, func(ctx context.Context) error {
			return s.repo.MarkReminded(ctx, task.ID, task.Deadline)
		})
		if err != nil {
			// Delivered but unmarked: the task will be reminded again next tick.
			s.logger.Error("Failed to mark task reminded", "user_id", batch.user.ID, "task_id", task.ID, "error", err)
		}
	}
	if err := s.repo.AppendHistory(ctx, batch.user.ID, domain.RoleAssistant, text); err != nil {
		s.logger.Warn("Failed to store reminder in history", "user_id", batch.user.ID, "error", err)
	}
	s.logger.Info("Reminders delivered", "user_id", batch.user.ID, "count", len(batch.tasks))
	return nil
}

func (s *Scheduler) reachable(userID string) bool {
	if p, ok := s.notifier.(transport.Presence); ok {
		return p.Online(userID)
	}
	return true
}

func taskLines(tasks []*domain.Task) []prompt.TaskLine {
	lines := make([]prompt.TaskLine, 0, len(tasks))
	for _, t := range tasks {
		lines = append(lines, prompt.TaskLine{
			Name:        t.Name,
			Description: t.Description,
			Deadline:    domain.FormatDeadline(t.Deadline),
			Time:        t.Deadline.Format("15:04"),
		})
	}
	return lines
}
