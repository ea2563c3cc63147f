// Package reconcile applies a parsed ActionSet to the task store.
package reconcile

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"

	"github.com/ashureev/timem/internal/domain"
	"github.com/ashureev/timem/internal/intent"
	"github.com/ashureev/timem/internal/store"
)

// ErrInvalidProfileValue marks a profile update that cannot be applied.
var ErrInvalidProfileValue = errors.New("invalid profile value")

// DefaultTaskName is used for added tasks the model left unnamed.
const DefaultTaskName = "Untitled"

// Outcome summarizes one Apply call.
type Outcome struct {
	Reply          string
	Added          int
	Deleted        int64
	Updated        int64
	ProfileUpdated bool
	// Err joins every per-action failure; the reply is valid regardless.
	Err error
}

// Engine applies action sets. It keeps no state between calls.
type Engine struct {
	repo   store.Repository
	logger *slog.Logger
}

// NewEngine creates an engine over repo.
func NewEngine(repo store.Repository, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{repo: repo, logger: logger}
}

// Apply runs adds, deletes, updates and the profile update in that order.
// A failed action is logged and never stops the ones after it.
func (e *Engine) Apply(ctx context.Context, userID string, set intent.ActionSet) Outcome {
	var out Outcome
	var errs []error
	log := e.logger.With("user_id", userID)

	for _, add := range set.Added {
		task, err := newTask(userID, add)
		if err != nil {
			log.Warn("Skipping added task", "name", add.Name, "error", err)
			errs = append(errs, err)
			continue
		}
		if err := e.repo.AddTask(ctx, task); err != nil {
			log.Error("Failed to add task", "name", task.Name, "error", err)
			errs = append(errs, fmt.Errorf("add %q: %w", task.Name, err))
			continue
		}
		out.Added++
	}

	for _, name := range set.Deleted {
		n, err := e.repo.DeleteTaskByName(ctx, userID, name)
		if err != nil {
			log.Error("Failed to delete task", "name", name, "error", err)
			errs = append(errs, fmt.Errorf("delete %q: %w", name, err))
			continue
		}
		if n == 0 {
			log.Debug("Delete matched no task", "name", name)
		}
		out.Deleted += n
	}

	for _, upd := range set.Updated {
		patch, err := toPatch(upd.NewData)
		if err != nil {
			log.Warn("Skipping task update", "old_name", upd.OldName, "error", err)
			errs = append(errs, err)
			continue
		}
		if patch.Empty() {
			continue
		}
		n, err := e.repo.UpdateTaskByName(ctx, userID, upd.OldName, patch)
		if err != nil {
			log.Error("Failed to update task", "old_name", upd.OldName, "error", err)
			errs = append(errs, fmt.Errorf("update %q: %w", upd.OldName, err))
			continue
		}
		if n == 0 {
			log.Debug("Update matched no task", "old_name", upd.OldName)
		}
		out.Updated += n
	}

	if set.ProfileUpdate != nil {
		update, err := toProfileUpdate(*set.ProfileUpdate)
		switch {
		case err != nil:
			log.Warn("Skipping profile update", "error", err)
			errs = append(errs, err)
		case update.Empty():
		default:
			if err := e.repo.UpdateUserProfile(ctx, userID, update); err != nil {
				log.Error("Failed to update profile", "error", err)
				errs = append(errs, fmt.Errorf("update profile: %w", err))
			} else {
				out.ProfileUpdated = true
			}
		}
	}

	out.Reply = strings.TrimSpace(set.Reply)
	if out.Reply == "" {
		out.Reply = intent.DefaultReply
	}
	out.Err = errors.Join(errs...)
	return out
}

func newTask(userID string, add intent.NewTask) (*domain.Task, error) {
	name := strings.TrimSpace(add.Name)
	if name == "" {
		name = DefaultTaskName
	}
	deadline, err := domain.ParseDeadline(add.Deadline)
	if err != nil {
		return nil, fmt.Errorf("add %q: %w", name, err)
	}
	return &domain.Task{
		UserID:      userID,
		Name:        name,
		Description: strings.TrimSpace(add.Description),
		Deadline:    deadline,
	}, nil
}

func toPatch(f intent.TaskFields) (domain.TaskPatch, error) {
	patch := domain.TaskPatch{
		Name:        strings.TrimSpace(f.Name),
		Description: strings.TrimSpace(f.Description),
	}
	if strings.TrimSpace(f.Deadline) != "" {
		d, err := domain.ParseDeadline(f.Deadline)
		if err != nil {
			return domain.TaskPatch{}, err
		}
		patch.Deadline = &d
	}
	return patch, nil
}

func toProfileUpdate(p intent.ProfileUpdate) (domain.ProfileUpdate, error) {
	var update domain.ProfileUpdate
	if name := strings.TrimSpace(p.Name); name != "" {
		update.Name = &name
	}
	if len(p.Timezone) > 0 && !bytes.Equal(bytes.TrimSpace(p.Timezone), []byte("null")) {
		offset, err := ParseOffset(p.Timezone)
		if err != nil {
			return domain.ProfileUpdate{}, err
		}
		update.TimezoneOffset = &offset
	}
	return update, nil
}

// ParseOffset coerces a JSON number or numeric string to a whole-hour UTC
// offset within the supported range.
func ParseOffset(raw json.RawMessage) (int, error) {
	var value any
	if err := json.Unmarshal(raw, &value); err != nil {
		return 0, fmt.Errorf("%w: timezone %s", ErrInvalidProfileValue, raw)
	}

	var f float64
	switch v := value.(type) {
	case float64:
		f = v
	case string:
		s := strings.TrimSpace(v)
		s = strings.TrimPrefix(strings.TrimPrefix(strings.ToUpper(s), "UTC"), "GMT")
		parsed, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return 0, fmt.Errorf("%w: timezone %q", ErrInvalidProfileValue, v)
		}
		f = parsed
	default:
		return 0, fmt.Errorf("%w: timezone %s", ErrInvalidProfileValue, raw)
	}

	if f != math.Trunc(f) || math.IsInf(f, 0) || math.IsNaN(f) {
		return 0, fmt.Errorf("%w: timezone %v is not a whole hour", ErrInvalidProfileValue, f)
	}
	offset := int(f)
	if !domain.ValidOffset(offset) {
		return 0, fmt.Errorf("%w: timezone %d outside [%d, %d]",
			ErrInvalidProfileValue, offset, domain.MinTimezoneOffset, domain.MaxTimezoneOffset)
	}
	return offset, nil
}
