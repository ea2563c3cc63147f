// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/ashureev/timem/internal/domain"
)

// ErrUserExists is returned by AddUser when the chat identity is already registered.
var ErrUserExists = errors.New("user already exists")

// Repository defines the interface for persisting users, tasks and chat history.
// Every method is individually atomic; callers never get multi-call transactions.
type Repository interface {
	// GetUser retrieves a user by chat identity. Returns nil, nil when absent.
	GetUser(ctx context.Context, userID string) (*domain.User, error)

	// AddUser registers a new user.
	AddUser(ctx context.Context, user *domain.User) error

	// UpdateUserProfile applies the non-nil fields of update.
	UpdateUserProfile(ctx context.Context, userID string, update domain.ProfileUpdate) error

	// GetAllUsers lists every registered user.
	GetAllUsers(ctx context.Context) ([]*domain.User, error)

	// GetTasks lists a user's tasks ordered by deadline.
	GetTasks(ctx context.Context, userID string) ([]*domain.Task, error)

	// GetTasksForDay lists a user's tasks whose deadline falls on day's calendar date.
	GetTasksForDay(ctx context.Context, userID string, day time.Time) ([]*domain.Task, error)

	// AddTask inserts a task, assigning an ID when empty.
	AddTask(ctx context.Context, task *domain.Task) error

	// DeleteTaskByName removes the user's tasks whose name matches exactly (case-sensitive).
	DeleteTaskByName(ctx context.Context, userID, name string) (int64, error)

	// UpdateTaskByName patches the user's tasks whose name matches oldName
	// case-insensitively. A changed deadline resets the reminded flag.
	UpdateTaskByName(ctx context.Context, userID, oldName string, patch domain.TaskPatch) (int64, error)

	// GetPendingReminders lists every unreminded task joined with its owner.
	GetPendingReminders(ctx context.Context) ([]domain.PendingReminder, error)

	// MarkReminded sets the reminded flag of a task that is still pending
	// at the given deadline. A task deleted or rescheduled since it was read
	// is left untouched.
	MarkReminded(ctx context.Context, taskID string, deadline time.Time) error

	// AppendHistory stores one conversation turn.
	AppendHistory(ctx context.Context, userID string, role domain.Role, content string) error

	// GetRecentHistory returns up to limit most recent turns in chronological order.
	GetRecentHistory(ctx context.Context, userID string, limit int) ([]domain.ConversationTurn, error)

	// Ping verifies database connectivity and returns an error if the database is unreachable.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
