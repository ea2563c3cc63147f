// Package storetest provides an in-memory store.Repository for tests.
package storetest

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ashureev/timem/internal/domain"
	"github.com/ashureev/timem/internal/store"
	"github.com/google/uuid"
)

// Memory is a mutex-guarded Repository with the same matching rules as the
// SQLite store. Fail* hooks inject errors into individual operations.
type Memory struct {
	mu      sync.Mutex
	users   map[string]*domain.User
	tasks   []*domain.Task
	history []domain.ConversationTurn
	clock   time.Time

	FailAddTask      func(task *domain.Task) error
	FailDelete       func(name string) error
	FailUpdate       func(oldName string) error
	FailProfile      error
	FailMarkReminded func(taskID string) error
	FailPending      error
	FailHistory      error
}

// NewMemory returns an empty in-memory repository.
func NewMemory() *Memory {
	return &Memory{
		users: make(map[string]*domain.User),
		clock: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

// GetUser retrieves a user by chat identity.
func (m *Memory) GetUser(_ context.Context, userID string) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	user := m.users[userID]
	if user == nil {
		return nil, nil
	}
	copy := *user
	return &copy, nil
}

// AddUser registers a new user.
func (m *Memory) AddUser(_ context.Context, user *domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[user.ID]; ok {
		return store.ErrUserExists
	}
	copy := *user
	m.users[user.ID] = &copy
	return nil
}

// UpdateUserProfile applies the non-nil fields of update.
func (m *Memory) UpdateUserProfile(_ context.Context, userID string, update domain.ProfileUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailProfile != nil {
		return m.FailProfile
	}
	user := m.users[userID]
	if user == nil {
		return store.ErrUserNotFound
	}
	if update.Name != nil && *update.Name != "" {
		user.Name = *update.Name
	}
	if update.TimezoneOffset != nil {
		user.TimezoneOffset = *update.TimezoneOffset
	}
	return nil
}

// GetAllUsers lists every registered user ordered by ID.
func (m *Memory) GetAllUsers(_ context.Context) ([]*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	users := make([]*domain.User, 0, len(m.users))
	for _, u := range m.users {
		copy := *u
		users = append(users, &copy)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].ID < users[j].ID })
	return users, nil
}

// GetTasks lists a user's tasks ordered by deadline.
func (m *Memory) GetTasks(_ context.Context, userID string) ([]*domain.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.filter(func(t *domain.Task) bool { return t.UserID == userID }), nil
}

// GetTasksForDay lists a user's tasks due on day's calendar date.
func (m *Memory) GetTasksForDay(_ context.Context, userID string, day time.Time) ([]*domain.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	start, end := domain.DayBounds(day)
	return m.filter(func(t *domain.Task) bool {
		return t.UserID == userID && !t.Deadline.Before(start) && !t.Deadline.After(end)
	}), nil
}

func (m *Memory) filter(keep func(*domain.Task) bool) []*domain.Task {
	var out []*domain.Task
	for _, t := range m.tasks {
		if keep(t) {
			copy := *t
			out = append(out, &copy)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Deadline.Before(out[j].Deadline) })
	return out
}

// AddTask inserts a task, assigning an ID when empty.
func (m *Memory) AddTask(_ context.Context, task *domain.Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailAddTask != nil {
		if err := m.FailAddTask(task); err != nil {
			return err
		}
	}
	if _, ok := m.users[task.UserID]; !ok {
		return fmt.Errorf("insert task: unknown user %s", task.UserID)
	}
	if task.ID == "" {
		task.ID = uuid.NewString()
	}
	copy := *task
	m.tasks = append(m.tasks, &copy)
	return nil
}

// DeleteTaskByName removes tasks whose name matches exactly.
func (m *Memory) DeleteTaskByName(_ context.Context, userID, name string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailDelete != nil {
		if err := m.FailDelete(name); err != nil {
			return 0, err
		}
	}
	var kept []*domain.Task
	var deleted int64
	for _, t := range m.tasks {
		if t.UserID == userID && t.Name == name {
			deleted++
			continue
		}
		kept = append(kept, t)
	}
	m.tasks = kept
	return deleted, nil
}

// UpdateTaskByName patches tasks whose name matches oldName case-insensitively.
func (m *Memory) UpdateTaskByName(_ context.Context, userID, oldName string, patch domain.TaskPatch) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailUpdate != nil {
		if err := m.FailUpdate(oldName); err != nil {
			return 0, err
		}
	}
	if patch.Empty() {
		return 0, nil
	}
	var updated int64
	for _, t := range m.tasks {
		if t.UserID != userID || !strings.EqualFold(t.Name, oldName) {
			continue
		}
		if patch.Name != "" {
			t.Name = patch.Name
		}
		if patch.Description != "" {
			t.Description = patch.Description
		}
		if patch.Deadline != nil && !patch.Deadline.Equal(t.Deadline) {
			t.Deadline = *patch.Deadline
			t.Reminded = false
		}
		updated++
	}
	return updated, nil
}

// GetPendingReminders lists unreminded tasks joined with their owners.
func (m *Memory) GetPendingReminders(_ context.Context) ([]domain.PendingReminder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailPending != nil {
		return nil, m.FailPending
	}
	var out []domain.PendingReminder
	for _, t := range m.tasks {
		if t.Reminded {
			continue
		}
		user := m.users[t.UserID]
		if user == nil {
			continue
		}
		task, owner := *t, *user
		out = append(out, domain.PendingReminder{Task: &task, User: &owner})
	}
	return out, nil
}

// MarkReminded sets the reminded flag of a pending task that still has the
// given deadline.
func (m *Memory) MarkReminded(_ context.Context, taskID string, deadline time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailMarkReminded != nil {
		if err := m.FailMarkReminded(taskID); err != nil {
			return err
		}
	}
	for _, t := range m.tasks {
		if t.ID == taskID && !t.Reminded && t.Deadline.Equal(deadline) {
			t.Reminded = true
		}
	}
	return nil
}

// AppendHistory stores one conversation turn with a strictly increasing timestamp.
func (m *Memory) AppendHistory(_ context.Context, userID string, role domain.Role, content string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailHistory != nil {
		return m.FailHistory
	}
	m.clock = m.clock.Add(time.Second)
	m.history = append(m.history, domain.ConversationTurn{
		UserID: userID, Role: role, Content: content, CreatedAt: m.clock,
	})
	return nil
}

// GetRecentHistory returns up to limit most recent turns in chronological order.
func (m *Memory) GetRecentHistory(_ context.Context, userID string, limit int) ([]domain.ConversationTurn, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var turns []domain.ConversationTurn
	for _, turn := range m.history {
		if turn.UserID == userID {
			turns = append(turns, turn)
		}
	}
	if limit <= 0 {
		return nil, nil
	}
	if len(turns) > limit {
		turns = turns[len(turns)-limit:]
	}
	return turns, nil
}

// Ping always succeeds.
func (m *Memory) Ping(context.Context) error { return nil }

// Close is a no-op.
func (m *Memory) Close() error { return nil }

// Task returns a copy of the stored task with the given ID, or nil.
func (m *Memory) Task(id string) *domain.Task {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.tasks {
		if t.ID == id {
			copy := *t
			return &copy
		}
	}
	return nil
}

// History returns every stored turn for a user.
func (m *Memory) History(userID string) []domain.ConversationTurn {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.ConversationTurn
	for _, turn := range m.history {
		if turn.UserID == userID {
			out = append(out, turn)
		}
	}
	return out
}

var _ store.Repository = (*Memory)(nil)
