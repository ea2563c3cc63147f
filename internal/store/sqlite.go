package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ashureev/timem/internal/domain"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// ErrUserNotFound is returned by profile updates for an unknown user.
var ErrUserNotFound = errors.New("user not found")

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite creates a new SQLite-backed repository.
func NewSQLite(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// WAL lets the scheduler read while a chat turn writes. Transactions take
	// the write lock up front so a read-then-write update waits on busy_timeout
	// instead of failing its lock upgrade.
	dsn := "file:" + dbPath + "?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)&_txlock=immediate"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(8)
	db.SetMaxIdleConns(4)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL DEFAULT '',
		timezone_offset INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS tasks (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		name TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		deadline TEXT NOT NULL,
		reminded INTEGER NOT NULL DEFAULT 0
	);
	CREATE INDEX IF NOT EXISTS idx_tasks_user_deadline ON tasks(user_id, deadline);
	CREATE INDEX IF NOT EXISTS idx_tasks_pending ON tasks(reminded) WHERE reminded = 0;

	CREATE TABLE IF NOT EXISTS history (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		role TEXT NOT NULL,
		content TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_history_user_time ON history(user_id, created_at);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}

// GetUser retrieves a user by chat identity.
func (s *SQLiteStore) GetUser(ctx context.Context, userID string) (*domain.User, error) {
	query := `SELECT id, name, timezone_offset, created_at, updated_at FROM users WHERE id = ?`

	var user domain.User
	var createdAt, updatedAt int64
	err := s.db.QueryRowContext(ctx, query, userID).Scan(
		&user.ID, &user.Name, &user.TimezoneOffset, &createdAt, &updatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan user row: %w", err)
	}

	user.CreatedAt = time.Unix(createdAt, 0)
	user.UpdatedAt = time.Unix(updatedAt, 0)
	return &user, nil
}

// AddUser registers a new user.
func (s *SQLiteStore) AddUser(ctx context.Context, user *domain.User) error {
	now := time.Now()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	user.UpdatedAt = now

	query := `
	INSERT INTO users (id, name, timezone_offset, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?)
	ON CONFLICT(id) DO NOTHING`

	result, err := s.db.ExecContext(ctx, query,
		user.ID, user.Name, user.TimezoneOffset, user.CreatedAt.Unix(), user.UpdatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		return ErrUserExists
	}
	return nil
}

// UpdateUserProfile applies the non-nil fields of update.
func (s *SQLiteStore) UpdateUserProfile(ctx context.Context, userID string, update domain.ProfileUpdate) error {
	if update.Empty() {
		return nil
	}

	sets := []string{"updated_at = ?"}
	args := []interface{}{time.Now().Unix()}
	if update.Name != nil && *update.Name != "" {
		sets = append(sets, "name = ?")
		args = append(args, *update.Name)
	}
	if update.TimezoneOffset != nil {
		sets = append(sets, "timezone_offset = ?")
		args = append(args, *update.TimezoneOffset)
	}
	args = append(args, userID)

	query := `UPDATE users SET ` + strings.Join(sets, ", ") + ` WHERE id = ?`
	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update user profile: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		return ErrUserNotFound
	}
	return nil
}

// GetAllUsers lists every registered user.
func (s *SQLiteStore) GetAllUsers(ctx context.Context) ([]*domain.User, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, timezone_offset, created_at, updated_at FROM users ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("query users: %w", err)
	}
	defer closeRows(rows, "users")

	var users []*domain.User
	for rows.Next() {
		var user domain.User
		var createdAt, updatedAt int64
		if err := rows.Scan(&user.ID, &user.Name, &user.TimezoneOffset, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan user row: %w", err)
		}
		user.CreatedAt = time.Unix(createdAt, 0)
		user.UpdatedAt = time.Unix(updatedAt, 0)
		users = append(users, &user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate users: %w", err)
	}
	return users, nil
}

const taskColumns = `id, user_id, name, description, deadline, reminded`

// GetTasks lists a user's tasks ordered by deadline.
func (s *SQLiteStore) GetTasks(ctx context.Context, userID string) ([]*domain.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE user_id = ? ORDER BY deadline, rowid`
	return s.queryTasks(ctx, query, userID)
}

// GetTasksForDay lists a user's tasks whose deadline falls on day's calendar date.
func (s *SQLiteStore) GetTasksForDay(ctx context.Context, userID string, day time.Time) ([]*domain.Task, error) {
	start, end := domain.DayBounds(day)
	query := `SELECT ` + taskColumns + ` FROM tasks
		WHERE user_id = ? AND deadline >= ? AND deadline <= ?
		ORDER BY deadline, rowid`
	return s.queryTasks(ctx, query, userID, domain.FormatDeadline(start), domain.FormatDeadline(end))
}

func (s *SQLiteStore) queryTasks(ctx context.Context, query string, args ...interface{}) ([]*domain.Task, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query tasks: %w", err)
	}
	defer closeRows(rows, "tasks")

	var tasks []*domain.Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tasks: %w", err)
	}
	return tasks, nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanTask(row scanner, extra ...interface{}) (*domain.Task, error) {
	var task domain.Task
	var deadline string
	dest := append([]interface{}{
		&task.ID, &task.UserID, &task.Name, &task.Description, &deadline, &task.Reminded,
	}, extra...)
	if err := row.Scan(dest...); err != nil {
		return nil, fmt.Errorf("scan task row: %w", err)
	}
	parsed, err := domain.ParseDeadline(deadline)
	if err != nil {
		return nil, fmt.Errorf("task %s: %w", task.ID, err)
	}
	task.Deadline = parsed
	return &task, nil
}

// AddTask inserts a task, assigning an ID when empty.
func (s *SQLiteStore) AddTask(ctx context.Context, task *domain.Task) error {
	if task.ID == "" {
		task.ID = uuid.NewString()
	}
	query := `INSERT INTO tasks (` + taskColumns + `) VALUES (?, ?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, query,
		task.ID, task.UserID, task.Name, task.Description,
		domain.FormatDeadline(task.Deadline), task.Reminded,
	)
	if err != nil {
		return fmt.Errorf("insert task: %w", err)
	}
	return nil
}

// DeleteTaskByName removes the user's tasks whose name matches exactly.
func (s *SQLiteStore) DeleteTaskByName(ctx context.Context, userID, name string) (int64, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM tasks WHERE user_id = ? AND name = ?`, userID, name)
	if err != nil {
		return 0, fmt.Errorf("delete task: %w", err)
	}
	return result.RowsAffected()
}

// UpdateTaskByName patches the user's tasks whose name matches oldName
// case-insensitively. Matching happens in Go so that non-ASCII names fold too.
func (s *SQLiteStore) UpdateTaskByName(ctx context.Context, userID, oldName string, patch domain.TaskPatch) (int64, error) {
	if patch.Empty() {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin update: %w", err)
	}
	defer func() {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			slog.Warn("failed to rollback task update", "error", rbErr)
		}
	}()

	rows, err := tx.QueryContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE user_id = ?`, userID)
	if err != nil {
		return 0, fmt.Errorf("query tasks for update: %w", err)
	}
	var matches []*domain.Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			closeRows(rows, "tasks for update")
			return 0, err
		}
		if strings.EqualFold(task.Name, oldName) {
			matches = append(matches, task)
		}
	}
	if err := rows.Err(); err != nil {
		closeRows(rows, "tasks for update")
		return 0, fmt.Errorf("iterate tasks for update: %w", err)
	}
	closeRows(rows, "tasks for update")

	var updated int64
	for _, task := range matches {
		patched := applyPatch(task, patch)
		_, err := tx.ExecContext(ctx,
			`UPDATE tasks SET name = ?, description = ?, deadline = ?, reminded = ? WHERE id = ?`,
			patched.Name, patched.Description, domain.FormatDeadline(patched.Deadline), patched.Reminded, patched.ID,
		)
		if err != nil {
			return 0, fmt.Errorf("update task %s: %w", task.ID, err)
		}
		updated++
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit task update: %w", err)
	}
	return updated, nil
}

// applyPatch returns a copy of task with the patch applied.
func applyPatch(task *domain.Task, patch domain.TaskPatch) *domain.Task {
	out := *task
	if patch.Name != "" {
		out.Name = patch.Name
	}
	if patch.Description != "" {
		out.Description = patch.Description
	}
	if patch.Deadline != nil && !patch.Deadline.Equal(task.Deadline) {
		out.Deadline = *patch.Deadline
		out.Reminded = false
	}
	return &out
}

// GetPendingReminders lists every unreminded task joined with its owner.
func (s *SQLiteStore) GetPendingReminders(ctx context.Context) ([]domain.PendingReminder, error) {
	query := `
		SELECT t.id, t.user_id, t.name, t.description, t.deadline, t.reminded,
		       u.name, u.timezone_offset, u.created_at, u.updated_at
		FROM tasks t JOIN users u ON u.id = t.user_id
		WHERE t.reminded = 0
		ORDER BY t.user_id, t.deadline, t.rowid`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query pending reminders: %w", err)
	}
	defer closeRows(rows, "pending reminders")

	users := make(map[string]*domain.User)
	var pending []domain.PendingReminder
	for rows.Next() {
		var name string
		var offset int
		var createdAt, updatedAt int64
		task, err := scanTask(rows, &name, &offset, &createdAt, &updatedAt)
		if err != nil {
			return nil, err
		}
		user, ok := users[task.UserID]
		if !ok {
			user = &domain.User{
				ID:             task.UserID,
				Name:           name,
				TimezoneOffset: offset,
				CreatedAt:      time.Unix(createdAt, 0),
				UpdatedAt:      time.Unix(updatedAt, 0),
			}
			users[task.UserID] = user
		}
		pending = append(pending, domain.PendingReminder{Task: task, User: user})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pending reminders: %w", err)
	}
	return pending, nil
}

// MarkReminded sets the reminded flag of a task that still has the given
// deadline and is not yet reminded.
func (s *SQLiteStore) MarkReminded(ctx context.Context, taskID string, deadline time.Time) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE tasks SET reminded = 1 WHERE id = ? AND deadline = ? AND reminded = 0`,
		taskID, domain.FormatDeadline(deadline),
	)
	if err != nil {
		return fmt.Errorf("mark reminded: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		// Deleted or rescheduled between the pending query and delivery.
		slog.Warn("MarkReminded affected 0 rows", "task_id", taskID, "deadline", domain.FormatDeadline(deadline))
	}
	return nil
}

// AppendHistory stores one conversation turn.
func (s *SQLiteStore) AppendHistory(ctx context.Context, userID string, role domain.Role, content string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO history (user_id, role, content, created_at) VALUES (?, ?, ?, ?)`,
		userID, string(role), content, time.Now().UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("append history: %w", err)
	}
	return nil
}

// GetRecentHistory returns up to limit most recent turns in chronological order.
func (s *SQLiteStore) GetRecentHistory(ctx context.Context, userID string, limit int) ([]domain.ConversationTurn, error) {
	if limit <= 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT user_id, role, content, created_at FROM history
		WHERE user_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer closeRows(rows, "history")

	var turns []domain.ConversationTurn
	for rows.Next() {
		var turn domain.ConversationTurn
		var role string
		var createdAt int64
		if err := rows.Scan(&turn.UserID, &role, &turn.Content, &createdAt); err != nil {
			return nil, fmt.Errorf("scan history row: %w", err)
		}
		turn.Role = domain.Role(role)
		turn.CreatedAt = time.Unix(0, createdAt)
		turns = append(turns, turn)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history: %w", err)
	}

	for i, j := 0, len(turns)-1; i < j; i, j = i+1, j-1 {
		turns[i], turns[j] = turns[j], turns[i]
	}
	return turns, nil
}

func closeRows(rows *sql.Rows, what string) {
	if err := rows.Close(); err != nil {
		slog.Warn("failed to close rows", "query", what, "error", err)
	}
}

var _ Repository = (*SQLiteStore)(nil)
