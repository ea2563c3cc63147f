package domain

import (
	"fmt"
	"strings"
	"time"
)

// DeadlineLayout is the canonical wall-clock deadline format.
const DeadlineLayout = "2006-01-02 15:04:05"

var deadlineLayouts = []string{
	DeadlineLayout,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"2006-01-02T15:04",
	"2006-01-02",
}

// Task is a user's to-do item with a naive wall-clock deadline.
type Task struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Deadline    time.Time `json:"deadline"`
	Reminded    bool      `json:"reminded"`
}

// IsDue reports whether the deadline has been reached at the given local time.
func (t *Task) IsDue(localNow time.Time) bool {
	return !localNow.Before(t.Deadline)
}

// TaskPatch holds the fields of an update; empty fields are left untouched.
type TaskPatch struct {
	Name        string
	Description string
	Deadline    *time.Time
}

// Empty reports whether the patch changes nothing.
func (p TaskPatch) Empty() bool {
	return p.Name == "" && p.Description == "" && p.Deadline == nil
}

// PendingReminder is an unreminded task joined with its owner.
type PendingReminder struct {
	Task *Task
	User *User
}

// ParseDeadline parses a wall-clock deadline. Timezone information, when
// present, is rejected because deadlines are interpreted in the owner's offset.
func ParseDeadline(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty deadline")
	}
	for _, layout := range deadlineLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized deadline %q", s)
}

// FormatDeadline renders a deadline in DeadlineLayout.
func FormatDeadline(t time.Time) string {
	return t.Format(DeadlineLayout)
}

// DayBounds returns the first and last second of the calendar day containing t.
func DayBounds(t time.Time) (time.Time, time.Time) {
	start := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	return start, start.Add(24*time.Hour - time.Second)
}
