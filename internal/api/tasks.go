package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/ashureev/timem/internal/domain"
	"github.com/ashureev/timem/internal/identity"
)

type taskResponse struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Deadline    string `json:"deadline"`
	Reminded    bool   `json:"reminded"`
}

// ListTasks returns the caller's tasks. ?day=YYYY-MM-DD narrows the list to
// one local calendar day; ?day=today uses the caller's current local date.
func (h *Handler) ListTasks(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := identity.UserIDFromContext(ctx)

	user, err := h.repo.GetUser(ctx, userID)
	if err != nil {
		slog.Error("Failed to get user", "error", err, "user_id", userID)
		Error(w, http.StatusInternalServerError, "failed to load tasks")
		return
	}
	if user == nil {
		Error(w, http.StatusForbidden, "not_registered")
		return
	}

	var tasks []*domain.Task
	switch day := r.URL.Query().Get("day"); day {
	case "":
		tasks, err = h.repo.GetTasks(ctx, userID)
	case "today":
		tasks, err = h.repo.GetTasksForDay(ctx, userID, user.LocalTime(time.Now()))
	default:
		d, parseErr := time.Parse("2006-01-02", day)
		if parseErr != nil {
			Error(w, http.StatusBadRequest, "day must be YYYY-MM-DD or today")
			return
		}
		tasks, err = h.repo.GetTasksForDay(ctx, userID, d)
	}
	if err != nil {
		slog.Error("Failed to list tasks", "error", err, "user_id", userID)
		Error(w, http.StatusInternalServerError, "failed to load tasks")
		return
	}

	out := make([]taskResponse, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, taskResponse{
			ID:          t.ID,
			Name:        t.Name,
			Description: t.Description,
			Deadline:    domain.FormatDeadline(t.Deadline),
			Reminded:    t.Reminded,
		})
	}
	JSON(w, http.StatusOK, map[string]interface{}{"tasks": out})
}
