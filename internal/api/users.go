package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/ashureev/timem/internal/domain"
	"github.com/ashureev/timem/internal/identity"
	"github.com/ashureev/timem/internal/store"
)

type registerRequest struct {
	Name           string `json:"name"`
	TimezoneOffset *int   `json:"timezone_offset"`
}

type settingsRequest struct {
	Name           *string `json:"name"`
	TimezoneOffset *int    `json:"timezone_offset"`
}

type userResponse struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	TimezoneOffset int    `json:"timezone_offset"`
	LocalTime      string `json:"local_time"`
}

func toUserResponse(u *domain.User) userResponse {
	return userResponse{
		ID:             u.ID,
		Name:           u.Name,
		TimezoneOffset: u.TimezoneOffset,
		LocalTime:      domain.FormatDeadline(u.LocalTime(time.Now())),
	}
}

// Register creates a profile for the calling chat identity.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())

	var req registerRequest
	if !decodeBody(w, r, &req) {
		return
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		Error(w, http.StatusBadRequest, "name is required")
		return
	}
	offset := 0
	if req.TimezoneOffset != nil {
		offset = *req.TimezoneOffset
	}
	if !domain.ValidOffset(offset) {
		Error(w, http.StatusBadRequest, "timezone_offset must be between -12 and 14")
		return
	}

	now := time.Now()
	user := &domain.User{ID: userID, Name: name, TimezoneOffset: offset, CreatedAt: now, UpdatedAt: now}
	if err := h.repo.AddUser(r.Context(), user); err != nil {
		if errors.Is(err, store.ErrUserExists) {
			Error(w, http.StatusConflict, "already_registered")
			return
		}
		slog.Error("Failed to register user", "error", err, "user_id", userID)
		Error(w, http.StatusInternalServerError, "failed to register")
		return
	}

	slog.Info("User registered", "user_id", userID, "timezone_offset", offset)
	JSON(w, http.StatusCreated, toUserResponse(user))
}

// GetMe returns the caller's profile.
func (h *Handler) GetMe(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	user, err := h.repo.GetUser(r.Context(), userID)
	if err != nil {
		slog.Error("Failed to get user", "error", err, "user_id", userID)
		Error(w, http.StatusInternalServerError, "failed to load profile")
		return
	}
	if user == nil {
		Error(w, http.StatusNotFound, "not_registered")
		return
	}
	JSON(w, http.StatusOK, toUserResponse(user))
}

// UpdateSettings changes the caller's name or timezone offset.
func (h *Handler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())

	var req settingsRequest
	if !decodeBody(w, r, &req) {
		return
	}
	update := domain.ProfileUpdate{TimezoneOffset: req.TimezoneOffset}
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		update.Name = &name
	}
	if update.TimezoneOffset != nil && !domain.ValidOffset(*update.TimezoneOffset) {
		Error(w, http.StatusBadRequest, "timezone_offset must be between -12 and 14")
		return
	}
	if update.Empty() {
		Error(w, http.StatusBadRequest, "nothing to update")
		return
	}

	if err := h.repo.UpdateUserProfile(r.Context(), userID, update); err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			Error(w, http.StatusNotFound, "not_registered")
			return
		}
		slog.Error("Failed to update settings", "error", err, "user_id", userID)
		Error(w, http.StatusInternalServerError, "failed to update settings")
		return
	}

	h.GetMe(w, r)
}
