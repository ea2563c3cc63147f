package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/ashureev/timem/internal/chat"
	"github.com/ashureev/timem/internal/gateway"
	"github.com/ashureev/timem/internal/identity"
)

type chatRequest struct {
	Message string `json:"message"`
}

type chatResponse struct {
	Reply string `json:"reply"`
	Error string `json:"error,omitempty"`
}

// Chat runs one chat turn for the caller.
func (h *Handler) Chat(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())

	var req chatRequest
	if !decodeBody(w, r, &req) {
		return
	}
	text := strings.TrimSpace(req.Message)
	if text == "" {
		Error(w, http.StatusBadRequest, "message is required")
		return
	}

	reply, err := h.chat.HandleMessage(r.Context(), userID, text)
	switch {
	case err == nil:
		JSON(w, http.StatusOK, chatResponse{Reply: reply})
	case errors.Is(err, chat.ErrNotRegistered):
		Error(w, http.StatusForbidden, "not_registered")
	case errors.Is(err, gateway.ErrModelUnavailable):
		JSON(w, http.StatusServiceUnavailable, chatResponse{Reply: reply, Error: "model_unavailable"})
	default:
		slog.Error("Chat turn failed", "error", err, "user_id", userID)
		Error(w, http.StatusInternalServerError, "chat failed")
	}
}
