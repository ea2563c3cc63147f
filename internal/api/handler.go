// Package api provides HTTP handlers for the timem API.
package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/ashureev/timem/internal/store"
)

// Chatter runs one chat turn. Implemented by chat.Service.
type Chatter interface {
	HandleMessage(ctx context.Context, chatID, text string) (string, error)
}

// Handler provides common handler utilities.
type Handler struct {
	repo store.Repository
	chat Chatter
}

// NewHandler creates a new Handler with common dependencies.
func NewHandler(repo store.Repository, chat Chatter) *Handler {
	return &Handler{repo: repo, chat: chat}
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

const maxBodyBytes = 64 * 1024

func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}
