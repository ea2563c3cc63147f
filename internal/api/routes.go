package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers the identity-scoped API routes. chatMiddleware
// wraps only POST /api/chat.
func (h *Handler) RegisterRoutes(r chi.Router, chatMiddleware ...func(http.Handler) http.Handler) {
	r.Route("/api", func(r chi.Router) {
		r.Post("/users", h.Register)
		r.Get("/users/me", h.GetMe)
		r.Patch("/users/me", h.UpdateSettings)
		r.Get("/tasks", h.ListTasks)
		r.With(chatMiddleware...).Post("/chat", h.Chat)
	})
}
