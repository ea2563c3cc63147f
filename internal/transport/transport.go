// Package transport delivers outbound chat messages to connected clients.
package transport

import (
	"context"
	"errors"
)

// ErrNoSubscribers is returned when a user has no open connection.
var ErrNoSubscribers = errors.New("no subscribers for user")

// Notifier pushes messages to a user.
type Notifier interface {
	SendMessage(ctx context.Context, userID, text string) error
	SendTypingIndicator(ctx context.Context, chatID string) error
}

// Presence is implemented by notifiers that know whether a user can
// currently receive messages.
type Presence interface {
	Online(userID string) bool
}

// Event is the JSON frame written to clients.
type Event struct {
	Type    string `json:"type"`
	Content string `json:"content,omitempty"`
}

// Event types.
const (
	EventMessage = "message"
	EventTyping  = "typing"
	EventPong    = "pong"
)
