package domain

import "time"

// Role identifies the author of a conversation turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ConversationTurn is one stored chat message.
type ConversationTurn struct {
	UserID    string
	Role      Role
	Content   string
	CreatedAt time.Time
}
