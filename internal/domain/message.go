package domain

import (
	"context"
	"time"
)

// MessageRole represents the sender of a message
type MessageRole string

const (
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
)

// Message is one line of a chat transcript, owned by the chat layer
type Message struct {
	ConversationID string      `json:"conversation_id"`
	Role           MessageRole `json:"role"`
	Content        string      `json:"content"`
	CreatedAt      time.Time   `json:"created_at"`
}

// MessageRepository reads chat transcripts
type MessageRepository interface {
	// ListRecent returns the last limit messages of a conversation in chronological order
	ListRecent(ctx context.Context, conversationID string, limit int) ([]Message, error)
}
