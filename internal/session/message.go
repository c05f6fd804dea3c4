package session

import (
	"time"

	"github.com/google/uuid"
)

// Role identifies who authored a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one entry of the conversation log. It is never modified after append.
type Message struct {
	ID         string    `json:"id" yaml:"id"`
	Role       Role      `json:"role" yaml:"role"`
	Content    string    `json:"content" yaml:"content"`
	CreatedAt  time.Time `json:"created_at" yaml:"created_at"`
	AgentLabel string    `json:"agent_label,omitempty" yaml:"agent_label,omitempty"`
}

// NewUserMessage builds a user message stamped at now.
func NewUserMessage(content string, now time.Time) Message {
	return Message{
		ID:        uuid.NewString(),
		Role:      RoleUser,
		Content:   content,
		CreatedAt: now,
	}
}

// NewAssistantMessage builds an assistant message. agent is the opaque
// sub-agent tag reported by the orchestrator, shown as-is.
func NewAssistantMessage(content, agent string, now time.Time) Message {
	return Message{
		ID:         uuid.NewString(),
		Role:       RoleAssistant,
		Content:    content,
		CreatedAt:  now,
		AgentLabel: agent,
	}
}
