package model

import (
	"time"
)

// Role identifies the author of a conversation message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// TransientKind tags an ephemeral "tool in progress" placeholder message.
// It carries the tool identifier (e.g. "web_search"). Transient messages are
// superseded by real content and are never persisted.
type TransientKind string

// Conversation stores metadata about a conversation.
type Conversation struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Message is a single message in a conversation. Assistant messages start
// empty and grow via appended deltas until they are sealed; after sealing the
// text is immutable and ToolsUsed is set.
type Message struct {
	ID        string        `json:"id"`
	Author    Role          `json:"author"`
	Text      string        `json:"text"`
	CreatedAt time.Time     `json:"created_at"`
	ToolsUsed []string      `json:"tools_used,omitempty"`
	Transient TransientKind `json:"transient,omitempty"`
	Sealed    bool          `json:"sealed"`
}

// IsTransient reports whether the message is an ephemeral placeholder.
func (m Message) IsTransient() bool {
	return m.Transient != ""
}

// FullConversation includes the conversation metadata and all its messages.
type FullConversation struct {
	Conversation
	Messages []Message `json:"messages"`
}
