package repository

import (
	"context"
	"time"

	"pickwise/client/internal/model"
)

// Repository defines the interface for local conversation history storage.
// Only sealed messages ever reach it; transient placeholders are a purely
// in-memory concern.
type Repository interface {
	CreateConversation(ctx context.Context, conv *model.Conversation) error
	GetConversation(ctx context.Context, conversationID string) (*model.Conversation, error)
	ListConversations(ctx context.Context, userID string) ([]*model.Conversation, error)
	DeleteConversation(ctx context.Context, conversationID string) error

	AddMessage(ctx context.Context, conversationID string, message *model.Message) error
	GetMessages(ctx context.Context, conversationID string) ([]model.Message, error)

	// CountUserMessagesSince feeds the entitlement gate: how many messages
	// the user has authored across all conversations since the given time.
	CountUserMessagesSince(ctx context.Context, userID string, since time.Time) (int, error)
}
