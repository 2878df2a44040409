package chat

import (
	"context"

	"github.com/andrewdmason/undercurrent-sub000/internal/domain/models/chat"
)

// ChatRepository defines the interface for chat data access.
type ChatRepository interface {
	// CreateChat inserts a chat and fills in ID and timestamps
	CreateChat(ctx context.Context, c *chat.Chat) error

	// GetChat retrieves a chat by ID
	// Returns domain.ErrNotFound if not found
	GetChat(ctx context.Context, chatID string) (*chat.Chat, error)

	// ListChats retrieves all chats of an owner, newest first
	// Returns empty slice if none
	ListChats(ctx context.Context, ownerID string) ([]chat.Chat, error)

	// UpdateChatModel switches the model of a chat
	// Returns domain.ErrNotFound if not found
	UpdateChatModel(ctx context.Context, chatID, model string) error

	// AddTokens adds n to the running token total of a chat
	AddTokens(ctx context.Context, chatID string, n int) error

	// DeleteChat removes a chat and its messages
	// Returns domain.ErrNotFound if not found
	DeleteChat(ctx context.Context, chatID string) error
}

// MessageRepository defines the interface for message data access.
type MessageRepository interface {
	// CreateMessage inserts a message and fills in ID and CreatedAt
	CreateMessage(ctx context.Context, msg *chat.Message) error

	// ListMessages returns the messages of a chat in creation order
	ListMessages(ctx context.Context, chatID string) ([]chat.Message, error)

	// CountMessages returns how many messages a chat has
	CountMessages(ctx context.Context, chatID string) (int, error)
}
