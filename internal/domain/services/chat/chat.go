package chat

import (
	"context"

	"github.com/andrewdmason/undercurrent-sub000/internal/domain/models/chat"
)

// CreateChatRequest represents a request to create a chat.
type CreateChatRequest struct {
	OwnerID string `json:"owner_id"`
	Model   string `json:"model"`
}

// UpdateChatRequest represents a request to switch the model of a chat.
type UpdateChatRequest struct {
	Model string `json:"model"`
}

// ChatService defines business logic operations for chats and their messages.
// Every call is scoped to an owner: a chat of another owner is reported as
// domain.ErrNotFound.
type ChatService interface {
	// CreateChat creates an empty chat. An empty model selects the default.
	CreateChat(ctx context.Context, req *CreateChatRequest) (*chat.Chat, error)

	// GetChat retrieves a chat by ID
	GetChat(ctx context.Context, chatID, ownerID string) (*chat.Chat, error)

	// ListChats retrieves all chats of an owner, most recently updated first
	ListChats(ctx context.Context, ownerID string) ([]chat.Chat, error)

	// GetMessages returns the persisted messages of a chat in order
	GetMessages(ctx context.Context, chatID, ownerID string) ([]chat.Message, error)

	// UpdateChatModel switches the model used for later turns
	UpdateChatModel(ctx context.Context, chatID, ownerID string, req *UpdateChatRequest) (*chat.Chat, error)

	// DeleteChat deletes a chat and its messages
	DeleteChat(ctx context.Context, chatID, ownerID string) error

	// AddUserMessage persists the user message of a text turn
	AddUserMessage(ctx context.Context, chatID, ownerID, content string) (*chat.Message, error)

	// AppendExchange persists the assistant and tool messages of a finished
	// turn and adds their tokens to the chat total, atomically.
	AppendExchange(ctx context.Context, chatID string, messages []chat.Message) error
}
