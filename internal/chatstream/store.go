package chatstream

import (
	"context"
	"io"

	"github.com/andrewdmason/undercurrent-sub000/internal/domain/models/chat"
)

// MessageLoader loads the persisted messages of a chat.
type MessageLoader interface {
	GetMessages(ctx context.Context, chatID string) ([]chat.Message, error)
}

// Store is the persistence collaborator a conversation talks to.
type Store interface {
	MessageLoader
	CreateChat(ctx context.Context, ownerID, model string) (*chat.Chat, error)
	ListChats(ctx context.Context, ownerID string) ([]chat.Chat, error)
	UpdateChatModel(ctx context.Context, chatID, model string) error
	DeleteChat(ctx context.Context, chatID string) error
}

// Transport opens the completion stream for one turn. The returned body
// yields "data: " frames and must be closed by the caller.
type Transport interface {
	OpenStream(ctx context.Context, req chat.TurnRequest) (io.ReadCloser, error)
}
