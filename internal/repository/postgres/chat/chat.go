package chat

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	chatModels "github.com/andrewdmason/undercurrent-sub000/internal/domain/models/chat"
	chatRepo "github.com/andrewdmason/undercurrent-sub000/internal/domain/repositories/chat"
	"github.com/andrewdmason/undercurrent-sub000/internal/repository/postgres"
)

// PostgresChatRepository implements the ChatRepository interface using PostgreSQL.
type PostgresChatRepository struct {
	pool   postgres.Pool
	tables *postgres.TableNames
	logger *slog.Logger
}

// NewChatRepository creates a new PostgresChatRepository.
func NewChatRepository(config *postgres.RepositoryConfig) chatRepo.ChatRepository {
	return &PostgresChatRepository{
		pool:   config.Pool,
		tables: config.Tables,
		logger: config.Logger,
	}
}

// CreateChat creates a new chat.
func (r *PostgresChatRepository) CreateChat(ctx context.Context, chat *chatModels.Chat) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (owner_id, model, total_tokens, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at, updated_at
	`, r.tables.Chats)

	executor := postgres.GetExecutor(ctx, r.pool)
	err := executor.QueryRow(ctx, query,
		chat.OwnerID,
		chat.Model,
		chat.TotalTokens,
		chat.CreatedAt,
		chat.UpdatedAt,
	).Scan(&chat.ID, &chat.CreatedAt, &chat.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create chat: %w", err)
	}

	r.logger.Debug("chat created", "chat_id", chat.ID, "owner_id", chat.OwnerID)
	return nil
}

// GetChat retrieves a chat by ID.
func (r *PostgresChatRepository) GetChat(ctx context.Context, chatID string) (*chatModels.Chat, error) {
	query := fmt.Sprintf(`
		SELECT id, owner_id, model, total_tokens, created_at, updated_at
		FROM %s
		WHERE id = $1
	`, r.tables.Chats)

	var chat chatModels.Chat
	executor := postgres.GetExecutor(ctx, r.pool)
	err := executor.QueryRow(ctx, query, chatID).Scan(
		&chat.ID,
		&chat.OwnerID,
		&chat.Model,
		&chat.TotalTokens,
		&chat.CreatedAt,
		&chat.UpdatedAt,
	)
	if err != nil {
		return nil, postgres.ChatError(err, chatID, "get chat")
	}

	return &chat, nil
}

// ListChats retrieves all chats of an owner, most recently updated first.
func (r *PostgresChatRepository) ListChats(ctx context.Context, ownerID string) ([]chatModels.Chat, error) {
	query := fmt.Sprintf(`
		SELECT id, owner_id, model, total_tokens, created_at, updated_at
		FROM %s
		WHERE owner_id = $1
		ORDER BY updated_at DESC
	`, r.tables.Chats)

	executor := postgres.GetExecutor(ctx, r.pool)
	rows, err := executor.Query(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list chats: %w", err)
	}
	defer rows.Close()

	var chats []chatModels.Chat
	for rows.Next() {
		var chat chatModels.Chat
		err := rows.Scan(
			&chat.ID,
			&chat.OwnerID,
			&chat.Model,
			&chat.TotalTokens,
			&chat.CreatedAt,
			&chat.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan chat: %w", err)
		}
		chats = append(chats, chat)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate chats: %w", err)
	}

	// Return empty slice instead of nil
	if chats == nil {
		chats = []chatModels.Chat{}
	}

	return chats, nil
}

// UpdateChatModel switches the model of a chat.
func (r *PostgresChatRepository) UpdateChatModel(ctx context.Context, chatID, model string) error {
	query := fmt.Sprintf(`
		UPDATE %s
		SET model = $1, updated_at = $2
		WHERE id = $3
	`, r.tables.Chats)

	executor := postgres.GetExecutor(ctx, r.pool)
	result, err := executor.Exec(ctx, query, model, time.Now(), chatID)
	if err != nil {
		return postgres.ChatError(err, chatID, "update chat model")
	}

	if result.RowsAffected() == 0 {
		return postgres.ChatNotFound(chatID)
	}

	return nil
}

// AddTokens adds n to the running token total of a chat.
func (r *PostgresChatRepository) AddTokens(ctx context.Context, chatID string, n int) error {
	query := fmt.Sprintf(`
		UPDATE %s
		SET total_tokens = total_tokens + $1, updated_at = $2
		WHERE id = $3
	`, r.tables.Chats)

	executor := postgres.GetExecutor(ctx, r.pool)
	result, err := executor.Exec(ctx, query, n, time.Now(), chatID)
	if err != nil {
		return postgres.ChatError(err, chatID, "add chat tokens")
	}

	if result.RowsAffected() == 0 {
		return postgres.ChatNotFound(chatID)
	}

	return nil
}

// DeleteChat removes a chat; its messages go with it (ON DELETE CASCADE).
func (r *PostgresChatRepository) DeleteChat(ctx context.Context, chatID string) error {
	query := fmt.Sprintf(`DELETE FROM %s WHERE id = $1`, r.tables.Chats)

	executor := postgres.GetExecutor(ctx, r.pool)
	result, err := executor.Exec(ctx, query, chatID)
	if err != nil {
		return postgres.ChatError(err, chatID, "delete chat")
	}

	if result.RowsAffected() == 0 {
		return postgres.ChatNotFound(chatID)
	}

	r.logger.Info("chat deleted", "chat_id", chatID)
	return nil
}
