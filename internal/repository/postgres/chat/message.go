package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	chatModels "github.com/andrewdmason/undercurrent-sub000/internal/domain/models/chat"
	chatRepo "github.com/andrewdmason/undercurrent-sub000/internal/domain/repositories/chat"
	"github.com/andrewdmason/undercurrent-sub000/internal/repository/postgres"
)

// PostgresMessageRepository implements the MessageRepository interface using PostgreSQL.
type PostgresMessageRepository struct {
	pool   postgres.Pool
	tables *postgres.TableNames
	logger *slog.Logger
}

// NewMessageRepository creates a new PostgresMessageRepository.
func NewMessageRepository(config *postgres.RepositoryConfig) chatRepo.MessageRepository {
	return &PostgresMessageRepository{
		pool:   config.Pool,
		tables: config.Tables,
		logger: config.Logger,
	}
}

// CreateMessage inserts a message.
func (r *PostgresMessageRepository) CreateMessage(ctx context.Context, msg *chatModels.Message) error {
	toolCalls, err := marshalToolCalls(msg.ToolCalls)
	if err != nil {
		return err
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (chat_id, role, content, tool_calls, token_count, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at
	`, r.tables.Messages)

	executor := postgres.GetExecutor(ctx, r.pool)
	err = executor.QueryRow(ctx, query,
		msg.ChatID,
		msg.Role,
		msg.Content,
		toolCalls,
		msg.TokenCount,
		msg.CreatedAt,
	).Scan(&msg.ID, &msg.CreatedAt)
	if err != nil {
		return postgres.ChatError(err, msg.ChatID, "create message")
	}

	return nil
}

// ListMessages returns the messages of a chat in creation order.
func (r *PostgresMessageRepository) ListMessages(ctx context.Context, chatID string) ([]chatModels.Message, error) {
	query := fmt.Sprintf(`
		SELECT id, chat_id, role, content, tool_calls, token_count, created_at
		FROM %s
		WHERE chat_id = $1
		ORDER BY created_at ASC, id ASC
	`, r.tables.Messages)

	executor := postgres.GetExecutor(ctx, r.pool)
	rows, err := executor.Query(ctx, query, chatID)
	if err != nil {
		return nil, postgres.ChatError(err, chatID, "list messages")
	}
	defer rows.Close()

	var messages []chatModels.Message
	for rows.Next() {
		var msg chatModels.Message
		var toolCalls []byte
		err := rows.Scan(
			&msg.ID,
			&msg.ChatID,
			&msg.Role,
			&msg.Content,
			&toolCalls,
			&msg.TokenCount,
			&msg.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		if len(toolCalls) > 0 {
			if err := json.Unmarshal(toolCalls, &msg.ToolCalls); err != nil {
				// Keep the message, drop only the unreadable descriptors
				r.logger.Warn("invalid tool_calls column",
					"message_id", msg.ID,
					"error", err,
				)
			}
		}
		messages = append(messages, msg)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}

	if messages == nil {
		messages = []chatModels.Message{}
	}

	return messages, nil
}

// CountMessages returns how many messages a chat has.
func (r *PostgresMessageRepository) CountMessages(ctx context.Context, chatID string) (int, error) {
	query := fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE chat_id = $1`, r.tables.Messages)

	var count int
	executor := postgres.GetExecutor(ctx, r.pool)
	if err := executor.QueryRow(ctx, query, chatID).Scan(&count); err != nil {
		return 0, fmt.Errorf("count messages: %w", err)
	}

	return count, nil
}

func marshalToolCalls(calls []chatModels.ToolCallDescriptor) ([]byte, error) {
	if len(calls) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(calls)
	if err != nil {
		return nil, fmt.Errorf("marshal tool calls: %w", err)
	}
	return data, nil
}
