package postgres

import (
	"context"
	"fmt"
	"log/slog"
)

// SchemaStatements returns the DDL for the chat tables, one statement per entry.
func SchemaStatements(tables *TableNames) []string {
	return []string{
		fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			owner_id TEXT NOT NULL,
			model VARCHAR(255) NOT NULL,
			total_tokens INTEGER NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`, tables.Chats),
		fmt.Sprintf(`
		CREATE INDEX IF NOT EXISTS idx_%s_owner_updated ON %s (owner_id, updated_at DESC)`,
			tables.Chats, tables.Chats),
		fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			chat_id UUID NOT NULL REFERENCES %s (id) ON DELETE CASCADE,
			role TEXT NOT NULL CHECK (role IN ('user', 'assistant', 'tool')),
			content TEXT NOT NULL,
			tool_calls JSONB,
			token_count INTEGER,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`, tables.Messages, tables.Chats),
		fmt.Sprintf(`
		CREATE INDEX IF NOT EXISTS idx_%s_chat_created ON %s (chat_id, created_at)`,
			tables.Messages, tables.Messages),
	}
}

// EnsureSchema creates the chat tables if they do not exist yet.
func EnsureSchema(ctx context.Context, db Pool, tables *TableNames, logger *slog.Logger) error {
	for _, stmt := range SchemaStatements(tables) {
		if _, err := db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	logger.Info("schema ready", "chats", tables.Chats, "messages", tables.Messages)
	return nil
}

// DropSchema drops the chat tables, messages first.
func DropSchema(ctx context.Context, db Pool, tables *TableNames, logger *slog.Logger) error {
	for _, table := range []string{tables.Messages, tables.Chats} {
		if _, err := db.Exec(ctx, fmt.Sprintf("DROP TABLE IF EXISTS %s CASCADE", table)); err != nil {
			return fmt.Errorf("drop %s: %w", table, err)
		}
	}
	logger.Warn("schema dropped", "chats", tables.Chats, "messages", tables.Messages)
	return nil
}

// ClearData deletes every chat and, through the cascade, every message.
// Returns the number of chats removed.
func ClearData(ctx context.Context, db Pool, tables *TableNames, logger *slog.Logger) (int64, error) {
	result, err := db.Exec(ctx, fmt.Sprintf("DELETE FROM %s", tables.Chats))
	if err != nil {
		return 0, fmt.Errorf("clear chats: %w", err)
	}
	logger.Warn("chat data cleared", "chats", result.RowsAffected())
	return result.RowsAffected(), nil
}
