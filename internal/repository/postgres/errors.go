package postgres

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/andrewdmason/undercurrent-sub000/internal/domain"
)

// ChatError wraps a failed statement on chatID. A missing row, a malformed
// chat id or a message pointing at a deleted chat all become
// domain.ErrNotFound; anything else is wrapped with op.
func ChatError(err error, chatID, op string) error {
	if IsPgNoRowsError(err) || IsPgInvalidTextError(err) || IsPgForeignKeyError(err) {
		return ChatNotFound(chatID)
	}
	return fmt.Errorf("%s: %w", op, err)
}

// ChatNotFound is the error for a chat id that matched no row.
func ChatNotFound(chatID string) error {
	return fmt.Errorf("chat %s: %w", chatID, domain.ErrNotFound)
}

// IsPgNoRowsError checks if error is a "no rows" error.
func IsPgNoRowsError(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

// IsPgForeignKeyError checks if error is a foreign key violation.
func IsPgForeignKeyError(err error) bool {
	return hasPgCode(err, "23503")
}

// IsPgInvalidTextError checks for invalid_text_representation, which is what
// Postgres returns when a malformed UUID is compared against a uuid column.
func IsPgInvalidTextError(err error) bool {
	return hasPgCode(err, "22P02")
}

func hasPgCode(err error, code string) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == code
	}
	return false
}
