package chat

import (
	"time"
)

// Chat is one AI conversation owned by a user.
type Chat struct {
	ID          string    `json:"id" db:"id"`
	OwnerID     string    `json:"owner_id" db:"owner_id"`
	Model       string    `json:"model" db:"model"`
	TotalTokens int       `json:"total_tokens" db:"total_tokens"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`
}
