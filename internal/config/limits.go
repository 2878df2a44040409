package config

import "time"

const (
	// MaxMessageLength is the maximum length of a user chat message.
	MaxMessageLength = 20000

	// MaxModelLength is the maximum length for model identifiers.
	// Limited to 255 to fit in PostgreSQL VARCHAR(255).
	MaxModelLength = 255

	// DefaultModel is used when neither the chat nor the request names one.
	DefaultModel = "claude-haiku-4-5-20251001"

	// DefaultToolMinPending is how long a tool call stays visibly pending
	// even if the backend resolves it instantly.
	DefaultToolMinPending = 800 * time.Millisecond
)
