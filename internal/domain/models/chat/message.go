package chat

import (
	"encoding/json"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

// Message roles
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// TempIDPrefix marks messages that only exist locally and were never persisted.
const TempIDPrefix = "temp-"

// ToolCallDescriptor describes a tool invocation attached to an assistant message.
type ToolCallDescriptor struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

// Message is a persisted chat message.
type Message struct {
	ID         string               `json:"id" db:"id"`
	ChatID     string               `json:"chat_id" db:"chat_id"`
	Role       string               `json:"role" db:"role"`
	Content    string               `json:"content" db:"content"`
	ToolCalls  []ToolCallDescriptor `json:"tool_calls,omitempty" db:"tool_calls"`
	TokenCount *int                 `json:"token_count,omitempty" db:"token_count"`
	CreatedAt  time.Time            `json:"created_at" db:"created_at"`
}

// IsTemporary reports whether the message was fabricated locally.
func (m *Message) IsTemporary() bool {
	return strings.HasPrefix(m.ID, TempIDPrefix)
}

// NewTempUserMessage builds the optimistic user message shown before the
// server has persisted anything.
func NewTempUserMessage(chatID, content string) Message {
	tokens := EstimateTokens(content)
	return Message{
		ID:         TempIDPrefix + uuid.NewString(),
		ChatID:     chatID,
		Role:       RoleUser,
		Content:    content,
		TokenCount: &tokens,
		CreatedAt:  time.Now(),
	}
}

// EstimateTokens is a rough token estimate: 1 token ≈ 4 characters.
func EstimateTokens(text string) int {
	n := utf8.RuneCountInString(text)
	if n == 0 {
		return 0
	}
	return (n + 3) / 4
}

// SumTokens adds up the token counts of messages that carry one.
func SumTokens(messages []Message) int {
	total := 0
	for i := range messages {
		if messages[i].TokenCount != nil {
			total += *messages[i].TokenCount
		}
	}
	return total
}
