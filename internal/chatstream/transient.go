package chatstream

import (
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/andrewdmason/undercurrent-sub000/internal/domain/models/chat"
)

// ToolCallRecord is one announced tool call of the streaming turn.
// Ordinal counts calls of the same name, starting at 0.
type ToolCallRecord struct {
	Name         string          `json:"name"`
	Ordinal      int             `json:"ordinal"`
	Arguments    json.RawMessage `json:"arguments,omitempty"`
	PendingSince time.Time       `json:"pending_since"`
}

// ToolResultRecord is one delivered tool result. Matched is false for a
// result whose name was never announced.
type ToolResultRecord struct {
	Name        string          `json:"name"`
	Ordinal     int             `json:"ordinal"`
	Result      chat.ToolResult `json:"result"`
	Matched     bool            `json:"matched"`
	DeliveredAt time.Time       `json:"delivered_at"`
}

// TransientSnapshot is a copy of the in-flight turn state.
type TransientSnapshot struct {
	Text         string             `json:"text"`
	ToolCalls    []ToolCallRecord   `json:"tool_calls"`
	ToolResults  []ToolResultRecord `json:"tool_results"`
	PendingSince time.Time          `json:"pending_since"`
}

// transientTurn accumulates what the open turn has streamed so far.
// It is written by the turn goroutine and read by the host.
type transientTurn struct {
	mu           sync.RWMutex
	text         strings.Builder
	toolCalls    []ToolCallRecord
	toolResults  []ToolResultRecord
	pendingSince time.Time
}

func newTransientTurn() *transientTurn {
	return &transientTurn{}
}

func (t *transientTurn) appendText(delta string) {
	t.mu.Lock()
	t.text.WriteString(delta)
	t.mu.Unlock()
}

func (t *transientTurn) addToolCall(rec ToolCallRecord) {
	t.mu.Lock()
	t.toolCalls = append(t.toolCalls, rec)
	t.pendingSince = rec.PendingSince
	t.mu.Unlock()
}

func (t *transientTurn) addToolResult(rec ToolResultRecord) {
	t.mu.Lock()
	t.toolResults = append(t.toolResults, rec)
	t.mu.Unlock()
}

func (t *transientTurn) snapshot() TransientSnapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return TransientSnapshot{
		Text:         t.text.String(),
		ToolCalls:    append([]ToolCallRecord(nil), t.toolCalls...),
		ToolResults:  append([]ToolResultRecord(nil), t.toolResults...),
		PendingSince: t.pendingSince,
	}
}
