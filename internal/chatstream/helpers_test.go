package chatstream

import (
	"encoding/json"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/andrewdmason/undercurrent-sub000/internal/domain/models/chat"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testCatalog(t *testing.T) *EffectCatalog {
	t.Helper()
	catalog, err := DefaultEffectCatalog()
	require.NoError(t, err)
	return catalog
}

func toolCallEvent(name, args string) chat.StreamEvent {
	return chat.StreamEvent{Type: chat.EventToolCall, Name: name, Arguments: json.RawMessage(args)}
}

// toolResultEvent builds a tool_result from a raw result object.
func toolResultEvent(t *testing.T, name, result string) chat.StreamEvent {
	t.Helper()
	var r chat.ToolResult
	require.NoError(t, json.Unmarshal([]byte(result), &r))
	return chat.StreamEvent{Type: chat.EventToolResult, Name: name, Result: &r}
}

// frame renders an event the way the server writes it.
func frame(t *testing.T, ev chat.StreamEvent) string {
	t.Helper()
	f, err := chat.FormatFrame(ev)
	require.NoError(t, err)
	return f
}

// recorder collects hook calls in order.
type recorder struct {
	calls   []string
	scripts []string
}

func (r *recorder) hooks() Hooks {
	return Hooks{
		OnToolCallStart:  func(name string) { r.calls = append(r.calls, "start:"+name) },
		OnToolCallEnd:    func(name string) { r.calls = append(r.calls, "end:"+name) },
		OnScriptUpdate:   func(content string) { r.calls = append(r.calls, "script"); r.scripts = append(r.scripts, content) },
		OnIdeaRegenerate: func() { r.calls = append(r.calls, "regenerate") },
		OnDataRefresh:    func() { r.calls = append(r.calls, "refresh") },
	}
}
