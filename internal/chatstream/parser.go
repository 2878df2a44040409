package chatstream

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/andrewdmason/undercurrent-sub000/internal/domain"
	"github.com/andrewdmason/undercurrent-sub000/internal/domain/models/chat"
)

// ParseEvent decodes the payload of one frame (prefix already stripped).
//
// Any decoding failure is reported as domain.ErrMalformedFrame; callers skip
// the frame and keep reading. Events with an unknown type are returned as-is
// and ignored by the dispatcher.
func ParseEvent(payload string) (chat.StreamEvent, error) {
	var ev chat.StreamEvent

	payload = strings.TrimSpace(payload)
	if payload == "" {
		return ev, fmt.Errorf("%w: empty payload", domain.ErrMalformedFrame)
	}

	if err := json.Unmarshal([]byte(payload), &ev); err != nil {
		return chat.StreamEvent{}, fmt.Errorf("%w: %v", domain.ErrMalformedFrame, err)
	}

	switch ev.Type {
	case chat.EventToolCall, chat.EventToolResult:
		if ev.Name == "" {
			return chat.StreamEvent{}, fmt.Errorf("%w: %s without name", domain.ErrMalformedFrame, ev.Type)
		}
	case "":
		return chat.StreamEvent{}, fmt.Errorf("%w: missing type", domain.ErrMalformedFrame)
	}

	if ev.Type == chat.EventToolResult && ev.Result == nil {
		ev.Result = &chat.ToolResult{}
	}

	return ev, nil
}

// IsKnownEvent reports whether the dispatcher acts on events of this type.
func IsKnownEvent(eventType string) bool {
	switch eventType {
	case chat.EventText, chat.EventToolCall, chat.EventToolResult, chat.EventError, chat.EventDone:
		return true
	default:
		return false
	}
}
