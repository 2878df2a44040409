package chat

import (
	"encoding/json"
	"fmt"
)

// Stream event type constants
const (
	EventText       = "text"        // Incremental assistant text
	EventToolCall   = "tool_call"   // Assistant invoked a tool
	EventToolResult = "tool_result" // Outcome of an announced tool call
	EventError      = "error"       // Terminal failure
	EventDone       = "done"        // Terminal success, no payload
)

// FramePrefix starts every frame on the wire.
const FramePrefix = "data: "

// StreamEvent is one decoded frame of the completion stream.
// Only the fields relevant to Type are set.
//
// Wire format:
//
//	data: {"type":"tool_call","name":"update_script","arguments":{"script":"..."}}
type StreamEvent struct {
	Type      string          `json:"type"`
	Content   string          `json:"content,omitempty"`
	Name      string          `json:"name,omitempty"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
	Result    *ToolResult     `json:"result,omitempty"`
	Error     string          `json:"error,omitempty"`
}

// ToolResult is the outcome object of a tool_result event. Tools may add
// arbitrary fields next to success/message/error; Raw keeps the full object.
type ToolResult struct {
	Success bool            `json:"success"`
	Message string          `json:"message,omitempty"`
	Error   string          `json:"error,omitempty"`
	Raw     json.RawMessage `json:"-"`
}

type toolResultFields ToolResult

// UnmarshalJSON decodes the known fields and keeps the raw object.
func (r *ToolResult) UnmarshalJSON(data []byte) error {
	var fields toolResultFields
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	*r = ToolResult(fields)
	r.Raw = append(json.RawMessage(nil), data...)
	return nil
}

// MarshalJSON writes Raw when present so extra tool fields survive a round trip.
func (r ToolResult) MarshalJSON() ([]byte, error) {
	if len(r.Raw) > 0 {
		return r.Raw, nil
	}
	return json.Marshal(toolResultFields(r))
}

// FormatFrame formats an event for transmission:
//
//	data: {"type":"text","content":"Hi"}
//	\n
func FormatFrame(event StreamEvent) (string, error) {
	jsonData, err := json.Marshal(event)
	if err != nil {
		return "", fmt.Errorf("failed to marshal stream event: %w", err)
	}
	return fmt.Sprintf("%s%s\n\n", FramePrefix, jsonData), nil
}

// Helper constructors

func NewTextEvent(content string) StreamEvent {
	return StreamEvent{Type: EventText, Content: content}
}

func NewToolCallEvent(name string, arguments interface{}) (StreamEvent, error) {
	raw, err := json.Marshal(arguments)
	if err != nil {
		return StreamEvent{}, fmt.Errorf("marshal tool arguments: %w", err)
	}
	return StreamEvent{Type: EventToolCall, Name: name, Arguments: raw}, nil
}

// NewToolResultEvent builds a tool_result event. extra fields are merged into
// the result object next to success/message/error.
func NewToolResultEvent(name string, success bool, message, errMsg string, extra map[string]interface{}) (StreamEvent, error) {
	obj := make(map[string]interface{}, len(extra)+3)
	for k, v := range extra {
		obj[k] = v
	}
	obj["success"] = success
	if message != "" {
		obj["message"] = message
	}
	if errMsg != "" {
		obj["error"] = errMsg
	}
	raw, err := json.Marshal(obj)
	if err != nil {
		return StreamEvent{}, fmt.Errorf("marshal tool result: %w", err)
	}
	return StreamEvent{
		Type: EventToolResult,
		Name: name,
		Result: &ToolResult{
			Success: success,
			Message: message,
			Error:   errMsg,
			Raw:     raw,
		},
	}, nil
}

func NewErrorEvent(msg string) StreamEvent {
	return StreamEvent{Type: EventError, Error: msg}
}

func NewDoneEvent() StreamEvent {
	return StreamEvent{Type: EventDone}
}
