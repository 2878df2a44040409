package domain

import (
	"errors"
	"fmt"
	"net/http"
)

// HTTPError defines errors that can be mapped to HTTP status codes.
type HTTPError interface {
	error
	StatusCode() int
}

// Domain error types implementing HTTPError interface
type (
	// NotFoundError indicates a resource was not found
	NotFoundError struct {
		Message string
	}

	// ValidationError indicates invalid input
	ValidationError struct {
		Message string
	}
)

func (e *NotFoundError) Error() string   { return e.Message }
func (e *ValidationError) Error() string { return e.Message }

func (e *NotFoundError) StatusCode() int   { return http.StatusNotFound }
func (e *ValidationError) StatusCode() int { return http.StatusBadRequest }

// Sentinel errors - use with errors.Is()
var (
	ErrNotFound   = errors.New("not found")
	ErrConflict   = errors.New("already exists")
	ErrValidation = errors.New("validation failed")

	// ErrTurnInFlight is returned when a turn is submitted while another
	// turn of the same session is still streaming.
	ErrTurnInFlight = errors.New("a turn is already streaming for this session")

	// ErrInitAlreadySent is returned when an init turn was already sent for the chat.
	ErrInitAlreadySent = errors.New("init turn already sent for this chat")

	// ErrMalformedFrame marks a frame whose JSON payload could not be decoded.
	// It is recoverable: the frame is skipped and the stream continues.
	ErrMalformedFrame = errors.New("malformed frame")
)

// ConflictError represents a resource conflict with details about the existing resource.
type ConflictError struct {
	Message      string
	ResourceType string
	ResourceID   string
}

func (e *ConflictError) Error() string {
	return e.Message
}

func (e *ConflictError) StatusCode() int {
	return http.StatusConflict
}

// Is allows errors.Is() to match against ErrConflict.
func (e *ConflictError) Is(target error) bool {
	return target == ErrConflict
}

// TransportError is a fatal failure to open or read the completion stream
// (non-2xx status, missing body, broken connection).
type TransportError struct {
	Status  int // 0 when no response was received
	Message string
	Err     error
}

func (e *TransportError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("stream request failed (status=%d): %s", e.Status, e.Message)
	}
	if e.Err != nil {
		return fmt.Sprintf("stream request failed: %s: %v", e.Message, e.Err)
	}
	return "stream request failed: " + e.Message
}

func (e *TransportError) Unwrap() error { return e.Err }

// StatusCode returns the upstream status, or 502 when none was received.
func (e *TransportError) StatusCode() int {
	if e.Status != 0 {
		return e.Status
	}
	return http.StatusBadGateway
}

// ProtocolError carries the message of an `error` event sent by the server.
type ProtocolError struct {
	Message string
}

func (e *ProtocolError) Error() string { return e.Message }

func (e *ProtocolError) StatusCode() int { return http.StatusBadGateway }

// IsFatalStreamError reports whether err aborts a whole turn.
func IsFatalStreamError(err error) bool {
	var transportErr *TransportError
	var protocolErr *ProtocolError
	return errors.As(err, &transportErr) || errors.As(err, &protocolErr)
}
