package chatstream

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/jonboulle/clockwork"

	"github.com/andrewdmason/undercurrent-sub000/internal/chatstream/sse"
	"github.com/andrewdmason/undercurrent-sub000/internal/config"
	"github.com/andrewdmason/undercurrent-sub000/internal/domain"
	"github.com/andrewdmason/undercurrent-sub000/internal/domain/models/chat"
)

// ErrChatNotEmpty is returned for an init turn on a chat that already has messages.
var ErrChatNotEmpty = errors.New("chat already has messages")

// errStreamDone stops frame reading once the done marker arrives.
var errStreamDone = errors.New("stream done")

// SessionState is the turn state of a session.
type SessionState int

const (
	StateIdle SessionState = iota
	StateStreaming
)

func (s SessionState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStreaming:
		return "streaming"
	default:
		return fmt.Sprintf("SessionState(%d)", int(s))
	}
}

// SessionConfig wires a Session. Transport, Loader and Logger are required.
type SessionConfig struct {
	Transport Transport
	Loader    MessageLoader
	Messages  *MessageList   // defaults to a new list
	Guard     *InitGuard     // defaults to a new guard
	Catalog   *EffectCatalog // defaults to the embedded catalog
	Hooks     Hooks
	Clock     clockwork.Clock // defaults to the real clock
	// MinPending is the tool-call display floor; zero selects DefaultMinPending.
	MinPending time.Duration
	Logger     *slog.Logger
}

// Session runs turns of one chat host: Idle -> Streaming -> Idle.
// A turn submitted while another is streaming is rejected, not queued.
type Session struct {
	transport  Transport
	loader     MessageLoader
	messages   *MessageList
	guard      *InitGuard
	catalog    *EffectCatalog
	hooks      Hooks
	clock      clockwork.Clock
	minPending time.Duration
	logger     *slog.Logger

	mu        sync.Mutex
	state     SessionState
	transient *transientTurn
}

// NewSession creates an idle session.
func NewSession(cfg SessionConfig) (*Session, error) {
	if cfg.Transport == nil {
		return nil, errors.New("session: transport is required")
	}
	if cfg.Loader == nil {
		return nil, errors.New("session: message loader is required")
	}
	if cfg.Logger == nil {
		return nil, errors.New("session: logger is required")
	}
	if cfg.MinPending < 0 {
		return nil, fmt.Errorf("session: negative tool pending floor %s", cfg.MinPending)
	}

	s := &Session{
		transport:  cfg.Transport,
		loader:     cfg.Loader,
		messages:   cfg.Messages,
		guard:      cfg.Guard,
		catalog:    cfg.Catalog,
		hooks:      cfg.Hooks,
		clock:      cfg.Clock,
		minPending: cfg.MinPending,
		logger:     cfg.Logger,
	}
	if s.messages == nil {
		s.messages = NewMessageList()
	}
	if s.guard == nil {
		s.guard = NewInitGuard()
	}
	if s.catalog == nil {
		catalog, err := DefaultEffectCatalog()
		if err != nil {
			return nil, err
		}
		s.catalog = catalog
	}
	if s.clock == nil {
		s.clock = clockwork.NewRealClock()
	}
	if s.minPending == 0 {
		s.minPending = DefaultMinPending
	}
	return s, nil
}

// TurnInput is one turn to submit. Text is ignored for init turns.
type TurnInput struct {
	ChatID          string
	Text            string
	Init            bool
	Model           string
	ScriptQuestions []chat.ScriptQuestion
}

// Validate checks the turn before anything is sent.
func (in TurnInput) Validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.ChatID, validation.Required),
		validation.Field(&in.Model, validation.Length(0, config.MaxModelLength)),
		validation.Field(&in.Text,
			validation.When(!in.Init,
				validation.Required.Error("message cannot be blank"),
				validation.RuneLength(1, config.MaxMessageLength),
			),
		),
	)
}

// TurnResult is what a completed turn produced.
type TurnResult struct {
	Text          string
	ToolCalls     []ToolCallRecord
	ToolResults   []ToolResultRecord
	Messages      []chat.Message // authoritative list after reconciliation
	Completed     bool           // the done marker was received
	SkippedFrames int            // malformed frames dropped
}

// State returns the current turn state.
func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Transient returns a copy of the streaming turn's state; false when idle.
func (s *Session) Transient() (TransientSnapshot, bool) {
	s.mu.Lock()
	transient := s.transient
	s.mu.Unlock()
	if transient == nil {
		return TransientSnapshot{}, false
	}
	return transient.snapshot(), true
}

// Messages returns the message list the session reconciles into.
func (s *Session) Messages() *MessageList {
	return s.messages
}

// Guard returns the session's init guard.
func (s *Session) Guard() *InitGuard {
	return s.guard
}

// SubmitTurn runs one turn end to end.
//
// Text turns first append an optimistic user message. The stream is then
// consumed frame by frame until done or EOF, and on success the message list
// is reloaded from the loader, which is the only point where persisted state
// replaces local state. On a fatal error (transport, protocol, cancellation)
// the optimistic message is removed, OnError fires (except for
// cancellation) and the error is returned; nothing is retried.
//
// Init turns go through the init guard and require an empty chat.
// A message list with no active chat adopts the turn's chat.
func (s *Session) SubmitTurn(ctx context.Context, in TurnInput) (*TurnResult, error) {
	if !in.Init {
		in.Text = strings.TrimSpace(in.Text)
	}
	if err := in.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}

	transient, err := s.begin()
	if err != nil {
		return nil, err
	}
	defer s.end()

	logger := s.logger.With("chat_id", in.ChatID, "init", in.Init)

	req := chat.TurnRequest{
		ChatID:          in.ChatID,
		IsInit:          in.Init,
		Model:           in.Model,
		ScriptQuestions: in.ScriptQuestions,
	}

	var optimisticID string
	if in.Init {
		if !s.guard.TryBegin(in.ChatID) {
			logger.Debug("init turn already sent, skipping")
			return nil, domain.ErrInitAlreadySent
		}
		empty, err := s.chatIsEmpty(ctx, in.ChatID)
		if err != nil {
			return nil, err
		}
		if !empty {
			logger.Debug("chat already has messages, skipping init")
			return nil, ErrChatNotEmpty
		}
		s.messages.Adopt(in.ChatID)
	} else {
		text := in.Text
		req.Message = &text
		s.messages.Adopt(in.ChatID)

		msg := chat.NewTempUserMessage(in.ChatID, text)
		if s.messages.Append(in.ChatID, msg) {
			optimisticID = msg.ID
		} else {
			logger.Debug("message list shows another chat, no optimistic message")
		}
	}

	logger.Info("turn started", "model", in.Model)

	result, err := s.stream(ctx, req, transient, logger)
	if err != nil {
		if optimisticID != "" {
			s.messages.Remove(optimisticID)
		}
		if errors.Is(err, context.Canceled) {
			logger.Info("turn cancelled")
		} else {
			logger.Error("turn failed", "error", err)
			s.hooks.fail(err)
		}
		return nil, err
	}

	messages, err := s.loader.GetMessages(ctx, in.ChatID)
	if err != nil {
		// The optimistic message stays until the next successful load
		logger.Error("failed to reload messages", "error", err)
		return result, fmt.Errorf("reload messages: %w", err)
	}
	if !s.messages.Replace(in.ChatID, messages) {
		logger.Debug("reload is stale, list shows another chat")
	}
	result.Messages = messages

	logger.Info("turn completed",
		"messages", len(messages),
		"tool_calls", len(result.ToolCalls),
		"completed", result.Completed,
	)
	return result, nil
}

func (s *Session) begin() (*transientTurn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateIdle {
		return nil, domain.ErrTurnInFlight
	}
	s.state = StateStreaming
	s.transient = newTransientTurn()
	return s.transient, nil
}

func (s *Session) end() {
	s.mu.Lock()
	s.state = StateIdle
	s.transient = nil
	s.mu.Unlock()
}

func (s *Session) chatIsEmpty(ctx context.Context, chatID string) (bool, error) {
	if s.messages.ChatID() == chatID {
		return s.messages.Len() == 0, nil
	}
	messages, err := s.loader.GetMessages(ctx, chatID)
	if err != nil {
		return false, fmt.Errorf("check chat messages: %w", err)
	}
	return len(messages) == 0, nil
}

// stream opens the completion stream and dispatches its events.
func (s *Session) stream(ctx context.Context, req chat.TurnRequest, transient *transientTurn, logger *slog.Logger) (*TurnResult, error) {
	body, err := s.transport.OpenStream(ctx, req)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	run := &turnRun{
		transient: transient,
		tools:     newToolCallController(s.clock, s.minPending, s.catalog, &s.hooks, transient, logger),
		hooks:     &s.hooks,
		logger:    logger,
	}

	dropped, err := sse.ReadFrames(ctx, body, func(frame string) error {
		return run.handleFrame(ctx, frame)
	})
	switch {
	case errors.Is(err, errStreamDone):
	case err != nil:
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		if domain.IsFatalStreamError(err) {
			return nil, err
		}
		return nil, &domain.TransportError{Message: "stream interrupted", Err: err}
	}

	if dropped > 0 {
		logger.Debug("dropped partial frame at end of stream", "bytes", dropped)
	}
	if pending := run.tools.pendingCount(); pending > 0 {
		logger.Warn("stream ended with unresolved tool calls", "pending", pending)
	}

	snap := transient.snapshot()
	return &TurnResult{
		Text:          snap.Text,
		ToolCalls:     snap.ToolCalls,
		ToolResults:   snap.ToolResults,
		Completed:     run.done,
		SkippedFrames: run.skipped,
	}, nil
}

// turnRun dispatches the events of one stream, strictly in arrival order.
type turnRun struct {
	transient *transientTurn
	tools     *toolCallController
	hooks     *Hooks
	logger    *slog.Logger

	done    bool
	skipped int
}

func (r *turnRun) handleFrame(ctx context.Context, frame string) error {
	ev, err := ParseEvent(sse.Payload(frame))
	if err != nil {
		if errors.Is(err, domain.ErrMalformedFrame) {
			r.skipped++
			r.logger.Warn("skipping malformed frame", "error", err)
			return nil
		}
		return err
	}
	return r.handleEvent(ctx, ev)
}

func (r *turnRun) handleEvent(ctx context.Context, ev chat.StreamEvent) error {
	if !IsKnownEvent(ev.Type) {
		r.logger.Debug("ignoring unknown event", "type", ev.Type)
		return nil
	}

	switch ev.Type {
	case chat.EventText:
		if ev.Content == "" {
			return nil
		}
		r.transient.appendText(ev.Content)
		r.hooks.text(ev.Content)
	case chat.EventToolCall:
		r.tools.announce(ev)
	case chat.EventToolResult:
		return r.tools.resolve(ctx, ev)
	case chat.EventError:
		msg := ev.Error
		if msg == "" {
			msg = "the assistant reported an error"
		}
		return &domain.ProtocolError{Message: msg}
	case chat.EventDone:
		r.done = true
		return errStreamDone
	}
	return nil
}
