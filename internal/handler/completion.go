package handler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/andrewdmason/undercurrent-sub000/internal/config"
	"github.com/andrewdmason/undercurrent-sub000/internal/domain"
	"github.com/andrewdmason/undercurrent-sub000/internal/domain/models/chat"
	chatSvc "github.com/andrewdmason/undercurrent-sub000/internal/domain/services/chat"
	"github.com/andrewdmason/undercurrent-sub000/internal/handler/sse"
	"github.com/andrewdmason/undercurrent-sub000/internal/httputil"
	"github.com/andrewdmason/undercurrent-sub000/internal/service/responder"
)

// CompletionHandler serves the streaming completion endpoint.
type CompletionHandler struct {
	chatService chatSvc.ChatService
	responder   responder.Responder
	sseConfig   *sse.Config
	clock       clockwork.Clock
	logger      *slog.Logger
}

// NewCompletionHandler creates a new completion handler.
// A nil sseConfig uses sse.DefaultConfig; a nil clock the real clock.
func NewCompletionHandler(
	chatService chatSvc.ChatService,
	resp responder.Responder,
	sseConfig *sse.Config,
	clock clockwork.Clock,
	logger *slog.Logger,
) *CompletionHandler {
	if sseConfig == nil {
		sseConfig = sse.DefaultConfig()
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &CompletionHandler{
		chatService: chatService,
		responder:   resp,
		sseConfig:   sseConfig,
		clock:       clock,
		logger:      logger,
	}
}

func validateTurnRequest(req *chat.TurnRequest) error {
	return validation.ValidateStruct(req,
		validation.Field(&req.ChatID, validation.Required),
		validation.Field(&req.Model, validation.Length(0, config.MaxModelLength)),
		validation.Field(&req.Message,
			validation.When(!req.IsInit,
				validation.Required,
				validation.RuneLength(1, config.MaxMessageLength),
			),
		),
	)
}

// Stream runs one turn and streams its events as SSE frames
// POST /api/chat
//
// Errors found before the first frame are plain problem responses. Once the
// stream has started, failures are sent as an error event. The assistant side
// of the turn is persisted before the done frame, so a client that reloads on
// done sees it.
func (h *CompletionHandler) Stream(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ownerID := httputil.GetOwnerID(r)

	var req chat.TurnRequest
	if !httputil.DecodeBody(w, r, &req) {
		return
	}
	if req.Message != nil {
		trimmed := strings.TrimSpace(*req.Message)
		req.Message = &trimmed
	}
	if err := validateTurnRequest(&req); err != nil {
		handleError(w, fmt.Errorf("%w: %v", domain.ErrValidation, err))
		return
	}

	c, err := h.chatService.GetChat(ctx, req.ChatID, ownerID)
	if err != nil {
		handleError(w, err)
		return
	}
	model := req.Model
	if model == "" {
		model = c.Model
	}

	history, err := h.chatService.GetMessages(ctx, c.ID, ownerID)
	if err != nil {
		handleError(w, err)
		return
	}

	if !req.IsInit {
		if _, err := h.chatService.AddUserMessage(ctx, c.ID, ownerID, req.Text()); err != nil {
			handleError(w, err)
			return
		}
	}

	events, err := h.responder.Stream(ctx, &responder.Request{
		ChatID:          c.ID,
		Model:           model,
		Message:         req.Text(),
		IsInit:          req.IsInit,
		ScriptQuestions: req.ScriptQuestions,
		History:         history,
	})
	if err != nil {
		h.logger.Error("responder failed to start", "chat_id", c.ID, "error", err)
		handleError(w, err)
		return
	}

	stream, err := sse.NewStream(w, h.sseConfig)
	if err != nil {
		h.logger.Error("cannot stream response", "error", err)
		httputil.RespondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	defer stream.Close()

	streamID := uuid.NewString()
	logger := h.logger.With("chat_id", c.ID, "stream_id", streamID, "init", req.IsInit)
	logger.Info("completion stream started", "model", model)

	keepAlive := sse.NewTickerKeepAlive(h.sseConfig.KeepAliveInterval, h.clock)
	keepAlive.Start(stream, logger)
	defer keepAlive.Stop()

	h.pump(ctx, c.ID, events, stream, logger)
}

// pump forwards responder events until a terminal event, the end of the
// channel or client disconnect.
func (h *CompletionHandler) pump(ctx context.Context, chatID string, events <-chan chat.StreamEvent, stream *sse.Stream, logger *slog.Logger) {
	acc := &exchange{}

	for {
		select {
		case <-ctx.Done():
			logger.Info("client disconnected, turn abandoned", "error", ctx.Err())
			return

		case ev, ok := <-events:
			if !ok {
				if ctx.Err() != nil {
					logger.Info("client disconnected, turn abandoned", "error", ctx.Err())
					return
				}
				logger.Warn("responder closed without a terminal event")
				h.finish(ctx, chatID, acc, stream, logger)
				return
			}

			switch ev.Type {
			case chat.EventDone:
				h.finish(ctx, chatID, acc, stream, logger)
				return

			case chat.EventError:
				logger.Warn("responder reported an error", "error", ev.Error)
				if err := stream.WriteEvent(ev); err != nil {
					logger.Info("client gone before error frame", "error", err)
				}
				return

			default:
				acc.add(ev)
				if err := stream.WriteEvent(ev); err != nil {
					logger.Info("client disconnected during event write", "error", err)
					return
				}
			}
		}
	}
}

// finish persists the exchange and ends the stream with done, or with an
// error event when persisting fails.
func (h *CompletionHandler) finish(ctx context.Context, chatID string, acc *exchange, stream *sse.Stream, logger *slog.Logger) {
	messages := acc.messages()
	if err := h.chatService.AppendExchange(ctx, chatID, messages); err != nil {
		logger.Error("failed to persist exchange", "error", err)
		msg := "failed to save the assistant reply"
		if errors.Is(err, context.Canceled) {
			msg = "turn cancelled"
		}
		if werr := stream.WriteEvent(chat.NewErrorEvent(msg)); werr != nil {
			logger.Info("client gone before error frame", "error", werr)
		}
		return
	}

	if err := stream.WriteEvent(chat.NewDoneEvent()); err != nil {
		logger.Info("client gone before done frame", "error", err)
		return
	}
	logger.Info("completion stream finished", "messages", len(messages))
}

// exchange collects the assistant side of a turn as persistable messages.
// Text and tool calls accumulate on an assistant message; a tool result
// closes it and becomes a tool message of its own.
type exchange struct {
	done    []chat.Message
	text    strings.Builder
	calls   []chat.ToolCallDescriptor
	pending bool
}

func (e *exchange) add(ev chat.StreamEvent) {
	switch ev.Type {
	case chat.EventText:
		e.text.WriteString(ev.Content)
		e.pending = true
	case chat.EventToolCall:
		e.calls = append(e.calls, chat.ToolCallDescriptor{Name: ev.Name, Arguments: ev.Arguments})
		e.pending = true
	case chat.EventToolResult:
		e.flush()
		content := "{}"
		if ev.Result != nil {
			if raw, err := ev.Result.MarshalJSON(); err == nil {
				content = string(raw)
			}
		}
		e.done = append(e.done, chat.Message{Role: chat.RoleTool, Content: content})
	}
}

func (e *exchange) flush() {
	if !e.pending {
		return
	}
	e.done = append(e.done, chat.Message{
		Role:      chat.RoleAssistant,
		Content:   strings.TrimSpace(e.text.String()),
		ToolCalls: e.calls,
	})
	e.text.Reset()
	e.calls = nil
	e.pending = false
}

func (e *exchange) messages() []chat.Message {
	e.flush()
	return e.done
}
