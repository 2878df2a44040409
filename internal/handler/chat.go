package handler

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/andrewdmason/undercurrent-sub000/internal/domain"
	chatSvc "github.com/andrewdmason/undercurrent-sub000/internal/domain/services/chat"
	"github.com/andrewdmason/undercurrent-sub000/internal/httputil"
)

// ChatHandler handles chat HTTP requests
// Handlers only communicate with services, never repositories.
type ChatHandler struct {
	chatService chatSvc.ChatService
	logger      *slog.Logger
}

// NewChatHandler creates a new chat handler.
func NewChatHandler(chatService chatSvc.ChatService, logger *slog.Logger) *ChatHandler {
	return &ChatHandler{
		chatService: chatService,
		logger:      logger,
	}
}

// CreateChat creates a new chat
// POST /api/chats
func (h *ChatHandler) CreateChat(w http.ResponseWriter, r *http.Request) {
	var req chatSvc.CreateChatRequest
	if !httputil.DecodeBody(w, r, &req) {
		return
	}
	req.OwnerID = httputil.GetOwnerID(r)

	c, err := h.chatService.CreateChat(r.Context(), &req)
	if err != nil {
		handleError(w, err)
		return
	}

	httputil.RespondJSON(w, http.StatusCreated, c)
}

// ListChats retrieves the chats of the owner, most recent first
// GET /api/chats
func (h *ChatHandler) ListChats(w http.ResponseWriter, r *http.Request) {
	chats, err := h.chatService.ListChats(r.Context(), httputil.GetOwnerID(r))
	if err != nil {
		handleError(w, err)
		return
	}

	httputil.RespondJSON(w, http.StatusOK, chats)
}

// GetChat retrieves a single chat by ID
// GET /api/chats/{id}
func (h *ChatHandler) GetChat(w http.ResponseWriter, r *http.Request) {
	chatID, ok := PathParam(w, r, "id", "Chat ID")
	if !ok {
		return
	}

	c, err := h.chatService.GetChat(r.Context(), chatID, httputil.GetOwnerID(r))
	if err != nil {
		handleError(w, err)
		return
	}

	httputil.RespondJSON(w, http.StatusOK, c)
}

// GetMessages returns the persisted messages of a chat
// GET /api/chats/{id}/messages
func (h *ChatHandler) GetMessages(w http.ResponseWriter, r *http.Request) {
	chatID, ok := PathParam(w, r, "id", "Chat ID")
	if !ok {
		return
	}

	messages, err := h.chatService.GetMessages(r.Context(), chatID, httputil.GetOwnerID(r))
	if err != nil {
		handleError(w, err)
		return
	}

	httputil.RespondJSON(w, http.StatusOK, messages)
}

// updateChatBody distinguishes an absent model from an explicit null.
type updateChatBody struct {
	Model httputil.OptionalString `json:"model,omitzero"`
}

// UpdateChat switches the model of a chat
// PATCH /api/chats/{id}
func (h *ChatHandler) UpdateChat(w http.ResponseWriter, r *http.Request) {
	chatID, ok := PathParam(w, r, "id", "Chat ID")
	if !ok {
		return
	}

	var body updateChatBody
	if !httputil.DecodeBody(w, r, &body) {
		return
	}
	model, ok := body.Model.String()
	if !ok {
		handleError(w, fmt.Errorf("%w: model must be a string", domain.ErrValidation))
		return
	}

	c, err := h.chatService.UpdateChatModel(r.Context(), chatID, httputil.GetOwnerID(r),
		&chatSvc.UpdateChatRequest{Model: model})
	if err != nil {
		handleError(w, err)
		return
	}

	httputil.RespondJSON(w, http.StatusOK, c)
}

// DeleteChat deletes a chat and its messages
// DELETE /api/chats/{id}
func (h *ChatHandler) DeleteChat(w http.ResponseWriter, r *http.Request) {
	chatID, ok := PathParam(w, r, "id", "Chat ID")
	if !ok {
		return
	}

	if err := h.chatService.DeleteChat(r.Context(), chatID, httputil.GetOwnerID(r)); err != nil {
		handleError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// HealthCheck reports that the server is up
// GET /health
func HealthCheck(w http.ResponseWriter, r *http.Request) {
	httputil.RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
