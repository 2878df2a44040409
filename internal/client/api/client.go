package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/andrewdmason/undercurrent-sub000/internal/domain"
	"github.com/andrewdmason/undercurrent-sub000/internal/domain/models/chat"
	"github.com/andrewdmason/undercurrent-sub000/internal/httputil"
)

// Client talks to the chat persistence API of the gateway server.
// It implements chatstream.Store.
type Client struct {
	baseURL string
	ownerID string
	http    *http.Client
	logger  *slog.Logger
}

// NewClient creates a client for the server at baseURL acting as ownerID.
// A nil httpClient gets a 30 second timeout.
func NewClient(baseURL, ownerID string, httpClient *http.Client, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		ownerID: ownerID,
		http:    httpClient,
		logger:  logger,
	}
}

// CreateChat creates an empty chat for ownerID.
func (c *Client) CreateChat(ctx context.Context, ownerID, model string) (*chat.Chat, error) {
	var out chat.Chat
	body := map[string]string{"model": model}
	if err := c.do(ctx, http.MethodPost, "/api/chats", ownerID, body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListChats returns the chats of ownerID, most recent first.
func (c *Client) ListChats(ctx context.Context, ownerID string) ([]chat.Chat, error) {
	chats := []chat.Chat{}
	if err := c.do(ctx, http.MethodGet, "/api/chats", ownerID, nil, &chats); err != nil {
		return nil, err
	}
	return chats, nil
}

// GetChat returns one chat.
func (c *Client) GetChat(ctx context.Context, chatID string) (*chat.Chat, error) {
	var out chat.Chat
	if err := c.do(ctx, http.MethodGet, chatPath(chatID), c.ownerID, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetMessages returns the persisted messages of a chat.
func (c *Client) GetMessages(ctx context.Context, chatID string) ([]chat.Message, error) {
	messages := []chat.Message{}
	if err := c.do(ctx, http.MethodGet, chatPath(chatID)+"/messages", c.ownerID, nil, &messages); err != nil {
		return nil, err
	}
	return messages, nil
}

// chatPatch is the PATCH /api/chats/{id} body.
type chatPatch struct {
	Model httputil.OptionalString `json:"model,omitzero"`
}

// UpdateChatModel switches the model of a chat.
func (c *Client) UpdateChatModel(ctx context.Context, chatID, model string) error {
	body := chatPatch{Model: httputil.SetString(model)}
	return c.do(ctx, http.MethodPatch, chatPath(chatID), c.ownerID, body, nil)
}

// DeleteChat deletes a chat.
func (c *Client) DeleteChat(ctx context.Context, chatID string) error {
	return c.do(ctx, http.MethodDelete, chatPath(chatID), c.ownerID, nil, nil)
}

func chatPath(chatID string) string {
	return "/api/chats/" + url.PathEscape(chatID)
}

// do sends one JSON request. Error statuses map to domain errors:
// 400 wraps ErrValidation, 404 ErrNotFound, 409 ErrConflict.
func (c *Client) do(ctx context.Context, method, path, ownerID string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if ownerID != "" {
		req.Header.Set(httputil.HeaderOwnerID, ownerID)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	c.logger.Debug("api request",
		"method", method,
		"path", path,
		"status", resp.StatusCode,
		"duration", time.Since(start),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return statusError(resp.StatusCode, httputil.ProblemMessage(raw))
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s response: %w", method, path, err)
	}
	return nil
}

func statusError(status int, msg string) error {
	switch status {
	case http.StatusBadRequest:
		return fmt.Errorf("%w: %s", domain.ErrValidation, msg)
	case http.StatusNotFound:
		return fmt.Errorf("%s: %w", msg, domain.ErrNotFound)
	case http.StatusConflict:
		return fmt.Errorf("%s: %w", msg, domain.ErrConflict)
	default:
		return fmt.Errorf("server error (status=%d): %s", status, msg)
	}
}
