package chatstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/andrewdmason/undercurrent-sub000/internal/domain"
	"github.com/andrewdmason/undercurrent-sub000/internal/domain/models/chat"
	"github.com/andrewdmason/undercurrent-sub000/internal/httputil"
)

// CompletionPath is the streaming completion endpoint.
const CompletionPath = "/api/chat"

// maxErrorBody bounds how much of a failed response is read for its message.
const maxErrorBody = 4 << 10

// HTTPTransport opens completion streams with one POST per turn.
type HTTPTransport struct {
	baseURL string
	ownerID string
	client  *http.Client
	logger  *slog.Logger
}

// NewHTTPTransport creates a transport for the server at baseURL.
// The client must not set a Timeout, which would cut long streams.
func NewHTTPTransport(baseURL, ownerID string, client *http.Client, logger *slog.Logger) *HTTPTransport {
	if client == nil {
		client = &http.Client{}
	}
	return &HTTPTransport{
		baseURL: strings.TrimRight(baseURL, "/"),
		ownerID: ownerID,
		client:  client,
		logger:  logger,
	}
}

// OpenStream posts the turn and returns the response body.
// Any non-2xx status is a *domain.TransportError.
func (t *HTTPTransport) OpenStream(ctx context.Context, turn chat.TurnRequest) (io.ReadCloser, error) {
	payload, err := json.Marshal(turn)
	if err != nil {
		return nil, fmt.Errorf("marshal turn: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+CompletionPath, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build stream request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	if t.ownerID != "" {
		req.Header.Set(httputil.HeaderOwnerID, t.ownerID)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, &domain.TransportError{Message: "request failed", Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		msg := httputil.ProblemMessage(body)
		t.logger.Warn("stream request rejected",
			"status", resp.StatusCode,
			"chat_id", turn.ChatID,
			"detail", msg,
		)
		return nil, &domain.TransportError{Status: resp.StatusCode, Message: msg}
	}

	if resp.Body == nil || resp.Body == http.NoBody {
		return nil, &domain.TransportError{Status: resp.StatusCode, Message: "response has no body"}
	}

	return resp.Body, nil
}
