package httputil

import (
	"context"
	"net/http"
)

// HeaderOwnerID carries the owner of the chats a request works on.
const HeaderOwnerID = "X-Owner-ID"

// Context key type to avoid collisions
type contextKey string

const (
	ownerIDKey contextKey = "ownerID"
)

// WithOwnerID adds ownerID to the request context.
func WithOwnerID(r *http.Request, ownerID string) *http.Request {
	ctx := context.WithValue(r.Context(), ownerIDKey, ownerID)
	return r.WithContext(ctx)
}

// GetOwnerID retrieves ownerID from context, returns empty string if not found.
func GetOwnerID(r *http.Request) string {
	ownerID, _ := r.Context().Value(ownerIDKey).(string)
	return ownerID
}
