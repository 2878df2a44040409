package handler

import "net/http"

// RegisterRoutes mounts the chat API on mux (Go 1.22+ enhanced patterns).
func RegisterRoutes(mux *http.ServeMux, chats *ChatHandler, completions *CompletionHandler) {
	mux.HandleFunc("GET /health", HealthCheck)

	// Chat routes
	mux.HandleFunc("POST /api/chats", chats.CreateChat)
	mux.HandleFunc("GET /api/chats", chats.ListChats)
	mux.HandleFunc("GET /api/chats/{id}", chats.GetChat)
	mux.HandleFunc("PATCH /api/chats/{id}", chats.UpdateChat)
	mux.HandleFunc("DELETE /api/chats/{id}", chats.DeleteChat)
	mux.HandleFunc("GET /api/chats/{id}/messages", chats.GetMessages)

	// Streaming completion endpoint
	mux.HandleFunc("POST /api/chat", completions.Stream)
}
