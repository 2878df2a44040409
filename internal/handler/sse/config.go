package sse

import "time"

// Config holds configuration for completion streams.
type Config struct {
	// KeepAliveInterval is how often a ": keepalive" comment is sent while
	// the responder is quiet. Recommended: 10-15 seconds for most proxies.
	KeepAliveInterval time.Duration

	// WriteTimeout bounds each frame write. The server runs without a global
	// WriteTimeout so turns can stream for minutes; a stalled client still
	// fails the next write instead of holding the handler. Zero disables it.
	WriteTimeout time.Duration
}

// DefaultConfig returns the default stream configuration.
func DefaultConfig() *Config {
	return &Config{
		KeepAliveInterval: 10 * time.Second,
		WriteTimeout:      30 * time.Second,
	}
}
