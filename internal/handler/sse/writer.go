package sse

import (
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/andrewdmason/undercurrent-sub000/internal/domain/models/chat"
)

// ErrStreamingUnsupported is returned when the response writer cannot flush.
var ErrStreamingUnsupported = errors.New("streaming unsupported by response writer")

// Stream writes completion frames to one SSE response. Frames and keep-alive
// comments may come from different goroutines; writes are serialized.
type Stream struct {
	mu           sync.Mutex
	w            http.ResponseWriter
	flusher      http.Flusher
	rc           *http.ResponseController
	writeTimeout time.Duration
	frames       uint64
	closed       bool
}

// NewStream sets the SSE headers and sends the 200 status.
// A nil cfg uses DefaultConfig.
func NewStream(w http.ResponseWriter, cfg *Config) (*Stream, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, ErrStreamingUnsupported
	}
	if cfg == nil {
		cfg = DefaultConfig()
	}

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no") // Disable nginx buffering
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	return &Stream{
		w:            w,
		flusher:      flusher,
		rc:           http.NewResponseController(w),
		writeTimeout: cfg.WriteTimeout,
	}, nil
}

// WriteEvent writes one "data: <json>\n\n" frame and flushes it.
func (s *Stream) WriteEvent(event chat.StreamEvent) error {
	frame, err := chat.FormatFrame(event)
	if err != nil {
		return err
	}
	return s.write(frame, true)
}

// WriteKeepAlive writes an SSE comment (": keepalive\n\n") and flushes.
// Clients skip lines without the data prefix.
func (s *Stream) WriteKeepAlive() error {
	return s.write(": keepalive\n\n", false)
}

// Close makes later writes fail, so a keep-alive racing the end of the
// handler never touches a finished response.
func (s *Stream) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
}

// Frames returns how many data frames were written.
func (s *Stream) Frames() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frames
}

func (s *Stream) write(text string, frame bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return errors.New("stream closed")
	}
	if s.writeTimeout > 0 {
		// Recorders and some wrappers cannot set deadlines; the write still goes out
		err := s.rc.SetWriteDeadline(time.Now().Add(s.writeTimeout))
		if err != nil && !errors.Is(err, http.ErrNotSupported) {
			return fmt.Errorf("set write deadline: %w", err)
		}
	}
	if _, err := fmt.Fprint(s.w, text); err != nil {
		return fmt.Errorf("write failed: %w", err)
	}
	s.flusher.Flush()
	if frame {
		s.frames++
	}
	return nil
}
