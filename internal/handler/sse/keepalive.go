package sse

import (
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"
)

// KeepAliveStrategy defines how keep-alive pings are sent to maintain SSE connections.
type KeepAliveStrategy interface {
	// Start begins sending keep-alive pings using the provided writer.
	// The returned channel closes once the strategy has stopped, either
	// because Stop was called or because a write failed.
	Start(writer KeepAliveWriter, logger *slog.Logger) <-chan struct{}

	// Stop terminates the keep-alive mechanism. Safe to call multiple times.
	Stop()
}

// KeepAliveWriter abstracts the mechanism for writing keep-alive messages.
type KeepAliveWriter interface {
	// WriteKeepAlive writes a keep-alive message (SSE comment)
	WriteKeepAlive() error
}

// FrameCounter is implemented by writers that count the data frames they
// sent. A ping is skipped when frames went out since the previous tick.
type FrameCounter interface {
	Frames() uint64
}

// TickerKeepAlive pings a quiet stream at fixed intervals until stopped
// or the connection fails.
type TickerKeepAlive struct {
	interval time.Duration
	clock    clockwork.Clock
	done     chan struct{}
}

// NewTickerKeepAlive creates a new ticker-based keep-alive strategy.
// A nil clock uses the real clock.
func NewTickerKeepAlive(interval time.Duration, clock clockwork.Clock) *TickerKeepAlive {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &TickerKeepAlive{
		interval: interval,
		clock:    clock,
		done:     make(chan struct{}),
	}
}

// Start pings writer on every tick in which no frame was written.
func (k *TickerKeepAlive) Start(writer KeepAliveWriter, logger *slog.Logger) <-chan struct{} {
	ticker := k.clock.NewTicker(k.interval)
	stopChan := make(chan struct{})
	counter, _ := writer.(FrameCounter)

	go func() {
		defer close(stopChan)
		defer ticker.Stop()

		var seen uint64
		pings := 0
		for {
			select {
			case <-ticker.Chan():
				if counter != nil {
					if n := counter.Frames(); n != seen {
						seen = n
						continue
					}
				}
				if err := writer.WriteKeepAlive(); err != nil {
					logger.Warn("keep-alive write failed, stopping",
						"error", err,
						"pings", pings,
					)
					return
				}
				pings++

			case <-k.done:
				logger.Debug("keep-alive stopped", "pings", pings)
				return
			}
		}
	}()

	return stopChan
}

// Stop terminates the keep-alive mechanism.
func (k *TickerKeepAlive) Stop() {
	select {
	case <-k.done:
	default:
		close(k.done)
	}
}
