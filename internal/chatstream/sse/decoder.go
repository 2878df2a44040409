// Package sse splits a server-sent-event byte stream into "data: " frames.
package sse

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
)

// FramePrefix starts every frame the decoder emits.
const FramePrefix = "data: "

// readBufferSize is the chunk size used by ReadFrames.
const readBufferSize = 4096

// Decoder turns arbitrary byte chunks into complete frames.
//
// A chunk may end anywhere, including inside a multi-byte UTF-8 sequence or
// inside the JSON of a frame. Everything after the last newline is carried
// over to the next Feed, so the frames produced are the same no matter where
// the stream was split.
type Decoder struct {
	carry []byte
}

// NewDecoder creates an empty decoder.
func NewDecoder() *Decoder {
	return &Decoder{}
}

// Feed consumes one chunk and returns the complete frames it finished.
// Lines that do not start with FramePrefix (blank separators, ": comments",
// event/id fields) are dropped.
func (d *Decoder) Feed(chunk []byte) []string {
	if len(chunk) == 0 {
		return nil
	}

	data := chunk
	if len(d.carry) > 0 {
		data = append(d.carry, chunk...)
		d.carry = nil
	}

	var frames []string
	for {
		i := bytes.IndexByte(data, '\n')
		if i < 0 {
			break
		}
		line := bytes.TrimSuffix(data[:i], []byte{'\r'})
		data = data[i+1:]

		if bytes.HasPrefix(line, []byte(FramePrefix)) {
			frames = append(frames, string(line))
		}
	}

	if len(data) > 0 {
		d.carry = append([]byte(nil), data...)
	}
	return frames
}

// Buffered returns the number of bytes waiting for a newline.
func (d *Decoder) Buffered() int {
	return len(d.carry)
}

// Payload strips FramePrefix from a frame.
func Payload(frame string) string {
	return strings.TrimPrefix(frame, FramePrefix)
}

// FrameFunc handles one frame. Returning an error stops ReadFrames.
type FrameFunc func(frame string) error

// ReadFrames reads r until EOF and calls fn for each frame in order.
//
// ctx is checked before every read. A partial line left when the stream ends
// can only be an incomplete frame and is dropped; the number of dropped bytes
// is returned so callers can log it.
func ReadFrames(ctx context.Context, r io.Reader, fn FrameFunc) (dropped int, err error) {
	dec := NewDecoder()
	buf := make([]byte, readBufferSize)

	for {
		if err := ctx.Err(); err != nil {
			return 0, err
		}

		n, readErr := r.Read(buf)
		if n > 0 {
			for _, frame := range dec.Feed(buf[:n]) {
				if err := fn(frame); err != nil {
					return 0, err
				}
			}
		}

		if readErr != nil {
			if errors.Is(readErr, io.EOF) {
				return dec.Buffered(), nil
			}
			// A cancelled request surfaces as a read error; report the cause
			if ctxErr := ctx.Err(); ctxErr != nil {
				return 0, ctxErr
			}
			return 0, readErr
		}
	}
}
