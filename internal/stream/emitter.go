// ABOUTME: SSE progress emitter serializing frames from concurrent adapters onto one response
// ABOUTME: Enforces monotone percentages and exactly one terminal result frame

package stream

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
)

// ErrStreamingUnsupported is returned when the response writer cannot flush.
var ErrStreamingUnsupported = errors.New("streaming not supported")

// progressFrame is the wire shape of an intermediate event.
type progressFrame struct {
	Type    string `json:"type"`
	Percent int    `json:"percent"`
	Message string `json:"message"`
}

// Emitter writes SSE frames for one request. Progress callbacks from
// concurrent adapters interleave here; writes are serialized by a mutex so
// frames are never corrupted. After the terminal result frame no further
// frame is emitted, and writes after a client disconnect are no-ops.
type Emitter struct {
	mu          sync.Mutex
	w           http.ResponseWriter
	flusher     http.Flusher
	lastPercent int
	terminated  bool
	clientGone  bool
	logger      *slog.Logger
}

// NewEmitter prepares the response for event streaming and returns the
// emitter in its streaming state. The channel is configured for no
// intermediate buffering and no caching.
func NewEmitter(w http.ResponseWriter, logger *slog.Logger) (*Emitter, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, ErrStreamingUnsupported
	}
	if logger == nil {
		logger = slog.Default()
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	return &Emitter{
		w:       w,
		flusher: flusher,
		logger:  logger.With("component", "stream"),
	}, nil
}

// Progress emits one progress frame. Percentages are clamped so the stream
// never goes backwards even when slower adapters report late.
func (e *Emitter) Progress(percent int, message string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.terminated {
		return
	}
	if percent < e.lastPercent {
		percent = e.lastPercent
	}
	if percent > 100 {
		percent = 100
	}
	e.lastPercent = percent

	e.writeFrame(progressFrame{Type: "progress", Percent: percent, Message: message})
}

// Result emits the terminal frame and transitions to Terminated. It is
// emitted unconditionally, including for error-shaped envelopes; at most one
// terminal frame is ever written.
func (e *Emitter) Result(payload any) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.terminated {
		return
	}
	e.terminated = true

	e.writeFrame(payload)
}

// writeFrame serializes one `data: <JSON>` frame and flushes it.
// Must be called with mu held. Write failures mark the client gone and
// silence all further frames.
func (e *Emitter) writeFrame(payload any) {
	if e.clientGone {
		return
	}

	data, err := json.Marshal(payload)
	if err != nil {
		e.logger.Error("failed to marshal stream frame", "error", err)
		return
	}

	if _, err := fmt.Fprintf(e.w, "data: %s\n\n", data); err != nil {
		e.logger.Debug("client disconnected mid-stream", "error", err)
		e.clientGone = true
		return
	}
	e.flusher.Flush()
}
