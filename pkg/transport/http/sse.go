package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/dirigent-dev/dirigent/pkg/api"
	"github.com/dirigent-dev/dirigent/pkg/transport"
)

// writerState tracks how far an sseResponseWriter has progressed.
// Transitions are one-way: idle to streaming on the first event, and
// either state to completed once the response is final.
type writerState int

const (
	writerIdle writerState = iota
	writerStreaming
	writerCompleted
)

// isTerminal reports whether the event type ends a streaming response.
func isTerminal(t api.StreamEventType) bool {
	switch t {
	case api.EventResponseCompleted, api.EventResponseIncomplete, api.EventResponseFailed, api.EventError:
		return true
	}
	return false
}

// sseResponseWriter implements transport.ResponseWriter over HTTP. A
// single writer serves either SSE streaming (WriteEvent) or a plain
// JSON body (WriteResponse), never both.
type sseResponseWriter struct {
	w  http.ResponseWriter
	rc *http.ResponseController

	mu    sync.Mutex
	state writerState

	// onResponseCreated fires once, with the response ID from the first
	// response.created event, so the caller can register the response
	// for cancellation.
	onResponseCreated func(id string)
}

var _ transport.ResponseWriter = (*sseResponseWriter)(nil)

func newSSEResponseWriter(w http.ResponseWriter, onCreated func(id string)) *sseResponseWriter {
	return &sseResponseWriter{
		w:                 w,
		rc:                http.NewResponseController(w),
		onResponseCreated: onCreated,
	}
}

// WriteEvent sends one SSE frame:
//
//	event: {type}\n
//	data: {json}\n\n
//
// and appends "data: [DONE]\n\n" after a terminal event.
func (s *sseResponseWriter) WriteEvent(ctx context.Context, event api.StreamEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case writerCompleted:
		return errors.New("cannot write event: writer is completed")
	case writerIdle:
		h := s.w.Header()
		h.Set("Content-Type", "text/event-stream")
		h.Set("Cache-Control", "no-cache")
		h.Set("Connection", "keep-alive")
		s.state = writerStreaming
	}

	if event.Type == api.EventResponseCreated && event.Response != nil && s.onResponseCreated != nil {
		s.onResponseCreated(event.Response.ID)
		s.onResponseCreated = nil
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	if err := s.flushFrame(fmt.Sprintf("event: %s\ndata: %s\n\n", event.Type, data)); err != nil {
		return err
	}

	if isTerminal(event.Type) {
		if err := s.flushFrame("data: [DONE]\n\n"); err != nil {
			return err
		}
		s.state = writerCompleted
	}
	return nil
}

// flushFrame writes one SSE frame and pushes it to the client
// immediately. Callers must hold s.mu.
func (s *sseResponseWriter) flushFrame(frame string) error {
	if _, err := fmt.Fprint(s.w, frame); err != nil {
		return fmt.Errorf("failed to write event: %w", err)
	}
	if err := s.rc.Flush(); err != nil {
		return fmt.Errorf("failed to flush: %w", err)
	}
	return nil
}

// WriteResponse sends the complete response as one JSON body. It fails
// if streaming has already begun.
func (s *sseResponseWriter) WriteResponse(ctx context.Context, resp *api.Response) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case writerStreaming:
		return errors.New("cannot write response: streaming has already started")
	case writerCompleted:
		return errors.New("cannot write response: writer is completed")
	}

	s.w.Header().Set("Content-Type", "application/json")
	s.state = writerCompleted

	if err := json.NewEncoder(s.w).Encode(resp); err != nil {
		return fmt.Errorf("failed to encode response: %w", err)
	}
	return nil
}

func (s *sseResponseWriter) Flush() error {
	return s.rc.Flush()
}

// hasStartedStreaming reports whether any SSE frame went out, which
// decides how a late error can still be delivered.
func (s *sseResponseWriter) hasStartedStreaming() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == writerStreaming {
		return true
	}
	return s.state == writerCompleted && s.w.Header().Get("Content-Type") == "text/event-stream"
}
