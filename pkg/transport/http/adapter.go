package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dirigent-dev/dirigent/pkg/api"
	"github.com/dirigent-dev/dirigent/pkg/provider"
	"github.com/dirigent-dev/dirigent/pkg/storage"
	"github.com/dirigent-dev/dirigent/pkg/transport"
)

// ModelLister exposes backend model discovery for the /v1/models passthrough.
type ModelLister interface {
	ListModels(ctx context.Context) ([]provider.ModelInfo, error)
}

// Backends bundles the optional persistence and discovery dependencies of
// the HTTP adapter. Any field may be nil; the corresponding endpoints then
// report that the operation is unavailable.
type Backends struct {
	Store         storage.ResponseStore
	Conversations storage.ConversationStore
	Models        ModelLister
}

// Adapter serves the responses API over HTTP.
// It routes requests to the appropriate handler and serializes responses.
type Adapter struct {
	creator  transport.ResponseCreator
	backends Backends
	inflight *transport.InFlightRegistry
	mux      *http.ServeMux
	config   Config
}

// Config holds configuration for the HTTP adapter.
type Config struct {
	Addr            string
	MaxBodySize     int64
	ShutdownTimeout int // seconds
}

// DefaultConfig returns the default adapter configuration.
func DefaultConfig() Config {
	return Config{
		Addr:            ":8080",
		MaxBodySize:     10 << 20, // 10 MB
		ShutdownTimeout: 30,
	}
}

// NewAdapter creates an HTTP adapter with the given ResponseCreator and
// backends. Middleware is applied to the ResponseCreator in the given order.
func NewAdapter(creator transport.ResponseCreator, backends Backends, cfg Config, middlewares ...transport.Middleware) *Adapter {
	// Apply middleware chain to the creator.
	if len(middlewares) > 0 {
		creator = transport.Chain(middlewares...)(creator)
	}

	a := &Adapter{
		creator:  creator,
		backends: backends,
		inflight: transport.NewInFlightRegistry(),
		mux:      http.NewServeMux(),
		config:   cfg,
	}

	a.mux.HandleFunc("POST /v1/responses", a.handleCreateResponse)
	a.mux.HandleFunc("GET /v1/responses/{id}/input_items", a.handleListInputItems)
	a.mux.HandleFunc("GET /v1/responses/{id}", a.handleGetResponse)
	a.mux.HandleFunc("GET /v1/responses", a.handleListResponses)
	a.mux.HandleFunc("DELETE /v1/responses/{id}", a.handleDeleteResponse)

	a.mux.HandleFunc("POST /v1/conversations", a.handleCreateConversation)
	a.mux.HandleFunc("GET /v1/conversations/{id}", a.handleGetConversation)
	a.mux.HandleFunc("DELETE /v1/conversations/{id}", a.handleDeleteConversation)
	a.mux.HandleFunc("GET /v1/conversations/{id}/items", a.handleListConversationItems)
	a.mux.HandleFunc("POST /v1/conversations/{id}/items", a.handleAddConversationItems)

	a.mux.HandleFunc("GET /v1/models", a.handleListModels)
	a.mux.HandleFunc("GET /healthz", a.handleHealthz)
	a.mux.Handle("GET /metrics", promhttp.Handler())

	return a
}

// Handler returns the http.Handler for this adapter. Use this to integrate
// with an http.Server or test with httptest. The returned handler includes
// HTTP-level middleware for request ID propagation.
func (a *Adapter) Handler() http.Handler {
	return httpRequestIDMiddleware(a.mux)
}

// httpRequestIDMiddleware is HTTP-level middleware that propagates the
// X-Request-ID header. If present in the request, it is forwarded to
// the response. After the handler runs, it checks the context for a
// request ID (set by the transport-level RequestID middleware) and adds
// it to the response headers if not already set.
func httpRequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// If client sent X-Request-ID, propagate it into context.
		if id := r.Header.Get("X-Request-ID"); id != "" {
			ctx := transport.ContextWithRequestID(r.Context(), id)
			r = r.WithContext(ctx)
		}
		// Use a response writer wrapper to capture and set the request ID
		// header before the first write.
		rw := &requestIDResponseWriter{ResponseWriter: w, r: r}
		next.ServeHTTP(rw, r)
	})
}

// requestIDResponseWriter wraps http.ResponseWriter to inject the
// X-Request-ID header before the first write.
type requestIDResponseWriter struct {
	http.ResponseWriter
	r           *http.Request
	headersSent bool
}

func (w *requestIDResponseWriter) WriteHeader(statusCode int) {
	w.ensureRequestIDHeader()
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *requestIDResponseWriter) Write(b []byte) (int, error) {
	w.ensureRequestIDHeader()
	return w.ResponseWriter.Write(b)
}

func (w *requestIDResponseWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Unwrap returns the underlying ResponseWriter for http.NewResponseController.
func (w *requestIDResponseWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

func (w *requestIDResponseWriter) ensureRequestIDHeader() {
	if w.headersSent {
		return
	}
	w.headersSent = true
	if id := transport.RequestIDFromContext(w.r.Context()); id != "" {
		w.ResponseWriter.Header().Set("X-Request-ID", id)
	}
}

// handleCreateResponse handles POST /v1/responses.
func (a *Adapter) handleCreateResponse(w http.ResponseWriter, r *http.Request) {
	// Validate Content-Type.
	ct := r.Header.Get("Content-Type")
	if ct != "" && ct != "application/json" {
		transport.WriteErrorResponse(w,
			api.NewInvalidRequestError("content_type", "Content-Type must be application/json"),
			http.StatusUnsupportedMediaType,
		)
		return
	}

	// Limit body size.
	r.Body = http.MaxBytesReader(w, r.Body, a.config.MaxBodySize)

	// Decode request.
	var req api.CreateResponseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			transport.WriteErrorResponse(w,
				api.NewInvalidRequestError("body", fmt.Sprintf("request body too large (max %d bytes)", a.config.MaxBodySize)),
				http.StatusRequestEntityTooLarge,
			)
			return
		}
		transport.WriteErrorResponse(w,
			api.NewInvalidRequestError("body", "invalid JSON: "+err.Error()),
			http.StatusBadRequest,
		)
		return
	}

	if req.Stream {
		a.handleStreamingResponse(w, r, &req)
		return
	}

	// Non-streaming: create ResponseWriter and dispatch.
	rw := newSSEResponseWriter(w, nil)
	if err := a.creator.CreateResponse(r.Context(), &req, rw); err != nil {
		a.writeHandlerError(w, rw, err)
		return
	}
}

// handleStreamingResponse handles streaming POST requests (stream: true).
func (a *Adapter) handleStreamingResponse(w http.ResponseWriter, r *http.Request, req *api.CreateResponseRequest) {
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	var registeredID string
	rw := newSSEResponseWriter(w, func(id string) {
		registeredID = id
		a.inflight.Register(id, cancel)
	})

	err := a.creator.CreateResponse(ctx, req, rw)

	// Clean up in-flight registry after completion.
	if registeredID != "" {
		a.inflight.Remove(registeredID)
	}

	if err != nil {
		a.writeHandlerError(w, rw, err)
	}
}

// handleGetResponse handles GET /v1/responses/{id}.
func (a *Adapter) handleGetResponse(w http.ResponseWriter, r *http.Request) {
	if a.backends.Store == nil {
		writeUnavailable(w, "response retrieval")
		return
	}

	id := r.PathValue("id")
	if !api.ValidateResponseID(id) {
		transport.WriteErrorResponse(w,
			api.NewInvalidRequestError("id", "malformed response ID"),
			http.StatusBadRequest,
		)
		return
	}

	resp, err := a.backends.Store.GetResponse(r.Context(), id)
	if err != nil {
		writeStoreError(w, err, "response "+id+" not found")
		return
	}

	writeJSON(w, resp)
}

// handleDeleteResponse handles DELETE /v1/responses/{id}.
// It first checks the in-flight registry (for cancelling active streams),
// then falls through to the response store for standard deletion.
func (a *Adapter) handleDeleteResponse(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !api.ValidateResponseID(id) {
		transport.WriteErrorResponse(w,
			api.NewInvalidRequestError("id", "malformed response ID"),
			http.StatusBadRequest,
		)
		return
	}

	// Check in-flight registry first.
	if a.inflight.Cancel(id) {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	// Fall through to store.
	if a.backends.Store == nil {
		writeUnavailable(w, "response deletion")
		return
	}

	if err := a.backends.Store.DeleteResponse(r.Context(), id); err != nil {
		writeStoreError(w, err, "response "+id+" not found")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// handleListResponses handles GET /v1/responses.
func (a *Adapter) handleListResponses(w http.ResponseWriter, r *http.Request) {
	if a.backends.Store == nil {
		writeUnavailable(w, "response listing")
		return
	}

	opts, apiErr := parseListOptions(r)
	if apiErr != nil {
		transport.WriteErrorResponse(w, apiErr, http.StatusBadRequest)
		return
	}

	result, err := a.backends.Store.ListResponses(r.Context(), opts)
	if err != nil {
		writeStoreError(w, err, "")
		return
	}

	writeJSON(w, result)
}

// handleListInputItems handles GET /v1/responses/{id}/input_items.
func (a *Adapter) handleListInputItems(w http.ResponseWriter, r *http.Request) {
	if a.backends.Store == nil {
		writeUnavailable(w, "input items retrieval")
		return
	}

	id := r.PathValue("id")
	if !api.ValidateResponseID(id) {
		transport.WriteErrorResponse(w,
			api.NewInvalidRequestError("id", "malformed response ID"),
			http.StatusBadRequest,
		)
		return
	}

	opts, apiErr := parseListOptions(r)
	if apiErr != nil {
		transport.WriteErrorResponse(w, apiErr, http.StatusBadRequest)
		return
	}

	result, err := a.backends.Store.ListInputItems(r.Context(), id, opts)
	if err != nil {
		writeStoreError(w, err, "response "+id+" not found")
		return
	}

	writeJSON(w, result)
}

// createConversationRequest is the body of POST /v1/conversations.
type createConversationRequest struct {
	Metadata map[string]any `json:"metadata,omitempty"`
	Items    []api.Item     `json:"items,omitempty"`
}

// addItemsRequest is the body of POST /v1/conversations/{id}/items.
type addItemsRequest struct {
	Items []api.Item `json:"items"`
}

// handleCreateConversation handles POST /v1/conversations.
func (a *Adapter) handleCreateConversation(w http.ResponseWriter, r *http.Request) {
	if a.backends.Conversations == nil {
		writeUnavailable(w, "conversations")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, a.config.MaxBodySize)

	// An empty body creates a conversation with no metadata or items.
	var req createConversationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		transport.WriteErrorResponse(w,
			api.NewInvalidRequestError("body", "invalid JSON: "+err.Error()),
			http.StatusBadRequest,
		)
		return
	}

	conv := &storage.Conversation{
		ID:        api.NewConversationID(),
		Object:    "conversation",
		Metadata:  req.Metadata,
		CreatedAt: time.Now().Unix(),
	}

	if err := a.backends.Conversations.CreateConversation(r.Context(), conv); err != nil {
		writeStoreError(w, err, "")
		return
	}

	if len(req.Items) > 0 {
		if err := a.backends.Conversations.AddItems(r.Context(), conv.ID, req.Items); err != nil {
			writeStoreError(w, err, "")
			return
		}
	}

	writeJSON(w, conv)
}

// handleGetConversation handles GET /v1/conversations/{id}.
func (a *Adapter) handleGetConversation(w http.ResponseWriter, r *http.Request) {
	if a.backends.Conversations == nil {
		writeUnavailable(w, "conversations")
		return
	}

	id := r.PathValue("id")
	if !api.ValidateConversationID(id) {
		transport.WriteErrorResponse(w,
			api.NewInvalidRequestError("id", "malformed conversation ID"),
			http.StatusBadRequest,
		)
		return
	}

	conv, err := a.backends.Conversations.GetConversation(r.Context(), id)
	if err != nil {
		writeStoreError(w, err, "conversation "+id+" not found")
		return
	}

	writeJSON(w, conv)
}

// handleDeleteConversation handles DELETE /v1/conversations/{id}.
func (a *Adapter) handleDeleteConversation(w http.ResponseWriter, r *http.Request) {
	if a.backends.Conversations == nil {
		writeUnavailable(w, "conversations")
		return
	}

	id := r.PathValue("id")
	if !api.ValidateConversationID(id) {
		transport.WriteErrorResponse(w,
			api.NewInvalidRequestError("id", "malformed conversation ID"),
			http.StatusBadRequest,
		)
		return
	}

	if err := a.backends.Conversations.DeleteConversation(r.Context(), id); err != nil {
		writeStoreError(w, err, "conversation "+id+" not found")
		return
	}

	writeJSON(w, map[string]any{
		"id":      id,
		"object":  "conversation.deleted",
		"deleted": true,
	})
}

// handleListConversationItems handles GET /v1/conversations/{id}/items.
func (a *Adapter) handleListConversationItems(w http.ResponseWriter, r *http.Request) {
	if a.backends.Conversations == nil {
		writeUnavailable(w, "conversations")
		return
	}

	id := r.PathValue("id")
	if !api.ValidateConversationID(id) {
		transport.WriteErrorResponse(w,
			api.NewInvalidRequestError("id", "malformed conversation ID"),
			http.StatusBadRequest,
		)
		return
	}

	opts, apiErr := parseListOptions(r)
	if apiErr != nil {
		transport.WriteErrorResponse(w, apiErr, http.StatusBadRequest)
		return
	}

	result, err := a.backends.Conversations.ListItems(r.Context(), id, opts)
	if err != nil {
		writeStoreError(w, err, "conversation "+id+" not found")
		return
	}

	writeJSON(w, result)
}

// handleAddConversationItems handles POST /v1/conversations/{id}/items.
func (a *Adapter) handleAddConversationItems(w http.ResponseWriter, r *http.Request) {
	if a.backends.Conversations == nil {
		writeUnavailable(w, "conversations")
		return
	}

	id := r.PathValue("id")
	if !api.ValidateConversationID(id) {
		transport.WriteErrorResponse(w,
			api.NewInvalidRequestError("id", "malformed conversation ID"),
			http.StatusBadRequest,
		)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, a.config.MaxBodySize)

	var req addItemsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		transport.WriteErrorResponse(w,
			api.NewInvalidRequestError("body", "invalid JSON: "+err.Error()),
			http.StatusBadRequest,
		)
		return
	}
	if len(req.Items) == 0 {
		transport.WriteErrorResponse(w,
			api.NewInvalidRequestError("items", "items must not be empty"),
			http.StatusBadRequest,
		)
		return
	}

	if err := a.backends.Conversations.AddItems(r.Context(), id, req.Items); err != nil {
		writeStoreError(w, err, "conversation "+id+" not found")
		return
	}

	result, err := a.backends.Conversations.ListItems(r.Context(), id, storage.ListOptions{Order: "asc"})
	if err != nil {
		writeStoreError(w, err, "")
		return
	}

	writeJSON(w, result)
}

// handleListModels handles GET /v1/models by passing through to the backend.
func (a *Adapter) handleListModels(w http.ResponseWriter, r *http.Request) {
	if a.backends.Models == nil {
		writeUnavailable(w, "model listing")
		return
	}

	models, err := a.backends.Models.ListModels(r.Context())
	if err != nil {
		writeStoreError(w, err, "")
		return
	}
	if models == nil {
		models = []provider.ModelInfo{}
	}

	writeJSON(w, map[string]any{
		"object": "list",
		"data":   models,
	})
}

// handleHealthz handles GET /healthz. When a store is configured, its
// connection is checked as part of the health probe.
func (a *Adapter) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if a.backends.Store != nil {
		if err := a.backends.Store.HealthCheck(r.Context()); err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			json.NewEncoder(w).Encode(map[string]string{"status": "unhealthy", "error": err.Error()})
			return
		}
	}
	writeJSON(w, map[string]string{"status": "ok"})
}

// parseListOptions extracts pagination parameters from query string.
func parseListOptions(r *http.Request) (storage.ListOptions, *api.APIError) {
	q := r.URL.Query()
	opts := storage.ListOptions{
		After:  q.Get("after"),
		Before: q.Get("before"),
		Model:  q.Get("model"),
		Order:  q.Get("order"),
	}

	if opts.After != "" && opts.Before != "" {
		return opts, api.NewInvalidRequestError("after", "cannot use both 'after' and 'before' cursors")
	}

	if opts.Order != "" && opts.Order != "asc" && opts.Order != "desc" {
		return opts, api.NewInvalidRequestError("order", "order must be 'asc' or 'desc'")
	}

	if limitStr := q.Get("limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil || limit < 1 {
			return opts, api.NewInvalidRequestError("limit", "limit must be a positive integer")
		}
		opts.Limit = limit
	}

	return opts, nil
}

// writeJSON writes a JSON body with a 200 status.
func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

// writeUnavailable reports an endpoint disabled by deployment configuration.
func writeUnavailable(w http.ResponseWriter, what string) {
	transport.WriteErrorResponse(w,
		api.NewInvalidRequestError("", what+" is not available (no store configured)"),
		http.StatusNotImplemented,
	)
}

// writeStoreError maps storage errors to API error responses.
func writeStoreError(w http.ResponseWriter, err error, notFoundMsg string) {
	if errors.Is(err, storage.ErrNotFound) && notFoundMsg != "" {
		transport.WriteAPIError(w, api.NewNotFoundError(notFoundMsg))
		return
	}
	var apiErr *api.APIError
	if errors.As(err, &apiErr) {
		transport.WriteAPIError(w, apiErr)
		return
	}
	transport.WriteAPIError(w, api.NewServerError(err.Error()))
}

// writeHandlerError writes an error response from the handler. If streaming
// has already started, it sends a response.failed event. Otherwise it writes
// a standard JSON error response.
func (a *Adapter) writeHandlerError(w http.ResponseWriter, rw *sseResponseWriter, err error) {
	var apiErr *api.APIError
	if !errors.As(err, &apiErr) {
		apiErr = api.NewServerError(err.Error())
	}

	if rw.hasStartedStreaming() {
		// Streaming has begun; send response.failed event.
		failEvent := api.StreamEvent{
			Type: api.EventResponseFailed,
			Response: &api.Response{
				Status: api.ResponseStatusFailed,
				Error:  &api.ResponseError{Code: "server_error", Message: apiErr.Message},
			},
		}
		rw.WriteEvent(context.Background(), failEvent)
		return
	}

	// No streaming started; return JSON error.
	transport.WriteAPIError(w, apiErr)
}
