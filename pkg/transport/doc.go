// Package transport defines the handler interfaces and middleware chain for
// the HTTP/SSE transport layer.
//
// The transport layer bridges external clients and the internal orchestration
// engine. It deserializes incoming requests into the core protocol types
// defined in pkg/api, dispatches them for processing, and serializes
// responses back to the client in either synchronous (JSON) or streaming
// (SSE) format.
//
// # Handler Interfaces
//
// ResponseCreator handles the core create-response operation, available in
// both stateless and stateful deployments. Retrieval, listing, and deletion
// of stored responses and conversations go through the storage package's
// ResponseStore and ConversationStore contracts, available only when
// persistence is configured.
//
// The ResponseWriter interface abstracts streaming and non-streaming output,
// allowing the handler to emit SSE events or complete JSON responses without
// knowing the underlying transport protocol.
//
// # Middleware
//
// The middleware chain wraps http.Handler with cross-cutting concerns:
// panic recovery, request ID assignment (X-Request-ID), structured logging
// via log/slog, and in-flight request tracking for graceful shutdown.
package transport
