package provider

import (
	"context"
)

// Provider abstracts an LLM inference backend. The interface is
// protocol-agnostic: each adapter handles its own backend protocol
// internally and surfaces a uniform event stream.
//
// Inference is always streamed; non-streaming callers collapse the event
// stream at a higher layer. Implementations must be safe for concurrent
// use by multiple goroutines.
type Provider interface {
	// Name returns the provider identifier (e.g., "openai", "vllm").
	Name() string

	// Capabilities returns what this provider supports.
	Capabilities() ProviderCapabilities

	// Stream performs streaming inference. The returned channel receives
	// ProviderEvent values and is closed by the provider when the stream
	// completes or errors. A well-formed stream ends with exactly one
	// ProviderEventTurnDone or ProviderEventError.
	Stream(ctx context.Context, req *ProviderRequest) (<-chan ProviderEvent, error)

	// ListModels returns available models from the backend.
	ListModels(ctx context.Context) ([]ModelInfo, error)

	// Close releases provider resources (HTTP clients, connections).
	Close() error
}
