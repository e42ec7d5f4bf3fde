// Package provider defines the protocol-agnostic interface for LLM inference
// backends. Each adapter implementation (e.g., openaicompat) handles its own
// backend protocol translation internally. The interface operates on
// Dirigent's own types (ProviderRequest, ProviderMessage, ProviderEvent),
// keeping backend protocol details invisible to the engine.
package provider
