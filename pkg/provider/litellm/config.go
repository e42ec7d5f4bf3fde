// Package litellm adapts the Provider interface to LiteLLM proxy
// servers. LiteLLM speaks the OpenAI Chat Completions wire format, so
// the adapter rides on the shared openaicompat.Client and adds only
// model-name mapping on top.
package litellm

import "time"

// Config holds LiteLLM adapter settings.
type Config struct {
	// BaseURL is the proxy URL, e.g. "http://localhost:4000".
	BaseURL string

	// APIKey authenticates against the proxy. Optional.
	APIKey string

	// Timeout bounds each HTTP request. Defaults to 120s.
	Timeout time.Duration

	// ModelMapping rewrites requested model names to LiteLLM
	// identifiers, e.g. "gpt-4" to "openai/gpt-4". Unmapped names pass
	// through unchanged.
	ModelMapping map[string]string
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig(baseURL string) Config {
	return Config{
		BaseURL: baseURL,
		Timeout: 120 * time.Second,
	}
}
