package vllm

import (
	"fmt"

	"github.com/dirigent-dev/dirigent/pkg/provider"
	"github.com/dirigent-dev/dirigent/pkg/provider/openaicompat"
)

// New creates a provider.Provider for a vLLM backend. The returned client
// reports itself as "vllm" and advertises reasoning support: vLLM streams
// reasoning_content deltas for reasoning-capable models, which the shared
// Chat Completions client already surfaces.
func New(cfg Config) (*openaicompat.Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("vllm: BaseURL is required")
	}

	return openaicompat.NewWithCapabilities(openaicompat.Config{
		BaseURL: cfg.BaseURL,
		APIKey:  cfg.APIKey,
		Timeout: cfg.Timeout,
		Name:    "vllm",
	}, provider.ProviderCapabilities{
		Streaming:   true,
		ToolCalling: true,
		Reasoning:   true,
	})
}
