package litellm

import (
	"fmt"

	"github.com/dirigent-dev/dirigent/pkg/provider/openaicompat"
)

// New creates a provider.Provider for a LiteLLM proxy. The returned client
// reports itself as "litellm" and rewrites model names through the
// configured mapping before each backend call, so one gateway deployment
// can route "gpt-4" and "claude" style names to whatever the proxy serves.
func New(cfg Config) (*openaicompat.Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("litellm: BaseURL is required")
	}

	return openaicompat.New(openaicompat.Config{
		BaseURL:      cfg.BaseURL,
		APIKey:       cfg.APIKey,
		Timeout:      cfg.Timeout,
		Name:         "litellm",
		ModelMapping: cfg.ModelMapping,
	})
}
