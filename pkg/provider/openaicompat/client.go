package openaicompat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/dirigent-dev/dirigent/pkg/api"
	"github.com/dirigent-dev/dirigent/pkg/debug"
	"github.com/dirigent-dev/dirigent/pkg/provider"
)

// Config holds configuration for an OpenAI-compatible backend.
type Config struct {
	// BaseURL is the backend URL (e.g., "http://localhost:8000").
	BaseURL string

	// APIKey for backend authentication (optional).
	APIKey string

	// Timeout for individual HTTP requests. Defaults to 120s. Streaming
	// requests are exempt; their lifetime is bounded by the context.
	Timeout time.Duration

	// Name labels the provider in logs and metrics. Defaults to "openai".
	// Deployments fronting vLLM or a LiteLLM proxy typically set it to
	// the backend's name.
	Name string

	// ModelMapping maps requested model names to backend model identifiers.
	// For example: {"gpt-4": "openai/gpt-4"}. Models not in the map pass
	// through unchanged.
	ModelMapping map[string]string
}

// Client implements provider.Provider against an OpenAI-compatible Chat
// Completions backend (OpenAI, vLLM, LiteLLM proxies, and friends).
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	name       string
	caps       provider.ProviderCapabilities

	// ModelMapper is an optional function that transforms the model name
	// before sending it to the backend. If nil, the model name is used as-is.
	ModelMapper func(string) string
}

// Ensure Client implements provider.Provider at compile time.
var _ provider.Provider = (*Client)(nil)

// New creates a Client from the given configuration.
// Returns an error if the configuration is invalid.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("openaicompat: BaseURL is required")
	}

	c := NewClient(cfg.BaseURL, cfg.APIKey, cfg.Timeout)
	if cfg.Name != "" {
		c.name = cfg.Name
	}

	// If model mapping is configured, set a mapper on the client.
	if len(cfg.ModelMapping) > 0 {
		mapping := cfg.ModelMapping
		c.ModelMapper = func(model string) string {
			if mapped, ok := mapping[model]; ok {
				return mapped
			}
			return model
		}
	}

	return c, nil
}

// NewWithCapabilities creates a Client with custom capabilities.
func NewWithCapabilities(cfg Config, caps provider.ProviderCapabilities) (*Client, error) {
	c, err := New(cfg)
	if err != nil {
		return nil, err
	}
	c.caps = caps
	return c, nil
}

// NewClient creates a Client for an OpenAI-compatible backend with default
// capabilities (streaming and tool calling).
func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	// Normalize: remove trailing slash from base URL.
	baseURL = strings.TrimRight(baseURL, "/")

	if timeout == 0 {
		timeout = 120 * time.Second
	}

	return &Client{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		baseURL: baseURL,
		apiKey:  apiKey,
		name:    "openai",
		caps: provider.ProviderCapabilities{
			Streaming:   true,
			ToolCalling: true,
		},
	}
}

// Name returns the provider identifier.
func (c *Client) Name() string {
	return c.name
}

// Capabilities returns what this provider supports.
func (c *Client) Capabilities() provider.ProviderCapabilities {
	return c.caps
}

// Stream performs streaming inference against the Chat Completions endpoint.
// It returns a channel of ProviderEvents. The channel is closed when the
// stream completes, errors, or the context is cancelled.
//
// The HTTP client timeout is not applied for streaming requests because a
// stream can legitimately last longer than any fixed timeout. Lifecycle
// control relies on context cancellation instead.
func (c *Client) Stream(ctx context.Context, req *provider.ProviderRequest) (<-chan provider.ProviderEvent, error) {
	// Force streaming mode.
	reqCopy := *req
	reqCopy.Stream = true

	// Apply model mapping if configured.
	if c.ModelMapper != nil {
		reqCopy.Model = c.ModelMapper(reqCopy.Model)
	}

	// Translate to Chat Completions format (includes stream_options).
	chatReq := TranslateToChat(&reqCopy)

	// Marshal request body.
	body, err := json.Marshal(chatReq)
	if err != nil {
		return nil, api.NewServerError(fmt.Sprintf("failed to marshal request: %s", err.Error()))
	}

	// Build HTTP request.
	url := c.baseURL + "/v1/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, api.NewServerError(fmt.Sprintf("failed to create HTTP request: %s", err.Error()))
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	debug.Log("providers", "chat completions request",
		"provider", c.name, "url", url, "model", reqCopy.Model, "bytes", len(body))
	debug.Raw("providers", string(body))

	// Use a client without timeout for streaming. The context controls
	// the request lifetime instead.
	streamClient := &http.Client{
		Transport: c.httpClient.Transport,
	}

	// Send request.
	httpResp, err := streamClient.Do(httpReq)
	if err != nil {
		return nil, MapNetworkError(err)
	}

	// Check for error status codes before starting the stream.
	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		apiErr := MapHTTPError(httpResp)
		httpResp.Body.Close()
		return nil, apiErr
	}

	// Create the event channel and spawn a goroutine to parse the stream.
	ch := make(chan provider.ProviderEvent, 16)

	go func() {
		defer close(ch)
		defer httpResp.Body.Close()
		ParseSSEStream(ctx, httpResp.Body, ch)
	}()

	return ch, nil
}

// ListModels returns available models from the backend by querying
// the /v1/models endpoint.
func (c *Client) ListModels(ctx context.Context) ([]provider.ModelInfo, error) {
	url := c.baseURL + "/v1/models"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, api.NewServerError(fmt.Sprintf("failed to create HTTP request: %s", err.Error()))
	}

	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, MapNetworkError(err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		return nil, MapHTTPError(httpResp)
	}

	var modelsResp ChatModelsResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&modelsResp); err != nil {
		return nil, api.NewServerError(fmt.Sprintf("failed to parse models response: %s", err.Error()))
	}

	var models []provider.ModelInfo
	for _, m := range modelsResp.Data {
		models = append(models, provider.ModelInfo{
			ID:      m.ID,
			Object:  m.Object,
			OwnedBy: m.OwnedBy,
		})
	}

	return models, nil
}

// Close releases client resources.
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}
