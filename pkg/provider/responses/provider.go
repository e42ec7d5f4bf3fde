package responses

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/dirigent-dev/dirigent/pkg/debug"
	"github.com/dirigent-dev/dirigent/pkg/provider"
)

// ResponsesProvider talks to backends that serve the Responses API
// natively. Inference always streams; the engine collapses streams for
// non-streaming clients, not this provider.
type ResponsesProvider struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	caps       provider.ProviderCapabilities
}

var _ provider.Provider = (*ResponsesProvider)(nil)

// Config holds Responses API provider settings.
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// New builds a ResponsesProvider and probes /v1/responses once to
// verify the backend actually serves the Responses API.
func New(cfg Config) (*ResponsesProvider, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("responses: BaseURL is required")
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 120 * time.Second
	}

	p := &ResponsesProvider{
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		caps: provider.ProviderCapabilities{
			Streaming:   true,
			ToolCalling: true,
			Vision:      true,
			Reasoning:   true,
		},
	}
	if err := p.probeEndpoint(); err != nil {
		return nil, err
	}
	return p, nil
}

// newRequest builds an HTTP request with the JSON and auth headers set.
func (p *ResponsesProvider) newRequest(ctx context.Context, method, path string, body []byte) (*http.Request, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, p.baseURL+path, reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}
	return req, nil
}

// probeEndpoint posts a throwaway request to /v1/responses. A transport
// error or a plain 404 means the endpoint is missing. A JSON-bodied 404
// (vLLM's "model not found") means the endpoint exists and rejected the
// probe model, which is success.
func (p *ResponsesProvider) probeEndpoint() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	httpReq, err := p.newRequest(ctx, http.MethodPost, "/v1/responses",
		[]byte(`{"model":"_probe","input":"probe","store":false}`))
	if err != nil {
		return fmt.Errorf("responses: probe request creation failed: %w", err)
	}

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("responses: backend at %s is not reachable: %w", p.baseURL, err)
	}
	defer resp.Body.Close()
	respBody, _ := io.ReadAll(resp.Body)

	if resp.StatusCode == http.StatusNotFound && !isAPIError(respBody) {
		return fmt.Errorf("responses: backend at %s does not support the Responses API (/v1/responses returned 404)", p.baseURL)
	}

	slog.Info("responses provider: backend probe successful",
		"url", p.baseURL+"/v1/responses",
		"status", resp.StatusCode,
	)
	return nil
}

// isAPIError distinguishes a structured JSON error body, like vLLM's
// {"object":"error","message":"The model '_probe' does not exist."},
// from a web framework's plain-text Not Found page.
func isAPIError(body []byte) bool {
	var obj struct {
		Object  string `json:"object"`
		Message string `json:"message"`
	}
	return json.Unmarshal(body, &obj) == nil && obj.Message != ""
}

func (p *ResponsesProvider) Name() string {
	return "responses"
}

func (p *ResponsesProvider) Capabilities() provider.ProviderCapabilities {
	return p.caps
}

// Stream posts to /v1/responses with stream=true and maps the
// backend's SSE stream onto ProviderEvents.
func (p *ResponsesProvider) Stream(ctx context.Context, req *provider.ProviderRequest) (<-chan provider.ProviderEvent, error) {
	req.Stream = true
	rr, err := translateRequest(req)
	if err != nil {
		return nil, fmt.Errorf("responses: translate request: %w", err)
	}
	body, err := json.Marshal(rr)
	if err != nil {
		return nil, fmt.Errorf("responses: marshal request: %w", err)
	}

	httpReq, err := p.newRequest(ctx, http.MethodPost, "/v1/responses", body)
	if err != nil {
		return nil, fmt.Errorf("responses: create request: %w", err)
	}
	httpReq.Header.Set("Accept", "text/event-stream")

	debug.Log("providers", "request",
		"provider", p.Name(),
		"url", p.baseURL+"/v1/responses",
		"model", req.Model,
	)

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("responses: HTTP request: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, p.backendError(resp)
	}

	ch := make(chan provider.ProviderEvent, 32)
	go func() {
		defer resp.Body.Close()
		parseSSEStream(resp.Body, ch)
	}()
	return ch, nil
}

// backendError turns a non-200 response into an error, preferring the
// structured message when the body carries one.
func (p *ResponsesProvider) backendError(resp *http.Response) error {
	respBody, _ := io.ReadAll(resp.Body)
	var apiErr responsesError
	if json.Unmarshal(respBody, &apiErr) == nil && apiErr.Message != "" {
		return fmt.Errorf("responses: backend error (%d): %s", resp.StatusCode, apiErr.Message)
	}
	return fmt.Errorf("responses: backend returned %d: %s", resp.StatusCode, string(respBody))
}

// ListModels queries the backend's /v1/models endpoint.
func (p *ResponsesProvider) ListModels(ctx context.Context) ([]provider.ModelInfo, error) {
	httpReq, err := p.newRequest(ctx, http.MethodGet, "/v1/models", nil)
	if err != nil {
		return nil, fmt.Errorf("responses: create request: %w", err)
	}

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("responses: list models: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("responses: list models returned %d", resp.StatusCode)
	}

	var result struct {
		Data []provider.ModelInfo `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("responses: decode models: %w", err)
	}
	return result.Data, nil
}

func (p *ResponsesProvider) Close() error {
	p.httpClient.CloseIdleConnections()
	return nil
}
