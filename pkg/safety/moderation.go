package safety

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"
)

// ModerationConfig holds configuration for the moderation backend client.
type ModerationConfig struct {
	// BaseURL is the backend URL (e.g., "https://api.openai.com").
	BaseURL string `yaml:"base_url"`

	// APIKey for backend authentication (optional).
	APIKey string `yaml:"api_key"`

	// DefaultModel is used when a check does not name its own model.
	DefaultModel string `yaml:"default_model"`

	// Timeout for individual HTTP requests. Defaults to 30s.
	Timeout time.Duration `yaml:"timeout"`
}

// ModerationClient implements Backend against an OpenAI-compatible
// /v1/moderations endpoint.
type ModerationClient struct {
	httpClient   *http.Client
	baseURL      string
	apiKey       string
	defaultModel string
}

var _ Backend = (*ModerationClient)(nil)

// NewModerationClient creates a client from the given configuration.
func NewModerationClient(cfg ModerationConfig) (*ModerationClient, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("safety: BaseURL is required")
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	return &ModerationClient{
		httpClient:   &http.Client{Timeout: timeout},
		baseURL:      strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:       cfg.APIKey,
		defaultModel: cfg.DefaultModel,
	}, nil
}

// moderationRequest is the wire request for /v1/moderations.
type moderationRequest struct {
	Input string `json:"input"`
	Model string `json:"model,omitempty"`
}

// moderationResponse is the wire response from /v1/moderations.
type moderationResponse struct {
	Results []struct {
		Flagged    bool            `json:"flagged"`
		Categories map[string]bool `json:"categories"`
	} `json:"results"`
}

// Moderate sends text to the moderation endpoint and returns the verdict.
// An empty model falls back to the client's default model.
func (c *ModerationClient) Moderate(ctx context.Context, text, model string) (*ModerationResult, error) {
	if model == "" {
		model = c.defaultModel
	}

	body, err := json.Marshal(moderationRequest{Input: text, Model: model})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal moderation request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/v1/moderations", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create moderation request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("moderation request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("moderation backend returned HTTP %d: %s",
			resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var mr moderationResponse
	if err := json.NewDecoder(resp.Body).Decode(&mr); err != nil {
		return nil, fmt.Errorf("failed to decode moderation response: %w", err)
	}

	if len(mr.Results) == 0 {
		return nil, fmt.Errorf("moderation backend returned no results")
	}

	result := &ModerationResult{Flagged: mr.Results[0].Flagged}
	for cat, hit := range mr.Results[0].Categories {
		if hit {
			result.Categories = append(result.Categories, cat)
		}
	}
	sort.Strings(result.Categories)
	return result, nil
}
