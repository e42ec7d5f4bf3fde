package filesearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
)

// Embedder turns text into vectors via an external embedding service.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)

	// Dims reports the vector dimensionality, or 0 before the first
	// successful Embed call.
	Dims() int
}

// HTTPEmbedder calls an OpenAI-compatible /v1/embeddings endpoint.
type HTTPEmbedder struct {
	endpoint string
	model    string
	client   *http.Client

	dims atomic.Int64
}

// NewHTTPEmbedder builds an embedder for the service at baseURL. The
// /v1/embeddings suffix is appended unless already present.
func NewHTTPEmbedder(baseURL, model string) *HTTPEmbedder {
	endpoint := baseURL
	if !strings.HasSuffix(endpoint, "/v1/embeddings") {
		endpoint = strings.TrimRight(endpoint, "/") + "/v1/embeddings"
	}
	return &HTTPEmbedder{
		endpoint: endpoint,
		model:    model,
		client:   &http.Client{},
	}
}

func (e *HTTPEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	payload, err := json.Marshal(struct {
		Input []string `json:"input"`
		Model string   `json:"model"`
	}{texts, e.model})
	if err != nil {
		return nil, fmt.Errorf("marshaling embedding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("creating embedding request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embedding request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("embedding API returned status %d: %s", resp.StatusCode, string(body))
	}

	var parsed struct {
		Data []struct {
			Embedding []float32 `json:"embedding"`
			Index     int       `json:"index"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("parsing embedding response: %w", err)
	}
	if len(parsed.Data) == 0 {
		return nil, fmt.Errorf("embedding response contained no data")
	}

	// The API may return entries out of order; place by index.
	vectors := make([][]float32, len(texts))
	for _, d := range parsed.Data {
		if d.Index < 0 || d.Index >= len(texts) {
			return nil, fmt.Errorf("embedding response index %d out of range [0, %d)", d.Index, len(texts))
		}
		vectors[d.Index] = d.Embedding
	}

	if len(vectors[0]) > 0 {
		e.dims.CompareAndSwap(0, int64(len(vectors[0])))
	}
	return vectors, nil
}

func (e *HTTPEmbedder) Dims() int {
	return int(e.dims.Load())
}
