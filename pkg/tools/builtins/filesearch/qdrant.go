package filesearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// Qdrant implements VectorIndex over the Qdrant REST API.
type Qdrant struct {
	base   string
	client *http.Client
}

var _ VectorIndex = (*Qdrant)(nil)

func NewQdrant(url string) *Qdrant {
	return &Qdrant{
		base:   strings.TrimRight(url, "/"),
		client: &http.Client{},
	}
}

// call issues one JSON request against the Qdrant API and decodes the
// response into out when out is non-nil. Non-200 statuses become errors
// carrying the response body.
func (q *Qdrant) call(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshaling qdrant request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, q.base+path, reader)
	if err != nil {
		return fmt.Errorf("creating qdrant request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := q.client.Do(req)
	if err != nil {
		return fmt.Errorf("qdrant %s %s failed: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("qdrant %s %s returned status %d: %s", method, path, resp.StatusCode, string(msg))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("parsing qdrant response: %w", err)
	}
	return nil
}

func (q *Qdrant) EnsureCollection(ctx context.Context, name string, dims int) error {
	body := map[string]any{
		"vectors": map[string]any{"size": dims, "distance": "Cosine"},
	}
	return q.call(ctx, http.MethodPut, "/collections/"+name, body, nil)
}

func (q *Qdrant) DropCollection(ctx context.Context, name string) error {
	return q.call(ctx, http.MethodDelete, "/collections/"+name, nil, nil)
}

// qdrantPoint is one scored point from a search response. IDs may be
// integers or UUID strings, so the field stays untyped until formatting.
type qdrantPoint struct {
	ID      any            `json:"id"`
	Score   float32        `json:"score"`
	Payload map[string]any `json:"payload"`
}

func (q *Qdrant) Query(ctx context.Context, collection string, vector []float32, limit int) ([]Match, error) {
	body := struct {
		Vector      []float32 `json:"vector"`
		Limit       int       `json:"limit"`
		WithPayload bool      `json:"with_payload"`
	}{vector, limit, true}

	var parsed struct {
		Result []qdrantPoint `json:"result"`
	}
	if err := q.call(ctx, http.MethodPost, "/collections/"+collection+"/points/search", body, &parsed); err != nil {
		return nil, err
	}

	matches := make([]Match, 0, len(parsed.Result))
	for _, pt := range parsed.Result {
		m := Match{
			DocID: fmt.Sprintf("%v", pt.ID),
			Score: pt.Score,
			Attrs: make(map[string]string),
		}
		for k, v := range pt.Payload {
			s, ok := v.(string)
			if !ok {
				continue
			}
			if k == "content" {
				m.Text = s
			} else {
				m.Attrs[k] = s
			}
		}
		matches = append(matches, m)
	}
	return matches, nil
}
