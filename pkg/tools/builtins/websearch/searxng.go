package websearch

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"
)

// SearXNG queries a SearXNG metasearch instance over its JSON API.
type SearXNG struct {
	base   string
	client *http.Client
}

var _ Engine = (*SearXNG)(nil)

func NewSearXNG(baseURL string) *SearXNG {
	return &SearXNG{
		base:   strings.TrimRight(baseURL, "/"),
		client: http.DefaultClient,
	}
}

func (s *SearXNG) Search(ctx context.Context, query string, limit int) ([]Result, error) {
	params := url.Values{
		"q":          {query},
		"format":     {"json"},
		"categories": {"general"},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.base+"/search?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("executing search request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("search backend returned status %d", resp.StatusCode)
	}

	var parsed struct {
		Results []struct {
			Title   string `json:"title"`
			URL     string `json:"url"`
			Content string `json:"content"`
		} `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decoding search response: %w", err)
	}

	results := make([]Result, 0, min(len(parsed.Results), limit))
	for i, r := range parsed.Results {
		if i >= limit {
			break
		}
		results = append(results, Result{
			Title:   stripHTML(r.Title),
			URL:     r.URL,
			Snippet: stripHTML(r.Content),
		})
	}
	return results, nil
}

var htmlTag = regexp.MustCompile(`<[^>]*>`)

// stripHTML drops markup SearXNG leaves in titles and snippets.
func stripHTML(s string) string {
	return strings.TrimSpace(htmlTag.ReplaceAllString(s, ""))
}
