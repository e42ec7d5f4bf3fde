// Package websearch implements the web_search built-in tool backed by
// a pluggable search engine, SearXNG by default.
package websearch

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/dirigent-dev/dirigent/pkg/api"
	"github.com/dirigent-dev/dirigent/pkg/tools"
	"github.com/dirigent-dev/dirigent/pkg/tools/registry"
)

const toolName = "web_search"

var toolParametersJSON = json.RawMessage(`{"type":"object","properties":{"query":{"type":"string","description":"Search query"}},"required":["query"]}`)

// Result is one hit returned by a search engine.
type Result struct {
	Title   string
	URL     string
	Snippet string
}

// Engine is a pluggable search backend.
type Engine interface {
	Search(ctx context.Context, query string, limit int) ([]Result, error)
}

// Provider implements registry.FunctionProvider for web_search.
type Provider struct {
	engine     Engine
	engineName string
	limit      int

	queries *prometheus.CounterVec
	hits    *prometheus.HistogramVec
}

var _ registry.FunctionProvider = (*Provider)(nil)

// New builds a Provider from the tool's settings map.
//
// Settings:
//   - "backend" (string, default "searxng"): search engine to use
//   - "url" (string, required for searxng): SearXNG base URL
//   - "max_results" (number, default 5): result cap per query
func New(settings map[string]interface{}) (*Provider, error) {
	engineName := "searxng"
	if s, ok := settings["backend"].(string); ok && s != "" {
		engineName = s
	}

	limit := 5
	switch n := settings["max_results"].(type) {
	case int:
		limit = n
	case float64:
		limit = int(n)
	}

	var engine Engine
	switch engineName {
	case "searxng":
		url, _ := settings["url"].(string)
		if url == "" {
			return nil, fmt.Errorf("web_search: 'url' is required for searxng backend")
		}
		engine = NewSearXNG(url)
	default:
		return nil, fmt.Errorf("web_search: unknown backend %q", engineName)
	}

	return &Provider{
		engine:     engine,
		engineName: engineName,
		limit:      limit,
		queries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dirigent_websearch_queries_total",
				Help: "Total web search queries",
			},
			[]string{"backend", "status"},
		),
		hits: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "dirigent_websearch_results_returned",
				Help:    "Number of web search results returned",
				Buckets: []float64{0, 1, 2, 3, 5, 10, 20},
			},
			[]string{"backend"},
		),
	}, nil
}

func (p *Provider) Name() string { return toolName }

func (p *Provider) Tools() []api.ToolDefinition {
	return []api.ToolDefinition{{
		Type:        "function",
		Name:        toolName,
		Description: "Search the web for current information",
		Parameters:  toolParametersJSON,
	}}
}

func (p *Provider) CanExecute(name string) bool { return name == toolName }

// Execute runs one web_search call against the configured engine.
func (p *Provider) Execute(ctx context.Context, call tools.ToolCall) (*tools.ToolResult, error) {
	var args struct {
		Query string `json:"query"`
	}
	if err := json.Unmarshal([]byte(call.Arguments), &args); err != nil {
		return p.fail(call, fmt.Sprintf("invalid arguments: %v", err)), nil
	}
	if strings.TrimSpace(args.Query) == "" {
		return p.fail(call, "query must not be empty"), nil
	}

	results, err := p.engine.Search(ctx, args.Query, p.limit)
	if err != nil {
		return p.fail(call, fmt.Sprintf("search failed: %v", err)), nil
	}

	p.queries.WithLabelValues(p.engineName, "success").Inc()
	p.hits.WithLabelValues(p.engineName).Observe(float64(len(results)))

	return &tools.ToolResult{
		CallID: call.ID,
		Output: renderResults(args.Query, results),
		Details: &api.WebSearchAction{
			Type:  "search",
			Query: args.Query,
		},
	}, nil
}

func (p *Provider) fail(call tools.ToolCall, msg string) *tools.ToolResult {
	p.queries.WithLabelValues(p.engineName, "error").Inc()
	return &tools.ToolResult{CallID: call.ID, Output: msg, IsError: true}
}

// Routes returns nil; web_search has no management API.
func (p *Provider) Routes() []registry.Route { return nil }

func (p *Provider) Collectors() []prometheus.Collector {
	return []prometheus.Collector{p.queries, p.hits}
}

func (p *Provider) Close() error { return nil }

// renderResults builds the plain-text tool output fed back to the model.
func renderResults(query string, results []Result) string {
	if len(results) == 0 {
		return fmt.Sprintf("No results found for %q.", query)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Search results for %q:\n", query)
	for i, r := range results {
		fmt.Fprintf(&b, "\n%d. %s\n   URL: %s\n   %s\n", i+1, r.Title, r.URL, r.Snippet)
	}
	return b.String()
}
