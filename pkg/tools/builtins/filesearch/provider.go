// Package filesearch implements the file_search built-in tool: vector
// store management plus query-time retrieval against an external vector
// database and embedding service.
package filesearch

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/dirigent-dev/dirigent/pkg/api"
	"github.com/dirigent-dev/dirigent/pkg/storage"
	"github.com/dirigent-dev/dirigent/pkg/tools"
	"github.com/dirigent-dev/dirigent/pkg/tools/registry"
)

const toolName = "file_search"

var toolParametersJSON = json.RawMessage(`{
	"type": "object",
	"properties": {
		"query": {
			"type": "string",
			"description": "The search query to find relevant documents"
		},
		"vector_store_ids": {
			"type": "array",
			"items": {"type": "string"},
			"description": "IDs of vector stores to search. If omitted, all stores for the tenant are searched."
		}
	},
	"required": ["query"]
}`)

// Provider implements registry.FunctionProvider for file_search.
type Provider struct {
	catalog  *Catalog
	index    VectorIndex
	embedder Embedder
	limit    int
	stats    searchMetrics
}

var _ registry.FunctionProvider = (*Provider)(nil)

// searchMetrics bundles the provider's Prometheus instruments.
type searchMetrics struct {
	queryLatency *prometheus.HistogramVec
	embedLatency *prometheus.HistogramVec
	queries      *prometheus.CounterVec
}

func newSearchMetrics() searchMetrics {
	return searchMetrics{
		queryLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "dirigent_filesearch_search_duration_seconds",
				Help:    "File search vector query duration",
				Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"status"},
		),
		embedLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "dirigent_filesearch_embed_duration_seconds",
				Help:    "File search embedding duration",
				Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2},
			},
			[]string{"status"},
		),
		queries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dirigent_filesearch_queries_total",
				Help: "Total file search queries",
			},
			[]string{"status"},
		),
	}
}

// New builds a Provider from the tool's settings map.
//
// Settings:
//   - "backend" (string, default "qdrant"): vector index implementation
//   - "backend_url" (string, required for qdrant): Qdrant base URL
//   - "embedding_url" (string, required): embedding service base URL
//   - "embedding_model" (string, default "text-embedding-ada-002")
//   - "max_results" (number, default 10): result cap per query
func New(settings map[string]interface{}) (*Provider, error) {
	var index VectorIndex
	switch kind := strSetting(settings, "backend", "qdrant"); kind {
	case "qdrant":
		url := strSetting(settings, "backend_url", "")
		if url == "" {
			return nil, fmt.Errorf("file_search: 'backend_url' is required for qdrant backend")
		}
		index = NewQdrant(url)
	default:
		return nil, fmt.Errorf("file_search: unknown backend %q", kind)
	}

	embURL := strSetting(settings, "embedding_url", "")
	if embURL == "" {
		return nil, fmt.Errorf("file_search: 'embedding_url' is required")
	}
	embModel := strSetting(settings, "embedding_model", "text-embedding-ada-002")

	return &Provider{
		catalog:  NewCatalog(),
		index:    index,
		embedder: NewHTTPEmbedder(embURL, embModel),
		limit:    intSetting(settings, "max_results", 10),
		stats:    newSearchMetrics(),
	}, nil
}

// newWithDeps wires injected dependencies, for tests.
func newWithDeps(index VectorIndex, embedder Embedder, limit int) *Provider {
	return &Provider{
		catalog:  NewCatalog(),
		index:    index,
		embedder: embedder,
		limit:    limit,
		stats:    newSearchMetrics(),
	}
}

func strSetting(settings map[string]interface{}, key, fallback string) string {
	if s, ok := settings[key].(string); ok && s != "" {
		return s
	}
	return fallback
}

func intSetting(settings map[string]interface{}, key string, fallback int) int {
	switch n := settings[key].(type) {
	case int:
		return n
	case float64:
		return int(n)
	}
	return fallback
}

func (p *Provider) Name() string { return toolName }

func (p *Provider) Tools() []api.ToolDefinition {
	return []api.ToolDefinition{{
		Type:        "function",
		Name:        toolName,
		Description: "Search documents in vector stores for relevant content",
		Parameters:  toolParametersJSON,
	}}
}

func (p *Provider) CanExecute(name string) bool { return name == toolName }

type searchArgs struct {
	Query          string   `json:"query"`
	VectorStoreIDs []string `json:"vector_store_ids"`
}

// Execute runs one file_search call: pick the stores, embed the query,
// fan out to the index, and merge the ranked results.
func (p *Provider) Execute(ctx context.Context, call tools.ToolCall) (*tools.ToolResult, error) {
	var args searchArgs
	if err := json.Unmarshal([]byte(call.Arguments), &args); err != nil {
		return p.fail(call, fmt.Sprintf("invalid arguments: %v", err)), nil
	}
	if strings.TrimSpace(args.Query) == "" {
		return p.fail(call, "query must not be empty"), nil
	}

	stores := p.selectStores(ctx, args.VectorStoreIDs)
	if len(stores) == 0 {
		p.stats.queries.WithLabelValues("success").Inc()
		return &tools.ToolResult{
			CallID: call.ID,
			Output: "No vector stores available to search.",
		}, nil
	}

	vectors, err := p.embedder.Embed(ctx, []string{args.Query})
	if err != nil {
		return p.fail(call, fmt.Sprintf("embedding failed: %v", err)), nil
	}
	if len(vectors) == 0 || len(vectors[0]) == 0 {
		return p.fail(call, "embedding returned no vectors"), nil
	}

	matches := p.queryStores(ctx, stores, vectors[0])

	p.stats.queries.WithLabelValues("success").Inc()
	return &tools.ToolResult{
		CallID:  call.ID,
		Output:  renderMatches(args.Query, matches),
		Details: callDetails(args.Query, matches),
	}, nil
}

func (p *Provider) fail(call tools.ToolCall, msg string) *tools.ToolResult {
	p.stats.queries.WithLabelValues("error").Inc()
	return &tools.ToolResult{CallID: call.ID, Output: msg, IsError: true}
}

// selectStores resolves the requested store IDs, or every store the
// tenant owns when none were named. Unknown and foreign-tenant IDs are
// silently dropped rather than leaked.
func (p *Provider) selectStores(ctx context.Context, ids []string) []*Store {
	tenantID := storage.GetTenant(ctx)
	if len(ids) == 0 {
		return p.catalog.ForTenant(tenantID)
	}

	var stores []*Store
	for _, id := range ids {
		s, err := p.catalog.Get(id)
		if err != nil {
			continue
		}
		if tenantID != "" && s.TenantID != tenantID {
			continue
		}
		stores = append(stores, s)
	}
	return stores
}

// queryStores searches every store's collection and merges the results
// into one list ranked by score. A store that fails to answer is skipped
// so one bad collection cannot sink the whole call.
func (p *Provider) queryStores(ctx context.Context, stores []*Store, vector []float32) []Match {
	var merged []Match
	for _, s := range stores {
		matches, err := p.index.Query(ctx, s.Collection, vector, p.limit)
		if err != nil {
			continue
		}
		merged = append(merged, matches...)
	}

	sort.Slice(merged, func(i, j int) bool { return merged[i].Score > merged[j].Score })
	if len(merged) > p.limit {
		merged = merged[:p.limit]
	}
	return merged
}

// callDetails shapes matches into the structured payload carried on
// file_search_call output items.
func callDetails(query string, matches []Match) *api.FileSearchCallData {
	data := &api.FileSearchCallData{Queries: []string{query}}
	for _, m := range matches {
		result := api.FileSearchResult{
			FileID: m.DocID,
			Score:  float64(m.Score),
			Text:   m.Text,
		}
		result.Filename = m.Attrs["filename"]
		if len(m.Attrs) > 0 {
			attrs := make(map[string]any, len(m.Attrs))
			for k, v := range m.Attrs {
				attrs[k] = v
			}
			result.Attributes = attrs
		}
		data.Results = append(data.Results, result)
	}
	return data
}

// renderMatches builds the plain-text tool output fed back to the model.
func renderMatches(query string, matches []Match) string {
	if len(matches) == 0 {
		return fmt.Sprintf("No results found for %q.", query)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Search results for %q:\n", query)
	for i, m := range matches {
		fmt.Fprintf(&b, "\n%d. [Score: %.4f]", i+1, m.Score)
		if m.DocID != "" {
			fmt.Fprintf(&b, " (doc: %s)", m.DocID)
		}
		fmt.Fprintf(&b, "\n   %s\n", m.Text)
	}
	return b.String()
}

// Routes exposes the vector store management API.
func (p *Provider) Routes() []registry.Route {
	return []registry.Route{
		{Method: "POST", Pattern: "/vector_stores", Handler: p.handleCreateStore},
		{Method: "GET", Pattern: "/vector_stores", Handler: p.handleListStores},
		{Method: "GET", Pattern: "/vector_stores/{store_id}", Handler: p.handleGetStore},
		{Method: "DELETE", Pattern: "/vector_stores/{store_id}", Handler: p.handleDeleteStore},
	}
}

func (p *Provider) Collectors() []prometheus.Collector {
	return []prometheus.Collector{p.stats.queryLatency, p.stats.embedLatency, p.stats.queries}
}

func (p *Provider) Close() error { return nil }
