package registry

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/dirigent-dev/dirigent/pkg/api"
	"github.com/dirigent-dev/dirigent/pkg/tools"
	"github.com/prometheus/client_golang/prometheus"
)

// Tool executions finish faster than LLM calls, so the buckets start at
// 10ms.
var builtinBuckets = []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60}

func builtinCounter(name, help string, labels ...string) *prometheus.CounterVec {
	return prometheus.NewCounterVec(prometheus.CounterOpts{Name: name, Help: help}, labels)
}

func builtinHistogram(name, help string, labels ...string) *prometheus.HistogramVec {
	return prometheus.NewHistogramVec(prometheus.HistogramOpts{Name: name, Help: help, Buckets: builtinBuckets}, labels)
}

var (
	builtinToolExecutions = builtinCounter("dirigent_builtin_tool_executions_total",
		"Total built-in tool executions", "provider", "tool_name", "status")
	builtinToolDuration = builtinHistogram("dirigent_builtin_tool_duration_seconds",
		"Built-in tool execution duration", "provider", "tool_name")
	builtinAPIRequests = builtinCounter("dirigent_builtin_api_requests_total",
		"Total built-in provider API requests", "provider", "method", "path", "status")
	builtinAPIDuration = builtinHistogram("dirigent_builtin_api_duration_seconds",
		"Built-in provider API request duration", "provider", "method", "path")
)

func init() {
	prometheus.MustRegister(builtinToolExecutions, builtinToolDuration, builtinAPIRequests, builtinAPIDuration)
}

// FunctionRegistry aggregates FunctionProviders behind the
// tools.ToolExecutor interface. It owns tool-name routing, execution
// metrics, panic containment, and the merged HTTP surface of all
// provider routes.
type FunctionRegistry struct {
	mu        sync.RWMutex
	providers []FunctionProvider
	byTool    map[string]FunctionProvider
}

var _ tools.ToolExecutor = (*FunctionRegistry)(nil)

func New() *FunctionRegistry {
	return &FunctionRegistry{byTool: make(map[string]FunctionProvider)}
}

// Register adds a provider and claims its tool names. Name conflicts
// resolve first-come, first-served with a logged warning, and the
// provider's Prometheus collectors are registered as a side effect.
func (r *FunctionRegistry) Register(p FunctionProvider) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.providers = append(r.providers, p)
	for _, td := range p.Tools() {
		r.claimTool(td.Name, p)
	}
	for _, c := range p.Collectors() {
		if err := prometheus.Register(c); err != nil {
			// Re-registering the same collector is harmless.
			slog.Debug("collector already registered", "provider", p.Name(), "error", err)
		}
	}

	slog.Info("registered builtin provider",
		"provider", p.Name(),
		"tools", len(p.Tools()),
		"routes", len(p.Routes()),
	)
}

// claimTool records tool ownership under r.mu.
func (r *FunctionRegistry) claimTool(name string, p FunctionProvider) {
	if winner, claimed := r.byTool[name]; claimed {
		slog.Warn("builtin tool name conflict, keeping first provider",
			"tool", name,
			"winner", winner.Name(),
			"loser", p.Name(),
		)
		return
	}
	r.byTool[name] = p
}

// owner returns the provider claiming the tool, if any.
func (r *FunctionRegistry) owner(toolName string) (FunctionProvider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.byTool[toolName]
	return p, ok
}

// Kind returns ToolKindBuiltin.
func (r *FunctionRegistry) Kind() tools.ToolKind {
	return tools.ToolKindBuiltin
}

// CanExecute reports whether any registered provider owns the tool.
func (r *FunctionRegistry) CanExecute(toolName string) bool {
	_, ok := r.owner(toolName)
	return ok
}

// Execute routes the call to the owning provider. Provider panics are
// contained and surfaced as error results so one bad tool cannot take
// the gateway down mid-response.
func (r *FunctionRegistry) Execute(ctx context.Context, call tools.ToolCall) (result *tools.ToolResult, err error) {
	p, ok := r.owner(call.Name)
	if !ok {
		return errorToolResult(call.ID, fmt.Sprintf("no builtin provider handles tool %q", call.Name)), nil
	}

	providerName := p.Name()
	start := time.Now()
	record := func(status string) {
		builtinToolExecutions.WithLabelValues(providerName, call.Name, status).Inc()
		builtinToolDuration.WithLabelValues(providerName, call.Name).Observe(time.Since(start).Seconds())
	}

	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("builtin tool provider panicked",
				"provider", providerName,
				"tool", call.Name,
				"panic", rec,
			)
			result = errorToolResult(call.ID, fmt.Sprintf("internal error: builtin tool %q panicked", call.Name))
			err = nil
			record("panic")
		}
	}()

	result, err = p.Execute(ctx, call)

	switch {
	case err != nil:
		record("error")
	case result != nil && result.IsError:
		record("tool_error")
	default:
		record("success")
	}
	return result, err
}

func errorToolResult(callID, message string) *tools.ToolResult {
	return &tools.ToolResult{CallID: callID, Output: message, IsError: true}
}

// DiscoveredTools merges the tool definitions of every provider.
func (r *FunctionRegistry) DiscoveredTools() []api.ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var defs []api.ToolDefinition
	for _, p := range r.providers {
		defs = append(defs, p.Tools()...)
	}
	return defs
}

// HTTPHandler serves every provider route through one mux, each wrapped
// with request metrics. Mount it behind the server's auth middleware.
func (r *FunctionRegistry) HTTPHandler() http.Handler {
	r.mu.RLock()
	defer r.mu.RUnlock()

	mux := http.NewServeMux()
	for _, p := range r.providers {
		for _, route := range p.Routes() {
			mux.HandleFunc(muxPattern(route), wrapRoute(p.Name(), route))
		}
	}
	return mux
}

// muxPattern renders the Go 1.22 "METHOD /path" form, or just the path
// when the route matches every method.
func muxPattern(route Route) string {
	if route.Method == "" {
		return route.Pattern
	}
	return route.Method + " " + route.Pattern
}

// Close closes every provider, returning the last error seen.
func (r *FunctionRegistry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var lastErr error
	for _, p := range r.providers {
		if err := p.Close(); err != nil {
			slog.Warn("failed to close builtin provider", "provider", p.Name(), "error", err)
			lastErr = err
		}
	}
	return lastErr
}

// HasProviders reports whether anything is registered.
func (r *FunctionRegistry) HasProviders() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.providers) > 0
}
