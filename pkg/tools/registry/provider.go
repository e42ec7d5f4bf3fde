// Package registry is the plugin surface for built-in hosted tools. A
// FunctionProvider bundles the tools the gateway executes server-side
// with any HTTP routes and Prometheus collectors the provider needs.
// FunctionRegistry aggregates providers behind tools.ToolExecutor and
// serves their routes from one handler.
package registry

import (
	"context"
	"net/http"

	"github.com/dirigent-dev/dirigent/pkg/api"
	"github.com/dirigent-dev/dirigent/pkg/tools"
	"github.com/prometheus/client_golang/prometheus"
)

// FunctionProvider is one built-in tool backend.
type FunctionProvider interface {
	// Name uniquely identifies the provider, e.g. "file_search".
	Name() string

	// Tools lists the tool definitions the provider contributes.
	Tools() []api.ToolDefinition

	// CanExecute reports whether the provider handles the named tool.
	CanExecute(name string) bool

	// Execute runs one tool call.
	Execute(ctx context.Context, call tools.ToolCall) (*tools.ToolResult, error)

	// Routes lists HTTP endpoints the provider exposes, such as
	// management APIs or webhooks.
	Routes() []Route

	// Collectors returns the provider's Prometheus collectors.
	Collectors() []prometheus.Collector

	// Close releases provider resources.
	Close() error
}

// Route is one HTTP endpoint contributed by a provider.
type Route struct {
	Method  string
	Pattern string
	Handler http.HandlerFunc
}
