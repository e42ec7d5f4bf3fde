package mcp

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/dirigent-dev/dirigent/pkg/api"
	"github.com/dirigent-dev/dirigent/pkg/tools"
)

// MCPExecutor implements tools.ToolExecutor for MCP server tools.
// It manages connections to multiple MCP servers, discovers their tools,
// and routes tool calls to the appropriate server.
//
// Servers come from static gateway configuration (NewMCPExecutor) and
// from mcp tool entries on individual requests (EnsureServer). Sessions
// are cached by server name, so repeated requests naming the same
// server_label reuse the existing connection.
type MCPExecutor struct {
	mu sync.RWMutex

	// clients maps server name to MCPClient.
	clients map[string]*MCPClient

	// toolToServer maps tool name to the server name that provides it.
	toolToServer map[string]string

	// discovered tracks whether the statically configured clients have
	// been through tool discovery.
	discovered bool
}

// Ensure MCPExecutor implements tools.ToolExecutor at compile time.
var _ tools.ToolExecutor = (*MCPExecutor)(nil)

// NewMCPExecutor creates a new MCPExecutor with the given MCP clients.
func NewMCPExecutor(clients map[string]*MCPClient) *MCPExecutor {
	if clients == nil {
		clients = make(map[string]*MCPClient)
	}
	return &MCPExecutor{
		clients:      clients,
		toolToServer: make(map[string]string),
	}
}

// Kind returns ToolKindMCP.
func (e *MCPExecutor) Kind() tools.ToolKind {
	return tools.ToolKindMCP
}

// EnsureServer makes the server described by cfg available for tool
// routing, connecting and discovering its tools if no session exists
// yet. It returns the tools the server exposes, filtered by the
// config's allowed_tools, in the form used by mcp_list_tools items.
//
// A cached session is reused when the server name matches and the URL
// is unchanged. A name reappearing with a different URL replaces the
// old session.
func (e *MCPExecutor) EnsureServer(ctx context.Context, cfg ServerConfig) ([]api.MCPToolInfo, error) {
	if cfg.Name == "" {
		return nil, fmt.Errorf("MCP server config missing name")
	}

	e.mu.RLock()
	existing := e.clients[cfg.Name]
	e.mu.RUnlock()

	if existing != nil && (cfg.URL == "" || existing.cfg.URL == cfg.URL) {
		infos, err := existing.ToolInfos(ctx)
		if err != nil {
			return nil, err
		}
		return filterInfos(infos, cfg), nil
	}

	if existing != nil {
		slog.Warn("MCP server URL changed, reconnecting",
			"server", cfg.Name,
			"old_url", existing.cfg.URL,
			"new_url", cfg.URL,
		)
	}

	// Connect and discover outside the lock; only registration mutates
	// shared state.
	client := NewMCPClient(cfg)
	if err := client.Connect(ctx); err != nil {
		return nil, err
	}
	toolDefs, err := client.DiscoverTools(ctx)
	if err != nil {
		client.Close()
		return nil, err
	}

	e.mu.Lock()
	// Another request may have connected the same server while we did.
	if current := e.clients[cfg.Name]; current != nil && current != existing && current.cfg.URL == cfg.URL {
		e.mu.Unlock()
		client.Close()
		infos, err := current.ToolInfos(ctx)
		if err != nil {
			return nil, err
		}
		return filterInfos(infos, cfg), nil
	}

	if existing != nil {
		for name, server := range e.toolToServer {
			if server == cfg.Name {
				delete(e.toolToServer, name)
			}
		}
		existing.Close()
	}

	e.clients[cfg.Name] = client
	for _, td := range toolDefs {
		if owner, exists := e.toolToServer[td.Name]; exists && owner != cfg.Name {
			slog.Warn("duplicate MCP tool name, using first provider",
				"tool", td.Name,
				"server", cfg.Name,
				"owner", owner,
			)
			continue
		}
		e.toolToServer[td.Name] = cfg.Name
	}
	e.mu.Unlock()

	slog.Info("registered MCP server",
		"server", cfg.Name,
		"tools", len(toolDefs),
	)

	infos, err := client.ToolInfos(ctx)
	if err != nil {
		return nil, err
	}
	return filterInfos(infos, cfg), nil
}

// ServerFor returns the name of the server that provides the named
// tool, if any.
func (e *MCPExecutor) ServerFor(toolName string) (string, bool) {
	e.ensureDiscovered()

	e.mu.RLock()
	defer e.mu.RUnlock()
	server, ok := e.toolToServer[toolName]
	return server, ok
}

// CanExecute returns true if any connected MCP server provides the named tool.
// On the first call, it triggers lazy tool discovery.
func (e *MCPExecutor) CanExecute(toolName string) bool {
	e.ensureDiscovered()

	e.mu.RLock()
	defer e.mu.RUnlock()
	_, ok := e.toolToServer[toolName]
	return ok
}

// Execute routes the tool call to the correct MCP server and returns the result.
func (e *MCPExecutor) Execute(ctx context.Context, call tools.ToolCall) (*tools.ToolResult, error) {
	e.ensureDiscovered()

	e.mu.RLock()
	serverName, ok := e.toolToServer[call.Name]
	if !ok {
		e.mu.RUnlock()
		return &tools.ToolResult{
			CallID:  call.ID,
			Output:  fmt.Sprintf("no MCP server provides tool %q", call.Name),
			IsError: true,
		}, nil
	}
	client := e.clients[serverName]
	e.mu.RUnlock()

	return client.CallTool(ctx, call)
}

// DiscoveredTools returns all tools discovered from connected MCP servers.
// This is useful for the engine to merge MCP tools into the request's
// tool definitions.
func (e *MCPExecutor) DiscoveredTools() []api.ToolDefinition {
	e.ensureDiscovered()

	e.mu.RLock()
	defer e.mu.RUnlock()

	var allTools []api.ToolDefinition
	for _, client := range e.clients {
		client.mu.Lock()
		allTools = append(allTools, client.cachedTools...)
		client.mu.Unlock()
	}
	return allTools
}

// Close closes all MCP client connections.
func (e *MCPExecutor) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	var lastErr error
	for name, client := range e.clients {
		if err := client.Close(); err != nil {
			slog.Warn("failed to close MCP client", "server", name, "error", err)
			lastErr = err
		}
	}
	return lastErr
}

// ensureDiscovered triggers tool discovery for statically configured
// clients if it hasn't been done yet.
func (e *MCPExecutor) ensureDiscovered() {
	e.mu.RLock()
	if e.discovered {
		e.mu.RUnlock()
		return
	}
	e.mu.RUnlock()

	e.mu.Lock()
	defer e.mu.Unlock()

	// Double-check after acquiring write lock.
	if e.discovered {
		return
	}

	ctx := context.Background()
	for name, client := range e.clients {
		toolDefs, err := client.DiscoverTools(ctx)
		if err != nil {
			slog.Error("failed to discover tools from MCP server",
				"server", name,
				"error", err,
			)
			continue
		}

		for _, td := range toolDefs {
			if owner, exists := e.toolToServer[td.Name]; exists && owner != name {
				slog.Warn("duplicate MCP tool name, using first provider",
					"tool", td.Name,
					"server", name,
				)
				continue
			}
			e.toolToServer[td.Name] = name
		}

		slog.Info("discovered MCP tools",
			"server", name,
			"count", len(toolDefs),
		)
	}

	e.discovered = true
}

// filterInfos applies a config's allowed_tools filter to a tool info list.
// A cached session may expose more tools than the requesting config allows.
func filterInfos(infos []api.MCPToolInfo, cfg ServerConfig) []api.MCPToolInfo {
	if len(cfg.AllowedTools) == 0 {
		return infos
	}
	var filtered []api.MCPToolInfo
	for _, info := range infos {
		if cfg.allowsTool(info.Name) {
			filtered = append(filtered, info)
		}
	}
	return filtered
}
