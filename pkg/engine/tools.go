package engine

import (
	"context"
	"log/slog"

	"github.com/dirigent-dev/dirigent/pkg/api"
	"github.com/dirigent-dev/dirigent/pkg/provider"
	"github.com/dirigent-dev/dirigent/pkg/tools"
	"github.com/dirigent-dev/dirigent/pkg/tools/mcp"
)

// MCPRegistry connects MCP servers declared on requests. Implemented by
// mcp.MCPExecutor; a test double suffices for unit tests.
type MCPRegistry interface {
	EnsureServer(ctx context.Context, cfg mcp.ServerConfig) ([]api.MCPToolInfo, error)
}

// ToolSource exposes discovered tool definitions. The builtin registry
// and the MCP executor both implement it.
type ToolSource interface {
	DiscoveredTools() []api.ToolDefinition
}

// mcpBinding ties a discovered MCP tool name to the server that provides
// it and the approval policy its declaration carried.
type mcpBinding struct {
	serverLabel     string
	requireApproval *api.RequireApproval
}

// toolContext is the tool surface visible to one response: the
// provider-facing definitions derived from the request's tools, and the
// classification tables the orchestrator dispatches with.
type toolContext struct {
	providerTools []provider.ProviderTool

	// mcpByTool maps a tool name to the MCP server binding executing it.
	mcpByTool map[string]*mcpBinding

	// builtinByTool maps a tool name to its hosted tool type
	// (file_search, web_search).
	builtinByTool map[string]string

	// listItems are mcp_list_tools items for servers newly exposed in
	// this response. Recovered chain state is not re-emitted.
	listItems []api.Item

	allowed []string
}

// resolveTools builds the tool surface for a request. MCP servers
// declared on the request are connected (or matched against tool state
// recovered from the response chain); hosted tools are matched against
// the executors' discovered definitions; function tools pass through.
func resolveTools(ctx context.Context, req *api.CreateResponseRequest, mcpReg MCPRegistry, executors []tools.ToolExecutor, recovered map[string][]api.MCPToolInfo) *toolContext {
	tc := &toolContext{
		mcpByTool:     make(map[string]*mcpBinding),
		builtinByTool: make(map[string]string),
		allowed:       req.AllowedTools,
	}

	builtinDefs := discoveredBuiltins(executors)

	for _, t := range req.Tools {
		switch t.Type {
		case api.ToolTypeFunction:
			tc.providerTools = append(tc.providerTools, functionTool(t))

		case api.ToolTypeFileSearch, api.ToolTypeWebSearch:
			def, ok := builtinDefs[t.Type]
			if !ok {
				slog.Warn("no builtin provider registered for hosted tool",
					"tool_type", t.Type,
				)
				continue
			}
			tc.builtinByTool[def.Name] = t.Type
			tc.providerTools = append(tc.providerTools, functionTool(def))

		case api.ToolTypeMCP:
			tc.resolveMCPServer(ctx, t, mcpReg, recovered)
		}
	}

	return tc
}

// resolveMCPServer exposes one declared MCP server's tools. Servers
// already seen earlier in the chain are recovered without reconnecting
// and without a new mcp_list_tools item.
func (tc *toolContext) resolveMCPServer(ctx context.Context, t api.ToolDefinition, mcpReg MCPRegistry, recovered map[string][]api.MCPToolInfo) {
	if infos, ok := recovered[t.ServerLabel]; ok {
		tc.bindMCPTools(t, infos)
		return
	}

	if mcpReg == nil {
		slog.Warn("mcp tool declared but no MCP registry configured",
			"server_label", t.ServerLabel,
		)
		return
	}

	infos, err := mcpReg.EnsureServer(ctx, mcp.ServerConfigFromTool(t))
	if err != nil {
		slog.Error("failed to connect MCP server",
			"server_label", t.ServerLabel,
			"server_url", t.ServerURL,
			"error", err,
		)
		tc.listItems = append(tc.listItems, api.Item{
			ID:     api.NewItemID(),
			Type:   api.ItemTypeMCPListTools,
			Status: api.ItemStatusFailed,
			MCPListTools: &api.MCPListToolsData{
				ServerLabel: t.ServerLabel,
				Tools:       []api.MCPToolInfo{},
			},
		})
		return
	}

	tc.bindMCPTools(t, infos)
	tc.listItems = append(tc.listItems, api.Item{
		ID:     api.NewItemID(),
		Type:   api.ItemTypeMCPListTools,
		Status: api.ItemStatusCompleted,
		MCPListTools: &api.MCPListToolsData{
			ServerLabel: t.ServerLabel,
			Tools:       infos,
		},
	})
}

func (tc *toolContext) bindMCPTools(t api.ToolDefinition, infos []api.MCPToolInfo) {
	for _, info := range infos {
		if _, taken := tc.mcpByTool[info.Name]; taken {
			continue
		}
		tc.mcpByTool[info.Name] = &mcpBinding{
			serverLabel:     t.ServerLabel,
			requireApproval: t.RequireApproval,
		}
		tc.providerTools = append(tc.providerTools, provider.ProviderTool{
			Type: "function",
			Function: provider.ProviderFunctionDef{
				Name:        info.Name,
				Description: info.Description,
				Parameters:  info.InputSchema,
			},
		})
	}
}

// serverSide reports whether the named tool executes inside the gateway.
// Anything else is a client-executed function call.
func (tc *toolContext) serverSide(name string) bool {
	if _, ok := tc.mcpByTool[name]; ok {
		return true
	}
	_, ok := tc.builtinByTool[name]
	return ok
}

func discoveredBuiltins(executors []tools.ToolExecutor) map[string]api.ToolDefinition {
	defs := make(map[string]api.ToolDefinition)
	for _, ex := range executors {
		if ex.Kind() != tools.ToolKindBuiltin {
			continue
		}
		src, ok := ex.(ToolSource)
		if !ok {
			continue
		}
		for _, def := range src.DiscoveredTools() {
			if _, taken := defs[def.Name]; !taken {
				defs[def.Name] = def
			}
		}
	}
	return defs
}

func functionTool(t api.ToolDefinition) provider.ProviderTool {
	def := provider.ProviderFunctionDef{
		Name:        t.Name,
		Description: t.Description,
		Parameters:  t.Parameters,
	}
	if t.Strict {
		strict := true
		def.Strict = &strict
	}
	return provider.ProviderTool{Type: "function", Function: def}
}
