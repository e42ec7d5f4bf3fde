package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/dirigent-dev/dirigent/pkg/api"
	"github.com/dirigent-dev/dirigent/pkg/tools"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// MCPClient manages one MCP server connection: handshake, tool
// discovery, and tool invocation.
type MCPClient struct {
	cfg     ServerConfig
	client  *mcp.Client
	session *mcp.ClientSession

	mu            sync.Mutex
	cachedTools   []api.ToolDefinition
	cachedInfos   []api.MCPToolInfo
	toolsResolved bool
}

// NewMCPClient builds a client for the server configuration. Call
// Connect before using it.
func NewMCPClient(cfg ServerConfig) *MCPClient {
	return &MCPClient{cfg: cfg}
}

// Connect performs the MCP handshake over a transport derived from the
// server configuration.
func (c *MCPClient) Connect(ctx context.Context) error {
	return c.ConnectWithTransport(ctx, nil)
}

// ConnectWithTransport performs the handshake over the given transport.
// A nil transport falls back to the configured one.
func (c *MCPClient) ConnectWithTransport(ctx context.Context, transport mcp.Transport) error {
	c.client = mcp.NewClient(
		&mcp.Implementation{Name: "dirigent", Version: "1.0.0"},
		&mcp.ClientOptions{Capabilities: &mcp.ClientCapabilities{}},
	)

	if transport == nil {
		var err error
		if transport, err = c.transport(); err != nil {
			return fmt.Errorf("creating transport for %q: %w", c.cfg.Name, err)
		}
	}

	session, err := c.client.Connect(ctx, transport, nil)
	if err != nil {
		return fmt.Errorf("connecting to MCP server %q: %w", c.cfg.Name, err)
	}
	c.session = session
	return nil
}

func (c *MCPClient) transport() (mcp.Transport, error) {
	httpClient := c.httpClient()

	switch c.cfg.Transport {
	case "sse":
		t := &mcp.SSEClientTransport{Endpoint: c.cfg.URL}
		if httpClient != nil {
			t.HTTPClient = httpClient
		}
		return t, nil
	case "streamable-http", "":
		t := &mcp.StreamableClientTransport{Endpoint: c.cfg.URL}
		if httpClient != nil {
			t.HTTPClient = httpClient
		}
		return t, nil
	}
	return nil, fmt.Errorf("unsupported transport type %q", c.cfg.Transport)
}

// httpClient returns an HTTP client injecting static and auth headers,
// or nil when neither is configured.
func (c *MCPClient) httpClient() *http.Client {
	var source HeaderSource
	if c.cfg.Auth.Type == "oauth_client_credentials" {
		source = NewClientCredentials(
			c.cfg.Auth.TokenURL,
			c.cfg.Auth.ClientID,
			c.cfg.Auth.ClientSecret,
			c.cfg.Auth.Scopes,
		)
	}
	if len(c.cfg.Headers) == 0 && source == nil {
		return nil
	}
	return &http.Client{
		Transport: &authAwareTransport{
			base:    http.DefaultTransport,
			headers: c.cfg.Headers,
			auth:    source,
		},
	}
}

// authAwareTransport stamps static headers and freshly minted auth
// headers onto every outgoing request.
type authAwareTransport struct {
	base    http.RoundTripper
	headers map[string]string
	auth    HeaderSource
}

func (t *authAwareTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	// Static headers first; auth headers may override them, which is
	// the point for Authorization.
	for k, v := range t.headers {
		req.Header.Set(k, v)
	}
	if t.auth != nil {
		authHeaders, err := t.auth.Headers(req.Context())
		if err != nil {
			return nil, fmt.Errorf("getting auth headers: %w", err)
		}
		for k, v := range authHeaders {
			req.Header.Set(k, v)
		}
	}
	return t.base.RoundTrip(req)
}

// DiscoverTools lists the server's tools, applies the allowed_tools
// filter, and caches the converted definitions. Later calls serve the
// cache.
func (c *MCPClient) DiscoverTools(ctx context.Context) ([]api.ToolDefinition, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.toolsResolved {
		return c.cachedTools, nil
	}
	if c.session == nil {
		return nil, fmt.Errorf("MCP client %q not connected", c.cfg.Name)
	}

	var defs []api.ToolDefinition
	var infos []api.MCPToolInfo
	for tool, err := range c.session.Tools(ctx, nil) {
		if err != nil {
			return nil, fmt.Errorf("listing tools from %q: %w", c.cfg.Name, err)
		}
		if !c.cfg.allowsTool(tool.Name) {
			continue
		}
		def, convErr := toolDefinition(tool)
		if convErr != nil {
			return nil, fmt.Errorf("converting tool %q from %q: %w", tool.Name, c.cfg.Name, convErr)
		}
		defs = append(defs, def)
		infos = append(infos, api.MCPToolInfo{
			Name:        def.Name,
			Description: def.Description,
			InputSchema: def.Parameters,
		})
	}

	c.cachedTools = defs
	c.cachedInfos = infos
	c.toolsResolved = true
	return defs, nil
}

// ToolInfos returns the discovered tools in mcp_list_tools item form,
// discovering first if needed.
func (c *MCPClient) ToolInfos(ctx context.Context) ([]api.MCPToolInfo, error) {
	if _, err := c.DiscoverTools(ctx); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cachedInfos, nil
}

// CallTool invokes one tool on the server. Protocol and argument
// failures come back as error results, not Go errors, so the model can
// see them.
func (c *MCPClient) CallTool(ctx context.Context, call tools.ToolCall) (*tools.ToolResult, error) {
	if c.session == nil {
		return nil, fmt.Errorf("MCP client %q not connected", c.cfg.Name)
	}

	var args map[string]any
	if call.Arguments != "" {
		if err := json.Unmarshal([]byte(call.Arguments), &args); err != nil {
			return errorResult(call.ID, fmt.Sprintf("invalid arguments JSON: %v", err)), nil
		}
	}

	result, err := c.session.CallTool(ctx, &mcp.CallToolParams{
		Name:      call.Name,
		Arguments: args,
	})
	if err != nil {
		return errorResult(call.ID, fmt.Sprintf("MCP tool call error: %v", err)), nil
	}
	return toolResult(call.ID, result), nil
}

// Close ends the MCP session.
func (c *MCPClient) Close() error {
	if c.session == nil {
		return nil
	}
	return c.session.Close()
}

func errorResult(callID, message string) *tools.ToolResult {
	return &tools.ToolResult{CallID: callID, Output: message, IsError: true}
}

// toolDefinition converts an MCP tool into the function form the model
// sees.
func toolDefinition(t *mcp.Tool) (api.ToolDefinition, error) {
	var params json.RawMessage
	if t.InputSchema != nil {
		data, err := json.Marshal(t.InputSchema)
		if err != nil {
			return api.ToolDefinition{}, fmt.Errorf("marshaling input schema: %w", err)
		}
		params = data
	}
	return api.ToolDefinition{
		Type:        "function",
		Name:        t.Name,
		Description: t.Description,
		Parameters:  params,
		Strict:      false,
	}, nil
}

// toolResult joins the text content blocks of an MCP result.
func toolResult(callID string, result *mcp.CallToolResult) *tools.ToolResult {
	var parts []string
	for _, content := range result.Content {
		if tc, ok := content.(*mcp.TextContent); ok {
			parts = append(parts, tc.Text)
		}
	}
	return &tools.ToolResult{
		CallID:  callID,
		Output:  strings.Join(parts, "\n"),
		IsError: result.IsError,
	}
}
