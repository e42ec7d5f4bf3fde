package mcp

import (
	"github.com/dirigent-dev/dirigent/pkg/api"
)

// Config holds the configuration for all MCP server connections.
type Config struct {
	// Servers is the list of MCP server configurations to connect to.
	Servers []ServerConfig
}

// ServerConfig describes a single MCP server connection. Servers come
// from two places: static gateway configuration, and mcp tool entries
// on individual requests (see ServerConfigFromTool).
type ServerConfig struct {
	// Name is the logical name for this server, used for logging and
	// identification when routing tool calls. For request-scoped
	// servers this is the tool's server_label.
	Name string `json:"name"`

	// Transport is the transport type to use: "sse" or "streamable-http".
	// If empty, defaults to "streamable-http".
	Transport string `json:"transport"`

	// URL is the MCP server endpoint URL.
	URL string `json:"url"`

	// Headers contains additional HTTP headers to send with requests,
	// typically used for authentication (API keys, bearer tokens, etc.).
	Headers map[string]string `json:"headers,omitempty"`

	// Auth configures dynamic authentication for this server. When
	// Auth.Type is set it takes precedence over static Headers.
	Auth AuthConfig `json:"auth,omitempty"`

	// AllowedTools restricts which of the server's tools are exposed.
	// Empty means all discovered tools are exposed.
	AllowedTools []string `json:"allowed_tools,omitempty"`
}

// AuthConfig selects and configures a HeaderSource for a server.
type AuthConfig struct {
	// Type is the auth mechanism: "oauth_client_credentials" or empty
	// for static-header auth.
	Type string `json:"type,omitempty"`

	// OAuth 2.0 client_credentials settings, used when Type is
	// "oauth_client_credentials".
	TokenURL     string   `json:"token_url,omitempty"`
	ClientID     string   `json:"client_id,omitempty"`
	ClientSecret string   `json:"client_secret,omitempty"`
	Scopes       []string `json:"scopes,omitempty"`
}

// ServerConfigFromTool builds a ServerConfig from an mcp tool definition
// supplied on a request. The server_label becomes the server name.
func ServerConfigFromTool(td api.ToolDefinition) ServerConfig {
	return ServerConfig{
		Name:         td.ServerLabel,
		URL:          td.ServerURL,
		Headers:      td.Headers,
		AllowedTools: td.AllowedTools,
	}
}

// allowsTool reports whether the config exposes the named tool.
func (c ServerConfig) allowsTool(name string) bool {
	if len(c.AllowedTools) == 0 {
		return true
	}
	for _, allowed := range c.AllowedTools {
		if allowed == name {
			return true
		}
	}
	return false
}
