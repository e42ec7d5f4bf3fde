// Package mcp provides the MCP (Model Context Protocol) client integration
// for the dirigent agentic loop. It connects to external MCP servers,
// discovers their tools, and executes tool calls as part of the engine's
// tool execution pipeline.
//
// The package wraps the official MCP Go SDK (github.com/modelcontextprotocol/go-sdk)
// and implements the tools.ToolExecutor interface, allowing MCP server tools
// to be used seamlessly alongside function tools and built-in tools.
//
// Servers are described by ServerConfig structs, which specify the
// server name, transport type (SSE or streamable-http), URL, and
// authentication. Static servers come from gateway configuration;
// request-scoped servers are registered from mcp tool definitions via
// MCPExecutor.EnsureServer.
package mcp
