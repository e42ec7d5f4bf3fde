// Package tools defines the executor contract for the dirigent agentic
// loop. Pluggable backends (MCP servers, built-in hosted tools)
// implement ToolExecutor; function tools are client-executed and never
// pass through one. The package also enforces allowed_tools filtering
// and carries the ToolCall/ToolResult types executors exchange.
//
// It depends only on pkg/api.
package tools
