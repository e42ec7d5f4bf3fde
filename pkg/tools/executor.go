package tools

import (
	"context"
)

// ToolKind classifies how a tool is hosted and executed.
type ToolKind int

const (
	// ToolKindFunction is a client-executed tool. The model produces
	// function_call items that are returned to the caller as output;
	// the caller executes the function and feeds the result back as a
	// function_call_output input item on a follow-up request.
	ToolKindFunction ToolKind = iota

	// ToolKindMCP is a tool connected via the Model Context Protocol.
	// The engine connects to the MCP server and executes the tool
	// server-side within the agentic loop.
	ToolKindMCP

	// ToolKindBuiltin is a hosted tool executed by a registered
	// FunctionProvider inside the gateway process (file search,
	// web search).
	ToolKindBuiltin
)

// ToolExecutor executes tool calls. Implementations exist for the
// server-side ToolKinds: MCP (calls an MCP server) and builtin
// (routes to a registered provider). Function tools have no executor;
// the engine returns their calls to the client.
type ToolExecutor interface {
	// Kind returns the type of tools this executor handles.
	Kind() ToolKind

	// CanExecute checks if this executor can handle the given tool name.
	CanExecute(toolName string) bool

	// Execute runs the tool and returns the result. Tool-level failures
	// are reported via ToolResult.IsError, not the error return.
	Execute(ctx context.Context, call ToolCall) (*ToolResult, error)
}

// ToolCall represents a model's request to invoke a tool.
type ToolCall struct {
	// ID is the unique call identifier (from the model, e.g., "call_abc123").
	ID string

	// Name is the tool function name.
	Name string

	// Arguments is the JSON-encoded arguments string.
	Arguments string
}

// ToolResult represents the output of a tool execution.
type ToolResult struct {
	// CallID matches the originating ToolCall.ID.
	CallID string

	// Output is the tool output content (text).
	Output string

	// IsError indicates that the output is an error message.
	IsError bool

	// Details optionally carries structured data about the execution.
	// Built-in providers use it to populate type-specific fields on
	// output items (search queries, matched documents, actions taken).
	Details any
}
