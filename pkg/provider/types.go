package provider

import (
	"encoding/json"

	"github.com/dirigent-dev/dirigent/pkg/api"
)

// ProviderCapabilities declares what features the backend supports.
// Used by the engine for early request validation.
type ProviderCapabilities struct {
	// Streaming indicates whether the provider supports streaming responses.
	Streaming bool

	// ToolCalling indicates whether the provider supports function/tool calls.
	ToolCalling bool

	// Vision indicates whether the provider supports image inputs.
	Vision bool

	// Reasoning indicates whether the provider can emit reasoning content.
	Reasoning bool

	// MaxContextWindow is the maximum token count (0 = unknown/unlimited).
	MaxContextWindow int

	// SupportedModels lists models this provider can serve.
	// Empty means "ask ListModels()".
	SupportedModels []string
}

// ProviderRequest is the backend-facing request. It contains only the
// information the provider needs, stripped of transport and storage concerns.
type ProviderRequest struct {
	Model             string            `json:"model"`
	Messages          []ProviderMessage `json:"messages"`
	Tools             []ProviderTool    `json:"tools,omitempty"`
	ToolChoice        *api.ToolChoice   `json:"tool_choice,omitempty"`
	ResponseFormat    any               `json:"response_format,omitempty"`
	Temperature       *float64          `json:"temperature,omitempty"`
	TopP              *float64          `json:"top_p,omitempty"`
	MaxTokens         *int              `json:"max_tokens,omitempty"`
	ParallelToolCalls *bool             `json:"parallel_tool_calls,omitempty"`
	Stream            bool              `json:"stream,omitempty"`
	User              string            `json:"user,omitempty"`

	// Extra holds provider-specific parameters that don't map to standard fields.
	Extra map[string]any `json:"-"`
}

// ProviderMessage represents a message in the provider's conversation format.
// The engine keeps the per-response message buffer in this shape and the
// stores persist it verbatim, so chained responses can replay prior turns
// without reconstructing them from items.
type ProviderMessage struct {
	Role       string             `json:"role"`
	Content    any                `json:"content"`
	ToolCalls  []ProviderToolCall `json:"tool_calls,omitempty"`
	ToolCallID string             `json:"tool_call_id,omitempty"`
	Name       string             `json:"name,omitempty"`
}

// ProviderToolCall represents a tool call entry in an assistant message.
type ProviderToolCall struct {
	ID       string               `json:"id"`
	Type     string               `json:"type"`
	Function ProviderFunctionCall `json:"function"`
}

// ProviderFunctionCall holds the function name and arguments for a tool call.
type ProviderFunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// ProviderTool represents a tool definition in provider format.
type ProviderTool struct {
	Type     string              `json:"type"`
	Function ProviderFunctionDef `json:"function"`
}

// ProviderFunctionDef holds a function definition for tool use.
type ProviderFunctionDef struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
	Strict      *bool           `json:"strict,omitempty"`
}

// FinishReason reports why the backend ended a turn.
type FinishReason string

const (
	FinishReasonStop          FinishReason = "stop"
	FinishReasonToolCalls     FinishReason = "tool_calls"
	FinishReasonLength        FinishReason = "length"
	FinishReasonContentFilter FinishReason = "content_filter"
)

// ProviderEventType classifies a streaming event from the backend.
type ProviderEventType int

const (
	ProviderEventMessageStart      ProviderEventType = iota // New assistant message begins
	ProviderEventTextDelta                                  // Incremental text content
	ProviderEventTextDone                                   // Text content complete
	ProviderEventToolCallStart                              // Tool call opened: id and name known
	ProviderEventToolCallArgsDelta                          // Incremental tool call arguments
	ProviderEventToolCallArgsDone                           // Tool call arguments complete
	ProviderEventReasoningDelta                             // Incremental reasoning content
	ProviderEventRefusalDelta                               // Incremental refusal content
	ProviderEventTurnDone                                   // Turn finished
	ProviderEventError                                      // Stream error
)

// ProviderEvent is a single streaming event from the backend.
type ProviderEvent struct {
	// Type indicates what kind of event this is.
	Type ProviderEventType

	// Delta contains incremental text or argument data.
	Delta string

	// Text is the full accumulated text, populated on ProviderEventTextDone.
	Text string

	// ToolCallIndex identifies which tool call this event relates to.
	ToolCallIndex int

	// ToolCallID is the backend's identifier for the tool call.
	ToolCallID string

	// FunctionName is the function name (populated on start and done events).
	FunctionName string

	// Arguments is the complete argument JSON, populated on
	// ProviderEventToolCallArgsDone.
	Arguments string

	// FinishReason is populated on ProviderEventTurnDone.
	FinishReason FinishReason

	// Usage is populated on ProviderEventTurnDone when the backend reports it.
	Usage *api.Usage

	// Err is populated if the stream encountered an error.
	Err error
}

// ModelInfo holds information about a model served by the provider.
type ModelInfo struct {
	ID      string `json:"id"`
	Object  string `json:"object,omitempty"`
	OwnedBy string `json:"owned_by,omitempty"`
}
