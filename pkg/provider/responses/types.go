// Package responses implements a Provider adapter for backends that speak
// the Responses API natively (/v1/responses). Requests are forwarded in the
// Responses wire format and the backend's SSE events are mapped onto the
// neutral provider event stream.
package responses

import "encoding/json"

// --- Request types ---

// responsesRequest is the wire format for POST /v1/responses.
type responsesRequest struct {
	Model             string          `json:"model"`
	Input             json.RawMessage `json:"input"`
	Tools             []responsesTool `json:"tools,omitempty"`
	ToolChoice        any             `json:"tool_choice,omitempty"`
	Store             bool            `json:"store"`
	Stream            bool            `json:"stream,omitempty"`
	Temperature       *float64        `json:"temperature,omitempty"`
	TopP              *float64        `json:"top_p,omitempty"`
	MaxOutputTokens   *int            `json:"max_output_tokens,omitempty"`
	ParallelToolCalls *bool           `json:"parallel_tool_calls,omitempty"`
	User              string          `json:"user,omitempty"`

	// Text carries the output format constraint (text.format on the wire).
	Text *responsesTextConfig `json:"text,omitempty"`
}

// responsesTextConfig carries the text output format constraint.
type responsesTextConfig struct {
	Format json.RawMessage `json:"format,omitempty"`
}

// responsesTool is a tool definition in the Responses API format. Function
// fields are flattened onto the tool object rather than nested.
type responsesTool struct {
	Type        string          `json:"type"`
	Name        string          `json:"name,omitempty"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
	Strict      *bool           `json:"strict,omitempty"`
}

// --- Response types ---

// responsesResponse is the response object carried by terminal SSE events
// (response.completed, response.incomplete, response.failed).
type responsesResponse struct {
	ID                string          `json:"id"`
	Object            string          `json:"object"`
	CreatedAt         int64           `json:"created_at"`
	Status            string          `json:"status"`
	Model             string          `json:"model"`
	Output            []responsesItem `json:"output"`
	Usage             *responsesUsage `json:"usage,omitempty"`
	Error             *responsesError `json:"error,omitempty"`
	IncompleteDetails *struct {
		Reason string `json:"reason"`
	} `json:"incomplete_details,omitempty"`
}

// responsesItem represents an output item (message, function_call, reasoning).
type responsesItem struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	Status    string          `json:"status,omitempty"`
	Role      string          `json:"role,omitempty"`
	Content   json.RawMessage `json:"content,omitempty"`
	CallID    string          `json:"call_id,omitempty"`
	Name      string          `json:"name,omitempty"`
	Arguments string          `json:"arguments,omitempty"`
}

// responsesUsage holds token usage from the backend.
type responsesUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

// responsesError is the error format in Responses API responses.
type responsesError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// --- SSE event types ---

// Event type strings emitted by the streaming Responses API.
const (
	eventResponseCreated    = "response.created"
	eventResponseInProgress = "response.in_progress"
	eventResponseCompleted  = "response.completed"
	eventResponseIncomplete = "response.incomplete"
	eventResponseFailed     = "response.failed"
	eventOutputItemAdded    = "response.output_item.added"
	eventOutputItemDone     = "response.output_item.done"
	eventContentPartAdded   = "response.content_part.added"
	eventContentPartDone    = "response.content_part.done"
	eventTextDelta          = "response.output_text.delta"
	eventTextDone           = "response.output_text.done"
	eventFuncCallArgsDelta  = "response.function_call_arguments.delta"
	eventFuncCallArgsDone   = "response.function_call_arguments.done"
	eventReasoningDelta     = "response.reasoning_text.delta"
	eventReasoningDone      = "response.reasoning_text.done"
	eventRefusalDelta       = "response.refusal.delta"
)

// outputItemData is the payload for response.output_item.added/done events.
type outputItemData struct {
	OutputIndex int           `json:"output_index"`
	Item        responsesItem `json:"item"`
}

// textDeltaData is the payload for delta-carrying events (output_text,
// reasoning_text, refusal).
type textDeltaData struct {
	Delta       string `json:"delta"`
	OutputIndex int    `json:"output_index"`
}

// textDoneData is the payload for response.output_text.done events.
type textDoneData struct {
	Text        string `json:"text"`
	OutputIndex int    `json:"output_index"`
}

// funcCallArgsDeltaData is the payload for function_call_arguments.delta events.
type funcCallArgsDeltaData struct {
	Delta       string `json:"delta"`
	ItemID      string `json:"item_id,omitempty"`
	OutputIndex int    `json:"output_index"`
}

// funcCallArgsDoneData is the payload for function_call_arguments.done events.
type funcCallArgsDoneData struct {
	Arguments   string `json:"arguments"`
	ItemID      string `json:"item_id,omitempty"`
	OutputIndex int    `json:"output_index"`
}

// terminalEventData wraps the full response object carried by terminal events.
type terminalEventData struct {
	Response responsesResponse `json:"response"`
}
