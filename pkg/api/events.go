package api

// StreamEventType identifies the type of a streaming event.
type StreamEventType string

// Response lifecycle events. Exactly one of the three terminal events
// (completed, incomplete, failed) is emitted per response, always last.
const (
	EventResponseCreated    StreamEventType = "response.created"
	EventResponseInProgress StreamEventType = "response.in_progress"
	EventResponseCompleted  StreamEventType = "response.completed"
	EventResponseIncomplete StreamEventType = "response.incomplete"
	EventResponseFailed     StreamEventType = "response.failed"
)

// Item and content part structure events. Every "done" event is preceded by
// a matching "added" event carrying the same identity.
const (
	EventOutputItemAdded  StreamEventType = "response.output_item.added"
	EventOutputItemDone   StreamEventType = "response.output_item.done"
	EventContentPartAdded StreamEventType = "response.content_part.added"
	EventContentPartDone  StreamEventType = "response.content_part.done"
)

// Delta events convey incremental content in arrival order.
const (
	EventOutputTextDelta       StreamEventType = "response.output_text.delta"
	EventOutputTextDone        StreamEventType = "response.output_text.done"
	EventRefusalDelta          StreamEventType = "response.refusal.delta"
	EventRefusalDone           StreamEventType = "response.refusal.done"
	EventReasoningTextDelta    StreamEventType = "response.reasoning_text.delta"
	EventReasoningTextDone     StreamEventType = "response.reasoning_text.done"
	EventFunctionCallArgsDelta StreamEventType = "response.function_call_arguments.delta"
	EventFunctionCallArgsDone  StreamEventType = "response.function_call_arguments.done"
	EventMCPCallArgsDelta      StreamEventType = "response.mcp_call_arguments.delta"
	EventMCPCallArgsDone       StreamEventType = "response.mcp_call_arguments.done"
)

// Tool call lifecycle events, emitted around dispatch of a completed turn's
// tool calls.
const (
	EventFileSearchCallInProgress StreamEventType = "response.file_search_call.in_progress"
	EventFileSearchCallSearching  StreamEventType = "response.file_search_call.searching"
	EventFileSearchCallCompleted  StreamEventType = "response.file_search_call.completed"
	EventWebSearchCallInProgress  StreamEventType = "response.web_search_call.in_progress"
	EventWebSearchCallSearching   StreamEventType = "response.web_search_call.searching"
	EventWebSearchCallCompleted   StreamEventType = "response.web_search_call.completed"
	EventMCPCallInProgress        StreamEventType = "response.mcp_call.in_progress"
	EventMCPCallCompleted         StreamEventType = "response.mcp_call.completed"
	EventMCPCallFailed            StreamEventType = "response.mcp_call.failed"
	EventMCPListToolsInProgress   StreamEventType = "response.mcp_list_tools.in_progress"
	EventMCPListToolsCompleted    StreamEventType = "response.mcp_list_tools.completed"
	EventMCPListToolsFailed       StreamEventType = "response.mcp_list_tools.failed"
)

// EventError reports a stream-level error.
const EventError StreamEventType = "error"

// IsTerminal reports whether the event type ends a response stream.
func (t StreamEventType) IsTerminal() bool {
	switch t {
	case EventResponseCompleted, EventResponseIncomplete, EventResponseFailed:
		return true
	}
	return false
}

// StreamEvent represents a single server-sent event in a streaming response.
// SequenceNumber is response-global, strictly monotonic, and starts at 1.
type StreamEvent struct {
	Type           StreamEventType    `json:"type"`
	SequenceNumber int                `json:"sequence_number"`
	Response       *Response          `json:"response,omitempty"`
	Item           *Item              `json:"item,omitempty"`
	Part           *OutputContentPart `json:"part,omitempty"`
	Delta          string             `json:"delta,omitempty"`
	Text           string             `json:"text,omitempty"`
	Arguments      string             `json:"arguments,omitempty"`
	Refusal        string             `json:"refusal,omitempty"`
	ItemID         string             `json:"item_id,omitempty"`
	OutputIndex    int                `json:"output_index,omitempty"`
	ContentIndex   int                `json:"content_index,omitempty"`
	Code           string             `json:"code,omitempty"`
	Message        string             `json:"message,omitempty"`
	Param          string             `json:"param,omitempty"`
}
