package responses

import (
	"strings"
	"testing"

	"github.com/dirigent-dev/dirigent/pkg/provider"
)

func collectEvents(t *testing.T, sse string) []provider.ProviderEvent {
	t.Helper()
	ch := make(chan provider.ProviderEvent, 64)
	go parseSSEStream(strings.NewReader(sse), ch)
	var events []provider.ProviderEvent
	for ev := range ch {
		events = append(events, ev)
	}
	return events
}

func TestParseSSEStream_TextTurn(t *testing.T) {
	sse := `event: response.created
data: {"response":{"id":"resp_1","status":"in_progress"}}

event: response.output_item.added
data: {"output_index":0,"item":{"id":"msg_1","type":"message","role":"assistant"}}

event: response.output_text.delta
data: {"delta":"Hello ","output_index":0}

event: response.output_text.delta
data: {"delta":"world","output_index":0}

event: response.output_text.done
data: {"text":"Hello world","output_index":0}

event: response.completed
data: {"response":{"id":"resp_1","status":"completed","usage":{"input_tokens":10,"output_tokens":2,"total_tokens":12}}}

data: [DONE]
`
	events := collectEvents(t, sse)

	want := []provider.ProviderEventType{
		provider.ProviderEventMessageStart,
		provider.ProviderEventTextDelta,
		provider.ProviderEventTextDelta,
		provider.ProviderEventTextDone,
		provider.ProviderEventTurnDone,
	}
	if len(events) != len(want) {
		t.Fatalf("got %d events, want %d: %+v", len(events), len(want), events)
	}
	for i, wt := range want {
		if events[i].Type != wt {
			t.Errorf("event[%d].Type = %v, want %v", i, events[i].Type, wt)
		}
	}

	if events[3].Text != "Hello world" {
		t.Errorf("text done = %q, want %q", events[3].Text, "Hello world")
	}
	done := events[4]
	if done.FinishReason != provider.FinishReasonStop {
		t.Errorf("finish reason = %q, want stop", done.FinishReason)
	}
	if done.Usage == nil || done.Usage.TotalTokens != 12 {
		t.Errorf("usage = %+v, want total 12", done.Usage)
	}
}

func TestParseSSEStream_ToolCall(t *testing.T) {
	sse := `event: response.output_item.added
data: {"output_index":0,"item":{"id":"fc_1","type":"function_call","call_id":"call_w","name":"get_weather"}}

event: response.function_call_arguments.delta
data: {"delta":"{\"city\"","output_index":0}

event: response.function_call_arguments.delta
data: {"delta":":\"Berlin\"}","output_index":0}

event: response.function_call_arguments.done
data: {"arguments":"{\"city\":\"Berlin\"}","output_index":0}

event: response.completed
data: {"response":{"id":"resp_2","status":"completed","usage":{"input_tokens":8,"output_tokens":6,"total_tokens":14}}}

data: [DONE]
`
	events := collectEvents(t, sse)
	if len(events) != 5 {
		t.Fatalf("got %d events, want 5: %+v", len(events), events)
	}

	start := events[0]
	if start.Type != provider.ProviderEventToolCallStart {
		t.Fatalf("event[0].Type = %v, want ToolCallStart", start.Type)
	}
	if start.ToolCallID != "call_w" || start.FunctionName != "get_weather" {
		t.Errorf("start = %+v, want call_w/get_weather", start)
	}
	if start.ToolCallIndex != 0 {
		t.Errorf("tool call index = %d, want 0", start.ToolCallIndex)
	}

	if events[1].Type != provider.ProviderEventToolCallArgsDelta || events[1].Delta != `{"city"` {
		t.Errorf("event[1] = %+v, want args delta", events[1])
	}
	if events[1].ToolCallID != "call_w" || events[1].FunctionName != "get_weather" {
		t.Errorf("args delta should carry identity learned at start, got %+v", events[1])
	}

	done := events[3]
	if done.Type != provider.ProviderEventToolCallArgsDone {
		t.Fatalf("event[3].Type = %v, want ToolCallArgsDone", done.Type)
	}
	if done.Arguments != `{"city":"Berlin"}` {
		t.Errorf("arguments = %q", done.Arguments)
	}

	turn := events[4]
	if turn.Type != provider.ProviderEventTurnDone {
		t.Fatalf("event[4].Type = %v, want TurnDone", turn.Type)
	}
	if turn.FinishReason != provider.FinishReasonToolCalls {
		t.Errorf("finish reason = %q, want tool_calls", turn.FinishReason)
	}
}

func TestParseSSEStream_ParallelToolCallsIndexed(t *testing.T) {
	// Two function calls at backend output indexes 1 and 2 (index 0 being a
	// reasoning item) must surface as tool call indexes 0 and 1.
	sse := `event: response.output_item.added
data: {"output_index":0,"item":{"id":"rs_1","type":"reasoning"}}

event: response.output_item.added
data: {"output_index":1,"item":{"id":"fc_1","type":"function_call","call_id":"call_a","name":"alpha"}}

event: response.output_item.added
data: {"output_index":2,"item":{"id":"fc_2","type":"function_call","call_id":"call_b","name":"beta"}}

event: response.function_call_arguments.done
data: {"arguments":"{}","output_index":2}

event: response.function_call_arguments.done
data: {"arguments":"{}","output_index":1}

event: response.completed
data: {"response":{"id":"resp_3","status":"completed"}}

data: [DONE]
`
	events := collectEvents(t, sse)
	if len(events) != 5 {
		t.Fatalf("got %d events, want 5: %+v", len(events), events)
	}
	if events[0].ToolCallIndex != 0 || events[0].ToolCallID != "call_a" {
		t.Errorf("first start = %+v, want index 0 call_a", events[0])
	}
	if events[1].ToolCallIndex != 1 || events[1].ToolCallID != "call_b" {
		t.Errorf("second start = %+v, want index 1 call_b", events[1])
	}
	// Done events resolve through the output index map.
	if events[2].ToolCallIndex != 1 || events[2].ToolCallID != "call_b" {
		t.Errorf("done for output 2 = %+v, want index 1 call_b", events[2])
	}
	if events[3].ToolCallIndex != 0 || events[3].ToolCallID != "call_a" {
		t.Errorf("done for output 1 = %+v, want index 0 call_a", events[3])
	}
}

func TestParseSSEStream_ReasoningAndRefusal(t *testing.T) {
	sse := `event: response.reasoning_text.delta
data: {"delta":"thinking...","output_index":0}

event: response.reasoning_text.done
data: {"text":"thinking...","output_index":0}

event: response.refusal.delta
data: {"delta":"I can't help with that.","output_index":0}

event: response.completed
data: {"response":{"id":"resp_4","status":"completed"}}

data: [DONE]
`
	events := collectEvents(t, sse)
	if len(events) != 3 {
		t.Fatalf("got %d events, want 3: %+v", len(events), events)
	}
	if events[0].Type != provider.ProviderEventReasoningDelta || events[0].Delta != "thinking..." {
		t.Errorf("event[0] = %+v, want reasoning delta", events[0])
	}
	if events[1].Type != provider.ProviderEventRefusalDelta {
		t.Errorf("event[1].Type = %v, want RefusalDelta", events[1].Type)
	}
	if events[2].Type != provider.ProviderEventTurnDone {
		t.Errorf("event[2].Type = %v, want TurnDone", events[2].Type)
	}
}

func TestParseSSEStream_Incomplete(t *testing.T) {
	sse := `event: response.output_text.delta
data: {"delta":"partial","output_index":0}

event: response.incomplete
data: {"response":{"id":"resp_5","status":"incomplete","incomplete_details":{"reason":"max_output_tokens"},"usage":{"input_tokens":5,"output_tokens":99,"total_tokens":104}}}

data: [DONE]
`
	events := collectEvents(t, sse)
	last := events[len(events)-1]
	if last.Type != provider.ProviderEventTurnDone {
		t.Fatalf("last event = %v, want TurnDone", last.Type)
	}
	if last.FinishReason != provider.FinishReasonLength {
		t.Errorf("finish reason = %q, want length", last.FinishReason)
	}
	if last.Usage == nil || last.Usage.OutputTokens != 99 {
		t.Errorf("usage = %+v, want output 99", last.Usage)
	}
}

func TestParseSSEStream_Failed(t *testing.T) {
	sse := `event: response.failed
data: {"response":{"id":"resp_6","status":"failed","error":{"type":"server_error","message":"backend exploded"}}}

data: [DONE]
`
	events := collectEvents(t, sse)
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1: %+v", len(events), events)
	}
	if events[0].Type != provider.ProviderEventError {
		t.Fatalf("event type = %v, want Error", events[0].Type)
	}
	if events[0].Err == nil || !strings.Contains(events[0].Err.Error(), "backend exploded") {
		t.Errorf("err = %v, want backend message", events[0].Err)
	}
}

func TestParseSSEStream_TruncatedStream(t *testing.T) {
	// Stream that ends mid-turn without a terminal event must produce an
	// error, not look like a clean finish.
	sse := `event: response.output_text.delta
data: {"delta":"Hel","output_index":0}

`
	events := collectEvents(t, sse)
	last := events[len(events)-1]
	if last.Type != provider.ProviderEventError {
		t.Fatalf("last event = %v, want Error", last.Type)
	}
	if last.Err == nil || !strings.Contains(last.Err.Error(), "terminal") {
		t.Errorf("err = %v, want terminal-event error", last.Err)
	}
}
