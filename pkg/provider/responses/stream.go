package responses

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/dirigent-dev/dirigent/pkg/api"
	"github.com/dirigent-dev/dirigent/pkg/debug"
	"github.com/dirigent-dev/dirigent/pkg/provider"
)

// streamState tracks per-turn state while mapping the backend's SSE events
// onto provider events. The Responses API addresses function calls by output
// index; the neutral event stream numbers tool calls from zero in the order
// they open, so the state keeps the index translation plus the name and id
// learned from output_item.added.
type streamState struct {
	messageStarted bool
	sawToolCall    bool
	terminalSeen   bool

	// callIndex maps backend output_index to the tool call's position.
	callIndex map[int]int
	callID    map[int]string
	callName  map[int]string
	nextCall  int
}

func newStreamState() *streamState {
	return &streamState{
		callIndex: make(map[int]int),
		callID:    make(map[int]string),
		callName:  make(map[int]string),
	}
}

// parseSSEStream reads Responses API SSE events from the reader and maps them
// onto ProviderEvents. The channel is closed when the stream ends. A stream
// that ends without a terminal event (completed/incomplete/failed) produces
// an error event so the engine never mistakes truncation for success.
func parseSSEStream(r io.Reader, ch chan<- provider.ProviderEvent) {
	defer close(ch)

	st := newStreamState()
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	var currentEvent string

	for scanner.Scan() {
		line := scanner.Text()

		// SSE framing: "event: <type>" then "data: <json>", blank line ends
		// the event.
		if strings.HasPrefix(line, "event: ") {
			currentEvent = strings.TrimPrefix(line, "event: ")
			continue
		}

		if strings.HasPrefix(line, "data: ") {
			data := strings.TrimPrefix(line, "data: ")
			if data == "[DONE]" {
				if !st.terminalSeen {
					ch <- provider.ProviderEvent{
						Type: provider.ProviderEventError,
						Err:  fmt.Errorf("stream ended without a terminal response event"),
					}
				}
				return
			}
			if currentEvent != "" {
				st.handleEvent(currentEvent, []byte(data), ch)
				currentEvent = ""
			}
			continue
		}
	}

	if err := scanner.Err(); err != nil {
		ch <- provider.ProviderEvent{
			Type: provider.ProviderEventError,
			Err:  fmt.Errorf("SSE stream read: %w", err),
		}
		return
	}
	if !st.terminalSeen {
		ch <- provider.ProviderEvent{
			Type: provider.ProviderEventError,
			Err:  fmt.Errorf("stream ended without a terminal response event"),
		}
	}
}

// handleEvent maps a single backend SSE event to zero or more provider events.
func (st *streamState) handleEvent(eventType string, data []byte, ch chan<- provider.ProviderEvent) {
	switch eventType {
	case eventOutputItemAdded:
		var d outputItemData
		if err := json.Unmarshal(data, &d); err != nil {
			debug.Log("providers", "bad output_item.added payload", "error", err)
			return
		}
		switch d.Item.Type {
		case "message":
			if !st.messageStarted {
				st.messageStarted = true
				ch <- provider.ProviderEvent{Type: provider.ProviderEventMessageStart}
			}
		case "function_call":
			st.sawToolCall = true
			idx := st.nextCall
			st.nextCall++
			st.callIndex[d.OutputIndex] = idx
			st.callID[d.OutputIndex] = d.Item.CallID
			st.callName[d.OutputIndex] = d.Item.Name
			ch <- provider.ProviderEvent{
				Type:          provider.ProviderEventToolCallStart,
				ToolCallIndex: idx,
				ToolCallID:    d.Item.CallID,
				FunctionName:  d.Item.Name,
			}
		}

	case eventTextDelta:
		var d textDeltaData
		if err := json.Unmarshal(data, &d); err != nil {
			debug.Log("providers", "bad output_text.delta payload", "error", err)
			return
		}
		ch <- provider.ProviderEvent{
			Type:  provider.ProviderEventTextDelta,
			Delta: d.Delta,
		}

	case eventTextDone:
		var d textDoneData
		if err := json.Unmarshal(data, &d); err != nil {
			debug.Log("providers", "bad output_text.done payload", "error", err)
			return
		}
		ch <- provider.ProviderEvent{
			Type: provider.ProviderEventTextDone,
			Text: d.Text,
		}

	case eventFuncCallArgsDelta:
		var d funcCallArgsDeltaData
		if err := json.Unmarshal(data, &d); err != nil {
			debug.Log("providers", "bad function_call_arguments.delta payload", "error", err)
			return
		}
		ch <- provider.ProviderEvent{
			Type:          provider.ProviderEventToolCallArgsDelta,
			Delta:         d.Delta,
			ToolCallIndex: st.callIndex[d.OutputIndex],
			ToolCallID:    st.callID[d.OutputIndex],
			FunctionName:  st.callName[d.OutputIndex],
		}

	case eventFuncCallArgsDone:
		var d funcCallArgsDoneData
		if err := json.Unmarshal(data, &d); err != nil {
			debug.Log("providers", "bad function_call_arguments.done payload", "error", err)
			return
		}
		ch <- provider.ProviderEvent{
			Type:          provider.ProviderEventToolCallArgsDone,
			Arguments:     d.Arguments,
			ToolCallIndex: st.callIndex[d.OutputIndex],
			ToolCallID:    st.callID[d.OutputIndex],
			FunctionName:  st.callName[d.OutputIndex],
		}

	case eventReasoningDelta:
		var d textDeltaData
		if err := json.Unmarshal(data, &d); err != nil {
			debug.Log("providers", "bad reasoning_text.delta payload", "error", err)
			return
		}
		ch <- provider.ProviderEvent{
			Type:  provider.ProviderEventReasoningDelta,
			Delta: d.Delta,
		}

	case eventRefusalDelta:
		var d textDeltaData
		if err := json.Unmarshal(data, &d); err != nil {
			debug.Log("providers", "bad refusal.delta payload", "error", err)
			return
		}
		ch <- provider.ProviderEvent{
			Type:  provider.ProviderEventRefusalDelta,
			Delta: d.Delta,
		}

	case eventResponseCompleted:
		st.terminalSeen = true
		ev := provider.ProviderEvent{
			Type:         provider.ProviderEventTurnDone,
			FinishReason: provider.FinishReasonStop,
		}
		if st.sawToolCall {
			ev.FinishReason = provider.FinishReasonToolCalls
		}
		var d terminalEventData
		if err := json.Unmarshal(data, &d); err == nil && d.Response.Usage != nil {
			ev.Usage = &api.Usage{
				InputTokens:  d.Response.Usage.InputTokens,
				OutputTokens: d.Response.Usage.OutputTokens,
				TotalTokens:  d.Response.Usage.TotalTokens,
			}
		}
		ch <- ev

	case eventResponseIncomplete:
		st.terminalSeen = true
		ev := provider.ProviderEvent{
			Type:         provider.ProviderEventTurnDone,
			FinishReason: provider.FinishReasonLength,
		}
		var d terminalEventData
		if err := json.Unmarshal(data, &d); err == nil {
			if d.Response.IncompleteDetails != nil && d.Response.IncompleteDetails.Reason == "content_filter" {
				ev.FinishReason = provider.FinishReasonContentFilter
			}
			if d.Response.Usage != nil {
				ev.Usage = &api.Usage{
					InputTokens:  d.Response.Usage.InputTokens,
					OutputTokens: d.Response.Usage.OutputTokens,
					TotalTokens:  d.Response.Usage.TotalTokens,
				}
			}
		}
		ch <- ev

	case eventResponseFailed:
		st.terminalSeen = true
		msg := "backend response failed"
		var d terminalEventData
		if err := json.Unmarshal(data, &d); err == nil && d.Response.Error != nil && d.Response.Error.Message != "" {
			msg = d.Response.Error.Message
		}
		ch <- provider.ProviderEvent{
			Type: provider.ProviderEventError,
			Err:  fmt.Errorf("%s", msg),
		}

	case eventResponseCreated, eventResponseInProgress, eventOutputItemDone,
		eventContentPartAdded, eventContentPartDone, eventReasoningDone:
		// Lifecycle events the engine synthesizes itself.

	default:
		debug.Log("providers", "unknown SSE event, skipping", "event", eventType)
	}
}
