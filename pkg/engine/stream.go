package engine

import (
	"strings"

	"github.com/dirigent-dev/dirigent/pkg/api"
	"github.com/dirigent-dev/dirigent/pkg/provider"
)

// callKind classifies who executes a tool call the model requested.
type callKind int

const (
	callFunction callKind = iota // client-executed, returned as output
	callMCP                      // executed against an MCP server
	callBuiltin                  // executed by a registered provider
)

// toolCallState tracks one tool call across its streaming lifetime.
type toolCallState struct {
	kind        callKind
	item        api.Item
	outputIndex int
	callID      string
	name        string
	args        strings.Builder
	binding     *mcpBinding
	builtinType string
}

// streamState assembles one inference iteration's provider events into
// ordered response events. The orchestrator owns the sequence counter;
// streamState owns item identity and content-part bookkeeping within
// the iteration.
type streamState struct {
	o *orchestrator

	item      *api.Item
	itemIndex int
	parts     []api.OutputContentPart
	openPart  int
	closed    bool

	calls     []*toolCallState
	callByIdx map[int]*toolCallState
}

func newStreamState(o *orchestrator) *streamState {
	return &streamState{
		o:         o,
		openPart:  -1,
		callByIdx: make(map[int]*toolCallState),
	}
}

// handle translates a single provider event. Lifecycle events for the
// response itself (created, in_progress, terminal) are the orchestrator's
// job, not handled here.
func (s *streamState) handle(ev provider.ProviderEvent) {
	switch ev.Type {
	case provider.ProviderEventMessageStart:
		// Message items are opened lazily with the first content delta
		// so a tool-call-only turn never emits an empty message.

	case provider.ProviderEventTextDelta:
		s.contentDelta(api.ContentTypeOutputText, ev.Delta)

	case provider.ProviderEventReasoningDelta:
		s.contentDelta(api.ContentTypeReasoningText, ev.Delta)

	case provider.ProviderEventRefusalDelta:
		s.contentDelta(api.ContentTypeRefusal, ev.Delta)

	case provider.ProviderEventTextDone:
		s.closeMessage()

	case provider.ProviderEventToolCallStart:
		s.startToolCall(ev)

	case provider.ProviderEventToolCallArgsDelta:
		s.toolCallArgsDelta(ev)

	case provider.ProviderEventToolCallArgsDone:
		s.toolCallArgsDone(ev)
	}
}

// contentDelta routes a content delta into the open message item,
// opening the item and the matching content part as needed.
func (s *streamState) contentDelta(partType, delta string) {
	if delta == "" {
		return
	}
	s.ensureMessage()
	s.ensurePart(partType)

	part := &s.parts[s.openPart]
	ev := api.StreamEvent{
		Delta:        delta,
		ItemID:       s.item.ID,
		OutputIndex:  s.itemIndex,
		ContentIndex: s.openPart,
	}
	switch partType {
	case api.ContentTypeOutputText:
		part.Text += delta
		ev.Type = api.EventOutputTextDelta
	case api.ContentTypeReasoningText:
		part.Text += delta
		ev.Type = api.EventReasoningTextDelta
	case api.ContentTypeRefusal:
		part.Refusal += delta
		ev.Type = api.EventRefusalDelta
	}
	s.o.emit(ev)
}

func (s *streamState) ensureMessage() {
	if s.item != nil {
		return
	}
	s.itemIndex = s.o.nextOutputIndex()
	s.item = &api.Item{
		ID:      api.NewItemID(),
		Type:    api.ItemTypeMessage,
		Status:  api.ItemStatusInProgress,
		Message: &api.MessageData{Role: api.RoleAssistant},
	}
	s.o.emit(api.StreamEvent{
		Type:        api.EventOutputItemAdded,
		Item:        s.item,
		OutputIndex: s.itemIndex,
	})
}

func (s *streamState) ensurePart(partType string) {
	if s.openPart >= 0 && s.parts[s.openPart].Type == partType {
		return
	}
	s.closePart()

	s.parts = append(s.parts, api.OutputContentPart{Type: partType})
	s.openPart = len(s.parts) - 1
	s.o.emit(api.StreamEvent{
		Type:         api.EventContentPartAdded,
		Part:         &api.OutputContentPart{Type: partType},
		ItemID:       s.item.ID,
		OutputIndex:  s.itemIndex,
		ContentIndex: s.openPart,
	})
}

func (s *streamState) closePart() {
	if s.openPart < 0 {
		return
	}
	part := s.parts[s.openPart]

	done := api.StreamEvent{
		ItemID:       s.item.ID,
		OutputIndex:  s.itemIndex,
		ContentIndex: s.openPart,
	}
	switch part.Type {
	case api.ContentTypeOutputText:
		done.Type = api.EventOutputTextDone
		done.Text = part.Text
	case api.ContentTypeReasoningText:
		done.Type = api.EventReasoningTextDone
		done.Text = part.Text
	case api.ContentTypeRefusal:
		done.Type = api.EventRefusalDone
		done.Refusal = part.Refusal
	}
	s.o.emit(done)

	s.o.emit(api.StreamEvent{
		Type:         api.EventContentPartDone,
		Part:         &part,
		ItemID:       s.item.ID,
		OutputIndex:  s.itemIndex,
		ContentIndex: s.openPart,
	})
	s.openPart = -1
}

// closeMessage finalizes the open message item, emitting part-done and
// item-done events. Safe to call when no message is open.
func (s *streamState) closeMessage() {
	if s.item == nil || s.closed {
		return
	}
	s.closePart()
	s.closed = true

	s.item.Status = api.ItemStatusCompleted
	s.item.Message.Output = s.parts
	s.o.emit(api.StreamEvent{
		Type:        api.EventOutputItemDone,
		Item:        s.item,
		OutputIndex: s.itemIndex,
	})
}

// startToolCall opens the output item for a tool call, classified by who
// will execute it.
func (s *streamState) startToolCall(ev provider.ProviderEvent) {
	tc := &toolCallState{
		name:        ev.FunctionName,
		callID:      ev.ToolCallID,
		outputIndex: s.o.nextOutputIndex(),
	}

	tcx := s.o.cc.tools
	if binding, ok := tcx.mcpByTool[ev.FunctionName]; ok {
		tc.kind = callMCP
		tc.binding = binding
		tc.item = api.Item{
			ID:     api.NewItemID(),
			Type:   api.ItemTypeMCPCall,
			Status: api.ItemStatusInProgress,
			MCPCall: &api.MCPCallData{
				Name:        ev.FunctionName,
				ServerLabel: binding.serverLabel,
			},
		}
	} else if builtinType, ok := tcx.builtinByTool[ev.FunctionName]; ok {
		tc.kind = callBuiltin
		tc.builtinType = builtinType
		tc.item = builtinCallItem(builtinType)
	} else {
		tc.kind = callFunction
		tc.item = api.Item{
			ID:     api.NewItemID(),
			Type:   api.ItemTypeFunctionCall,
			Status: api.ItemStatusInProgress,
			FunctionCall: &api.FunctionCallData{
				Name:   ev.FunctionName,
				CallID: ev.ToolCallID,
			},
		}
	}
	if tc.callID == "" {
		tc.callID = tc.item.ID
	}

	s.calls = append(s.calls, tc)
	s.callByIdx[ev.ToolCallIndex] = tc

	s.o.emit(api.StreamEvent{
		Type:        api.EventOutputItemAdded,
		Item:        &tc.item,
		OutputIndex: tc.outputIndex,
	})
}

func (s *streamState) toolCallArgsDelta(ev provider.ProviderEvent) {
	tc, ok := s.callByIdx[ev.ToolCallIndex]
	if !ok || ev.Delta == "" {
		return
	}
	tc.args.WriteString(ev.Delta)

	switch tc.kind {
	case callFunction:
		s.o.emit(api.StreamEvent{
			Type:        api.EventFunctionCallArgsDelta,
			Delta:       ev.Delta,
			ItemID:      tc.item.ID,
			OutputIndex: tc.outputIndex,
		})
	case callMCP:
		s.o.emit(api.StreamEvent{
			Type:        api.EventMCPCallArgsDelta,
			Delta:       ev.Delta,
			ItemID:      tc.item.ID,
			OutputIndex: tc.outputIndex,
		})
	}
	// Builtin call arguments are internal; no argument events on the wire.
}

func (s *streamState) toolCallArgsDone(ev provider.ProviderEvent) {
	tc, ok := s.callByIdx[ev.ToolCallIndex]
	if !ok {
		return
	}
	args := ev.Arguments
	if args == "" {
		args = tc.args.String()
	} else {
		tc.args.Reset()
		tc.args.WriteString(args)
	}

	switch tc.kind {
	case callFunction:
		tc.item.FunctionCall.Arguments = args
		s.o.emit(api.StreamEvent{
			Type:        api.EventFunctionCallArgsDone,
			Arguments:   args,
			ItemID:      tc.item.ID,
			OutputIndex: tc.outputIndex,
		})
		// Client-executed calls are complete once their arguments are:
		// execution happens on the caller's side of the API.
		tc.item.Status = api.ItemStatusCompleted
		s.o.emit(api.StreamEvent{
			Type:        api.EventOutputItemDone,
			Item:        &tc.item,
			OutputIndex: tc.outputIndex,
		})

	case callMCP:
		tc.item.MCPCall.Arguments = args
		s.o.emit(api.StreamEvent{
			Type:        api.EventMCPCallArgsDone,
			Arguments:   args,
			ItemID:      tc.item.ID,
			OutputIndex: tc.outputIndex,
		})

	case callBuiltin:
		// Item stays in_progress; dispatch finishes it.
	}
}

// finish closes any open message and returns the turn's results.
func (s *streamState) finish(finishReason provider.FinishReason, usage *api.Usage) *turnResult {
	s.closeMessage()
	return &turnResult{
		message: s.item,
		calls:   s.calls,
		usage:   usage,
		finish:  finishReason,
	}
}

// turnResult is one completed inference iteration.
type turnResult struct {
	message   *api.Item
	calls     []*toolCallState
	usage     *api.Usage
	finish    provider.FinishReason
	cancelled bool
}

// text returns the turn's assistant text for the message buffer.
func (t *turnResult) text() string {
	if t.message == nil || t.message.Message == nil {
		return ""
	}
	var b strings.Builder
	for _, part := range t.message.Message.Output {
		if part.Type == api.ContentTypeOutputText {
			b.WriteString(part.Text)
		}
	}
	return b.String()
}

// providerToolCalls renders the turn's calls in the provider's
// assistant-message shape.
func (t *turnResult) providerToolCalls() []provider.ProviderToolCall {
	if len(t.calls) == 0 {
		return nil
	}
	calls := make([]provider.ProviderToolCall, 0, len(t.calls))
	for _, tc := range t.calls {
		calls = append(calls, provider.ProviderToolCall{
			ID:   tc.callID,
			Type: "function",
			Function: provider.ProviderFunctionCall{
				Name:      tc.name,
				Arguments: tc.args.String(),
			},
		})
	}
	return calls
}

// singleProviderCall renders this call alone in the provider's
// assistant-message shape, used when replaying approved calls.
func (tc *toolCallState) singleProviderCall() []provider.ProviderToolCall {
	return []provider.ProviderToolCall{{
		ID:   tc.callID,
		Type: "function",
		Function: provider.ProviderFunctionCall{
			Name:      tc.name,
			Arguments: tc.args.String(),
		},
	}}
}

func builtinCallItem(builtinType string) api.Item {
	item := api.Item{
		ID:     api.NewItemID(),
		Status: api.ItemStatusInProgress,
	}
	switch builtinType {
	case api.ToolTypeFileSearch:
		item.Type = api.ItemTypeFileSearchCall
		item.FileSearchCall = &api.FileSearchCallData{}
	case api.ToolTypeWebSearch:
		item.Type = api.ItemTypeWebSearchCall
		item.WebSearchCall = &api.WebSearchCallData{}
	}
	return item
}
