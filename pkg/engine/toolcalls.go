package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/dirigent-dev/dirigent/pkg/api"
	"github.com/dirigent-dev/dirigent/pkg/observability"
	"github.com/dirigent-dev/dirigent/pkg/tools"
)

// dispatchTools executes a turn's server-side tool calls. Calls run
// concurrently; completion events are emitted in the model's declaration
// order. MCP calls whose approval policy requires caller consent become
// mcp_approval_request items instead of executing; the returned flag
// tells the loop to finalize so the caller can answer.
func (o *orchestrator) dispatchTools(ctx context.Context, calls []*toolCallState) (pendingApproval bool) {
	var executable []*toolCallState
	for _, tc := range calls {
		if o.needsApproval(tc) {
			o.emitApprovalRequest(tc)
			pendingApproval = true
			continue
		}
		executable = append(executable, tc)
	}

	if len(executable) == 0 {
		return pendingApproval
	}

	// allowed_tools rejections become scoped error results without
	// touching an executor.
	toolCalls := make([]tools.ToolCall, len(executable))
	for i, tc := range executable {
		toolCalls[i] = tools.ToolCall{ID: tc.callID, Name: tc.name, Arguments: tc.args.String()}
	}
	filter := tools.FilterAllowedTools(toolCalls, o.cc.tools.allowed)
	rejected := make(map[string]*tools.ToolResult, len(filter.Rejected))
	for i := range filter.Rejected {
		rejected[filter.Rejected[i].CallID] = &filter.Rejected[i]
	}

	// Open lifecycle events in declaration order before anything runs.
	for _, tc := range executable {
		if rejected[tc.callID] != nil {
			continue
		}
		o.emitCallStarted(tc)
	}

	// Concurrent dispatch; results land in declaration-order slots.
	results := make([]*tools.ToolResult, len(executable))
	var wg sync.WaitGroup
	for i, tc := range executable {
		if res := rejected[tc.callID]; res != nil {
			results[i] = res
			continue
		}
		wg.Add(1)
		go func(i int, tc *toolCallState) {
			defer wg.Done()
			results[i] = o.executeCall(ctx, tc)
		}(i, tc)
	}
	wg.Wait()

	// Fold results back in declaration order.
	for i, tc := range executable {
		o.finishCall(tc, results[i])
	}
	return pendingApproval
}

// executeCall routes one call to its executor. Executor-level errors are
// scoped to the call's item, never the response.
func (o *orchestrator) executeCall(ctx context.Context, tc *toolCallState) *tools.ToolResult {
	ex := o.executorFor(tc)
	if ex == nil {
		return &tools.ToolResult{
			CallID:  tc.callID,
			Output:  fmt.Sprintf("no executor available for tool %q", tc.name),
			IsError: true,
		}
	}

	res, err := ex.Execute(ctx, tools.ToolCall{
		ID:        tc.callID,
		Name:      tc.name,
		Arguments: tc.args.String(),
	})
	if err != nil {
		slog.Error("tool execution failed",
			"tool", tc.name,
			"call_id", tc.callID,
			"error", err,
		)
		return &tools.ToolResult{
			CallID:  tc.callID,
			Output:  fmt.Sprintf("tool %q failed: execution error", tc.name),
			IsError: true,
		}
	}
	return res
}

func (o *orchestrator) executorFor(tc *toolCallState) tools.ToolExecutor {
	var want tools.ToolKind
	switch tc.kind {
	case callMCP:
		want = tools.ToolKindMCP
	case callBuiltin:
		want = tools.ToolKindBuiltin
	default:
		return nil
	}
	for _, ex := range o.executors {
		if ex.Kind() == want && ex.CanExecute(tc.name) {
			return ex
		}
	}
	return nil
}

// emitCallStarted emits the kind-specific lifecycle opening for a call.
func (o *orchestrator) emitCallStarted(tc *toolCallState) {
	base := api.StreamEvent{ItemID: tc.item.ID, OutputIndex: tc.outputIndex}
	switch {
	case tc.kind == callMCP:
		base.Type = api.EventMCPCallInProgress
		o.emit(base)
	case tc.builtinType == api.ToolTypeFileSearch:
		base.Type = api.EventFileSearchCallInProgress
		o.emit(base)
		base.Type = api.EventFileSearchCallSearching
		o.emit(base)
	case tc.builtinType == api.ToolTypeWebSearch:
		base.Type = api.EventWebSearchCallInProgress
		o.emit(base)
		base.Type = api.EventWebSearchCallSearching
		o.emit(base)
	}
}

// finishCall folds an execution result into the call's item, emits the
// closing lifecycle events and item-done, and records the tool message.
func (o *orchestrator) finishCall(tc *toolCallState, res *tools.ToolResult) {
	base := api.StreamEvent{ItemID: tc.item.ID, OutputIndex: tc.outputIndex}

	switch tc.kind {
	case callMCP:
		if res.IsError {
			msg := res.Output
			tc.item.MCPCall.Error = &msg
			tc.item.Status = api.ItemStatusFailed
			base.Type = api.EventMCPCallFailed
		} else {
			out := res.Output
			tc.item.MCPCall.Output = &out
			tc.item.Status = api.ItemStatusCompleted
			base.Type = api.EventMCPCallCompleted
		}
		o.emit(base)

	case callBuiltin:
		if res.IsError {
			tc.item.Status = api.ItemStatusFailed
		} else {
			tc.item.Status = api.ItemStatusCompleted
		}
		switch tc.builtinType {
		case api.ToolTypeFileSearch:
			if details, ok := res.Details.(*api.FileSearchCallData); ok {
				tc.item.FileSearchCall = details
			}
			base.Type = api.EventFileSearchCallCompleted
		case api.ToolTypeWebSearch:
			if action, ok := res.Details.(*api.WebSearchAction); ok {
				tc.item.WebSearchCall.Action = action
			}
			base.Type = api.EventWebSearchCallCompleted
		}
		o.emit(base)
	}

	o.emit(api.StreamEvent{
		Type:        api.EventOutputItemDone,
		Item:        &tc.item,
		OutputIndex: tc.outputIndex,
	})
	o.resp.Output = append(o.resp.Output, tc.item)
	o.cc.appendToolResult(tc.callID, res.Output)

	outcome := "ok"
	if res.IsError {
		outcome = "error"
	}
	observability.ToolExecutionsTotal.WithLabelValues(tc.name, outcome).Inc()
}

// emitApprovalRequest replaces an approval-gated MCP call with an
// mcp_approval_request output item. The call does not execute and is not
// recorded in the message buffer; an approved follow-up turn replays it.
func (o *orchestrator) emitApprovalRequest(tc *toolCallState) {
	item := api.Item{
		ID:     api.NewItemID(),
		Type:   api.ItemTypeMCPApprovalRequest,
		Status: api.ItemStatusCompleted,
		MCPApprovalRequest: &api.MCPApprovalRequestData{
			Name:        tc.name,
			ServerLabel: tc.binding.serverLabel,
			Arguments:   tc.args.String(),
		},
	}
	idx := o.nextOutputIndex()
	o.emit(api.StreamEvent{Type: api.EventOutputItemAdded, Item: &item, OutputIndex: idx})
	o.emit(api.StreamEvent{Type: api.EventOutputItemDone, Item: &item, OutputIndex: idx})
	o.resp.Output = append(o.resp.Output, item)

	slog.Info("mcp call held for approval",
		"response_id", o.resp.ID,
		"tool", tc.name,
		"server_label", tc.binding.serverLabel,
	)
}

// resolveApprovals answers mcp_approval_response input items before the
// first inference call: approved calls execute now, denials produce
// failed mcp_call items. Either way the model sees the outcome as a
// replayed tool-call/result pair.
func (o *orchestrator) resolveApprovals(ctx context.Context) {
	decisions, unmatched := matchApprovals(o.chain.prevOutput, o.newItems)
	for _, id := range unmatched {
		slog.Warn("approval response references unknown request",
			"response_id", o.resp.ID,
			"approval_request_id", id,
		)
	}

	for _, d := range decisions {
		tc := &toolCallState{
			kind:        callMCP,
			name:        d.request.Name,
			outputIndex: o.nextOutputIndex(),
			binding:     o.cc.tools.mcpByTool[d.request.Name],
			item: api.Item{
				ID:     api.NewItemID(),
				Type:   api.ItemTypeMCPCall,
				Status: api.ItemStatusInProgress,
				MCPCall: &api.MCPCallData{
					Name:        d.request.Name,
					ServerLabel: d.request.ServerLabel,
					Arguments:   d.request.Arguments,
				},
			},
		}
		tc.args.WriteString(d.request.Arguments)
		tc.callID = tc.item.ID

		o.emit(api.StreamEvent{
			Type:        api.EventOutputItemAdded,
			Item:        &tc.item,
			OutputIndex: tc.outputIndex,
		})

		var res *tools.ToolResult
		if d.approved {
			o.emitCallStarted(tc)
			res = o.executeCall(ctx, tc)
		} else {
			reason := "the caller denied this tool call"
			if d.reason != "" {
				reason = "the caller denied this tool call: " + d.reason
			}
			res = &tools.ToolResult{CallID: tc.callID, Output: reason, IsError: true}
		}

		// Replay the call and its outcome for the model.
		o.cc.appendAssistantTurn("", tc.singleProviderCall())
		o.finishCall(tc, res)
	}
}

// emitListTools emits the mcp_list_tools items discovered while
// resolving this request's tool surface.
func (o *orchestrator) emitListTools() {
	for _, item := range o.cc.tools.listItems {
		idx := o.nextOutputIndex()

		opening := item
		opening.Status = api.ItemStatusInProgress
		o.emit(api.StreamEvent{Type: api.EventOutputItemAdded, Item: &opening, OutputIndex: idx})
		o.emit(api.StreamEvent{Type: api.EventMCPListToolsInProgress, ItemID: item.ID, OutputIndex: idx})

		if item.Status == api.ItemStatusFailed {
			o.emit(api.StreamEvent{Type: api.EventMCPListToolsFailed, ItemID: item.ID, OutputIndex: idx})
		} else {
			o.emit(api.StreamEvent{Type: api.EventMCPListToolsCompleted, ItemID: item.ID, OutputIndex: idx})
		}

		o.emit(api.StreamEvent{Type: api.EventOutputItemDone, Item: &item, OutputIndex: idx})
		o.resp.Output = append(o.resp.Output, item)
	}
}
