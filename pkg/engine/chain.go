package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/dirigent-dev/dirigent/pkg/api"
	"github.com/dirigent-dev/dirigent/pkg/provider"
	"github.com/dirigent-dev/dirigent/pkg/storage"
)

// chainState is the continuation context resolved before inference:
// prior items, prior raw messages, and MCP tool state recovered from
// earlier turns.
type chainState struct {
	// priorItems is previous.input ++ previous.output; the new request's
	// items are appended after it to form the persisted input list.
	priorItems []api.Item

	// messages is the raw provider buffer replayed verbatim. When the
	// previous record carried no raw messages, it is reconstructed from
	// priorItems instead.
	messages []provider.ProviderMessage

	// recoveredMCP maps server labels to tools recovered from
	// mcp_list_tools items in the chain.
	recoveredMCP map[string][]api.MCPToolInfo

	// prevOutput holds the previous response's output for matching
	// mcp_approval_response inputs to their requests.
	prevOutput []api.Item
}

// resolveChain loads the continuation context for a request. Exactly one
// of previous_response_id and conversation may be set (enforced during
// validation); with neither, the chain is empty.
func resolveChain(ctx context.Context, store storage.ResponseStore, convs storage.ConversationStore, req *api.CreateResponseRequest) (*chainState, error) {
	switch {
	case req.PreviousResponseID != "":
		return resolvePrevious(ctx, store, req.PreviousResponseID)
	case req.Conversation != "":
		return resolveConversation(ctx, convs, req.Conversation)
	default:
		return &chainState{recoveredMCP: map[string][]api.MCPToolInfo{}}, nil
	}
}

func resolvePrevious(ctx context.Context, store storage.ResponseStore, id string) (*chainState, error) {
	if store == nil {
		return nil, api.NewInvalidRequestError("previous_response_id",
			"previous_response_id requires a response store")
	}

	rec, err := store.GetStoredResponse(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, api.NewNotFoundError(fmt.Sprintf("response %q not found", id))
	}
	if err != nil {
		return nil, fmt.Errorf("loading previous response %s: %w", id, err)
	}

	cs := &chainState{
		prevOutput:   rec.Response.Output,
		recoveredMCP: map[string][]api.MCPToolInfo{},
	}
	cs.priorItems = append(cs.priorItems, rec.Input...)
	cs.priorItems = append(cs.priorItems, rec.Response.Output...)

	if len(rec.Messages) > 0 {
		cs.messages = rec.Messages
	} else {
		cs.messages = itemsToMessages(cs.priorItems)
	}

	recoverMCPTools(cs.recoveredMCP, cs.priorItems)
	return cs, nil
}

func resolveConversation(ctx context.Context, convs storage.ConversationStore, id string) (*chainState, error) {
	if convs == nil {
		return nil, api.NewInvalidRequestError("conversation",
			"conversation requires a conversation store")
	}

	if _, err := convs.GetConversation(ctx, id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, api.NewNotFoundError(fmt.Sprintf("conversation %q not found", id))
		}
		return nil, fmt.Errorf("loading conversation %s: %w", id, err)
	}

	cs := &chainState{recoveredMCP: map[string][]api.MCPToolInfo{}}

	// Page through the full item history in insertion order.
	cursor := ""
	for {
		page, err := convs.ListItems(ctx, id, storage.ListOptions{
			Order: "asc",
			Limit: 100,
			After: cursor,
		})
		if err != nil {
			return nil, fmt.Errorf("listing conversation items for %s: %w", id, err)
		}
		cs.priorItems = append(cs.priorItems, page.Data...)
		if !page.HasMore || page.LastID == "" {
			break
		}
		cursor = page.LastID
	}

	// Conversations store items only; the provider buffer is always
	// reconstructed.
	cs.messages = itemsToMessages(cs.priorItems)
	cs.prevOutput = cs.priorItems
	recoverMCPTools(cs.recoveredMCP, cs.priorItems)
	return cs, nil
}

// recoverMCPTools scans items for mcp_list_tools records and indexes
// their tools by server label, so chained turns reuse the discovered
// surface without re-emitting list items.
func recoverMCPTools(dst map[string][]api.MCPToolInfo, items []api.Item) {
	for _, item := range items {
		if item.Type != api.ItemTypeMCPListTools || item.MCPListTools == nil {
			continue
		}
		if item.Status == api.ItemStatusFailed {
			continue
		}
		dst[item.MCPListTools.ServerLabel] = item.MCPListTools.Tools
	}
}

// approvalDecision is an mcp_approval_response matched to the
// mcp_approval_request it answers.
type approvalDecision struct {
	request  *api.MCPApprovalRequestData
	approved bool
	reason   string
}

// matchApprovals pairs approval responses in the new input with approval
// requests from the previous turn's output. Responses referencing unknown
// request ids are dropped with a warning by the caller.
func matchApprovals(prevOutput, newItems []api.Item) ([]approvalDecision, []string) {
	requests := make(map[string]*api.MCPApprovalRequestData)
	for i := range prevOutput {
		item := &prevOutput[i]
		if item.Type == api.ItemTypeMCPApprovalRequest && item.MCPApprovalRequest != nil {
			requests[item.ID] = item.MCPApprovalRequest
		}
	}

	var decisions []approvalDecision
	var unmatched []string
	for _, item := range newItems {
		if item.Type != api.ItemTypeMCPApprovalResponse || item.MCPApprovalResponse == nil {
			continue
		}
		req, ok := requests[item.MCPApprovalResponse.ApprovalRequestID]
		if !ok {
			unmatched = append(unmatched, item.MCPApprovalResponse.ApprovalRequestID)
			continue
		}
		decisions = append(decisions, approvalDecision{
			request:  req,
			approved: item.MCPApprovalResponse.Approve,
			reason:   item.MCPApprovalResponse.Reason,
		})
	}
	return decisions, unmatched
}
