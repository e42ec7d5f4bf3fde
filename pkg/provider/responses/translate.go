package responses

import (
	"encoding/json"
	"fmt"

	"github.com/dirigent-dev/dirigent/pkg/api"
	"github.com/dirigent-dev/dirigent/pkg/provider"
)

// translateRequest converts a ProviderRequest to the Responses API wire
// format. Always sets store=false: the gateway owns conversation state and
// replays it on every turn, so backend-side storage would only duplicate it.
func translateRequest(req *provider.ProviderRequest) (*responsesRequest, error) {
	input, err := translateMessages(req.Messages)
	if err != nil {
		return nil, fmt.Errorf("translate messages: %w", err)
	}

	rr := &responsesRequest{
		Model:             req.Model,
		Input:             input,
		Store:             false,
		Stream:            req.Stream,
		Temperature:       req.Temperature,
		TopP:              req.TopP,
		MaxOutputTokens:   req.MaxTokens,
		ParallelToolCalls: req.ParallelToolCalls,
		User:              req.User,
	}

	// The Responses API flattens function fields onto the tool object.
	for _, pt := range req.Tools {
		rr.Tools = append(rr.Tools, responsesTool{
			Type:        pt.Type,
			Name:        pt.Function.Name,
			Description: pt.Function.Description,
			Parameters:  pt.Function.Parameters,
			Strict:      pt.Function.Strict,
		})
	}

	if req.ToolChoice != nil {
		if req.ToolChoice.String != "" {
			rr.ToolChoice = req.ToolChoice.String
		} else if req.ToolChoice.Function != nil {
			rr.ToolChoice = req.ToolChoice.Function
		}
	}

	// ResponseFormat arrives as the request's text config. The wire format
	// wants {"text":{"format":{...}}}, so marshal only the inner format.
	if tc, ok := req.ResponseFormat.(*api.TextConfig); ok && tc != nil && tc.Format != nil {
		formatJSON, err := json.Marshal(tc.Format)
		if err != nil {
			return nil, fmt.Errorf("marshal text format: %w", err)
		}
		rr.Text = &responsesTextConfig{Format: formatJSON}
	}

	return rr, nil
}

// translateMessages converts the chat-shaped message buffer into the
// Responses API input item array. Assistant tool calls become function_call
// items and tool results become function_call_output items.
func translateMessages(msgs []provider.ProviderMessage) (json.RawMessage, error) {
	type inputItem struct {
		Type      string `json:"type"`
		Role      string `json:"role,omitempty"`
		Content   any    `json:"content,omitempty"`
		CallID    string `json:"call_id,omitempty"`
		Name      string `json:"name,omitempty"`
		Arguments string `json:"arguments,omitempty"`
		Output    string `json:"output,omitempty"`
		ID        string `json:"id,omitempty"`
		Status    string `json:"status,omitempty"`
	}

	var items []inputItem
	for _, msg := range msgs {
		switch msg.Role {
		case "system", "user":
			items = append(items, inputItem{
				Type:    "message",
				Role:    msg.Role,
				Content: msg.Content,
			})

		case "assistant":
			for _, tc := range msg.ToolCalls {
				items = append(items, inputItem{
					Type:      "function_call",
					ID:        tc.ID,
					CallID:    tc.ID,
					Name:      tc.Function.Name,
					Arguments: tc.Function.Arguments,
					Status:    "completed",
				})
			}
			if s, ok := msg.Content.(string); ok && s != "" {
				items = append(items, inputItem{
					Type:    "message",
					Role:    "assistant",
					Content: s,
					Status:  "completed",
				})
			}

		case "tool":
			items = append(items, inputItem{
				Type:   "function_call_output",
				CallID: msg.ToolCallID,
				Output: fmt.Sprintf("%v", msg.Content),
			})
		}
	}

	return json.Marshal(items)
}
