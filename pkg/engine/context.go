package engine

import (
	"github.com/dirigent-dev/dirigent/pkg/api"
	"github.com/dirigent-dev/dirigent/pkg/provider"
)

// chatContext is the per-response snapshot the orchestrator works from:
// the rolling message buffer, the resolved tool surface, and the sampling
// parameters forwarded to the backend. The orchestrator owns the buffer
// exclusively; nothing else appends to it while a response is in flight.
type chatContext struct {
	model        string
	instructions string
	messages     []provider.ProviderMessage
	tools        *toolContext

	temperature *float64
	topP        *float64
	maxTokens   *int
	toolChoice  *api.ToolChoice
	parallel    *bool
	format      any
	user        string
}

// newChatContext assembles the message buffer for a request: instructions
// as the system message, prior raw messages replayed verbatim, then the
// new input items converted to provider form.
func newChatContext(req *api.CreateResponseRequest, prior []provider.ProviderMessage, newItems []api.Item, tc *toolContext) *chatContext {
	cc := &chatContext{
		model:        req.Model,
		instructions: req.Instructions,
		tools:        tc,
		temperature:  req.Temperature,
		topP:         req.TopP,
		maxTokens:    req.MaxOutputTokens,
		toolChoice:   req.ToolChoice,
		parallel:     req.ParallelToolCalls,
		user:         req.User,
	}

	// Forward text.format as response_format when it's not the default.
	if req.Text != nil && req.Text.Format != nil && req.Text.Format.Type != "text" {
		cc.format = req.Text
	}

	if req.Instructions != "" {
		cc.messages = append(cc.messages, provider.ProviderMessage{
			Role:    "system",
			Content: req.Instructions,
		})
		// New instructions supersede any system message carried in the
		// prior buffer.
		prior = stripSystemMessages(prior)
	}
	cc.messages = append(cc.messages, prior...)
	cc.messages = append(cc.messages, itemsToMessages(newItems)...)

	return cc
}

// providerRequest builds the backend request for the next iteration.
func (cc *chatContext) providerRequest() *provider.ProviderRequest {
	return &provider.ProviderRequest{
		Model:             cc.model,
		Messages:          cc.messages,
		Tools:             cc.tools.providerTools,
		ToolChoice:        cc.toolChoice,
		ResponseFormat:    cc.format,
		Temperature:       cc.temperature,
		TopP:              cc.topP,
		MaxTokens:         cc.maxTokens,
		ParallelToolCalls: cc.parallel,
		Stream:            true,
		User:              cc.user,
	}
}

// appendAssistantTurn records a completed model turn in the buffer.
func (cc *chatContext) appendAssistantTurn(text string, calls []provider.ProviderToolCall) {
	msg := provider.ProviderMessage{Role: "assistant", ToolCalls: calls}
	if text != "" {
		msg.Content = text
	}
	cc.messages = append(cc.messages, msg)
}

// appendToolResult records a tool execution result in the buffer.
func (cc *chatContext) appendToolResult(callID, output string) {
	cc.messages = append(cc.messages, provider.ProviderMessage{
		Role:       "tool",
		Content:    output,
		ToolCallID: callID,
	})
}

func stripSystemMessages(msgs []provider.ProviderMessage) []provider.ProviderMessage {
	var out []provider.ProviderMessage
	for _, m := range msgs {
		if m.Role == "system" {
			continue
		}
		out = append(out, m)
	}
	return out
}

// messageTexts extracts the text content of the buffer for safety checks.
func messageTexts(msgs []provider.ProviderMessage) []string {
	var texts []string
	for _, m := range msgs {
		switch c := m.Content.(type) {
		case string:
			if c != "" {
				texts = append(texts, c)
			}
		case []map[string]any:
			for _, part := range c {
				if t, ok := part["text"].(string); ok && t != "" {
					texts = append(texts, t)
				}
			}
		}
	}
	return texts
}

// itemsToMessages converts request or stored items into provider messages.
func itemsToMessages(items []api.Item) []provider.ProviderMessage {
	var msgs []provider.ProviderMessage
	for _, item := range items {
		msgs = append(msgs, itemToMessages(item)...)
	}
	return msgs
}

// itemToMessages converts a single item into zero or more provider
// messages. MCP bookkeeping items (list_tools, approvals) carry no
// conversational content and are skipped.
func itemToMessages(item api.Item) []provider.ProviderMessage {
	switch item.Type {
	case api.ItemTypeMessage:
		return messageItemToMessages(item)

	case api.ItemTypeFunctionCall:
		if item.FunctionCall == nil {
			return nil
		}
		return []provider.ProviderMessage{{
			Role: "assistant",
			ToolCalls: []provider.ProviderToolCall{{
				ID:   item.FunctionCall.CallID,
				Type: "function",
				Function: provider.ProviderFunctionCall{
					Name:      item.FunctionCall.Name,
					Arguments: item.FunctionCall.Arguments,
				},
			}},
		}}

	case api.ItemTypeFunctionCallOutput:
		if item.FunctionCallOutput == nil {
			return nil
		}
		return []provider.ProviderMessage{{
			Role:       "tool",
			Content:    item.FunctionCallOutput.Output,
			ToolCallID: item.FunctionCallOutput.CallID,
		}}

	case api.ItemTypeMCPCall:
		// A finished MCP call replays as the tool-call/result pair the
		// backend originally saw.
		if item.MCPCall == nil {
			return nil
		}
		result := ""
		if item.MCPCall.Output != nil {
			result = *item.MCPCall.Output
		} else if item.MCPCall.Error != nil {
			result = *item.MCPCall.Error
		}
		return []provider.ProviderMessage{
			{
				Role: "assistant",
				ToolCalls: []provider.ProviderToolCall{{
					ID:   item.ID,
					Type: "function",
					Function: provider.ProviderFunctionCall{
						Name:      item.MCPCall.Name,
						Arguments: item.MCPCall.Arguments,
					},
				}},
			},
			{Role: "tool", Content: result, ToolCallID: item.ID},
		}

	default:
		return nil
	}
}

func messageItemToMessages(item api.Item) []provider.ProviderMessage {
	if item.Message == nil {
		return nil
	}

	if item.Message.Role == api.RoleAssistant {
		var text string
		for _, part := range item.Message.Output {
			switch part.Type {
			case api.ContentTypeOutputText:
				text += part.Text
			case api.ContentTypeRefusal:
				text += part.Refusal
			}
		}
		return []provider.ProviderMessage{{Role: "assistant", Content: text}}
	}

	role := string(item.Message.Role)
	if item.Message.Role == api.RoleDeveloper {
		role = "system"
	}
	return []provider.ProviderMessage{{
		Role:    role,
		Content: inputContent(item.Message.Content),
	}}
}

// inputContent builds provider message content from input parts. Text-only
// input collapses to a plain string; multimodal input becomes a content
// array in the Chat Completions shape.
func inputContent(parts []api.ContentPart) any {
	multimodal := false
	for _, p := range parts {
		if p.Type != api.ContentTypeInputText {
			multimodal = true
			break
		}
	}

	if !multimodal {
		var text string
		for _, p := range parts {
			text += p.Text
		}
		return text
	}

	var arr []map[string]any
	for _, p := range parts {
		switch p.Type {
		case api.ContentTypeInputText:
			arr = append(arr, map[string]any{"type": "text", "text": p.Text})
		case api.ContentTypeInputImage:
			if p.ImageURL == "" {
				continue
			}
			img := map[string]any{"url": p.ImageURL}
			if p.Detail != "" {
				img["detail"] = p.Detail
			}
			arr = append(arr, map[string]any{"type": "image_url", "image_url": img})
		}
	}
	return arr
}
