package openaicompat

import (
	"github.com/dirigent-dev/dirigent/pkg/api"
	"github.com/dirigent-dev/dirigent/pkg/provider"
)

// TranslateToChat renders a ProviderRequest as a Chat Completions
// request body.
func TranslateToChat(req *provider.ProviderRequest) ChatCompletionRequest {
	cr := ChatCompletionRequest{
		Model:             req.Model,
		Temperature:       req.Temperature,
		TopP:              req.TopP,
		MaxTokens:         req.MaxTokens,
		ParallelToolCalls: req.ParallelToolCalls,
		ResponseFormat:    req.ResponseFormat,
		User:              req.User,
		N:                 1,
		Stream:            req.Stream,
		Messages:          chatMessages(req.Messages),
		Tools:             chatTools(req.Tools),
		ToolChoice:        chatToolChoice(req.ToolChoice),
	}

	// Streams need usage reporting switched on explicitly.
	if req.Stream {
		cr.StreamOptions = &ChatStreamOptions{IncludeUsage: true}
	}
	return cr
}

func chatMessages(messages []provider.ProviderMessage) []ChatMessage {
	out := make([]ChatMessage, 0, len(messages))
	for _, pm := range messages {
		cm := ChatMessage{
			Role:       pm.Role,
			Content:    pm.Content,
			ToolCallID: pm.ToolCallID,
			Name:       pm.Name,
		}
		for _, tc := range pm.ToolCalls {
			cm.ToolCalls = append(cm.ToolCalls, ChatToolCall{
				ID:   tc.ID,
				Type: tc.Type,
				Function: ChatFunctionCall{
					Name:      tc.Function.Name,
					Arguments: tc.Function.Arguments,
				},
			})
		}
		out = append(out, cm)
	}
	return out
}

func chatTools(tools []provider.ProviderTool) []ChatTool {
	if len(tools) == 0 {
		return nil
	}
	out := make([]ChatTool, 0, len(tools))
	for _, pt := range tools {
		out = append(out, ChatTool{
			Type: pt.Type,
			Function: ChatFunctionDef{
				Name:        pt.Function.Name,
				Description: pt.Function.Description,
				Parameters:  pt.Function.Parameters,
				Strict:      pt.Function.Strict,
			},
		})
	}
	return out
}

// chatToolChoice flattens the provider's tool choice into the wire
// value, which is either a mode string or a function selector object.
func chatToolChoice(choice *api.ToolChoice) any {
	switch {
	case choice == nil:
		return nil
	case choice.String != "":
		return choice.String
	case choice.Function != nil:
		return choice.Function
	}
	return nil
}
