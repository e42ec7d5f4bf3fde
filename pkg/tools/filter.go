package tools

// FilterResult splits tool calls into those permitted by allowed_tools
// and error results for the rest.
type FilterResult struct {
	Allowed []ToolCall

	// Rejected holds one error result per disallowed call, ready to
	// feed back to the model.
	Rejected []ToolResult
}

// FilterAllowedTools partitions calls by the allowed list. A nil or
// empty list permits everything.
func FilterAllowedTools(calls []ToolCall, allowedTools []string) FilterResult {
	if len(allowedTools) == 0 {
		return FilterResult{Allowed: calls}
	}

	allowed := make(map[string]bool, len(allowedTools))
	for _, name := range allowedTools {
		allowed[name] = true
	}

	var result FilterResult
	for _, call := range calls {
		if !allowed[call.Name] {
			result.Rejected = append(result.Rejected, ToolResult{
				CallID:  call.ID,
				Output:  "tool " + call.Name + " is not in the allowed_tools list",
				IsError: true,
			})
			continue
		}
		result.Allowed = append(result.Allowed, call)
	}
	return result
}
