package api

import "fmt"

// ValidationConfig holds configurable limits for request validation.
type ValidationConfig struct {
	MaxInputItems  int
	MaxContentSize int
	MaxTools       int
}

// DefaultValidationConfig returns a ValidationConfig with sensible defaults.
func DefaultValidationConfig() ValidationConfig {
	return ValidationConfig{
		MaxInputItems:  1000,
		MaxContentSize: 10 * 1024 * 1024, // 10MB
		MaxTools:       128,
	}
}

// ValidateRequest checks a CreateResponseRequest for validity. It returns an
// *APIError describing the first validation failure, or nil if the request is
// valid. All failures here surface to the caller before any inference call.
func ValidateRequest(req *CreateResponseRequest, cfg ValidationConfig) *APIError {
	if req.Model == "" {
		return NewInvalidRequestError("model", "model is required")
	}

	if req.Input.IsZero() {
		return NewInvalidRequestError("input", "input is required")
	}

	if cfg.MaxInputItems > 0 && len(req.Input.Items) > cfg.MaxInputItems {
		return NewInvalidRequestError("input",
			fmt.Sprintf("input exceeds maximum of %d items", cfg.MaxInputItems))
	}

	// Continuation mechanisms are mutually exclusive.
	if req.PreviousResponseID != "" && req.Conversation != "" {
		return NewInvalidRequestError("previous_response_id",
			"previous_response_id and conversation cannot both be set")
	}

	if req.PreviousResponseID != "" && !ValidateResponseID(req.PreviousResponseID) {
		return NewInvalidRequestError("previous_response_id",
			fmt.Sprintf("invalid response ID format %q", req.PreviousResponseID))
	}

	if req.Conversation != "" && !HasConversationPrefix(req.Conversation) {
		return NewInvalidRequestError("conversation",
			fmt.Sprintf("invalid conversation ID %q: expected format 'conv_<id>'", req.Conversation))
	}

	if cfg.MaxTools > 0 && len(req.Tools) > cfg.MaxTools {
		return NewInvalidRequestError("tools",
			fmt.Sprintf("tools exceeds maximum of %d", cfg.MaxTools))
	}

	for i, tool := range req.Tools {
		if err := validateTool(i, tool); err != nil {
			return err
		}
	}

	if req.MaxInferIters != nil && *req.MaxInferIters < 1 {
		return NewInvalidRequestError("max_infer_iters", "max_infer_iters must be at least 1")
	}

	if req.MaxOutputTokens != nil && *req.MaxOutputTokens <= 0 {
		return NewInvalidRequestError("max_output_tokens", "max_output_tokens must be positive")
	}

	if req.Temperature != nil {
		if *req.Temperature < 0.0 || *req.Temperature > 2.0 {
			return NewInvalidRequestError("temperature", "temperature must be between 0.0 and 2.0")
		}
	}

	if req.TopP != nil {
		if *req.TopP < 0.0 || *req.TopP > 1.0 {
			return NewInvalidRequestError("top_p", "top_p must be between 0.0 and 1.0")
		}
	}

	if req.Truncation != "" && req.Truncation != "auto" && req.Truncation != "disabled" {
		return NewInvalidRequestError("truncation", "truncation must be 'auto' or 'disabled'")
	}

	for i, g := range req.Guardrails {
		if g.ID() == "" {
			return NewInvalidRequestError("guardrails",
				fmt.Sprintf("guardrails[%d] has no check identifier", i))
		}
	}

	// Validate tool_choice references an existing tool when forcing a specific function.
	if req.ToolChoice != nil && req.ToolChoice.Function != nil {
		name := req.ToolChoice.Function.Name
		found := false
		for _, tool := range req.Tools {
			if tool.Name == name {
				found = true
				break
			}
		}
		if !found {
			return NewInvalidRequestError("tool_choice",
				fmt.Sprintf("tool_choice references unknown tool %q", name))
		}
	}

	return nil
}

func validateTool(i int, tool ToolDefinition) *APIError {
	switch tool.Type {
	case ToolTypeFunction:
		if tool.Name == "" {
			return NewInvalidRequestError("tools",
				fmt.Sprintf("tools[%d]: function tools require a name", i))
		}
	case ToolTypeMCP:
		if tool.ServerLabel == "" {
			return NewInvalidRequestError("tools",
				fmt.Sprintf("tools[%d]: mcp tools require a server_label", i))
		}
		if tool.ServerURL == "" {
			return NewInvalidRequestError("tools",
				fmt.Sprintf("tools[%d]: mcp tools require a server_url", i))
		}
	case ToolTypeFileSearch, ToolTypeWebSearch:
		// No required fields beyond type.
	case "":
		return NewInvalidRequestError("tools",
			fmt.Sprintf("tools[%d]: tool type is required", i))
	default:
		return NewInvalidRequestError("tools",
			fmt.Sprintf("tools[%d]: unknown tool type %q", i, tool.Type))
	}
	return nil
}

// ValidateItem checks an Item for structural validity.
func ValidateItem(item *Item) *APIError {
	if item.ID != "" && !ValidateItemID(item.ID) {
		return NewInvalidRequestError("id", "invalid item ID format")
	}

	if item.Type == "" {
		return NewInvalidRequestError("type", "item type is required")
	}

	if !isKnownItemType(item.Type) {
		return NewInvalidRequestError("type",
			fmt.Sprintf("invalid item type %q", item.Type))
	}

	// Exactly one type-specific field must be populated, and it must match
	// the declared type.
	populated := 0
	var matches bool
	check := func(set bool, want ItemType) {
		if set {
			populated++
			if item.Type == want {
				matches = true
			}
		}
	}
	check(item.Message != nil, ItemTypeMessage)
	check(item.FunctionCall != nil, ItemTypeFunctionCall)
	check(item.FunctionCallOutput != nil, ItemTypeFunctionCallOutput)
	check(item.FileSearchCall != nil, ItemTypeFileSearchCall)
	check(item.WebSearchCall != nil, ItemTypeWebSearchCall)
	check(item.MCPCall != nil, ItemTypeMCPCall)
	check(item.MCPListTools != nil, ItemTypeMCPListTools)
	check(item.MCPApprovalRequest != nil, ItemTypeMCPApprovalRequest)
	check(item.MCPApprovalResponse != nil, ItemTypeMCPApprovalResponse)

	if populated != 1 {
		return NewInvalidRequestError("type",
			"exactly one type-specific field must be populated")
	}
	if !matches {
		return NewInvalidRequestError("type",
			fmt.Sprintf("populated field does not match item type %q", item.Type))
	}

	return nil
}

func isKnownItemType(t ItemType) bool {
	switch t {
	case ItemTypeMessage, ItemTypeFunctionCall, ItemTypeFunctionCallOutput,
		ItemTypeFileSearchCall, ItemTypeWebSearchCall, ItemTypeMCPCall,
		ItemTypeMCPListTools, ItemTypeMCPApprovalRequest, ItemTypeMCPApprovalResponse:
		return true
	}
	return false
}

// IsStateless returns true if the request is configured for stateless mode
// (store explicitly set to false).
func IsStateless(req *CreateResponseRequest) bool {
	return req.Store != nil && !*req.Store
}

// ValidateStatelessConstraints checks stateless-specific constraints.
// This should be called after ValidateRequest for requests with store=false.
func ValidateStatelessConstraints(req *CreateResponseRequest) *APIError {
	if IsStateless(req) && req.PreviousResponseID != "" {
		return NewInvalidRequestError("previous_response_id",
			"previous_response_id cannot be used with store=false")
	}
	return nil
}

// ResolveStore returns the effective store value, defaulting to true when nil.
func ResolveStore(req *CreateResponseRequest) bool {
	if req.Store != nil {
		return *req.Store
	}
	return true
}
