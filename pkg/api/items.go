package api

import "encoding/json"

// MessageRole represents the role of a message sender.
type MessageRole string

const (
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
	RoleSystem    MessageRole = "system"
	RoleDeveloper MessageRole = "developer"
)

// ItemType represents the type of an item in a conversation. The set is
// closed: output items are message, function_call, file_search_call,
// web_search_call, mcp_call, mcp_list_tools, and mcp_approval_request;
// function_call_output and mcp_approval_response appear only in input.
type ItemType string

const (
	ItemTypeMessage             ItemType = "message"
	ItemTypeFunctionCall        ItemType = "function_call"
	ItemTypeFunctionCallOutput  ItemType = "function_call_output"
	ItemTypeFileSearchCall      ItemType = "file_search_call"
	ItemTypeWebSearchCall       ItemType = "web_search_call"
	ItemTypeMCPCall             ItemType = "mcp_call"
	ItemTypeMCPListTools        ItemType = "mcp_list_tools"
	ItemTypeMCPApprovalRequest  ItemType = "mcp_approval_request"
	ItemTypeMCPApprovalResponse ItemType = "mcp_approval_response"
)

// ItemStatus represents the processing status of an item.
// Searching applies only to file_search_call and web_search_call items.
type ItemStatus string

const (
	ItemStatusInProgress ItemStatus = "in_progress"
	ItemStatusSearching  ItemStatus = "searching"
	ItemStatusIncomplete ItemStatus = "incomplete"
	ItemStatusCompleted  ItemStatus = "completed"
	ItemStatusFailed     ItemStatus = "failed"
)

// MessageData holds the data specific to a message item. User, system, and
// developer messages carry Content; assistant messages carry Output.
type MessageData struct {
	Role    MessageRole         `json:"role"`
	Content []ContentPart       `json:"content,omitempty"`
	Output  []OutputContentPart `json:"output,omitempty"`
}

// FunctionCallData holds the data specific to a function call item.
type FunctionCallData struct {
	Name      string `json:"name"`
	CallID    string `json:"call_id"`
	Arguments string `json:"arguments"`
}

// FunctionCallOutputData holds the data specific to a function call output item.
type FunctionCallOutputData struct {
	CallID string `json:"call_id"`
	Output string `json:"output"`
}

// FileSearchCallData holds the data specific to a file_search_call item.
type FileSearchCallData struct {
	Queries []string           `json:"queries"`
	Results []FileSearchResult `json:"results,omitempty"`
}

// FileSearchResult is a single document match returned by file search.
type FileSearchResult struct {
	FileID     string         `json:"file_id"`
	Filename   string         `json:"filename"`
	Score      float64        `json:"score"`
	Text       string         `json:"text"`
	Attributes map[string]any `json:"attributes,omitempty"`
}

// WebSearchCallData holds the data specific to a web_search_call item.
type WebSearchCallData struct {
	Action *WebSearchAction `json:"action,omitempty"`
}

// WebSearchAction describes what a web search call did.
type WebSearchAction struct {
	Type  string `json:"type"`
	Query string `json:"query,omitempty"`
	URL   string `json:"url,omitempty"`
}

// MCPCallData holds the data specific to an mcp_call item. Output and Error
// are nullable on the wire; exactly one is set once the call finishes.
type MCPCallData struct {
	Name        string  `json:"name"`
	ServerLabel string  `json:"server_label"`
	Arguments   string  `json:"arguments"`
	Output      *string `json:"output"`
	Error       *string `json:"error"`
}

// MCPListToolsData holds the data specific to an mcp_list_tools item.
type MCPListToolsData struct {
	ServerLabel string        `json:"server_label"`
	Tools       []MCPToolInfo `json:"tools"`
}

// MCPToolInfo describes a single tool discovered on an MCP server.
type MCPToolInfo struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"input_schema,omitempty"`
}

// MCPApprovalRequestData holds the data specific to an mcp_approval_request
// item, emitted when an MCP tool call requires caller approval.
type MCPApprovalRequestData struct {
	Name        string `json:"name"`
	ServerLabel string `json:"server_label"`
	Arguments   string `json:"arguments"`
}

// MCPApprovalResponseData holds the data specific to an mcp_approval_response
// input item answering a previous approval request.
type MCPApprovalResponseData struct {
	ApprovalRequestID string `json:"approval_request_id"`
	Approve           bool   `json:"approve"`
	Reason            string `json:"reason,omitempty"`
}

// Item represents a single item in a conversation. Exactly one of the
// type-specific pointer fields is populated, selected by Type.
type Item struct {
	ID     string     `json:"id"`
	Type   ItemType   `json:"type"`
	Status ItemStatus `json:"status,omitempty"`

	Message             *MessageData             `json:"message,omitempty"`
	FunctionCall        *FunctionCallData        `json:"function_call,omitempty"`
	FunctionCallOutput  *FunctionCallOutputData  `json:"function_call_output,omitempty"`
	FileSearchCall      *FileSearchCallData      `json:"file_search_call,omitempty"`
	WebSearchCall       *WebSearchCallData       `json:"web_search_call,omitempty"`
	MCPCall             *MCPCallData             `json:"mcp_call,omitempty"`
	MCPListTools        *MCPListToolsData        `json:"mcp_list_tools,omitempty"`
	MCPApprovalRequest  *MCPApprovalRequestData  `json:"mcp_approval_request,omitempty"`
	MCPApprovalResponse *MCPApprovalResponseData `json:"mcp_approval_response,omitempty"`
}

// itemWireBase contains fields common to all item types.
type itemWireBase struct {
	ID     string     `json:"id,omitempty"`
	Type   ItemType   `json:"type"`
	Status ItemStatus `json:"status,omitempty"`
}

func (item Item) wireBase() itemWireBase {
	return itemWireBase{ID: item.ID, Type: item.Type, Status: item.Status}
}

// MarshalJSON serializes an Item to the Responses API wire format.
// The wire format is flat: type-specific fields are at the top level,
// not nested in a wrapper object (message, function_call, etc.).
func (item Item) MarshalJSON() ([]byte, error) {
	switch item.Type {
	case ItemTypeMessage:
		return item.marshalMessage()

	case ItemTypeFunctionCall:
		var d FunctionCallData
		if item.FunctionCall != nil {
			d = *item.FunctionCall
		}
		return json.Marshal(struct {
			itemWireBase
			CallID    string `json:"call_id"`
			Name      string `json:"name"`
			Arguments string `json:"arguments"`
		}{item.wireBase(), d.CallID, d.Name, d.Arguments})

	case ItemTypeFunctionCallOutput:
		var d FunctionCallOutputData
		if item.FunctionCallOutput != nil {
			d = *item.FunctionCallOutput
		}
		return json.Marshal(struct {
			itemWireBase
			CallID string `json:"call_id"`
			Output string `json:"output"`
		}{item.wireBase(), d.CallID, d.Output})

	case ItemTypeFileSearchCall:
		var d FileSearchCallData
		if item.FileSearchCall != nil {
			d = *item.FileSearchCall
		}
		if d.Queries == nil {
			d.Queries = []string{}
		}
		return json.Marshal(struct {
			itemWireBase
			Queries []string           `json:"queries"`
			Results []FileSearchResult `json:"results,omitempty"`
		}{item.wireBase(), d.Queries, d.Results})

	case ItemTypeWebSearchCall:
		var d WebSearchCallData
		if item.WebSearchCall != nil {
			d = *item.WebSearchCall
		}
		return json.Marshal(struct {
			itemWireBase
			Action *WebSearchAction `json:"action,omitempty"`
		}{item.wireBase(), d.Action})

	case ItemTypeMCPCall:
		var d MCPCallData
		if item.MCPCall != nil {
			d = *item.MCPCall
		}
		return json.Marshal(struct {
			itemWireBase
			Name        string  `json:"name"`
			ServerLabel string  `json:"server_label"`
			Arguments   string  `json:"arguments"`
			Output      *string `json:"output"`
			Error       *string `json:"error"`
		}{item.wireBase(), d.Name, d.ServerLabel, d.Arguments, d.Output, d.Error})

	case ItemTypeMCPListTools:
		var d MCPListToolsData
		if item.MCPListTools != nil {
			d = *item.MCPListTools
		}
		if d.Tools == nil {
			d.Tools = []MCPToolInfo{}
		}
		return json.Marshal(struct {
			itemWireBase
			ServerLabel string        `json:"server_label"`
			Tools       []MCPToolInfo `json:"tools"`
		}{item.wireBase(), d.ServerLabel, d.Tools})

	case ItemTypeMCPApprovalRequest:
		var d MCPApprovalRequestData
		if item.MCPApprovalRequest != nil {
			d = *item.MCPApprovalRequest
		}
		return json.Marshal(struct {
			itemWireBase
			Name        string `json:"name"`
			ServerLabel string `json:"server_label"`
			Arguments   string `json:"arguments"`
		}{item.wireBase(), d.Name, d.ServerLabel, d.Arguments})

	case ItemTypeMCPApprovalResponse:
		var d MCPApprovalResponseData
		if item.MCPApprovalResponse != nil {
			d = *item.MCPApprovalResponse
		}
		return json.Marshal(struct {
			itemWireBase
			ApprovalRequestID string `json:"approval_request_id"`
			Approve           bool   `json:"approve"`
			Reason            string `json:"reason,omitempty"`
		}{item.wireBase(), d.ApprovalRequestID, d.Approve, d.Reason})

	default:
		return json.Marshal(item.wireBase())
	}
}

// marshalMessage produces the flat message wire format:
// {type, id, status, role, content: [...]}
func (item Item) marshalMessage() ([]byte, error) {
	w := struct {
		itemWireBase
		Role    MessageRole `json:"role"`
		Content []any       `json:"content"`
	}{itemWireBase: item.wireBase()}

	if item.Message != nil {
		w.Role = item.Message.Role

		// Build content array from either Output (assistant) or Content (user).
		if len(item.Message.Output) > 0 {
			for _, part := range item.Message.Output {
				w.Content = append(w.Content, part)
			}
		} else {
			for _, part := range item.Message.Content {
				w.Content = append(w.Content, part)
			}
		}
	}

	if w.Content == nil {
		w.Content = []any{}
	}

	return json.Marshal(w)
}

// UnmarshalJSON deserializes an Item from either the flat wire format or the
// nested internal format, handling both for storage round-trip compatibility.
func (item *Item) UnmarshalJSON(data []byte) error {
	var base struct {
		ID     string     `json:"id"`
		Type   ItemType   `json:"type"`
		Status ItemStatus `json:"status"`

		// Flat wire format fields.
		Role              MessageRole        `json:"role"`
		Content           json.RawMessage    `json:"content"`
		CallID            string             `json:"call_id"`
		Name              string             `json:"name"`
		Arguments         string             `json:"arguments"`
		Output            json.RawMessage    `json:"output"`
		Error             *string            `json:"error"`
		Queries           []string           `json:"queries"`
		Results           []FileSearchResult `json:"results"`
		Action            *WebSearchAction   `json:"action"`
		ServerLabel       string             `json:"server_label"`
		Tools             []MCPToolInfo      `json:"tools"`
		ApprovalRequestID string             `json:"approval_request_id"`
		Approve           *bool              `json:"approve"`
		Reason            string             `json:"reason"`

		// Nested format fields (internal).
		Message             *MessageData             `json:"message"`
		FunctionCall        *FunctionCallData        `json:"function_call"`
		FunctionCallOutput  *FunctionCallOutputData  `json:"function_call_output"`
		FileSearchCall      *FileSearchCallData      `json:"file_search_call"`
		WebSearchCall       *WebSearchCallData       `json:"web_search_call"`
		MCPCall             *MCPCallData             `json:"mcp_call"`
		MCPListTools        *MCPListToolsData        `json:"mcp_list_tools"`
		MCPApprovalRequest  *MCPApprovalRequestData  `json:"mcp_approval_request"`
		MCPApprovalResponse *MCPApprovalResponseData `json:"mcp_approval_response"`
	}

	if err := json.Unmarshal(data, &base); err != nil {
		return err
	}

	item.ID = base.ID
	item.Type = base.Type
	item.Status = base.Status

	switch base.Type {
	case ItemTypeMessage:
		if base.Message != nil {
			item.Message = base.Message
			break
		}
		item.Message = &MessageData{Role: base.Role}
		if len(base.Content) == 0 || string(base.Content) == "null" {
			break
		}
		// Bare-string content is shorthand for a single text part.
		var text string
		if err := json.Unmarshal(base.Content, &text); err == nil {
			if base.Role == RoleAssistant {
				item.Message.Output = []OutputContentPart{NewOutputTextPart(text)}
			} else {
				item.Message.Content = []ContentPart{{Type: ContentTypeInputText, Text: text}}
			}
			break
		}
		if base.Role == RoleAssistant {
			var parts []OutputContentPart
			if err := json.Unmarshal(base.Content, &parts); err == nil && len(parts) > 0 {
				item.Message.Output = parts
			}
		} else {
			var parts []ContentPart
			if err := json.Unmarshal(base.Content, &parts); err == nil && len(parts) > 0 {
				item.Message.Content = parts
			}
		}

	case ItemTypeFunctionCall:
		if base.FunctionCall != nil {
			item.FunctionCall = base.FunctionCall
		} else {
			item.FunctionCall = &FunctionCallData{
				Name:      base.Name,
				CallID:    base.CallID,
				Arguments: base.Arguments,
			}
		}

	case ItemTypeFunctionCallOutput:
		if base.FunctionCallOutput != nil {
			item.FunctionCallOutput = base.FunctionCallOutput
		} else {
			outputStr := ""
			if len(base.Output) > 0 && string(base.Output) != "null" {
				// Try as string first; fall back to raw JSON text.
				if err := json.Unmarshal(base.Output, &outputStr); err != nil {
					outputStr = string(base.Output)
				}
			}
			item.FunctionCallOutput = &FunctionCallOutputData{
				CallID: base.CallID,
				Output: outputStr,
			}
		}

	case ItemTypeFileSearchCall:
		if base.FileSearchCall != nil {
			item.FileSearchCall = base.FileSearchCall
		} else {
			item.FileSearchCall = &FileSearchCallData{
				Queries: base.Queries,
				Results: base.Results,
			}
		}

	case ItemTypeWebSearchCall:
		if base.WebSearchCall != nil {
			item.WebSearchCall = base.WebSearchCall
		} else {
			item.WebSearchCall = &WebSearchCallData{Action: base.Action}
		}

	case ItemTypeMCPCall:
		if base.MCPCall != nil {
			item.MCPCall = base.MCPCall
		} else {
			d := &MCPCallData{
				Name:        base.Name,
				ServerLabel: base.ServerLabel,
				Arguments:   base.Arguments,
				Error:       base.Error,
			}
			if len(base.Output) > 0 && string(base.Output) != "null" {
				var out string
				if err := json.Unmarshal(base.Output, &out); err != nil {
					out = string(base.Output)
				}
				d.Output = &out
			}
			item.MCPCall = d
		}

	case ItemTypeMCPListTools:
		if base.MCPListTools != nil {
			item.MCPListTools = base.MCPListTools
		} else {
			item.MCPListTools = &MCPListToolsData{
				ServerLabel: base.ServerLabel,
				Tools:       base.Tools,
			}
		}

	case ItemTypeMCPApprovalRequest:
		if base.MCPApprovalRequest != nil {
			item.MCPApprovalRequest = base.MCPApprovalRequest
		} else {
			item.MCPApprovalRequest = &MCPApprovalRequestData{
				Name:        base.Name,
				ServerLabel: base.ServerLabel,
				Arguments:   base.Arguments,
			}
		}

	case ItemTypeMCPApprovalResponse:
		if base.MCPApprovalResponse != nil {
			item.MCPApprovalResponse = base.MCPApprovalResponse
		} else {
			d := &MCPApprovalResponseData{
				ApprovalRequestID: base.ApprovalRequestID,
				Reason:            base.Reason,
			}
			if base.Approve != nil {
				d.Approve = *base.Approve
			}
			item.MCPApprovalResponse = d
		}
	}

	return nil
}

// NewUserMessage creates a message item for free-text user input.
func NewUserMessage(text string) Item {
	return Item{
		Type:   ItemTypeMessage,
		Status: ItemStatusCompleted,
		Message: &MessageData{
			Role:    RoleUser,
			Content: []ContentPart{{Type: ContentTypeInputText, Text: text}},
		},
	}
}

// OutputText concatenates the text of all output_text parts across the
// response's message items.
func OutputText(output []Item) string {
	var text string
	for _, item := range output {
		if item.Type != ItemTypeMessage || item.Message == nil {
			continue
		}
		for _, part := range item.Message.Output {
			if part.Type == ContentTypeOutputText {
				text += part.Text
			}
		}
	}
	return text
}
