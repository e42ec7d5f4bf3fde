package api

import (
	"encoding/json"
	"fmt"
)

// Tool types accepted in a request's tools array.
const (
	ToolTypeFunction   = "function"
	ToolTypeFileSearch = "file_search"
	ToolTypeWebSearch  = "web_search"
	ToolTypeMCP        = "mcp"
)

// ToolChoice represents a tool selection strategy. It can be a simple string
// value ("auto", "required", "none") or a structured function selection.
type ToolChoice struct {
	String   string              `json:"-"`
	Function *ToolChoiceFunction `json:"-"`
}

// ToolChoiceFunction specifies a particular function to call by name.
type ToolChoiceFunction struct {
	Type string `json:"type"`
	Name string `json:"name"`
}

var (
	// ToolChoiceAuto lets the model decide whether to use a tool.
	ToolChoiceAuto = ToolChoice{String: "auto"}
	// ToolChoiceRequired forces the model to use a tool.
	ToolChoiceRequired = ToolChoice{String: "required"}
	// ToolChoiceNone prevents the model from using any tool.
	ToolChoiceNone = ToolChoice{String: "none"}
)

// NewToolChoiceFunction creates a ToolChoice that selects a specific function by name.
func NewToolChoiceFunction(name string) ToolChoice {
	return ToolChoice{
		Function: &ToolChoiceFunction{
			Type: "function",
			Name: name,
		},
	}
}

// MarshalJSON serializes ToolChoice as either a JSON string or a JSON object.
func (tc ToolChoice) MarshalJSON() ([]byte, error) {
	if tc.String != "" {
		return json.Marshal(tc.String)
	}
	if tc.Function != nil {
		return json.Marshal(tc.Function)
	}
	return nil, fmt.Errorf("ToolChoice has neither string value nor function")
}

// UnmarshalJSON deserializes ToolChoice from either a JSON string or a JSON object.
func (tc *ToolChoice) UnmarshalJSON(data []byte) error {
	// Try string first.
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		tc.String = s
		tc.Function = nil
		return nil
	}

	// Try structured object.
	var f ToolChoiceFunction
	if err := json.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("tool_choice must be a string or object: %w", err)
	}
	tc.String = ""
	tc.Function = &f
	return nil
}

// ToolDefinition describes a tool available to the model. The Type field
// selects which of the remaining fields are meaningful: function tools use
// Name/Description/Parameters/Strict, file_search uses VectorStoreIDs and
// MaxNumResults, mcp uses the Server* and approval fields.
type ToolDefinition struct {
	Type        string          `json:"type"`
	Name        string          `json:"name,omitempty"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
	Strict      bool            `json:"strict,omitempty"`

	// file_search
	VectorStoreIDs []string `json:"vector_store_ids,omitempty"`
	MaxNumResults  int      `json:"max_num_results,omitempty"`

	// mcp
	ServerLabel     string            `json:"server_label,omitempty"`
	ServerURL       string            `json:"server_url,omitempty"`
	Headers         map[string]string `json:"headers,omitempty"`
	RequireApproval *RequireApproval  `json:"require_approval,omitempty"`
	AllowedTools    []string          `json:"allowed_tools,omitempty"`
}

// RequireApproval controls when MCP tool calls need caller approval.
// It is either the string "always" or "never", or a filter listing tool
// names per policy.
type RequireApproval struct {
	String string          `json:"-"`
	Filter *ApprovalFilter `json:"-"`
}

// ApprovalFilter lists tool names that always or never require approval.
type ApprovalFilter struct {
	Always []string `json:"always,omitempty"`
	Never  []string `json:"never,omitempty"`
}

// MarshalJSON serializes RequireApproval as a string or an object.
func (ra RequireApproval) MarshalJSON() ([]byte, error) {
	if ra.String != "" {
		return json.Marshal(ra.String)
	}
	if ra.Filter != nil {
		return json.Marshal(ra.Filter)
	}
	return nil, fmt.Errorf("RequireApproval has neither string value nor filter")
}

// UnmarshalJSON deserializes RequireApproval from a string or an object.
func (ra *RequireApproval) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		ra.String = s
		ra.Filter = nil
		return nil
	}

	var f ApprovalFilter
	if err := json.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("require_approval must be a string or object: %w", err)
	}
	ra.String = ""
	ra.Filter = &f
	return nil
}

// RequiresFor reports whether a call to the named tool needs caller
// approval under this policy. A nil policy means no approval, matching
// the "never" default. For the filter form, the always list forces
// approval and the never list skips it; tools in neither list require
// approval only when a never list is present, since listing exemptions
// implies everything else is covered.
func (ra *RequireApproval) RequiresFor(toolName string) bool {
	if ra == nil {
		return false
	}
	switch ra.String {
	case "always":
		return true
	case "never":
		return false
	}
	if ra.Filter == nil {
		return false
	}
	for _, name := range ra.Filter.Always {
		if name == toolName {
			return true
		}
	}
	for _, name := range ra.Filter.Never {
		if name == toolName {
			return false
		}
	}
	return len(ra.Filter.Never) > 0
}

// Guardrail names a safety check to run over request input and final output.
// On the wire it is either a bare string id or an object {"type": id}.
type Guardrail struct {
	String string         `json:"-"`
	Spec   *GuardrailSpec `json:"-"`
}

// GuardrailSpec is the object form of a guardrail reference.
type GuardrailSpec struct {
	Type string `json:"type"`
}

// ID returns the check identifier regardless of wire form.
func (g Guardrail) ID() string {
	if g.String != "" {
		return g.String
	}
	if g.Spec != nil {
		return g.Spec.Type
	}
	return ""
}

// MarshalJSON serializes the guardrail in the form it was supplied.
func (g Guardrail) MarshalJSON() ([]byte, error) {
	if g.String != "" {
		return json.Marshal(g.String)
	}
	if g.Spec != nil {
		return json.Marshal(g.Spec)
	}
	return nil, fmt.Errorf("Guardrail has neither string value nor spec")
}

// UnmarshalJSON deserializes a guardrail from a string or an object.
func (g *Guardrail) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		g.String = s
		g.Spec = nil
		return nil
	}

	var spec GuardrailSpec
	if err := json.Unmarshal(data, &spec); err != nil {
		return fmt.Errorf("guardrail must be a string or object: %w", err)
	}
	g.String = ""
	g.Spec = &spec
	return nil
}

// GuardrailIDs extracts the check identifiers from a guardrail list.
// Entries with no resolvable id are returned as empty strings so the
// validator can reject them with a position-specific error.
func GuardrailIDs(guardrails []Guardrail) []string {
	if len(guardrails) == 0 {
		return nil
	}
	ids := make([]string, len(guardrails))
	for i, g := range guardrails {
		ids[i] = g.ID()
	}
	return ids
}
