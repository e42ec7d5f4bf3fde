package api

import (
	"encoding/json"
	"fmt"
)

// InputUnion is the request input field: either free text or a structured
// item list. Exactly one of Text and Items is meaningful; Items takes
// precedence when both are set.
type InputUnion struct {
	Text  string `json:"-"`
	Items []Item `json:"-"`
}

// IsZero reports whether no input was supplied at all.
func (in InputUnion) IsZero() bool {
	return in.Text == "" && in.Items == nil
}

// ToItems normalizes the input to an item list. Free text becomes a single
// user message with one input_text part.
func (in InputUnion) ToItems() []Item {
	if in.Items != nil {
		return in.Items
	}
	if in.Text == "" {
		return nil
	}
	return []Item{NewUserMessage(in.Text)}
}

// MarshalJSON serializes the input in the form it was supplied.
func (in InputUnion) MarshalJSON() ([]byte, error) {
	if in.Items != nil {
		return json.Marshal(in.Items)
	}
	return json.Marshal(in.Text)
}

// UnmarshalJSON deserializes the input from a string or an item array.
func (in *InputUnion) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		in.Text = s
		in.Items = nil
		return nil
	}

	var items []Item
	if err := json.Unmarshal(data, &items); err != nil {
		return fmt.Errorf("input must be a string or an array of items: %w", err)
	}
	in.Text = ""
	in.Items = items
	return nil
}

// CreateResponseRequest represents the request body for creating a new response.
type CreateResponseRequest struct {
	Model              string           `json:"model"`
	Input              InputUnion       `json:"input"`
	Instructions       string           `json:"instructions,omitempty"`
	Tools              []ToolDefinition `json:"tools,omitempty"`
	ToolChoice         *ToolChoice      `json:"tool_choice,omitempty"`
	AllowedTools       []string         `json:"allowed_tools,omitempty"`
	Guardrails         []Guardrail      `json:"guardrails,omitempty"`
	Store              *bool            `json:"store,omitempty"`
	Stream             bool             `json:"stream,omitempty"`
	PreviousResponseID string           `json:"previous_response_id,omitempty"`
	Conversation       string           `json:"conversation,omitempty"`
	MaxInferIters      *int             `json:"max_infer_iters,omitempty"`
	MaxOutputTokens    *int             `json:"max_output_tokens,omitempty"`
	MaxToolCalls       *int             `json:"max_tool_calls,omitempty"`
	Temperature        *float64         `json:"temperature,omitempty"`
	TopP               *float64         `json:"top_p,omitempty"`
	ParallelToolCalls  *bool            `json:"parallel_tool_calls,omitempty"`
	Text               *TextConfig      `json:"text,omitempty"`
	Truncation         string           `json:"truncation,omitempty"`
	Include            []string         `json:"include,omitempty"`
	Metadata           map[string]any   `json:"metadata,omitempty"`
	User               string           `json:"user,omitempty"`
}

// TextConfig holds text generation configuration echoed in the response.
type TextConfig struct {
	Format *TextFormat `json:"format,omitempty"`
}

// TextFormat specifies the output text format.
// For json_schema mode, the Name, Strict, and Schema fields carry
// the schema definition through the pipeline as opaque data.
type TextFormat struct {
	Type   string          `json:"type"`
	Name   string          `json:"name,omitempty"`
	Strict *bool           `json:"strict,omitempty"`
	Schema json.RawMessage `json:"schema,omitempty"`
}
