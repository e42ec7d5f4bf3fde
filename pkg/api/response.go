package api

// ResponseStatus represents the overall status of a response. A response is
// created in_progress and reaches exactly one of the three terminal states.
type ResponseStatus string

const (
	ResponseStatusInProgress ResponseStatus = "in_progress"
	ResponseStatusCompleted  ResponseStatus = "completed"
	ResponseStatusIncomplete ResponseStatus = "incomplete"
	ResponseStatusFailed     ResponseStatus = "failed"
)

// IsTerminal reports whether the status is one of the terminal states.
func (s ResponseStatus) IsTerminal() bool {
	switch s {
	case ResponseStatusCompleted, ResponseStatusIncomplete, ResponseStatusFailed:
		return true
	}
	return false
}

// Response represents the API response object returned by the Responses API.
// Nullable schema fields use pointer types and marshal as explicit null.
type Response struct {
	ID                 string             `json:"id"`
	Object             string             `json:"object"`
	CreatedAt          int64              `json:"created_at"`
	CompletedAt        *int64             `json:"completed_at"`
	Status             ResponseStatus     `json:"status"`
	IncompleteDetails  *IncompleteDetails `json:"incomplete_details"`
	Model              string             `json:"model"`
	PreviousResponseID *string            `json:"previous_response_id"`
	Conversation       string             `json:"conversation,omitempty"`
	Instructions       *string            `json:"instructions"`
	Input              []Item             `json:"input,omitempty"`
	Output             []Item             `json:"output"`
	Error              *ResponseError     `json:"error"`
	Guardrails         []Guardrail        `json:"guardrails,omitempty"`
	Tools              []ToolDefinition   `json:"tools"`
	ToolChoice         any                `json:"tool_choice"`
	ParallelToolCalls  bool               `json:"parallel_tool_calls"`
	Truncation         string             `json:"truncation"`
	Text               *TextConfig        `json:"text"`
	Temperature        float64            `json:"temperature"`
	TopP               float64            `json:"top_p"`
	MaxOutputTokens    *int               `json:"max_output_tokens"`
	MaxInferIters      int                `json:"max_infer_iters,omitempty"`
	Usage              *Usage             `json:"usage"`
	Store              bool               `json:"store"`
	Metadata           map[string]any     `json:"metadata"`
	User               string             `json:"user,omitempty"`
}

// IncompleteDetails provides information about why a response is incomplete.
type IncompleteDetails struct {
	Reason string `json:"reason,omitempty"`
}

// Incomplete reasons.
const (
	IncompleteReasonMaxInferIters   = "max_infer_iters"
	IncompleteReasonMaxOutputTokens = "max_output_tokens"
)

// Usage holds token usage information for a response, accumulated across
// all inference iterations.
type Usage struct {
	InputTokens         int                 `json:"input_tokens"`
	OutputTokens        int                 `json:"output_tokens"`
	TotalTokens         int                 `json:"total_tokens"`
	InputTokensDetails  InputTokensDetails  `json:"input_tokens_details"`
	OutputTokensDetails OutputTokensDetails `json:"output_tokens_details"`
}

// Add accumulates another iteration's usage into u.
func (u *Usage) Add(other *Usage) {
	if other == nil {
		return
	}
	u.InputTokens += other.InputTokens
	u.OutputTokens += other.OutputTokens
	u.TotalTokens += other.TotalTokens
	u.InputTokensDetails.CachedTokens += other.InputTokensDetails.CachedTokens
	u.OutputTokensDetails.ReasoningTokens += other.OutputTokensDetails.ReasoningTokens
}

// InputTokensDetails provides a breakdown of input token usage.
type InputTokensDetails struct {
	CachedTokens int `json:"cached_tokens"`
}

// OutputTokensDetails provides a breakdown of output token usage.
type OutputTokensDetails struct {
	ReasoningTokens int `json:"reasoning_tokens"`
}
