package api

import "encoding/json"

// Input content part types carried by user, system, and developer messages.
const (
	ContentTypeInputText  = "input_text"
	ContentTypeInputImage = "input_image"
	ContentTypeInputFile  = "input_file"
)

// Output content part types carried by assistant messages. The set is closed:
// output_text accumulates model text, refusal carries a safety-driven
// non-answer, reasoning_text carries chain-of-thought text when the backend
// exposes it.
const (
	ContentTypeOutputText    = "output_text"
	ContentTypeRefusal       = "refusal"
	ContentTypeReasoningText = "reasoning_text"
)

// ContentPart represents a part of user input content.
// The Type field selects which of the remaining fields are meaningful.
type ContentPart struct {
	Type     string `json:"type"`
	Text     string `json:"text,omitempty"`
	ImageURL string `json:"image_url,omitempty"`
	Detail   string `json:"detail,omitempty"`
	FileID   string `json:"file_id,omitempty"`
	FileURL  string `json:"file_url,omitempty"`
	Filename string `json:"filename,omitempty"`
}

// OutputContentPart represents a part of model output content.
// The wire shape depends on Type: output_text carries text plus annotations
// and logprobs (always arrays, never null), refusal carries only the refusal
// string, reasoning_text carries only text.
type OutputContentPart struct {
	Type        string         `json:"-"`
	Text        string         `json:"-"`
	Refusal     string         `json:"-"`
	Annotations []Annotation   `json:"-"`
	Logprobs    []TokenLogprob `json:"-"`
}

// NewOutputTextPart creates an output_text part with empty annotation and
// logprob arrays.
func NewOutputTextPart(text string) OutputContentPart {
	return OutputContentPart{
		Type:        ContentTypeOutputText,
		Text:        text,
		Annotations: []Annotation{},
		Logprobs:    []TokenLogprob{},
	}
}

// NewRefusalPart creates a refusal part carrying the given refusal text.
func NewRefusalPart(refusal string) OutputContentPart {
	return OutputContentPart{Type: ContentTypeRefusal, Refusal: refusal}
}

// NewReasoningTextPart creates a reasoning_text part.
func NewReasoningTextPart(text string) OutputContentPart {
	return OutputContentPart{Type: ContentTypeReasoningText, Text: text}
}

// MarshalJSON serializes the part in its type-specific wire shape.
func (p OutputContentPart) MarshalJSON() ([]byte, error) {
	switch p.Type {
	case ContentTypeRefusal:
		return json.Marshal(struct {
			Type    string `json:"type"`
			Refusal string `json:"refusal"`
		}{Type: p.Type, Refusal: p.Refusal})

	case ContentTypeReasoningText:
		return json.Marshal(struct {
			Type string `json:"type"`
			Text string `json:"text"`
		}{Type: p.Type, Text: p.Text})

	default:
		// output_text: annotations and logprobs are always arrays, never null.
		w := struct {
			Type        string         `json:"type"`
			Text        string         `json:"text"`
			Annotations []Annotation   `json:"annotations"`
			Logprobs    []TokenLogprob `json:"logprobs"`
		}{
			Type:        p.Type,
			Text:        p.Text,
			Annotations: p.Annotations,
			Logprobs:    p.Logprobs,
		}
		if w.Annotations == nil {
			w.Annotations = []Annotation{}
		}
		if w.Logprobs == nil {
			w.Logprobs = []TokenLogprob{}
		}
		return json.Marshal(w)
	}
}

// UnmarshalJSON deserializes an OutputContentPart from any of the wire shapes.
func (p *OutputContentPart) UnmarshalJSON(data []byte) error {
	var w struct {
		Type        string         `json:"type"`
		Text        string         `json:"text"`
		Refusal     string         `json:"refusal"`
		Annotations []Annotation   `json:"annotations"`
		Logprobs    []TokenLogprob `json:"logprobs"`
	}
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	p.Type = w.Type
	p.Text = w.Text
	p.Refusal = w.Refusal
	p.Annotations = w.Annotations
	p.Logprobs = w.Logprobs
	return nil
}

// Annotation represents an annotation on output text, such as a file or URL
// citation attached by a search tool.
type Annotation struct {
	Type       string `json:"type"`
	Text       string `json:"text,omitempty"`
	FileID     string `json:"file_id,omitempty"`
	Filename   string `json:"filename,omitempty"`
	URL        string `json:"url,omitempty"`
	Title      string `json:"title,omitempty"`
	Index      int    `json:"index,omitempty"`
	StartIndex int    `json:"start_index,omitempty"`
	EndIndex   int    `json:"end_index,omitempty"`
}

// TokenLogprob holds log probability information for a single token.
type TokenLogprob struct {
	Token       string       `json:"token"`
	Logprob     float64      `json:"logprob"`
	TopLogprobs []TopLogprob `json:"top_logprobs,omitempty"`
}

// TopLogprob holds a candidate token and its log probability.
type TopLogprob struct {
	Token   string  `json:"token"`
	Logprob float64 `json:"logprob"`
}
