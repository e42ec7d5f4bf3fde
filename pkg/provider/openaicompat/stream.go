package openaicompat

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sort"
	"strings"

	"github.com/dirigent-dev/dirigent/pkg/api"
	"github.com/dirigent-dev/dirigent/pkg/provider"
)

// ToolCallBuffer tracks incremental tool call argument assembly across
// multiple SSE chunks for a single tool call index.
type ToolCallBuffer struct {
	ID   string
	Name string
	Args strings.Builder
}

// TurnState accumulates per-turn data across SSE chunks: tool call argument
// buffers, assembled message text, and the finish reason and usage reported
// by the backend. One TurnState serves one stream.
//
// The turn-done event is deferred until the stream ends because backends
// configured with stream_options.include_usage report usage in a trailing
// chunk after finish_reason.
type TurnState struct {
	ToolCalls    map[int]*ToolCallBuffer
	Text         strings.Builder
	MessageOpen  bool
	FinishReason provider.FinishReason
	Usage        *api.Usage

	done bool
}

// NewTurnState creates an empty TurnState.
func NewTurnState() *TurnState {
	return &TurnState{ToolCalls: make(map[int]*ToolCallBuffer)}
}

// EmitTurnDone sends the final turn-done event carrying the finish reason and
// any usage the backend reported. It fires at most once per stream.
func (s *TurnState) EmitTurnDone(ch chan<- provider.ProviderEvent) {
	if s.done {
		return
	}
	s.done = true
	ch <- provider.ProviderEvent{
		Type:         provider.ProviderEventTurnDone,
		FinishReason: s.FinishReason,
		Usage:        s.Usage,
	}
}

// ParseSSEStream reads Chat Completions SSE chunks from the given reader,
// translates each chunk to ProviderEvent values, and sends them on ch.
// The channel is NOT closed by this function; the caller is responsible
// for closing it.
//
// SSE format expected:
//
//	data: {"id":"...","choices":[...]}\n
//	\n
//	data: [DONE]\n
//	\n
//
// Malformed chunks are logged and skipped. Context cancellation stops
// reading immediately.
func ParseSSEStream(ctx context.Context, body io.Reader, ch chan<- provider.ProviderEvent) {
	scanner := bufio.NewScanner(body)
	state := NewTurnState()

	for scanner.Scan() {
		// Check for context cancellation between lines.
		if ctx.Err() != nil {
			return
		}

		line := scanner.Text()

		// SSE lines that don't start with "data: " are ignored
		// (e.g., empty lines, comments starting with ":").
		if !strings.HasPrefix(line, "data: ") {
			continue
		}

		payload := strings.TrimPrefix(line, "data: ")

		// The [DONE] sentinel ends the stream.
		if payload == "[DONE]" {
			state.EmitTurnDone(ch)
			return
		}

		// Parse the JSON chunk.
		var chunk ChatCompletionChunk
		if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
			slog.Warn("skipping malformed SSE chunk",
				"error", err.Error(),
				"data", Truncate(payload, 200),
			)
			continue
		}

		// Translate chunk to provider events and send them.
		TranslateChunk(&chunk, state, ch)
	}

	// Scanner error (e.g., connection dropped).
	if err := scanner.Err(); err != nil {
		// Context cancellation is not an error from our perspective.
		if ctx.Err() != nil {
			return
		}
		ch <- provider.ProviderEvent{
			Type: provider.ProviderEventError,
			Err:  api.NewServerError("SSE stream read error: " + err.Error()),
		}
		return
	}

	// Stream ended without a [DONE] sentinel. Some backends close the
	// connection right after the final chunk; a missing finish_reason
	// means the backend dropped mid-turn.
	if state.FinishReason == "" {
		ch <- provider.ProviderEvent{
			Type: provider.ProviderEventError,
			Err:  api.NewServerError("backend stream ended before completion"),
		}
		return
	}
	state.EmitTurnDone(ch)
}

// TranslateChunk converts a single ChatCompletionChunk into zero or more
// ProviderEvent values sent on the channel. Turn-level completion data
// (finish reason, usage) is recorded on state rather than emitted; the
// caller emits turn-done when the stream ends.
func TranslateChunk(chunk *ChatCompletionChunk, state *TurnState, ch chan<- provider.ProviderEvent) {
	// Usage can appear on any chunk, including a trailing usage-only chunk
	// with no choices (sent with stream_options.include_usage).
	if chunk.Usage != nil {
		state.Usage = &api.Usage{
			InputTokens:  chunk.Usage.PromptTokens,
			OutputTokens: chunk.Usage.CompletionTokens,
			TotalTokens:  chunk.Usage.TotalTokens,
		}
	}

	if len(chunk.Choices) == 0 {
		return
	}

	choice := chunk.Choices[0]
	delta := choice.Delta

	// finish_reason signals the end of content for this turn: flush the
	// assembled text and any buffered tool calls.
	if choice.FinishReason != nil {
		if state.MessageOpen && state.Text.Len() > 0 {
			ch <- provider.ProviderEvent{
				Type: provider.ProviderEventTextDone,
				Text: state.Text.String(),
			}
		}
		if len(state.ToolCalls) > 0 {
			FlushToolCalls(state.ToolCalls, ch)
		}
		state.FinishReason = MapFinishReason(*choice.FinishReason)
		return
	}

	// Handle tool call deltas.
	if len(delta.ToolCalls) > 0 {
		for _, tc := range delta.ToolCalls {
			buf, exists := state.ToolCalls[tc.Index]
			if !exists {
				// First chunk for this tool call index: carries id and function name.
				buf = &ToolCallBuffer{
					ID:   tc.ID,
					Name: tc.Function.Name,
				}
				state.ToolCalls[tc.Index] = buf

				ch <- provider.ProviderEvent{
					Type:          provider.ProviderEventToolCallStart,
					ToolCallIndex: tc.Index,
					ToolCallID:    tc.ID,
					FunctionName:  tc.Function.Name,
				}
			}

			if tc.Function.Arguments != "" {
				ch <- provider.ProviderEvent{
					Type:          provider.ProviderEventToolCallArgsDelta,
					ToolCallIndex: tc.Index,
					ToolCallID:    buf.ID,
					Delta:         tc.Function.Arguments,
				}
				buf.Args.WriteString(tc.Function.Arguments)
			}
		}
		return
	}

	// Handle reasoning content delta (e.g., DeepSeek R1). Reasoning is a
	// content part of the assistant message, so it opens the message too.
	if delta.ReasoningContent != nil && *delta.ReasoningContent != "" {
		state.openMessage(ch)
		ch <- provider.ProviderEvent{
			Type:  provider.ProviderEventReasoningDelta,
			Delta: *delta.ReasoningContent,
		}
		// Don't return: the same chunk might also carry text content.
	}

	// Handle refusal delta.
	if delta.Refusal != nil && *delta.Refusal != "" {
		state.openMessage(ch)
		ch <- provider.ProviderEvent{
			Type:  provider.ProviderEventRefusalDelta,
			Delta: *delta.Refusal,
		}
		return
	}

	// Handle text content delta.
	if delta.Content != nil && *delta.Content != "" {
		state.openMessage(ch)
		state.Text.WriteString(*delta.Content)
		ch <- provider.ProviderEvent{
			Type:  provider.ProviderEventTextDelta,
			Delta: *delta.Content,
		}
		return
	}

	// Role-only chunk (first chunk of the choice) or an empty keep-alive
	// delta. Neither carries content; message start is emitted lazily with
	// the first content-bearing delta, so a tool-call-only turn never opens
	// an empty message.
}

// openMessage emits the message-start event the first time any message
// content (text, refusal, or reasoning) arrives.
func (s *TurnState) openMessage(ch chan<- provider.ProviderEvent) {
	if s.MessageOpen {
		return
	}
	s.MessageOpen = true
	ch <- provider.ProviderEvent{Type: provider.ProviderEventMessageStart}
}

// FlushToolCalls emits ProviderEventToolCallArgsDone for each buffered tool
// call, in ascending index order, and clears the buffer.
func FlushToolCalls(toolCalls map[int]*ToolCallBuffer, ch chan<- provider.ProviderEvent) {
	indexes := make([]int, 0, len(toolCalls))
	for idx := range toolCalls {
		indexes = append(indexes, idx)
	}
	sort.Ints(indexes)

	for _, idx := range indexes {
		buf := toolCalls[idx]
		ch <- provider.ProviderEvent{
			Type:          provider.ProviderEventToolCallArgsDone,
			ToolCallIndex: idx,
			ToolCallID:    buf.ID,
			FunctionName:  buf.Name,
			Arguments:     buf.Args.String(),
		}
	}

	// Clear the map.
	for k := range toolCalls {
		delete(toolCalls, k)
	}
}

// MapFinishReason converts a Chat Completions finish_reason string into a
// provider FinishReason.
func MapFinishReason(reason string) provider.FinishReason {
	switch reason {
	case "stop":
		return provider.FinishReasonStop
	case "tool_calls":
		return provider.FinishReasonToolCalls
	case "length":
		return provider.FinishReasonLength
	case "content_filter":
		return provider.FinishReasonContentFilter
	default:
		slog.Warn("unknown finish_reason in stream, treating as stop",
			"finish_reason", reason,
		)
		return provider.FinishReasonStop
	}
}

// Truncate limits a string to maxLen characters for log output.
func Truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
