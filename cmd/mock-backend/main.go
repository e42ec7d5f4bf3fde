// Command mock-backend is a deterministic Chat Completions server used
// for local development and conformance runs against the gateway. It
// picks a canned scenario from the request shape, so the same input
// always yields the same output, streaming or not.
//
// Configuration:
//
//	MOCK_PORT - listen port (default: 9090)
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"
)

func main() {
	port := os.Getenv("MOCK_PORT")
	if port == "" {
		port = "9090"
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/chat/completions", handleChatCompletions)
	mux.HandleFunc("GET /v1/models", handleModels)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok\n"))
	})

	srv := &http.Server{Addr: ":" + port, Handler: mux}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		slog.Info("mock backend starting", "port", port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("mock backend failed", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	slog.Info("mock backend shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	srv.Shutdown(shutdownCtx)
}

// --- Wire types ---

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Tools    []any         `json:"tools,omitempty"`
	Stream   bool          `json:"stream"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type toolCall struct {
	ID       string   `json:"id"`
	Type     string   `json:"type"`
	Function funcCall `json:"function"`
}

type funcCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// --- Scenarios ---

// scenario is one canned backend behavior. The first scenario whose
// match function accepts the request wins; order matters.
type scenario struct {
	name  string
	match func(*chatRequest) bool
	// text is the assistant reply, split on spaces for streaming.
	text string
	// tool, when set, answers with a tool call instead of text.
	tool *toolCall
}

var scenarios = []scenario{
	{
		name:  "tool call",
		match: func(req *chatRequest) bool { return len(req.Tools) > 0 },
		tool: &toolCall{
			ID:   "call_mock_1",
			Type: "function",
			Function: funcCall{
				Name:      "get_weather",
				Arguments: `{"location":"San Francisco","unit":"celsius"}`,
			},
		},
	},
	{
		name:  "image input",
		match: hasImageContent,
		text:  "I can see the image you shared. It appears to be a small red icon or symbol.",
	},
	{
		name:  "counting",
		match: lastUserMessageContains("count from 1 to 5"),
		text:  "1, 2, 3, 4, 5",
	},
	{
		name:  "system prompt",
		match: hasSystemPrompt,
		text:  "Ahoy there, matey! Welcome aboard!",
	},
	{
		name:  "default",
		match: func(*chatRequest) bool { return true },
		text:  "Hello, nice day!",
	},
}

func pickScenario(req *chatRequest) scenario {
	for _, s := range scenarios {
		if s.match(req) {
			return s
		}
	}
	return scenarios[len(scenarios)-1]
}

// --- Handlers ---

func handleChatCompletions(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":{"message":"invalid request","type":"invalid_request_error"}}`, http.StatusBadRequest)
		return
	}

	model := req.Model
	if model == "" {
		model = "mock-model"
	}

	s := pickScenario(&req)
	slog.Debug("serving scenario", "scenario", s.name, "stream", req.Stream)

	if req.Stream {
		streamScenario(w, model, s)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(completionFor(model, s))
}

func handleModels(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{
		"object": "list",
		"data": []map[string]any{
			{"id": "mock-model", "object": "model", "owned_by": "dirigent-mock"},
		},
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// completionFor builds the non-streaming response for a scenario.
func completionFor(model string, s scenario) map[string]any {
	message := map[string]any{"role": "assistant"}
	finish := "stop"
	completionTokens := len(strings.Fields(s.text))

	if s.tool != nil {
		message["content"] = nil
		message["tool_calls"] = []toolCall{*s.tool}
		finish = "tool_calls"
		completionTokens = 15
	} else {
		message["content"] = s.text
	}

	return map[string]any{
		"id":     "chatcmpl-mock",
		"object": "chat.completion",
		"model":  model,
		"choices": []any{map[string]any{
			"index":         0,
			"message":       message,
			"finish_reason": finish,
		}},
		"usage": map[string]any{
			"prompt_tokens":     10,
			"completion_tokens": completionTokens,
			"total_tokens":      10 + completionTokens,
		},
	}
}

// streamScenario replays the scenario as chunked SSE: a role chunk,
// one chunk per token (or the tool call in one chunk), then the finish
// chunk with usage and [DONE].
func streamScenario(w http.ResponseWriter, model string, s scenario) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")

	emit := func(delta map[string]any, finish any, usage map[string]any) {
		chunk := map[string]any{
			"id":     "chatcmpl-mock-stream",
			"object": "chat.completion.chunk",
			"model":  model,
			"choices": []any{map[string]any{
				"index":         0,
				"delta":         delta,
				"finish_reason": finish,
			}},
		}
		if usage != nil {
			chunk["usage"] = usage
		}
		data, _ := json.Marshal(chunk)
		fmt.Fprintf(w, "data: %s\n\n", data)
		flusher.Flush()
	}

	emit(map[string]any{"role": "assistant"}, nil, nil)

	finish := "stop"
	tokens := 0
	if s.tool != nil {
		emit(map[string]any{"tool_calls": []map[string]any{{
			"index": 0,
			"id":    s.tool.ID,
			"type":  s.tool.Type,
			"function": map[string]any{
				"name":      s.tool.Function.Name,
				"arguments": s.tool.Function.Arguments,
			},
		}}}, nil, nil)
		finish = "tool_calls"
		tokens = 15
	} else {
		for i, word := range strings.Fields(s.text) {
			token := word
			if i > 0 {
				token = " " + word
			}
			emit(map[string]any{"content": token}, nil, nil)
			tokens++
		}
	}

	emit(map[string]any{}, finish, map[string]any{
		"prompt_tokens":     10,
		"completion_tokens": tokens,
		"total_tokens":      10 + tokens,
	})

	fmt.Fprint(w, "data: [DONE]\n\n")
	flusher.Flush()
}

// --- Request inspection ---

func lastUserMessageContains(needle string) func(*chatRequest) bool {
	return func(req *chatRequest) bool {
		return strings.Contains(strings.ToLower(lastUserMessage(req)), needle)
	}
}

func lastUserMessage(req *chatRequest) string {
	for i := len(req.Messages) - 1; i >= 0; i-- {
		if req.Messages[i].Role != "user" {
			continue
		}
		switch v := req.Messages[i].Content.(type) {
		case string:
			return v
		case []any:
			// Multimodal content array: use the first text part.
			for _, part := range v {
				if m, ok := part.(map[string]any); ok {
					if t, _ := m["type"].(string); t == "input_text" || t == "text" {
						if text, ok := m["text"].(string); ok {
							return text
						}
					}
				}
			}
		}
	}
	return ""
}

func hasImageContent(req *chatRequest) bool {
	for _, msg := range req.Messages {
		if msg.Role != "user" {
			continue
		}
		parts, ok := msg.Content.([]any)
		if !ok {
			continue
		}
		for _, part := range parts {
			if m, ok := part.(map[string]any); ok {
				if t, _ := m["type"].(string); t == "input_image" || t == "image_url" {
					return true
				}
			}
		}
	}
	return false
}

func hasSystemPrompt(req *chatRequest) bool {
	for _, msg := range req.Messages {
		if msg.Role == "system" {
			return true
		}
	}
	return false
}
