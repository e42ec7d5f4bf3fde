// Package vllm provides the Provider adapter for vLLM backends. vLLM
// speaks the OpenAI Chat Completions protocol, so the adapter is a thin
// flavor over openaicompat: it pins the provider name, declares vLLM's
// capabilities (including reasoning_content streaming), and leaves the
// HTTP and SSE handling to the shared client.
package vllm
