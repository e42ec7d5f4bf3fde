// Package openaicompat implements provider.Provider for any OpenAI-compatible
// Chat Completions backend (OpenAI, vLLM, LiteLLM proxies). It handles request
// serialization, SSE chunk streaming, tool call argument buffering, and error
// mapping, and surfaces the backend stream as uniform ProviderEvent values.
package openaicompat
