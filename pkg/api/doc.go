// Package api defines the core protocol types for the Dirigent responses
// gateway.
//
// This package provides all data types needed to implement the Responses API
// surface: items, content parts, request/response objects, streaming events,
// error types, state machine validation, and ID generation.
//
// The package has zero external dependencies (Go standard library only) and
// performs no I/O. All types produce JSON compatible with the OpenAI Responses
// API wire format, enabling client library compatibility.
//
// Core types:
//   - [Item]: Polymorphic unit of conversation (message, function_call, tool
//     call variants, approval items)
//   - [CreateResponseRequest]: Client request for model inference
//   - [Response]: Server response containing output items
//   - [StreamEvent]: Server-sent event for streaming responses
//   - [APIError]: Structured error with type, code, param, and message
//
// Item, content, and event variants form closed sets: dispatch is always by
// the type tag, never by probing which payload fields happen to be present.
package api
