// Package safety implements the guardrail gate that brackets inference.
//
// A Gate holds the set of registered checks and runs the subset a request
// names over input messages (before the first inference call) or over the
// finalized output text (before the terminal event). Checks are backed by
// an OpenAI-compatible moderations endpoint; a flagged result becomes a
// Violation whose message is surfaced to the client as a refusal, never as
// an error.
//
// Referencing a check id that is not registered is a hard validation
// failure (ErrUnknownCheck), surfaced before any inference call.
package safety
