// Package engine implements the orchestration core of dirigent. The Engine
// struct implements transport.ResponseCreator: it validates the request,
// resolves previous-response or conversation continuations, runs the bounded
// inference-and-tool-call loop, and emits the ordered stream of response
// events terminating in exactly one of completed, incomplete, or failed.
// Optional capabilities (storage, conversations, safety, tool executors)
// use nil-safe composition for graceful degradation.
package engine
