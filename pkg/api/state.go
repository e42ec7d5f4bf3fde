package api

import "fmt"

// Status transition tables. The empty string is the initial state;
// terminal states (completed, incomplete, failed) have no entry and so
// allow no outgoing transitions.
var (
	responseTransitions = map[ResponseStatus][]ResponseStatus{
		"":                       {ResponseStatusInProgress},
		ResponseStatusInProgress: {ResponseStatusCompleted, ResponseStatusIncomplete, ResponseStatusFailed},
	}

	// Searching is an intermediate state entered by search tool calls.
	itemTransitions = map[ItemStatus][]ItemStatus{
		"":                   {ItemStatusInProgress},
		ItemStatusInProgress: {ItemStatusSearching, ItemStatusCompleted, ItemStatusIncomplete, ItemStatusFailed},
		ItemStatusSearching:  {ItemStatusCompleted, ItemStatusFailed},
	}
)

// ValidateResponseTransition checks a response status transition
// against the lifecycle table.
func ValidateResponseTransition(from, to ResponseStatus) *APIError {
	for _, next := range responseTransitions[from] {
		if next == to {
			return nil
		}
	}
	return NewInvalidRequestError("status",
		fmt.Sprintf("invalid transition from %s to %s", from, to))
}

// ValidateItemTransition checks an output item status transition
// against the lifecycle table.
func ValidateItemTransition(from, to ItemStatus) *APIError {
	for _, next := range itemTransitions[from] {
		if next == to {
			return nil
		}
	}
	return NewInvalidRequestError("status",
		fmt.Sprintf("invalid transition from %s to %s", from, to))
}
