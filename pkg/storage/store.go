package storage

import (
	"context"

	"github.com/dirigent-dev/dirigent/pkg/api"
	"github.com/dirigent-dev/dirigent/pkg/provider"
)

// StoredResponse is the persisted layout for one response: the response
// object, the input-item list it was created from, and the raw provider
// messages used to produce it. The raw messages are retained so a chained
// follow-up turn can replay prior context verbatim instead of reconverting
// items, which avoids drift.
type StoredResponse struct {
	Response *api.Response              `json:"response"`
	Input    []api.Item                 `json:"input"`
	Messages []provider.ProviderMessage `json:"messages,omitempty"`
}

// ListOptions controls pagination, filtering, and ordering for list operations.
type ListOptions struct {
	After  string // Cursor: return items after this ID.
	Before string // Cursor: return items before this ID.
	Limit  int    // Maximum number of items to return (default 20, max 100).
	Model  string // Filter responses by model name (list responses only).
	Order  string // Sort order: "asc" or "desc" (default "desc").
}

// ResponseList holds a paginated list of responses.
type ResponseList struct {
	Object  string          `json:"object"`
	Data    []*api.Response `json:"data"`
	HasMore bool            `json:"has_more"`
	FirstID string          `json:"first_id"`
	LastID  string          `json:"last_id"`
}

// ItemList holds a paginated list of items.
type ItemList struct {
	Object  string     `json:"object"`
	Data    []api.Item `json:"data"`
	HasMore bool       `json:"has_more"`
	FirstID string     `json:"first_id"`
	LastID  string     `json:"last_id"`
}

// ResponseStore handles persistence, retrieval, and deletion of stored
// responses. Implementations scope all operations by the tenant in the
// context when one is present.
type ResponseStore interface {
	// SaveResponse persists a terminal response with its input items and
	// raw provider messages. Returns ErrConflict if the id already exists.
	SaveResponse(ctx context.Context, rec *StoredResponse) error

	// GetResponse retrieves a response by ID. Returns ErrNotFound if the
	// response does not exist or has been soft-deleted.
	GetResponse(ctx context.Context, id string) (*api.Response, error)

	// GetStoredResponse retrieves the full stored record for chaining.
	// Soft-deleted responses are included so that chains remain intact
	// when intermediate responses are deleted.
	GetStoredResponse(ctx context.Context, id string) (*StoredResponse, error)

	// DeleteResponse soft-deletes a response by ID.
	DeleteResponse(ctx context.Context, id string) error

	// ListResponses returns a paginated list of stored responses.
	ListResponses(ctx context.Context, opts ListOptions) (*ResponseList, error)

	// ListInputItems returns a paginated list of input items for a response.
	ListInputItems(ctx context.Context, responseID string, opts ListOptions) (*ItemList, error)

	// HealthCheck verifies the store connection is functional.
	HealthCheck(ctx context.Context) error

	// Close releases database connections and resources.
	Close() error
}

// Conversation is a named container of items shared across responses.
type Conversation struct {
	ID        string         `json:"id"`
	Object    string         `json:"object"`
	CreatedAt int64          `json:"created_at"`
	Metadata  map[string]any `json:"metadata"`
}

// ConversationStore handles conversation persistence and item sync.
type ConversationStore interface {
	// CreateConversation persists a new conversation.
	CreateConversation(ctx context.Context, conv *Conversation) error

	// GetConversation retrieves a conversation by ID. Returns ErrNotFound
	// if it does not exist or has been deleted.
	GetConversation(ctx context.Context, id string) (*Conversation, error)

	// AddItems appends items to a conversation in order.
	AddItems(ctx context.Context, conversationID string, items []api.Item) error

	// ListItems returns a paginated list of conversation items.
	ListItems(ctx context.Context, conversationID string, opts ListOptions) (*ItemList, error)

	// DeleteConversation removes a conversation and its items.
	DeleteConversation(ctx context.Context, id string) error
}
