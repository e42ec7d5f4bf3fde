// Package memory provides in-memory implementations of storage.ResponseStore
// and storage.ConversationStore for testing and lightweight deployments.
// Records are lost when the process restarts. Optional LRU eviction limits
// memory usage.
package memory

import (
	"container/list"
	"context"
	"sort"
	"sync"
	"time"

	"github.com/dirigent-dev/dirigent/pkg/api"
	"github.com/dirigent-dev/dirigent/pkg/storage"
)

// entry holds a stored response record and its metadata.
type entry struct {
	rec       *storage.StoredResponse
	tenantID  string
	deletedAt *time.Time
	lruElem   *list.Element // position in LRU list
}

// convEntry holds a conversation and its items.
type convEntry struct {
	conv     *storage.Conversation
	tenantID string
	items    []api.Item
}

// Store is an in-memory response and conversation store with optional
// LRU eviction for responses.
type Store struct {
	mu      sync.RWMutex
	entries map[string]*entry
	convs   map[string]*convEntry
	lruList *list.List // front = most recently used, back = least recently used
	maxSize int        // 0 = unlimited
}

var (
	_ storage.ResponseStore     = (*Store)(nil)
	_ storage.ConversationStore = (*Store)(nil)
)

// New creates a new in-memory store. If maxSize is 0, the store grows
// without limit. If maxSize > 0, the oldest response entry is evicted
// when the limit is reached.
func New(maxSize int) *Store {
	return &Store{
		entries: make(map[string]*entry),
		convs:   make(map[string]*convEntry),
		lruList: list.New(),
		maxSize: maxSize,
	}
}

// SaveResponse persists a response record in memory.
func (s *Store) SaveResponse(ctx context.Context, rec *storage.StoredResponse) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := rec.Response.ID
	if _, exists := s.entries[id]; exists {
		return storage.ErrConflict
	}

	tenantID := storage.GetTenant(ctx)

	// Evict if at capacity.
	if s.maxSize > 0 && len(s.entries) >= s.maxSize {
		s.evictOldest()
	}

	elem := s.lruList.PushFront(id)
	s.entries[id] = &entry{
		rec:      rec,
		tenantID: tenantID,
		lruElem:  elem,
	}

	return nil
}

// GetResponse retrieves a response by ID. Returns ErrNotFound if the
// response does not exist or has been soft-deleted. Scoped by tenant
// when a tenant is present in the context.
func (s *Store) GetResponse(ctx context.Context, id string) (*api.Response, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[id]
	if !ok || e.deletedAt != nil {
		return nil, storage.ErrNotFound
	}

	if tenantID := storage.GetTenant(ctx); tenantID != "" && e.tenantID != tenantID {
		return nil, storage.ErrNotFound
	}

	return e.rec.Response, nil
}

// GetStoredResponse retrieves the full stored record for chaining.
// Includes soft-deleted responses so chains remain intact.
func (s *Store) GetStoredResponse(ctx context.Context, id string) (*storage.StoredResponse, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[id]
	if !ok {
		return nil, storage.ErrNotFound
	}

	// Tenant scoping applies to chains too.
	if tenantID := storage.GetTenant(ctx); tenantID != "" && e.tenantID != tenantID {
		return nil, storage.ErrNotFound
	}

	return e.rec, nil
}

// DeleteResponse soft-deletes a response. The record remains available
// for chain reconstruction via GetStoredResponse.
func (s *Store) DeleteResponse(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id]
	if !ok {
		return storage.ErrNotFound
	}

	if tenantID := storage.GetTenant(ctx); tenantID != "" && e.tenantID != tenantID {
		return storage.ErrNotFound
	}

	now := time.Now()
	e.deletedAt = &now
	return nil
}

// HealthCheck always returns nil for the in-memory store.
func (s *Store) HealthCheck(_ context.Context) error {
	return nil
}

// Close is a no-op for the in-memory store.
func (s *Store) Close() error {
	return nil
}

// ListResponses returns a paginated list of stored responses filtered by
// tenant and optionally by model, with cursor-based pagination.
func (s *Store) ListResponses(ctx context.Context, opts storage.ListOptions) (*storage.ResponseList, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tenantID := storage.GetTenant(ctx)

	var matches []*api.Response
	for _, e := range s.entries {
		if e.deletedAt != nil {
			continue
		}
		if tenantID != "" && e.tenantID != tenantID {
			continue
		}
		if opts.Model != "" && e.rec.Response.Model != opts.Model {
			continue
		}
		matches = append(matches, e.rec.Response)
	}

	// Sort by created_at. Default is desc (newest first).
	asc := opts.Order == "asc"
	sort.Slice(matches, func(i, j int) bool {
		if asc {
			if matches[i].CreatedAt != matches[j].CreatedAt {
				return matches[i].CreatedAt < matches[j].CreatedAt
			}
			return matches[i].ID < matches[j].ID
		}
		if matches[i].CreatedAt != matches[j].CreatedAt {
			return matches[i].CreatedAt > matches[j].CreatedAt
		}
		return matches[i].ID > matches[j].ID
	})

	// Apply cursor-based pagination.
	if opts.After != "" {
		idx := -1
		for i, r := range matches {
			if r.ID == opts.After {
				idx = i
				break
			}
		}
		if idx >= 0 {
			matches = matches[idx+1:]
		} else {
			matches = nil
		}
	} else if opts.Before != "" {
		idx := -1
		for i, r := range matches {
			if r.ID == opts.Before {
				idx = i
				break
			}
		}
		if idx > 0 {
			matches = matches[:idx]
		} else {
			matches = nil
		}
	}

	limit := normalizeLimit(opts.Limit)
	hasMore := len(matches) > limit
	if hasMore {
		matches = matches[:limit]
	}

	result := &storage.ResponseList{
		Object:  "list",
		Data:    matches,
		HasMore: hasMore,
	}
	if len(matches) > 0 {
		result.FirstID = matches[0].ID
		result.LastID = matches[len(matches)-1].ID
	}
	if result.Data == nil {
		result.Data = []*api.Response{}
	}

	return result, nil
}

// ListInputItems returns a paginated list of input items for a stored response.
func (s *Store) ListInputItems(ctx context.Context, responseID string, opts storage.ListOptions) (*storage.ItemList, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[responseID]
	if !ok || e.deletedAt != nil {
		return nil, storage.ErrNotFound
	}

	if tenantID := storage.GetTenant(ctx); tenantID != "" && e.tenantID != tenantID {
		return nil, storage.ErrNotFound
	}

	return paginateItems(e.rec.Input, opts), nil
}

// CreateConversation persists a new conversation.
func (s *Store) CreateConversation(ctx context.Context, conv *storage.Conversation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.convs[conv.ID]; exists {
		return storage.ErrConflict
	}

	s.convs[conv.ID] = &convEntry{
		conv:     conv,
		tenantID: storage.GetTenant(ctx),
	}
	return nil
}

// GetConversation retrieves a conversation by ID.
func (s *Store) GetConversation(ctx context.Context, id string) (*storage.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ce, err := s.conversationLocked(ctx, id)
	if err != nil {
		return nil, err
	}
	return ce.conv, nil
}

// AddItems appends items to a conversation in order.
func (s *Store) AddItems(ctx context.Context, conversationID string, items []api.Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ce, err := s.conversationLocked(ctx, conversationID)
	if err != nil {
		return err
	}
	ce.items = append(ce.items, items...)
	return nil
}

// ListItems returns a paginated list of conversation items.
func (s *Store) ListItems(ctx context.Context, conversationID string, opts storage.ListOptions) (*storage.ItemList, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ce, err := s.conversationLocked(ctx, conversationID)
	if err != nil {
		return nil, err
	}

	items := ce.items
	if opts.Order == "desc" {
		reversed := make([]api.Item, len(items))
		for i, item := range items {
			reversed[len(items)-1-i] = item
		}
		items = reversed
	}
	return paginateItems(items, opts), nil
}

// DeleteConversation removes a conversation and its items.
func (s *Store) DeleteConversation(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.conversationLocked(ctx, id); err != nil {
		return err
	}
	delete(s.convs, id)
	return nil
}

// conversationLocked looks up a conversation with tenant scoping.
// Must be called with s.mu held.
func (s *Store) conversationLocked(ctx context.Context, id string) (*convEntry, error) {
	ce, ok := s.convs[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	if tenantID := storage.GetTenant(ctx); tenantID != "" && ce.tenantID != tenantID {
		return nil, storage.ErrNotFound
	}
	return ce, nil
}

// paginateItems applies cursor pagination and limits to an item slice.
func paginateItems(items []api.Item, opts storage.ListOptions) *storage.ItemList {
	if opts.After != "" {
		idx := -1
		for i, item := range items {
			if item.ID == opts.After {
				idx = i
				break
			}
		}
		if idx >= 0 {
			items = items[idx+1:]
		} else {
			items = nil
		}
	} else if opts.Before != "" {
		idx := -1
		for i, item := range items {
			if item.ID == opts.Before {
				idx = i
				break
			}
		}
		if idx > 0 {
			items = items[:idx]
		} else {
			items = nil
		}
	}

	limit := normalizeLimit(opts.Limit)
	hasMore := len(items) > limit
	if hasMore {
		items = items[:limit]
	}

	result := &storage.ItemList{
		Object:  "list",
		Data:    items,
		HasMore: hasMore,
	}
	if len(items) > 0 {
		result.FirstID = items[0].ID
		result.LastID = items[len(items)-1].ID
	}
	if result.Data == nil {
		result.Data = []api.Item{}
	}
	return result
}

// normalizeLimit clamps a requested page size to [1, 100], defaulting to 20.
func normalizeLimit(limit int) int {
	if limit <= 0 {
		return 20
	}
	if limit > 100 {
		return 100
	}
	return limit
}

// evictOldest removes the least recently used response entry.
// Must be called with s.mu held.
func (s *Store) evictOldest() {
	back := s.lruList.Back()
	if back == nil {
		return
	}

	id := back.Value.(string)
	s.lruList.Remove(back)
	delete(s.entries, id)
}
