// Package postgres provides PostgreSQL implementations of
// storage.ResponseStore and storage.ConversationStore. It uses pgx/v5 for
// connection pooling and JSONB for structured payloads.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dirigent-dev/dirigent/pkg/api"
	"github.com/dirigent-dev/dirigent/pkg/provider"
	"github.com/dirigent-dev/dirigent/pkg/storage"
)

// Store is a PostgreSQL-backed response and conversation store.
type Store struct {
	pool *pgxpool.Pool
}

var (
	_ storage.ResponseStore     = (*Store)(nil)
	_ storage.ConversationStore = (*Store)(nil)
)

// New creates a new PostgreSQL store with the given configuration.
// If MigrateOnStart is true, schema migrations are applied automatically.
func New(ctx context.Context, cfg Config) (*Store, error) {
	cfg.defaults()

	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parsing DSN: %w", err)
	}

	poolCfg.MaxConns = cfg.MaxConns
	poolCfg.MinConns = cfg.MinConns
	poolCfg.MaxConnLifetime = cfg.MaxConnLifetime

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	// Verify connectivity.
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	s := &Store{pool: pool}

	if cfg.MigrateOnStart {
		if err := s.migrate(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("running migrations: %w", err)
		}
	}

	return s, nil
}

// SaveResponse persists a terminal response record: the response payload,
// its input-item list, and the raw provider messages for chaining.
func (s *Store) SaveResponse(ctx context.Context, rec *storage.StoredResponse) error {
	tenantID := storage.GetTenant(ctx)
	resp := rec.Response

	payloadJSON, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("marshaling response: %w", err)
	}

	inputJSON, err := json.Marshal(rec.Input)
	if err != nil {
		return fmt.Errorf("marshaling input: %w", err)
	}

	var messagesJSON []byte
	if rec.Messages != nil {
		messagesJSON, err = json.Marshal(rec.Messages)
		if err != nil {
			return fmt.Errorf("marshaling messages: %w", err)
		}
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO responses (
			id, tenant_id, status, model, payload, input, messages, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`,
		resp.ID, tenantID, string(resp.Status), resp.Model,
		payloadJSON, inputJSON, nullJSON(messagesJSON), resp.CreatedAt,
	)

	if err != nil {
		if isDuplicateKey(err) {
			return storage.ErrConflict
		}
		return fmt.Errorf("inserting response: %w", err)
	}

	return nil
}

// GetResponse retrieves a response by ID, excluding soft-deleted responses.
func (s *Store) GetResponse(ctx context.Context, id string) (*api.Response, error) {
	rec, err := s.getRecord(ctx, id, true)
	if err != nil {
		return nil, err
	}
	return rec.Response, nil
}

// GetStoredResponse retrieves the full stored record for chaining,
// including soft-deleted responses so chains remain intact.
func (s *Store) GetStoredResponse(ctx context.Context, id string) (*storage.StoredResponse, error) {
	return s.getRecord(ctx, id, false)
}

// getRecord is the internal retrieval implementation.
func (s *Store) getRecord(ctx context.Context, id string, excludeDeleted bool) (*storage.StoredResponse, error) {
	tenantID := storage.GetTenant(ctx)

	query := `SELECT payload, input, messages FROM responses WHERE id = $1`
	args := []any{id}

	if excludeDeleted {
		query += " AND deleted_at IS NULL"
	}
	if tenantID != "" {
		query += fmt.Sprintf(" AND tenant_id = $%d", len(args)+1)
		args = append(args, tenantID)
	}

	var payloadJSON, inputJSON []byte
	var messagesJSON *[]byte

	err := s.pool.QueryRow(ctx, query, args...).Scan(&payloadJSON, &inputJSON, &messagesJSON)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying response: %w", err)
	}

	rec := &storage.StoredResponse{Response: &api.Response{}}
	if err := json.Unmarshal(payloadJSON, rec.Response); err != nil {
		return nil, fmt.Errorf("unmarshaling response: %w", err)
	}
	if err := json.Unmarshal(inputJSON, &rec.Input); err != nil {
		return nil, fmt.Errorf("unmarshaling input: %w", err)
	}
	if messagesJSON != nil {
		var messages []provider.ProviderMessage
		if err := json.Unmarshal(*messagesJSON, &messages); err != nil {
			return nil, fmt.Errorf("unmarshaling messages: %w", err)
		}
		rec.Messages = messages
	}

	return rec, nil
}

// DeleteResponse soft-deletes a response by setting deleted_at.
func (s *Store) DeleteResponse(ctx context.Context, id string) error {
	tenantID := storage.GetTenant(ctx)

	query := "UPDATE responses SET deleted_at = $1 WHERE id = $2 AND deleted_at IS NULL"
	args := []any{time.Now(), id}

	if tenantID != "" {
		query += " AND tenant_id = $3"
		args = append(args, tenantID)
	}

	result, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("deleting response: %w", err)
	}

	if result.RowsAffected() == 0 {
		return storage.ErrNotFound
	}

	return nil
}

// ListResponses returns a paginated list of stored responses.
func (s *Store) ListResponses(ctx context.Context, opts storage.ListOptions) (*storage.ResponseList, error) {
	tenantID := storage.GetTenant(ctx)

	var conds []string
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	conds = append(conds, "deleted_at IS NULL")
	if tenantID != "" {
		conds = append(conds, "tenant_id = "+arg(tenantID))
	}
	if opts.Model != "" {
		conds = append(conds, "model = "+arg(opts.Model))
	}

	asc := opts.Order == "asc"
	cmp, dir := "<", "DESC"
	if asc {
		cmp, dir = ">", "ASC"
	}

	// Cursor rows are located by the (created_at, id) position of the
	// referenced response.
	if opts.After != "" {
		conds = append(conds, fmt.Sprintf(
			"(created_at, id) %s (SELECT created_at, id FROM responses WHERE id = %s)",
			cmp, arg(opts.After)))
	} else if opts.Before != "" {
		rev := ">"
		if asc {
			rev = "<"
		}
		conds = append(conds, fmt.Sprintf(
			"(created_at, id) %s (SELECT created_at, id FROM responses WHERE id = %s)",
			rev, arg(opts.Before)))
	}

	limit := normalizeLimit(opts.Limit)

	query := fmt.Sprintf(`
		SELECT payload FROM responses
		WHERE %s
		ORDER BY created_at %s, id %s
		LIMIT %d
	`, strings.Join(conds, " AND "), dir, dir, limit+1)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing responses: %w", err)
	}
	defer rows.Close()

	responses := []*api.Response{}
	for rows.Next() {
		var payloadJSON []byte
		if err := rows.Scan(&payloadJSON); err != nil {
			return nil, fmt.Errorf("scanning response: %w", err)
		}
		resp := &api.Response{}
		if err := json.Unmarshal(payloadJSON, resp); err != nil {
			return nil, fmt.Errorf("unmarshaling response: %w", err)
		}
		responses = append(responses, resp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing responses: %w", err)
	}

	hasMore := len(responses) > limit
	if hasMore {
		responses = responses[:limit]
	}

	result := &storage.ResponseList{
		Object:  "list",
		Data:    responses,
		HasMore: hasMore,
	}
	if len(responses) > 0 {
		result.FirstID = responses[0].ID
		result.LastID = responses[len(responses)-1].ID
	}

	return result, nil
}

// ListInputItems returns a paginated list of input items for a stored response.
func (s *Store) ListInputItems(ctx context.Context, responseID string, opts storage.ListOptions) (*storage.ItemList, error) {
	rec, err := s.getRecord(ctx, responseID, true)
	if err != nil {
		return nil, err
	}
	return paginateItems(rec.Input, opts), nil
}

// CreateConversation persists a new conversation.
func (s *Store) CreateConversation(ctx context.Context, conv *storage.Conversation) error {
	tenantID := storage.GetTenant(ctx)

	var metadataJSON []byte
	if conv.Metadata != nil {
		var err error
		metadataJSON, err = json.Marshal(conv.Metadata)
		if err != nil {
			return fmt.Errorf("marshaling metadata: %w", err)
		}
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO conversations (id, tenant_id, metadata, created_at)
		VALUES ($1, $2, $3, $4)
	`, conv.ID, tenantID, nullJSON(metadataJSON), conv.CreatedAt)

	if err != nil {
		if isDuplicateKey(err) {
			return storage.ErrConflict
		}
		return fmt.Errorf("inserting conversation: %w", err)
	}

	return nil
}

// GetConversation retrieves a conversation by ID.
func (s *Store) GetConversation(ctx context.Context, id string) (*storage.Conversation, error) {
	tenantID := storage.GetTenant(ctx)

	query := "SELECT id, metadata, created_at FROM conversations WHERE id = $1"
	args := []any{id}
	if tenantID != "" {
		query += " AND tenant_id = $2"
		args = append(args, tenantID)
	}

	conv := &storage.Conversation{Object: "conversation"}
	var metadataJSON *[]byte

	err := s.pool.QueryRow(ctx, query, args...).Scan(&conv.ID, &metadataJSON, &conv.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying conversation: %w", err)
	}

	if metadataJSON != nil {
		if err := json.Unmarshal(*metadataJSON, &conv.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshaling metadata: %w", err)
		}
	}

	return conv, nil
}

// AddItems appends items to a conversation in order.
func (s *Store) AddItems(ctx context.Context, conversationID string, items []api.Item) error {
	if _, err := s.GetConversation(ctx, conversationID); err != nil {
		return err
	}

	batch := &pgx.Batch{}
	for _, item := range items {
		itemJSON, err := json.Marshal(item)
		if err != nil {
			return fmt.Errorf("marshaling item: %w", err)
		}
		batch.Queue(`
			INSERT INTO conversation_items (conversation_id, item_id, item)
			VALUES ($1, $2, $3)
		`, conversationID, item.ID, itemJSON)
	}

	if err := s.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("inserting conversation items: %w", err)
	}
	return nil
}

// ListItems returns a paginated list of conversation items.
func (s *Store) ListItems(ctx context.Context, conversationID string, opts storage.ListOptions) (*storage.ItemList, error) {
	if _, err := s.GetConversation(ctx, conversationID); err != nil {
		return nil, err
	}

	dir := "ASC"
	if opts.Order == "desc" {
		dir = "DESC"
	}

	rows, err := s.pool.Query(ctx, fmt.Sprintf(`
		SELECT item FROM conversation_items
		WHERE conversation_id = $1
		ORDER BY seq %s
	`, dir), conversationID)
	if err != nil {
		return nil, fmt.Errorf("listing conversation items: %w", err)
	}
	defer rows.Close()

	var items []api.Item
	for rows.Next() {
		var itemJSON []byte
		if err := rows.Scan(&itemJSON); err != nil {
			return nil, fmt.Errorf("scanning item: %w", err)
		}
		var item api.Item
		if err := json.Unmarshal(itemJSON, &item); err != nil {
			return nil, fmt.Errorf("unmarshaling item: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing conversation items: %w", err)
	}

	return paginateItems(items, opts), nil
}

// DeleteConversation removes a conversation and its items.
func (s *Store) DeleteConversation(ctx context.Context, id string) error {
	if _, err := s.GetConversation(ctx, id); err != nil {
		return err
	}

	if _, err := s.pool.Exec(ctx,
		"DELETE FROM conversation_items WHERE conversation_id = $1", id); err != nil {
		return fmt.Errorf("deleting conversation items: %w", err)
	}
	if _, err := s.pool.Exec(ctx,
		"DELETE FROM conversations WHERE id = $1", id); err != nil {
		return fmt.Errorf("deleting conversation: %w", err)
	}
	return nil
}

// HealthCheck verifies the database connection.
func (s *Store) HealthCheck(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases the connection pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
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

// nullJSON converts nil/empty byte slices to nil for nullable JSONB columns.
func nullJSON(b []byte) *[]byte {
	if len(b) == 0 {
		return nil
	}
	return &b
}

// isDuplicateKey checks if the error is a PostgreSQL unique violation (23505).
func isDuplicateKey(err error) bool {
	return err != nil && strings.Contains(err.Error(), "23505")
}
