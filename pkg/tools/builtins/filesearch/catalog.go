package filesearch

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"
)

// Store is the metadata record for one vector store. The vectors
// themselves live in the external index under Collection.
type Store struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	TenantID   string `json:"tenant_id,omitempty"`
	Collection string `json:"collection_name"`
	CreatedAt  int64  `json:"created_at"`
}

// Catalog holds store records in memory, keyed by ID.
type Catalog struct {
	mu      sync.RWMutex
	records map[string]*Store
}

func NewCatalog() *Catalog {
	return &Catalog{records: make(map[string]*Store)}
}

// Add registers a store record, assigning a "vs_" ID when none is set.
func (c *Catalog) Add(s *Store) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if s.ID == "" {
		id, err := newID("vs_")
		if err != nil {
			return fmt.Errorf("generating store ID: %w", err)
		}
		s.ID = id
	}
	if _, taken := c.records[s.ID]; taken {
		return fmt.Errorf("vector store %q already exists", s.ID)
	}
	c.records[s.ID] = s
	return nil
}

// Get returns the store with the given ID.
func (c *Catalog) Get(id string) (*Store, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	s, ok := c.records[id]
	if !ok {
		return nil, fmt.Errorf("vector store %q not found", id)
	}
	return s, nil
}

// ForTenant returns every store owned by the tenant. An empty tenant ID
// matches all stores, which is the single-tenant deployment mode.
func (c *Catalog) ForTenant(tenantID string) []*Store {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var out []*Store
	for _, s := range c.records {
		if tenantID == "" || s.TenantID == tenantID {
			out = append(out, s)
		}
	}
	return out
}

// Remove deletes the store record.
func (c *Catalog) Remove(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.records[id]; !ok {
		return fmt.Errorf("vector store %q not found", id)
	}
	delete(c.records, id)
	return nil
}

func newID(prefix string) (string, error) {
	b := make([]byte, 12)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return prefix + hex.EncodeToString(b), nil
}
