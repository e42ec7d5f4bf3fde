package filesearch

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/dirigent-dev/dirigent/pkg/storage"
)

// storeJSON is the OpenAI-compatible wire form of a vector store.
type storeJSON struct {
	ID        string `json:"id"`
	Object    string `json:"object"`
	Name      string `json:"name"`
	CreatedAt int64  `json:"created_at"`
}

func storeToJSON(s *Store) storeJSON {
	return storeJSON{
		ID:        s.ID,
		Object:    "vector_store",
		Name:      s.Name,
		CreatedAt: s.CreatedAt,
	}
}

func (p *Provider) handleCreateStore(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeStoreError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		writeStoreError(w, http.StatusBadRequest, "name is required")
		return
	}

	collection, err := newID("col_")
	if err != nil {
		slog.Error("failed to generate collection name", "error", err)
		writeStoreError(w, http.StatusInternalServerError, "internal error")
		return
	}

	s := &Store{
		Name:       req.Name,
		TenantID:   storage.GetTenant(r.Context()),
		Collection: collection,
		CreatedAt:  time.Now().Unix(),
	}

	// The catalog entry comes first so Add can assign the store ID.
	if err := p.catalog.Add(s); err != nil {
		slog.Error("failed to record vector store", "error", err)
		writeStoreError(w, http.StatusInternalServerError, "internal error")
		return
	}

	dims := p.embedder.Dims()
	if dims == 0 {
		// Nothing embedded yet; size for the common OpenAI models.
		dims = 1536
	}
	if err := p.index.EnsureCollection(r.Context(), collection, dims); err != nil {
		slog.Error("failed to create index collection", "error", err, "collection", collection)
		_ = p.catalog.Remove(s.ID)
		writeStoreError(w, http.StatusInternalServerError, "failed to create vector store")
		return
	}

	writeStoreJSON(w, http.StatusCreated, storeToJSON(s))
}

func (p *Provider) handleListStores(w http.ResponseWriter, r *http.Request) {
	stores := p.catalog.ForTenant(storage.GetTenant(r.Context()))

	data := make([]storeJSON, 0, len(stores))
	for _, s := range stores {
		data = append(data, storeToJSON(s))
	}

	writeStoreJSON(w, http.StatusOK, struct {
		Object string      `json:"object"`
		Data   []storeJSON `json:"data"`
	}{"list", data})
}

func (p *Provider) handleGetStore(w http.ResponseWriter, r *http.Request) {
	s, ok := p.findStore(w, r)
	if !ok {
		return
	}
	writeStoreJSON(w, http.StatusOK, storeToJSON(s))
}

func (p *Provider) handleDeleteStore(w http.ResponseWriter, r *http.Request) {
	s, ok := p.findStore(w, r)
	if !ok {
		return
	}

	if err := p.index.DropCollection(r.Context(), s.Collection); err != nil {
		slog.Error("failed to drop index collection", "error", err, "collection", s.Collection)
		writeStoreError(w, http.StatusInternalServerError, "failed to delete vector store")
		return
	}
	if err := p.catalog.Remove(s.ID); err != nil {
		slog.Error("failed to remove vector store record", "error", err, "store_id", s.ID)
		writeStoreError(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeStoreJSON(w, http.StatusOK, map[string]any{
		"id":      s.ID,
		"object":  "vector_store.deleted",
		"deleted": true,
	})
}

// findStore resolves the {store_id} path value and enforces tenant
// ownership. Foreign-tenant stores answer 404, not 403, so store IDs
// are not probeable across tenants.
func (p *Provider) findStore(w http.ResponseWriter, r *http.Request) (*Store, bool) {
	id := r.PathValue("store_id")
	if id == "" {
		writeStoreError(w, http.StatusBadRequest, "store_id is required")
		return nil, false
	}

	s, err := p.catalog.Get(id)
	if err != nil {
		writeStoreError(w, http.StatusNotFound, "vector store not found")
		return nil, false
	}
	if tenant := storage.GetTenant(r.Context()); tenant != "" && s.TenantID != tenant {
		writeStoreError(w, http.StatusNotFound, "vector store not found")
		return nil, false
	}
	return s, true
}

func writeStoreJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeStoreError(w http.ResponseWriter, status int, message string) {
	writeStoreJSON(w, status, map[string]any{
		"error": map[string]any{
			"message": message,
			"type":    "invalid_request_error",
		},
	})
}
