package filesearch

import "context"

// VectorIndex abstracts the external vector database. The gateway never
// computes similarity itself; it only manages collections and issues
// nearest-neighbor queries.
type VectorIndex interface {
	// EnsureCollection creates a collection sized for the given vector
	// dimensionality.
	EnsureCollection(ctx context.Context, name string, dims int) error

	// DropCollection removes a collection and its vectors.
	DropCollection(ctx context.Context, name string) error

	// Query returns the closest matches to the vector, at most limit.
	Query(ctx context.Context, collection string, vector []float32, limit int) ([]Match, error)
}

// Match is one scored document chunk returned by a vector query.
type Match struct {
	DocID string
	Score float32
	Text  string
	// Attrs carries string payload fields other than the chunk text,
	// e.g. "filename".
	Attrs map[string]string
}
