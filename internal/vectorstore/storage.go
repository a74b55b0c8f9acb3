package vectorstore

import "kbase/internal/domain"

// Options narrows a similarity query.
type Options struct {
	// Namespace restricts hits to records carrying this namespace tag.
	// Empty means no restriction.
	Namespace string
	// Filter requires exact matches on additional metadata keys.
	Filter map[string]any
	// ScoreThreshold drops hits scoring below it.
	ScoreThreshold float64
}

// Store is a durable collection of (vector, metadata, text) triples.
// Both backends satisfy the same contract: vectors and metadata lists must
// have equal length and a fixed dimension per store, queries return hits
// sorted by similarity descending, and RemoveSource before re-insert keeps
// re-ingestion idempotent.
type Store interface {
	AddVectors(vectors [][]float32, metadata []map[string]any) error
	Query(vector []float32, topK int, opts Options) ([]domain.Hit, error)
	RemoveNamespace(namespace string) (int, error)
	RemoveSource(source string) (int, error)
	NamespacePresent(namespace string) (bool, error)
	Count() (int, error)
	Save() error
	Reset() error
	Close() error
}

// Available reports whether the store holds any records.
func Available(s Store) bool {
	n, err := s.Count()
	return err == nil && n > 0
}
