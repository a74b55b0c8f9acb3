package sqlite

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"sort"
	"sync"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // register pure-Go SQLite driver

	"kbase/internal/domain"
	"kbase/internal/vectorstore"
)

const schema = `
CREATE TABLE IF NOT EXISTS records (
    id        TEXT PRIMARY KEY,
    namespace TEXT NOT NULL DEFAULT '',
    source    TEXT NOT NULL DEFAULT '',
    snippet   TEXT NOT NULL DEFAULT '',
    metadata  TEXT NOT NULL DEFAULT '{}',
    dim       INTEGER NOT NULL,
    embedding BLOB NOT NULL
);
CREATE INDEX IF NOT EXISTS records_namespace_idx ON records(namespace);
CREATE INDEX IF NOT EXISTS records_source_idx ON records(source);
`

// Store delegates durable storage to an embedded SQLite database. Similarity
// is cosine; the scan computes a distance in [0,2] which Query converts to a
// similarity in [0,1]. An upsert that trips a transient engine fault resets
// the database and retries exactly once.
type Store struct {
	path string

	mu sync.Mutex
	db *sql.DB
}

// Open opens (or creates) the database at path. ":memory:" is accepted.
func Open(path string) (*Store, error) {
	s := &Store{path: path}
	if err := s.open(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) open() error {
	db, err := sql.Open("sqlite", s.path)
	if err != nil {
		return fmt.Errorf("cannot open sqlite store %s: %w", s.path, err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return fmt.Errorf("cannot ensure schema in %s: %w", s.path, err)
	}
	s.db = db
	return nil
}

// AddVectors upserts records by id. Length and dimension mismatches are
// rejected before any row is written; a transient engine failure triggers a
// reset-and-retry, once. Any engine failure during the upsert counts as
// transient, so the recovery path deletes the whole database before the
// retry: a fault that outlives the reset (disk full, locked file) costs
// every stored record, not just the failed batch.
func (s *Store) AddVectors(vectors [][]float32, metadata []map[string]any) error {
	if len(vectors) != len(metadata) {
		return domain.Validationf("vectors (%d) and metadata (%d) length mismatch", len(vectors), len(metadata))
	}
	if len(vectors) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	dim, err := s.storedDim()
	if err != nil {
		return err
	}
	for _, v := range vectors {
		if dim == 0 {
			dim = len(v)
			continue
		}
		if len(v) != dim {
			return domain.Validationf("vector dimension %d does not match store dimension %d", len(v), dim)
		}
	}

	err = s.upsert(vectors, metadata, dim)
	var transient *domain.TransientStoreError
	if errors.As(err, &transient) {
		log.Printf("sqlite store: %v, resetting and retrying once", err)
		if rerr := s.reset(); rerr != nil {
			return rerr
		}
		err = s.upsert(vectors, metadata, dim)
	}
	return err
}

func (s *Store) upsert(vectors [][]float32, metadata []map[string]any, dim int) error {
	tx, err := s.db.Begin()
	if err != nil {
		return &domain.TransientStoreError{Op: "upsert", Err: err}
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.Prepare(`INSERT OR REPLACE INTO records(id, namespace, source, snippet, metadata, dim, embedding) VALUES(?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return &domain.TransientStoreError{Op: "upsert", Err: err}
	}
	defer stmt.Close()

	for i, meta := range metadata {
		id := vectorstore.MetaString(meta, "id")
		if id == "" {
			id = uuid.NewString()
			if meta == nil {
				meta = map[string]any{}
				metadata[i] = meta
			}
			meta["id"] = id
		}
		mj, err := json.Marshal(meta)
		if err != nil {
			return domain.Validationf("metadata for %s is not serializable: %v", id, err)
		}
		snippet := domain.Snippet(vectorstore.MetaString(meta, "text"))
		if _, err := stmt.Exec(id, vectorstore.MetaString(meta, "namespace"),
			vectorstore.MetaString(meta, "source"), snippet, string(mj), dim,
			encodeEmbedding(vectors[i])); err != nil {
			return &domain.TransientStoreError{Op: "upsert", Err: err}
		}
	}
	if err := tx.Commit(); err != nil {
		return &domain.TransientStoreError{Op: "upsert", Err: err}
	}
	return nil
}

func (s *Store) storedDim() (int, error) {
	var dim int
	err := s.db.QueryRow(`SELECT dim FROM records LIMIT 1`).Scan(&dim)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, &domain.TransientStoreError{Op: "read dim", Err: err}
	}
	return dim, nil
}

// Query scans candidate rows (namespace pushed down to SQL) and converts
// each cosine distance to a clamped similarity.
func (s *Store) Query(vector []float32, topK int, opts vectorstore.Options) ([]domain.Hit, error) {
	if topK <= 0 {
		topK = 5
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	q := `SELECT metadata, embedding FROM records`
	var args []any
	if opts.Namespace != "" {
		q += ` WHERE namespace = ?`
		args = append(args, opts.Namespace)
	}
	rows, err := s.db.Query(q, args...)
	if err != nil {
		return nil, &domain.TransientStoreError{Op: "query", Err: err}
	}
	defer rows.Close()

	var hits []domain.Hit
	for rows.Next() {
		var mj string
		var blob []byte
		if err := rows.Scan(&mj, &blob); err != nil {
			return nil, &domain.TransientStoreError{Op: "query", Err: err}
		}
		var meta map[string]any
		if err := json.Unmarshal([]byte(mj), &meta); err != nil {
			continue
		}
		if len(opts.Filter) > 0 && !vectorstore.MatchesFilter(meta, opts.Filter) {
			continue
		}
		emb, err := decodeEmbedding(blob)
		if err != nil {
			continue
		}
		distance := 1 - vectorstore.CosineSimilarity(emb, vector)
		score := vectorstore.DistanceToSimilarity(distance)
		if score < opts.ScoreThreshold {
			continue
		}
		hits = append(hits, vectorstore.HitFromMetadata(meta, score))
	}
	if err := rows.Err(); err != nil {
		return nil, &domain.TransientStoreError{Op: "query", Err: err}
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if topK < len(hits) {
		hits = hits[:topK]
	}
	return hits, nil
}

// RemoveNamespace deletes every record tagged with namespace.
func (s *Store) RemoveNamespace(namespace string) (int, error) {
	return s.removeWhere("namespace", namespace)
}

// RemoveSource deletes every record ingested from source.
func (s *Store) RemoveSource(source string) (int, error) {
	return s.removeWhere("source", source)
}

func (s *Store) removeWhere(column, value string) (int, error) {
	if value == "" {
		return 0, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.db.Exec(`DELETE FROM records WHERE `+column+` = ?`, value)
	if err != nil {
		return 0, &domain.TransientStoreError{Op: "delete", Err: err}
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// NamespacePresent reports whether any record carries the namespace tag.
func (s *Store) NamespacePresent(namespace string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var one int
	err := s.db.QueryRow(`SELECT 1 FROM records WHERE namespace = ? LIMIT 1`, namespace).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, &domain.TransientStoreError{Op: "namespace check", Err: err}
	}
	return true, nil
}

// Count returns the number of stored records.
func (s *Store) Count() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM records`).Scan(&n); err != nil {
		return 0, &domain.TransientStoreError{Op: "count", Err: err}
	}
	return n, nil
}

// Save is a no-op; SQLite persists on write.
func (s *Store) Save() error { return nil }

// Reset physically deletes the database and recreates it empty.
func (s *Store) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reset()
}

func (s *Store) reset() error {
	if err := s.db.Close(); err != nil {
		return err
	}
	if s.path != ":memory:" {
		for _, suffix := range []string{"", "-wal", "-shm"} {
			if err := os.Remove(s.path + suffix); err != nil && !os.IsNotExist(err) {
				return err
			}
		}
	}
	return s.open()
}

// Close closes the underlying database.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

var _ vectorstore.Store = (*Store)(nil)
