package flat

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/gofrs/flock"
	"github.com/google/uuid"

	"kbase/internal/domain"
	"kbase/internal/vectorstore"
)

const (
	vectorsFile = "vectors.f32"
	recordsFile = "records.json"
	lockFile    = ".save.lock"
)

// Store keeps an in-memory N×dim matrix plus a parallel metadata list,
// persisted as exactly two sibling files: a little-endian float32 blob and a
// JSON array of metadata objects. The pair is the unit of persistence; if
// either file is missing the store starts empty.
type Store struct {
	dir string

	mu      sync.RWMutex
	dim     int
	vectors [][]float32
	metas   []map[string]any
}

// Open loads the store files under dir, creating the directory lazily.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("cannot create store dir %s: %w", dir, err)
	}
	s := &Store{dir: dir}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) load() error {
	vecPath := filepath.Join(s.dir, vectorsFile)
	recPath := filepath.Join(s.dir, recordsFile)
	if _, err := os.Stat(vecPath); err != nil {
		return nil
	}
	if _, err := os.Stat(recPath); err != nil {
		return nil
	}

	data, err := os.ReadFile(recPath)
	if err != nil {
		return fmt.Errorf("cannot read %s: %w", recPath, err)
	}
	var metas []map[string]any
	if err := json.Unmarshal(data, &metas); err != nil {
		return fmt.Errorf("invalid metadata JSON %s: %w", recPath, err)
	}

	f, err := os.Open(vecPath)
	if err != nil {
		return fmt.Errorf("cannot open %s: %w", vecPath, err)
	}
	defer f.Close()
	st, err := f.Stat()
	if err != nil {
		return err
	}
	if st.Size()%4 != 0 {
		return fmt.Errorf("vector file size is not a multiple of 4 bytes: %d", st.Size())
	}
	total := int(st.Size() / 4)
	if len(metas) == 0 {
		if total != 0 {
			return fmt.Errorf("vector file holds %d floats but metadata list is empty", total)
		}
		return nil
	}
	if total%len(metas) != 0 {
		return fmt.Errorf("vector file size mismatch: %d floats for %d records", total, len(metas))
	}
	dim := total / len(metas)

	flat := make([]float32, total)
	if err := binary.Read(io.LimitReader(f, st.Size()), binary.LittleEndian, flat); err != nil {
		return fmt.Errorf("cannot read vectors from %s: %w", vecPath, err)
	}
	vectors := make([][]float32, len(metas))
	for i := range metas {
		vectors[i] = flat[i*dim : (i+1)*dim]
	}

	s.dim = dim
	s.vectors = vectors
	s.metas = metas
	return nil
}

// AddVectors appends records. Vectors and metadata must have equal length
// and a dimension matching the store's; on any mismatch the store is left
// unchanged.
func (s *Store) AddVectors(vectors [][]float32, metadata []map[string]any) error {
	if len(vectors) != len(metadata) {
		return domain.Validationf("vectors (%d) and metadata (%d) length mismatch", len(vectors), len(metadata))
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	dim := s.dim
	for _, v := range vectors {
		if dim == 0 {
			dim = len(v)
			continue
		}
		if len(v) != dim {
			return domain.Validationf("vector dimension %d does not match store dimension %d", len(v), dim)
		}
	}
	for i, meta := range metadata {
		if vectorstore.MetaString(meta, "id") == "" {
			if meta == nil {
				meta = map[string]any{}
				metadata[i] = meta
			}
			meta["id"] = uuid.NewString()
		}
	}
	s.dim = dim
	s.vectors = append(s.vectors, vectors...)
	s.metas = append(s.metas, metadata...)
	return nil
}

// Query scores candidate rows with cosine similarity. Namespace and filter
// predicates run before the dot product; non-positive scores are excluded.
func (s *Store) Query(vector []float32, topK int, opts vectorstore.Options) ([]domain.Hit, error) {
	if topK <= 0 {
		topK = 5
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var hits []domain.Hit
	for i, meta := range s.metas {
		if opts.Namespace != "" && vectorstore.MetaString(meta, "namespace") != opts.Namespace {
			continue
		}
		if len(opts.Filter) > 0 && !vectorstore.MatchesFilter(meta, opts.Filter) {
			continue
		}
		score := vectorstore.CosineSimilarity(s.vectors[i], vector)
		if score <= 0 || score < opts.ScoreThreshold {
			continue
		}
		hits = append(hits, vectorstore.HitFromMetadata(meta, score))
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if topK < len(hits) {
		hits = hits[:topK]
	}
	return hits, nil
}

// RemoveNamespace deletes every record tagged with namespace. Removing a
// namespace nobody used is a no-op, not an error.
func (s *Store) RemoveNamespace(namespace string) (int, error) {
	return s.removeWhere("namespace", namespace)
}

// RemoveSource deletes every record ingested from source.
func (s *Store) RemoveSource(source string) (int, error) {
	return s.removeWhere("source", source)
}

func (s *Store) removeWhere(key, value string) (int, error) {
	if value == "" {
		return 0, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var keptVecs [][]float32
	var keptMetas []map[string]any
	removed := 0
	for i, meta := range s.metas {
		if vectorstore.MetaString(meta, key) == value {
			removed++
			continue
		}
		keptVecs = append(keptVecs, s.vectors[i])
		keptMetas = append(keptMetas, meta)
	}
	s.vectors = keptVecs
	s.metas = keptMetas
	if len(s.metas) == 0 {
		s.dim = 0
	}
	return removed, nil
}

// NamespacePresent reports whether any record carries the namespace tag.
func (s *Store) NamespacePresent(namespace string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, meta := range s.metas {
		if vectorstore.MetaString(meta, "namespace") == namespace {
			return true, nil
		}
	}
	return false, nil
}

// Count returns the number of stored records.
func (s *Store) Count() (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.metas), nil
}

// Save writes both store files. A sibling lock file serializes writers from
// other processes; the mutex serializes writers in this one.
func (s *Store) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	fl := flock.New(filepath.Join(s.dir, lockFile))
	if err := fl.Lock(); err != nil {
		return fmt.Errorf("cannot lock store dir %s: %w", s.dir, err)
	}
	defer func() { _ = fl.Unlock() }()

	flat := make([]float32, 0, len(s.vectors)*s.dim)
	for _, v := range s.vectors {
		flat = append(flat, v...)
	}
	vf, err := os.Create(filepath.Join(s.dir, vectorsFile))
	if err != nil {
		return fmt.Errorf("cannot create vectors file: %w", err)
	}
	if err := binary.Write(vf, binary.LittleEndian, flat); err != nil {
		_ = vf.Close()
		return fmt.Errorf("cannot write vectors: %w", err)
	}
	if err := vf.Close(); err != nil {
		return err
	}

	metas := s.metas
	if metas == nil {
		metas = []map[string]any{}
	}
	data, err := json.Marshal(metas)
	if err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(s.dir, recordsFile), data, 0o644); err != nil {
		return fmt.Errorf("cannot write metadata: %w", err)
	}
	return nil
}

// Reset deletes the persisted pair and clears memory.
func (s *Store) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, name := range []string{vectorsFile, recordsFile} {
		if err := os.Remove(filepath.Join(s.dir, name)); err != nil && !os.IsNotExist(err) {
			return err
		}
	}
	s.dim = 0
	s.vectors = nil
	s.metas = nil
	return nil
}

// Close persists pending state.
func (s *Store) Close() error { return s.Save() }

var _ vectorstore.Store = (*Store)(nil)
