package flat

import (
	"errors"
	"math"
	"testing"

	"kbase/internal/domain"
	"kbase/internal/vectorstore"
)

func meta(id, ns, source, text string) map[string]any {
	m := map[string]any{"id": id, "text": text, "source": source}
	if ns != "" {
		m["namespace"] = ns
	}
	return m
}

func TestStore_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	vecs := [][]float32{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}}
	metas := []map[string]any{
		meta("a", "", "src", "alpha"),
		meta("b", "", "src", "beta"),
		meta("c", "", "src", "gamma"),
	}
	if err := s.AddVectors(vecs, metas); err != nil {
		t.Fatalf("AddVectors: %v", err)
	}
	if err := s.Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}

	reopened, err := Open(dir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	n, _ := reopened.Count()
	if n != 3 {
		t.Fatalf("reopened count = %d, want 3", n)
	}
	hits, err := reopened.Query([]float32{0, 1, 0}, 1, vectorstore.Options{})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(hits) != 1 || hits[0].ID != "b" {
		t.Fatalf("Query returned %+v, want record b", hits)
	}
	if math.Abs(hits[0].Score-1.0) > 1e-6 {
		t.Errorf("self-similarity = %f, want ~1.0", hits[0].Score)
	}
}

func TestStore_DimensionGuard(t *testing.T) {
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := s.AddVectors([][]float32{{1, 0}}, []map[string]any{meta("a", "", "s", "t")}); err != nil {
		t.Fatalf("AddVectors: %v", err)
	}
	err = s.AddVectors([][]float32{{1, 0, 0}}, []map[string]any{meta("b", "", "s", "t")})
	var ve *domain.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError for dim mismatch, got %v", err)
	}
	if n, _ := s.Count(); n != 1 {
		t.Errorf("store changed after rejected add: count=%d", n)
	}
}

func TestStore_LengthMismatch(t *testing.T) {
	s, _ := Open(t.TempDir())
	err := s.AddVectors([][]float32{{1, 0}}, nil)
	var ve *domain.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError for length mismatch, got %v", err)
	}
}

func TestStore_NamespaceFilterAndRemove(t *testing.T) {
	s, _ := Open(t.TempDir())
	vecs := [][]float32{{1, 0}, {1, 0}, {0, 1}}
	metas := []map[string]any{
		meta("p1", "policies", "pol", "policy text"),
		meta("g1", "", "gen", "general text"),
		meta("g2", "howto", "gen", "other text"),
	}
	if err := s.AddVectors(vecs, metas); err != nil {
		t.Fatalf("AddVectors: %v", err)
	}

	hits, err := s.Query([]float32{1, 0}, 10, vectorstore.Options{Namespace: "policies"})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(hits) != 1 || hits[0].ID != "p1" {
		t.Fatalf("namespace query = %+v, want only p1", hits)
	}

	present, _ := s.NamespacePresent("howto")
	if !present {
		t.Errorf("howto namespace should be present")
	}
	removed, err := s.RemoveNamespace("howto")
	if err != nil || removed != 1 {
		t.Fatalf("RemoveNamespace = (%d, %v), want (1, nil)", removed, err)
	}
	present, _ = s.NamespacePresent("howto")
	if present {
		t.Errorf("howto namespace should be gone")
	}
	// Removing again is a no-op.
	removed, err = s.RemoveNamespace("howto")
	if err != nil || removed != 0 {
		t.Errorf("second RemoveNamespace = (%d, %v), want (0, nil)", removed, err)
	}
}

func TestStore_RemoveSourceKeepsReingestionIdempotent(t *testing.T) {
	s, _ := Open(t.TempDir())
	add := func() {
		vecs := [][]float32{{1, 0}, {0, 1}}
		metas := []map[string]any{
			meta("f-0", "", "f.csv", "row one"),
			meta("f-1", "", "f.csv", "row two"),
		}
		if err := s.AddVectors(vecs, metas); err != nil {
			t.Fatalf("AddVectors: %v", err)
		}
	}
	add()
	if _, err := s.RemoveSource("f.csv"); err != nil {
		t.Fatalf("RemoveSource: %v", err)
	}
	add()
	if n, _ := s.Count(); n != 2 {
		t.Errorf("count after re-ingest = %d, want 2", n)
	}
}

func TestStore_QueryExcludesNonPositiveScores(t *testing.T) {
	s, _ := Open(t.TempDir())
	vecs := [][]float32{{-1, 0}, {0, 0}}
	metas := []map[string]any{meta("neg", "", "s", "t"), meta("zero", "", "s", "t")}
	if err := s.AddVectors(vecs, metas); err != nil {
		t.Fatalf("AddVectors: %v", err)
	}
	hits, err := s.Query([]float32{1, 0}, 10, vectorstore.Options{})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(hits) != 0 {
		t.Errorf("expected no hits for non-positive scores, got %+v", hits)
	}
}

func TestStore_ScoreThreshold(t *testing.T) {
	s, _ := Open(t.TempDir())
	vecs := [][]float32{{1, 0}, {1, 1}}
	metas := []map[string]any{meta("exact", "", "s", "t"), meta("diag", "", "s", "t")}
	if err := s.AddVectors(vecs, metas); err != nil {
		t.Fatalf("AddVectors: %v", err)
	}
	hits, err := s.Query([]float32{1, 0}, 10, vectorstore.Options{ScoreThreshold: 0.9})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(hits) != 1 || hits[0].ID != "exact" {
		t.Errorf("threshold query = %+v, want only exact", hits)
	}
}

func TestStore_ResetClearsPersistedPair(t *testing.T) {
	dir := t.TempDir()
	s, _ := Open(dir)
	if err := s.AddVectors([][]float32{{1}}, []map[string]any{meta("a", "", "s", "t")}); err != nil {
		t.Fatalf("AddVectors: %v", err)
	}
	if err := s.Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := s.Reset(); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	reopened, err := Open(dir)
	if err != nil {
		t.Fatalf("reopen after reset: %v", err)
	}
	if n, _ := reopened.Count(); n != 0 {
		t.Errorf("count after reset = %d, want 0", n)
	}
}
