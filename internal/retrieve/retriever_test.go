package retrieve

import (
	"context"
	"errors"
	"testing"

	"kbase/internal/domain"
	"kbase/internal/embedding"
	"kbase/internal/rerank"
	"kbase/internal/vectorstore"
)

// stubStore serves canned hits keyed by the namespace filter.
type stubStore struct {
	byNamespace map[string][]domain.Hit
}

func (s *stubStore) AddVectors([][]float32, []map[string]any) error { return nil }

func (s *stubStore) Query(_ []float32, topK int, opts vectorstore.Options) ([]domain.Hit, error) {
	hits := s.byNamespace[opts.Namespace]
	var out []domain.Hit
	for _, h := range hits {
		if h.Score < opts.ScoreThreshold {
			continue
		}
		out = append(out, h)
	}
	if topK < len(out) {
		out = out[:topK]
	}
	return out, nil
}

func (s *stubStore) RemoveNamespace(string) (int, error)   { return 0, nil }
func (s *stubStore) RemoveSource(string) (int, error)      { return 0, nil }
func (s *stubStore) NamespacePresent(string) (bool, error) { return false, nil }
func (s *stubStore) Count() (int, error)                   { return 1, nil }
func (s *stubStore) Save() error                           { return nil }
func (s *stubStore) Reset() error                          { return nil }
func (s *stubStore) Close() error                          { return nil }

func newRetriever(store vectorstore.Store, reranker *rerank.Blend, cfg Config) *Retriever {
	return New(store, embedding.NewLocalClient(32), reranker, cfg)
}

func TestRetrieve_BoostRanksEqualScoresFirst(t *testing.T) {
	store := &stubStore{byNamespace: map[string][]domain.Hit{
		"policies": {{ID: "pol", Score: 0.6, Namespace: "policies", Snippet: "policy"}},
		"":         {{ID: "gen", Score: 0.6, Snippet: "general"}},
	}}
	cfg := DefaultConfig()
	cfg.AutoScope = false
	r := newRetriever(store, nil, cfg)

	res := r.Retrieve(context.Background(), "question", Options{})
	if len(res.Hits) != 2 {
		t.Fatalf("got %d hits, want 2", len(res.Hits))
	}
	if res.Hits[0].ID != "pol" {
		t.Errorf("boosted hit not ranked first: %+v", res.Hits)
	}
	if res.Hits[0].Score <= 0.6 {
		t.Errorf("boost factor not applied: %f", res.Hits[0].Score)
	}
}

func TestRetrieve_DuplicateIdKeepsHigherScore(t *testing.T) {
	store := &stubStore{byNamespace: map[string][]domain.Hit{
		"policies": {{ID: "same", Score: 0.4, Namespace: "policies"}},
		"":         {{ID: "same", Score: 0.9}},
	}}
	cfg := DefaultConfig()
	cfg.AutoScope = false
	r := newRetriever(store, nil, cfg)

	res := r.Retrieve(context.Background(), "question", Options{})
	if len(res.Hits) != 1 {
		t.Fatalf("duplicate id not merged: %+v", res.Hits)
	}
	// General 0.9 beats boosted 0.4*1.25 = 0.5.
	if res.Hits[0].Score != 0.9 {
		t.Errorf("kept score = %f, want 0.9", res.Hits[0].Score)
	}
}

func TestRetrieve_RerankerDegradationKeepsHitSet(t *testing.T) {
	store := &stubStore{byNamespace: map[string][]domain.Hit{
		"": {
			{ID: "a", Score: 0.8, Snippet: "alpha"},
			{ID: "b", Score: 0.6, Snippet: "beta"},
		},
	}}
	cfg := DefaultConfig()
	cfg.BoostNamespace = ""
	cfg.AutoScope = false

	broken := rerank.NewBlend(func() (rerank.Model, error) { return nil, errors.New("no model") })
	r := newRetriever(store, broken, cfg)
	res := r.Retrieve(context.Background(), "question", Options{})
	if len(res.Hits) != 2 {
		t.Fatalf("degraded reranker dropped hits: %+v", res.Hits)
	}
	ids := map[string]bool{res.Hits[0].ID: true, res.Hits[1].ID: true}
	if !ids["a"] || !ids["b"] {
		t.Errorf("hit set changed: %+v", res.Hits)
	}
}

func TestRetrieve_EmbeddingFailureReturnsEmpty(t *testing.T) {
	store := &stubStore{byNamespace: map[string][]domain.Hit{}}
	failing := embedding.NewClient(func() (embedding.Provider, error) {
		return nil, errors.New("backend gone")
	}, nil)
	r := New(store, failing, nil, DefaultConfig())

	res := r.Retrieve(context.Background(), "question", Options{})
	if len(res.Hits) != 0 {
		t.Errorf("expected empty result on embedding failure, got %+v", res.Hits)
	}
}

func TestRetrieve_BoostedHitSurvivesRerank(t *testing.T) {
	store := &stubStore{byNamespace: map[string][]domain.Hit{
		"policies": {{ID: "pol", Score: 0.3, Namespace: "policies", Snippet: "unrelated policy text"}},
		"": {
			{ID: "g1", Score: 0.9, Snippet: "cats cats cats"},
			{ID: "g2", Score: 0.8, Snippet: "cats and more cats"},
		},
	}}
	cfg := DefaultConfig()
	cfg.MinScore = 0
	cfg.AutoScope = false
	cfg.TopK = 2
	r := newRetriever(store, rerank.NewLexicalBlend(), cfg)

	res := r.Retrieve(context.Background(), "cats", Options{})
	if len(res.Hits) == 0 {
		t.Fatal("no hits")
	}
	if res.Hits[0].ID != "pol" {
		t.Errorf("boosted hit not re-inserted at rank 1: %+v", res.Hits)
	}
	if len(res.Hits) > 2 {
		t.Errorf("topK not enforced: %d hits", len(res.Hits))
	}
}

func TestRetrieve_AutoScopeNarrowsToBestNamespace(t *testing.T) {
	store := &stubStore{byNamespace: map[string][]domain.Hit{
		"": {
			{ID: "h1", Score: 0.9, Namespace: "howto"},
			{ID: "g1", Score: 0.7},
			{ID: "b1", Score: 0.5, Namespace: "billing"},
		},
	}}
	cfg := DefaultConfig()
	cfg.BoostNamespace = ""
	r := newRetriever(store, nil, cfg)

	res := r.Retrieve(context.Background(), "question", Options{})
	if res.Namespace != "howto" {
		t.Fatalf("resolved namespace = %q, want howto", res.Namespace)
	}
	for _, h := range res.Hits {
		if h.Namespace != "howto" {
			t.Errorf("auto-scope leaked hit from %q", h.Namespace)
		}
	}
}

func TestRetrieve_AutoScopeFallsBackToGlobal(t *testing.T) {
	store := &stubStore{byNamespace: map[string][]domain.Hit{
		"": {
			{ID: "g1", Score: 0.7},
			{ID: "g2", Score: 0.6},
		},
	}}
	cfg := DefaultConfig()
	cfg.BoostNamespace = ""
	r := newRetriever(store, nil, cfg)

	res := r.Retrieve(context.Background(), "question", Options{})
	if res.Namespace != "" || len(res.Hits) != 2 {
		t.Errorf("global fallback failed: ns=%q hits=%+v", res.Namespace, res.Hits)
	}
}

func TestRetrieve_ExplicitNamespaceDisablesAutoScope(t *testing.T) {
	store := &stubStore{byNamespace: map[string][]domain.Hit{
		"billing": {{ID: "b1", Score: 0.8, Namespace: "billing"}},
	}}
	cfg := DefaultConfig()
	cfg.BoostNamespace = ""
	r := newRetriever(store, nil, cfg)

	res := r.Retrieve(context.Background(), "question", Options{Namespace: "billing"})
	if res.Namespace != "billing" || len(res.Hits) != 1 {
		t.Errorf("explicit namespace query failed: %+v", res)
	}
}

func TestBuildQueryText_FlattensContext(t *testing.T) {
	got := buildQueryText("question", map[string]string{"b": "2", "a": "1"})
	want := "question\na: 1\nb: 2"
	if got != want {
		t.Errorf("buildQueryText = %q, want %q", got, want)
	}
}
