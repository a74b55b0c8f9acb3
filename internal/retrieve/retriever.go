package retrieve

import (
	"context"
	"log"
	"sort"
	"strings"

	"github.com/google/uuid"

	"kbase/internal/domain"
	"kbase/internal/embedding"
	"kbase/internal/rerank"
	"kbase/internal/vectorstore"
)

// Config tunes retrieval. The boost factor and blend weights are heuristic
// constants from the original tuning, kept configurable.
type Config struct {
	TopK           int
	BoostNamespace string
	BoostFactor    float64
	MinScore       float64
	AutoScope      bool
}

func DefaultConfig() Config {
	return Config{
		TopK:           5,
		BoostNamespace: "policies",
		BoostFactor:    1.25,
		MinScore:       0.25,
		AutoScope:      true,
	}
}

// Options narrows a single retrieval call.
type Options struct {
	TopK      int
	Namespace string            // explicit namespace; disables auto-scope
	Context   map[string]string // flattened into the query text
}

// Result is a ranked hit list plus the namespace the query resolved to.
type Result struct {
	Hits      []domain.Hit
	Namespace string
}

// BestScore returns the top hit's score, 0 when empty.
func (r Result) BestScore() float64 {
	if len(r.Hits) == 0 {
		return 0
	}
	return r.Hits[0].Score
}

// Retriever answers similarity queries over one store, blending a boosted
// namespace with the general pool. It is stateless per call.
type Retriever struct {
	store    vectorstore.Store
	embedder *embedding.Client
	reranker *rerank.Blend // nil disables reranking
	cfg      Config
}

func New(store vectorstore.Store, embedder *embedding.Client, reranker *rerank.Blend, cfg Config) *Retriever {
	if cfg.TopK <= 0 {
		cfg.TopK = DefaultConfig().TopK
	}
	if cfg.BoostFactor <= 0 {
		cfg.BoostFactor = DefaultConfig().BoostFactor
	}
	return &Retriever{store: store, embedder: embedder, reranker: reranker, cfg: cfg}
}

// Retrieve embeds the question and returns the merged, boosted, optionally
// reranked hit list. Embedding failure yields an empty result, never an
// error: the calling chat layer must always be able to fall back to a
// non-grounded answer.
func (r *Retriever) Retrieve(ctx context.Context, question string, opts Options) Result {
	if !vectorstore.Available(r.store) {
		return Result{Namespace: opts.Namespace}
	}
	queryText := buildQueryText(question, opts.Context)
	vec, err := r.embedder.EmbedOne(ctx, queryText)
	if err != nil || len(vec) == 0 {
		if err != nil {
			log.Printf("retrieve: embedding failed, returning no hits: %v", err)
		}
		return Result{Namespace: opts.Namespace}
	}

	topK := opts.TopK
	if topK <= 0 {
		topK = r.cfg.TopK
	}
	// Extra general candidates improve rerank quality.
	generalK := topK
	if r.reranker != nil {
		generalK = topK * 2
	}

	var boosted []domain.Hit
	if r.cfg.BoostNamespace != "" {
		boosted, err = r.store.Query(vec, topK, vectorstore.Options{
			Namespace:      r.cfg.BoostNamespace,
			ScoreThreshold: r.cfg.MinScore,
		})
		if err != nil {
			log.Printf("retrieve: boosted namespace query failed: %v", err)
		}
	}
	general, err := r.store.Query(vec, generalK, vectorstore.Options{
		Namespace:      opts.Namespace,
		ScoreThreshold: r.cfg.MinScore,
	})
	if err != nil {
		log.Printf("retrieve: general query failed: %v", err)
	}

	normalizeIDs(boosted)
	normalizeIDs(general)
	hits := r.merge(boosted, general)
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })

	if r.reranker != nil && len(hits) > 0 {
		hits = r.reranker.Rerank(queryText, hits, 0)
	}
	if topK < len(hits) {
		hits = hits[:topK]
	}
	hits = r.ensureBoostedSurvives(hits, boosted, topK)

	resolved := opts.Namespace
	if r.cfg.AutoScope && opts.Namespace == "" {
		hits, resolved = autoScope(hits)
	}
	if topK < len(hits) {
		hits = hits[:topK]
	}
	return Result{Hits: hits, Namespace: resolved}
}

// merge folds both pools into one list keyed by hit identity. Boosted hits
// get their score multiplied by the boost factor; when the same id shows up
// in both pools the higher-scored version wins, keeping its first insertion
// position so ties stay deterministic.
func (r *Retriever) merge(boosted, general []domain.Hit) []domain.Hit {
	var out []domain.Hit
	index := map[string]int{}
	add := func(h domain.Hit) {
		if at, ok := index[h.ID]; ok {
			if h.Score > out[at].Score {
				out[at] = h
			}
			return
		}
		index[h.ID] = len(out)
		out = append(out, h)
	}
	for _, h := range boosted {
		h.Score *= r.cfg.BoostFactor
		add(h)
	}
	for _, h := range general {
		add(h)
	}
	return out
}

// normalizeIDs gives every hit a stable identity: explicit id, else title,
// else a synthesized one.
func normalizeIDs(hits []domain.Hit) {
	for i := range hits {
		if hits[i].ID != "" {
			continue
		}
		if hits[i].Title != "" {
			hits[i].ID = hits[i].Title
			continue
		}
		hits[i].ID = uuid.NewString()
	}
}

// ensureBoostedSurvives forces the best boosted hit back in at rank 1 when
// the boosted namespace produced hits but reranking (or truncation) dropped
// them all. A boosted hit that survived merged into its general-pool twin
// counts as surviving.
func (r *Retriever) ensureBoostedSurvives(hits, boosted []domain.Hit, topK int) []domain.Hit {
	if len(boosted) == 0 {
		return hits
	}
	boostedIDs := make(map[string]bool, len(boosted))
	for _, h := range boosted {
		boostedIDs[h.ID] = true
	}
	for _, h := range hits {
		if boostedIDs[h.ID] {
			return hits
		}
	}
	best := boosted[0]
	for _, h := range boosted[1:] {
		if h.Score > best.Score {
			best = h
		}
	}
	best.Score *= r.cfg.BoostFactor
	hits = append([]domain.Hit{best}, hits...)
	if topK < len(hits) {
		hits = hits[:topK]
	}
	return hits
}

// autoScope narrows the hits to the single best non-global namespace.
// Fallback tiers: best non-global namespace, then global-only hits, then
// the single best hit regardless of namespace.
func autoScope(hits []domain.Hit) ([]domain.Hit, string) {
	if len(hits) == 0 {
		return hits, ""
	}
	bestNS := ""
	bestScore := 0.0
	for _, h := range hits {
		if h.Namespace == "" {
			continue
		}
		if bestNS == "" || h.Score > bestScore {
			bestNS = h.Namespace
			bestScore = h.Score
		}
	}
	if bestNS != "" {
		var scoped []domain.Hit
		for _, h := range hits {
			if h.Namespace == bestNS {
				scoped = append(scoped, h)
			}
		}
		return scoped, bestNS
	}
	var global []domain.Hit
	for _, h := range hits {
		if h.Namespace == "" {
			global = append(global, h)
		}
	}
	if len(global) > 0 {
		return global, ""
	}
	return hits[:1], hits[0].Namespace
}

// buildQueryText appends flattened context pairs to the question in a
// stable key order.
func buildQueryText(question string, contextPairs map[string]string) string {
	if len(contextPairs) == 0 {
		return question
	}
	keys := make([]string, 0, len(contextPairs))
	for k := range contextPairs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	b.WriteString(question)
	for _, k := range keys {
		b.WriteString("\n")
		b.WriteString(k)
		b.WriteString(": ")
		b.WriteString(contextPairs[k])
	}
	return b.String()
}
