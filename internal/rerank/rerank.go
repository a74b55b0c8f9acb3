package rerank

import (
	"log"
	"sort"
	"sync"

	"kbase/internal/domain"
)

// Default blend weights: the rerank score dominates but the original
// similarity is never fully discarded. Heuristic values, configurable.
const (
	DefaultOriginalWeight = 0.3
	DefaultRerankWeight   = 0.7
)

// Model scores (query, text) pairs for relevance.
type Model interface {
	Score(query string, texts []string) []float64
}

// Blend is a second-pass reranker that mixes the model's relevance score
// with the original similarity. The model loads lazily on first use; a load
// failure degrades to returning hits unchanged, never an error.
type Blend struct {
	newModel func() (Model, error)

	once    sync.Once
	model   Model
	loadErr error

	OriginalWeight float64
	RerankWeight   float64
}

func NewBlend(newModel func() (Model, error)) *Blend {
	return &Blend{
		newModel:       newModel,
		OriginalWeight: DefaultOriginalWeight,
		RerankWeight:   DefaultRerankWeight,
	}
}

// NewLexicalBlend builds a blend over the built-in lexical model.
func NewLexicalBlend() *Blend {
	return NewBlend(func() (Model, error) { return NewLexicalModel(), nil })
}

// Rerank rescores hits and reorders them by the blended score, truncating
// to topK when positive.
func (b *Blend) Rerank(query string, hits []domain.Hit, topK int) []domain.Hit {
	if len(hits) == 0 {
		return hits
	}
	b.once.Do(func() {
		b.model, b.loadErr = b.newModel()
		if b.loadErr != nil {
			log.Printf("rerank: model load failed (%v), passing hits through", b.loadErr)
		}
	})
	if b.loadErr != nil {
		return hits
	}

	texts := make([]string, len(hits))
	for i, h := range hits {
		texts[i] = h.Snippet // empty snippet scores as empty text
	}
	scores := b.model.Score(query, texts)

	out := make([]domain.Hit, len(hits))
	copy(out, hits)
	for i := range out {
		if i < len(scores) {
			out[i].Score = out[i].Score*b.OriginalWeight + scores[i]*b.RerankWeight
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if topK > 0 && topK < len(out) {
		out = out[:topK]
	}
	return out
}
