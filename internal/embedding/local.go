package embedding

import (
	"context"
	"hash/fnv"
	"math"
	"regexp"
	"strings"
)

// LocalProvider is a deterministic feature-hashing bag-of-words embedder.
// It needs no external model, which makes it both the offline default and
// the safe execution path the client falls back to when a remote provider
// fails mid-batch.
type LocalProvider struct {
	dim          int
	tokenPattern *regexp.Regexp
}

const defaultLocalDim = 512

func NewLocalProvider(dim int) *LocalProvider {
	if dim <= 0 {
		dim = defaultLocalDim
	}
	return &LocalProvider{
		dim:          dim,
		tokenPattern: regexp.MustCompile(`\p{L}+(?:['’]\p{L}+)*|\p{N}+`),
	}
}

// Name returns the identifier of this embedder implementation.
func (p *LocalProvider) Name() string { return "local" }

// Dim returns the dimensionality of the produced embedding vectors.
func (p *LocalProvider) Dim() int { return p.dim }

// Embed hashes each token into a bucket, counts occurrences and
// L2-normalizes the result.
func (p *LocalProvider) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		vec := make([]float32, p.dim)
		for _, tok := range p.tokenPattern.FindAllString(strings.ToLower(text), -1) {
			h := fnv.New32a()
			_, _ = h.Write([]byte(tok))
			vec[int(h.Sum32())%p.dim]++
		}
		normalizeL2(vec)
		out[i] = vec
	}
	return out, nil
}

// normalizeL2 scales v to unit length in place. Zero vectors stay zero.
func normalizeL2(v []float32) {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return
	}
	inv := float32(1.0 / math.Sqrt(sum))
	for i := range v {
		v[i] *= inv
	}
}
