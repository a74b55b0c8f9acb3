package vectorstore

import (
	"math"
	"testing"
)

func TestDistanceToSimilarity_Clamped(t *testing.T) {
	cases := []struct {
		distance float64
		want     float64
	}{
		{0, 1},
		{1, 0.5},
		{2, 0},
		{-0.5, 1},  // below nominal range clamps to 1
		{3.7, 0},   // above nominal range clamps to 0
		{0.5, 0.75},
	}
	for _, c := range cases {
		got := DistanceToSimilarity(c.distance)
		if math.Abs(got-c.want) > 1e-9 {
			t.Errorf("DistanceToSimilarity(%f) = %f, want %f", c.distance, got, c.want)
		}
		if got < 0 || got > 1 {
			t.Errorf("DistanceToSimilarity(%f) = %f out of [0,1]", c.distance, got)
		}
	}
}

func TestCosineSimilarity(t *testing.T) {
	if got := CosineSimilarity([]float32{1, 0}, []float32{1, 0}); math.Abs(got-1) > 1e-6 {
		t.Errorf("identical vectors = %f, want ~1", got)
	}
	if got := CosineSimilarity([]float32{1, 0}, []float32{0, 1}); math.Abs(got) > 1e-6 {
		t.Errorf("orthogonal vectors = %f, want ~0", got)
	}
	// Zero vectors score zero instead of dividing by zero.
	if got := CosineSimilarity([]float32{0, 0}, []float32{1, 0}); got != 0 {
		t.Errorf("zero vector = %f, want 0", got)
	}
}

func TestMatchesFilter(t *testing.T) {
	meta := map[string]any{"agent": "support", "chunk_index": 3}
	if !MatchesFilter(meta, map[string]any{"agent": "support"}) {
		t.Errorf("expected agent filter to match")
	}
	if !MatchesFilter(meta, map[string]any{"chunk_index": 3}) {
		t.Errorf("expected numeric filter to match by stringified value")
	}
	if MatchesFilter(meta, map[string]any{"agent": "sales"}) {
		t.Errorf("expected mismatched filter to fail")
	}
}
