package vectorstore

import "math"

// cosineEpsilon guards the denominator against zero-magnitude vectors.
const cosineEpsilon = 1e-10

// CosineSimilarity computes dot(a,b) / (‖a‖·‖b‖ + ε) without erroring on
// zero vectors; a zero vector simply scores 0 against everything.
func CosineSimilarity(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var dot, na, nb float64
	for i := 0; i < n; i++ {
		x := float64(a[i])
		y := float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	return dot / (math.Sqrt(na)*math.Sqrt(nb) + cosineEpsilon)
}

// DistanceToSimilarity maps a cosine distance, nominally in [0,2], onto a
// similarity in [0,1]. Out-of-range distances clamp rather than leak
// negative or >1 scores to callers.
func DistanceToSimilarity(distance float64) float64 {
	s := 1 - distance/2
	if s < 0 {
		return 0
	}
	if s > 1 {
		return 1
	}
	return s
}
