package embedding

import "context"

// Provider converts batches of text into fixed-dimension float vectors.
// Implementations must be deterministic for the same input and model.
type Provider interface {
	Name() string
	Dim() int
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}
