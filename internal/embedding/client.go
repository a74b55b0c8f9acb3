package embedding

import (
	"context"
	"log"
	"sync"

	"kbase/internal/domain"
)

// Client orchestrates embedding calls for the engine. The primary provider
// is constructed lazily on the first non-empty batch and cached for the
// process lifetime. When the primary fails to initialize or to embed a
// batch, the same batch is retried exactly once on the fallback provider;
// a second failure surfaces as a ModelUnavailableError.
type Client struct {
	newPrimary func() (Provider, error)
	fallback   Provider

	initOnce sync.Once
	primary  Provider
	initErr  error

	mu  sync.Mutex
	dim int
}

// NewClient builds a client from a primary constructor and an optional
// fallback. The constructor runs once, on first use.
func NewClient(newPrimary func() (Provider, error), fallback Provider) *Client {
	return &Client{newPrimary: newPrimary, fallback: fallback}
}

// NewLocalClient returns a client that only uses the deterministic local
// provider. Useful for tests and offline setups.
func NewLocalClient(dim int) *Client {
	p := NewLocalProvider(dim)
	return NewClient(func() (Provider, error) { return p, nil }, nil)
}

// Dim reports the dimension fixed by the first successful batch, 0 before.
func (c *Client) Dim() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dim
}

// Embed converts the batch into vectors. An empty batch returns an empty
// result without touching any model.
func (c *Client) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	c.initOnce.Do(func() {
		c.primary, c.initErr = c.newPrimary()
	})

	var vecs [][]float32
	var err error
	name := "embedder"
	if c.initErr != nil {
		err = c.initErr
	} else {
		name = c.primary.Name()
		vecs, err = c.primary.Embed(ctx, texts)
	}
	if err != nil && c.fallback != nil {
		log.Printf("embedding: %s failed (%v), retrying batch on %s", name, err, c.fallback.Name())
		vecs, err = c.fallback.Embed(ctx, texts)
		name = c.fallback.Name()
	}
	if err != nil {
		return nil, &domain.ModelUnavailableError{Model: name, Err: err}
	}

	c.mu.Lock()
	if c.dim == 0 && len(vecs) > 0 {
		c.dim = len(vecs[0])
	}
	c.mu.Unlock()
	return vecs, nil
}

// EmbedOne is a convenience wrapper for single-text callers.
func (c *Client) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	vecs, err := c.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vecs) == 0 {
		return nil, nil
	}
	return vecs[0], nil
}
