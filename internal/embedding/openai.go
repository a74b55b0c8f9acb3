package embedding

import (
	"context"
	"errors"
	"fmt"
	"os"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIProvider embeds text through an OpenAI-compatible embeddings API.
type OpenAIProvider struct {
	client *openai.Client
	model  string
	dim    int
}

// OpenAIConfig configures the remote embeddings provider. APIKeyEnv names
// the environment variable holding the key; BaseURL may point at any
// OpenAI-compatible server.
type OpenAIConfig struct {
	BaseURL   string
	APIKeyEnv string
	Model     string
}

func NewOpenAIProvider(cfg OpenAIConfig) (*OpenAIProvider, error) {
	if cfg.APIKeyEnv == "" {
		cfg.APIKeyEnv = "OPENAI_API_KEY"
	}
	key := os.Getenv(cfg.APIKeyEnv)
	if key == "" {
		return nil, fmt.Errorf("missing API key in env %s", cfg.APIKeyEnv)
	}
	if cfg.Model == "" {
		cfg.Model = "text-embedding-3-small"
	}
	cc := openai.DefaultConfig(key)
	if cfg.BaseURL != "" {
		cc.BaseURL = cfg.BaseURL
	}
	return &OpenAIProvider{
		client: openai.NewClientWithConfig(cc),
		model:  cfg.Model,
	}, nil
}

// Name returns the identifier of this embedder implementation.
func (p *OpenAIProvider) Name() string { return "openai-" + p.model }

// Dim reports the dimension observed on the first successful batch, 0 before.
func (p *OpenAIProvider) Dim() int { return p.dim }

// Embed requests embeddings for the whole batch in a single API call.
func (p *OpenAIProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	resp, err := p.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Model: openai.EmbeddingModel(p.model),
		Input: texts,
	})
	if err != nil {
		return nil, err
	}
	if len(resp.Data) != len(texts) {
		return nil, errors.New("embedding count does not match input batch")
	}
	out := make([][]float32, len(resp.Data))
	for i, d := range resp.Data {
		out[i] = d.Embedding
	}
	if p.dim == 0 && len(out) > 0 {
		p.dim = len(out[0])
	}
	return out, nil
}
