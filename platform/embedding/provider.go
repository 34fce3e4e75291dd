// Package embedding holds the concrete embedding providers. One is chosen
// at startup; callers only see Provider.
package embedding

import (
	"context"
	"fmt"

	"knowledge_backend/config"
)

type Provider interface {
	// Embed returns one raw vector per text, in input order.
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	Name() string
	// Model identifies the vector space; vectors from different models never mix.
	Model() string
	// MaxBatch is the largest number of texts accepted per Embed call.
	MaxBatch() int
}

func NewProvider(cfg *config.Config) (Provider, error) {
	switch cfg.EmbeddingProvider {
	case "local":
		return NewHashEmbedder(cfg.EmbeddingDim), nil
	case "openai", "":
		return NewOpenAIClient(OpenAIConfig{
			BaseURL:    cfg.EmbeddingBaseURL,
			APIKey:     cfg.EmbeddingAPIKey,
			Model:      cfg.EmbeddingModel,
			Dimensions: cfg.EmbeddingDim,
			BatchSize:  cfg.EmbeddingBatchSize,
		}), nil
	default:
		return nil, fmt.Errorf("unsupported embedding provider %q", cfg.EmbeddingProvider)
	}
}
