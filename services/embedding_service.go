package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"time"

	"knowledge_backend/pkg/logging"
	"knowledge_backend/platform/cache"
	"knowledge_backend/platform/embedding"
)

const minNorm = 1e-10

// Embedder turns texts into unit vectors of a fixed dimension.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() int
}

// QueryEmbedder embeds a single search query.
type QueryEmbedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

type EmbeddingService struct {
	provider   embedding.Provider
	dim        int
	queryCache *cache.TypedCache[[]float32]
	cacheTTL   time.Duration
}

// NewEmbeddingService wraps provider. A nil cacheService disables query
// caching.
func NewEmbeddingService(provider embedding.Provider, dim int, cacheService cache.CacheService, cacheTTL time.Duration) *EmbeddingService {
	s := &EmbeddingService{provider: provider, dim: dim, cacheTTL: cacheTTL}
	if cacheService != nil && cacheTTL > 0 {
		s.queryCache = cache.NewTypedCache[[]float32](cacheService, "embedding:query")
	}
	return s
}

func (s *EmbeddingService) Dimension() int {
	return s.dim
}

// Embed returns one normalized vector per text, in input order.
func (s *EmbeddingService) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	batch := s.provider.MaxBatch()
	if batch <= 0 {
		batch = len(texts)
	}

	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += batch {
		end := min(start+batch, len(texts))
		vecs, err := s.provider.Embed(ctx, texts[start:end])
		if err != nil {
			return nil, fmt.Errorf("%s embed: %w", s.provider.Name(), err)
		}
		if len(vecs) != end-start {
			return nil, fmt.Errorf("%w: got %d embeddings for %d texts", ErrEmbeddingCountMismatch, len(vecs), end-start)
		}
		for _, v := range vecs {
			if len(v) != s.dim {
				return nil, fmt.Errorf("%w: got %d, expected %d", ErrDimensionMismatch, len(v), s.dim)
			}
			out = append(out, Normalize(v))
		}
	}
	return out, nil
}

func (s *EmbeddingService) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	load := func() ([]float32, error) {
		vecs, err := s.Embed(ctx, []string{text})
		if err != nil {
			return nil, err
		}
		return vecs[0], nil
	}
	if s.queryCache == nil {
		return load()
	}

	vec, err := s.queryCache.GetOrLoad(s.queryKey(text), s.cacheTTL, load)
	if err != nil {
		return nil, err
	}
	if len(vec) != s.dim {
		logging.Logger.Warn("discarding cached query embedding", "len", len(vec), "dim", s.dim)
		return load()
	}
	return vec, nil
}

func (s *EmbeddingService) queryKey(text string) string {
	sum := sha256.Sum256([]byte(text))
	return fmt.Sprintf("%s:%s:%d:%s", s.provider.Name(), s.provider.Model(), s.dim, hex.EncodeToString(sum[:]))
}

// Normalize returns v scaled to unit L2 length. The norm is clamped to
// 1e-10 so a zero vector stays zero.
func Normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	norm := math.Max(math.Sqrt(sum), minNorm)

	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(float64(x) / norm)
	}
	return out
}
