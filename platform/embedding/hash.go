package embedding

import (
	"context"
	"hash/fnv"
	"math"
	"regexp"
	"strings"
	"unicode"
)

var tokenPattern = regexp.MustCompile(`\p{Han}|\p{L}+(?:['’]\p{L}+)*|\p{N}+`)

// HashEmbedder is a deterministic, network-free embedder: unigrams and
// bigrams are hashed into dim signed buckets with sublinear term weights.
// Good enough for development and tests, not for semantic recall.
type HashEmbedder struct {
	dim int
}

func NewHashEmbedder(dim int) *HashEmbedder {
	if dim <= 0 {
		dim = 768
	}
	return &HashEmbedder{dim: dim}
}

func (e *HashEmbedder) Name() string { return "local-hash" }

func (e *HashEmbedder) Model() string { return "fnv-bigram" }

func (e *HashEmbedder) MaxBatch() int { return 256 }

func (e *HashEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out[i] = e.vector(t)
	}
	return out, nil
}

func (e *HashEmbedder) vector(text string) []float32 {
	tokens := tokenize(text)
	counts := make(map[string]int, len(tokens)*2)
	for i, tok := range tokens {
		counts[tok]++
		if i > 0 {
			counts[tokens[i-1]+" "+tok]++
		}
	}

	v := make([]float32, e.dim)
	for term, n := range counts {
		h := fnv.New64a()
		_, _ = h.Write([]byte(term))
		sum := h.Sum64()
		bucket := int(sum % uint64(e.dim))
		weight := float32(1 + math.Log(float64(n)))
		if sum&(1<<63) != 0 {
			weight = -weight
		}
		v[bucket] += weight
	}
	return v
}

func tokenize(text string) []string {
	raw := tokenPattern.FindAllString(strings.ToLower(text), -1)
	tokens := raw[:0]
	for _, t := range raw {
		if len([]rune(t)) == 1 && !unicode.Is(unicode.Han, []rune(t)[0]) && !unicode.IsDigit([]rune(t)[0]) {
			continue
		}
		tokens = append(tokens, t)
	}
	return tokens
}
