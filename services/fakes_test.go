package services

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/pgvector/pgvector-go"
	"github.com/stretchr/testify/require"

	"knowledge_backend/platform/llm"
	"knowledge_backend/platform/storage"
)

// fakeEmbedder maps text to a 3-d vector so tests can predict ranking.
type fakeEmbedder struct {
	mu    sync.Mutex
	calls int
	err   error
	// drop removes this many vectors from every result
	drop int
	// onEmbed runs at the start of every Embed call
	onEmbed func()
}

func (f *fakeEmbedder) Dimension() int { return 3 }

func (f *fakeEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.onEmbed != nil {
		f.onEmbed()
	}
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, 0, len(texts))
	for _, t := range texts {
		out = append(out, vectorFor(t))
	}
	if f.drop > 0 && f.drop <= len(out) {
		out = out[:len(out)-f.drop]
	}
	return out, nil
}

func (f *fakeEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vecs, err := f.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func vectorFor(text string) []float32 {
	t := strings.ToLower(text)
	switch {
	case strings.Contains(t, "apple"):
		return []float32{1, 0, 0}
	case strings.Contains(t, "banana"):
		return []float32{0, 1, 0}
	default:
		return []float32{0, 0, 1}
	}
}

type fakeJobs struct {
	mu        sync.Mutex
	submitted []string
	err       error
}

func (f *fakeJobs) Submit(_ context.Context, id string) error {
	if f.err != nil {
		return f.err
	}
	f.mu.Lock()
	f.submitted = append(f.submitted, id)
	f.mu.Unlock()
	return nil
}

type fakeLLM struct {
	answer  string
	chunks  []llm.StreamChunk
	err     error
	lastReq llm.ChatRequest
	// block makes Stream wait for ctx after sending chunks
	block bool
}

func (f *fakeLLM) Chat(_ context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	f.lastReq = req
	if f.err != nil {
		return nil, f.err
	}
	return &llm.ChatResponse{Answer: f.answer}, nil
}

func (f *fakeLLM) Stream(ctx context.Context, req llm.ChatRequest, onChunk func(llm.StreamChunk) error) error {
	f.lastReq = req
	for _, c := range f.chunks {
		if err := onChunk(c); err != nil {
			return err
		}
	}
	if f.block {
		<-ctx.Done()
		return ctx.Err()
	}
	return f.err
}

func newLocalStorage(t *testing.T) *storage.LocalStorage {
	t.Helper()
	s, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	return s
}

func vec(xs ...float32) pgvector.Vector {
	return pgvector.NewVector(xs)
}
