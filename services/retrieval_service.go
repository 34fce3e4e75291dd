package services

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"knowledge_backend/models"
	"knowledge_backend/pkg/logging"
	"knowledge_backend/platform/llm"
	"knowledge_backend/repository"
)

const streamBuffer = 16

// LLMClient is the answer generator behind the knowledge base.
type LLMClient interface {
	Chat(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error)
	Stream(ctx context.Context, req llm.ChatRequest, onChunk func(llm.StreamChunk) error) error
}

type RetrievalConfig struct {
	PreviewChars    int
	MaxContextChars int
	MaxDistance     float64
}

type RetrievalService struct {
	chunks   repository.ChunkRepository
	embedder QueryEmbedder
	llm      LLMClient
	cfg      RetrievalConfig
}

func NewRetrievalService(chunks repository.ChunkRepository, embedder QueryEmbedder, llmClient LLMClient, cfg RetrievalConfig) *RetrievalService {
	if cfg.PreviewChars <= 0 {
		cfg.PreviewChars = 500
	}
	if cfg.MaxContextChars <= 0 {
		cfg.MaxContextChars = 6000
	}
	return &RetrievalService{chunks: chunks, embedder: embedder, llm: llmClient, cfg: cfg}
}

// Search embeds question and returns the closest chunks of the owner's
// ready documents, nearest first.
func (s *RetrievalService) Search(ctx context.Context, userID, question string, topK int, documentIDs []string) ([]*models.RetrievedChunk, error) {
	if strings.TrimSpace(question) == "" {
		return nil, fmt.Errorf("%w: question is empty", ErrInvalidInput)
	}
	vec, err := s.embedder.EmbedQuery(ctx, question)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	return s.chunks.SearchSimilar(ctx, repository.SearchParams{
		UserID:      userID,
		Vector:      vec,
		TopK:        topK,
		DocumentIDs: documentIDs,
		MaxDistance: s.cfg.MaxDistance,
	})
}

func (s *RetrievalService) Query(ctx context.Context, userID string, req models.QueryRequest) (*models.QueryResponse, error) {
	hits, err := s.Search(ctx, userID, req.Question, req.TopK, models.DocumentFilter(req.DocumentID, req.DocumentIDs))
	if err != nil {
		return nil, err
	}

	resp := &models.QueryResponse{Contexts: toContexts(hits, s.cfg.PreviewChars)}
	if !req.GenerateAnswer {
		return resp, nil
	}

	answer, err := s.llm.Chat(ctx, llm.ChatRequest{
		Query: BuildPrompt(req.Question, BuildContext(hits, s.cfg.MaxContextChars)),
		User:  userID,
	})
	if err != nil {
		logging.Logger.Error("fail Query answer", "user_id", userID, "error", err)
		return nil, fmt.Errorf("generate answer: %w", err)
	}
	resp.Answer = &answer.Answer
	return resp, nil
}

// Converse streams an answer grounded in the owner's documents. The
// channel always ends with exactly one done or error event, unless ctx is
// cancelled first, and is then closed.
func (s *RetrievalService) Converse(ctx context.Context, userID string, req models.ConversationRequest) <-chan StreamEvent {
	out := make(chan StreamEvent, streamBuffer)
	go func() {
		defer close(out)
		if err := s.converse(ctx, userID, req, out); err != nil {
			if ctx.Err() != nil {
				logging.Logger.Info("conversation stream cancelled", "user_id", userID)
				return
			}
			logging.Logger.Error("fail Converse", "user_id", userID, "error", err)
			emit(ctx, out, errorEvent(err))
			return
		}
		emit(ctx, out, doneEvent())
	}()
	return out
}

func (s *RetrievalService) converse(ctx context.Context, userID string, req models.ConversationRequest, out chan<- StreamEvent) error {
	hits, err := s.Search(ctx, userID, req.Question, req.TopK, models.DocumentFilter(req.DocumentID, req.DocumentIDs))
	if err != nil {
		return err
	}
	if !emit(ctx, out, contextEvent(toContexts(hits, 0))) {
		return ctx.Err()
	}

	budget := req.MaxContextChars
	if budget <= 0 {
		budget = s.cfg.MaxContextChars
	}

	var conversationID *string
	metaSent := false
	if req.ConversationID != nil && *req.ConversationID != "" {
		conversationID = req.ConversationID
		metaSent = true
		if !emit(ctx, out, metaEvent(*req.ConversationID)) {
			return ctx.Err()
		}
	}

	var tracker DeltaTracker
	return s.llm.Stream(ctx, llm.ChatRequest{
		Query:          BuildPrompt(req.Question, BuildContext(hits, budget)),
		User:           userID,
		ConversationID: conversationID,
	}, func(chunk llm.StreamChunk) error {
		if !metaSent && chunk.ConversationID != "" {
			metaSent = true
			if !emit(ctx, out, metaEvent(chunk.ConversationID)) {
				return ctx.Err()
			}
		}
		if chunk.NoAnswer {
			return nil
		}
		if delta := tracker.Next(chunk.Answer); delta != "" {
			if !emit(ctx, out, deltaEvent(delta)) {
				return ctx.Err()
			}
		}
		return nil
	})
}

// toContexts converts hits for clients. previewChars > 0 cuts each content
// to that many characters.
func toContexts(hits []*models.RetrievedChunk, previewChars int) []models.KnowledgeContext {
	out := make([]models.KnowledgeContext, 0, len(hits))
	for _, h := range hits {
		content := h.Content
		if previewChars > 0 {
			content = truncateRunes(content, previewChars)
		}
		out = append(out, models.KnowledgeContext{
			DocumentID:       h.DocumentID,
			ChunkIndex:       h.ChunkIndex,
			Content:          content,
			Score:            h.Distance,
			StoredFilename:   h.StoredFilename,
			OriginalFilename: h.OriginalFilename,
		})
	}
	return out
}

// BuildContext joins chunk contents with blank lines, nearest first, and
// stops once limit characters are used. The chunk that would overflow is
// cut to fit.
func BuildContext(hits []*models.RetrievedChunk, limit int) string {
	var b strings.Builder
	used := 0
	for _, h := range hits {
		sep := 0
		if used > 0 {
			sep = 2
		}
		remaining := limit - used - sep
		if remaining <= 0 {
			break
		}
		content := h.Content
		n := utf8.RuneCountInString(content)
		if n > remaining {
			content = string([]rune(content)[:remaining])
			n = remaining
		}
		if sep > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(content)
		used += sep + n
	}
	return b.String()
}

func BuildPrompt(question, context string) string {
	return "question:" + question + "\n\ncontext:" + context
}

func emit(ctx context.Context, out chan<- StreamEvent, ev StreamEvent) bool {
	select {
	case out <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}
