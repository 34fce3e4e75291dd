package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"

	"knowledge_backend/models"
	"knowledge_backend/pkg/chunker"
	"knowledge_backend/pkg/extract"
	"knowledge_backend/pkg/logging"
	"knowledge_backend/platform/events"
	"knowledge_backend/platform/storage"
	"knowledge_backend/repository"
)

const failureRecordTimeout = 10 * time.Second

type IngestionConfig struct {
	ChunkSize    int
	ChunkOverlap int
	BatchSize    int
}

// IngestionService turns a stored document into searchable chunks. Every
// run starts from scratch and claims the document with its own run id, so
// overlapping deliveries of one document leave a single consistent chunk set.
type IngestionService struct {
	docs     repository.DocumentRepository
	chunks   repository.ChunkRepository
	tx       repository.TxRunner
	storage  storage.Storage
	embedder Embedder
	events   events.Publisher
	cfg      IngestionConfig
	newRunID func() string
}

func NewIngestionService(
	docs repository.DocumentRepository,
	chunks repository.ChunkRepository,
	tx repository.TxRunner,
	store storage.Storage,
	embedder Embedder,
	publisher events.Publisher,
	cfg IngestionConfig,
) *IngestionService {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 64
	}
	return &IngestionService{
		docs:     docs,
		chunks:   chunks,
		tx:       tx,
		storage:  store,
		embedder: embedder,
		events:   publisher,
		cfg:      cfg,
		newRunID: uuid.NewString,
	}
}

// Ingest runs the full pipeline for documentID. A document that no longer
// exists is skipped, and so is the rest of a run once a newer run claims
// the document. On failure the document is marked failed and the error is
// returned.
func (s *IngestionService) Ingest(ctx context.Context, documentID string) error {
	doc, err := s.docs.GetByID(ctx, documentID)
	if errors.Is(err, repository.ErrNotFound) {
		logging.Logger.Info("skip ingestion, document gone", "doc_id", documentID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("load document: %w", err)
	}

	runID := s.newRunID()
	if err := s.docs.UpdateFields(ctx, doc.ID, map[string]any{
		"status":          models.StatusProcessing,
		"ingest_progress": 0,
		"chunk_count":     0,
		"error_message":   nil,
		"ingest_run_id":   runID,
	}); err != nil {
		return fmt.Errorf("mark processing: %w", err)
	}
	s.publish(ctx, doc, models.EventDocumentProcessing, models.StatusProcessing, "ingestion started", nil)

	total, err := s.run(ctx, doc, runID)
	if errors.Is(err, repository.ErrRunSuperseded) {
		logging.Logger.Info("ingestion run superseded", "doc_id", doc.ID, "run_id", runID)
		return nil
	}
	if err != nil {
		s.fail(ctx, doc.ID, runID, err)
		return err
	}
	logging.Logger.Info("document ingested", "doc_id", doc.ID, "chunks", total)
	return nil
}

func (s *IngestionService) run(ctx context.Context, doc *models.KnowledgeDocument, runID string) (int, error) {
	text, err := s.readText(ctx, doc)
	if err != nil {
		return 0, err
	}

	pieces := chunker.Split(text, s.cfg.ChunkSize, s.cfg.ChunkOverlap)
	total := len(pieces)
	if err := s.docs.UpdateForRun(ctx, doc.ID, runID, map[string]any{"chunk_count": total}); err != nil {
		return 0, fmt.Errorf("record chunk count: %w", err)
	}

	if _, err := s.chunks.SoftDeleteOtherRuns(ctx, doc.ID, runID); err != nil {
		return 0, fmt.Errorf("clear previous chunks: %w", err)
	}

	processed := 0
	for start := 0; start < total; start += s.cfg.BatchSize {
		end := min(start+s.cfg.BatchSize, total)
		batch := pieces[start:end]

		vectors, err := s.embedder.Embed(ctx, batch)
		if err != nil {
			return 0, err
		}
		if len(vectors) != len(batch) {
			return 0, fmt.Errorf("%w: got %d embeddings for %d chunks", ErrEmbeddingCountMismatch, len(vectors), len(batch))
		}

		rows := make([]*models.KnowledgeChunk, len(batch))
		for i, content := range batch {
			rows[i] = &models.KnowledgeChunk{
				DocumentID: doc.ID,
				ChunkIndex: start + i,
				Content:    content,
				RunID:      runID,
				Embedding:  pgvector.NewVector(vectors[i]),
			}
		}
		progress := end * 100 / total
		err = s.tx.Transaction(ctx, func(docs repository.DocumentRepository, chunks repository.ChunkRepository) error {
			// claim check first so a superseded run writes nothing
			if err := docs.UpdateForRun(ctx, doc.ID, runID, map[string]any{"ingest_progress": progress}); err != nil {
				return err
			}
			return chunks.BatchCreate(ctx, rows)
		})
		if err != nil {
			return 0, fmt.Errorf("write chunk batch: %w", err)
		}

		processed = end
		s.publish(ctx, doc, models.EventDocumentProgress, models.StatusProcessing, "", &models.ProgressInfo{
			Processed:  processed,
			Total:      total,
			Percentage: progress,
		})
	}

	err = s.tx.Transaction(ctx, func(docs repository.DocumentRepository, chunks repository.ChunkRepository) error {
		if err := docs.UpdateForRun(ctx, doc.ID, runID, map[string]any{
			"status":          models.StatusReady,
			"ingest_progress": 100,
		}); err != nil {
			return err
		}
		if _, err := chunks.SoftDeleteOtherRuns(ctx, doc.ID, runID); err != nil {
			return err
		}
		n, err := chunks.CountByDocument(ctx, doc.ID)
		if err != nil {
			return err
		}
		if n != int64(total) {
			return fmt.Errorf("%w: %d active chunks, expected %d", ErrChunkCountMismatch, n, total)
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("mark ready: %w", err)
	}
	s.publish(ctx, doc, models.EventDocumentReady, models.StatusReady, "ingestion finished", &models.ProgressInfo{
		Processed:  processed,
		Total:      total,
		Percentage: 100,
	})
	return total, nil
}

func (s *IngestionService) readText(ctx context.Context, doc *models.KnowledgeDocument) (string, error) {
	rc, err := s.storage.Open(ctx, doc.FilePath)
	if errors.Is(err, storage.ErrNotExist) {
		return "", fmt.Errorf("%w: %s", ErrFileMissing, doc.StoredFilename)
	}
	if err != nil {
		return "", fmt.Errorf("open document file: %w", err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return "", fmt.Errorf("read document file: %w", err)
	}
	mime := ""
	if doc.MimeType != nil {
		mime = *doc.MimeType
	}
	return extract.Bytes(data, doc.OriginalFilename, mime), nil
}

// fail records cause on a freshly loaded document. It runs detached from
// ctx so a cancelled job still leaves a terminal state behind.
func (s *IngestionService) fail(ctx context.Context, documentID, runID string, cause error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), failureRecordTimeout)
	defer cancel()

	logging.Logger.Error("fail Ingest", "doc_id", documentID, "error", cause)

	doc, err := s.docs.GetByID(ctx, documentID)
	if err != nil {
		logging.Logger.Error("fail Ingest reload", "doc_id", documentID, "error", err)
		return
	}
	msg := truncateRunes(cause.Error(), models.MaxErrorMessageLen)
	err = s.docs.UpdateForRun(ctx, doc.ID, runID, map[string]any{
		"status":          models.StatusFailed,
		"ingest_progress": 0,
		"error_message":   msg,
	})
	if errors.Is(err, repository.ErrRunSuperseded) {
		logging.Logger.Info("skip failure record, run superseded", "doc_id", documentID, "run_id", runID)
		return
	}
	if err != nil {
		logging.Logger.Error("fail Ingest mark failed", "doc_id", documentID, "error", err)
		return
	}
	s.publish(ctx, doc, models.EventDocumentFailed, models.StatusFailed, msg, nil)
}

func (s *IngestionService) publish(ctx context.Context, doc *models.KnowledgeDocument, typ models.DocumentEventType, status, msg string, progress *models.ProgressInfo) {
	if s.events == nil {
		return
	}
	_ = s.events.PublishDocumentEvent(ctx, &models.DocumentEvent{
		Type:     typ,
		DocID:    doc.ID,
		UserID:   doc.UserID,
		Status:   status,
		Message:  msg,
		Progress: progress,
	})
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
