package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"knowledge_backend/models"
	"knowledge_backend/pkg/logging"
	"knowledge_backend/platform/events"
	"knowledge_backend/platform/storage"
	"knowledge_backend/repository"
	"knowledge_backend/utils"
)

// ReingestStaleAfter is how long a processing document may go without
// progress before a re-ingest may take it over.
const ReingestStaleAfter = 10 * time.Minute

// JobSubmitter hands a document id to the background ingestion runner.
type JobSubmitter interface {
	Submit(ctx context.Context, documentID string) error
}

type UploadInput struct {
	UserID      string
	GroupID     *string
	Filename    string
	ContentType string
	Size        int64
	Body        io.Reader
}

// KnowledgeService owns the document lifecycle seen by API callers.
type KnowledgeService struct {
	docs        repository.DocumentRepository
	tx          repository.TxRunner
	storage     storage.Storage
	jobs        JobSubmitter
	events      events.Publisher
	maxFileSize int64
	now         func() time.Time
}

func NewKnowledgeService(
	docs repository.DocumentRepository,
	tx repository.TxRunner,
	store storage.Storage,
	jobs JobSubmitter,
	publisher events.Publisher,
	maxFileSize int64,
) *KnowledgeService {
	return &KnowledgeService{
		docs:        docs,
		tx:          tx,
		storage:     store,
		jobs:        jobs,
		events:      publisher,
		maxFileSize: maxFileSize,
		now:         time.Now,
	}
}

// Upload stores the file, records the document in processing state and
// submits it for ingestion. It returns before ingestion starts.
func (s *KnowledgeService) Upload(ctx context.Context, in UploadInput) (*models.KnowledgeDocument, error) {
	if strings.TrimSpace(in.UserID) == "" {
		return nil, fmt.Errorf("%w: missing owner", ErrInvalidInput)
	}
	if strings.TrimSpace(in.Filename) == "" {
		return nil, fmt.Errorf("%w: missing filename", ErrInvalidInput)
	}
	if s.maxFileSize > 0 && in.Size > s.maxFileSize {
		return nil, fmt.Errorf("%w: file too large, max %d bytes", ErrInvalidInput, s.maxFileSize)
	}

	stored := utils.StoredFilename(in.Filename, s.now())
	key := utils.StorageKey(in.UserID, stored)
	if err := s.storage.Save(ctx, key, in.Body, in.Size, in.ContentType); err != nil {
		logging.Logger.Error("fail Upload save", "key", key, "error", err)
		return nil, fmt.Errorf("save upload: %w", err)
	}

	doc := &models.KnowledgeDocument{
		UserID:           in.UserID,
		GroupID:          nonEmpty(in.GroupID),
		OriginalFilename: in.Filename,
		StoredFilename:   stored,
		FilePath:         key,
		FileSize:         in.Size,
		Status:           models.StatusProcessing,
	}
	if in.ContentType != "" {
		ct := in.ContentType
		doc.MimeType = &ct
	}
	if err := s.docs.Create(ctx, doc); err != nil {
		logging.Logger.Error("fail Upload create", "error", err)
		if rmErr := s.storage.Remove(ctx, key); rmErr != nil {
			logging.Logger.Warn("orphaned upload", "key", key, "error", rmErr)
		}
		return nil, fmt.Errorf("create document: %w", err)
	}

	if err := s.submit(ctx, doc); err != nil {
		return nil, err
	}
	logging.Logger.Info("document uploaded", "doc_id", doc.ID, "user_id", doc.UserID, "size", doc.FileSize)
	return doc, nil
}

func (s *KnowledgeService) List(ctx context.Context, userID string, filter repository.ListFilter) ([]*models.KnowledgeDocument, error) {
	return s.docs.ListByUser(ctx, userID, filter)
}

func (s *KnowledgeService) Get(ctx context.Context, userID, id string) (*models.KnowledgeDocument, error) {
	doc, err := s.docs.GetForUser(ctx, userID, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrNotFound
	}
	return doc, err
}

// OpenFile returns the original upload. The caller closes the reader.
func (s *KnowledgeService) OpenFile(ctx context.Context, userID, id string) (*models.KnowledgeDocument, io.ReadCloser, error) {
	doc, err := s.Get(ctx, userID, id)
	if err != nil {
		return nil, nil, err
	}
	rc, err := s.storage.Open(ctx, doc.FilePath)
	if errors.Is(err, storage.ErrNotExist) {
		return nil, nil, ErrFileMissing
	}
	if err != nil {
		return nil, nil, fmt.Errorf("open document file: %w", err)
	}
	return doc, rc, nil
}

func (s *KnowledgeService) UpdateGroup(ctx context.Context, userID, id string, groupID *string) (*models.KnowledgeDocument, error) {
	err := s.docs.UpdateGroup(ctx, userID, id, nonEmpty(groupID))
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, userID, id)
}

// Reingest puts the document back into processing and submits it again.
// A document whose run reported progress within the last
// ReingestStaleAfter is left alone.
func (s *KnowledgeService) Reingest(ctx context.Context, userID, id string) (*models.KnowledgeDocument, error) {
	doc, err := s.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if doc.IsProcessing() && s.now().Sub(doc.UpdatedAt) < ReingestStaleAfter {
		return nil, ErrIngestionInProgress
	}
	ok, err := s.storage.Exists(ctx, doc.FilePath)
	if err != nil {
		return nil, fmt.Errorf("check document file: %w", err)
	}
	if !ok {
		return nil, ErrFileMissing
	}

	if err := s.docs.UpdateFields(ctx, doc.ID, map[string]any{
		"status":          models.StatusProcessing,
		"ingest_progress": 0,
		"error_message":   nil,
	}); err != nil {
		return nil, err
	}
	if err := s.submit(ctx, doc); err != nil {
		return nil, err
	}
	return s.Get(ctx, userID, id)
}

// Delete soft-deletes the document and its chunks together, then removes
// the stored file on a best-effort basis.
func (s *KnowledgeService) Delete(ctx context.Context, userID, id string) error {
	doc, err := s.Get(ctx, userID, id)
	if err != nil {
		return err
	}

	err = s.tx.Transaction(ctx, func(docs repository.DocumentRepository, chunks repository.ChunkRepository) error {
		if _, err := chunks.SoftDeleteByDocument(ctx, doc.ID); err != nil {
			return err
		}
		return docs.SoftDelete(ctx, doc.ID)
	})
	if errors.Is(err, repository.ErrNotFound) {
		return ErrNotFound
	}
	if err != nil {
		logging.Logger.Error("fail Delete", "doc_id", doc.ID, "error", err)
		return fmt.Errorf("delete document: %w", err)
	}

	if err := s.storage.Remove(ctx, doc.FilePath); err != nil && !errors.Is(err, storage.ErrNotExist) {
		logging.Logger.Warn("failed to remove document file", "doc_id", doc.ID, "error", err)
	}
	if s.events != nil {
		_ = s.events.PublishDocumentEvent(ctx, &models.DocumentEvent{
			Type:   models.EventDocumentDeleted,
			DocID:  doc.ID,
			UserID: doc.UserID,
			Status: doc.Status,
		})
	}
	return nil
}

func (s *KnowledgeService) submit(ctx context.Context, doc *models.KnowledgeDocument) error {
	err := s.jobs.Submit(ctx, doc.ID)
	if err == nil {
		return nil
	}
	logging.Logger.Error("fail Submit", "doc_id", doc.ID, "error", err)

	msg := truncateRunes("failed to enqueue ingestion: "+err.Error(), models.MaxErrorMessageLen)
	if updErr := s.docs.UpdateFields(ctx, doc.ID, map[string]any{
		"status":          models.StatusFailed,
		"ingest_progress": 0,
		"error_message":   msg,
	}); updErr != nil {
		logging.Logger.Error("fail Submit mark failed", "doc_id", doc.ID, "error", updErr)
	}
	return fmt.Errorf("submit ingestion: %w", err)
}

func nonEmpty(s *string) *string {
	if s == nil || strings.TrimSpace(*s) == "" {
		return nil
	}
	v := strings.TrimSpace(*s)
	return &v
}
