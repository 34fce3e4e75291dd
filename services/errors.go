package services

import (
	"errors"

	"knowledge_backend/config"
)

var (
	ErrNotFound     = errors.New("document not found")
	ErrInvalidInput = errors.New("invalid input")
	// ErrFileMissing means the document row exists but its stored file is gone.
	ErrFileMissing = errors.New("document file missing")

	ErrEmbeddingCountMismatch = errors.New("embedding count mismatch")
	ErrDimensionMismatch      = errors.New("embedding dim mismatch")
	// ErrChunkCountMismatch means active chunk rows disagree with chunk_count.
	ErrChunkCountMismatch = errors.New("chunk count mismatch")
	// ErrIngestionInProgress rejects a re-ingest while a live run owns the document.
	ErrIngestionInProgress = errors.New("document is already being ingested")

	ErrNotConfigured = config.ErrNotConfigured
)
