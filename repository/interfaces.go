package repository

import (
	"context"
	"errors"

	"knowledge_backend/models"
)

var (
	ErrNotFound = errors.New("record not found")
	// ErrRunSuperseded means another ingestion run claimed the document.
	ErrRunSuperseded = errors.New("ingestion run superseded")
)

const (
	DefaultTopK = 5
	MaxTopK     = 50
)

// ListFilter narrows a document listing. Ungrouped wins over GroupID.
type ListFilter struct {
	GroupID   *string
	Ungrouped bool
}

type SearchParams struct {
	UserID      string
	Vector      []float32
	TopK        int
	DocumentIDs []string
	// hits farther than this cosine distance are dropped; <= 0 disables
	MaxDistance float64
}

type DocumentRepository interface {
	Create(ctx context.Context, doc *models.KnowledgeDocument) error

	GetByID(ctx context.Context, id string) (*models.KnowledgeDocument, error)
	GetForUser(ctx context.Context, userID, id string) (*models.KnowledgeDocument, error)
	ListByUser(ctx context.Context, userID string, filter ListFilter) ([]*models.KnowledgeDocument, error)

	UpdateFields(ctx context.Context, id string, fields map[string]any) error
	// UpdateForRun applies fields only while runID owns the document.
	UpdateForRun(ctx context.Context, id, runID string, fields map[string]any) error
	UpdateGroup(ctx context.Context, userID, id string, groupID *string) error
	SoftDelete(ctx context.Context, id string) error
}

type ChunkRepository interface {
	BatchCreate(ctx context.Context, chunks []*models.KnowledgeChunk) error
	SoftDeleteByDocument(ctx context.Context, documentID string) (int64, error)
	// SoftDeleteOtherRuns drops active chunks written by any run but runID.
	SoftDeleteOtherRuns(ctx context.Context, documentID, runID string) (int64, error)
	CountByDocument(ctx context.Context, documentID string) (int64, error)

	// SearchSimilar ranks active chunks of the owner's ready documents by
	// ascending cosine distance to Vector.
	SearchSimilar(ctx context.Context, params SearchParams) ([]*models.RetrievedChunk, error)
}

// TxRunner runs fn with repositories bound to a single transaction.
type TxRunner interface {
	Transaction(ctx context.Context, fn func(docs DocumentRepository, chunks ChunkRepository) error) error
}

// ClampTopK maps non-positive values to DefaultTopK and caps at MaxTopK.
func ClampTopK(k int) int {
	if k <= 0 {
		return DefaultTopK
	}
	return min(k, MaxTopK)
}
