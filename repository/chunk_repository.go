package repository

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/pgvector/pgvector-go"
	"gorm.io/gorm"

	"knowledge_backend/models"
)

type chunkRepository struct {
	DB *gorm.DB
}

func NewChunkRepository(db *gorm.DB) ChunkRepository {
	return &chunkRepository{DB: db}
}

func (r *chunkRepository) BatchCreate(ctx context.Context, chunks []*models.KnowledgeChunk) error {
	if len(chunks) == 0 {
		return nil
	}
	return r.DB.WithContext(ctx).Create(chunks).Error
}

func (r *chunkRepository) SoftDeleteByDocument(ctx context.Context, documentID string) (int64, error) {
	res := r.DB.WithContext(ctx).
		Where("document_id = ?", documentID).
		Delete(&models.KnowledgeChunk{})
	return res.RowsAffected, res.Error
}

func (r *chunkRepository) SoftDeleteOtherRuns(ctx context.Context, documentID, runID string) (int64, error) {
	res := r.DB.WithContext(ctx).
		Where("document_id = ? AND run_id <> ?", documentID, runID).
		Delete(&models.KnowledgeChunk{})
	return res.RowsAffected, res.Error
}

func (r *chunkRepository) CountByDocument(ctx context.Context, documentID string) (int64, error) {
	var n int64
	err := r.DB.WithContext(ctx).
		Model(&models.KnowledgeChunk{}).
		Where("document_id = ?", documentID).
		Count(&n).Error
	return n, err
}

func (r *chunkRepository) SearchSimilar(ctx context.Context, params SearchParams) ([]*models.RetrievedChunk, error) {
	if len(params.Vector) == 0 {
		return nil, fmt.Errorf("search vector is empty")
	}
	topK := ClampTopK(params.TopK)

	q := r.DB.WithContext(ctx).
		Table("knowledge_chunks AS c").
		Joins("JOIN knowledge_documents AS d ON d.id = c.document_id").
		Where("d.user_id = ?", params.UserID).
		Where("d.status = ?", models.StatusReady).
		Where("d.deleted_at IS NULL").
		Where("c.deleted_at IS NULL")
	if len(params.DocumentIDs) > 0 {
		q = q.Where("c.document_id IN ?", params.DocumentIDs)
	}

	if r.DB.Dialector.Name() == "postgres" {
		return searchPgvector(q, params, topK)
	}
	return searchInProcess(q, params, topK)
}

const hitColumns = "c.id AS chunk_id, c.document_id, c.chunk_index, c.content, d.original_filename, d.stored_filename"

func searchPgvector(q *gorm.DB, params SearchParams, topK int) ([]*models.RetrievedChunk, error) {
	// matches the expression index created by database.Migrate
	distance := fmt.Sprintf("(c.embedding::vector(%d)) <=> ?", len(params.Vector))
	vec := pgvector.NewVector(params.Vector)

	q = q.Select(hitColumns+", "+distance+" AS distance", vec)
	if params.MaxDistance > 0 {
		q = q.Where(distance+" <= ?", vec, params.MaxDistance)
	}

	var hits []*models.RetrievedChunk
	if err := q.Order("distance ASC").Limit(topK).Scan(&hits).Error; err != nil {
		return nil, fmt.Errorf("vector search failed: %w", err)
	}
	return hits, nil
}

type candidate struct {
	models.RetrievedChunk
	Embedding pgvector.Vector `gorm:"column:embedding"`
}

// searchInProcess ranks every candidate exactly. Used on dialects without
// pgvector.
func searchInProcess(q *gorm.DB, params SearchParams, topK int) ([]*models.RetrievedChunk, error) {
	var rows []candidate
	if err := q.Select(hitColumns + ", c.embedding").Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("vector search failed: %w", err)
	}

	hits := make([]*models.RetrievedChunk, 0, len(rows))
	for i := range rows {
		hit := rows[i].RetrievedChunk
		hit.Distance = CosineDistance(params.Vector, rows[i].Embedding.Slice())
		if params.MaxDistance > 0 && hit.Distance > params.MaxDistance {
			continue
		}
		hits = append(hits, &hit)
	}
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Distance != hits[j].Distance {
			return hits[i].Distance < hits[j].Distance
		}
		return hits[i].ChunkIndex < hits[j].ChunkIndex
	})
	if len(hits) > topK {
		hits = hits[:topK]
	}
	return hits, nil
}

// CosineDistance returns 1 - cos(a, b). Mismatched or zero vectors are at
// distance 1.
func CosineDistance(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 1
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 1
	}
	return 1 - dot/(math.Sqrt(na)*math.Sqrt(nb))
}

type txRunner struct {
	DB *gorm.DB
}

func NewTxRunner(db *gorm.DB) TxRunner {
	return &txRunner{DB: db}
}

func (t *txRunner) Transaction(ctx context.Context, fn func(docs DocumentRepository, chunks ChunkRepository) error) error {
	return t.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&documentRepository{DB: tx}, &chunkRepository{DB: tx})
	})
}
