package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"knowledge_backend/models"
)

type documentRepository struct {
	DB *gorm.DB
}

func NewDocumentRepository(db *gorm.DB) DocumentRepository {
	return &documentRepository{DB: db}
}

func (r *documentRepository) Create(ctx context.Context, doc *models.KnowledgeDocument) error {
	return r.DB.WithContext(ctx).Create(doc).Error
}

func (r *documentRepository) GetByID(ctx context.Context, id string) (*models.KnowledgeDocument, error) {
	var doc models.KnowledgeDocument
	err := r.DB.WithContext(ctx).Where("id = ?", id).First(&doc).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

func (r *documentRepository) GetForUser(ctx context.Context, userID, id string) (*models.KnowledgeDocument, error) {
	var doc models.KnowledgeDocument
	err := r.DB.WithContext(ctx).Where("id = ? AND user_id = ?", id, userID).First(&doc).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

func (r *documentRepository) ListByUser(ctx context.Context, userID string, filter ListFilter) ([]*models.KnowledgeDocument, error) {
	q := r.DB.WithContext(ctx).Where("user_id = ?", userID)
	switch {
	case filter.Ungrouped:
		q = q.Where("group_id IS NULL")
	case filter.GroupID != nil:
		q = q.Where("group_id = ?", *filter.GroupID)
	}

	var docs []*models.KnowledgeDocument
	if err := q.Order("created_at DESC").Find(&docs).Error; err != nil {
		return nil, err
	}
	return docs, nil
}

func (r *documentRepository) UpdateFields(ctx context.Context, id string, fields map[string]any) error {
	return r.DB.WithContext(ctx).
		Model(&models.KnowledgeDocument{}).
		Where("id = ?", id).
		Updates(fields).Error
}

func (r *documentRepository) UpdateForRun(ctx context.Context, id, runID string, fields map[string]any) error {
	res := r.DB.WithContext(ctx).
		Model(&models.KnowledgeDocument{}).
		Where("id = ? AND ingest_run_id = ?", id, runID).
		Updates(fields)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrRunSuperseded
	}
	return nil
}

func (r *documentRepository) UpdateGroup(ctx context.Context, userID, id string, groupID *string) error {
	res := r.DB.WithContext(ctx).
		Model(&models.KnowledgeDocument{}).
		Where("id = ? AND user_id = ?", id, userID).
		Update("group_id", groupID)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *documentRepository) SoftDelete(ctx context.Context, id string) error {
	res := r.DB.WithContext(ctx).Where("id = ?", id).Delete(&models.KnowledgeDocument{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
