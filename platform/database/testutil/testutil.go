// Package testutil provides an in-memory database and fixtures for
// repository and service tests.
package testutil

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	"knowledge_backend/models"
	"knowledge_backend/platform/database"
)

// DB opens a private in-memory sqlite database with the knowledge schema.
func DB(tb testing.TB) *gorm.DB {
	tb.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormLogger.Default.LogMode(gormLogger.Silent),
	})
	if err != nil {
		tb.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		tb.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	tb.Cleanup(func() { _ = sqlDB.Close() })

	if err := database.Migrate(db, 3); err != nil {
		tb.Fatalf("migrate: %v", err)
	}
	return db
}

func SeedDocument(tb testing.TB, ctx context.Context, db *gorm.DB, userID, status string) *models.KnowledgeDocument {
	tb.Helper()
	doc := &models.KnowledgeDocument{
		UserID:           userID,
		OriginalFilename: "notes.md",
		StoredFilename:   "notes_20250101_000000000000.md",
		FilePath:         userID + "/notes_20250101_000000000000.md",
		FileSize:         10,
		Status:           status,
	}
	if err := db.WithContext(ctx).Create(doc).Error; err != nil {
		tb.Fatalf("seed document: %v", err)
	}
	return doc
}

func SeedChunk(tb testing.TB, ctx context.Context, db *gorm.DB, docID string, index int, content string, vec []float32) *models.KnowledgeChunk {
	tb.Helper()
	c := &models.KnowledgeChunk{
		DocumentID: docID,
		ChunkIndex: index,
		Content:    content,
		Embedding:  pgvector.NewVector(vec),
	}
	if err := db.WithContext(ctx).Create(c).Error; err != nil {
		tb.Fatalf("seed chunk: %v", err)
	}
	return c
}

// ActiveChunks returns the document's live chunks in index order.
func ActiveChunks(tb testing.TB, ctx context.Context, db *gorm.DB, docID string) []*models.KnowledgeChunk {
	tb.Helper()
	var chunks []*models.KnowledgeChunk
	err := db.WithContext(ctx).
		Where("document_id = ?", docID).
		Order("chunk_index ASC").
		Find(&chunks).Error
	if err != nil {
		tb.Fatalf("list chunks: %v", err)
	}
	return chunks
}
