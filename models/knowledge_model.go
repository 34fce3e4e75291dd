package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
	"gorm.io/gorm"
)

// Document ingestion states. processing can be re-entered from any state.
const (
	StatusProcessing = "processing"
	StatusReady      = "ready"
	StatusFailed     = "failed"
)

// MaxErrorMessageLen bounds the failure text persisted on a document.
const MaxErrorMessageLen = 2000

type KnowledgeDocument struct {
	ID     string  `gorm:"column:id;type:varchar(36);primaryKey" json:"id"`
	UserID string  `gorm:"column:user_id;type:varchar(255);not null;index:idx_knowledge_documents_user" json:"user_id"`
	// optional category the owner filed the document under
	GroupID *string `gorm:"column:group_id;type:varchar(255);index:idx_knowledge_documents_group" json:"group_id"`

	OriginalFilename string  `gorm:"column:original_filename;type:varchar(512);not null" json:"original_filename"`
	StoredFilename   string  `gorm:"column:stored_filename;type:varchar(512);not null" json:"stored_filename"`
	FilePath         string  `gorm:"column:file_path;type:text;not null" json:"-"`
	MimeType         *string `gorm:"column:mime_type;type:varchar(255)" json:"mime_type"`
	FileSize         int64   `gorm:"column:file_size;type:bigint;not null;default:0" json:"file_size"`

	Status         string  `gorm:"column:status;type:varchar(20);not null;default:'processing';index:idx_knowledge_documents_status" json:"status"`
	IngestProgress int     `gorm:"column:ingest_progress;not null;default:0" json:"ingest_progress"`
	ChunkCount     int     `gorm:"column:chunk_count;not null;default:0" json:"chunk_count"`
	ErrorMessage   *string `gorm:"column:error_message;type:text" json:"error_message"`
	// run that currently owns ingestion; older runs stop writing once replaced
	IngestRunID    *string `gorm:"column:ingest_run_id;type:varchar(36)" json:"-"`

	CreatedAt time.Time      `gorm:"column:created_at;index:idx_knowledge_documents_created" json:"created_at"`
	UpdatedAt time.Time      `gorm:"column:updated_at" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"column:deleted_at;index" json:"-"`
}

func (KnowledgeDocument) TableName() string {
	return "knowledge_documents"
}

// BeforeCreate GORM hook: assigns an id and the initial status
func (d *KnowledgeDocument) BeforeCreate(tx *gorm.DB) error {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	if d.Status == "" {
		d.Status = StatusProcessing
	}
	return nil
}

func (d *KnowledgeDocument) IsProcessing() bool {
	return d.Status == StatusProcessing
}

// KnowledgeChunk is one embedded segment of a document. Rows are never
// updated in place: re-ingestion soft-deletes the old set and appends anew.
type KnowledgeChunk struct {
	ID         string `gorm:"column:id;type:varchar(36);primaryKey" json:"id"`
	DocumentID string `gorm:"column:document_id;type:varchar(36);not null;index:idx_knowledge_chunks_document" json:"document_id"`
	ChunkIndex int    `gorm:"column:chunk_index;not null" json:"chunk_index"`
	Content    string `gorm:"column:content;type:text;not null" json:"content"`
	RunID      string `gorm:"column:run_id;type:varchar(36);not null;default:''" json:"-"`

	// unconstrained so the dimension stays a runtime setting; see database.AutoMigrate
	Embedding pgvector.Vector `gorm:"column:embedding;type:vector;not null" json:"-"`

	CreatedAt time.Time      `gorm:"column:created_at" json:"created_at"`
	DeletedAt gorm.DeletedAt `gorm:"column:deleted_at;index" json:"-"`

	Document *KnowledgeDocument `gorm:"foreignKey:DocumentID;constraint:OnDelete:CASCADE" json:"-"`
}

func (KnowledgeChunk) TableName() string {
	return "knowledge_chunks"
}

func (c *KnowledgeChunk) BeforeCreate(tx *gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	return nil
}

// RetrievedChunk is one similarity search hit, joined with its document.
type RetrievedChunk struct {
	ChunkID          string  `gorm:"column:chunk_id" json:"chunk_id"`
	DocumentID       string  `gorm:"column:document_id" json:"document_id"`
	ChunkIndex       int     `gorm:"column:chunk_index" json:"chunk_index"`
	Content          string  `gorm:"column:content" json:"content"`
	OriginalFilename string  `gorm:"column:original_filename" json:"original_filename"`
	StoredFilename   string  `gorm:"column:stored_filename" json:"stored_filename"`
	Distance         float64 `gorm:"column:distance" json:"distance"`
}
