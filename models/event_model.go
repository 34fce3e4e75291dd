package models

import "time"

type DocumentEventType string

const (
	EventDocumentProcessing DocumentEventType = "processing"
	EventDocumentProgress   DocumentEventType = "progress"
	EventDocumentReady      DocumentEventType = "ready"
	EventDocumentFailed     DocumentEventType = "failed"
	EventDocumentDeleted    DocumentEventType = "deleted"
)

type ProgressInfo struct {
	Processed  int `json:"processed"`
	Total      int `json:"total"`
	Percentage int `json:"percentage"`
}

type DocumentEvent struct {
	Type      DocumentEventType `json:"type"`
	DocID     string            `json:"doc_id"`
	UserID    string            `json:"user_id"`
	Status    string            `json:"status"`
	Message   string            `json:"message,omitempty"`
	Progress  *ProgressInfo     `json:"progress,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}
