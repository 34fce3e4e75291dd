package bootstrap

import (
	"knowledge_backend/platform/database"
	"knowledge_backend/repository"
)

type Repositories struct {
	ChunkRepository    repository.ChunkRepository
	DocumentRepository repository.DocumentRepository
	Tx                 repository.TxRunner
}

func NewRepositories(db *database.DB) *Repositories {
	sqlDB := db.GetDatabase()
	return &Repositories{
		ChunkRepository:    repository.NewChunkRepository(sqlDB),
		DocumentRepository: repository.NewDocumentRepository(sqlDB),
		Tx:                 repository.NewTxRunner(sqlDB),
	}
}
