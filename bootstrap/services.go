package bootstrap

import (
	"knowledge_backend/config"
	"knowledge_backend/services"
)

type Services struct {
	EmbeddingService *services.EmbeddingService
	IngestionService *services.IngestionService
	KnowledgeService *services.KnowledgeService
	RetrievalService *services.RetrievalService
}

func NewServices(cfg *config.Config, repos *Repositories, infra *Infrastructure) *Services {
	res := &Services{}

	embeddingService := services.NewEmbeddingService(infra.Embedding, cfg.EmbeddingDim, infra.Cache, cfg.QueryCacheTTL)
	res.EmbeddingService = embeddingService

	res.IngestionService = services.NewIngestionService(
		repos.DocumentRepository,
		repos.ChunkRepository,
		repos.Tx,
		infra.Storage,
		embeddingService,
		infra.EventPublisher,
		services.IngestionConfig{
			ChunkSize:    cfg.ChunkSize,
			ChunkOverlap: cfg.ChunkOverlap,
			BatchSize:    cfg.IngestBatchSize,
		},
	)

	res.KnowledgeService = services.NewKnowledgeService(
		repos.DocumentRepository,
		repos.Tx,
		infra.Storage,
		infra.Queue,
		infra.EventPublisher,
		cfg.MaxFileSize,
	)

	res.RetrievalService = services.NewRetrievalService(
		repos.ChunkRepository,
		embeddingService,
		infra.LLM,
		services.RetrievalConfig{
			PreviewChars:    cfg.ContextPreviewChars,
			MaxContextChars: cfg.MaxContextChars,
			MaxDistance:     cfg.MaxDistance,
		},
	)
	return res
}
