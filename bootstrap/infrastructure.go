package bootstrap

import (
	"context"
	"errors"
	"time"

	"knowledge_backend/config"
	"knowledge_backend/pkg/logging"
	"knowledge_backend/platform/cache"
	"knowledge_backend/platform/database"
	"knowledge_backend/platform/embedding"
	"knowledge_backend/platform/events"
	"knowledge_backend/platform/llm"
	"knowledge_backend/platform/queue"
	"knowledge_backend/platform/redis"
	"knowledge_backend/platform/storage"
)

type Infrastructure struct {
	DB             *database.DB
	Redis          *redis.Service // nil when REDIS_URL is unset
	Storage        storage.Storage
	Queue          queue.JobQueue
	Cache          cache.CacheService
	EventPublisher events.Publisher
	Embedding      embedding.Provider
	LLM            *llm.Client
}

func NewInfrastructure(cfg *config.Config) (*Infrastructure, error) {
	infra := &Infrastructure{}

	// database
	db, err := database.Open(cfg)
	if err != nil {
		return nil, err
	}
	infra.DB = db
	if err := infra.DB.AutoMigrate(cfg.EmbeddingDim); err != nil {
		return nil, err
	}

	// redis is optional unless the queue lives there
	if cfg.RedisURL != "" {
		redisService, err := redis.InitRedis(cfg)
		if err != nil {
			logging.Logger.Error("fail Initializing Redis", "error", err)
			return nil, err
		}
		infra.Redis = redisService
	}

	// storage services
	storageService, err := storage.InitStorageService(cfg)
	if err != nil {
		logging.Logger.Error("fail Initializing Storage", "error", err)
		return nil, err
	}
	infra.Storage = storageService

	// job queue
	if cfg.QueueBackend == "redis" && infra.Redis != nil {
		rq := queue.NewRedisQueue(infra.Redis, queue.IngestQueueName)
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		err := rq.Recover(ctx)
		cancel()
		if err != nil {
			logging.Logger.Error("fail recovering ingestion queue", "error", err)
			return nil, err
		}
		infra.Queue = rq
	} else {
		infra.Queue = queue.NewMemoryQueue(0)
	}

	// cache
	l1CacheService := cache.NewL1Cache(5*time.Minute, 10*time.Minute)
	if infra.Redis != nil {
		infra.Cache = cache.NewCacheService(l1CacheService, infra.Redis)
	} else {
		infra.Cache = cache.NewCacheService(l1CacheService, nil)
	}

	// event publisher
	if infra.Redis != nil {
		infra.EventPublisher = events.NewEventPublisher(infra.Redis.Rdb)
	} else {
		infra.EventPublisher = events.NewLocalPublisher()
	}

	provider, err := embedding.NewProvider(cfg)
	if err != nil {
		return nil, err
	}
	infra.Embedding = provider

	infra.LLM = llm.NewClient(llm.Config{
		APIBase: cfg.DifyAPIBase,
		APIKey:  cfg.DifyAPIKey,
		Timeout: cfg.LLMTimeout,
	})
	if !infra.LLM.Configured() {
		logging.Logger.Warn("llm provider not configured, answers are unavailable")
	}

	logging.Logger.Info("infrastructure ready",
		"db", cfg.DBDriver,
		"storage", cfg.StorageType,
		"queue", cfg.QueueBackend,
		"embedding", provider.Name(),
		"redis", infra.Redis != nil,
	)
	return infra, nil
}

// Shutdown closes every connection, reporting all failures.
func (infra *Infrastructure) Shutdown() error {
	var errs []error
	if infra.DB != nil {
		if err := infra.DB.Close(); err != nil {
			logging.Logger.Error("fail closing database", "error", err)
			errs = append(errs, err)
		}
	}
	if infra.Redis != nil {
		if err := infra.Redis.Close(); err != nil {
			logging.Logger.Error("fail closing redis", "error", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
