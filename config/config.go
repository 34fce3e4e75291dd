package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	HttpPort     string
	AppEnv       string
	AllowOrigins string

	// S3/MinIO
	BucketEndpoint  string
	BucketAccessID  string
	BucketAccessKey string
	BucketName      string
	BucketRegion    string
	UseSSL          bool   // MinIO: false, S3: true
	StorageType     string // "local", "minio" or "s3"
	StorageRoot     string

	// Redis
	RedisURL string

	// Database
	DBDriver   string // "postgres" or "sqlite"
	Host       string
	User       string
	Password   string
	DBName     string
	Port       string
	SQLitePath string

	// ingestion
	QueueBackend      string // "redis" or "memory"
	WorkerConcurrency int
	MaxFileSize       int64
	ChunkSize         int
	ChunkOverlap      int
	IngestBatchSize   int

	// retrieval
	ContextPreviewChars int
	MaxContextChars     int
	MaxDistance         float64

	// embedding
	EmbeddingProvider  string // "openai" or "local"
	EmbeddingDim       int
	EmbeddingModel     string
	EmbeddingAPIKey    string
	EmbeddingBaseURL   string
	EmbeddingBatchSize int
	QueryCacheTTL      time.Duration

	// llm
	DifyAPIBase string
	DifyAPIKey  string
	LLMTimeout  time.Duration
}

func LoadConfig() *Config {
	return &Config{
		HttpPort:            getEnv("PORT", "3000"),
		AppEnv:              getEnv("APP_ENV", "dev"),
		AllowOrigins:        getEnv("ALLOWORIGINS", "*"),
		BucketEndpoint:      os.Getenv("BUCKET_ENDPOINT"),
		BucketAccessID:      os.Getenv("BUCKET_ACCESS_ID"),
		BucketAccessKey:     os.Getenv("BUCKET_ACCESS_KEY"),
		BucketName:          os.Getenv("BUCKET_NAME"),
		BucketRegion:        os.Getenv("BUCKET_REGION"),
		UseSSL:              os.Getenv("BUCKET_USE_SSL") == "true",
		StorageType:         getEnv("STORAGE_TYPE", "local"),
		StorageRoot:         getEnv("KNOWLEDGE_STORAGE_ROOT", "data"),
		RedisURL:            os.Getenv("REDIS_URL"),
		DBDriver:            getEnv("DB_DRIVER", "postgres"),
		Host:                os.Getenv("PG_HOST"),
		User:                os.Getenv("PG_USER"),
		Password:            os.Getenv("PG_PASSWORD"),
		DBName:              os.Getenv("PG_DB"),
		Port:                getEnv("PG_PORT", "5432"),
		SQLitePath:          getEnv("SQLITE_PATH", "knowledge.db"),
		QueueBackend:        getEnv("QUEUE_BACKEND", "redis"),
		WorkerConcurrency:   getEnvInt("WORKER_CONCURRENCY", 4),
		MaxFileSize:         int64(getEnvInt("MAX_FILE_SIZE", 50*1024*1024)),
		ChunkSize:           getEnvInt("KNOWLEDGE_CHUNK_SIZE", 700),
		ChunkOverlap:        getEnvInt("KNOWLEDGE_CHUNK_OVERLAP", 120),
		IngestBatchSize:     getEnvInt("KNOWLEDGE_INGEST_BATCH_SIZE", 64),
		ContextPreviewChars: getEnvInt("KNOWLEDGE_CONTEXT_PREVIEW_CHARS", 500),
		MaxContextChars:     getEnvInt("KNOWLEDGE_MAX_CONTEXT_CHARS", 6000),
		MaxDistance:         getEnvFloat("KNOWLEDGE_MAX_DISTANCE", 2.0),
		EmbeddingProvider:   getEnv("EMBEDDING_PROVIDER", "openai"),
		EmbeddingDim:        getEnvInt("EMBEDDING_DIM", 768),
		EmbeddingModel:      getEnv("EMBEDDING_MODEL", "text-embedding-3-small"),
		EmbeddingAPIKey:     os.Getenv("EMBEDDING_API_KEY"),
		EmbeddingBaseURL:    getEnv("EMBEDDING_BASE_URL", "https://api.openai.com/v1"),
		EmbeddingBatchSize:  getEnvInt("EMBEDDING_BATCH_SIZE", 32),
		QueryCacheTTL:       getEnvDuration("EMBEDDING_QUERY_CACHE_TTL", 10*time.Minute),
		DifyAPIBase:         os.Getenv("DIFY_API_BASE"),
		DifyAPIKey:          os.Getenv("DIFY_KB_API_KEY"),
		LLMTimeout:          getEnvDuration("LLM_TIMEOUT", 60*time.Second),
	}
}

// Validate rejects settings the service cannot start with.
func (c *Config) Validate() error {
	switch c.DBDriver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("unsupported DB_DRIVER %q", c.DBDriver)
	}
	switch c.StorageType {
	case "local", "minio", "s3":
	default:
		return fmt.Errorf("unsupported STORAGE_TYPE %q", c.StorageType)
	}
	switch c.QueueBackend {
	case "redis", "memory":
	default:
		return fmt.Errorf("unsupported QUEUE_BACKEND %q", c.QueueBackend)
	}
	if c.QueueBackend == "redis" && c.RedisURL == "" {
		return fmt.Errorf("QUEUE_BACKEND=redis requires REDIS_URL")
	}
	switch c.EmbeddingProvider {
	case "openai", "local":
	default:
		return fmt.Errorf("unsupported EMBEDDING_PROVIDER %q", c.EmbeddingProvider)
	}
	if c.EmbeddingDim <= 0 {
		return fmt.Errorf("EMBEDDING_DIM must be positive, got %d", c.EmbeddingDim)
	}
	if c.IngestBatchSize <= 0 || c.EmbeddingBatchSize <= 0 {
		return fmt.Errorf("batch sizes must be positive")
	}
	return nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return i
}

func getEnvFloat(key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}

// ErrNotConfigured marks an external capability whose credentials or
// endpoint are missing. It is never retried.
var ErrNotConfigured = errors.New("service not configured")
