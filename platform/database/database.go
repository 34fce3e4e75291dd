package database

import (
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"knowledge_backend/config"
	"knowledge_backend/models"
	"knowledge_backend/pkg/logging"
)

type DB struct {
	database *gorm.DB
}

// Open connects to the configured driver. sqlite is meant for local runs;
// similarity search then ranks in process instead of using pgvector.
func Open(cfg *config.Config) (*DB, error) {
	gormCfg := &gorm.Config{Logger: logger.Default.LogMode(logger.Warn)}

	var (
		db  *gorm.DB
		err error
	)
	switch cfg.DBDriver {
	case "sqlite":
		db, err = gorm.Open(sqlite.Open(cfg.SQLitePath), gormCfg)
	default:
		dsn := fmt.Sprintf(
			"host=%s user=%s password=%s dbname=%s port=%s sslmode=prefer TimeZone=UTC",
			cfg.Host,
			cfg.User,
			cfg.Password,
			cfg.DBName,
			cfg.Port,
		)
		db, err = gorm.Open(postgres.Open(dsn), gormCfg)
	}
	if err != nil {
		logging.Logger.Error("failed to connect to database", "driver", cfg.DBDriver, "error", err)
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		logging.Logger.Error("failed to connect to database", "error", err)
		return nil, err
	}
	if cfg.DBDriver == "sqlite" {
		// a single writer avoids SQLITE_BUSY under the worker pool
		sqlDB.SetMaxOpenConns(1)
	} else {
		sqlDB.SetMaxIdleConns(10)
		sqlDB.SetMaxOpenConns(100)
		sqlDB.SetConnMaxLifetime(time.Hour)
	}

	logging.Logger.Info("connected to database", "driver", cfg.DBDriver)
	return &DB{database: db}, nil
}

// New wraps an existing connection.
func New(db *gorm.DB) *DB {
	return &DB{database: db}
}

func (db *DB) AutoMigrate(dim int) error {
	return Migrate(db.database, dim)
}

// Migrate creates the knowledge tables. On Postgres it also enables pgvector
// and builds an HNSW cosine index over embedding::vector(dim).
func Migrate(db *gorm.DB, dim int) error {
	isPostgres := db.Dialector.Name() == "postgres"
	if isPostgres {
		if err := db.Exec("CREATE EXTENSION IF NOT EXISTS vector").Error; err != nil {
			logging.Logger.Error("create vector extension failed", "error", err)
			return err
		}
	}
	if err := db.AutoMigrate(&models.KnowledgeDocument{}, &models.KnowledgeChunk{}); err != nil {
		logging.Logger.Error("auto migration failed", "error", err)
		return err
	}
	if !isPostgres {
		return nil
	}

	index := fmt.Sprintf(
		`CREATE INDEX IF NOT EXISTS idx_knowledge_chunks_embedding_hnsw_%d
		ON knowledge_chunks USING hnsw ((embedding::vector(%d)) vector_cosine_ops)
		WHERE deleted_at IS NULL`,
		dim, dim,
	)
	if err := db.Exec(index).Error; err != nil {
		logging.Logger.Error("create hnsw index failed", "dim", dim, "error", err)
		return err
	}
	return nil
}

func (db *DB) Close() error {
	sqlDB, err := db.database.DB()
	if err != nil {
		logging.Logger.Error("failed to get sql.DB", "error", err)
		return err
	}
	return sqlDB.Close()
}

func (db *DB) GetDatabase() *gorm.DB {
	return db.database
}

func (db *DB) Ping() error {
	sqlDB, err := db.database.DB()
	if err != nil {
		logging.Logger.Error("failed to get sql.DB", "error", err)
		return err
	}
	return sqlDB.Ping()
}
