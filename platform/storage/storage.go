package storage

import (
	"context"
	"errors"
	"fmt"
	"io"

	"knowledge_backend/config"
)

// ErrNotExist is returned when a key has no stored object.
var ErrNotExist = errors.New("stored file does not exist")

// Storage persists uploaded files under slash-separated keys of the form
// <user_id>/<stored_filename>.
type Storage interface {
	Save(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Remove(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
}

func InitStorageService(cfg *config.Config) (Storage, error) {
	switch cfg.StorageType {
	case "", "local":
		return NewLocalStorage(cfg.StorageRoot)
	case "minio", "s3":
		return NewMinioStorage(cfg)
	default:
		return nil, fmt.Errorf("unsupported storage type %q", cfg.StorageType)
	}
}
