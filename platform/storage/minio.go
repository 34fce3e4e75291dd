package storage

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"knowledge_backend/config"
	"knowledge_backend/pkg/logging"
)

type MinioStorage struct {
	Client      *minio.Client
	Bucket      string
	Region      string
	StorageType string
}

func NewMinioStorage(cfg *config.Config) (*MinioStorage, error) {
	var (
		client *minio.Client
		err    error
	)
	switch cfg.StorageType {
	case "minio":
		client, err = minio.New(cfg.BucketEndpoint, &minio.Options{
			Creds:  credentials.NewStaticV4(cfg.BucketAccessID, cfg.BucketAccessKey, ""),
			Secure: cfg.UseSSL,
		})
	case "s3":
		client, err = minio.New("s3.amazonaws.com", &minio.Options{
			Creds:  credentials.NewStaticV4(cfg.BucketAccessID, cfg.BucketAccessKey, ""),
			Secure: cfg.UseSSL,
			Region: cfg.BucketRegion,
		})
	default:
		return nil, fmt.Errorf("unsupported bucket storage type %q", cfg.StorageType)
	}
	if err != nil {
		logging.Logger.Error("fail creating bucket client", "type", cfg.StorageType, "error", err)
		return nil, err
	}

	ss := &MinioStorage{
		Client:      client,
		Bucket:      cfg.BucketName,
		Region:      cfg.BucketRegion,
		StorageType: cfg.StorageType,
	}
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := ss.EnsureBucketExists(ctx); err != nil {
		return nil, err
	}
	logging.Logger.Info("storage service initialized",
		"type", cfg.StorageType,
		"bucket", cfg.BucketName,
		"region", cfg.BucketRegion,
	)
	return ss, nil
}

func (ss *MinioStorage) EnsureBucketExists(ctx context.Context) error {
	exists, err := ss.Client.BucketExists(ctx, ss.Bucket)
	if err != nil {
		logging.Logger.Error("fail EnsureBucketExists", "bucket", ss.Bucket, "error", err)
		return err
	}
	if exists {
		return nil
	}
	err = ss.Client.MakeBucket(ctx, ss.Bucket, minio.MakeBucketOptions{Region: ss.Region})
	if err != nil {
		if ss.StorageType == "s3" {
			logging.Logger.Warn("could not create S3 bucket (might exist or no permission)",
				"bucket", ss.Bucket, "error", err)
			return nil
		}
		logging.Logger.Error("fail EnsureBucketExists", "bucket", ss.Bucket, "error", err)
		return err
	}
	logging.Logger.Info("bucket created", "bucket", ss.Bucket)
	return nil
}

func (ss *MinioStorage) Save(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	if size <= 0 {
		size = -1
	}
	_, err := ss.Client.PutObject(ctx, ss.Bucket, key, r, size, minio.PutObjectOptions{ContentType: contentType})
	return err
}

func (ss *MinioStorage) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	exists, err := ss.Exists(ctx, key)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, ErrNotExist
	}
	return ss.Client.GetObject(ctx, ss.Bucket, key, minio.GetObjectOptions{})
}

func (ss *MinioStorage) Remove(ctx context.Context, key string) error {
	return ss.Client.RemoveObject(ctx, ss.Bucket, key, minio.RemoveObjectOptions{})
}

func (ss *MinioStorage) Exists(ctx context.Context, key string) (bool, error) {
	_, err := ss.Client.StatObject(ctx, ss.Bucket, key, minio.StatObjectOptions{})
	if err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return false, nil
		}
		return false, err
	}
	return true, nil
}
