package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"knowledge_backend/config"
	"knowledge_backend/pkg/logging"
)

const (
	cachePrefix = "cache:"
	queuePrefix = "queue:"
)

type Service struct {
	Rdb *redis.Client
}

func InitRedis(cfg *config.Config) (*Service, error) {
	redisUrl := cfg.RedisURL
	if redisUrl == "" {
		return nil, fmt.Errorf("empty redis url")
	}
	opt, err := redis.ParseURL(redisUrl)
	if err != nil {
		return nil, fmt.Errorf("could not parse Redis URL: %w", err)
	}
	rdb := redis.NewClient(opt)

	testCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := rdb.Ping(testCtx).Err(); err != nil {
		return nil, fmt.Errorf("could not connect to Redis: %w", err)
	}
	logging.Logger.Info("connected to redis", "addr", opt.Addr)
	return &Service{Rdb: rdb}, nil
}

// NewService wraps an existing client.
func NewService(rdb *redis.Client) *Service {
	return &Service{Rdb: rdb}
}

func (s *Service) Ping(ctx context.Context) error {
	return s.Rdb.Ping(ctx).Err()
}

func (s *Service) Close() error {
	return s.Rdb.Close()
}

func (s *Service) SetCache(key string, value interface{}, expiration time.Duration) error {
	jsonData, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal cache value: %w", err)
	}
	return s.Rdb.Set(context.Background(), cachePrefix+key, jsonData, expiration).Err()
}

// GetCache returns the raw JSON string; callers decode it.
func (s *Service) GetCache(key string) (interface{}, bool) {
	val, err := s.Rdb.Get(context.Background(), cachePrefix+key).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			logging.Logger.Warn("redis get failed", "key", key, "error", err)
		}
		return nil, false
	}
	return val, true
}

func (s *Service) DelCache(key string) error {
	return s.Rdb.Del(context.Background(), cachePrefix+key).Err()
}

func processingList(queueName string) string {
	return queuePrefix + queueName + ":processing"
}

func (s *Service) PushToQueue(ctx context.Context, queueName string, value string) error {
	return s.Rdb.LPush(ctx, queuePrefix+queueName, value).Err()
}

// ClaimFromQueue blocks up to timeout for the oldest entry and moves it to
// the processing list. It returns "" when nothing arrived.
func (s *Service) ClaimFromQueue(ctx context.Context, queueName string, timeout time.Duration) (string, error) {
	val, err := s.Rdb.BLMove(ctx, queuePrefix+queueName, processingList(queueName), "RIGHT", "LEFT", timeout).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	return val, err
}

// AckQueue drops a claimed entry from the processing list.
func (s *Service) AckQueue(ctx context.Context, queueName string, value string) error {
	return s.Rdb.LRem(ctx, processingList(queueName), 1, value).Err()
}

// RequeueProcessing returns entries left claimed by a previous process to
// the head of the queue.
func (s *Service) RequeueProcessing(ctx context.Context, queueName string) (int, error) {
	n := 0
	for {
		_, err := s.Rdb.LMove(ctx, processingList(queueName), queuePrefix+queueName, "RIGHT", "RIGHT").Result()
		if errors.Is(err, redis.Nil) {
			return n, nil
		}
		if err != nil {
			return n, err
		}
		n++
	}
}
