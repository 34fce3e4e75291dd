package queue

import (
	"context"
	"errors"
	"time"

	"knowledge_backend/pkg/logging"
	"knowledge_backend/platform/redis"
)

// IngestQueueName is the Redis list carrying document ids to ingest.
const IngestQueueName = "knowledge:ingest"

var ErrQueueFull = errors.New("job queue is full")

// JobQueue hands document ids from the request path to the worker pool.
// Claimed ids stay pending until acked; delivery is at-least-once.
type JobQueue interface {
	Submit(ctx context.Context, documentID string) error
	// Claim waits briefly for the next id; "" means nothing arrived.
	Claim(ctx context.Context) (string, error)
	Ack(ctx context.Context, documentID string) error
}

type RedisQueue struct {
	redis       *redis.Service
	name        string
	pollTimeout time.Duration
}

func NewRedisQueue(rs *redis.Service, name string) *RedisQueue {
	return &RedisQueue{redis: rs, name: name, pollTimeout: time.Second}
}

func (q *RedisQueue) Submit(ctx context.Context, documentID string) error {
	return q.redis.PushToQueue(ctx, q.name, documentID)
}

func (q *RedisQueue) Claim(ctx context.Context) (string, error) {
	return q.redis.ClaimFromQueue(ctx, q.name, q.pollTimeout)
}

func (q *RedisQueue) Ack(ctx context.Context, documentID string) error {
	return q.redis.AckQueue(ctx, q.name, documentID)
}

// Recover puts back jobs a crashed process claimed but never acked.
func (q *RedisQueue) Recover(ctx context.Context) error {
	n, err := q.redis.RequeueProcessing(ctx, q.name)
	if err != nil {
		return err
	}
	if n > 0 {
		logging.Logger.Info("requeued unfinished ingestion jobs", "count", n)
	}
	return nil
}

// MemoryQueue keeps jobs in process. Pending jobs are lost on restart.
type MemoryQueue struct {
	jobs        chan string
	pollTimeout time.Duration
}

func NewMemoryQueue(capacity int) *MemoryQueue {
	if capacity <= 0 {
		capacity = 1024
	}
	return &MemoryQueue{jobs: make(chan string, capacity), pollTimeout: time.Second}
}

func (q *MemoryQueue) Submit(_ context.Context, documentID string) error {
	select {
	case q.jobs <- documentID:
		return nil
	default:
		return ErrQueueFull
	}
}

func (q *MemoryQueue) Claim(ctx context.Context) (string, error) {
	timer := time.NewTimer(q.pollTimeout)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case id := <-q.jobs:
		return id, nil
	case <-timer.C:
		return "", nil
	}
}

func (q *MemoryQueue) Ack(context.Context, string) error {
	return nil
}
