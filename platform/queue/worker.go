package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"knowledge_backend/pkg/logging"
)

// Handler processes one job. Its error is logged and the job is acked
// either way, since failures are recorded on the document itself. Jobs cut
// short by shutdown stay unacked.
type Handler func(ctx context.Context, documentID string) error

type WorkerPool struct {
	queue       JobQueue
	handler     Handler
	concurrency int
	retryDelay  time.Duration
	wg          sync.WaitGroup
}

func NewWorkerPool(queue JobQueue, handler Handler, concurrency int) *WorkerPool {
	if concurrency < 1 {
		concurrency = 1
	}
	return &WorkerPool{
		queue:       queue,
		handler:     handler,
		concurrency: concurrency,
		retryDelay:  time.Second,
	}
}

func (w *WorkerPool) Start(ctx context.Context) {
	logging.Logger.Info("starting ingestion worker pool", "concurrency", w.concurrency)
	for i := 0; i < w.concurrency; i++ {
		w.wg.Add(1)
		go w.runLoop(ctx, i+1)
	}
}

// Wait blocks until every worker returned after ctx was cancelled.
func (w *WorkerPool) Wait() {
	w.wg.Wait()
}

func (w *WorkerPool) runLoop(ctx context.Context, workerID int) {
	defer w.wg.Done()
	for {
		if ctx.Err() != nil {
			logging.Logger.Info("worker loop stopped", "worker_id", workerID)
			return
		}

		documentID, err := w.queue.Claim(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				continue
			}
			logging.Logger.Warn("claim job failed", "worker_id", workerID, "error", err)
			select {
			case <-ctx.Done():
			case <-time.After(w.retryDelay):
			}
			continue
		}
		if documentID == "" {
			continue
		}

		if err := w.run(ctx, workerID, documentID); err != nil {
			logging.Logger.Error("ingestion job failed", "worker_id", workerID, "doc_id", documentID, "error", err)
		}
		if ctx.Err() != nil {
			// interrupted by shutdown; left claimed so Recover replays it
			logging.Logger.Info("job interrupted", "worker_id", workerID, "doc_id", documentID)
			return
		}
		ackCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := w.queue.Ack(ackCtx, documentID); err != nil {
			logging.Logger.Warn("ack job failed", "worker_id", workerID, "doc_id", documentID, "error", err)
		}
		cancel()
	}
}

func (w *WorkerPool) run(ctx context.Context, workerID int, documentID string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			logging.Logger.Error("job handler panic", "worker_id", workerID, "doc_id", documentID, "panic", r)
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return w.handler(ctx, documentID)
}
