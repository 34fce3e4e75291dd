package events

import (
	"context"
	"sync"
	"time"

	"knowledge_backend/models"
	"knowledge_backend/pkg/logging"
)

// LocalPublisher broadcasts within one process. Used when Redis is not
// configured.
type LocalPublisher struct {
	mu   sync.RWMutex
	subs map[chan *models.DocumentEvent]struct{}
}

func NewLocalPublisher() *LocalPublisher {
	return &LocalPublisher{subs: make(map[chan *models.DocumentEvent]struct{})}
}

func (p *LocalPublisher) PublishDocumentEvent(_ context.Context, event *models.DocumentEvent) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	for ch := range p.subs {
		e := *event
		select {
		case ch <- &e:
		default:
			logging.Logger.Warn("dropping document event for slow subscriber", "doc_id", event.DocID)
		}
	}
	return nil
}

func (p *LocalPublisher) SubscribeDocumentEvents(ctx context.Context) (<-chan *models.DocumentEvent, error) {
	ch := make(chan *models.DocumentEvent, subscriberBuffer)

	p.mu.Lock()
	p.subs[ch] = struct{}{}
	p.mu.Unlock()

	go func() {
		<-ctx.Done()
		p.mu.Lock()
		delete(p.subs, ch)
		close(ch)
		p.mu.Unlock()
	}()
	return ch, nil
}
