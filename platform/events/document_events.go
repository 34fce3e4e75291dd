package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"knowledge_backend/models"
	"knowledge_backend/pkg/logging"
)

const (
	DocumentEventChannel = "document:events"
	subscriberBuffer     = 100
)

// Publisher fans document lifecycle events out to live subscribers.
// Delivery is best effort: slow or absent subscribers miss events.
type Publisher interface {
	PublishDocumentEvent(ctx context.Context, event *models.DocumentEvent) error
	SubscribeDocumentEvents(ctx context.Context) (<-chan *models.DocumentEvent, error)
}

// EventPublisher uses Redis pub/sub so every API replica sees progress from
// every worker.
type EventPublisher struct {
	redisClient *redis.Client
}

func NewEventPublisher(redisClient *redis.Client) *EventPublisher {
	return &EventPublisher{redisClient: redisClient}
}

func (p *EventPublisher) PublishDocumentEvent(ctx context.Context, event *models.DocumentEvent) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	data, err := json.Marshal(event)
	if err != nil {
		logging.Logger.Error("fail PublishDocumentEvent", "error", err)
		return err
	}
	if err := p.redisClient.Publish(ctx, DocumentEventChannel, string(data)).Err(); err != nil {
		logging.Logger.Error("fail PublishDocumentEvent", "doc_id", event.DocID, "error", err)
		return err
	}
	logging.Logger.Debug("PublishDocumentEvent", "type", event.Type, "doc_id", event.DocID)
	return nil
}

func (p *EventPublisher) SubscribeDocumentEvents(ctx context.Context) (<-chan *models.DocumentEvent, error) {
	pubsub := p.redisClient.Subscribe(ctx, DocumentEventChannel)
	if _, err := pubsub.Receive(ctx); err != nil {
		logging.Logger.Error("fail SubscribeDocumentEvents", "error", err)
		_ = pubsub.Close()
		return nil, err
	}
	ch := make(chan *models.DocumentEvent, subscriberBuffer)

	go func() {
		defer close(ch)
		defer func() {
			if err := pubsub.Close(); err != nil {
				logging.Logger.Error("fail closing pubsub", "error", err)
			}
		}()

		messages := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-messages:
				if !ok {
					return
				}
				var event models.DocumentEvent
				if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
					logging.Logger.Error("failed to unmarshal event", "error", err)
					continue
				}

				select {
				case ch <- &event:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return ch, nil
}
