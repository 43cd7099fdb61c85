package notify

import (
	"context"
	"log"
	"time"

	"smartqueue/token-service/internal/store"
)

// consumerName keys the publish offset row so restarts resume where the
// previous process left off.
const consumerName = "nats-publisher"

// Publisher is the transport side of the outbox relay. *nats.Conn
// satisfies it directly.
type Publisher interface {
	Publish(subject string, data []byte) error
}

type offsetStore interface {
	ListOutboxEvents(ctx context.Context, afterID int64, limit int) ([]store.OutboxEvent, error)
	LastPublishedID(ctx context.Context, consumer string) (int64, error)
	SetLastPublishedID(ctx context.Context, consumer string, id int64) error
}

type Relay struct {
	store         offsetStore
	publisher     Publisher
	subjectPrefix string
	batchSize     int
}

type Config struct {
	SubjectPrefix string
	BatchSize     int
}

func NewRelay(store offsetStore, publisher Publisher, cfg Config) *Relay {
	prefix := cfg.SubjectPrefix
	if prefix == "" {
		prefix = "tokens"
	}
	batch := cfg.BatchSize
	if batch <= 0 {
		batch = 50
	}
	return &Relay{
		store:         store,
		publisher:     publisher,
		subjectPrefix: prefix,
		batchSize:     batch,
	}
}

// Run drains one batch of unpublished outbox events. Events go out in
// insertion order and the offset is the serial id of the last delivered
// event, so a publish failure retries from the failed event and events
// sharing a created_at instant are never skipped across batches.
func (r *Relay) Run(ctx context.Context) error {
	last, err := r.store.LastPublishedID(ctx, consumerName)
	if err != nil {
		return err
	}

	events, err := r.store.ListOutboxEvents(ctx, last, r.batchSize)
	if err != nil {
		return err
	}

	published := last
	for _, event := range events {
		subject := r.subjectPrefix + "." + event.Type
		if err := r.publisher.Publish(subject, event.Payload); err != nil {
			log.Printf("notify publish error: subject=%s event=%s err=%v", subject, event.EventID, err)
			break
		}
		published = event.ID
	}

	if published > last {
		if err := r.store.SetLastPublishedID(ctx, consumerName, published); err != nil {
			return err
		}
	}
	return nil
}

func Start(ctx context.Context, interval time.Duration, relay *Relay) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := relay.Run(ctx); err != nil {
				log.Printf("notify relay error: %v", err)
			}
		}
	}
}
