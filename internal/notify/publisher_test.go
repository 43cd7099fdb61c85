package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"smartqueue/token-service/internal/store"
)

type fakeOffsetStore struct {
	events []store.OutboxEvent
	offset int64
}

func (f *fakeOffsetStore) ListOutboxEvents(ctx context.Context, afterID int64, limit int) ([]store.OutboxEvent, error) {
	var out []store.OutboxEvent
	for _, event := range f.events {
		if event.ID > afterID {
			out = append(out, event)
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (f *fakeOffsetStore) LastPublishedID(ctx context.Context, consumer string) (int64, error) {
	return f.offset, nil
}

func (f *fakeOffsetStore) SetLastPublishedID(ctx context.Context, consumer string, id int64) error {
	f.offset = id
	return nil
}

type fakePublisher struct {
	subjects []string
	failOn   string
}

func (f *fakePublisher) Publish(subject string, data []byte) error {
	if f.failOn != "" && subject == f.failOn {
		return errors.New("connection lost")
	}
	f.subjects = append(f.subjects, subject)
	return nil
}

func eventAt(id int64, eventType string, at time.Time) store.OutboxEvent {
	return store.OutboxEvent{
		ID:        id,
		EventID:   fmt.Sprintf("%s-%d", eventType, id),
		Type:      eventType,
		Payload:   json.RawMessage(`{}`),
		CreatedAt: at,
	}
}

func TestRelayPublishesInOrder(t *testing.T) {
	base := time.Date(2030, 1, 2, 9, 0, 0, 0, time.UTC)
	fake := &fakeOffsetStore{
		events: []store.OutboxEvent{
			eventAt(1, store.EventTokenBooked, base),
			eventAt(2, store.EventTokenDone, base.Add(time.Minute)),
			eventAt(3, store.EventTokenExpired, base.Add(2*time.Minute)),
		},
	}
	pub := &fakePublisher{}
	relay := NewRelay(fake, pub, Config{SubjectPrefix: "tokens"})

	if err := relay.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}

	want := []string{"tokens.token.booked", "tokens.token.done", "tokens.token.expired"}
	if len(pub.subjects) != len(want) {
		t.Fatalf("published %v, want %v", pub.subjects, want)
	}
	for i := range want {
		if pub.subjects[i] != want[i] {
			t.Fatalf("published %v, want %v", pub.subjects, want)
		}
	}
	if fake.offset != 3 {
		t.Fatalf("offset = %d, want last event id", fake.offset)
	}
}

func TestRelaySkipsAlreadyPublished(t *testing.T) {
	base := time.Date(2030, 1, 2, 9, 0, 0, 0, time.UTC)
	fake := &fakeOffsetStore{
		offset: 1,
		events: []store.OutboxEvent{
			eventAt(1, store.EventTokenBooked, base),
			eventAt(2, store.EventTokenDone, base.Add(time.Minute)),
		},
	}
	pub := &fakePublisher{}
	relay := NewRelay(fake, pub, Config{})

	if err := relay.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(pub.subjects) != 1 || pub.subjects[0] != "tokens.token.done" {
		t.Fatalf("published %v, want only the event past the offset", pub.subjects)
	}
}

func TestRelayStopsAtPublishFailure(t *testing.T) {
	base := time.Date(2030, 1, 2, 9, 0, 0, 0, time.UTC)
	fake := &fakeOffsetStore{
		events: []store.OutboxEvent{
			eventAt(1, store.EventTokenBooked, base),
			eventAt(2, store.EventTokenDone, base.Add(time.Minute)),
			eventAt(3, store.EventTokenCancelled, base.Add(2*time.Minute)),
		},
	}
	pub := &fakePublisher{failOn: "tokens.token.done"}
	relay := NewRelay(fake, pub, Config{})

	if err := relay.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}

	// Only the first event went out, so the offset must not pass it.
	if len(pub.subjects) != 1 || pub.subjects[0] != "tokens.token.booked" {
		t.Fatalf("published %v", pub.subjects)
	}
	if fake.offset != 1 {
		t.Fatalf("offset = %d, want first event id", fake.offset)
	}

	// The next run retries from the failed event.
	pub.failOn = ""
	if err := relay.Run(context.Background()); err != nil {
		t.Fatalf("second run: %v", err)
	}
	if len(pub.subjects) != 3 {
		t.Fatalf("published %v after retry", pub.subjects)
	}
	if fake.offset != 3 {
		t.Fatalf("offset = %d after retry", fake.offset)
	}
}

func TestRelayBatchLimit(t *testing.T) {
	base := time.Date(2030, 1, 2, 9, 0, 0, 0, time.UTC)
	fake := &fakeOffsetStore{}
	for i := int64(1); i <= 5; i++ {
		fake.events = append(fake.events, eventAt(i, store.EventTokenBooked, base.Add(time.Duration(i)*time.Minute)))
	}
	pub := &fakePublisher{}
	relay := NewRelay(fake, pub, Config{BatchSize: 2})

	if err := relay.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(pub.subjects) != 2 {
		t.Fatalf("published %d events, want batch of 2", len(pub.subjects))
	}

	if err := relay.Run(context.Background()); err != nil {
		t.Fatalf("second run: %v", err)
	}
	if len(pub.subjects) != 4 {
		t.Fatalf("published %d events after second batch", len(pub.subjects))
	}
}

func TestRelayDeliversSameTimestampAcrossBatches(t *testing.T) {
	// One sweep stamps every expired event with the same created_at. Paging
	// by id must still deliver all of them even one per run.
	sweepAt := time.Date(2030, 1, 2, 17, 0, 0, 0, time.UTC)
	fake := &fakeOffsetStore{
		events: []store.OutboxEvent{
			eventAt(1, store.EventTokenExpired, sweepAt),
			eventAt(2, store.EventTokenExpired, sweepAt),
			eventAt(3, store.EventTokenExpired, sweepAt),
		},
	}
	pub := &fakePublisher{}
	relay := NewRelay(fake, pub, Config{BatchSize: 1})

	for i := 0; i < 5; i++ {
		if err := relay.Run(context.Background()); err != nil {
			t.Fatalf("run %d: %v", i, err)
		}
	}

	if len(pub.subjects) != 3 {
		t.Fatalf("published %d of 3 same-timestamp events", len(pub.subjects))
	}
	if fake.offset != 3 {
		t.Fatalf("offset = %d, want last event id", fake.offset)
	}
}
