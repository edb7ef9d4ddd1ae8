// Package eventsbus fans out every appended eventchain.Event to an
// external Cloud Pub/Sub topic for durable, cross-service delivery;
// off by default, since the chain itself is already the durable record;
// this is for downstream consumers (billing exporters, SIEM mirrors)
// that want a push feed instead of polling the chain. Topics are checked
// and created on demand, publishes carry a per-stream ordering key,
// and publish results are logged without blocking the append path.
package eventsbus

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"cloud.google.com/go/pubsub"

	"github.com/nooterra/substrate/internal/eventchain"
)

// Bus publishes chain events to a Cloud Pub/Sub topic.
type Bus struct {
	client *pubsub.Client
	topic  *pubsub.Topic
	log    *slog.Logger
}

// New connects to projectID and ensures topicID exists, creating it if
// necessary.
func New(ctx context.Context, projectID, topicID string, log *slog.Logger) (*Bus, error) {
	if log == nil {
		log = slog.Default()
	}
	client, err := pubsub.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("eventsbus: new client: %w", err)
	}

	topic := client.Topic(topicID)
	exists, err := topic.Exists(ctx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("eventsbus: topic exists: %w", err)
	}
	if !exists {
		topic, err = client.CreateTopic(ctx, topicID)
		if err != nil {
			client.Close()
			return nil, fmt.Errorf("eventsbus: create topic: %w", err)
		}
	}
	topic.EnableMessageOrdering = true

	return &Bus{client: client, topic: topic, log: log.With("component", "eventsbus")}, nil
}

// Publish fans out ev, ordered per stream (the ordering key is the event's
// StreamID, which does not include the tenant id). Publish never
// blocks the caller on network latency; failures are logged, not
// returned, since the event is already durably recorded in the chain
// itself before this is ever called.
func (b *Bus) Publish(ev eventchain.Event) {
	payload, err := json.Marshal(ev)
	if err != nil {
		b.log.Error("marshal event", "id", ev.ID, "error", err)
		return
	}

	msg := &pubsub.Message{
		Data: payload,
		Attributes: map[string]string{
			"event-type": ev.Type,
			"event-id":   ev.ID,
			"stream-id":  ev.StreamID,
			"at":         ev.At.Format(time.RFC3339Nano),
		},
		OrderingKey: ev.StreamID,
	}

	result := b.topic.Publish(context.Background(), msg)
	go func() {
		if _, err := result.Get(context.Background()); err != nil {
			b.log.Warn("publish failed", "id", ev.ID, "error", err)
		}
	}()
}

// Close stops the topic and closes the underlying client.
func (b *Bus) Close() error {
	b.topic.Stop()
	return b.client.Close()
}
