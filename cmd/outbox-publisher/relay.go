package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/angelmondragon/tradepost/pkg/config"
)

// relay hands one decoded outbox event to the broker.
type relay interface {
	Name() string
	Destination() string
	Ping(ctx context.Context) error
	Publish(ctx context.Context, msg relayMessage) error
}

type relayMessage struct {
	EventID       string
	EventType     string
	AggregateType string
	AggregateID   string
	OccurredAt    time.Time
	Payload       []byte
}

func (m relayMessage) attributes() map[string]string {
	return map[string]string{
		"event_id":       m.EventID,
		"event_type":     m.EventType,
		"aggregate_type": m.AggregateType,
		"aggregate_id":   m.AggregateID,
		"occurred_at":    m.OccurredAt.Format(time.RFC3339Nano),
	}
}

type streamClient interface {
	Ping(context.Context) error
	XAdd(ctx context.Context, stream string, maxLen int64, values map[string]any) (string, error)
	StreamKey(name string) string
}

type topicPublisher interface {
	Ping(context.Context) error
	Publish(ctx context.Context, orderingKey string, data []byte, attrs map[string]string) (string, error)
	Topic() string
}

// newRelay picks the transport named in cfg. Only the client for that
// transport has to be set.
func newRelay(cfg config.OutboxConfig, streams streamClient, topic topicPublisher) (relay, error) {
	switch cfg.TransportName() {
	case config.OutboxTransportRedis:
		if streams == nil {
			return nil, errors.New("redis client is required")
		}
		if cfg.Stream == "" {
			return nil, errors.New("outbox stream name is required")
		}
		return &streamRelay{streams: streams, stream: streams.StreamKey(cfg.Stream), maxLen: cfg.StreamMaxLen}, nil
	case config.OutboxTransportPubSub:
		if topic == nil {
			return nil, errors.New("pubsub client is required")
		}
		return &topicRelay{topic: topic}, nil
	default:
		return nil, fmt.Errorf("unknown outbox transport %q", cfg.Transport)
	}
}

type streamRelay struct {
	streams streamClient
	stream  string
	maxLen  int64
}

func (r *streamRelay) Name() string                   { return config.OutboxTransportRedis }
func (r *streamRelay) Destination() string            { return r.stream }
func (r *streamRelay) Ping(ctx context.Context) error { return r.streams.Ping(ctx) }

func (r *streamRelay) Publish(ctx context.Context, msg relayMessage) error {
	values := make(map[string]any, 6)
	for k, v := range msg.attributes() {
		values[k] = v
	}
	values["payload"] = string(msg.Payload)
	_, err := r.streams.XAdd(ctx, r.stream, r.maxLen, values)
	return err
}

// topicRelay orders messages by aggregate, so one listing's events arrive in
// the order they were written.
type topicRelay struct {
	topic topicPublisher
}

func (r *topicRelay) Name() string                   { return config.OutboxTransportPubSub }
func (r *topicRelay) Destination() string            { return r.topic.Topic() }
func (r *topicRelay) Ping(ctx context.Context) error { return r.topic.Ping(ctx) }

func (r *topicRelay) Publish(ctx context.Context, msg relayMessage) error {
	_, err := r.topic.Publish(ctx, msg.AggregateID, msg.Payload, msg.attributes())
	return err
}
