package main

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/angelmondragon/tradepost/pkg/config"
	"github.com/angelmondragon/tradepost/pkg/db/models"
	"github.com/angelmondragon/tradepost/pkg/enums"
	"github.com/angelmondragon/tradepost/pkg/logger"
)

func TestServicePublishesToTopicByAggregate(t *testing.T) {
	first := offerEvent(t, "evt-1", 0)
	second := offerEvent(t, "evt-2", 0)
	second.AggregateID = first.AggregateID
	repo := &fakeRepo{events: []models.OutboxEvent{first, second}}
	topic := &fakeTopic{}

	service, err := NewService(ServiceParams{
		Config: &config.Config{Outbox: config.OutboxConfig{
			Transport:    config.OutboxTransportPubSub,
			BatchSize:    2,
			PollInterval: 100 * time.Millisecond,
			MaxAttempts:  5,
		}},
		Logger:     logger.New(logger.Options{ServiceName: "outbox-publisher-test", Output: io.Discard}),
		DB:         &fakeDB{},
		Topic:      topic,
		Repository: repo,
	})
	if err != nil {
		t.Fatalf("failed to construct service: %v", err)
	}
	if _, err := service.processBatch(context.Background()); err != nil {
		t.Fatalf("process batch returned error: %v", err)
	}

	if len(topic.published) != 2 {
		t.Fatalf("expected two messages, got %d", len(topic.published))
	}
	for i, msg := range topic.published {
		if msg.orderingKey != first.AggregateID.String() {
			t.Fatalf("message %d: unexpected ordering key %q", i, msg.orderingKey)
		}
		if msg.attrs["event_type"] != string(enums.EventOfferCreated) {
			t.Fatalf("message %d: unexpected event type %q", i, msg.attrs["event_type"])
		}
		if string(msg.data) != string(repo.events[i].Payload) {
			t.Fatalf("message %d: payload not forwarded as data", i)
		}
	}
	if topic.published[0].attrs["event_id"] != "evt-1" || topic.published[1].attrs["event_id"] != "evt-2" {
		t.Fatalf("messages out of order: %v, %v", topic.published[0].attrs, topic.published[1].attrs)
	}
	if len(repo.published) != 2 {
		t.Fatalf("expected both rows marked, got %d", len(repo.published))
	}
}

func TestNewRelayRequiresClientForTransport(t *testing.T) {
	cases := []struct {
		name    string
		cfg     config.OutboxConfig
		streams streamClient
		topic   topicPublisher
		want    string
	}{
		{name: "redis default", cfg: config.OutboxConfig{Stream: "events"}, streams: &fakeStreams{}, want: config.OutboxTransportRedis},
		{name: "redis without client", cfg: config.OutboxConfig{Stream: "events"}, topic: &fakeTopic{}},
		{name: "redis without stream", cfg: config.OutboxConfig{}, streams: &fakeStreams{}},
		{name: "pubsub", cfg: config.OutboxConfig{Transport: "PubSub"}, topic: &fakeTopic{}, want: config.OutboxTransportPubSub},
		{name: "pubsub without client", cfg: config.OutboxConfig{Transport: "pubsub"}, streams: &fakeStreams{}},
		{name: "unknown", cfg: config.OutboxConfig{Transport: "kafka"}, streams: &fakeStreams{}, topic: &fakeTopic{}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rel, err := newRelay(tc.cfg, tc.streams, tc.topic)
			if tc.want == "" {
				if err == nil {
					t.Fatalf("expected error, got relay %q", rel.Name())
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if rel.Name() != tc.want {
				t.Fatalf("expected %s relay, got %s", tc.want, rel.Name())
			}
		})
	}
}

type topicMessage struct {
	orderingKey string
	data        []byte
	attrs       map[string]string
}

type fakeTopic struct {
	published []topicMessage
}

func (f *fakeTopic) Ping(context.Context) error { return nil }

func (f *fakeTopic) Topic() string { return "projects/tp-test/topics/marketplace-events" }

func (f *fakeTopic) Publish(_ context.Context, orderingKey string, data []byte, attrs map[string]string) (string, error) {
	f.published = append(f.published, topicMessage{orderingKey: orderingKey, data: data, attrs: attrs})
	return "msg-1", nil
}
