package pubsub

import (
	"context"
	"errors"
	"testing"

	"github.com/angelmondragon/tradepost/pkg/config"
)

func TestTopicResourceName(t *testing.T) {
	cases := []struct {
		project, name, want string
	}{
		{"tp-dev", "marketplace-events", "projects/tp-dev/topics/marketplace-events"},
		{"tp-dev", " marketplace-events ", "projects/tp-dev/topics/marketplace-events"},
		{"", "projects/other/topics/events", "projects/other/topics/events"},
		{"", "marketplace-events", ""},
		{"tp-dev", "", ""},
	}
	for _, tc := range cases {
		if got := topicResourceName(tc.project, tc.name); got != tc.want {
			t.Fatalf("topicResourceName(%q, %q) = %q, want %q", tc.project, tc.name, got, tc.want)
		}
	}
}

func TestNewClientValidatesConfig(t *testing.T) {
	_, err := NewClient(context.Background(), config.PubSubConfig{Topic: "events"}, nil)
	if !errors.Is(err, errProjectIDRequired) {
		t.Fatalf("expected project id error, got %v", err)
	}
	_, err = NewClient(context.Background(), config.PubSubConfig{ProjectID: "tp-dev"}, nil)
	if !errors.Is(err, errTopicRequired) {
		t.Fatalf("expected topic error, got %v", err)
	}
}

func TestNilClientIsSafe(t *testing.T) {
	var c *Client
	if c.Topic() != "" {
		t.Fatal("nil client has no topic")
	}
	if err := c.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := c.Ping(context.Background()); err == nil {
		t.Fatal("expected ping error on nil client")
	}
	if _, err := c.Publish(context.Background(), "k", nil, nil); err == nil {
		t.Fatal("expected publish error on nil client")
	}
}
