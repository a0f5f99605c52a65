package pubsub

import (
	"context"
	"errors"
	"fmt"
	"strings"

	pubsub "cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/pubsub/v2/apiv1/pubsubpb"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/angelmondragon/tradepost/pkg/config"
	"github.com/angelmondragon/tradepost/pkg/logger"
)

// Client publishes marketplace events to one Pub/Sub topic.
type Client struct {
	client    *pubsub.Client
	publisher *pubsub.Publisher
	projectID string
	topic     string
	ordered   bool
}

var (
	errProjectIDRequired = errors.New("gcp project id is required")
	errTopicRequired     = errors.New("pubsub topic is required")
)

// NewClient creates a Pub/Sub v2 client and checks that the configured topic exists.
func NewClient(ctx context.Context, cfg config.PubSubConfig, logg *logger.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.ProjectID) == "" {
		return nil, errProjectIDRequired
	}
	topic := topicResourceName(cfg.ProjectID, cfg.Topic)
	if topic == "" {
		return nil, errTopicRequired
	}

	psClient, err := pubsub.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("creating pubsub client: %w", err)
	}

	publisher := psClient.Publisher(topic)
	publisher.EnableMessageOrdering = cfg.OrderByAggregate
	c := &Client{
		client:    psClient,
		publisher: publisher,
		projectID: cfg.ProjectID,
		topic:     topic,
		ordered:   cfg.OrderByAggregate,
	}

	if err := c.Ping(ctx); err != nil {
		_ = c.Close()
		return nil, err
	}

	if logg != nil {
		logg.Info(logg.WithField(ctx, "topic", topic), "pubsub client initialized")
	}
	return c, nil
}

// Topic returns the full topic resource name.
func (c *Client) Topic() string {
	if c == nil {
		return ""
	}
	return c.topic
}

// Ping verifies Pub/Sub connectivity by looking up the topic.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.client == nil {
		return errors.New("pubsub client not initialized")
	}
	_, err := c.client.TopicAdminClient.GetTopic(ctx, &pubsubpb.GetTopicRequest{Topic: c.topic})
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return fmt.Errorf("topic %q does not exist", c.topic)
		}
		return fmt.Errorf("checking topic %q: %w", c.topic, err)
	}
	return nil
}

// Publish sends one message and waits for the server id. With ordering on,
// messages sharing orderingKey are delivered in publish order; a failed
// publish pauses that key until the next attempt resumes it.
func (c *Client) Publish(ctx context.Context, orderingKey string, data []byte, attrs map[string]string) (string, error) {
	if c == nil || c.publisher == nil {
		return "", errors.New("pubsub client not initialized")
	}
	msg := &pubsub.Message{Data: data, Attributes: attrs}
	if c.ordered {
		msg.OrderingKey = orderingKey
	}
	id, err := c.publisher.Publish(ctx, msg).Get(ctx)
	if err != nil {
		if c.ordered && orderingKey != "" {
			c.publisher.ResumePublish(orderingKey)
		}
		return "", fmt.Errorf("publishing to %s: %w", c.topic, err)
	}
	return id, nil
}

// Close flushes pending messages and releases the client.
func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	if c.publisher != nil {
		c.publisher.Stop()
	}
	return c.client.Close()
}

func topicResourceName(projectID, name string) string {
	n := strings.TrimSpace(name)
	if n == "" {
		return ""
	}
	if strings.HasPrefix(n, "projects/") && strings.Contains(n, "/topics/") {
		return n
	}
	p := strings.TrimSpace(projectID)
	if p == "" {
		return ""
	}
	return fmt.Sprintf("projects/%s/topics/%s", p, n)
}
