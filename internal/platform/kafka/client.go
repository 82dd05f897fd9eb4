// Package kafka wraps the franz-go client used by the audit outbox relay and
// the settlement instruction consumer.
package kafka

import (
	"context"
	"errors"
	"fmt"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"
)

// ErrNotConfigured is returned when no brokers are configured.
var ErrNotConfigured = errors.New("kafka brokers not configured")

// Client is a producer-capable franz-go client.
type Client struct {
	cl *kgo.Client
}

// NewProducer creates a client for producing records.
func NewProducer(brokers []string, opts ...kgo.Opt) (*Client, error) {
	if len(brokers) == 0 {
		return nil, ErrNotConfigured
	}
	cl, err := kgo.NewClient(append([]kgo.Opt{
		kgo.SeedBrokers(brokers...),
		kgo.RequiredAcks(kgo.AllISRAcks()),
	}, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("kafka client: %w", err)
	}
	return &Client{cl: cl}, nil
}

// Produce synchronously writes one record.
func (c *Client) Produce(ctx context.Context, topic string, key, value []byte) error {
	rec := &kgo.Record{Topic: topic, Key: key, Value: value}
	if err := c.cl.ProduceSync(ctx, rec).FirstErr(); err != nil {
		return fmt.Errorf("produce to %s: %w", topic, err)
	}
	return nil
}

// EnsureTopics creates any missing topics. Topics that already exist are not
// an error.
func (c *Client) EnsureTopics(ctx context.Context, partitions int32, replication int16, topics ...string) error {
	adm := kadm.NewClient(c.cl)
	resp, err := adm.CreateTopics(ctx, partitions, replication, nil, topics...)
	if err != nil {
		return fmt.Errorf("create topics: %w", err)
	}
	for _, t := range resp.Sorted() {
		if t.Err != nil && !errors.Is(t.Err, kerr.TopicAlreadyExists) {
			return fmt.Errorf("create topic %s: %w", t.Topic, t.Err)
		}
	}
	return nil
}

// Health pings the cluster.
func (c *Client) Health(ctx context.Context) error {
	return c.cl.Ping(ctx)
}

func (c *Client) Close() {
	if c != nil {
		c.cl.Close()
	}
}
