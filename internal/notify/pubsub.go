package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"cloud.google.com/go/pubsub"
	"google.golang.org/api/option"

	"github.com/raphaelgruber/reachbox/internal/models"
)

// publishFunc publishes one message and returns its server id.
type publishFunc func(ctx context.Context, msg *pubsub.Message) (string, error)

// PubSubSink publishes the webhook payload to a Pub/Sub topic.
type PubSubSink struct {
	publish publishFunc
	close   func() error
}

// NewPubSubSink connects to projectID and publishes to topicID.
func NewPubSubSink(ctx context.Context, projectID, topicID, credentialsFile string) (*PubSubSink, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}

	client, err := pubsub.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("create pubsub client: %w", err)
	}

	topic := client.Topic(topicID)
	return &PubSubSink{
		publish: func(ctx context.Context, msg *pubsub.Message) (string, error) {
			return topic.Publish(ctx, msg).Get(ctx)
		},
		close: func() error {
			topic.Stop()
			return client.Close()
		},
	}, nil
}

func (p *PubSubSink) Name() string { return "pubsub" }

func (p *PubSubSink) Deliver(ctx context.Context, email models.EmailRecord) error {
	payload := newPayload(email)
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	_, err = p.publish(ctx, &pubsub.Message{
		Data: data,
		Attributes: map[string]string{
			"event":       EventInterested,
			"account":     email.Account,
			"delivery_id": payload.DeliveryID,
		},
	})
	if err != nil {
		return fmt.Errorf("publish: %w", err)
	}
	return nil
}

// Close flushes pending messages and releases the client.
func (p *PubSubSink) Close() error {
	if p.close == nil {
		return nil
	}
	return p.close()
}
