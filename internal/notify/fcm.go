package notify

import (
	"context"
	"fmt"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"google.golang.org/api/option"

	"github.com/raphaelgruber/reachbox/internal/models"
)

// multicastSender is the part of the FCM client the sink uses.
type multicastSender interface {
	SendEachForMulticast(ctx context.Context, message *messaging.MulticastMessage) (*messaging.BatchResponse, error)
}

// FCMSink sends a push notification to a fixed set of device tokens.
type FCMSink struct {
	client multicastSender
	tokens []string
}

// NewFCMSink creates an FCM sink. An empty credentialsFile uses
// application default credentials.
func NewFCMSink(ctx context.Context, credentialsFile string, tokens []string) (*FCMSink, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}

	app, err := firebase.NewApp(ctx, nil, opts...)
	if err != nil {
		return nil, fmt.Errorf("initialize firebase app: %w", err)
	}

	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("get messaging client: %w", err)
	}

	return &FCMSink{client: client, tokens: tokens}, nil
}

func (f *FCMSink) Name() string { return "fcm" }

// Deliver fails only when no device received the push.
func (f *FCMSink) Deliver(ctx context.Context, email models.EmailRecord) error {
	if len(f.tokens) == 0 {
		return nil
	}

	message := &messaging.MulticastMessage{
		Tokens: f.tokens,
		Notification: &messaging.Notification{
			Title: "New interested lead: " + email.From,
			Body:  models.Preview(email.Subject, previewChars),
		},
		Data: map[string]string{
			"event":   EventInterested,
			"account": email.Account,
			"uid":     email.UID,
		},
	}

	resp, err := f.client.SendEachForMulticast(ctx, message)
	if err != nil {
		return fmt.Errorf("send multicast: %w", err)
	}
	if resp.SuccessCount == 0 {
		return fmt.Errorf("push failed for all %d tokens", resp.FailureCount)
	}
	return nil
}
