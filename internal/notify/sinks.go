package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/raphaelgruber/reachbox/internal/config"
)

// SinksFromConfig builds every sink whose settings are present, in the
// order Slack, webhook, FCM, Pub/Sub. The returned close function
// releases sink clients.
func SinksFromConfig(ctx context.Context, cfg config.Config, logger *slog.Logger) ([]Sink, func() error, error) {
	var (
		sinks   []Sink
		closers []func() error
	)
	closeAll := func() error {
		var errs []error
		for _, c := range closers {
			errs = append(errs, c())
		}
		return errors.Join(errs...)
	}

	if cfg.SlackToken != "" {
		sinks = append(sinks, NewSlackSink(cfg.SlackToken, cfg.SlackChannel))
	}
	if cfg.WebhookURL != "" {
		sinks = append(sinks, NewWebhookSink(cfg.WebhookURL, cfg.NotifyTimeout))
	}
	if len(cfg.FCMTokens) > 0 {
		fcm, err := NewFCMSink(ctx, cfg.FCMCredentials, cfg.FCMTokens)
		if err != nil {
			_ = closeAll()
			return nil, nil, fmt.Errorf("fcm sink: %w", err)
		}
		sinks = append(sinks, fcm)
	}
	if cfg.PubSubProject != "" && cfg.PubSubTopic != "" {
		ps, err := NewPubSubSink(ctx, cfg.PubSubProject, cfg.PubSubTopic, cfg.PubSubCredentials)
		if err != nil {
			_ = closeAll()
			return nil, nil, fmt.Errorf("pubsub sink: %w", err)
		}
		sinks = append(sinks, ps)
		closers = append(closers, ps.Close)
	}

	logger.Info("notification sinks configured", "sinks", sinkNames(sinks))

	return sinks, closeAll, nil
}
