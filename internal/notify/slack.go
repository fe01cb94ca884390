package notify

import (
	"context"
	"fmt"

	"github.com/slack-go/slack"

	"github.com/raphaelgruber/reachbox/internal/models"
)

// previewChars is how much of the body goes into chat notifications.
const previewChars = 200

// SlackSink posts a message to a Slack channel.
type SlackSink struct {
	client  *slack.Client
	channel string
}

// NewSlackSink creates a Slack sink. Options are passed to the Slack client.
func NewSlackSink(token, channel string, opts ...slack.Option) *SlackSink {
	return &SlackSink{client: slack.New(token, opts...), channel: channel}
}

func (s *SlackSink) Name() string { return "slack" }

func (s *SlackSink) Deliver(ctx context.Context, email models.EmailRecord) error {
	_, _, err := s.client.PostMessageContext(ctx, s.channel, slackMessage(email)...)
	if err != nil {
		return fmt.Errorf("post slack message: %w", err)
	}
	return nil
}

func slackMessage(email models.EmailRecord) []slack.MsgOption {
	text := fmt.Sprintf("New Interested Email from %s", email.From)
	header := slack.NewTextBlockObject(slack.MarkdownType,
		fmt.Sprintf("*From:* %s\n*Subject:* %s", email.From, email.Subject), false, false)
	preview := slack.NewTextBlockObject(slack.MarkdownType,
		models.Preview(email.Body, previewChars), false, false)

	return []slack.MsgOption{
		slack.MsgOptionText(text, false),
		slack.MsgOptionBlocks(
			slack.NewSectionBlock(header, nil, nil),
			slack.NewSectionBlock(preview, nil, nil),
		),
	}
}
