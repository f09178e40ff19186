package notify

import (
	"context"
	"fmt"

	"github.com/slack-go/slack"
)

// SlackSink posts events to a Slack incoming webhook.
type SlackSink struct {
	url     string
	channel string
	post    func(ctx context.Context, url string, msg *slack.WebhookMessage) error
}

// NewSlackSink posts to the incoming-webhook url. channel may be empty.
func NewSlackSink(url, channel string) *SlackSink {
	return &SlackSink{url: url, channel: channel, post: slack.PostWebhookContext}
}

// Name implements Sink.
func (s *SlackSink) Name() string { return "slack" }

// Deliver implements Sink.
func (s *SlackSink) Deliver(ctx context.Context, evt Event) error {
	if err := s.post(ctx, s.url, slackMessage(evt, s.channel)); err != nil {
		return fmt.Errorf("slack webhook: %w", err)
	}
	return nil
}

func slackMessage(evt Event, channel string) *slack.WebhookMessage {
	p := evt.Payload
	color := "#2eb886"
	if evt.Kind == KindWorkStarted {
		color = "#1d9bd1"
	}
	fields := []slack.AttachmentField{
		{Title: "Job", Value: p.JobNumber, Short: true},
		{Title: "Part", Value: p.PartNumber, Short: true},
	}
	if p.StageName != "" {
		fields = append(fields, slack.AttachmentField{Title: "Stage", Value: p.StageName, Short: true})
	}
	if p.OperatorName != "" {
		fields = append(fields, slack.AttachmentField{Title: "Operator", Value: p.OperatorName, Short: true})
	}
	return &slack.WebhookMessage{
		Channel: channel,
		Text:    Summary(evt),
		Attachments: []slack.Attachment{{
			Color:  color,
			Title:  Title(evt) + ": " + p.TaskName,
			Fields: fields,
			Footer: "shopfloor " + evt.ID,
		}},
	}
}
