package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"
)

// webhookExecutor abstracts the discordgo.Session method we use, enabling test mocks.
type webhookExecutor interface {
	WebhookExecute(webhookID, token string, wait bool, data *discordgo.WebhookParams, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// DiscordSink posts events to a Discord channel webhook.
type DiscordSink struct {
	sess      webhookExecutor
	webhookID string
	token     string
	username  string
}

// NewDiscordSink parses a https://discord.com/api/webhooks/<id>/<token> URL.
func NewDiscordSink(webhookURL, username string) (*DiscordSink, error) {
	id, token, err := parseDiscordWebhook(webhookURL)
	if err != nil {
		return nil, err
	}
	// Webhook execution needs no bot token.
	sess, err := discordgo.New("")
	if err != nil {
		return nil, fmt.Errorf("notify: discord session: %w", err)
	}
	return &DiscordSink{sess: sess, webhookID: id, token: token, username: username}, nil
}

func parseDiscordWebhook(u string) (string, string, error) {
	i := strings.Index(u, "/webhooks/")
	if i < 0 {
		return "", "", fmt.Errorf("notify: %q is not a discord webhook url", u)
	}
	parts := strings.Split(strings.Trim(u[i+len("/webhooks/"):], "/"), "/")
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("notify: discord webhook url %q lacks id or token", u)
	}
	return parts[0], parts[1], nil
}

// Name implements Sink.
func (s *DiscordSink) Name() string { return "discord" }

// Deliver implements Sink.
func (s *DiscordSink) Deliver(ctx context.Context, evt Event) error {
	_, err := s.sess.WebhookExecute(s.webhookID, s.token, false, discordParams(evt, s.username), discordgo.WithContext(ctx))
	if err != nil {
		if restErr, ok := err.(*discordgo.RESTError); ok && restErr.Response != nil {
			code := restErr.Response.StatusCode
			if code >= 400 && code < 500 && code != 429 {
				return Permanent(&StatusError{Code: code})
			}
			return &StatusError{Code: code}
		}
		return fmt.Errorf("discord webhook: %w", err)
	}
	return nil
}

func discordParams(evt Event, username string) *discordgo.WebhookParams {
	p := evt.Payload
	color := 0x2eb886
	if evt.Kind == KindWorkStarted {
		color = 0x1d9bd1
	}
	embed := &discordgo.MessageEmbed{
		Title:       Title(evt) + ": " + p.TaskName,
		Description: Summary(evt),
		Color:       color,
		Timestamp:   Timestamp(evt.OccurredAt),
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Job", Value: p.JobNumber, Inline: true},
			{Name: "Part", Value: p.PartNumber, Inline: true},
		},
	}
	if p.OperatorName != "" {
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{Name: "Operator", Value: p.OperatorName, Inline: true})
	}
	return &discordgo.WebhookParams{
		Username: username,
		Embeds:   []*discordgo.MessageEmbed{embed},
	}
}
