package notify

import (
	"log/slog"
	"net/http"

	"github.com/zulandar/shopfloor/internal/config"
	"gorm.io/gorm"
)

// SinksFromConfig builds the sinks enabled in cfg. The returned func closes
// any connections the sinks hold.
func SinksFromConfig(cfg config.NotifyConfig, db *gorm.DB) ([]Sink, func(), error) {
	var sinks []Sink
	var closers []func()
	closeAll := func() {
		for _, c := range closers {
			c()
		}
	}

	if cfg.Webhooks && db != nil {
		sinks = append(sinks, NewWebhookSink(db, &http.Client{Timeout: cfg.Timeout}))
	}
	if cfg.Slack.WebhookURL != "" {
		sinks = append(sinks, NewSlackSink(cfg.Slack.WebhookURL, cfg.Slack.Channel))
	}
	if cfg.Discord.WebhookURL != "" {
		ds, err := NewDiscordSink(cfg.Discord.WebhookURL, cfg.Discord.Username)
		if err != nil {
			closeAll()
			return nil, nil, err
		}
		sinks = append(sinks, ds)
	}
	if cfg.NATS.URL != "" {
		ns, err := NewNATSSink(cfg.NATS.URL, cfg.NATS.SubjectPrefix)
		if err != nil {
			closeAll()
			return nil, nil, err
		}
		sinks = append(sinks, ns)
		closers = append(closers, func() { ns.Close() })
	}
	return sinks, closeAll, nil
}

// OptionsFromConfig maps cfg onto dispatcher options.
func OptionsFromConfig(cfg config.NotifyConfig, logger *slog.Logger) Options {
	retry := DefaultRetryConfig()
	retry.MaxAttempts = cfg.MaxAttempts
	retry.InitialBackoff = cfg.InitialBackoff
	return Options{
		Workers:   cfg.Workers,
		QueueSize: cfg.QueueSize,
		Retry:     retry,
		Timeout:   cfg.Timeout,
		Logger:    logger,
	}
}
