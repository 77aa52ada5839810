package notify

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/rongwang/library-server/internal/config"
)

// FromConfig builds the notifier chain: every notification is logged and,
// when a webhook URL is set, POSTed. With Async set the chain runs behind a
// Dispatcher. The returned close function drains pending deliveries.
func FromConfig(cfg config.NotifyConfig, logger zerolog.Logger) (Notifier, func(context.Context) error) {
	var n Notifier = NewLogNotifier(logger)
	if cfg.WebhookURL != "" {
		n = Multi{n, NewWebhookNotifier(cfg.WebhookURL, cfg.Timeout)}
	}

	if !cfg.Async {
		return n, func(context.Context) error { return nil }
	}

	d := NewDispatcher(n, cfg.QueueSize, logger)
	return d, d.Close
}
