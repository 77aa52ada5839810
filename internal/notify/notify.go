package notify

import (
	"context"
	"errors"

	"github.com/rs/zerolog"
)

// Notifier delivers a (user, book) notification to some external sink
type Notifier interface {
	Notify(ctx context.Context, userName, bookTitle string) error
}

// LogNotifier writes every notification as a structured log line
type LogNotifier struct {
	logger zerolog.Logger
}

// NewLogNotifier creates a new LogNotifier
func NewLogNotifier(logger zerolog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger.With().Str("component", "notify").Logger()}
}

func (n *LogNotifier) Notify(_ context.Context, userName, bookTitle string) error {
	n.logger.Info().
		Str("user_name", userName).
		Str("book_title", bookTitle).
		Msg("notification")
	return nil
}

// Multi fans a notification out to every sink. All sinks are tried; the
// errors are joined.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, userName, bookTitle string) error {
	var errs []error
	for _, n := range m {
		if err := n.Notify(ctx, userName, bookTitle); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Nop discards notifications
type Nop struct{}

func (Nop) Notify(context.Context, string, string) error { return nil }
