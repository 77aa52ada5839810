package notify

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"
)

// ErrClosed is returned by Dispatcher.Notify after Close
var ErrClosed = errors.New("dispatcher closed")

type message struct {
	ctx       context.Context
	userName  string
	bookTitle string
}

// Dispatcher queues notifications and delivers them in order on a single
// worker goroutine. Delivery errors are logged.
type Dispatcher struct {
	next   Notifier
	logger zerolog.Logger
	queue  chan message

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

// NewDispatcher starts the worker. size is the queue capacity; Notify blocks
// while the queue is full.
func NewDispatcher(next Notifier, size int, logger zerolog.Logger) *Dispatcher {
	if size < 1 {
		size = 1
	}
	d := &Dispatcher{
		next:   next,
		logger: logger.With().Str("component", "dispatcher").Logger(),
		queue:  make(chan message, size),
		done:   make(chan struct{}),
	}
	go d.run()
	return d
}

func (d *Dispatcher) run() {
	defer close(d.done)
	for msg := range d.queue {
		if err := d.next.Notify(msg.ctx, msg.userName, msg.bookTitle); err != nil {
			d.logger.Warn().Err(err).
				Str("user_name", msg.userName).
				Str("book_title", msg.bookTitle).
				Msg("notification delivery failed")
		}
	}
}

// Notify enqueues the notification. The request context's values are kept
// but its cancellation is not, so delivery outlives the request. A done ctx
// only gives up while the queue is full.
func (d *Dispatcher) Notify(ctx context.Context, userName, bookTitle string) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return ErrClosed
	}

	msg := message{ctx: context.WithoutCancel(ctx), userName: userName, bookTitle: bookTitle}
	select {
	case d.queue <- msg:
		return nil
	default:
	}

	select {
	case d.queue <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting notifications and waits until the queue is drained
// or ctx is done.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()

	select {
	case <-d.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
