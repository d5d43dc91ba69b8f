package notify

import (
	"context"
	"errors"
	"sync"

	"studio_gallery_server/internal/services"
	"studio_gallery_server/pkg/metrics"

	"github.com/sirupsen/logrus"
)

var (
	ErrQueueFull        = errors.New("notification queue is full")
	ErrDispatcherClosed = errors.New("notification dispatcher is closed")
)

type queuedIntent struct {
	ctx    context.Context
	intent services.Intent
}

// Dispatcher queues intents and hands them to the wrapped notifier from a
// single worker, so callers return as soon as the intent is queued.
type Dispatcher struct {
	next   services.Notifier
	queue  chan queuedIntent
	done   chan struct{}
	logger *logrus.Logger

	mu     sync.RWMutex
	closed bool
}

// NewDispatcher starts the worker. size bounds the backlog; a full queue
// drops the intent.
func NewDispatcher(next services.Notifier, size int, logger *logrus.Logger) *Dispatcher {
	if size < 1 {
		size = 1
	}
	d := &Dispatcher{
		next:   next,
		queue:  make(chan queuedIntent, size),
		done:   make(chan struct{}),
		logger: logger,
	}
	go d.run()
	return d
}

// Notify queues intent. Request cancellation does not reach the delivery.
func (d *Dispatcher) Notify(ctx context.Context, intent services.Intent) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return ErrDispatcherClosed
	}

	select {
	case d.queue <- queuedIntent{ctx: context.WithoutCancel(ctx), intent: intent}:
		return nil
	default:
		metrics.RecordNotification(string(intent.Kind), false)
		return ErrQueueFull
	}
}

func (d *Dispatcher) run() {
	defer close(d.done)
	for q := range d.queue {
		if err := d.next.Notify(q.ctx, q.intent); err != nil {
			d.logger.WithError(err).WithField("kind", q.intent.Kind).Warn("Failed to deliver notification")
		}
	}
}

// Close stops accepting intents and waits for the backlog to drain or ctx
// to end.
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
