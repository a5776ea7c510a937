package notification

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

const (
	defaultQueueSize   = 64
	defaultSendTimeout = 15 * time.Second
)

var (
	// ErrQueueFull is returned when the dispatcher buffer has no room.
	ErrQueueFull = errors.New("notification queue full")
	// ErrDispatcherClosed is returned after Close.
	ErrDispatcherClosed = errors.New("notification dispatcher closed")
)

// Dispatcher queues messages and delivers them to a sink on a background
// worker, so callers never wait on delivery and never see sink failures.
type Dispatcher struct {
	sink        Notifier
	logger      *slog.Logger
	queue       chan Message
	sendTimeout time.Duration

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

// NewDispatcher starts a worker draining into sink.
func NewDispatcher(sink Notifier, size int, logger *slog.Logger) *Dispatcher {
	if size <= 0 {
		size = defaultQueueSize
	}
	d := &Dispatcher{
		sink:        sink,
		logger:      logger,
		queue:       make(chan Message, size),
		sendTimeout: defaultSendTimeout,
		done:        make(chan struct{}),
	}
	go d.run()
	return d
}

// Send enqueues message without blocking.
func (d *Dispatcher) Send(_ context.Context, message Message) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return ErrDispatcherClosed
	}
	select {
	case d.queue <- message:
		return nil
	default:
		return ErrQueueFull
	}
}

// Close stops accepting messages and waits for the queue to drain or ctx to end.
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

func (d *Dispatcher) run() {
	defer close(d.done)
	for msg := range d.queue {
		ctx, cancel := context.WithTimeout(context.Background(), d.sendTimeout)
		err := d.sink.Send(ctx, msg)
		cancel()
		if err != nil && d.logger != nil {
			d.logger.Warn("notification delivery failed",
				slog.String("kind", msg.Kind),
				slog.Any("error", err),
			)
		}
	}
}
