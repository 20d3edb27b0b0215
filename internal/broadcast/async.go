package broadcast

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

var (
	ErrQueueFull = errors.New("broadcast queue full")
	ErrClosed    = errors.New("broadcast queue closed")
)

// Sender is anything that delivers a broadcast, e.g. a *Publisher.
type Sender interface {
	Publish(ctx context.Context, eventID, topic string, payload any) error
}

type job struct {
	eventID string
	topic   string
	payload any
}

// Async queues broadcasts and delivers them from a single goroutine, in
// order, so a slow or unreachable broker never delays a reservation.
// When the queue is full new broadcasts are dropped.
type Async struct {
	next    Sender
	log     *zap.Logger
	timeout time.Duration
	queue   chan job
	done    chan struct{}

	mu     sync.RWMutex
	closed bool
}

// NewAsync starts the delivery goroutine.  timeout bounds each delivery
// to next; Close stops the goroutine after draining the queue.
func NewAsync(next Sender, size int, timeout time.Duration, log *zap.Logger) *Async {
	if size < 1 {
		size = 1
	}
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	a := &Async{
		next:    next,
		log:     log,
		timeout: timeout,
		queue:   make(chan job, size),
		done:    make(chan struct{}),
	}
	go a.run()
	return a
}

// Publish enqueues the broadcast without waiting for delivery.
func (a *Async) Publish(_ context.Context, eventID, topic string, payload any) error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return ErrClosed
	}
	select {
	case a.queue <- job{eventID: eventID, topic: topic, payload: payload}:
		return nil
	default:
		return ErrQueueFull
	}
}

func (a *Async) run() {
	defer close(a.done)
	for j := range a.queue {
		ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
		if err := a.next.Publish(ctx, j.eventID, j.topic, j.payload); err != nil {
			a.log.Warn("broadcast: delivery failed",
				zap.String("event_id", j.eventID),
				zap.String("topic", j.topic),
				zap.Error(err))
		}
		cancel()
	}
}

// Close delivers what is queued and stops the goroutine.
func (a *Async) Close() error {
	a.mu.Lock()
	if !a.closed {
		a.closed = true
		close(a.queue)
	}
	a.mu.Unlock()
	<-a.done
	return nil
}
