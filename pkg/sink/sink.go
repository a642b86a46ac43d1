// Package sink forwards propagated states to external consumers. States are
// published to a Redis stream behind a circuit breaker so that an unavailable
// consumer never stalls the propagation loop.
package sink

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/opd-ai/go-deadreckon/pkg/event"
	"github.com/opd-ai/go-deadreckon/pkg/logging"
	"github.com/opd-ai/go-deadreckon/pkg/physics"
)

// Publisher delivers one body state to a consumer
type Publisher interface {
	Publish(ctx context.Context, bodyID uint64, state physics.StateVector) error
}

type record struct {
	bodyID uint64
	state  physics.StateVector
}

// Forwarder queues StepCompleted states from an event bus and hands them to
// a Publisher on its own goroutine. When the queue is full new states are
// dropped and counted.
type Forwarder struct {
	publisher Publisher
	logger    *logging.Logger
	queue     chan record
	timeout   time.Duration

	delivered atomic.Uint64
	failed    atomic.Uint64
	dropped   atomic.Uint64
}

// NewForwarder creates a forwarder with room for capacity queued states.
func NewForwarder(publisher Publisher, logger *logging.Logger, capacity int) *Forwarder {
	if capacity < 1 {
		capacity = 1
	}
	return &Forwarder{
		publisher: publisher,
		logger:    logger,
		queue:     make(chan record, capacity),
		timeout:   2 * time.Second,
	}
}

// Attach subscribes the forwarder to completed steps on bus.
func (f *Forwarder) Attach(bus *event.Bus) event.SubscriptionID {
	return bus.Subscribe(event.StepCompleted, func(ev event.Event) {
		step, ok := ev.(*event.StepEvent)
		if !ok {
			return
		}
		f.Enqueue(step.BodyID, step.After)
	})
}

// Enqueue adds a state to the queue without blocking. It reports whether the
// state was accepted.
func (f *Forwarder) Enqueue(bodyID uint64, state physics.StateVector) bool {
	select {
	case f.queue <- record{bodyID: bodyID, state: state}:
		return true
	default:
		f.dropped.Add(1)
		return false
	}
}

// Run publishes queued states until ctx is done.
func (f *Forwarder) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case rec := <-f.queue:
			f.publish(ctx, rec)
		}
	}
}

func (f *Forwarder) publish(ctx context.Context, rec record) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	if err := f.publisher.Publish(ctx, rec.bodyID, rec.state); err != nil {
		f.failed.Add(1)
		f.logger.Debug(ctx, "state publish failed", "body_id", rec.bodyID, "error", err.Error())
		return
	}
	f.delivered.Add(1)
}

// Stats returns the delivered, failed and dropped counts.
func (f *Forwarder) Stats() (delivered, failed, dropped uint64) {
	return f.delivered.Load(), f.failed.Load(), f.dropped.Load()
}
