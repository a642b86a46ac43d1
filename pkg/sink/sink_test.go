package sink

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opd-ai/go-deadreckon/pkg/config"
	"github.com/opd-ai/go-deadreckon/pkg/event"
	"github.com/opd-ai/go-deadreckon/pkg/logging"
	"github.com/opd-ai/go-deadreckon/pkg/physics"
)

type fakePublisher struct {
	mu     sync.Mutex
	err    error
	calls  int
	states map[uint64][]physics.StateVector
}

func (f *fakePublisher) Publish(_ context.Context, bodyID uint64, state physics.StateVector) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return f.err
	}
	if f.states == nil {
		f.states = make(map[uint64][]physics.StateVector)
	}
	f.states[bodyID] = append(f.states[bodyID], state)
	return nil
}

func (f *fakePublisher) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func quietLogger() *logging.Logger {
	return logging.NewLoggerWithWriter(io.Discard)
}

func breakerConfig(maxFails uint32) *config.EnvironmentConfig {
	return &config.EnvironmentConfig{
		CircuitBreakerMaxRequests:         1,
		CircuitBreakerInterval:            time.Minute,
		CircuitBreakerTimeout:             time.Minute,
		CircuitBreakerMaxConsecutiveFails: maxFails,
	}
}

func TestBreakerPublisher_PassesThrough(t *testing.T) {
	inner := &fakePublisher{}
	b := NewBreakerPublisher(inner, breakerConfig(3), quietLogger())

	state := physics.StateVector{T: 1}
	require.NoError(t, b.Publish(context.Background(), 7, state))

	assert.Equal(t, []physics.StateVector{state}, inner.states[7])
	assert.Equal(t, gobreaker.StateClosed, b.State())
	assert.Equal(t, uint32(1), b.Counts().TotalSuccesses)
}

func TestBreakerPublisher_Trips(t *testing.T) {
	inner := &fakePublisher{err: errors.New("connection refused")}
	b := NewBreakerPublisher(inner, breakerConfig(3), quietLogger())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		assert.Error(t, b.Publish(ctx, 1, physics.StateVector{}))
	}
	assert.Equal(t, gobreaker.StateOpen, b.State())

	err := b.Publish(ctx, 1, physics.StateVector{})
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Equal(t, 3, inner.count(), "open circuit must not reach the publisher")
}

func TestBreakerPublisher_ExecuteWithRetry(t *testing.T) {
	ctx := context.Background()

	t.Run("succeeds after transient failure", func(t *testing.T) {
		b := NewBreakerPublisher(&fakePublisher{}, breakerConfig(5), quietLogger())
		b.baseDelay = time.Millisecond

		attempts := 0
		err := b.ExecuteWithRetry(ctx, func() error {
			attempts++
			if attempts < 2 {
				return errors.New("transient")
			}
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, 2, attempts)
	})

	t.Run("gives up after max retries", func(t *testing.T) {
		b := NewBreakerPublisher(&fakePublisher{}, breakerConfig(10), quietLogger())
		b.baseDelay = time.Millisecond

		attempts := 0
		err := b.ExecuteWithRetry(ctx, func() error {
			attempts++
			return errors.New("down")
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "max retries (3) exceeded")
		assert.Equal(t, 3, attempts)
	})

	t.Run("stops when circuit opens", func(t *testing.T) {
		b := NewBreakerPublisher(&fakePublisher{}, breakerConfig(1), quietLogger())
		b.baseDelay = time.Millisecond

		attempts := 0
		err := b.ExecuteWithRetry(ctx, func() error {
			attempts++
			return errors.New("down")
		})
		require.Error(t, err)
		assert.Equal(t, 1, attempts)
	})

	t.Run("cancelled while waiting", func(t *testing.T) {
		b := NewBreakerPublisher(&fakePublisher{}, breakerConfig(10), quietLogger())
		b.baseDelay = time.Hour

		cctx, cancel := context.WithCancel(ctx)
		err := b.ExecuteWithRetry(cctx, func() error {
			cancel()
			return errors.New("down")
		})
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestForwarder_DeliversStepEvents(t *testing.T) {
	inner := &fakePublisher{}
	bus := event.NewEventBus()
	f := NewForwarder(inner, quietLogger(), 16)
	f.Attach(bus)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		f.Run(ctx)
		close(done)
	}()

	after := physics.StateVector{T: 0.1, X: 0.1, XDot: 1}
	bus.Publish(event.NewStepEvent(event.StepCompleted, nil, 4, "alpha", "hold", 0.1, physics.StateVector{XDot: 1}, after))
	bus.Publish(event.NewBodyEvent(event.BodyAdded, nil, 5, "bravo", "default"))

	require.Eventually(t, func() bool { return inner.count() == 1 }, time.Second, 5*time.Millisecond)
	cancel()
	<-done

	assert.Equal(t, []physics.StateVector{after}, inner.states[4])
	delivered, failed, dropped := f.Stats()
	assert.Equal(t, uint64(1), delivered)
	assert.Zero(t, failed)
	assert.Zero(t, dropped)
}

func TestForwarder_DropsWhenFull(t *testing.T) {
	f := NewForwarder(&fakePublisher{}, quietLogger(), 2)

	assert.True(t, f.Enqueue(1, physics.StateVector{}))
	assert.True(t, f.Enqueue(1, physics.StateVector{}))
	assert.False(t, f.Enqueue(1, physics.StateVector{}))

	_, _, dropped := f.Stats()
	assert.Equal(t, uint64(1), dropped)
}

func TestForwarder_CountsFailures(t *testing.T) {
	inner := &fakePublisher{err: errors.New("down")}
	f := NewForwarder(inner, quietLogger(), 4)
	f.Enqueue(1, physics.StateVector{})

	ctx, cancel := context.WithCancel(context.Background())
	go f.Run(ctx)
	defer cancel()

	require.Eventually(t, func() bool {
		_, failed, _ := f.Stats()
		return failed == 1
	}, time.Second, 5*time.Millisecond)
}

func TestStreamValues(t *testing.T) {
	state := physics.Update2DOF(physics.StateVector{XDot: 1}, 0.5, 0)
	values := streamValues(42, state)

	assert.Equal(t, "42", values["body_id"])
	assert.Equal(t, state.String(), values["state"])
	assert.Equal(t, "1", values["x_dot"])
	assert.Equal(t, "-inf", values["theta_dot"])
	assert.Len(t, values, 15)
}

func TestRedisPublisher_Unreachable(t *testing.T) {
	p := NewRedisPublisher(&config.EnvironmentConfig{
		RedisAddr:   "127.0.0.1:1",
		RedisStream: "test:states",
	})
	defer p.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	assert.Error(t, p.Ping(ctx))
	assert.Error(t, p.Publish(ctx, 1, physics.StateVector{}))
}
