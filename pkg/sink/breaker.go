// pkg/sink/breaker.go
package sink

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"

	"github.com/opd-ai/go-deadreckon/pkg/config"
	"github.com/opd-ai/go-deadreckon/pkg/logging"
	"github.com/opd-ai/go-deadreckon/pkg/physics"
)

// Operation is a call guarded by the circuit breaker
type Operation func() error

// BreakerPublisher wraps a Publisher with a circuit breaker. After
// CircuitBreakerMaxConsecutiveFails failures publishing is skipped until the
// breaker's timeout allows a trial request.
type BreakerPublisher struct {
	next       Publisher
	breaker    *gobreaker.CircuitBreaker
	logger     *logging.Logger
	maxRetries int
	baseDelay  time.Duration
}

// NewBreakerPublisher creates a breaker configured from envConfig around next.
func NewBreakerPublisher(next Publisher, envConfig *config.EnvironmentConfig, logger *logging.Logger) *BreakerPublisher {
	settings := gobreaker.Settings{
		Name:        "deadreckon-sink",
		MaxRequests: envConfig.CircuitBreakerMaxRequests,
		Interval:    envConfig.CircuitBreakerInterval,
		Timeout:     envConfig.CircuitBreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= envConfig.CircuitBreakerMaxConsecutiveFails
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Info(context.Background(), "circuit breaker state changed",
				"name", name,
				"from", from.String(),
				"to", to.String(),
			)
		},
	}

	return &BreakerPublisher{
		next:       next,
		breaker:    gobreaker.NewCircuitBreaker(settings),
		logger:     logger,
		maxRetries: 3,
		baseDelay:  time.Second,
	}
}

// Publish forwards the state through the breaker.
func (b *BreakerPublisher) Publish(ctx context.Context, bodyID uint64, state physics.StateVector) error {
	return b.Execute(ctx, func() error {
		return b.next.Publish(ctx, bodyID, state)
	})
}

// Execute runs op through the circuit breaker. An open circuit fails
// immediately with gobreaker.ErrOpenState.
func (b *BreakerPublisher) Execute(ctx context.Context, op Operation) error {
	_, err := b.breaker.Execute(func() (interface{}, error) {
		return nil, op()
	})
	if err != nil {
		b.logger.LogWithContext(ctx, slog.LevelDebug, "circuit breaker execution failed",
			"error", err.Error(),
			"state", b.breaker.State().String(),
		)
		return fmt.Errorf("circuit breaker: %w", err)
	}
	return nil
}

// ExecuteWithRetry runs op up to maxRetries times with a linearly growing
// delay. Retries stop early when the circuit opens or ctx is done.
func (b *BreakerPublisher) ExecuteWithRetry(ctx context.Context, op Operation) error {
	var err error
	for attempt := 0; attempt < b.maxRetries; attempt++ {
		if err = b.Execute(ctx, op); err == nil {
			return nil
		}

		if b.breaker.State() == gobreaker.StateOpen {
			b.logger.Warn(ctx, "circuit breaker is open, skipping retries",
				"attempt", attempt+1,
				"max_retries", b.maxRetries,
			)
			return err
		}

		if attempt == b.maxRetries-1 {
			break
		}

		delay := time.Duration(attempt+1) * b.baseDelay
		b.logger.Warn(ctx, "operation failed, retrying",
			"attempt", attempt+1,
			"delay", delay.String(),
		)

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return fmt.Errorf("retry cancelled: %w", ctx.Err())
		}
	}

	b.logger.Error(ctx, "all retry attempts failed", err, "attempts", b.maxRetries)
	return fmt.Errorf("max retries (%d) exceeded: %w", b.maxRetries, err)
}

// State returns the current breaker state.
func (b *BreakerPublisher) State() gobreaker.State {
	return b.breaker.State()
}

// Counts returns the breaker's request counters for the current interval.
func (b *BreakerPublisher) Counts() gobreaker.Counts {
	return b.breaker.Counts()
}
