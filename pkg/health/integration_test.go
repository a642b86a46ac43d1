package health

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/opd-ai/go-deadreckon/pkg/config"
	"github.com/opd-ai/go-deadreckon/pkg/engine"
	"github.com/opd-ai/go-deadreckon/pkg/logging"
	"github.com/opd-ai/go-deadreckon/pkg/physics"
	"github.com/opd-ai/go-deadreckon/pkg/sink"
)

type failingPublisher struct{}

func (failingPublisher) Publish(context.Context, uint64, physics.StateVector) error {
	return errors.New("connection refused")
}

func TestHealthCheckIntegration(t *testing.T) {
	logger := logging.NewLoggerWithWriter(io.Discard)

	cfg := config.DefaultConfig()
	cfg.TickHz = 100
	eng := engine.NewEngine(cfg, nil, logger)

	envConfig := &config.EnvironmentConfig{
		CircuitBreakerMaxRequests:         1,
		CircuitBreakerInterval:            time.Minute,
		CircuitBreakerTimeout:             time.Minute,
		CircuitBreakerMaxConsecutiveFails: 2,
	}
	breaker := sink.NewBreakerPublisher(failingPublisher{}, envConfig, logger)

	hc := NewHealthChecker()
	hc.AddCheck(NewEngineHealthCheck(eng.Running))
	hc.AddCheck(NewSinkHealthCheck(breaker.State))
	hc.AddCheck(NewMemoryHealthCheck(1<<20, nil))

	server := httptest.NewServer(http.HandlerFunc(hc.ReadinessHandler))
	defer server.Close()

	readiness := func() (int, HealthStatus) {
		t.Helper()
		resp, err := http.Get(server.URL)
		if err != nil {
			t.Fatalf("GET failed: %v", err)
		}
		defer resp.Body.Close()

		var status HealthStatus
		if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
			t.Fatalf("Failed to decode: %v", err)
		}
		return resp.StatusCode, status
	}

	// Engine not started yet
	code, status := readiness()
	if code != http.StatusServiceUnavailable || status.Checks["engine"].Status != StatusUnhealthy {
		t.Errorf("Expected engine unhealthy before Run, got %d %+v", code, status)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go eng.Run(ctx)

	deadline := time.Now().Add(2 * time.Second)
	for !eng.Running() && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	code, status = readiness()
	if code != http.StatusOK {
		t.Errorf("Expected ready with running engine, got %d %+v", code, status)
	}

	// Trip the sink breaker
	for i := 0; i < 2; i++ {
		breaker.Publish(ctx, 1, physics.StateVector{})
	}
	code, status = readiness()
	if code != http.StatusServiceUnavailable || status.Checks["sink"].Status != StatusUnhealthy {
		t.Errorf("Expected sink unhealthy with open breaker, got %d %+v", code, status)
	}
}
