package health

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sony/gobreaker"
)

// mockHealthCheck implements HealthCheck for testing
type mockHealthCheck struct {
	name    string
	healthy bool
}

func (m *mockHealthCheck) Name() string {
	return m.name
}

func (m *mockHealthCheck) Check(ctx context.Context) error {
	if !m.healthy {
		return fmt.Errorf("mock health check failed")
	}
	return nil
}

// slowHealthCheck blocks for delay unless the context ends first
type slowHealthCheck struct {
	delay time.Duration
}

func (s *slowHealthCheck) Name() string {
	return "slow"
}

func (s *slowHealthCheck) Check(ctx context.Context) error {
	select {
	case <-time.After(s.delay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func TestHealthChecker_AddRemoveCheck(t *testing.T) {
	hc := NewHealthChecker()
	hc.AddCheck(&mockHealthCheck{name: "sink", healthy: true})
	hc.AddCheck(&mockHealthCheck{name: "engine", healthy: true})
	hc.AddCheck(&mockHealthCheck{name: "engine", healthy: false})

	names := hc.CheckNames()
	if len(names) != 2 || names[0] != "engine" || names[1] != "sink" {
		t.Errorf("CheckNames() = %v, want [engine sink]", names)
	}

	if status := hc.CheckHealth(context.Background()); status.Status != StatusUnhealthy {
		t.Errorf("Expected replaced engine check to fail, got %s", status.Status)
	}

	hc.RemoveCheck("engine")
	if status := hc.CheckHealth(context.Background()); status.Status != StatusHealthy {
		t.Errorf("Expected healthy after removal, got %s", status.Status)
	}
}

func TestHealthChecker_CheckHealth(t *testing.T) {
	hc := NewHealthChecker()
	hc.AddCheck(&mockHealthCheck{name: "engine", healthy: true})
	hc.AddCheck(&mockHealthCheck{name: "sink", healthy: false})

	status := hc.CheckHealth(context.Background())

	if status.Status != StatusUnhealthy {
		t.Errorf("Expected overall unhealthy, got %s", status.Status)
	}
	if status.Checks["engine"].Status != StatusHealthy {
		t.Errorf("Expected engine healthy, got %+v", status.Checks["engine"])
	}
	if sink := status.Checks["sink"]; sink.Status != StatusUnhealthy || sink.Message == "" {
		t.Errorf("Expected sink unhealthy with message, got %+v", sink)
	}
}

func TestHealthChecker_CheckHealthWithTimeout(t *testing.T) {
	hc := NewHealthChecker()
	hc.AddCheck(&slowHealthCheck{delay: 100 * time.Millisecond})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	status := hc.CheckHealth(ctx)
	if status.Status != StatusUnhealthy || status.Checks["slow"].Status != StatusUnhealthy {
		t.Errorf("Expected timeout to make the check unhealthy, got %+v", status)
	}
}

func TestHealthChecker_LivenessHandler(t *testing.T) {
	hc := NewHealthChecker()
	hc.AddCheck(&mockHealthCheck{name: "engine", healthy: false})

	w := httptest.NewRecorder()
	hc.LivenessHandler(w, httptest.NewRequest("GET", "/health", nil))

	if w.Code != http.StatusOK {
		t.Errorf("Liveness must not depend on checks, got %d", w.Code)
	}

	var response map[string]string
	if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if response["status"] != "alive" {
		t.Errorf("Expected status 'alive', got %s", response["status"])
	}
}

func TestHealthChecker_ReadinessHandler(t *testing.T) {
	tests := []struct {
		name               string
		checks             []*mockHealthCheck
		expectedStatusCode int
		expectedStatus     string
	}{
		{"healthy service", []*mockHealthCheck{{name: "engine", healthy: true}}, http.StatusOK, StatusHealthy},
		{"unhealthy service", []*mockHealthCheck{{name: "engine", healthy: false}}, http.StatusServiceUnavailable, StatusUnhealthy},
		{"no checks", nil, http.StatusOK, StatusHealthy},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hc := NewHealthChecker()
			for _, check := range tt.checks {
				hc.AddCheck(check)
			}

			w := httptest.NewRecorder()
			hc.ReadinessHandler(w, httptest.NewRequest("GET", "/ready", nil))

			if w.Code != tt.expectedStatusCode {
				t.Errorf("Expected status code %d, got %d", tt.expectedStatusCode, w.Code)
			}
			if ct := w.Header().Get("Content-Type"); ct != "application/json" {
				t.Errorf("Expected Content-Type application/json, got %s", ct)
			}

			var response HealthStatus
			if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
				t.Fatalf("Failed to decode response: %v", err)
			}
			if response.Status != tt.expectedStatus {
				t.Errorf("Expected status %s, got %s", tt.expectedStatus, response.Status)
			}
		})
	}
}

func TestEngineHealthCheck(t *testing.T) {
	running := false
	check := NewEngineHealthCheck(func() bool { return running })

	if check.Name() != "engine" {
		t.Errorf("Expected name 'engine', got %s", check.Name())
	}
	if err := check.Check(context.Background()); err == nil {
		t.Error("Expected error while stopped")
	}

	running = true
	if err := check.Check(context.Background()); err != nil {
		t.Errorf("Expected no error while running, got %v", err)
	}
}

func TestSinkHealthCheck(t *testing.T) {
	tests := []struct {
		state       gobreaker.State
		expectError bool
	}{
		{gobreaker.StateClosed, false},
		{gobreaker.StateHalfOpen, false},
		{gobreaker.StateOpen, true},
	}

	for _, tt := range tests {
		t.Run(tt.state.String(), func(t *testing.T) {
			check := NewSinkHealthCheck(func() gobreaker.State { return tt.state })
			err := check.Check(context.Background())
			if (err != nil) != tt.expectError {
				t.Errorf("Check() error = %v, expectError %v", err, tt.expectError)
			}
		})
	}
}

func TestMemoryHealthCheck(t *testing.T) {
	tests := []struct {
		name        string
		maxMemoryMB int64
		usage       int64
		expectError bool
	}{
		{"under limit", 100, 50, false},
		{"at limit", 100, 100, false},
		{"over limit", 100, 150, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			check := NewMemoryHealthCheck(tt.maxMemoryMB, func() int64 { return tt.usage })
			if check.Name() != "memory" {
				t.Errorf("Expected name 'memory', got %s", check.Name())
			}
			err := check.Check(context.Background())
			if (err != nil) != tt.expectError {
				t.Errorf("Check() error = %v, expectError %v", err, tt.expectError)
			}
		})
	}
}

func TestMemoryHealthCheck_DefaultUsage(t *testing.T) {
	check := NewMemoryHealthCheck(1<<20, nil)
	if err := check.Check(context.Background()); err != nil {
		t.Errorf("Expected real memory usage under 1TB, got %v", err)
	}
	if CurrentMemoryMB() < 0 {
		t.Error("CurrentMemoryMB() returned a negative value")
	}
}

func BenchmarkHealthChecker_CheckHealth(b *testing.B) {
	hc := NewHealthChecker()
	for i := 0; i < 5; i++ {
		hc.AddCheck(&mockHealthCheck{name: fmt.Sprintf("check%d", i), healthy: true})
	}

	ctx := context.Background()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		hc.CheckHealth(ctx)
	}
}
