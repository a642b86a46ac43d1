// Package health provides liveness and readiness probes for the deadreckon
// server. Readiness aggregates named checks over the engine loop, the state
// sink and process memory.
package health

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/sony/gobreaker"
)

// Status values reported by the probes
const (
	StatusHealthy   = "healthy"
	StatusUnhealthy = "unhealthy"
)

// HealthCheck is one named readiness condition.
type HealthCheck interface {
	Name() string
	Check(ctx context.Context) error
}

// HealthStatus represents the overall health status of the application.
type HealthStatus struct {
	Status string                     `json:"status"`
	Checks map[string]ComponentHealth `json:"checks"`
}

// ComponentHealth represents the health status of an individual component.
type ComponentHealth struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// HealthChecker manages and executes health checks for the application.
type HealthChecker struct {
	checks  map[string]HealthCheck
	timeout time.Duration
	mu      sync.RWMutex
}

// NewHealthChecker creates a new health checker instance.
func NewHealthChecker() *HealthChecker {
	return &HealthChecker{
		checks:  make(map[string]HealthCheck),
		timeout: 5 * time.Second,
	}
}

// AddCheck registers a check, replacing any check of the same name.
func (hc *HealthChecker) AddCheck(check HealthCheck) {
	hc.mu.Lock()
	defer hc.mu.Unlock()
	hc.checks[check.Name()] = check
}

// RemoveCheck removes a health check by name.
func (hc *HealthChecker) RemoveCheck(name string) {
	hc.mu.Lock()
	defer hc.mu.Unlock()
	delete(hc.checks, name)
}

// CheckNames returns the registered check names in sorted order
func (hc *HealthChecker) CheckNames() []string {
	hc.mu.RLock()
	defer hc.mu.RUnlock()

	names := make([]string, 0, len(hc.checks))
	for name := range hc.checks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// CheckHealth runs every registered check. The result is healthy only if all
// checks pass.
func (hc *HealthChecker) CheckHealth(ctx context.Context) HealthStatus {
	hc.mu.RLock()
	checks := make([]HealthCheck, 0, len(hc.checks))
	for _, check := range hc.checks {
		checks = append(checks, check)
	}
	hc.mu.RUnlock()

	status := HealthStatus{
		Status: StatusHealthy,
		Checks: make(map[string]ComponentHealth, len(checks)),
	}

	for _, check := range checks {
		if err := check.Check(ctx); err != nil {
			status.Status = StatusUnhealthy
			status.Checks[check.Name()] = ComponentHealth{Status: StatusUnhealthy, Message: err.Error()}
			continue
		}
		status.Checks[check.Name()] = ComponentHealth{Status: StatusHealthy}
	}

	return status
}

// LivenessHandler answers 200 while the process can serve requests.
func (hc *HealthChecker) LivenessHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{"status": "alive"})
}

// ReadinessHandler runs all checks and answers 200 when healthy or 503
// otherwise, with the per-check results as the body.
func (hc *HealthChecker) ReadinessHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), hc.timeout)
	defer cancel()

	health := hc.CheckHealth(ctx)

	w.Header().Set("Content-Type", "application/json")
	if health.Status == StatusHealthy {
		w.WriteHeader(http.StatusOK)
	} else {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	json.NewEncoder(w).Encode(health)
}

// EngineHealthCheck fails while the propagation loop is not running.
type EngineHealthCheck struct {
	running func() bool
}

// NewEngineHealthCheck creates a check backed by running, typically
// (*engine.Engine).Running.
func NewEngineHealthCheck(running func() bool) *EngineHealthCheck {
	return &EngineHealthCheck{running: running}
}

func (e *EngineHealthCheck) Name() string { return "engine" }

func (e *EngineHealthCheck) Check(ctx context.Context) error {
	if !e.running() {
		return fmt.Errorf("propagation loop is not running")
	}
	return nil
}

// SinkHealthCheck fails while the sink's circuit breaker is open.
type SinkHealthCheck struct {
	state func() gobreaker.State
}

// NewSinkHealthCheck creates a check backed by state, typically
// (*sink.BreakerPublisher).State.
func NewSinkHealthCheck(state func() gobreaker.State) *SinkHealthCheck {
	return &SinkHealthCheck{state: state}
}

func (s *SinkHealthCheck) Name() string { return "sink" }

func (s *SinkHealthCheck) Check(ctx context.Context) error {
	if state := s.state(); state == gobreaker.StateOpen {
		return fmt.Errorf("circuit breaker is %s", state)
	}
	return nil
}

// MemoryHealthCheck fails when heap usage exceeds a limit.
type MemoryHealthCheck struct {
	maxMemoryMB    int64
	getMemoryUsage func() int64
}

// NewMemoryHealthCheck creates a memory check. A nil getMemoryUsage uses
// CurrentMemoryMB.
func NewMemoryHealthCheck(maxMemoryMB int64, getMemoryUsage func() int64) *MemoryHealthCheck {
	if getMemoryUsage == nil {
		getMemoryUsage = CurrentMemoryMB
	}
	return &MemoryHealthCheck{
		maxMemoryMB:    maxMemoryMB,
		getMemoryUsage: getMemoryUsage,
	}
}

func (m *MemoryHealthCheck) Name() string { return "memory" }

func (m *MemoryHealthCheck) Check(ctx context.Context) error {
	if currentMB := m.getMemoryUsage(); currentMB > m.maxMemoryMB {
		return fmt.Errorf("memory usage %dMB exceeds limit %dMB", currentMB, m.maxMemoryMB)
	}
	return nil
}

// CurrentMemoryMB returns the bytes of allocated heap objects in MB.
func CurrentMemoryMB() int64 {
	var stats runtime.MemStats
	runtime.ReadMemStats(&stats)
	return int64(stats.Alloc / 1024 / 1024)
}
