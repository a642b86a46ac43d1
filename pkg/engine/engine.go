// pkg/engine/engine.go
package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/EngoEngine/ecs"

	"github.com/opd-ai/go-deadreckon/pkg/config"
	"github.com/opd-ai/go-deadreckon/pkg/event"
	"github.com/opd-ai/go-deadreckon/pkg/logging"
	"github.com/opd-ai/go-deadreckon/pkg/physics"
)

var (
	// ErrBodyNotFound is returned when no body has the requested ID.
	ErrBodyNotFound = errors.New("body not found")
	// ErrUnknownClass is returned when a body names an unconfigured class.
	ErrUnknownClass = errors.New("unknown vehicle class")
	// ErrAlreadyRunning is returned by Run when the loop is already active.
	ErrAlreadyRunning = errors.New("engine already running")
)

// Body is a snapshot of one propagated body
type Body struct {
	ID      uint64              `json:"id"`
	Name    string              `json:"name"`
	Class   string              `json:"class"`
	State   physics.StateVector `json:"state"`
	Command Command             `json:"-"`
}

// Engine advances a fleet of bodies on a fixed step. Bodies live in an ecs
// world and are stepped by a KinematicsSystem.
type Engine struct {
	config *config.ModelConfig
	world  *ecs.World
	system *KinematicsSystem
	bus    *event.Bus
	logger *logging.Logger

	mu      sync.RWMutex
	running atomic.Bool
	ticks   atomic.Uint64
}

// NewEngine creates an engine using the step size and vehicle classes of cfg.
// A nil bus or logger is replaced by a fresh one.
func NewEngine(cfg *config.ModelConfig, bus *event.Bus, logger *logging.Logger) *Engine {
	if bus == nil {
		bus = event.NewEventBus()
	}
	if logger == nil {
		logger = logging.NewLogger()
	}

	e := &Engine{
		config: cfg,
		world:  &ecs.World{},
		bus:    bus,
		logger: logger,
	}
	e.system = NewKinematicsSystem(cfg.StepSeconds, e, logger)
	e.world.AddSystem(e.system)

	return e
}

// EventBus returns the bus the engine publishes on
func (e *Engine) EventBus() *event.Bus {
	return e.bus
}

// StepSeconds is the dt applied to every body per Step.
func (e *Engine) StepSeconds() float64 {
	return e.config.StepSeconds
}

// AddBody registers a body of the given class with an initial state and a
// HoldCommand. An empty class selects the configured default.
func (e *Engine) AddBody(name, class string, state physics.StateVector) (uint64, error) {
	if class == "" {
		class = e.config.DefaultClass
	}
	model, err := e.config.Model(class)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrUnknownClass, class)
	}

	basic := ecs.NewBasic()
	component := &KinematicsComponent{
		Name:    name,
		Class:   class,
		Model:   model,
		State:   state,
		Command: HoldCommand{},
	}

	e.mu.Lock()
	e.system.Add(&basic, component)
	e.mu.Unlock()

	e.bus.Publish(event.NewBodyEvent(event.BodyAdded, e, basic.ID(), name, class))
	return basic.ID(), nil
}

// RemoveBody removes a body from the world.
func (e *Engine) RemoveBody(id uint64) error {
	e.mu.Lock()
	body, ok := e.system.entities[id]
	if !ok {
		e.mu.Unlock()
		return fmt.Errorf("%w: %d", ErrBodyNotFound, id)
	}
	e.world.RemoveEntity(body.BasicEntity)
	e.mu.Unlock()

	e.bus.Publish(event.NewBodyEvent(event.BodyRemoved, e, id, body.Name, body.Class))
	return nil
}

// SetCommand replaces the command a body follows from the next step on.
func (e *Engine) SetCommand(id uint64, cmd Command) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	body, ok := e.system.entities[id]
	if !ok {
		return fmt.Errorf("%w: %d", ErrBodyNotFound, id)
	}
	body.Command = cmd
	return nil
}

// Body returns a snapshot of one body
func (e *Engine) Body(id uint64) (Body, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	body, ok := e.system.entities[id]
	if !ok {
		return Body{}, fmt.Errorf("%w: %d", ErrBodyNotFound, id)
	}
	return body.snapshot(), nil
}

// Bodies returns snapshots of all bodies ordered by ID
func (e *Engine) Bodies() []Body {
	e.mu.RLock()
	defer e.mu.RUnlock()

	bodies := make([]Body, 0, len(e.system.entities))
	for _, body := range e.system.entities {
		bodies = append(bodies, body.snapshot())
	}
	sort.Slice(bodies, func(i, j int) bool { return bodies[i].ID < bodies[j].ID })
	return bodies
}

// Step advances every body by the configured step and publishes the
// resulting events once the world lock is released.
func (e *Engine) Step() {
	e.mu.Lock()
	// The system steps with the float64 StepSeconds; the float32 tick the
	// world passes along is only informational.
	e.world.Update(float32(e.config.StepSeconds))
	pending := e.system.drain()
	e.mu.Unlock()

	e.ticks.Add(1)
	for _, ev := range pending {
		e.bus.Publish(ev)
	}
}

// Ticks returns the number of completed steps
func (e *Engine) Ticks() uint64 {
	return e.ticks.Load()
}

// Running reports whether Run is active
func (e *Engine) Running() bool {
	return e.running.Load()
}

// Run steps the world at the configured tick rate until ctx is done.
func (e *Engine) Run(ctx context.Context) error {
	if e.config.TickHz <= 0 {
		return fmt.Errorf("tick rate must be positive, got %v", e.config.TickHz)
	}
	if !e.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer e.running.Store(false)

	interval := time.Duration(float64(time.Second) / e.config.TickHz)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	e.logger.Info(ctx, "engine started", "tick_interval", interval.String(), "step_seconds", e.config.StepSeconds)

	for {
		select {
		case <-ctx.Done():
			e.logger.Info(ctx, "engine stopped", "ticks", e.Ticks())
			return nil
		case <-ticker.C:
			e.Step()
		}
	}
}
