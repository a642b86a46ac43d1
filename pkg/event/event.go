// pkg/event/event.go
package event

import (
	"sync"

	"github.com/opd-ai/go-deadreckon/pkg/physics"
)

// Type represents the type of event
type Type string

// Event types published by the propagation engine
const (
	BodyAdded       Type = "body_added"
	BodyRemoved     Type = "body_removed"
	StepCompleted   Type = "step_completed"
	TurnRateClamped Type = "turn_rate_clamped"
	NonFiniteState  Type = "non_finite_state"
)

// Event is the base interface for all events
type Event interface {
	GetType() Type
	GetSource() interface{}
}

// BaseEvent provides common functionality for all events
type BaseEvent struct {
	EventType Type
	Source    interface{}
}

// GetType returns the event type
func (e *BaseEvent) GetType() Type {
	return e.EventType
}

// GetSource returns the event source
func (e *BaseEvent) GetSource() interface{} {
	return e.Source
}

// Handler is a function that handles events
type Handler func(Event)

// SubscriptionID identifies a registered handler.
type SubscriptionID uint64

type subscription struct {
	id      SubscriptionID
	handler Handler
}

// Bus manages event subscriptions and dispatching. Handlers run synchronously
// on the publishing goroutine.
type Bus struct {
	handlers map[Type][]subscription
	nextID   SubscriptionID
	mu       sync.RWMutex
}

// NewEventBus creates a new event bus
func NewEventBus() *Bus {
	return &Bus{
		handlers: make(map[Type][]subscription),
		nextID:   1,
	}
}

// Subscribe registers a handler for a specific event type
func (b *Bus) Subscribe(eventType Type, handler Handler) SubscriptionID {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	b.handlers[eventType] = append(b.handlers[eventType], subscription{id: id, handler: handler})
	return id
}

// Unsubscribe removes a previously registered handler. It reports whether
// the subscription existed.
func (b *Bus) Unsubscribe(id SubscriptionID) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	for eventType, subs := range b.handlers {
		for i, sub := range subs {
			if sub.id != id {
				continue
			}
			remaining := make([]subscription, 0, len(subs)-1)
			remaining = append(remaining, subs[:i]...)
			remaining = append(remaining, subs[i+1:]...)
			if len(remaining) == 0 {
				delete(b.handlers, eventType)
			} else {
				b.handlers[eventType] = remaining
			}
			return true
		}
	}
	return false
}

// Publish sends an event to all subscribed handlers
func (b *Bus) Publish(event Event) {
	b.mu.RLock()
	subs := b.handlers[event.GetType()]
	b.mu.RUnlock()

	for _, sub := range subs {
		sub.handler(event)
	}
}

// BodyEvent reports a body joining or leaving the engine.
type BodyEvent struct {
	BaseEvent
	BodyID uint64
	Name   string
	Class  string
}

// NewBodyEvent creates a new body lifecycle event
func NewBodyEvent(eventType Type, source interface{}, bodyID uint64, name, class string) *BodyEvent {
	return &BodyEvent{
		BaseEvent: BaseEvent{
			EventType: eventType,
			Source:    source,
		},
		BodyID: bodyID,
		Name:   name,
		Class:  class,
	}
}

// StepEvent describes one kinematic update of a body. The same payload is
// used for StepCompleted, TurnRateClamped and NonFiniteState.
type StepEvent struct {
	BaseEvent
	BodyID  uint64
	Name    string
	Command string
	Dt      float64
	Before  physics.StateVector
	After   physics.StateVector
}

// NewStepEvent creates a new step event
func NewStepEvent(eventType Type, source interface{}, bodyID uint64, name, command string, dt float64, before, after physics.StateVector) *StepEvent {
	return &StepEvent{
		BaseEvent: BaseEvent{
			EventType: eventType,
			Source:    source,
		},
		BodyID:  bodyID,
		Name:    name,
		Command: command,
		Dt:      dt,
		Before:  before,
		After:   after,
	}
}
