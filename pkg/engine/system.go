// pkg/engine/system.go
package engine

import (
	"context"
	"sort"

	"github.com/EngoEngine/ecs"

	"github.com/opd-ai/go-deadreckon/pkg/event"
	"github.com/opd-ai/go-deadreckon/pkg/logging"
	"github.com/opd-ai/go-deadreckon/pkg/physics"
)

// KinematicsComponent holds the kinematic state and steering of one body
type KinematicsComponent struct {
	Name    string
	Class   string
	Model   physics.Model
	State   physics.StateVector
	Command Command
}

type kinematicsEntity struct {
	ecs.BasicEntity
	*KinematicsComponent
}

func (k *kinematicsEntity) snapshot() Body {
	return Body{
		ID:      k.ID(),
		Name:    k.Name,
		Class:   k.Class,
		State:   k.State,
		Command: k.Command,
	}
}

// KinematicsSystem applies each body's command once per world update.
// Events produced during an update are buffered until drained so they can be
// published outside the engine lock.
type KinematicsSystem struct {
	entities map[uint64]*kinematicsEntity
	dt       float64
	source   interface{}
	logger   *logging.Logger
	pending  []event.Event
}

// NewKinematicsSystem creates a system stepping bodies by dt seconds.
func NewKinematicsSystem(dt float64, source interface{}, logger *logging.Logger) *KinematicsSystem {
	return &KinematicsSystem{
		entities: make(map[uint64]*kinematicsEntity),
		dt:       dt,
		source:   source,
		logger:   logger,
	}
}

// Add satisfies the ecs.System interface
func (s *KinematicsSystem) Add(basic *ecs.BasicEntity, kinematics *KinematicsComponent) {
	s.entities[basic.ID()] = &kinematicsEntity{BasicEntity: *basic, KinematicsComponent: kinematics}
}

// Remove satisfies the ecs.System interface
func (s *KinematicsSystem) Remove(basic ecs.BasicEntity) {
	delete(s.entities, basic.ID())
}

// Update advances every body by the system's dt. The float32 argument from
// the world is ignored so that stepping matches the float64 update functions
// exactly.
func (s *KinematicsSystem) Update(float32) {
	ids := make([]uint64, 0, len(s.entities))
	for id := range s.entities {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	for _, id := range ids {
		s.step(s.entities[id])
	}
}

func (s *KinematicsSystem) step(body *kinematicsEntity) {
	before := body.State
	cmd := body.Command
	if cmd == nil {
		cmd = HoldCommand{}
	}
	after := cmd.Apply(before, s.dt, body.Model)
	body.State = after

	id := body.ID()
	name := string(cmd.Type())

	if tr, ok := cmd.(TurnRateCommand); ok && tr.Clamped(body.Model) {
		s.pending = append(s.pending, event.NewStepEvent(event.TurnRateClamped, s.source, id, body.Name, name, s.dt, before, after))
	}

	// Non-finite values persist once introduced; report only the transition.
	if before.IsFinite() && !after.IsFinite() {
		s.logger.Warn(context.Background(), "body state became non-finite",
			"body_id", id,
			"body", body.Name,
			"command", name,
			"dt", s.dt,
			"state", after.String(),
		)
		s.pending = append(s.pending, event.NewStepEvent(event.NonFiniteState, s.source, id, body.Name, name, s.dt, before, after))
	}

	s.pending = append(s.pending, event.NewStepEvent(event.StepCompleted, s.source, id, body.Name, name, s.dt, before, after))
}

func (s *KinematicsSystem) drain() []event.Event {
	pending := s.pending
	s.pending = nil
	return pending
}
