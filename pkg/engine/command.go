// pkg/engine/command.go
package engine

import (
	"errors"
	"fmt"

	"github.com/opd-ai/go-deadreckon/pkg/physics"
)

// CommandType names a kind of steering command
type CommandType string

const (
	CommandHeading  CommandType = "heading"
	CommandTurnRate CommandType = "turn_rate"
	CommandAttitude CommandType = "attitude"
	CommandHold     CommandType = "hold"
)

// ErrUnknownCommand is returned by ParseCommand for an unrecognised type.
var ErrUnknownCommand = errors.New("unknown command")

// Command steers a body for one step
type Command interface {
	Type() CommandType
	Apply(state physics.StateVector, dt float64, model physics.Model) physics.StateVector
}

// HeadingCommand snaps the planar heading to Theta.
type HeadingCommand struct {
	Theta float64
}

func (c HeadingCommand) Type() CommandType { return CommandHeading }

func (c HeadingCommand) Apply(state physics.StateVector, dt float64, _ physics.Model) physics.StateVector {
	return physics.Update2DOF(state, c.Theta, dt)
}

// TurnRateCommand turns at ThetaDot, limited by the model's OmegaMax.
type TurnRateCommand struct {
	ThetaDot float64
}

func (c TurnRateCommand) Type() CommandType { return CommandTurnRate }

func (c TurnRateCommand) Apply(state physics.StateVector, dt float64, model physics.Model) physics.StateVector {
	return model.Update2DOFTurnRateConstraint(state, c.ThetaDot, dt)
}

// Clamped reports whether the model will limit this command.
func (c TurnRateCommand) Clamped(model physics.Model) bool {
	return c.ThetaDot > model.OmegaMax
}

// AttitudeCommand snaps heading and pitch using the spatial update.
type AttitudeCommand struct {
	Theta float64
	Psi   float64
}

func (c AttitudeCommand) Type() CommandType { return CommandAttitude }

func (c AttitudeCommand) Apply(state physics.StateVector, dt float64, _ physics.Model) physics.StateVector {
	return physics.Update3DOF(state, c.Theta, c.Psi, dt)
}

// HoldCommand keeps the current heading. It is the command of a newly
// added body.
type HoldCommand struct{}

func (HoldCommand) Type() CommandType { return CommandHold }

func (HoldCommand) Apply(state physics.StateVector, dt float64, _ physics.Model) physics.StateVector {
	return physics.Update2DOF(state, state.Theta, dt)
}

// CommandParams carries the numeric arguments of a command in its wire form.
// Fields a command type does not use are ignored.
type CommandParams struct {
	Theta    float64 `json:"theta,omitempty" yaml:"theta,omitempty"`
	ThetaDot float64 `json:"theta_dot,omitempty" yaml:"theta_dot,omitempty"`
	Psi      float64 `json:"psi,omitempty" yaml:"psi,omitempty"`
}

// ParseCommand builds a Command from its type name and parameters.
func ParseCommand(commandType string, params CommandParams) (Command, error) {
	switch CommandType(commandType) {
	case CommandHeading:
		return HeadingCommand{Theta: params.Theta}, nil
	case CommandTurnRate:
		return TurnRateCommand{ThetaDot: params.ThetaDot}, nil
	case CommandAttitude:
		return AttitudeCommand{Theta: params.Theta, Psi: params.Psi}, nil
	case CommandHold:
		return HoldCommand{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownCommand, commandType)
	}
}

// Params returns the wire parameters of a command built by ParseCommand.
func Params(cmd Command) CommandParams {
	switch c := cmd.(type) {
	case HeadingCommand:
		return CommandParams{Theta: c.Theta}
	case TurnRateCommand:
		return CommandParams{ThetaDot: c.ThetaDot}
	case AttitudeCommand:
		return CommandParams{Theta: c.Theta, Psi: c.Psi}
	default:
		return CommandParams{}
	}
}
