// pkg/physics/update.go
package physics

import "math"

// DefaultOmegaMax is the turn-rate ceiling in rad/s used when a vehicle class
// does not set its own.
const DefaultOmegaMax = 10.0

// Model holds the per-vehicle-class tuning of the kinematic updates.
type Model struct {
	// OmegaMax is the largest heading rate, in rad/s, that
	// Update2DOFTurnRateConstraint will apply.
	OmegaMax float64
}

// DefaultModel returns a Model using DefaultOmegaMax.
func DefaultModel() Model {
	return Model{OmegaMax: DefaultOmegaMax}
}

// Update2DOFTurnRateConstraint applies the model's turn-rate limit.
func (m Model) Update2DOFTurnRateConstraint(state StateVector, commandedThetaDot, dt float64) StateVector {
	return Update2DOFTurnRateConstraint(state, commandedThetaDot, dt, m.OmegaMax)
}

// Update2DOF advances a planar state by dt and snaps the heading to
// commandedTheta.
//
// The velocity is re-projected onto the heading held before the call, so a
// commanded turn only shows up in position on the following step. ThetaDot is
// written as (old - new) / dt; consumers depend on that sign. A zero dt yields
// a non-finite ThetaDot.
func Update2DOF(state StateVector, commandedTheta, dt float64) StateVector {
	next := state

	// Re-derive planar velocity from the preserved speed and current heading
	speed := state.Velocity().Horizontal().Length()
	vel := FromAngle(state.Theta, speed)
	next.XDot, next.YDot = vel.X, vel.Y

	// Integrate position
	pos := Vector2D{X: state.X, Y: state.Y}.Add(vel.Scale(dt))
	next.X, next.Y = pos.X, pos.Y
	next.T += dt

	// Heading snaps to the command
	next.Theta = commandedTheta
	next.ThetaDot = (state.Theta - next.Theta) / dt

	return next
}

// ClampTurnRate limits a commanded heading rate to omegaMax. Only the upper
// bound is enforced; rates below -omegaMax pass through unchanged.
func ClampTurnRate(commandedThetaDot, omegaMax float64) float64 {
	if commandedThetaDot > omegaMax {
		return omegaMax
	}
	return commandedThetaDot
}

// Update2DOFTurnRateConstraint advances a planar state by dt, turning at the
// commanded rate clamped by ClampTurnRate. Unlike Update2DOF the heading is
// integrated rather than snapped.
func Update2DOFTurnRateConstraint(state StateVector, commandedThetaDot, dt, omegaMax float64) StateVector {
	next := state

	speed := state.Velocity().Horizontal().Length()
	vel := FromAngle(state.Theta, speed)
	next.XDot, next.YDot = vel.X, vel.Y

	pos := Vector2D{X: state.X, Y: state.Y}.Add(vel.Scale(dt))
	next.X, next.Y = pos.X, pos.Y

	next.ThetaDot = ClampTurnRate(commandedThetaDot, omegaMax)
	next.Theta += next.ThetaDot * dt
	next.T += dt

	return next
}

// Update3DOF advances a spatial state by dt and snaps heading and pitch to the
// commanded values. Phi and PhiDot are carried through unchanged.
//
// The velocity decomposition pairs sin(theta) with sin(psi) for the Y axis.
// That is not the usual spherical-to-Cartesian transform, but recorded
// trajectories were produced with it, so it must not change. Rates use the
// same (old - new) / dt convention as Update2DOF.
func Update3DOF(state StateVector, commandedTheta, commandedPsi, dt float64) StateVector {
	next := state

	speed := state.Velocity().Length()
	vel := Vector3D{
		X: speed * math.Cos(state.Theta) * math.Cos(state.Psi),
		Y: speed * math.Sin(state.Theta) * math.Sin(state.Psi),
		Z: speed * math.Sin(state.Theta),
	}
	next.XDot, next.YDot, next.ZDot = vel.X, vel.Y, vel.Z

	pos := state.Position().Add(vel.Scale(dt))
	next.X, next.Y, next.Z = pos.X, pos.Y, pos.Z
	next.T += dt

	next.Theta = commandedTheta
	next.Psi = commandedPsi
	next.ThetaDot = (state.Theta - next.Theta) / dt
	next.PsiDot = (state.Psi - next.Psi) / dt

	return next
}
