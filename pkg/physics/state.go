// pkg/physics/state.go
package physics

import (
	"math"
	"strconv"
	"strings"
)

// StateVector is the kinematic state of a body at one instant. Angles are in
// radians and time in seconds. Values are never modified in place: every
// update returns a new StateVector.
type StateVector struct {
	T        float64 `json:"t" yaml:"t" msgpack:"t"`
	X        float64 `json:"x" yaml:"x" msgpack:"x"`
	Y        float64 `json:"y" yaml:"y" msgpack:"y"`
	Z        float64 `json:"z" yaml:"z" msgpack:"z"`
	XDot     float64 `json:"x_dot" yaml:"x_dot" msgpack:"x_dot"`
	YDot     float64 `json:"y_dot" yaml:"y_dot" msgpack:"y_dot"`
	ZDot     float64 `json:"z_dot" yaml:"z_dot" msgpack:"z_dot"`
	Phi      float64 `json:"phi" yaml:"phi" msgpack:"phi"`
	Theta    float64 `json:"theta" yaml:"theta" msgpack:"theta"`
	Psi      float64 `json:"psi" yaml:"psi" msgpack:"psi"`
	PhiDot   float64 `json:"phi_dot" yaml:"phi_dot" msgpack:"phi_dot"`
	ThetaDot float64 `json:"theta_dot" yaml:"theta_dot" msgpack:"theta_dot"`
	PsiDot   float64 `json:"psi_dot" yaml:"psi_dot" msgpack:"psi_dot"`
}

// StateFieldNames lists the state fields in canonical order, as they appear
// in the text form.
var StateFieldNames = [13]string{
	"t", "x", "y", "z",
	"x_dot", "y_dot", "z_dot",
	"phi", "theta", "psi",
	"phi_dot", "theta_dot", "psi_dot",
}

// NewStateVector creates a fully specified state. No validation is performed.
func NewStateVector(t, x, y, z, xDot, yDot, zDot, phi, theta, psi, phiDot, thetaDot, psiDot float64) StateVector {
	return StateVector{
		T: t, X: x, Y: y, Z: z,
		XDot: xDot, YDot: yDot, ZDot: zDot,
		Phi: phi, Theta: theta, Psi: psi,
		PhiDot: phiDot, ThetaDot: thetaDot, PsiDot: psiDot,
	}
}

// Fields returns the field values in the order of StateFieldNames.
func (s StateVector) Fields() [13]float64 {
	return [13]float64{
		s.T, s.X, s.Y, s.Z,
		s.XDot, s.YDot, s.ZDot,
		s.Phi, s.Theta, s.Psi,
		s.PhiDot, s.ThetaDot, s.PsiDot,
	}
}

// String renders the canonical text form, e.g.
//
//	(0.1 t, 0.07071067811865477 x, ..., 0 psi_dot)
//
// Downstream consumers parse this format, so field order and labels are fixed.
func (s StateVector) String() string {
	var b strings.Builder
	b.WriteByte('(')
	for i, v := range s.Fields() {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(FormatScalar(v))
		b.WriteByte(' ')
		b.WriteString(StateFieldNames[i])
	}
	b.WriteByte(')')
	return b.String()
}

// FormatScalar formats a value as the shortest decimal that round-trips,
// without an exponent. Infinities are written "inf" and "-inf".
func FormatScalar(v float64) string {
	switch {
	case math.IsInf(v, 1):
		return "inf"
	case math.IsInf(v, -1):
		return "-inf"
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// Position returns the position components.
func (s StateVector) Position() Vector3D {
	return Vector3D{X: s.X, Y: s.Y, Z: s.Z}
}

// Velocity returns the velocity components.
func (s StateVector) Velocity() Vector3D {
	return Vector3D{X: s.XDot, Y: s.YDot, Z: s.ZDot}
}

// HorizontalSpeed is the magnitude of the planar velocity.
func (s StateVector) HorizontalSpeed() float64 {
	return s.Velocity().Horizontal().Length()
}

// Speed is the magnitude of the full velocity.
func (s StateVector) Speed() float64 {
	return s.Velocity().Length()
}

// IsFinite reports whether every field is neither NaN nor infinite.
func (s StateVector) IsFinite() bool {
	for _, v := range s.Fields() {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
