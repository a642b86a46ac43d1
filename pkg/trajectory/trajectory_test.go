package trajectory

import (
	"bytes"
	"math"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opd-ai/go-deadreckon/pkg/physics"
)

func sampleTrajectory() *Trajectory {
	s := physics.StateVector{XDot: 1, YDot: 1, Theta: math.Pi / 4}
	states := []physics.StateVector{s}
	for i := 0; i < 20; i++ {
		s = physics.Update2DOFTurnRateConstraint(s, 0.3, 0.1, physics.DefaultOmegaMax)
		states = append(states, s)
	}
	return &Trajectory{Name: "sample", Class: "default", States: states}
}

func TestWriteRead(t *testing.T) {
	original := sampleTrajectory()

	var buf bytes.Buffer
	require.NoError(t, original.Write(&buf))

	decoded, err := Read(&buf)
	require.NoError(t, err)
	assert.Equal(t, original, decoded)
}

func TestWriteRead_NonFiniteValues(t *testing.T) {
	s := physics.Update2DOF(physics.StateVector{XDot: 1}, 0.5, 0)
	original := &Trajectory{Name: "zero-dt", States: []physics.StateVector{s}}

	var buf bytes.Buffer
	require.NoError(t, original.Write(&buf))
	decoded, err := Read(&buf)
	require.NoError(t, err)

	assert.True(t, math.IsInf(decoded.States[0].ThetaDot, -1))
	assert.Equal(t, s.String(), decoded.States[0].String())
}

func TestWriteFileReadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sample"+Extension)
	original := sampleTrajectory()

	require.NoError(t, original.WriteFile(path))
	decoded, err := ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, original.Final(), decoded.Final())
	assert.Len(t, decoded.States, 21)

	_, err = ReadFile(filepath.Join(t.TempDir(), "missing"+Extension))
	assert.Error(t, err)
}

func TestRead_Corrupt(t *testing.T) {
	_, err := Read(strings.NewReader("definitely not zstd"))
	assert.Error(t, err)
}

func TestWriteText(t *testing.T) {
	tr := &Trajectory{States: []physics.StateVector{
		{},
		physics.Update2DOF(physics.StateVector{XDot: 1}, 0.5, 0.25),
	}}

	var buf bytes.Buffer
	require.NoError(t, tr.WriteText(&buf))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "(0 t, 0 x, 0 y, 0 z, 0 x_dot, 0 y_dot, 0 z_dot, 0 phi, 0 theta, 0 psi, 0 phi_dot, 0 theta_dot, 0 psi_dot)", lines[0])
	assert.Equal(t, "(0.25 t, 0.25 x, 0 y, 0 z, 1 x_dot, 0 y_dot, 0 z_dot, 0 phi, 0.5 theta, 0 psi, 0 phi_dot, -2 theta_dot, 0 psi_dot)", lines[1])
}

func TestFinal_Empty(t *testing.T) {
	assert.Equal(t, physics.StateVector{}, (&Trajectory{}).Final())
}
