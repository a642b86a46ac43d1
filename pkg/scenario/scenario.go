// Package scenario loads scripted propagation runs from YAML or JSON files.
//
// A scenario names a vehicle class, an initial state and a list of steering
// steps:
//
//	name: climb-out
//	class: fighter
//	dt: 0.1
//	initial:
//	  x_dot: 1
//	  y_dot: 1
//	  heading_from_velocity: true
//	steps:
//	  - command: hold
//	  - command: heading
//	    theta: 10
//	    degrees: true
//	  - command: turn_rate
//	    theta_dot: 0.2
//	    repeat: 50
package scenario

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/opd-ai/go-deadreckon/pkg/config"
	"github.com/opd-ai/go-deadreckon/pkg/engine"
	"github.com/opd-ai/go-deadreckon/pkg/physics"
)

// Supported scenario encodings
const (
	FormatYAML = "yaml"
	FormatJSON = "json"
)

// ErrUnknownFormat is returned for encodings other than YAML and JSON.
var ErrUnknownFormat = errors.New("unknown scenario format")

// Scenario is a scripted propagation of a single body
type Scenario struct {
	Name        string       `json:"name" yaml:"name"`
	Description string       `json:"description,omitempty" yaml:"description,omitempty"`
	Class       string       `json:"class,omitempty" yaml:"class,omitempty"`
	Dt          *float64     `json:"dt,omitempty" yaml:"dt,omitempty"`
	Initial     InitialState `json:"initial" yaml:"initial"`
	Steps       []StepSpec   `json:"steps" yaml:"steps"`
}

// InitialState is the starting state of a scenario. When
// HeadingFromVelocity is set, Theta is replaced by atan2(x_dot, y_dot).
type InitialState struct {
	physics.StateVector `yaml:",inline"`
	HeadingFromVelocity bool `json:"heading_from_velocity,omitempty" yaml:"heading_from_velocity,omitempty"`
}

// StepSpec is one entry of the steps list
type StepSpec struct {
	Label                string `json:"label,omitempty" yaml:"label,omitempty"`
	Command              string `json:"command" yaml:"command"`
	engine.CommandParams `yaml:",inline"`
	// Degrees marks theta, psi and theta_dot as given in degrees.
	Degrees bool     `json:"degrees,omitempty" yaml:"degrees,omitempty"`
	Dt      *float64 `json:"dt,omitempty" yaml:"dt,omitempty"`
	Repeat  int      `json:"repeat,omitempty" yaml:"repeat,omitempty"`
}

// Step is a resolved step ready for propagation
type Step struct {
	Label string
	engine.Step
}

// Load reads a scenario file, choosing the decoder from the file extension.
func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario: %w", err)
	}

	format := FormatJSON
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		format = FormatYAML
	}

	s, err := Parse(data, format)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if s.Name == "" {
		s.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return s, nil
}

// Parse decodes a scenario and checks that every step can be resolved.
func Parse(data []byte, format string) (*Scenario, error) {
	var s Scenario

	var err error
	switch format {
	case FormatYAML:
		err = yaml.Unmarshal(data, &s)
	case FormatJSON:
		err = json.Unmarshal(data, &s)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse scenario: %w", err)
	}

	if _, err := s.ResolveSteps(); err != nil {
		return nil, err
	}
	return &s, nil
}

// InitialStateVector returns the state the scenario starts from.
func (s *Scenario) InitialStateVector() physics.StateVector {
	state := s.Initial.StateVector
	if s.Initial.HeadingFromVelocity {
		state.Theta = math.Atan2(state.XDot, state.YDot)
	}
	return state
}

// ResolveSteps expands repeats and builds the commands of every step. A
// label is kept only on the first repetition of its step.
func (s *Scenario) ResolveSteps() ([]Step, error) {
	var steps []Step

	for i, spec := range s.Steps {
		if spec.Repeat < 0 {
			return nil, fmt.Errorf("step %d: negative repeat %d", i, spec.Repeat)
		}

		params := spec.CommandParams
		if spec.Degrees {
			params.Theta = physics.Radians(params.Theta)
			params.Psi = physics.Radians(params.Psi)
			params.ThetaDot = physics.Radians(params.ThetaDot)
		}
		cmd, err := engine.ParseCommand(spec.Command, params)
		if err != nil {
			return nil, fmt.Errorf("step %d: %w", i, err)
		}

		var dt float64
		switch {
		case spec.Dt != nil:
			dt = *spec.Dt
		case s.Dt != nil:
			dt = *s.Dt
		default:
			return nil, fmt.Errorf("step %d: no dt given and no scenario default", i)
		}

		count := max(spec.Repeat, 1)
		for n := 0; n < count; n++ {
			step := Step{Step: engine.Step{Command: cmd, Dt: dt}}
			if n == 0 {
				step.Label = spec.Label
			}
			steps = append(steps, step)
		}
	}

	return steps, nil
}

// EngineRun builds a propagation run using the scenario's vehicle class.
func (s *Scenario) EngineRun(cfg *config.ModelConfig) (engine.Run, error) {
	model, err := cfg.Model(s.Class)
	if err != nil {
		return engine.Run{}, fmt.Errorf("%w: %q", engine.ErrUnknownClass, s.Class)
	}

	resolved, err := s.ResolveSteps()
	if err != nil {
		return engine.Run{}, err
	}
	steps := make([]engine.Step, len(resolved))
	for i, step := range resolved {
		steps[i] = step.Step
	}

	return engine.Run{
		Name:    s.Name,
		Model:   model,
		Initial: s.InitialStateVector(),
		Steps:   steps,
	}, nil
}

// Demo returns the two-step sample session: a unit-diagonal body held on its
// heading for 0.1 s, then commanded to a 10 degree heading.
func Demo() *Scenario {
	dt := 0.1
	return &Scenario{
		Name:        "demo",
		Description: "heading hold followed by a commanded turn",
		Class:       config.DefaultClassName,
		Dt:          &dt,
		Initial: InitialState{
			StateVector:         physics.StateVector{XDot: 1, YDot: 1},
			HeadingFromVelocity: true,
		},
		Steps: []StepSpec{
			{Label: "update_2dof with no commanded turn", Command: string(engine.CommandHold)},
			{
				Label:         "update_2dof with commanded turn",
				Command:       string(engine.CommandHeading),
				CommandParams: engine.CommandParams{Theta: 10},
				Degrees:       true,
			},
		},
	}
}

// Marshal encodes a scenario in the given format
func Marshal(s *Scenario, format string) ([]byte, error) {
	switch format {
	case FormatYAML:
		return yaml.Marshal(s)
	case FormatJSON:
		return json.MarshalIndent(s, "", "  ")
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
}
