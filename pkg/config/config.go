// pkg/config/config.go
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/opd-ai/go-deadreckon/pkg/physics"
)

// ModelConfig contains the kinematic model configuration
type ModelConfig struct {
	DefaultClass string                  `json:"defaultClass" yaml:"defaultClass"`
	Classes      map[string]VehicleClass `json:"classes" yaml:"classes"`
	StepSeconds  float64                 `json:"stepSeconds" yaml:"stepSeconds"`
	TickHz       float64                 `json:"tickHz" yaml:"tickHz"`
}

// VehicleClass contains the tuning shared by all bodies of one kind
type VehicleClass struct {
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	// OmegaMax is the turn-rate ceiling in rad/s.
	OmegaMax float64 `json:"omegaMax" yaml:"omegaMax"`
}

// Model returns the physics model for the named class. An empty name selects
// DefaultClass.
func (c *ModelConfig) Model(class string) (physics.Model, error) {
	if class == "" {
		class = c.DefaultClass
	}
	vc, ok := c.Classes[class]
	if !ok {
		return physics.Model{}, fmt.Errorf("unknown vehicle class %q", class)
	}
	return physics.Model{OmegaMax: vc.OmegaMax}, nil
}

// ClassNames returns the configured class names in sorted order
func (c *ModelConfig) ClassNames() []string {
	names := make([]string, 0, len(c.Classes))
	for name := range c.Classes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func isYAML(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}

// LoadConfig loads a configuration from a JSON or YAML file
func LoadConfig(path string) (*ModelConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config ModelConfig
	if isYAML(path) {
		err = yaml.Unmarshal(data, &config)
	} else {
		err = json.Unmarshal(data, &config)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if config.DefaultClass == "" {
		config.DefaultClass = DefaultClassName
	}
	if _, ok := config.Classes[config.DefaultClass]; !ok {
		return nil, fmt.Errorf("default class %q is not defined", config.DefaultClass)
	}

	return &config, nil
}

// SaveConfig saves a configuration to a file, in YAML when the path ends in
// .yaml or .yml and JSON otherwise
func SaveConfig(config *ModelConfig, path string) error {
	var (
		data []byte
		err  error
	)
	if isYAML(path) {
		data, err = yaml.Marshal(config)
	} else {
		data, err = json.MarshalIndent(config, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// DefaultClassName is the class used when none is requested.
const DefaultClassName = "default"

// DefaultConfig returns a default model configuration
func DefaultConfig() *ModelConfig {
	return &ModelConfig{
		DefaultClass: DefaultClassName,
		Classes: map[string]VehicleClass{
			DefaultClassName: {
				Description: "generic point mass",
				OmegaMax:    physics.DefaultOmegaMax,
			},
			"fighter": {
				Description: "agile aircraft, 30 deg/s",
				OmegaMax:    physics.Radians(30),
			},
			"transport": {
				Description: "standard-rate turn, 3 deg/s",
				OmegaMax:    physics.Radians(3),
			},
		},
		StepSeconds: 0.1,
		TickHz:      10,
	}
}
