package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/san-kum/railsim/internal/contact"
	"github.com/san-kum/railsim/internal/dynamo"
	"github.com/san-kum/railsim/internal/integrators"
	"github.com/san-kum/railsim/internal/scenario"
	"github.com/san-kum/railsim/internal/sim"
	"github.com/san-kum/railsim/internal/track"
	"github.com/san-kum/railsim/internal/vehicle"
	"gopkg.in/yaml.v3"
)

const (
	DefaultSolver   = "sdirk"
	DefaultVariant  = "4"
	DefaultVehicle  = "coach"
	DefaultSpeed    = 30.0
	DefaultRadius   = 1200.0
	DefaultCant     = 0.05
	DefaultDuration = 2.0
)

// VehicleConfig selects a built-in vehicle or describes one inline.
type VehicleConfig struct {
	Preset        string               `yaml:"preset,omitempty"`
	Description   *vehicle.Description `yaml:"description,omitempty"`
	ParallelDepth int                  `yaml:"parallel_depth,omitempty"`
}

// TableConfig is a contact table read from a CSV file or generated from a
// conical profile.
type TableConfig struct {
	Name          string                  `yaml:"name"`
	File          string                  `yaml:"file,omitempty"`
	Profile       *contact.ConicalProfile `yaml:"profile,omitempty"`
	Interpolation string                  `yaml:"interpolation,omitempty"`
}

type Config struct {
	Name     string               `yaml:"name"`
	Solver   integrators.Spec     `yaml:"solver"`
	Output   sim.Options          `yaml:"output"`
	Scenario scenario.Declaration `yaml:"scenario"`
	Vehicle  VehicleConfig        `yaml:"vehicle"`
	Tables   []TableConfig        `yaml:"tables,omitempty"`

	// Initial sets coordinates of the initial state by DOF name, for example
	// "ws1.Y". Unlisted coordinates start at zero.
	Initial map[string]float64 `yaml:"initial,omitempty"`

	dir string
}

func DefaultConfig() *Config {
	profile := contact.DefaultConicalProfile()
	return &Config{
		Name: "curving",
		Solver: integrators.Spec{
			Name:      DefaultSolver,
			Variant:   DefaultVariant,
			Tolerance: integrators.DefaultTolerance(),
		},
		Output: sim.DefaultOptions(),
		Scenario: scenario.Declaration{
			Mode:     scenario.ModeTransient.String(),
			Speed:    scenario.Fixed(DefaultSpeed),
			Radius:   scenario.Fixed(DefaultRadius),
			Cant:     scenario.Fixed(DefaultCant),
			Duration: DefaultDuration,
		},
		Vehicle: VehicleConfig{Preset: DefaultVehicle},
		Tables: []TableConfig{{
			Name:          vehicle.DefaultTable,
			Profile:       &profile,
			Interpolation: contact.Linear.String(),
		}},
	}
}

// Load reads a run file over the defaults. Relative table paths are
// resolved against the directory of the file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	cfg.dir = filepath.Dir(path)
	return cfg, nil
}

func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

var vehiclePresets = map[string]func() vehicle.Description{
	"coach": vehicle.DefaultDescription,
	"toy":   vehicle.ToyDescription,
}

func VehiclePresets() []string {
	names := make([]string, 0, len(vehiclePresets))
	for name := range vehiclePresets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Description returns the inline vehicle description, or the named preset.
func (c *Config) Description() (vehicle.Description, error) {
	if c.Vehicle.Description != nil {
		return *c.Vehicle.Description, nil
	}
	name := c.Vehicle.Preset
	if name == "" {
		name = DefaultVehicle
	}
	fn, ok := vehiclePresets[name]
	if !ok {
		return vehicle.Description{}, dynamo.Configf("vehicle.preset", "unknown vehicle %q (have %s)", name, strings.Join(VehiclePresets(), ", "))
	}
	return fn(), nil
}

// LoadTables builds every configured contact table. Without any configured
// table the default conical profile is used.
func (c *Config) LoadTables() (map[string]*contact.Table, error) {
	specs := c.Tables
	if len(specs) == 0 {
		specs = DefaultConfig().Tables
	}

	tables := make(map[string]*contact.Table, len(specs))
	for i, spec := range specs {
		field := fmt.Sprintf("tables[%d]", i)
		if spec.Name == "" {
			return nil, dynamo.Configf(field, "missing name")
		}
		if _, dup := tables[spec.Name]; dup {
			return nil, dynamo.Configf(field, "duplicate table %q", spec.Name)
		}
		method, err := contact.ParseInterpolation(spec.Interpolation)
		if err != nil {
			return nil, dynamo.Configf(field, "%v", err)
		}

		var tab *contact.Table
		switch {
		case spec.File != "" && spec.Profile != nil:
			return nil, dynamo.Configf(field, "set either file or profile, not both")
		case spec.File != "":
			path := spec.File
			if !filepath.IsAbs(path) && c.dir != "" {
				path = filepath.Join(c.dir, path)
			}
			tab, err = contact.LoadFile(spec.Name, path, method)
		default:
			profile := contact.DefaultConicalProfile()
			if spec.Profile != nil {
				profile = *spec.Profile
			}
			profile.Name = spec.Name
			tab, err = profile.Generate(method)
		}
		if err != nil {
			return nil, fmt.Errorf("config: table %s: %w", spec.Name, err)
		}
		tables[spec.Name] = tab
	}
	return tables, nil
}

// BuildModel assembles and calibrates the vehicle on cond.
func (c *Config) BuildModel(cond *track.Conditions) (*vehicle.Model, error) {
	desc, err := c.Description()
	if err != nil {
		return nil, err
	}
	tables, err := c.LoadTables()
	if err != nil {
		return nil, err
	}
	m, err := vehicle.Build(desc, tables, cond)
	if err != nil {
		return nil, err
	}
	m.SetParallelDepth(c.Vehicle.ParallelDepth)
	if err := m.Calibrate(); err != nil {
		return nil, err
	}
	return m, nil
}

// InitialState returns y0 for m with the configured coordinates set.
func (c *Config) InitialState(m *vehicle.Model) ([]float64, error) {
	y := m.InitialState()
	if len(c.Initial) == 0 {
		return y, nil
	}
	index := make(map[string]int, len(y))
	for i, name := range m.DOFNames() {
		index[name] = i
	}
	for name, v := range c.Initial {
		i, ok := index[name]
		if !ok {
			return nil, dynamo.Configf("initial", "unknown coordinate %q", name)
		}
		y[i] = v
	}
	return y, nil
}

// NewStepper builds the configured solver.
func (c *Config) NewStepper() (integrators.Stepper, error) {
	s, err := integrators.NewRegistry().New(c.Solver)
	if err != nil {
		return nil, dynamo.Configf("solver", "%v", err)
	}
	return s, nil
}

// Plan validates the scenario.
func (c *Config) Plan() (*scenario.Plan, error) {
	return scenario.NewPlan(c.Scenario)
}

// Validate checks everything that can be checked without building the model.
func (c *Config) Validate() error {
	if _, err := c.NewStepper(); err != nil {
		return err
	}
	if _, err := c.Plan(); err != nil {
		return err
	}
	if c.Output.SampleInterval < 0 || c.Output.JacobianInterval < 0 {
		return dynamo.Configf("output", "intervals must not be negative")
	}
	_, err := c.Description()
	return err
}
