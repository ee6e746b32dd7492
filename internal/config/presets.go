package config

import (
	"sort"

	"github.com/san-kum/railsim/internal/scenario"
)

// Presets build ready-to-run configurations. Each call returns a fresh
// config that may be modified freely.
var Presets = map[string]func() *Config{
	"curving": func() *Config {
		cfg := DefaultConfig()
		cfg.Scenario.RadiusRamp = 1.0
		cfg.Scenario.CantRamp = 1.0
		return cfg
	},
	"hunting": func() *Config {
		cfg := DefaultConfig()
		cfg.Name = "hunting"
		cfg.Scenario = scenario.Declaration{
			Mode:     scenario.ModeBifurcation.String(),
			Start:    "first",
			Speed:    scenario.Range{Start: 70, End: 20, Step: 10},
			Radius:   scenario.Fixed(0),
			Cant:     scenario.Fixed(0),
			Duration: 3.0,
		}
		cfg.Initial = map[string]float64{"ws1.Y": 3e-3}
		return cfg
	},
	"ramp": func() *Config {
		cfg := DefaultConfig()
		cfg.Name = "ramp"
		cfg.Scenario = scenario.Declaration{
			Mode:     scenario.ModeRamping.String(),
			Speed:    scenario.Range{Start: 60, End: 40, Step: -2},
			Radius:   scenario.Fixed(0),
			Cant:     scenario.Fixed(0),
			Duration: 10.0,
		}
		cfg.Initial = map[string]float64{"ws1.Y": 3e-3}
		return cfg
	},
	"toy": func() *Config {
		cfg := DefaultConfig()
		cfg.Name = "toy"
		cfg.Vehicle.Preset = "toy"
		cfg.Scenario.Speed = scenario.Fixed(10)
		cfg.Scenario.Radius = scenario.Fixed(0)
		cfg.Scenario.Cant = scenario.Fixed(0)
		cfg.Scenario.Duration = 1.0
		return cfg
	},
}

// GetPreset returns a new config for the named preset, or nil.
func GetPreset(name string) *Config {
	fn, ok := Presets[name]
	if !ok {
		return nil
	}
	return fn()
}

func ListPresets() []string {
	names := make([]string, 0, len(Presets))
	for name := range Presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
