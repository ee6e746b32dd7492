// Package automation runs batches of experiments described in YAML, with
// optional Monte Carlo trials that perturb the initial state.
package automation

import (
	"context"
	"fmt"
	"maps"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/san-kum/railsim/internal/config"
	"github.com/san-kum/railsim/internal/dynamo"
	"github.com/san-kum/railsim/internal/experiment"
	"github.com/san-kum/railsim/internal/integrators"
	"github.com/san-kum/railsim/internal/storage"
	"gopkg.in/yaml.v3"
)

// Batch is a scripted sequence of runs.
type Batch struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Steps       []Step `yaml:"steps"`

	dir string
}

// Step is one run file or preset, optionally repeated as Monte Carlo trials.
type Step struct {
	File     string  `yaml:"file,omitempty"`
	Preset   string  `yaml:"preset,omitempty"`
	Name     string  `yaml:"name,omitempty"`
	Solver   string  `yaml:"solver,omitempty"`
	Duration float64 `yaml:"duration,omitempty"`

	Initial map[string]float64 `yaml:"initial,omitempty"`

	// Trials repeats the step with every coordinate of Perturb offset by a
	// uniform draw in [-p, p].
	Trials  int                `yaml:"trials,omitempty"`
	Perturb map[string]float64 `yaml:"perturb,omitempty"`
	Seed    int64              `yaml:"seed,omitempty"`
}

// LoadBatch loads a batch from a YAML file. Step files are resolved against
// the directory of the batch file.
func LoadBatch(path string) (*Batch, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var batch Batch
	if err := yaml.Unmarshal(data, &batch); err != nil {
		return nil, fmt.Errorf("batch %s: %w", path, err)
	}
	batch.dir = filepath.Dir(path)
	return &batch, nil
}

func (s Step) config(dir string) (*config.Config, error) {
	var cfg *config.Config
	switch {
	case s.File != "" && s.Preset != "":
		return nil, dynamo.Configf("step", "set either file or preset, not both")
	case s.File != "":
		path := s.File
		if !filepath.IsAbs(path) && dir != "" {
			path = filepath.Join(dir, path)
		}
		var err error
		if cfg, err = config.Load(path); err != nil {
			return nil, err
		}
	case s.Preset != "":
		if cfg = config.GetPreset(s.Preset); cfg == nil {
			return nil, dynamo.Configf("step.preset", "unknown preset %q", s.Preset)
		}
	default:
		cfg = config.DefaultConfig()
	}

	if s.Name != "" {
		cfg.Name = s.Name
	}
	if s.Solver != "" {
		spec := integrators.ParseSpec(s.Solver)
		cfg.Solver.Name, cfg.Solver.Variant = spec.Name, spec.Variant
	}
	if s.Duration > 0 {
		cfg.Scenario.Duration = s.Duration
	}
	if len(s.Initial) > 0 {
		initial := maps.Clone(cfg.Initial)
		if initial == nil {
			initial = make(map[string]float64, len(s.Initial))
		}
		maps.Copy(initial, s.Initial)
		cfg.Initial = initial
	}
	return cfg, nil
}

// StepResult is the outcome of one run of a batch.
type StepResult struct {
	Step int

	// Trial is the Monte Carlo trial, -1 for a plain step.
	Trial   int
	Initial map[string]float64
	Run     *storage.RunMetadata
	Err     error
}

// Stable reports whether every point of the run succeeded.
func (r StepResult) Stable() bool {
	return r.Err == nil && r.Run != nil && r.Run.Code == dynamo.CodeSuccess
}

// RunBatch executes all steps in order. A step that cannot be set up ends
// the batch; a run that fails is recorded and the batch continues.
func RunBatch(ctx context.Context, batch *Batch, opts experiment.Options) ([]StepResult, error) {
	results := make([]StepResult, 0, len(batch.Steps))
	log := opts.Logger

	for i, step := range batch.Steps {
		base, err := step.config(batch.dir)
		if err != nil {
			return results, fmt.Errorf("step %d: %w", i+1, err)
		}

		trials := perturbations(step, base)
		for k, initial := range trials {
			cfg := *base
			cfg.Initial = initial
			trial := -1
			if step.Trials > 0 {
				trial = k
				cfg.Name = fmt.Sprintf("%s-%d", base.Name, k)
			}
			log.Info().Int("step", i+1).Int("of", len(batch.Steps)).Int("trial", trial).Str("name", cfg.Name).Msg("batch step")

			exp := experiment.New(&cfg, opts)
			if err := exp.Setup(); err != nil {
				return results, fmt.Errorf("step %d setup: %w", i+1, err)
			}
			meta, err := exp.Run(ctx)
			results = append(results, StepResult{Step: i, Trial: trial, Initial: initial, Run: meta, Err: err})

			if ctx.Err() != nil {
				return results, ctx.Err()
			}
		}
	}

	return results, nil
}

// perturbations returns the initial coordinates of every run of a step.
func perturbations(step Step, base *config.Config) []map[string]float64 {
	if step.Trials <= 0 {
		return []map[string]float64{maps.Clone(base.Initial)}
	}

	rng := rand.New(rand.NewSource(step.Seed))
	if step.Seed == 0 {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}

	names := make([]string, 0, len(step.Perturb))
	for name := range step.Perturb {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]map[string]float64, step.Trials)
	for k := range out {
		initial := maps.Clone(base.Initial)
		if initial == nil {
			initial = make(map[string]float64, len(names))
		}
		for _, name := range names {
			initial[name] += (rng.Float64() - 0.5) * 2 * step.Perturb[name]
		}
		out[k] = initial
	}
	return out
}

// MonteCarloStats counts stable and unstable runs.
func MonteCarloStats(results []StepResult) (stableCount int, unstableCount int) {
	for _, r := range results {
		if r.Stable() {
			stableCount++
		} else {
			unstableCount++
		}
	}
	return
}
