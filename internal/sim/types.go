package sim

import (
	"time"

	"github.com/san-kum/railsim/internal/dynamo"
	"github.com/san-kum/railsim/internal/integrators"
	"github.com/san-kum/railsim/internal/solution"
	"github.com/san-kum/railsim/internal/track"
	"github.com/san-kum/railsim/internal/vehicle"
)

// Model is the system a Runner integrates. *vehicle.Model satisfies it.
type Model interface {
	integrators.System
	Conditions() *track.Conditions
	Status(t float64, y []float64) ([]vehicle.Status, error)
}

// Metric observes every reported sample of a solve.
type Metric interface {
	Name() string
	Observe(e solution.Entry)
	Value() float64
	Reset()
}

// Observer is notified of every reported sample.
type Observer interface {
	OnSample(e solution.Entry)
}

// Options controls the output cadence of a solve.
type Options struct {
	// SampleInterval is the time between reported samples. Zero reports
	// every accepted step.
	SampleInterval float64 `yaml:"sample_interval"`

	// JacobianInterval is the time between exported Jacobian snapshots.
	// Zero disables the export.
	JacobianInterval float64 `yaml:"jacobian_interval"`

	// InitialStep is the first trial step. Zero lets the stepper choose.
	InitialStep float64 `yaml:"initial_step"`

	// MaxSteps bounds the accepted steps per solve. It is checked between
	// calls to Evolve, so a driver stepper may overrun it until the next
	// sample or Jacobian mark; its own Tolerance.MaxSteps still applies.
	MaxSteps int `yaml:"max_steps"`
}

func DefaultOptions() Options {
	return Options{SampleInterval: 0.01, MaxSteps: 500000}
}

// Result is the outcome of one solve.
type Result struct {
	Sim       int
	T         float64
	Y         []float64
	Samples   int
	Jacobians int
	Stats     dynamo.Stats
	Code      dynamo.Code
	Metrics   map[string]float64
	Elapsed   time.Duration
}
