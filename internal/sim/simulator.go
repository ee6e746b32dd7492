// Package sim runs a stepper over a model and reports samples on a fixed
// time cadence.
package sim

import (
	"context"
	"fmt"
	"math"
	"slices"
	"time"

	"github.com/rs/zerolog"
	"github.com/san-kum/railsim/internal/dynamo"
	"github.com/san-kum/railsim/internal/integrators"
	"github.com/san-kum/railsim/internal/solution"
	"github.com/san-kum/railsim/internal/telemetry"
	"gonum.org/v1/gonum/mat"
)

type Runner struct {
	stepper   integrators.Stepper
	opts      Options
	metrics   []Metric
	observers []Observer
	telemetry *telemetry.Solver
	log       zerolog.Logger
}

func New(stepper integrators.Stepper, opts Options) *Runner {
	if opts.MaxSteps <= 0 {
		opts.MaxSteps = DefaultOptions().MaxSteps
	}
	return &Runner{
		stepper: stepper,
		opts:    opts,
		log:     zerolog.Nop(),
	}
}

func (r *Runner) AddMetric(m Metric)               { r.metrics = append(r.metrics, m) }
func (r *Runner) AddObserver(o Observer)           { r.observers = append(r.observers, o) }
func (r *Runner) SetLogger(l zerolog.Logger)       { r.log = l }
func (r *Runner) SetTelemetry(s *telemetry.Solver) { r.telemetry = s }
func (r *Runner) Stepper() integrators.Stepper     { return r.stepper }
func (r *Runner) Options() Options                 { return r.opts }

// Solve integrates m from (t0, y0) to tf, opening a new simulation in sol.
// A sample is reported at t0, then on the sample cadence and at tf.
//
// On failure the returned Result still holds the last accepted state and
// the failure code.
func (r *Runner) Solve(ctx context.Context, m Model, sol *solution.Solution, y0 []float64, t0, tf float64) (*Result, error) {
	if err := validate(m, y0, t0, tf); err != nil {
		return nil, err
	}

	start := time.Now()
	r.stepper.Init(m.Dim())
	for _, mt := range r.metrics {
		mt.Reset()
	}

	res := &Result{Sim: sol.Begin(), T: t0, Y: slices.Clone(y0)}
	log := r.log.With().Int("sim", res.Sim).Str("solver", r.stepper.Name()).Logger()
	log.Debug().
		Float64("t0", t0).
		Float64("tf", tf).
		Stringer("point", m.Conditions().At(t0)).
		Msg("solve start")

	err := r.integrate(ctx, m, sol, res, tf)

	res.Stats = r.stepper.Stats()
	res.Code = dynamo.CodeOf(err)
	res.Elapsed = time.Since(start)
	res.Metrics = make(map[string]float64, len(r.metrics))
	for _, mt := range r.metrics {
		res.Metrics[mt.Name()] = mt.Value()
	}
	r.telemetry.Record(ctx, r.stepper.Name(), res.Stats, res.Code, res.Elapsed)

	if err != nil {
		log.Error().
			Err(err).
			Stringer("code", res.Code).
			Float64("t", res.T).
			Int("steps", res.Stats.Steps).
			Msg("solve failed")
		return res, err
	}

	log.Info().
		Float64("t", res.T).
		Int("steps", res.Stats.Steps).
		Int("rejected", res.Stats.Rejected).
		Int("fevals", res.Stats.FunEvals).
		Int("jevals", res.Stats.JacEvals).
		Int("samples", res.Samples).
		Dur("elapsed", res.Elapsed).
		Msg("solve done")
	return res, nil
}

func validate(m Model, y0 []float64, t0, tf float64) error {
	if len(y0) != m.Dim() {
		return fmt.Errorf("sim: initial state has %d values, model has %d: %w", len(y0), m.Dim(), dynamo.ErrDimensionMismatch)
	}
	if !dynamo.State(y0).IsValid() {
		return fmt.Errorf("sim: initial state: %w", dynamo.ErrInvalidState)
	}
	if math.IsNaN(t0) || math.IsNaN(tf) || tf <= t0 {
		return fmt.Errorf("sim: end time %g must be after start time %g", tf, t0)
	}
	return nil
}

func (r *Runner) integrate(ctx context.Context, m Model, sol *solution.Solution, res *Result, tf float64) error {
	t := res.T
	y := res.Y
	h := r.opts.InitialStep
	samples := newCadence(t, r.opts.SampleInterval)
	jacobians := newCadence(t, r.opts.JacobianInterval)

	var J *mat.Dense
	if r.opts.JacobianInterval > 0 {
		J = mat.NewDense(m.Dim(), m.Dim(), nil)
	}

	if err := r.sample(m, sol, res, t, 0); err != nil {
		return err
	}
	if J != nil {
		if err := r.exportJacobian(m, sol, res, t, J); err != nil {
			return err
		}
	}

	for t < tf {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		// Steps are clipped at the next mark so samples land on the cadence.
		target := math.Min(tf, samples.next())
		if J != nil {
			target = math.Min(target, jacobians.next())
		}

		err := r.stepper.Evolve(m, &t, target, &h, y)
		res.T = t
		if err != nil {
			return err
		}

		if t < tf && r.stepper.Stats().Steps >= r.opts.MaxSteps {
			return &dynamo.StepperError{
				Stepper: r.stepper.Name(),
				Code:    dynamo.CodeMaxSteps,
				Time:    t,
				Step:    h,
				Stats:   r.stepper.Stats(),
				Wrapped: dynamo.ErrMaxSteps,
			}
		}

		if samples.due(t) || t >= tf {
			if err := r.sample(m, sol, res, t, r.stepper.Stats().LastStep); err != nil {
				return err
			}
			samples.advance(t)
		}
		if J != nil && jacobians.due(t) {
			if err := r.exportJacobian(m, sol, res, t, J); err != nil {
				return err
			}
			jacobians.advance(t)
		}
	}
	return nil
}

func (r *Runner) sample(m Model, sol *solution.Solution, res *Result, t, h float64) error {
	status, err := m.Status(t, res.Y)
	if err != nil {
		return err
	}
	e := solution.Entry{
		T:      t,
		H:      h,
		Point:  m.Conditions().At(t),
		Status: status,
	}
	if err := sol.Append(e); err != nil {
		return err
	}
	e.Sim = res.Sim
	res.Samples++

	for _, mt := range r.metrics {
		mt.Observe(e)
	}
	for _, obs := range r.observers {
		obs.OnSample(e)
	}
	return nil
}

func (r *Runner) exportJacobian(m Model, sol *solution.Solution, res *Result, t float64, J *mat.Dense) error {
	if err := m.Jacobian(t, res.Y, J); err != nil {
		return err
	}
	if err := sol.AppendJacobian(solution.Jacobian{T: t, J: J}); err != nil {
		return err
	}
	res.Jacobians++
	return nil
}

// cadence yields the times t0 + k·interval.
type cadence struct {
	t0       float64
	interval float64
	k        int
}

func newCadence(t0, interval float64) cadence {
	return cadence{t0: t0, interval: interval, k: 1}
}

func (c cadence) next() float64 {
	if c.interval <= 0 {
		return math.Inf(1)
	}
	return c.t0 + float64(c.k)*c.interval
}

// due reports whether t has reached the next mark. A non-positive interval
// is always due.
func (c cadence) due(t float64) bool {
	if c.interval <= 0 {
		return true
	}
	return t >= c.next()-timeEps(t)
}

// advance moves the next mark past t.
func (c *cadence) advance(t float64) {
	if c.interval <= 0 {
		return
	}
	for c.next() <= t+timeEps(t) {
		c.k++
	}
}

func timeEps(t float64) float64 {
	return 1e-12 * math.Max(1, math.Abs(t))
}
