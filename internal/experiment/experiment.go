// Package experiment wires a run file into a stored simulation run: it
// builds the vehicle, the solver and the scenario driver, and records every
// solve in the run directory.
package experiment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/san-kum/railsim/internal/config"
	"github.com/san-kum/railsim/internal/dynamo"
	"github.com/san-kum/railsim/internal/metrics"
	"github.com/san-kum/railsim/internal/scenario"
	"github.com/san-kum/railsim/internal/sim"
	"github.com/san-kum/railsim/internal/solution"
	"github.com/san-kum/railsim/internal/storage"
	"github.com/san-kum/railsim/internal/telemetry"
	"github.com/san-kum/railsim/internal/track"
	"github.com/san-kum/railsim/internal/vehicle"
	"go.opentelemetry.io/otel/metric"
)

type Options struct {
	DataDir string

	// ParallelDepth overrides the vehicle setting when positive.
	ParallelDepth int

	// Keep retains every sample in memory as well.
	Keep bool

	Logger zerolog.Logger

	// Meter receives solver telemetry. Nil uses the global meter provider.
	Meter metric.Meter
}

type Experiment struct {
	cfg  *config.Config
	opts Options

	plan   *scenario.Plan
	cond   *track.Conditions
	model  *vehicle.Model
	runner *sim.Runner
	y0     []float64
	sol    *solution.Solution
}

func New(cfg *config.Config, opts Options) *Experiment {
	return &Experiment{cfg: cfg, opts: opts}
}

// Setup validates the configuration and builds everything a run needs.
func (e *Experiment) Setup() error {
	if err := e.cfg.Validate(); err != nil {
		return err
	}
	plan, err := e.cfg.Plan()
	if err != nil {
		return err
	}
	if e.opts.ParallelDepth > 0 {
		e.cfg.Vehicle.ParallelDepth = e.opts.ParallelDepth
	}

	e.cond = track.New()
	model, err := e.cfg.BuildModel(e.cond)
	if err != nil {
		return err
	}
	model.SetLogger(e.opts.Logger.With().Str("component", "vehicle").Logger())

	y0, err := e.cfg.InitialState(model)
	if err != nil {
		return err
	}

	stepper, err := e.cfg.NewStepper()
	if err != nil {
		return err
	}
	runner := sim.New(stepper, e.cfg.Output)
	runner.SetLogger(e.opts.Logger.With().Str("component", "runner").Logger())
	for _, m := range metrics.Defaults() {
		runner.AddMetric(m)
	}
	tel, err := telemetry.NewSolver(e.opts.Meter)
	if err != nil {
		return err
	}
	runner.SetTelemetry(tel)

	e.plan, e.model, e.runner, e.y0 = plan, model, runner, y0
	e.opts.Logger.Info().
		Str("vehicle", model.Name()).
		Int("dof", model.Dim()).
		Str("solver", e.cfg.Solver.String()).
		Stringer("mode", plan.Mode).
		Int("points", len(plan.Points)).
		Msg("experiment ready")
	return nil
}

func (e *Experiment) Plan() *scenario.Plan         { return e.plan }
func (e *Experiment) Model() *vehicle.Model        { return e.model }
func (e *Experiment) Runner() *sim.Runner          { return e.runner }
func (e *Experiment) Config() *config.Config       { return e.cfg }
func (e *Experiment) InitialState() []float64      { return e.y0 }
func (e *Experiment) Solution() *solution.Solution { return e.sol }

// Run executes the plan and stores the result under the data directory.
// The run directory is closed with the final status even when a point
// fails; the returned metadata is valid whenever the directory was created.
func (e *Experiment) Run(ctx context.Context, listeners ...scenario.Listener) (*storage.RunMetadata, error) {
	if e.runner == nil {
		return nil, fmt.Errorf("experiment not setup")
	}

	st := storage.New(e.opts.DataDir)
	run, err := st.Create(storage.RunMetadata{
		Name:     e.cfg.Name,
		Scenario: e.plan.Mode.String(),
		Vehicle:  e.model.Name(),
		Solver:   e.cfg.Solver.String(),
		DOF:      e.model.Dim(),
	})
	if err != nil {
		return nil, err
	}
	log := e.opts.Logger.With().Str("run", run.ID()).Logger()

	e.sol = solution.New(e.opts.Keep, run)
	driver := scenario.NewDriver(e.plan, e.model, e.runner, e.sol)
	driver.SetLogger(log)
	driver.AddListener(recorder{run: run})
	for _, l := range listeners {
		driver.AddListener(l)
	}

	start := time.Now()
	report, runErr := driver.Run(ctx, e.y0)
	elapsed := time.Since(start)

	code := dynamo.CodeSuccess
	switch {
	case report != nil && report.Code != dynamo.CodeSuccess:
		code = report.Code
	case runErr != nil:
		code = dynamo.CodeOf(runErr)
	}
	closeErr := run.Close(code, elapsed)

	ev := log.Info()
	if runErr != nil {
		ev = log.Error().Err(runErr)
	}
	ev.Stringer("code", code).Dur("elapsed", elapsed).Str("dir", run.Dir()).Msg("run finished")

	return run.Metadata(), errors.Join(runErr, closeErr)
}

// recorder adds one point record per solve to the run metadata.
type recorder struct {
	run *storage.Run
}

func (r recorder) PointStarted(scenario.Point, int) {}

func (r recorder) PointFinished(o scenario.Outcome) {
	rec := storage.PointRecord{
		Sim:    -1,
		Speed:  o.Point.Speed,
		Radius: o.Point.Radius,
		Cant:   o.Point.Cant,
		T0:     o.T0,
		T1:     o.T1,
		Code:   dynamo.CodeSuccess,
	}
	if o.Result != nil {
		rec.Sim = o.Result.Sim
		rec.T1 = o.Result.T
		rec.Samples = o.Result.Samples
		rec.Code = o.Result.Code
		rec.Stats = o.Result.Stats
		rec.Metrics = o.Result.Metrics
	}
	if o.Err != nil {
		rec.Code = dynamo.CodeOf(o.Err)
		rec.Error = o.Err.Error()
	}
	r.run.AddPoint(rec)
}
