package scenario

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/rs/zerolog"
	"github.com/san-kum/railsim/internal/dynamo"
	"github.com/san-kum/railsim/internal/sim"
	"github.com/san-kum/railsim/internal/solution"
)

type State int

const (
	StateIdle State = iota
	StateTransient
	StateSweeping
	StateDone
)

var stateNames = [...]string{"idle", "covering-transient", "sweeping", "done"}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Solver runs one solve. *sim.Runner satisfies it.
type Solver interface {
	Solve(ctx context.Context, m sim.Model, sol *solution.Solution, y0 []float64, t0, tf float64) (*sim.Result, error)
}

// Outcome is the result of one solve of a plan.
type Outcome struct {
	Point  Point
	Ramp   bool
	T0     float64
	T1     float64
	Result *sim.Result
	Err    error
}

// Listener follows the progress of a run.
type Listener interface {
	PointStarted(p Point, total int)
	PointFinished(o Outcome)
}

// RunReport is what a run leaves behind.
type RunReport struct {
	Outcomes []Outcome
	Total    int
	Code     dynamo.Code

	// Y is the last accepted state of the last solve.
	Y []float64
}

// Completed counts the points whose main solve succeeded.
func (r *RunReport) Completed() int {
	n := 0
	for _, o := range r.Outcomes {
		if !o.Ramp && o.Err == nil {
			n++
		}
	}
	return n
}

// Driver runs the solves of a plan in order.
type Driver struct {
	plan      *Plan
	model     sim.Model
	solver    Solver
	sol       *solution.Solution
	state     State
	listeners []Listener
	log       zerolog.Logger
}

func NewDriver(plan *Plan, model sim.Model, solver Solver, sol *solution.Solution) *Driver {
	return &Driver{
		plan:   plan,
		model:  model,
		solver: solver,
		sol:    sol,
		log:    zerolog.Nop(),
	}
}

func (d *Driver) State() State               { return d.state }
func (d *Driver) Plan() *Plan                { return d.plan }
func (d *Driver) AddListener(l Listener)     { d.listeners = append(d.listeners, l) }
func (d *Driver) SetLogger(l zerolog.Logger) { d.log = l }

func (d *Driver) transition(s State) {
	d.log.Debug().Stringer("from", d.state).Stringer("to", s).Msg("scenario state")
	d.state = s
}

// Run solves every point of the plan starting from y0. The operating point
// is only changed between solves. The first failure ends the run and is
// returned together with the partial report.
func (d *Driver) Run(ctx context.Context, y0 []float64) (*RunReport, error) {
	if d.state != StateIdle {
		return nil, errors.New("scenario: driver already ran")
	}
	if len(y0) != d.model.Dim() {
		return nil, fmt.Errorf("scenario: initial state has %d values, model has %d: %w", len(y0), d.model.Dim(), dynamo.ErrDimensionMismatch)
	}
	defer d.transition(StateDone)

	report := &RunReport{Total: len(d.plan.Points), Y: slices.Clone(y0)}
	cond := d.model.Conditions()

	t0 := 0.0
	if ramp := d.plan.RampDuration(); ramp > 0 {
		d.transition(StateTransient)
		p := d.plan.Points[0]
		cond.Set(p.Speed, p.Radius, p.Cant)
		cond.SetTransient(d.plan.RadiusRamp, d.plan.CantRamp)
		if err := d.solve(ctx, report, p, true, report.Y, 0, ramp); err != nil {
			return report, err
		}
		t0 = ramp
	}

	d.transition(StateSweeping)
	for _, p := range d.plan.Points {
		if t0 == 0 {
			cond.Set(p.Speed, p.Radius, p.Cant)
			cond.SetSpeedRamp(p.SpeedRamp)
		}

		start := report.Y
		if d.plan.Mode == ModeBifurcation && d.plan.Policy == StartAll {
			start = y0
		}
		if err := d.solve(ctx, report, p, false, start, t0, t0+p.Duration); err != nil {
			return report, err
		}
	}
	return report, nil
}

func (d *Driver) solve(ctx context.Context, report *RunReport, p Point, ramp bool, y []float64, t0, t1 float64) error {
	for _, l := range d.listeners {
		l.PointStarted(p, len(d.plan.Points))
	}
	d.log.Info().
		Int("point", p.Index).
		Int("of", len(d.plan.Points)).
		Float64("v", p.Speed).
		Float64("R", p.Radius).
		Float64("cant", p.Cant).
		Bool("ramp", ramp).
		Msg("scenario point")

	res, err := d.solver.Solve(ctx, d.model, d.sol, slices.Clone(y), t0, t1)
	o := Outcome{Point: p, Ramp: ramp, T0: t0, T1: t1, Result: res, Err: err}
	report.Outcomes = append(report.Outcomes, o)
	if res != nil {
		report.Y = slices.Clone(res.Y)
	}
	for _, l := range d.listeners {
		l.PointFinished(o)
	}

	if err != nil {
		report.Code = dynamo.CodeOf(err)
		d.log.Error().
			Err(err).
			Int("point", p.Index).
			Stringer("code", report.Code).
			Int("skipped", len(d.plan.Points)-p.Index-1).
			Msg("scenario aborted")
		return fmt.Errorf("scenario: point %s: %w", p, err)
	}
	return nil
}
