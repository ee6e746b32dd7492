// Package integrators provides adaptive ODE steppers over a common
// interface.
//
// Manual steppers take one accepted adaptive step per call to Evolve and
// leave the output cadence to the caller. Driver steppers (UseDriver
// reports true) integrate all the way to the target time on every call,
// because their method keeps a history the caller cannot step through.
package integrators

import (
	"errors"
	"fmt"
	"math"

	"github.com/san-kum/railsim/internal/dynamo"
	"gonum.org/v1/gonum/mat"
)

// System is a first-order ODE y' = f(t, y) with a Jacobian.
type System interface {
	Dim() int
	Fun(t float64, y, dydt []float64) error
	Jacobian(t float64, y []float64, J *mat.Dense) error
}

// Stepper advances a System.
type Stepper interface {
	Name() string

	// Init resets the stepper for a system of dimension n. It must be called
	// before a new solve.
	Init(n int)

	// UseDriver reports whether Evolve integrates to tf in one call.
	UseDriver() bool

	// Evolve advances (t, y) towards tf, never past it, and updates h with
	// the step suggested for the next call. y is updated in place.
	Evolve(sys System, t *float64, tf float64, h *float64, y []float64) error

	Stats() dynamo.Stats
}

// Tolerance controls step acceptance and step size limits.
type Tolerance struct {
	Abs      float64 `yaml:"abs"`
	Rel      float64 `yaml:"rel"`
	MinStep  float64 `yaml:"min_step"`
	MaxStep  float64 `yaml:"max_step"`
	MaxSteps int     `yaml:"max_steps"`
}

func DefaultTolerance() Tolerance {
	return Tolerance{Abs: 1e-6, Rel: 1e-4, MinStep: 1e-12, MaxSteps: 500000}
}

func (t Tolerance) withDefaults() Tolerance {
	d := DefaultTolerance()
	if t.Abs <= 0 {
		t.Abs = d.Abs
	}
	if t.Rel < 0 {
		t.Rel = d.Rel
	}
	if t.MinStep <= 0 {
		t.MinStep = d.MinStep
	}
	if t.MaxStep <= 0 {
		t.MaxStep = math.Inf(1)
	}
	if t.MaxSteps <= 0 {
		t.MaxSteps = d.MaxSteps
	}
	return t
}

const (
	safety    = 0.9
	minFactor = 0.2
	maxFactor = 5.0

	// maxNewtonFailures is the number of consecutive step reductions after
	// failed implicit iterations before the solve is abandoned.
	maxNewtonFailures = 10
)

// adaptive carries the state common to the manual steppers.
type adaptive struct {
	name  string
	tol   Tolerance
	order int
	n     int
	stats dynamo.Stats

	yNew []float64
	jac  *mat.Dense
}

func newAdaptive(name string, order int, tol Tolerance) adaptive {
	return adaptive{name: name, order: order, tol: tol.withDefaults()}
}

func (a *adaptive) Name() string        { return a.name }
func (a *adaptive) UseDriver() bool     { return false }
func (a *adaptive) Stats() dynamo.Stats { return a.stats }

func (a *adaptive) init(n int) {
	a.n = n
	a.stats = dynamo.Stats{}
	a.yNew = make([]float64, n)
	a.jac = mat.NewDense(max(n, 1), max(n, 1), nil)
}

func (a *adaptive) fun(sys System, t float64, y, dydt []float64) error {
	a.stats.FunEvals++
	return sys.Fun(t, y, dydt)
}

func (a *adaptive) jacobian(sys System, t float64, y []float64) error {
	a.stats.JacEvals++
	return sys.Jacobian(t, y, a.jac)
}

// errNorm is the RMS of e scaled by the mixed tolerance of y0 and y1.
func (a *adaptive) errNorm(e, y0, y1 []float64) float64 {
	return scaledNorm(a.tol, e, y0, y1)
}

func scaledNorm(tol Tolerance, e, y0, y1 []float64) float64 {
	if len(e) == 0 {
		return 0
	}
	sum := 0.0
	for i := range e {
		sc := tol.Abs + tol.Rel*math.Max(math.Abs(y0[i]), math.Abs(y1[i]))
		r := e[i] / sc
		sum += r * r
	}
	return math.Sqrt(sum / float64(len(e)))
}

// factor is the step size ratio suggested by an error norm.
func (a *adaptive) factor(errNorm float64) float64 {
	if errNorm == 0 {
		return maxFactor
	}
	f := safety * math.Pow(errNorm, -1/float64(a.order+1))
	return math.Min(maxFactor, math.Max(minFactor, f))
}

func (a *adaptive) fail(code dynamo.Code, t, h float64, err error) error {
	a.stats.Time = t
	return &dynamo.StepperError{Stepper: a.name, Code: code, Time: t, Step: h, Stats: a.stats, Wrapped: err}
}

// attemptFunc tries one step of signed size h from (t, y) into out and
// returns the scaled error norm.
type attemptFunc func(sys System, t, h float64, y, out []float64) (float64, error)

// evolve takes one accepted step with the given attempt function. Failed
// implicit iterations shrink the step; any other error aborts.
func (a *adaptive) evolve(sys System, t *float64, tf float64, h *float64, y []float64, attempt attemptFunc) error {
	if sys.Dim() != len(y) || len(y) != a.n {
		return a.fail(dynamo.CodeInvalidArgument, *t, *h, dynamo.ErrDimensionMismatch)
	}
	span := tf - *t
	if span == 0 {
		return nil
	}
	dir := math.Copysign(1, span)

	step := math.Abs(*h)
	if step == 0 || math.IsNaN(step) || math.IsInf(step, 0) {
		var err error
		step, err = initialStep(sys, *t, tf, y, a.order, a.tol, &a.stats)
		if err != nil {
			return a.fail(dynamo.CodeOf(err), *t, 0, err)
		}
	}
	step = math.Min(step, a.tol.MaxStep)

	newtonFailures := 0
	for {
		remaining := math.Abs(tf - *t)
		last := step >= remaining
		if last {
			step = remaining
		}
		if step < a.tol.MinStep && !last {
			return a.fail(dynamo.CodeStepTooSmall, *t, step, dynamo.ErrStepTooSmall)
		}

		errNorm, err := attempt(sys, *t, dir*step, y, a.yNew)
		if errors.Is(err, dynamo.ErrNoConvergence) || errors.Is(err, dynamo.ErrSingular) {
			newtonFailures++
			if newtonFailures > maxNewtonFailures {
				return a.fail(dynamo.CodeOf(err), *t, step, err)
			}
			a.stats.Rejected++
			step *= 0.25
			continue
		}
		if err != nil {
			return a.fail(dynamo.CodeOf(err), *t, step, err)
		}
		if math.IsNaN(errNorm) {
			errNorm = math.Inf(1)
		}

		if errNorm <= 1 {
			if last {
				*t = tf
			} else {
				*t += dir * step
			}
			copy(y, a.yNew)
			a.stats.Steps++
			a.stats.LastStep = step
			next := math.Min(step*a.factor(errNorm), a.tol.MaxStep)
			if last && next < *h {
				// a step clipped at tf says nothing about the next step size
				next = math.Max(next, math.Min(math.Abs(*h), a.tol.MaxStep))
			}
			a.stats.NextStep = next
			a.stats.Time = *t
			*h = next
			return nil
		}

		a.stats.Rejected++
		step *= math.Min(1, a.factor(errNorm))
	}
}

// initialStep estimates a first step size from the local derivative
// magnitude, as in Hairer, Nørsett and Wanner, Solving ODEs I, II.4.
func initialStep(sys System, t0, tf float64, y0 []float64, order int, tol Tolerance, stats *dynamo.Stats) (float64, error) {
	n := len(y0)
	interval := math.Abs(tf - t0)
	if n == 0 {
		return interval, nil
	}
	if interval == 0 {
		return 0, nil
	}
	dir := math.Copysign(1, tf-t0)

	f0 := make([]float64, n)
	stats.FunEvals++
	if err := sys.Fun(t0, y0, f0); err != nil {
		return 0, err
	}
	zero := make([]float64, n)
	d0 := scaledNorm(tol, y0, y0, zero)
	d1 := scaledNorm(tol, f0, y0, zero)

	h0 := 1e-6
	if d0 >= 1e-5 && d1 >= 1e-5 {
		h0 = 0.01 * d0 / d1
	}
	h0 = math.Min(h0, interval)

	y1 := make([]float64, n)
	for i := range y1 {
		y1[i] = y0[i] + h0*dir*f0[i]
	}
	f1 := make([]float64, n)
	stats.FunEvals++
	if err := sys.Fun(t0+h0*dir, y1, f1); err != nil {
		return 0, err
	}
	for i := range f1 {
		f1[i] -= f0[i]
	}
	d2 := scaledNorm(tol, f1, y0, zero) / h0

	var h1 float64
	if d1 <= 1e-15 && d2 <= 1e-15 {
		h1 = math.Max(1e-6, h0*1e-3)
	} else {
		h1 = math.Pow(0.01/math.Max(d1, d2), 1/float64(order+1))
	}
	return math.Min(math.Min(100*h0, h1), interval), nil
}

func checkFinite(v []float64) error {
	for i, x := range v {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return fmt.Errorf("%w: component %d", dynamo.ErrInvalidState, i)
		}
	}
	return nil
}
