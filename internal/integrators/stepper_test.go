package integrators

import (
	"errors"
	"math"
	"testing"

	"github.com/san-kum/railsim/internal/dynamo"
	"gonum.org/v1/gonum/mat"
)

type harmonicOscillator struct{}

func (h *harmonicOscillator) Dim() int { return 2 }

func (h *harmonicOscillator) Fun(t float64, y, dydt []float64) error {
	dydt[0] = y[1]
	dydt[1] = -y[0]
	return nil
}

func (h *harmonicOscillator) Jacobian(t float64, y []float64, J *mat.Dense) error {
	J.Zero()
	J.Set(0, 1, 1)
	J.Set(1, 0, -1)
	return nil
}

// stiffForced is y' = -λ(y - cos τ) - sin τ, τ' = 1, with solution y = cos τ.
type stiffForced struct{ lambda float64 }

func (s *stiffForced) Dim() int { return 2 }

func (s *stiffForced) Fun(t float64, y, dydt []float64) error {
	dydt[0] = -s.lambda*(y[0]-math.Cos(y[1])) - math.Sin(y[1])
	dydt[1] = 1
	return nil
}

func (s *stiffForced) Jacobian(t float64, y []float64, J *mat.Dense) error {
	J.Zero()
	J.Set(0, 0, -s.lambda)
	J.Set(0, 1, -s.lambda*math.Sin(y[1])-math.Cos(y[1]))
	return nil
}

// failing reports a domain error once the first coordinate drops below a
// threshold.
type failing struct {
	harmonicOscillator
	below float64
}

func (f *failing) Fun(t float64, y, dydt []float64) error {
	if y[0] < f.below {
		return &dynamo.DomainError{Component: "osc", Time: t, Values: append([]float64(nil), y...), Wrapped: dynamo.ErrDerailment}
	}
	return f.harmonicOscillator.Fun(t, y, dydt)
}

func integrate(s Stepper, sys System, y []float64, tf float64) error {
	s.Init(len(y))
	t, h := 0.0, 0.0
	for i := 0; t < tf; i++ {
		if i > 1000000 {
			return errors.New("too many calls")
		}
		if err := s.Evolve(sys, &t, tf, &h, y); err != nil {
			return err
		}
	}
	return nil
}

func allSteppers(t *testing.T, tol Tolerance) []Stepper {
	t.Helper()
	r := NewRegistry()
	var out []Stepper
	for _, name := range []string{"rk4", "rk45", "rk4imp", "bsimp", "bdf", "sdirk2", "sdirk3", "sdirk4"} {
		s, err := r.New(Spec{Name: name, Tolerance: tol})
		if err != nil {
			t.Fatalf("New(%s): %v", name, err)
		}
		out = append(out, s)
	}
	return out
}

func TestOscillatorAccuracy(t *testing.T) {
	tol := Tolerance{Abs: 1e-9, Rel: 1e-9}
	for _, s := range allSteppers(t, tol) {
		t.Run(s.Name(), func(t *testing.T) {
			y := []float64{1, 0}
			if err := integrate(s, &harmonicOscillator{}, y, 2); err != nil {
				t.Fatal(err)
			}
			if e := math.Abs(y[0] - math.Cos(2)); e > 1e-4 {
				t.Errorf("position error %.3g", e)
			}
			if e := math.Abs(y[1] + math.Sin(2)); e > 1e-4 {
				t.Errorf("velocity error %.3g", e)
			}
			st := s.Stats()
			if st.Steps == 0 || st.FunEvals == 0 {
				t.Errorf("stats not counted: %+v", st)
			}
		})
	}
}

func TestStiffImplicit(t *testing.T) {
	tol := Tolerance{Abs: 1e-7, Rel: 1e-7}
	for _, s := range allSteppers(t, tol) {
		if s.Name() == "rk4" || s.Name() == "rk45" {
			continue
		}
		t.Run(s.Name(), func(t *testing.T) {
			y := []float64{1, 0}
			if err := integrate(s, &stiffForced{lambda: 1e4}, y, 1); err != nil {
				t.Fatal(err)
			}
			if e := math.Abs(y[0] - math.Cos(y[1])); e > 1e-4 {
				t.Errorf("error %.3g at τ=%g", e, y[1])
			}
			if math.Abs(y[1]-1) > 1e-9 {
				t.Errorf("τ = %g, want 1", y[1])
			}
			if st := s.Stats(); st.JacEvals == 0 || st.Decomps == 0 {
				t.Errorf("implicit stepper did not factorize: %+v", st)
			}
		})
	}
}

func TestManualStepNeverPassesTarget(t *testing.T) {
	s := NewRK4(Tolerance{Abs: 1e-3, Rel: 1e-3})
	s.Init(2)
	y := []float64{1, 0}
	tt, h := 0.0, 10.0
	if err := s.Evolve(&harmonicOscillator{}, &tt, 0.25, &h, y); err != nil {
		t.Fatal(err)
	}
	if tt > 0.25 {
		t.Errorf("stepped past target: t=%g", tt)
	}
	if s.UseDriver() {
		t.Error("rk4 must be a manual stepper")
	}
}

func TestBDFDriverContinues(t *testing.T) {
	s := NewBDF(Tolerance{Abs: 1e-8, Rel: 1e-8})
	if !s.UseDriver() {
		t.Fatal("bdf must be a driver stepper")
	}
	s.Init(2)
	sys := &harmonicOscillator{}
	y := []float64{1, 0}
	tt, h := 0.0, 0.0

	if err := s.Evolve(sys, &tt, 0.5, &h, y); err != nil {
		t.Fatal(err)
	}
	if tt != 0.5 {
		t.Fatalf("t = %g, want 0.5", tt)
	}
	first := s.Stats().Steps

	if err := s.Evolve(sys, &tt, 1, &h, y); err != nil {
		t.Fatal(err)
	}
	if tt != 1 {
		t.Fatalf("t = %g, want 1", tt)
	}
	if s.Stats().Steps <= first {
		t.Errorf("second call did not continue the integration")
	}
	if e := math.Abs(y[0] - math.Cos(1)); e > 1e-5 {
		t.Errorf("error %.3g", e)
	}

	s.Init(2)
	if s.Stats().Steps != 0 {
		t.Error("Init did not reset stats")
	}
}

func TestDomainErrorAborts(t *testing.T) {
	for _, s := range allSteppers(t, DefaultTolerance()) {
		t.Run(s.Name(), func(t *testing.T) {
			y := []float64{1, 0}
			err := integrate(s, &failing{below: 0.9}, y, 2)
			var se *dynamo.StepperError
			if !errors.As(err, &se) {
				t.Fatalf("want StepperError, got %v", err)
			}
			if se.Code != dynamo.CodeDomain {
				t.Errorf("code = %s, want %s", se.Code, dynamo.CodeDomain)
			}
			var de *dynamo.DomainError
			if !errors.As(err, &de) {
				t.Errorf("domain error not wrapped: %v", err)
			}
		})
	}
}

func TestDimensionMismatch(t *testing.T) {
	s := newTestSDIRK(t)
	s.Init(3)
	tt, h := 0.0, 0.1
	err := s.Evolve(&harmonicOscillator{}, &tt, 1, &h, make([]float64, 3))
	if dynamo.CodeOf(err) != dynamo.CodeInvalidArgument {
		t.Errorf("code = %s, want invalid-argument", dynamo.CodeOf(err))
	}
}

func newTestSDIRK(t *testing.T) *SDIRK {
	t.Helper()
	s, err := NewSDIRK(DefaultTolerance(), "")
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestSDIRKTableaus(t *testing.T) {
	for _, tab := range []tableau{sdirk2Tableau(), sdirk3Tableau(), sdirk4Tableau()} {
		t.Run(tab.name, func(t *testing.T) {
			var sb, sbh float64
			for i := range tab.b {
				sb += tab.b[i]
				sbh += tab.bhat[i]
				row := 0.0
				for _, a := range tab.a[i] {
					row += a
				}
				if math.Abs(row-tab.c[i]) > 1e-12 {
					t.Errorf("row %d sums to %g, c=%g", i, row, tab.c[i])
				}
				if tab.a[i][i] != tab.gamma {
					t.Errorf("diagonal %d = %g, want %g", i, tab.a[i][i], tab.gamma)
				}
			}
			if math.Abs(sb-1) > 1e-12 || math.Abs(sbh-1) > 1e-12 {
				t.Errorf("weights sum to %g and %g", sb, sbh)
			}
		})
	}
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	if _, err := r.New(Spec{Name: "euler"}); err == nil {
		t.Error("unknown solver accepted")
	}
	if _, err := r.New(ParseSpec("sdirk:5")); err == nil {
		t.Error("unknown sdirk variant accepted")
	}
	s, err := r.New(ParseSpec("SDIRK:3"))
	if err != nil {
		t.Fatal(err)
	}
	if s.Name() != "sdirk3" {
		t.Errorf("Name = %s", s.Name())
	}
	if got := len(r.List()); got != 9 {
		t.Errorf("List has %d entries", got)
	}
}
