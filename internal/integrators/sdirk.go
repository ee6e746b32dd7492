package integrators

import (
	"fmt"
	"math"

	"github.com/san-kum/railsim/internal/dynamo"
)

// tableau is an SDIRK Butcher tableau with an embedded lower-order solution.
type tableau struct {
	name  string
	gamma float64
	a     [][]float64
	b     []float64
	bhat  []float64
	c     []float64
	// q is the order of the embedded solution; it sets the step control
	// exponent.
	q int
}

func sdirk2Tableau() tableau {
	g := 1 - 1/math.Sqrt2
	return tableau{
		name:  "sdirk2",
		gamma: g,
		a:     [][]float64{{g}, {1 - g, g}},
		b:     []float64{1 - g, g},
		bhat:  []float64{1, 0},
		c:     []float64{g, 1},
		q:     1,
	}
}

func sdirk3Tableau() tableau {
	const g = 0.4358665215084590
	tau := (1 + g) / 2
	b1 := -(6*g*g - 16*g + 1) / 4
	b2 := (6*g*g - 20*g + 5) / 4
	bh2 := (1 - 2*g) / (1 - g)
	return tableau{
		name:  "sdirk3",
		gamma: g,
		a:     [][]float64{{g}, {tau - g, g}, {b1, b2, g}},
		b:     []float64{b1, b2, g},
		bhat:  []float64{1 - bh2, bh2, 0},
		c:     []float64{g, tau, 1},
		q:     2,
	}
}

func sdirk4Tableau() tableau {
	return tableau{
		name:  "sdirk4",
		gamma: 0.25,
		a: [][]float64{
			{1.0 / 4},
			{1.0 / 2, 1.0 / 4},
			{17.0 / 50, -1.0 / 25, 1.0 / 4},
			{371.0 / 1360, -137.0 / 2720, 15.0 / 544, 1.0 / 4},
			{25.0 / 24, -49.0 / 48, 125.0 / 16, -85.0 / 12, 1.0 / 4},
		},
		b:    []float64{25.0 / 24, -49.0 / 48, 125.0 / 16, -85.0 / 12, 1.0 / 4},
		bhat: []float64{59.0 / 48, -17.0 / 96, 225.0 / 32, -85.0 / 12, 0},
		c:    []float64{1.0 / 4, 3.0 / 4, 11.0 / 20, 1.0 / 2, 1},
		q:    3,
	}
}

// SDIRKVariants lists the tableaus accepted by NewSDIRK.
var SDIRKVariants = []string{"sdirk2", "sdirk3", "sdirk4"}

const (
	sdirkMaxIter = 7
	sdirkTol     = 1e-2
)

// SDIRK is a singly diagonally implicit Runge-Kutta method. All stages share
// one iteration matrix I - hγJ per step.
type SDIRK struct {
	adaptive
	tab tableau
	it  *iteration

	k       [][]float64
	base, z []float64
	dz, fz  []float64
	errv    []float64
}

// NewSDIRK returns the variant "sdirk2", "sdirk3" or "sdirk4"; an empty
// variant selects sdirk4.
func NewSDIRK(tol Tolerance, variant string) (*SDIRK, error) {
	var tab tableau
	switch variant {
	case "sdirk2", "2":
		tab = sdirk2Tableau()
	case "sdirk3", "3":
		tab = sdirk3Tableau()
	case "", "sdirk4", "4":
		tab = sdirk4Tableau()
	default:
		return nil, dynamo.Configf("solver", "unknown sdirk variant %q", variant)
	}
	return &SDIRK{adaptive: newAdaptive(tab.name, tab.q, tol), tab: tab}, nil
}

func (s *SDIRK) Init(n int) {
	s.init(n)
	s.it = newIteration(n, 1)
	s.k = make([][]float64, len(s.tab.b))
	for i := range s.k {
		s.k[i] = make([]float64, n)
	}
	s.base = make([]float64, n)
	s.z = make([]float64, n)
	s.dz = make([]float64, n)
	s.fz = make([]float64, n)
	s.errv = make([]float64, n)
}

func (s *SDIRK) Evolve(sys System, t *float64, tf float64, h *float64, y []float64) error {
	return s.evolve(sys, t, tf, h, y, s.attempt)
}

func (s *SDIRK) attempt(sys System, t, h float64, y, out []float64) (float64, error) {
	if err := s.jacobian(sys, t, y); err != nil {
		return 0, err
	}
	hg := h * s.tab.gamma
	if err := s.it.factor(hg, scalar(1), s.jac, &s.stats); err != nil {
		return 0, err
	}

	for st := range s.tab.b {
		for i := range s.base {
			sum := 0.0
			for j := 0; j < st; j++ {
				sum += s.tab.a[st][j] * s.k[j][i]
			}
			s.base[i] = y[i] + h*sum
		}
		if err := s.solveStage(sys, t+s.tab.c[st]*h, hg, y, s.k[st]); err != nil {
			return 0, fmt.Errorf("stage %d: %w", st+1, err)
		}
	}

	for i := range out {
		sum, est := 0.0, 0.0
		for st := range s.tab.b {
			sum += s.tab.b[st] * s.k[st][i]
			est += (s.tab.b[st] - s.tab.bhat[st]) * s.k[st][i]
		}
		out[i] = y[i] + h*sum
		s.errv[i] = h * est
	}
	return s.errNorm(s.errv, y, out), nil
}

// solveStage solves z = base + hγ f(t, z) by simplified Newton and stores
// the stage derivative (z - base)/(hγ) in k.
func (s *SDIRK) solveStage(sys System, t, hg float64, y, k []float64) error {
	copy(s.z, s.base)

	var prev float64
	for iter := 0; ; iter++ {
		if iter == sdirkMaxIter {
			return fmt.Errorf("%w: %d iterations", dynamo.ErrNoConvergence, sdirkMaxIter)
		}
		if err := s.fun(sys, t, s.z, s.fz); err != nil {
			return err
		}
		for i := range s.dz {
			s.dz[i] = s.base[i] + hg*s.fz[i] - s.z[i]
		}
		if err := s.it.solve(s.dz, s.dz); err != nil {
			return err
		}
		for i := range s.z {
			s.z[i] += s.dz[i]
		}

		norm := s.errNorm(s.dz, y, s.z)
		if norm <= sdirkTol || norm == 0 {
			break
		}
		if iter > 0 && norm > prev {
			return fmt.Errorf("%w: diverging", dynamo.ErrNoConvergence)
		}
		prev = norm
	}

	for i := range k {
		k[i] = (s.z[i] - s.base[i]) / hg
	}
	return nil
}
