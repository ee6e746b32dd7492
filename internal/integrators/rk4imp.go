package integrators

import (
	"fmt"
	"math"

	"github.com/san-kum/railsim/internal/dynamo"
)

var (
	gaussSqrt3 = math.Sqrt(3) / 6
	gaussA     = [][]float64{{0.25, 0.25 - gaussSqrt3}, {0.25 + gaussSqrt3, 0.25}}
	gaussC     = [2]float64{0.5 - gaussSqrt3, 0.5 + gaussSqrt3}
)

const (
	gaussMaxIter = 10
	gaussTol     = 1e-3
)

// RK4Imp is the two-stage implicit Gauss-Legendre method of order four,
// solved with a simplified Newton iteration on the coupled stages. The local
// error is estimated by step doubling.
type RK4Imp struct {
	adaptive
	it *iteration

	z, dz, res []float64
	f          [2][]float64
	stage      []float64
	full, mid  []float64
	errv       []float64
}

func NewRK4Imp(tol Tolerance) *RK4Imp {
	return &RK4Imp{adaptive: newAdaptive("rk4imp", 4, tol)}
}

func (r *RK4Imp) Init(n int) {
	r.init(n)
	r.it = newIteration(n, 2)
	r.z = make([]float64, 2*n)
	r.dz = make([]float64, 2*n)
	r.res = make([]float64, 2*n)
	r.f[0] = make([]float64, n)
	r.f[1] = make([]float64, n)
	r.stage = make([]float64, n)
	r.full = make([]float64, n)
	r.mid = make([]float64, n)
	r.errv = make([]float64, n)
}

func (r *RK4Imp) Evolve(sys System, t *float64, tf float64, h *float64, y []float64) error {
	return r.evolve(sys, t, tf, h, y, r.attempt)
}

func (r *RK4Imp) attempt(sys System, t, h float64, y, out []float64) (float64, error) {
	if err := r.jacobian(sys, t, y); err != nil {
		return 0, err
	}

	if err := r.it.factor(h, gaussA, r.jac, &r.stats); err != nil {
		return 0, err
	}
	if err := r.step(sys, t, h, y, r.full); err != nil {
		return 0, err
	}

	if err := r.it.factor(h/2, gaussA, r.jac, &r.stats); err != nil {
		return 0, err
	}
	if err := r.step(sys, t, h/2, y, r.mid); err != nil {
		return 0, err
	}
	if err := r.step(sys, t+h/2, h/2, r.mid, out); err != nil {
		return 0, err
	}

	for i := range r.errv {
		r.errv[i] = (out[i] - r.full[i]) / 15
	}
	return r.errNorm(r.errv, y, out), nil
}

// step solves the stage equations Z = h (A ⊗ I) F(y + Z) for one step of
// size h, using the factorization currently held by r.it.
func (r *RK4Imp) step(sys System, t, h float64, y, out []float64) error {
	n := len(y)
	clear(r.z)

	var prev float64
	for iter := 0; ; iter++ {
		if iter == gaussMaxIter {
			return fmt.Errorf("%w: gauss stages after %d iterations", dynamo.ErrNoConvergence, gaussMaxIter)
		}
		if err := r.stageDerivatives(sys, t, h, y); err != nil {
			return err
		}
		// residual -(Z - h A F)
		for s := 0; s < 2; s++ {
			for i := 0; i < n; i++ {
				sum := gaussA[s][0]*r.f[0][i] + gaussA[s][1]*r.f[1][i]
				r.res[s*n+i] = h*sum - r.z[s*n+i]
			}
		}
		if err := r.it.solve(r.dz, r.res); err != nil {
			return err
		}
		for i := range r.z {
			r.z[i] += r.dz[i]
		}

		norm := math.Max(r.errNorm(r.dz[:n], y, y), r.errNorm(r.dz[n:], y, y))
		if norm <= gaussTol || norm == 0 {
			break
		}
		if iter > 0 && norm > prev {
			return fmt.Errorf("%w: gauss stages diverging", dynamo.ErrNoConvergence)
		}
		prev = norm
	}

	if err := r.stageDerivatives(sys, t, h, y); err != nil {
		return err
	}
	for i := 0; i < n; i++ {
		out[i] = y[i] + h*0.5*(r.f[0][i]+r.f[1][i])
	}
	return nil
}

func (r *RK4Imp) stageDerivatives(sys System, t, h float64, y []float64) error {
	n := len(y)
	for s := 0; s < 2; s++ {
		for i := 0; i < n; i++ {
			r.stage[i] = y[i] + r.z[s*n+i]
		}
		if err := r.fun(sys, t+gaussC[s]*h, r.stage, r.f[s]); err != nil {
			return err
		}
	}
	return nil
}
