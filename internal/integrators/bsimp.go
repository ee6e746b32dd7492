package integrators

import "math"

// bsSequence is the Bader-Deuflhard substep sequence.
var bsSequence = [...]int{2, 6, 10, 14, 22, 34, 50}

// BSImp is the implicit Bulirsch-Stoer method of Bader and Deuflhard: the
// linearly implicit midpoint rule over an increasing number of substeps,
// extrapolated to zero substep size.
type BSImp struct {
	adaptive
	kmax int
	its  [len(bsSequence)]*iteration

	table     [][]float64
	del, ytmp []float64
	f, work   []float64
	errv      []float64
}

// NewBSImp extrapolates over at most kmax columns (2 to 7, default 6).
func NewBSImp(tol Tolerance, kmax int) *BSImp {
	if kmax < 2 || kmax > len(bsSequence) {
		kmax = 6
	}
	return &BSImp{adaptive: newAdaptive("bsimp", 2*kmax-2, tol), kmax: kmax}
}

func (b *BSImp) Init(n int) {
	b.init(n)
	for i := range b.its {
		b.its[i] = newIteration(n, 1)
	}
	b.table = make([][]float64, b.kmax)
	for i := range b.table {
		b.table[i] = make([]float64, n)
	}
	b.del = make([]float64, n)
	b.ytmp = make([]float64, n)
	b.f = make([]float64, n)
	b.work = make([]float64, n)
	b.errv = make([]float64, n)
}

func (b *BSImp) Evolve(sys System, t *float64, tf float64, h *float64, y []float64) error {
	return b.evolve(sys, t, tf, h, y, b.attempt)
}

// attempt extrapolates column by column and accepts at the first column
// whose error estimate is within tolerance.
func (b *BSImp) attempt(sys System, t, H float64, y, out []float64) (float64, error) {
	if err := b.jacobian(sys, t, y); err != nil {
		return 0, err
	}
	if err := b.fun(sys, t, y, b.f); err != nil {
		return 0, err
	}
	f0 := append([]float64(nil), b.f...)

	errNorm := math.Inf(1)
	for k := 0; k < b.kmax; k++ {
		nk := bsSequence[k]
		if err := b.midpoint(sys, t, H, nk, y, f0, b.work); err != nil {
			return 0, err
		}

		// Aitken-Neville extrapolation in (H/n)², stored as a diagonal row.
		copy(b.table[k], b.work)
		for j := k - 1; j >= 0; j-- {
			ratio := float64(nk) / float64(bsSequence[j])
			den := ratio*ratio - 1
			for i := range b.table[j] {
				b.table[j][i] = b.table[j+1][i] + (b.table[j+1][i]-b.table[j][i])/den
			}
		}
		if k == 0 {
			continue
		}

		for i := range b.errv {
			b.errv[i] = b.table[0][i] - b.table[1][i]
		}
		errNorm = b.errNorm(b.errv, y, b.table[0])
		if errNorm <= 1 {
			// rate the step by the column that actually converged
			b.order = 2 * k
			copy(out, b.table[0])
			return errNorm, nil
		}
	}
	b.order = 2*b.kmax - 2
	return errNorm, nil
}

// midpoint integrates one step H with n substeps of the linearly implicit
// midpoint rule.
func (b *BSImp) midpoint(sys System, t, H float64, n int, y, f0, out []float64) error {
	hs := H / float64(n)
	it := b.its[indexOfSequence(n)]
	if err := it.factor(hs, scalar(1), b.jac, &b.stats); err != nil {
		return err
	}

	for i := range b.del {
		b.del[i] = hs * f0[i]
	}
	if err := it.solve(b.del, b.del); err != nil {
		return err
	}
	for i := range b.ytmp {
		b.ytmp[i] = y[i] + b.del[i]
	}

	x := t
	for s := 1; s < n; s++ {
		x += hs
		if err := b.fun(sys, x, b.ytmp, b.f); err != nil {
			return err
		}
		for i := range out {
			out[i] = hs*b.f[i] - b.del[i]
		}
		if err := it.solve(out, out); err != nil {
			return err
		}
		for i := range b.del {
			b.del[i] += 2 * out[i]
			b.ytmp[i] += b.del[i]
		}
	}

	if err := b.fun(sys, t+H, b.ytmp, b.f); err != nil {
		return err
	}
	for i := range out {
		out[i] = hs*b.f[i] - b.del[i]
	}
	if err := it.solve(out, out); err != nil {
		return err
	}
	for i := range out {
		out[i] += b.ytmp[i]
	}
	return nil
}

func indexOfSequence(n int) int {
	for i, v := range bsSequence {
		if v == n {
			return i
		}
	}
	return 0
}
