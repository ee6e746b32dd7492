package integrators

import (
	"math"

	"github.com/san-kum/railsim/internal/dynamo"
	"gonum.org/v1/gonum/mat"
)

const (
	bdfMaxOrder      = 5
	bdfNewtonMaxIter = 4
	bdfMinFactor     = 0.2
	bdfMaxFactor     = 10
)

var bdfKappa = [bdfMaxOrder + 1]float64{0, -0.1850, -1.0 / 9, -0.0823, -0.0415, 0}

var (
	bdfGamma      [bdfMaxOrder + 1]float64
	bdfAlpha      [bdfMaxOrder + 1]float64
	bdfErrorConst [bdfMaxOrder + 1]float64
)

func init() {
	for k := 1; k <= bdfMaxOrder; k++ {
		bdfGamma[k] = bdfGamma[k-1] + 1/float64(k)
	}
	for k := 0; k <= bdfMaxOrder; k++ {
		bdfAlpha[k] = (1 - bdfKappa[k]) * bdfGamma[k]
		bdfErrorConst[k] = bdfKappa[k]*bdfGamma[k] + 1/float64(k+1)
	}
}

// BDF is the variable-order (1 to 5), variable-step backward
// differentiation formula in the quasi-constant step size form of Shampine
// and Reichelt, with the history held as a table of modified divided
// differences.
//
// BDF is a driver stepper: Evolve integrates all the way to tf and keeps the
// difference table across calls, so consecutive calls continue the same
// integration. Init, or a call whose (t, y) is not where the previous call
// stopped, restarts at order one.
type BDF struct {
	tol   Tolerance
	n     int
	stats dynamo.Stats

	started bool
	t       float64
	y       []float64
	hAbs    float64
	order   int
	nEqual  int

	D   [][]float64
	J   *mat.Dense
	it  *iteration
	lu  bool
	cur bool

	yPredict, psi, scale []float64
	yNew, d, f, dy, work []float64
	r, u, ru             *mat.Dense
}

func NewBDF(tol Tolerance) *BDF {
	return &BDF{tol: tol.withDefaults()}
}

func (b *BDF) Name() string        { return "bdf" }
func (b *BDF) UseDriver() bool     { return true }
func (b *BDF) Stats() dynamo.Stats { return b.stats }

func (b *BDF) Init(n int) {
	b.n = n
	b.stats = dynamo.Stats{}
	b.started = false
	b.D = make([][]float64, bdfMaxOrder+3)
	for i := range b.D {
		b.D[i] = make([]float64, n)
	}
	b.y = make([]float64, n)
	b.J = mat.NewDense(max(n, 1), max(n, 1), nil)
	b.it = newIteration(n, 1)
	for _, v := range []*[]float64{&b.yPredict, &b.psi, &b.scale, &b.yNew, &b.d, &b.f, &b.dy, &b.work} {
		*v = make([]float64, n)
	}
}

func (b *BDF) fail(code dynamo.Code, err error) error {
	b.stats.Time = b.t
	return &dynamo.StepperError{Stepper: "bdf", Code: code, Time: b.t, Step: b.hAbs, Stats: b.stats, Wrapped: err}
}

func (b *BDF) fun(sys System, t float64, y, dydt []float64) error {
	b.stats.FunEvals++
	return sys.Fun(t, y, dydt)
}

func (b *BDF) jacobian(sys System, t float64, y []float64) error {
	b.stats.JacEvals++
	return sys.Jacobian(t, y, b.J)
}

func (b *BDF) Evolve(sys System, t *float64, tf float64, h *float64, y []float64) error {
	if sys.Dim() != len(y) || len(y) != b.n {
		return b.fail(dynamo.CodeInvalidArgument, dynamo.ErrDimensionMismatch)
	}
	if tf == *t {
		return nil
	}
	dir := math.Copysign(1, tf-*t)
	if !b.started || b.t != *t || !equal(b.y, y) {
		if err := b.start(sys, *t, tf, *h, y, dir); err != nil {
			return err
		}
	}

	for steps := 0; dir*(tf-b.t) > 0; steps++ {
		if steps >= b.tol.MaxSteps {
			return b.fail(dynamo.CodeMaxSteps, dynamo.ErrMaxSteps)
		}
		if err := b.step(sys, tf, dir); err != nil {
			return err
		}
	}

	*t = b.t
	copy(y, b.y)
	*h = b.hAbs
	b.stats.NextStep = b.hAbs
	b.stats.Time = b.t
	return nil
}

func (b *BDF) start(sys System, t0, tf, h0 float64, y []float64, dir float64) error {
	b.t = t0
	copy(b.y, y)
	b.order = 1
	b.nEqual = 0
	b.lu = false

	if err := b.fun(sys, t0, y, b.f); err != nil {
		return b.fail(dynamo.CodeOf(err), err)
	}
	b.hAbs = math.Abs(h0)
	if b.hAbs == 0 || math.IsNaN(b.hAbs) || math.IsInf(b.hAbs, 0) {
		h, err := initialStep(sys, t0, tf, y, 1, b.tol, &b.stats)
		if err != nil {
			return b.fail(dynamo.CodeOf(err), err)
		}
		b.hAbs = h
	}
	b.hAbs = math.Min(b.hAbs, b.tol.MaxStep)

	for i := range b.D {
		clear(b.D[i])
	}
	copy(b.D[0], y)
	for i := range b.D[1] {
		b.D[1][i] = b.f[i] * b.hAbs * dir
	}

	if err := b.jacobian(sys, t0, y); err != nil {
		return b.fail(dynamo.CodeOf(err), err)
	}
	b.cur = true
	b.started = true
	return nil
}

// step takes one accepted step, never past tf.
func (b *BDF) step(sys System, tf, dir float64) error {
	t := b.t
	minStep := math.Max(10*math.Abs(math.Nextafter(t, dir*math.Inf(1))-t), b.tol.MinStep)

	hAbs := b.hAbs
	switch {
	case hAbs > b.tol.MaxStep:
		hAbs = b.tol.MaxStep
		b.changeD(b.order, b.tol.MaxStep/b.hAbs)
		b.nEqual = 0
	case hAbs < minStep:
		hAbs = minStep
		b.changeD(b.order, minStep/b.hAbs)
		b.nEqual = 0
	}

	order := b.order
	b.cur = false
	var tNew, errNorm, safetyF float64
	for {
		if hAbs < minStep {
			return b.fail(dynamo.CodeStepTooSmall, dynamo.ErrStepTooSmall)
		}
		h := hAbs * dir
		tNew = t + h
		if dir*(tNew-tf) > 0 {
			tNew = tf
			b.changeD(order, math.Abs(tNew-t)/hAbs)
			b.nEqual = 0
			b.lu = false
		}
		h = tNew - t
		hAbs = math.Abs(h)

		clear(b.yPredict)
		for k := 0; k <= order; k++ {
			for i := range b.yPredict {
				b.yPredict[i] += b.D[k][i]
			}
		}
		for i := range b.scale {
			b.scale[i] = b.tol.Abs + b.tol.Rel*math.Abs(b.yPredict[i])
		}
		clear(b.psi)
		for k := 1; k <= order; k++ {
			for i := range b.psi {
				b.psi[i] += b.D[k][i] * bdfGamma[k]
			}
		}
		for i := range b.psi {
			b.psi[i] /= bdfAlpha[order]
		}

		c := h / bdfAlpha[order]
		var converged bool
		var nIter int
		for {
			if !b.lu {
				if err := b.it.factor(c, scalar(1), b.J, &b.stats); err != nil {
					return b.fail(dynamo.CodeSingular, err)
				}
				b.lu = true
			}
			var err error
			converged, nIter, err = b.newton(sys, tNew, c)
			if err != nil {
				return b.fail(dynamo.CodeOf(err), err)
			}
			if converged || b.cur {
				break
			}
			if err := b.jacobian(sys, tNew, b.yPredict); err != nil {
				return b.fail(dynamo.CodeOf(err), err)
			}
			b.lu = false
			b.cur = true
		}

		if !converged {
			b.stats.Rejected++
			hAbs *= 0.5
			b.changeD(order, 0.5)
			b.nEqual = 0
			b.lu = false
			continue
		}

		safetyF = 0.9 * float64(2*bdfNewtonMaxIter+1) / float64(2*bdfNewtonMaxIter+nIter)
		for i := range b.scale {
			b.scale[i] = b.tol.Abs + b.tol.Rel*math.Abs(b.yNew[i])
			b.work[i] = bdfErrorConst[order] * b.d[i] / b.scale[i]
		}
		errNorm = rms(b.work)
		if errNorm > 1 {
			b.stats.Rejected++
			factor := math.Max(bdfMinFactor, safetyF*math.Pow(errNorm, -1/float64(order+1)))
			hAbs *= factor
			b.changeD(order, factor)
			b.nEqual = 0
			continue
		}
		break
	}

	b.stats.Steps++
	b.stats.LastStep = hAbs
	b.nEqual++
	b.t = tNew
	copy(b.y, b.yNew)
	b.hAbs = hAbs

	for i := range b.d {
		b.D[order+2][i] = b.d[i] - b.D[order+1][i]
		b.D[order+1][i] = b.d[i]
	}
	for k := order; k >= 0; k-- {
		for i := range b.D[k] {
			b.D[k][i] += b.D[k+1][i]
		}
	}

	if b.nEqual < order+1 {
		return nil
	}

	errM, errP := math.Inf(1), math.Inf(1)
	if order > 1 {
		for i := range b.work {
			b.work[i] = bdfErrorConst[order-1] * b.D[order][i] / b.scale[i]
		}
		errM = rms(b.work)
	}
	if order < bdfMaxOrder {
		for i := range b.work {
			b.work[i] = bdfErrorConst[order+1] * b.D[order+2][i] / b.scale[i]
		}
		errP = rms(b.work)
	}

	norms := [3]float64{errM, errNorm, errP}
	best, bestFactor := 0, -1.0
	for j, e := range norms {
		f := math.Pow(e, -1/float64(order+j))
		if e == 0 {
			f = math.Inf(1)
		}
		if f > bestFactor {
			best, bestFactor = j, f
		}
	}
	b.order = order + best - 1
	factor := math.Min(bdfMaxFactor, safetyF*bestFactor)
	b.hAbs *= factor
	b.changeD(b.order, factor)
	b.nEqual = 0
	b.lu = false
	return nil
}

// newton solves the BDF corrector equation with the current factorization.
func (b *BDF) newton(sys System, tNew, c float64) (bool, int, error) {
	tol := math.Max(10*epsilon/math.Max(b.tol.Rel, 1e-300), math.Min(0.03, math.Sqrt(b.tol.Rel)))
	copy(b.yNew, b.yPredict)
	clear(b.d)

	var prevNorm float64
	haveRate := false
	for k := 0; k < bdfNewtonMaxIter; k++ {
		if err := b.fun(sys, tNew, b.yNew, b.f); err != nil {
			return false, k + 1, err
		}
		if checkFinite(b.f) != nil {
			return false, k + 1, nil
		}
		for i := range b.dy {
			b.dy[i] = c*b.f[i] - b.psi[i] - b.d[i]
		}
		if err := b.it.solve(b.dy, b.dy); err != nil {
			return false, k + 1, err
		}
		for i := range b.work {
			b.work[i] = b.dy[i] / b.scale[i]
		}
		dyNorm := rms(b.work)

		var rate float64
		if k > 0 {
			rate = dyNorm / prevNorm
			haveRate = true
			if rate >= 1 || math.Pow(rate, float64(bdfNewtonMaxIter-k))/(1-rate)*dyNorm > tol {
				return false, k + 1, nil
			}
		}
		for i := range b.yNew {
			b.yNew[i] += b.dy[i]
			b.d[i] += b.dy[i]
		}
		if dyNorm == 0 || haveRate && rate/(1-rate)*dyNorm < tol {
			return true, k + 1, nil
		}
		prevNorm = dyNorm
	}
	return false, bdfNewtonMaxIter, nil
}

// changeD rescales the difference table for a step size ratio factor.
func (b *BDF) changeD(order int, factor float64) {
	b.r = bdfR(order, factor, b.r)
	b.u = bdfR(order, 1, b.u)
	if b.ru == nil {
		b.ru = &mat.Dense{}
	}
	b.ru.Reset()
	b.ru.Mul(b.r, b.u)

	// D[:order+1] = RU^T D[:order+1]
	rows := order + 1
	out := make([][]float64, rows)
	for k := 0; k < rows; k++ {
		out[k] = make([]float64, b.n)
		for j := 0; j < rows; j++ {
			w := b.ru.At(j, k)
			if w == 0 {
				continue
			}
			for i := range out[k] {
				out[k][i] += w * b.D[j][i]
			}
		}
	}
	for k := 0; k < rows; k++ {
		copy(b.D[k], out[k])
	}
}

// bdfR is the (order+1)x(order+1) matrix R with R[0][j] = 1 and
// R[i][j] = prod_{m=1..i} (m - 1 - factor*j)/m.
func bdfR(order int, factor float64, dst *mat.Dense) *mat.Dense {
	n := order + 1
	if dst == nil {
		dst = &mat.Dense{}
	}
	dst.Reset()
	dst.ReuseAs(n, n)
	for j := 0; j < n; j++ {
		dst.Set(0, j, 1)
	}
	for i := 1; i < n; i++ {
		for j := 0; j < n; j++ {
			m := 0.0
			if j > 0 {
				m = (float64(i) - 1 - factor*float64(j)) / float64(i)
			}
			dst.Set(i, j, dst.At(i-1, j)*m)
		}
	}
	return dst
}

const epsilon = 2.220446049250313e-16

func rms(v []float64) float64 {
	if len(v) == 0 {
		return 0
	}
	sum := 0.0
	for _, x := range v {
		sum += x * x
	}
	return math.Sqrt(sum / float64(len(v)))
}

func equal(a, b []float64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
