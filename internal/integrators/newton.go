package integrators

import (
	"fmt"

	"github.com/san-kum/railsim/internal/dynamo"
	"gonum.org/v1/gonum/mat"
)

// maxCond is the condition number above which an iteration matrix is
// treated as singular.
const maxCond = 1e15

// iteration is the LU-factorized Newton matrix I - h (A ⊗ J) of an implicit
// method with s coupled stages. For s = 1, A is the scalar γ.
type iteration struct {
	n, s int
	m    *mat.Dense
	lu   mat.LU
	rhs  *mat.VecDense
	sol  *mat.VecDense
}

func newIteration(n, s int) *iteration {
	return &iteration{
		n:   n,
		s:   s,
		m:   mat.NewDense(n*s, n*s, nil),
		rhs: mat.NewVecDense(n*s, nil),
		sol: mat.NewVecDense(n*s, nil),
	}
}

// factor builds and factorizes I - h (A ⊗ J).
func (it *iteration) factor(h float64, A [][]float64, J mat.Matrix, stats *dynamo.Stats) error {
	n := it.n
	for bi := 0; bi < it.s; bi++ {
		for bj := 0; bj < it.s; bj++ {
			c := -h * A[bi][bj]
			for i := 0; i < n; i++ {
				for j := 0; j < n; j++ {
					v := c * J.At(i, j)
					if bi == bj && i == j {
						v += 1
					}
					it.m.Set(bi*n+i, bj*n+j, v)
				}
			}
		}
	}
	stats.Decomps++
	it.lu.Factorize(it.m)
	if c := it.lu.Cond(); c > maxCond {
		return fmt.Errorf("%w: condition number %.3g", dynamo.ErrSingular, c)
	}
	return nil
}

// solve overwrites x with M⁻¹ b. x and b may be the same slice.
func (it *iteration) solve(x, b []float64) error {
	copy(it.rhs.RawVector().Data, b)
	if err := it.lu.SolveVecTo(it.sol, false, it.rhs); err != nil {
		return fmt.Errorf("%w: %v", dynamo.ErrSingular, err)
	}
	copy(x, it.sol.RawVector().Data)
	return nil
}

// scalar returns the 1x1 coefficient matrix {{g}}.
func scalar(g float64) [][]float64 { return [][]float64{{g}} }
