package contact

import (
	"fmt"
	"math"
	"strings"

	"github.com/san-kum/railsim/internal/dynamo"
	"gonum.org/v1/gonum/interp"
)

// Column identifies a named column of a contact geometry table. The first
// column is always the lateral wheelset displacement.
type Column int

const (
	ColDisplacement Column = iota
	ColNormalForce
	ColContactAngle
	ColSemiAxisA
	ColSemiAxisB
	ColC11
	ColC22
	ColC23
	ColRollingRadius
	ColLateralOffset
	ColPreload
	NumColumns
)

var columnNames = [NumColumns]string{
	"y", "normal_force", "contact_angle", "semi_axis_a", "semi_axis_b",
	"c11", "c22", "c23", "rolling_radius", "lateral_offset", "preload",
}

func (c Column) String() string {
	if c < 0 || c >= NumColumns {
		return fmt.Sprintf("column(%d)", int(c))
	}
	return columnNames[c]
}

// ParseColumn maps a header name to its column.
func ParseColumn(name string) (Column, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	for i, n := range columnNames {
		if n == name {
			return Column(i), true
		}
	}
	return 0, false
}

// Interpolation selects how a table is queried between rows.
type Interpolation int

const (
	Linear Interpolation = iota
	Cubic
	Akima
)

func (m Interpolation) String() string {
	switch m {
	case Linear:
		return "linear"
	case Cubic:
		return "cubic"
	case Akima:
		return "akima"
	default:
		return fmt.Sprintf("interpolation(%d)", int(m))
	}
}

// ParseInterpolation accepts "linear", "cubic" and "akima"; empty means linear.
func ParseInterpolation(s string) (Interpolation, error) {
	switch strings.ToLower(s) {
	case "", "linear":
		return Linear, nil
	case "cubic", "spline":
		return Cubic, nil
	case "akima":
		return Akima, nil
	}
	return 0, dynamo.Configf("interpolation", "unknown method %q", s)
}

// MinRows is the smallest table every interpolation method accepts.
const MinRows = 4

// Row is one interpolated table row.
type Row [NumColumns]float64

// Table is immutable tabulated wheel-rail geometry indexed by lateral
// displacement of the wheelset.
type Table struct {
	name   string
	data   [][]float64
	method Interpolation
	fits   [NumColumns]interp.FittablePredictor

	nominalRadius float64
}

// positiveColumns are divisors or lengths of the contact patch in every row.
var positiveColumns = [...]Column{ColSemiAxisA, ColSemiAxisB, ColRollingRadius, ColPreload}

// NewTable validates data and fits one interpolant per column. The data is
// copied; the caller may reuse it.
func NewTable(name string, data [][]float64, method Interpolation) (*Table, error) {
	if len(data) < MinRows {
		return nil, dynamo.Configf("table "+name, "need at least %d rows, got %d", MinRows, len(data))
	}

	t := &Table{name: name, method: method, data: make([][]float64, len(data))}
	for i, row := range data {
		if len(row) != int(NumColumns) {
			return nil, dynamo.Configf("table "+name, "row %d has %d columns, want %d", i, len(row), NumColumns)
		}
		for j, v := range row {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, dynamo.Configf("table "+name, "row %d column %s is not finite", i, Column(j))
			}
		}
		for _, c := range positiveColumns {
			if row[c] <= 0 {
				return nil, dynamo.Configf("table "+name, "row %d column %s must be positive, got %g", i, c, row[c])
			}
		}
		if i > 0 && row[ColDisplacement] <= data[i-1][ColDisplacement] {
			return nil, dynamo.Configf("table "+name, "displacement not strictly increasing at row %d", i)
		}
		t.data[i] = append([]float64(nil), row...)
	}
	if t.data[0][ColDisplacement] > 0 || t.data[len(data)-1][ColDisplacement] < 0 {
		return nil, dynamo.Configf("table "+name, "displacement range must contain 0")
	}

	xs := t.column(ColDisplacement)
	for c := ColNormalForce; c < NumColumns; c++ {
		f := newPredictor(method)
		if err := f.Fit(xs, t.column(c)); err != nil {
			return nil, dynamo.Configf("table "+name, "fit %s: %v", c, err)
		}
		t.fits[c] = f
	}
	t.nominalRadius = t.Interpolate(ColRollingRadius, 0)
	if t.nominalRadius <= 0 {
		return nil, dynamo.Configf("table "+name, "non-positive nominal rolling radius %g", t.nominalRadius)
	}
	return t, nil
}

func newPredictor(m Interpolation) interp.FittablePredictor {
	switch m {
	case Cubic:
		return &interp.NaturalCubic{}
	case Akima:
		return &interp.AkimaSpline{}
	default:
		return &interp.PiecewiseLinear{}
	}
}

func (t *Table) column(c Column) []float64 {
	col := make([]float64, len(t.data))
	for i, row := range t.data {
		col[i] = row[c]
	}
	return col
}

func (t *Table) Name() string                 { return t.name }
func (t *Table) Rows() int                    { return len(t.data) }
func (t *Table) Cols() int                    { return int(NumColumns) }
func (t *Table) Method() Interpolation        { return t.method }
func (t *Table) At(row int, c Column) float64 { return t.data[row][c] }

// NominalRadius is the rolling radius at zero displacement.
func (t *Table) NominalRadius() float64 { return t.nominalRadius }

// Range returns the first and last tabulated displacement.
func (t *Table) Range() (lo, hi float64) {
	return t.data[0][ColDisplacement], t.data[len(t.data)-1][ColDisplacement]
}

// Bound is the largest |y| valid for both the left wheel (queried at y) and
// the mirrored right wheel (queried at -y).
func (t *Table) Bound() float64 {
	lo, hi := t.Range()
	return math.Min(-lo, hi)
}

// Interpolate returns column c at displacement y.
func (t *Table) Interpolate(c Column, y float64) float64 {
	if c == ColDisplacement {
		return y
	}
	return t.fits[c].Predict(y)
}

// Fill writes every column at displacement y into dst.
func (t *Table) Fill(y float64, dst *Row) {
	dst[ColDisplacement] = y
	for c := ColNormalForce; c < NumColumns; c++ {
		dst[c] = t.fits[c].Predict(y)
	}
}

// Displacements returns a copy of the tabulated displacement grid.
func (t *Table) Displacements() []float64 {
	return t.column(ColDisplacement)
}
