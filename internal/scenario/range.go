package scenario

import (
	"math"

	"github.com/san-kum/railsim/internal/dynamo"
)

// maxAxisPoints bounds the length of one sweep axis.
const maxAxisPoints = 100000

// Range is one sweep axis. In ramping mode the Step of the speed range is
// the ramp coefficient in m/s² instead of a step size.
type Range struct {
	Start float64 `yaml:"start"`
	End   float64 `yaml:"end"`
	Step  float64 `yaml:"step"`
}

// Fixed is a range visiting v only.
func Fixed(v float64) Range { return Range{Start: v, End: v} }

// Direction is the sign of End−Start.
func (r Range) Direction() float64 {
	switch {
	case r.End > r.Start:
		return 1
	case r.End < r.Start:
		return -1
	default:
		return 0
	}
}

// Values lists the points of the axis. Stepping by |Step| towards End
// stops once End is reached or passed, and End itself is always visited.
// A zero-length range is visited once.
func (r Range) Values(field string) ([]float64, error) {
	if math.IsNaN(r.Start) || math.IsNaN(r.End) || math.IsNaN(r.Step) ||
		math.IsInf(r.Start, 0) || math.IsInf(r.End, 0) || math.IsInf(r.Step, 0) {
		return nil, dynamo.Configf(field, "range bounds must be finite")
	}
	dir := r.Direction()
	if dir == 0 {
		return []float64{r.Start}, nil
	}
	step := math.Abs(r.Step)
	if step == 0 {
		return nil, dynamo.Configf(field, "zero step over [%g, %g]", r.Start, r.End)
	}
	if n := math.Abs(r.End-r.Start) / step; n > maxAxisPoints {
		return nil, dynamo.Configf(field, "%.0f points exceed the limit of %d", n, maxAxisPoints)
	}

	eps := 1e-9 * step
	var out []float64
	for i := 0; ; i++ {
		v := r.Start + float64(i)*step*dir
		if dir*(r.End-v) <= eps {
			break
		}
		out = append(out, v)
	}
	return append(out, r.End), nil
}
