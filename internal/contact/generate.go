package contact

import (
	"math"

	"github.com/san-kum/railsim/internal/dynamo"
)

// ConicalProfile describes a synthetic wheel-rail pair: a conical tread that
// turns into a flange once the lateral clearance is used up.
type ConicalProfile struct {
	Name            string  `yaml:"name"`
	RollingRadius   float64 `yaml:"rolling_radius"`
	Conicity        float64 `yaml:"conicity"`
	FlangeClearance float64 `yaml:"flange_clearance"`
	FlangeWidth     float64 `yaml:"flange_width"`
	FlangeAngle     float64 `yaml:"flange_angle"`
	Range           float64 `yaml:"range"`
	Rows            int     `yaml:"rows"`
	NormalForce     float64 `yaml:"normal_force"`
	SemiAxisA       float64 `yaml:"semi_axis_a"`
	SemiAxisB       float64 `yaml:"semi_axis_b"`
	C11             float64 `yaml:"c11"`
	C22             float64 `yaml:"c22"`
	C23             float64 `yaml:"c23"`
	Preload         float64 `yaml:"preload"`
}

// DefaultConicalProfile is a worn-tread profile with an equivalent conicity
// of 0.15 on a 920 mm wheel.
func DefaultConicalProfile() ConicalProfile {
	return ConicalProfile{
		Name:            "tread",
		RollingRadius:   0.46,
		Conicity:        0.15,
		FlangeClearance: 0.007,
		FlangeWidth:     0.002,
		FlangeAngle:     1.2,
		Range:           0.012,
		Rows:            49,
		NormalForce:     1,
		SemiAxisA:       6e-3,
		SemiAxisB:       4e-3,
		C11:             4.12,
		C22:             3.67,
		C23:             1.47,
		Preload:         1e-4,
	}
}

// Symmetric reports whether the profile has no flange, so that the table is
// identical for both wheels and every displacement. Used by tests.
func (p ConicalProfile) Symmetric() bool {
	return p.FlangeClearance <= 0 || p.FlangeClearance >= p.Range
}

func (p ConicalProfile) contactAngle(y float64) float64 {
	tread := math.Atan(p.Conicity)
	if p.Symmetric() || y <= p.FlangeClearance {
		return tread
	}
	u := (y - p.FlangeClearance) / math.Max(p.FlangeWidth, 1e-9)
	if u > 1 {
		u = 1
	}
	smooth := u * u * (3 - 2*u)
	return tread + (p.FlangeAngle-tread)*smooth
}

// Generate tabulates the profile for the left wheel. The right wheel is
// handled by mirroring the query displacement.
func (p ConicalProfile) Generate(method Interpolation) (*Table, error) {
	if p.Rows < MinRows {
		return nil, dynamo.Configf("profile "+p.Name, "need at least %d rows", MinRows)
	}
	if p.Range <= 0 || p.RollingRadius <= 0 || p.Preload <= 0 {
		return nil, dynamo.Configf("profile "+p.Name, "range, rolling radius and preload must be positive")
	}

	n := p.Rows
	dy := 2 * p.Range / float64(n-1)
	data := make([][]float64, n)
	ys := make([]float64, n)
	for i := range ys {
		ys[i] = -p.Range + float64(i)*dy
	}
	// Snap the centre row to exactly zero so the nominal radius is tabulated.
	mid := n / 2
	if n%2 == 1 {
		ys[mid] = 0
	}

	// Rolling radius follows from integrating the slope tan(delta) from y=0.
	radius := make([]float64, n)
	zero := nearestIndex(ys, 0)
	radius[zero] = p.RollingRadius + p.Conicity*ys[zero]
	for i := zero + 1; i < n; i++ {
		slope := 0.5 * (math.Tan(p.contactAngle(ys[i-1])) + math.Tan(p.contactAngle(ys[i])))
		radius[i] = radius[i-1] + slope*(ys[i]-ys[i-1])
	}
	for i := zero - 1; i >= 0; i-- {
		slope := 0.5 * (math.Tan(p.contactAngle(ys[i])) + math.Tan(p.contactAngle(ys[i+1])))
		radius[i] = radius[i+1] - slope*(ys[i+1]-ys[i])
	}

	for i, y := range ys {
		row := make([]float64, NumColumns)
		row[ColDisplacement] = y
		row[ColNormalForce] = p.NormalForce
		row[ColContactAngle] = p.contactAngle(y)
		row[ColSemiAxisA] = p.SemiAxisA
		row[ColSemiAxisB] = p.SemiAxisB
		row[ColC11] = p.C11
		row[ColC22] = p.C22
		row[ColC23] = p.C23
		row[ColRollingRadius] = radius[i]
		row[ColLateralOffset] = -y
		row[ColPreload] = p.Preload
		data[i] = row
	}
	return NewTable(p.Name, data, method)
}

func nearestIndex(xs []float64, x float64) int {
	best := 0
	for i := range xs {
		if math.Abs(xs[i]-x) < math.Abs(xs[best]-x) {
			best = i
		}
	}
	return best
}
