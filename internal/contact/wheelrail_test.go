package contact

import (
	"errors"
	"math"
	"testing"

	"github.com/san-kum/railsim/internal/dynamo"
	"github.com/san-kum/railsim/internal/track"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const wheelLoad = 60000.0

func newTestPair(t *testing.T, p ConicalProfile) *Pair {
	t.Helper()
	tab, err := p.Generate(Linear)
	require.NoError(t, err)
	pair, err := NewPair([]*Table{tab}, DefaultParams())
	require.NoError(t, err)
	require.NoError(t, pair.CalibrateLoad(wheelLoad))
	return pair
}

func symmetricProfile() ConicalProfile {
	p := DefaultConicalProfile()
	p.FlangeClearance = 0
	return p
}

func TestPairCentredAtRest(t *testing.T) {
	pair := newTestPair(t, symmetricProfile())

	res, err := pair.Evaluate(Input{})
	require.NoError(t, err)
	assert.InDelta(t, wheelLoad, res.Force.Z, 1e-9*wheelLoad)
	assert.InDelta(t, 0, res.Force.Y, 1e-9*wheelLoad)
	assert.InDelta(t, 0, res.Force.X, 1e-9)
	assert.InDelta(t, 0, res.Moment.X, 1e-9*wheelLoad)
}

func TestPairMirroredAtZeroDisplacement(t *testing.T) {
	pair := newTestPair(t, symmetricProfile())

	in := Input{Point: track.Point{Speed: 20, CosCant: 1}}
	res, err := pair.Evaluate(in)
	require.NoError(t, err)

	l, r := res.Sides[Left], res.Sides[Right]
	tol := 1e-9 * wheelLoad
	assert.Equal(t, l.Normal, r.Normal)
	assert.Greater(t, l.Normal, 0.0)
	assert.InDelta(t, l.Vertical, r.Vertical, tol)
	assert.InDelta(t, -l.Lateral, r.Lateral, tol)
	assert.InDelta(t, math.Abs(l.Longitudinal), math.Abs(r.Longitudinal), tol)
	assert.InDelta(t, 0, res.Force.Y, tol)
	assert.InDelta(t, 0, res.Moment.X, tol)

	c := res.Creepages[Leading]
	assert.InDelta(t, -c[Left].Spin, c[Right].Spin, 1e-12)
	assert.InDelta(t, c[Left].Lat, c[Right].Lat, 1e-12)
}

func TestPairFlangeRestores(t *testing.T) {
	pair := newTestPair(t, DefaultConicalProfile())

	res, err := pair.Evaluate(Input{Y: 0.009})
	require.NoError(t, err)
	assert.Less(t, res.Force.Y, 0.0)

	res, err = pair.Evaluate(Input{Y: -0.009})
	require.NoError(t, err)
	assert.Greater(t, res.Force.Y, 0.0)
}

func TestPairDerailment(t *testing.T) {
	pair := newTestPair(t, DefaultConicalProfile())
	bound := pair.MaxDisplacement()

	for _, y := range []float64{bound + 1e-4, -bound - 1e-4, math.NaN()} {
		_, err := pair.Evaluate(Input{Y: y})
		require.Error(t, err, "y=%g", y)
		assert.True(t, errors.Is(err, dynamo.ErrDerailment))
		assert.Equal(t, dynamo.CodeDomain, dynamo.CodeOf(err))
	}

	_, err := pair.Evaluate(Input{Y: bound * 0.99})
	assert.NoError(t, err)
}

func TestPairLiftOff(t *testing.T) {
	pair := newTestPair(t, symmetricProfile())

	// lifted by more than the preload reference: no contact force, not NaN
	res, err := pair.Evaluate(Input{Z: 1e-3})
	require.NoError(t, err)
	assert.Equal(t, 0.0, res.Sides[Left].Normal)
	assert.Equal(t, 0.0, res.Force.Z)
}

func TestPairRollShiftsLoad(t *testing.T) {
	pair := newTestPair(t, symmetricProfile())

	res, err := pair.Evaluate(Input{Phi: 1e-5})
	require.NoError(t, err)
	assert.Less(t, res.Sides[Left].Normal, res.Sides[Right].Normal)
	assert.Less(t, res.Moment.X, 0.0)
}

func TestPairMemoizeAndInvalidate(t *testing.T) {
	pair := newTestPair(t, symmetricProfile())

	first, err := pair.Evaluate(Input{})
	require.NoError(t, err)
	again, err := pair.Evaluate(Input{})
	require.NoError(t, err)
	assert.Equal(t, first, again)

	require.NoError(t, pair.CalibrateLoad(2*wheelLoad))
	doubled, err := pair.Evaluate(Input{})
	require.NoError(t, err)
	assert.InDelta(t, 2*first.Force.Z, doubled.Force.Z, 1e-6)
}

func TestNewPairValidation(t *testing.T) {
	_, err := NewPair(nil, DefaultParams())
	assert.Error(t, err)

	tab, err := DefaultConicalProfile().Generate(Linear)
	require.NoError(t, err)
	params := DefaultParams()
	params.HalfGauge = 0
	_, err = NewPair([]*Table{tab}, params)
	assert.Error(t, err)
}

func TestCreepagesAtStandstill(t *testing.T) {
	c := ComputeCreepages(Kinematics{Ydot: 1, Psi: 0.1, R0: 0.46}, [2]SideGeometry{})
	assert.Equal(t, Creepages{}, c)
}

func TestCreepagesYaw(t *testing.T) {
	geo := SideGeometry{RollingRadius: 0.46, LateralArm: 0.75}
	c := ComputeCreepages(Kinematics{Speed: 30, Psi: 2e-3, R0: 0.46, CosCant: 1}, [2]SideGeometry{geo, geo})
	for _, side := range []Side{Left, Right} {
		assert.InDelta(t, -2e-3, c[Leading][side].Lat, 1e-15)
		assert.InDelta(t, 0, c[Leading][side].Long, 1e-15)
		assert.InDelta(t, 0, c[Leading][side].Spin, 1e-15)
	}
}

func TestSaturate(t *testing.T) {
	tests := []struct {
		name   string
		fx, fy float64
		want   float64
	}{
		{"zero", 0, 0, 0},
		{"small", 1, 0, 1 - 1.0/3000 + 1.0/27e6},
		{"limit", 3000, 0, 1000},
		{"beyond", 0, 1e6, 1000},
		{"oblique", 3e5, 4e5, 1000},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fx, fy := Saturate(tt.fx, tt.fy, 0.5, 2000)
			assert.InDelta(t, tt.want, math.Hypot(fx, fy), 1e-9)
			if tt.fx != 0 || tt.fy != 0 {
				// direction is preserved
				assert.InDelta(t, math.Atan2(tt.fy, tt.fx), math.Atan2(fy, fx), 1e-12)
			}
		})
	}
}

func TestKalkerForces(t *testing.T) {
	fx, fy := KalkerForces(Creepage{Long: 1e-3}, 6e-3, 4e-3, 4.12, 3.67, 1.47)
	assert.InDelta(t, -ShearModulus*24e-6*4.12*1e-3, fx, 1e-6)
	assert.Equal(t, 0.0, fy)
}
