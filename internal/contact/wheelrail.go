package contact

import (
	"fmt"
	"math"

	"github.com/san-kum/railsim/internal/dynamo"
	"github.com/san-kum/railsim/internal/track"
	"gonum.org/v1/gonum/spatial/r3"
)

// Params are the contact parameters of one wheelset.
type Params struct {
	HalfGauge      float64 `yaml:"half_gauge"`
	Friction       float64 `yaml:"friction"`
	MinNormalForce float64 `yaml:"min_normal_force"`
}

// DefaultParams is standard gauge with dry rail.
func DefaultParams() Params {
	return Params{HalfGauge: 0.7465, Friction: 0.4, MinNormalForce: 1e-3}
}

// Input is the wheelset motion a contact evaluation depends on. Two equal
// inputs produce identical results.
type Input struct {
	Time  float64
	Point track.Point

	Y       float64
	Ydot    float64
	Z       float64
	Phi     float64
	Phidot  float64
	Psi     float64
	Psidot  float64
	Betadot float64

	// BogieOffset is the longitudinal position of the wheelset relative to
	// its bogie centre; positive means leading.
	BogieOffset float64
}

// SideResult is the accumulated contact of one wheel over all tables.
type SideResult struct {
	Normal       float64
	Longitudinal float64
	Lateral      float64
	Vertical     float64
	ContactAngle float64
	Points       int
}

// Result is the total contact wrench on a wheelset about its centre of mass,
// in the wheelset's track frame.
type Result struct {
	Force     r3.Vec
	Moment    r3.Vec
	Sides     [2]SideResult
	Creepages Creepages
}

// Pair evaluates wheel-rail contact for one wheelset. The tables are shared
// and read-only; the working rows and the memoized result are owned by the
// pair, so a Pair must not be evaluated concurrently.
type Pair struct {
	tables    []*Table
	params    Params
	bound     float64
	loadScale float64

	work [2]Row

	last   Input
	result Result
	err    error
	recalc bool
}

// NewPair builds a contact pair over one or more tables. The first table is
// the primary tread contact; its nominal radius defines the axle speed.
func NewPair(tables []*Table, params Params) (*Pair, error) {
	if len(tables) == 0 {
		return nil, dynamo.Configf("contact", "wheelset needs at least one table")
	}
	if params.HalfGauge <= 0 {
		return nil, dynamo.Configf("contact", "half gauge must be positive, got %g", params.HalfGauge)
	}
	if params.Friction < 0 {
		return nil, dynamo.Configf("contact", "negative friction coefficient %g", params.Friction)
	}

	bound := math.Inf(1)
	for _, t := range tables {
		if t == nil {
			return nil, dynamo.Configf("contact", "nil table")
		}
		bound = math.Min(bound, t.Bound())
	}
	if bound <= 0 {
		return nil, dynamo.Configf("contact", "tables do not cover both sides of zero displacement")
	}

	return &Pair{
		tables:    append([]*Table(nil), tables...),
		params:    params,
		bound:     bound,
		loadScale: 1,
		recalc:    true,
	}, nil
}

func (p *Pair) Tables() []*Table { return p.tables }
func (p *Pair) Params() Params   { return p.params }

// MaxDisplacement is the largest lateral displacement the tables cover.
func (p *Pair) MaxDisplacement() float64 { return p.bound }

// NominalRadius is the rolling radius of the primary table at y = 0.
func (p *Pair) NominalRadius() float64 { return p.tables[0].NominalRadius() }

// LoadScale is the factor applied to tabulated normal forces.
func (p *Pair) LoadScale() float64 { return p.loadScale }

// CalibrateLoad scales the tabulated normal forces so that the centred
// wheelset at rest carries weight through its contacts.
func (p *Pair) CalibrateLoad(weight float64) error {
	total := 0.0
	for _, t := range p.tables {
		total += 2 * t.Interpolate(ColNormalForce, 0) * math.Cos(t.Interpolate(ColContactAngle, 0))
	}
	if total <= 0 || math.IsNaN(total) {
		return dynamo.Configf("contact", "tables carry no vertical load at zero displacement")
	}
	p.loadScale = weight / total
	p.Invalidate()
	return nil
}

// Invalidate forces the next Evaluate to recompute.
func (p *Pair) Invalidate() { p.recalc = true }

// Evaluate returns the contact wrench for in. The result of the previous
// call is reused when in is unchanged and the pair has not been invalidated.
func (p *Pair) Evaluate(in Input) (Result, error) {
	if !p.recalc && in == p.last {
		return p.result, p.err
	}
	p.result, p.err = p.evaluate(in)
	p.last = in
	p.recalc = false
	return p.result, p.err
}

func (p *Pair) evaluate(in Input) (Result, error) {
	var res Result
	if math.IsNaN(in.Y) || math.Abs(in.Y) > p.bound {
		return res, fmt.Errorf("%w: |y|=%.6g exceeds %.6g", dynamo.ErrDerailment, math.Abs(in.Y), p.bound)
	}

	v := in.Point.Speed
	r0 := p.NominalRadius()
	pos := Leading
	if in.BogieOffset < 0 {
		pos = Trailing
	}
	kin := Kinematics{
		Speed:       v,
		Curvature:   in.Point.Curvature,
		CosCant:     in.Point.CosCant,
		Ydot:        in.Ydot,
		Phidot:      in.Phidot,
		Psi:         in.Psi,
		Psidot:      in.Psidot,
		Betadot:     in.Betadot,
		BogieOffset: in.BogieOffset,
		R0:          r0,
	}

	for ti, t := range p.tables {
		t.Fill(in.Y, &p.work[Left])
		t.Fill(-in.Y, &p.work[Right])

		var geo [2]SideGeometry
		for _, side := range []Side{Left, Right} {
			row := &p.work[side]
			geo[side] = SideGeometry{
				ContactAngle:  row[ColContactAngle],
				RollingRadius: row[ColRollingRadius],
				LateralArm:    p.params.HalfGauge + row[ColLateralOffset],
			}
		}
		creep := ComputeCreepages(kin, geo)
		if ti == 0 {
			res.Creepages = creep
		}

		for _, side := range []Side{Left, Right} {
			row := &p.work[side]
			static := row[ColNormalForce] * p.loadScale
			if static < p.params.MinNormalForce {
				continue
			}
			s := side.Sign()
			g := geo[side]
			sinD, cosD := math.Sincos(g.ContactAngle)

			dq := -(in.Z + s*g.LateralArm*in.Phi) * cosD
			normal := static * math.Pow(1+dq/row[ColPreload], 1.5)
			if math.IsNaN(normal) {
				normal = 0
			}
			grow := math.Cbrt(normal / static)
			row[ColNormalForce] = normal
			row[ColSemiAxisA] *= grow
			row[ColSemiAxisB] *= grow

			fx, fy := KalkerForces(creep[pos][side], row[ColSemiAxisA], row[ColSemiAxisB], row[ColC11], row[ColC22], row[ColC23])
			fx, fy = Saturate(fx, fy, p.params.Friction, normal)

			f := r3.Vec{
				X: fx,
				Y: -s*normal*sinD + fy*cosD,
				Z: normal*cosD + s*fy*sinD,
			}
			arm := r3.Vec{Y: s * g.LateralArm, Z: -g.RollingRadius}
			res.Force = r3.Add(res.Force, f)
			res.Moment = r3.Add(res.Moment, r3.Cross(arm, f))

			sr := &res.Sides[side]
			sr.Normal += normal
			sr.Longitudinal += f.X
			sr.Lateral += f.Y
			sr.Vertical += f.Z
			if normal > 0 && g.ContactAngle > sr.ContactAngle {
				sr.ContactAngle = g.ContactAngle
			}
			sr.Points++
		}
	}

	if !finite(res.Force) || !finite(res.Moment) {
		return res, fmt.Errorf("%w: force=%v moment=%v", dynamo.ErrNaNForce, res.Force, res.Moment)
	}
	return res, nil
}

func finite(v r3.Vec) bool {
	return !math.IsNaN(v.X+v.Y+v.Z) && !math.IsInf(v.X+v.Y+v.Z, 0)
}
