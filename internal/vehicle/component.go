package vehicle

import (
	"fmt"

	"github.com/san-kum/railsim/internal/dynamo"
	"github.com/san-kum/railsim/internal/suspension"
	"github.com/san-kum/railsim/internal/track"
	"gonum.org/v1/gonum/mat"
)

// Type is the kind of rigid body a component models.
type Type int

const (
	TypeCarBody Type = iota
	TypeBogieFrame
	TypeWheelSet
)

func (t Type) String() string {
	switch t {
	case TypeCarBody:
		return "car_body"
	case TypeBogieFrame:
		return "bogie_frame"
	case TypeWheelSet:
		return "wheelset"
	default:
		return fmt.Sprintf("type(%d)", int(t))
	}
}

// ParseType accepts the names returned by Type.String.
func ParseType(s string) (Type, error) {
	for _, t := range []Type{TypeCarBody, TypeBogieFrame, TypeWheelSet} {
		if t.String() == s {
			return t, nil
		}
	}
	return 0, fmt.Errorf("vehicle: unknown component type %q", s)
}

// Offsets of the interleaved (q, q̇) coordinates inside a component window.
const (
	IdxY = iota
	IdxYdot
	IdxZ
	IdxZdot
	IdxPhi
	IdxPhidot
	IdxPsi
	IdxPsidot
	IdxBeta
	IdxBetadot
)

const (
	bodyDOF     = 8
	wheelSetDOF = 10
)

var dofNames = [...]string{"Y", "Ydot", "Z", "Zdot", "PHI", "PHIdot", "PSI", "PSIdot", "BETA", "BETAdot"}

// Delta is the fixed finite-difference perturbation of the Jacobian.
const Delta = 1e-7

// Inertia holds the mass properties of a body about its centre of mass.
type Inertia struct {
	Mass  float64 `yaml:"mass"`
	Roll  float64 `yaml:"roll"`
	Pitch float64 `yaml:"pitch"`
	Yaw   float64 `yaml:"yaw"`
}

// Component is one rigid body of the vehicle tree.
type Component interface {
	Name() string
	Type() Type
	Window() dynamo.Window
	Fixed() bool
	X() float64
	Upper() Component
	Lower() []Component
	DOFNames() []string

	base() *body
	// accelerations fills the acceleration slots of dst from the local
	// state of the body; the rate slots are already set.
	accelerations(pt track.Point, t float64, y, dst []float64) error
}

// body is the state shared by every component type.
type body struct {
	self    Component
	name    string
	typ     Type
	inertia Inertia
	x       float64
	window  dynamo.Window
	fixed   bool

	upper Component
	lower []Component

	// up joins the body to its upper neighbour; down[i] joins it to lower[i].
	up   *suspension.Connector
	down []*suspension.Connector

	deps []int

	// scratch, owned by the body and reused across calls
	yPriv []float64
	fPlus []float64
	fMin  []float64
}

func (b *body) Name() string          { return b.name }
func (b *body) Type() Type            { return b.typ }
func (b *body) Window() dynamo.Window { return b.window }
func (b *body) Fixed() bool           { return b.fixed }
func (b *body) X() float64            { return b.x }
func (b *body) Upper() Component      { return b.upper }
func (b *body) Lower() []Component    { return b.lower }
func (b *body) base() *body           { return b }

func (b *body) DOFNames() []string {
	return append([]string(nil), dofNames[:b.window.Len]...)
}

// Dependencies lists the global state indices the body's rhs reads.
func (b *body) Dependencies() []int { return append([]int(nil), b.deps...) }

// connect records the dependency windows once the tree is complete.
func (b *body) connect() {
	b.deps = b.window.Indices()
	if b.upper != nil {
		b.deps = append(b.deps, b.upper.Window().Indices()...)
	}
	for _, l := range b.lower {
		b.deps = append(b.deps, l.Window().Indices()...)
	}
}

func (b *body) allocate(n int) {
	b.yPriv = make([]float64, n)
	b.fPlus = make([]float64, b.window.Len)
	b.fMin = make([]float64, b.window.Len)
}

// yawReference is the track heading at the body relative to the vehicle
// frame. A wheelset is referenced to its bogie.
func (b *body) yawReference(pt track.Point) float64 {
	if b.typ == TypeWheelSet && b.upper != nil {
		return pt.Curvature * b.upper.X()
	}
	return pt.Curvature * b.x
}

// lateralReference is the offset of the track centreline at the body from
// the tangent through the vehicle origin.
func (b *body) lateralReference(pt track.Point) float64 {
	return 0.5 * pt.Curvature * b.x * b.x
}

// pose returns the body state in the common vehicle frame used by the
// suspension.
func (b *body) pose(pt track.Point, y []float64) suspension.Pose {
	w := b.window.Slice(y)
	return suspension.Pose{
		Y:      w[IdxY] + b.lateralReference(pt),
		Z:      w[IdxZ],
		Phi:    w[IdxPhi],
		Psi:    w[IdxPsi] + b.yawReference(pt),
		Ydot:   w[IdxYdot],
		Zdot:   w[IdxZdot],
		Phidot: w[IdxPhidot],
		Psidot: w[IdxPsidot],
	}
}

// suspensionWrench sums every connector acting on the body.
func (b *body) suspensionWrench(pt track.Point, y []float64) (suspension.Wrench, error) {
	var total suspension.Wrench
	own := b.pose(pt, y)
	if b.up != nil {
		_, onLower, err := b.up.Evaluate(b.upper.base().pose(pt, y), own)
		if err != nil {
			return total, err
		}
		total = total.Add(onLower)
	}
	for i, c := range b.down {
		onUpper, _, err := c.Evaluate(own, b.lower[i].base().pose(pt, y))
		if err != nil {
			return total, err
		}
		total = total.Add(onUpper)
	}
	return total, nil
}

// rigidAccelerations writes the translational and rotational accelerations
// of a body subject to wrench w, gravity in the canted frame and the
// curving pseudo-forces.
func (b *body) rigidAccelerations(pt track.Point, w suspension.Wrench, local, dst []float64) {
	m := b.inertia.Mass
	v2k := pt.CentripetalAccel()

	dst[IdxYdot] = (w.Force.Y + m*(track.Gravity*pt.SinCant-v2k*pt.CosCant+v2k*pt.Curvature*local[IdxY])) / m
	dst[IdxZdot] = (w.Force.Z - m*(track.Gravity*pt.CosCant+v2k*pt.SinCant)) / m
	dst[IdxPhidot] = w.Moment.X / b.inertia.Roll
	dst[IdxPsidot] = w.Moment.Z / b.inertia.Yaw
}

// rhs evaluates the local right-hand side of the body into dst.
func (b *body) rhs(pt track.Point, t float64, y, dst []float64) error {
	local := b.window.Slice(y)
	for i := 0; i+1 < len(dst); i += 2 {
		dst[i] = local[i+1]
	}
	return b.self.accelerations(pt, t, y, dst)
}

// fun writes the body's own contribution into dydt.
func (b *body) fun(pt track.Point, t float64, y, dydt []float64) error {
	out := b.window.Slice(dydt)
	if b.fixed {
		clear(out)
		return nil
	}
	if err := b.rhs(pt, t, y, out); err != nil {
		return b.domainError(t, y, err)
	}
	return nil
}

// jacobian writes the body's rows of J by central differences.
func (b *body) jacobian(pt track.Point, t float64, y []float64, J *mat.Dense) error {
	if b.fixed {
		return nil
	}
	copy(b.yPriv, y)
	f := func(yp, dst []float64) error { return b.rhs(pt, t, yp, dst) }
	if err := finiteDifference(f, b.yPriv, b.deps, b.window.Start, J, b.fPlus, b.fMin); err != nil {
		return b.domainError(t, y, err)
	}
	return nil
}

func (b *body) domainError(t float64, y []float64, err error) error {
	return &dynamo.DomainError{
		Component: b.name,
		Time:      t,
		DOF:       b.DOFNames(),
		Values:    append([]float64(nil), b.window.Slice(y)...),
		Wrapped:   err,
	}
}

// finiteDifference sets J[row0+i, j] = (f(y+δe_j) - f(y-δe_j))_i / 2δ for
// every j in deps. y is perturbed in place and restored.
func finiteDifference(f func(y, dst []float64) error, y []float64, deps []int, row0 int, J *mat.Dense, fPlus, fMin []float64) error {
	for _, j := range deps {
		orig := y[j]
		y[j] = orig + Delta
		if err := f(y, fPlus); err != nil {
			y[j] = orig
			return err
		}
		y[j] = orig - Delta
		if err := f(y, fMin); err != nil {
			y[j] = orig
			return err
		}
		y[j] = orig
		for i := range fPlus {
			J.Set(row0+i, j, (fPlus[i]-fMin[i])/(2*Delta))
		}
	}
	return nil
}
