package contact

import "math"

// ShearModulus is the combined shear modulus of wheel and rail steel in Pa.
const ShearModulus = 8.0e10

// SaturationLimit is the ratio F/(μN) at and beyond which the cubic law is
// fully saturated.
const SaturationLimit = 3.0

// Side indexes the two wheels of a wheelset.
type Side int

const (
	Left Side = iota
	Right
)

// Sign is +1 for the left wheel and -1 for the right wheel.
func (s Side) Sign() float64 {
	if s == Left {
		return 1
	}
	return -1
}

func (s Side) String() string {
	if s == Left {
		return "left"
	}
	return "right"
}

// Position is the place of a wheelset within its bogie.
type Position int

const (
	Leading Position = iota
	Trailing
)

// Sign is +1 for a leading and -1 for a trailing wheelset.
func (p Position) Sign() float64 {
	if p == Leading {
		return 1
	}
	return -1
}

func (p Position) String() string {
	if p == Leading {
		return "leading"
	}
	return "trailing"
}

// Creepage is the normalized sliding velocity at one contact patch.
type Creepage struct {
	Long float64
	Lat  float64
	Spin float64
}

// Creepages holds the twelve creepages, indexed [position][side].
type Creepages [2][2]Creepage

// Kinematics is the wheelset motion the creepages are computed from.
type Kinematics struct {
	Speed       float64
	Curvature   float64
	CosCant     float64
	Ydot        float64
	Phidot      float64
	Psi         float64
	Psidot      float64
	Betadot     float64
	BogieOffset float64
	R0          float64
}

// SideGeometry is the contact geometry of one wheel used for creepages.
type SideGeometry struct {
	ContactAngle  float64
	RollingRadius float64
	LateralArm    float64
}

// ComputeCreepages evaluates longitudinal, lateral and spin creepage for both
// wheels and both bogie positions. A wheelset at standstill has no defined
// creepage; all twelve are zero.
func ComputeCreepages(k Kinematics, geo [2]SideGeometry) Creepages {
	var c Creepages
	v := k.Speed
	if v == 0 {
		return c
	}

	omega := v/k.R0 + k.Betadot
	trackYawRate := v * k.Curvature * k.CosCant
	offset := math.Abs(k.BogieOffset)

	for _, pos := range []Position{Leading, Trailing} {
		attack := k.Psi - pos.Sign()*offset*k.Curvature
		for _, side := range []Side{Left, Right} {
			s := side.Sign()
			g := geo[side]
			sinD, cosD := math.Sincos(g.ContactAngle)

			c[pos][side] = Creepage{
				Long: (v*(1-s*g.LateralArm*k.Curvature) - s*g.LateralArm*k.Psidot - omega*g.RollingRadius) / v,
				Lat:  (k.Ydot + g.RollingRadius*k.Phidot - v*attack) / (v * cosD),
				Spin: ((k.Psidot+trackYawRate)*cosD - s*omega*sinD) / v,
			}
		}
	}
	return c
}

// KalkerForces returns the linear creep forces of Kalker's theory for a
// contact patch with semi-axes a, b and coefficients c11, c22, c23.
func KalkerForces(c Creepage, a, b, c11, c22, c23 float64) (fx, fy float64) {
	ab := a * b
	fx = -ShearModulus * ab * c11 * c.Long
	fy = -ShearModulus*ab*c22*c.Lat - ShearModulus*math.Pow(ab, 1.5)*c23*c.Spin
	return fx, fy
}

// Saturate limits the linear creep forces against the adhesion limit μN with
// the cubic law u - u²/3 + u³/27, fully saturated for u >= 3.
func Saturate(fx, fy, mu, normal float64) (float64, float64) {
	limit := mu * normal
	f := math.Hypot(fx, fy)
	if f == 0 || limit <= 0 {
		return 0, 0
	}

	u := f / limit
	var fs float64
	if u >= SaturationLimit {
		fs = limit
	} else {
		fs = limit * (u - u*u/3 + u*u*u/27)
	}
	eps := fs / f
	return fx * eps, fy * eps
}
