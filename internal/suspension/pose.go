package suspension

import "gonum.org/v1/gonum/spatial/r3"

// Pose is the small-motion state of a body relative to a common frame:
// lateral and vertical translation, roll and yaw, and their rates.
type Pose struct {
	Y   float64
	Z   float64
	Phi float64
	Psi float64

	Ydot   float64
	Zdot   float64
	Phidot float64
	Psidot float64
}

func (p Pose) rotation() r3.Vec { return r3.Vec{X: p.Phi, Z: p.Psi} }
func (p Pose) spin() r3.Vec     { return r3.Vec{X: p.Phidot, Z: p.Psidot} }

// Displacement is the linearized displacement of the body point at.
func (p Pose) Displacement(at r3.Vec) r3.Vec {
	return r3.Add(r3.Vec{Y: p.Y, Z: p.Z}, r3.Cross(p.rotation(), at))
}

// Velocity is the linearized velocity of the body point at.
func (p Pose) Velocity(at r3.Vec) r3.Vec {
	return r3.Add(r3.Vec{Y: p.Ydot, Z: p.Zdot}, r3.Cross(p.spin(), at))
}
