// Package suspension models the elastic and viscous elements between two
// vehicle bodies.
//
// A [Link] is a single spring or damper acting along one track-frame axis
// between an attachment point on the upper body and one on the lower body.
// A [Connector] bundles the links of one body pair and sums them into a
// wrench for each side.
package suspension

import (
	"fmt"
	"strings"

	"gonum.org/v1/gonum/spatial/r3"
)

// Kind is the force law of a link.
type Kind int

const (
	Spring Kind = iota
	Damper
)

func (k Kind) String() string {
	switch k {
	case Spring:
		return "spring"
	case Damper:
		return "damper"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// ParseKind accepts "spring" and "damper".
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(s) {
	case "spring":
		return Spring, nil
	case "damper":
		return Damper, nil
	}
	return 0, fmt.Errorf("suspension: unknown link kind %q", s)
}

// Axis is the track-frame direction a link acts along.
type Axis int

const (
	X Axis = iota
	Y
	Z
)

func (a Axis) String() string {
	switch a {
	case X:
		return "x"
	case Y:
		return "y"
	case Z:
		return "z"
	default:
		return fmt.Sprintf("axis(%d)", int(a))
	}
}

// ParseAxis accepts "x", "y" and "z".
func ParseAxis(s string) (Axis, error) {
	switch strings.ToLower(s) {
	case "x", "long", "longitudinal":
		return X, nil
	case "y", "lat", "lateral":
		return Y, nil
	case "z", "vert", "vertical":
		return Z, nil
	}
	return 0, fmt.Errorf("suspension: unknown axis %q", s)
}

// Of returns the component of v along a.
func (a Axis) Of(v r3.Vec) float64 {
	switch a {
	case X:
		return v.X
	case Y:
		return v.Y
	default:
		return v.Z
	}
}

// Unit returns the unit vector along a scaled by s.
func (a Axis) Unit(s float64) r3.Vec {
	switch a {
	case X:
		return r3.Vec{X: s}
	case Y:
		return r3.Vec{Y: s}
	default:
		return r3.Vec{Z: s}
	}
}

// Link is one spring or damper. Attachment points are relative to the centre
// of mass of the respective body.
type Link struct {
	Name  string
	Kind  Kind
	Axis  Axis
	Coeff float64
	Upper r3.Vec
	Lower r3.Vec

	// Preload is the static force on the upper body, set by calibration.
	Preload float64
}

// forceLaws maps a link kind to its scalar law given the relative
// displacement and velocity (lower minus upper) along the link axis.
var forceLaws = [...]func(l *Link, du, dv float64) float64{
	Spring: func(l *Link, du, _ float64) float64 { return l.Coeff*du + l.Preload },
	Damper: func(l *Link, _, dv float64) float64 { return l.Coeff * dv },
}

// Force returns the force the link exerts on the upper body. The lower body
// receives the opposite force.
func (l *Link) Force(upper, lower Pose) r3.Vec {
	du := l.Axis.Of(r3.Sub(lower.Displacement(l.Lower), upper.Displacement(l.Upper)))
	dv := l.Axis.Of(r3.Sub(lower.Velocity(l.Lower), upper.Velocity(l.Upper)))
	return l.Axis.Unit(forceLaws[l.Kind](l, du, dv))
}

func (l *Link) String() string {
	return fmt.Sprintf("%s %s-%s k=%g", l.Name, l.Kind, l.Axis, l.Coeff)
}
