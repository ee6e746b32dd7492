// Package track holds the operating point shared by every component: speed,
// curve radius and cant angle.
//
// [Conditions] is mutated only by the scenario driver between solves. Each
// model evaluation takes an immutable [Point] snapshot through
// [Conditions.At], so components never read the mutable struct directly.
package track

import (
	"fmt"
	"math"
)

// Gravity is the standard gravitational acceleration in m/s².
const Gravity = 9.81

// Point is the operating point at one instant.
type Point struct {
	Speed     float64
	Radius    float64
	Cant      float64
	Curvature float64
	SinCant   float64
	CosCant   float64
}

// CentripetalAccel returns v²κ.
func (p Point) CentripetalAccel() float64 {
	return p.Speed * p.Speed * p.Curvature
}

// YawRate returns the yaw rate of the track frame, vκ.
func (p Point) YawRate() float64 {
	return p.Speed * p.Curvature
}

func (p Point) String() string {
	return fmt.Sprintf("v=%.3f R=%.1f cant=%.4f", p.Speed, p.Radius, p.Cant)
}

// Conditions is the mutable operating point together with the optional
// linear ramps the scenario driver uses.
type Conditions struct {
	speed  float64
	radius float64
	cant   float64

	sinCant float64
	cosCant float64

	// SpeedCoeff makes the speed a linear function of time: v(t) = v + coeff·t.
	speedCoeff float64

	// Curvature and cant ramps from 0 to nominal over the given durations.
	radiusRamp float64
	cantRamp   float64
}

// New returns conditions for a tangent track at standstill.
func New() *Conditions {
	c := &Conditions{}
	c.Set(0, 0, 0)
	return c
}

// Set replaces the operating point and clears all ramps.
func (c *Conditions) Set(speed, radius, cant float64) {
	c.speed = speed
	c.radius = radius
	c.cant = cant
	c.sinCant, c.cosCant = math.Sincos(cant)
	c.speedCoeff = 0
	c.radiusRamp = 0
	c.cantRamp = 0
}

// SetSpeedRamp makes the speed evolve as v(t) = v + coeff·t.
func (c *Conditions) SetSpeedRamp(coeff float64) {
	c.speedCoeff = coeff
}

// SetTransient ramps curvature and cant linearly from zero to their nominal
// values over radiusTime and cantTime. A non-positive time disables that ramp.
func (c *Conditions) SetTransient(radiusTime, cantTime float64) {
	c.radiusRamp = math.Max(radiusTime, 0)
	c.cantRamp = math.Max(cantTime, 0)
}

// TransientDuration is the longer of the two ramp times.
func (c *Conditions) TransientDuration() float64 {
	return math.Max(c.radiusRamp, c.cantRamp)
}

func (c *Conditions) Speed() float64  { return c.speed }
func (c *Conditions) Radius() float64 { return c.radius }
func (c *Conditions) Cant() float64   { return c.cant }

// At returns the snapshot of the operating point at time t.
func (c *Conditions) At(t float64) Point {
	p := Point{
		Speed:   c.speed + c.speedCoeff*t,
		Radius:  c.radius,
		Cant:    c.cant,
		SinCant: c.sinCant,
		CosCant: c.cosCant,
	}
	if c.radius != 0 {
		p.Curvature = 1 / c.radius
	}

	if c.radiusRamp > 0 {
		f := rampFraction(t, c.radiusRamp)
		p.Curvature *= f
		if f == 0 {
			p.Radius = 0
		} else {
			p.Radius = c.radius / f
		}
	}
	if c.cantRamp > 0 {
		p.Cant = c.cant * rampFraction(t, c.cantRamp)
		p.SinCant, p.CosCant = math.Sincos(p.Cant)
	}
	return p
}

func rampFraction(t, duration float64) float64 {
	switch {
	case t <= 0:
		return 0
	case t >= duration:
		return 1
	default:
		return t / duration
	}
}
