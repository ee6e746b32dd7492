package suspension

import (
	"errors"
	"math"
	"testing"

	"github.com/san-kum/railsim/internal/dynamo"
	"gonum.org/v1/gonum/spatial/r3"
)

func TestPoseDisplacement(t *testing.T) {
	p := Pose{Y: 0.01, Z: -0.02, Phi: 0.001, Psi: 0.002}
	got := p.Displacement(r3.Vec{X: 2, Y: 1, Z: 0.5})
	want := r3.Vec{X: -0.002, Y: 0.01 + 0.004 - 0.0005, Z: -0.02 + 0.001}
	if r3.Norm(r3.Sub(got, want)) > 1e-15 {
		t.Errorf("Displacement = %v, want %v", got, want)
	}
}

func TestSpringForce(t *testing.T) {
	l := Link{Name: "k", Kind: Spring, Axis: Z, Coeff: 1e5, Upper: r3.Vec{Y: 1}, Lower: r3.Vec{Y: 1}}

	// upper body sinks: the spring pushes it back up
	f := l.Force(Pose{Z: -0.01}, Pose{})
	if math.Abs(f.Z-1000) > 1e-9 || f.X != 0 || f.Y != 0 {
		t.Errorf("Force = %v, want (0,0,1000)", f)
	}

	l.Preload = 500
	f = l.Force(Pose{}, Pose{})
	if f.Z != 500 {
		t.Errorf("preloaded Force.Z = %g, want 500", f.Z)
	}
}

func TestDamperForce(t *testing.T) {
	l := Link{Name: "c", Kind: Damper, Axis: Y, Coeff: 2e4}
	f := l.Force(Pose{Y: 1, Ydot: 0.5}, Pose{})
	if f.Y != -1e4 {
		t.Errorf("Force.Y = %g, want -1e4", f.Y)
	}
}

func TestConnectorEqualAndOpposite(t *testing.T) {
	c := NewConnector("secondary",
		Link{Name: "zl", Kind: Spring, Axis: Z, Coeff: 3e5, Upper: r3.Vec{X: 9.5, Y: 1, Z: -0.8}, Lower: r3.Vec{Y: 1, Z: 0.3}},
		Link{Name: "zr", Kind: Spring, Axis: Z, Coeff: 3e5, Upper: r3.Vec{X: 9.5, Y: -1, Z: -0.8}, Lower: r3.Vec{Y: -1, Z: 0.3}},
		Link{Name: "yl", Kind: Damper, Axis: Y, Coeff: 3e4, Upper: r3.Vec{X: 9.5, Y: 1, Z: -0.8}, Lower: r3.Vec{Y: 1, Z: 0.3}},
	)
	upper := Pose{Y: 0.003, Z: -0.001, Phi: 0.002, Psi: -0.001, Ydot: 0.01, Phidot: -0.02}
	lower := Pose{Y: -0.002, Z: 0.001, Psi: 0.003, Psidot: 0.01}

	u, l, err := c.Evaluate(upper, lower)
	if err != nil {
		t.Fatal(err)
	}
	if r3.Norm(r3.Add(u.Force, l.Force)) > 1e-9 {
		t.Errorf("forces not opposite: %v %v", u.Force, l.Force)
	}
	if u.Force.Z == 0 || u.Moment.X == 0 {
		t.Errorf("expected non-zero vertical force and roll moment, got %v", u)
	}
}

func TestConnectorCalibrate(t *testing.T) {
	c := NewConnector("primary",
		Link{Name: "zl", Kind: Spring, Axis: Z, Coeff: 1e6, Upper: r3.Vec{Y: 1}, Lower: r3.Vec{Y: 1}},
		Link{Name: "zr", Kind: Spring, Axis: Z, Coeff: 1e6, Upper: r3.Vec{Y: -1}, Lower: r3.Vec{Y: -1}},
		Link{Name: "cz", Kind: Damper, Axis: Z, Coeff: 1e4},
	)
	if err := c.Calibrate(80000); err != nil {
		t.Fatal(err)
	}
	u, l, err := c.Evaluate(Pose{}, Pose{})
	if err != nil {
		t.Fatal(err)
	}
	if u.Force.Z != 80000 || l.Force.Z != -80000 {
		t.Errorf("calibrated forces = %g, %g", u.Force.Z, l.Force.Z)
	}
	if math.Abs(u.Moment.X) > 1e-9 {
		t.Errorf("symmetric preload produced roll moment %g", u.Moment.X)
	}

	empty := NewConnector("lateral", Link{Kind: Spring, Axis: Y, Coeff: 1})
	err = empty.Calibrate(1)
	var ce *dynamo.ConfigurationError
	if !errors.As(err, &ce) {
		t.Errorf("Calibrate without vertical spring: got %v", err)
	}
}

func TestConnectorBlowUp(t *testing.T) {
	c := NewConnector("stiff", Link{Name: "k", Kind: Spring, Axis: Y, Coeff: 1e9})
	_, _, err := c.Evaluate(Pose{Y: 1e4}, Pose{})
	if !errors.Is(err, dynamo.ErrDiverged) {
		t.Errorf("expected ErrDiverged, got %v", err)
	}

	_, _, err = c.Evaluate(Pose{Y: math.NaN()}, Pose{})
	if !errors.Is(err, dynamo.ErrDiverged) {
		t.Errorf("expected ErrDiverged for NaN, got %v", err)
	}
}

func TestParse(t *testing.T) {
	if k, err := ParseKind("Damper"); err != nil || k != Damper {
		t.Errorf("ParseKind = %v, %v", k, err)
	}
	if a, err := ParseAxis("lateral"); err != nil || a != Y {
		t.Errorf("ParseAxis = %v, %v", a, err)
	}
	if _, err := ParseAxis("w"); err == nil {
		t.Error("ParseAxis accepted w")
	}
}
