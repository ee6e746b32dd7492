package suspension

import (
	"fmt"
	"math"

	"github.com/san-kum/railsim/internal/dynamo"
	"gonum.org/v1/gonum/spatial/r3"
)

// MaxForce is the magnitude above which a connector force is treated as
// a numerical blow-up.
const MaxForce = 1e12

// Wrench is a force and the moment it produces about a body's centre of mass.
type Wrench struct {
	Force  r3.Vec
	Moment r3.Vec
}

func (w Wrench) Add(o Wrench) Wrench {
	return Wrench{Force: r3.Add(w.Force, o.Force), Moment: r3.Add(w.Moment, o.Moment)}
}

// Connector bundles the links between an upper and a lower body.
type Connector struct {
	name  string
	links []Link
}

// NewConnector copies links into a new connector.
func NewConnector(name string, links ...Link) *Connector {
	return &Connector{name: name, links: append([]Link(nil), links...)}
}

func (c *Connector) Name() string  { return c.name }
func (c *Connector) Links() []Link { return c.links }

// Add appends a link.
func (c *Connector) Add(l Link) { c.links = append(c.links, l) }

// Calibrate distributes weight evenly over the vertical springs as static
// preload so that the connector carries it at zero deflection.
func (c *Connector) Calibrate(weight float64) error {
	n := 0
	for i := range c.links {
		if c.links[i].Kind == Spring && c.links[i].Axis == Z {
			n++
		}
	}
	if n == 0 {
		return dynamo.Configf("connector "+c.name, "no vertical spring to carry %.6g N", weight)
	}
	for i := range c.links {
		if c.links[i].Kind == Spring && c.links[i].Axis == Z {
			c.links[i].Preload = weight / float64(n)
		}
	}
	return nil
}

// Evaluate sums all links into the wrench on each body.
func (c *Connector) Evaluate(upper, lower Pose) (onUpper, onLower Wrench, err error) {
	for i := range c.links {
		l := &c.links[i]
		f := l.Force(upper, lower)
		if blownUp(f) {
			return onUpper, onLower, fmt.Errorf("%w: %s link %s force %v", dynamo.ErrDiverged, c.name, l.Name, f)
		}
		onUpper.Force = r3.Add(onUpper.Force, f)
		onUpper.Moment = r3.Add(onUpper.Moment, r3.Cross(l.Upper, f))

		neg := r3.Scale(-1, f)
		onLower.Force = r3.Add(onLower.Force, neg)
		onLower.Moment = r3.Add(onLower.Moment, r3.Cross(l.Lower, neg))
	}
	return onUpper, onLower, nil
}

func blownUp(f r3.Vec) bool {
	for _, v := range [3]float64{f.X, f.Y, f.Z} {
		if math.IsNaN(v) || math.IsInf(v, 0) || math.Abs(v) > MaxForce {
			return true
		}
	}
	return false
}
