package vehicle

import (
	"fmt"

	"github.com/rs/zerolog"
	"github.com/san-kum/railsim/internal/dynamo"
	"github.com/san-kum/railsim/internal/track"
	"gonum.org/v1/gonum/mat"
)

// Model owns the component tree and the layout of the flattened state
// vector. It evaluates f(t, y) and ∂f/∂y by recursing the tree children
// first.
type Model struct {
	name       string
	root       Component
	components []Component
	n          int
	cond       *track.Conditions

	// parallelDepth bounds the tree depth down to which the two subtrees of
	// a branching component are evaluated on separate goroutines.
	parallelDepth int

	calibrated bool
	log        zerolog.Logger
}

func (m *Model) Name() string                  { return m.name }
func (m *Model) Dim() int                      { return m.n }
func (m *Model) Root() Component               { return m.root }
func (m *Model) Conditions() *track.Conditions { return m.cond }

// Components returns the bodies in state-vector order.
func (m *Model) Components() []Component {
	return append([]Component(nil), m.components...)
}

// Component returns the body with the given name.
func (m *Model) Component(name string) (Component, bool) {
	for _, c := range m.components {
		if c.Name() == name {
			return c, true
		}
	}
	return nil, false
}

// WheelSets returns the wheelsets in state-vector order.
func (m *Model) WheelSets() []*WheelSet {
	var ws []*WheelSet
	for _, c := range m.components {
		if w, ok := c.(*WheelSet); ok {
			ws = append(ws, w)
		}
	}
	return ws
}

// SetParallelDepth enables subtree goroutines for branching components at
// depth < d. Zero evaluates serially.
func (m *Model) SetParallelDepth(d int) { m.parallelDepth = max(d, 0) }

func (m *Model) SetLogger(l zerolog.Logger) { m.log = l }

// DOFNames returns "<component>.<coordinate>" for every state index.
func (m *Model) DOFNames() []string {
	names := make([]string, 0, m.n)
	for _, c := range m.components {
		for _, d := range c.DOFNames() {
			names = append(names, c.Name()+"."+d)
		}
	}
	return names
}

// InitialState is the centred state at rest, which is the static
// equilibrium once the model is calibrated.
func (m *Model) InitialState() []float64 {
	return make([]float64, m.n)
}

func (m *Model) check(y []float64) error {
	if len(y) != m.n {
		return fmt.Errorf("%w: state has %d entries, model %d", dynamo.ErrDimensionMismatch, len(y), m.n)
	}
	return nil
}

// Fun evaluates dydt = f(t, y).
func (m *Model) Fun(t float64, y, dydt []float64) error {
	if err := m.check(y); err != nil {
		return err
	}
	if len(dydt) != m.n {
		return fmt.Errorf("%w: derivative has %d entries, model %d", dynamo.ErrDimensionMismatch, len(dydt), m.n)
	}
	pt := m.cond.At(t)
	return m.visit(m.root, 0, func(c Component) error {
		return c.base().fun(pt, t, y, dydt)
	})
}

// Jacobian evaluates J = ∂f/∂y by central differences, one block of rows per
// component.
func (m *Model) Jacobian(t float64, y []float64, J *mat.Dense) error {
	if err := m.check(y); err != nil {
		return err
	}
	if r, c := J.Dims(); r != m.n || c != m.n {
		return fmt.Errorf("%w: jacobian is %dx%d, model %d", dynamo.ErrDimensionMismatch, r, c, m.n)
	}
	J.Zero()
	pt := m.cond.At(t)
	return m.visit(m.root, 0, func(c Component) error {
		return c.base().jacobian(pt, t, y, J)
	})
}

// visit applies fn post-order. The subtrees of a branching component run
// concurrently above the parallel depth; they write disjoint rows and touch
// only their own scratch buffers.
func (m *Model) visit(c Component, depth int, fn func(Component) error) error {
	lower := c.Lower()
	fns := make([]func() error, len(lower))
	for i, l := range lower {
		fns[i] = func() error { return m.visit(l, depth+1, fn) }
	}
	if err := dynamo.Fork(depth < m.parallelDepth, fns...); err != nil {
		return err
	}
	return fn(c)
}

// Calibrate sets the static suspension preload and the contact load scale
// from the weight each body carries, so that the centred state at rest is
// an equilibrium on tangent, level track.
func (m *Model) Calibrate() error {
	load := make(map[Component]float64, len(m.components))
	for _, c := range preorder(m.root, nil) {
		b := c.base()
		w := b.inertia.Mass * track.Gravity
		if b.upper != nil {
			w += load[b.upper] / float64(len(b.upper.Lower()))
		}
		load[c] = w

		for i, conn := range b.down {
			if b.fixed && b.lower[i].Fixed() {
				continue
			}
			if err := conn.Calibrate(w / float64(len(b.down))); err != nil {
				return err
			}
		}
		if ws, ok := c.(*WheelSet); ok && !ws.fixed {
			if err := ws.pair.CalibrateLoad(w); err != nil {
				return fmt.Errorf("wheelset %s: %w", ws.name, err)
			}
		}
		m.log.Debug().Str("component", c.Name()).Float64("load", w).Msg("calibrated")
	}
	m.calibrated = true
	return nil
}

// Calibrated reports whether Calibrate succeeded.
func (m *Model) Calibrated() bool { return m.calibrated }

func preorder(c Component, out []Component) []Component {
	out = append(out, c)
	for _, l := range c.Lower() {
		out = preorder(l, out)
	}
	return out
}
