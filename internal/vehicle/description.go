package vehicle

import (
	"fmt"

	"github.com/san-kum/railsim/internal/contact"
	"github.com/san-kum/railsim/internal/dynamo"
	"github.com/san-kum/railsim/internal/suspension"
	"github.com/san-kum/railsim/internal/track"
	"gonum.org/v1/gonum/spatial/r3"
)

// LinkSpec declares one suspension element between a component and its
// parent. Attachment points are relative to the centres of mass.
type LinkSpec struct {
	Name  string     `yaml:"name"`
	Kind  string     `yaml:"kind"`
	Axis  string     `yaml:"axis"`
	Coeff float64    `yaml:"coeff"`
	Upper [3]float64 `yaml:"upper"`
	Lower [3]float64 `yaml:"lower"`
}

// ComponentSpec declares one body of the tree.
type ComponentSpec struct {
	Name    string         `yaml:"name"`
	Type    string         `yaml:"type"`
	Parent  string         `yaml:"parent,omitempty"`
	X       float64        `yaml:"x"`
	Inertia Inertia        `yaml:"inertia"`
	Fixed   bool           `yaml:"fixed,omitempty"`
	Links   []LinkSpec     `yaml:"links,omitempty"`
	Tables  []string       `yaml:"tables,omitempty"`
	Contact contact.Params `yaml:"contact,omitempty"`
}

// Description is the declarative form of a vehicle.
type Description struct {
	Name       string          `yaml:"name"`
	Components []ComponentSpec `yaml:"components"`
}

// Build validates d and assembles the component tree. Windows are assigned
// in declaration order. Each wheelset gets its own contact pair over the
// named tables.
func Build(d Description, tables map[string]*contact.Table, cond *track.Conditions) (*Model, error) {
	if len(d.Components) == 0 {
		return nil, dynamo.Configf("vehicle", "no components")
	}
	if cond == nil {
		cond = track.New()
	}

	m := &Model{name: d.Name, cond: cond}
	byName := make(map[string]Component, len(d.Components))
	specs := make(map[string]ComponentSpec, len(d.Components))

	offset := 0
	for _, spec := range d.Components {
		field := "component " + spec.Name
		if spec.Name == "" {
			return nil, dynamo.Configf("vehicle", "component without name")
		}
		if _, dup := byName[spec.Name]; dup {
			return nil, dynamo.Configf(field, "duplicate name")
		}
		typ, err := ParseType(spec.Type)
		if err != nil {
			return nil, dynamo.Configf(field, "%v", err)
		}
		if err := validateInertia(typ, spec.Inertia); err != nil {
			return nil, dynamo.Configf(field, "%v", err)
		}

		c, err := newComponent(typ, spec, tables)
		if err != nil {
			return nil, err
		}
		b := c.base()
		b.window = dynamo.Window{Start: offset, Len: dofCount(typ)}
		offset += b.window.Len

		byName[spec.Name] = c
		specs[spec.Name] = spec
		m.components = append(m.components, c)
	}
	m.n = offset

	for _, c := range m.components {
		spec := specs[c.Name()]
		field := "component " + spec.Name
		if spec.Parent == "" {
			if m.root != nil {
				return nil, dynamo.Configf(field, "second root, %s is already the root", m.root.Name())
			}
			if c.Type() != TypeCarBody {
				return nil, dynamo.Configf(field, "root must be a %s", TypeCarBody)
			}
			if len(spec.Links) > 0 {
				return nil, dynamo.Configf(field, "root has no parent to link to")
			}
			m.root = c
			continue
		}

		parent, ok := byName[spec.Parent]
		if !ok {
			return nil, dynamo.Configf(field, "unknown parent %q", spec.Parent)
		}
		if want := parentType(c.Type()); parent.Type() != want {
			return nil, dynamo.Configf(field, "parent %s is a %s, want %s", parent.Name(), parent.Type(), want)
		}
		pb := parent.base()
		if len(pb.lower) == 2 {
			return nil, dynamo.Configf(field, "parent %s already has two lower components", parent.Name())
		}

		conn, err := newConnector(parent.Name()+"-"+c.Name(), spec.Links)
		if err != nil {
			return nil, dynamo.Configf(field, "%v", err)
		}
		b := c.base()
		b.upper = parent
		b.up = conn
		pb.lower = append(pb.lower, c)
		pb.down = append(pb.down, conn)
	}
	if m.root == nil {
		return nil, dynamo.Configf("vehicle", "no root %s", TypeCarBody)
	}

	// every component must hang below the root
	reached := preorder(m.root, nil)
	if len(reached) != len(m.components) {
		return nil, dynamo.Configf("vehicle", "%d components not connected to %s", len(m.components)-len(reached), m.root.Name())
	}

	for _, c := range m.components {
		b := c.base()
		b.connect()
		b.allocate(m.n)
	}
	for i, a := range m.components {
		for _, b := range m.components[i+1:] {
			if a.Window().Overlaps(b.Window()) {
				return nil, dynamo.Configf("vehicle", "windows of %s and %s overlap", a.Name(), b.Name())
			}
		}
	}
	return m, nil
}

func dofCount(t Type) int {
	if t == TypeWheelSet {
		return wheelSetDOF
	}
	return bodyDOF
}

func parentType(t Type) Type {
	if t == TypeWheelSet {
		return TypeBogieFrame
	}
	return TypeCarBody
}

func validateInertia(t Type, in Inertia) error {
	if in.Mass <= 0 || in.Roll <= 0 || in.Yaw <= 0 {
		return fmt.Errorf("mass, roll and yaw inertia must be positive")
	}
	if t == TypeWheelSet && in.Pitch <= 0 {
		return fmt.Errorf("wheelset spin inertia must be positive")
	}
	return nil
}

func newComponent(typ Type, spec ComponentSpec, tables map[string]*contact.Table) (Component, error) {
	b := body{name: spec.Name, typ: typ, inertia: spec.Inertia, x: spec.X, fixed: spec.Fixed}
	switch typ {
	case TypeCarBody:
		c := &CarBody{body: b}
		c.self = c
		return c, nil
	case TypeBogieFrame:
		c := &BogieFrame{body: b}
		c.self = c
		return c, nil
	}

	field := "component " + spec.Name
	if len(spec.Tables) == 0 {
		return nil, dynamo.Configf(field, "wheelset without contact tables")
	}
	ts := make([]*contact.Table, len(spec.Tables))
	for i, name := range spec.Tables {
		t, ok := tables[name]
		if !ok {
			return nil, dynamo.Configf(field, "unknown contact table %q", name)
		}
		ts[i] = t
	}
	params := spec.Contact
	if params == (contact.Params{}) {
		params = contact.DefaultParams()
	}
	pair, err := contact.NewPair(ts, params)
	if err != nil {
		return nil, err
	}
	w := &WheelSet{body: b, pair: pair}
	w.self = w
	return w, nil
}

func newConnector(name string, specs []LinkSpec) (*suspension.Connector, error) {
	c := suspension.NewConnector(name)
	for i, s := range specs {
		kind, err := suspension.ParseKind(s.Kind)
		if err != nil {
			return nil, err
		}
		axis, err := suspension.ParseAxis(s.Axis)
		if err != nil {
			return nil, err
		}
		if s.Coeff < 0 {
			return nil, fmt.Errorf("link %d: negative coefficient %g", i, s.Coeff)
		}
		ln := s.Name
		if ln == "" {
			ln = fmt.Sprintf("%s-%s-%d", kind, axis, i)
		}
		c.Add(suspension.Link{
			Name:  ln,
			Kind:  kind,
			Axis:  axis,
			Coeff: s.Coeff,
			Upper: r3.Vec{X: s.Upper[0], Y: s.Upper[1], Z: s.Upper[2]},
			Lower: r3.Vec{X: s.Lower[0], Y: s.Lower[1], Z: s.Lower[2]},
		})
	}
	return c, nil
}
