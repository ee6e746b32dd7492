package vehicle

import (
	"math"

	"github.com/san-kum/railsim/internal/contact"
)

// ContactStatus summarizes the wheel-rail contact of a wheelset, indexed by
// contact.Side.
type ContactStatus struct {
	Normal    [2]float64
	Lateral   [2]float64
	Vertical  [2]float64
	Nadal     [2]float64
	Margin    float64
	Creepages contact.Creepages
}

// Status is the reported state of one component at one instant.
type Status struct {
	Name   string
	Type   Type
	Values []float64

	// Contact is set for wheelsets only.
	Contact *ContactStatus
}

// Value returns the coordinate at offset idx, or 0 when the component has
// no such coordinate.
func (s Status) Value(idx int) float64 {
	if idx < 0 || idx >= len(s.Values) {
		return 0
	}
	return s.Values[idx]
}

// Fields flattens the status into named columns.
func (s Status) Fields() ([]string, []float64) {
	names := make([]string, 0, len(s.Values)+9)
	vals := make([]float64, 0, len(s.Values)+9)
	for i, v := range s.Values {
		names = append(names, dofNames[i])
		vals = append(vals, v)
	}
	if c := s.Contact; c != nil {
		for _, side := range []contact.Side{contact.Left, contact.Right} {
			p := side.String()[:1]
			names = append(names, "N"+p, "Fy"+p, "Fz"+p, "YQ"+p)
			vals = append(vals, c.Normal[side], c.Lateral[side], c.Vertical[side], c.Nadal[side])
		}
		names = append(names, "margin")
		vals = append(vals, c.Margin)
	}
	return names, vals
}

// Status recomputes the status of every component from y. Wheelset contact
// is taken from the memoized evaluation when y is the state last evaluated.
func (m *Model) Status(t float64, y []float64) ([]Status, error) {
	if err := m.check(y); err != nil {
		return nil, err
	}
	pt := m.cond.At(t)
	out := make([]Status, len(m.components))
	for i, c := range m.components {
		b := c.base()
		out[i] = Status{
			Name:   c.Name(),
			Type:   c.Type(),
			Values: append([]float64(nil), b.window.Slice(y)...),
		}
		ws, ok := c.(*WheelSet)
		if !ok {
			continue
		}
		res, err := ws.Contact(pt, t, y)
		if err != nil {
			return out, b.domainError(t, y, err)
		}
		cs := &ContactStatus{
			Margin:    ws.pair.MaxDisplacement() - math.Abs(b.window.Slice(y)[IdxY]),
			Creepages: res.Creepages,
		}
		for side, sr := range res.Sides {
			cs.Normal[side] = sr.Normal
			cs.Lateral[side] = sr.Lateral
			cs.Vertical[side] = sr.Vertical
			if sr.Vertical != 0 {
				// flange climbing quotient, positive when pushing towards the rail
				cs.Nadal[side] = -contact.Side(side).Sign() * sr.Lateral / sr.Vertical
			}
		}
		out[i].Contact = cs
	}
	return out, nil
}
