package vehicle

import (
	"github.com/san-kum/railsim/internal/contact"
	"github.com/san-kum/railsim/internal/track"
)

// CarBody is the root of the tree. It carries the payload on the secondary
// suspension of its bogies.
type CarBody struct {
	body
}

func (c *CarBody) accelerations(pt track.Point, _ float64, y, dst []float64) error {
	w, err := c.suspensionWrench(pt, y)
	if err != nil {
		return err
	}
	c.rigidAccelerations(pt, w, c.window.Slice(y), dst)
	return nil
}

// BogieFrame sits between the car body and its wheelsets.
type BogieFrame struct {
	body
}

func (b *BogieFrame) accelerations(pt track.Point, _ float64, y, dst []float64) error {
	w, err := b.suspensionWrench(pt, y)
	if err != nil {
		return err
	}
	b.rigidAccelerations(pt, w, b.window.Slice(y), dst)
	return nil
}

// WheelSet is a leaf of the tree. In addition to the rigid-body coordinates
// it carries a small perturbation BETA of the axle spin angle, and its
// wheels are in contact with the rails.
type WheelSet struct {
	body
	pair *contact.Pair
}

// Pair returns the wheel-rail contact of the wheelset.
func (w *WheelSet) Pair() *contact.Pair { return w.pair }

// BogieOffset is the longitudinal position relative to the bogie centre.
func (w *WheelSet) BogieOffset() float64 {
	if w.upper == nil {
		return 0
	}
	return w.x - w.upper.X()
}

func (w *WheelSet) contactInput(pt track.Point, t float64, y []float64) contact.Input {
	local := w.window.Slice(y)
	return contact.Input{
		Time:        t,
		Point:       pt,
		Y:           local[IdxY],
		Ydot:        local[IdxYdot],
		Z:           local[IdxZ],
		Phi:         local[IdxPhi],
		Phidot:      local[IdxPhidot],
		Psi:         local[IdxPsi],
		Psidot:      local[IdxPsidot],
		Betadot:     local[IdxBetadot],
		BogieOffset: w.BogieOffset(),
	}
}

// Contact evaluates the wheel-rail contact for state y. The result is
// memoized, so a status report right after an evaluation at the same state
// does not recompute it.
func (w *WheelSet) Contact(pt track.Point, t float64, y []float64) (contact.Result, error) {
	return w.pair.Evaluate(w.contactInput(pt, t, y))
}

func (w *WheelSet) accelerations(pt track.Point, t float64, y, dst []float64) error {
	susp, err := w.suspensionWrench(pt, y)
	if err != nil {
		return err
	}
	res, err := w.Contact(pt, t, y)
	if err != nil {
		return err
	}

	susp.Force.Y += res.Force.Y
	susp.Force.Z += res.Force.Z
	susp.Moment.X += res.Moment.X
	susp.Moment.Z += res.Moment.Z

	local := w.window.Slice(y)
	w.rigidAccelerations(pt, susp, local, dst)

	// gyroscopic coupling of the spinning axle
	spin := w.inertia.Pitch * (pt.Speed/w.pair.NominalRadius() + local[IdxBetadot])
	dst[IdxPhidot] -= spin * local[IdxPsidot] / w.inertia.Roll
	dst[IdxPsidot] += spin * local[IdxPhidot] / w.inertia.Yaw
	dst[IdxBetadot] = res.Moment.Y / w.inertia.Pitch
	return nil
}
