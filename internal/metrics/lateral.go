// Package metrics reduces the samples of one solve to scalar indicators of
// curving and running stability.
package metrics

import (
	"math"

	"github.com/san-kum/railsim/internal/sim"
	"github.com/san-kum/railsim/internal/solution"
	"github.com/san-kum/railsim/internal/vehicle"
)

// Defaults returns the metrics stored with every solve.
func Defaults() []sim.Metric {
	return []sim.Metric{
		NewMaxLateral(),
		NewMaxNadal(),
		NewMinMargin(),
		NewHunting(DefaultHuntingFraction),
	}
}

// MaxLateral is the largest wheelset lateral displacement |Y| seen.
type MaxLateral struct {
	name string
	max  float64
}

func NewMaxLateral() *MaxLateral {
	return &MaxLateral{name: "max_lateral"}
}

func (m *MaxLateral) Name() string   { return m.name }
func (m *MaxLateral) Value() float64 { return m.max }
func (m *MaxLateral) Reset()         { m.max = 0 }

func (m *MaxLateral) Observe(e solution.Entry) {
	for _, s := range e.Status {
		if s.Type != vehicle.TypeWheelSet {
			continue
		}
		m.max = math.Max(m.max, math.Abs(s.Value(vehicle.IdxY)))
	}
}

// MaxNadal is the largest Y/Q quotient on any wheel.
type MaxNadal struct {
	name string
	max  float64
}

func NewMaxNadal() *MaxNadal {
	return &MaxNadal{name: "max_nadal"}
}

func (m *MaxNadal) Name() string   { return m.name }
func (m *MaxNadal) Value() float64 { return m.max }
func (m *MaxNadal) Reset()         { m.max = 0 }

func (m *MaxNadal) Observe(e solution.Entry) {
	for _, s := range e.Status {
		if s.Contact == nil {
			continue
		}
		for _, q := range s.Contact.Nadal {
			m.max = math.Max(m.max, q)
		}
	}
}

// MinMargin is the smallest distance left to the derailment bound.
type MinMargin struct {
	name    string
	min     float64
	samples int
}

func NewMinMargin() *MinMargin {
	return &MinMargin{name: "min_margin"}
}

func (m *MinMargin) Name() string { return m.name }

func (m *MinMargin) Observe(e solution.Entry) {
	for _, s := range e.Status {
		if s.Contact == nil {
			continue
		}
		if m.samples == 0 || s.Contact.Margin < m.min {
			m.min = s.Contact.Margin
		}
		m.samples++
	}
}

func (m *MinMargin) Value() float64 {
	if m.samples == 0 {
		return 0
	}
	return m.min
}

func (m *MinMargin) Reset() {
	m.min = 0
	m.samples = 0
}
