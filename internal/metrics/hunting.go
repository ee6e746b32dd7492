package metrics

import (
	"math"

	"github.com/san-kum/railsim/internal/solution"
	"github.com/san-kum/railsim/internal/vehicle"
)

// DefaultHuntingFraction is the trailing share of a run the hunting
// amplitude is measured over.
const DefaultHuntingFraction = 0.25

// Hunting is the half peak-to-peak lateral displacement of the worst
// wheelset over the last fraction of the run. A value that stays finite
// after the transient has died out indicates a limit cycle.
type Hunting struct {
	name     string
	fraction float64
	times    []float64
	lateral  [][]float64
}

func NewHunting(fraction float64) *Hunting {
	if fraction <= 0 || fraction > 1 {
		fraction = DefaultHuntingFraction
	}
	return &Hunting{name: "hunting_amplitude", fraction: fraction}
}

func (h *Hunting) Name() string { return h.name }

func (h *Hunting) Observe(e solution.Entry) {
	var row []float64
	for _, s := range e.Status {
		if s.Type == vehicle.TypeWheelSet {
			row = append(row, s.Value(vehicle.IdxY))
		}
	}
	h.times = append(h.times, e.T)
	h.lateral = append(h.lateral, row)
}

func (h *Hunting) Value() float64 {
	if len(h.times) < 2 {
		return 0
	}
	t0, t1 := h.times[0], h.times[len(h.times)-1]
	from := t1 - h.fraction*(t1-t0)

	var lo, hi []float64
	for i, t := range h.times {
		if t < from {
			continue
		}
		row := h.lateral[i]
		if lo == nil {
			lo = append([]float64(nil), row...)
			hi = append([]float64(nil), row...)
			continue
		}
		for j := 0; j < len(row) && j < len(lo); j++ {
			lo[j] = math.Min(lo[j], row[j])
			hi[j] = math.Max(hi[j], row[j])
		}
	}

	amp := 0.0
	for j := range lo {
		amp = math.Max(amp, (hi[j]-lo[j])/2)
	}
	return amp
}

func (h *Hunting) Reset() {
	h.times = h.times[:0]
	h.lateral = h.lateral[:0]
}
