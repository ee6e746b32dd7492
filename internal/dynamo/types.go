package dynamo

import (
	"fmt"
	"math"
)

// State is the flattened state vector of a model.
type State []float64

func (s State) IsValid() bool {
	for _, v := range s {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// Window is a contiguous index range of the state vector owned by one
// component. It replaces raw sub-slice aliasing with an explicit offset.
type Window struct {
	Start int
	Len   int
}

// End returns the first index past the window.
func (w Window) End() int { return w.Start + w.Len }

// Contains reports whether global index i lies inside the window.
func (w Window) Contains(i int) bool { return i >= w.Start && i < w.End() }

// Overlaps reports whether two windows share at least one index.
func (w Window) Overlaps(o Window) bool {
	return w.Start < o.End() && o.Start < w.End()
}

// Slice returns the bounds-checked view of s covered by the window.
func (w Window) Slice(s []float64) []float64 {
	if w.Start < 0 || w.End() > len(s) {
		panic(fmt.Sprintf("dynamo: window [%d,%d) out of range for length %d", w.Start, w.End(), len(s)))
	}
	return s[w.Start:w.End():w.End()]
}

// Indices lists the global indices covered by the window.
func (w Window) Indices() []int {
	idx := make([]int, w.Len)
	for i := range idx {
		idx[i] = w.Start + i
	}
	return idx
}

func (w Window) String() string {
	return fmt.Sprintf("[%d,%d)", w.Start, w.End())
}
