// Package solution collects the output of one or more solves and streams it
// to sinks.
//
// Entries carry the component status recomputed from y at report time, not
// the raw state vector.
package solution

import (
	"errors"
	"fmt"

	"github.com/san-kum/railsim/internal/track"
	"github.com/san-kum/railsim/internal/vehicle"
	"gonum.org/v1/gonum/mat"
)

// Entry is one reported sample.
type Entry struct {
	Sim    int
	T      float64
	H      float64
	Point  track.Point
	Status []vehicle.Status
}

// Component returns the status of the named component.
func (e Entry) Component(name string) (vehicle.Status, bool) {
	for _, s := range e.Status {
		if s.Name == name {
			return s, true
		}
	}
	return vehicle.Status{}, false
}

// Jacobian is a diagnostic snapshot of ∂f/∂y.
type Jacobian struct {
	Sim int
	T   float64
	J   *mat.Dense
}

// Sink receives entries in the order they are appended.
type Sink interface {
	WriteEntry(e Entry) error
	WriteJacobian(j Jacobian) error
}

// Solution accumulates the samples of a sequence of solves. Each solve
// opens a new simulation index with Begin.
type Solution struct {
	sim     int
	keep    bool
	entries []Entry
	jacs    int
	sinks   []Sink
}

// New returns a solution that forwards to sinks. When keep is true the
// entries are also retained in memory.
func New(keep bool, sinks ...Sink) *Solution {
	return &Solution{sim: -1, keep: keep, sinks: sinks}
}

// Begin starts the next simulation and returns its index.
func (s *Solution) Begin() int {
	s.sim++
	return s.sim
}

// Sim returns the index of the current simulation, -1 before the first Begin.
func (s *Solution) Sim() int { return s.sim }

func (s *Solution) Append(e Entry) error {
	if s.sim < 0 {
		return errors.New("solution: append before Begin")
	}
	e.Sim = s.sim
	if s.keep {
		s.entries = append(s.entries, e)
	}
	for _, sink := range s.sinks {
		if err := sink.WriteEntry(e); err != nil {
			return fmt.Errorf("solution: write entry: %w", err)
		}
	}
	return nil
}

func (s *Solution) AppendJacobian(j Jacobian) error {
	if s.sim < 0 {
		return errors.New("solution: append before Begin")
	}
	j.Sim = s.sim
	s.jacs++
	for _, sink := range s.sinks {
		if err := sink.WriteJacobian(j); err != nil {
			return fmt.Errorf("solution: write jacobian: %w", err)
		}
	}
	return nil
}

// Entries returns the retained entries.
func (s *Solution) Entries() []Entry { return s.entries }

// Jacobians returns the number of snapshots appended.
func (s *Solution) Jacobians() int { return s.jacs }

// Simulation returns the retained entries of simulation sim.
func (s *Solution) Simulation(sim int) []Entry {
	var out []Entry
	for _, e := range s.entries {
		if e.Sim == sim {
			out = append(out, e)
		}
	}
	return out
}

// Last returns the last retained entry.
func (s *Solution) Last() (Entry, bool) {
	if len(s.entries) == 0 {
		return Entry{}, false
	}
	return s.entries[len(s.entries)-1], true
}
