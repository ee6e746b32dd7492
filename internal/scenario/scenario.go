// Package scenario runs sequences of related solves over operating points
// and decides the initial state of each.
//
// Three modes are supported. Transient solves one point, optionally after a
// linear ramp of curvature and cant. Bifurcation sweeps speed × radius × cant
// and either continues from the previous point's final state or restarts
// from the initial state. Ramping makes the speed a linear function of time
// and sweeps radius × cant, always continuing from the previous state.
//
// Points are solved strictly in order and the first failure aborts the rest
// of the sweep; output already written is kept.
package scenario

import (
	"fmt"
	"math"
	"strings"

	"github.com/san-kum/railsim/internal/dynamo"
)

type Mode int

const (
	ModeTransient Mode = iota
	ModeBifurcation
	ModeRamping
)

var modeNames = [...]string{"transient", "bifurcation", "ramping"}

func (m Mode) String() string {
	if int(m) < len(modeNames) {
		return modeNames[m]
	}
	return fmt.Sprintf("mode(%d)", int(m))
}

func ParseMode(s string) (Mode, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return ModeTransient, nil
	}
	for i, n := range modeNames {
		if n == s {
			return Mode(i), nil
		}
	}
	return 0, dynamo.Configf("mode", "unknown scenario mode %q", s)
}

// StartPolicy selects the initial state of each bifurcation point.
type StartPolicy int

const (
	// StartFirst continues every point from the previous point's last
	// accepted state. Only the first point starts from y0.
	StartFirst StartPolicy = iota
	// StartAll restarts every point from y0.
	StartAll
)

func (p StartPolicy) String() string {
	if p == StartAll {
		return "all"
	}
	return "first"
}

func ParseStartPolicy(s string) (StartPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "first", "sv_first":
		return StartFirst, nil
	case "all", "sv_all":
		return StartAll, nil
	}
	return 0, dynamo.Configf("start_values", "unknown start policy %q", s)
}

// Declaration is the scenario as written in a run file.
type Declaration struct {
	Mode   string `yaml:"mode"`
	Start  string `yaml:"start_values,omitempty"`
	Speed  Range  `yaml:"speed"`
	Radius Range  `yaml:"radius"`
	Cant   Range  `yaml:"cant"`

	// Duration is the simulated time of each point. In ramping mode it is
	// only used when the speed range is empty or the coefficient is zero.
	Duration float64 `yaml:"duration"`

	// RadiusRamp and CantRamp are the transient ramp times.
	RadiusRamp float64 `yaml:"radius_ramp,omitempty"`
	CantRamp   float64 `yaml:"cant_ramp,omitempty"`
}

// Point is one operating point of a plan.
type Point struct {
	Index  int
	Speed  float64
	Radius float64
	Cant   float64

	// SpeedRamp is the speed coefficient in ramping mode.
	SpeedRamp float64
	Duration  float64
}

func (p Point) String() string {
	s := fmt.Sprintf("#%d v=%.3f R=%.1f cant=%.4f", p.Index, p.Speed, p.Radius, p.Cant)
	if p.SpeedRamp != 0 {
		s += fmt.Sprintf(" dv/dt=%.3f", p.SpeedRamp)
	}
	return s
}

// Plan is a validated declaration.
type Plan struct {
	Mode       Mode
	Policy     StartPolicy
	Points     []Point
	RadiusRamp float64
	CantRamp   float64
}

// RampDuration is the length of the transient pre-solve, zero when there is
// none.
func (p *Plan) RampDuration() float64 {
	if p.Mode != ModeTransient {
		return 0
	}
	return math.Max(p.RadiusRamp, p.CantRamp)
}

// NewPlan validates d and expands its axes.
func NewPlan(d Declaration) (*Plan, error) {
	mode, err := ParseMode(d.Mode)
	if err != nil {
		return nil, err
	}
	policy, err := ParseStartPolicy(d.Start)
	if err != nil {
		return nil, err
	}
	if d.Duration < 0 || math.IsNaN(d.Duration) || math.IsInf(d.Duration, 0) {
		return nil, dynamo.Configf("duration", "must be a finite non-negative time, got %g", d.Duration)
	}
	if d.RadiusRamp < 0 || d.CantRamp < 0 {
		return nil, dynamo.Configf("ramp", "ramp times must not be negative")
	}
	if mode != ModeTransient && (d.RadiusRamp > 0 || d.CantRamp > 0) {
		return nil, dynamo.Configf("ramp", "transient ramps only apply to transient mode")
	}

	p := &Plan{Mode: mode, Policy: policy, RadiusRamp: d.RadiusRamp, CantRamp: d.CantRamp}
	switch mode {
	case ModeTransient:
		err = p.transient(d)
	case ModeBifurcation:
		err = p.bifurcation(d)
	case ModeRamping:
		err = p.ramping(d)
	}
	if err != nil {
		return nil, err
	}
	for i := range p.Points {
		p.Points[i].Index = i
	}
	return p, nil
}

func (p *Plan) transient(d Declaration) error {
	if d.Duration <= 0 {
		return dynamo.Configf("duration", "must be positive")
	}
	p.Points = []Point{{Speed: d.Speed.Start, Radius: d.Radius.Start, Cant: d.Cant.Start, Duration: d.Duration}}
	return nil
}

func (p *Plan) bifurcation(d Declaration) error {
	if d.Duration <= 0 {
		return dynamo.Configf("duration", "must be positive")
	}
	speeds, err := d.Speed.Values("speed")
	if err != nil {
		return err
	}
	radii, cants, err := trackAxes(d)
	if err != nil {
		return err
	}
	for _, v := range speeds {
		for _, r := range radii {
			for _, c := range cants {
				p.Points = append(p.Points, Point{Speed: v, Radius: r, Cant: c, Duration: d.Duration})
			}
		}
	}
	return nil
}

// ramping reads the speed step as the ramp coefficient.
func (p *Plan) ramping(d Declaration) error {
	coeff := d.Speed.Step
	duration := d.Duration
	if dir := d.Speed.Direction(); dir != 0 && coeff != 0 {
		if dir*coeff < 0 {
			return dynamo.Configf("speed.step", "coefficient %g does not move from %g towards %g", coeff, d.Speed.Start, d.Speed.End)
		}
		duration = (d.Speed.End - d.Speed.Start) / coeff
	}
	if duration <= 0 {
		return dynamo.Configf("duration", "must be positive")
	}
	radii, cants, err := trackAxes(d)
	if err != nil {
		return err
	}
	for _, r := range radii {
		for _, c := range cants {
			p.Points = append(p.Points, Point{
				Speed:     d.Speed.Start,
				Radius:    r,
				Cant:      c,
				SpeedRamp: coeff,
				Duration:  duration,
			})
		}
	}
	return nil
}

func trackAxes(d Declaration) (radii, cants []float64, err error) {
	if radii, err = d.Radius.Values("radius"); err != nil {
		return nil, nil, err
	}
	if cants, err = d.Cant.Values("cant"); err != nil {
		return nil, nil, err
	}
	return radii, cants, nil
}
