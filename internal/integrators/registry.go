package integrators

import (
	"fmt"
	"sort"
	"strings"
)

// Spec selects a stepper by name. Variant picks a sub-method where the
// stepper has several (the sdirk tableaus, the bsimp column count).
type Spec struct {
	Name      string    `yaml:"name"`
	Variant   string    `yaml:"variant,omitempty"`
	Tolerance Tolerance `yaml:"tolerance"`
}

func (s Spec) String() string {
	if s.Variant == "" {
		return s.Name
	}
	return s.Name + ":" + s.Variant
}

// ParseSpec splits "name:variant".
func ParseSpec(s string) Spec {
	name, variant, _ := strings.Cut(s, ":")
	return Spec{Name: strings.ToLower(strings.TrimSpace(name)), Variant: strings.TrimSpace(variant)}
}

type Registry struct {
	steppers map[string]func(Spec) (Stepper, error)
}

func NewRegistry() *Registry {
	r := &Registry{steppers: make(map[string]func(Spec) (Stepper, error))}

	r.steppers["rk4"] = func(s Spec) (Stepper, error) { return NewRK4(s.Tolerance), nil }
	r.steppers["rk45"] = func(s Spec) (Stepper, error) { return NewRK45(s.Tolerance), nil }
	r.steppers["rk4imp"] = func(s Spec) (Stepper, error) { return NewRK4Imp(s.Tolerance), nil }
	r.steppers["bsimp"] = func(s Spec) (Stepper, error) {
		k := 0
		if s.Variant != "" {
			if _, err := fmt.Sscanf(s.Variant, "%d", &k); err != nil {
				return nil, fmt.Errorf("bsimp variant %q: want a column count", s.Variant)
			}
		}
		return NewBSImp(s.Tolerance, k), nil
	}
	r.steppers["bdf"] = func(s Spec) (Stepper, error) { return NewBDF(s.Tolerance), nil }
	r.steppers["sdirk"] = func(s Spec) (Stepper, error) { return NewSDIRK(s.Tolerance, s.Variant) }
	for _, v := range SDIRKVariants {
		r.steppers[v] = func(s Spec) (Stepper, error) { return NewSDIRK(s.Tolerance, v) }
	}

	return r
}

// New builds the stepper selected by s.
func (r *Registry) New(s Spec) (Stepper, error) {
	fn, ok := r.steppers[strings.ToLower(s.Name)]
	if !ok {
		return nil, fmt.Errorf("unknown solver: %s", s.Name)
	}
	return fn(s)
}

func (r *Registry) List() []string {
	names := make([]string, 0, len(r.steppers))
	for name := range r.steppers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
