package dynamo

import (
	"errors"
	"fmt"
	"strings"
)

// Code is the integer status reported for a solve call.
type Code int

const (
	CodeSuccess Code = iota
	CodeDomain
	CodeInvalidArgument
	CodeConfiguration
	CodeNoConvergence
	CodeStepTooSmall
	CodeMaxSteps
	CodeSingular
)

func (c Code) String() string {
	switch c {
	case CodeSuccess:
		return "success"
	case CodeDomain:
		return "domain-error"
	case CodeInvalidArgument:
		return "invalid-argument"
	case CodeConfiguration:
		return "configuration-error"
	case CodeNoConvergence:
		return "no-convergence"
	case CodeStepTooSmall:
		return "step-too-small"
	case CodeMaxSteps:
		return "max-steps"
	case CodeSingular:
		return "singular-matrix"
	default:
		return fmt.Sprintf("code(%d)", int(c))
	}
}

var (
	// ErrInvalidState indicates a state vector with invalid dimensions or values.
	ErrInvalidState = errors.New("dynamo: invalid state (NaN or Inf detected)")

	// ErrDerailment indicates a wheelset left the tabulated contact range.
	ErrDerailment = errors.New("dynamo: lateral displacement beyond contact table range")

	// ErrNaNForce indicates a contact force or torque evaluated to NaN.
	ErrNaNForce = errors.New("dynamo: NaN contact force")

	// ErrDiverged indicates a suspension force blew up.
	ErrDiverged = errors.New("dynamo: connector force diverged")

	// ErrStepTooSmall indicates adaptive timestep became too small.
	ErrStepTooSmall = errors.New("dynamo: adaptive timestep below minimum")

	// ErrNoConvergence indicates the Newton iteration of an implicit stepper failed.
	ErrNoConvergence = errors.New("dynamo: implicit iteration did not converge")

	// ErrMaxSteps indicates the step budget of a solve was exhausted.
	ErrMaxSteps = errors.New("dynamo: maximum number of steps exceeded")

	// ErrSingular indicates an iteration matrix could not be factorized.
	ErrSingular = errors.New("dynamo: singular iteration matrix")

	// ErrDimensionMismatch indicates mismatched state/system dimensions.
	ErrDimensionMismatch = errors.New("dynamo: dimension mismatch between state and system")
)

// ConfigurationError reports a malformed tree, table or scenario. It is
// fatal at setup; no solve is attempted.
type ConfigurationError struct {
	Field   string
	Message string
}

func (e *ConfigurationError) Error() string {
	if e.Field == "" {
		return "configuration: " + e.Message
	}
	return fmt.Sprintf("configuration: %s: %s", e.Field, e.Message)
}

// Configf builds a ConfigurationError.
func Configf(field, format string, args ...any) error {
	return &ConfigurationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// DomainError aborts the current evaluation and carries the offending
// component state.
type DomainError struct {
	Component string
	Time      float64
	DOF       []string
	Values    []float64
	Wrapped   error
}

func (e *DomainError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s (component %s, t=%.6g)", e.Wrapped.Error(), e.Component, e.Time)
	for i, v := range e.Values {
		name := fmt.Sprintf("y%d", i)
		if i < len(e.DOF) {
			name = e.DOF[i]
		}
		fmt.Fprintf(&b, " %s=%.6g", name, v)
	}
	return b.String()
}

func (e *DomainError) Unwrap() error {
	return e.Wrapped
}

// Stats are the accumulated evaluation counters of a stepper.
type Stats struct {
	Steps    int     `json:"steps"`
	Rejected int     `json:"rejected"`
	FunEvals int     `json:"fevals"`
	JacEvals int     `json:"jevals"`
	Decomps  int     `json:"decomps"`
	LastStep float64 `json:"last_step"`
	NextStep float64 `json:"next_step"`
	Time     float64 `json:"time"`
}

// StepperError aborts the current solve.
type StepperError struct {
	Stepper string
	Code    Code
	Time    float64
	Step    float64
	Stats   Stats
	Wrapped error
}

func (e *StepperError) Error() string {
	return fmt.Sprintf("%s: %s at t=%.6g h=%.3g (steps=%d rejected=%d fevals=%d jevals=%d): %v",
		e.Stepper, e.Code, e.Time, e.Step, e.Stats.Steps, e.Stats.Rejected, e.Stats.FunEvals, e.Stats.JacEvals, e.Wrapped)
}

func (e *StepperError) Unwrap() error {
	return e.Wrapped
}

// CodeOf maps an error chain to the status reported for a solve.
func CodeOf(err error) Code {
	if err == nil {
		return CodeSuccess
	}
	var se *StepperError
	if errors.As(err, &se) {
		if se.Code == CodeSuccess {
			return CodeOf(se.Wrapped)
		}
		return se.Code
	}
	var de *DomainError
	if errors.As(err, &de) {
		return CodeDomain
	}
	var ce *ConfigurationError
	if errors.As(err, &ce) {
		return CodeConfiguration
	}
	switch {
	case errors.Is(err, ErrDimensionMismatch), errors.Is(err, ErrInvalidState):
		return CodeInvalidArgument
	case errors.Is(err, ErrNoConvergence):
		return CodeNoConvergence
	case errors.Is(err, ErrStepTooSmall):
		return CodeStepTooSmall
	case errors.Is(err, ErrMaxSteps):
		return CodeMaxSteps
	case errors.Is(err, ErrSingular):
		return CodeSingular
	case errors.Is(err, ErrDerailment), errors.Is(err, ErrNaNForce), errors.Is(err, ErrDiverged):
		return CodeDomain
	}
	return CodeInvalidArgument
}
