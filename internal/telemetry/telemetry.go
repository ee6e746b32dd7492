// Package telemetry records solver statistics as OpenTelemetry metrics.
//
// Instruments come from the global meter provider, which is a no-op unless
// the embedding program installs one.
package telemetry

import (
	"context"
	"fmt"
	"time"

	"github.com/san-kum/railsim/internal/dynamo"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/san-kum/railsim/internal/telemetry"

func meter() metric.Meter {
	return otel.Meter(instrumentationName)
}

// Solver holds the counters updated once per solve.
type Solver struct {
	solves   metric.Int64Counter
	failures metric.Int64Counter
	steps    metric.Int64Counter
	rejected metric.Int64Counter
	funEvals metric.Int64Counter
	jacEvals metric.Int64Counter
	duration metric.Float64Histogram
}

// NewSolver creates the instruments on m, or on the global meter when m is
// nil.
func NewSolver(m metric.Meter) (*Solver, error) {
	if m == nil {
		m = meter()
	}
	s := &Solver{}

	counters := []struct {
		dst  *metric.Int64Counter
		name string
		desc string
	}{
		{&s.solves, "railsim.solves", "Solves started"},
		{&s.failures, "railsim.solves.failed", "Solves aborted with a non-zero status"},
		{&s.steps, "railsim.steps", "Accepted steps"},
		{&s.rejected, "railsim.steps.rejected", "Rejected steps"},
		{&s.funEvals, "railsim.evaluations.rhs", "Right-hand side evaluations"},
		{&s.jacEvals, "railsim.evaluations.jacobian", "Jacobian evaluations"},
	}
	for _, c := range counters {
		var err error
		*c.dst, err = m.Int64Counter(c.name, metric.WithDescription(c.desc))
		if err != nil {
			return nil, fmt.Errorf("creating %s counter: %w", c.name, err)
		}
	}

	var err error
	s.duration, err = m.Float64Histogram(
		"railsim.solve.duration",
		metric.WithDescription("Wall time of a solve"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating duration histogram: %w", err)
	}
	return s, nil
}

// Record adds the statistics of a finished solve.
func (s *Solver) Record(ctx context.Context, solver string, st dynamo.Stats, code dynamo.Code, elapsed time.Duration) {
	if s == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("solver", solver))

	s.solves.Add(ctx, 1, attrs)
	if code != dynamo.CodeSuccess {
		s.failures.Add(ctx, 1, metric.WithAttributes(
			attribute.String("solver", solver),
			attribute.String("code", code.String()),
		))
	}
	s.steps.Add(ctx, int64(st.Steps), attrs)
	s.rejected.Add(ctx, int64(st.Rejected), attrs)
	s.funEvals.Add(ctx, int64(st.FunEvals), attrs)
	s.jacEvals.Add(ctx, int64(st.JacEvals), attrs)
	s.duration.Record(ctx, elapsed.Seconds(), attrs)
}
