package scenario

import (
	"context"
	"errors"
	"slices"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/san-kum/railsim/internal/contact"
	"github.com/san-kum/railsim/internal/dynamo"
	"github.com/san-kum/railsim/internal/integrators"
	"github.com/san-kum/railsim/internal/sim"
	"github.com/san-kum/railsim/internal/solution"
	"github.com/san-kum/railsim/internal/track"
	"github.com/san-kum/railsim/internal/vehicle"
)

type call struct {
	y0     []float64
	t0, tf float64
	start  track.Point
	end    track.Point
}

// fakeSolver adds one to every coordinate and fails on call failAt.
type fakeSolver struct {
	calls  []call
	failAt int
}

func (f *fakeSolver) Solve(ctx context.Context, m sim.Model, sol *solution.Solution, y0 []float64, t0, tf float64) (*sim.Result, error) {
	f.calls = append(f.calls, call{
		y0:    slices.Clone(y0),
		t0:    t0,
		tf:    tf,
		start: m.Conditions().At(t0),
		end:   m.Conditions().At(tf),
	})
	res := &sim.Result{Sim: sol.Begin(), T: tf, Y: slices.Clone(y0)}
	if len(f.calls) == f.failAt {
		res.T = (t0 + tf) / 2
		res.Code = dynamo.CodeDomain
		return res, &dynamo.DomainError{Component: "ws1", Wrapped: dynamo.ErrDerailment}
	}
	for i := range res.Y {
		res.Y[i]++
	}
	return res, nil
}

type recorder struct {
	started  []int
	finished []Outcome
}

func (r *recorder) PointStarted(p Point, total int) { r.started = append(r.started, p.Index) }
func (r *recorder) PointFinished(o Outcome)         { r.finished = append(r.finished, o) }

func toyModel() *vehicle.Model {
	tab, err := contact.DefaultConicalProfile().Generate(contact.Linear)
	Expect(err).NotTo(HaveOccurred())
	m, err := vehicle.Build(vehicle.ToyDescription(), map[string]*contact.Table{vehicle.DefaultTable: tab}, track.New())
	Expect(err).NotTo(HaveOccurred())
	Expect(m.Calibrate()).To(Succeed())
	return m
}

func mustPlan(d Declaration) *Plan {
	p, err := NewPlan(d)
	Expect(err).NotTo(HaveOccurred())
	return p
}

var sweep = Declaration{
	Mode:     "bifurcation",
	Speed:    Range{Start: 10, End: 20, Step: 10},
	Radius:   Range{Start: 1000, End: 2000, Step: 1000},
	Cant:     Fixed(0.05),
	Duration: 0.5,
}

var _ = Describe("Driver", func() {
	var (
		model *vehicle.Model
		y0    []float64
	)

	BeforeEach(func() {
		model = toyModel()
		y0 = model.InitialState()
		y0[vehicle.IdxZ] = 1e-3
	})

	It("restarts every point from y0 with SV_ALL", func() {
		d := sweep
		d.Start = "all"
		solver := &fakeSolver{}
		drv := NewDriver(mustPlan(d), model, solver, solution.New(false))

		report, err := drv.Run(context.Background(), y0)
		Expect(err).NotTo(HaveOccurred())
		Expect(solver.calls).To(HaveLen(4))
		for _, c := range solver.calls {
			Expect(c.y0).To(Equal(y0))
			Expect(c.t0).To(BeZero())
			Expect(c.tf).To(Equal(0.5))
		}
		Expect(report.Completed()).To(Equal(4))
		Expect(report.Y[vehicle.IdxZ]).To(Equal(1e-3 + 1))
		Expect(drv.State()).To(Equal(StateDone))
	})

	It("continues from the previous final state with SV_FIRST", func() {
		solver := &fakeSolver{}
		drv := NewDriver(mustPlan(sweep), model, solver, solution.New(false))

		report, err := drv.Run(context.Background(), y0)
		Expect(err).NotTo(HaveOccurred())
		Expect(solver.calls).To(HaveLen(4))
		Expect(solver.calls[0].y0).To(Equal(y0))
		for i := 1; i < 4; i++ {
			Expect(solver.calls[i].y0[vehicle.IdxZ]).To(BeNumerically("~", 1e-3+float64(i), 1e-12))
		}
		Expect(report.Y[vehicle.IdxZ]).To(BeNumerically("~", 1e-3+4, 1e-12))
	})

	It("sets the operating point of every solve", func() {
		solver := &fakeSolver{}
		drv := NewDriver(mustPlan(sweep), model, solver, solution.New(false))
		_, err := drv.Run(context.Background(), y0)
		Expect(err).NotTo(HaveOccurred())

		want := [][2]float64{{10, 1000}, {10, 2000}, {20, 1000}, {20, 2000}}
		for i, c := range solver.calls {
			Expect(c.start.Speed).To(Equal(want[i][0]))
			Expect(c.start.Radius).To(Equal(want[i][1]))
			Expect(c.start.Cant).To(Equal(0.05))
		}
	})

	It("aborts the rest of the sweep on the first failure", func() {
		solver := &fakeSolver{failAt: 2}
		rec := &recorder{}
		sol := solution.New(true)
		drv := NewDriver(mustPlan(sweep), model, solver, sol)
		drv.AddListener(rec)

		report, err := drv.Run(context.Background(), y0)
		Expect(err).To(HaveOccurred())
		var de *dynamo.DomainError
		Expect(errors.As(err, &de)).To(BeTrue())
		Expect(report.Code).To(Equal(dynamo.CodeDomain))
		Expect(solver.calls).To(HaveLen(2))
		Expect(report.Outcomes).To(HaveLen(2))
		Expect(report.Completed()).To(Equal(1))
		Expect(report.Total).To(Equal(4))
		Expect(rec.started).To(Equal([]int{0, 1}))
		Expect(rec.finished[1].Err).To(HaveOccurred())
		Expect(sol.Sim()).To(Equal(1))
		Expect(drv.State()).To(Equal(StateDone))
	})

	It("refuses to run twice", func() {
		drv := NewDriver(mustPlan(sweep), model, &fakeSolver{}, solution.New(false))
		_, err := drv.Run(context.Background(), y0)
		Expect(err).NotTo(HaveOccurred())
		_, err = drv.Run(context.Background(), y0)
		Expect(err).To(HaveOccurred())
	})

	It("rejects an initial state of the wrong size", func() {
		drv := NewDriver(mustPlan(sweep), model, &fakeSolver{}, solution.New(false))
		_, err := drv.Run(context.Background(), y0[:3])
		Expect(err).To(MatchError(dynamo.ErrDimensionMismatch))
		Expect(drv.State()).To(Equal(StateIdle))
	})

	It("covers the transient ramp before the main solve", func() {
		solver := &fakeSolver{}
		plan := mustPlan(Declaration{
			Speed:      Fixed(20),
			Radius:     Fixed(800),
			Cant:       Fixed(0.1),
			Duration:   3,
			RadiusRamp: 2,
			CantRamp:   1,
		})
		drv := NewDriver(plan, model, solver, solution.New(false))

		report, err := drv.Run(context.Background(), y0)
		Expect(err).NotTo(HaveOccurred())
		Expect(solver.calls).To(HaveLen(2))

		ramp, main := solver.calls[0], solver.calls[1]
		Expect(ramp.t0).To(BeZero())
		Expect(ramp.tf).To(Equal(2.0))
		Expect(ramp.start.Curvature).To(BeZero())
		Expect(ramp.start.Cant).To(BeZero())
		Expect(ramp.end.Curvature).To(BeNumerically("~", 1.0/800, 1e-15))

		Expect(main.t0).To(Equal(2.0))
		Expect(main.tf).To(Equal(5.0))
		Expect(main.y0[vehicle.IdxZ]).To(Equal(1e-3 + 1))
		Expect(main.start.Cant).To(Equal(0.1))
		Expect(report.Outcomes[0].Ramp).To(BeTrue())
		Expect(report.Completed()).To(Equal(1))
	})

	It("ramps the speed and carries the state in ramping mode", func() {
		solver := &fakeSolver{}
		plan := mustPlan(Declaration{
			Mode:   "ramping",
			Speed:  Range{Start: 40, End: 30, Step: -2},
			Radius: Range{Start: 1000, End: 2000, Step: 1000},
			Cant:   Fixed(0),
		})
		drv := NewDriver(plan, model, solver, solution.New(false))

		_, err := drv.Run(context.Background(), y0)
		Expect(err).NotTo(HaveOccurred())
		Expect(solver.calls).To(HaveLen(2))
		for i, c := range solver.calls {
			Expect(c.tf).To(Equal(5.0))
			Expect(c.start.Speed).To(Equal(40.0))
			Expect(c.end.Speed).To(BeNumerically("~", 30, 1e-12))
			Expect(c.y0[vehicle.IdxZ]).To(Equal(1e-3 + float64(i)))
		}
	})
})

var _ = Describe("Toy vehicle", func() {
	newRunner := func() *sim.Runner {
		stepper, err := integrators.NewSDIRK(integrators.Tolerance{Abs: 1e-8, Rel: 1e-6}, "4")
		Expect(err).NotTo(HaveOccurred())
		return sim.New(stepper, sim.Options{SampleInterval: 0.05})
	}

	It("settles at the static preload equilibrium", func() {
		model := toyModel()
		sol := solution.New(true)
		plan := mustPlan(Declaration{Mode: "transient", Duration: 1})
		drv := NewDriver(plan, model, newRunner(), sol)

		report, err := drv.Run(context.Background(), model.InitialState())
		Expect(err).NotTo(HaveOccurred())
		Expect(report.Code).To(Equal(dynamo.CodeSuccess))

		res := report.Outcomes[0].Result
		Expect(res.T).To(Equal(1.0))
		for i, v := range report.Y {
			Expect(v).To(BeNumerically("~", 0, 1e-8), "coordinate %s", model.DOFNames()[i])
		}

		last, ok := sol.Last()
		Expect(ok).To(BeTrue())
		ws, ok := last.Component("ws")
		Expect(ok).To(BeTrue())
		Expect(ws.Contact).NotTo(BeNil())
		Expect(ws.Contact.Margin).To(BeNumerically(">", 0))
	})

	It("resets to y0 for SV_ALL and continues for SV_FIRST", func() {
		d := Declaration{
			Mode:     "bifurcation",
			Speed:    Fixed(10),
			Radius:   Range{Start: 0, End: 2000, Step: 1000},
			Duration: 0.2,
		}
		y0 := make([]float64, 26)
		y0[vehicle.IdxZ] = 1e-3

		for _, policy := range []string{"all", "first"} {
			d.Start = policy
			model := toyModel()
			sol := solution.New(true)
			drv := NewDriver(mustPlan(d), model, newRunner(), sol)
			_, err := drv.Run(context.Background(), y0)
			Expect(err).NotTo(HaveOccurred())
			Expect(sol.Sim()).To(Equal(2))

			for k := 0; k <= 2; k++ {
				first := sol.Simulation(k)[0].Status[0].Values
				if policy == "all" || k == 0 {
					Expect(first).To(Equal(y0[:8]), "policy %s point %d", policy, k)
					continue
				}
				prev := sol.Simulation(k - 1)
				Expect(first).To(Equal(prev[len(prev)-1].Status[0].Values), "policy %s point %d", policy, k)
				Expect(first).NotTo(Equal(y0[:8]))
			}
		}
	})
})
