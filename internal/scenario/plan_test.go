package scenario

import (
	"errors"
	"math"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/san-kum/railsim/internal/dynamo"
)

func isConfigurationError(err error) bool {
	var ce *dynamo.ConfigurationError
	return errors.As(err, &ce)
}

var _ = Describe("Range", func() {
	DescribeTable("visits every point once",
		func(r Range, want []float64) {
			got, err := r.Values("axis")
			Expect(err).NotTo(HaveOccurred())
			Expect(got).To(HaveLen(len(want)))
			for i := range want {
				Expect(got[i]).To(BeNumerically("~", want[i], 1e-12))
			}
		},
		Entry("zero length", Range{Start: 30, End: 30, Step: 5}, []float64{30}),
		Entry("zero length without step", Fixed(1200), []float64{1200}),
		Entry("exact multiple", Range{Start: 0, End: 1, Step: 0.5}, []float64{0, 0.5, 1}),
		Entry("last point clamped", Range{Start: 0, End: 1, Step: 0.3}, []float64{0, 0.3, 0.6, 0.9, 1}),
		Entry("descending", Range{Start: 40, End: 10, Step: 10}, []float64{40, 30, 20, 10}),
		Entry("negative step ignored", Range{Start: 10, End: 20, Step: -5}, []float64{10, 15, 20}),
		Entry("decimal step", Range{Start: 0, End: 0.3, Step: 0.1}, []float64{0, 0.1, 0.2, 0.3}),
		Entry("step longer than range", Range{Start: 0, End: 1, Step: 5}, []float64{0, 1}),
	)

	It("visits ceil((b-a)/S)+1 points", func() {
		for _, c := range []struct{ a, b, s float64 }{{10, 30, 5}, {0, 1, 0.3}, {0, 0.1, 0.04}, {100, 101, 0.25}} {
			got, err := Range{Start: c.a, End: c.b, Step: c.s}.Values("axis")
			Expect(err).NotTo(HaveOccurred())
			want := int(math.Ceil((c.b-c.a)/c.s)) + 1
			Expect(got).To(HaveLen(want), "range %+v", c)
		}
	})

	It("rejects a zero step over a non-empty range", func() {
		_, err := Range{Start: 0, End: 1}.Values("speed")
		Expect(isConfigurationError(err)).To(BeTrue())
		Expect(err.Error()).To(ContainSubstring("speed"))
	})

	It("rejects non-finite bounds and huge axes", func() {
		_, err := Range{Start: 0, End: 1e12, Step: 1}.Values("speed")
		Expect(isConfigurationError(err)).To(BeTrue())

		_, err = Range{Start: math.NaN(), End: 1, Step: 1}.Values("speed")
		Expect(isConfigurationError(err)).To(BeTrue())
	})
})

var _ = Describe("Plan", func() {
	It("parses modes and start policies", func() {
		m, err := ParseMode("Bifurcation")
		Expect(err).NotTo(HaveOccurred())
		Expect(m).To(Equal(ModeBifurcation))

		m, err = ParseMode("")
		Expect(err).NotTo(HaveOccurred())
		Expect(m).To(Equal(ModeTransient))

		_, err = ParseMode("spiral")
		Expect(isConfigurationError(err)).To(BeTrue())

		p, err := ParseStartPolicy("SV_ALL")
		Expect(err).NotTo(HaveOccurred())
		Expect(p).To(Equal(StartAll))
		Expect(p.String()).To(Equal("all"))

		_, err = ParseStartPolicy("some")
		Expect(err).To(HaveOccurred())
	})

	It("nests speed outermost and cant innermost", func() {
		plan, err := NewPlan(Declaration{
			Mode:     "bifurcation",
			Speed:    Range{Start: 10, End: 30, Step: 5},
			Radius:   Fixed(1200),
			Cant:     Range{Start: 0, End: 0.1, Step: 0.04},
			Duration: 2,
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(plan.Points).To(HaveLen(5 * 1 * 4))
		Expect(plan.Points[0]).To(Equal(Point{Index: 0, Speed: 10, Radius: 1200, Cant: 0, Duration: 2}))
		Expect(plan.Points[3].Cant).To(Equal(0.1))
		Expect(plan.Points[4].Speed).To(Equal(15.0))
		Expect(plan.Points[19].Index).To(Equal(19))
		Expect(plan.RampDuration()).To(BeZero())
	})

	It("reads the speed step as ramp coefficient in ramping mode", func() {
		plan, err := NewPlan(Declaration{
			Mode:   "ramping",
			Speed:  Range{Start: 60, End: 20, Step: -2},
			Radius: Range{Start: 1000, End: 3000, Step: 1000},
			Cant:   Fixed(0.1),
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(plan.Points).To(HaveLen(3))
		for _, p := range plan.Points {
			Expect(p.Speed).To(Equal(60.0))
			Expect(p.SpeedRamp).To(Equal(-2.0))
			Expect(p.Duration).To(Equal(20.0))
		}

		_, err = NewPlan(Declaration{Mode: "ramping", Speed: Range{Start: 60, End: 20, Step: 2}})
		Expect(isConfigurationError(err)).To(BeTrue())

		plan, err = NewPlan(Declaration{Mode: "ramping", Speed: Range{Start: 60, End: 60, Step: 0}, Duration: 3})
		Expect(err).NotTo(HaveOccurred())
		Expect(plan.Points[0].Duration).To(Equal(3.0))
	})

	It("uses the longer ramp as transient duration", func() {
		plan, err := NewPlan(Declaration{
			Speed:      Fixed(20),
			Radius:     Fixed(800),
			Cant:       Fixed(0.1),
			Duration:   5,
			RadiusRamp: 1.5,
			CantRamp:   2.5,
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(plan.Mode).To(Equal(ModeTransient))
		Expect(plan.Points).To(HaveLen(1))
		Expect(plan.RampDuration()).To(Equal(2.5))
	})

	DescribeTable("rejects malformed declarations",
		func(d Declaration) {
			_, err := NewPlan(d)
			Expect(isConfigurationError(err)).To(BeTrue(), "%v", err)
		},
		Entry("no duration", Declaration{Mode: "transient"}),
		Entry("negative duration", Declaration{Mode: "bifurcation", Duration: -1}),
		Entry("ramps outside transient", Declaration{Mode: "bifurcation", Duration: 1, CantRamp: 1}),
		Entry("negative ramp", Declaration{Duration: 1, RadiusRamp: -1}),
		Entry("zero step", Declaration{Mode: "bifurcation", Duration: 1, Radius: Range{Start: 500, End: 1000}}),
		Entry("unknown policy", Declaration{Mode: "bifurcation", Duration: 1, Start: "middle"}),
	)
})
