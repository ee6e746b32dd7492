package vehicle

import "fmt"

// DefaultTable is the contact table name the presets refer to.
const DefaultTable = "tread"

const (
	bogieHalfBase    = 9.5
	axleHalfBase     = 1.28
	secondaryLateral = 1.0
	primaryLateral   = 1.0
)

// DefaultDescription is a four-axle passenger coach: one car body on two
// two-axle bogies.
func DefaultDescription() Description {
	d := Description{Name: "coach"}
	d.Components = append(d.Components, ComponentSpec{
		Name:    "car",
		Type:    TypeCarBody.String(),
		Inertia: Inertia{Mass: 32000, Roll: 5.6e4, Pitch: 1.97e6, Yaw: 1.97e6},
	})

	for bi, bx := range []float64{bogieHalfBase, -bogieHalfBase} {
		bogie := fmt.Sprintf("bogie%d", bi+1)
		d.Components = append(d.Components, ComponentSpec{
			Name:    bogie,
			Type:    TypeBogieFrame.String(),
			Parent:  "car",
			X:       bx,
			Inertia: Inertia{Mass: 2600, Roll: 1.7e3, Pitch: 1.8e3, Yaw: 3.0e3},
			Links:   secondaryLinks(bx),
		})
		for wi, ax := range []float64{axleHalfBase, -axleHalfBase} {
			d.Components = append(d.Components, ComponentSpec{
				Name:    fmt.Sprintf("ws%d", 2*bi+wi+1),
				Type:    TypeWheelSet.String(),
				Parent:  bogie,
				X:       bx + ax,
				Inertia: Inertia{Mass: 1500, Roll: 900, Pitch: 120, Yaw: 900},
				Links:   primaryLinks(ax),
				Tables:  []string{DefaultTable},
			})
		}
	}
	return d
}

func secondaryLinks(bx float64) []LinkSpec {
	var links []LinkSpec
	for _, s := range []float64{1, -1} {
		upper := [3]float64{bx, s * secondaryLateral, -1.2}
		lower := [3]float64{0, s * secondaryLateral, 0.4}
		links = append(links,
			LinkSpec{Kind: "spring", Axis: "x", Coeff: 1.6e5, Upper: upper, Lower: lower},
			LinkSpec{Kind: "spring", Axis: "y", Coeff: 1.6e5, Upper: upper, Lower: lower},
			LinkSpec{Kind: "spring", Axis: "z", Coeff: 4.3e5, Upper: upper, Lower: lower},
			LinkSpec{Kind: "damper", Axis: "z", Coeff: 2.0e4, Upper: upper, Lower: lower},
			LinkSpec{Kind: "damper", Axis: "x", Coeff: 2.5e5, Upper: [3]float64{bx, s * 1.3, -1.2}, Lower: [3]float64{0, s * 1.3, 0.4}},
		)
	}
	links = append(links, LinkSpec{Kind: "damper", Axis: "y", Coeff: 3.0e4, Upper: [3]float64{bx, 0, -1.2}, Lower: [3]float64{0, 0, 0.4}})
	return links
}

func primaryLinks(ax float64) []LinkSpec {
	var links []LinkSpec
	for _, s := range []float64{1, -1} {
		upper := [3]float64{ax, s * primaryLateral, -0.1}
		lower := [3]float64{0, s * primaryLateral, 0}
		links = append(links,
			LinkSpec{Kind: "spring", Axis: "x", Coeff: 1.2e7, Upper: upper, Lower: lower},
			LinkSpec{Kind: "spring", Axis: "y", Coeff: 4.0e6, Upper: upper, Lower: lower},
			LinkSpec{Kind: "spring", Axis: "z", Coeff: 1.2e6, Upper: upper, Lower: lower},
			LinkSpec{Kind: "damper", Axis: "z", Coeff: 1.0e4, Upper: upper, Lower: lower},
		)
	}
	return links
}

// ToyDescription is the reduced tree used for smoke tests: a 1000 kg body on
// one vertical spring over a fixed bogie and a fixed wheelset.
func ToyDescription() Description {
	return Description{
		Name: "toy",
		Components: []ComponentSpec{
			{
				Name:    "car",
				Type:    TypeCarBody.String(),
				Inertia: Inertia{Mass: 1000, Roll: 1000, Pitch: 1000, Yaw: 1000},
			},
			{
				Name:    "bogie",
				Type:    TypeBogieFrame.String(),
				Parent:  "car",
				Inertia: Inertia{Mass: 100, Roll: 10, Pitch: 10, Yaw: 10},
				Fixed:   true,
				Links:   []LinkSpec{{Name: "k", Kind: "spring", Axis: "z", Coeff: 1e5}},
			},
			{
				Name:    "ws",
				Type:    TypeWheelSet.String(),
				Parent:  "bogie",
				Inertia: Inertia{Mass: 100, Roll: 10, Pitch: 1, Yaw: 10},
				Fixed:   true,
				Tables:  []string{DefaultTable},
			},
		},
	}
}
