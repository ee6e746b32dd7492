package vehicle

import (
	"errors"
	"math"
	"testing"

	"github.com/san-kum/railsim/internal/contact"
	"github.com/san-kum/railsim/internal/dynamo"
	"github.com/san-kum/railsim/internal/track"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func testTables(t *testing.T) map[string]*contact.Table {
	t.Helper()
	tab, err := contact.DefaultConicalProfile().Generate(contact.Linear)
	require.NoError(t, err)
	return map[string]*contact.Table{DefaultTable: tab}
}

func buildModel(t *testing.T, d Description) *Model {
	t.Helper()
	m, err := Build(d, testTables(t), track.New())
	require.NoError(t, err)
	require.NoError(t, m.Calibrate())
	return m
}

// perturbed returns a small, deterministic off-equilibrium state.
func perturbed(m *Model) []float64 {
	y := m.InitialState()
	for i := range y {
		y[i] = 1e-4 * math.Sin(float64(3*i+1))
	}
	return y
}

func TestBuildDefault(t *testing.T) {
	m := buildModel(t, DefaultDescription())

	assert.Equal(t, 64, m.Dim())
	assert.Len(t, m.WheelSets(), 4)
	assert.Equal(t, "car", m.Root().Name())
	assert.Len(t, m.DOFNames(), 64)
	assert.Equal(t, "ws4.BETAdot", m.DOFNames()[63])

	ws, ok := m.Component("ws1")
	require.True(t, ok)
	assert.Equal(t, dynamo.Window{Start: 16, Len: 10}, ws.Window())
	assert.Len(t, ws.base().Dependencies(), 18)
	assert.InDelta(t, 1.28, ws.(*WheelSet).BogieOffset(), 1e-12)

	bogie, _ := m.Component("bogie1")
	assert.Len(t, bogie.base().Dependencies(), 8+8+2*10)
}

func TestBuildValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(d *Description)
	}{
		{"empty", func(d *Description) { d.Components = nil }},
		{"unknown parent", func(d *Description) { d.Components[1].Parent = "nobody" }},
		{"second root", func(d *Description) {
			d.Components[1].Parent = ""
			d.Components[1].Links = nil
		}},
		{"wheelset under car", func(d *Description) { d.Components[2].Parent = "car" }},
		{"duplicate name", func(d *Description) { d.Components[2].Name = "car" }},
		{"unknown type", func(d *Description) { d.Components[0].Type = "locomotive" }},
		{"zero mass", func(d *Description) { d.Components[0].Inertia.Mass = 0 }},
		{"missing table", func(d *Description) { d.Components[2].Tables = []string{"worn"} }},
		{"bad link axis", func(d *Description) { d.Components[1].Links[0].Axis = "w" }},
		{"three wheelsets", func(d *Description) {
			extra := d.Components[2]
			extra.Name = "ws9"
			d.Components = append(d.Components, extra)
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := DefaultDescription()
			tt.mutate(&d)
			_, err := Build(d, testTables(t), nil)
			require.Error(t, err)
			var ce *dynamo.ConfigurationError
			assert.True(t, errors.As(err, &ce), "want ConfigurationError, got %v", err)
		})
	}
}

func TestCalibrateNeedsVerticalSpring(t *testing.T) {
	d := ToyDescription()
	d.Components[1].Links[0].Axis = "y"
	m, err := Build(d, testTables(t), nil)
	require.NoError(t, err)

	var ce *dynamo.ConfigurationError
	assert.True(t, errors.As(m.Calibrate(), &ce))
}

func TestEquilibriumAtRest(t *testing.T) {
	m := buildModel(t, DefaultDescription())
	y := m.InitialState()
	dydt := make([]float64, m.Dim())
	require.NoError(t, m.Fun(0, y, dydt))

	names := m.DOFNames()
	for i, v := range dydt {
		assert.InDelta(t, 0, v, 1e-8, names[i])
	}
}

func TestToyEquilibriumIsExact(t *testing.T) {
	m := buildModel(t, ToyDescription())
	assert.Equal(t, 8+8+10, m.Dim())

	dydt := make([]float64, m.Dim())
	require.NoError(t, m.Fun(0, m.InitialState(), dydt))
	assert.Equal(t, make([]float64, m.Dim()), dydt)

	// compressing the spring pushes the body back up
	y := m.InitialState()
	y[IdxZ] = -0.01
	require.NoError(t, m.Fun(0, y, dydt))
	assert.InDelta(t, 1e5*0.01/1000, dydt[IdxZdot], 1e-12)
}

func TestFixedComponent(t *testing.T) {
	free := buildModel(t, DefaultDescription())
	d := DefaultDescription()
	d.Components[1].Fixed = true
	fixed := buildModel(t, d)

	y := perturbed(free)
	fFree := make([]float64, free.Dim())
	fFixed := make([]float64, fixed.Dim())
	require.NoError(t, free.Fun(0, y, fFree))
	require.NoError(t, fixed.Fun(0, y, fFixed))

	JFree := mat.NewDense(free.Dim(), free.Dim(), nil)
	JFixed := mat.NewDense(fixed.Dim(), fixed.Dim(), nil)
	require.NoError(t, free.Jacobian(0, y, JFree))
	require.NoError(t, fixed.Jacobian(0, y, JFixed))

	bogie, _ := fixed.Component("bogie1")
	w := bogie.Window()
	for i := 0; i < fixed.Dim(); i++ {
		if w.Contains(i) {
			assert.Equal(t, 0.0, fFixed[i])
			for j := 0; j < fixed.Dim(); j++ {
				assert.Equal(t, 0.0, JFixed.At(i, j))
			}
			continue
		}
		assert.Equal(t, fFree[i], fFixed[i], "f[%d]", i)
		for j := 0; j < fixed.Dim(); j++ {
			assert.Equal(t, JFree.At(i, j), JFixed.At(i, j))
		}
	}
	assert.NotEqual(t, 0.0, fFree[w.Start+IdxYdot])
}

func TestFiniteDifferenceLinear(t *testing.T) {
	const n = 6
	deps := []int{0, 2, 3, 5}
	A := mat.NewDense(2, n, nil)
	for i := 0; i < 2; i++ {
		for _, j := range deps {
			A.Set(i, j, float64(1+i)*float64(j+1)-2.5)
		}
	}
	f := func(y, dst []float64) error {
		for i := range dst {
			dst[i] = mat.Dot(A.RowView(i), mat.NewVecDense(n, y))
		}
		return nil
	}

	y := []float64{0.3, -1, 2, 0.7, -0.1, 5}
	orig := append([]float64(nil), y...)
	J := mat.NewDense(n, n, nil)
	require.NoError(t, finiteDifference(f, y, deps, 3, J, make([]float64, 2), make([]float64, 2)))

	assert.Equal(t, orig, y, "state restored")
	for i := 0; i < 2; i++ {
		for j := 0; j < n; j++ {
			assert.InDelta(t, A.At(i, j), J.At(3+i, j), 1e-6, "J[%d,%d]", 3+i, j)
		}
	}
	for j := 0; j < n; j++ {
		assert.Equal(t, 0.0, J.At(0, j))
	}
}

func TestFiniteDifferenceMatchesModel(t *testing.T) {
	m := buildModel(t, ToyDescription())
	y := m.InitialState()
	J := mat.NewDense(m.Dim(), m.Dim(), nil)
	require.NoError(t, m.Jacobian(0, y, J))

	// dZdot/dZ = -k/m for the car body
	assert.InDelta(t, -1e5/1000, J.At(IdxZdot, IdxZ), 1e-4)
	assert.InDelta(t, 1, J.At(IdxZ, IdxZdot), 1e-6)
}

func TestParallelIsBitIdentical(t *testing.T) {
	serial := buildModel(t, DefaultDescription())
	parallel := buildModel(t, DefaultDescription())
	parallel.SetParallelDepth(2)
	for _, m := range []*Model{serial, parallel} {
		m.Conditions().Set(30, 1200, 0.05)
	}

	y := perturbed(serial)
	fs := make([]float64, serial.Dim())
	fp := make([]float64, parallel.Dim())
	require.NoError(t, serial.Fun(0.5, y, fs))
	require.NoError(t, parallel.Fun(0.5, y, fp))
	assert.Equal(t, fs, fp)

	Js := mat.NewDense(serial.Dim(), serial.Dim(), nil)
	Jp := mat.NewDense(parallel.Dim(), parallel.Dim(), nil)
	require.NoError(t, serial.Jacobian(0.5, y, Js))
	require.NoError(t, parallel.Jacobian(0.5, y, Jp))
	assert.True(t, mat.Equal(Js, Jp))
}

func TestDerailmentIsDomainError(t *testing.T) {
	m := buildModel(t, DefaultDescription())
	ws, _ := m.Component("ws3")
	y := m.InitialState()
	y[ws.Window().Start+IdxY] = 0.02

	err := m.Fun(0, y, make([]float64, m.Dim()))
	require.Error(t, err)
	var de *dynamo.DomainError
	require.True(t, errors.As(err, &de))
	assert.Equal(t, "ws3", de.Component)
	assert.Equal(t, 0.02, de.Values[IdxY])
	assert.True(t, errors.Is(err, dynamo.ErrDerailment))
	assert.Equal(t, dynamo.CodeDomain, dynamo.CodeOf(err))
}

func TestDimensionMismatch(t *testing.T) {
	m := buildModel(t, ToyDescription())
	err := m.Fun(0, make([]float64, 3), make([]float64, m.Dim()))
	assert.True(t, errors.Is(err, dynamo.ErrDimensionMismatch))
}

func TestStatus(t *testing.T) {
	m := buildModel(t, DefaultDescription())
	st, err := m.Status(0, m.InitialState())
	require.NoError(t, err)
	require.Len(t, st, 7)

	assert.Nil(t, st[0].Contact)
	ws := st[3]
	require.NotNil(t, ws.Contact)
	assert.Equal(t, TypeWheelSet, ws.Type)
	assert.InDelta(t, ws.Contact.Normal[contact.Left], ws.Contact.Normal[contact.Right], 1e-9)
	assert.Greater(t, ws.Contact.Margin, 0.0)

	names, vals := ws.Fields()
	assert.Len(t, vals, len(names))
	assert.Equal(t, "Nl", names[10])
	assert.Equal(t, "margin", names[len(names)-1])
}
