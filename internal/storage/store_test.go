package storage

import (
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/san-kum/railsim/internal/dynamo"
	"github.com/san-kum/railsim/internal/solution"
	"github.com/san-kum/railsim/internal/track"
	"github.com/san-kum/railsim/internal/vehicle"
	"gonum.org/v1/gonum/mat"
)

func testEntry(sim int, t, y float64) solution.Entry {
	return solution.Entry{
		Sim:   sim,
		T:     t,
		H:     0.001,
		Point: track.Point{Speed: 30, Radius: 1200, Cant: 0.05},
		Status: []vehicle.Status{
			{Name: "car", Type: vehicle.TypeCarBody, Values: []float64{y, 0, 0, 0, 0, 0, 0, 0}},
		},
	}
}

func TestStoreSaveLoad(t *testing.T) {
	tmpDir := t.TempDir()
	st := New(tmpDir)

	run, err := st.Create(RunMetadata{Name: "curving test", Scenario: "transient", Solver: "sdirk4", DOF: 8})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if !strings.HasPrefix(run.ID(), "curving_test_") {
		t.Errorf("unexpected run id %q", run.ID())
	}

	for i := 0; i < 3; i++ {
		if err := run.WriteEntry(testEntry(0, float64(i)*0.1, 1e-4*float64(i))); err != nil {
			t.Fatalf("write entry: %v", err)
		}
	}
	J := mat.NewDense(2, 2, []float64{0, 1, -2.5, 0})
	if err := run.WriteJacobian(solution.Jacobian{Sim: 0, T: 0.1, J: J}); err != nil {
		t.Fatalf("write jacobian: %v", err)
	}
	run.AddPoint(PointRecord{
		Sim:     0,
		Speed:   30,
		Samples: 3,
		Code:    dynamo.CodeSuccess,
		Stats:   dynamo.Stats{Steps: 12},
		Metrics: map[string]float64{"max_lateral": 2e-4, "broken": math.NaN()},
	})
	if err := run.Close(dynamo.CodeSuccess, 2*time.Second); err != nil {
		t.Fatalf("close failed: %v", err)
	}

	meta, err := st.Load(run.ID())
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if meta.Solver != "sdirk4" || meta.Status != "success" || meta.Elapsed != 2 {
		t.Errorf("unexpected metadata %+v", meta)
	}
	if len(meta.Points) != 1 || meta.Points[0].Stats.Steps != 12 {
		t.Fatalf("unexpected points %+v", meta.Points)
	}
	if _, ok := meta.Points[0].Metrics["broken"]; ok {
		t.Error("non-finite metric stored")
	}
	if meta.Points[0].Metrics["max_lateral"] != 2e-4 {
		t.Errorf("metrics %v", meta.Points[0].Metrics)
	}

	samples, err := st.LoadSamples(run.ID())
	if err != nil {
		t.Fatalf("load samples failed: %v", err)
	}
	if len(samples.Rows) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(samples.Rows))
	}
	if samples.Columns[6] != "car.Y" || samples.Column("car.PSIdot") != 13 {
		t.Errorf("unexpected columns %v", samples.Columns)
	}
	if got := samples.Series("car.Y", 0); got[2] != 2e-4 {
		t.Errorf("series %v", got)
	}
	if got := samples.Series("v", -1); len(got) != 3 || got[0] != 30 {
		t.Errorf("speed series %v", got)
	}
	if samples.Series("nothing", -1) != nil {
		t.Error("unknown column should yield nil")
	}

	data, err := os.ReadFile(filepath.Join(tmpDir, run.ID(), "jacobian.csv"))
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 3 || lines[2] != "0,0.1,1,0,-2.5" {
		t.Errorf("jacobian.csv:\n%s", data)
	}
}

func TestStoreColumnMismatch(t *testing.T) {
	run, err := New(t.TempDir()).Create(RunMetadata{Name: "x"})
	if err != nil {
		t.Fatal(err)
	}
	defer run.Close(dynamo.CodeSuccess, 0)

	if err := run.WriteEntry(testEntry(0, 0, 0)); err != nil {
		t.Fatal(err)
	}
	e := testEntry(0, 1, 0)
	e.Status[0].Values = e.Status[0].Values[:4]
	if err := run.WriteEntry(e); err == nil {
		t.Error("expected column mismatch error")
	}
}

func TestStoreList(t *testing.T) {
	tmpDir := t.TempDir()
	st := New(tmpDir)

	runs, err := st.List()
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(runs) != 0 {
		t.Errorf("expected 0 runs, got %d", len(runs))
	}

	for i := 0; i < 2; i++ {
		run, err := st.Create(RunMetadata{Name: "sweep"})
		if err != nil {
			t.Fatalf("create failed: %v", err)
		}
		if err := run.Close(dynamo.CodeDomain, 0); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.Mkdir(filepath.Join(tmpDir, "junk"), 0755); err != nil {
		t.Fatal(err)
	}

	runs, err = st.List()
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("expected 2 runs, got %d", len(runs))
	}
	if runs[0].ID == runs[1].ID {
		t.Error("run ids collide")
	}
	if runs[0].Status != "domain-error" {
		t.Errorf("status %q", runs[0].Status)
	}
}

func TestStoreFileStructure(t *testing.T) {
	tmpDir := t.TempDir()
	run, err := New(tmpDir).Create(RunMetadata{Name: "files"})
	if err != nil {
		t.Fatal(err)
	}
	if err := run.Close(dynamo.CodeSuccess, 0); err != nil {
		t.Fatal(err)
	}
	if err := run.Close(dynamo.CodeSuccess, 0); err != nil {
		t.Errorf("second close: %v", err)
	}

	for _, name := range []string{"metadata.json", "samples.csv", "jacobian.csv"} {
		if _, err := os.Stat(filepath.Join(tmpDir, run.ID(), name)); os.IsNotExist(err) {
			t.Errorf("%s not created", name)
		}
	}
}

func TestSanitize(t *testing.T) {
	tests := map[string]string{
		"":            "run",
		"toy":         "toy",
		"a b/c":       "a_b_c",
		"curve-R1200": "curve-R1200",
	}
	for in, want := range tests {
		if got := sanitize(in); got != want {
			t.Errorf("sanitize(%q) = %q, want %q", in, got, want)
		}
	}
}
