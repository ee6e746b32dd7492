// Package storage keeps the output of simulation runs on disk.
//
// Each run is a directory holding metadata.json, samples.csv with one row
// per reported sample and jacobian.csv with the non-zero entries of every
// exported Jacobian snapshot.
package storage

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/san-kum/railsim/internal/dynamo"
	"github.com/san-kum/railsim/internal/solution"
)

const (
	metadataFile = "metadata.json"
	samplesFile  = "samples.csv"
	jacobianFile = "jacobian.csv"
)

// fixedColumns lead every samples.csv row.
var fixedColumns = []string{"sim", "t", "h", "v", "R", "cant"}

type Store struct {
	baseDir string
}

func New(baseDir string) *Store {
	return &Store{baseDir: baseDir}
}

func (s *Store) Init() error {
	return os.MkdirAll(s.baseDir, 0755)
}

func (s *Store) Dir() string { return s.baseDir }

// PointRecord summarizes one solve of a run.
type PointRecord struct {
	Sim     int                `json:"sim"`
	Speed   float64            `json:"speed"`
	Radius  float64            `json:"radius"`
	Cant    float64            `json:"cant"`
	T0      float64            `json:"t0"`
	T1      float64            `json:"t1"`
	Samples int                `json:"samples"`
	Code    dynamo.Code        `json:"code"`
	Status  string             `json:"status"`
	Error   string             `json:"error,omitempty"`
	Stats   dynamo.Stats       `json:"stats"`
	Metrics map[string]float64 `json:"metrics"`
}

type RunMetadata struct {
	ID        string        `json:"id"`
	Name      string        `json:"name"`
	Scenario  string        `json:"scenario"`
	Vehicle   string        `json:"vehicle"`
	Solver    string        `json:"solver"`
	DOF       int           `json:"dof"`
	Timestamp time.Time     `json:"timestamp"`
	Elapsed   float64       `json:"elapsed_seconds"`
	Code      dynamo.Code   `json:"code"`
	Status    string        `json:"status"`
	Columns   []string      `json:"columns,omitempty"`
	Points    []PointRecord `json:"points"`
}

// Run is an open run directory. It implements solution.Sink.
type Run struct {
	dir  string
	meta RunMetadata

	samples *os.File
	sw      *csv.Writer
	jac     *os.File
	jw      *csv.Writer
	row     []string
	closed  bool
}

// Create opens a new run directory. The run ID is derived from meta.Name
// and the current time.
func (s *Store) Create(meta RunMetadata) (*Run, error) {
	if err := s.Init(); err != nil {
		return nil, err
	}
	meta.Timestamp = time.Now()
	base := fmt.Sprintf("%s_%s", sanitize(meta.Name), meta.Timestamp.Format("20060102-150405"))

	var dir string
	for i := 0; ; i++ {
		meta.ID = base
		if i > 0 {
			meta.ID = fmt.Sprintf("%s-%d", base, i)
		}
		dir = filepath.Join(s.baseDir, meta.ID)
		err := os.Mkdir(dir, 0755)
		if err == nil {
			break
		}
		if !errors.Is(err, fs.ErrExist) {
			return nil, err
		}
	}

	r := &Run{dir: dir, meta: meta}
	var err error
	if r.samples, err = os.Create(filepath.Join(dir, samplesFile)); err != nil {
		return nil, err
	}
	if r.jac, err = os.Create(filepath.Join(dir, jacobianFile)); err != nil {
		r.samples.Close()
		return nil, err
	}
	r.sw = csv.NewWriter(r.samples)
	r.jw = csv.NewWriter(r.jac)
	if err := r.jw.Write([]string{"sim", "t", "i", "j", "value"}); err != nil {
		r.closeFiles()
		return nil, err
	}
	return r, nil
}

func sanitize(name string) string {
	if name == "" {
		return "run"
	}
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, name)
}

func (r *Run) ID() string             { return r.meta.ID }
func (r *Run) Dir() string            { return r.dir }
func (r *Run) Metadata() *RunMetadata { return &r.meta }

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func (r *Run) WriteEntry(e solution.Entry) error {
	var names []string
	var vals []float64
	for _, st := range e.Status {
		n, v := st.Fields()
		for _, f := range n {
			names = append(names, st.Name+"."+f)
		}
		vals = append(vals, v...)
	}

	if r.meta.Columns == nil {
		r.meta.Columns = append(append([]string(nil), fixedColumns...), names...)
		if err := r.sw.Write(r.meta.Columns); err != nil {
			return err
		}
	}
	if len(fixedColumns)+len(vals) != len(r.meta.Columns) {
		return fmt.Errorf("storage: sample has %d columns, run has %d", len(fixedColumns)+len(vals), len(r.meta.Columns))
	}

	r.row = r.row[:0]
	r.row = append(r.row,
		strconv.Itoa(e.Sim),
		formatFloat(e.T),
		formatFloat(e.H),
		formatFloat(e.Point.Speed),
		formatFloat(e.Point.Radius),
		formatFloat(e.Point.Cant),
	)
	for _, v := range vals {
		r.row = append(r.row, formatFloat(v))
	}
	return r.sw.Write(r.row)
}

func (r *Run) WriteJacobian(j solution.Jacobian) error {
	rows, cols := j.J.Dims()
	sim, t := strconv.Itoa(j.Sim), formatFloat(j.T)
	for i := 0; i < rows; i++ {
		for k := 0; k < cols; k++ {
			v := j.J.At(i, k)
			if v == 0 {
				continue
			}
			if err := r.jw.Write([]string{sim, t, strconv.Itoa(i), strconv.Itoa(k), formatFloat(v)}); err != nil {
				return err
			}
		}
	}
	return nil
}

// AddPoint records the summary of one solve. Non-finite metrics are dropped
// since JSON cannot represent them.
func (r *Run) AddPoint(p PointRecord) {
	p.Status = p.Code.String()
	metrics := make(map[string]float64, len(p.Metrics))
	for k, v := range p.Metrics {
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			metrics[k] = v
		}
	}
	p.Metrics = metrics
	r.meta.Points = append(r.meta.Points, p)
}

// Close flushes the CSV files and writes metadata.json with the final status.
func (r *Run) Close(code dynamo.Code, elapsed time.Duration) error {
	if r.closed {
		return nil
	}
	r.closed = true
	r.meta.Code = code
	r.meta.Status = code.String()
	r.meta.Elapsed = elapsed.Seconds()

	err := r.closeFiles()

	f, ferr := os.Create(filepath.Join(r.dir, metadataFile))
	if ferr != nil {
		return errors.Join(err, ferr)
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return errors.Join(err, enc.Encode(r.meta))
}

func (r *Run) closeFiles() error {
	r.sw.Flush()
	r.jw.Flush()
	return errors.Join(r.sw.Error(), r.jw.Error(), r.samples.Close(), r.jac.Close())
}

// List returns the metadata of every stored run, newest first.
func (s *Store) List() ([]RunMetadata, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []RunMetadata{}, nil
		}
		return nil, err
	}

	runs := make([]RunMetadata, 0)
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		meta, err := s.Load(entry.Name())
		if err != nil {
			continue
		}
		runs = append(runs, *meta)
	}

	sort.SliceStable(runs, func(i, j int) bool {
		return runs[i].Timestamp.After(runs[j].Timestamp)
	})
	return runs, nil
}

func (s *Store) Load(runID string) (*RunMetadata, error) {
	data, err := os.ReadFile(filepath.Join(s.baseDir, runID, metadataFile))
	if err != nil {
		return nil, err
	}

	var meta RunMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("storage: %s: %w", runID, err)
	}
	return &meta, nil
}

// Samples is the content of samples.csv.
type Samples struct {
	Columns []string
	Rows    [][]float64
}

// Column returns the index of the named column, or -1.
func (s *Samples) Column(name string) int {
	for i, c := range s.Columns {
		if c == name {
			return i
		}
	}
	return -1
}

// Series returns the values of a column for simulation sim, or for every
// simulation when sim is negative.
func (s *Samples) Series(name string, sim int) []float64 {
	col := s.Column(name)
	if col < 0 {
		return nil
	}
	var out []float64
	for _, row := range s.Rows {
		if sim >= 0 && int(row[0]) != sim {
			continue
		}
		out = append(out, row[col])
	}
	return out
}

func (s *Store) LoadSamples(runID string) (*Samples, error) {
	file, err := os.Open(filepath.Join(s.baseDir, runID, samplesFile))
	if err != nil {
		return nil, err
	}
	defer file.Close()

	r := csv.NewReader(file)
	records, err := r.ReadAll()
	if err != nil {
		return nil, err
	}

	out := &Samples{}
	if len(records) == 0 {
		return out, nil
	}
	out.Columns = records[0]
	out.Rows = make([][]float64, 0, len(records)-1)
	for i, rec := range records[1:] {
		row := make([]float64, len(rec))
		for j, field := range rec {
			v, err := strconv.ParseFloat(field, 64)
			if err != nil {
				return nil, fmt.Errorf("storage: %s line %d column %s: %w", samplesFile, i+2, out.Columns[j], err)
			}
			row[j] = v
		}
		out.Rows = append(out.Rows, row)
	}
	return out, nil
}
