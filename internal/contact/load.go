package contact

import (
	"encoding/csv"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/san-kum/railsim/internal/dynamo"
	"gopkg.in/yaml.v3"
)

// LoadCSV reads a table from comma separated values. A first record that
// does not parse as numbers is taken as a header naming the columns, which
// may then appear in any order. Without a header the columns follow the
// [Column] order.
func LoadCSV(name string, r io.Reader, method Interpolation) (*Table, error) {
	cr := csv.NewReader(r)
	cr.Comment = '#'
	cr.TrimLeadingSpace = true

	records, err := cr.ReadAll()
	if err != nil {
		return nil, dynamo.Configf("table "+name, "read csv: %v", err)
	}
	if len(records) == 0 {
		return nil, dynamo.Configf("table "+name, "empty file")
	}

	order := make([]Column, NumColumns)
	for i := range order {
		order[i] = Column(i)
	}
	if _, err := strconv.ParseFloat(strings.TrimSpace(records[0][0]), 64); err != nil {
		order, err = headerOrder(name, records[0])
		if err != nil {
			return nil, err
		}
		records = records[1:]
	}

	data := make([][]float64, 0, len(records))
	for i, rec := range records {
		if len(rec) != len(order) {
			return nil, dynamo.Configf("table "+name, "record %d has %d fields, want %d", i, len(rec), len(order))
		}
		row := make([]float64, NumColumns)
		for j, field := range rec {
			v, err := strconv.ParseFloat(strings.TrimSpace(field), 64)
			if err != nil {
				return nil, dynamo.Configf("table "+name, "record %d field %d: %v", i, j, err)
			}
			row[order[j]] = v
		}
		data = append(data, row)
	}
	return NewTable(name, data, method)
}

// LoadFile is LoadCSV on a file path.
func LoadFile(name, path string, method Interpolation) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, dynamo.Configf("table "+name, "%v", err)
	}
	defer f.Close()
	return LoadCSV(name, f, method)
}

func headerOrder(name string, header []string) ([]Column, error) {
	if len(header) != int(NumColumns) {
		return nil, dynamo.Configf("table "+name, "header has %d columns, want %d", len(header), NumColumns)
	}
	seen := make(map[Column]bool, len(header))
	order := make([]Column, len(header))
	for i, h := range header {
		c, ok := ParseColumn(h)
		if !ok {
			return nil, dynamo.Configf("table "+name, "unknown column %q", h)
		}
		if seen[c] {
			return nil, dynamo.Configf("table "+name, "duplicate column %q", h)
		}
		seen[c] = true
		order[i] = c
	}
	return order, nil
}

// WriteCSV writes the table with a header row.
func (t *Table) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(columnNames[:]); err != nil {
		return err
	}
	for _, row := range t.data {
		rec := make([]string, len(row))
		for i, v := range row {
			rec[i] = strconv.FormatFloat(v, 'g', -1, 64)
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// LoadProfile reads a conical profile from YAML. Unset fields keep the
// values of DefaultConicalProfile.
func LoadProfile(path string) (*ConicalProfile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, dynamo.Configf("profile", "%v", err)
	}
	p := DefaultConicalProfile()
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, dynamo.Configf("profile", "%s: %v", path, err)
	}
	return &p, nil
}
