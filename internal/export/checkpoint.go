package export

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/flight-replay/backend/internal/models"
)

// CheckpointStatus is the cache state of a cleaned-data file.
type CheckpointStatus int

const (
	// CheckpointAbsent: no usable file, run the whole pipeline.
	CheckpointAbsent CheckpointStatus = iota
	// CheckpointIncomplete: cleaned data without Cartesian columns.
	CheckpointIncomplete
	// CheckpointComplete: cleaned and transformed, ready to export.
	CheckpointComplete
)

func (s CheckpointStatus) String() string {
	switch s {
	case CheckpointIncomplete:
		return "incomplete"
	case CheckpointComplete:
		return "complete"
	default:
		return "absent"
	}
}

// CheckpointProbe is what ClassifyCheckpoint needs to know about a file.
type CheckpointProbe struct {
	Exists   bool
	Columns  []string
	NonEmpty map[string]bool // column has at least one non-empty cell
}

// ClassifyCheckpoint decides whether a checkpoint can be reused. A file that
// lacks any required column is treated as absent.
func ClassifyCheckpoint(p CheckpointProbe) CheckpointStatus {
	if !p.Exists {
		return CheckpointAbsent
	}
	present := make(map[string]bool, len(p.Columns))
	for _, c := range p.Columns {
		present[c] = true
	}
	for _, f := range models.RequiredFields {
		if !present[f.Header()] {
			return CheckpointAbsent
		}
	}
	for _, f := range models.CartesianFields {
		if !present[f.Header()] || !p.NonEmpty[f.Header()] {
			return CheckpointIncomplete
		}
	}
	return CheckpointComplete
}

// ProbeCheckpoint inspects the file at path without parsing numbers.
func ProbeCheckpoint(path string) (CheckpointProbe, error) {
	file, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return CheckpointProbe{}, nil
	}
	if err != nil {
		return CheckpointProbe{}, &models.IOError{Op: "open", Path: path, Err: err}
	}
	defer file.Close()

	probe := CheckpointProbe{Exists: true, NonEmpty: map[string]bool{}}
	r := csv.NewReader(bufio.NewReader(file))
	r.FieldsPerRecord = -1
	r.ReuseRecord = true

	header, err := r.Read()
	if err == io.EOF {
		return probe, nil
	}
	if err != nil {
		return probe, &models.IOError{Op: "read", Path: path, Err: err}
	}
	for _, h := range header {
		probe.Columns = append(probe.Columns, strings.TrimSpace(h))
	}

	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return probe, &models.IOError{Op: "read", Path: path, Err: err}
		}
		for i, cell := range rec {
			if i < len(probe.Columns) && strings.TrimSpace(cell) != "" {
				probe.NonEmpty[probe.Columns[i]] = true
			}
		}
	}
	return probe, nil
}

// CheckpointStatusOf probes and classifies path.
func CheckpointStatusOf(path string) (CheckpointStatus, error) {
	probe, err := ProbeCheckpoint(path)
	if err != nil {
		return CheckpointAbsent, err
	}
	return ClassifyCheckpoint(probe), nil
}

func formatValue(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// WriteCheckpoint writes table as the cleaned-data CSV, with X, Y and Z
// when the table carries them. Values use the shortest representation that
// reads back to the same float. The file is written next to path and renamed
// into place, so a concurrent reader sees either the old file or the new one.
func WriteCheckpoint(path string, table *models.FlightTable) (err error) {
	if err := ensureParent(path); err != nil {
		return err
	}
	file, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return &models.IOError{Op: "create", Path: path, Err: err}
	}
	tmp := file.Name()
	defer func() {
		if err != nil {
			file.Close()
			os.Remove(tmp)
		}
	}()

	bw := bufio.NewWriter(file)
	w := csv.NewWriter(bw)

	fields := table.Fields()
	header := make([]string, len(fields))
	for i, f := range fields {
		header[i] = f.Header()
	}
	if err := w.Write(header); err != nil {
		return &models.IOError{Op: "write", Path: path, Err: err}
	}

	cols := make([][]float64, len(fields))
	for i, f := range fields {
		cols[i] = table.Column(f)
	}
	row := make([]string, len(fields))
	for r := 0; r < table.Len(); r++ {
		for c := range cols {
			row[c] = formatValue(cols[c][r])
		}
		if err := w.Write(row); err != nil {
			return &models.IOError{Op: "write", Path: path, Err: err}
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return &models.IOError{Op: "write", Path: path, Err: err}
	}
	if err := bw.Flush(); err != nil {
		return &models.IOError{Op: "flush", Path: path, Err: err}
	}
	if err := file.Chmod(0o644); err != nil {
		return &models.IOError{Op: "chmod", Path: path, Err: err}
	}
	if err := file.Close(); err != nil {
		return &models.IOError{Op: "close", Path: path, Err: err}
	}
	if err := os.Rename(tmp, path); err != nil {
		return &models.IOError{Op: "rename", Path: path, Err: err}
	}
	return nil
}

// ReadCheckpoint loads a cleaned-data CSV. Every required cell must parse;
// X, Y and Z are kept only when all three columns are fully populated.
func ReadCheckpoint(path string) (*models.FlightTable, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, &models.IOError{Op: "open", Path: path, Err: err}
	}
	defer file.Close()

	r := csv.NewReader(bufio.NewReader(file))
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if err == io.EOF {
		return nil, &models.SchemaError{Missing: models.RequiredHeaders()}
	}
	if err != nil {
		return nil, &models.IOError{Op: "read", Path: path, Err: err}
	}

	index := make(map[string]int, len(header))
	for i, h := range header {
		index[strings.TrimSpace(h)] = i
	}
	var missing []string
	for _, f := range models.RequiredFields {
		if _, ok := index[f.Header()]; !ok {
			missing = append(missing, f.Header())
		}
	}
	if len(missing) > 0 {
		return nil, &models.SchemaError{Missing: missing}
	}

	all := append(append([]models.Field(nil), models.RequiredFields...), models.CartesianFields...)
	cols := make(map[models.Field][]float64, len(all))
	cartesian := true
	for _, f := range models.CartesianFields {
		if _, ok := index[f.Header()]; !ok {
			cartesian = false
		}
	}

	line := 1
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, &models.IOError{Op: "read", Path: path, Err: err}
		}
		line++
		for _, f := range all {
			pos, ok := index[f.Header()]
			if !ok {
				continue
			}
			cell := ""
			if pos < len(rec) {
				cell = strings.TrimSpace(rec[pos])
			}
			isXYZ := f >= models.FieldX
			if isXYZ && (!cartesian || cell == "") {
				cartesian = false
				continue
			}
			v, err := strconv.ParseFloat(cell, 64)
			if err != nil {
				return nil, &models.IOError{Op: "parse", Path: path,
					Err: fmt.Errorf("line %d column %s: %w", line, f.Header(), err)}
			}
			cols[f] = append(cols[f], v)
		}
	}

	table := &models.FlightTable{}
	for _, f := range models.RequiredFields {
		table.SetColumn(f, cols[f])
	}
	if cartesian && len(cols[models.FieldX]) == table.Len() {
		for _, f := range models.CartesianFields {
			table.SetColumn(f, cols[f])
		}
	}
	return table, nil
}

func ensureParent(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return &models.IOError{Op: "mkdir", Path: dir, Err: err}
	}
	return nil
}
