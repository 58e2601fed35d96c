package parser

import (
	"sort"

	"github.com/flight-replay/backend/internal/models"
)

// NormalizeReport counts what the normalizer kept and why it dropped rows.
type NormalizeReport struct {
	InputRows     int `json:"inputRows"`
	InvalidRows   int `json:"invalidRows"`
	NonFiniteRows int `json:"nonFiniteRows"`
	DuplicateRows int `json:"duplicateRows"`
	OutputRows    int `json:"outputRows"`
}

// Dropped returns the total number of rejected rows.
func (r *NormalizeReport) Dropped() int {
	return r.InvalidRows + r.NonFiniteRows + r.DuplicateRows
}

// Normalize coerces raw cells to numbers and establishes strict time order.
// A row is dropped whole when any cell is empty, non-numeric or non-finite.
// Survivors are stably sorted by time and the first row of each distinct
// time is kept. The input is not modified.
func Normalize(raw *models.RawTable) (*models.FlightTable, *NormalizeReport, error) {
	report := &NormalizeReport{InputRows: raw.Len()}
	if raw.Len() == 0 {
		return nil, report, &models.NoValidDataError{Empty: true}
	}

	width := len(models.RequiredFields)
	rows := make([][]float64, 0, raw.Len())
	for _, cells := range raw.Rows {
		vals, ok, finite := coerceRow(cells, width)
		switch {
		case !ok:
			report.InvalidRows++
		case !finite:
			report.NonFiniteRows++
		default:
			rows = append(rows, vals)
		}
	}

	// column 0 is Time
	sort.SliceStable(rows, func(i, j int) bool { return rows[i][0] < rows[j][0] })

	table := models.NewFlightTable(len(rows))
	for i, vals := range rows {
		if i > 0 && vals[0] == rows[i-1][0] {
			report.DuplicateRows++
			continue
		}
		for c, f := range models.RequiredFields {
			table.SetColumn(f, append(table.Column(f), vals[c]))
		}
	}

	report.OutputRows = table.Len()
	if report.OutputRows == 0 {
		return nil, report, &models.NoValidDataError{InputRows: report.InputRows}
	}
	return table, report, nil
}

// coerceRow parses width cells. ok is false when a cell is missing or not a
// number; finite is false when a parsed value is NaN or infinite.
func coerceRow(cells []string, width int) (vals []float64, ok, finite bool) {
	if len(cells) < width {
		return nil, false, false
	}
	vals = make([]float64, width)
	finite = true
	for i := 0; i < width; i++ {
		v, parsed := ParseNumber(cells[i])
		if !parsed {
			return nil, false, false
		}
		if !IsFinite(v) {
			finite = false
		}
		vals[i] = v
	}
	return vals, true, finite
}
