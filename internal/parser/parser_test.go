package parser

import (
	"errors"
	"math"
	"testing"

	"github.com/flight-replay/backend/internal/models"
)

func rawRows(rows ...[]string) *models.RawTable {
	return &models.RawTable{Header: models.RequiredHeaders(), Rows: rows}
}

func TestParseNumber(t *testing.T) {
	cases := []struct {
		in   string
		want float64
		ok   bool
	}{
		{"1.5", 1.5, true},
		{"  -2e3 ", -2000, true},
		{"", 0, false},
		{"   ", 0, false},
		{"abc", 0, false},
		{"1,5", 0, false},
	}
	for _, c := range cases {
		got, ok := ParseNumber(c.in)
		if ok != c.ok || (ok && got != c.want) {
			t.Errorf("ParseNumber(%q) = %v, %v; want %v, %v", c.in, got, ok, c.want, c.ok)
		}
	}
	if v, ok := ParseNumber("NaN"); !ok || !math.IsNaN(v) {
		t.Errorf("Expected NaN to parse, got %v %v", v, ok)
	}
}

func TestNormalizeDropsInvalidAndDuplicateRows(t *testing.T) {
	raw := rawRows(
		[]string{"3", "13", "23", "300", "0", "0", "0"},
		[]string{"1", "11", "21", "100", "0", "0", "0"},
		[]string{"bad", "99", "99", "999", "0", "0", "0"},
		[]string{"2", "12", "22", "200", "0", "0", "0"},
		[]string{"1", "77", "77", "777", "0", "0", "0"},
		[]string{"0", "10", "20", "0", "0", "0", "0"},
	)

	table, report, err := Normalize(raw)
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}

	if table.Len() != raw.Len()-2 {
		t.Fatalf("Expected %d rows, got %d", raw.Len()-2, table.Len())
	}
	wantTime := []float64{0, 1, 2, 3}
	for i, v := range wantTime {
		if table.Time[i] != v {
			t.Errorf("Time[%d]: expected %v, got %v", i, v, table.Time[i])
		}
	}
	// first occurrence of t=1 wins
	if table.Longitude[1] != 11 {
		t.Errorf("Expected first duplicate kept (lon 11), got %v", table.Longitude[1])
	}
	if err := table.Validate(); err != nil {
		t.Errorf("Normalized table invalid: %v", err)
	}

	if report.InputRows != 6 || report.InvalidRows != 1 || report.DuplicateRows != 1 || report.OutputRows != 4 {
		t.Errorf("Unexpected report: %+v", report)
	}
	if report.Dropped() != 2 {
		t.Errorf("Expected 2 dropped, got %d", report.Dropped())
	}
}

func TestNormalizeDropsNonFiniteRows(t *testing.T) {
	raw := rawRows(
		[]string{"0", "10", "20", "0", "0", "0", "0"},
		[]string{"1", "inf", "20", "0", "0", "0", "0"},
		[]string{"2", "10", "NaN", "0", "0", "0", "0"},
		[]string{"3", "10", "20", "", "0", "0", "0"},
		[]string{"4", "10", "20", "0", "0", "0", "0"},
	)
	table, report, err := Normalize(raw)
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}
	if table.Len() != 2 {
		t.Errorf("Expected 2 rows, got %d", table.Len())
	}
	if report.NonFiniteRows != 2 || report.InvalidRows != 1 {
		t.Errorf("Unexpected report: %+v", report)
	}
}

func TestNormalizeDoesNotModifyInput(t *testing.T) {
	raw := rawRows(
		[]string{"2", "1", "1", "1", "1", "1", "1"},
		[]string{"1", "1", "1", "1", "1", "1", "1"},
	)
	if _, _, err := Normalize(raw); err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}
	if raw.Rows[0][0] != "2" {
		t.Errorf("Input reordered: %v", raw.Rows)
	}
}

func TestNormalizeEmptyInput(t *testing.T) {
	_, _, err := Normalize(rawRows())
	var noData *models.NoValidDataError
	if !errors.As(err, &noData) {
		t.Fatalf("Expected NoValidDataError, got %v", err)
	}
	if !noData.Empty {
		t.Error("Expected Empty flag for input without rows")
	}
}

func TestNormalizeAllRowsRejected(t *testing.T) {
	_, report, err := Normalize(rawRows(
		[]string{"x", "1", "1", "1", "1", "1", "1"},
		[]string{"1", "", "1", "1", "1", "1", "1"},
	))
	var noData *models.NoValidDataError
	if !errors.As(err, &noData) {
		t.Fatalf("Expected NoValidDataError, got %v", err)
	}
	if noData.Empty || noData.InputRows != 2 {
		t.Errorf("Unexpected error detail: %+v", noData)
	}
	if report.InvalidRows != 2 {
		t.Errorf("Expected 2 invalid rows, got %d", report.InvalidRows)
	}
}
