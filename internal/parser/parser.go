package parser

import (
	"math"
	"strconv"
	"strings"

	"github.com/flight-replay/backend/internal/models"
)

// SourceFormat defines a loader for one raw telemetry file layout.
type SourceFormat interface {
	// Name returns the unique name of the format.
	Name() string
	// CanParse returns true if this format handles the given file.
	CanParse(filePath string) (bool, error)
	// Load reads the file and projects it onto the required columns.
	Load(filePath string) (*models.RawTable, error)
}

// ParseNumber coerces one cell to a float. Surrounding whitespace is ignored;
// empty and non-numeric text is rejected.
func ParseNumber(raw string) (float64, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// IsFinite reports whether v is neither NaN nor infinite.
func IsFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
