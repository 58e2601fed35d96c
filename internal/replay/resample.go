// Package replay holds the numeric stages of the pipeline: uniform-rate
// resampling, the spherical-Earth coordinate transform and frame generation.
package replay

import (
	"fmt"
	"math"
	"strconv"

	"github.com/flight-replay/backend/internal/models"
)

// DefaultRateHz is the replay sample rate used when none is configured.
const DefaultRateHz = 30.0

// MaxRateHz is the highest sample rate accepted anywhere in the pipeline.
const MaxRateHz = 1000.0

// MaxGridRows caps the resampled table; ten columns of this many float64
// values is roughly 800 MB.
const MaxGridRows = 10_000_000

// ValidateRate rejects non-positive, non-finite and too-high sample rates.
func ValidateRate(rateHz float64) error {
	if math.IsNaN(rateHz) || math.IsInf(rateHz, 0) || rateHz <= 0 {
		return &models.ConfigurationError{
			Field:  "rate_hz",
			Value:  strconv.FormatFloat(rateHz, 'g', -1, 64),
			Reason: "sample rate must be a positive, finite number",
		}
	}
	if rateHz > MaxRateHz {
		return &models.ConfigurationError{
			Field:  "rate_hz",
			Value:  strconv.FormatFloat(rateHz, 'g', -1, 64),
			Reason: fmt.Sprintf("sample rate must not exceed %g Hz", MaxRateHz),
		}
	}
	return nil
}

// GridSize returns how many points of t0 + i/rateHz lie strictly below tLast.
// Grids larger than MaxGridRows are rejected before anything is allocated.
func GridSize(t0, tLast, rateHz float64) (int, error) {
	if !(tLast > t0) {
		return 0, nil
	}
	span := (tLast - t0) * rateHz
	if !(span <= MaxGridRows) {
		return 0, &models.ConfigurationError{
			Field:  "rate_hz",
			Value:  strconv.FormatFloat(rateHz, 'g', -1, 64),
			Reason: fmt.Sprintf("%.0f s at this rate needs more than %d rows", tLast-t0, MaxGridRows),
		}
	}
	n := int(math.Ceil(span))
	for n > 0 && t0+float64(n-1)/rateHz >= tLast {
		n--
	}
	for t0+float64(n)/rateHz < tLast {
		n++
	}
	return n, nil
}

// Resample regenerates table on the uniform grid t0, t0+1/rateHz, ... bounded
// strictly below the last original timestamp. Every other column, including
// X/Y/Z when present, is linearly interpolated against the original time base.
// The input table is not modified.
func Resample(table *models.FlightTable, rateHz float64) (*models.FlightTable, error) {
	if err := ValidateRate(rateHz); err != nil {
		return nil, err
	}
	if table.Len() < 2 {
		return nil, &models.InsufficientDataError{Rows: table.Len(), Need: 2}
	}

	src := table.Time
	t0, tLast := src[0], src[len(src)-1]
	n, err := GridSize(t0, tLast, rateHz)
	if err != nil {
		return nil, err
	}

	grid := make([]float64, n)
	for i := range grid {
		grid[i] = t0 + float64(i)/rateHz
	}

	out := &models.FlightTable{Time: grid}
	for _, f := range table.Fields() {
		if f == models.FieldTime {
			continue
		}
		out.SetColumn(f, Interpolate(grid, src, table.Column(f)))
	}
	return out, nil
}

// Interpolate evaluates the piecewise-linear function through (xp, fp) at each
// x. xp must be strictly increasing and x ascending. Points outside xp take
// the nearest endpoint value.
func Interpolate(x, xp, fp []float64) []float64 {
	out := make([]float64, len(x))
	last := len(xp) - 1
	j := 0
	for i, xi := range x {
		switch {
		case xi <= xp[0]:
			out[i] = fp[0]
			continue
		case xi >= xp[last]:
			out[i] = fp[last]
			continue
		}
		for j < last-1 && xp[j+1] <= xi {
			j++
		}
		x0, x1 := xp[j], xp[j+1]
		out[i] = fp[j] + (xi-x0)/(x1-x0)*(fp[j+1]-fp[j])
	}
	return out
}
