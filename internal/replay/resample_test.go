package replay

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flight-replay/backend/internal/models"
)

func linearTable(times ...float64) *models.FlightTable {
	t := models.NewFlightTable(len(times))
	for _, ts := range times {
		t.Append(models.FlightRecord{
			Time: ts, Longitude: ts, Latitude: 2 * ts, Altitude: 10 * ts,
			Roll: -ts, Pitch: 0.5 * ts, Yaw: 100,
		})
	}
	return t
}

func TestResampleTwoPointMidpoint(t *testing.T) {
	table := models.NewFlightTable(2)
	table.Append(models.FlightRecord{Time: 0, Altitude: 0})
	table.Append(models.FlightRecord{Time: 1, Altitude: 10})

	out, err := Resample(table, 10)
	require.NoError(t, err)

	require.Equal(t, 10, out.Len())
	for i := 1; i < out.Len(); i++ {
		assert.InDelta(t, 0.1, out.Time[i]-out.Time[i-1], 1e-12)
	}
	assert.Equal(t, 0.0, out.Time[0])
	assert.Equal(t, 5.0, out.Altitude[5])
	assert.Less(t, out.Time[out.Len()-1], 1.0)
}

func TestResampleGridStaysBelowLastTimestamp(t *testing.T) {
	table := linearTable(2.5, 3.1, 4.0, 7.25)

	out, err := Resample(table, DefaultRateHz)
	require.NoError(t, err)

	assert.Equal(t, 2.5, out.Time[0])
	// 142.5 grid steps: points 0..142 all fall below 7.25
	assert.Equal(t, int(math.Ceil((7.25-2.5)*DefaultRateHz)), out.Len())
	assert.Less(t, out.Time[out.Len()-1], 7.25)
	assert.NoError(t, out.Validate())

	// fields are linear in time, so interpolation is exact
	for i, ts := range out.Time {
		assert.InDelta(t, 2*ts, out.Latitude[i], 1e-9)
		assert.InDelta(t, 10*ts, out.Altitude[i], 1e-9)
		assert.Equal(t, 100.0, out.Yaw[i])
	}
}

func TestResampleNonIntegerSpan(t *testing.T) {
	table := linearTable(0, 0.95)

	out, err := Resample(table, 10)
	require.NoError(t, err)

	// 0.0 .. 0.9 are all below 0.95
	assert.Equal(t, 10, out.Len())
}

func TestResampleCarriesCartesianColumns(t *testing.T) {
	table, err := NewTransformer(AltitudeMeters).ToECEF(linearTable(0, 1, 2))
	require.NoError(t, err)

	out, err := Resample(table, 4)
	require.NoError(t, err)

	assert.True(t, out.HasCartesian())
	assert.Equal(t, table.X[0], out.X[0])
}

func TestResampleDoesNotModifyInput(t *testing.T) {
	table := linearTable(0, 1, 2)
	before := table.Clone()

	_, err := Resample(table, 3)
	require.NoError(t, err)
	assert.Equal(t, before, table)
}

func TestResampleInsufficientData(t *testing.T) {
	_, err := Resample(linearTable(5), 30)

	var insufficient *models.InsufficientDataError
	require.True(t, errors.As(err, &insufficient))
	assert.Equal(t, 1, insufficient.Rows)
	assert.Equal(t, 2, insufficient.Need)
}

func TestResampleRejectsBadRate(t *testing.T) {
	for _, rate := range []float64{0, -5, math.NaN(), math.Inf(1), MaxRateHz + 1, 1e7} {
		_, err := Resample(linearTable(0, 1), rate)
		var cfg *models.ConfigurationError
		assert.True(t, errors.As(err, &cfg), "rate %v", rate)
	}
	assert.NoError(t, ValidateRate(MaxRateHz))
}

func TestResampleRejectsOversizedGrid(t *testing.T) {
	// a year of data at the highest accepted rate
	_, err := Resample(linearTable(0, 365*24*3600), MaxRateHz)
	var cfg *models.ConfigurationError
	require.ErrorAs(t, err, &cfg)
	assert.Equal(t, "rate_hz", cfg.Field)
}

func TestInterpolateClampsOutsideRange(t *testing.T) {
	got := Interpolate([]float64{-1, 0, 0.5, 2, 3}, []float64{0, 1, 2}, []float64{10, 20, 40})
	assert.Equal(t, []float64{10, 10, 15, 40, 40}, got)
}

func TestGridSize(t *testing.T) {
	for _, c := range []struct {
		t0, tLast, rate float64
		want            int
	}{
		{0, 1, 10, 10},
		{1, 1, 10, 0},
		{0, 1, 2.5, 3},
	} {
		n, err := GridSize(c.t0, c.tLast, c.rate)
		require.NoError(t, err)
		assert.Equal(t, c.want, n, "GridSize(%v, %v, %v)", c.t0, c.tLast, c.rate)
	}
}

func TestGridSizeRejectsOverflow(t *testing.T) {
	for _, span := range []float64{1e12, math.MaxFloat64, math.Inf(1)} {
		_, err := GridSize(0, span, 1)
		var cfg *models.ConfigurationError
		assert.ErrorAs(t, err, &cfg, "span %v", span)
	}
	n, err := GridSize(0, MaxGridRows, 1)
	require.NoError(t, err)
	assert.Equal(t, MaxGridRows, n)
}
