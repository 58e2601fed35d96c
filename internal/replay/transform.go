package replay

import (
	"math"
	"strings"

	"github.com/flight-replay/backend/internal/models"
)

const (
	// EarthRadiusMeters is the mean radius of the spherical Earth model.
	EarthRadiusMeters = 6371000.0

	// FeetToMeters converts an altitude in feet to meters.
	FeetToMeters = 0.3048
)

// AltitudeUnit tags the unit of the whole altitude column.
type AltitudeUnit string

const (
	AltitudeMeters AltitudeUnit = "m"
	AltitudeFeet   AltitudeUnit = "ft"
)

// ParseAltitudeUnit accepts "m"/"meters" and "ft"/"feet". The empty string
// means meters.
func ParseAltitudeUnit(s string) (AltitudeUnit, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "m", "meter", "meters", "metre", "metres":
		return AltitudeMeters, nil
	case "ft", "foot", "feet":
		return AltitudeFeet, nil
	}
	return "", &models.ConfigurationError{
		Field:  "altitude_unit",
		Value:  s,
		Reason: `must be "m" or "ft"`,
	}
}

// ToMeters converts an altitude in unit u to meters.
func (u AltitudeUnit) ToMeters(alt float64) float64 {
	if u == AltitudeFeet {
		return alt * FeetToMeters
	}
	return alt
}

func degreesToRadians(deg float64) float64 {
	return deg * math.Pi / 180.0
}

// GeodeticToECEF converts a position to Earth-centered Earth-fixed coordinates
// on a sphere of EarthRadiusMeters. Altitude is in meters.
func GeodeticToECEF(latDeg, lonDeg, altMeters float64) (x, y, z float64) {
	return geodeticToECEF(EarthRadiusMeters, latDeg, lonDeg, altMeters)
}

func geodeticToECEF(radius, latDeg, lonDeg, altMeters float64) (x, y, z float64) {
	phi := degreesToRadians(latDeg)
	lambda := degreesToRadians(lonDeg)
	r := radius + altMeters
	cosPhi := math.Cos(phi)
	return r * cosPhi * math.Cos(lambda), r * cosPhi * math.Sin(lambda), r * math.Sin(phi)
}

// Transformer applies the spherical-Earth ECEF conversion to whole tables.
type Transformer struct {
	Radius float64
	Unit   AltitudeUnit
}

// NewTransformer returns a transformer on the standard Earth radius.
func NewTransformer(unit AltitudeUnit) *Transformer {
	return &Transformer{Radius: EarthRadiusMeters, Unit: unit}
}

// ToECEF returns a copy of table with X, Y and Z columns set. The altitude
// column itself is passed through in its original unit. A nil table yields an
// empty one; a Unit ParseAltitudeUnit does not accept is a ConfigurationError.
func (tr *Transformer) ToECEF(table *models.FlightTable) (*models.FlightTable, error) {
	unit, err := ParseAltitudeUnit(string(tr.Unit))
	if err != nil {
		return nil, err
	}
	radius := tr.Radius
	if radius == 0 {
		radius = EarthRadiusMeters
	}

	out := table.Clone()
	if out == nil {
		out = models.NewFlightTable(0)
	}
	n := out.Len()
	out.X = make([]float64, n)
	out.Y = make([]float64, n)
	out.Z = make([]float64, n)
	for i := 0; i < n; i++ {
		out.X[i], out.Y[i], out.Z[i] = geodeticToECEF(
			radius, out.Latitude[i], out.Longitude[i], unit.ToMeters(out.Altitude[i]))
	}
	return out, nil
}
