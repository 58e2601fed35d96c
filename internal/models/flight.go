// Package models contains domain types for the flight data replay backend.
package models

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/vmihailenco/msgpack/v5"
)

// Field identifies one column of a flight table.
type Field int

const (
	FieldTime Field = iota
	FieldLongitude
	FieldLatitude
	FieldAltitude
	FieldRoll
	FieldPitch
	FieldYaw
	FieldX
	FieldY
	FieldZ
)

var fieldHeaders = [...]string{
	"Time", "Longitude", "Latitude", "Altitude",
	"Roll (deg)", "Pitch (deg)", "Yaw (deg)",
	"X", "Y", "Z",
}

var fieldExportNames = [...]string{
	"Time", "Longitude", "Latitude", "Altitude",
	"Roll", "Pitch", "Yaw",
	"X", "Y", "Z",
}

// RequiredFields lists the source columns every input must carry, in output order.
var RequiredFields = []Field{
	FieldTime, FieldLongitude, FieldLatitude, FieldAltitude,
	FieldRoll, FieldPitch, FieldYaw,
}

// CartesianFields are the columns added by the coordinate transform.
var CartesianFields = []Field{FieldX, FieldY, FieldZ}

// Header returns the column name used in source and checkpoint files.
func (f Field) Header() string {
	if f < 0 || int(f) >= len(fieldHeaders) {
		return fmt.Sprintf("Field(%d)", int(f))
	}
	return fieldHeaders[f]
}

// ExportName returns the column name used in the replay file header.
func (f Field) ExportName() string {
	if f < 0 || int(f) >= len(fieldExportNames) {
		return fmt.Sprintf("Field(%d)", int(f))
	}
	return fieldExportNames[f]
}

func (f Field) String() string { return f.Header() }

// RequiredHeaders returns the header names of RequiredFields.
func RequiredHeaders() []string {
	out := make([]string, len(RequiredFields))
	for i, f := range RequiredFields {
		out[i] = f.Header()
	}
	return out
}

// FlightRecord is one telemetry sample.
type FlightRecord struct {
	Time      float64 `json:"time" msgpack:"time"`
	Longitude float64 `json:"longitude" msgpack:"longitude"`
	Latitude  float64 `json:"latitude" msgpack:"latitude"`
	Altitude  float64 `json:"altitude" msgpack:"altitude"`
	Roll      float64 `json:"roll" msgpack:"roll"`
	Pitch     float64 `json:"pitch" msgpack:"pitch"`
	Yaw       float64 `json:"yaw" msgpack:"yaw"`

	// X, Y and Z are encoded only when HasCartesian is set, so a real 0.0
	// coordinate survives while a record without coordinates omits them.
	HasCartesian bool
	X            float64
	Y            float64
	Z            float64
}

type flightRecordWire struct {
	Time      float64  `json:"time" msgpack:"time"`
	Longitude float64  `json:"longitude" msgpack:"longitude"`
	Latitude  float64  `json:"latitude" msgpack:"latitude"`
	Altitude  float64  `json:"altitude" msgpack:"altitude"`
	Roll      float64  `json:"roll" msgpack:"roll"`
	Pitch     float64  `json:"pitch" msgpack:"pitch"`
	Yaw       float64  `json:"yaw" msgpack:"yaw"`
	X         *float64 `json:"x,omitempty" msgpack:"x,omitempty"`
	Y         *float64 `json:"y,omitempty" msgpack:"y,omitempty"`
	Z         *float64 `json:"z,omitempty" msgpack:"z,omitempty"`
}

func (r FlightRecord) wire() flightRecordWire {
	w := flightRecordWire{
		Time: r.Time, Longitude: r.Longitude, Latitude: r.Latitude, Altitude: r.Altitude,
		Roll: r.Roll, Pitch: r.Pitch, Yaw: r.Yaw,
	}
	if r.HasCartesian {
		x, y, z := r.X, r.Y, r.Z
		w.X, w.Y, w.Z = &x, &y, &z
	}
	return w
}

func (r *FlightRecord) fromWire(w flightRecordWire) {
	*r = FlightRecord{
		Time: w.Time, Longitude: w.Longitude, Latitude: w.Latitude, Altitude: w.Altitude,
		Roll: w.Roll, Pitch: w.Pitch, Yaw: w.Yaw,
	}
	if w.X != nil && w.Y != nil && w.Z != nil {
		r.HasCartesian = true
		r.X, r.Y, r.Z = *w.X, *w.Y, *w.Z
	}
}

// MarshalJSON writes x, y and z only for records with HasCartesian set.
func (r FlightRecord) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.wire())
}

func (r *FlightRecord) UnmarshalJSON(data []byte) error {
	var w flightRecordWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	r.fromWire(w)
	return nil
}

func (r FlightRecord) MarshalMsgpack() ([]byte, error) {
	return msgpack.Marshal(r.wire())
}

func (r *FlightRecord) UnmarshalMsgpack(data []byte) error {
	var w flightRecordWire
	if err := msgpack.Unmarshal(data, &w); err != nil {
		return err
	}
	r.fromWire(w)
	return nil
}

// FlightTable is an ordered, columnar sequence of samples sharing one schema.
// X, Y and Z stay nil until the coordinate transform has run.
type FlightTable struct {
	Time      []float64 `json:"time" msgpack:"time"`
	Longitude []float64 `json:"longitude" msgpack:"longitude"`
	Latitude  []float64 `json:"latitude" msgpack:"latitude"`
	Altitude  []float64 `json:"altitude" msgpack:"altitude"`
	Roll      []float64 `json:"roll" msgpack:"roll"`
	Pitch     []float64 `json:"pitch" msgpack:"pitch"`
	Yaw       []float64 `json:"yaw" msgpack:"yaw"`
	X         []float64 `json:"x,omitempty" msgpack:"x,omitempty"`
	Y         []float64 `json:"y,omitempty" msgpack:"y,omitempty"`
	Z         []float64 `json:"z,omitempty" msgpack:"z,omitempty"`
}

// NewFlightTable allocates a table with capacity for n rows in every required column.
func NewFlightTable(n int) *FlightTable {
	t := &FlightTable{}
	for _, f := range RequiredFields {
		t.SetColumn(f, make([]float64, 0, n))
	}
	return t
}

// Len returns the number of rows.
func (t *FlightTable) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Time)
}

// Column returns the backing slice for f. Callers must not modify it unless
// they own the table.
func (t *FlightTable) Column(f Field) []float64 {
	switch f {
	case FieldTime:
		return t.Time
	case FieldLongitude:
		return t.Longitude
	case FieldLatitude:
		return t.Latitude
	case FieldAltitude:
		return t.Altitude
	case FieldRoll:
		return t.Roll
	case FieldPitch:
		return t.Pitch
	case FieldYaw:
		return t.Yaw
	case FieldX:
		return t.X
	case FieldY:
		return t.Y
	case FieldZ:
		return t.Z
	}
	return nil
}

// SetColumn replaces the backing slice for f.
func (t *FlightTable) SetColumn(f Field, v []float64) {
	switch f {
	case FieldTime:
		t.Time = v
	case FieldLongitude:
		t.Longitude = v
	case FieldLatitude:
		t.Latitude = v
	case FieldAltitude:
		t.Altitude = v
	case FieldRoll:
		t.Roll = v
	case FieldPitch:
		t.Pitch = v
	case FieldYaw:
		t.Yaw = v
	case FieldX:
		t.X = v
	case FieldY:
		t.Y = v
	case FieldZ:
		t.Z = v
	}
}

// Fields returns the columns present in the table, in header order.
func (t *FlightTable) Fields() []Field {
	fields := append([]Field(nil), RequiredFields...)
	if t.HasCartesian() {
		fields = append(fields, CartesianFields...)
	}
	return fields
}

// HasCartesian reports whether X, Y and Z are populated for every row.
func (t *FlightTable) HasCartesian() bool {
	if t == nil {
		return false
	}
	n := len(t.Time)
	return t.X != nil && t.Y != nil && t.Z != nil &&
		len(t.X) == n && len(t.Y) == n && len(t.Z) == n
}

// Record returns row i as a FlightRecord.
func (t *FlightTable) Record(i int) FlightRecord {
	r := FlightRecord{
		Time:      t.Time[i],
		Longitude: t.Longitude[i],
		Latitude:  t.Latitude[i],
		Altitude:  t.Altitude[i],
		Roll:      t.Roll[i],
		Pitch:     t.Pitch[i],
		Yaw:       t.Yaw[i],
	}
	if t.HasCartesian() {
		r.HasCartesian = true
		r.X, r.Y, r.Z = t.X[i], t.Y[i], t.Z[i]
	}
	return r
}

// Append adds a record. Cartesian values are only kept when the table already
// carries Cartesian columns or is still empty.
func (t *FlightTable) Append(r FlightRecord) {
	withXYZ := r.HasCartesian && (t.Len() == 0 || t.HasCartesian())
	t.Time = append(t.Time, r.Time)
	t.Longitude = append(t.Longitude, r.Longitude)
	t.Latitude = append(t.Latitude, r.Latitude)
	t.Altitude = append(t.Altitude, r.Altitude)
	t.Roll = append(t.Roll, r.Roll)
	t.Pitch = append(t.Pitch, r.Pitch)
	t.Yaw = append(t.Yaw, r.Yaw)
	if withXYZ {
		t.X = append(t.X, r.X)
		t.Y = append(t.Y, r.Y)
		t.Z = append(t.Z, r.Z)
	}
}

// Clone returns a deep copy of the table.
func (t *FlightTable) Clone() *FlightTable {
	if t == nil {
		return nil
	}
	c := &FlightTable{}
	for _, f := range append(append([]Field(nil), RequiredFields...), CartesianFields...) {
		if src := t.Column(f); src != nil {
			c.SetColumn(f, append(make([]float64, 0, len(src)), src...))
		}
	}
	return c
}

// Duration returns last time minus first time, or 0 for tables with fewer than two rows.
func (t *FlightTable) Duration() float64 {
	if t.Len() < 2 {
		return 0
	}
	return t.Time[len(t.Time)-1] - t.Time[0]
}

// Validate checks the invariants every table past normalization must hold:
// equal column lengths, at least two rows, strictly increasing time and
// finite values only.
func (t *FlightTable) Validate() error {
	n := t.Len()
	for _, f := range t.Fields() {
		if len(t.Column(f)) != n {
			return fmt.Errorf("column %s has %d rows, want %d", f, len(t.Column(f)), n)
		}
	}
	if n < 2 {
		return &InsufficientDataError{Rows: n, Need: 2}
	}
	for _, f := range t.Fields() {
		for i, v := range t.Column(f) {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return fmt.Errorf("column %s row %d is not finite", f, i)
			}
		}
	}
	for i := 1; i < n; i++ {
		if !(t.Time[i] > t.Time[i-1]) {
			return fmt.Errorf("time not strictly increasing at row %d (%v after %v)", i, t.Time[i], t.Time[i-1])
		}
	}
	return nil
}

// RawTable is loader output: text cells projected onto RequiredFields.
type RawTable struct {
	Header []string
	Rows   [][]string
}

// Len returns the number of data rows.
func (r *RawTable) Len() int {
	if r == nil {
		return 0
	}
	return len(r.Rows)
}

// Frame is one replay sample in the order replay viewers expect.
type Frame struct {
	Time  float64
	Lat   float64
	Lon   float64
	Alt   float64
	Roll  float64
	Pitch float64
	Yaw   float64
}
