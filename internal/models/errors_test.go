package models

import (
	"errors"
	"fmt"
	"io/fs"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorKind(t *testing.T) {
	cases := map[string]error{
		KindSchema:        &SchemaError{Missing: []string{"Time"}},
		KindNoValidData:   &NoValidDataError{Empty: true},
		KindInsufficient:  fmt.Errorf("resample: %w", &InsufficientDataError{Rows: 1, Need: 2}),
		KindConfiguration: &ConfigurationError{Field: "rate_hz", Value: "0", Reason: "must be positive"},
		KindIO:            &IOError{Op: "open", Path: "x.csv", Err: fs.ErrNotExist},
		KindInternal:      errors.New("boom"),
	}
	for want, err := range cases {
		assert.Equal(t, want, ErrorKind(err), err.Error())
	}
	assert.Empty(t, ErrorKind(nil))
}

func TestErrorMessagesCarryDetail(t *testing.T) {
	assert.Equal(t, "missing required columns: Longitude, Yaw (deg)",
		(&SchemaError{Missing: []string{"Longitude", "Yaw (deg)"}}).Error())
	assert.Contains(t, (&NoValidDataError{InputRows: 12}).Error(), "12")
	assert.Contains(t, (&InsufficientDataError{Rows: 1, Need: 2}).Error(), "got 1")
	assert.Equal(t, `invalid altitude_unit "yd": must be "m" or "ft"`,
		(&ConfigurationError{Field: "altitude_unit", Value: "yd", Reason: `must be "m" or "ft"`}).Error())

	ioErr := &IOError{Op: "open", Path: "in.csv", Err: fs.ErrNotExist}
	assert.True(t, errors.Is(ioErr, fs.ErrNotExist))
	assert.Contains(t, ioErr.Error(), "in.csv")
}
