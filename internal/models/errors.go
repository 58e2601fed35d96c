package models

import (
	"errors"
	"fmt"
	"strings"
)

// SchemaError reports required columns absent from a source header.
type SchemaError struct {
	Missing []string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("missing required columns: %s", strings.Join(e.Missing, ", "))
}

// NoValidDataError reports that normalization left no usable rows.
type NoValidDataError struct {
	InputRows int
	Empty     bool // the source had no data rows at all
}

func (e *NoValidDataError) Error() string {
	if e.Empty {
		return "no valid data: source contains no data rows"
	}
	return fmt.Sprintf("no valid data: all %d input rows were rejected", e.InputRows)
}

// InsufficientDataError reports a table too small for interpolation.
type InsufficientDataError struct {
	Rows int
	Need int
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("insufficient data: need at least %d rows to interpolate, got %d", e.Need, e.Rows)
}

// ConfigurationError reports an invalid option such as sample rate or altitude unit.
type ConfigurationError struct {
	Field  string
	Value  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid %s %q: %s", e.Field, e.Value, e.Reason)
}

// IOError wraps a read or write failure on a source, checkpoint or export path.
type IOError struct {
	Op   string
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

// Error kind codes shared by session status and API responses.
const (
	KindSchema        = "SCHEMA_ERROR"
	KindNoValidData   = "NO_VALID_DATA"
	KindInsufficient  = "INSUFFICIENT_DATA"
	KindConfiguration = "CONFIGURATION_ERROR"
	KindIO            = "IO_ERROR"
	KindInternal      = "INTERNAL_ERROR"
)

// ErrorKind classifies err into one of the Kind codes.
func ErrorKind(err error) string {
	var (
		schemaErr *SchemaError
		noData    *NoValidDataError
		short     *InsufficientDataError
		cfgErr    *ConfigurationError
		ioErr     *IOError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &schemaErr):
		return KindSchema
	case errors.As(err, &noData):
		return KindNoValidData
	case errors.As(err, &short):
		return KindInsufficient
	case errors.As(err, &cfgErr):
		return KindConfiguration
	case errors.As(err, &ioErr):
		return KindIO
	}
	return KindInternal
}
