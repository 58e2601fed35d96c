package pipeline

import (
	"strings"

	"github.com/flight-replay/backend/internal/models"
	"github.com/flight-replay/backend/internal/replay"
)

const (
	DefaultCleanPath = "data/clean/cleaned.csv"
	DefaultFDRPath   = "data/out.fdr"
)

// Options selects the source, output paths and processing parameters of a run.
type Options struct {
	InputPath      string
	CleanPath      string
	FDRPath        string
	RateHz         float64
	AltitudeUnit   string
	SourceFormat   string // empty selects by extension
	ForceReprocess bool
}

// DefaultOptions returns options with every default filled in except InputPath.
func DefaultOptions() Options {
	return Options{
		CleanPath:    DefaultCleanPath,
		FDRPath:      DefaultFDRPath,
		RateHz:       replay.DefaultRateHz,
		AltitudeUnit: string(replay.AltitudeMeters),
	}
}

// WithDefaults fills zero-valued fields from DefaultOptions.
func (o Options) WithDefaults() Options {
	d := DefaultOptions()
	if strings.TrimSpace(o.CleanPath) == "" {
		o.CleanPath = d.CleanPath
	}
	if strings.TrimSpace(o.FDRPath) == "" {
		o.FDRPath = d.FDRPath
	}
	if o.RateHz == 0 {
		o.RateHz = d.RateHz
	}
	if o.AltitudeUnit == "" {
		o.AltitudeUnit = d.AltitudeUnit
	}
	return o
}

// Validate checks the options after defaults are applied.
func (o Options) Validate() error {
	if strings.TrimSpace(o.InputPath) == "" {
		return &models.ConfigurationError{Field: "input", Value: o.InputPath, Reason: "an input file is required"}
	}
	if err := replay.ValidateRate(o.RateHz); err != nil {
		return err
	}
	if _, err := replay.ParseAltitudeUnit(o.AltitudeUnit); err != nil {
		return err
	}
	return nil
}
