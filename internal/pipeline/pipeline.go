// Package pipeline wires the load, normalize, resample, transform and export
// stages together and decides when a cleaned-data checkpoint can be reused.
package pipeline

import (
	"context"
	"math"
	"time"

	"github.com/flight-replay/backend/internal/export"
	"github.com/flight-replay/backend/internal/logging"
	"github.com/flight-replay/backend/internal/models"
	"github.com/flight-replay/backend/internal/parser"
	"github.com/flight-replay/backend/internal/replay"
)

// Result describes a finished run.
type Result struct {
	Table      *models.FlightTable
	Checkpoint export.CheckpointStatus // state found before the run
	Report     *parser.NormalizeReport // nil when preprocessing was skipped
	CleanPath  string
	FDRPath    string
	FDRRows    int
	Elapsed    time.Duration
}

// Rows returns the number of rows in the final table.
func (r *Result) Rows() int { return r.Table.Len() }

// Duration returns the flight time covered by the final table, in seconds.
func (r *Result) Duration() float64 { return r.Table.Duration() }

// Runner executes pipeline runs. It holds no per-run state and is safe for
// concurrent use as long as runs target different paths.
type Runner struct {
	logger   logging.Logger
	recorder Recorder
	registry *parser.Registry
}

// NewRunner builds a runner. A nil logger or recorder disables that output.
func NewRunner(logger logging.Logger, recorder Recorder) *Runner {
	if recorder == nil {
		recorder = noopRecorder{}
	}
	return &Runner{
		logger:   logging.OrNoop(logger).With(logging.String("component", "pipeline")),
		recorder: recorder,
		registry: parser.GetGlobalRegistry(),
	}
}

// Run executes the full pipeline: reuse or rebuild the checkpoint at
// opts.CleanPath, then write the replay file at opts.FDRPath.
func (r *Runner) Run(ctx context.Context, opts Options) (res *Result, err error) {
	start := time.Now()
	outcome := OutcomeProcessed
	defer func() {
		if err != nil {
			outcome = OutcomeFailed
			r.logger.Error(ctx, "pipeline failed", logging.Err(err))
		}
		r.recorder.RunFinished(outcome)
	}()

	opts = opts.WithDefaults()
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	unit, _ := replay.ParseAltitudeUnit(opts.AltitudeUnit)

	status := export.CheckpointAbsent
	if opts.ForceReprocess {
		r.logger.Info(ctx, "reprocessing forced", logging.String("clean", opts.CleanPath))
	} else if status, err = export.CheckpointStatusOf(opts.CleanPath); err != nil {
		return nil, err
	}

	res = &Result{Checkpoint: status, CleanPath: opts.CleanPath, FDRPath: opts.FDRPath}
	switch status {
	case export.CheckpointComplete:
		r.logger.Info(ctx, "loading existing cleaned data", logging.String("path", opts.CleanPath))
		if res.Table, err = r.readCheckpoint(opts.CleanPath); err != nil {
			return nil, err
		}
		r.warnOnRateMismatch(ctx, res.Table, opts.RateHz)
		outcome = OutcomeReused

	case export.CheckpointIncomplete:
		r.logger.Info(ctx, "cleaned data lacks coordinates, computing ECEF", logging.String("path", opts.CleanPath))
		table, err := r.readCheckpoint(opts.CleanPath)
		if err != nil {
			return nil, err
		}
		if res.Table, err = r.transform(table, unit); err != nil {
			return nil, err
		}
		if err := r.writeCheckpoint(opts.CleanPath, res.Table); err != nil {
			return nil, err
		}
		outcome = OutcomeReused

	default:
		r.logger.Info(ctx, "preprocessing flight data", logging.String("input", opts.InputPath))
		processed, err := r.process(ctx, opts.InputPath, opts.SourceFormat, opts.RateHz, unit, nil)
		if err != nil {
			return nil, err
		}
		res.Table, res.Report = processed.Table, processed.Report
		if err := r.writeCheckpoint(opts.CleanPath, res.Table); err != nil {
			return nil, err
		}
	}

	stop := r.time(StageExport)
	res.FDRRows, err = export.WriteFDR(opts.FDRPath, res.Table)
	stop()
	if err != nil {
		return nil, err
	}
	r.recorder.AddRowsOutput(res.FDRRows)

	res.Elapsed = time.Since(start)
	r.logger.Info(ctx, "pipeline complete",
		logging.String("checkpoint", status.String()),
		logging.Int("rows", res.Rows()),
		logging.Float("duration_s", res.Duration()),
		logging.String("fdr", opts.FDRPath),
		logging.Duration("elapsed", res.Elapsed))
	return res, nil
}

// ProcessOptions parameterise an in-memory run.
type ProcessOptions struct {
	RateHz       float64
	AltitudeUnit string
	SourceFormat string
	Progress     ProgressFunc
}

// Process runs load through transform on sourcePath without touching the
// checkpoint or replay file. The returned table carries X, Y and Z.
func (r *Runner) Process(ctx context.Context, sourcePath string, opts ProcessOptions) (res *Result, err error) {
	defer func() {
		outcome := OutcomeProcessed
		if err != nil {
			outcome = OutcomeFailed
		}
		r.recorder.RunFinished(outcome)
	}()

	if opts.RateHz == 0 {
		opts.RateHz = replay.DefaultRateHz
	}
	if err := replay.ValidateRate(opts.RateHz); err != nil {
		return nil, err
	}
	unit, err := replay.ParseAltitudeUnit(opts.AltitudeUnit)
	if err != nil {
		return nil, err
	}
	return r.process(ctx, sourcePath, opts.SourceFormat, opts.RateHz, unit, opts.Progress)
}

func (r *Runner) process(ctx context.Context, path, format string, rateHz float64, unit replay.AltitudeUnit, progress ProgressFunc) (*Result, error) {
	if progress == nil {
		progress = func(Stage, float64) {}
	}
	start := time.Now()

	src := r.registry.FindFormat(path)
	if format != "" {
		f, err := r.registry.GetFormatByName(format)
		if err != nil {
			return nil, &models.ConfigurationError{Field: "source_format", Value: format, Reason: err.Error()}
		}
		src = f
	}

	progress(StageLoad, 0)
	stop := r.time(StageLoad)
	raw, err := src.Load(path)
	stop()
	if err != nil {
		return nil, err
	}
	r.recorder.AddRowsLoaded(raw.Len())
	r.logger.Debug(ctx, "source loaded", logging.String("format", src.Name()), logging.Int("rows", raw.Len()))

	progress(StageNormalize, 25)
	stop = r.time(StageNormalize)
	table, report, err := parser.Normalize(raw)
	stop()
	if report != nil {
		r.recorder.AddRowsDropped("invalid", report.InvalidRows)
		r.recorder.AddRowsDropped("non_finite", report.NonFiniteRows)
		r.recorder.AddRowsDropped("duplicate", report.DuplicateRows)
	}
	if err != nil {
		return nil, err
	}
	if report.Dropped() > 0 {
		r.logger.Warn(ctx, "rows dropped during normalization",
			logging.Int("invalid", report.InvalidRows),
			logging.Int("non_finite", report.NonFiniteRows),
			logging.Int("duplicate", report.DuplicateRows))
	}

	progress(StageResample, 50)
	stop = r.time(StageResample)
	resampled, err := replay.Resample(table, rateHz)
	stop()
	if err != nil {
		return nil, err
	}
	r.logger.Debug(ctx, "resampled",
		logging.Float("rate_hz", rateHz), logging.Int("rows_in", table.Len()), logging.Int("rows_out", resampled.Len()))

	progress(StageTransform, 75)
	final, err := r.transform(resampled, unit)
	if err != nil {
		return nil, err
	}
	progress(StageTransform, 100)

	return &Result{
		Table:      final,
		Checkpoint: export.CheckpointAbsent,
		Report:     report,
		Elapsed:    time.Since(start),
	}, nil
}

func (r *Runner) transform(table *models.FlightTable, unit replay.AltitudeUnit) (*models.FlightTable, error) {
	defer r.time(StageTransform)()
	return replay.NewTransformer(unit).ToECEF(table)
}

// readCheckpoint loads a cleaned file and holds it to the same invariants as
// freshly normalized data; use force reprocess to rebuild a bad one.
func (r *Runner) readCheckpoint(path string) (*models.FlightTable, error) {
	defer r.time(StageCheckpoint)()
	table, err := export.ReadCheckpoint(path)
	if err != nil {
		return nil, err
	}
	if err := table.Validate(); err != nil {
		return nil, &models.IOError{Op: "validate", Path: path, Err: err}
	}
	return table, nil
}

func (r *Runner) writeCheckpoint(path string, table *models.FlightTable) error {
	defer r.time(StageCheckpoint)()
	return export.WriteCheckpoint(path, table)
}

// time starts a stage timer; call the returned func to record it.
func (r *Runner) time(stage Stage) func() {
	start := time.Now()
	return func() { r.recorder.ObserveStage(string(stage), time.Since(start)) }
}

// warnOnRateMismatch flags reused checkpoints sampled at a different rate.
func (r *Runner) warnOnRateMismatch(ctx context.Context, table *models.FlightTable, rateHz float64) {
	if table.Len() < 2 {
		return
	}
	dt := table.Time[1] - table.Time[0]
	if dt <= 0 {
		return
	}
	if got := 1 / dt; math.Abs(got-rateHz) > 1e-6*rateHz {
		r.logger.Warn(ctx, "reused checkpoint was sampled at a different rate; use force reprocess to rebuild",
			logging.Float("checkpoint_rate_hz", got), logging.Float("requested_rate_hz", rateHz))
	}
}
