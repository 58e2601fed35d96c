package pipeline

import "time"

// Stage names a timed step of the pipeline.
type Stage string

const (
	StageLoad       Stage = "load"
	StageNormalize  Stage = "normalize"
	StageResample   Stage = "resample"
	StageTransform  Stage = "transform"
	StageCheckpoint Stage = "checkpoint"
	StageExport     Stage = "export"
)

// Run outcomes reported to a Recorder.
const (
	OutcomeProcessed = "processed"
	OutcomeReused    = "reused"
	OutcomeFailed    = "failed"
)

// Recorder receives pipeline measurements. observability.PipelineCollector
// implements it.
type Recorder interface {
	ObserveStage(stage string, d time.Duration)
	AddRowsLoaded(n int)
	AddRowsDropped(reason string, n int)
	AddRowsOutput(n int)
	RunFinished(outcome string)
}

type noopRecorder struct{}

func (noopRecorder) ObserveStage(string, time.Duration) {}
func (noopRecorder) AddRowsLoaded(int)                  {}
func (noopRecorder) AddRowsDropped(string, int)         {}
func (noopRecorder) AddRowsOutput(int)                  {}
func (noopRecorder) RunFinished(string)                 {}

// ProgressFunc is called with a completion percentage between 0 and 100.
type ProgressFunc func(stage Stage, percent float64)
