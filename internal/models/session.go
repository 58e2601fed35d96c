package models

// SessionStatus represents the status of a replay processing session.
type SessionStatus string

const (
	SessionStatusPending    SessionStatus = "pending"
	SessionStatusProcessing SessionStatus = "processing"
	SessionStatusComplete   SessionStatus = "complete"
	SessionStatusError      SessionStatus = "error"
)

// ReplaySession represents one processing run over an uploaded telemetry file.
type ReplaySession struct {
	ID               string        `json:"id"`
	FileID           string        `json:"fileId"`
	Status           SessionStatus `json:"status"`
	Progress         float64       `json:"progress"` // 0-100
	RateHz           float64       `json:"rateHz"`
	AltitudeUnit     string        `json:"altitudeUnit"`
	InputRows        int           `json:"inputRows,omitempty"`
	DroppedRows      int           `json:"droppedRows,omitempty"`
	SampleCount      int           `json:"sampleCount,omitempty"`
	StartTime        float64       `json:"startTime,omitempty"` // seconds, first sample
	EndTime          float64       `json:"endTime,omitempty"`   // seconds, last sample
	ProcessingTimeMs int64         `json:"processingTimeMs,omitempty"`
	Error            string        `json:"error,omitempty"`
	ErrorKind        string        `json:"errorKind,omitempty"`
}

// NewReplaySession creates a new ReplaySession in pending status.
func NewReplaySession(id, fileID string) *ReplaySession {
	return &ReplaySession{
		ID:       id,
		FileID:   fileID,
		Status:   SessionStatusPending,
		Progress: 0,
	}
}
