// Package session runs replay processing for uploaded files in the
// background and serves the finalized tables to the API.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/flight-replay/backend/internal/export"
	"github.com/flight-replay/backend/internal/logging"
	"github.com/flight-replay/backend/internal/models"
	"github.com/flight-replay/backend/internal/pipeline"
	"github.com/flight-replay/backend/internal/replay"
	"github.com/flight-replay/backend/internal/storage"
)

// DefaultMaxSessions limits concurrent sessions to prevent memory exhaustion
const DefaultMaxSessions = 10

// SessionMaxAge is how long to keep completed sessions before cleanup
const SessionMaxAge = 30 * time.Minute

// SessionKeepAliveWindow is how long to keep sessions that are actively being used
const SessionKeepAliveWindow = 5 * time.Minute

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionNotReady = errors.New("session not complete")
	ErrTooManySessions = errors.New("too many active sessions")
)

// SessionOptions are the per-session pipeline parameters.
type SessionOptions struct {
	RateHz       float64
	AltitudeUnit string
}

// Config wires a Manager to its collaborators.
type Config struct {
	TempDir     string
	MaxSessions int
	MaxRateHz   float64 // defaults to replay.MaxRateHz
	SampleStore storage.SampleStoreOptions
	Artifacts   *ArtifactStore // optional checkpoint cache
	Logger      logging.Logger
}

// Manager handles replay processing sessions.
type Manager struct {
	sessions    map[string]*SessionState
	mu          sync.RWMutex
	runner      *pipeline.Runner
	artifacts   *ArtifactStore
	tempDir     string
	maxSessions int
	maxRateHz   float64
	storeOpts   storage.SampleStoreOptions
	logger      logging.Logger
	wg          sync.WaitGroup
}

// SessionState holds the session metadata and its finalized data.
type SessionState struct {
	Session      *models.ReplaySession
	Table        *models.FlightTable  // read-only once the session is complete
	Samples      *storage.SampleStore // windowed queries; nil if the store could not be built
	CreatedAt    time.Time
	LastAccessed time.Time
}

// NewManager creates a session manager that processes files with runner.
func NewManager(runner *pipeline.Runner, cfg Config) *Manager {
	if cfg.MaxSessions <= 0 {
		cfg.MaxSessions = DefaultMaxSessions
	}
	if cfg.MaxRateHz <= 0 || cfg.MaxRateHz > replay.MaxRateHz {
		cfg.MaxRateHz = replay.MaxRateHz
	}
	if cfg.TempDir == "" {
		cfg.TempDir = "./data/temp"
	}
	return &Manager{
		sessions:    make(map[string]*SessionState),
		runner:      runner,
		artifacts:   cfg.Artifacts,
		tempDir:     cfg.TempDir,
		maxSessions: cfg.MaxSessions,
		maxRateHz:   cfg.MaxRateHz,
		storeOpts:   cfg.SampleStore,
		logger:      logging.OrNoop(cfg.Logger).With(logging.String("component", "session")),
	}
}

// StartSession validates opts and begins processing filePath in the background.
func (m *Manager) StartSession(fileID, filePath string, opts SessionOptions) (*models.ReplaySession, error) {
	if opts.RateHz == 0 {
		opts.RateHz = replay.DefaultRateHz
	}
	if err := replay.ValidateRate(opts.RateHz); err != nil {
		return nil, err
	}
	if opts.RateHz > m.maxRateHz {
		return nil, &models.ConfigurationError{
			Field:  "rate_hz",
			Value:  strconv.FormatFloat(opts.RateHz, 'g', -1, 64),
			Reason: fmt.Sprintf("sample rate must not exceed %g Hz", m.maxRateHz),
		}
	}
	unit, err := replay.ParseAltitudeUnit(opts.AltitudeUnit)
	if err != nil {
		return nil, err
	}
	opts.AltitudeUnit = string(unit)

	if err := m.evictIfNeeded(); err != nil {
		return nil, err
	}

	session := models.NewReplaySession(uuid.New().String(), fileID)
	session.Status = models.SessionStatusProcessing
	session.RateHz = opts.RateHz
	session.AltitudeUnit = opts.AltitudeUnit

	now := time.Now()
	m.mu.Lock()
	m.sessions[session.ID] = &SessionState{Session: session, CreatedAt: now, LastAccessed: now}
	m.mu.Unlock()

	snapshot := *session
	m.wg.Add(1)
	go m.runSession(session.ID, fileID, filePath, opts)

	return &snapshot, nil
}

func (m *Manager) runSession(sessionID, fileID, filePath string, opts SessionOptions) {
	defer m.wg.Done()
	ctx := context.Background()
	log := m.logger.With(logging.String("session", shortID(sessionID)))

	defer func() {
		if r := recover(); r != nil {
			log.Error(ctx, "processing panicked", logging.Any("panic", r))
			m.updateSessionError(sessionID, fmt.Errorf("processing panicked: %v", r))
		}
	}()

	start := time.Now()
	log.Info(ctx, "processing started", logging.String("path", filePath),
		logging.Float("rate_hz", opts.RateHz), logging.String("unit", opts.AltitudeUnit))

	var (
		table  *models.FlightTable
		report *pipelineReport
	)
	if m.artifacts != nil {
		if cached, ok := m.artifacts.Lookup(fileID, opts.RateHz, opts.AltitudeUnit); ok {
			table = cached
			log.Info(ctx, "reusing stored checkpoint")
		}
	}

	if table == nil {
		res, err := m.runner.Process(ctx, filePath, pipeline.ProcessOptions{
			RateHz:       opts.RateHz,
			AltitudeUnit: opts.AltitudeUnit,
			Progress: func(_ pipeline.Stage, pct float64) {
				m.setProgress(sessionID, pct*0.9)
			},
		})
		if err != nil {
			log.Warn(ctx, "processing failed", logging.Err(err))
			m.updateSessionError(sessionID, err)
			return
		}
		table = res.Table
		report = &pipelineReport{input: res.Report.InputRows, dropped: res.Report.Dropped()}

		if m.artifacts != nil {
			if err := m.artifacts.Store(fileID, opts.RateHz, opts.AltitudeUnit, table); err != nil {
				log.Warn(ctx, "failed to store checkpoint", logging.Err(err))
			}
		}
	}

	samples, err := storage.NewSampleStore(m.tempDir, sessionID, m.storeOpts, m.logger)
	if err == nil {
		if err = samples.Load(ctx, table); err != nil {
			samples.Close()
			samples = nil
		}
	}
	if err != nil {
		// windowed queries fall back to the in-memory table
		log.Warn(ctx, "sample store unavailable", logging.Err(err))
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	state, ok := m.sessions[sessionID]
	if !ok {
		if samples != nil {
			samples.Close()
		}
		return
	}

	state.Table = table
	state.Samples = samples
	s := state.Session
	s.Status = models.SessionStatusComplete
	s.Progress = 100
	s.SampleCount = table.Len()
	if table.Len() > 0 {
		s.StartTime = table.Time[0]
		s.EndTime = table.Time[table.Len()-1]
	}
	if report != nil {
		s.InputRows = report.input
		s.DroppedRows = report.dropped
	}
	s.ProcessingTimeMs = time.Since(start).Milliseconds()

	log.Info(ctx, "processing complete", logging.Int("samples", s.SampleCount),
		logging.Int("dropped", s.DroppedRows), logging.Duration("elapsed", time.Since(start)))
}

type pipelineReport struct {
	input, dropped int
}

func (m *Manager) setProgress(sessionID string, pct float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if state, ok := m.sessions[sessionID]; ok {
		state.Session.Progress = pct
	}
}

func (m *Manager) updateSessionError(sessionID string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	state, ok := m.sessions[sessionID]
	if !ok {
		return
	}

	state.Session.Status = models.SessionStatusError
	state.Session.Error = err.Error()
	state.Session.ErrorKind = models.ErrorKind(err)
}

// evictIfNeeded removes the oldest finished sessions when at capacity.
func (m *Manager) evictIfNeeded() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.sessions) < m.maxSessions {
		return nil
	}

	var finished []string
	for id, state := range m.sessions {
		if isFinished(state.Session.Status) {
			finished = append(finished, id)
		}
	}
	sort.Slice(finished, func(i, j int) bool {
		return m.sessions[finished[i]].LastAccessed.Before(m.sessions[finished[j]].LastAccessed)
	})

	toFree := len(m.sessions) - m.maxSessions + 1
	if len(finished) < toFree {
		return ErrTooManySessions
	}
	for _, id := range finished[:toFree] {
		m.removeLocked(id)
		m.logger.Info(context.Background(), "evicted session to free memory", logging.String("session", shortID(id)))
	}
	return nil
}

func isFinished(status models.SessionStatus) bool {
	return status == models.SessionStatusComplete || status == models.SessionStatusError
}

func (m *Manager) removeLocked(id string) {
	if state, ok := m.sessions[id]; ok {
		if state.Samples != nil {
			state.Samples.Close()
		}
		delete(m.sessions, id)
	}
}

// CleanupOldSessions removes finished sessions idle for longer than maxAge,
// but keeps sessions that have been accessed within SessionKeepAliveWindow.
func (m *Manager) CleanupOldSessions(maxAge time.Duration) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	cutoff := now.Add(-maxAge)
	keepAliveCutoff := now.Add(-SessionKeepAliveWindow)

	removed := 0
	for id, state := range m.sessions {
		if !isFinished(state.Session.Status) {
			continue
		}
		if state.LastAccessed.After(keepAliveCutoff) || state.LastAccessed.After(cutoff) {
			continue
		}
		m.removeLocked(id)
		removed++
		m.logger.Info(context.Background(), "cleaned up aged session",
			logging.String("session", shortID(id)),
			logging.Duration("idle", now.Sub(state.LastAccessed).Round(time.Second)))
	}
	return removed
}

// GetSession returns a snapshot of a session by ID.
func (m *Manager) GetSession(id string) (*models.ReplaySession, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	state, ok := m.sessions[id]
	if !ok {
		return nil, false
	}
	snapshot := *state.Session
	return &snapshot, true
}

// TouchSession updates the LastAccessed timestamp for a session.
func (m *Manager) TouchSession(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	state, ok := m.sessions[id]
	if !ok {
		return false
	}
	state.LastAccessed = time.Now()
	return true
}

// DeleteSession stops tracking a session and releases its sample store.
func (m *Manager) DeleteSession(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.sessions[id]; !ok {
		return false
	}
	m.removeLocked(id)
	return true
}

// completedState returns the state of a complete session.
func (m *Manager) completedState(id string) (*SessionState, error) {
	state, ok := m.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	if state.Session.Status != models.SessionStatusComplete {
		return nil, ErrSessionNotReady
	}
	return state, nil
}

// GetTable returns a private copy of the finalized table. Callers may modify
// it freely; the session's table is never exposed.
func (m *Manager) GetTable(id string) (*models.FlightTable, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	state, err := m.completedState(id)
	if err != nil {
		return nil, err
	}
	return state.Table.Clone(), nil
}

// GetWindow returns rows with start <= time <= end, every stride-th row, at
// most limit rows.
func (m *Manager) GetWindow(ctx context.Context, id string, start, end float64, stride, limit int) (*models.FlightTable, error) {
	m.mu.RLock()
	state, err := m.completedState(id)
	var (
		samples *storage.SampleStore
		table   *models.FlightTable
	)
	if err == nil {
		samples, table = state.Samples, state.Table
	}
	m.mu.RUnlock()
	if err != nil {
		return nil, err
	}

	if samples != nil {
		return samples.Window(ctx, start, end, stride, limit)
	}
	return windowInMemory(table, start, end, stride, limit), nil
}

func windowInMemory(table *models.FlightTable, start, end float64, stride, limit int) *models.FlightTable {
	if stride < 1 {
		stride = 1
	}
	if limit <= 0 || limit > storage.MaxWindowRows {
		limit = storage.MaxWindowRows
	}
	lo := sort.SearchFloat64s(table.Time, start)
	out := models.NewFlightTable(0)
	for i := lo; i < table.Len() && table.Time[i] <= end && out.Len() < limit; i += stride {
		out.Append(table.Record(i))
	}
	return out
}

// WriteFDR streams the session's replay file to w.
func (m *Manager) WriteFDR(id string, w io.Writer) (int, error) {
	m.mu.RLock()
	state, err := m.completedState(id)
	var table *models.FlightTable
	if err == nil {
		table = state.Table
	}
	m.mu.RUnlock()
	if err != nil {
		return 0, err
	}
	return export.WriteFDRTo(w, replay.Frames(table))
}

// Wait blocks until every background run has finished.
func (m *Manager) Wait() {
	m.wg.Wait()
}

// Close waits for running sessions and releases every sample store.
func (m *Manager) Close() {
	m.Wait()
	m.mu.Lock()
	defer m.mu.Unlock()
	for id := range m.sessions {
		m.removeLocked(id)
	}
}
