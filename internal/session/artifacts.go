package session

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/flight-replay/backend/internal/export"
	"github.com/flight-replay/backend/internal/logging"
	"github.com/flight-replay/backend/internal/models"
)

// shortID safely truncates an ID for logging
func shortID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}

// ArtifactStore keeps the cleaned-data checkpoint of every processed upload
// so reopening a file at the same rate and unit skips the pipeline.
type ArtifactStore struct {
	dir    string
	logger logging.Logger
	mu     sync.RWMutex
	// fileID -> checkpoint paths
	cache map[string][]string
}

// NewArtifactStore creates the directory and indexes checkpoints already in it.
func NewArtifactStore(dir string, logger logging.Logger) (*ArtifactStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating artifact directory: %w", err)
	}
	s := &ArtifactStore{
		dir:    dir,
		logger: logging.OrNoop(logger).With(logging.String("component", "artifacts")),
		cache:  make(map[string][]string),
	}
	s.scanExisting()
	return s, nil
}

// scanExisting indexes files named file_<id>_<rate>hz_<unit>.csv.
func (s *ArtifactStore) scanExisting() {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		s.logger.Warn(context.Background(), "failed to scan artifact directory", logging.Err(err))
		return
	}
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, "file_") || filepath.Ext(name) != ".csv" {
			continue
		}
		rest := strings.TrimSuffix(strings.TrimPrefix(name, "file_"), ".csv")
		// uuids contain no underscores, so the id ends at the first one
		fileID, _, ok := strings.Cut(rest, "_")
		if !ok {
			continue
		}
		s.cache[fileID] = append(s.cache[fileID], filepath.Join(s.dir, name))
	}
	s.logger.Info(context.Background(), "scanned existing checkpoints", logging.Int("files", len(s.cache)))
}

// CheckpointPath returns where the checkpoint for fileID at rate and unit lives.
func (s *ArtifactStore) CheckpointPath(fileID string, rateHz float64, unit string) string {
	rate := strings.ReplaceAll(strconv.FormatFloat(rateHz, 'f', -1, 64), ".", "p")
	return filepath.Join(s.dir, fmt.Sprintf("file_%s_%shz_%s.csv", fileID, rate, unit))
}

// Lookup returns the stored table when a complete, valid checkpoint exists.
func (s *ArtifactStore) Lookup(fileID string, rateHz float64, unit string) (*models.FlightTable, bool) {
	path := s.CheckpointPath(fileID, rateHz, unit)
	status, err := export.CheckpointStatusOf(path)
	if err != nil || status != export.CheckpointComplete {
		return nil, false
	}
	table, err := export.ReadCheckpoint(path)
	if err != nil {
		s.logger.Warn(context.Background(), "unreadable checkpoint", logging.String("path", path), logging.Err(err))
		return nil, false
	}
	if err := table.Validate(); err != nil {
		s.logger.Warn(context.Background(), "invalid checkpoint ignored", logging.String("path", path), logging.Err(err))
		return nil, false
	}
	s.logger.Debug(context.Background(), "reusing checkpoint", logging.String("file", shortID(fileID)))
	return table, true
}

// Store writes the checkpoint for fileID. The file is replaced atomically, so
// a concurrent Lookup of the same key never reads a partial table.
func (s *ArtifactStore) Store(fileID string, rateHz float64, unit string, table *models.FlightTable) error {
	path := s.CheckpointPath(fileID, rateHz, unit)
	if err := export.WriteCheckpoint(path, table); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.cache[fileID] {
		if p == path {
			return nil
		}
	}
	s.cache[fileID] = append(s.cache[fileID], path)
	return nil
}

// Delete removes every checkpoint of fileID (call when the upload is deleted).
func (s *ArtifactStore) Delete(fileID string) error {
	s.mu.Lock()
	paths := s.cache[fileID]
	delete(s.cache, fileID)
	s.mu.Unlock()

	for _, p := range paths {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to delete checkpoint: %w", err)
		}
	}
	return nil
}

// List returns the IDs of files with at least one checkpoint.
func (s *ArtifactStore) List() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.cache))
	for id := range s.cache {
		ids = append(ids, id)
	}
	return ids
}

// CleanupOrphaned removes checkpoints whose upload no longer exists.
func (s *ArtifactStore) CleanupOrphaned(fileIDs []string) int {
	valid := make(map[string]bool, len(fileIDs))
	for _, id := range fileIDs {
		valid[id] = true
	}

	removed := 0
	for _, id := range s.List() {
		if valid[id] {
			continue
		}
		if err := s.Delete(id); err == nil {
			removed++
		}
	}
	return removed
}
