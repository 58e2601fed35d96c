// interfaces.go - Handler interface definitions for clean separation of concerns
package api

import (
	"context"
	"io"

	"github.com/labstack/echo/v4"

	"github.com/flight-replay/backend/internal/models"
	"github.com/flight-replay/backend/internal/session"
)

// FileHandler handles uploaded source files
type FileHandler interface {
	HandleUploadFile(c echo.Context) error
	HandleUploadBinary(c echo.Context) error
	HandleGetRecentFiles(c echo.Context) error
	HandleGetFile(c echo.Context) error
	HandleDeleteFile(c echo.Context) error
	HandleRenameFile(c echo.Context) error
}

// ReplayHandler handles replay processing sessions and their outputs
type ReplayHandler interface {
	HandleStartReplay(c echo.Context) error
	HandleReplayStatus(c echo.Context) error
	HandleReplayProgressStream(c echo.Context) error
	HandleSessionKeepAlive(c echo.Context) error
	HandleGetTable(c echo.Context) error
	HandleGetTableMsgpack(c echo.Context) error
	HandleGetSamples(c echo.Context) error
	HandleDownloadFDR(c echo.Context) error
	HandleDeleteSession(c echo.Context) error
}

// HealthHandler handles health check operations
type HealthHandler interface {
	HandleHealth(c echo.Context) error
}

// SessionManager defines the interface for session management
// This allows mocking in tests
type SessionManager interface {
	StartSession(fileID, filePath string, opts session.SessionOptions) (*models.ReplaySession, error)
	GetSession(id string) (*models.ReplaySession, bool)
	TouchSession(id string) bool
	DeleteSession(id string) bool
	GetTable(id string) (*models.FlightTable, error)
	GetWindow(ctx context.Context, id string, start, end float64, stride, limit int) (*models.FlightTable, error)
	WriteFDR(id string, w io.Writer) (int, error)
}

// ArtifactRemover drops cached processing output for a deleted upload
type ArtifactRemover interface {
	Delete(fileID string) error
}

var (
	_ SessionManager  = (*session.Manager)(nil)
	_ ArtifactRemover = (*session.ArtifactStore)(nil)
)
