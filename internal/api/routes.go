// routes.go - Route registration helpers
package api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/flight-replay/backend/internal/storage"
)

// Dependencies holds all handler dependencies
type Dependencies struct {
	Store      storage.Store
	SessionMgr SessionManager
	Artifacts  ArtifactRemover // optional
	Files      FileHandlerOptions
	Defaults   ReplayDefaults
	Metrics    http.Handler // optional; served at /metrics
	Version    string
}

// Handlers holds all handler instances
type Handlers struct {
	Health  HealthHandler
	Files   FileHandler
	Replay  ReplayHandler
	Metrics http.Handler
}

// NewHandlers creates all handler instances
func NewHandlers(deps *Dependencies) *Handlers {
	return &Handlers{
		Health:  NewHealthHandler(deps.Version, deps.Defaults),
		Files:   NewFileHandler(deps.Store, deps.Artifacts, deps.Files),
		Replay:  NewReplayHandler(deps.Store, deps.SessionMgr, deps.Defaults),
		Metrics: deps.Metrics,
	}
}

// RegisterRoutes registers all API routes with the Echo instance
func RegisterRoutes(e *echo.Echo, handlers *Handlers) {
	apiGroup := e.Group("/api")

	// Health check
	apiGroup.GET("/health", handlers.Health.HandleHealth)

	// Source files
	files := apiGroup.Group("/files")
	files.POST("/upload", handlers.Files.HandleUploadFile)
	files.POST("/upload/binary", handlers.Files.HandleUploadBinary)
	files.GET("/recent", handlers.Files.HandleGetRecentFiles)
	files.GET("/:id", handlers.Files.HandleGetFile)
	files.PUT("/:id", handlers.Files.HandleRenameFile)
	files.DELETE("/:id", handlers.Files.HandleDeleteFile)

	// Replay sessions
	replay := apiGroup.Group("/replay")
	replay.POST("", handlers.Replay.HandleStartReplay)
	replay.GET("/:sessionId/status", handlers.Replay.HandleReplayStatus)
	replay.GET("/:sessionId/progress", handlers.Replay.HandleReplayProgressStream)
	replay.POST("/:sessionId/keepalive", handlers.Replay.HandleSessionKeepAlive)
	replay.GET("/:sessionId/table", handlers.Replay.HandleGetTable)
	replay.GET("/:sessionId/table/msgpack", handlers.Replay.HandleGetTableMsgpack)
	replay.GET("/:sessionId/samples", handlers.Replay.HandleGetSamples)
	replay.GET("/:sessionId/fdr", handlers.Replay.HandleDownloadFDR)
	replay.DELETE("/:sessionId", handlers.Replay.HandleDeleteSession)

	if handlers.Metrics != nil {
		e.GET("/metrics", echo.WrapHandler(handlers.Metrics))
	}
}

// SetupMiddleware installs the JSON error handler
func SetupMiddleware(e *echo.Echo) {
	e.HTTPErrorHandler = ErrorHandler
}
