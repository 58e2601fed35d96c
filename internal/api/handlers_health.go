// handlers_health.go - Health check handlers
package api

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

// HealthHandlerImpl implements the HealthHandler interface
type HealthHandlerImpl struct {
	version  string
	started  time.Time
	defaults ReplayDefaults
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(version string, defaults ReplayDefaults) HealthHandler {
	return &HealthHandlerImpl{
		version:  version,
		started:  time.Now(),
		defaults: defaults,
	}
}

// HandleHealth reports liveness along with the processing defaults clients
// get when they omit rate or unit.
func (h *HealthHandlerImpl) HandleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"status":        "ok",
		"version":       h.version,
		"uptimeSeconds": int64(time.Since(h.started).Seconds()),
		"rateHz":        h.defaults.RateHz,
		"altitudeUnit":  h.defaults.AltitudeUnit,
	})
}
