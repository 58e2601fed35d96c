// handlers_replay.go - Replay session handlers
package api

import (
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/flight-replay/backend/internal/models"
	"github.com/flight-replay/backend/internal/session"
	"github.com/flight-replay/backend/internal/storage"
)

// ReplayDefaults fill in options a start request leaves out
type ReplayDefaults struct {
	RateHz       float64
	AltitudeUnit string
}

// ReplayHandlerImpl implements the ReplayHandler interface
type ReplayHandlerImpl struct {
	store      storage.Store
	sessionMgr SessionManager
	defaults   ReplayDefaults
}

// NewReplayHandler creates a new replay handler instance
func NewReplayHandler(store storage.Store, sessionMgr SessionManager, defaults ReplayDefaults) ReplayHandler {
	return &ReplayHandlerImpl{
		store:      store,
		sessionMgr: sessionMgr,
		defaults:   defaults,
	}
}

// HandleStartReplay starts processing an uploaded file
func (h *ReplayHandlerImpl) HandleStartReplay(c echo.Context) error {
	var req startReplayRequest
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid request body", err)
	}
	if req.FileID == "" {
		return NewValidationError("fileId")
	}

	if _, err := h.store.Get(req.FileID); err != nil {
		return NewNotFoundError("file", req.FileID)
	}
	path, err := h.store.GetFilePath(req.FileID)
	if err != nil {
		return NewInternalError("failed to resolve file path", err)
	}

	opts := session.SessionOptions{RateHz: req.RateHz, AltitudeUnit: req.AltitudeUnit}
	if opts.RateHz == 0 {
		opts.RateHz = h.defaults.RateHz
	}
	if opts.AltitudeUnit == "" {
		opts.AltitudeUnit = h.defaults.AltitudeUnit
	}

	sess, err := h.sessionMgr.StartSession(req.FileID, path, opts)
	if err != nil {
		return NewDomainError(err)
	}
	return c.JSON(http.StatusAccepted, sess)
}

// HandleReplayStatus returns the current status of a session
func (h *ReplayHandlerImpl) HandleReplayStatus(c echo.Context) error {
	id := c.Param("sessionId")
	sess, ok := h.sessionMgr.GetSession(id)
	if !ok {
		return NewNotFoundError("session", id)
	}

	// Touch session to prevent cleanup while being viewed
	h.sessionMgr.TouchSession(id)
	return c.JSON(http.StatusOK, sess)
}

// HandleReplayProgressStream streams session progress via SSE until the
// session completes or fails.
func (h *ReplayHandlerImpl) HandleReplayProgressStream(c echo.Context) error {
	id := c.Param("sessionId")
	if _, ok := h.sessionMgr.GetSession(id); !ok {
		return NewNotFoundError("session", id)
	}

	res := c.Response()
	res.Header().Set("Content-Type", "text/event-stream")
	res.Header().Set("Cache-Control", "no-cache")
	res.Header().Set("Connection", "keep-alive")
	res.Header().Set("X-Accel-Buffering", "no")
	res.WriteHeader(http.StatusOK)

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	lastProgress := -1.0
	var lastStatus models.SessionStatus
	for {
		sess, ok := h.sessionMgr.GetSession(id)
		if !ok {
			writeEvent(c, map[string]string{"error": "session not found"})
			return nil
		}

		if sess.Progress != lastProgress || sess.Status != lastStatus {
			lastProgress, lastStatus = sess.Progress, sess.Status
			writeEvent(c, sess)
		}
		if sess.Status == models.SessionStatusComplete || sess.Status == models.SessionStatusError {
			return nil
		}

		select {
		case <-c.Request().Context().Done():
			return nil
		case <-ticker.C:
		}
	}
}

func writeEvent(c echo.Context, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	fmt.Fprintf(c.Response(), "data: %s\n\n", data)
	c.Response().Flush()
}

// HandleSessionKeepAlive extends session lifetime for active viewing
func (h *ReplayHandlerImpl) HandleSessionKeepAlive(c echo.Context) error {
	id := c.Param("sessionId")
	if !h.sessionMgr.TouchSession(id) {
		return NewNotFoundError("session", id)
	}
	return c.NoContent(http.StatusNoContent)
}

// HandleGetTable returns the finalized table as columnar JSON
func (h *ReplayHandlerImpl) HandleGetTable(c echo.Context) error {
	id := c.Param("sessionId")
	table, err := h.sessionMgr.GetTable(id)
	if err != nil {
		return NewDomainError(err)
	}
	h.sessionMgr.TouchSession(id)
	return c.JSON(http.StatusOK, table)
}

// HandleGetTableMsgpack returns the finalized table as MessagePack
func (h *ReplayHandlerImpl) HandleGetTableMsgpack(c echo.Context) error {
	id := c.Param("sessionId")
	table, err := h.sessionMgr.GetTable(id)
	if err != nil {
		return NewDomainError(err)
	}
	h.sessionMgr.TouchSession(id)

	data, err := msgpack.Marshal(table)
	if err != nil {
		return NewInternalError("failed to encode table", err)
	}
	return c.Blob(http.StatusOK, "application/msgpack", data)
}

// HandleGetSamples returns a time window of the finalized table.
// Query: start, end (seconds), stride (every n-th row), limit.
func (h *ReplayHandlerImpl) HandleGetSamples(c echo.Context) error {
	id := c.Param("sessionId")

	q, err := parseWindowQuery(c)
	if err != nil {
		return err
	}

	table, err := h.sessionMgr.GetWindow(c.Request().Context(), id, q.start, q.end, q.stride, q.limit)
	if err != nil {
		return NewDomainError(err)
	}
	h.sessionMgr.TouchSession(id)

	return c.JSON(http.StatusOK, map[string]interface{}{
		"start":   q.start,
		"end":     q.end,
		"stride":  q.stride,
		"rows":    table.Len(),
		"samples": table,
	})
}

// HandleDownloadFDR streams the session's replay file as an attachment
func (h *ReplayHandlerImpl) HandleDownloadFDR(c echo.Context) error {
	id := c.Param("sessionId")
	sess, ok := h.sessionMgr.GetSession(id)
	if !ok {
		return NewNotFoundError("session", id)
	}
	if sess.Status != models.SessionStatusComplete {
		return NewDomainError(session.ErrSessionNotReady)
	}

	name := "replay.fdr"
	if info, err := h.store.Get(sess.FileID); err == nil {
		base := filepath.Base(info.Name)
		name = strings.TrimSuffix(base, filepath.Ext(base)) + ".fdr"
	}

	res := c.Response()
	res.Header().Set(echo.HeaderContentType, echo.MIMETextPlainCharsetUTF8)
	res.Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", name))
	res.WriteHeader(http.StatusOK)

	if _, err := h.sessionMgr.WriteFDR(id, res); err != nil {
		// headers are already sent; the client sees a truncated body
		return err
	}
	h.sessionMgr.TouchSession(id)
	return nil
}

// HandleDeleteSession drops a session and its sample store
func (h *ReplayHandlerImpl) HandleDeleteSession(c echo.Context) error {
	id := c.Param("sessionId")
	if !h.sessionMgr.DeleteSession(id) {
		return NewNotFoundError("session", id)
	}
	return c.NoContent(http.StatusNoContent)
}

type startReplayRequest struct {
	FileID       string  `json:"fileId"`
	RateHz       float64 `json:"rateHz"`
	AltitudeUnit string  `json:"altitudeUnit"`
}

type windowQuery struct {
	start, end    float64
	stride, limit int
}

func parseWindowQuery(c echo.Context) (windowQuery, error) {
	q := windowQuery{start: -math.MaxFloat64, end: math.MaxFloat64, stride: 1, limit: storage.MaxWindowRows}

	floatParam := func(name string, dst *float64) error {
		raw := c.QueryParam(name)
		if raw == "" {
			return nil
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return NewValidationError(name)
		}
		*dst = v
		return nil
	}
	intParam := func(name string, dst *int) error {
		raw := c.QueryParam(name)
		if raw == "" {
			return nil
		}
		v, err := strconv.Atoi(raw)
		if err != nil || v < 1 {
			return NewValidationError(name)
		}
		*dst = v
		return nil
	}

	if err := floatParam("start", &q.start); err != nil {
		return q, err
	}
	if err := floatParam("end", &q.end); err != nil {
		return q, err
	}
	if err := intParam("stride", &q.stride); err != nil {
		return q, err
	}
	if err := intParam("limit", &q.limit); err != nil {
		return q, err
	}
	if q.end < q.start {
		return q, NewBadRequestError("end must not be before start", nil)
	}
	if q.limit > storage.MaxWindowRows {
		q.limit = storage.MaxWindowRows
	}
	return q, nil
}
