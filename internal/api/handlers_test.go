package api

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/flight-replay/backend/internal/models"
	"github.com/flight-replay/backend/internal/observability"
	"github.com/flight-replay/backend/internal/pipeline"
	"github.com/flight-replay/backend/internal/session"
	"github.com/flight-replay/backend/internal/storage"
	"github.com/flight-replay/backend/internal/testutil"
)

type testServer struct {
	e       *echo.Echo
	store   *testutil.MockStorage
	manager *session.Manager
	metrics *observability.PipelineCollector
}

func newTestServer(t *testing.T, opts FileHandlerOptions) *testServer {
	t.Helper()
	collector, err := observability.NewPipelineCollector(prometheus.NewRegistry())
	require.NoError(t, err)

	store := testutil.NewMockStorageWithDir(t.TempDir())
	mgr := session.NewManager(pipeline.NewRunner(nil, collector), session.Config{TempDir: t.TempDir()})
	t.Cleanup(mgr.Close)

	e := echo.New()
	SetupMiddleware(e)
	e.Use(RequestLogger(nil, collector, false))
	RegisterRoutes(e, NewHandlers(&Dependencies{
		Store:      store,
		SessionMgr: mgr,
		Files:      opts,
		Defaults:   ReplayDefaults{RateHz: 1, AltitudeUnit: "m"},
		Metrics:    collector.Handler(),
		Version:    "test",
	}))
	return &testServer{e: e, store: store, manager: mgr, metrics: collector}
}

func (s *testServer) do(method, path string, body []byte) *httptest.ResponseRecorder {
	var req *http.Request
	if body != nil {
		req = httptest.NewRequest(method, path, bytes.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	s.e.ServeHTTP(rec, req)
	return rec
}

// startReplay uploads a source and waits for the session to finish.
func (s *testServer) startReplay(t *testing.T, source string, body string) models.ReplaySession {
	t.Helper()
	s.store.AddFile("file-1", "flight.csv", []byte(source))
	rec := s.do(http.MethodPost, "/api/replay", []byte(body))
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	var sess models.ReplaySession
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sess))
	s.manager.Wait()
	return sess
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) APIError {
	t.Helper()
	var apiErr APIError
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &apiErr))
	return apiErr
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, FileHandlerOptions{})
	rec := s.do(http.MethodGet, "/api/health", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)
	assert.Contains(t, rec.Body.String(), `"version":"test"`)
	assert.Contains(t, rec.Body.String(), `"altitudeUnit":"m"`)
}

func TestUploadFile(t *testing.T) {
	tests := []struct {
		name       string
		request    uploadFileRequest
		wantStatus int
		errCode    string
	}{
		{
			name:       "valid csv",
			request:    uploadFileRequest{Name: "flight.csv", Data: base64.StdEncoding.EncodeToString([]byte("a,b"))},
			wantStatus: http.StatusCreated,
		},
		{
			name:       "empty name",
			request:    uploadFileRequest{Data: base64.StdEncoding.EncodeToString([]byte("a"))},
			wantStatus: http.StatusBadRequest,
			errCode:    "VALIDATION_ERROR",
		},
		{
			name:       "empty data",
			request:    uploadFileRequest{Name: "flight.csv"},
			wantStatus: http.StatusBadRequest,
			errCode:    "VALIDATION_ERROR",
		},
		{
			name:       "invalid base64",
			request:    uploadFileRequest{Name: "flight.csv", Data: "not-valid-base64!!!"},
			wantStatus: http.StatusBadRequest,
			errCode:    "BAD_REQUEST",
		},
		{
			name:       "disallowed extension",
			request:    uploadFileRequest{Name: "flight.exe", Data: base64.StdEncoding.EncodeToString([]byte("a"))},
			wantStatus: http.StatusBadRequest,
			errCode:    "BAD_REQUEST",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t, FileHandlerOptions{AllowedExtensions: []string{".csv", ".csv.gz"}})
			body, _ := json.Marshal(tt.request)
			rec := s.do(http.MethodPost, "/api/files/upload", body)

			assert.Equal(t, tt.wantStatus, rec.Code)
			if tt.errCode != "" {
				assert.Equal(t, tt.errCode, decodeError(t, rec).Code)
				return
			}
			var info models.FileInfo
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &info))
			assert.NotEmpty(t, info.ID)
			assert.Equal(t, tt.request.Name, info.Name)
		})
	}
}

func TestUploadBinary(t *testing.T) {
	s := newTestServer(t, FileHandlerOptions{})

	body := new(bytes.Buffer)
	writer := multipart.NewWriter(body)
	part, _ := writer.CreateFormFile("file", "flight.csv")
	part.Write([]byte(testutil.FlightCSV(3)))
	writer.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/files/upload/binary", body)
	req.Header.Set(echo.HeaderContentType, writer.FormDataContentType())
	rec := httptest.NewRecorder()
	s.e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Contains(t, rec.Body.String(), `"name":"flight.csv"`)
	assert.Equal(t, 1, s.store.GetFileCount())
}

func TestFileLifecycle(t *testing.T) {
	s := newTestServer(t, FileHandlerOptions{AllowDeletion: true})
	s.store.AddFile("abc", "flight.csv", []byte("x"))

	rec := s.do(http.MethodGet, "/api/files/recent", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"id":"abc"`)

	rec = s.do(http.MethodPut, "/api/files/abc", []byte(`{"name":"renamed.csv"}`))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"name":"renamed.csv"`)

	rec = s.do(http.MethodPut, "/api/files/abc", []byte(`{"name":"  "}`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(http.MethodGet, "/api/files/abc", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(http.MethodDelete, "/api/files/abc", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = s.do(http.MethodGet, "/api/files/abc", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(http.MethodDelete, "/api/files/abc", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDeleteDisabled(t *testing.T) {
	s := newTestServer(t, FileHandlerOptions{AllowDeletion: false})
	s.store.AddFile("abc", "flight.csv", []byte("x"))

	rec := s.do(http.MethodDelete, "/api/files/abc", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, 1, s.store.GetFileCount())
}

func TestReplayFlow(t *testing.T) {
	s := newTestServer(t, FileHandlerOptions{})
	sess := s.startReplay(t, testutil.FlightCSV(5), `{"fileId":"file-1","rateHz":2}`)
	assert.Equal(t, 2.0, sess.RateHz)
	assert.Equal(t, "m", sess.AltitudeUnit)

	rec := s.do(http.MethodGet, "/api/replay/"+sess.ID+"/status", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var status models.ReplaySession
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, models.SessionStatusComplete, status.Status)
	assert.Equal(t, 8, status.SampleCount)

	rec = s.do(http.MethodGet, "/api/replay/"+sess.ID+"/table", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var table models.FlightTable
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &table))
	assert.Equal(t, 8, table.Len())
	assert.Len(t, table.X, 8)

	rec = s.do(http.MethodGet, "/api/replay/"+sess.ID+"/table/msgpack", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/msgpack", rec.Header().Get(echo.HeaderContentType))
	var packed models.FlightTable
	require.NoError(t, msgpack.Unmarshal(rec.Body.Bytes(), &packed))
	assert.Equal(t, table.Time, packed.Time)

	rec = s.do(http.MethodGet, "/api/replay/"+sess.ID+"/samples?start=1&end=2", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"rows":3`)

	rec = s.do(http.MethodGet, "/api/replay/"+sess.ID+"/fdr", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get(echo.HeaderContentDisposition), `filename="flight.fdr"`)
	lines := strings.Split(strings.TrimRight(rec.Body.String(), "\n"), "\n")
	require.Len(t, lines, 6+8)
	assert.Equal(t, "A", lines[0])
	assert.Equal(t, "DATA", lines[5])
	assert.Equal(t, "0.000,7.000000,46.000000,500.00,0.00,0.00,90.00", lines[6])
	assert.Equal(t, "0.500,7.005000,46.005000,505.00,0.50,1.00,90.50", lines[7])

	rec = s.do(http.MethodPost, "/api/replay/"+sess.ID+"/keepalive", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = s.do(http.MethodDelete, "/api/replay/"+sess.ID, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = s.do(http.MethodGet, "/api/replay/"+sess.ID+"/status", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestReplayProgressStream(t *testing.T) {
	s := newTestServer(t, FileHandlerOptions{})
	sess := s.startReplay(t, testutil.FlightCSV(5), `{"fileId":"file-1"}`)

	rec := s.do(http.MethodGet, "/api/replay/"+sess.ID+"/progress", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	assert.True(t, strings.HasPrefix(rec.Body.String(), "data: "))
	assert.Contains(t, rec.Body.String(), `"status":"complete"`)
}

func TestReplayErrors(t *testing.T) {
	s := newTestServer(t, FileHandlerOptions{})

	rec := s.do(http.MethodPost, "/api/replay", []byte(`{}`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "VALIDATION_ERROR", decodeError(t, rec).Code)

	rec = s.do(http.MethodPost, "/api/replay", []byte(`{"fileId":"missing"}`))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	s.store.AddFile("file-1", "flight.csv", []byte(testutil.FlightCSV(3)))
	rec = s.do(http.MethodPost, "/api/replay", []byte(`{"fileId":"file-1","altitudeUnit":"km"}`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, models.KindConfiguration, decodeError(t, rec).Code)

	rec = s.do(http.MethodPost, "/api/replay", []byte(`{"fileId":"file-1","rateHz":-3}`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(http.MethodPost, "/api/replay", []byte(`{"fileId":"file-1","rateHz":10000000}`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, models.KindConfiguration, decodeError(t, rec).Code)

	rec = s.do(http.MethodGet, "/api/replay/nope/table", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(http.MethodGet, "/api/replay/nope/fdr", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestReplayFailedSession(t *testing.T) {
	s := newTestServer(t, FileHandlerOptions{})
	sess := s.startReplay(t, "Time,Longitude\n1,2\n", `{"fileId":"file-1"}`)

	rec := s.do(http.MethodGet, "/api/replay/"+sess.ID+"/status", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"errorKind":"SCHEMA_ERROR"`)

	rec = s.do(http.MethodGet, "/api/replay/"+sess.ID+"/table", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestSamplesQueryValidation(t *testing.T) {
	s := newTestServer(t, FileHandlerOptions{})
	sess := s.startReplay(t, testutil.FlightCSV(5), `{"fileId":"file-1"}`)

	for _, q := range []string{"start=abc", "stride=0", "limit=-1", "start=3&end=1"} {
		rec := s.do(http.MethodGet, fmt.Sprintf("/api/replay/%s/samples?%s", sess.ID, q), nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code, q)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t, FileHandlerOptions{})
	s.do(http.MethodGet, "/api/health", nil)

	rec := s.do(http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `replay_http_requests_total{code="200",method="GET",route="/api/health"} 1`)
}

func TestNewDomainError(t *testing.T) {
	tests := []struct {
		err    error
		status int
		code   string
	}{
		{&models.SchemaError{Missing: []string{"Time"}}, http.StatusUnprocessableEntity, models.KindSchema},
		{&models.NoValidDataError{InputRows: 3}, http.StatusUnprocessableEntity, models.KindNoValidData},
		{&models.InsufficientDataError{Rows: 1, Need: 2}, http.StatusUnprocessableEntity, models.KindInsufficient},
		{&models.ConfigurationError{Field: "rate_hz"}, http.StatusBadRequest, models.KindConfiguration},
		{&models.IOError{Op: "open", Err: errors.New("denied")}, http.StatusInternalServerError, models.KindIO},
		{fmt.Errorf("get: %w", storage.ErrNotFound), http.StatusNotFound, "NOT_FOUND"},
		{session.ErrSessionNotReady, http.StatusConflict, "CONFLICT"},
		{errors.New("boom"), http.StatusInternalServerError, models.KindInternal},
	}
	for _, tt := range tests {
		apiErr := NewDomainError(tt.err)
		assert.Equal(t, tt.status, apiErr.Status, tt.err.Error())
		assert.Equal(t, tt.code, apiErr.Code, tt.err.Error())
	}
}
