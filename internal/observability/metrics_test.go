package observability

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
)

func TestPipelineCollectorRecordsRun(t *testing.T) {
	reg := prometheus.NewRegistry()
	c, err := NewPipelineCollector(reg)
	if err != nil {
		t.Fatalf("NewPipelineCollector: %v", err)
	}

	c.AddRowsLoaded(120)
	c.AddRowsDropped("invalid", 3)
	c.AddRowsDropped("duplicate", 0)
	c.AddRowsOutput(900)
	c.ObserveStage("resample", 15*time.Millisecond)
	c.RunFinished("processed")

	if got := testutil.ToFloat64(c.RowsLoaded); got != 120 {
		t.Fatalf("replay_rows_loaded_total = %v, want 120", got)
	}
	if got := testutil.ToFloat64(c.RowsDropped.WithLabelValues("invalid")); got != 3 {
		t.Fatalf("replay_rows_dropped_total{invalid} = %v, want 3", got)
	}
	if got := testutil.ToFloat64(c.RowsOutput); got != 900 {
		t.Fatalf("replay_rows_output_total = %v, want 900", got)
	}
	if got := testutil.ToFloat64(c.Runs.WithLabelValues("processed")); got != 1 {
		t.Fatalf("replay_runs_total{processed} = %v, want 1", got)
	}
	if count := histogramSampleCount(t, reg, "replay_stage_duration_seconds", map[string]string{"stage": "resample"}); count != 1 {
		t.Fatalf("replay_stage_duration_seconds sample_count = %d, want 1", count)
	}
}

func TestPipelineCollectorRegistersIdempotently(t *testing.T) {
	reg := prometheus.NewRegistry()
	first, err := NewPipelineCollector(reg)
	if err != nil {
		t.Fatalf("first NewPipelineCollector: %v", err)
	}
	second, err := NewPipelineCollector(reg)
	if err != nil {
		t.Fatalf("second NewPipelineCollector: %v", err)
	}

	second.AddRowsLoaded(5)
	if got := testutil.ToFloat64(first.RowsLoaded); got != 5 {
		t.Fatalf("shared counter = %v, want 5", got)
	}
}

func TestNilCollectorIsSafe(t *testing.T) {
	var c *PipelineCollector
	c.AddRowsLoaded(1)
	c.ObserveStage("load", time.Second)
	c.RunFinished("failed")
	c.ObserveRequest(http.MethodGet, "/api/health", 200, time.Millisecond)
}

func TestMetricsHandlerExposesSeries(t *testing.T) {
	reg := prometheus.NewRegistry()
	c, err := NewPipelineCollector(reg)
	if err != nil {
		t.Fatalf("NewPipelineCollector: %v", err)
	}
	c.AddRowsLoaded(1)
	c.AddRowsDropped("non_finite", 1)
	c.AddRowsOutput(1)
	c.ObserveStage("export", time.Millisecond)
	c.RunFinished("reused")
	c.ObserveRequest(http.MethodPost, "/api/replay", 202, 3*time.Millisecond)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()
	c.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("/metrics status = %d, want 200", rr.Code)
	}
	body := rr.Body.String()
	for _, metric := range []string{
		"replay_rows_loaded_total",
		"replay_rows_dropped_total",
		"replay_rows_output_total",
		"replay_stage_duration_seconds",
		"replay_runs_total",
		`replay_http_requests_total{code="202",method="POST",route="/api/replay"} 1`,
		"replay_http_request_duration_seconds",
	} {
		if !strings.Contains(body, metric) {
			t.Fatalf("expected %q in /metrics output", metric)
		}
	}
}

func histogramSampleCount(t *testing.T, gatherer prometheus.Gatherer, name string, labels map[string]string) uint64 {
	t.Helper()

	metrics, err := gatherer.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	for _, mf := range metrics {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.Metric {
			if matchLabels(m.GetLabel(), labels) && m.GetHistogram() != nil {
				return m.GetHistogram().GetSampleCount()
			}
		}
	}
	return 0
}

func matchLabels(got []*dto.LabelPair, want map[string]string) bool {
	if len(got) < len(want) {
		return false
	}
	matched := 0
	for _, lp := range got {
		if val, ok := want[lp.GetName()]; ok && val == lp.GetValue() {
			matched++
		}
	}
	return matched == len(want)
}
