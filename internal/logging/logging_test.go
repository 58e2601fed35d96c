package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSONLoggerWritesFields(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: "debug", Format: "json", Output: &buf})

	l.With(String("stage", "resample")).Info(context.Background(), "stage complete",
		Int("rows", 10), Float("rate_hz", 30), Err(errors.New("boom")))

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "stage complete", rec["msg"])
	assert.Equal(t, "resample", rec["stage"])
	assert.EqualValues(t, 10, rec["rows"])
	assert.EqualValues(t, 30, rec["rate_hz"])
	assert.Equal(t, "boom", rec["error"])
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: "warn", Output: &buf})

	l.Info(context.Background(), "hidden")
	assert.Zero(t, buf.Len())

	l.Warn(context.Background(), "shown")
	assert.Contains(t, buf.String(), "shown")
}

func TestNoopAndOrNoop(t *testing.T) {
	l := OrNoop(nil)
	assert.NotPanics(t, func() {
		l.With(String("k", "v")).Error(context.Background(), "dropped")
	})
}
