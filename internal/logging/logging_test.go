package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSONLoggerLevelsAndFields(t *testing.T) {
	var buf bytes.Buffer
	l, err := New(&buf, Options{Level: "warn", Format: "json"})
	require.NoError(t, err)

	l.Info("hidden")
	l.With("run_id", "r1").LogError(errors.New("boom"), "load failed", "pages", 3)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "ERROR", entry["level"])
	assert.Equal(t, "load failed", entry["msg"])
	assert.Equal(t, "boom", entry["error"])
	assert.Equal(t, "r1", entry["run_id"])
	assert.EqualValues(t, 3, entry["pages"])
}

func TestLogRequestLevel(t *testing.T) {
	var buf bytes.Buffer
	l, err := New(&buf, Options{Level: "info"})
	require.NoError(t, err)
	l.LogRequest(http.MethodGet, "/api/scores", http.StatusBadRequest, time.Millisecond)
	assert.Contains(t, buf.String(), "level=WARN")
	assert.Contains(t, buf.String(), "status_code=400")
}

func TestOptionsValidation(t *testing.T) {
	_, err := New(&bytes.Buffer{}, Options{Level: "loud"})
	assert.Error(t, err)
	_, err = New(&bytes.Buffer{}, Options{Format: "xml"})
	assert.Error(t, err)
}
