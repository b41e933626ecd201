package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/verte-zerg/lrsdash/internal/lrs"
	"github.com/verte-zerg/lrsdash/internal/model"
	"github.com/verte-zerg/lrsdash/internal/normalize"
)

type fakeLoader struct {
	records []model.Record
	err     error
	last    model.Query
}

func (f *fakeLoader) Load(_ context.Context, q model.Query) ([]model.Record, error) {
	f.last = q
	return f.records, f.err
}

func newTestServer(t *testing.T, loader *fakeLoader) *httptest.Server {
	t.Helper()
	s := New(loader, nil, Config{CORSOrigins: []string{"https://dash.example"}})
	s.now = func() time.Time { return time.Date(2023, 2, 1, 12, 0, 0, 0, time.UTC) }
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)
	return srv
}

func records() []model.Record {
	return []model.Record{
		{
			normalize.ColTimestamp: time.Date(2023, 1, 1, 10, 0, 0, 0, time.UTC),
			normalize.ColType:      "completed",
			normalize.ColScoreRaw:  40.0,
			normalize.ColScoreMax:  100.0,
		},
		{
			normalize.ColTimestamp: time.Date(2023, 1, 2, 10, 0, 0, 0, time.UTC),
			normalize.ColType:      "completed",
			normalize.ColScoreRaw:  100.0,
			normalize.ColScoreMax:  100.0,
		},
	}
}

func get(t *testing.T, url string) *http.Response {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func TestHealthzAndDatasets(t *testing.T) {
	srv := newTestServer(t, &fakeLoader{})

	assert.Equal(t, http.StatusOK, get(t, srv.URL+"/healthz").StatusCode)

	resp := get(t, srv.URL+"/api/datasets")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var infos []datasetInfo
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&infos))
	require.Len(t, infos, 3)
	assert.Equal(t, model.DatasetSurvey, infos[2].Name)
	assert.Equal(t, model.ModeActors, infos[2].Mode)
	assert.Equal(t, "2022-09-01", infos[2].Origin)
}

func TestReport(t *testing.T) {
	loader := &fakeLoader{records: records()}
	srv := newTestServer(t, loader)

	resp := get(t, srv.URL+"/api/scores?lang=english&type=letter-sound&since=2023-01-01&until=2023-01-02")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	var body struct {
		Total   int              `json:"total"`
		Delta   int              `json:"delta"`
		Records []map[string]any `json:"records"`
		Days    []struct {
			Day   string `json:"day"`
			Count int    `json:"count"`
		} `json:"days"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, 2, body.Total)
	assert.Equal(t, 1, body.Delta)
	assert.Len(t, body.Records, 2)
	require.Len(t, body.Days, 2)
	assert.Equal(t, "2023-01-02", body.Days[1].Day)
	assert.Equal(t, "english", loader.last.Lang)

	resp = get(t, srv.URL+"/api/scores?lang=english&type=letter-sound&since=2023-01-01&until=2023-01-02&records=false")
	body.Records = nil
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Empty(t, body.Records)
}

func TestReportErrors(t *testing.T) {
	tests := []struct {
		name   string
		path   string
		err    error
		status int
	}{
		{"unknown dataset", "/api/quiz?lang=english&type=x", nil, http.StatusBadRequest},
		{"bad date", "/api/items?lang=english&type=letter-sound&since=yesterday", nil, http.StatusBadRequest},
		{"bad lang", "/api/items?lang=English!&type=letter-sound", nil, http.StatusBadRequest},
		{"transport", "/api/items?lang=english&type=letter-sound", &lrs.TransportError{URL: "https://lrs.example", StatusCode: 503}, http.StatusBadGateway},
		{"schema", "/api/items?lang=english&type=letter-sound", &normalize.SchemaError{Index: 1, Field: "timestamp"}, http.StatusBadGateway},
		{"too many pages", "/api/items?lang=english&type=letter-sound", &lrs.TooManyPagesError{Pages: 1000}, http.StatusGatewayTimeout},
		{"other", "/api/items?lang=english&type=letter-sound", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTestServer(t, &fakeLoader{err: tt.err})
			resp := get(t, srv.URL+tt.path)
			assert.Equal(t, tt.status, resp.StatusCode)
			var body map[string]string
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
			assert.NotEmpty(t, body["error"])
		})
	}
}

func TestExport(t *testing.T) {
	srv := newTestServer(t, &fakeLoader{records: records()})

	resp := get(t, srv.URL+"/api/scores/export.xlsx?lang=english&type=letter-sound&since=2023-01-01&until=2023-01-02")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, `attachment; filename="english-letter-sound-2023-01-01-2023-01-02.xlsx"`, resp.Header.Get("Content-Disposition"))

	f, err := excelize.OpenReader(resp.Body)
	require.NoError(t, err)
	defer func() { _ = f.Close() }()
	assert.Contains(t, f.GetSheetList(), "Records")

	empty := newTestServer(t, &fakeLoader{})
	resp = get(t, empty.URL+"/api/scores/export.xlsx?lang=english&type=letter-sound")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestCORS(t *testing.T) {
	srv := newTestServer(t, &fakeLoader{})
	req, err := http.NewRequest(http.MethodGet, srv.URL+"/api/datasets", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "https://dash.example")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, "https://dash.example", resp.Header.Get("Access-Control-Allow-Origin"))
}
