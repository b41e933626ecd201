package statsui

import (
	"context"
	"errors"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/verte-zerg/lrsdash/internal/model"
	"github.com/verte-zerg/lrsdash/internal/normalize"
)

type fakeLoader struct {
	records []model.Record
	err     error
	queries []model.Query
}

func (f *fakeLoader) Load(_ context.Context, q model.Query) ([]model.Record, error) {
	f.queries = append(f.queries, q)
	return f.records, f.err
}

func testQuery() model.Query {
	return model.Query{
		Dataset: model.DatasetItems,
		Lang:    "english",
		Type:    "letter-sound",
		Since:   time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC),
		Until:   time.Date(2023, 1, 10, 0, 0, 0, 0, time.UTC),
		Mode:    model.ModeRange,
	}
}

func testRecords() []model.Record {
	return []model.Record{
		{normalize.ColTimestamp: time.Date(2023, 1, 2, 9, 0, 0, 0, time.UTC), normalize.ColType: "answered", normalize.ColUserID: "a"},
		{normalize.ColTimestamp: time.Date(2023, 1, 3, 9, 0, 0, 0, time.UTC), normalize.ColType: "completed", normalize.ColUserID: "b"},
	}
}

func newTestModel(loader *fakeLoader) *Model {
	m := NewModel(loader, testQuery())
	m.now = func() time.Time { return time.Date(2023, 2, 1, 0, 0, 0, 0, time.UTC) }
	m.Update(tea.WindowSizeMsg{Width: 100, Height: 40})
	return m
}

// run executes a load command and feeds the result back into the model.
func run(m *Model, cmd tea.Cmd) {
	m.Update(cmd())
}

func TestLoadRendersOverview(t *testing.T) {
	loader := &fakeLoader{records: testRecords()}
	m := newTestModel(loader)
	cmd := m.load()
	require.Contains(t, m.View(), "Loading", "loading view before first result")

	run(m, cmd)
	view := m.View()
	for _, want := range []string{"Statements", "Users", "Query: items"} {
		assert.Contains(t, view, want)
	}

	m.moveTab(-1)
	assert.Equal(t, tabRecords, m.activeTab, "tab wraps to records")
	assert.Contains(t, m.View(), normalize.ColUserID)
}

func TestEmptyReportShowsNoData(t *testing.T) {
	m := newTestModel(&fakeLoader{})
	run(m, m.load())
	assert.Contains(t, m.View(), "NO DATA for this date range")
}

func TestStaleResultsAreDropped(t *testing.T) {
	loader := &fakeLoader{records: testRecords()}
	m := newTestModel(loader)
	stale := m.load()
	fresh := m.load()
	loader.err = errors.New("lrs unavailable")
	run(m, stale)
	require.False(t, m.loaded, "stale result must be ignored")
	require.Empty(t, m.errMsg)

	run(m, fresh)
	assert.Equal(t, "lrs unavailable", m.errMsg)
	assert.Contains(t, m.View(), "lrs unavailable")
}

func TestShiftWindow(t *testing.T) {
	m := newTestModel(&fakeLoader{})
	_, cmd := m.shiftWindow(-windowStep)
	require.NotNil(t, cmd, "widening the window reloads")
	assert.Equal(t, "2022-12-25", m.Query().Since.Format(model.DateLayout))

	m.shiftWindow(100)
	assert.True(t, m.Query().Since.Equal(m.Query().Until), "since must not pass until")
}

func TestApplyFilter(t *testing.T) {
	m := newTestModel(&fakeLoader{})
	m.startFilter()
	m.filterInputs[fieldDataset].SetValue("survey")
	m.filterInputs[fieldType].SetValue("nonliterate-ses")
	m.filterInputs[fieldSince].SetValue("2023-01-05")
	require.NoError(t, m.applyFilter())
	q := m.Query()
	assert.Equal(t, model.DatasetSurvey, q.Dataset)
	assert.Equal(t, model.ModeActors, q.Mode)

	m.filterInputs[fieldUntil].SetValue("someday")
	assert.Error(t, m.applyFilter(), "invalid date")
	assert.Equal(t, q, m.Query(), "failed apply keeps the query")
}
