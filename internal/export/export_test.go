package export

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/verte-zerg/lrsdash/internal/model"
	"github.com/verte-zerg/lrsdash/internal/stats"
)

func scoresQuery() model.Query {
	return model.Query{
		Dataset: model.DatasetScores,
		Lang:    "english",
		Type:    "letter-sound",
		Since:   time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC),
		Until:   time.Date(2023, 1, 31, 0, 0, 0, 0, time.UTC),
	}
}

func TestFilename(t *testing.T) {
	assert.Equal(t, "english-letter-sound-2023-01-01-2023-01-31.xlsx", Filename(scoresQuery()))
}

func TestWriteWorkbook(t *testing.T) {
	ts := time.Date(2023, 1, 2, 10, 0, 0, 0, time.FixedZone("", 2*3600))
	records := []model.Record{
		{"timestamp": ts, "type": "completed", "scoreRaw": 80.0, "scoreRawMax": 100.0},
		{"timestamp": ts, "type": "completed", "scoreRaw": nil, "scoreRawMax": 100.0},
	}
	report, err := stats.Build(scoresQuery(), records)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, report))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer func() { _ = f.Close() }()

	assert.Equal(t, []string{SheetRecords, SheetDaily, SheetTypes, SheetHistogram}, f.GetSheetList())

	rows, err := f.GetRows(SheetRecords)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"timestamp", "type", "scoreRaw", "scoreRawMax"}, rows[0])
	assert.Equal(t, []string{"2023-01-02T10:00:00+02:00", "completed", "80", "100"}, rows[1])

	daily, err := f.GetRows(SheetDaily)
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"day", "count"}, {"2023-01-02", "2"}}, daily)

	bins, err := f.GetRows(SheetHistogram)
	require.NoError(t, err)
	assert.Len(t, bins, 7)
	assert.Equal(t, []string{"80", "100", "1"}, bins[5])
}

func TestWriteRefusesEmptyReport(t *testing.T) {
	report, err := stats.Build(scoresQuery(), nil)
	require.NoError(t, err)
	err = Write(&bytes.Buffer{}, report)
	assert.True(t, errors.Is(err, stats.ErrEmptyResult))
}
