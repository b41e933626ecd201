package normalize

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/verte-zerg/lrsdash/internal/model"
)

const prefix = "https://data.curiouslearning.org/xAPI/activities/assessment/en/letter-sound"

func decodeStatements(t *testing.T, docs ...string) []model.Statement {
	t.Helper()
	out := make([]model.Statement, 0, len(docs))
	for _, doc := range docs {
		var s model.Statement
		require.NoError(t, json.Unmarshal([]byte(doc), &s))
		out = append(out, s)
	}
	return out
}

const answered = `{
	"id": "s1",
	"timestamp": "2023-01-01T10:00:00.000Z",
	"actor": {"name": "web-1", "account": {"name": "user-1", "homePage": "https://app"}},
	"verb": {"id": "http://adlnet.gov/expapi/verbs/answered", "display": {"en-US": "answered"}},
	"object": {
		"id": "https://data.curiouslearning.org/xAPI/activities/assessment/en/letter-sound/item-3",
		"definition": {
			"description": {"en-US": "Which sound?"},
			"choices": [
				{"id": "option-0", "description": {"en-US": "a"}},
				{"id": "option-1", "description": {"en-US": "b"}},
				{"id": "option-9", "description": {"en-US": "ignored"}}
			]
		},
		"location": {"lat": "-26.2", "lng": 28.04, "city": "Johannesburg", "region": "GP", "country": "ZA"}
	},
	"result": {"response": "a", "duration": "PT12.34S", "score": {"raw": 1, "max": 1}}
}`

func TestNormalizeItemsExplodesChoicesAndRenames(t *testing.T) {
	records, err := Normalize(decodeStatements(t, answered), ItemsProfile(prefix))
	require.NoError(t, err)
	require.Len(t, records, 1)
	r := records[0]

	assert.Equal(t, time.Date(2023, 1, 1, 10, 0, 0, 0, time.UTC), r[ColTimestamp].(time.Time).UTC())
	assert.Equal(t, "answered", r[ColType])
	assert.Equal(t, "web-1", r[ColSessionID])
	assert.Equal(t, "user-1", r[ColUserID])
	assert.Equal(t, "https://app", r[ColUserSource])
	assert.Equal(t, "Which sound?", r[ColQuestion])
	assert.Equal(t, "a", r[ColAnswer])
	assert.Equal(t, 12.34, r[ColResponseTime])
	assert.Equal(t, -26.2, r[ColLat])
	assert.Equal(t, 28.04, r[ColLon])
	assert.Equal(t, "ZA", r[ColCountry])
	assert.Equal(t, "a", r["option-0"])
	assert.Equal(t, "b", r["option-1"])
	assert.NotContains(t, r, "option-9")
	assert.NotContains(t, r, "object.definition.choices")
	assert.NotContains(t, r, "actor.name")
}

func TestNormalizeFiltersByActivityPrefix(t *testing.T) {
	docs := []string{
		`{"id":"1","timestamp":"2023-01-01T00:00:00Z","object":{"id":"prefix/a"}}`,
		`{"id":"2","timestamp":"2023-01-01T00:00:00Z","object":{"id":"prefix/b"}}`,
		`{"id":"3","timestamp":"2023-01-01T00:00:00Z","object":{"id":"other/c"}}`,
		`{"id":"4","timestamp":"2023-01-01T00:00:00Z","object":{"objectType":"Agent","mbox":"mailto:a@b"}}`,
		`{"id":"5","timestamp":"2023-01-01T00:00:00Z"}`,
	}
	for name, opts := range map[string]Options{
		"scores": ScoresProfile("prefix"),
		"items":  ItemsProfile("prefix"),
		"survey": SurveyProfile("prefix"),
	} {
		records, err := Normalize(decodeStatements(t, docs...), opts)
		require.NoError(t, err, name)
		require.Len(t, records, 2, name)
		assert.Equal(t, "prefix/a", records[0][ColItemURL], name)
		assert.Equal(t, "prefix/b", records[1][ColItemURL], name)

		again, err := Clean(records, opts)
		require.NoError(t, err, name)
		assert.Equal(t, records, again, name)
	}

	records, err := Normalize(decodeStatements(t, docs...), ItemsProfile(""))
	require.NoError(t, err)
	assert.Len(t, records, 5)
}

func TestCleanIsIdempotent(t *testing.T) {
	for name, opts := range map[string]Options{
		"scores": ScoresProfile(prefix),
		"items":  ItemsProfile(prefix),
		"survey": SurveyProfile(prefix),
	} {
		once, err := Normalize(decodeStatements(t, answered), opts)
		require.NoError(t, err, name)
		twice, err := Clean(once, opts)
		require.NoError(t, err, name)
		assert.Equal(t, once, twice, name)
	}
}

func TestCleanDoesNotMutateInput(t *testing.T) {
	rows := []model.Record{{
		"timestamp":          "2023-01-02T00:00:00Z",
		"verb.display.en-US": "answered",
		"object.definition.choices": []any{
			map[string]any{"id": "option-0", "description": map[string]any{"en-US": "x"}},
		},
	}}
	_, err := Clean(rows, SurveyProfile(""))
	require.NoError(t, err)
	assert.NotContains(t, rows[0], "option-0")
	assert.Equal(t, "2023-01-02T00:00:00Z", rows[0]["timestamp"])
}

func TestCleanRequiresTimestamp(t *testing.T) {
	rows := []model.Record{
		{"timestamp": "2023-01-02T00:00:00Z", "object.id": "p/1"},
		{"object.id": "p/2"},
	}
	_, err := Clean(rows, ItemsProfile("p"))
	var se *SchemaError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, ColTimestamp, se.Field)
	assert.Equal(t, 1, se.Index)

	// Rows removed by the prefix filter are not validated.
	_, err = Clean([]model.Record{{"object.id": "q/1"}}, ItemsProfile("p"))
	assert.NoError(t, err)
}

func TestCleanUnparseableCoordinatesBecomeMissing(t *testing.T) {
	rows := []model.Record{{
		"timestamp":           "2023-01-02T00:00:00Z",
		"object.location.lat": "unknown",
		"object.location.lng": "12.5",
	}}
	records, err := Clean(rows, SurveyProfile(""))
	require.NoError(t, err)
	v, ok := records[0][ColLat]
	assert.True(t, ok)
	assert.Nil(t, v)
	assert.Equal(t, 12.5, records[0][ColLon])
}

func TestParseDuration(t *testing.T) {
	cases := map[string]float64{
		"PT12.34S": 12.34,
		"PT0S":     0,
		"PT1M5S":   65,
		"PT1H":     3600,
		"PT.5S":    0.5,
		"PT1.5M":   90,
	}
	for in, want := range cases {
		got, ok := ParseDuration(in)
		require.True(t, ok, in)
		assert.InDelta(t, want, got, 1e-9, in)
	}
	for _, in := range []string{"", "PT", "12.34", "P1D", "PT.S", "PT1.S"} {
		_, ok := ParseDuration(in)
		assert.False(t, ok, in)
	}
}

func TestByStatementIDKeepsFirstOccurrence(t *testing.T) {
	stmts := decodeStatements(t,
		`{"id":"a","timestamp":"2023-01-01T00:00:00Z"}`,
		`{"id":"b","timestamp":"2023-01-01T00:00:00Z"}`,
		`{"id":"a","timestamp":"2023-01-02T00:00:00Z"}`,
		`{"timestamp":"2023-01-03T00:00:00Z"}`,
		`{"timestamp":"2023-01-03T00:00:00Z"}`,
	)
	out := ByStatementID{}.Dedup(stmts)
	require.Len(t, out, 4)
	assert.Equal(t, "2023-01-01T00:00:00Z", out[0].Timestamp)
	assert.Len(t, KeepAll{}.Dedup(stmts), 5)

	_, err := PolicyByName("bogus")
	assert.Error(t, err)
}

func TestColumnsOrder(t *testing.T) {
	cols := Columns([]model.Record{
		{"zeta": 1, ColScoreRaw: 1, ColTimestamp: 1},
		{ColType: "x", "alpha": 2},
	})
	assert.Equal(t, []string{ColTimestamp, ColType, ColScoreRaw, "alpha", "zeta"}, cols)
}
