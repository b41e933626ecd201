package dataset

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/verte-zerg/lrsdash/internal/cache"
	"github.com/verte-zerg/lrsdash/internal/lrs"
	"github.com/verte-zerg/lrsdash/internal/model"
	"github.com/verte-zerg/lrsdash/internal/normalize"
)

const activities = "https://data.curiouslearning.org/xAPI/activities"

func stmt(id, ts, actor, verb, object, extra string) string {
	return fmt.Sprintf(`{"id":%q,"timestamp":%q,"actor":%s,"verb":{"id":"http://adlnet.gov/expapi/verbs/%s","display":{"en-US":%q}},"object":{"id":%q}%s}`,
		id, ts, actor, verb, verb, object, extra)
}

type fakeLRS struct {
	requests map[string]*atomic.Int32
}

func (f *fakeLRS) count(kind string) int {
	return int(f.requests[kind].Load())
}

func newFakeLRS(t *testing.T) (*httptest.Server, *fakeLRS) {
	t.Helper()
	f := &fakeLRS{requests: map[string]*atomic.Int32{}}
	for _, k := range []string{"completed", "initialized", "agent", "range"} {
		f.requests[k] = &atomic.Int32{}
	}
	survey := activities + "/survey/english/nonliterate-ses"
	items := activities + "/assessment/english/letter-sound"
	actorA := `{"name":"web-a","account":{"name":"a","homePage":"https://app"}}`
	actorB := `{"name":"web-b","account":{"homePage":"https://app","name":"b"}}`
	actorBReordered := `{"account":{"name":"b","homePage":"https://app"},"name":"web-b"}`

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("since") == "2020-01-01" {
			fmt.Fprint(w, `{"statements":[],"more":""}`)
			return
		}
		var body []string
		switch {
		case strings.HasSuffix(q.Get("verb"), "/completed"):
			f.requests["completed"].Add(1)
			score := `,"result":{"score":{"raw":%d,"max":100},"duration":"PT%dS"}`
			body = []string{
				stmt("c1", "2023-01-01T10:00:00Z", actorA, "completed", items, fmt.Sprintf(score, 40, 30)),
				stmt("c2", "2023-01-02T10:00:00Z", actorB, "completed", items, fmt.Sprintf(score, 100, 12)),
			}
		case strings.HasSuffix(q.Get("verb"), "/initialized"):
			f.requests["initialized"].Add(1)
			assert.Equal(t, survey, q.Get("activity"))
			body = []string{
				stmt("i1", "2023-01-01T09:00:00Z", actorB, "initialized", survey, ""),
				stmt("i2", "2023-01-01T09:00:00Z", actorA, "initialized", survey, ""),
				stmt("i3", "2023-01-02T09:00:00Z", actorBReordered, "initialized", survey, ""),
			}
		case q.Get("agent") != "":
			f.requests["agent"].Add(1)
			agent := q.Get("agent")
			id := "a"
			if strings.Contains(agent, `"web-b"`) {
				id = "b"
			}
			body = []string{
				stmt("s-"+id, "2023-01-01T11:00:00Z", agent, "answered", survey+"/q1", `,"result":{"response":"yes"}`),
				stmt("x-"+id, "2023-01-01T11:00:00Z", agent, "answered", activities+"/survey/zulu/nonliterate-ses/q1", ""),
			}
		default:
			f.requests["range"].Add(1)
			// Two pages to exercise pagination through the loader.
			if q.Get("page") == "" {
				fmt.Fprintf(w, `{"statements":[%s],"more":"%s?page=2&since=%s"}`,
					stmt("r1", "2023-01-01T12:00:00Z", actorA, "answered", items+"/item-1", `,"result":{"duration":"PT2.5S"}`),
					r.URL.Path, q.Get("since"))
				return
			}
			body = []string{
				stmt("r2", "2023-01-01T12:00:00Z", actorB, "answered", activities+"/assessment/zulu/letter-sound/item-1", ""),
				stmt("r3", "2023-01-02T12:00:00Z", actorB, "completed", items, ""),
			}
		}
		fmt.Fprintf(w, `{"statements":[%s],"more":""}`, strings.Join(body, ","))
	}))
	t.Cleanup(srv.Close)
	return srv, f
}

func newTestLoader(t *testing.T, srv *httptest.Server, c cache.Cache) *Loader {
	t.Helper()
	client, err := lrs.NewClient(lrs.ClientConfig{BaseURL: srv.URL + "/xapi/statements"})
	require.NoError(t, err)
	return NewLoader(client, Options{Cache: c, Concurrency: 2})
}

func query(d model.Dataset, lang, typ string, mode model.FetchMode) model.Query {
	return model.Query{
		Dataset: d,
		Lang:    lang,
		Type:    typ,
		Since:   time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC),
		Until:   time.Date(2023, 1, 2, 0, 0, 0, 0, time.UTC),
		Mode:    mode,
	}
}

func TestLoadScoresUsesCache(t *testing.T) {
	srv, lrsFake := newFakeLRS(t)
	loader := newTestLoader(t, srv, cache.NewMemory(8, time.Minute))
	q := query(model.DatasetScores, "english", "letter-sound", model.ModeRange)

	records, err := loader.Load(context.Background(), q)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, 40.0, records[0][normalize.ColScoreRaw])
	assert.Equal(t, 100.0, records[1][normalize.ColScoreMax])
	assert.Equal(t, 12.0, records[1][normalize.ColDuration])
	assert.Equal(t, "b", records[1][normalize.ColUserID])

	again, err := loader.Load(context.Background(), q)
	require.NoError(t, err)
	assert.Equal(t, records, again)
	assert.Equal(t, 1, lrsFake.count("completed"))
}

func TestLoadSurveyFansOutPerActor(t *testing.T) {
	srv, lrsFake := newFakeLRS(t)
	loader := newTestLoader(t, srv, nil)
	q := query(model.DatasetSurvey, "english", "nonliterate-ses", model.ModeActors)

	actors, err := loader.Actors(context.Background(), q)
	require.NoError(t, err)
	require.Len(t, actors, 2)

	records, err := loader.Load(context.Background(), q)
	require.NoError(t, err)
	require.Len(t, records, 2, "zulu statements must be filtered out")
	assert.Equal(t, "a", records[0][normalize.ColUserID])
	assert.Equal(t, "b", records[1][normalize.ColUserID])
	assert.Equal(t, "yes", records[0][normalize.ColAnswer])
	assert.Equal(t, 2, lrsFake.count("agent"))
}

func TestLoadItemsRangeScanFiltersPrefix(t *testing.T) {
	srv, lrsFake := newFakeLRS(t)
	loader := newTestLoader(t, srv, nil)
	q := query(model.DatasetItems, "english", "letter-sound", model.ModeRange)

	records, err := loader.Load(context.Background(), q)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, activities+"/assessment/english/letter-sound/item-1", records[0][normalize.ColItemURL])
	assert.Equal(t, 2.5, records[0][normalize.ColResponseTime])
	assert.Equal(t, "completed", records[1][normalize.ColType])
	assert.Equal(t, 2, lrsFake.count("range"))
}

func TestLoadEmptyWindow(t *testing.T) {
	srv, _ := newFakeLRS(t)
	loader := newTestLoader(t, srv, nil)
	q := query(model.DatasetScores, "english", "letter-sound", model.ModeRange)
	q.Since = time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)

	records, err := loader.Load(context.Background(), q)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestLoadPropagatesTransportErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	}))
	defer srv.Close()
	loader := newTestLoader(t, srv, nil)

	_, err := loader.Load(context.Background(), query(model.DatasetScores, "english", "letter-sound", ""))
	require.Error(t, err)
	assert.True(t, lrs.IsTransport(err))
}

func TestLoadActorFanOutStopsAtDeadline(t *testing.T) {
	survey := activities + "/survey/english/nonliterate-ses"
	var agentCalls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if strings.HasSuffix(q.Get("verb"), "/initialized") {
			body := make([]string, 6)
			for i := range body {
				actor := fmt.Sprintf(`{"name":"web-%d"}`, i)
				body[i] = stmt(fmt.Sprint("i", i), "2023-01-01T09:00:00Z", actor, "initialized", survey, "")
			}
			fmt.Fprintf(w, `{"statements":[%s]}`, strings.Join(body, ","))
			return
		}
		n := agentCalls.Add(1)
		select {
		case <-time.After(300 * time.Millisecond):
		case <-r.Context().Done():
			return
		}
		fmt.Fprintf(w, `{"statements":[%s]}`,
			stmt(fmt.Sprint("s", n), "2023-01-01T11:00:00Z", q.Get("agent"), "answered", survey+"/q1", ""))
	}))
	defer srv.Close()

	client, err := lrs.NewClient(lrs.ClientConfig{BaseURL: srv.URL + "/xapi/statements"})
	require.NoError(t, err)
	loader := NewLoader(client, Options{Concurrency: 1, MaxDuration: 500 * time.Millisecond})

	start := time.Now()
	_, err = loader.Load(context.Background(), query(model.DatasetSurvey, "english", "nonliterate-ses", model.ModeActors))
	var tooMany *lrs.TooManyPagesError
	require.ErrorAs(t, err, &tooMany)
	assert.Equal(t, "deadline", tooMany.Reason)
	assert.Less(t, time.Since(start), 1200*time.Millisecond)
	assert.Less(t, int(agentCalls.Load()), 6)
}

func TestPrepareDefaultsAndValidation(t *testing.T) {
	now := time.Date(2022, 9, 10, 15, 30, 0, 0, time.UTC)

	q, err := Prepare(model.Query{Dataset: model.DatasetSurvey, Lang: "english", Type: "nonliterate-ses"}, now)
	require.NoError(t, err)
	assert.Equal(t, SurveyOrigin, q.Since, "window is clamped to the origin")
	assert.Equal(t, time.Date(2022, 9, 10, 0, 0, 0, 0, time.UTC), q.Until)
	assert.Equal(t, model.ModeActors, q.Mode)

	q, err = Prepare(model.Query{Dataset: model.DatasetScores, Lang: "zulu", Type: "pseudoword", Mode: model.ModeActors}, now)
	require.NoError(t, err)
	assert.Equal(t, now.AddDate(0, 0, -DefaultWindowDays).Truncate(24*time.Hour), q.Since)
	assert.Equal(t, model.ModeRange, q.Mode)

	_, err = Prepare(model.Query{Dataset: model.DatasetItems, Lang: "English!", Type: "letter-sound"}, now)
	require.ErrorContains(t, err, "lang")

	_, err = Prepare(model.Query{
		Dataset: model.DatasetItems, Lang: "english", Type: "letter-sound",
		Since: time.Date(2022, 8, 1, 0, 0, 0, 0, time.UTC),
		Until: time.Date(2022, 7, 1, 0, 0, 0, 0, time.UTC),
	}, now)
	require.ErrorContains(t, err, "until must not be before since")

	_, err = Prepare(model.Query{Dataset: "quiz", Lang: "english", Type: "x"}, now)
	require.Error(t, err)

	for _, lang := range Languages(model.DatasetItems) {
		for _, typ := range ActivityTypes(model.DatasetItems) {
			_, err = Prepare(model.Query{Dataset: model.DatasetItems, Lang: lang, Type: typ}, now)
			require.NoError(t, err, lang+"/"+typ)
		}
	}
	assert.Contains(t, Languages(model.DatasetItems), "hausaNN")
	assert.Contains(t, ActivityTypes(model.DatasetItems), "pseudo-word")
	assert.NotContains(t, Languages(model.DatasetScores), "bangla")

	_, err = ParseDataset("SURVEY")
	assert.NoError(t, err)
	_, err = ParseDay("2023/01/01")
	assert.Error(t, err)
}

func TestParseQuery(t *testing.T) {
	now := time.Date(2023, 3, 1, 0, 0, 0, 0, time.UTC)
	q, err := ParseQuery(Params{
		Dataset: "items", Lang: "hausa", Type: "pseudoword",
		Since: "2023-01-01", Until: "2023-01-31", Mode: "ACTORS",
	}, now)
	require.NoError(t, err)
	assert.Equal(t, model.ModeActors, q.Mode)
	assert.Equal(t, "items hausa/pseudoword 2023-01-01..2023-01-31", q.String())

	_, err = ParseQuery(Params{Dataset: "items", Lang: "hausa", Type: "pseudoword", Mode: "sideways"}, now)
	assert.ErrorIs(t, err, ErrInvalidQuery)
	_, err = ParseQuery(Params{Dataset: "items", Lang: "hausa", Type: "pseudoword", Until: "yesterday"}, now)
	assert.ErrorIs(t, err, ErrInvalidQuery)
}
