package normalize

import (
	"sort"
	"strconv"

	"github.com/verte-zerg/lrsdash/internal/model"
)

// Canonical column names.
const (
	ColType         = "type"
	ColSessionID    = "webSessionId"
	ColUserID       = "clUserId"
	ColUserSource   = "userSource"
	ColScoreRaw     = "scoreRaw"
	ColScoreMax     = "scoreRawMax"
	ColDuration     = "duration"
	ColResponseTime = "responseTime"
	ColQuestion     = "question"
	ColAnswer       = "answer"
	ColItemURL      = "itemURL"
	ColLat          = "lat"
	ColLon          = "lon"
	ColCity         = "city"
	ColRegion       = "region"
	ColCountry      = "country"
)

var actorRename = map[string]string{
	"actor.name":             ColSessionID,
	"actor.account.name":     ColUserID,
	"actor.account.homePage": ColUserSource,
	"verb.display.en-US":     ColType,
	"object.id":              ColItemURL,
}

func mergeRename(extra map[string]string) map[string]string {
	out := make(map[string]string, len(actorRename)+len(extra))
	for k, v := range actorRename {
		out[k] = v
	}
	for k, v := range extra {
		out[k] = v
	}
	return out
}

func optionColumns(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = "option-" + strconv.Itoa(i)
	}
	return out
}

// ScoresProfile cleans assessment completion statements.
func ScoresProfile(prefix string) Options {
	return Options{
		Columns: []string{
			ColTimestamp, "actor.name", "actor.account.name", "actor.account.homePage",
			"verb.display.en-US", "object.id", "result.score.raw", "result.score.max", "result.duration",
		},
		Rename: mergeRename(map[string]string{
			"result.score.raw": ColScoreRaw,
			"result.score.max": ColScoreMax,
			"result.duration":  ColDuration,
		}),
		ActivityPrefix:  prefix,
		NumericColumns:  []string{ColScoreRaw, ColScoreMax},
		DurationColumns: []string{ColDuration},
	}
}

var itemRename = map[string]string{
	"object.definition.description.en-US": ColQuestion,
	"result.response":                     ColAnswer,
	"result.duration":                     ColResponseTime,
	"object.location.lat":                 ColLat,
	"object.location.lng":                 ColLon,
	"object.location.city":                ColCity,
	"object.location.region":              ColRegion,
	"object.location.country":             ColCountry,
}

var itemColumns = []string{
	ColTimestamp, "verb.display.en-US", "actor.name", "actor.account.name", "actor.account.homePage",
	"object.id", "object.definition.description.en-US", "result.response", "result.duration",
	"object.location.lat", "object.location.lng", "object.location.city",
	"object.location.region", "object.location.country",
}

// ItemsProfile cleans item-level assessment statements.
func ItemsProfile(prefix string) Options {
	rename := mergeRename(itemRename)
	rename["result.score.raw"] = ColScoreRaw
	rename["result.score.max"] = ColScoreMax

	cols := append([]string{}, itemColumns...)
	cols = append(cols, "result.score.raw", "result.score.max")
	cols = append(cols, optionColumns(4)...)
	return Options{
		Columns:         cols,
		Rename:          rename,
		ActivityPrefix:  prefix,
		NumericColumns:  []string{ColLat, ColLon, ColScoreRaw, ColScoreMax},
		DurationColumns: []string{ColResponseTime},
	}
}

// SurveyProfile cleans survey answer statements.
func SurveyProfile(prefix string) Options {
	cols := append([]string{}, itemColumns...)
	cols = append(cols, optionColumns(6)...)
	return Options{
		Columns:         cols,
		Rename:          mergeRename(itemRename),
		ActivityPrefix:  prefix,
		NumericColumns:  []string{ColLat, ColLon},
		DurationColumns: []string{ColResponseTime},
	}
}

// ProfileFor returns the cleaning profile of a dataset.
func ProfileFor(d model.Dataset, prefix string) Options {
	switch d {
	case model.DatasetItems:
		return ItemsProfile(prefix)
	case model.DatasetSurvey:
		return SurveyProfile(prefix)
	default:
		return ScoresProfile(prefix)
	}
}

// ColumnOrder is the preferred display order of canonical columns.
var ColumnOrder = []string{
	ColTimestamp, ColType, ColSessionID, ColUserID, ColUserSource, ColItemURL,
	ColQuestion, ColAnswer, ColScoreRaw, ColScoreMax, ColDuration, ColResponseTime,
	"option-0", "option-1", "option-2", "option-3", "option-4", "option-5",
	ColLat, ColLon, ColCity, ColRegion, ColCountry,
}

// Columns lists the columns present in records in display order.
// Columns outside ColumnOrder follow alphabetically.
func Columns(records []model.Record) []string {
	present := map[string]struct{}{}
	for _, r := range records {
		for k := range r {
			present[k] = struct{}{}
		}
	}
	out := make([]string, 0, len(present))
	for _, c := range ColumnOrder {
		if _, ok := present[c]; ok {
			out = append(out, c)
			delete(present, c)
		}
	}
	extra := make([]string, 0, len(present))
	for k := range present {
		extra = append(extra, k)
	}
	sort.Strings(extra)
	return append(out, extra...)
}
