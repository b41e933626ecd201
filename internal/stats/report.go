package stats

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/verte-zerg/lrsdash/internal/model"
	"github.com/verte-zerg/lrsdash/internal/normalize"
)

// ScoreBinWidth is the histogram bin width for assessment scores.
const ScoreBinWidth = 20

// Loader produces cleaned records for a query.
type Loader interface {
	Load(ctx context.Context, q model.Query) ([]model.Record, error)
}

// Report contains precomputed data for rendering one dashboard.
type Report struct {
	Query     model.Query    `json:"query"`
	Records   []model.Record `json:"records"`
	Columns   []string       `json:"columns"`
	Days      []DayCount     `json:"days"`
	Total     int            `json:"total"`
	Delta     int            `json:"delta"`
	Histogram []Bin          `json:"histogram,omitempty"`
	Types     []ValueCount   `json:"types"`
	Points    []GeoPoint     `json:"points"`
	Empty     bool           `json:"empty"`
}

// MarshalJSON writes the day as YYYY-MM-DD.
func (d DayCount) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Day   string `json:"day"`
		Count int    `json:"count"`
	}{d.Label(), d.Count})
}

// BuildReport loads records for q and aggregates them.
func BuildReport(ctx context.Context, loader Loader, q model.Query) (Report, error) {
	records, err := loader.Load(ctx, q)
	if err != nil {
		return Report{}, err
	}
	return Build(q, records)
}

// Build aggregates already loaded records. An empty record set yields a report
// with Empty set.
func Build(q model.Query, records []model.Record) (Report, error) {
	if len(records) == 0 {
		return Report{Query: q, Empty: true}, nil
	}
	days, err := GroupByDay(records)
	if err != nil {
		return Report{}, fmt.Errorf("failed to group records by day: %w", err)
	}
	report := Report{
		Query:   q,
		Records: records,
		Columns: normalize.Columns(records),
		Days:    days,
		Total:   Total(days),
		Delta:   LastDayDelta(days),
		Types:   ValueCounts(records, normalize.ColType),
		Points:  GeoPoints(records),
	}
	if q.Dataset == model.DatasetScores {
		report.Histogram, err = ScoreHistogram(records)
		if err != nil {
			return Report{}, err
		}
	}
	return report, nil
}

// ScoreHistogram bins raw scores up to the max score of the first record.
// It returns nil when the first record has no usable max score.
func ScoreHistogram(records []model.Record) ([]Bin, error) {
	if len(records) == 0 {
		return nil, nil
	}
	maxScore, ok := Float(records[0], normalize.ColScoreMax)
	if !ok || maxScore <= 0 {
		return nil, nil
	}
	values := make([]float64, 0, len(records))
	for _, r := range records {
		if v, ok := Float(r, normalize.ColScoreRaw); ok {
			values = append(values, v)
		}
	}
	bins, err := Histogram(values, ScoreBinWidth, float64(int(maxScore)))
	if err != nil {
		return nil, fmt.Errorf("failed to bin scores: %w", err)
	}
	return bins, nil
}
