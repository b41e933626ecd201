// Package stats contains aggregate calculations and text reporting for records.
package stats

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/verte-zerg/lrsdash/internal/model"
	"github.com/verte-zerg/lrsdash/internal/normalize"
)

// ErrEmptyResult marks a query window without records. It is a displayable
// state, not a failure.
var ErrEmptyResult = errors.New("no data for this date range")

const sparkChars = " .:-=+*#%@"

// DayCount is the number of records on one calendar day.
type DayCount struct {
	Day   time.Time
	Count int
}

// Label formats the day as YYYY-MM-DD.
func (d DayCount) Label() string {
	return d.Day.Format(model.DateLayout)
}

// GroupByDay counts records per calendar date of their timestamp, in the offset
// the timestamp was written with. Days without records are absent.
func GroupByDay(records []model.Record) ([]DayCount, error) {
	counts := map[time.Time]int{}
	for i, r := range records {
		ts, err := recordTime(r)
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		y, m, d := ts.Date()
		counts[time.Date(y, m, d, 0, 0, 0, 0, time.UTC)]++
	}
	days := make([]DayCount, 0, len(counts))
	for day, n := range counts {
		days = append(days, DayCount{Day: day, Count: n})
	}
	sort.Slice(days, func(i, j int) bool {
		return days[i].Day.Before(days[j].Day)
	})
	return days, nil
}

func recordTime(r model.Record) (time.Time, error) {
	switch ts := r[normalize.ColTimestamp].(type) {
	case time.Time:
		return ts, nil
	case string:
		return normalize.ParseTimestamp(ts)
	default:
		return time.Time{}, fmt.Errorf("missing timestamp")
	}
}

// DayMap returns the counts keyed by YYYY-MM-DD.
func DayMap(days []DayCount) map[string]int {
	out := make(map[string]int, len(days))
	for _, d := range days {
		out[d.Label()] += d.Count
	}
	return out
}

// Backfill returns one entry per day in [since, until], zero where absent.
// Days outside the range are dropped.
func Backfill(days []DayCount, since, until time.Time) []DayCount {
	byLabel := DayMap(days)
	start := dayOf(since)
	end := dayOf(until)
	if end.Before(start) {
		return nil
	}
	out := make([]DayCount, 0, int(end.Sub(start).Hours()/24)+1)
	for day := start; !day.After(end); day = day.AddDate(0, 0, 1) {
		out = append(out, DayCount{Day: day, Count: byLabel[day.Format(model.DateLayout)]})
	}
	return out
}

func dayOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Total sums the daily counts.
func Total(days []DayCount) int {
	total := 0
	for _, d := range days {
		total += d.Count
	}
	return total
}

// LastDayDelta is the count of the most recent day. Dashboards show it as the
// "change" next to the total.
func LastDayDelta(days []DayCount) int {
	if len(days) == 0 {
		return 0
	}
	return days[len(days)-1].Count
}

// Counts returns the daily counts as a float series for plotting.
func Counts(days []DayCount) []float64 {
	out := make([]float64, len(days))
	for i, d := range days {
		out[i] = float64(d.Count)
	}
	return out
}

// Float reads a numeric column, reporting false for missing or nil values.
func Float(r model.Record, column string) (float64, bool) {
	switch v := r[column].(type) {
	case float64:
		return v, !math.IsNaN(v)
	case int:
		return float64(v), true
	default:
		return 0, false
	}
}

// MovingAverage computes a rolling mean over the provided window size.
func MovingAverage(values []float64, window int) []float64 {
	out := make([]float64, len(values))
	if window <= 1 {
		copy(out, values)
		return out
	}
	var sum float64
	for i, v := range values {
		sum += v
		den := float64(i + 1)
		if i >= window {
			sum -= values[i-window]
			den = float64(window)
		}
		out[i] = sum / den
	}
	return out
}

// Sparkline renders a single-line ASCII sparkline for the values.
func Sparkline(values []float64) string {
	if len(values) == 0 {
		return ""
	}
	minVal, maxVal := seriesMinMax(values)
	if math.Abs(maxVal-minVal) < 1e-9 {
		return strings.Repeat(string(sparkChars[len(sparkChars)/2]), len(values))
	}
	var b strings.Builder
	for _, v := range values {
		pos := (v - minVal) / (maxVal - minVal)
		idx := int(math.Round(pos * float64(len(sparkChars)-1)))
		idx = max(0, min(idx, len(sparkChars)-1))
		b.WriteByte(sparkChars[idx])
	}
	return b.String()
}
