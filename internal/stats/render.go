package stats

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/mattn/go-runewidth"
)

const barChar = "█"

// RenderOptions controls text report output.
type RenderOptions struct {
	Width      int
	Height     int
	ForceColor bool
	// RecordLimit caps the raw records table. Zero hides it.
	RecordLimit int
}

// RenderReport prints every section of a report. An empty report prints the
// no-data notice only.
func RenderReport(w io.Writer, r Report, opts RenderOptions) error {
	if r.Empty {
		_, err := fmt.Fprintln(w, "NO DATA for this date range")
		return err
	}
	steps := []func() error{
		func() error { return RenderSummary(w, r) },
		func() error { return RenderDaily(w, r, opts) },
		func() error { return RenderHistogram(w, r.Histogram, opts.Width) },
		func() error { return RenderValueCounts(w, "By type", r.Types) },
		func() error { return RenderLocations(w, r.Points) },
	}
	if opts.RecordLimit > 0 {
		steps = append(steps, func() error { return RenderRecords(w, r, opts.RecordLimit) })
	}
	for _, step := range steps {
		if err := step(); err != nil {
			return err
		}
	}
	return nil
}

// RenderSummary prints the total and last-day metric.
func RenderSummary(w io.Writer, r Report) error {
	last := "-"
	if len(r.Days) > 0 {
		last = r.Days[len(r.Days)-1].Label()
	}
	_, err := fmt.Fprintf(w, "%s\nTotal: %d\nLast day (%s): %+d\n\n", r.Query, r.Total, last, r.Delta)
	return err
}

// RenderDaily plots daily counts across the full query window, zero-filling
// days without records, followed by a table of the non-empty days.
func RenderDaily(w io.Writer, r Report, opts RenderOptions) error {
	if len(r.Days) == 0 {
		return nil
	}
	since, until := r.Query.Since, r.Query.Until
	if since.IsZero() || until.IsZero() {
		since, until = r.Days[0].Day, r.Days[len(r.Days)-1].Day
	}
	filled := Backfill(r.Days, since, until)
	if err := PlotSeries(w, "Daily statements", []Series{
		{Name: "count", Values: Counts(filled)},
		{Name: "7-day mean", Values: MovingAverage(Counts(filled), 7)},
	}, opts.Width, opts.Height, opts.ForceColor); err != nil {
		return err
	}
	rows := make([][]string, 0, len(r.Days))
	for _, d := range r.Days {
		rows = append(rows, []string{d.Label(), strconv.Itoa(d.Count)})
	}
	return writeLines(w, FormatTable([]string{"Day", "Count"}, rows, map[int]bool{1: true}))
}

// RenderHistogram prints horizontal bars, one per bin.
func RenderHistogram(w io.Writer, bins []Bin, width int) error {
	if len(bins) == 0 {
		return nil
	}
	if width <= 0 {
		width = terminalWidth()
	}
	labels := make([]string, len(bins))
	labelWidth, maxCount := 0, 0
	for i, b := range bins {
		labels[i] = fmt.Sprintf("%s-%s", formatAxis(b.Start), formatAxis(b.End))
		labelWidth = max(labelWidth, runewidth.StringWidth(labels[i]))
		maxCount = max(maxCount, b.Count)
	}
	barWidth := max(width-labelWidth-10, minPlotWidth)
	var sb strings.Builder
	sb.WriteString("Score histogram\n")
	for i, b := range bins {
		n := 0
		if maxCount > 0 {
			n = b.Count * barWidth / maxCount
		}
		fmt.Fprintf(&sb, "%s │%s %d\n", runewidth.FillLeft(labels[i], labelWidth), strings.Repeat(barChar, n), b.Count)
	}
	sb.WriteByte('\n')
	_, err := io.WriteString(w, sb.String())
	return err
}

// RenderValueCounts prints a count table under title.
func RenderValueCounts(w io.Writer, title string, counts []ValueCount) error {
	if len(counts) == 0 {
		return nil
	}
	rows := make([][]string, 0, len(counts))
	for _, c := range counts {
		rows = append(rows, []string{c.Value, strconv.Itoa(c.Count)})
	}
	if _, err := fmt.Fprintln(w, title); err != nil {
		return err
	}
	return writeLines(w, FormatTable([]string{"Value", "Count"}, rows, map[int]bool{1: true}))
}

// RenderLocations prints the number of located records.
func RenderLocations(w io.Writer, points []GeoPoint) error {
	_, err := fmt.Fprintf(w, "Number of locations: %d\n\n", len(points))
	return err
}

// RenderRecords prints up to limit records as a table.
func RenderRecords(w io.Writer, r Report, limit int) error {
	records := r.Records
	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}
	rows := make([][]string, 0, len(records))
	for _, rec := range records {
		row := make([]string, len(r.Columns))
		for i, col := range r.Columns {
			row[i] = FormatValue(rec[col])
		}
		rows = append(rows, row)
	}
	if _, err := fmt.Fprintf(w, "Records (%d of %d)\n", len(records), len(r.Records)); err != nil {
		return err
	}
	return writeLines(w, FormatTable(r.Columns, rows, nil))
}

// FormatValue renders a record cell for tables and spreadsheets.
func FormatValue(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case time.Time:
		return val.Format(time.RFC3339)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case string:
		return val
	default:
		return fmt.Sprint(val)
	}
}

func writeLines(w io.Writer, lines []string) error {
	for _, line := range lines {
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintln(w)
	return err
}
