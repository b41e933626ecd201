// Package export writes dashboard reports as xlsx workbooks.
package export

import (
	"fmt"
	"io"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/verte-zerg/lrsdash/internal/model"
	"github.com/verte-zerg/lrsdash/internal/stats"
)

// Sheet names in workbook order.
const (
	SheetRecords   = "Records"
	SheetDaily     = "Daily"
	SheetTypes     = "Types"
	SheetHistogram = "Histogram"
)

// ContentType is the MIME type of the workbook.
const ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// Filename names the export of q as {lang}-{type}-{since}-{until}.xlsx.
func Filename(q model.Query) string {
	return fmt.Sprintf("%s-%s-%s-%s.xlsx", q.Lang, q.Type,
		q.Since.Format(model.DateLayout), q.Until.Format(model.DateLayout))
}

// Workbook builds the workbook of a report. An empty report returns
// stats.ErrEmptyResult.
func Workbook(r stats.Report) (*excelize.File, error) {
	if r.Empty || len(r.Records) == 0 {
		return nil, stats.ErrEmptyResult
	}
	f := excelize.NewFile()
	if err := f.SetSheetName(f.GetSheetName(0), SheetRecords); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("failed to create %s sheet: %w", SheetRecords, err)
	}
	if err := writeRecords(f, r); err != nil {
		_ = f.Close()
		return nil, err
	}

	daily := make([][]any, 0, len(r.Days))
	for _, d := range r.Days {
		daily = append(daily, []any{d.Label(), d.Count})
	}
	types := make([][]any, 0, len(r.Types))
	for _, t := range r.Types {
		types = append(types, []any{t.Value, t.Count})
	}
	sheets := []struct {
		name    string
		headers []string
		rows    [][]any
	}{
		{SheetDaily, []string{"day", "count"}, daily},
		{SheetTypes, []string{"type", "count"}, types},
	}
	if len(r.Histogram) > 0 {
		bins := make([][]any, 0, len(r.Histogram))
		for _, b := range r.Histogram {
			bins = append(bins, []any{b.Start, b.End, b.Count})
		}
		sheets = append(sheets, struct {
			name    string
			headers []string
			rows    [][]any
		}{SheetHistogram, []string{"bin_start", "bin_end", "count"}, bins})
	}
	for _, s := range sheets {
		if _, err := f.NewSheet(s.name); err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("failed to create %s sheet: %w", s.name, err)
		}
		if err := writeTable(f, s.name, s.headers, s.rows); err != nil {
			_ = f.Close()
			return nil, err
		}
	}
	f.SetActiveSheet(0)
	return f, nil
}

func writeRecords(f *excelize.File, r stats.Report) error {
	rows := make([][]any, 0, len(r.Records))
	for _, rec := range r.Records {
		row := make([]any, len(r.Columns))
		for i, col := range r.Columns {
			row[i] = cellValue(rec[col])
		}
		rows = append(rows, row)
	}
	return writeTable(f, SheetRecords, r.Columns, rows)
}

func writeTable(f *excelize.File, sheet string, headers []string, rows [][]any) error {
	header := make([]any, len(headers))
	for i, h := range headers {
		header[i] = h
	}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return fmt.Errorf("failed to write %s header: %w", sheet, err)
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("failed to write %s row %d: %w", sheet, i+1, err)
		}
	}
	return nil
}

// cellValue keeps numbers numeric and writes timestamps with their offset.
func cellValue(v any) any {
	switch val := v.(type) {
	case nil:
		return nil
	case float64, int, bool:
		return val
	case time.Time:
		return val.Format(time.RFC3339)
	default:
		return stats.FormatValue(val)
	}
}

// Write streams the workbook of r to w.
func Write(w io.Writer, r stats.Report) error {
	f, err := Workbook(r)
	if err != nil {
		return err
	}
	defer func() {
		_ = f.Close()
	}()
	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}
