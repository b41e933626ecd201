package statsui

import (
	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"

	"github.com/verte-zerg/lrsdash/internal/model"
	"github.com/verte-zerg/lrsdash/internal/stats"
)

const maxColumnWidth = 28

func buildRecordTable(columns []string, records []model.Record, width, height int) table.Model {
	cols, rows := buildRecordTableData(columns, records)
	t := table.New(
		table.WithColumns(cols),
		table.WithRows(rows),
		table.WithHeight(max(1, height-1)),
	)
	t.SetWidth(width)
	t.SetStyles(recordTableStyles())
	return t
}

// buildRecordTableData sizes each column to its widest cell, capped at
// maxColumnWidth.
func buildRecordTableData(columns []string, records []model.Record) ([]table.Column, []table.Row) {
	cols := make([]table.Column, len(columns))
	for i, name := range columns {
		cols[i] = table.Column{Title: name, Width: runewidth.StringWidth(name)}
	}
	rows := make([]table.Row, 0, len(records))
	for _, rec := range records {
		row := make(table.Row, len(columns))
		for i, name := range columns {
			row[i] = stats.FormatValue(rec[name])
			cols[i].Width = max(cols[i].Width, runewidth.StringWidth(row[i]))
		}
		rows = append(rows, row)
	}
	for i := range cols {
		cols[i].Width = min(cols[i].Width, maxColumnWidth)
	}
	return cols, rows
}

func (m *Model) applyRecordTable(force bool) {
	cols, rows := buildRecordTableData(m.report.Columns, m.report.Records)
	width := m.width
	if width <= 0 {
		width = 80
	}
	_, height, _ := m.layoutHeights()
	viewportHeight := max(1, height-1)
	if !force &&
		m.layout.width == width &&
		m.layout.height == viewportHeight &&
		m.layout.rowCount == len(rows) &&
		m.layout.colCount == len(cols) {
		return
	}
	// Rows shorter than the column set panic on render, so rows are cleared first.
	m.recordTable.SetRows(nil)
	m.recordTable.SetColumns(cols)
	m.recordTable.SetRows(rows)
	m.layout.rowCount = len(rows)
	m.layout.colCount = len(cols)
	m.layout.width, m.layout.height = 0, 0
	m.setRecordTableSize(width, height)
}

func (m *Model) setRecordTableSize(width, height int) {
	viewportHeight := max(1, height-1)
	if m.layout.width == width && m.layout.height == viewportHeight {
		return
	}
	m.layout.width = width
	m.layout.height = viewportHeight
	m.recordTable.SetWidth(width)
	m.recordTable.SetHeight(viewportHeight)
	viewportHeight = m.adjustRecordTableHeight(height)
	if m.layout.height != viewportHeight {
		m.layout.height = viewportHeight
		m.recordTable.SetHeight(viewportHeight)
	}
}

// adjustRecordTableHeight corrects for header borders so the rendered table
// fills exactly bodyHeight lines.
func (m *Model) adjustRecordTableHeight(bodyHeight int) int {
	target := max(1, bodyHeight)
	height := m.recordTable.Height()
	for n := 0; n < 2; n++ {
		viewHeight := lipgloss.Height(m.recordTable.View())
		if viewHeight == target {
			return height
		}
		height = max(1, height+target-viewHeight)
		m.recordTable.SetHeight(height)
	}
	return height
}

func recordTableStyles() table.Styles {
	styles := table.DefaultStyles()
	styles.Header = styles.Header.
		Border(lipgloss.NormalBorder(), false, false, true, false).
		BorderForeground(lipgloss.Color("#4A4A4A")).
		Foreground(lipgloss.Color("#C0C0C0")).
		Bold(true).
		Padding(0, 1).
		PaddingLeft(0)
	styles.Cell = styles.Cell.
		Padding(0, 1).
		PaddingLeft(0)
	styles.Selected = styles.Cell.
		Foreground(lipgloss.Color("#F0F0F0")).
		Bold(true)
	return styles
}
