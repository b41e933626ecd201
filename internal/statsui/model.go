// Package statsui provides the Bubble Tea dashboard.
package statsui

import (
	"bytes"
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/cursor"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/verte-zerg/lrsdash/internal/dataset"
	"github.com/verte-zerg/lrsdash/internal/model"
	"github.com/verte-zerg/lrsdash/internal/normalize"
	"github.com/verte-zerg/lrsdash/internal/stats"
)

const (
	tabOverview = iota
	tabDaily
	tabBreakdown
	tabRecords
)

const (
	plotHeight = 10
	windowStep = 7
)

var (
	activeNavStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#F0F0F0")).
			Bold(true).
			Padding(0, 1).
			Border(lipgloss.RoundedBorder(), true).
			BorderForeground(lipgloss.Color("#C89A3A"))
	inactiveNavStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("#B0B0B0")).
				Padding(0, 1).
				Border(lipgloss.RoundedBorder(), true).
				BorderForeground(lipgloss.Color("#4A4A4A"))
	headerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#6E6E6E"))
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF4D4F"))
	cardStyle   = lipgloss.NewStyle().
			Padding(0, 1).
			Border(lipgloss.RoundedBorder(), true).
			BorderForeground(lipgloss.Color("#4A4A4A"))
	cardTitleStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#8C8C8C"))
	cardValueStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#F0F0F0")).Bold(true)
	tableMutedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#B8B8B8"))
	noDataStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#C89A3A")).Bold(true)
)

// reportMsg carries the result of one load. seq discards stale results when
// the query changed while a load was in flight.
type reportMsg struct {
	seq    int
	report stats.Report
	err    error
}

// Model implements the Bubble Tea dashboard.
type Model struct {
	loader stats.Loader
	query  model.Query
	now    func() time.Time

	report  stats.Report
	loaded  bool
	loading bool
	seq     int
	errMsg  string
	spinner spinner.Model

	tabs        []string
	activeTab   int
	viewports   []viewport.Model
	recordTable table.Model
	layout      tableLayout

	width  int
	height int

	filterMode   bool
	filterInputs []textinput.Model
	filterIndex  int
	filterError  string
}

type tableLayout struct {
	width    int
	height   int
	rowCount int
	colCount int
}

// NewModel constructs a dashboard for q. The first load starts in Init.
func NewModel(loader stats.Loader, q model.Query) *Model {
	m := &Model{
		loader:  loader,
		query:   q,
		now:     time.Now,
		tabs:    []string{"Overview", "Daily", "Breakdown", "Records"},
		spinner: spinner.New(spinner.WithSpinner(spinner.Dot)),
	}
	m.initInputs()
	m.recordTable = buildRecordTable(nil, nil, 0, 1)
	m.initViewports()
	return m
}

// Init implements tea.Model.
func (m *Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.load())
}

// Query returns the query currently shown.
func (m *Model) Query() model.Query {
	return m.query
}

// load starts an asynchronous report build for the current query.
func (m *Model) load() tea.Cmd {
	m.seq++
	m.loading = true
	seq, q, loader := m.seq, m.query, m.loader
	return func() tea.Msg {
		report, err := stats.BuildReport(context.Background(), loader, q)
		return reportMsg{seq: seq, report: report, err: err}
	}
}

// Update implements tea.Model.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.updateLayout()
		m.applyRecordTable(true)
		m.renderTabContents()
		return m, nil
	case reportMsg:
		if msg.seq != m.seq {
			return m, nil
		}
		m.loading = false
		if msg.err != nil {
			m.errMsg = msg.err.Error()
			m.loaded = false
			m.report = stats.Report{}
		} else {
			m.errMsg = ""
			m.loaded = true
			m.report = msg.report
		}
		m.applyRecordTable(true)
		m.renderTabContents()
		return m, nil
	case spinner.TickMsg:
		if !m.loading {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC || (!m.filterMode && msg.String() == "q") {
			return m, tea.Quit
		}
		if m.activeTab == tabRecords {
			m.recordTable.Focus()
		} else {
			m.recordTable.Blur()
		}
		if m.filterMode {
			return m.updateFilter(msg)
		}
		switch msg.String() {
		case "left", "h":
			m.moveTab(-1)
			return m, tea.ClearScreen
		case "right", "l":
			m.moveTab(1)
			return m, tea.ClearScreen
		case "r":
			return m, tea.Batch(m.spinner.Tick, m.load())
		case "=":
			return m.shiftWindow(-windowStep)
		case "-":
			return m.shiftWindow(windowStep)
		case "/":
			return m.startFilter()
		case "g", "home":
			if m.activeTab == tabRecords {
				m.recordTable.GotoTop()
			} else {
				m.viewports[m.activeTab].GotoTop()
			}
			return m, nil
		case "G", "end":
			if m.activeTab == tabRecords {
				m.recordTable.GotoBottom()
			} else {
				m.viewports[m.activeTab].GotoBottom()
			}
			return m, nil
		default:
			if m.activeTab == tabRecords {
				var cmd tea.Cmd
				m.recordTable, cmd = m.recordTable.Update(msg)
				return m, cmd
			}
			vp := m.viewports[m.activeTab]
			var cmd tea.Cmd
			vp, cmd = vp.Update(msg)
			m.viewports[m.activeTab] = vp
			return m, cmd
		}
	}
	return m, nil
}

// View implements tea.Model.
func (m *Model) View() string {
	if m.width == 0 || m.height == 0 {
		return ""
	}
	headerHeight, bodyHeight, footerHeight := m.layoutHeights()
	header := fitLines(m.renderHeader(), m.width, headerHeight)
	body := fitLines(m.renderBody(bodyHeight), m.width, bodyHeight)
	footer := fitLines(m.renderFooter(), m.width, footerHeight)
	return strings.Join([]string{header, body, footer}, "\n")
}

// shiftWindow moves the start of the window by days, keeping the end fixed.
// Negative days widen the window.
func (m *Model) shiftWindow(days int) (tea.Model, tea.Cmd) {
	q := m.query
	q.Since = q.Since.AddDate(0, 0, days)
	if q.Since.After(q.Until) {
		q.Since = q.Until
	}
	prepared, err := dataset.Prepare(q, m.now())
	if err != nil {
		m.errMsg = err.Error()
		return m, nil
	}
	if prepared.Since.Equal(m.query.Since) {
		return m, nil
	}
	m.query = prepared
	return m, tea.Batch(m.spinner.Tick, m.load())
}

func (m *Model) initViewports() {
	m.viewports = make([]viewport.Model, len(m.tabs))
	for i := range m.viewports {
		m.viewports[i] = viewport.New(0, 0)
	}
}

func (m *Model) layoutHeights() (headerHeight, bodyHeight, footerHeight int) {
	tabsHeight := lipgloss.Height(activeNavStyle.Render("X"))
	if tabsHeight < 1 {
		tabsHeight = 1
	}
	headerHeight = tabsHeight + 1
	footerHeight = 1
	if !m.filterMode && m.errMsg != "" {
		footerHeight++
	}
	bodyHeight = m.height - headerHeight - footerHeight
	if bodyHeight < 1 {
		bodyHeight = 1
	}
	return headerHeight, bodyHeight, footerHeight
}

func (m *Model) updateLayout() {
	if m.width <= 0 || m.height <= 0 {
		return
	}
	_, vpHeight, _ := m.layoutHeights()
	for i := range m.viewports {
		m.viewports[i].Width = m.width
		m.viewports[i].Height = vpHeight
	}
	m.setRecordTableSize(m.width, vpHeight)
	for i := range m.filterInputs {
		promptWidth := lipgloss.Width(m.filterInputs[i].Prompt)
		m.filterInputs[i].Width = max(10, m.width-promptWidth-2)
	}
}

func (m *Model) moveTab(delta int) {
	count := len(m.tabs)
	if count == 0 {
		return
	}
	next := m.activeTab + delta
	if next < 0 {
		next = count - 1
	}
	if next >= count {
		next = 0
	}
	m.activeTab = next
	if m.activeTab == tabRecords {
		m.recordTable.Focus()
	} else {
		m.recordTable.Blur()
	}
}

func (m *Model) renderTabs() string {
	parts := make([]string, 0, len(m.tabs))
	for i, tab := range m.tabs {
		if i == m.activeTab {
			parts = append(parts, activeNavStyle.Render(tab))
		} else {
			parts = append(parts, inactiveNavStyle.Render(tab))
		}
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, parts...)
}

func (m *Model) renderHeader() string {
	tabs := padLines(m.renderTabs(), m.width)
	summary := padLines(m.renderQuerySummary(), m.width)
	return tabs + "\n" + summary
}

func (m *Model) renderQuerySummary() string {
	q := m.query
	summary := fmt.Sprintf("Query: %s  lang=%s  type=%s  since=%s  until=%s  mode=%s",
		q.Dataset, q.Lang, q.Type, q.Since.Format(model.DateLayout), q.Until.Format(model.DateLayout), q.Mode)
	if m.loading {
		summary = m.spinner.View() + " " + summary
	}
	return headerStyle.Render(truncateLine(summary, m.width))
}

func (m *Model) renderHelp() string {
	return headerStyle.Render("Nav: left/right  Scroll: up/down/pgup/pgdn  Window: -/=  Reload: r  Settings: /  Quit: q")
}

func (m *Model) renderFooter() string {
	if m.filterMode {
		return headerStyle.Render("tab/shift+tab: next field  enter: apply  esc: cancel  quit: ctrl+c")
	}
	if m.errMsg != "" {
		return m.renderHelp() + "\n" + errorStyle.Render(m.errMsg)
	}
	return m.renderHelp()
}

func (m *Model) renderBody(height int) string {
	switch {
	case m.filterMode:
		return fitLines(m.renderFilterForm(), m.width, height)
	case !m.loaded && m.loading:
		return fitLines(m.spinner.View()+" Loading statements...", m.width, height)
	case m.loaded && m.report.Empty:
		return fitLines(noDataStyle.Render("NO DATA for this date range"), m.width, height)
	case m.activeTab == tabRecords && m.loaded:
		return fitLines(tableMutedStyle.Render(m.recordTable.View()), m.width, height)
	}
	return fitLines(m.viewports[m.activeTab].View(), m.width, height)
}

func (m *Model) renderTabContents() {
	if len(m.viewports) == 0 {
		return
	}
	if m.errMsg != "" && !m.loaded {
		for i := range m.viewports {
			m.viewports[i].SetContent("Failed to load statements.")
		}
		return
	}
	if !m.loaded || m.report.Empty {
		for i := range m.viewports {
			m.viewports[i].SetContent("")
		}
		return
	}
	width := m.width
	if width <= 0 {
		width = 80
	}
	m.viewports[tabOverview].SetContent(renderOverview(m.report, width))
	m.viewports[tabDaily].SetContent(renderDaily(m.report, width))
	m.viewports[tabBreakdown].SetContent(renderBreakdown(m.report))
}

func renderOverview(r stats.Report, width int) string {
	cards := renderSummaryCards(r, width)
	filled := stats.Backfill(r.Days, r.Query.Since, r.Query.Until)
	spark := headerStyle.Render("Daily ") + stats.Sparkline(stats.Counts(filled))
	out := cards + "\n\n" + spark
	if len(r.Histogram) > 0 {
		var buf bytes.Buffer
		if err := stats.RenderHistogram(&buf, r.Histogram, width); err != nil {
			return fmt.Sprintf("Failed to render histogram: %v", err)
		}
		out += "\n\n" + buf.String()
	}
	return strings.TrimRight(out, "\n")
}

func renderSummaryCards(r stats.Report, width int) string {
	last := "-"
	if len(r.Days) > 0 {
		last = r.Days[len(r.Days)-1].Label()
	}
	cards := []string{
		metricCard("Statements", strconv.Itoa(r.Total)),
		metricCard("Last day "+last, fmt.Sprintf("%+d", r.Delta)),
		metricCard("Active days", strconv.Itoa(len(r.Days))),
		metricCard("Users", strconv.Itoa(len(stats.ValueCounts(r.Records, normalize.ColUserID)))),
		metricCard("Locations", strconv.Itoa(len(r.Points))),
	}
	if width < 80 {
		return strings.Join(cards, "\n")
	}
	row1 := lipgloss.JoinHorizontal(lipgloss.Top, cards[0], cards[1], cards[2])
	row2 := lipgloss.JoinHorizontal(lipgloss.Top, cards[3], cards[4])
	return lipgloss.JoinVertical(lipgloss.Left, row1, row2)
}

func metricCard(label, value string) string {
	content := fmt.Sprintf("%s\n%s", cardTitleStyle.Render(label), cardValueStyle.Render(value))
	return cardStyle.Render(content)
}

func renderDaily(r stats.Report, width int) string {
	var buf bytes.Buffer
	if err := stats.RenderDaily(&buf, r, stats.RenderOptions{Width: width, Height: plotHeight, ForceColor: true}); err != nil {
		return fmt.Sprintf("Failed to render daily counts: %v", err)
	}
	return strings.TrimRight(buf.String(), "\n")
}

func renderBreakdown(r stats.Report) string {
	var buf bytes.Buffer
	if err := stats.RenderValueCounts(&buf, "By type", r.Types); err != nil {
		return fmt.Sprintf("Failed to render breakdown: %v", err)
	}
	buf.WriteByte('\n')
	if err := stats.RenderLocations(&buf, r.Points); err != nil {
		return fmt.Sprintf("Failed to render locations: %v", err)
	}
	return strings.TrimRight(buf.String(), "\n")
}

func truncateLine(s string, width int) string {
	if width <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= width {
		return s
	}
	if width <= 3 {
		return string(runes[:width])
	}
	return string(runes[:width-3]) + "..."
}

func padLines(s string, width int) string {
	if width <= 0 || s == "" {
		return s
	}
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = padLine(line, width)
	}
	return strings.Join(lines, "\n")
}

func padLine(line string, width int) string {
	lineWidth := lipgloss.Width(line)
	if lineWidth < width {
		return line + strings.Repeat(" ", width-lineWidth)
	}
	return line
}

func fitLines(s string, width, height int) string {
	if width <= 0 || height <= 0 {
		return s
	}
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = padLine(line, width)
	}
	if len(lines) > height {
		lines = lines[:height]
	}
	for len(lines) < height {
		lines = append(lines, strings.Repeat(" ", width))
	}
	return strings.Join(lines, "\n")
}

func newFilterInput(prompt string) textinput.Model {
	input := textinput.New()
	input.Prompt = prompt
	input.CharLimit = 0
	input.Cursor.SetMode(cursor.CursorBlink)
	return input
}
