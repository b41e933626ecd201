package statsui

import (
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/verte-zerg/lrsdash/internal/dataset"
	"github.com/verte-zerg/lrsdash/internal/model"
)

const (
	fieldDataset = iota
	fieldLang
	fieldType
	fieldSince
	fieldUntil
	fieldMode
)

func (m *Model) initInputs() {
	m.filterInputs = []textinput.Model{
		newFilterInput("Dataset (scores|items|survey): "),
		newFilterInput("Lang: "),
		newFilterInput("Type: "),
		newFilterInput("Since (YYYY-MM-DD): "),
		newFilterInput("Until (YYYY-MM-DD): "),
		newFilterInput("Mode (range|actors): "),
	}
	m.setInputsFromQuery()
}

func (m *Model) setInputsFromQuery() {
	if len(m.filterInputs) == 0 {
		return
	}
	q := m.query
	m.filterInputs[fieldDataset].SetValue(string(q.Dataset))
	m.filterInputs[fieldLang].SetValue(q.Lang)
	m.filterInputs[fieldType].SetValue(q.Type)
	m.filterInputs[fieldSince].SetValue(formatDay(q.Since))
	m.filterInputs[fieldUntil].SetValue(formatDay(q.Until))
	m.filterInputs[fieldMode].SetValue(string(q.Mode))
}

func formatDay(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(model.DateLayout)
}

func (m *Model) renderFilterForm() string {
	lines := []string{"Settings (enter to apply, esc to cancel)"}
	for _, input := range m.filterInputs {
		lines = append(lines, input.View())
	}
	lines = append(lines, headerStyle.Render("Languages: "+strings.Join(dataset.Languages(m.query.Dataset), ", ")+
		"  Types: "+strings.Join(dataset.ActivityTypes(m.query.Dataset), ", ")))
	if m.filterError != "" {
		lines = append(lines, errorStyle.Render(m.filterError))
	}
	return strings.Join(lines, "\n")
}

func (m *Model) startFilter() (tea.Model, tea.Cmd) {
	m.filterMode = true
	m.filterError = ""
	m.setInputsFromQuery()
	return m, m.setFilterIndex(0)
}

func (m *Model) updateFilter(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEsc:
		m.filterMode = false
		m.filterError = ""
		return m, nil
	case tea.KeyEnter:
		if err := m.applyFilter(); err != nil {
			m.filterError = err.Error()
			return m, nil
		}
		m.filterMode = false
		m.filterError = ""
		m.updateLayout()
		return m, tea.Batch(m.spinner.Tick, m.load())
	case tea.KeyTab:
		return m, m.setFilterIndex(m.filterIndex + 1)
	case tea.KeyShiftTab:
		return m, m.setFilterIndex(m.filterIndex - 1)
	}
	var cmd tea.Cmd
	m.filterInputs[m.filterIndex], cmd = m.filterInputs[m.filterIndex].Update(msg)
	return m, cmd
}

func (m *Model) setFilterIndex(idx int) tea.Cmd {
	count := len(m.filterInputs)
	if count == 0 {
		return nil
	}
	if idx < 0 {
		idx = count - 1
	}
	if idx >= count {
		idx = 0
	}
	m.filterIndex = idx
	var cmd tea.Cmd
	for i := range m.filterInputs {
		if i == m.filterIndex {
			cmd = m.filterInputs[i].Focus()
		} else {
			m.filterInputs[i].Blur()
		}
	}
	return cmd
}

// applyFilter replaces the query with the form values. A dataset change with
// an unchanged mode falls back to the new dataset's default mode.
func (m *Model) applyFilter() error {
	value := func(i int) string { return strings.TrimSpace(m.filterInputs[i].Value()) }
	mode := value(fieldMode)
	if value(fieldDataset) != string(m.query.Dataset) && mode == string(m.query.Mode) {
		mode = ""
	}
	q, err := dataset.ParseQuery(dataset.Params{
		Dataset: value(fieldDataset),
		Lang:    value(fieldLang),
		Type:    value(fieldType),
		Since:   value(fieldSince),
		Until:   value(fieldUntil),
		Mode:    mode,
	}, m.now())
	if err != nil {
		return err
	}
	m.query = q
	return nil
}
