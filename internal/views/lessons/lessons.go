// Package lessons renders the lesson list overlay backed by a poll
// subscription.
package lessons

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/meinzeug-cloud/mrsunkwn/internal/poll"
	"github.com/meinzeug-cloud/mrsunkwn/internal/theme"
)

// PerPage is the page size requested by the overlay.
const PerPage = 8

// Row is the part of a lesson the list shows.
type Row struct {
	ID         string `json:"id"`
	Title      string `json:"title"`
	Subject    string `json:"subject"`
	Difficulty int    `json:"difficulty"`
	Minutes    int    `json:"minutes"`
}

// Model is the overlay state.
type Model struct {
	Query   poll.ListQuery
	Result  poll.Result[poll.ListPage]
	Spinner spinner.Model
	Width   int
}

func New(subject string) Model {
	q := poll.ListQuery{Page: 1, PerPage: PerPage, SortBy: "difficulty", SortOrder: "asc"}
	if subject != "" {
		q.Filters = map[string]interface{}{"subject": subject}
	}
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(theme.ColorTutor)
	return Model{Query: q, Spinner: sp}
}

// Pages returns the page count of the last result.
func (m Model) Pages() int {
	if m.Result.Data == nil || m.Query.PerPage <= 0 {
		return 1
	}
	n := (m.Result.Data.Total + m.Query.PerPage - 1) / m.Query.PerPage
	if n < 1 {
		n = 1
	}
	return n
}

// NextPage advances the query and reports whether it changed.
func (m *Model) NextPage() bool {
	if m.Query.Page >= m.Pages() {
		return false
	}
	m.Query.Page++
	return true
}

// PrevPage moves the query back and reports whether it changed.
func (m *Model) PrevPage() bool {
	if m.Query.Page <= 1 {
		return false
	}
	m.Query.Page--
	return true
}

// Update forwards spinner ticks.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	var cmd tea.Cmd
	m.Spinner, cmd = m.Spinner.Update(msg)
	return m, cmd
}

// Rows decodes the items of the last page. Items that do not decode are
// skipped.
func (m Model) Rows() []Row {
	if m.Result.Data == nil {
		return nil
	}
	rows := make([]Row, 0, len(m.Result.Data.Items))
	for _, raw := range m.Result.Data.Items {
		var r Row
		if err := json.Unmarshal(raw, &r); err != nil {
			continue
		}
		rows = append(rows, r)
	}
	return rows
}

func (m Model) View() string {
	title := theme.StyleHeader.Render(" LESSONS ")
	if m.Result.Loading {
		title += " " + m.Spinner.View()
	}

	var body []string
	if m.Result.Err != nil {
		body = append(body, theme.StyleError.Render("  "+m.Result.Err.Error()))
	}
	rows := m.Rows()
	switch {
	case m.Result.Data == nil && m.Result.Loading:
		body = append(body, theme.StyleDimmed.Render("  Loading..."))
	case len(rows) == 0:
		body = append(body, theme.StyleDimmed.Render("  No lessons."))
	}
	for _, r := range rows {
		body = append(body, fmt.Sprintf("  %-32s %-8s lvl %d  %3d min", r.Title, r.Subject, r.Difficulty, r.Minutes))
	}

	total := 0
	if m.Result.Data != nil {
		total = m.Result.Data.Total
	}
	help := theme.StyleDimmed.Render(fmt.Sprintf("page %d/%d  %d lessons  h/l:page  esc:close", m.Query.Page, m.Pages(), total))

	width := m.Width - 4
	if width < 40 {
		width = 40
	}
	return lipgloss.NewStyle().
		Width(width).
		Padding(1, 2).
		BorderStyle(lipgloss.DoubleBorder()).
		BorderForeground(theme.ColorBorder).
		Render(lipgloss.JoinVertical(lipgloss.Left, title, strings.Join(body, "\n"), "", help))
}
