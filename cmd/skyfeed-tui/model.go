package main

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/unklstewy/skyfeed/internal/feed"
	"github.com/unklstewy/skyfeed/pkg/coordinates"
)

const (
	redrawInterval = time.Second
	// lines used by title, header, status and help
	chromeLines = 7
)

// column is one table column bound to a record field.
type column struct {
	title string
	field string
	width int
	// format for numeric values; strings are shown as is
	format string
	// heading values are rounded to whole degrees in [0, 360)
	heading bool
}

var columns = []column{
	{title: "Callsign", field: "callsign", width: 9},
	{title: "Country", field: "origin_country", width: 16},
	{title: "Lon", field: "long", width: 9, format: "%.3f"},
	{title: "Lat", field: "lat", width: 8, format: "%.3f"},
	{title: "X (m)", field: "x", width: 12, format: "%.0f"},
	{title: "Y (m)", field: "y", width: 11, format: "%.0f"},
	{title: "Alt (m)", field: "baro_altitude", width: 8, format: "%.0f"},
	{title: "Vel (m/s)", field: "velocity", width: 9, format: "%.1f"},
	{title: "Track", field: "true_track", width: 6, format: "%.0f", heading: true},
}

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("86")).
			Background(lipgloss.Color("235")).
			Padding(0, 1)
	headerStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
	missingStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	selectedStyle = lipgloss.NewStyle().Background(lipgloss.Color("237"))
	okStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("46"))
	errStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	helpStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

type tickMsg time.Time

type refreshMsg struct {
	err error
}

type model struct {
	feed     *feed.Feed
	title    string
	rows     []feed.Record
	status   feed.Status
	selected int
	height   int
	notice   string
}

func newModel(f *feed.Feed, title string) model {
	m := model{feed: f, title: title, height: 24}
	m.reload()
	return m
}

func tick() tea.Cmd {
	return tea.Tick(redrawInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// refresh runs an out-of-schedule cycle.
func (m model) refresh() tea.Cmd {
	f := m.feed
	return func() tea.Msg {
		return refreshMsg{err: f.Refresh(context.Background())}
	}
}

func (m *model) reload() {
	m.rows = m.feed.Dataset().Snapshot()
	m.status = m.feed.Status()
	if m.selected >= len(m.rows) {
		m.selected = max(len(m.rows)-1, 0)
	}
}

func (m model) Init() tea.Cmd {
	return tick()
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			return m, tea.Quit
		case "up", "k":
			if m.selected > 0 {
				m.selected--
			}
		case "down", "j":
			if m.selected < len(m.rows)-1 {
				m.selected++
			}
		case "r":
			m.notice = "refreshing..."
			return m, m.refresh()
		}
		return m, nil

	case tea.WindowSizeMsg:
		m.height = msg.Height
		return m, nil

	case tickMsg:
		m.reload()
		return m, tick()

	case refreshMsg:
		switch {
		case msg.err == nil:
			m.notice = ""
		case errors.Is(msg.err, feed.ErrCycleInProgress):
			m.notice = "refresh already running"
		default:
			m.notice = msg.err.Error()
		}
		m.reload()
		return m, nil
	}
	return m, nil
}

func (m model) View() string {
	var s strings.Builder

	s.WriteString(titleStyle.Render(strings.ToUpper(m.title)))
	s.WriteString("\n\n")
	s.WriteString(m.renderTable())
	s.WriteString("\n")
	s.WriteString(m.renderStatus())
	s.WriteString("\n")
	s.WriteString(helpStyle.Render("↑/↓ select • r refresh now • q quit"))
	return s.String()
}

func (m model) renderTable() string {
	var t strings.Builder

	var header []string
	for _, c := range columns {
		header = append(header, pad(c.title, c.width))
	}
	t.WriteString(headerStyle.Render(strings.Join(header, " ")))
	t.WriteString("\n")

	if len(m.rows) == 0 {
		t.WriteString(missingStyle.Render("  No aircraft in range"))
		t.WriteString("\n")
		return t.String()
	}

	visible := max(m.height-chromeLines, 1)
	start := 0
	if m.selected >= visible {
		start = m.selected - visible + 1
	}
	end := min(start+visible, len(m.rows))

	for i := start; i < end; i++ {
		var cells []string
		for _, c := range columns {
			cells = append(cells, renderCell(m.rows[i][c.field], c))
		}
		line := strings.Join(cells, " ")
		if i == m.selected {
			line = selectedStyle.Render(line)
		}
		t.WriteString(line)
		t.WriteString("\n")
	}
	return t.String()
}

func (m model) renderStatus() string {
	st := m.status
	parts := []string{fmt.Sprintf("%d aircraft", len(m.rows))}

	if st.LastRun.IsZero() {
		parts = append(parts, "waiting for first refresh")
	} else {
		parts = append(parts, "last refresh "+st.LastRun.Format("15:04:05"))
	}
	parts = append(parts, fmt.Sprintf("cycles %d, failures %d, skipped %d", st.Cycles, st.Failures, st.Skipped))

	line := okStyle.Render(strings.Join(parts, " | "))
	if st.LastError != "" {
		line += "\n" + errStyle.Render(st.LastError)
	}
	if m.notice != "" {
		line += "\n" + helpStyle.Render(m.notice)
	}
	return line
}

// formatCell renders a record value to text; ok is false for missing values.
func formatCell(v interface{}, c column) (string, bool) {
	switch val := v.(type) {
	case nil:
		return feed.MissingValue, false
	case string:
		if val == feed.MissingValue {
			return val, false
		}
		return strings.TrimSpace(val), true
	case float64:
		if c.heading {
			val = coordinates.NormalizeAzimuth(math.Round(val))
		}
		if c.format != "" {
			return fmt.Sprintf(c.format, val), true
		}
		return fmt.Sprint(val), true
	default:
		return fmt.Sprint(val), true
	}
}

func renderCell(v interface{}, c column) string {
	text, ok := formatCell(v, c)
	cell := pad(text, c.width)
	if !ok {
		return missingStyle.Render(cell)
	}
	return cell
}

// pad truncates or right-pads s to width cells.
func pad(s string, width int) string {
	if lipgloss.Width(s) > width {
		r := []rune(s)
		if len(r) > width {
			s = string(r[:width])
		}
	}
	return s + strings.Repeat(" ", max(width-lipgloss.Width(s), 0))
}
