// Package monitor renders a live terminal dashboard of one run's trace.
package monitor

import (
	"fmt"
	"strings"
	"time"

	"github.com/NimbleMarkets/ntcharts/sparkline"
	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/fyrsmithlabs/pipegate/internal/pipeline"
	"github.com/fyrsmithlabs/pipegate/internal/trace"
)

const (
	sparklineWidth  = 30
	sparklineHeight = 3
	historySize     = 30
	recentEvents    = 8
	progressWidth   = 40
)

// Model is the bubbletea model of the run dashboard. Trace events arrive as
// EventMsg.
type Model struct {
	runID      string
	events     []trace.Event
	summary    trace.Summary
	issues     []string
	current    string
	completed  map[string]bool
	durations  []float64
	finished   bool
	lastUpdate time.Time
	err        error
	quitting   bool

	phaseProgress progress.Model
	now           func() time.Time
}

// EventMsg delivers one trace event to the dashboard.
type EventMsg trace.Event

// ErrMsg reports that following the trace stopped.
type ErrMsg struct{ Err error }

var (
	headerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("0")).
			Background(lipgloss.Color("51")).
			Bold(true).
			Padding(0, 1)

	sectionStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("51")).
			Bold(true).
			MarginTop(1)

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("45"))

	valueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("231")).
			Bold(true)

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245"))

	healthyStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("46")).
			Bold(true)

	warningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("226")).
			Bold(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true)

	containerStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("238")).
			Padding(1, 2)

	footerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245")).
			MarginTop(1)

	footerKeyStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("51")).
			Bold(true)

	sparklineStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("51"))
)

// NewModel creates the dashboard for runID.
func NewModel(runID string) Model {
	return Model{
		runID:     runID,
		completed: make(map[string]bool),
		durations: make([]float64, 0, historySize),
		phaseProgress: progress.New(
			progress.WithGradient("#00ffff", "#00ff00"),
			progress.WithWidth(progressWidth),
		),
		now: time.Now,
	}
}

// Init implements tea.Model. Events are pushed in from outside, so there is
// nothing to start.
func (m Model) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			m.quitting = true
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		width := msg.Width - 20
		if width > progressWidth {
			width = progressWidth
		}
		if width > 10 {
			m.phaseProgress.Width = width
		}

	case EventMsg:
		m = m.apply(trace.Event(msg))

	case ErrMsg:
		m.err = msg.Err
	}
	return m, nil
}

func (m Model) apply(e trace.Event) Model {
	m.events = append(m.events, e)
	m.summary, m.issues = trace.Summarize(m.events)
	m.lastUpdate = m.now()

	switch e.Event {
	case trace.PhaseStart:
		m.current = e.Phase
	case trace.PhaseEnd:
		if e.Status != trace.StatusError {
			m.completed[e.Phase] = true
		}
		if ms, ok := m.summary.PhaseDurationsMS[e.Phase]; ok {
			m.durations = appendToHistory(m.durations, float64(ms))
		}
	case trace.RunEnd:
		m.finished = true
	}
	return m
}

// appendToHistory appends a value, keeping the last historySize values.
func appendToHistory(history []float64, value float64) []float64 {
	history = append(history, value)
	if len(history) > historySize {
		history = history[1:]
	}
	return history
}

func createSparkline(data []float64) string {
	if len(data) == 0 {
		return dimStyle.Render(fmt.Sprintf("%*s", sparklineWidth, "no data"))
	}
	spark := sparkline.New(sparklineWidth, sparklineHeight)
	for _, v := range data {
		spark.Push(v)
	}
	spark.Draw()
	return sparklineStyle.Render(spark.View())
}

// statusBadge summarizes the gates seen so far.
func statusBadge(g trace.GateCounts) string {
	switch {
	case g.Fail > 0:
		return errorStyle.Render("✗ FAILING")
	case g.Warn > 0:
		return warningStyle.Render("⚠ WARN")
	}
	return healthyStyle.Render("✓ PASSING")
}

// View implements tea.Model.
func (m Model) View() string {
	if m.quitting {
		return ""
	}
	if m.err != nil {
		return m.renderError()
	}
	return m.renderDashboard()
}

func (m Model) renderError() string {
	var b strings.Builder
	b.WriteString(headerStyle.Render(" pipegate " + m.runID + " "))
	b.WriteString("\n\n")
	b.WriteString(errorStyle.Render("⚠ Stopped following the trace") + "\n")
	b.WriteString(dimStyle.Render("Error: ") + errorStyle.Render(m.err.Error()) + "\n")
	b.WriteString(footerStyle.Render("[q] quit") + "\n")
	return containerStyle.Render(b.String())
}

func (m Model) renderDashboard() string {
	var b strings.Builder

	updated := "waiting for events"
	if !m.lastUpdate.IsZero() {
		updated = m.lastUpdate.Format("15:04:05")
	}
	state := "running"
	if m.finished {
		state = "finished"
	}
	b.WriteString(headerStyle.Render(" pipegate " + m.runID + " "))
	b.WriteString("\n")
	fmt.Fprintf(&b, "%s   %s   %s\n",
		statusBadge(m.summary.GateResults),
		valueStyle.Render(state),
		dimStyle.Render(updated))

	phases := len(pipeline.All())
	done := 0
	for _, p := range pipeline.All() {
		if m.completed[string(p)] {
			done++
		}
	}
	b.WriteString("\n" + sectionStyle.Render("┃ Phases") + "\n")
	current := m.current
	if current == "" {
		current = "-"
	}
	b.WriteString(labelStyle.Render("  Current: ") + valueStyle.Render(current) + "\n")
	b.WriteString(labelStyle.Render("  Done: ") +
		m.phaseProgress.ViewAs(float64(done)/float64(phases)) +
		" " + dimStyle.Render(fmt.Sprintf("%d/%d", done, phases)) + "\n")
	b.WriteString(labelStyle.Render("  Durations: ") + createSparkline(m.durations) + "\n")

	g := m.summary.GateResults
	b.WriteString("\n" + sectionStyle.Render("┃ Gates") + "\n")
	b.WriteString(labelStyle.Render("  Results: ") +
		healthyStyle.Render(fmt.Sprintf("pass=%d", g.Pass)) + " " +
		warningStyle.Render(fmt.Sprintf("warn=%d", g.Warn)) + " " +
		errorStyle.Render(fmt.Sprintf("fail=%d", g.Fail)) + "\n")
	b.WriteString(labelStyle.Render("  Retries: ") + valueStyle.Render(fmt.Sprintf("%d", m.summary.RetryCount)) + "\n")

	b.WriteString("\n" + sectionStyle.Render("┃ Usage") + "\n")
	b.WriteString(labelStyle.Render("  Tokens: ") +
		valueStyle.Render(FormatTokens(m.summary.TotalTokensIn)+" in / "+FormatTokens(m.summary.TotalTokensOut)+" out") + "\n")
	b.WriteString(labelStyle.Render("  Cost: ") + valueStyle.Render(FormatCost(m.summary.TotalCostUSD)) + "\n")
	b.WriteString(labelStyle.Render("  Elapsed: ") + valueStyle.Render(FormatDuration(m.summary.TotalDurationS)) + "\n")

	b.WriteString("\n" + sectionStyle.Render("┃ Recent events") + "\n")
	start := len(m.events) - recentEvents
	if start < 0 {
		start = 0
	}
	for _, e := range m.events[start:] {
		b.WriteString("  " + FormatEvent(e) + "\n")
	}
	if len(m.issues) > 0 {
		b.WriteString(warningStyle.Render(fmt.Sprintf("  %d trace issue(s)", len(m.issues))) + "\n")
	}

	b.WriteString("\n" + footerKeyStyle.Render("[q]") + footerStyle.Render(" quit"))
	return containerStyle.Render(b.String())
}
