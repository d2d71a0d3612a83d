package trace

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/fyrsmithlabs/pipegate/internal/errcode"
)

// Format is a summarize-run output format.
type Format string

const (
	FormatJSON     Format = "json"
	FormatText     Format = "text"
	FormatMarkdown Format = "markdown"
)

// ParseFormat validates s, defaulting an empty value to JSON.
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case "":
		return FormatJSON, nil
	case FormatJSON, FormatText, FormatMarkdown:
		return Format(s), nil
	}
	return "", errcode.BadInputf("--format must be one of: json, text, markdown")
}

var (
	headingStyle = lipgloss.NewStyle().Bold(true)
	failStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	okStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
)

// RenderText renders a plain-text summary. Styled adds terminal colors.
func RenderText(s RunSummary, styled bool) string {
	style := func(st lipgloss.Style, v string) string {
		if !styled {
			return v
		}
		return st.Render(v)
	}
	validStyle := okStyle
	if !s.Valid {
		validStyle = failStyle
	}

	lines := []string{
		style(headingStyle, "Run summary: "+s.RunID),
		"valid: " + style(validStyle, strconv.FormatBool(s.Valid)),
		fmt.Sprintf("events: %d", s.TotalEvents),
		fmt.Sprintf("gates: pass=%d warn=%d fail=%s", s.GateResults.Pass, s.GateResults.Warn,
			style(failStyleIf(s.GateResults.Fail > 0), strconv.Itoa(s.GateResults.Fail))),
		"duration_s: " + formatFloat(s.TotalDurationS),
		"cost_usd: " + formatFloat(s.TotalCostUSD),
		fmt.Sprintf("tokens: in=%s out=%s", formatFloat(s.TotalTokensIn), formatFloat(s.TotalTokensOut)),
	}

	if len(s.Issues) == 0 {
		lines = append(lines, "issues: none")
	} else {
		lines = append(lines, fmt.Sprintf("issues (%d):", len(s.Issues)))
		for _, issue := range s.Issues {
			lines = append(lines, "  - "+issue)
		}
	}

	phases := s.Phases()
	if len(phases) == 0 {
		lines = append(lines, "phase_durations_ms: none")
	} else {
		lines = append(lines, "phase_durations_ms:")
		for _, p := range phases {
			lines = append(lines, fmt.Sprintf("  - %s: %d ms", p, s.PhaseDurationsMS[p]))
		}
	}
	return strings.Join(append(lines, ""), "\n")
}

func failStyleIf(failed bool) lipgloss.Style {
	if failed {
		return failStyle
	}
	return lipgloss.NewStyle()
}

// RenderMarkdown renders the summary as a Markdown report.
func RenderMarkdown(s RunSummary) string {
	lines := []string{
		"# Run Summary: " + s.RunID,
		"",
		fmt.Sprintf("- Valid: `%t`", s.Valid),
		fmt.Sprintf("- Total events: `%d`", s.TotalEvents),
		fmt.Sprintf("- Gates: pass=`%d`, warn=`%d`, fail=`%d`", s.GateResults.Pass, s.GateResults.Warn, s.GateResults.Fail),
		fmt.Sprintf("- Duration (s): `%s`", formatFloat(s.TotalDurationS)),
		fmt.Sprintf("- Cost (USD): `%s`", formatFloat(s.TotalCostUSD)),
		fmt.Sprintf("- Tokens: in=`%s`, out=`%s`", formatFloat(s.TotalTokensIn), formatFloat(s.TotalTokensOut)),
		"",
		"## Phase Durations",
		"",
		"| Phase | Duration (ms) |",
		"| --- | ---: |",
	}
	phases := s.Phases()
	if len(phases) == 0 {
		lines = append(lines, "| (none) | 0 |")
	}
	for _, p := range phases {
		lines = append(lines, fmt.Sprintf("| %s | %d |", p, s.PhaseDurationsMS[p]))
	}

	lines = append(lines, "", "## Issues", "")
	if len(s.Issues) == 0 {
		lines = append(lines, "- None")
	}
	for _, issue := range s.Issues {
		lines = append(lines, "- "+issue)
	}
	return strings.Join(append(lines, ""), "\n")
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
