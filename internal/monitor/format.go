package monitor

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/fyrsmithlabs/pipegate/internal/trace"
)

// FormatCost formats a USD amount as "$X.XXXX".
func FormatCost(usd float64) string {
	return fmt.Sprintf("$%.4f", usd)
}

// FormatTokens formats a token count as "N", "X.XK" or "X.XM".
func FormatTokens(n float64) string {
	switch {
	case n >= 1_000_000:
		return fmt.Sprintf("%.1fM", n/1_000_000)
	case n >= 1_000:
		return fmt.Sprintf("%.1fK", n/1_000)
	default:
		return fmt.Sprintf("%.0f", n)
	}
}

// FormatDuration formats seconds as "Xh Ym", "Xm Ys" or "Xs".
func FormatDuration(seconds float64) string {
	s := int64(seconds)
	hours := s / 3600
	minutes := (s % 3600) / 60
	secs := s % 60

	switch {
	case hours > 0:
		return fmt.Sprintf("%dh %dm", hours, minutes)
	case minutes > 0:
		return fmt.Sprintf("%dm %ds", minutes, secs)
	}
	return fmt.Sprintf("%ds", secs)
}

// FormatEvent renders one event as a dashboard line:
// "HH:MM:SS event phase [status] [ref]".
func FormatEvent(e trace.Event) string {
	clock := e.TS
	// 2026-03-01T12:00:00.000Z
	if len(clock) >= 19 && clock[10] == 'T' {
		clock = clock[11:19]
	}
	parts := []string{dimStyle.Render(clock), valueStyle.Render(string(e.Event)), labelStyle.Render(e.Phase)}
	if e.Status != "" {
		parts = append(parts, statusStyle(e.Status).Render(e.Status))
	}
	if ref := e.ArtifactRef; ref != "" {
		parts = append(parts, dimStyle.Render(ref))
	} else if e.GateID != "" {
		parts = append(parts, dimStyle.Render(e.GateID))
	}
	return strings.Join(parts, " ")
}

func statusStyle(status string) lipgloss.Style {
	switch status {
	case "fail", trace.StatusError:
		return errorStyle
	case "warn", trace.StatusRetry:
		return warningStyle
	}
	return healthyStyle
}
