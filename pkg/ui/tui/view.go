package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
)

func (m *Model) View() string {
	var sections []string

	sections = append(sections, m.renderHeader())
	sections = append(sections, m.renderStats())
	sections = append(sections, m.renderLogs())

	help := "q: stop after current page"
	if m.done {
		help = "q: quit"
	}
	sections = append(sections, helpStyle.Render(help))

	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (m *Model) renderHeader() string {
	status := m.spinner.View() + " syncing"
	switch {
	case m.done && m.err != nil:
		status = errorStyle.Render("failed")
	case m.done && !m.hasMore:
		status = successStyle.Render("cycle complete")
	case m.done:
		status = warningStyle.Render("paused at budget")
	case m.quitting:
		status = warningStyle.Render("stopping")
	}
	return headerStyle.Render(fmt.Sprintf("mrsync · %s · %s", m.group, status))
}

func (m *Model) renderStats() string {
	row := func(label, value string) string {
		return fmt.Sprintf("%s %s", labelStyle.Render(label), valueStyle.Render(value))
	}

	total := "unknown"
	if m.totalCount > 0 {
		total = fmt.Sprintf("%d", m.totalCount)
	}

	lines := []string{
		titleStyle.Render(" RUN "),
		row("Elapsed:", formatDuration(m.now().Sub(m.started))),
		row("Runs:", fmt.Sprintf("%d", m.runs)),
		row("Pages:", fmt.Sprintf("%d", m.pages)),
		row("Fetched:", fmt.Sprintf("%d of %s in window", m.fetched, total)),
		row("Snapshot:", fmt.Sprintf("%d records", m.snapshot)),
		"",
		m.progress.ViewAs(m.BudgetPercent()) + " " + valueStyle.Render(fmt.Sprintf("%d/%d", m.runFetched, m.budget)),
	}
	return panelStyle.Render(lipgloss.JoinVertical(lipgloss.Left, lines...))
}

func (m *Model) renderLogs() string {
	visible := 10
	if m.height > 0 {
		if v := m.height - 16; v > 3 {
			visible = v
		} else {
			visible = 3
		}
	}

	logs := m.logs
	if len(logs) > visible {
		logs = logs[len(logs)-visible:]
	}

	lines := []string{titleStyle.Render(" LOG ")}
	for _, l := range logs {
		lines = append(lines, fmt.Sprintf("%s %s",
			logTimestampStyle.Render(l.Time.Format("15:04:05")),
			levelStyle(l.Level).Render(l.Message)))
	}
	if len(logs) == 0 {
		lines = append(lines, logMessageStyle.Render("waiting for the first page..."))
	}
	return panelStyle.Render(strings.Join(lines, "\n"))
}

func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	h := int(d.Hours())
	mnt := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	if h > 0 {
		return fmt.Sprintf("%dh%02dm%02ds", h, mnt, s)
	}
	return fmt.Sprintf("%02dm%02ds", mnt, s)
}
