package tui

import (
	"fmt"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"mrsync/pkg/fetcher"
)

// EventMsg carries a fetcher progress event
type EventMsg struct {
	Event fetcher.Event
}

// DoneMsg is sent when the sync function returns
type DoneMsg struct {
	Err error
}

// LogMsg adds a line to the page log
type LogMsg struct {
	Level   string
	Message string
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKeyPress(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case spinner.TickMsg:
		if m.done {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case EventMsg:
		m.handleEvent(msg.Event)
		return m, nil

	case LogMsg:
		m.addLog(msg.Level, "%s", msg.Message)
		return m, nil

	case DoneMsg:
		m.done = true
		m.err = msg.Err
		return m, tea.Quit
	}

	return m, nil
}

func (m *Model) handleKeyPress(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "Q", "ctrl+c":
		if m.done {
			return m, tea.Quit
		}
		// Wait for the run to store what it fetched before quitting.
		if !m.quitting {
			m.quitting = true
			m.addLog(LevelWarn, "Stopping after the current page...")
			if m.cancel != nil {
				m.cancel()
			}
		}
		return m, nil
	}
	return m, nil
}

func sprintf(format string, args ...interface{}) string {
	if len(args) == 0 {
		return format
	}
	return fmt.Sprintf(format, args...)
}
