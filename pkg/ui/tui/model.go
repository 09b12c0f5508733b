// Package tui shows a live view of a sync run.
package tui

import (
	"context"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"mrsync/pkg/fetcher"
)

const (
	LevelInfo    = "INFO"
	LevelSuccess = "SUCCESS"
	LevelWarn    = "WARN"
	LevelError   = "ERROR"

	maxLogMessages = 50
)

// LogMessage is one line of the page log
type LogMessage struct {
	Time    time.Time
	Level   string
	Message string
}

// Model is the bubbletea model of a sync session. One session can span
// several runs when syncing until the cycle completes.
type Model struct {
	spinner  spinner.Model
	progress progress.Model

	group  string
	cancel context.CancelFunc

	runs       int
	pages      int
	fetched    int
	runFetched int
	budget     int
	totalCount int
	snapshot   int
	hasMore    bool

	started  time.Time
	done     bool
	quitting bool
	err      error

	logs   []LogMessage
	width  int
	height int
	now    func() time.Time
}

// NewModel creates the model; cancel stops the run when the user quits
func NewModel(group string, budget int, cancel context.CancelFunc) *Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = labelStyle

	return &Model{
		spinner:  s,
		progress: progress.New(progress.WithDefaultGradient(), progress.WithWidth(40)),
		group:    group,
		cancel:   cancel,
		budget:   budget,
		hasMore:  true,
		started:  time.Now(),
		now:      time.Now,
	}
}

func (m *Model) Init() tea.Cmd {
	return m.spinner.Tick
}

func (m *Model) handleEvent(ev fetcher.Event) {
	switch ev.Type {
	case fetcher.EventRunStarted:
		m.runs++
		m.runFetched = 0
		if ev.Budget > 0 {
			m.budget = ev.Budget
		}
		m.hasMore = ev.HasMore
		if !ev.HasMore {
			m.addLog(LevelInfo, "Cycle already complete, nothing to fetch")
			return
		}
		m.addLog(LevelInfo, "Run %d started, budget %d", m.runs, m.budget)

	case fetcher.EventPage:
		m.pages++
		m.fetched += ev.Records
		m.runFetched = ev.Fetched
		m.hasMore = ev.HasMore
		if ev.TotalCount > 0 {
			m.totalCount = ev.TotalCount
		}
		m.addLog(LevelInfo, "Page %d: %d merge requests", m.pages, ev.Records)

	case fetcher.EventStopped:
		m.addLog(LevelError, "Page %d failed: %v", ev.Page, ev.Err)

	case fetcher.EventRunFinished:
		if ev.Result != nil {
			m.snapshot = ev.Result.SnapshotSize
			m.hasMore = !ev.Result.Complete
		}
		switch {
		case ev.Err != nil:
			m.addLog(LevelError, "Run %d ended with error: %v", m.runs, ev.Err)
		case m.hasMore:
			m.addLog(LevelWarn, "Run %d reached its budget, more pages pending", m.runs)
		default:
			m.addLog(LevelSuccess, "All merge requests retrieved")
		}
	}
}

func (m *Model) addLog(level, format string, args ...interface{}) {
	m.logs = append(m.logs, LogMessage{Time: m.now(), Level: level, Message: sprintf(format, args...)})
	if len(m.logs) > maxLogMessages {
		m.logs = m.logs[len(m.logs)-maxLogMessages:]
	}
}

// BudgetPercent is the share of the current run's budget already fetched
func (m *Model) BudgetPercent() float64 {
	if m.budget <= 0 {
		return 0
	}
	p := float64(m.runFetched) / float64(m.budget)
	if p > 1 {
		p = 1
	}
	return p
}

// Err returns the error that ended the session, if any
func (m *Model) Err() error {
	return m.err
}
