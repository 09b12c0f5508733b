package tui

import (
	"context"
	"errors"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mrsync/pkg/fetcher"
)

func newTestModel() (*Model, *bool) {
	cancelled := false
	m := NewModel("acme", 150, func() { cancelled = true })
	fixed := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	m.started = fixed
	m.now = func() time.Time { return fixed.Add(90 * time.Second) }
	return m, &cancelled
}

func send(m *Model, msgs ...tea.Msg) tea.Cmd {
	var cmd tea.Cmd
	for _, msg := range msgs {
		_, cmd = m.Update(msg)
	}
	return cmd
}

func TestModelTracksRun(t *testing.T) {
	m, _ := newTestModel()

	send(m,
		EventMsg{fetcher.Event{Type: fetcher.EventRunStarted, Budget: 150, HasMore: true}},
		EventMsg{fetcher.Event{Type: fetcher.EventPage, Page: 1, Records: 100, Fetched: 100, Budget: 150, TotalCount: 230, HasMore: true}},
		EventMsg{fetcher.Event{Type: fetcher.EventPage, Page: 2, Records: 50, Fetched: 150, Budget: 150, TotalCount: 230, HasMore: true}},
		EventMsg{fetcher.Event{Type: fetcher.EventRunFinished, Result: &fetcher.Result{Fetched: 150, SnapshotSize: 150}}},
	)

	assert.Equal(t, 1, m.runs)
	assert.Equal(t, 2, m.pages)
	assert.Equal(t, 150, m.fetched)
	assert.Equal(t, 230, m.totalCount)
	assert.Equal(t, 150, m.snapshot)
	assert.True(t, m.hasMore)
	assert.InDelta(t, 1.0, m.BudgetPercent(), 1e-9)
	require.Len(t, m.logs, 4)
	assert.Equal(t, LevelWarn, m.logs[3].Level)

	send(m, EventMsg{fetcher.Event{Type: fetcher.EventRunStarted, Budget: 150, HasMore: true}})
	assert.Equal(t, 2, m.runs)
	assert.Zero(t, m.BudgetPercent(), "budget bar restarts with each run")
}

func TestModelDoneQuits(t *testing.T) {
	m, _ := newTestModel()
	send(m, EventMsg{fetcher.Event{Type: fetcher.EventRunFinished, Result: &fetcher.Result{Complete: true}}})

	cmd := send(m, DoneMsg{})
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
	assert.True(t, m.done)
	assert.NoError(t, m.Err())
	assert.Contains(t, m.View(), "cycle complete")
}

func TestModelDoneWithError(t *testing.T) {
	m, _ := newTestModel()
	send(m, DoneMsg{Err: errors.New("source/auth error: 401")})
	assert.Error(t, m.Err())
	assert.Contains(t, m.View(), "failed")
}

func TestModelQuitCancelsRun(t *testing.T) {
	m, cancelled := newTestModel()

	cmd := send(m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	assert.Nil(t, cmd, "the view waits for the run to stop")
	assert.True(t, *cancelled)
	assert.True(t, m.quitting)
	assert.Contains(t, m.View(), "stopping")
}

func TestModelLogCap(t *testing.T) {
	m, _ := newTestModel()
	for i := 0; i < maxLogMessages+10; i++ {
		send(m, LogMsg{Level: LevelInfo, Message: "line"})
	}
	assert.Len(t, m.logs, maxLogMessages)
}

func TestModelView(t *testing.T) {
	m, _ := newTestModel()
	send(m, EventMsg{fetcher.Event{Type: fetcher.EventPage, Page: 1, Records: 100, Fetched: 100, Budget: 150, TotalCount: 230, HasMore: true}})

	view := m.View()
	assert.Contains(t, view, "acme")
	assert.Contains(t, view, "01m30s")
	assert.Contains(t, view, "100 of 230 in window")
	assert.Contains(t, view, "100/150")
	assert.Contains(t, view, "Page 1: 100 merge requests")
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "00m05s", formatDuration(5*time.Second))
	assert.Equal(t, "1h02m03s", formatDuration(time.Hour+2*time.Minute+3*time.Second))
}

func TestTUIRunReturnsSyncError(t *testing.T) {
	ui := New("acme", 10, tea.WithInput(nil), tea.WithOutput(&discard{}), tea.WithoutRenderer())
	want := errors.New("boom")
	err := ui.Run(context.Background(), func(ctx context.Context, progress fetcher.ProgressFunc) error {
		progress(fetcher.Event{Type: fetcher.EventRunStarted, Budget: 10, HasMore: true})
		return want
	})
	assert.ErrorIs(t, err, want)
}

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }
