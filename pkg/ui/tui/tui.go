package tui

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"

	"mrsync/pkg/fetcher"
)

// SyncFunc runs one or more fetch runs, reporting through progress
type SyncFunc func(ctx context.Context, progress fetcher.ProgressFunc) error

// TUI drives a Model while a SyncFunc runs in the background
type TUI struct {
	group  string
	budget int
	opts   []tea.ProgramOption
}

func New(group string, budget int, opts ...tea.ProgramOption) *TUI {
	return &TUI{group: group, budget: budget, opts: opts}
}

// Run starts the view and the sync; it returns once both have stopped.
// Quitting the view cancels the sync context.
func (t *TUI) Run(ctx context.Context, sync SyncFunc) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	model := NewModel(t.group, t.budget, cancel)
	program := tea.NewProgram(model, t.opts...)

	var syncErr error
	done := make(chan struct{})
	go func() {
		defer close(done)
		syncErr = sync(ctx, func(ev fetcher.Event) {
			program.Send(EventMsg{Event: ev})
		})
		program.Send(DoneMsg{Err: syncErr})
	}()

	_, err := program.Run()
	cancel()
	<-done
	if syncErr != nil {
		return syncErr
	}
	return err
}
