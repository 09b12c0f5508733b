package ui

import (
	"fmt"
	"io"
	"strings"

	"mrsync/pkg/fetcher"
)

const (
	ProgressBar   = "█"
	ProgressEmpty = "░"
	barWidth      = 20
)

// ProgressPrinter renders fetch loop events as plain status lines
type ProgressPrinter struct {
	out io.Writer
}

func NewProgressPrinter(out io.Writer) *ProgressPrinter {
	if out == nil {
		out = Output
	}
	return &ProgressPrinter{out: out}
}

// Handle is a fetcher.ProgressFunc
func (p *ProgressPrinter) Handle(ev fetcher.Event) {
	switch ev.Type {
	case fetcher.EventRunStarted:
		if !ev.HasMore {
			fmt.Fprintf(p.out, "%s cycle already complete, nothing to fetch\n", Dim("[SYNC]"))
			return
		}
		fmt.Fprintf(p.out, "%s fetching up to %d merge requests\n", Magenta("[SYNC]"), ev.Budget)

	case fetcher.EventPage:
		fmt.Fprintf(p.out, "%s page %d: %d records %s\n",
			Green("[PAGE]"), ev.Page, ev.Records, BudgetBar(ev.Fetched, ev.Budget))

	case fetcher.EventStopped:
		fmt.Fprintf(p.out, "%s page %d failed: %v\n", Red("[STOP]"), ev.Page, ev.Err)

	case fetcher.EventRunFinished:
		res := ev.Result
		if res == nil {
			return
		}
		status := Yellow("more pages pending")
		if res.Complete {
			status = Green("cycle complete")
		}
		fmt.Fprintf(p.out, "%s %d fetched, snapshot holds %d, %s\n",
			Cyan("[DONE]"), res.Fetched, res.SnapshotSize, status)
	}
}

// BudgetBar draws fetched against the per-run budget
func BudgetBar(fetched, budget int) string {
	filled := 0
	if budget > 0 {
		filled = fetched * barWidth / budget
	}
	if filled > barWidth {
		filled = barWidth
	}
	bar := strings.Repeat(ProgressBar, filled) + strings.Repeat(ProgressEmpty, barWidth-filled)
	return fmt.Sprintf("[%s] %d/%d", bar, fetched, budget)
}
