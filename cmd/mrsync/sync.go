package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"mrsync/pkg/errors"
	"mrsync/pkg/fetcher"
	"mrsync/pkg/ui"
	"mrsync/pkg/ui/tui"
)

var (
	syncReset         bool
	syncUntilComplete bool
	syncMaxRuns       int
	syncTUI           bool
	syncNotify        bool
	syncMaxItems      int
	syncPageSize      int
	syncSpanDays      int
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Fetch the next budgeted batch of merge requests",
	Long: `Fetch merge requests of the configured group, resuming from the stored
cursor. A run stops after max_items_per_run records or when GitLab reports
no further pages; the fetched records are enriched and appended to the
snapshot. When the last page is reached the reports are written (see
sync.on_complete).

A failed page stops the run at the last good page; rerun to resume.
If writing the reports fails after the last page, the cycle still counts
as complete; run 'mrsync report' to write them again.`,
	Example: `  # One scheduled run
  mrsync sync --group acme/platform

  # Start a fresh 30 day window and fetch it all with a live view
  mrsync sync --reset --span-days 30 --until-complete --tui`,
	RunE: runSync,
}

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Start a new sync cycle",
	Long: `Set the window to the last span_days days ending now, replace the snapshot
with an empty one and rewind the cursor to the first page.`,
	RunE: runReset,
}

func init() {
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(resetCmd)

	syncCmd.Flags().BoolVar(&syncReset, "reset", false, "start a new cycle before fetching")
	syncCmd.Flags().BoolVar(&syncUntilComplete, "until-complete", false, "repeat runs until the cycle completes")
	syncCmd.Flags().IntVar(&syncMaxRuns, "max-runs", 0, "limit runs with --until-complete (0 means no limit)")
	syncCmd.Flags().BoolVar(&syncTUI, "tui", false, "show a live terminal view")
	syncCmd.Flags().BoolVar(&syncNotify, "notify", false, "send a desktop notification when the run ends")
	syncCmd.Flags().IntVar(&syncMaxItems, "max-items", 0, "records per run (default from config)")
	syncCmd.Flags().IntVar(&syncPageSize, "page-size", 0, "records per request, at most 100")
	syncCmd.Flags().IntVar(&syncSpanDays, "span-days", 0, "window length in days for --reset")

	resetCmd.Flags().IntVar(&syncSpanDays, "span-days", 0, "window length in days (default from config)")
}

func syncFlags() map[string]interface{} {
	flags := globalFlags()
	if syncMaxItems > 0 {
		flags["max-items"] = syncMaxItems
	}
	if syncPageSize > 0 {
		flags["page-size"] = syncPageSize
	}
	if syncSpanDays > 0 {
		flags["span-days"] = syncSpanDays
	}
	return flags
}

func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

func runReset(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext(cmd.Context())
	defer stop()

	a, err := newApp(ctx, syncFlags())
	if err != nil {
		return err
	}
	defer a.Close()

	f, err := a.newFetcher(nil)
	if err != nil {
		return err
	}
	state, err := f.Reset(ctx, a.cfg.Sync.SpanDays, time.Now())
	if err != nil {
		return err
	}

	if !quiet {
		ui.PrintSuccess("New sync cycle started")
		ui.PrintInfo("Window", fmt.Sprintf("%s .. %s", state.Window.Start.Format(time.RFC3339), state.Window.End.Format(time.RFC3339)))
		ui.PrintInfo("Snapshot", state.SnapshotHandle)
	}
	return nil
}

func runSync(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext(cmd.Context())
	defer stop()

	a, err := newApp(ctx, syncFlags())
	if err != nil {
		return err
	}
	defer a.Close()

	src, err := a.source()
	if err != nil {
		return err
	}

	if syncReset {
		f, err := a.newFetcher(src)
		if err != nil {
			return err
		}
		if _, err := f.Reset(ctx, a.cfg.Sync.SpanDays, time.Now()); err != nil {
			return err
		}
	}

	run := func(ctx context.Context, progress fetcher.ProgressFunc) error {
		f, err := a.newFetcher(src, fetcher.WithProgress(progress))
		if err != nil {
			return err
		}
		if syncUntilComplete {
			_, err = f.RunUntilComplete(ctx, syncMaxRuns)
			return err
		}
		_, err = f.Run(ctx)
		return err
	}

	if syncTUI && isTerminal() {
		err = tui.New(a.cfg.GitLab.Group, a.cfg.Sync.MaxItemsPerRun).Run(ctx, run)
	} else {
		if !quiet && isTerminal() {
			ui.PrintBanner()
		}
		var progress fetcher.ProgressFunc
		if !quiet {
			progress = ui.NewProgressPrinter(nil).Handle
		}
		err = run(ctx, progress)
	}

	if syncNotify {
		notifier := ui.NewNotifier()
		if err != nil {
			notifier.SendError("mrsync", err.Error())
		} else {
			notifier.SendSuccess("mrsync", "sync run finished")
		}
	}

	if errors.IsKind(err, errors.KindLocked) {
		ui.PrintWarning("Another sync run is in progress")
	}
	return err
}
