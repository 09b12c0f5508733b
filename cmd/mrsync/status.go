package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"mrsync/pkg/checkpoint"
	"mrsync/pkg/storage"
	"mrsync/pkg/ui"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the sync window, cursor and snapshot",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		a, err := newApp(ctx, globalFlags())
		if err != nil {
			return err
		}
		defer a.Close()

		state, err := checkpoint.LoadState(ctx, a.props)
		if err != nil {
			return err
		}

		ui.PrintInfo("Group", a.cfg.GitLab.Group)
		ui.PrintInfo("Backend", a.cfg.Storage.Backend)
		ui.PrintInfo("Window", fmt.Sprintf("%s .. %s (%d days)",
			state.Window.Start.Format(time.RFC3339),
			state.Window.End.Format(time.RFC3339),
			int(state.Window.Duration().Hours()/24)))

		cursor := state.Cursor.Token
		if cursor == "" {
			cursor = "(first page)"
		}
		ui.PrintInfo("Cursor", cursor)
		ui.PrintInfo("More pages", strconv.FormatBool(state.Cursor.HasMore))
		ui.PrintInfo("Snapshot", state.SnapshotHandle)

		records, err := storage.LoadSnapshot(ctx, a.snapshots, state.SnapshotHandle)
		if err != nil {
			ui.PrintWarning("Snapshot unreadable", err)
			return nil
		}
		ui.PrintInfo("Records", strconv.Itoa(len(records)))

		if state.Cursor.HasMore {
			ui.PrintHighlight("Cycle in progress; run 'mrsync sync' to continue")
		} else {
			ui.PrintSuccess("Cycle complete")
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
