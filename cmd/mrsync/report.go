package main

import (
	"github.com/spf13/cobra"

	"mrsync/pkg/ui"
)

var reportOutput string

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Write the WIP, changelog and project reports from the snapshot",
	Long: `Project the current snapshot into the three report tables and overwrite
them in the configured sink (CSV files or PostgreSQL tables). Reports are
written automatically when a cycle completes; this command rewrites them
on demand, for example from a partial snapshot.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signalContext(cmd.Context())
		defer stop()

		flags := globalFlags()
		if reportOutput != "" {
			flags["output"] = reportOutput
		}

		a, err := newApp(ctx, flags)
		if err != nil {
			return err
		}
		defer a.Close()

		w, err := a.reportWriter(ctx)
		if err != nil {
			return err
		}
		if err := w.WriteAll(ctx); err != nil {
			return err
		}

		if !quiet {
			ui.PrintSuccess("Reports written")
			for _, p := range a.reportPaths() {
				ui.PrintInfo("File", p)
			}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(reportCmd)
	reportCmd.Flags().StringVarP(&reportOutput, "output", "o", "", "directory for CSV reports")
}
