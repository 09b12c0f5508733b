package main

import (
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/cobra"

	"mrsync/pkg/logger"
)

var (
	// Version information, set with -ldflags
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"

	// Global flags
	configFile string
	logLevel   string
	groupPath  string
	gitlabURL  string
	storageDir string
	quiet      bool
)

var rootCmd = &cobra.Command{
	Use:   "mrsync",
	Short: "Incremental GitLab merge request sync with squad reports",
	Long: `mrsync pulls the merge requests of a GitLab group created inside a sliding
time window, a budgeted number of records per run, and keeps them in a JSON
snapshot. Runs resume from the last stored cursor, so the job can be
scheduled every few minutes until the cycle completes.

Records are tagged with the owning squad and normalized author names, and
the finished snapshot is projected into WIP, changelog and per-project
reports.`,
	Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, gitCommit, buildDate),
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logger.Version = version
	},
}

// Execute runs the root command and exits non-zero on failure
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(exitCode(err))
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file (default is .mrsync.yaml or ~/.config/mrsync/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVarP(&groupPath, "group", "g", "", "GitLab group full path")
	rootCmd.PersistentFlags().StringVar(&gitlabURL, "gitlab-url", "", "GitLab base URL")
	rootCmd.PersistentFlags().StringVar(&storageDir, "storage-dir", "", "directory for checkpoint and snapshot files")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "suppress status output except errors")

	rootCmd.SetVersionTemplate(`mrsync {{.Version}}
Go Version: ` + runtime.Version() + `
OS/Arch: ` + runtime.GOOS + `/` + runtime.GOARCH + `
`)

	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "mrsync %s\n", rootCmd.Version)
	},
}

// globalFlags collects the persistent flags in the shape config.Load expects
func globalFlags() map[string]interface{} {
	flags := make(map[string]interface{})
	if logLevel != "" {
		flags["log-level"] = logLevel
	}
	if groupPath != "" {
		flags["group"] = groupPath
	}
	if gitlabURL != "" {
		flags["gitlab-url"] = gitlabURL
	}
	if storageDir != "" {
		flags["storage-dir"] = storageDir
	}
	return flags
}
