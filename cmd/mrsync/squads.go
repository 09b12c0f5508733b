package main

import (
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/spf13/cobra"

	"mrsync/pkg/enrich"
	"mrsync/pkg/gitlab"
	"mrsync/pkg/ui"
)

var squadsOutput string

var squadsCmd = &cobra.Command{
	Use:   "squads",
	Short: "Manage the project to squad mapping",
}

var squadsTemplateCmd = &cobra.Command{
	Use:   "template",
	Short: "Print a project_id,squad CSV for every project of the group",
	Long: `List the projects of the group (subgroups included) through the GitLab
REST API and print a CSV skeleton for the squads file. Squads already known
from the current mapping are filled in.`,
	Example: `  mrsync squads template --group acme > squads.csv`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signalContext(cmd.Context())
		defer stop()

		a, err := newApp(ctx, globalFlags())
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.resolveToken(); err != nil {
			return err
		}

		lister, err := gitlab.NewProjectLister(a.cfg.GitLab, &http.Client{Timeout: a.cfg.GitLab.Timeout})
		if err != nil {
			return err
		}
		projects, err := lister.ListGroupProjects(ctx, a.cfg.GitLab.Group)
		if err != nil {
			return err
		}

		known, err := enrich.LoadSquads(a.cfg.Squads)
		if err != nil {
			a.log.WithError(err).Debug("No existing squad mapping")
			known = nil
		}

		var out io.Writer = cmd.OutOrStdout()
		if squadsOutput != "" {
			f, err := os.Create(squadsOutput)
			if err != nil {
				return fmt.Errorf("failed to create %s: %w", squadsOutput, err)
			}
			defer f.Close()
			out = f
		}

		if err := enrich.WriteSquadTemplate(out, projects, known); err != nil {
			return err
		}
		if squadsOutput != "" && !quiet {
			ui.PrintSuccess(fmt.Sprintf("Wrote %d projects to %s", len(projects), squadsOutput))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(squadsCmd)
	squadsCmd.AddCommand(squadsTemplateCmd)
	squadsTemplateCmd.Flags().StringVarP(&squadsOutput, "output", "o", "", "write the CSV to a file instead of stdout")
}
