package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var updateCmd = &cobra.Command{
	Use:   "update",
	Short: "Index notes that changed since they were last indexed",
	Long: `Update compares every note's modification time against the catalog and
re-indexes only the stale ones. Within a changed note, chunks whose content
is untouched keep their stored vectors and are not re-embedded.`,
	RunE: runUpdate,
}

func init() {
	updateCmd.Flags().Bool("dry-run", false, "report what would be indexed without writing anything")
	rootCmd.AddCommand(updateCmd)
}

func runUpdate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	app, err := buildApp(cfg)
	if err != nil {
		return err
	}
	defer app.Close()

	if err := app.manager.VerifyIndex(cmd.Context()); err != nil {
		return err
	}

	dryRun, _ := cmd.Flags().GetBool("dry-run")
	summary, err := app.manager.IncrementalUpdate(cmd.Context(), dryRun)
	printSummary(cmd.OutOrStdout(), summary)
	if err != nil {
		return err
	}
	if len(summary.Failed) > 0 {
		return fmt.Errorf("%d document(s) failed indexing", len(summary.Failed))
	}
	return nil
}
