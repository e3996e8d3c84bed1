package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var reindexCmd = &cobra.Command{
	Use:   "reindex",
	Short: "Rebuild the vector index and catalog from scratch",
	Long: `Reindex drops the vector index and the document catalog, then chunks and
embeds every note in the vault. Use it after switching embedding providers or
when the index is corrupted; for day-to-day work, update is much cheaper.`,
	RunE: runReindex,
}

func init() {
	reindexCmd.Flags().Bool("dry-run", false, "report what would be indexed without writing anything")
	rootCmd.AddCommand(reindexCmd)
}

func runReindex(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	app, err := buildApp(cfg)
	if err != nil {
		return err
	}
	defer app.Close()

	dryRun, _ := cmd.Flags().GetBool("dry-run")
	summary, err := app.manager.FullReindex(cmd.Context(), dryRun)
	printSummary(cmd.OutOrStdout(), summary)
	if err != nil {
		return err
	}
	if len(summary.Failed) > 0 {
		return fmt.Errorf("%d document(s) failed indexing", len(summary.Failed))
	}
	return nil
}
