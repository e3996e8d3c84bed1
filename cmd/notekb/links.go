package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ivo-toby/gpt-notes-to-tasks/internal/kb"
	"github.com/ivo-toby/gpt-notes-to-tasks/internal/linker"
)

var linksCmd = &cobra.Command{
	Use:   "links",
	Short: "Discover and write semantic links between notes",
	Long: `Links finds notes whose content is semantically close and records the
relationships as wiki-links. analyze only proposes; apply writes a Related
Notes section into each source note and a Backlinks section into each
target.`,
}

var linksAnalyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Propose link candidates without touching any note",
	RunE:  runLinksAnalyze,
}

var linksApplyCmd = &cobra.Command{
	Use:   "apply",
	Short: "Write accepted link candidates into the vault",
	Long: `Apply proposes candidates and writes the accepted ones into the notes.
Each candidate is confirmed interactively unless --yes is given.`,
	RunE: runLinksApply,
}

func init() {
	linksCmd.PersistentFlags().String("doc", "", "analyze a single note (vault-relative path)")
	linksCmd.PersistentFlags().Bool("stale-only", false, "restrict to notes changed since their last analysis")
	linksCmd.PersistentFlags().Bool("json", false, "emit the report as JSON")

	linksApplyCmd.Flags().BoolP("yes", "y", false, "apply all candidates without asking")
	linksApplyCmd.Flags().Bool("dry-run", false, "show what would be written without touching any file")

	linksCmd.AddCommand(linksAnalyzeCmd)
	linksCmd.AddCommand(linksApplyCmd)
	rootCmd.AddCommand(linksCmd)
}

func linkScope(cmd *cobra.Command) kb.LinkScope {
	doc, _ := cmd.Flags().GetString("doc")
	staleOnly, _ := cmd.Flags().GetBool("stale-only")
	return kb.LinkScope{Doc: doc, StaleOnly: staleOnly}
}

func runLinksAnalyze(cmd *cobra.Command, args []string) error {
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

	report, err := app.manager.AnalyzeLinks(cmd.Context(), kb.LinkOptions{Scope: linkScope(cmd)})
	if err != nil {
		return err
	}
	jsonOutput, _ := cmd.Flags().GetBool("json")
	return printLinkReport(cmd.OutOrStdout(), report, jsonOutput)
}

func runLinksApply(cmd *cobra.Command, args []string) error {
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

	autoApprove, _ := cmd.Flags().GetBool("yes")
	dryRun, _ := cmd.Flags().GetBool("dry-run")

	opts := kb.LinkOptions{
		Scope:       linkScope(cmd),
		Apply:       true,
		AutoApprove: autoApprove,
		DryRun:      dryRun,
	}
	if !autoApprove {
		opts.Confirmer = &stdinConfirmer{in: bufio.NewReader(os.Stdin)}
	}

	report, err := app.manager.AnalyzeLinks(cmd.Context(), opts)
	if err != nil {
		return err
	}
	jsonOutput, _ := cmd.Flags().GetBool("json")
	if err := printLinkReport(cmd.OutOrStdout(), report, jsonOutput); err != nil {
		return err
	}
	if len(report.Failed) > 0 {
		return fmt.Errorf("%d document(s) failed link analysis", len(report.Failed))
	}
	return nil
}

// stdinConfirmer asks on the terminal before each link write.
type stdinConfirmer struct {
	in *bufio.Reader
}

func (c *stdinConfirmer) Confirm(source string, candidate linker.Candidate) (bool, error) {
	fmt.Fprintf(os.Stderr, "link %s -> %s (%s)? [y/N] ", source, candidate.Target, candidate.Score)
	line, err := c.in.ReadString('\n')
	if err != nil {
		return false, fmt.Errorf("read confirmation: %w", err)
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes", nil
}
