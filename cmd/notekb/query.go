package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ivo-toby/gpt-notes-to-tasks/internal/kb"
)

var queryCmd = &cobra.Command{
	Use:   "query [text]",
	Short: "Search the knowledge base semantically",
	Long: `Query embeds the search text and returns the closest notes, one result per
note, filtered by the configured threshold for the chosen category.

Categories: content (default), tag (combine with --tag), date (combine with
--date).`,
	Args: cobra.MinimumNArgs(1),
	RunE: runQuery,
}

func init() {
	queryCmd.Flags().String("category", "", "search category: content, tag, or date")
	queryCmd.Flags().Int("limit", 0, "maximum results (0 = configured default)")
	queryCmd.Flags().String("type", "", "restrict to one note type (daily, weekly, meeting, learning, note)")
	queryCmd.Flags().String("tag", "", "restrict to notes carrying this tag")
	queryCmd.Flags().String("date", "", "restrict to notes dated YYYY-MM-DD")
	queryCmd.Flags().Bool("json", false, "emit results as JSON")
	rootCmd.AddCommand(queryCmd)
}

func runQuery(cmd *cobra.Command, args []string) error {
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

	rawCategory, _ := cmd.Flags().GetString("category")
	category, err := kb.ParseCategory(rawCategory)
	if err != nil {
		return err
	}
	limit, _ := cmd.Flags().GetInt("limit")
	noteType, _ := cmd.Flags().GetString("type")
	tag, _ := cmd.Flags().GetString("tag")
	date, _ := cmd.Flags().GetString("date")

	results, err := app.manager.Query(cmd.Context(), strings.Join(args, " "), kb.QueryOptions{
		Category: category,
		Limit:    limit,
		NoteType: noteType,
		Tag:      tag,
		Date:     date,
	})
	if err != nil {
		return err
	}

	jsonOutput, _ := cmd.Flags().GetBool("json")
	return formatQueryOutput(results, jsonOutput)
}

func formatQueryOutput(results []kb.QueryResult, jsonOutput bool) error {
	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	}

	if len(results) == 0 {
		fmt.Println("No results found.")
		return nil
	}

	fmt.Fprintf(os.Stdout, "%-4s  %-9s  %-40s  %-10s  %s\n", "Rank", "Score", "Note", "Type", "Title")
	fmt.Fprintln(os.Stdout, strings.Repeat("-", 90))
	for i, r := range results {
		title := r.Title
		if len(title) > 30 {
			title = title[:27] + "..."
		}
		doc := r.DocID
		if len(doc) > 40 {
			doc = doc[:37] + "..."
		}
		fmt.Fprintf(os.Stdout, "%-4d  %-9.4f  %-40s  %-10s  %s\n", i+1, r.Score.Raw, doc, r.NoteType, title)
	}
	fmt.Fprintf(os.Stdout, "\n%d results\n", len(results))
	return nil
}
