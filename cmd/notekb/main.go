package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/ivo-toby/gpt-notes-to-tasks/internal/config"
)

// version is set at build time via ldflags.
var version = "dev"

// rootCmd is the base command for the notekb CLI.
var rootCmd = &cobra.Command{
	Use:   "notekb",
	Short: "Semantic knowledge base for a Markdown note vault",
	Long: `notekb chunks and embeds Markdown notes, keeps the vectors in a local or
remote index, answers semantic searches, and writes discovered relationships
back into the notes as wiki-links.

Indexing is incremental: update re-embeds only notes that changed since they
were last indexed, and reindex rebuilds everything from scratch.`,
	SilenceUsage:  true,
	SilenceErrors: false,
	Version:       version,
}

func init() {
	rootCmd.PersistentFlags().String("config", "",
		"config file (default: ./notekb.yaml or ~/.config/notekb/notekb.yaml)")
}

// loadConfig reads the configuration named by --config and installs the
// default logger it selects.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	opts := &slog.HandlerOptions{Level: cfg.Log.SlogLevel()}
	var handler slog.Handler
	if cfg.Log.Format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(handler))
	return cfg, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
