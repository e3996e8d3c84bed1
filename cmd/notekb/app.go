package main

import (
	"database/sql"
	"fmt"

	"github.com/ivo-toby/gpt-notes-to-tasks/internal/catalog"
	"github.com/ivo-toby/gpt-notes-to-tasks/internal/config"
	"github.com/ivo-toby/gpt-notes-to-tasks/internal/embed"
	"github.com/ivo-toby/gpt-notes-to-tasks/internal/kb"
	"github.com/ivo-toby/gpt-notes-to-tasks/internal/linker"
	"github.com/ivo-toby/gpt-notes-to-tasks/internal/note"
	"github.com/ivo-toby/gpt-notes-to-tasks/internal/vecindex"
)

// app bundles the wired engine with the handles that need closing.
type app struct {
	cfg     *config.Config
	manager *kb.Manager
	index   vecindex.Index
	db      *sql.DB
}

// buildApp wires the vault, provider, index, catalog, and linker into a
// knowledge base manager.
func buildApp(cfg *config.Config) (*app, error) {
	vaultPath, err := note.ExpandHome(cfg.Vault.Path)
	if err != nil {
		return nil, fmt.Errorf("vault path: %w", err)
	}
	source, err := note.NewFS(vaultPath)
	if err != nil {
		return nil, err
	}

	provider := buildProvider(cfg.Provider)

	index, err := buildIndex(cfg)
	if err != nil {
		return nil, err
	}

	db, err := catalog.New(cfg.Catalog.Path)
	if err != nil {
		_ = index.Close()
		return nil, err
	}
	repo := catalog.NewRepo(db)

	th := cfg.Thresholds.Resolved()
	analyzer := linker.NewAnalyzer(index, source, linker.AnalyzerConfig{
		Neighbors: cfg.Links.Neighbors,
		Threshold: th.Links.Threshold(),
		MaxLinks:  cfg.Links.MaxLinks,
	})
	writer := linker.NewWriter(source)

	manager := kb.NewManager(source, provider, index, repo, analyzer, writer, kb.Config{
		Chunking: cfg.Chunking.ChunkConfig(),
		Thresholds: kb.Thresholds{
			Content: th.Content.Threshold(),
			Tag:     th.Tag.Threshold(),
			Date:    th.Date.Threshold(),
			Links:   th.Links.Threshold(),
		},
		QueryLimit: cfg.Search.Limit,
	})

	return &app{cfg: cfg, manager: manager, index: index, db: db}, nil
}

func (a *app) Close() {
	_ = a.index.Close()
	_ = a.db.Close()
}

func buildProvider(cfg config.ProviderConfig) embed.Provider {
	switch cfg.Name {
	case config.ProviderLocal:
		return embed.NewLocalProvider(embed.LocalConfig{
			BaseURL:    cfg.BaseURL,
			Model:      cfg.Model,
			Dimensions: cfg.Dimensions,
			Metric:     cfg.MetricKind(),
			BatchSize:  cfg.BatchSize,
		})
	default:
		return embed.NewHostedProvider(embed.HostedConfig{
			BaseURL:    cfg.BaseURL,
			APIKey:     cfg.APIKey,
			Model:      cfg.Model,
			Dimensions: cfg.Dimensions,
			Metric:     cfg.MetricKind(),
			BatchSize:  cfg.BatchSize,
		})
	}
}

func buildIndex(cfg *config.Config) (vecindex.Index, error) {
	ident := cfg.Provider.Identity()
	switch cfg.Index.Backend {
	case config.BackendQdrant:
		return vecindex.NewQdrant(cfg.Index.Qdrant.URL, cfg.Index.Qdrant.Collection,
			ident, cfg.Index.Qdrant.HNSW.Params())
	default:
		return vecindex.NewSQLite(cfg.Index.SQLite.Path, ident, cfg.Index.SQLite.CoverAbove)
	}
}
