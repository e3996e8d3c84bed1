// Package config loads and validates the engine configuration from a YAML
// file, environment variables, and an optional .env file.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/ivo-toby/gpt-notes-to-tasks/internal/chunk"
	"github.com/ivo-toby/gpt-notes-to-tasks/internal/score"
	"github.com/ivo-toby/gpt-notes-to-tasks/internal/vecindex"
)

// Backend names for IndexConfig.
const (
	BackendSQLite = "sqlite"
	BackendQdrant = "qdrant"
)

// Provider names for ProviderConfig.
const (
	ProviderHosted = "hosted"
	ProviderLocal  = "local"
)

// ConfigurationError marks a configuration the engine refuses to start with.
type ConfigurationError struct {
	Err error
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid configuration: %v", e.Err)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// Config is the full engine configuration.
type Config struct {
	Log        LogConfig        `mapstructure:"log"`
	Vault      VaultConfig      `mapstructure:"vault"`
	Provider   ProviderConfig   `mapstructure:"provider"`
	Index      IndexConfig      `mapstructure:"index"`
	Catalog    CatalogConfig    `mapstructure:"catalog"`
	Chunking   ChunkingConfig   `mapstructure:"chunking"`
	Thresholds ThresholdsConfig `mapstructure:"thresholds"`
	Search     SearchConfig     `mapstructure:"search"`
	Links      LinksConfig      `mapstructure:"links"`
	API        APIConfig        `mapstructure:"api"`
}

// LogConfig selects log verbosity and output format.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// SlogLevel maps the configured level name onto a slog level.
func (c LogConfig) SlogLevel() slog.Level {
	switch strings.ToLower(c.Level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Validate validates the log configuration.
func (c LogConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Level, validation.In("debug", "info", "warn", "error")),
		validation.Field(&c.Format, validation.In("json", "text")),
	)
}

// VaultConfig holds the path to the Markdown vault directory.
type VaultConfig struct {
	Path string `mapstructure:"path"`
}

// Validate validates the vault configuration.
func (c VaultConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Path, validation.Required),
	)
}

// ProviderConfig describes the embedding provider. The API key is a secret
// and normally arrives via NOTEKB_PROVIDER_API_KEY or a .env file rather
// than the YAML file.
type ProviderConfig struct {
	Name       string `mapstructure:"name"`
	BaseURL    string `mapstructure:"base_url"`
	APIKey     string `mapstructure:"api_key"`
	Model      string `mapstructure:"model"`
	Dimensions int    `mapstructure:"dimensions"`
	Metric     string `mapstructure:"metric"`
	BatchSize  int    `mapstructure:"batch_size"`
}

// MetricKind returns the provider's metric kind. Only valid after Validate.
func (c ProviderConfig) MetricKind() score.Kind {
	k, _ := score.ParseKind(c.Metric)
	return k
}

// Identity is the index identity this provider configuration produces.
func (c ProviderConfig) Identity() vecindex.Identity {
	return vecindex.Identity{
		Provider:   c.Name,
		Model:      c.Model,
		Dimensions: c.Dimensions,
		Metric:     c.MetricKind(),
	}
}

// Validate validates the provider configuration.
func (c ProviderConfig) Validate() error {
	if err := validation.ValidateStruct(&c,
		validation.Field(&c.Name, validation.Required, validation.In(ProviderHosted, ProviderLocal)),
		validation.Field(&c.BaseURL, validation.Required),
		validation.Field(&c.Model, validation.Required),
		validation.Field(&c.Dimensions, validation.Required, validation.Min(1)),
		validation.Field(&c.BatchSize, validation.Min(1)),
	); err != nil {
		return err
	}
	if _, err := score.ParseKind(c.Metric); err != nil {
		return fmt.Errorf("provider.metric: %w", err)
	}
	return nil
}

// IndexConfig selects and tunes the vector index backend.
type IndexConfig struct {
	Backend string            `mapstructure:"backend"`
	SQLite  SQLiteIndexConfig `mapstructure:"sqlite"`
	Qdrant  QdrantConfig      `mapstructure:"qdrant"`
}

// Validate validates the index configuration.
func (c IndexConfig) Validate() error {
	if err := validation.ValidateStruct(&c,
		validation.Field(&c.Backend, validation.Required, validation.In(BackendSQLite, BackendQdrant)),
	); err != nil {
		return err
	}
	switch c.Backend {
	case BackendSQLite:
		return c.SQLite.Validate()
	case BackendQdrant:
		return c.Qdrant.Validate()
	}
	return nil
}

// SQLiteIndexConfig tunes the local sqlite vector index.
type SQLiteIndexConfig struct {
	Path string `mapstructure:"path"`
	// CoverAbove is the corpus size at which search switches from brute
	// force to the cover-tree index. Zero keeps the built-in default.
	CoverAbove int `mapstructure:"cover_above"`
}

// Validate validates the sqlite index configuration.
func (c SQLiteIndexConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Path, validation.Required),
		validation.Field(&c.CoverAbove, validation.Min(0)),
	)
}

// QdrantConfig tunes the remote qdrant index.
type QdrantConfig struct {
	URL        string     `mapstructure:"url"`
	Collection string     `mapstructure:"collection"`
	HNSW       HNSWConfig `mapstructure:"hnsw"`
}

// Validate validates the qdrant configuration.
func (c QdrantConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.URL, validation.Required),
		validation.Field(&c.Collection, validation.Required),
	)
}

// HNSWConfig exposes the qdrant graph knobs.
type HNSWConfig struct {
	M           int `mapstructure:"m"`
	EfConstruct int `mapstructure:"ef_construct"`
	EfSearch    int `mapstructure:"ef_search"`
}

// Params converts the knobs to the index backend's form.
func (c HNSWConfig) Params() vecindex.HNSWConfig {
	return vecindex.HNSWConfig{
		M:           uint64(c.M),
		EfConstruct: uint64(c.EfConstruct),
		EfSearch:    uint64(c.EfSearch),
	}
}

// CatalogConfig holds the document catalog database path.
type CatalogConfig struct {
	Path string `mapstructure:"path"`
}

// Validate validates the catalog configuration.
func (c CatalogConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Path, validation.Required),
	)
}

// ChunkingConfig tunes document chunking. Sizes are in runes.
type ChunkingConfig struct {
	MinSize int `mapstructure:"min_size"`
	MaxSize int `mapstructure:"max_size"`
	Overlap int `mapstructure:"overlap"`
}

// ChunkConfig converts to the chunker's form.
func (c ChunkingConfig) ChunkConfig() chunk.Config {
	return chunk.Config{MinSize: c.MinSize, MaxSize: c.MaxSize, Overlap: c.Overlap}
}

// Validate validates the chunking sizes, including their relative ordering.
func (c ChunkingConfig) Validate() error {
	if err := validation.ValidateStruct(&c,
		validation.Field(&c.MinSize, validation.Required, validation.Min(1)),
		validation.Field(&c.MaxSize, validation.Required, validation.Min(1)),
		validation.Field(&c.Overlap, validation.Min(0)),
	); err != nil {
		return err
	}
	if c.MinSize >= c.MaxSize {
		return fmt.Errorf("chunking: min_size %d must be below max_size %d", c.MinSize, c.MaxSize)
	}
	if c.Overlap >= c.MinSize {
		return fmt.Errorf("chunking: overlap %d must be below min_size %d", c.Overlap, c.MinSize)
	}
	return nil
}

// ThresholdConfig is one cutoff declared against a metric kind.
type ThresholdConfig struct {
	Value float64 `mapstructure:"value"`
	Kind  string  `mapstructure:"kind"`
}

// Threshold converts to the scoring package's form. Only valid after
// Validate.
func (c ThresholdConfig) Threshold() score.Threshold {
	k, _ := score.ParseKind(c.Kind)
	return score.Threshold{Value: c.Value, Kind: k}
}

// ThresholdsConfig declares the default threshold plus per-category
// overrides. An unset category inherits the default.
type ThresholdsConfig struct {
	Default ThresholdConfig `mapstructure:"default"`
	Content ThresholdConfig `mapstructure:"content"`
	Tag     ThresholdConfig `mapstructure:"tag"`
	Date    ThresholdConfig `mapstructure:"date"`
	Links   ThresholdConfig `mapstructure:"links"`
}

// Resolved fills unset categories from the default.
func (c ThresholdsConfig) Resolved() ThresholdsConfig {
	r := c
	if r.Content.Kind == "" {
		r.Content = c.Default
	}
	if r.Tag.Kind == "" {
		r.Tag = c.Default
	}
	if r.Date.Kind == "" {
		r.Date = c.Default
	}
	if r.Links.Kind == "" {
		r.Links = c.Default
	}
	return r
}

// SearchConfig tunes query behavior.
type SearchConfig struct {
	Limit int `mapstructure:"limit"`
}

// Validate validates the search configuration.
func (c SearchConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Limit, validation.Required, validation.Min(1)),
	)
}

// LinksConfig tunes link analysis.
type LinksConfig struct {
	Neighbors int `mapstructure:"neighbors"`
	MaxLinks  int `mapstructure:"max_links"`
}

// Validate validates the links configuration.
func (c LinksConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Neighbors, validation.Required, validation.Min(1)),
		validation.Field(&c.MaxLinks, validation.Required, validation.Min(1)),
	)
}

// APIConfig holds HTTP server configuration.
type APIConfig struct {
	Port int `mapstructure:"port"`
}

// Address returns the HTTP listen address.
func (c APIConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate validates the API configuration.
func (c APIConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

// Validate checks every section and then the cross-field rules that tie
// thresholds and the provider together.
func (c *Config) Validate() error {
	sections := []struct {
		name string
		v    interface{ Validate() error }
	}{
		{"log", c.Log},
		{"vault", c.Vault},
		{"provider", c.Provider},
		{"index", c.Index},
		{"catalog", c.Catalog},
		{"chunking", c.Chunking},
		{"search", c.Search},
		{"links", c.Links},
		{"api", c.API},
	}
	for _, s := range sections {
		if err := s.v.Validate(); err != nil {
			return fmt.Errorf("%s: %w", s.name, err)
		}
	}
	return c.validateThresholds()
}

// validateThresholds rejects any threshold whose metric kind differs from
// the provider's. Catching the mismatch here is what lets scoring code treat
// a kind clash at comparison time as a programming error.
func (c *Config) validateThresholds() error {
	metric := c.Provider.MetricKind()
	resolved := c.Thresholds.Resolved()
	categories := []struct {
		name string
		t    ThresholdConfig
	}{
		{"default", c.Thresholds.Default},
		{"content", resolved.Content},
		{"tag", resolved.Tag},
		{"date", resolved.Date},
		{"links", resolved.Links},
	}
	for _, cat := range categories {
		kind, err := score.ParseKind(cat.t.Kind)
		if err != nil {
			return fmt.Errorf("thresholds.%s: %w", cat.name, err)
		}
		if kind != metric {
			return fmt.Errorf("thresholds.%s: kind %q does not match provider metric %q", cat.name, kind, metric)
		}
	}
	return nil
}

// Load reads the engine configuration. An explicit path wins; otherwise
// notekb.yaml is searched in the working directory and then
// ~/.config/notekb/. Environment variables prefixed NOTEKB_ override file
// values, and a .env file in the working directory supplies secrets.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("notekb")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", "notekb"))
		}
	}

	v.SetEnvPrefix("NOTEKB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		// Running entirely on defaults and environment is fine; a config
		// file named explicitly must exist.
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("config: read: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, &ConfigurationError{Err: err}
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("vault.path", "")
	v.SetDefault("provider.name", ProviderHosted)
	v.SetDefault("provider.base_url", "")
	v.SetDefault("provider.api_key", "")
	v.SetDefault("provider.model", "")
	v.SetDefault("provider.dimensions", 0)
	v.SetDefault("provider.metric", "similarity")
	v.SetDefault("provider.batch_size", 16)
	v.SetDefault("index.backend", BackendSQLite)
	v.SetDefault("index.sqlite.path", "notekb-index.db")
	v.SetDefault("index.sqlite.cover_above", 0)
	v.SetDefault("index.qdrant.url", "http://localhost:6333")
	v.SetDefault("index.qdrant.collection", "notekb")
	v.SetDefault("index.qdrant.hnsw.m", 16)
	v.SetDefault("index.qdrant.hnsw.ef_construct", 100)
	v.SetDefault("index.qdrant.hnsw.ef_search", 64)
	v.SetDefault("catalog.path", "notekb-catalog.db")
	v.SetDefault("chunking.min_size", 200)
	v.SetDefault("chunking.max_size", 700)
	v.SetDefault("chunking.overlap", 100)
	v.SetDefault("thresholds.default.value", 0.6)
	v.SetDefault("thresholds.default.kind", "similarity")
	v.SetDefault("search.limit", 10)
	v.SetDefault("links.neighbors", 5)
	v.SetDefault("links.max_links", 10)
	v.SetDefault("api.port", 9000)
}
