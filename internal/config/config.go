// Package config defines the typed harvester configuration loaded via Viper.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"

	"github.com/mfeldman486/resume-harvester/internal/harvest"
)

// Config captures all harvester configuration knobs loaded via Viper.
type Config struct {
	Search   SearchConfig   `mapstructure:"search"`
	Harvest  HarvestConfig  `mapstructure:"harvest"`
	Extract  ExtractConfig  `mapstructure:"extract"`
	Dedup    DedupConfig    `mapstructure:"dedup"`
	Archive  ArchiveConfig  `mapstructure:"archive"`
	Catalog  CatalogConfig  `mapstructure:"catalog"`
	PubSub   PubSubConfig   `mapstructure:"pubsub"`
	Server   ServerConfig   `mapstructure:"server"`
	Progress ProgressConfig `mapstructure:"progress"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// SearchConfig controls the browser that renders search result pages.
type SearchConfig struct {
	BaseURL          string        `mapstructure:"base_url"`
	UserAgent        string        `mapstructure:"user_agent"`
	Headless         bool          `mapstructure:"headless"`
	PageLoadTimeout  time.Duration `mapstructure:"page_load_timeout"`
	ScrollSettle     time.Duration `mapstructure:"scroll_settle"`
	EmptyPageStreak  int           `mapstructure:"empty_page_streak"`
	DebugDir         string        `mapstructure:"debug_dir"`
	IgnoreCertErrors bool          `mapstructure:"ignore_cert_errors"`
}

// HarvestConfig governs collection, fetching, and the worker pool.
type HarvestConfig struct {
	MaxResults       int           `mapstructure:"max_results"`
	Workers          int           `mapstructure:"workers"`
	DownloadDir      string        `mapstructure:"download_dir"`
	OutputPath       string        `mapstructure:"output_path"`
	DownloadTimeout  time.Duration `mapstructure:"download_timeout"`
	QueueDepth       int           `mapstructure:"queue_depth"`
	ProbeConcurrency int           `mapstructure:"probe_concurrency"`
	ProbeTimeout     time.Duration `mapstructure:"probe_timeout"`
	ProbeHostRPS     float64       `mapstructure:"probe_host_rps"`
	ProbeHostBurst   int           `mapstructure:"probe_host_burst"`
	PageScanLinks    int           `mapstructure:"page_scan_links"`
	ParallelQueries  int           `mapstructure:"parallel_queries"`
}

// ExtractConfig configures the AI structuring stage.
type ExtractConfig struct {
	Model   string        `mapstructure:"model"`
	Timeout time.Duration `mapstructure:"timeout"`
	APIKeys []string      `mapstructure:"api_keys"`
}

// DedupConfig selects the content-hash registry backend.
type DedupConfig struct {
	Backend    string `mapstructure:"backend"`
	BadgerPath string `mapstructure:"badger_path"`
}

// ArchiveConfig selects the optional raw-PDF archive backend.
type ArchiveConfig struct {
	Backend  string `mapstructure:"backend"`
	Bucket   string `mapstructure:"bucket"`
	Prefix   string `mapstructure:"prefix"`
	LocalDir string `mapstructure:"local_dir"`
}

// CatalogConfig controls the optional Postgres run catalog.
type CatalogConfig struct {
	DSN             string        `mapstructure:"dsn"`
	RunsTable       string        `mapstructure:"runs_table"`
	DocumentsTable  string        `mapstructure:"documents_table"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
}

// PubSubConfig holds metadata for record publishing.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	Topic     string `mapstructure:"topic"`
}

// ServerConfig controls the optional ops HTTP server.
type ServerConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// ProgressConfig tunes the progress event hub.
type ProgressConfig struct {
	Enabled       bool                `mapstructure:"enabled"`
	LogEnabled    bool                `mapstructure:"log_enabled"`
	BufferSize    int                 `mapstructure:"buffer_size"`
	Batch         ProgressBatchConfig `mapstructure:"batch"`
	SinkTimeoutMS int                 `mapstructure:"sink_timeout_ms"`
}

// ProgressBatchConfig bounds hub batching.
type ProgressBatchConfig struct {
	MaxEvents int `mapstructure:"max_events"`
	MaxWaitMS int `mapstructure:"max_wait_ms"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// FromViper unmarshals and validates a Config from the given Viper instance.
// Gemini API keys fall back to the GEMINI_API_KEY environment variable when
// the config carries none.
func FromViper(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if len(cfg.Extract.APIKeys) == 0 {
		if key := os.Getenv("GEMINI_API_KEY"); key != "" {
			cfg.Extract.APIKeys = []string{key}
		}
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Harvest.Workers <= 0 {
		return errors.New("harvest.workers must be > 0")
	}
	if c.Harvest.MaxResults <= 0 {
		return errors.New("harvest.max_results must be > 0")
	}
	if c.Harvest.DownloadDir == "" {
		return errors.New("harvest.download_dir is required")
	}
	if c.Harvest.OutputPath == "" {
		return errors.New("harvest.output_path is required")
	}
	if c.Harvest.DownloadTimeout <= 0 {
		return errors.New("harvest.download_timeout must be > 0")
	}
	if c.Extract.Timeout <= 0 {
		return errors.New("extract.timeout must be > 0")
	}
	switch c.Dedup.Backend {
	case "", "memory":
	case "badger":
		if c.Dedup.BadgerPath == "" {
			return errors.New("dedup.badger_path is required for the badger backend")
		}
	default:
		return fmt.Errorf("unknown dedup backend: %s", c.Dedup.Backend)
	}
	switch c.Archive.Backend {
	case "", "memory":
	case "local":
		if c.Archive.LocalDir == "" {
			return errors.New("archive.local_dir is required for the local backend")
		}
	case "gcs":
		if c.Archive.Bucket == "" {
			return errors.New("archive.bucket is required for the gcs backend")
		}
	default:
		return fmt.Errorf("unknown archive backend: %s", c.Archive.Backend)
	}
	if c.PubSub.Topic != "" && c.PubSub.ProjectID == "" {
		return errors.New("pubsub.project_id is required when pubsub.topic is set")
	}
	if c.Server.Enabled && c.Server.Port <= 0 {
		return errors.New("server.port must be > 0 when the server is enabled")
	}
	return nil
}

// LoadBatch reads a YAML batch file of query specs.
func LoadBatch(path string) ([]harvest.QuerySpec, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read batch file %s: %w", path, err)
	}
	var batch struct {
		Queries []harvest.QuerySpec `mapstructure:"queries"`
	}
	if err := v.Unmarshal(&batch); err != nil {
		return nil, fmt.Errorf("unmarshal batch file %s: %w", path, err)
	}
	if len(batch.Queries) == 0 {
		return nil, fmt.Errorf("batch file %s has no queries", path)
	}
	return batch.Queries, nil
}
