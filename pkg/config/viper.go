// Package config is responsible for initializing the application's configuration.
// It uses the Viper library to read settings from a config file, environment
// variables, and command-line flags, providing a unified configuration system.
package config

import (
	"strings"

	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/mfeldman486/resume-harvester/internal/logging"
)

// InitConfig initializes the application's configuration using Viper.
// It sets up default values, defines configuration search paths, and enables
// reading from environment variables. This function is designed to be called
// once at application startup to ensure that configuration is loaded and
// available to all other packages.
func InitConfig() {
	// --- Set Search Paths ---
	viper.SetConfigName("harvester")
	viper.AddConfigPath(".")                // Current working directory
	viper.AddConfigPath("/etc/harvester/")  // System-wide configuration
	viper.AddConfigPath("$HOME/.harvester") // User-specific configuration

	// --- Set Defaults ---
	// Sensible defaults for key configuration parameters. These are used when
	// values are not provided in a config file or via environment variables.
	const defaultUA = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 " +
		"(KHTML, like Gecko) Chrome/138.0.0.0 Safari/537.36"
	viper.SetDefault("search.base_url", "http://localhost:8888/search")
	viper.SetDefault("search.user_agent", defaultUA)
	viper.SetDefault("search.headless", true)
	viper.SetDefault("search.page_load_timeout", "30s")
	viper.SetDefault("search.scroll_settle", "1500ms")
	viper.SetDefault("search.empty_page_streak", 2)
	viper.SetDefault("search.debug_dir", "")
	viper.SetDefault("search.ignore_cert_errors", true)

	viper.SetDefault("harvest.max_results", 50)
	viper.SetDefault("harvest.workers", 4)
	viper.SetDefault("harvest.download_dir", "downloads")
	viper.SetDefault("harvest.output_path", "resumes.jsonl")
	viper.SetDefault("harvest.download_timeout", "60s")
	viper.SetDefault("harvest.queue_depth", 128)
	viper.SetDefault("harvest.probe_concurrency", 4)
	viper.SetDefault("harvest.probe_timeout", "10s")
	viper.SetDefault("harvest.probe_host_rps", 1.0)
	viper.SetDefault("harvest.probe_host_burst", 2)
	viper.SetDefault("harvest.page_scan_links", 20)
	viper.SetDefault("harvest.parallel_queries", 1)

	viper.SetDefault("extract.model", "gemini-2.0-flash")
	viper.SetDefault("extract.timeout", "90s")
	viper.SetDefault("extract.api_keys", []string{})

	viper.SetDefault("dedup.backend", "memory") // memory | badger
	viper.SetDefault("dedup.badger_path", "data/dedup")

	viper.SetDefault("archive.backend", "") // "" | local | gcs | memory
	viper.SetDefault("archive.bucket", "")
	viper.SetDefault("archive.prefix", "resumes")
	viper.SetDefault("archive.local_dir", "data/archive")

	viper.SetDefault("catalog.dsn", "")
	viper.SetDefault("catalog.runs_table", "harvest_runs")
	viper.SetDefault("catalog.documents_table", "harvest_documents")
	viper.SetDefault("catalog.max_conns", 4)
	viper.SetDefault("catalog.min_conns", 0)
	viper.SetDefault("catalog.max_conn_lifetime", "30m")

	viper.SetDefault("pubsub.project_id", "")
	viper.SetDefault("pubsub.topic", "")

	viper.SetDefault("server.enabled", false)
	viper.SetDefault("server.port", 9090)

	viper.SetDefault("progress.enabled", true)
	viper.SetDefault("progress.log_enabled", false)
	viper.SetDefault("progress.buffer_size", 256)
	viper.SetDefault("progress.batch.max_events", 32)
	viper.SetDefault("progress.batch.max_wait_ms", 500)
	viper.SetDefault("progress.sink_timeout_ms", 2000)

	viper.SetDefault("logging.development", false)

	// --- Environment Variables ---
	viper.SetEnvPrefix("HARVESTER") // e.g., HARVESTER_EXTRACT_MODEL=gemini-2.0-pro
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// --- Read Config File ---
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			// Config file not found; this is not a fatal error if we can proceed
			// with defaults and environment variables.
			logging.L.Warn("Config file not found; using defaults and environment variables.")
		} else {
			logging.L.Error("Error reading config file", zap.Error(err))
		}
	} else {
		logging.L.Info("Using config file", zap.String("path", viper.ConfigFileUsed()))
	}
}
