package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/mfeldman486/resume-harvester/internal/config"
	"github.com/mfeldman486/resume-harvester/internal/harvest"
	"github.com/mfeldman486/resume-harvester/internal/logging"
)

// newRunCmd creates and configures the 'run' subcommand, the main entry point
// for a harvest: one or more queries in, a JSONL file of resume records out.
func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Runs a harvest for one or more queries",
		Long: `Runs the full harvest pipeline. Queries come from repeated --query
and --url flags or from a --batch YAML file; the two forms are mutually
exclusive. Each fetched document is deduplicated by content hash before
extraction, so re-running a query only appends records for resumes that
were not seen before.`,
		RunE: runHarvestCommand,
	}

	flags := cmd.Flags()
	flags.StringArray("query", nil, "search query to harvest (repeatable)")
	flags.StringArray("url", nil, "prebuilt SearxNG results URL to harvest (repeatable)")
	flags.String("batch", "", "YAML file with a list of queries")
	flags.Int("max-results", 50, "stop a query once this many candidate links were seen")
	flags.String("model", "gemini-2.0-flash", "Gemini model used for extraction")
	flags.String("download-dir", "downloads", "directory for fetched PDFs")
	flags.String("out", "resumes.jsonl", "output JSONL path")
	flags.Duration("download-timeout", 60*time.Second, "per-document download timeout")
	flags.Duration("extract-timeout", 90*time.Second, "per-document extraction timeout")
	flags.Bool("headless", true, "run the browser headless")

	// Flags override the config file and environment for the same keys.
	bindings := map[string]string{
		"harvest.max_results":      "max-results",
		"extract.model":            "model",
		"harvest.download_dir":     "download-dir",
		"harvest.output_path":      "out",
		"harvest.download_timeout": "download-timeout",
		"extract.timeout":          "extract-timeout",
		"search.headless":          "headless",
	}
	for key, name := range bindings {
		if err := viper.BindPFlag(key, flags.Lookup(name)); err != nil {
			logging.L.Warn("Failed to bind flag", zap.String("flag", name), zap.Error(err))
		}
	}

	return cmd
}

func runHarvestCommand(cmd *cobra.Command, _ []string) error {
	appInstance, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}
	logger := appInstance.GetLogger()

	specs, err := buildQuerySpecs(cmd)
	if err != nil {
		return err
	}

	summary, err := appInstance.GetOrchestrator().Run(cmd.Context(), specs)
	logger.Info("Harvest finished",
		zap.Int64("links_direct", summary.LinksDirect),
		zap.Int64("links_probed", summary.LinksProbed),
		zap.Int64("links_scanned", summary.LinksScanned),
		zap.Int64("fetched", summary.Fetched),
		zap.Int64("duplicates", summary.Duplicates),
		zap.Int64("fetch_failures", summary.FetchFailures),
		zap.Int64("records_ai", summary.RecordsAI),
		zap.Int64("records_fallback", summary.RecordsFallback),
	)
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("run harvest: %w", err)
	}
	return nil
}

// buildQuerySpecs assembles the query list for a run. MaxResults is left to
// the orchestrator, which applies the configured cutoff per query.
func buildQuerySpecs(cmd *cobra.Command) ([]harvest.QuerySpec, error) {
	flags := cmd.Flags()
	queries, err := flags.GetStringArray("query")
	if err != nil {
		return nil, err
	}
	urls, err := flags.GetStringArray("url")
	if err != nil {
		return nil, err
	}
	batchPath, err := flags.GetString("batch")
	if err != nil {
		return nil, err
	}

	if batchPath != "" {
		if len(queries) > 0 || len(urls) > 0 {
			return nil, harvest.NewFatalConfigError(errors.New("--batch cannot be combined with --query or --url"))
		}
		specs, err := config.LoadBatch(batchPath)
		if err != nil {
			return nil, harvest.NewFatalConfigError(err)
		}
		return specs, nil
	}

	specs := make([]harvest.QuerySpec, 0, len(queries)+len(urls))
	for _, q := range queries {
		specs = append(specs, harvest.QuerySpec{Name: q, Query: q})
	}
	for _, u := range urls {
		specs = append(specs, harvest.QuerySpec{Name: u, ResultsURL: u})
	}
	if len(specs) == 0 {
		return nil, harvest.NewFatalConfigError(errors.New("nothing to harvest: pass --query, --url, or --batch"))
	}
	return specs, nil
}

func resolveApp(ctx context.Context) (App, error) {
	appInstance, ok := ctx.Value(appKey).(App)
	if !ok || appInstance == nil {
		return nil, errors.New("application services not initialized")
	}
	return appInstance, nil
}
