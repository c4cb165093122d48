// Package cmd defines and implements the CLI commands for the harvester executable.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/mfeldman486/resume-harvester/internal/app"
	"github.com/mfeldman486/resume-harvester/internal/config"
	"github.com/mfeldman486/resume-harvester/internal/harvest"
	"github.com/mfeldman486/resume-harvester/internal/logging"
	"github.com/mfeldman486/resume-harvester/internal/orchestrator"
	pkgconfig "github.com/mfeldman486/resume-harvester/pkg/config"
)

var cfgFile string

// appKeyType is the key for storing the App in the context.
type appKeyType string

const appKey appKeyType = "app"

// skipAppAnnotation marks subcommands that run without the service container,
// such as read-only reporting over the output file.
const skipAppAnnotation = "skip-app"

// App defines the application interface that commands will use.
// This allows us to inject a mock app during tests.
type App interface {
	Close()
	GetLogger() *zap.Logger
	GetConfig() config.Config
	GetOrchestrator() *orchestrator.Orchestrator
}

// newApp is the application factory. It's a variable so we can
// replace it with a mock factory in our tests.
var newApp func(ctx context.Context) (App, error) = func(ctx context.Context) (App, error) {
	return app.NewApp(ctx)
}

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "harvester",
		Short: "A search-driven harvester for public resume PDFs.",
		Long: `harvester drives a SearxNG instance through a headless browser,
collects candidate PDF links from the result pages, downloads and
deduplicates the documents, and extracts one structured candidate record
per new resume into a JSONL file.`,
		SilenceUsage: true,

		// This hook runs AFTER config is loaded but BEFORE the subcommand's
		// RunE; the place to build and inject the application services.
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Annotations[skipAppAnnotation] == "true" {
				return nil
			}
			if _, err := logging.Init(viper.GetBool("logging.development")); err != nil {
				return fmt.Errorf("initialize logging: %w", err)
			}

			appInstance, err := newApp(cmd.Context())
			if err != nil {
				return fmt.Errorf("initialize application services: %w", err)
			}

			// Store the app instance in the context for subcommands to use.
			ctx := context.WithValue(cmd.Context(), appKey, appInstance)
			cmd.SetContext(ctx)
			return nil
		},

		// This hook ensures services are shut down gracefully.
		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if appInstance, ok := cmd.Context().Value(appKey).(App); ok && appInstance != nil {
				appInstance.Close()
			}
		},
	}

	// Initialize Viper configuration, then apply an explicit --config file.
	cobra.OnInitialize(pkgconfig.InitConfig, readExplicitConfigFile)

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./harvester.yaml)")

	cmd.AddCommand(newRunCmd())
	cmd.AddCommand(newStatsCmd())

	return cmd
}

// readExplicitConfigFile re-reads configuration from the file named by
// --config, overriding whatever the default search paths found.
func readExplicitConfigFile() {
	if cfgFile == "" {
		return
	}
	viper.SetConfigFile(cfgFile)
	if err := viper.ReadInConfig(); err != nil {
		logging.L.Error("Error reading config file", zap.String("path", cfgFile), zap.Error(err))
	}
}

// Execute is the main entry point. Configuration mistakes are the only error
// class that exits non-zero; per-candidate and per-query failures are logged
// by the run itself and the process still exits zero.
func Execute() {
	// Optional .env for local development; absence is fine.
	_ = godotenv.Load()

	if err := newRootCmd().Execute(); err != nil {
		var fatal *harvest.FatalConfigError
		if errors.As(err, &fatal) {
			os.Exit(1)
		}
	}
}
