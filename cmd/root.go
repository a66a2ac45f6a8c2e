// Package cmd defines the CLI commands for the fda-recalls executable.
package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/gracepitts/fda-recalls/internal/app"
	"github.com/gracepitts/fda-recalls/internal/archive"
	"github.com/gracepitts/fda-recalls/internal/config"
	"github.com/gracepitts/fda-recalls/internal/logging"
	"github.com/gracepitts/fda-recalls/internal/notify"
	"github.com/gracepitts/fda-recalls/internal/store"
)

var cfgFile string

// appKeyType keys the App in the command context.
type appKeyType struct{}

var appKey appKeyType

// App is the slice of the application container commands use. Tests inject
// a fake through newApp.
type App interface {
	Close()
	Config() config.Config
	Logger() *zap.Logger
	Store() store.Store
	Archive() archive.Provider
	Notifier() notify.Provider
}

// newApp is the container factory, a variable so tests can replace it.
var newApp = func(ctx context.Context, cfg config.Config, opts ...app.Option) (App, error) {
	return app.New(ctx, cfg, opts...)
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fda-recalls",
		Short: "Ingest and analyze FDA recall enforcement data",
		Long: `fda-recalls pulls recall enforcement reports from the openFDA API into an
embedded DuckDB database, deduplicating by recall number, and renders
summary charts and an HTTP API over the result.`,

		// Runs after flags are parsed and before the subcommand's RunE;
		// builds the service container and injects it into the context.
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if cfg.Logging.Development {
				if dev, err := logging.New(true); err == nil {
					logging.L = dev
				}
			}

			appInstance, err := newApp(cmd.Context(), cfg)
			if err != nil {
				return fmt.Errorf("initialize services: %w", err)
			}
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, appInstance))
			return nil
		},

		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if appInstance, ok := cmd.Context().Value(appKey).(App); ok && appInstance != nil {
				appInstance.Close()
			}
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./fda-recalls.yaml)")

	cmd.AddCommand(newIngestCmd())
	cmd.AddCommand(newProcessCmd())
	cmd.AddCommand(newVisualizeCmd())
	cmd.AddCommand(newRunCmd())
	cmd.AddCommand(newServeCmd())

	return cmd
}

func resolveApp(ctx context.Context) (App, error) {
	appInstance, ok := ctx.Value(appKey).(App)
	if !ok || appInstance == nil {
		return nil, fmt.Errorf("application services not initialized")
	}
	return appInstance, nil
}

// Execute is the main entry point.
func Execute() {
	logging.InitLogger()

	if err := newRootCmd().Execute(); err != nil {
		logging.L.Fatal("command execution failed", zap.Error(err))
	}
}
