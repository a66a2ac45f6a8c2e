package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/gracepitts/fda-recalls/internal/charts"
	"github.com/gracepitts/fda-recalls/internal/pipeline"
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the full pipeline: ingest, then render charts",
		Long: `Executes the ingest and visualize stages as one unit with per-stage
retries, then publishes a run summary to the configured notifier.`,

		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			cfg := appInstance.Config()

			ingestor, hub, err := buildIngestor(appInstance, cfg)
			if err != nil {
				return err
			}
			defer closeHub(hub, appInstance.Logger())

			renderer, err := charts.New(appInstance.Store(), charts.Config{
				OutputDir: cfg.Charts.OutputDir,
				TopN:      cfg.Charts.TopN,
			}, appInstance.Logger())
			if err != nil {
				return err
			}

			p, err := pipeline.New(ingestor, renderer, appInstance.Notifier(), pipeline.Config{}, appInstance.Logger())
			if err != nil {
				return err
			}

			res, err := p.Run(cmd.Context())
			if err != nil {
				return fmt.Errorf("pipeline: %w", err)
			}
			appInstance.Logger().Info("pipeline complete",
				zap.String("run_id", res.RunID),
				zap.Int("inserted", res.Inserted),
			)
			return nil
		},
	}
	return cmd
}
