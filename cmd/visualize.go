package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/gracepitts/fda-recalls/internal/charts"
)

func newVisualizeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "visualize",
		Short: "Render summary charts from the local database",
		Long: `Reads the aggregate views of the recall database and renders PNG charts
(product type, classification, monthly and yearly trends, top firms and
reasons) into the configured output directory.`,

		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			cfg := appInstance.Config()

			renderer, err := charts.New(appInstance.Store(), charts.Config{
				OutputDir: cfg.Charts.OutputDir,
				TopN:      cfg.Charts.TopN,
			}, appInstance.Logger())
			if err != nil {
				return err
			}

			written, err := renderer.RenderAll(cmd.Context())
			if err != nil {
				return fmt.Errorf("render charts: %w", err)
			}
			appInstance.Logger().Info("charts rendered",
				zap.Int("count", len(written)),
				zap.String("dir", cfg.Charts.OutputDir),
			)
			return nil
		},
	}
	return cmd
}
