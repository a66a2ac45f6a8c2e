package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/gracepitts/fda-recalls/internal/clock/system"
	"github.com/gracepitts/fda-recalls/internal/config"
	"github.com/gracepitts/fda-recalls/internal/ingest"
	"github.com/gracepitts/fda-recalls/internal/openfda"
	"github.com/gracepitts/fda-recalls/internal/progress"
	"github.com/gracepitts/fda-recalls/internal/progress/sinks"
)

func newIngestCmd() *cobra.Command {
	var (
		backfillFrom string
		maxRecords   int
	)

	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Fetch new recall records into the local database",
		Long: `Pages the openFDA enforcement endpoints for each configured product type,
skips records already present by recall number, and inserts the rest.
Use --backfill-from to walk monthly report_date windows for deep history.`,

		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			cfg := appInstance.Config()
			if backfillFrom != "" {
				cfg.Ingest.BackfillFrom = backfillFrom
			}
			if cmd.Flags().Changed("max-records") {
				cfg.Ingest.MaxRecords = maxRecords
			}

			ingestor, hub, err := buildIngestor(appInstance, cfg)
			if err != nil {
				return err
			}
			defer closeHub(hub, appInstance.Logger())

			res, err := ingestor.Run(cmd.Context())
			if err != nil {
				return fmt.Errorf("ingest: %w", err)
			}
			appInstance.Logger().Info("ingest complete",
				zap.Int("fetched", res.Fetched),
				zap.Int("inserted", res.Inserted),
				zap.Int("deduped", res.Deduped),
			)
			return nil
		},
	}

	cmd.Flags().StringVar(&backfillFrom, "backfill-from", "", "start of monthly backfill windows (YYYY-MM)")
	cmd.Flags().IntVar(&maxRecords, "max-records", 0, "cap on fetched records for this run (0 = use config)")
	return cmd
}

// buildIngestor assembles the openFDA client, progress hub, and ingestor from
// the container. The returned hub must be closed after the run.
func buildIngestor(appInstance App, cfg config.Config) (*ingest.Ingestor, *progress.Hub, error) {
	logger := appInstance.Logger()

	client, err := openfda.NewClient(openfda.Config{
		BaseURL:        cfg.FDA.BaseURL,
		APIKey:         cfg.FDA.APIKey,
		Timeout:        cfg.RequestTimeout(),
		MaxRetries:     cfg.FDA.MaxRetries,
		BackoffInitial: time.Duration(cfg.FDA.BackoffInitialMs) * time.Millisecond,
		BackoffMax:     time.Duration(cfg.FDA.BackoffMaxMs) * time.Millisecond,
	}, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("init openFDA client: %w", err)
	}

	hubSinks := []progress.Sink{sinks.NewLogSink(logger)}
	promSink, err := sinks.NewPrometheusSink(prometheus.DefaultRegisterer)
	if err != nil {
		// Already registered when a command runs twice in-process.
		logger.Warn("prometheus progress sink unavailable", zap.Error(err))
	} else {
		hubSinks = append(hubSinks, promSink)
	}
	hub := progress.NewHub(progress.Config{Logger: logger}, hubSinks...)

	ingestor := ingest.New(
		client,
		appInstance.Store(),
		appInstance.Archive(),
		hub,
		system.New(),
		ingest.Config{
			ProductTypes:      cfg.Ingest.ProductTypes,
			PageLimit:         cfg.Ingest.PageLimit,
			MaxRecords:        cfg.Ingest.MaxRecords,
			BackfillFrom:      cfg.Ingest.BackfillFrom,
			RequestsPerMinute: cfg.FDA.RequestsPerMinute,
			Burst:             cfg.FDA.Burst,
		},
		logger,
	)
	return ingestor, hub, nil
}

func closeHub(hub *progress.Hub, logger *zap.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := hub.Close(ctx); err != nil {
		logger.Warn("progress hub close", zap.Error(err))
	}
}
