package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/gracepitts/fda-recalls/internal/ingest"
)

func newProcessCmd() *cobra.Command {
	var dir string

	cmd := &cobra.Command{
		Use:   "process",
		Short: "Replay archived raw snapshots into the database",
		Long: `Walks the local snapshot archive (product-type subdirectories of JSON
pages) and inserts any records not already present, without calling the
openFDA API. Useful for rebuilding the database from archived raw data.`,

		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			if dir == "" {
				dir = appInstance.Config().Archive.LocalDir
			}

			replayer, err := ingest.NewReplayer(appInstance.Store(), appInstance.Logger())
			if err != nil {
				return err
			}
			res, err := replayer.Run(cmd.Context(), dir)
			if err != nil {
				return fmt.Errorf("process snapshots: %w", err)
			}
			appInstance.Logger().Info("process complete",
				zap.Int("fetched", res.Fetched),
				zap.Int("inserted", res.Inserted),
				zap.Int("deduped", res.Deduped),
			)
			return nil
		},
	}

	cmd.Flags().StringVar(&dir, "dir", "", "snapshot directory (default is the configured archive.local_dir)")
	return cmd
}
