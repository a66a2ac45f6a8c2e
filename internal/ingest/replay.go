package ingest

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/gracepitts/fda-recalls/internal/openfda"
	"github.com/gracepitts/fda-recalls/internal/recalls"
	"github.com/gracepitts/fda-recalls/internal/store"
)

// Replayer re-ingests archived raw snapshots into the store without touching
// the API, reusing the same natural-key dedup as a live run. Snapshots are
// laid out as <product_type>/<name>.json under the archive directory.
type Replayer struct {
	store  store.Store
	logger *zap.Logger
}

// NewReplayer constructs a Replayer. A nil logger is replaced with a no-op.
func NewReplayer(st store.Store, logger *zap.Logger) (*Replayer, error) {
	if st == nil {
		return nil, fmt.Errorf("replay: store is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Replayer{store: st, logger: logger}, nil
}

// Run walks dir for snapshot files and inserts their records. Files whose
// top-level directory is not a known product type, or that do not decode as
// an enforcement response, are skipped with a warning.
func (r *Replayer) Run(ctx context.Context, dir string) (Result, error) {
	res := Result{
		RunID:     uuid.NewString(),
		StartedAt: time.Now().UTC(),
	}

	keys, err := r.store.ExistingKeys(ctx)
	if err != nil {
		return res, fmt.Errorf("load existing keys: %w", err)
	}

	err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), ".json") {
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		productType, ok := snapshotProductType(dir, path)
		if !ok {
			r.logger.Warn("skipping snapshot outside a product type directory", zap.String("path", path))
			return nil
		}

		records, decErr := decodeSnapshot(path)
		if decErr != nil {
			r.logger.Warn("skipping undecodable snapshot", zap.String("path", path), zap.Error(decErr))
			return nil
		}

		rows := recalls.NormalizeAll(records, productType)
		fresh := rows[:0]
		deduped := 0
		for _, row := range rows {
			if _, exists := keys[row.Key()]; exists {
				deduped++
				continue
			}
			fresh = append(fresh, row)
		}

		inserted, insErr := r.store.InsertBatch(ctx, res.RunID, fresh)
		if insErr != nil {
			return fmt.Errorf("insert snapshot %s: %w", path, insErr)
		}
		for _, row := range fresh {
			keys[row.Key()] = struct{}{}
		}

		res.Fetched += len(records)
		res.Inserted += inserted
		res.Deduped += deduped
		return nil
	})

	res.FinishedAt = time.Now().UTC()
	if err != nil {
		return res, err
	}

	r.logger.Info("snapshot replay finished",
		zap.String("run_id", res.RunID),
		zap.String("dir", dir),
		zap.Int("fetched", res.Fetched),
		zap.Int("inserted", res.Inserted),
		zap.Int("deduped", res.Deduped),
	)
	return res, nil
}

// snapshotProductType extracts the product type from the snapshot's path
// relative to the archive root.
func snapshotProductType(root, path string) (string, bool) {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return "", false
	}
	parts := strings.Split(filepath.ToSlash(rel), "/")
	if len(parts) < 2 {
		return "", false
	}
	switch parts[0] {
	case "food", "drug", "device":
		return parts[0], true
	}
	return "", false
}

func decodeSnapshot(path string) ([]openfda.EnforcementRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var resp openfda.SearchResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, err
	}
	return resp.Results, nil
}
