// Package ingest implements the incremental ingestion/dedup loop: paging the
// enforcement endpoints, optionally windowed by report month, skipping records
// already present by natural key, and writing the remainder to the store.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/gracepitts/fda-recalls/internal/archive"
	"github.com/gracepitts/fda-recalls/internal/metrics"
	"github.com/gracepitts/fda-recalls/internal/openfda"
	"github.com/gracepitts/fda-recalls/internal/progress"
	"github.com/gracepitts/fda-recalls/internal/recalls"
	"github.com/gracepitts/fda-recalls/internal/store"
)

// API is the slice of the openFDA client the ingestor needs.
type API interface {
	Enforcement(ctx context.Context, productType string, q openfda.Query) (*openfda.SearchResponse, []byte, error)
}

// Clock supplies the current time; injected so window math is testable.
type Clock interface {
	Now() time.Time
}

// Config controls one ingest run.
type Config struct {
	ProductTypes []string
	PageLimit    int
	// MaxRecords caps fetched records across all endpoints; 0 means no cap.
	MaxRecords int
	// BackfillFrom enables monthly report_date windows starting at the
	// given YYYY-MM month. Empty pages each endpoint without a search.
	BackfillFrom string
	// RequestsPerMinute throttles API calls; 0 disables throttling.
	RequestsPerMinute float64
	Burst             int
}

// Result summarizes a completed run.
type Result struct {
	RunID      string
	StartedAt  time.Time
	FinishedAt time.Time
	Fetched    int
	Inserted   int
	Deduped    int
}

// Ingestor drives the ingestion loop against one API client and one store.
type Ingestor struct {
	api     API
	store   store.Store
	archive archive.Provider
	emitter progress.Emitter
	limiter *rate.Limiter
	clock   Clock
	logger  *zap.Logger
	cfg     Config
}

// New constructs an Ingestor. archive, emitter, and clock may be nil; nil
// archive discards snapshots and a nil clock uses wall time.
func New(
	api API,
	st store.Store,
	arch archive.Provider,
	emitter progress.Emitter,
	clock Clock,
	cfg Config,
	logger *zap.Logger,
) *Ingestor {
	if arch == nil {
		arch = archive.NoOp{}
	}
	if clock == nil {
		clock = wallClock{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.PageLimit <= 0 {
		cfg.PageLimit = 100
	}

	var limiter *rate.Limiter
	if cfg.RequestsPerMinute > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerMinute/60.0), burst)
	}

	return &Ingestor{
		api:     api,
		store:   st,
		archive: arch,
		emitter: emitter,
		limiter: limiter,
		clock:   clock,
		logger:  logger,
		cfg:     cfg,
	}
}

// Run executes one ingest pass over every configured endpoint and returns the
// record counts. A partial failure fails the run but keeps what was inserted.
func (ing *Ingestor) Run(ctx context.Context) (Result, error) {
	res := Result{
		RunID:     uuid.NewString(),
		StartedAt: ing.clock.Now(),
	}
	ing.emit(progress.Event{RunID: res.RunID, TS: res.StartedAt, Stage: progress.StageRunStart})

	keys, err := ing.store.ExistingKeys(ctx)
	if err != nil {
		return ing.finish(res, fmt.Errorf("load existing keys: %w", err))
	}
	ing.logger.Info("starting ingest run",
		zap.String("run_id", res.RunID),
		zap.Int("existing_records", len(keys)),
		zap.Strings("product_types", ing.cfg.ProductTypes),
	)

	for _, productType := range ing.cfg.ProductTypes {
		if err := ing.ingestEndpoint(ctx, &res, keys, productType); err != nil {
			return ing.finish(res, fmt.Errorf("ingest %s: %w", productType, err))
		}
		if ing.capReached(res.Fetched) {
			ing.logger.Info("record cap reached, stopping run",
				zap.String("run_id", res.RunID),
				zap.Int("fetched", res.Fetched),
			)
			break
		}
	}

	return ing.finish(res, nil)
}

func (ing *Ingestor) ingestEndpoint(
	ctx context.Context,
	res *Result,
	keys map[string]struct{},
	productType string,
) error {
	if ing.cfg.BackfillFrom == "" {
		_, err := ing.ingestWindow(ctx, res, keys, productType, nil)
		return err
	}

	from, err := time.Parse("2006-01", ing.cfg.BackfillFrom)
	if err != nil {
		return fmt.Errorf("parse backfill_from: %w", err)
	}

	for _, w := range monthWindows(from, ing.clock.Now()) {
		fetched, err := ing.ingestWindow(ctx, res, keys, productType, &w)
		if err != nil {
			return err
		}
		ing.emit(progress.Event{
			RunID:       res.RunID,
			TS:          ing.clock.Now(),
			Stage:       progress.StageWindowDone,
			ProductType: productType,
			Window:      w.label(),
			Fetched:     int64(fetched),
		})
		if ing.capReached(res.Fetched) {
			return nil
		}
	}
	return nil
}

// ingestWindow pages one endpoint, optionally restricted to a report_date
// window, until the server runs out of results or a cap is hit. It returns
// the number of records fetched in this window.
func (ing *Ingestor) ingestWindow(
	ctx context.Context,
	res *Result,
	keys map[string]struct{},
	productType string,
	w *window,
) (int, error) {
	q := openfda.Query{Limit: ing.cfg.PageLimit}
	if w != nil {
		q.Search = w.search()
	}

	windowFetched := 0
	for {
		if err := ing.throttle(ctx); err != nil {
			return windowFetched, err
		}

		pageStart := time.Now()
		resp, raw, err := ing.api.Enforcement(ctx, productType, q)
		pageDur := time.Since(pageStart)
		if err != nil {
			if errors.Is(err, openfda.ErrSkipLimit) {
				// Unwindowed passes hit the ceiling on large endpoints;
				// windowed backfill is the way past it.
				ing.logger.Warn("skip ceiling reached; configure ingest.backfill_from for deeper history",
					zap.String("product_type", productType),
					zap.Int("skip", q.Skip),
				)
				return windowFetched, nil
			}
			var statusErr *openfda.StatusError
			if errors.As(err, &statusErr) {
				metrics.ObserveAPIRequest(productType, statusErr.Code, pageDur)
			}
			return windowFetched, err
		}
		metrics.ObserveAPIRequest(productType, http.StatusOK, pageDur)

		if len(resp.Results) == 0 {
			return windowFetched, nil
		}

		if err := ing.snapshot(ctx, res.RunID, productType, q.Skip, raw); err != nil {
			// Archival failures are not fatal to ingestion.
			ing.logger.Warn("failed to archive raw snapshot", zap.Error(err))
		}

		inserted, deduped, err := ing.persistPage(ctx, res.RunID, keys, productType, resp.Results)
		if err != nil {
			return windowFetched, err
		}

		windowFetched += len(resp.Results)
		res.Fetched += len(resp.Results)
		res.Inserted += inserted
		res.Deduped += deduped

		ing.emit(progress.Event{
			RunID:       res.RunID,
			TS:          ing.clock.Now(),
			Stage:       progress.StagePageDone,
			ProductType: productType,
			Window:      windowLabel(w),
			Fetched:     int64(len(resp.Results)),
			Inserted:    int64(inserted),
			Deduped:     int64(deduped),
			Dur:         pageDur,
		})

		if ing.capReached(res.Fetched) {
			return windowFetched, nil
		}
		q.Skip += ing.cfg.PageLimit
		if q.Skip >= resp.Meta.Results.Total {
			return windowFetched, nil
		}
	}
}

// persistPage normalizes a page, drops rows whose natural key is already
// known, and inserts the rest.
func (ing *Ingestor) persistPage(
	ctx context.Context,
	runID string,
	keys map[string]struct{},
	productType string,
	page []openfda.EnforcementRecord,
) (inserted, deduped int, err error) {
	rows := recalls.NormalizeAll(page, productType)

	fresh := rows[:0]
	for _, row := range rows {
		if _, ok := keys[row.Key()]; ok {
			deduped++
			continue
		}
		fresh = append(fresh, row)
	}

	inserted, err = ing.store.InsertBatch(ctx, runID, fresh)
	if err != nil {
		return 0, 0, fmt.Errorf("insert batch: %w", err)
	}
	for _, row := range fresh {
		keys[row.Key()] = struct{}{}
	}
	return inserted, deduped, nil
}

func (ing *Ingestor) snapshot(ctx context.Context, runID, productType string, skip int, raw []byte) error {
	name := fmt.Sprintf("%s/%s_recalls_%s_skip%05d.json",
		productType, productType, ing.clock.Now().Format("20060102T150405"), skip)
	uri, err := ing.archive.Save(ctx, name, raw)
	if err != nil {
		return err
	}
	if uri != "" {
		ing.logger.Debug("archived raw snapshot",
			zap.String("run_id", runID),
			zap.String("uri", uri),
		)
	}
	return nil
}

func (ing *Ingestor) throttle(ctx context.Context) error {
	if ing.limiter == nil {
		return nil
	}
	start := time.Now()
	if err := ing.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}
	if waited := time.Since(start); waited > time.Millisecond {
		metrics.ObserveRateLimitDelay(waited)
	}
	return nil
}

func (ing *Ingestor) capReached(fetched int) bool {
	return ing.cfg.MaxRecords > 0 && fetched >= ing.cfg.MaxRecords
}

func (ing *Ingestor) finish(res Result, err error) (Result, error) {
	res.FinishedAt = ing.clock.Now()
	evt := progress.Event{
		RunID:    res.RunID,
		TS:       res.FinishedAt,
		Stage:    progress.StageRunDone,
		Fetched:  int64(res.Fetched),
		Inserted: int64(res.Inserted),
		Deduped:  int64(res.Deduped),
		Dur:      res.FinishedAt.Sub(res.StartedAt),
	}
	if err != nil {
		evt.Stage = progress.StageRunError
		evt.Note = err.Error()
	}
	ing.emit(evt)

	ing.logger.Info("ingest run finished",
		zap.String("run_id", res.RunID),
		zap.Int("fetched", res.Fetched),
		zap.Int("inserted", res.Inserted),
		zap.Int("deduped", res.Deduped),
		zap.Error(err),
	)
	return res, err
}

func (ing *Ingestor) emit(evt progress.Event) {
	if ing.emitter != nil {
		ing.emitter.Emit(evt)
	}
}

func windowLabel(w *window) string {
	if w == nil {
		return ""
	}
	return w.label()
}

type wallClock struct{}

func (wallClock) Now() time.Time { return time.Now().UTC() }
