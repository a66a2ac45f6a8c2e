// Package app initializes and holds the long-lived services shared by the
// CLI commands: logger, recall store, snapshot archive, and notifier. It is
// constructed once per invocation and closed by a Cobra hook on exit.
package app

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/gracepitts/fda-recalls/internal/archive"
	"github.com/gracepitts/fda-recalls/internal/config"
	"github.com/gracepitts/fda-recalls/internal/logging"
	"github.com/gracepitts/fda-recalls/internal/notify"
	"github.com/gracepitts/fda-recalls/internal/store"
)

// App is the dependency container for one command invocation.
type App struct {
	cfg      config.Config
	logger   *zap.Logger
	store    store.Store
	archive  archive.Provider
	notifier notify.Provider
}

// Config returns the loaded configuration.
func (a *App) Config() config.Config { return a.cfg }

// Logger returns the shared zap logger.
func (a *App) Logger() *zap.Logger { return a.logger }

// Store returns the recall store.
func (a *App) Store() store.Store { return a.store }

// Archive returns the raw snapshot provider.
func (a *App) Archive() archive.Provider { return a.archive }

// Notifier returns the run-summary publisher.
func (a *App) Notifier() notify.Provider { return a.notifier }

// Option adjusts construction, used by commands that do not need every
// service.
type Option func(*options)

type options struct {
	skipStore bool
}

// WithoutStore skips opening the database, for commands that never touch it.
func WithoutStore() Option {
	return func(o *options) { o.skipStore = true }
}

// New builds the container from configuration, failing fast if any critical
// service cannot be initialized.
func New(ctx context.Context, cfg config.Config, opts ...Option) (*App, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	l := logging.L
	l.Info("initializing services",
		zap.String("archive_provider", cfg.Archive.Provider),
		zap.String("notify_provider", cfg.Notify.Provider),
	)

	a := &App{cfg: cfg, logger: l}

	if o.skipStore {
		a.store = store.NoOp{}
	} else {
		db, err := store.Open(ctx, store.Config{
			Path:      cfg.DB.Path,
			Threads:   cfg.DB.Threads,
			MaxMemory: cfg.DB.MaxMemory,
		}, l)
		if err != nil {
			return nil, fmt.Errorf("open store: %w", err)
		}
		a.store = db
	}

	arch, err := newArchive(ctx, cfg.Archive, l)
	if err != nil {
		a.closeQuietly()
		return nil, err
	}
	a.archive = archive.WithPrefix(arch, cfg.Archive.Prefix)

	notifier, err := newNotifier(ctx, cfg.Notify, l)
	if err != nil {
		a.closeQuietly()
		return nil, err
	}
	a.notifier = notifier

	return a, nil
}

func newArchive(ctx context.Context, cfg config.ArchiveConfig, l *zap.Logger) (archive.Provider, error) {
	switch cfg.Provider {
	case "local":
		p, err := archive.NewLocal(cfg.LocalDir)
		if err != nil {
			return nil, fmt.Errorf("init local archive: %w", err)
		}
		l.Info("using local archive", zap.String("dir", cfg.LocalDir))
		return p, nil
	case "gcs":
		if cfg.GCSBucket == "" {
			return nil, fmt.Errorf("archive provider is 'gcs' but archive.gcs_bucket is not set")
		}
		p, err := archive.NewGCS(ctx, cfg.GCSBucket, l)
		if err != nil {
			return nil, fmt.Errorf("init GCS archive: %w", err)
		}
		l.Info("using GCS archive", zap.String("bucket", cfg.GCSBucket))
		return p, nil
	case "noop", "":
		l.Info("raw snapshots will be discarded")
		return archive.NoOp{}, nil
	default:
		return nil, fmt.Errorf("unknown archive provider: %s", cfg.Provider)
	}
}

func newNotifier(ctx context.Context, cfg config.NotifyConfig, l *zap.Logger) (notify.Provider, error) {
	switch cfg.Provider {
	case "pubsub":
		if cfg.ProjectID == "" || cfg.TopicID == "" {
			return nil, fmt.Errorf("notify provider is 'pubsub' but project_id or topic_id is not set")
		}
		p, err := notify.NewPubSub(ctx, cfg.ProjectID, cfg.TopicID, l)
		if err != nil {
			return nil, fmt.Errorf("init pubsub notifier: %w", err)
		}
		l.Info("publishing run summaries to Pub/Sub", zap.String("topic", cfg.TopicID))
		return p, nil
	case "noop", "":
		return notify.NoOp{}, nil
	default:
		return nil, fmt.Errorf("unknown notify provider: %s", cfg.Provider)
	}
}

// Close shuts down every held service, logging rather than returning errors
// since it runs on the exit path.
func (a *App) Close() {
	if a.notifier != nil {
		if err := a.notifier.Close(); err != nil {
			a.logger.Warn("error closing notifier", zap.Error(err))
		}
		a.notifier = nil
	}
	a.closeQuietly()
	_ = a.logger.Sync()
}

func (a *App) closeQuietly() {
	if a.archive != nil {
		if err := a.archive.Close(); err != nil {
			a.logger.Warn("error closing archive", zap.Error(err))
		}
		a.archive = nil
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.logger.Warn("error closing store", zap.Error(err))
		}
		a.store = nil
	}
}
