package app_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gracepitts/fda-recalls/internal/app"
	"github.com/gracepitts/fda-recalls/internal/config"
)

func baseConfig(t *testing.T) config.Config {
	t.Helper()
	return config.Config{
		Archive: config.ArchiveConfig{Provider: "noop"},
		Notify:  config.NotifyConfig{Provider: "noop"},
	}
}

func TestNewWithNoOpProviders(t *testing.T) {
	t.Parallel()

	a, err := app.New(context.Background(), baseConfig(t), app.WithoutStore())
	require.NoError(t, err)
	t.Cleanup(a.Close)

	assert.NotNil(t, a.Logger())
	assert.NotNil(t, a.Store())
	assert.NotNil(t, a.Archive())
	assert.NotNil(t, a.Notifier())
}

func TestNewWithLocalArchive(t *testing.T) {
	t.Parallel()

	cfg := baseConfig(t)
	cfg.Archive.Provider = "local"
	cfg.Archive.LocalDir = filepath.Join(t.TempDir(), "raw")
	cfg.Archive.Prefix = "snapshots"

	a, err := app.New(context.Background(), cfg, app.WithoutStore())
	require.NoError(t, err)
	t.Cleanup(a.Close)

	uri, err := a.Archive().Save(context.Background(), "food/page.json", []byte(`{}`))
	require.NoError(t, err)
	assert.Contains(t, uri, "snapshots/food/page.json")
}

func TestNewRejectsUnknownProviders(t *testing.T) {
	t.Parallel()

	cfg := baseConfig(t)
	cfg.Archive.Provider = "s3"
	_, err := app.New(context.Background(), cfg, app.WithoutStore())
	assert.ErrorContains(t, err, "unknown archive provider")

	cfg = baseConfig(t)
	cfg.Notify.Provider = "kafka"
	_, err = app.New(context.Background(), cfg, app.WithoutStore())
	assert.ErrorContains(t, err, "unknown notify provider")
}

func TestNewRequiresProviderSettings(t *testing.T) {
	t.Parallel()

	cfg := baseConfig(t)
	cfg.Archive.Provider = "gcs"
	_, err := app.New(context.Background(), cfg, app.WithoutStore())
	assert.ErrorContains(t, err, "archive.gcs_bucket")

	cfg = baseConfig(t)
	cfg.Notify.Provider = "pubsub"
	_, err = app.New(context.Background(), cfg, app.WithoutStore())
	assert.ErrorContains(t, err, "project_id or topic_id")
}
