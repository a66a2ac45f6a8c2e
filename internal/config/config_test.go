package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadWithFileOverrides(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	configYAML := `
data_dir: /tmp/fda
logging:
  development: true
fda:
  api_key: secret
  timeout_seconds: 45
  max_retries: 4
  requests_per_minute: 60
ingest:
  product_types: ["food", "drug"]
  page_limit: 50
  max_records: 500
  backfill_from: "2020-01"
db:
  path: /tmp/fda/custom.duckdb
  max_memory: 2GB
archive:
  provider: gcs
  gcs_bucket: recalls-raw
notify:
  provider: pubsub
  project_id: proj
  topic_id: recalls-runs
server:
  port: 9090
`
	if err := os.WriteFile(path, []byte(configYAML), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.DataDir != "/tmp/fda" {
		t.Fatalf("expected data_dir override, got %q", cfg.DataDir)
	}
	if !cfg.Logging.Development {
		t.Fatal("expected development logging")
	}
	if cfg.FDA.APIKey != "secret" || cfg.FDA.TimeoutSeconds != 45 {
		t.Fatalf("expected fda overrides to apply: %+v", cfg.FDA)
	}
	if len(cfg.Ingest.ProductTypes) != 2 || cfg.Ingest.ProductTypes[1] != "drug" {
		t.Fatalf("expected product types to be loaded: %+v", cfg.Ingest.ProductTypes)
	}
	if cfg.Ingest.MaxRecords != 500 || cfg.Ingest.BackfillFrom != "2020-01" {
		t.Fatalf("expected ingest overrides to apply: %+v", cfg.Ingest)
	}
	if cfg.DB.Path != "/tmp/fda/custom.duckdb" {
		t.Fatalf("expected explicit db path to win, got %q", cfg.DB.Path)
	}
	if cfg.Archive.Provider != "gcs" || cfg.Archive.GCSBucket != "recalls-raw" {
		t.Fatalf("expected gcs archive config: %+v", cfg.Archive)
	}
	if cfg.Server.Port != 9090 {
		t.Fatalf("expected port 9090, got %d", cfg.Server.Port)
	}
	if got := cfg.RequestTimeout(); got != 45*time.Second {
		t.Fatalf("expected request timeout 45s, got %v", got)
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Ingest.PageLimit != 100 || cfg.Ingest.MaxRecords != 1000 {
		t.Fatalf("unexpected ingest defaults: %+v", cfg.Ingest)
	}
	if len(cfg.Ingest.ProductTypes) != 3 {
		t.Fatalf("expected three default product types, got %v", cfg.Ingest.ProductTypes)
	}
	if !strings.HasSuffix(cfg.DB.Path, "fda_recalls.duckdb") {
		t.Fatalf("expected db path derived from data_dir, got %q", cfg.DB.Path)
	}
	if cfg.Archive.Provider != "local" || cfg.Archive.LocalDir == "" {
		t.Fatalf("unexpected archive defaults: %+v", cfg.Archive)
	}
	if cfg.Notify.Provider != "noop" {
		t.Fatalf("expected noop notifier by default, got %q", cfg.Notify.Provider)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	t.Parallel()

	cases := map[string]func(*Config){
		"zero page limit":      func(c *Config) { c.Ingest.PageLimit = 0 },
		"oversized page limit": func(c *Config) { c.Ingest.PageLimit = 5000 },
		"unknown product type": func(c *Config) { c.Ingest.ProductTypes = []string{"toys"} },
		"bad backfill":         func(c *Config) { c.Ingest.BackfillFrom = "Jan 2020" },
		"unknown archive":      func(c *Config) { c.Archive.Provider = "s3" },
		"gcs without bucket":   func(c *Config) { c.Archive.Provider = "gcs"; c.Archive.GCSBucket = "" },
		"pubsub without topic": func(c *Config) { c.Notify.Provider = "pubsub" },
		"zero port":            func(c *Config) { c.Server.Port = 0 },
	}

	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg, err := Load("")
			if err != nil {
				t.Fatalf("Load() error = %v", err)
			}
			mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}
