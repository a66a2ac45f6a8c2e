// Package config loads and validates pipeline configuration via Viper.
package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	DataDir string        `mapstructure:"data_dir"`
	Logging LoggingConfig `mapstructure:"logging"`
	FDA     FDAConfig     `mapstructure:"fda"`
	Ingest  IngestConfig  `mapstructure:"ingest"`
	DB      DBConfig      `mapstructure:"db"`
	Archive ArchiveConfig `mapstructure:"archive"`
	Notify  NotifyConfig  `mapstructure:"notify"`
	Charts  ChartsConfig  `mapstructure:"charts"`
	Server  ServerConfig  `mapstructure:"server"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// FDAConfig configures the openFDA enforcement API client.
type FDAConfig struct {
	BaseURL           string  `mapstructure:"base_url"`
	APIKey            string  `mapstructure:"api_key"`
	TimeoutSeconds    int     `mapstructure:"timeout_seconds"`
	MaxRetries        int     `mapstructure:"max_retries"`
	BackoffInitialMs  int     `mapstructure:"backoff_initial_ms"`
	BackoffMaxMs      int     `mapstructure:"backoff_max_ms"`
	RequestsPerMinute float64 `mapstructure:"requests_per_minute"`
	Burst             int     `mapstructure:"burst"`
}

// IngestConfig governs the incremental ingestion loop.
type IngestConfig struct {
	ProductTypes []string `mapstructure:"product_types"`
	PageLimit    int      `mapstructure:"page_limit"`
	MaxRecords   int      `mapstructure:"max_records"`
	BackfillFrom string   `mapstructure:"backfill_from"` // YYYY-MM, empty disables windowed backfill
}

// DBConfig controls the embedded DuckDB store.
type DBConfig struct {
	Path      string `mapstructure:"path"`
	Threads   int    `mapstructure:"threads"`
	MaxMemory string `mapstructure:"max_memory"`
}

// ArchiveConfig selects where raw API snapshots are kept.
type ArchiveConfig struct {
	Provider  string `mapstructure:"provider"` // local, gcs, noop
	LocalDir  string `mapstructure:"local_dir"`
	GCSBucket string `mapstructure:"gcs_bucket"`
	Prefix    string `mapstructure:"prefix"`
}

// NotifyConfig selects the run-completion notifier.
type NotifyConfig struct {
	Provider  string `mapstructure:"provider"` // pubsub, noop
	ProjectID string `mapstructure:"project_id"`
	TopicID   string `mapstructure:"topic_id"`
}

// ChartsConfig controls rendered chart output.
type ChartsConfig struct {
	OutputDir string `mapstructure:"output_dir"`
	TopN      int    `mapstructure:"top_n"`
}

// ServerConfig controls the HTTP surface.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// Load builds a Config from disk/environment. An empty path means defaults
// plus environment variables only.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("FDA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.applyDataDir()

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("data_dir", "data")
	v.SetDefault("logging.development", false)

	v.SetDefault("fda.base_url", "https://api.fda.gov")
	v.SetDefault("fda.timeout_seconds", 30)
	v.SetDefault("fda.max_retries", 3)
	v.SetDefault("fda.backoff_initial_ms", 1000)
	v.SetDefault("fda.backoff_max_ms", 30000)
	// Unauthenticated openFDA quota is 240 requests/minute per IP; stay under it.
	v.SetDefault("fda.requests_per_minute", 120)
	v.SetDefault("fda.burst", 4)

	v.SetDefault("ingest.product_types", []string{"food", "drug", "device"})
	v.SetDefault("ingest.page_limit", 100)
	v.SetDefault("ingest.max_records", 1000)
	v.SetDefault("ingest.backfill_from", "")

	v.SetDefault("db.path", "") // derived from data_dir when empty
	v.SetDefault("db.threads", 0)
	v.SetDefault("db.max_memory", "1GB")

	v.SetDefault("archive.provider", "local")
	v.SetDefault("archive.local_dir", "") // derived from data_dir when empty
	v.SetDefault("archive.prefix", "raw")

	v.SetDefault("notify.provider", "noop")

	v.SetDefault("charts.output_dir", "") // derived from data_dir when empty
	v.SetDefault("charts.top_n", 10)

	v.SetDefault("server.port", 8080)
}

// applyDataDir fills path-like fields that default relative to DataDir.
func (c *Config) applyDataDir() {
	if c.DB.Path == "" {
		c.DB.Path = filepath.Join(c.DataDir, "fda_recalls.duckdb")
	}
	if c.Archive.LocalDir == "" {
		c.Archive.LocalDir = filepath.Join(c.DataDir, "raw")
	}
	if c.Charts.OutputDir == "" {
		c.Charts.OutputDir = filepath.Join(c.DataDir, "charts")
	}
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("data_dir must be set")
	}
	if c.FDA.BaseURL == "" {
		return fmt.Errorf("fda.base_url must be set")
	}
	if c.FDA.TimeoutSeconds <= 0 {
		return fmt.Errorf("fda.timeout_seconds must be > 0")
	}
	if c.Ingest.PageLimit <= 0 || c.Ingest.PageLimit > 1000 {
		return fmt.Errorf("ingest.page_limit must be in 1..1000")
	}
	if c.Ingest.MaxRecords < 0 {
		return fmt.Errorf("ingest.max_records must be >= 0")
	}
	if len(c.Ingest.ProductTypes) == 0 {
		return fmt.Errorf("ingest.product_types must not be empty")
	}
	for _, pt := range c.Ingest.ProductTypes {
		switch pt {
		case "food", "drug", "device":
		default:
			return fmt.Errorf("unknown product type %q", pt)
		}
	}
	if c.Ingest.BackfillFrom != "" {
		if _, err := time.Parse("2006-01", c.Ingest.BackfillFrom); err != nil {
			return fmt.Errorf("ingest.backfill_from must be YYYY-MM: %w", err)
		}
	}
	switch c.Archive.Provider {
	case "local", "gcs", "noop":
	default:
		return fmt.Errorf("unknown archive provider %q", c.Archive.Provider)
	}
	if c.Archive.Provider == "gcs" && c.Archive.GCSBucket == "" {
		return fmt.Errorf("archive.gcs_bucket must be set when archive.provider is gcs")
	}
	switch c.Notify.Provider {
	case "pubsub", "noop":
	default:
		return fmt.Errorf("unknown notify provider %q", c.Notify.Provider)
	}
	if c.Notify.Provider == "pubsub" && (c.Notify.ProjectID == "" || c.Notify.TopicID == "") {
		return fmt.Errorf("notify.project_id and notify.topic_id must be set when notify.provider is pubsub")
	}
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	return nil
}

// RequestTimeout converts the API timeout config into a duration.
func (c Config) RequestTimeout() time.Duration {
	return time.Duration(c.FDA.TimeoutSeconds) * time.Second
}
