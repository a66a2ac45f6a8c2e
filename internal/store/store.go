// Package store persists normalized recall rows in an embedded DuckDB
// database and serves the aggregate queries behind charts and the HTTP API.
// The Store interface decouples callers from DuckDB so tests and dry runs can
// substitute a no-op implementation.
package store

import (
	"context"
	"time"

	"github.com/gracepitts/fda-recalls/internal/recalls"
)

// TypeCount is a per-product-type recall count.
type TypeCount struct {
	ProductType string
	Count       int64
}

// ClassCount is a per-classification recall count (Class I/II/III).
type ClassCount struct {
	Classification string
	Count          int64
}

// MonthCount is a recall count for one month and product type.
type MonthCount struct {
	Month       time.Time
	ProductType string
	Count       int64
}

// YearCount is a recall count for one report year.
type YearCount struct {
	Year  int
	Count int64
}

// FirmCount is a per-recalling-firm recall count.
type FirmCount struct {
	Firm  string
	Count int64
}

// ReasonCount is a per-reason recall count.
type ReasonCount struct {
	Reason string
	Count  int64
}

// Store is the persistence interface for recall rows.
type Store interface {
	// ExistingKeys returns the natural keys of every stored recall.
	ExistingKeys(ctx context.Context) (map[string]struct{}, error)

	// InsertBatch appends rows, tagging them with the ingest run ID.
	// Callers are responsible for filtering out keys already present.
	InsertBatch(ctx context.Context, runID string, rows []recalls.Recall) (int, error)

	CountRecalls(ctx context.Context) (int64, error)
	CountsByProductType(ctx context.Context) ([]TypeCount, error)
	CountsByClassification(ctx context.Context) ([]ClassCount, error)
	MonthlyCounts(ctx context.Context) ([]MonthCount, error)
	YearlyCounts(ctx context.Context) ([]YearCount, error)
	TopFirms(ctx context.Context, n int) ([]FirmCount, error)
	TopReasons(ctx context.Context, n int) ([]ReasonCount, error)
	RecentRecalls(ctx context.Context, limit int) ([]recalls.Recall, error)

	Close() error
}

// NoOp is a Store that discards writes and returns empty results. It backs
// dry runs and tests that only exercise the ingest loop.
type NoOp struct{}

// ExistingKeys returns an empty key set.
func (NoOp) ExistingKeys(context.Context) (map[string]struct{}, error) {
	return map[string]struct{}{}, nil
}

// InsertBatch discards the rows and reports them all as inserted.
func (NoOp) InsertBatch(_ context.Context, _ string, rows []recalls.Recall) (int, error) {
	return len(rows), nil
}

// CountRecalls reports zero.
func (NoOp) CountRecalls(context.Context) (int64, error) { return 0, nil }

// CountsByProductType returns no rows.
func (NoOp) CountsByProductType(context.Context) ([]TypeCount, error) { return nil, nil }

// CountsByClassification returns no rows.
func (NoOp) CountsByClassification(context.Context) ([]ClassCount, error) { return nil, nil }

// MonthlyCounts returns no rows.
func (NoOp) MonthlyCounts(context.Context) ([]MonthCount, error) { return nil, nil }

// YearlyCounts returns no rows.
func (NoOp) YearlyCounts(context.Context) ([]YearCount, error) { return nil, nil }

// TopFirms returns no rows.
func (NoOp) TopFirms(context.Context, int) ([]FirmCount, error) { return nil, nil }

// TopReasons returns no rows.
func (NoOp) TopReasons(context.Context, int) ([]ReasonCount, error) { return nil, nil }

// RecentRecalls returns no rows.
func (NoOp) RecentRecalls(context.Context, int) ([]recalls.Recall, error) { return nil, nil }

// Close does nothing.
func (NoOp) Close() error { return nil }
