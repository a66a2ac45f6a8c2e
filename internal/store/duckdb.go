package store

import (
	"context"
	"database/sql"
	"fmt"
	"runtime"
	"time"

	_ "github.com/duckdb/duckdb-go/v2" // duckdb driver
	"go.uber.org/zap"

	"github.com/gracepitts/fda-recalls/internal/recalls"
)

// Config holds DuckDB connection settings.
type Config struct {
	// Path is the database file. Empty opens an in-memory database.
	Path      string
	Threads   int
	MaxMemory string
}

// DuckDB implements Store on an embedded DuckDB database file.
type DuckDB struct {
	conn   *sql.DB
	logger *zap.Logger
}

// Open connects to the database and applies pending migrations.
func Open(ctx context.Context, cfg Config, logger *zap.Logger) (*DuckDB, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	conn, err := sql.Open("duckdb", dsn(cfg))
	if err != nil {
		return nil, fmt.Errorf("open duckdb: %w", err)
	}
	if err := conn.PingContext(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("ping duckdb: %w", err)
	}

	// The database is a single local file; a small pool is enough and keeps
	// DuckDB's writer lock uncontended.
	conn.SetMaxOpenConns(2)
	conn.SetMaxIdleConns(1)
	conn.SetConnMaxIdleTime(5 * time.Minute)

	db := &DuckDB{conn: conn, logger: logger}
	if err := db.migrate(ctx); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return db, nil
}

func dsn(cfg Config) string {
	threads := cfg.Threads
	if threads <= 0 {
		threads = runtime.NumCPU()
	}
	maxMemory := cfg.MaxMemory
	if maxMemory == "" {
		maxMemory = "1GB"
	}
	return fmt.Sprintf("%s?threads=%d&max_memory=%s", cfg.Path, threads, maxMemory)
}

// ExistingKeys scans the natural key of every stored row into memory.
func (db *DuckDB) ExistingKeys(ctx context.Context) (map[string]struct{}, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT recall_number, product_type FROM recalls`)
	if err != nil {
		return nil, fmt.Errorf("scan existing keys: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	keys := make(map[string]struct{})
	for rows.Next() {
		var number, productType string
		if err := rows.Scan(&number, &productType); err != nil {
			return nil, fmt.Errorf("scan key row: %w", err)
		}
		keys[recalls.Recall{RecallNumber: number, ProductType: productType}.Key()] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate keys: %w", err)
	}
	return keys, nil
}

const insertSQL = `
INSERT INTO recalls (
	recall_number, product_type, classification, status, recalling_firm,
	city, state, country, distribution_pattern, product_description,
	product_quantity, reason_for_recall, code_info, more_code_info,
	voluntary_mandated, initial_firm_notification, event_id,
	recall_initiation_date, report_date, termination_date,
	ingested_at, run_id
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

// InsertBatch appends the rows inside a single transaction.
func (db *DuckDB) InsertBatch(ctx context.Context, runID string, batch []recalls.Recall) (int, error) {
	if len(batch) == 0 {
		return 0, nil
	}

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin insert tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	stmt, err := tx.PrepareContext(ctx, insertSQL)
	if err != nil {
		return 0, fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close() //nolint:errcheck

	ingestedAt := time.Now().UTC()
	for _, r := range batch {
		_, err := stmt.ExecContext(ctx,
			r.RecallNumber, r.ProductType, r.Classification, r.Status, r.RecallingFirm,
			r.City, r.State, r.Country, r.DistributionPattern, r.ProductDescription,
			r.ProductQuantity, r.ReasonForRecall, r.CodeInfo, r.MoreCodeInfo,
			r.VoluntaryMandated, r.InitialFirmNotification, r.EventID,
			nullTime(r.RecallInitiationDate), nullTime(r.ReportDate), nullTime(r.TerminationDate),
			ingestedAt, runID,
		)
		if err != nil {
			return 0, fmt.Errorf("insert recall %s: %w", r.Key(), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit insert tx: %w", err)
	}
	return len(batch), nil
}

// CountRecalls returns the total number of stored rows.
func (db *DuckDB) CountRecalls(ctx context.Context) (int64, error) {
	var n int64
	if err := db.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM recalls`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count recalls: %w", err)
	}
	return n, nil
}

// CountsByProductType aggregates rows per product type, most frequent first.
func (db *DuckDB) CountsByProductType(ctx context.Context) ([]TypeCount, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT product_type, COUNT(*) AS count
		FROM recalls
		GROUP BY product_type
		ORDER BY count DESC`)
	if err != nil {
		return nil, fmt.Errorf("counts by product type: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	var out []TypeCount
	for rows.Next() {
		var tc TypeCount
		if err := rows.Scan(&tc.ProductType, &tc.Count); err != nil {
			return nil, fmt.Errorf("scan type count: %w", err)
		}
		out = append(out, tc)
	}
	return out, rows.Err()
}

// CountsByClassification aggregates rows per classification, skipping rows
// without one.
func (db *DuckDB) CountsByClassification(ctx context.Context) ([]ClassCount, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT classification, COUNT(*) AS count
		FROM recalls
		WHERE classification IS NOT NULL AND classification <> ''
		GROUP BY classification
		ORDER BY count DESC`)
	if err != nil {
		return nil, fmt.Errorf("counts by classification: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	var out []ClassCount
	for rows.Next() {
		var cc ClassCount
		if err := rows.Scan(&cc.Classification, &cc.Count); err != nil {
			return nil, fmt.Errorf("scan class count: %w", err)
		}
		out = append(out, cc)
	}
	return out, rows.Err()
}

// MonthlyCounts buckets rows by report month and product type.
func (db *DuckDB) MonthlyCounts(ctx context.Context) ([]MonthCount, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT date_trunc('month', report_date) AS month, product_type, COUNT(*) AS count
		FROM recalls
		WHERE report_date IS NOT NULL
		GROUP BY month, product_type
		ORDER BY month, product_type`)
	if err != nil {
		return nil, fmt.Errorf("monthly counts: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	var out []MonthCount
	for rows.Next() {
		var mc MonthCount
		if err := rows.Scan(&mc.Month, &mc.ProductType, &mc.Count); err != nil {
			return nil, fmt.Errorf("scan month count: %w", err)
		}
		mc.Month = mc.Month.UTC()
		out = append(out, mc)
	}
	return out, rows.Err()
}

// YearlyCounts buckets rows by report year.
func (db *DuckDB) YearlyCounts(ctx context.Context) ([]YearCount, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT CAST(year(report_date) AS BIGINT) AS year, COUNT(*) AS count
		FROM recalls
		WHERE report_date IS NOT NULL
		GROUP BY year
		ORDER BY year`)
	if err != nil {
		return nil, fmt.Errorf("yearly counts: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	var out []YearCount
	for rows.Next() {
		var year, count int64
		if err := rows.Scan(&year, &count); err != nil {
			return nil, fmt.Errorf("scan year count: %w", err)
		}
		out = append(out, YearCount{Year: int(year), Count: count})
	}
	return out, rows.Err()
}

// TopFirms returns the n firms with the most recalls.
func (db *DuckDB) TopFirms(ctx context.Context, n int) ([]FirmCount, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT recalling_firm, COUNT(*) AS count
		FROM recalls
		WHERE recalling_firm IS NOT NULL AND recalling_firm <> ''
		GROUP BY recalling_firm
		ORDER BY count DESC, recalling_firm
		LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("top firms: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	var out []FirmCount
	for rows.Next() {
		var fc FirmCount
		if err := rows.Scan(&fc.Firm, &fc.Count); err != nil {
			return nil, fmt.Errorf("scan firm count: %w", err)
		}
		out = append(out, fc)
	}
	return out, rows.Err()
}

// TopReasons returns the n most common recall reasons.
func (db *DuckDB) TopReasons(ctx context.Context, n int) ([]ReasonCount, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT reason_for_recall, COUNT(*) AS count
		FROM recalls
		WHERE reason_for_recall IS NOT NULL AND reason_for_recall <> ''
		GROUP BY reason_for_recall
		ORDER BY count DESC, reason_for_recall
		LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("top reasons: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	var out []ReasonCount
	for rows.Next() {
		var rc ReasonCount
		if err := rows.Scan(&rc.Reason, &rc.Count); err != nil {
			return nil, fmt.Errorf("scan reason count: %w", err)
		}
		out = append(out, rc)
	}
	return out, rows.Err()
}

// RecentRecalls returns the most recently reported rows.
func (db *DuckDB) RecentRecalls(ctx context.Context, limit int) ([]recalls.Recall, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT recall_number, product_type, classification, status, recalling_firm,
			city, state, country, reason_for_recall,
			recall_initiation_date, report_date, termination_date
		FROM recalls
		ORDER BY report_date DESC NULLS LAST, recall_number
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("recent recalls: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	var out []recalls.Recall
	for rows.Next() {
		var r recalls.Recall
		var initiation, report, termination sql.NullTime
		if err := rows.Scan(
			&r.RecallNumber, &r.ProductType, &r.Classification, &r.Status, &r.RecallingFirm,
			&r.City, &r.State, &r.Country, &r.ReasonForRecall,
			&initiation, &report, &termination,
		); err != nil {
			return nil, fmt.Errorf("scan recall row: %w", err)
		}
		r.RecallInitiationDate = fromNullTime(initiation)
		r.ReportDate = fromNullTime(report)
		r.TerminationDate = fromNullTime(termination)
		out = append(out, r)
	}
	return out, rows.Err()
}

// Close shuts down the connection pool.
func (db *DuckDB) Close() error {
	if err := db.conn.Close(); err != nil {
		return fmt.Errorf("close duckdb: %w", err)
	}
	return nil
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}

func fromNullTime(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	utc := t.Time.UTC()
	return &utc
}
