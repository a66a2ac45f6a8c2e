// Package charts renders PNG summaries of the recall corpus from the store's
// aggregate queries.
package charts

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	chart "github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"
	"go.uber.org/zap"

	"github.com/gracepitts/fda-recalls/internal/metrics"
	"github.com/gracepitts/fda-recalls/internal/store"
)

// Config controls where charts land and how deep the top-N charts go.
type Config struct {
	OutputDir string
	TopN      int
}

// Renderer turns store aggregates into PNG files under OutputDir.
type Renderer struct {
	store  store.Store
	logger *zap.Logger
	cfg    Config
}

// New constructs a Renderer. A nil logger is replaced with a no-op.
func New(st store.Store, cfg Config, logger *zap.Logger) (*Renderer, error) {
	if st == nil {
		return nil, fmt.Errorf("charts: store is required")
	}
	if cfg.OutputDir == "" {
		return nil, fmt.Errorf("charts: output dir is required")
	}
	if cfg.TopN <= 0 {
		cfg.TopN = 10
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Renderer{store: st, logger: logger, cfg: cfg}, nil
}

// RenderAll produces every chart and returns the paths written. Charts with
// no underlying data are skipped, not failed.
func (r *Renderer) RenderAll(ctx context.Context) ([]string, error) {
	if err := os.MkdirAll(r.cfg.OutputDir, 0o755); err != nil {
		return nil, fmt.Errorf("create chart dir: %w", err)
	}

	renders := []struct {
		name string
		fn   func(context.Context, string) (bool, error)
	}{
		{"recalls_by_product_type.png", r.byProductType},
		{"recalls_by_classification.png", r.byClassification},
		{"recalls_monthly.png", r.monthly},
		{"recalls_yearly.png", r.yearly},
		{"top_firms.png", r.topFirms},
		{"top_reasons.png", r.topReasons},
	}

	var written []string
	for _, rd := range renders {
		path := filepath.Join(r.cfg.OutputDir, rd.name)
		ok, err := rd.fn(ctx, path)
		if err != nil {
			return written, fmt.Errorf("render %s: %w", rd.name, err)
		}
		if !ok {
			r.logger.Debug("skipping chart with no data", zap.String("chart", rd.name))
			continue
		}
		metrics.ObserveChartRendered()
		r.logger.Info("rendered chart", zap.String("path", path))
		written = append(written, path)
	}
	return written, nil
}

func (r *Renderer) byProductType(ctx context.Context, path string) (bool, error) {
	counts, err := r.store.CountsByProductType(ctx)
	if err != nil {
		return false, err
	}
	if len(counts) == 0 {
		return false, nil
	}

	values := make([]chart.Value, 0, len(counts))
	for _, c := range counts {
		values = append(values, chart.Value{
			Label: fmt.Sprintf("%s (%d)", c.ProductType, c.Count),
			Value: float64(c.Count),
		})
	}
	return true, writeBar(path, "Recalls by Product Type", values)
}

func (r *Renderer) byClassification(ctx context.Context, path string) (bool, error) {
	counts, err := r.store.CountsByClassification(ctx)
	if err != nil {
		return false, err
	}
	if len(counts) == 0 {
		return false, nil
	}

	values := make([]chart.Value, 0, len(counts))
	for _, c := range counts {
		label := c.Classification
		if label == "" {
			label = "Unclassified"
		}
		values = append(values, chart.Value{
			Label: fmt.Sprintf("%s (%d)", label, c.Count),
			Value: float64(c.Count),
		})
	}

	pie := chart.PieChart{
		Title:  "Recalls by Classification",
		Width:  800,
		Height: 800,
		Values: values,
	}
	return true, writePNG(path, pie.Render)
}

func (r *Renderer) monthly(ctx context.Context, path string) (bool, error) {
	counts, err := r.store.MonthlyCounts(ctx)
	if err != nil {
		return false, err
	}

	// One time series per product type, months ascending.
	byType := map[string][]store.MonthCount{}
	for _, c := range counts {
		byType[c.ProductType] = append(byType[c.ProductType], c)
	}
	types := make([]string, 0, len(byType))
	for pt := range byType {
		types = append(types, pt)
	}
	sort.Strings(types)

	palette := []drawing.Color{chart.ColorBlue, chart.ColorGreen, chart.ColorRed}
	var series []chart.Series
	for i, pt := range types {
		rows := byType[pt]
		sort.Slice(rows, func(a, b int) bool { return rows[a].Month.Before(rows[b].Month) })
		if len(rows) < 2 {
			// go-chart needs at least two X values per series.
			continue
		}
		xs := make([]time.Time, len(rows))
		ys := make([]float64, len(rows))
		for j, row := range rows {
			xs[j] = row.Month
			ys[j] = float64(row.Count)
		}
		series = append(series, chart.TimeSeries{
			Name:    pt,
			XValues: xs,
			YValues: ys,
			Style:   chart.Style{StrokeColor: palette[i%len(palette)], StrokeWidth: 2},
		})
	}
	if len(series) == 0 {
		return false, nil
	}

	ch := chart.Chart{
		Title:      "Monthly Recalls by Product Type",
		Width:      1200,
		Height:     600,
		Background: chart.Style{Padding: chart.Box{Top: 40, Left: 16, Right: 16, Bottom: 16}},
		XAxis: chart.XAxis{
			ValueFormatter: chart.TimeValueFormatterWithFormat("2006-01"),
		},
		YAxis:  chart.YAxis{Name: "recalls"},
		Series: series,
	}
	ch.Elements = []chart.Renderable{chart.Legend(&ch)}
	return true, writePNG(path, ch.Render)
}

func (r *Renderer) yearly(ctx context.Context, path string) (bool, error) {
	counts, err := r.store.YearlyCounts(ctx)
	if err != nil {
		return false, err
	}
	if len(counts) == 0 {
		return false, nil
	}
	sort.Slice(counts, func(a, b int) bool { return counts[a].Year < counts[b].Year })

	values := make([]chart.Value, 0, len(counts))
	for _, c := range counts {
		values = append(values, chart.Value{
			Label: strconv.Itoa(c.Year),
			Value: float64(c.Count),
		})
	}
	return true, writeBar(path, "Recalls per Year", values)
}

func (r *Renderer) topFirms(ctx context.Context, path string) (bool, error) {
	counts, err := r.store.TopFirms(ctx, r.cfg.TopN)
	if err != nil {
		return false, err
	}
	if len(counts) == 0 {
		return false, nil
	}

	values := make([]chart.Value, 0, len(counts))
	for _, c := range counts {
		values = append(values, chart.Value{
			Label: truncateLabel(c.Firm, 28),
			Value: float64(c.Count),
		})
	}
	return true, writeBar(path, fmt.Sprintf("Top %d Recalling Firms", len(counts)), values)
}

func (r *Renderer) topReasons(ctx context.Context, path string) (bool, error) {
	counts, err := r.store.TopReasons(ctx, r.cfg.TopN)
	if err != nil {
		return false, err
	}
	if len(counts) == 0 {
		return false, nil
	}

	values := make([]chart.Value, 0, len(counts))
	for _, c := range counts {
		values = append(values, chart.Value{
			Label: truncateLabel(c.Reason, 28),
			Value: float64(c.Count),
		})
	}
	return true, writeBar(path, fmt.Sprintf("Top %d Recall Reasons", len(counts)), values)
}

func writeBar(path, title string, values []chart.Value) error {
	bar := chart.BarChart{
		Title:      title,
		Width:      1200,
		Height:     600,
		BarWidth:   60,
		Background: chart.Style{Padding: chart.Box{Top: 40}},
		Bars:       values,
	}
	return writePNG(path, bar.Render)
}

func writePNG(path string, render func(chart.RendererProvider, io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := render(chart.PNG, f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func truncateLabel(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max-1]) + "…"
}
