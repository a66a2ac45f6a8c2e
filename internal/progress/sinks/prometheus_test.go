package sinks_test

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gracepitts/fda-recalls/internal/progress"
	"github.com/gracepitts/fda-recalls/internal/progress/sinks"
)

func TestPrometheusSinkCounts(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	sink, err := sinks.NewPrometheusSink(reg)
	require.NoError(t, err)

	now := time.Now().UTC()
	batch := []progress.Event{
		{RunID: "r1", TS: now, Stage: progress.StageRunStart},
		{RunID: "r1", TS: now, Stage: progress.StagePageDone, ProductType: "food", Fetched: 100, Inserted: 90, Deduped: 10, Dur: time.Second},
		{RunID: "r1", TS: now, Stage: progress.StagePageDone, ProductType: "drug", Fetched: 50, Inserted: 50},
		{RunID: "r1", TS: now, Stage: progress.StageWindowDone, ProductType: "food", Window: "2024-01"},
		{RunID: "r1", TS: now, Stage: progress.StageRunDone, Dur: 2 * time.Second},
	}
	require.NoError(t, sink.Consume(context.Background(), batch))

	fetched, err := testutil.GatherAndCount(reg, "ingest_records_fetched_total")
	require.NoError(t, err)
	assert.Equal(t, 2, fetched, "one series per product type")

	families, err := reg.Gather()
	require.NoError(t, err)
	byName := map[string]float64{}
	for _, fam := range families {
		for _, m := range fam.GetMetric() {
			if m.GetCounter() != nil {
				byName[fam.GetName()] += m.GetCounter().GetValue()
			}
		}
	}
	assert.Equal(t, float64(1), byName["ingest_runs_started_total"])
	assert.Equal(t, float64(1), byName["ingest_runs_completed_total"])
	assert.Equal(t, float64(150), byName["ingest_records_fetched_total"])
	assert.Equal(t, float64(140), byName["ingest_records_inserted_total"])
	assert.Equal(t, float64(10), byName["ingest_records_deduped_total"])

	require.NoError(t, sink.Close(context.Background()))
}

func TestPrometheusSinkDoubleRegister(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	_, err := sinks.NewPrometheusSink(reg)
	require.NoError(t, err)
	_, err = sinks.NewPrometheusSink(reg)
	assert.Error(t, err, "second registration must fail")
}
