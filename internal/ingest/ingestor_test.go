package ingest

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gracepitts/fda-recalls/internal/openfda"
	"github.com/gracepitts/fda-recalls/internal/progress"
	"github.com/gracepitts/fda-recalls/internal/recalls"
	"github.com/gracepitts/fda-recalls/internal/store"
)

// fakeAPI serves canned pages per product type, honoring limit/skip.
type fakeAPI struct {
	records map[string][]openfda.EnforcementRecord
	calls   []openfda.Query
	err     error
}

func (f *fakeAPI) Enforcement(_ context.Context, productType string, q openfda.Query) (*openfda.SearchResponse, []byte, error) {
	f.calls = append(f.calls, q)
	if f.err != nil {
		return nil, nil, f.err
	}
	all := f.records[productType]
	total := len(all)

	start := q.Skip
	if start > total {
		start = total
	}
	end := start + q.Limit
	if end > total {
		end = total
	}

	resp := &openfda.SearchResponse{Results: all[start:end]}
	resp.Meta.Results.Total = total
	resp.Meta.Results.Skip = q.Skip
	resp.Meta.Results.Limit = q.Limit
	return resp, []byte(`{"results": []}`), nil
}

// memStore keeps inserted rows keyed by natural key.
type memStore struct {
	store.NoOp
	mu   sync.Mutex
	rows map[string]recalls.Recall
}

func newMemStore(seed ...recalls.Recall) *memStore {
	m := &memStore{rows: make(map[string]recalls.Recall)}
	for _, r := range seed {
		m.rows[r.Key()] = r
	}
	return m
}

func (m *memStore) ExistingKeys(context.Context) (map[string]struct{}, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	keys := make(map[string]struct{}, len(m.rows))
	for k := range m.rows {
		keys[k] = struct{}{}
	}
	return keys, nil
}

func (m *memStore) InsertBatch(_ context.Context, _ string, batch []recalls.Recall) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range batch {
		if _, ok := m.rows[r.Key()]; ok {
			return 0, fmt.Errorf("duplicate key inserted: %s", r.Key())
		}
		m.rows[r.Key()] = r
	}
	return len(batch), nil
}

// captureEmitter records emitted events.
type captureEmitter struct {
	mu     sync.Mutex
	events []progress.Event
}

func (c *captureEmitter) Emit(evt progress.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, evt)
}

func (c *captureEmitter) stages() []progress.Stage {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]progress.Stage, len(c.events))
	for i, e := range c.events {
		out[i] = e.Stage
	}
	return out
}

type fixedClock struct{ at time.Time }

func (f fixedClock) Now() time.Time { return f.at }

func foodRecords(n int) []openfda.EnforcementRecord {
	out := make([]openfda.EnforcementRecord, n)
	for i := range out {
		out[i] = openfda.EnforcementRecord{
			RecallNumber: fmt.Sprintf("F-%04d-2024", i+1),
			ReportDate:   "20240315",
		}
	}
	return out
}

func TestRunPagesUntilExhausted(t *testing.T) {
	t.Parallel()

	api := &fakeAPI{records: map[string][]openfda.EnforcementRecord{
		"food": foodRecords(25),
	}}
	st := newMemStore()
	emitter := &captureEmitter{}

	ing := New(api, st, nil, emitter, nil, Config{
		ProductTypes: []string{"food"},
		PageLimit:    10,
	}, nil)

	res, err := ing.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 25, res.Fetched)
	assert.Equal(t, 25, res.Inserted)
	assert.Zero(t, res.Deduped)
	assert.Len(t, st.rows, 25)
	require.Len(t, api.calls, 3, "three pages of 10")
	assert.Equal(t, 20, api.calls[2].Skip)

	stages := emitter.stages()
	assert.Equal(t, progress.StageRunStart, stages[0])
	assert.Equal(t, progress.StageRunDone, stages[len(stages)-1])
}

func TestRunDedupsExistingRecords(t *testing.T) {
	t.Parallel()

	seed := recalls.Recall{RecallNumber: "F-0001-2024", ProductType: "food"}
	api := &fakeAPI{records: map[string][]openfda.EnforcementRecord{
		"food": foodRecords(5),
	}}
	st := newMemStore(seed)

	ing := New(api, st, nil, nil, nil, Config{
		ProductTypes: []string{"food"},
		PageLimit:    100,
	}, nil)

	res, err := ing.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 5, res.Fetched)
	assert.Equal(t, 4, res.Inserted)
	assert.Equal(t, 1, res.Deduped)
	assert.Len(t, st.rows, 5)
}

func TestRunHonorsMaxRecords(t *testing.T) {
	t.Parallel()

	api := &fakeAPI{records: map[string][]openfda.EnforcementRecord{
		"food": foodRecords(100),
		"drug": foodRecords(100),
	}}
	st := newMemStore()

	ing := New(api, st, nil, nil, nil, Config{
		ProductTypes: []string{"food", "drug"},
		PageLimit:    10,
		MaxRecords:   30,
	}, nil)

	res, err := ing.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 30, res.Fetched)
	for _, q := range api.calls {
		assert.LessOrEqual(t, q.Skip, 20)
	}
}

func TestRunWindowedBackfill(t *testing.T) {
	t.Parallel()

	api := &fakeAPI{records: map[string][]openfda.EnforcementRecord{
		"food": foodRecords(3),
	}}
	st := newMemStore()
	emitter := &captureEmitter{}
	clock := fixedClock{at: time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)}

	ing := New(api, st, nil, emitter, clock, Config{
		ProductTypes: []string{"food"},
		PageLimit:    100,
		BackfillFrom: "2024-01",
	}, nil)

	_, err := ing.Run(context.Background())
	require.NoError(t, err)

	// One query per month window, each carrying a report_date search.
	require.Len(t, api.calls, 3)
	assert.Equal(t, "report_date:[20240101 TO 20240131]", api.calls[0].Search)
	assert.Equal(t, "report_date:[20240301 TO 20240331]", api.calls[2].Search)

	var windowsDone int
	for _, s := range emitter.stages() {
		if s == progress.StageWindowDone {
			windowsDone++
		}
	}
	assert.Equal(t, 3, windowsDone)
}

func TestRunSurfacesAPIErrors(t *testing.T) {
	t.Parallel()

	api := &fakeAPI{err: &openfda.StatusError{Code: 500}}
	emitter := &captureEmitter{}

	ing := New(api, newMemStore(), nil, emitter, nil, Config{
		ProductTypes: []string{"food"},
	}, nil)

	_, err := ing.Run(context.Background())
	require.Error(t, err)

	stages := emitter.stages()
	assert.Equal(t, progress.StageRunError, stages[len(stages)-1])
}

func TestRunStopsAtSkipCeiling(t *testing.T) {
	t.Parallel()

	// An API that always reports more data than the ceiling allows.
	api := &ceilingAPI{pageSize: 100}
	st := newMemStore()

	ing := New(api, st, nil, nil, nil, Config{
		ProductTypes: []string{"food"},
		PageLimit:    100,
	}, nil)

	res, err := ing.Run(context.Background())
	require.NoError(t, err, "hitting the ceiling ends the pass, not the run")
	assert.Equal(t, openfda.MaxSkip+100, res.Fetched)
}

// ceilingAPI fabricates unique records forever and returns ErrSkipLimit past
// the API's ceiling, as the real client does.
type ceilingAPI struct {
	pageSize int
}

func (c *ceilingAPI) Enforcement(_ context.Context, _ string, q openfda.Query) (*openfda.SearchResponse, []byte, error) {
	if q.Skip > openfda.MaxSkip {
		return nil, nil, openfda.ErrSkipLimit
	}
	page := make([]openfda.EnforcementRecord, c.pageSize)
	for i := range page {
		page[i] = openfda.EnforcementRecord{RecallNumber: fmt.Sprintf("F-%06d", q.Skip+i)}
	}
	resp := &openfda.SearchResponse{Results: page}
	resp.Meta.Results.Total = 1_000_000
	return resp, []byte(`{}`), nil
}
