package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gracepitts/fda-recalls/internal/ingest"
	"github.com/gracepitts/fda-recalls/internal/notify"
)

type scriptedIngestor struct {
	mu    sync.Mutex
	errs  []error
	calls int
	res   ingest.Result
}

func (s *scriptedIngestor) Run(context.Context) (ingest.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var err error
	if s.calls < len(s.errs) {
		err = s.errs[s.calls]
	}
	s.calls++
	return s.res, err
}

type countingRenderer struct {
	calls int
	err   error
}

func (c *countingRenderer) RenderAll(context.Context) ([]string, error) {
	c.calls++
	return nil, c.err
}

type captureNotifier struct {
	notify.NoOp
	summaries []notify.RunSummary
}

func (c *captureNotifier) Publish(_ context.Context, s notify.RunSummary) error {
	c.summaries = append(c.summaries, s)
	return nil
}

func fastPolicy(attempts int) retryPolicy {
	p := newRetryPolicy(attempts)
	p.baseDelay = time.Millisecond
	p.maxDelay = 2 * time.Millisecond
	return p
}

func TestRunHappyPath(t *testing.T) {
	t.Parallel()

	ing := &scriptedIngestor{res: ingest.Result{RunID: "r1", Fetched: 10, Inserted: 8, Deduped: 2}}
	rend := &countingRenderer{}
	not := &captureNotifier{}

	p, err := New(ing, rend, not, Config{}, nil)
	require.NoError(t, err)

	res, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 10, res.Fetched)
	assert.Equal(t, 1, ing.calls)
	assert.Equal(t, 1, rend.calls)

	require.Len(t, not.summaries, 1)
	assert.Equal(t, "r1", not.summaries[0].RunID)
	assert.False(t, not.summaries[0].Failed)
	assert.Equal(t, 8, not.summaries[0].Inserted)
}

func TestRunRetriesTransientIngestFailure(t *testing.T) {
	t.Parallel()

	ing := &scriptedIngestor{errs: []error{errors.New("boom"), nil}}
	p, err := New(ing, nil, nil, Config{StageAttempts: 3}, nil)
	require.NoError(t, err)
	p.policy = fastPolicy(3)

	_, err = p.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, ing.calls)
}

func TestRunExhaustsRetriesAndPublishesFailure(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")
	ing := &scriptedIngestor{errs: []error{boom, boom, boom}}
	rend := &countingRenderer{}
	not := &captureNotifier{}

	p, err := New(ing, rend, not, Config{StageAttempts: 3}, nil)
	require.NoError(t, err)
	p.policy = fastPolicy(3)

	_, err = p.Run(context.Background())
	require.ErrorIs(t, err, boom)
	assert.Equal(t, 3, ing.calls)
	assert.Zero(t, rend.calls, "visualize must not run after ingest fails")

	require.Len(t, not.summaries, 1)
	assert.True(t, not.summaries[0].Failed)
	assert.Contains(t, not.summaries[0].Error, "boom")
}

func TestRunDoesNotRetryCanceledContext(t *testing.T) {
	t.Parallel()

	ing := &scriptedIngestor{errs: []error{context.Canceled}}
	p, err := New(ing, nil, nil, Config{StageAttempts: 5}, nil)
	require.NoError(t, err)
	p.policy = fastPolicy(5)

	_, err = p.Run(context.Background())
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, ing.calls)
}

func TestNewRequiresIngestor(t *testing.T) {
	t.Parallel()

	_, err := New(nil, nil, nil, Config{}, nil)
	assert.Error(t, err)
}

func TestBackoffIsBoundedAndJittered(t *testing.T) {
	t.Parallel()

	p := newRetryPolicy(3)
	for attempt := 0; attempt < 12; attempt++ {
		d := p.backoff(attempt)
		assert.GreaterOrEqual(t, d, time.Duration(0))
		assert.LessOrEqual(t, d, p.maxDelay)
	}
}
