package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gracepitts/fda-recalls/internal/recalls"
	"github.com/gracepitts/fda-recalls/internal/store"
)

type apiStore struct {
	store.NoOp
	total    int64
	totalErr error
	recent   []recalls.Recall
}

func (s apiStore) CountRecalls(context.Context) (int64, error) {
	return s.total, s.totalErr
}

func (s apiStore) CountsByProductType(context.Context) ([]store.TypeCount, error) {
	return []store.TypeCount{{ProductType: "food", Count: s.total}}, nil
}

func (s apiStore) RecentRecalls(_ context.Context, limit int) ([]recalls.Recall, error) {
	if limit < len(s.recent) {
		return s.recent[:limit], nil
	}
	return s.recent, nil
}

func newTestServer(t *testing.T, st store.Store, chartsDir string) *httptest.Server {
	t.Helper()
	s, err := NewServer(st, chartsDir, nil)
	require.NoError(t, err)
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)
	return srv
}

func getJSON(t *testing.T, url string, out any) int {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func TestHealthAndReadiness(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, apiStore{total: 3}, "")

	var body map[string]string
	assert.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/healthz", &body))
	assert.Equal(t, "ok", body["status"])

	assert.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/readyz", &body))
	assert.Equal(t, "ready", body["status"])
}

func TestReadinessFailsWhenStoreDown(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, apiStore{totalErr: errors.New("closed")}, "")
	assert.Equal(t, http.StatusServiceUnavailable, getJSON(t, srv.URL+"/readyz", nil))
}

func TestGetSummary(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, apiStore{total: 42}, "")

	var body summaryResponse
	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/v1/summary", &body))
	assert.Equal(t, int64(42), body.TotalRecalls)
	require.Len(t, body.ByProductType, 1)
	assert.Equal(t, "food", body.ByProductType[0].ProductType)
}

func TestGetRecentRecalls(t *testing.T) {
	t.Parallel()

	recent := []recalls.Recall{
		{RecallNumber: "F-0001-2024", ProductType: "food"},
		{RecallNumber: "D-0002-2024", ProductType: "drug"},
	}
	srv := newTestServer(t, apiStore{recent: recent}, "")

	var body struct {
		Count   int              `json:"count"`
		Recalls []recalls.Recall `json:"recalls"`
	}
	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/v1/recalls?limit=1", &body))
	assert.Equal(t, 1, body.Count)
	require.Len(t, body.Recalls, 1)
	assert.Equal(t, "F-0001-2024", body.Recalls[0].RecallNumber)
}

func TestGetRecentRecallsRejectsBadLimit(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, apiStore{}, "")
	assert.Equal(t, http.StatusBadRequest, getJSON(t, srv.URL+"/v1/recalls?limit=zero", nil))
	assert.Equal(t, http.StatusBadRequest, getJSON(t, srv.URL+"/v1/recalls?limit=-5", nil))
}

func TestMetricsEndpointServes(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, apiStore{}, "")
	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestChartsStaticFiles(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "x.png"), []byte("png-bytes"), 0o644))

	srv := newTestServer(t, apiStore{}, dir)

	resp, err := http.Get(srv.URL + "/charts/x.png")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/charts/missing.png")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestRequestIDHeaderSet(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, apiStore{}, "")
	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))
}
