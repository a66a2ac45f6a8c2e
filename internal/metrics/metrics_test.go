package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Collectors register at package init; every helper must work without any
// setup call from the command paths.
func TestObserveHelpersNeedNoSetup(t *testing.T) {
	assert.NotPanics(t, func() {
		ObserveChartRendered()
		ObserveAPIRequest("food", 200, 120*time.Millisecond)
		ObserveRateLimitDelay(10 * time.Millisecond)
		ObserveStage("ingest", "ok", time.Second)
		ObserveHTTPRequest(http.MethodGet, "/v1/summary", 200, time.Millisecond)
	})
}

func TestHandlerServesMetrics(t *testing.T) {
	ObserveAPIRequest("drug", 429, 50*time.Millisecond)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "openfda_requests_total")
	assert.Contains(t, rec.Body.String(), "charts_rendered_total")
}
