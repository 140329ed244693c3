package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scrape(t *testing.T, h http.Handler) string {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	return string(body)
}

func TestMetrics(t *testing.T) {
	m := New()
	m.Query("edge")
	m.Query("fallback")
	m.Query("edge")
	m.Probe("10.0.0.1", "ok", true, 42)
	m.Probe("10.0.0.2", "unreachable", false, 0)
	m.Geolocation("ip-api", "success")
	m.CacheEntries(3)
	m.HandlerPanic()

	out := scrape(t, m.Handler())
	assert.Contains(t, out, `geodns_queries_total{outcome="edge"} 2`)
	assert.Contains(t, out, `geodns_queries_total{outcome="fallback"} 1`)
	assert.Contains(t, out, `geodns_edge_load{address="10.0.0.1"} 42`)
	assert.Contains(t, out, `geodns_edge_available{address="10.0.0.2"} 0`)
	assert.Contains(t, out, `geodns_geolocation_total{provider="ip-api",result="success"} 1`)
	assert.Contains(t, out, `geodns_distance_cache_entries 3`)
	assert.Contains(t, out, `geodns_handler_panics_total 1`)
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.Query("edge")
		m.Probe("10.0.0.1", "ok", true, 1)
		m.Geolocation("ip-api", "failure")
		m.CacheEntries(1)
		m.HandlerPanic()
	})

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
