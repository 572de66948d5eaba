package observability

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-quotes/internal/sales/numbering"
	"github.com/odyssey-erp/odyssey-quotes/internal/sales/quotations"
)

var (
	_ numbering.ConflictObserver = (*Metrics)(nil)
	_ quotations.Observer        = (*Metrics)(nil)
)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	return rr.Body.String()
}

func TestMetricsMiddlewareRecordsRequest(t *testing.T) {
	metrics := NewMetrics()

	handler := metrics.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	routeCtx := chi.NewRouteContext()
	routeCtx.RoutePatterns = append(routeCtx.RoutePatterns, "/test")

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, routeCtx))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusTeapot, rr.Code)

	body := scrape(t, metrics)
	assert.Contains(t, body, `quotes_http_requests_total{code="418",route="/test"} 1`)
	assert.Contains(t, body, `quotes_http_request_duration_seconds_bucket{route="/test"`)
}

func TestQuotationCounters(t *testing.T) {
	metrics := NewMetrics()
	metrics.TransitionApplied("LIVE", "WON")
	metrics.TransitionApplied("LIVE", "WON")
	metrics.NumberConflict()
	metrics.DocumentRendered("pdf")

	body := scrape(t, metrics)
	assert.Contains(t, body, `quotes_transitions_total{from="LIVE",to="WON"} 2`)
	assert.Contains(t, body, "quotes_number_conflicts_total 1")
	assert.Contains(t, body, `quotes_documents_rendered_total{format="pdf"} 1`)
}

func TestNilMetricsAreSafe(t *testing.T) {
	var metrics *Metrics
	metrics.TransitionApplied("DRAFT", "LIVE")
	metrics.NumberConflict()
	metrics.DocumentRendered("xlsx")

	rr := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	assert.False(t, strings.Contains(rr.Body.String(), "quotes_"))
}
