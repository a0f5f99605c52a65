package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestHandlerServesRegisteredCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	engine := NewEngineMetrics(reg)
	engine.ObserveBid(OutcomeOK)

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `tradepost_auction_bids_total{outcome="ok"} 1`) {
		t.Fatalf("bid counter missing from output:\n%s", rec.Body.String())
	}
}
