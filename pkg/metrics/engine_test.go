package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestEngineMetricsCountsOutcomes(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewEngineMetrics(reg)

	m.ObserveReservation(OutcomeOK)
	m.ObserveReservation(OutcomeOK)
	m.ObserveReservation(OutcomeInsufficientStock)
	m.ObserveBid(OutcomeBidTooLow)
	m.ObserveTransition("accepted")

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}

	checks := []struct {
		name, label, value string
		want               float64
	}{
		{"tradepost_stock_reservations_total", "outcome", OutcomeOK, 2},
		{"tradepost_stock_reservations_total", "outcome", OutcomeInsufficientStock, 1},
		{"tradepost_auction_bids_total", "outcome", OutcomeBidTooLow, 1},
		{"tradepost_offers_transitions_total", "status", "accepted", 1},
	}
	for _, c := range checks {
		got, err := fetchCounterValue(mfs, c.name, c.label, c.value)
		if err != nil {
			t.Fatalf("fetch %s: %v", c.name, err)
		}
		if got != c.want {
			t.Fatalf("%s{%s=%s}: expected %v, got %v", c.name, c.label, c.value, c.want, got)
		}
	}
}

func TestEngineMetricsNilSafe(t *testing.T) {
	var m *EngineMetrics
	m.ObserveReservation(OutcomeOK)
	m.ObserveBid(OutcomeOK)
	m.ObserveTransition("pending")

	NewEngineMetrics(nil).ObserveReservation(OutcomeOK)
}
