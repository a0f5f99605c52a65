package metrics

import "github.com/prometheus/client_golang/prometheus"

// Outcome labels shared by the engine counters.
const (
	OutcomeOK                  = "ok"
	OutcomeInsufficientStock   = "insufficient_stock"
	OutcomeReservationConflict = "reservation_conflict"
	OutcomeBidTooLow           = "bid_too_low"
	OutcomeSelfBid             = "self_bid"
	OutcomeAuctionClosed       = "auction_closed"
	OutcomeError               = "error"
)

// EngineMetrics counts reservation, bid and offer transition outcomes.
type EngineMetrics struct {
	reservations *prometheus.CounterVec
	bids         *prometheus.CounterVec
	transitions  *prometheus.CounterVec
}

// NewEngineMetrics registers the engine counters on the provided registerer.
func NewEngineMetrics(reg prometheus.Registerer) *EngineMetrics {
	if reg == nil {
		return &EngineMetrics{}
	}
	reservations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "stock",
		Name:      "reservations_total",
		Help:      "Reservation attempts by outcome.",
	}, []string{"outcome"})
	bids := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "auction",
		Name:      "bids_total",
		Help:      "Bid attempts by outcome.",
	}, []string{"outcome"})
	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "offers",
		Name:      "transitions_total",
		Help:      "Offer status transitions by target status.",
	}, []string{"status"})
	reg.MustRegister(reservations, bids, transitions)
	return &EngineMetrics{
		reservations: reservations,
		bids:         bids,
		transitions:  transitions,
	}
}

func (m *EngineMetrics) ObserveReservation(outcome string) {
	if m == nil || m.reservations == nil {
		return
	}
	m.reservations.WithLabelValues(normalizeLabel(outcome)).Inc()
}

func (m *EngineMetrics) ObserveBid(outcome string) {
	if m == nil || m.bids == nil {
		return
	}
	m.bids.WithLabelValues(normalizeLabel(outcome)).Inc()
}

func (m *EngineMetrics) ObserveTransition(status string) {
	if m == nil || m.transitions == nil {
		return
	}
	m.transitions.WithLabelValues(normalizeLabel(status)).Inc()
}
