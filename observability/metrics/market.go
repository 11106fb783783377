package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

type MarketMetrics struct {
	transitions  *prometheus.CounterVec
	settledValue *prometheus.CounterVec
	openListings *prometheus.GaugeVec
}

var (
	marketOnce     sync.Once
	marketRegistry *MarketMetrics
)

func Market() *MarketMetrics {
	marketOnce.Do(func() {
		marketRegistry = &MarketMetrics{
			transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "market_transitions_total",
				Help: "Count of listing transitions by operation and outcome.",
			}, []string{"op", "outcome"}),
			settledValue: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "market_settled_value_total",
				Help: "Cumulative value settled through listings by kind.",
			}, []string{"kind"}),
			openListings: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Name: "market_open_listings",
				Help: "Number of currently open listings by kind.",
			}, []string{"kind"}),
		}
		prometheus.MustRegister(
			marketRegistry.transitions,
			marketRegistry.settledValue,
			marketRegistry.openListings,
		)
	})
	return marketRegistry
}

func (m *MarketMetrics) ObserveTransition(op string, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.transitions.WithLabelValues(op, outcome).Inc()
}

func (m *MarketMetrics) ObserveSettledValue(kind string, amount float64) {
	if m == nil {
		return
	}
	if kind == "" {
		kind = "unknown"
	}
	m.settledValue.WithLabelValues(kind).Add(amount)
}

func (m *MarketMetrics) ListingOpened(kind string) {
	if m == nil {
		return
	}
	m.openListings.WithLabelValues(kind).Inc()
}

func (m *MarketMetrics) ListingClosed(kind string) {
	if m == nil {
		return
	}
	m.openListings.WithLabelValues(kind).Dec()
}
