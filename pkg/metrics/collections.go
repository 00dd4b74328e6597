package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// CollectionMetrics counts payments reaching a terminal status.
type CollectionMetrics struct {
	terminal *prometheus.CounterVec
	amount   *prometheus.CounterVec
}

// NewCollectionMetrics registers the collection metrics on the provided registerer.
func NewCollectionMetrics(reg prometheus.Registerer) *CollectionMetrics {
	if reg == nil {
		return &CollectionMetrics{}
	}
	terminal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "collections_terminal_total",
		Help: "Payments that reached a terminal status.",
	}, []string{"status"})
	amount := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "collections_amount_total",
		Help: "Sum of amounts of payments that reached a terminal status, in minor units.",
	}, []string{"status", "currency"})
	reg.MustRegister(terminal, amount)
	return &CollectionMetrics{terminal: terminal, amount: amount}
}

// ObserveTerminal records one terminal transition.
func (c *CollectionMetrics) ObserveTerminal(status, currency string, amount int64) {
	if c == nil || c.terminal == nil {
		return
	}
	status = normalizeLabel(status)
	c.terminal.WithLabelValues(status).Inc()
	if amount > 0 {
		c.amount.WithLabelValues(status, normalizeLabel(currency)).Add(float64(amount))
	}
}

func normalizeLabel(v string) string {
	if v == "" {
		return "unknown"
	}
	return v
}
