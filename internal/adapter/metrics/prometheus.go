package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PurchaseMetrics records purchase outcomes and latency.
type PurchaseMetrics struct {
	total    *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

func NewPurchaseMetrics(reg prometheus.Registerer) *PurchaseMetrics {
	m := &PurchaseMetrics{
		total: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "flashsale",
			Name:      "purchase_total",
			Help:      "Purchase attempts by outcome.",
		}, []string{"outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "flashsale",
			Name:      "purchase_duration_seconds",
			Help:      "Purchase latency by outcome.",
			Buckets:   []float64{.001, .0025, .005, .01, .025, .05, .1, .25, .5, 1},
		}, []string{"outcome"}),
	}
	reg.MustRegister(m.total, m.duration)
	return m
}

func (m *PurchaseMetrics) ObservePurchase(outcome string, elapsed time.Duration) {
	m.total.WithLabelValues(outcome).Inc()
	m.duration.WithLabelValues(outcome).Observe(elapsed.Seconds())
}
