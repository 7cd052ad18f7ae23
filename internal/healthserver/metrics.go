/*
SPDX-FileCopyrightText: Red Hat

SPDX-License-Identifier: Apache-2.0
*/

package healthserver

import "github.com/prometheus/client_golang/prometheus"

// BusinessMetrics holds the domain counters/histograms exposed on /metrics, beyond the generic
// per-endpoint HTTP metrics recorded by metrics.HandlerWrapperBuilder.
type BusinessMetrics struct {
	RenewalsDispatched     *prometheus.CounterVec
	ChargesByOutcome       *prometheus.CounterVec
	LedgerDrainBatchSize   prometheus.Histogram
	NotificationPublishErr prometheus.Counter
	FallbackQueueDepth     prometheus.Gauge
}

// NewBusinessMetrics registers and returns the business metrics on registerer.
func NewBusinessMetrics(registerer prometheus.Registerer) *BusinessMetrics {
	m := &BusinessMetrics{
		RenewalsDispatched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Subsystem: "dcb",
			Name:      "renewals_dispatched_total",
			Help:      "Number of renewal jobs enqueued by the dispatcher, by operator.",
		}, []string{"operator"}),
		ChargesByOutcome: prometheus.NewCounterVec(prometheus.CounterOpts{
			Subsystem: "dcb",
			Name:      "charges_total",
			Help:      "Number of gateway charge attempts, by operator and outcome.",
		}, []string{"operator", "outcome"}),
		LedgerDrainBatchSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Subsystem: "dcb",
			Name:      "ledger_drain_batch_size",
			Help:      "Number of outcomes processed per result-consumer tick.",
			Buckets:   []float64{0, 1, 10, 50, 100, 250},
		}),
		NotificationPublishErr: prometheus.NewCounter(prometheus.CounterOpts{
			Subsystem: "dcb",
			Name:      "notification_publish_failures_total",
			Help:      "Number of notification publishes that fell back to the fallback KV.",
		}),
		FallbackQueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Subsystem: "dcb",
			Name:      "fallback_queue_depth",
			Help:      "Number of notifications currently pending in the fallback KV.",
		}),
	}

	registerer.MustRegister(
		m.RenewalsDispatched,
		m.ChargesByOutcome,
		m.LedgerDrainBatchSize,
		m.NotificationPublishErr,
		m.FallbackQueueDepth,
	)
	return m
}

// ObserveDispatch implements dispatcher.DispatchMetrics.
func (m *BusinessMetrics) ObserveDispatch(operator string) {
	m.RenewalsDispatched.WithLabelValues(operator).Inc()
}

// ObserveCharge implements worker.ChargeMetrics.
func (m *BusinessMetrics) ObserveCharge(operator, outcome string) {
	m.ChargesByOutcome.WithLabelValues(operator, outcome).Inc()
}

// ObserveDrainBatch implements consumer.DrainMetrics.
func (m *BusinessMetrics) ObserveDrainBatch(size int) {
	m.LedgerDrainBatchSize.Observe(float64(size))
}

// ObservePublishFailure implements consumer.DrainMetrics.
func (m *BusinessMetrics) ObservePublishFailure() {
	m.NotificationPublishErr.Inc()
}

// SetFallbackDepth implements retrier.FallbackMetrics.
func (m *BusinessMetrics) SetFallbackDepth(n int) {
	m.FallbackQueueDepth.Set(float64(n))
}
