// Package metrics счётчики Prometheus для платёжного конвейера.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "billing"

// Metrics коллекторы сервиса.
type Metrics struct {
	reconcileTotal *prometheus.CounterVec
	securityAlerts prometheus.Counter
	intentsTotal   *prometheus.CounterVec
	sweepDuration  prometheus.Histogram
	sweepItems     *prometheus.CounterVec
}

// New создаёт и регистрирует коллекторы в reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		reconcileTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconcile_total",
			Help:      "Reconciliation attempts by entry point and outcome.",
		}, []string{"source", "outcome"}),
		securityAlerts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "security_alerts_total",
			Help:      "Payments rejected because the paid amount differs from the expected one.",
		}),
		intentsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payment_intents_total",
			Help:      "Payment intents by purchase type and result.",
		}, []string{"type", "result"}),
		sweepDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "sweep_duration_seconds",
			Help:      "Duration of the pending payments sweep.",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 10),
		}),
		sweepItems: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sweep_items_total",
			Help:      "Transactions handled by the sweep, by result.",
		}, []string{"result"}),
	}
	reg.MustRegister(m.reconcileTotal, m.securityAlerts, m.intentsTotal, m.sweepDuration, m.sweepItems)
	return m
}

// ObserveReconcile учитывает одну попытку сверки.
func (m *Metrics) ObserveReconcile(source, outcome string) {
	m.reconcileTotal.WithLabelValues(source, outcome).Inc()
}

// SecurityAlert учитывает расхождение суммы.
func (m *Metrics) SecurityAlert() {
	m.securityAlerts.Inc()
}

// ObserveIntent учитывает попытку создать платёж.
func (m *Metrics) ObserveIntent(purchaseType, result string) {
	m.intentsTotal.WithLabelValues(purchaseType, result).Inc()
}

// ObserveSweep учитывает один проход фоновой сверки.
func (m *Metrics) ObserveSweep(d time.Duration, activated, failed, skipped int) {
	m.sweepDuration.Observe(d.Seconds())
	m.sweepItems.WithLabelValues("activated").Add(float64(activated))
	m.sweepItems.WithLabelValues("failed").Add(float64(failed))
	m.sweepItems.WithLabelValues("skipped").Add(float64(skipped))
}
