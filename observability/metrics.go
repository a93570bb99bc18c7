package observability

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	fundingdOnce     sync.Once
	fundingdRegistry *FundingdMetrics
)

// FundingdMetrics exposes Prometheus collectors for the reconciliation loop.
type FundingdMetrics struct {
	ticks       *prometheus.CounterVec
	tickLatency prometheus.Histogram
	deposits    prometheus.Counter
	transitions *prometheus.CounterVec
	provider    *prometheus.CounterVec
	ledger      prometheus.Counter
}

// Fundingd returns the lazily-initialised metrics registry shared by the
// daemon.
func Fundingd() *FundingdMetrics {
	fundingdOnce.Do(func() {
		fundingdRegistry = &FundingdMetrics{
			ticks: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "fundingd",
				Subsystem: "reconciler",
				Name:      "ticks_total",
				Help:      "Reconciliation passes segmented by trigger and outcome.",
			}, []string{"trigger", "outcome"}),
			tickLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
				Namespace: "fundingd",
				Subsystem: "reconciler",
				Name:      "tick_duration_seconds",
				Help:      "Latency distribution for full reconciliation passes.",
				Buckets:   prometheus.DefBuckets,
			}),
			deposits: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "fundingd",
				Subsystem: "reconciler",
				Name:      "deposits_examined_total",
				Help:      "Deposits examined across all reconciliation passes.",
			}),
			transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "fundingd",
				Subsystem: "reconciler",
				Name:      "transitions_total",
				Help:      "Oracle writes issued against the ledger segmented by transition.",
			}, []string{"transition"}),
			provider: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "fundingd",
				Subsystem: "provider",
				Name:      "errors_total",
				Help:      "Quote provider call failures segmented by classification.",
			}, []string{"class"}),
			ledger: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "fundingd",
				Subsystem: "ledger",
				Name:      "errors_total",
				Help:      "Ledger RPC failures observed by the reconciler.",
			}),
		}
		prometheus.MustRegister(
			fundingdRegistry.ticks,
			fundingdRegistry.tickLatency,
			fundingdRegistry.deposits,
			fundingdRegistry.transitions,
			fundingdRegistry.provider,
			fundingdRegistry.ledger,
		)
	})
	return fundingdRegistry
}

// ObserveTick records one completed reconciliation pass.
func (m *FundingdMetrics) ObserveTick(trigger, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.ticks.WithLabelValues(trigger, outcome).Inc()
	m.tickLatency.Observe(elapsed.Seconds())
}

// RecordDepositExamined counts a deposit visited within a pass.
func (m *FundingdMetrics) RecordDepositExamined() {
	if m == nil {
		return
	}
	m.deposits.Inc()
}

// RecordTransition counts an oracle write by transition name.
func (m *FundingdMetrics) RecordTransition(transition string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(transition).Inc()
}

// RecordProviderError counts a provider failure by classification.
func (m *FundingdMetrics) RecordProviderError(class string) {
	if m == nil {
		return
	}
	m.provider.WithLabelValues(class).Inc()
}

// RecordLedgerError counts a ledger RPC failure.
func (m *FundingdMetrics) RecordLedgerError() {
	if m == nil {
		return
	}
	m.ledger.Inc()
}
