package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics stores Prometheus collectors used across the service.
type Metrics struct {
	InboundEvents    *prometheus.CounterVec
	OutgoingMessages *prometheus.CounterVec
	LedgerRequests   *prometheus.CounterVec
	LedgerLatency    *prometheus.HistogramVec
	Transfers        *prometheus.CounterVec
	LockWait         prometheus.Histogram
	Errors           *prometheus.CounterVec
}

var (
	regOnce         sync.Once
	metricsInstance *Metrics
)

// Registry builds and registers the metrics singleton with optional namespace.
func Registry(namespace string) *Metrics {
	regOnce.Do(func() {
		metricsInstance = &Metrics{
			InboundEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "inbound_events_total",
				Help:      "Total inbound chat events by platform and kind.",
			}, []string{"platform", "kind"}),
			OutgoingMessages: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "outgoing_messages_total",
				Help:      "Total outgoing chat messages sent.",
			}, []string{"platform", "target"}),
			LedgerRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "ledger_requests_total",
				Help:      "Total ledger node RPC calls by action and status.",
			}, []string{"action", "status"}),
			LedgerLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "ledger_request_duration_seconds",
				Help:      "Latency distribution for ledger node RPC calls.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"action", "status"}),
			Transfers: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "transfers_total",
				Help:      "Transfers by kind (tip, withdraw) and result (sent, failed, duplicate).",
			}, []string{"kind", "result"}),
			LockWait: prometheus.NewHistogram(prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "account_lock_wait_seconds",
				Help:      "Time spent waiting for the per-account exclusive section.",
				Buckets:   prometheus.DefBuckets,
			}),
			Errors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_total",
				Help:      "Total errors grouped by component.",
			}, []string{"component"}),
		}

		prometheus.MustRegister(
			metricsInstance.InboundEvents,
			metricsInstance.OutgoingMessages,
			metricsInstance.LedgerRequests,
			metricsInstance.LedgerLatency,
			metricsInstance.Transfers,
			metricsInstance.LockWait,
			metricsInstance.Errors,
		)
	})
	return metricsInstance
}
