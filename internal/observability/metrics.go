// Package observability provides Prometheus metrics and logger construction.
package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
// Record methods are safe to call on a nil *Metrics.
type Metrics struct {
	// Ingestion metrics
	PollCycles         *prometheus.CounterVec
	PollDuration       *prometheus.HistogramVec
	SignaturesScanned  *prometheus.CounterVec
	FetchErrors        *prometheus.CounterVec
	EventsClassified   *prometheus.CounterVec
	EventsDropped      *prometheus.CounterVec
	FailedSignatures   *prometheus.CounterVec
	CursorSlot         *prometheus.GaugeVec
	LastSuccessfulPoll *prometheus.GaugeVec

	// Registry metrics
	TokensRegistered *prometheus.CounterVec

	// Ledger metrics
	EventsApplied  *prometheus.CounterVec
	EventsRejected *prometheus.CounterVec
	ApplyLatency   prometheus.Histogram

	// Price refresh metrics
	PriceRefreshes      *prometheus.CounterVec
	PositionsRefreshed  prometheus.Counter
	PriceRefreshLatency prometheus.Histogram

	// Latency metrics
	RPCCallLatency *prometheus.HistogramVec

	// Health metrics
	SourcesRunning prometheus.Gauge
	WorkerRestarts *prometheus.CounterVec
}

// NewMetrics creates a new Metrics instance registered with reg.
// A nil reg registers with the default Prometheus registry.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	if namespace == "" {
		namespace = "wallet_ledger"
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)

	return &Metrics{
		// Ingestion metrics
		PollCycles: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "poll_cycles_total",
			Help:      "Total number of poll cycles by source and result",
		}, []string{"source", "result"}),
		PollDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "poll_duration_seconds",
			Help:      "Poll cycle duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"source"}),
		SignaturesScanned: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "signatures_scanned_total",
			Help:      "Total number of new signatures scanned",
		}, []string{"source"}),
		FetchErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "fetch_errors_total",
			Help:      "Total number of failed transaction detail fetches",
		}, []string{"source"}),
		EventsClassified: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "events_classified_total",
			Help:      "Total number of classified events by kind",
		}, []string{"source", "kind"}),
		EventsDropped: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "events_dropped_total",
			Help:      "Total number of dropped transactions or events by reason",
		}, []string{"source", "reason"}),
		FailedSignatures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "failed_signatures_total",
			Help:      "Failed signature queue transitions by outcome",
		}, []string{"source", "outcome"}),
		CursorSlot: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "cursor_slot",
			Help:      "Slot watermark of the signature cursor",
		}, []string{"source"}),
		LastSuccessfulPoll: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_successful_poll_timestamp",
			Help:      "Unix timestamp of the last successful poll cycle",
		}, []string{"source"}),

		// Registry metrics
		TokensRegistered: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "registry",
			Name:      "tokens_registered_total",
			Help:      "Total number of new tokens registered by source",
		}, []string{"source"}),

		// Ledger metrics
		EventsApplied: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "events_applied_total",
			Help:      "Total number of ledger events applied by side",
		}, []string{"side"}),
		EventsRejected: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "events_rejected_total",
			Help:      "Total number of ledger events refused by reason",
		}, []string{"reason"}),
		ApplyLatency: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "apply_latency_seconds",
			Help:      "Latency of one atomic ledger apply",
			Buckets:   prometheus.DefBuckets,
		}),

		// Price refresh metrics
		PriceRefreshes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pricefeed",
			Name:      "refreshes_total",
			Help:      "Total number of unrealized P&L refresh runs by status",
		}, []string{"status"}),
		PositionsRefreshed: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pricefeed",
			Name:      "positions_refreshed_total",
			Help:      "Total number of positions marked to market",
		}),
		PriceRefreshLatency: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pricefeed",
			Name:      "refresh_duration_seconds",
			Help:      "Unrealized P&L refresh duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 5, 10, 30, 60},
		}),

		// Latency metrics
		RPCCallLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "solana",
			Name:      "rpc_call_latency_seconds",
			Help:      "Solana RPC call latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),

		// Health metrics
		SourcesRunning: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "sources_running",
			Help:      "Number of source workers currently running",
		}),
		WorkerRestarts: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "worker_restarts_total",
			Help:      "Total number of source worker restarts after a panic",
		}, []string{"source"}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
// A nil gatherer serves the default Prometheus registry.
func Handler(g prometheus.Gatherer) http.Handler {
	if g == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// RecordPoll records one poll cycle of source.
func (m *Metrics) RecordPoll(source string, d time.Duration, err error) {
	if m == nil {
		return
	}
	m.PollDuration.WithLabelValues(source).Observe(d.Seconds())
	if err != nil {
		m.PollCycles.WithLabelValues(source, "error").Inc()
		return
	}
	m.PollCycles.WithLabelValues(source, "success").Inc()
	m.LastSuccessfulPoll.WithLabelValues(source).SetToCurrentTime()
}

// RecordScanned adds n scanned signatures for source.
func (m *Metrics) RecordScanned(source string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.SignaturesScanned.WithLabelValues(source).Add(float64(n))
}

// RecordFetchError records a failed transaction detail fetch.
func (m *Metrics) RecordFetchError(source string) {
	if m == nil {
		return
	}
	m.FetchErrors.WithLabelValues(source).Inc()
}

// RecordClassified records one classified event of kind creation, buy or sell.
func (m *Metrics) RecordClassified(source, kind string) {
	if m == nil {
		return
	}
	m.EventsClassified.WithLabelValues(source, kind).Inc()
}

// RecordDropped records a transaction or event dropped for reason.
func (m *Metrics) RecordDropped(source, reason string) {
	if m == nil {
		return
	}
	m.EventsDropped.WithLabelValues(source, reason).Inc()
}

// RecordFailedSignature records a retry queue transition (queued, resolved, retried, exhausted).
func (m *Metrics) RecordFailedSignature(source, outcome string) {
	if m == nil {
		return
	}
	m.FailedSignatures.WithLabelValues(source, outcome).Inc()
}

// UpdateCursor sets the cursor slot gauge of source.
func (m *Metrics) UpdateCursor(source string, slot int64) {
	if m == nil {
		return
	}
	m.CursorSlot.WithLabelValues(source).Set(float64(slot))
}

// RecordTokenRegistered records a newly registered token.
func (m *Metrics) RecordTokenRegistered(source string) {
	if m == nil {
		return
	}
	m.TokensRegistered.WithLabelValues(source).Inc()
}

// RecordApplied records an applied ledger event.
func (m *Metrics) RecordApplied(side string, d time.Duration) {
	if m == nil {
		return
	}
	m.EventsApplied.WithLabelValues(side).Inc()
	m.ApplyLatency.Observe(d.Seconds())
}

// RecordRejected records a ledger event refused for reason.
func (m *Metrics) RecordRejected(reason string) {
	if m == nil {
		return
	}
	m.EventsRejected.WithLabelValues(reason).Inc()
}

// RecordPriceRefresh records one unrealized P&L refresh run.
func (m *Metrics) RecordPriceRefresh(positions int, d time.Duration, err error) {
	if m == nil {
		return
	}
	m.PriceRefreshLatency.Observe(d.Seconds())
	m.PositionsRefreshed.Add(float64(positions))
	if err != nil {
		m.PriceRefreshes.WithLabelValues("error").Inc()
		return
	}
	m.PriceRefreshes.WithLabelValues("success").Inc()
}

// RecordRPCLatency records RPC call latency.
func (m *Metrics) RecordRPCLatency(method string, d time.Duration) {
	if m == nil {
		return
	}
	m.RPCCallLatency.WithLabelValues(method).Observe(d.Seconds())
}

// SetSourcesRunning sets the number of running source workers.
func (m *Metrics) SetSourcesRunning(n int) {
	if m == nil {
		return
	}
	m.SourcesRunning.Set(float64(n))
}

// RecordWorkerRestart records a worker restart after a panic.
func (m *Metrics) RecordWorkerRestart(source string) {
	if m == nil {
		return
	}
	m.WorkerRestarts.WithLabelValues(source).Inc()
}
