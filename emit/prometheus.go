package emit

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusMetrics implements Emitter by turning the event vocabulary
// the transport servers, the planner and the vm emit (node_launch/
// node_complete/node_error, rpc_retry, checker_verdict, transfer_bytes, and
// the api/plr/reg/checker _request events) into gauges/histograms/counters
// for in-flight edges, edge latency, edge errors, retries, checker-verdict
// outcomes, transfer bytes, and per-service request counts; other events
// are ignored. It has no queue-depth metric (spec.md
// §2 AMBIENT). It is a second Emitter alongside LogEmitter, not a
// replacement: braned serve can fan events out to both.
type PrometheusMetrics struct {
	InFlightEdges   prometheus.Gauge
	EdgeLatency     prometheus.Histogram
	EdgeErrors      *prometheus.CounterVec
	Retries         prometheus.Counter
	CheckerVerdicts *prometheus.CounterVec
	TransferBytes   prometheus.Counter
	RequestsTotal   *prometheus.CounterVec
}

// NewPrometheusMetrics registers its collectors with reg and returns the
// ready-to-use sink. reg is typically prometheus.DefaultRegisterer, wrapped
// by promhttp.Handler() and served at /metrics.
func NewPrometheusMetrics(reg prometheus.Registerer) *PrometheusMetrics {
	m := &PrometheusMetrics{
		InFlightEdges: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "brane",
			Name:      "inflight_edges",
			Help:      "Node edges currently launched and awaiting completion.",
		}),
		EdgeLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "brane",
			Name:      "edge_latency_seconds",
			Help:      "Wall-clock time a Node edge spends between launch and completion.",
			Buckets:   prometheus.DefBuckets,
		}),
		EdgeErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "brane",
			Name:      "edge_errors_total",
			Help:      "Node edges that ended in node_error, by run.",
		}, []string{"run_id"}),
		Retries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "brane",
			Name:      "rpc_retries_total",
			Help:      "Retries performed by the vm's withRetry around Stage/Launch calls.",
		}),
		CheckerVerdicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "brane",
			Name:      "checker_verdicts_total",
			Help:      "Checker verdicts, by domain and outcome (allow/deny).",
		}, []string{"domain", "outcome"}),
		TransferBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "brane",
			Name:      "transfer_bytes_total",
			Help:      "Bytes moved through reg's stream endpoints.",
		}),
		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "brane",
			Name:      "service_requests_total",
			Help:      "HTTP requests received, by originating service.",
		}, []string{"service"}),
	}
	reg.MustRegister(m.InFlightEdges, m.EdgeLatency, m.EdgeErrors, m.Retries, m.CheckerVerdicts, m.TransferBytes, m.RequestsTotal)
	return m
}

// Emit updates the relevant collector for event, identified by its Msg
// (the same vocabulary vm/, checker/, and transport/* already emit).
func (m *PrometheusMetrics) Emit(event Event) {
	switch event.Msg {
	case "node_launch":
		m.InFlightEdges.Inc()
	case "node_complete":
		m.InFlightEdges.Dec()
	case "node_error":
		m.InFlightEdges.Dec()
		m.EdgeErrors.WithLabelValues(event.RunID).Inc()
	case "rpc_retry":
		m.Retries.Inc()
	case "checker_verdict":
		domain, _ := event.Meta["domain"].(string)
		outcome, _ := event.Meta["outcome"].(string)
		m.CheckerVerdicts.WithLabelValues(domain, outcome).Inc()
	case "transfer_bytes":
		if n, ok := event.Meta["bytes"].(int64); ok {
			m.TransferBytes.Add(float64(n))
		}
	case "api_request":
		m.RequestsTotal.WithLabelValues("api").Inc()
	case "plr_request":
		m.RequestsTotal.WithLabelValues("plr").Inc()
	case "reg_request":
		m.RequestsTotal.WithLabelValues("reg").Inc()
	case "checker_request":
		m.RequestsTotal.WithLabelValues("chk").Inc()
	}
	if d, ok := event.Meta["duration_ms"].(float64); ok && event.Msg == "node_complete" {
		m.EdgeLatency.Observe(d / 1000)
	}
}

// EmitBatch applies Emit to each event in order; Prometheus collectors are
// safe for concurrent use so no batching optimization is needed.
func (m *PrometheusMetrics) EmitBatch(_ context.Context, events []Event) error {
	for _, e := range events {
		m.Emit(e)
	}
	return nil
}

// Flush is a no-op: collectors hold their state until scraped, there is
// nothing to drain on shutdown.
func (m *PrometheusMetrics) Flush(_ context.Context) error { return nil }
