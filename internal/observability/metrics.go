// Package observability collects the Prometheus metrics exposed at
// /metrics: counters for analysis run outcomes, a histogram for
// metric-kernel latency, and a gauge for active sessions. Grounded on
// r3e-network-service_layer/infrastructure/metrics/metrics.go's
// NewWithRegistry pattern: a plain struct of collectors, built and
// registered against an explicit prometheus.Registerer rather than the
// package-global default, and recorded by calling the collectors'
// own Inc/Dec/Observe methods directly.
package observability

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds every collector the portfolio analysis service exports.
type Metrics struct {
	RunsStarted    prometheus.Counter
	RunsCompleted  prometheus.Counter
	RunsCancelled  prometheus.Counter
	RunsAborted    prometheus.Counter
	KernelDuration *prometheus.HistogramVec
	ActiveSessions prometheus.Gauge
}

// New builds a Metrics and registers its collectors, plus the standard Go
// and process collectors, against registerer.
func New(registerer prometheus.Registerer) *Metrics {
	m := &Metrics{
		RunsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "analysis_runs_started_total",
			Help: "Total number of analysis runs started via begin_analysis.",
		}),
		RunsCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "analysis_runs_completed_total",
			Help: "Total number of analysis runs that persisted and emitted all five metrics.",
		}),
		RunsCancelled: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "analysis_runs_cancelled_total",
			Help: "Total number of analysis runs cancelled by a ticker switch or session teardown.",
		}),
		RunsAborted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "analysis_runs_aborted_total",
			Help: "Total number of analysis runs aborted by a state error in the document store.",
		}),
		KernelDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "metric_kernel_duration_seconds",
				Help:    "Time spent computing and persisting one metric kernel result.",
				Buckets: []float64{.25, .5, 1, 1.5, 2, 2.5, 3, 4, 5, 7.5, 10},
			},
			[]string{"metric"},
		),
		ActiveSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "active_sessions",
			Help: "Current number of live WebSocket sessions held by the Session Registry.",
		}),
	}

	if registerer != nil {
		registerer.MustRegister(
			prometheus.NewGoCollector(),
			prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
			m.RunsStarted,
			m.RunsCompleted,
			m.RunsCancelled,
			m.RunsAborted,
			m.KernelDuration,
			m.ActiveSessions,
		)
	}

	return m
}
