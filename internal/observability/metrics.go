package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "lightning"

// Metrics holds the Prometheus counters, histograms, and gauges for the strike poller.
type Metrics struct {
	PollerRunning prometheus.Gauge
	Ticks         *prometheus.CounterVec // labels: fetch={initial,incremental}, outcome={success,error,discarded}
	TicksSkipped  prometheus.Counter
	TickDuration  prometheus.Histogram

	// RPC client metrics.
	RPCRequests *prometheus.CounterVec   // labels: method, outcome={success,error}
	RPCErrors   *prometheus.CounterVec   // labels: method, kind={transport,empty,malformed,network}
	RPCDuration *prometheus.HistogramVec // labels: method

	// Decode and window metrics.
	StrikesDecoded  prometheus.Counter
	RowsSkipped     prometheus.Counter
	DecodeErrors    prometheus.Counter
	StrikesAdded    prometheus.Counter
	StrikesEvicted  prometheus.Counter
	WindowSize      prometheus.Gauge
	RegionFailures  *prometheus.CounterVec // labels: region
	SchemeFallbacks prometheus.Counter

	// Publisher metrics.
	Published       *prometheus.CounterVec // labels: publisher
	PublishErrors   *prometheus.CounterVec // labels: publisher
	LiveSubscribers prometheus.Gauge
}

// NewMetrics creates and registers all poller metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.PollerRunning,
		m.Ticks,
		m.TicksSkipped,
		m.TickDuration,
		m.RPCRequests,
		m.RPCErrors,
		m.RPCDuration,
		m.StrikesDecoded,
		m.RowsSkipped,
		m.DecodeErrors,
		m.StrikesAdded,
		m.StrikesEvicted,
		m.WindowSize,
		m.RegionFailures,
		m.SchemeFallbacks,
		m.Published,
		m.PublishErrors,
		m.LiveSubscribers,
	)
	return m
}

// NewMetricsForTesting creates unregistered Metrics to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		PollerRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "poller_running",
			Help:      "1 when the poller is active, 0 when shut down.",
		}),
		Ticks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ticks_total",
			Help:      "Poll ticks by fetch kind and outcome.",
		}, []string{"fetch", "outcome"}),
		TicksSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ticks_skipped_total",
			Help:      "Ticks skipped because the previous tick was still in flight.",
		}),
		TickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tick_duration_seconds",
			Help:      "Duration of a complete fetch-decode-merge cycle.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
		RPCRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rpc_requests_total",
			Help:      "JSON-RPC requests by method and outcome.",
		}, []string{"method", "outcome"}),
		RPCErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rpc_errors_total",
			Help:      "JSON-RPC failures by method and error kind.",
		}, []string{"method", "kind"}),
		RPCDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "rpc_duration_seconds",
			Help:      "JSON-RPC request duration in seconds.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"method"}),
		StrikesDecoded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "strikes_decoded_total",
			Help:      "Strikes decoded from RPC responses.",
		}),
		RowsSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_skipped_total",
			Help:      "Response rows dropped because they did not match the row shape.",
		}),
		DecodeErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decode_errors_total",
			Help:      "Batches discarded because of an unparseable reference time.",
		}),
		StrikesAdded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "strikes_added_total",
			Help:      "Strikes newly added to the window.",
		}),
		StrikesEvicted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "strikes_evicted_total",
			Help:      "Strikes evicted from the window by age, cap, or replacement.",
		}),
		WindowSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "window_size",
			Help:      "Strikes currently held in the window.",
		}),
		RegionFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "region_failures_total",
			Help:      "Failed per-region grid requests during fan-out.",
		}, []string{"region"}),
		SchemeFallbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scheme_fallbacks_total",
			Help:      "Fan-outs re-issued over https after an empty http result.",
		}),
		Published: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "strikes_published_total",
			Help:      "Strikes handed to a publisher.",
		}, []string{"publisher"}),
		PublishErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "publish_errors_total",
			Help:      "Publisher failures.",
		}, []string{"publisher"}),
		LiveSubscribers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "live_subscribers",
			Help:      "Connected WebSocket live feed clients.",
		}),
	}
}
