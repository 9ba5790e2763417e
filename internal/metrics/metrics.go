// ABOUTME: Prometheus metrics for the ingest server
// ABOUTME: Counters and gauges for sessions, streams and observer fan-out
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "micstream"

// Metrics contains all collectors. Each instance owns a private registry so
// tests and multiple servers in one process do not collide.
type Metrics struct {
	registry *prometheus.Registry

	// Connection metrics
	ActiveSessions  prometheus.Gauge
	ActiveObservers prometheus.Gauge
	ActiveProducers prometheus.Gauge
	Connections     *prometheus.CounterVec

	// Stream metrics
	FramesReceived   prometheus.Counter
	BytesWritten     prometheus.Counter
	StreamsStarted   prometheus.Counter
	StreamsFinalized prometheus.Counter
	StreamBytes      prometheus.Histogram
	WriteFailures    prometheus.Counter

	// Fan-out metrics
	BroadcastDrops *prometheus.CounterVec
	Notifications  prometheus.Counter

	// Offline uploads
	Uploads *prometheus.CounterVec
}

// New creates and registers all metrics
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		ActiveSessions: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_sessions",
			Help:      "Current number of open WebSocket connections",
		}),
		ActiveObservers: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_observers",
			Help:      "Current number of registered dashboard observers",
		}),
		ActiveProducers: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_producers",
			Help:      "Current number of live streams being recorded",
		}),
		Connections: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connections_total",
			Help:      "Total number of connections by final mode",
		}, []string{"mode"}),

		FramesReceived: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_received_total",
			Help:      "Total number of audio frames written to live containers",
		}),
		BytesWritten: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bytes_written_total",
			Help:      "Total number of PCM bytes written to live containers",
		}),
		StreamsStarted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "streams_started_total",
			Help:      "Total number of live streams started",
		}),
		StreamsFinalized: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "streams_finalized_total",
			Help:      "Total number of live stream containers finalized",
		}),
		StreamBytes: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stream_size_bytes",
			Help:      "Size of finalized live stream data regions",
			Buckets:   prometheus.ExponentialBuckets(32000, 4, 8), // 1s .. ~4.5h at 16kHz/16-bit
		}),
		WriteFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "write_failures_total",
			Help:      "Total number of sessions aborted by container write or finalize errors",
		}),

		BroadcastDrops: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "broadcast_drops_total",
			Help:      "Total number of frames an observer did not accept",
		}, []string{"kind"}),
		Notifications: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Total number of stream completion notifications sent",
		}),

		Uploads: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "uploads_total",
			Help:      "Total number of offline recording uploads by result",
		}, []string{"result"}),
	}
}

// Registry returns the registry backing these metrics
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the metrics in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
