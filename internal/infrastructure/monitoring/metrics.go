package monitoring

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "gazeflow"

// Metrics holds all Prometheus metrics.
type Metrics struct {
	registry  *prometheus.Registry
	startTime time.Time

	// Stream metrics
	StreamFPS        *prometheus.GaugeVec
	StreamPackets    *prometheus.CounterVec
	StreamCrashes    *prometheus.CounterVec
	PipelineDuration *prometheus.HistogramVec
	StreamsRunning   prometheus.Gauge

	// Routing metrics
	NotificationsRouted *prometheus.CounterVec
	ProcessDropped      *prometheus.CounterVec

	// Calibration metrics
	CalibrationRuns *prometheus.CounterVec

	// API metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	WSConnections   prometheus.Gauge
}

// NewMetrics creates a metrics set on a fresh registry, including Go
// runtime and process collectors.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	m := &Metrics{
		registry:  reg,
		startTime: time.Now(),

		StreamFPS: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "stream_fps",
				Help:      "Running mean frame rate per stream",
			},
			[]string{"stream"},
		),
		StreamPackets: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "stream_packets_total",
				Help:      "Packets processed per stream",
			},
			[]string{"stream"},
		),
		StreamCrashes: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "stream_crashes_total",
				Help:      "Stream workers that terminated with an exception",
			},
			[]string{"stream"},
		),
		PipelineDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "pipeline_duration_seconds",
				Help:      "Time from packet creation to resolved pipeline output",
				Buckets:   []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25, .5, 1},
			},
			[]string{"stream"},
		),
		StreamsRunning: f.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "manager_streams_running",
				Help:      "Streams whose last status reports running",
			},
		),
		NotificationsRouted: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "notifications_routed_total",
				Help:      "Cross-stream notifications delivered by the manager",
			},
			[]string{"source", "destination"},
		),
		ProcessDropped: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "process_dropped_total",
				Help:      "Step submissions rejected by a saturated worker pool",
			},
			[]string{"stream", "step"},
		),
		CalibrationRuns: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "calibration_runs_total",
				Help:      "Calibration computations by method and outcome",
			},
			[]string{"method", "outcome"},
		),
		RequestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
			},
			[]string{"method", "path"},
		),
		WSConnections: f.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "ws_connections",
				Help:      "Number of active WebSocket connections",
			},
		),
	}

	f.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "uptime_seconds",
			Help:      "Seconds since the metrics set was created",
		},
		func() float64 { return time.Since(m.startTime).Seconds() },
	)

	return m
}

// Registry returns the private registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.HandlerFor(prometheus.NewRegistry(), promhttp.HandlerOpts{})
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// SetFPS records a stream's running frame rate.
func (m *Metrics) SetFPS(stream string, fps float64) {
	if m == nil {
		return
	}
	m.StreamFPS.WithLabelValues(stream).Set(fps)
}

// ObservePacket counts a processed packet and its pipeline latency.
func (m *Metrics) ObservePacket(stream string, d time.Duration) {
	if m == nil {
		return
	}
	m.StreamPackets.WithLabelValues(stream).Inc()
	m.PipelineDuration.WithLabelValues(stream).Observe(d.Seconds())
}

// IncCrash counts a stream worker crash.
func (m *Metrics) IncCrash(stream string) {
	if m == nil {
		return
	}
	m.StreamCrashes.WithLabelValues(stream).Inc()
}

// SetStreamsRunning records how many streams report running.
func (m *Metrics) SetStreamsRunning(n int) {
	if m == nil {
		return
	}
	m.StreamsRunning.Set(float64(n))
}

// IncRouted counts one routed notification.
func (m *Metrics) IncRouted(source, destination string) {
	if m == nil {
		return
	}
	m.NotificationsRouted.WithLabelValues(source, destination).Inc()
}

// IncDropped counts a step submission dropped by backpressure.
func (m *Metrics) IncDropped(stream, step string) {
	if m == nil {
		return
	}
	m.ProcessDropped.WithLabelValues(stream, step).Inc()
}

// IncCalibration counts a calibration computation.
func (m *Metrics) IncCalibration(method, outcome string) {
	if m == nil {
		return
	}
	if method == "" {
		method = "unknown"
	}
	m.CalibrationRuns.WithLabelValues(method, outcome).Inc()
}

// RecordHTTPRequest records one API request.
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(method, path, status).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// IncWSConnections tracks an opened WebSocket.
func (m *Metrics) IncWSConnections() {
	if m == nil {
		return
	}
	m.WSConnections.Inc()
}

// DecWSConnections tracks a closed WebSocket.
func (m *Metrics) DecWSConnections() {
	if m == nil {
		return
	}
	m.WSConnections.Dec()
}
