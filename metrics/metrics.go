package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "transcriber"

// Metrics contains all Prometheus metrics for the recorder. A nil *Metrics
// is valid and records nothing.
type Metrics struct {
	// Session metrics
	SessionsStarted prometheus.Counter
	SessionsFailed  prometheus.Counter
	ActiveSessions  prometheus.Gauge
	SessionDuration prometheus.Histogram

	// Outbound audio metrics
	FramesSent  prometheus.Counter
	FramesMuted prometheus.Counter
	BytesSent   prometheus.Counter

	// Inbound message metrics
	MessagesReceived *prometheus.CounterVec
	ProtocolErrors   prometheus.Counter
	RemoteErrors     prometheus.Counter

	// Enrollment metrics
	Enrollments *prometheus.CounterVec

	// HTTP API metrics
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

// New creates all metrics and registers them on reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		SessionsStarted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_started_total",
			Help:      "Total number of recording sessions that reached streaming",
		}),
		SessionsFailed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_failed_total",
			Help:      "Total number of recording sessions that ended with an error",
		}),
		ActiveSessions: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_sessions",
			Help:      "Current number of active recording sessions",
		}),
		SessionDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "session_duration_seconds",
			Help:      "Duration of recording sessions in seconds",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 14), // 1s to ~4.5 hours
		}),

		FramesSent: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_frames_sent_total",
			Help:      "Total number of PCM frames sent, muted frames included",
		}),
		FramesMuted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_frames_muted_total",
			Help:      "Total number of PCM frames sent as silence",
		}),
		BytesSent: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_bytes_sent_total",
			Help:      "Total number of PCM bytes sent",
		}),

		MessagesReceived: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_received_total",
			Help:      "Total number of inbound recognition messages by kind",
		}, []string{"kind"}),
		ProtocolErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "protocol_errors_total",
			Help:      "Total number of inbound payloads that could not be decoded",
		}),
		RemoteErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "remote_errors_total",
			Help:      "Total number of error messages sent by the recognition service",
		}),

		Enrollments: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "enrollments_total",
			Help:      "Total number of speaker enrollments by result",
		}, []string{"result"}),

		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		}, []string{"method", "endpoint", "status_code"}),
		HTTPRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Duration of HTTP requests",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "endpoint"}),
	}
}

// RecordSessionStarted marks a session as streaming
func (m *Metrics) RecordSessionStarted() {
	if m == nil {
		return
	}
	m.SessionsStarted.Inc()
	m.ActiveSessions.Inc()
}

// RecordSessionEnded records the end of a streaming session
func (m *Metrics) RecordSessionEnded(durationSeconds float64, failed bool) {
	if m == nil {
		return
	}
	m.ActiveSessions.Dec()
	m.SessionDuration.Observe(durationSeconds)
	if failed {
		m.SessionsFailed.Inc()
	}
}

// RecordSessionFailedToStart records a session that never reached streaming
func (m *Metrics) RecordSessionFailedToStart() {
	if m == nil {
		return
	}
	m.SessionsFailed.Inc()
}

// RecordFrameSent records one outbound PCM frame
func (m *Metrics) RecordFrameSent(sizeBytes int, muted bool) {
	if m == nil {
		return
	}
	m.FramesSent.Inc()
	m.BytesSent.Add(float64(sizeBytes))
	if muted {
		m.FramesMuted.Inc()
	}
}

// RecordMessage records one decoded inbound message
func (m *Metrics) RecordMessage(kind string) {
	if m == nil {
		return
	}
	m.MessagesReceived.WithLabelValues(kind).Inc()
}

// RecordProtocolError increments the protocol errors counter
func (m *Metrics) RecordProtocolError() {
	if m == nil {
		return
	}
	m.ProtocolErrors.Inc()
}

// RecordRemoteError increments the remote errors counter
func (m *Metrics) RecordRemoteError() {
	if m == nil {
		return
	}
	m.RemoteErrors.Inc()
}

// RecordEnrollment records an enrollment outcome ("success" or "failure")
func (m *Metrics) RecordEnrollment(result string) {
	if m == nil {
		return
	}
	m.Enrollments.WithLabelValues(result).Inc()
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, endpoint string, statusCode int, durationSeconds float64) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(method, endpoint, strconv.Itoa(statusCode)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(durationSeconds)
}
