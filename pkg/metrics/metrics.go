package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus instruments
type Metrics struct {
	// Session metrics
	ActiveSessions  prometheus.Gauge
	SessionsStarted prometheus.Counter
	SessionDuration prometheus.Histogram

	// Signaling metrics
	SignalingMessages *prometheus.CounterVec
	ProtocolErrors    prometheus.Counter

	// Frame metrics
	FramesSent     prometheus.Counter
	FramesReceived prometheus.Counter
	FramesDropped  *prometheus.CounterVec
	FrameBytes     prometheus.Histogram
	FramesAnalyzed prometheus.Counter
	AnalysisMisses prometheus.Counter

	// Tracking metrics
	TrackingError    prometheus.Histogram
	FeedbackSent     prometheus.Counter
	FeedbackReceived prometheus.Counter
	FeedbackRejected prometheus.Counter

	// Render metrics
	SnapshotsWritten prometheus.Counter
	RenderFailures   prometheus.Counter

	// HTTP metrics
	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec
}

// New creates and registers all metrics on the default registry
func New() *Metrics {
	return NewWith(prometheus.DefaultRegisterer)
}

// NewWith creates all metrics on the given registry
func NewWith(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	m := &Metrics{
		// Session metrics
		ActiveSessions: factory.NewGauge(prometheus.GaugeOpts{
			Name: "chromatrack_active_sessions",
			Help: "Number of currently running streaming sessions",
		}),
		SessionsStarted: factory.NewCounter(prometheus.CounterOpts{
			Name: "chromatrack_sessions_started_total",
			Help: "Total number of sessions started",
		}),
		SessionDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "chromatrack_session_duration_seconds",
			Help:    "Duration of completed sessions in seconds",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12), // 1s to ~1.1h
		}),

		// Signaling metrics
		SignalingMessages: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chromatrack_signaling_messages_total",
				Help: "Total signaling messages by direction and type",
			},
			[]string{"direction", "type"},
		),
		ProtocolErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "chromatrack_signaling_protocol_errors_total",
			Help: "Total signaling messages discarded as protocol errors",
		}),

		// Frame metrics
		FramesSent: factory.NewCounter(prometheus.CounterOpts{
			Name: "chromatrack_frames_sent_total",
			Help: "Total frames sent to the peer",
		}),
		FramesReceived: factory.NewCounter(prometheus.CounterOpts{
			Name: "chromatrack_frames_received_total",
			Help: "Total frames received from the peer",
		}),
		FramesDropped: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chromatrack_frames_dropped_total",
				Help: "Total frames dropped before analysis",
			},
			[]string{"reason"},
		),
		FrameBytes: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "chromatrack_frame_size_bytes",
			Help:    "Size of transported frames in bytes",
			Buckets: prometheus.ExponentialBuckets(65536, 2, 8), // 64KB to ~8MB
		}),
		FramesAnalyzed: factory.NewCounter(prometheus.CounterOpts{
			Name: "chromatrack_frames_analyzed_total",
			Help: "Total frames run through color segmentation",
		}),
		AnalysisMisses: factory.NewCounter(prometheus.CounterOpts{
			Name: "chromatrack_analysis_misses_total",
			Help: "Total analyzed frames with no detectable target",
		}),

		// Tracking metrics
		TrackingError: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "chromatrack_tracking_error_pixels",
			Help:    "Euclidean distance between estimate and ground truth",
			Buckets: []float64{1, 2, 4, 8, 16, 32, 64, 128},
		}),
		FeedbackSent: factory.NewCounter(prometheus.CounterOpts{
			Name: "chromatrack_feedback_sent_total",
			Help: "Total coordinate estimates sent back to the sender",
		}),
		FeedbackReceived: factory.NewCounter(prometheus.CounterOpts{
			Name: "chromatrack_feedback_received_total",
			Help: "Total feedback messages accepted",
		}),
		FeedbackRejected: factory.NewCounter(prometheus.CounterOpts{
			Name: "chromatrack_feedback_rejected_total",
			Help: "Total feedback messages rejected by the parser",
		}),

		// Render metrics
		SnapshotsWritten: factory.NewCounter(prometheus.CounterOpts{
			Name: "chromatrack_snapshots_written_total",
			Help: "Total rendered snapshot files written",
		}),
		RenderFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "chromatrack_render_failures_total",
			Help: "Total snapshot renders that failed",
		}),

		// HTTP metrics
		HTTPRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chromatrack_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "chromatrack_http_request_duration_seconds",
				Help:    "Duration of HTTP requests",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
	}

	return m
}

// RecordSessionStart records a session starting
func (m *Metrics) RecordSessionStart() {
	m.ActiveSessions.Inc()
	m.SessionsStarted.Inc()
}

// RecordSessionStop records a session ending
func (m *Metrics) RecordSessionStop(durationSeconds float64) {
	m.ActiveSessions.Dec()
	m.SessionDuration.Observe(durationSeconds)
}

// RecordSignalingMessage records one signaling message moving through
func (m *Metrics) RecordSignalingMessage(direction, msgType string) {
	m.SignalingMessages.WithLabelValues(direction, msgType).Inc()
}

// RecordProtocolError records a discarded signaling message
func (m *Metrics) RecordProtocolError() {
	m.ProtocolErrors.Inc()
}

// RecordFrameSent records an outbound frame
func (m *Metrics) RecordFrameSent(sizeBytes int) {
	m.FramesSent.Inc()
	m.FrameBytes.Observe(float64(sizeBytes))
}

// RecordFrameReceived records an inbound frame
func (m *Metrics) RecordFrameReceived() {
	m.FramesReceived.Inc()
}

// RecordFrameDropped records a frame dropped before analysis
func (m *Metrics) RecordFrameDropped(reason string) {
	m.FramesDropped.WithLabelValues(reason).Inc()
}

// RecordFrameAnalyzed records one segmentation pass
func (m *Metrics) RecordFrameAnalyzed(missed bool) {
	m.FramesAnalyzed.Inc()
	if missed {
		m.AnalysisMisses.Inc()
	}
}

// RecordTrackingError records one estimate-vs-truth distance
func (m *Metrics) RecordTrackingError(pixels float64) {
	m.TrackingError.Observe(pixels)
}

// RecordFeedbackSent records an estimate sent to the peer
func (m *Metrics) RecordFeedbackSent() {
	m.FeedbackSent.Inc()
}

// RecordFeedbackResult records a feedback message parse outcome
func (m *Metrics) RecordFeedbackResult(accepted bool) {
	if accepted {
		m.FeedbackReceived.Inc()
	} else {
		m.FeedbackRejected.Inc()
	}
}

// RecordSnapshot records a snapshot written to disk
func (m *Metrics) RecordSnapshot() {
	m.SnapshotsWritten.Inc()
}

// RecordRenderFailure records a failed snapshot render
func (m *Metrics) RecordRenderFailure() {
	m.RenderFailures.Inc()
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, path string, status int, durationSeconds float64) {
	m.HTTPRequests.WithLabelValues(method, path, statusCodeToString(status)).Inc()
	m.HTTPDuration.WithLabelValues(method, path).Observe(durationSeconds)
}

func statusCodeToString(code int) string {
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500:
		return "5xx"
	default:
		return "unknown"
	}
}
