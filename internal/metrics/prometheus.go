package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the capture pipeline. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	// Capture metrics
	RecordingsStarted  prometheus.Counter
	RecordingsStopped  prometheus.Counter
	RecordingDuration  prometheus.Histogram
	ContainerSize      prometheus.Histogram
	RecordingActive    prometheus.Gauge
	SessionsSuperseded prometheus.Counter

	// Transcode metrics
	ExtractDuration prometheus.Histogram
	EncodeDuration  prometheus.Histogram
	EncodedSize     prometheus.Histogram
	BlocksEncoded   prometheus.Counter
	StaleResults    *prometheus.CounterVec

	// Remote service metrics
	Uploads        *prometheus.CounterVec
	UploadDuration prometheus.Histogram
	ReportFetches  *prometheus.CounterVec

	// Operation failures by error kind
	OperationErrors *prometheus.CounterVec

	// Artifact handles
	HandlesIssued  *prometheus.CounterVec
	HandlesRevoked prometheus.Counter

	// HTTP API metrics
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPErrors          *prometheus.CounterVec
}

// NewMetrics creates all metrics and registers them with reg. A nil reg uses
// the default registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)

	return &Metrics{
		RecordingsStarted: f.NewCounter(prometheus.CounterOpts{
			Name: "speechcoach_recordings_started_total",
			Help: "Total number of recordings started",
		}),
		RecordingsStopped: f.NewCounter(prometheus.CounterOpts{
			Name: "speechcoach_recordings_stopped_total",
			Help: "Total number of recordings stopped",
		}),
		RecordingDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "speechcoach_recording_duration_seconds",
			Help:    "Duration of recordings in seconds",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10), // 1s to ~17 minutes
		}),
		ContainerSize: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "speechcoach_container_size_bytes",
			Help:    "Size of recorded raw containers in bytes",
			Buckets: prometheus.ExponentialBuckets(64*1024, 2, 12), // 64KB to ~128MB
		}),
		RecordingActive: f.NewGauge(prometheus.GaugeOpts{
			Name: "speechcoach_recording_active",
			Help: "1 while a recording is in progress",
		}),
		SessionsSuperseded: f.NewCounter(prometheus.CounterOpts{
			Name: "speechcoach_sessions_superseded_total",
			Help: "Total number of times a new recording discarded the previous artifacts",
		}),

		ExtractDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "speechcoach_extract_duration_seconds",
			Help:    "Time spent decoding the audio track of a container",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms to ~20s
		}),
		EncodeDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "speechcoach_encode_duration_seconds",
			Help:    "Time spent compressing PCM audio",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		}),
		EncodedSize: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "speechcoach_encoded_audio_size_bytes",
			Help:    "Size of compressed audio artifacts in bytes",
			Buckets: prometheus.ExponentialBuckets(16*1024, 2, 12), // 16KB to ~32MB
		}),
		BlocksEncoded: f.NewCounter(prometheus.CounterOpts{
			Name: "speechcoach_blocks_encoded_total",
			Help: "Total number of 1152-sample blocks fed to the encoder",
		}),
		StaleResults: f.NewCounterVec(prometheus.CounterOpts{
			Name: "speechcoach_stale_results_total",
			Help: "Stage results discarded because a newer recording started",
		}, []string{"stage"}),

		Uploads: f.NewCounterVec(prometheus.CounterOpts{
			Name: "speechcoach_uploads_total",
			Help: "Total number of uploads by outcome",
		}, []string{"outcome"}),
		UploadDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "speechcoach_upload_duration_seconds",
			Help:    "Duration of upload requests",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10), // 100ms to ~50s
		}),
		ReportFetches: f.NewCounterVec(prometheus.CounterOpts{
			Name: "speechcoach_report_fetches_total",
			Help: "Total number of report fetches by outcome",
		}, []string{"outcome"}),

		OperationErrors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "speechcoach_operation_errors_total",
			Help: "Failed session operations by operation and error kind",
		}, []string{"operation", "kind"}),

		HandlesIssued: f.NewCounterVec(prometheus.CounterOpts{
			Name: "speechcoach_handles_issued_total",
			Help: "Ephemeral artifact handles issued",
		}, []string{"kind", "purpose"}),
		HandlesRevoked: f.NewCounter(prometheus.CounterOpts{
			Name: "speechcoach_handles_revoked_total",
			Help: "Ephemeral artifact handles revoked by supersession",
		}),

		HTTPRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "speechcoach_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "endpoint", "status_code"}),
		HTTPRequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "speechcoach_http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "endpoint"}),
		HTTPErrors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "speechcoach_http_errors_total",
			Help: "Total number of HTTP errors",
		}, []string{"method", "endpoint", "error_type"}),
	}
}

func outcome(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}

// RecordRecordingStarted marks a recording as active
func (m *Metrics) RecordRecordingStarted(superseded bool) {
	if m == nil {
		return
	}
	m.RecordingsStarted.Inc()
	m.RecordingActive.Set(1)
	if superseded {
		m.SessionsSuperseded.Inc()
	}
}

// RecordRecordingStopped records a finished recording
func (m *Metrics) RecordRecordingStopped(durationSeconds float64, sizeBytes int) {
	if m == nil {
		return
	}
	m.RecordingsStopped.Inc()
	m.RecordingActive.Set(0)
	m.RecordingDuration.Observe(durationSeconds)
	m.ContainerSize.Observe(float64(sizeBytes))
}

// RecordExtract records the time spent decoding a container
func (m *Metrics) RecordExtract(durationSeconds float64) {
	if m == nil {
		return
	}
	m.ExtractDuration.Observe(durationSeconds)
}

// RecordEncode records one encode call
func (m *Metrics) RecordEncode(durationSeconds float64, blocks, sizeBytes int) {
	if m == nil {
		return
	}
	m.EncodeDuration.Observe(durationSeconds)
	m.BlocksEncoded.Add(float64(blocks))
	m.EncodedSize.Observe(float64(sizeBytes))
}

// RecordStaleResult counts a stage result dropped by the generation guard
func (m *Metrics) RecordStaleResult(stage string) {
	if m == nil {
		return
	}
	m.StaleResults.WithLabelValues(stage).Inc()
}

// RecordUpload records an upload attempt
func (m *Metrics) RecordUpload(ok bool, durationSeconds float64) {
	if m == nil {
		return
	}
	m.Uploads.WithLabelValues(outcome(ok)).Inc()
	m.UploadDuration.Observe(durationSeconds)
}

// RecordReportFetch records a report fetch attempt
func (m *Metrics) RecordReportFetch(ok bool) {
	if m == nil {
		return
	}
	m.ReportFetches.WithLabelValues(outcome(ok)).Inc()
}

// RecordOperationError counts a failed session operation
func (m *Metrics) RecordOperationError(operation, kind string) {
	if m == nil {
		return
	}
	m.OperationErrors.WithLabelValues(operation, kind).Inc()
}

// RecordHandleIssued counts an issued artifact handle
func (m *Metrics) RecordHandleIssued(kind, purpose string) {
	if m == nil {
		return
	}
	m.HandlesIssued.WithLabelValues(kind, purpose).Inc()
}

// RecordHandlesRevoked counts handles revoked in bulk
func (m *Metrics) RecordHandlesRevoked(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.HandlesRevoked.Add(float64(n))
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, endpoint, statusCode string, durationSeconds float64) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(method, endpoint, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(durationSeconds)
}

// RecordHTTPError records an HTTP error
func (m *Metrics) RecordHTTPError(method, endpoint, errorType string) {
	if m == nil {
		return
	}
	m.HTTPErrors.WithLabelValues(method, endpoint, errorType).Inc()
}
