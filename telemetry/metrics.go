// Package telemetry provides Prometheus metrics and correlation-id aware logging helpers.
package telemetry

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	once sync.Once

	// Counters
	EventsReceived     prometheus.Counter
	EventsDeduplicated prometheus.Counter
	SourceReconnects   prometheus.Counter
	CommandsParsed     prometheus.Counter
	CommandsRejected   prometheus.Counter
	ApprovalsGranted   prometheus.Counter
	ApprovalsDenied    prometheus.Counter
	ApprovalsTimedOut  prometheus.Counter
	ClipsPlayed        prometheus.Counter
	ClipsFailed        prometheus.Counter
	TokenRefreshes     prometheus.Counter

	// Histograms (seconds)
	PlaybackDuration prometheus.Observer

	// Gauges
	QueueDepthGauge    prometheus.Gauge
	ShoutoutDepthGauge prometheus.Gauge
)

// Init registers metrics (idempotent).
func Init() {
	once.Do(func() {
		EventsReceived = promauto.NewCounter(prometheus.CounterOpts{Name: "clip_events_received_total", Help: "Raw events received from all sources"})
		EventsDeduplicated = promauto.NewCounter(prometheus.CounterOpts{Name: "clip_events_deduplicated_total", Help: "Events dropped as cross-source duplicates"})
		SourceReconnects = promauto.NewCounter(prometheus.CounterOpts{Name: "clip_source_reconnects_total", Help: "Event source reconnect attempts"})
		CommandsParsed = promauto.NewCounter(prometheus.CounterOpts{Name: "clip_commands_parsed_total", Help: "Chat commands recognized by the router"})
		CommandsRejected = promauto.NewCounter(prometheus.CounterOpts{Name: "clip_commands_rejected_total", Help: "Commands rejected by permission or parse checks"})
		ApprovalsGranted = promauto.NewCounter(prometheus.CounterOpts{Name: "clip_approvals_granted_total", Help: "Search requests approved by a moderator"})
		ApprovalsDenied = promauto.NewCounter(prometheus.CounterOpts{Name: "clip_approvals_denied_total", Help: "Search requests denied by a moderator"})
		ApprovalsTimedOut = promauto.NewCounter(prometheus.CounterOpts{Name: "clip_approvals_timed_out_total", Help: "Search requests that timed out awaiting approval"})
		ClipsPlayed = promauto.NewCounter(prometheus.CounterOpts{Name: "clip_playbacks_total", Help: "Clips played to completion"})
		ClipsFailed = promauto.NewCounter(prometheus.CounterOpts{Name: "clip_playback_failures_total", Help: "Playback workflows aborted by device failures"})
		TokenRefreshes = promauto.NewCounter(prometheus.CounterOpts{Name: "clip_token_refreshes_total", Help: "OAuth token refresh attempts"})
		PlaybackDuration = promauto.NewHistogram(prometheus.HistogramOpts{Name: "clip_playback_duration_seconds", Help: "Wall time of one playback workflow", Buckets: prometheus.DefBuckets})
		QueueDepthGauge = promauto.NewGauge(prometheus.GaugeOpts{Name: "clip_queue_depth", Help: "Clips waiting in the regular queue"})
		ShoutoutDepthGauge = promauto.NewGauge(prometheus.GaugeOpts{Name: "clip_shoutout_queue_depth", Help: "Clips waiting in the shoutout queue"})
	})
}

// SetQueueDepths records current queue sizes.
func SetQueueDepths(regular, shoutout int) {
	if QueueDepthGauge != nil {
		QueueDepthGauge.Set(float64(regular))
	}
	if ShoutoutDepthGauge != nil {
		ShoutoutDepthGauge.Set(float64(shoutout))
	}
}

// TimeFunc measures the duration of fn and records in observer if non-nil.
func TimeFunc(obs prometheus.Observer, fn func()) time.Duration {
	start := time.Now()
	fn()
	d := time.Since(start)
	if obs != nil {
		obs.Observe(d.Seconds())
	}
	return d
}

// Correlation ID helpers ----------------------------------------------------
type corrKeyType struct{}

var corrKey corrKeyType

// WithCorrelation returns a new context embedding correlation id (if absent) and the id.
func WithCorrelation(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, corrKey, id)
}

// GetCorrelation returns correlation id or empty string.
func GetCorrelation(ctx context.Context) string {
	v := ctx.Value(corrKey)
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

// LoggerWithCorr returns a logger with corr attribute if present.
func LoggerWithCorr(ctx context.Context) *slog.Logger {
	if id := GetCorrelation(ctx); id != "" {
		return slog.Default().With(slog.String("corr", id))
	}
	return slog.Default()
}
