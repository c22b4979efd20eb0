package telemetry

import (
	"strconv"
	"time"

	"github.com/ahalansari/deep-search/config"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Telemetry records backend call and session metrics. A nil *Telemetry is
// valid and records nothing.
type Telemetry struct {
	searches          *prometheus.CounterVec
	searchLatency     prometheus.Histogram
	searchResults     prometheus.Histogram
	completions       *prometheus.CounterVec
	completionLatency prometheus.Histogram
	verdicts          *prometheus.CounterVec
	sessions          *prometheus.CounterVec
	sessionRounds     prometheus.Histogram
	sessionResults    prometheus.Histogram
	sessionDuration   prometheus.Histogram
	progressDropped   prometheus.Counter
}

// NewTelemetry registers the collectors on reg. It returns nil when telemetry
// is disabled.
func NewTelemetry(cfg config.TelemetryConfig, reg prometheus.Registerer) *Telemetry {
	if !cfg.Enabled {
		return nil
	}
	ns := cfg.Namespace
	if ns == "" {
		ns = "deepsearch"
	}
	f := promauto.With(reg)
	return &Telemetry{
		searches: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Name: "search_requests_total",
			Help: "Search backend calls by outcome.",
		}, []string{"outcome"}),
		searchLatency: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: ns, Name: "search_duration_seconds",
			Help:    "Search backend latency.",
			Buckets: prometheus.DefBuckets,
		}),
		searchResults: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: ns, Name: "search_results",
			Help:    "Results returned per search call after truncation.",
			Buckets: prometheus.LinearBuckets(0, 2, 8),
		}),
		completions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Name: "completion_requests_total",
			Help: "Completion backend calls by outcome.",
		}, []string{"outcome"}),
		completionLatency: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: ns, Name: "completion_duration_seconds",
			Help:    "Completion backend latency.",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 20, 40, 60, 120},
		}),
		verdicts: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Name: "judge_verdicts_total",
			Help: "Judge verdicts by source and decision.",
		}, []string{"source", "complete"}),
		sessions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Name: "sessions_total",
			Help: "Finished sessions by outcome.",
		}, []string{"outcome"}),
		sessionRounds: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: ns, Name: "session_rounds",
			Help:    "Search rounds executed per session.",
			Buckets: prometheus.LinearBuckets(1, 1, 8),
		}),
		sessionResults: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: ns, Name: "session_results",
			Help:    "Accumulated unique results per session.",
			Buckets: prometheus.LinearBuckets(0, 5, 10),
		}),
		sessionDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: ns, Name: "session_duration_seconds",
			Help:    "Wall time per session.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 9),
		}),
		progressDropped: f.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Name: "progress_dropped_total",
			Help: "Progress messages dropped because a consumer was slow or gone.",
		}),
	}
}

func outcome(degraded bool) string {
	if degraded {
		return "degraded"
	}
	return "ok"
}

// RecordSearch records one search round-trip.
func (t *Telemetry) RecordSearch(degraded bool, results int, took time.Duration) {
	if t == nil {
		return
	}
	t.searches.WithLabelValues(outcome(degraded)).Inc()
	t.searchLatency.Observe(took.Seconds())
	t.searchResults.Observe(float64(results))
}

// RecordCompletion records one completion round-trip.
func (t *Telemetry) RecordCompletion(degraded bool, took time.Duration) {
	if t == nil {
		return
	}
	t.completions.WithLabelValues(outcome(degraded)).Inc()
	t.completionLatency.Observe(took.Seconds())
}

// RecordVerdict counts judge decisions.
func (t *Telemetry) RecordVerdict(source string, complete bool) {
	if t == nil {
		return
	}
	t.verdicts.WithLabelValues(source, strconv.FormatBool(complete)).Inc()
}

// RecordSession records a finished session.
func (t *Telemetry) RecordSession(outcome string, rounds, results int, took time.Duration) {
	if t == nil {
		return
	}
	t.sessions.WithLabelValues(outcome).Inc()
	t.sessionRounds.Observe(float64(rounds))
	t.sessionResults.Observe(float64(results))
	t.sessionDuration.Observe(took.Seconds())
}

// ProgressDropped counts a progress message that could not be delivered.
func (t *Telemetry) ProgressDropped() {
	if t == nil {
		return
	}
	t.progressDropped.Inc()
}
