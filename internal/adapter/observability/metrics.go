package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the pipeline's Prometheus collectors.
type Metrics struct {
	CandidatesProcessed *prometheus.CounterVec
	AIProviderCalls     *prometheus.CounterVec
	AIProviderLatency   *prometheus.HistogramVec
	RetryQueueDepth     prometheus.Gauge
	InboundEmails       *prometheus.CounterVec
	NotificationsSent   *prometheus.CounterVec
	CycleDuration       prometheus.Histogram
}

// NewMetrics registers the collectors on reg and returns them.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		CandidatesProcessed: f.NewCounterVec(prometheus.CounterOpts{
			Name: "hireloop_candidates_processed_total",
			Help: "Workflow handler invocations by status and outcome.",
		}, []string{"status", "outcome"}),
		AIProviderCalls: f.NewCounterVec(prometheus.CounterOpts{
			Name: "hireloop_ai_provider_calls_total",
			Help: "AI provider calls by provider and outcome.",
		}, []string{"provider", "outcome"}),
		AIProviderLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "hireloop_ai_provider_latency_seconds",
			Help:    "AI provider call latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"provider"}),
		RetryQueueDepth: f.NewGauge(prometheus.GaugeOpts{
			Name: "hireloop_retry_queue_depth",
			Help: "Items currently waiting in the notification retry queue.",
		}),
		InboundEmails: f.NewCounterVec(prometheus.CounterOpts{
			Name: "hireloop_inbound_emails_total",
			Help: "Inbound emails by classified intent.",
		}, []string{"intent"}),
		NotificationsSent: f.NewCounterVec(prometheus.CounterOpts{
			Name: "hireloop_notifications_sent_total",
			Help: "Outbound notifications by channel and outcome.",
		}, []string{"channel", "outcome"}),
		CycleDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "hireloop_cycle_duration_seconds",
			Help:    "Background cycle wall time.",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300},
		}),
	}
}
