package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusRecorder implements Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	throttleTotal *prometheus.CounterVec
	queueWaitTime *prometheus.HistogramVec
	utilization   *prometheus.GaugeVec
}

// NewPrometheusRecorder creates a new Prometheus-based metrics recorder.
func NewPrometheusRecorder() *PrometheusRecorder {
	return &PrometheusRecorder{
		throttleTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "throttle_events_total",
				Help: "Total number of throttling events (queue-full, unknown-rule, strategy waits) by subject and reason",
			},
			[]string{"subject", "reason"},
		),
		queueWaitTime: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "throttle_queue_wait_seconds",
				Help:    "Time a request spent waiting for admission",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"subject"},
		),
		utilization: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "throttle_bucket_utilization",
				Help: "1 - tokens/capacity for a named rate-limit bucket",
			},
			[]string{"subject"},
		),
	}
}

// IncThrottle increments the throttle counter for the given subject/reason pair.
func (p *PrometheusRecorder) IncThrottle(subject, reason string) {
	p.throttleTotal.WithLabelValues(subject, reason).Inc()
}

// ObserveQueueWait records time spent waiting for admission.
func (p *PrometheusRecorder) ObserveQueueWait(subject string, d time.Duration) {
	p.queueWaitTime.WithLabelValues(subject).Observe(d.Seconds())
}

// SetBucketUtilization records current bucket utilization for a subject.
func (p *PrometheusRecorder) SetBucketUtilization(subject string, utilization float64) {
	p.utilization.WithLabelValues(subject).Set(utilization)
}
