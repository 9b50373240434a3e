package metrics

import (
	"time"

	"order-intake-gateway/internal/core/domain"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "order_intake"

// PipelineMetrics implements ports.PipelineMetrics with Prometheus collectors.
type PipelineMetrics struct {
	attempts        *prometheus.CounterVec
	attemptDuration *prometheus.HistogramVec
	steps           *prometheus.CounterVec
	stepDuration    *prometheus.HistogramVec
}

// NewPipelineMetrics creates the collectors and registers them on reg.
func NewPipelineMetrics(reg prometheus.Registerer) *PipelineMetrics {
	m := &PipelineMetrics{
		attempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhook_attempts_total",
			Help:      "Webhook attempts by platform and outcome",
		}, []string{"platform", "status"}),
		attemptDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "webhook_processing_duration_seconds",
			Help:      "End-to-end webhook processing latency",
			Buckets:   prometheus.DefBuckets,
		}, []string{"platform"}),
		steps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pipeline_steps_total",
			Help:      "Pipeline steps by name and result",
		}, []string{"step", "status"}),
		stepDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "pipeline_step_duration_seconds",
			Help:      "Latency of individual pipeline steps",
			Buckets:   prometheus.DefBuckets,
		}, []string{"step"}),
	}

	reg.MustRegister(m.attempts, m.attemptDuration, m.steps, m.stepDuration)
	return m
}

// ObserveAttempt records a completed webhook attempt.
func (m *PipelineMetrics) ObserveAttempt(platform domain.PlatformType, status domain.AttemptStatus, elapsed time.Duration) {
	m.attempts.WithLabelValues(string(platform), string(status)).Inc()
	m.attemptDuration.WithLabelValues(string(platform)).Observe(elapsed.Seconds())
}

// ObserveStep records a single pipeline step.
func (m *PipelineMetrics) ObserveStep(step string, status domain.StepStatus, elapsed time.Duration) {
	m.steps.WithLabelValues(step, string(status)).Inc()
	m.stepDuration.WithLabelValues(step).Observe(elapsed.Seconds())
}
