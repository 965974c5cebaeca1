package observability

import "time"

// MetricsRegistry provides an interface for recording application metrics.
// This replaces direct access to global Prometheus metrics with dependency injection.
type MetricsRegistry interface {
	// Tool call metrics
	IncrementToolCalls(tool, status string)
	RecordToolCallLatency(tool string, duration time.Duration)

	// Workflow step metrics
	IncrementWorkflowStepTransition(stepType, status string)

	// Adapter call metrics
	RecordAdapterCallLatency(adapter, operation string, duration time.Duration)
	IncrementAdapterTimeouts(adapter, operation string)

	// Media buy metrics
	IncrementMediaBuysCreated(status string)

	// Pricing metrics
	IncrementPricingRejections(reason string)

	// Webhook delivery metrics
	IncrementWebhookDeliveries(authScheme, outcome string)

	// Creative sync metrics
	IncrementCreativeSyncActions(action string)
}

// PrometheusRegistry implements MetricsRegistry using the package-level Prometheus metrics.
type PrometheusRegistry struct{}

// NewPrometheusRegistry creates a new PrometheusRegistry.
func NewPrometheusRegistry() *PrometheusRegistry {
	return &PrometheusRegistry{}
}

func (r *PrometheusRegistry) IncrementToolCalls(tool, status string) {
	ToolCallCount.WithLabelValues(tool, status).Inc()
}

func (r *PrometheusRegistry) RecordToolCallLatency(tool string, duration time.Duration) {
	ToolCallLatency.WithLabelValues(tool).Observe(duration.Seconds())
}

func (r *PrometheusRegistry) IncrementWorkflowStepTransition(stepType, status string) {
	WorkflowStepTransitions.WithLabelValues(stepType, status).Inc()
}

func (r *PrometheusRegistry) RecordAdapterCallLatency(adapter, operation string, duration time.Duration) {
	AdapterCallLatency.WithLabelValues(adapter, operation).Observe(duration.Seconds())
}

func (r *PrometheusRegistry) IncrementAdapterTimeouts(adapter, operation string) {
	AdapterTimeouts.WithLabelValues(adapter, operation).Inc()
}

func (r *PrometheusRegistry) IncrementMediaBuysCreated(status string) {
	MediaBuysCreated.WithLabelValues(status).Inc()
}

func (r *PrometheusRegistry) IncrementPricingRejections(reason string) {
	PricingRejections.WithLabelValues(reason).Inc()
}

func (r *PrometheusRegistry) IncrementWebhookDeliveries(authScheme, outcome string) {
	WebhookDeliveries.WithLabelValues(authScheme, outcome).Inc()
}

func (r *PrometheusRegistry) IncrementCreativeSyncActions(action string) {
	CreativeSyncActions.WithLabelValues(action).Inc()
}

// NoOpRegistry implements MetricsRegistry with no-op methods, for tests.
type NoOpRegistry struct{}

// NewNoOpRegistry creates a new NoOpRegistry.
func NewNoOpRegistry() *NoOpRegistry {
	return &NoOpRegistry{}
}

func (r *NoOpRegistry) IncrementToolCalls(tool, status string)                                      {}
func (r *NoOpRegistry) RecordToolCallLatency(tool string, duration time.Duration)                    {}
func (r *NoOpRegistry) IncrementWorkflowStepTransition(stepType, status string)                       {}
func (r *NoOpRegistry) RecordAdapterCallLatency(adapter, operation string, duration time.Duration)    {}
func (r *NoOpRegistry) IncrementAdapterTimeouts(adapter, operation string)                            {}
func (r *NoOpRegistry) IncrementMediaBuysCreated(status string)                                       {}
func (r *NoOpRegistry) IncrementPricingRejections(reason string)                                      {}
func (r *NoOpRegistry) IncrementWebhookDeliveries(authScheme, outcome string)                          {}
func (r *NoOpRegistry) IncrementCreativeSyncActions(action string)                                    {}
