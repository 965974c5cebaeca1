package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// total tool calls per tool name and resulting envelope status
	ToolCallCount = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "adcp_tool_calls_total",
			Help: "Total AdCP tool invocations",
		},
		[]string{"tool", "status"},
	)

	// tool call latency in seconds per tool
	ToolCallLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "adcp_tool_call_duration_seconds",
			Help:    "Histogram of AdCP tool call latencies",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"tool"},
	)

	// workflow step transitions, labelled by step type and resulting status
	WorkflowStepTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "adcp_workflow_step_transitions_total",
			Help: "Total workflow step status transitions",
		},
		[]string{"step_type", "status"},
	)

	// adapter RPC latency, labelled by adapter type and operation
	AdapterCallLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "adcp_adapter_call_duration_seconds",
			Help:    "Duration of adapter RPCs",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"adapter", "operation"},
	)

	// adapter timeouts, labelled by adapter type and operation
	AdapterTimeouts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "adcp_adapter_timeouts_total",
			Help: "Total adapter RPC timeouts",
		},
		[]string{"adapter", "operation"},
	)

	// media buys created, labelled by resulting status
	MediaBuysCreated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "adcp_media_buys_created_total",
			Help: "Total media buys created, labelled by resulting status",
		},
		[]string{"status"},
	)

	// pricing validation rejections, labelled by reason
	PricingRejections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "adcp_pricing_rejections_total",
			Help: "Total pricing validation rejections",
		},
		[]string{"reason"},
	)

	// webhook delivery outcomes, labelled by scheme and outcome
	WebhookDeliveries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "adcp_webhook_deliveries_total",
			Help: "Total outbound webhook deliveries",
		},
		[]string{"auth_scheme", "outcome"},
	)

	// creative sync outcomes, labelled by per-creative action
	CreativeSyncActions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "adcp_creative_sync_actions_total",
			Help: "Total sync_creatives per-creative actions",
		},
		[]string{"action"},
	)
)

func init() {
	prometheus.MustRegister(
		ToolCallCount,
		ToolCallLatency,
		WorkflowStepTransitions,
		AdapterCallLatency,
		AdapterTimeouts,
		MediaBuysCreated,
		PricingRejections,
		WebhookDeliveries,
		CreativeSyncActions,
	)
}
