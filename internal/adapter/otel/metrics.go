package otel

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "fatturaflow"

// Metrics holds all workflow engine metric instruments.
type Metrics struct {
	WorkflowsStarted   metric.Int64Counter
	WorkflowsCompleted metric.Int64Counter
	WorkflowsFailed    metric.Int64Counter
	WorkflowsSuspended metric.Int64Counter
	AgentInvocations   metric.Int64Counter
	CacheHits          metric.Int64Counter
	WorkflowDuration   metric.Float64Histogram
}

// NewMetrics creates all metric instruments.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(meterName)
	m := &Metrics{}
	var err error

	m.WorkflowsStarted, err = meter.Int64Counter("fatturaflow.workflows.started",
		metric.WithDescription("Number of workflow runs started"))
	if err != nil {
		return nil, err
	}

	m.WorkflowsCompleted, err = meter.Int64Counter("fatturaflow.workflows.completed",
		metric.WithDescription("Number of workflow runs completed"))
	if err != nil {
		return nil, err
	}

	m.WorkflowsFailed, err = meter.Int64Counter("fatturaflow.workflows.failed",
		metric.WithDescription("Number of workflow runs failed"))
	if err != nil {
		return nil, err
	}

	m.WorkflowsSuspended, err = meter.Int64Counter("fatturaflow.workflows.suspended",
		metric.WithDescription("Number of workflow runs suspended pending review"))
	if err != nil {
		return nil, err
	}

	m.AgentInvocations, err = meter.Int64Counter("fatturaflow.agent.invocations",
		metric.WithDescription("Number of agent invocations"))
	if err != nil {
		return nil, err
	}

	m.CacheHits, err = meter.Int64Counter("fatturaflow.cache.hits",
		metric.WithDescription("Number of agent-result cache hits"))
	if err != nil {
		return nil, err
	}

	m.WorkflowDuration, err = meter.Float64Histogram("fatturaflow.workflow.duration_seconds",
		metric.WithDescription("Workflow run duration in seconds"))
	if err != nil {
		return nil, err
	}

	return m, nil
}
