package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "fatturaflow"

// StartWorkflowSpan starts a span covering one workflow run.
func StartWorkflowSpan(ctx context.Context, workflowID, correlationID string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "workflow",
		trace.WithAttributes(
			attribute.String("workflow.id", workflowID),
			attribute.String("workflow.correlation_id", correlationID),
		),
	)
}

// StartAgentSpan starts a span for a single agent invocation.
func StartAgentSpan(ctx context.Context, workflowID, agentType string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "agent.invoke",
		trace.WithAttributes(
			attribute.String("workflow.id", workflowID),
			attribute.String("agent.type", agentType),
		),
	)
}

// StartComplianceSpan starts a span for one compliance check stage.
func StartComplianceSpan(ctx context.Context, invoiceID, stage string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "compliance."+stage,
		trace.WithAttributes(
			attribute.String("invoice.id", invoiceID),
		),
	)
}
