// Package observability provides ADMO-specific instrumentation helpers.
package observability

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// ADMO-specific semantic convention attributes.
var (
	// Federate / handshake attributes
	AttrFederateID     = attribute.Key("admo.federate.id")
	AttrHandshakeState = attribute.Key("admo.handshake.state")
	AttrHandshakeStep  = attribute.Key("admo.handshake.step")
	AttrCorrelationID  = attribute.Key("admo.correlation.id")

	// Belief / conflict attributes
	AttrSubjectKey  = attribute.Key("admo.belief.subject_key")
	AttrBeliefValue = attribute.Key("admo.belief.value")
	AttrConflictKey = attribute.Key("admo.conflict.key")

	// Arbitration / approval attributes
	AttrArbitrationID = attribute.Key("admo.arbitration.id")
	AttrApprovalID    = attribute.Key("admo.approval.id")
	AttrGateDecision  = attribute.Key("admo.gate.decision")
	AttrGateLatencyMs = attribute.Key("admo.gate.latency_ms")

	// Containment attributes
	AttrContainmentSubject = attribute.Key("admo.containment.subject_id")
	AttrContainmentScope   = attribute.Key("admo.containment.scope_type")
	AttrContainmentApplied = attribute.Key("admo.containment.applied")
)

// HandshakeOperation creates attributes for a federation handshake
// state transition.
func HandshakeOperation(federateID, state, step, correlationID string) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrFederateID.String(federateID),
		AttrHandshakeState.String(state),
		AttrHandshakeStep.String(step),
		AttrCorrelationID.String(correlationID),
	}
}

// BeliefOperation creates attributes for a belief-derivation or
// conflict-detection event.
func BeliefOperation(subjectKey, value, conflictKey string) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrSubjectKey.String(subjectKey),
		AttrBeliefValue.String(value),
		AttrConflictKey.String(conflictKey),
	}
}

// GateOperation creates attributes for a safety-gate evaluation.
func GateOperation(arbitrationID, decision string, latencyMs float64) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrArbitrationID.String(arbitrationID),
		AttrGateDecision.String(decision),
		AttrGateLatencyMs.Float64(latencyMs),
	}
}

// ContainmentOperation creates attributes for an identity-containment
// apply/revert event.
func ContainmentOperation(subjectID, scopeType string, applied bool) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrContainmentSubject.String(subjectID),
		AttrContainmentScope.String(scopeType),
		AttrContainmentApplied.Bool(applied),
	}
}

// SpanFromContext extracts the span from context.
func SpanFromContext(ctx context.Context) trace.Span {
	return trace.SpanFromContext(ctx)
}

// AddSpanEvent adds an event to the current span.
func AddSpanEvent(ctx context.Context, name string, attrs ...attribute.KeyValue) {
	span := trace.SpanFromContext(ctx)
	span.AddEvent(name, trace.WithAttributes(attrs...))
}

// SetSpanStatus records err, if any, on the current span.
func SetSpanStatus(ctx context.Context, err error) {
	span := trace.SpanFromContext(ctx)
	if err != nil {
		span.RecordError(err)
	}
}
