// SPDX-License-Identifier: MIT

package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
)

// Attribute keys shared across spans.
const (
	SessionIDKey     = "session.id"
	SessionEventKey  = "session.event"
	SessionReasonKey = "session.close_reason"

	DecisionCommandKey    = "decision.command"
	DecisionConfidenceKey = "decision.confidence"
	DecisionStabilityKey  = "decision.stability"

	ToolNameKey = "tool.name"

	ErrorKey     = "error"
	ErrorTypeKey = "error.type"
)

// SessionAttributes creates session-scoped span attributes. Only the
// opaque session ID is attached, never learner identifiers.
func SessionAttributes(sessionID, event string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(SessionIDKey, sessionID),
		attribute.String(SessionEventKey, event),
	}
}

// DecisionAttributes creates decision-scoped span attributes.
func DecisionAttributes(command string, confidence, stability float64) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(DecisionCommandKey, command),
		attribute.Float64(DecisionConfidenceKey, confidence),
		attribute.Float64(DecisionStabilityKey, stability),
	}
}

// ToolAttributes creates tool-invocation span attributes.
func ToolAttributes(tool string) []attribute.KeyValue {
	return []attribute.KeyValue{attribute.String(ToolNameKey, tool)}
}

// ErrorAttributes marks a span as failed with a stable error type.
func ErrorAttributes(errorType string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Bool(ErrorKey, true),
		attribute.String(ErrorTypeKey, errorType),
	}
}
