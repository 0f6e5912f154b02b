// SPDX-License-Identifier: MIT

package telemetry

import (
	"testing"

	"go.opentelemetry.io/otel/attribute"
)

func verifyAttribute(t *testing.T, attrs []attribute.KeyValue, key, want string) {
	t.Helper()
	for _, a := range attrs {
		if string(a.Key) == key {
			if got := a.Value.Emit(); got != want {
				t.Errorf("attribute %s = %q, want %q", key, got, want)
			}
			return
		}
	}
	t.Errorf("attribute %s missing", key)
}

func TestSessionAttributes(t *testing.T) {
	attrs := SessionAttributes("sess-1", "practice")
	if len(attrs) != 2 {
		t.Fatalf("expected 2 attributes, got %d", len(attrs))
	}
	verifyAttribute(t, attrs, SessionIDKey, "sess-1")
	verifyAttribute(t, attrs, SessionEventKey, "practice")
}

func TestDecisionAttributes(t *testing.T) {
	attrs := DecisionAttributes("advance_event", 0.9, 0.8)
	if len(attrs) != 3 {
		t.Fatalf("expected 3 attributes, got %d", len(attrs))
	}
	verifyAttribute(t, attrs, DecisionCommandKey, "advance_event")
}

func TestErrorAttributes(t *testing.T) {
	attrs := ErrorAttributes("numeric_fault")
	if len(attrs) != 2 {
		t.Fatalf("expected 2 attributes, got %d", len(attrs))
	}
	verifyAttribute(t, attrs, ErrorTypeKey, "numeric_fault")
}
