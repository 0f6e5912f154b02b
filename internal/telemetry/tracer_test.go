// SPDX-License-Identifier: MIT

package telemetry

import (
	"context"
	"testing"
)

func TestNewProviderDisabled(t *testing.T) {
	provider, err := NewProvider(context.Background(), Config{
		Enabled:     false,
		ServiceName: "adaptd-test",
	})
	if err != nil {
		t.Fatalf("NewProvider(disabled) error: %v", err)
	}
	if provider.tp != nil {
		t.Error("disabled provider should carry no SDK tracer provider")
	}
	if err := provider.Shutdown(context.Background()); err != nil {
		t.Errorf("noop Shutdown error: %v", err)
	}
}

func TestTracerReturnsNamedTracer(t *testing.T) {
	_, err := NewProvider(context.Background(), Config{Enabled: false})
	if err != nil {
		t.Fatal(err)
	}
	if Tracer("pipeline") == nil {
		t.Fatal("Tracer returned nil")
	}
}
