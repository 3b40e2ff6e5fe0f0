package trace

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDisabledTracingIsNoop(t *testing.T) {
	if err := InitWithConfig(Config{}); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	ctx := context.Background()
	got, span := StartSpan(ctx, "noop")
	if got != ctx {
		t.Error("Expected the context to be returned unchanged")
	}
	if span.SpanContext().IsValid() {
		t.Error("Expected an invalid span when tracing is off")
	}
	if _, _, ok := GetTraceFields(got); ok {
		t.Error("Expected no trace fields when tracing is off")
	}
}

func TestSpansAreWrittenToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "spans.json")
	if err := InitWithConfig(Config{Enabled: true, File: path}); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	ctx, span := StartSpan(context.Background(), "unit-span")
	traceID, _, ok := GetTraceFields(ctx)
	if !ok || traceID == "" {
		t.Fatalf("Expected trace fields, got ok=%v id=%q", ok, traceID)
	}
	span.End()

	if err := Shutdown(context.Background()); err != nil {
		t.Fatalf("Expected clean shutdown, got %v", err)
	}
	if Enabled() {
		t.Error("Expected tracing to be off after shutdown")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Expected span file, got %v", err)
	}
	if !strings.Contains(string(data), "unit-span") || !strings.Contains(string(data), traceID) {
		t.Errorf("Expected span name and trace id in file, got %s", data)
	}
}
