package logging

import (
	"bytes"
	"strings"
	"testing"
	"time"
)

func TestTracerReportsStepAndTotal(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(Options{Format: "console", Level: "debug", Writer: &buf})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	clock := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	tracer := newTracer(logger, func() time.Time { return clock })

	clock = clock.Add(40 * time.Millisecond)
	if step := tracer.Step("scan"); step != 40*time.Millisecond {
		t.Fatalf("unexpected first step %v", step)
	}
	clock = clock.Add(10 * time.Millisecond)
	if step := tracer.Step("dispatch"); step != 10*time.Millisecond {
		t.Fatalf("unexpected second step %v", step)
	}
	if total := tracer.Total("cycle"); total != 50*time.Millisecond {
		t.Fatalf("unexpected total %v", total)
	}

	out := buf.String()
	for _, fragment := range []string{"scan", "step=40ms", "dispatch", "total=50ms"} {
		if !strings.Contains(out, fragment) {
			t.Fatalf("expected %q in trace output %q", fragment, out)
		}
	}
}

func TestTracerSilentAboveDebug(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(Options{Format: "console", Level: "info", Writer: &buf})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	NewTracer(logger).Step("scan")
	if buf.Len() != 0 {
		t.Fatalf("expected no output at info level, got %q", buf.String())
	}
}
