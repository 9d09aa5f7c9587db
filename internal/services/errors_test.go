package services_test

import (
	"errors"
	"strings"
	"testing"

	"relay/internal/services"
)

func TestWrapIncludesContext(t *testing.T) {
	base := errors.New("boom")
	err := services.Wrap(services.ErrExternalTool, "convert", "exec", "failed", base)
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected marker to be retained, got %v", err)
	}
	if !errors.Is(err, base) {
		t.Fatalf("expected wrapped error to contain base error, got %v", err)
	}
	msg := err.Error()
	for _, fragment := range []string{"convert", "exec", "failed"} {
		if !strings.Contains(msg, fragment) {
			t.Fatalf("expected %q in error string %q", fragment, msg)
		}
	}
}

func TestFailureKindMapping(t *testing.T) {
	validationErr := services.Wrap(services.ErrValidation, "ingest", "read", "empty item", nil)
	if kind := services.FailureKind(validationErr); kind != "validation" {
		t.Fatalf("expected validation kind, got %s", kind)
	}

	transientErr := services.Wrap(services.ErrTransient, "publish", "copy", "copy failed", errors.New("io"))
	if kind := services.FailureKind(transientErr); kind != "transient" {
		t.Fatalf("expected transient kind, got %s", kind)
	}

	if kind := services.FailureKind(errors.New("plain")); kind != "transient" {
		t.Fatalf("expected transient for unmarked error, got %s", kind)
	}
	if kind := services.FailureKind(nil); kind != "unknown" {
		t.Fatalf("expected unknown for nil error, got %s", kind)
	}
}
