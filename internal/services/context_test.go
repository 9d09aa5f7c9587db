package services_test

import (
	"context"
	"testing"

	"relay/internal/services"
)

func TestContextHelpers(t *testing.T) {
	ctx := context.Background()
	ctx = services.WithItem(ctx, "0001.job")
	ctx = services.WithStage(ctx, "ingest")
	ctx = services.WithWorker(ctx, 3)
	ctx = services.WithRunID(ctx, "run-123")

	if item, ok := services.ItemFromContext(ctx); !ok || item != "0001.job" {
		t.Fatalf("unexpected item: %v %v", item, ok)
	}
	if stage, ok := services.StageFromContext(ctx); !ok || stage != "ingest" {
		t.Fatalf("unexpected stage: %v %v", stage, ok)
	}
	if worker, ok := services.WorkerFromContext(ctx); !ok || worker != 3 {
		t.Fatalf("unexpected worker: %v %v", worker, ok)
	}
	if rid, ok := services.RunIDFromContext(ctx); !ok || rid != "run-123" {
		t.Fatalf("unexpected run id: %v %v", rid, ok)
	}
}

func TestStageBlankPreservesContext(t *testing.T) {
	ctx := context.Background()
	ctx = services.WithStage(ctx, "")
	if _, ok := services.StageFromContext(ctx); ok {
		t.Fatal("expected no stage value")
	}
	if _, ok := services.WorkerFromContext(services.WithWorker(ctx, -1)); ok {
		t.Fatal("expected negative worker to be ignored")
	}
}
