package services_test

import (
	"context"
	"testing"

	"lectern/internal/services"
)

func TestContextRoundTrip(t *testing.T) {
	ctx := context.Background()
	ctx = services.WithPipelineID(ctx, 42)
	ctx = services.WithTaskID(ctx, 7)
	ctx = services.WithDocumentID(ctx, 3)
	ctx = services.WithStage(ctx, "chunking")
	ctx = services.WithRequestID(ctx, "req-123")

	if id, ok := services.PipelineIDFromContext(ctx); !ok || id != 42 {
		t.Fatalf("pipeline id = %d, %v", id, ok)
	}
	if id, ok := services.TaskIDFromContext(ctx); !ok || id != 7 {
		t.Fatalf("task id = %d, %v", id, ok)
	}
	if id, ok := services.DocumentIDFromContext(ctx); !ok || id != 3 {
		t.Fatalf("document id = %d, %v", id, ok)
	}
	if stage, ok := services.StageFromContext(ctx); !ok || stage != "chunking" {
		t.Fatalf("stage = %q, %v", stage, ok)
	}
	if rid, ok := services.RequestIDFromContext(ctx); !ok || rid != "req-123" {
		t.Fatalf("request id = %q, %v", rid, ok)
	}
}

func TestContextMissingValues(t *testing.T) {
	ctx := context.Background()
	if _, ok := services.PipelineIDFromContext(ctx); ok {
		t.Fatal("expected no pipeline id")
	}
	if _, ok := services.StageFromContext(ctx); ok {
		t.Fatal("expected no stage")
	}
	if services.WithStage(ctx, "") != ctx {
		t.Fatal("empty stage should not annotate context")
	}
	if services.WithRequestID(ctx, "") != ctx {
		t.Fatal("empty request id should not annotate context")
	}
}
