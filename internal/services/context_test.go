package services_test

import (
	"context"
	"testing"

	"librarian/internal/services"
)

func TestContextHelpers(t *testing.T) {
	ctx := context.Background()
	ctx = services.WithRequestID(ctx, "req-123")
	ctx = services.WithHash(ctx, "abcdef")
	ctx = services.WithStage(ctx, "submitting")
	ctx = services.WithCorrelationID(ctx, "corr-1")

	if rid, ok := services.RequestIDFromContext(ctx); !ok || rid != "req-123" {
		t.Fatalf("unexpected request id: %v %v", rid, ok)
	}
	if hash, ok := services.HashFromContext(ctx); !ok || hash != "abcdef" {
		t.Fatalf("unexpected hash: %v %v", hash, ok)
	}
	if stage, ok := services.StageFromContext(ctx); !ok || stage != "submitting" {
		t.Fatalf("unexpected stage: %v %v", stage, ok)
	}
	if cid, ok := services.CorrelationIDFromContext(ctx); !ok || cid != "corr-1" {
		t.Fatalf("unexpected correlation id: %v %v", cid, ok)
	}
}

func TestBlankValuesPreserveContext(t *testing.T) {
	ctx := context.Background()
	ctx = services.WithStage(ctx, "")
	ctx = services.WithHash(ctx, "")
	if _, ok := services.StageFromContext(ctx); ok {
		t.Fatal("expected no stage value")
	}
	if _, ok := services.HashFromContext(ctx); ok {
		t.Fatal("expected no hash value")
	}
}
