package daemonrun

import (
	"context"
	"testing"

	"lectern/internal/documents"
	"lectern/internal/lifecycle"
	"lectern/internal/logging"
	"lectern/internal/pipeline"
	"lectern/internal/services/llm"
	"lectern/internal/testsupport"
	"lectern/internal/workqueue"
)

func TestBuildServices(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	handle := testsupport.MustOpenDB(t, cfg)
	logger := logging.NewNop()

	pipelines := pipeline.NewStore(handle, logger)
	docs := documents.NewStore(handle, logger)
	life := lifecycle.NewStore(handle, logger)

	services := buildServices(cfg, pipelines, docs, life, nil, logger)
	if services.advancer == nil {
		t.Fatal("expected advancer to be built")
	}
	if services.promoter == nil {
		t.Fatal("expected promoter to be built")
	}
	if services.ingestor == nil {
		t.Fatal("expected ingestor to be built")
	}
}

func TestBuildMapper(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	logger := logging.NewNop()
	client := llm.NewClient(cfg)

	if mapper := buildMapper(cfg, nil, client, logger); mapper == nil {
		t.Fatal("expected mapper when mapping enabled")
	}

	disabled := testsupport.NewConfig(t, testsupport.WithMappingDisabled())
	if mapper := buildMapper(disabled, nil, client, logger); mapper != nil {
		t.Fatalf("expected nil mapper when mapping disabled, got %T", mapper)
	}
	if mapper := buildMapper(nil, nil, client, logger); mapper != nil {
		t.Fatalf("expected nil mapper without config, got %T", mapper)
	}
}

func TestPruneCheckpointsJob(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	handle := testsupport.MustOpenDB(t, cfg)
	logger := logging.NewNop()
	pipelines := pipeline.NewStore(handle, logger)
	queue := workqueue.NewQueue(handle, logger)
	registerMaintenanceJobs(queue, pipelines)

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		if err := pipelines.SaveHeartbeat(ctx); err != nil {
			t.Fatalf("SaveHeartbeat failed: %v", err)
		}
	}

	job, err := queue.Enqueue(ctx, jobPruneCheckpoints, "2", 1)
	if err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	drained, err := queue.DrainOne(ctx)
	if err != nil {
		t.Fatalf("DrainOne failed: %v", err)
	}
	if drained == nil {
		t.Fatal("expected the job to be attempted")
	}
	settled, err := queue.Get(ctx, job.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if settled.Status != workqueue.StatusDone {
		t.Fatalf("status = %q, want done (error %q)", settled.Status, settled.ErrorMessage)
	}

	row := handle.QueryRowContext(ctx, `SELECT COUNT(*) FROM checkpoints`)
	var remaining int
	if err := row.Scan(&remaining); err != nil {
		t.Fatalf("count checkpoints: %v", err)
	}
	if remaining != 2 {
		t.Fatalf("expected 2 checkpoints after prune, got %d", remaining)
	}
}
