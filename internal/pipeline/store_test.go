package pipeline_test

import (
	"context"
	"errors"
	"testing"

	"lectern/internal/pipeline"
	"lectern/internal/services"
	"lectern/internal/testsupport"
)

func newStore(t *testing.T) *pipeline.Store {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	handle := testsupport.MustOpenDB(t, cfg)
	return pipeline.NewStore(handle, nil)
}

func TestGetOrCreatePipelineIsIdempotent(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	first, created, err := store.GetOrCreatePipeline(ctx, 101)
	if err != nil {
		t.Fatalf("GetOrCreatePipeline failed: %v", err)
	}
	if !created {
		t.Fatal("expected first call to create the pipeline")
	}
	if first.Status != pipeline.StatusPending || first.CurrentStage != pipeline.StageCreated {
		t.Fatalf("unexpected initial state: %s/%s", first.Status, first.CurrentStage)
	}

	second, created, err := store.GetOrCreatePipeline(ctx, 101)
	if err != nil {
		t.Fatalf("second GetOrCreatePipeline failed: %v", err)
	}
	if created {
		t.Fatal("expected second call to reuse the pipeline")
	}
	if second.ID != first.ID {
		t.Fatalf("expected same pipeline id, got %d and %d", first.ID, second.ID)
	}
}

func TestStartPipelineOnlyFromPending(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	p, _, err := store.GetOrCreatePipeline(ctx, 7)
	if err != nil {
		t.Fatalf("GetOrCreatePipeline failed: %v", err)
	}

	started, err := store.StartPipeline(ctx, p.ID)
	if err != nil {
		t.Fatalf("StartPipeline failed: %v", err)
	}
	if !started {
		t.Fatal("expected pending pipeline to start")
	}

	again, err := store.StartPipeline(ctx, p.ID)
	if err != nil {
		t.Fatalf("second StartPipeline failed: %v", err)
	}
	if again {
		t.Fatal("expected start to be a no-op when already processing")
	}

	updated, err := store.GetPipeline(ctx, p.ID)
	if err != nil {
		t.Fatalf("GetPipeline failed: %v", err)
	}
	if updated.Status != pipeline.StatusProcessing {
		t.Fatalf("expected processing, got %s", updated.Status)
	}
	if updated.StartedAt == nil {
		t.Fatal("expected started_at to be set")
	}
}

func TestNextTaskHonorsDependencies(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	p, _, err := store.GetOrCreatePipeline(ctx, 11)
	if err != nil {
		t.Fatalf("GetOrCreatePipeline failed: %v", err)
	}

	extract, err := store.CreateTask(ctx, p.ID, p.DocumentID, pipeline.ItemTypeDocument, pipeline.TaskExtract, nil)
	if err != nil {
		t.Fatalf("CreateTask extract failed: %v", err)
	}
	chunk, err := store.CreateTask(ctx, p.ID, p.DocumentID, pipeline.ItemTypeDocument, pipeline.TaskChunk, &extract.ID)
	if err != nil {
		t.Fatalf("CreateTask chunk failed: %v", err)
	}

	next, err := store.NextTask(ctx, p.ID)
	if err != nil {
		t.Fatalf("NextTask failed: %v", err)
	}
	if next == nil || next.ID != extract.ID {
		t.Fatalf("expected extract task first, got %#v", next)
	}

	if err := store.UpdateTaskStatus(ctx, extract.ID, pipeline.TaskProcessing, "", ""); err != nil {
		t.Fatalf("mark extract processing: %v", err)
	}

	blocked, err := store.NextTask(ctx, p.ID)
	if err != nil {
		t.Fatalf("NextTask while blocked failed: %v", err)
	}
	if blocked != nil {
		t.Fatalf("expected no eligible task while dependency incomplete, got task %d", blocked.ID)
	}

	if err := store.UpdateTaskStatus(ctx, extract.ID, pipeline.TaskCompleted, pipeline.StageChunking, ""); err != nil {
		t.Fatalf("complete extract: %v", err)
	}

	unblocked, err := store.NextTask(ctx, p.ID)
	if err != nil {
		t.Fatalf("NextTask after completion failed: %v", err)
	}
	if unblocked == nil || unblocked.ID != chunk.ID {
		t.Fatalf("expected chunk task after dependency completed, got %#v", unblocked)
	}
}

func TestCreateTaskIncrementsTotals(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	p, _, err := store.GetOrCreatePipeline(ctx, 21)
	if err != nil {
		t.Fatalf("GetOrCreatePipeline failed: %v", err)
	}

	if _, err := store.CreateTask(ctx, p.ID, p.DocumentID, pipeline.ItemTypeDocument, pipeline.TaskExtract, nil); err != nil {
		t.Fatalf("CreateTask failed: %v", err)
	}
	if _, err := store.CreateTask(ctx, p.ID, 5, pipeline.ItemTypeChunk, pipeline.TaskChunk, nil); err != nil {
		t.Fatalf("CreateTask failed: %v", err)
	}

	updated, err := store.GetPipeline(ctx, p.ID)
	if err != nil {
		t.Fatalf("GetPipeline failed: %v", err)
	}
	if updated.TotalTasks != 2 {
		t.Fatalf("expected total_tasks 2, got %d", updated.TotalTasks)
	}
}

func TestUpdateTaskStatusTracksCountersAndStage(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	p, _, err := store.GetOrCreatePipeline(ctx, 31)
	if err != nil {
		t.Fatalf("GetOrCreatePipeline failed: %v", err)
	}
	task, err := store.CreateTask(ctx, p.ID, p.DocumentID, pipeline.ItemTypeDocument, pipeline.TaskExtract, nil)
	if err != nil {
		t.Fatalf("CreateTask failed: %v", err)
	}

	if err := store.UpdateTaskStatus(ctx, task.ID, pipeline.TaskFailed, "", "boom"); err != nil {
		t.Fatalf("fail task: %v", err)
	}

	failed, err := store.GetTask(ctx, task.ID)
	if err != nil {
		t.Fatalf("GetTask failed: %v", err)
	}
	if failed.RetryCount != 1 {
		t.Fatalf("expected retry_count 1 after failure, got %d", failed.RetryCount)
	}
	if failed.ErrorMessage != "boom" {
		t.Fatalf("expected error message recorded, got %q", failed.ErrorMessage)
	}

	pAfterFail, err := store.GetPipeline(ctx, p.ID)
	if err != nil {
		t.Fatalf("GetPipeline failed: %v", err)
	}
	if pAfterFail.FailedTasks != 1 || pAfterFail.CompletedTasks != 0 {
		t.Fatalf("unexpected counters after failure: completed=%d failed=%d",
			pAfterFail.CompletedTasks, pAfterFail.FailedTasks)
	}

	if err := store.UpdateTaskStatus(ctx, task.ID, pipeline.TaskCompleted, pipeline.StageChunking, ""); err != nil {
		t.Fatalf("complete task: %v", err)
	}

	pAfterComplete, err := store.GetPipeline(ctx, p.ID)
	if err != nil {
		t.Fatalf("GetPipeline failed: %v", err)
	}
	if pAfterComplete.CompletedTasks != 1 || pAfterComplete.FailedTasks != 0 {
		t.Fatalf("unexpected counters after completion: completed=%d failed=%d",
			pAfterComplete.CompletedTasks, pAfterComplete.FailedTasks)
	}
	if pAfterComplete.CurrentStage != pipeline.StageChunking {
		t.Fatalf("expected stage chunking, got %s", pAfterComplete.CurrentStage)
	}

	completed, err := store.GetTask(ctx, task.ID)
	if err != nil {
		t.Fatalf("GetTask failed: %v", err)
	}
	if completed.ErrorMessage != "" {
		t.Fatalf("expected error cleared on completion, got %q", completed.ErrorMessage)
	}
}

func TestRetryFailedTasksRespectsRetryBudget(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	p, _, err := store.GetOrCreatePipeline(ctx, 41)
	if err != nil {
		t.Fatalf("GetOrCreatePipeline failed: %v", err)
	}
	retryable, err := store.CreateTask(ctx, p.ID, p.DocumentID, pipeline.ItemTypeDocument, pipeline.TaskExtract, nil)
	if err != nil {
		t.Fatalf("CreateTask failed: %v", err)
	}
	exhausted, err := store.CreateTask(ctx, p.ID, 9, pipeline.ItemTypeChunk, pipeline.TaskChunk, nil)
	if err != nil {
		t.Fatalf("CreateTask failed: %v", err)
	}

	if err := store.UpdateTaskStatus(ctx, retryable.ID, pipeline.TaskFailed, "", "first failure"); err != nil {
		t.Fatalf("fail retryable: %v", err)
	}
	for i := 0; i < pipeline.MaxTaskRetries; i++ {
		if err := store.UpdateTaskStatus(ctx, exhausted.ID, pipeline.TaskFailed, "", "repeated failure"); err != nil {
			t.Fatalf("fail exhausted: %v", err)
		}
	}
	if err := store.CompletePipeline(ctx, p.ID, false, "tasks failed"); err != nil {
		t.Fatalf("CompletePipeline failed: %v", err)
	}

	reset, err := store.RetryFailedTasks(ctx, p.ID)
	if err != nil {
		t.Fatalf("RetryFailedTasks failed: %v", err)
	}
	if reset != 1 {
		t.Fatalf("expected exactly one task reset, got %d", reset)
	}

	refreshedRetryable, err := store.GetTask(ctx, retryable.ID)
	if err != nil {
		t.Fatalf("GetTask failed: %v", err)
	}
	if refreshedRetryable.Status != pipeline.TaskPending || refreshedRetryable.ErrorMessage != "" {
		t.Fatalf("expected retryable task reset, got %s/%q",
			refreshedRetryable.Status, refreshedRetryable.ErrorMessage)
	}

	refreshedExhausted, err := store.GetTask(ctx, exhausted.ID)
	if err != nil {
		t.Fatalf("GetTask failed: %v", err)
	}
	if refreshedExhausted.Status != pipeline.TaskFailed {
		t.Fatalf("expected exhausted task untouched, got %s", refreshedExhausted.Status)
	}
	if refreshedExhausted.RetryCount != pipeline.MaxTaskRetries {
		t.Fatalf("expected retry count %d, got %d", pipeline.MaxTaskRetries, refreshedExhausted.RetryCount)
	}

	refreshedPipeline, err := store.GetPipeline(ctx, p.ID)
	if err != nil {
		t.Fatalf("GetPipeline failed: %v", err)
	}
	if refreshedPipeline.Status != pipeline.StatusProcessing {
		t.Fatalf("expected pipeline back to processing, got %s", refreshedPipeline.Status)
	}
	if refreshedPipeline.ErrorMessage != "" {
		t.Fatalf("expected pipeline error cleared, got %q", refreshedPipeline.ErrorMessage)
	}
}

func TestFindTaskReturnsNilWhenMissing(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	p, _, err := store.GetOrCreatePipeline(ctx, 51)
	if err != nil {
		t.Fatalf("GetOrCreatePipeline failed: %v", err)
	}

	found, err := store.FindTask(ctx, p.ID, pipeline.TaskTransform, 77)
	if err != nil {
		t.Fatalf("FindTask failed: %v", err)
	}
	if found != nil {
		t.Fatalf("expected nil for missing task, got %#v", found)
	}

	created, err := store.CreateTask(ctx, p.ID, 77, pipeline.ItemTypeMapping, pipeline.TaskTransform, nil)
	if err != nil {
		t.Fatalf("CreateTask failed: %v", err)
	}
	found, err = store.FindTask(ctx, p.ID, pipeline.TaskTransform, 77)
	if err != nil {
		t.Fatalf("FindTask after create failed: %v", err)
	}
	if found == nil || found.ID != created.ID {
		t.Fatalf("expected to find created task, got %#v", found)
	}
}

func TestUpdateTaskStatusMissingTask(t *testing.T) {
	store := newStore(t)
	err := store.UpdateTaskStatus(context.Background(), 9999, pipeline.TaskCompleted, "", "")
	if err == nil {
		t.Fatal("expected error for missing task")
	}
	if !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not-found marker, got %v", err)
	}
}

func TestPipelinesInStages(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	mapped, _, err := store.GetOrCreatePipeline(ctx, 61)
	if err != nil {
		t.Fatalf("GetOrCreatePipeline failed: %v", err)
	}
	if _, err := store.StartPipeline(ctx, mapped.ID); err != nil {
		t.Fatalf("StartPipeline failed: %v", err)
	}
	if err := store.UpdateStage(ctx, mapped.ID, pipeline.StageMapping); err != nil {
		t.Fatalf("UpdateStage failed: %v", err)
	}

	fresh, _, err := store.GetOrCreatePipeline(ctx, 62)
	if err != nil {
		t.Fatalf("GetOrCreatePipeline failed: %v", err)
	}
	_ = fresh

	parked, err := store.PipelinesInStages(ctx, 10,
		pipeline.StageMapping, pipeline.StageTransforming, pipeline.StageCompleted)
	if err != nil {
		t.Fatalf("PipelinesInStages failed: %v", err)
	}
	if len(parked) != 1 || parked[0].ID != mapped.ID {
		t.Fatalf("expected only the mapping pipeline, got %d rows", len(parked))
	}
}

func TestCancelPipeline(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	p, _, err := store.GetOrCreatePipeline(ctx, 71)
	if err != nil {
		t.Fatalf("GetOrCreatePipeline failed: %v", err)
	}

	cancelled, err := store.CancelPipeline(ctx, p.ID)
	if err != nil {
		t.Fatalf("CancelPipeline failed: %v", err)
	}
	if !cancelled {
		t.Fatal("expected pending pipeline to cancel")
	}

	if err := store.CompletePipeline(ctx, p.ID, true, ""); err != nil {
		t.Fatalf("CompletePipeline failed: %v", err)
	}
	done, err := store.GetPipeline(ctx, p.ID)
	if err != nil {
		t.Fatalf("GetPipeline failed: %v", err)
	}

	again, err := store.CancelPipeline(ctx, done.ID)
	if err != nil {
		t.Fatalf("CancelPipeline on completed failed: %v", err)
	}
	if again {
		t.Fatal("expected completed pipeline to resist cancellation")
	}
}

func TestCheckpointLifecycle(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	none, err := store.LatestCheckpoint(ctx)
	if err != nil {
		t.Fatalf("LatestCheckpoint failed: %v", err)
	}
	if none != nil {
		t.Fatalf("expected no checkpoint initially, got %#v", none)
	}

	taskID := int64(42)
	if err := store.SaveCheckpoint(ctx, &taskID, "task", map[string]any{"stage": "chunking"}); err != nil {
		t.Fatalf("SaveCheckpoint failed: %v", err)
	}
	if err := store.SaveHeartbeat(ctx); err != nil {
		t.Fatalf("SaveHeartbeat failed: %v", err)
	}

	latest, err := store.LatestCheckpoint(ctx)
	if err != nil {
		t.Fatalf("LatestCheckpoint failed: %v", err)
	}
	if latest == nil || !latest.IsHeartbeat() {
		t.Fatalf("expected heartbeat checkpoint, got %#v", latest)
	}
	if latest.LastProcessedID != nil {
		t.Fatal("expected heartbeat checkpoint to carry no item")
	}

	for i := 0; i < 5; i++ {
		if err := store.SaveErrorCheckpoint(ctx, "tick exploded"); err != nil {
			t.Fatalf("SaveErrorCheckpoint failed: %v", err)
		}
	}

	pruned, err := store.PruneCheckpoints(ctx, 2)
	if err != nil {
		t.Fatalf("PruneCheckpoints failed: %v", err)
	}
	if pruned != 5 {
		t.Fatalf("expected 5 pruned rows, got %d", pruned)
	}
}

func TestSummaryCountsByStatus(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	a, _, err := store.GetOrCreatePipeline(ctx, 81)
	if err != nil {
		t.Fatalf("GetOrCreatePipeline failed: %v", err)
	}
	if _, err := store.StartPipeline(ctx, a.ID); err != nil {
		t.Fatalf("StartPipeline failed: %v", err)
	}
	if _, _, err := store.GetOrCreatePipeline(ctx, 82); err != nil {
		t.Fatalf("GetOrCreatePipeline failed: %v", err)
	}

	summary, err := store.Summary(ctx)
	if err != nil {
		t.Fatalf("Summary failed: %v", err)
	}
	if summary.Total != 2 || summary.Processing != 1 || summary.Pending != 1 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
}
