package orchestrator

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"lectern/internal/config"
	"lectern/internal/documents"
	"lectern/internal/lifecycle"
	"lectern/internal/logging"
	"lectern/internal/notifications"
	"lectern/internal/pipeline"
	"lectern/internal/services"
	"lectern/internal/services/transform"
)

// Extractor pulls page text out of a source file.
type Extractor interface {
	Extract(ctx context.Context, sourcePath string) ([]documents.PageInput, error)
}

// Chunker segments extracted pages into classified chunks.
type Chunker interface {
	Chunk(pages []documents.PageInput) []documents.ChunkInput
}

// Mapper proposes topic assignments for a document's chunks. A nil Mapper
// disables the map stage entirely.
type Mapper interface {
	MapChunks(ctx context.Context, doc *documents.Document, chunks []*documents.Chunk) (int, error)
}

// Transformer turns one confirmed mapping into draft learning items.
type Transformer interface {
	TransformMapping(ctx context.Context, mapping *documents.Mapping) (*transform.Result, error)
}

// Promoter advances candidates through the quality gates.
type Promoter interface {
	ProcessBatch(ctx context.Context, limit int) (int, error)
}

// Orchestrator owns the per-pipeline state machine.
type Orchestrator struct {
	pipelines      *pipeline.Store
	docs           *documents.Store
	life           *lifecycle.Store
	extractor      Extractor
	chunker        Chunker
	mapper         Mapper
	transformer    Transformer
	promoter       Promoter
	notifier       notifications.Service
	promotionBatch int
	logger         *slog.Logger
}

func New(
	cfg *config.Config,
	pipelines *pipeline.Store,
	docs *documents.Store,
	life *lifecycle.Store,
	extractor Extractor,
	chunker Chunker,
	mapper Mapper,
	transformer Transformer,
	promoter Promoter,
	logger *slog.Logger,
) *Orchestrator {
	return NewWithNotifier(cfg, pipelines, docs, life, extractor, chunker, mapper, transformer, promoter, notifications.NewService(cfg), logger)
}

// NewWithNotifier constructs an orchestrator with a custom notifier. The
// daemon uses it to share one notification service across components;
// tests use it to capture published events.
func NewWithNotifier(
	cfg *config.Config,
	pipelines *pipeline.Store,
	docs *documents.Store,
	life *lifecycle.Store,
	extractor Extractor,
	chunker Chunker,
	mapper Mapper,
	transformer Transformer,
	promoter Promoter,
	notifier notifications.Service,
	logger *slog.Logger,
) *Orchestrator {
	return &Orchestrator{
		pipelines:      pipelines,
		docs:           docs,
		life:           life,
		extractor:      extractor,
		chunker:        chunker,
		mapper:         mapper,
		transformer:    transformer,
		promoter:       promoter,
		notifier:       notifier,
		promotionBatch: cfg.Workflow.PromotionBatch,
		logger:         logging.NewComponentLogger(logger, "orchestrator"),
	}
}

// StartPipeline flips a pending pipeline to processing and creates its
// initial extract task. Starting anything not pending is a no-op.
func (o *Orchestrator) StartPipeline(ctx context.Context, pipelineID int64) (bool, error) {
	pl, err := o.pipelines.GetPipeline(ctx, pipelineID)
	if err != nil {
		return false, err
	}
	if pl == nil {
		return false, services.Wrap(services.ErrNotFound, "orchestrator", "start",
			fmt.Sprintf("pipeline %d", pipelineID), nil)
	}

	started, err := o.pipelines.StartPipeline(ctx, pipelineID)
	if err != nil {
		return false, err
	}
	if !started {
		return false, nil
	}

	if _, err := o.pipelines.CreateTask(ctx, pipelineID, pl.DocumentID, pipeline.ItemTypeDocument, pipeline.TaskExtract, nil); err != nil {
		return true, fmt.Errorf("create extract task: %w", err)
	}

	o.logger.Info("pipeline started",
		logging.String(logging.FieldEventType, "pipeline_started"),
		logging.Int64(logging.FieldPipelineID, pipelineID),
		logging.Int64(logging.FieldDocumentID, pl.DocumentID))
	return true, nil
}

// ProcessPipeline advances one pipeline by at most one task. The returned
// flag reports whether any state changed (a task ran, transform tasks were
// created, or the pipeline completed). Dispatch failures are recorded on
// the task and the pipeline before the error is returned.
func (o *Orchestrator) ProcessPipeline(ctx context.Context, pipelineID int64) (bool, error) {
	pl, err := o.pipelines.GetPipeline(ctx, pipelineID)
	if err != nil {
		return false, err
	}
	if pl == nil {
		return false, services.Wrap(services.ErrNotFound, "orchestrator", "process",
			fmt.Sprintf("pipeline %d", pipelineID), nil)
	}

	reopened := false
	switch pl.CurrentStage {
	case pipeline.StageMapping, pipeline.StageTransforming, pipeline.StageCompleted:
		created, err := o.createMissingTransformTasks(ctx, pl)
		if err != nil {
			return false, err
		}
		if created > 0 {
			if err := o.pipelines.UpdateStageStatus(ctx, pl.ID, pipeline.StageTransforming, pipeline.StatusProcessing); err != nil {
				return false, err
			}
			reopened = true
			pl, err = o.pipelines.GetPipeline(ctx, pl.ID)
			if err != nil {
				return false, err
			}
		}
	}

	if pl.Status != pipeline.StatusProcessing {
		return reopened, nil
	}

	task, err := o.pipelines.NextTask(ctx, pl.ID)
	if err != nil {
		return reopened, err
	}
	if task == nil {
		settled, err := o.settlePipeline(ctx, pl)
		return reopened || settled, err
	}

	taskCtx := taskContext(ctx, pl, task)
	logger := logging.WithContext(taskCtx, o.logger)
	if err := o.pipelines.UpdateTaskStatus(taskCtx, task.ID, pipeline.TaskProcessing, "", ""); err != nil {
		return reopened, err
	}

	if err := o.dispatch(taskCtx, pl, task); err != nil {
		if markErr := o.pipelines.UpdateTaskStatus(taskCtx, task.ID, pipeline.TaskFailed, "", err.Error()); markErr != nil {
			logger.Error("record task failure", logging.Error(markErr))
		}
		if failErr := o.pipelines.CompletePipeline(taskCtx, pl.ID, false, err.Error()); failErr != nil {
			logger.Error("record pipeline failure", logging.Error(failErr))
		}
		o.notifyPipelineFailed(taskCtx, pl, err.Error())
		return true, err
	}

	return true, nil
}

// taskContext annotates the context with the identifiers downstream logs
// key on, plus a fresh correlation id for this dispatch.
func taskContext(ctx context.Context, pl *pipeline.Pipeline, task *pipeline.Task) context.Context {
	ctx = services.WithPipelineID(ctx, pl.ID)
	ctx = services.WithDocumentID(ctx, pl.DocumentID)
	ctx = services.WithTaskID(ctx, task.ID)
	ctx = services.WithStage(ctx, string(task.Type))
	return services.WithRequestID(ctx, uuid.NewString())
}

// settlePipeline decides what to do when no task is eligible: fail the
// pipeline when a task failed, complete it when all tasks are done and
// both completion gates hold, otherwise leave it open.
func (o *Orchestrator) settlePipeline(ctx context.Context, pl *pipeline.Pipeline) (bool, error) {
	tasks, err := o.pipelines.Tasks(ctx, pl.ID)
	if err != nil {
		return false, err
	}

	// A started pipeline with no tasks lost its initial extract task to an
	// interrupted start. Recreate it instead of completing an empty graph.
	if len(tasks) == 0 {
		if _, err := o.pipelines.CreateTask(ctx, pl.ID, pl.DocumentID, pipeline.ItemTypeDocument, pipeline.TaskExtract, nil); err != nil {
			return false, fmt.Errorf("recreate extract task: %w", err)
		}
		return true, nil
	}

	allCompleted := true
	for _, task := range tasks {
		switch task.Status {
		case pipeline.TaskFailed:
			message := fmt.Sprintf("%s task %d failed", task.Type, task.ID)
			if task.ErrorMessage != "" {
				message = fmt.Sprintf("%s task %d failed: %s", task.Type, task.ID, task.ErrorMessage)
			}
			if err := o.pipelines.CompletePipeline(ctx, pl.ID, false, message); err != nil {
				return false, err
			}
			o.logger.Warn("pipeline failed",
				logging.String(logging.FieldEventType, "pipeline_failed"),
				logging.Int64(logging.FieldPipelineID, pl.ID),
				logging.Alert("pipeline_failure"),
				logging.String("error", message))
			o.notifyPipelineFailed(ctx, pl, message)
			return true, nil
		case pipeline.TaskCompleted:
		default:
			allCompleted = false
		}
	}
	if !allCompleted {
		return false, nil
	}

	ready, err := o.completionGatesMet(ctx, pl, tasks)
	if err != nil {
		return false, err
	}
	if !ready {
		return false, nil
	}

	if err := o.pipelines.CompletePipeline(ctx, pl.ID, true, ""); err != nil {
		return false, err
	}
	o.logger.Info("pipeline completed",
		logging.String(logging.FieldEventType, "pipeline_completed"),
		logging.Int64(logging.FieldPipelineID, pl.ID),
		logging.Int64(logging.FieldDocumentID, pl.DocumentID))
	o.notifyPipelineCompleted(ctx, pl)
	return true, nil
}

// completionGatesMet checks the two success conditions: no confirmed
// mapping is still awaiting transformation, and every learning item
// tracked by this pipeline has been approved.
func (o *Orchestrator) completionGatesMet(ctx context.Context, pl *pipeline.Pipeline, tasks []*pipeline.Task) (bool, error) {
	untransformed, err := o.docs.CountConfirmedUntransformed(ctx, pl.DocumentID)
	if err != nil {
		return false, err
	}
	if untransformed > 0 {
		return false, nil
	}

	for _, task := range tasks {
		if task.ItemType != pipeline.ItemTypeDraft {
			continue
		}
		state, err := o.life.StateForDraft(ctx, task.ItemID)
		if err != nil {
			return false, err
		}
		if state != lifecycle.StateApproved {
			return false, nil
		}
	}
	return true, nil
}

// createMissingTransformTasks creates one transform task per confirmed
// mapping that does not have one yet. This is the reopening path: human
// confirmations can arrive long after the pipeline finished mapping, or
// even after it completed.
func (o *Orchestrator) createMissingTransformTasks(ctx context.Context, pl *pipeline.Pipeline) (int, error) {
	mappings, err := o.docs.ConfirmedUntransformed(ctx, pl.DocumentID)
	if err != nil {
		return 0, err
	}

	created := 0
	for _, mapping := range mappings {
		existing, err := o.pipelines.FindTask(ctx, pl.ID, pipeline.TaskTransform, mapping.ID)
		if err != nil {
			return created, err
		}
		if existing != nil {
			continue
		}
		if _, err := o.pipelines.CreateTask(ctx, pl.ID, mapping.ID, pipeline.ItemTypeMapping, pipeline.TaskTransform, nil); err != nil {
			return created, fmt.Errorf("create transform task for mapping %d: %w", mapping.ID, err)
		}
		created++
	}

	if created > 0 {
		o.logger.Info("transform tasks created",
			logging.String(logging.FieldEventType, "pipeline_reopened"),
			logging.Int64(logging.FieldPipelineID, pl.ID),
			logging.Int("tasks", created))
	}
	return created, nil
}
