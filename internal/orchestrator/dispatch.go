package orchestrator

import (
	"context"
	"fmt"

	"lectern/internal/logging"
	"lectern/internal/pipeline"
	"lectern/internal/services"
)

// dispatch runs one task against its collaborator and, on success, marks
// it completed and advances the advisory stage. Follow-on tasks are
// created before the running task completes: if their creation fails the
// task fails with it and stays retryable, instead of completing with no
// successor.
func (o *Orchestrator) dispatch(ctx context.Context, pl *pipeline.Pipeline, task *pipeline.Task) error {
	var (
		stage pipeline.Stage
		err   error
	)
	switch task.Type {
	case pipeline.TaskExtract:
		stage, err = o.dispatchExtract(ctx, pl, task)
	case pipeline.TaskChunk:
		stage, err = o.dispatchChunk(ctx, pl, task)
	case pipeline.TaskMap:
		stage, err = o.dispatchMap(ctx, task)
	case pipeline.TaskTransform:
		stage, err = o.dispatchTransform(ctx, pl, task)
	case pipeline.TaskValidate:
		stage, err = o.dispatchValidate(ctx)
	case pipeline.TaskApprove:
		// Reserved for automatic approval policies. Approval is manual.
		stage = ""
	default:
		err = fmt.Errorf("unknown task type %q", task.Type)
	}
	if err != nil {
		return err
	}

	if err := o.pipelines.UpdateTaskStatus(ctx, task.ID, pipeline.TaskCompleted, stage, ""); err != nil {
		return err
	}
	logging.WithContext(ctx, o.logger).Info("task completed",
		logging.String(logging.FieldEventType, "task_completed"))
	return nil
}

// dispatchExtract extracts and chunks the document in one store
// transaction, then chains a chunk task. A document the fast path already
// extracted is left alone.
func (o *Orchestrator) dispatchExtract(ctx context.Context, pl *pipeline.Pipeline, task *pipeline.Task) (pipeline.Stage, error) {
	doc, err := o.docs.GetDocument(ctx, task.ItemID)
	if err != nil {
		return "", err
	}
	if doc == nil {
		return "", services.Wrap(services.ErrNotFound, "orchestrator", "extract",
			fmt.Sprintf("document %d", task.ItemID), nil)
	}

	pages, err := o.docs.CountPages(ctx, doc.ID)
	if err != nil {
		return "", err
	}
	if pages == 0 {
		extracted, err := o.extractor.Extract(ctx, doc.SourcePath)
		if err != nil {
			return "", err
		}
		chunks := o.chunker.Chunk(extracted)
		if err := o.docs.SaveExtraction(ctx, doc.ID, extracted, chunks); err != nil {
			return "", err
		}
	}

	if err := o.ensureFollowOnTask(ctx, pl.ID, doc.ID, pipeline.ItemTypeDocument, pipeline.TaskChunk, task.ID); err != nil {
		return "", err
	}
	return pipeline.StageChunking, nil
}

// dispatchChunk confirms the document's chunks exist (they were written in
// the same transaction as its pages) and chains a map task when a mapper
// is configured and there is something to map.
func (o *Orchestrator) dispatchChunk(ctx context.Context, pl *pipeline.Pipeline, task *pipeline.Task) (pipeline.Stage, error) {
	count, err := o.docs.CountChunks(ctx, task.ItemID)
	if err != nil {
		return "", err
	}
	if o.mapper == nil || count == 0 {
		return pipeline.StageChunking, nil
	}

	if err := o.ensureFollowOnTask(ctx, pl.ID, task.ItemID, pipeline.ItemTypeDocument, pipeline.TaskMap, task.ID); err != nil {
		return "", err
	}
	return pipeline.StageMapping, nil
}

// dispatchMap invokes the semantic mapper. The pipeline stays in mapping
// afterwards; nothing advances until a human confirms assignments.
func (o *Orchestrator) dispatchMap(ctx context.Context, task *pipeline.Task) (pipeline.Stage, error) {
	if o.mapper == nil {
		logging.WithContext(ctx, o.logger).Warn("map task without a configured mapper")
		return pipeline.StageMapping, nil
	}

	doc, err := o.docs.GetDocument(ctx, task.ItemID)
	if err != nil {
		return "", err
	}
	if doc == nil {
		return "", services.Wrap(services.ErrNotFound, "orchestrator", "map",
			fmt.Sprintf("document %d", task.ItemID), nil)
	}
	chunks, err := o.docs.Chunks(ctx, doc.ID)
	if err != nil {
		return "", err
	}
	created, err := o.mapper.MapChunks(ctx, doc, chunks)
	if err != nil {
		return "", err
	}
	if created > 0 {
		o.notifyReviewNeeded(ctx, doc.Title, created, "mappings")
	}
	return pipeline.StageMapping, nil
}

// dispatchTransform runs the transformer for one mapping, then promotes
// each new draft to candidate and creates a validate task tracking it.
func (o *Orchestrator) dispatchTransform(ctx context.Context, pl *pipeline.Pipeline, task *pipeline.Task) (pipeline.Stage, error) {
	mapping, err := o.docs.GetMapping(ctx, task.ItemID)
	if err != nil {
		return "", err
	}
	if mapping == nil {
		return "", services.Wrap(services.ErrNotFound, "orchestrator", "transform",
			fmt.Sprintf("mapping %d", task.ItemID), nil)
	}
	if mapping.TransformedAt != nil {
		return pipeline.StageValidating, nil
	}

	result, err := o.transformer.TransformMapping(ctx, mapping)
	if err != nil {
		return "", err
	}
	if err := o.docs.MarkMappingTransformed(ctx, mapping.ID); err != nil {
		return "", err
	}

	for _, draft := range result.Drafts {
		if _, _, err := o.life.PromoteDraftToCandidate(ctx, draft.ID); err != nil {
			return "", fmt.Errorf("promote draft %d: %w", draft.ID, err)
		}
		if _, err := o.pipelines.CreateTask(ctx, pl.ID, draft.ID, pipeline.ItemTypeDraft, pipeline.TaskValidate, &task.ID); err != nil {
			return "", fmt.Errorf("create validate task for draft %d: %w", draft.ID, err)
		}
	}
	return pipeline.StageValidating, nil
}

// dispatchValidate runs one promotion batch. Items the batch promotes wait
// for human review; the task itself is done once the sweep ran.
func (o *Orchestrator) dispatchValidate(ctx context.Context) (pipeline.Stage, error) {
	if o.promoter == nil {
		return pipeline.StageValidating, nil
	}
	advanced, err := o.promoter.ProcessBatch(ctx, o.promotionBatch)
	if err != nil {
		return "", err
	}
	if advanced > 0 {
		// advanced counts failed candidates too; the notification reports
		// what actually sits in the review queue.
		waiting, err := o.life.CountPendingReview(ctx)
		if err != nil {
			logging.WithContext(ctx, o.logger).Warn("count pending review", logging.Error(err))
		} else if waiting > 0 {
			o.notifyReviewNeeded(ctx, "", waiting, "items")
		}
	}
	return pipeline.StageValidating, nil
}

// ensureFollowOnTask creates a dependent task unless an identical one
// already exists, so re-dispatching a completed task stays idempotent.
func (o *Orchestrator) ensureFollowOnTask(ctx context.Context, pipelineID, itemID int64, itemType string, taskType pipeline.TaskType, dependsOn int64) error {
	existing, err := o.pipelines.FindTask(ctx, pipelineID, taskType, itemID)
	if err != nil {
		return err
	}
	if existing != nil {
		return nil
	}
	if _, err := o.pipelines.CreateTask(ctx, pipelineID, itemID, itemType, taskType, &dependsOn); err != nil {
		return fmt.Errorf("create %s task: %w", taskType, err)
	}
	return nil
}
