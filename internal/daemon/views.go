package daemon

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"lectern/internal/documents"
	"lectern/internal/lifecycle"
	"lectern/internal/pipeline"
	"lectern/internal/textutil"
)

const excerptLength = 120

// PipelineDetail bundles a pipeline with its document and task graph.
type PipelineDetail struct {
	Pipeline *pipeline.Pipeline
	Document *documents.Document
	Tasks    []*pipeline.Task
}

// MappingDetail decorates a pending mapping with the context a reviewer
// needs: what text, which topic, from which document.
type MappingDetail struct {
	Mapping       *documents.Mapping
	TopicName     string
	DocumentTitle string
	ChunkExcerpt  string
}

// ReviewItem pairs a review queue entry with its validated payload.
type ReviewItem struct {
	Entry     *lifecycle.ReviewQueueEntry
	Validated *lifecycle.ValidatedItem
	Summary   string
}

// ListPipelines returns pipelines, optionally filtered by status.
func (d *Daemon) ListPipelines(ctx context.Context, statuses ...pipeline.Status) ([]*pipeline.Pipeline, error) {
	return d.pipelines.ListPipelines(ctx, statuses...)
}

// DescribePipeline returns one pipeline with its document and tasks.
func (d *Daemon) DescribePipeline(ctx context.Context, id int64) (*PipelineDetail, error) {
	pl, err := d.pipelines.GetPipeline(ctx, id)
	if err != nil {
		return nil, err
	}
	if pl == nil {
		return nil, fmt.Errorf("pipeline %d not found", id)
	}
	tasks, err := d.pipelines.Tasks(ctx, id)
	if err != nil {
		return nil, err
	}
	detail := &PipelineDetail{Pipeline: pl, Tasks: tasks}
	if doc, err := d.docs.GetDocument(ctx, pl.DocumentID); err == nil {
		detail.Document = doc
	}
	return detail, nil
}

// PipelineTasks returns a pipeline's tasks in creation order.
func (d *Daemon) PipelineTasks(ctx context.Context, pipelineID int64) ([]*pipeline.Task, error) {
	return d.pipelines.Tasks(ctx, pipelineID)
}

// RetryFailed resets a pipeline's retryable failed tasks to pending and
// reopens the pipeline for processing. Returns how many tasks were reset.
// When nothing is retryable but failed tasks remain, the error says why.
func (d *Daemon) RetryFailed(ctx context.Context, pipelineID int64) (int64, error) {
	reset, err := d.pipelines.RetryFailedTasks(ctx, pipelineID)
	if err != nil {
		return 0, err
	}
	if reset == 0 {
		failed, countErr := d.pipelines.CountTasksInStatus(ctx, pipelineID, pipeline.TaskFailed)
		if countErr == nil && failed > 0 {
			return 0, fmt.Errorf("pipeline %d has %d failed task(s) past the retry limit", pipelineID, failed)
		}
	}
	return reset, nil
}

// CancelPipeline stops a pipeline that has not completed. The return value
// reports whether the pipeline changed state.
func (d *Daemon) CancelPipeline(ctx context.Context, pipelineID int64) (bool, error) {
	return d.pipelines.CancelPipeline(ctx, pipelineID)
}

// PendingMappings returns up to limit mappings awaiting confirmation,
// decorated for display.
func (d *Daemon) PendingMappings(ctx context.Context, limit int) ([]MappingDetail, error) {
	mappings, err := d.docs.PendingMappings(ctx, limit)
	if err != nil {
		return nil, err
	}
	details := make([]MappingDetail, 0, len(mappings))
	for _, m := range mappings {
		detail := MappingDetail{Mapping: m}
		if topic, err := d.docs.GetTopic(ctx, m.TopicID); err == nil && topic != nil {
			detail.TopicName = topic.Name
		}
		if doc, err := d.docs.GetDocument(ctx, m.DocumentID); err == nil && doc != nil {
			detail.DocumentTitle = doc.Title
		}
		if chunk, err := d.docs.GetChunk(ctx, m.ChunkID); err == nil && chunk != nil {
			detail.ChunkExcerpt = textutil.Excerpt(chunk.Text, excerptLength)
		}
		details = append(details, detail)
	}
	return details, nil
}

// ConfirmMapping approves a proposed chunk-topic mapping. The worker's
// rescan pass picks the document's pipeline back up on its next tick.
func (d *Daemon) ConfirmMapping(ctx context.Context, id int64) error {
	return d.docs.ConfirmMapping(ctx, id)
}

// RejectMapping discards a proposed chunk-topic mapping.
func (d *Daemon) RejectMapping(ctx context.Context, id int64) error {
	return d.docs.RejectMapping(ctx, id)
}

// PendingReview returns validated items awaiting human review, highest
// priority first.
func (d *Daemon) PendingReview(ctx context.Context, limit int) ([]ReviewItem, error) {
	entries, err := d.life.PendingReview(ctx, limit)
	if err != nil {
		return nil, err
	}
	items := make([]ReviewItem, 0, len(entries))
	for _, entry := range entries {
		item := ReviewItem{Entry: entry}
		validated, err := d.life.GetValidated(ctx, entry.ValidatedID)
		if err == nil && validated != nil {
			item.Validated = validated
			if payload, err := lifecycle.DecodePayload(validated.DataType, validated.PayloadJSON); err == nil {
				item.Summary = textutil.Excerpt(payload.PrimaryText(), excerptLength)
			}
		}
		items = append(items, item)
	}
	return items, nil
}

// ApproveItem accepts a validated item into the approved pool.
func (d *Daemon) ApproveItem(ctx context.Context, validatedID int64, approvedBy string) (*lifecycle.ApprovedItem, error) {
	return d.life.ApproveValidated(ctx, validatedID, reviewerName(approvedBy))
}

// RejectItem rejects a validated item, permanently blocking its content
// tuple. A reason is required so the audit trail stays useful.
func (d *Daemon) RejectItem(ctx context.Context, validatedID int64, reason, rejectedBy string) error {
	if strings.TrimSpace(reason) == "" {
		return errors.New("rejection reason is required")
	}
	return d.life.RecordRejection(ctx, validatedID, reason, reviewerName(rejectedBy))
}

func reviewerName(name string) string {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return "operator"
	}
	return trimmed
}
