package orchestrator

import (
	"context"
	"errors"
	"fmt"

	"lectern/internal/logging"
	"lectern/internal/notifications"
	"lectern/internal/pipeline"
)

func (o *Orchestrator) notifyPipelineCompleted(ctx context.Context, pl *pipeline.Pipeline) {
	if o.notifier == nil {
		return
	}
	err := o.notifier.Publish(ctx, notifications.EventPipelineCompleted, notifications.Payload{
		"document": o.documentLabel(ctx, pl.DocumentID),
	})
	o.logNotifyFailure(ctx, "pipeline completion", err)
}

func (o *Orchestrator) notifyPipelineFailed(ctx context.Context, pl *pipeline.Pipeline, message string) {
	if o.notifier == nil {
		return
	}
	err := o.notifier.Publish(ctx, notifications.EventPipelineFailed, notifications.Payload{
		"document": o.documentLabel(ctx, pl.DocumentID),
		"error":    message,
	})
	o.logNotifyFailure(ctx, "pipeline failure", err)
}

func (o *Orchestrator) notifyReviewNeeded(ctx context.Context, document string, count int, kind string) {
	if o.notifier == nil {
		return
	}
	err := o.notifier.Publish(ctx, notifications.EventReviewNeeded, notifications.Payload{
		"document": document,
		"count":    count,
		"kind":     kind,
	})
	o.logNotifyFailure(ctx, "review", err)
}

// documentLabel resolves a document id to its title for notification text,
// falling back to the id when the lookup fails.
func (o *Orchestrator) documentLabel(ctx context.Context, documentID int64) string {
	doc, err := o.docs.GetDocument(ctx, documentID)
	if err != nil || doc == nil {
		return fmt.Sprintf("document %d", documentID)
	}
	return doc.Title
}

func (o *Orchestrator) logNotifyFailure(ctx context.Context, label string, err error) {
	if err == nil {
		return
	}
	if errors.Is(err, context.Canceled) {
		o.logger.Debug("shutting down; skipped notification", logging.String("notification", label))
		return
	}
	o.logger.Debug("notification failed",
		logging.String("notification", label),
		logging.Error(err))
}
