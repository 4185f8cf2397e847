package worker

import (
	"context"
	"errors"

	"lectern/internal/logging"
	"lectern/internal/notifications"
	"lectern/internal/pipeline"
)

// stepResult reports one tick step: how many units it completed and, when
// the work has a single-item identity, the last item touched.
type stepResult struct {
	count    int
	itemID   int64
	itemType string
}

// tick runs one pass of the fixed work sequence and adjusts the poll
// interval. A step error aborts the remaining steps for this tick, is
// recorded as an error checkpoint, and leaves the interval unchanged.
func (s *Scheduler) tick(ctx context.Context) {
	worked, last, summary, err := s.work(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		logging.ErrorWithContext(s.logger, "tick failed", "tick_failed",
			logging.Error(err))
		if cpErr := s.pipelines.SaveErrorCheckpoint(ctx, err.Error()); cpErr != nil {
			s.logger.Warn("save error checkpoint", logging.Error(cpErr))
		} else {
			s.noteCheckpoint()
		}
		s.notifyTickError(ctx, err)
		return
	}

	if worked {
		s.resetInterval()
		var itemID *int64
		if last.itemType != "" {
			itemID = &last.itemID
		}
		if err := s.pipelines.SaveCheckpoint(ctx, itemID, last.itemType, summary); err != nil {
			s.logger.Warn("save checkpoint", logging.Error(err))
		} else {
			s.noteCheckpoint()
		}
		return
	}

	s.backOff()
	if s.sinceCheckpoint() >= s.heartbeatGap {
		if err := s.pipelines.SaveHeartbeat(ctx); err != nil {
			s.logger.Warn("save heartbeat", logging.Error(err))
		} else {
			s.noteCheckpoint()
		}
	}
}

func (s *Scheduler) work(ctx context.Context) (bool, stepResult, map[string]any, error) {
	var (
		worked  bool
		last    stepResult
		summary = make(map[string]any)
	)
	record := func(name string, res stepResult) {
		if res.count == 0 {
			return
		}
		worked = true
		summary[name] = res.count
		if res.itemType != "" {
			last = res
		}
	}

	res, err := s.advancePipelines(ctx)
	if err != nil {
		return worked, last, summary, err
	}
	record("advanced", res)

	res, err = s.rescanParked(ctx)
	if err != nil {
		return worked, last, summary, err
	}
	record("reopened", res)

	res, err = s.startPending(ctx)
	if err != nil {
		return worked, last, summary, err
	}
	record("started", res)

	res, err = s.drainWorkItem(ctx)
	if err != nil {
		return worked, last, summary, err
	}
	record("drained", res)

	res, err = s.runPromotion(ctx)
	if err != nil {
		return worked, last, summary, err
	}
	record("promoted", res)

	res, err = s.sweepRawDocuments(ctx)
	if err != nil {
		return worked, last, summary, err
	}
	record("documents", res)

	return worked, last, summary, nil
}

// advancePipelines moves up to a batch of processing pipelines one task
// each. Dispatch failures are already recorded on the task and pipeline, so
// the loop only notes them and keeps going.
func (s *Scheduler) advancePipelines(ctx context.Context) (stepResult, error) {
	pls, err := s.pipelines.PipelinesByStatus(ctx, pipeline.StatusProcessing, s.cfg.Workflow.PipelineBatch)
	if err != nil {
		return stepResult{}, err
	}
	var res stepResult
	for _, pl := range pls {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		moved, err := s.advancer.ProcessPipeline(ctx, pl.ID)
		if err != nil {
			s.logger.Warn("pipeline advance failed",
				logging.Int64(logging.FieldPipelineID, pl.ID),
				logging.Error(err))
		}
		if moved {
			res.count++
			res.itemID = pl.ID
			res.itemType = checkpointPipeline
		}
	}
	return res, nil
}

// rescanParked revisits settled pipelines whose stage can still gain work
// from late mapping confirmations. Live pipelines are covered by the
// advance step.
func (s *Scheduler) rescanParked(ctx context.Context) (stepResult, error) {
	pls, err := s.pipelines.PipelinesInStages(ctx, s.cfg.Workflow.RescanBatch,
		pipeline.StageMapping, pipeline.StageTransforming, pipeline.StageCompleted)
	if err != nil {
		return stepResult{}, err
	}
	var res stepResult
	for _, pl := range pls {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if pl.Status == pipeline.StatusProcessing {
			continue
		}
		moved, err := s.advancer.ProcessPipeline(ctx, pl.ID)
		if err != nil {
			s.logger.Warn("pipeline rescan failed",
				logging.Int64(logging.FieldPipelineID, pl.ID),
				logging.Error(err))
			continue
		}
		if moved {
			res.count++
			res.itemID = pl.ID
			res.itemType = checkpointPipeline
		}
	}
	return res, nil
}

func (s *Scheduler) startPending(ctx context.Context) (stepResult, error) {
	pls, err := s.pipelines.PipelinesByStatus(ctx, pipeline.StatusPending, s.cfg.Workflow.StartBatch)
	if err != nil {
		return stepResult{}, err
	}
	var res stepResult
	for _, pl := range pls {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		ok, err := s.advancer.StartPipeline(ctx, pl.ID)
		if err != nil {
			s.logger.Warn("pipeline start failed",
				logging.Int64(logging.FieldPipelineID, pl.ID),
				logging.Error(err))
			continue
		}
		if ok {
			res.count++
			res.itemID = pl.ID
			res.itemType = checkpointPipeline
		}
	}
	return res, nil
}

func (s *Scheduler) drainWorkItem(ctx context.Context) (stepResult, error) {
	if s.queue == nil {
		return stepResult{}, nil
	}
	item, err := s.queue.DrainOne(ctx)
	if err != nil {
		return stepResult{}, err
	}
	if item == nil {
		return stepResult{}, nil
	}
	return stepResult{count: 1, itemID: item.ID, itemType: checkpointWorkItem}, nil
}

func (s *Scheduler) runPromotion(ctx context.Context) (stepResult, error) {
	if s.promoter == nil {
		return stepResult{}, nil
	}
	advanced, err := s.promoter.ProcessBatch(ctx, s.cfg.Workflow.PromotionBatch)
	if err != nil {
		return stepResult{}, err
	}
	return stepResult{count: advanced}, nil
}

func (s *Scheduler) sweepRawDocuments(ctx context.Context) (stepResult, error) {
	if s.rawDocs == nil {
		return stepResult{}, nil
	}
	processed, err := s.rawDocs.ProcessPending(ctx, s.cfg.Workflow.DocumentBatch)
	if err != nil {
		return stepResult{}, err
	}
	return stepResult{count: processed}, nil
}

func (s *Scheduler) notifyTickError(ctx context.Context, tickErr error) {
	if s.notifier == nil {
		return
	}
	err := s.notifier.Publish(ctx, notifications.EventDaemonError, notifications.Payload{
		"context": "worker tick",
		"error":   tickErr,
	})
	if err == nil {
		return
	}
	if errors.Is(err, context.Canceled) {
		s.logger.Debug("shutting down; skipped tick error notification")
		return
	}
	s.logger.Debug("tick error notification failed", logging.Error(err))
}
