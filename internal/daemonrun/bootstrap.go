package daemonrun

import (
	"context"
	"log/slog"
	"strconv"
	"strings"

	"lectern/internal/config"
	"lectern/internal/documents"
	"lectern/internal/gates"
	"lectern/internal/ingest"
	"lectern/internal/lifecycle"
	"lectern/internal/notifications"
	"lectern/internal/orchestrator"
	"lectern/internal/pipeline"
	"lectern/internal/promotion"
	"lectern/internal/services/chunking"
	"lectern/internal/services/extraction"
	"lectern/internal/services/llm"
	"lectern/internal/services/mapping"
	"lectern/internal/services/transform"
	"lectern/internal/workqueue"
)

// pipelineServices bundles the collaborators the scheduler and daemon share.
type pipelineServices struct {
	advancer *orchestrator.Orchestrator
	promoter *promotion.Engine
	ingestor *ingest.Service
}

func buildServices(cfg *config.Config, pipelines *pipeline.Store, docs *documents.Store, life *lifecycle.Store, notifier notifications.Service, logger *slog.Logger) pipelineServices {
	extractor := extraction.NewService(logger)
	chunker := chunking.NewService(logger)
	client := llm.NewClient(cfg, llm.WithRetryAttempts(cfg.Transform.RetryAttempts))

	transformer := transform.NewService(docs, life, client, cfg, logger)
	promoter := promotion.NewEngine(life, docs, gates.FromConfig(cfg, life), logger)
	advancer := orchestrator.NewWithNotifier(cfg, pipelines, docs, life,
		extractor, chunker, buildMapper(cfg, docs, client, logger), transformer, promoter, notifier, logger)

	return pipelineServices{
		advancer: advancer,
		promoter: promoter,
		ingestor: ingest.NewService(cfg, docs, pipelines, extractor, chunker, logger),
	}
}

// buildMapper returns an untyped nil when mapping is disabled. A typed nil
// *mapping.Service would slip past the orchestrator's interface nil check.
func buildMapper(cfg *config.Config, docs *documents.Store, client *llm.Client, logger *slog.Logger) orchestrator.Mapper {
	if cfg == nil || !cfg.Mapping.Enabled {
		return nil
	}
	return mapping.NewService(docs, client, cfg, logger)
}

const jobPruneCheckpoints = "prune_checkpoints"

const defaultCheckpointKeep = 100

// registerMaintenanceJobs installs handlers for the deferred jobs the worker
// drains from the work queue. Jobs are enqueued by operators or external
// tooling; an unknown kind fails its item without touching the loop.
func registerMaintenanceJobs(queue *workqueue.Queue, pipelines *pipeline.Store) {
	queue.Register(jobPruneCheckpoints, func(ctx context.Context, item *workqueue.Item) error {
		keep := defaultCheckpointKeep
		if v, err := strconv.Atoi(strings.TrimSpace(item.Payload)); err == nil && v > 0 {
			keep = v
		}
		_, err := pipelines.PruneCheckpoints(ctx, keep)
		return err
	})
}
