package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"lectern/internal/config"
	"lectern/internal/logging"
	"lectern/internal/notifications"
	"lectern/internal/pipeline"
	"lectern/internal/workqueue"
)

// Checkpoint item types written by the loop.
const (
	checkpointPipeline = "pipeline"
	checkpointWorkItem = "work_item"
)

// PipelineAdvancer is the orchestrator surface the loop drives.
type PipelineAdvancer interface {
	StartPipeline(ctx context.Context, pipelineID int64) (bool, error)
	ProcessPipeline(ctx context.Context, pipelineID int64) (bool, error)
}

// Promoter runs one promotion batch per tick.
type Promoter interface {
	ProcessBatch(ctx context.Context, limit int) (int, error)
}

// RawDocumentProcessor extracts and chunks documents awaiting processing.
type RawDocumentProcessor interface {
	ProcessPending(ctx context.Context, limit int) (int, error)
}

// QueueDrainer runs one deferred job per tick.
type QueueDrainer interface {
	DrainOne(ctx context.Context) (*workqueue.Item, error)
}

// Scheduler owns the loop state: the current poll interval, the shutdown
// flag, and the checkpoint clock.
type Scheduler struct {
	cfg       *config.Config
	pipelines *pipeline.Store
	advancer  PipelineAdvancer
	queue     QueueDrainer
	promoter  Promoter
	rawDocs   RawDocumentProcessor
	notifier  notifications.Service
	logger    *slog.Logger

	baseInterval  time.Duration
	maxInterval   time.Duration
	backoffFactor float64
	heartbeatGap  time.Duration
	drainDelay    time.Duration
	stopTimeout   time.Duration

	mu             sync.Mutex
	interval       time.Duration
	lastCheckpoint time.Time
	shuttingDown   bool
	running        bool
	cancel         context.CancelFunc
	wake           chan struct{}
	done           chan struct{}
}

// NewScheduler wires the loop to its collaborators. The queue, promoter,
// and raw-document processor may be nil, which disables their steps.
func NewScheduler(
	cfg *config.Config,
	pipelines *pipeline.Store,
	advancer PipelineAdvancer,
	queue QueueDrainer,
	promoter Promoter,
	rawDocs RawDocumentProcessor,
	logger *slog.Logger,
) *Scheduler {
	return NewSchedulerWithNotifier(cfg, pipelines, advancer, queue, promoter, rawDocs, notifications.NewService(cfg), logger)
}

// NewSchedulerWithNotifier constructs a scheduler with a custom notifier,
// letting the daemon share one notification service and tests capture
// published events.
func NewSchedulerWithNotifier(
	cfg *config.Config,
	pipelines *pipeline.Store,
	advancer PipelineAdvancer,
	queue QueueDrainer,
	promoter Promoter,
	rawDocs RawDocumentProcessor,
	notifier notifications.Service,
	logger *slog.Logger,
) *Scheduler {
	base := time.Duration(cfg.Workflow.PollInterval) * time.Second
	if base < time.Second {
		base = time.Second
	}
	upper := time.Duration(cfg.Workflow.MaxPollInterval) * time.Second
	if upper < base {
		upper = base
	}
	factor := cfg.Workflow.IdleBackoffFactor
	if factor <= 1 {
		factor = 1.5
	}
	heartbeat := time.Duration(cfg.Workflow.CheckpointHeartbeat) * time.Second
	if heartbeat <= 0 {
		heartbeat = 2 * time.Minute
	}
	stop := time.Duration(cfg.Workflow.ShutdownTimeout) * time.Second
	if stop <= 0 {
		stop = time.Minute
	}

	return &Scheduler{
		cfg:            cfg,
		pipelines:      pipelines,
		advancer:       advancer,
		queue:          queue,
		promoter:       promoter,
		rawDocs:        rawDocs,
		notifier:       notifier,
		logger:         logging.NewComponentLogger(logger, "worker"),
		baseInterval:   base,
		maxInterval:    upper,
		backoffFactor:  factor,
		heartbeatGap:   heartbeat,
		drainDelay:     time.Duration(cfg.Workflow.ShutdownDrain) * time.Second,
		stopTimeout:    stop,
		interval:       base,
		lastCheckpoint: time.Now(),
	}
}

// Start launches the loop. It fails if the loop is already running.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return errors.New("worker already running")
	}
	runCtx, cancel := context.WithCancel(ctx)
	s.running = true
	s.shuttingDown = false
	s.cancel = cancel
	s.wake = make(chan struct{})
	s.done = make(chan struct{})
	s.interval = s.baseInterval
	s.lastCheckpoint = time.Now()
	done := s.done
	s.mu.Unlock()

	go s.run(runCtx, done)
	return nil
}

// Stop asks the loop to finish its current tick and waits for it to exit.
// If the tick does not finish within the drain delay its context is
// cancelled, and a wedged loop is abandoned after the shutdown timeout so
// process exit cannot hang on it.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.shuttingDown = true
	cancel := s.cancel
	s.cancel = nil
	wake := s.wake
	done := s.done
	s.mu.Unlock()

	close(wake)
	select {
	case <-done:
	case <-time.After(s.drainDelay):
		cancel()
		select {
		case <-done:
		case <-time.After(s.stopTimeout):
			s.logger.Error("worker loop did not stop in time; abandoning wait",
				logging.String(logging.FieldEventType, "worker_stop_timeout"))
		}
	}
	cancel()
}

// RequestShutdown marks the loop for exit after its current tick, without
// waiting. Signal handlers call this; Stop completes the shutdown.
func (s *Scheduler) RequestShutdown() {
	s.mu.Lock()
	s.shuttingDown = true
	s.mu.Unlock()
}

// ShuttingDown reports whether shutdown has been requested.
func (s *Scheduler) ShuttingDown() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.shuttingDown
}

// Running reports whether the loop is active.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Interval reports the current poll interval.
func (s *Scheduler) Interval() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.interval
}

func (s *Scheduler) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	s.logContinuity(ctx)

	for {
		if ctx.Err() != nil || s.ShuttingDown() {
			return
		}
		s.tick(ctx)

		s.mu.Lock()
		wake := s.wake
		interval := s.interval
		s.mu.Unlock()

		select {
		case <-ctx.Done():
			return
		case <-wake:
		case <-time.After(interval):
		}
	}
}

// logContinuity reads the last checkpoint once at startup. The checkpoint is
// informational: completed work is tracked by the stores, not replayed.
func (s *Scheduler) logContinuity(ctx context.Context) {
	cp, err := s.pipelines.LatestCheckpoint(ctx)
	if err != nil {
		s.logger.Warn("read last checkpoint", logging.Error(err))
		return
	}
	if cp == nil {
		s.logger.Info("no checkpoint found; starting fresh",
			logging.String(logging.FieldEventType, "worker_started"))
		return
	}
	if cp.LastProcessedID != nil {
		s.logger.Info("resuming after checkpoint",
			logging.String(logging.FieldEventType, "worker_started"),
			logging.String("checkpoint_at", cp.CreatedAt.Format(time.RFC3339)),
			logging.Int64("last_processed_id", *cp.LastProcessedID),
			logging.String("last_processed_type", cp.LastProcessedType))
		return
	}
	s.logger.Info("resuming after checkpoint",
		logging.String(logging.FieldEventType, "worker_started"),
		logging.String("checkpoint_at", cp.CreatedAt.Format(time.RFC3339)))
}

func (s *Scheduler) resetInterval() {
	s.mu.Lock()
	s.interval = s.baseInterval
	s.mu.Unlock()
}

func (s *Scheduler) backOff() {
	s.mu.Lock()
	next := time.Duration(float64(s.interval) * s.backoffFactor)
	if next > s.maxInterval {
		next = s.maxInterval
	}
	s.interval = next
	s.mu.Unlock()
}

func (s *Scheduler) noteCheckpoint() {
	s.mu.Lock()
	s.lastCheckpoint = time.Now()
	s.mu.Unlock()
}

func (s *Scheduler) sinceCheckpoint() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return time.Since(s.lastCheckpoint)
}
