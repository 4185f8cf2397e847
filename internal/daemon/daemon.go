package daemon

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"log/slog"

	"github.com/gofrs/flock"

	"lectern/internal/config"
	"lectern/internal/db"
	"lectern/internal/documents"
	"lectern/internal/ingest"
	"lectern/internal/lifecycle"
	"lectern/internal/logging"
	"lectern/internal/notifications"
	"lectern/internal/pipeline"
	"lectern/internal/worker"
)

// Daemon coordinates the background services and enforces single-instance
// execution through a file lock.
type Daemon struct {
	cfg       *config.Config
	logger    *slog.Logger
	handle    *db.Handle
	pipelines *pipeline.Store
	docs      *documents.Store
	life      *lifecycle.Store
	scheduler *worker.Scheduler
	ingestor  *ingest.Service
	notifier  notifications.Service
	inbox     *inboxMonitor
	logPath   string

	lockPath string
	lock     *flock.Flock

	running atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc
}

// Status aggregates daemon runtime information for the control surface.
type Status struct {
	Running         bool
	ShuttingDown    bool
	PID             int
	DatabasePath    string
	LockFilePath    string
	PollInterval    time.Duration
	InboxWatching   bool
	Pipelines       pipeline.Summary
	PendingMappings int
	PendingReview   int
	Checkpoint      *pipeline.Checkpoint
	LastError       string
}

// New constructs a daemon around initialized dependencies. The inbox monitor
// is created internally when the configuration enables it.
func New(
	cfg *config.Config,
	handle *db.Handle,
	pipelines *pipeline.Store,
	docs *documents.Store,
	life *lifecycle.Store,
	scheduler *worker.Scheduler,
	ingestor *ingest.Service,
	notifier notifications.Service,
	logger *slog.Logger,
) (*Daemon, error) {
	if cfg == nil || handle == nil || pipelines == nil || docs == nil || life == nil || scheduler == nil {
		return nil, errors.New("daemon requires config, database, stores, and scheduler")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	var inbox *inboxMonitor
	if ingestor != nil {
		inbox = newInboxMonitor(cfg, ingestor, logger)
	}

	lockPath := filepath.Join(cfg.Paths.LogDir, "lecternd.lock")
	return &Daemon{
		cfg:       cfg,
		logger:    logging.NewComponentLogger(logger, "daemon"),
		handle:    handle,
		pipelines: pipelines,
		docs:      docs,
		life:      life,
		scheduler: scheduler,
		ingestor:  ingestor,
		notifier:  notifier,
		inbox:     inbox,
		logPath:   filepath.Join(cfg.Paths.LogDir, "lectern.log"),
		lockPath:  lockPath,
		lock:      flock.New(lockPath),
	}, nil
}

// Start acquires the daemon lock and launches the worker loop and inbox
// monitor.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	if err := os.MkdirAll(d.cfg.Paths.LogDir, 0o755); err != nil {
		return fmt.Errorf("ensure log directory: %w", err)
	}
	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another lectern daemon instance is already running")
	}

	d.ctx, d.cancel = context.WithCancel(ctx)
	if err := d.scheduler.Start(d.ctx); err != nil {
		_ = d.lock.Unlock()
		d.cancel()
		d.ctx = nil
		d.cancel = nil
		return fmt.Errorf("start worker: %w", err)
	}

	if d.inbox != nil {
		if err := d.inbox.Start(d.ctx); err != nil {
			d.logger.Warn("inbox monitor failed to start",
				logging.Error(err),
				logging.String(logging.FieldEventType, "inbox_monitor_failed"),
				logging.String(logging.FieldErrorHint, "check inbox_dir exists and is readable; files must be ingested manually until fixed"))
		}
	}

	d.running.Store(true)
	d.logger.Info("lectern daemon started",
		logging.String(logging.FieldEventType, "daemon_start"),
		logging.String("lock", d.lockPath))
	return nil
}

// Stop shuts down background processing and releases the daemon lock. The
// worker loop is stopped cooperatively before the shared context is
// cancelled so an in-flight tick can drain.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	if d.inbox != nil {
		d.inbox.Stop()
	}
	d.scheduler.Stop()
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.ctx = nil
	d.running.Store(false)
	d.logger.Info("lectern daemon stopped",
		logging.String(logging.FieldEventType, "daemon_stop"))
}

// RequestShutdown flags the worker loop so in-flight batches wind down
// before Stop performs the actual teardown.
func (d *Daemon) RequestShutdown() {
	d.scheduler.RequestShutdown()
}

// Close stops the daemon and closes the database.
func (d *Daemon) Close() error {
	d.Stop()
	return d.handle.Close()
}

// Running reports whether background processing is active.
func (d *Daemon) Running() bool {
	return d.running.Load()
}

// LogPath returns the stable path of the daemon log file.
func (d *Daemon) LogPath() string {
	return d.logPath
}

// Status aggregates pipeline counts, review backlogs, and worker state.
func (d *Daemon) Status(ctx context.Context) (Status, error) {
	summary, err := d.pipelines.Summary(ctx)
	if err != nil {
		return Status{}, err
	}
	pendingMappings, err := d.docs.CountPendingMappings(ctx)
	if err != nil {
		return Status{}, err
	}
	pendingReview, err := d.life.CountPendingReview(ctx)
	if err != nil {
		return Status{}, err
	}
	checkpoint, err := d.pipelines.LatestCheckpoint(ctx)
	if err != nil {
		return Status{}, err
	}

	status := Status{
		Running:         d.running.Load(),
		ShuttingDown:    d.scheduler.ShuttingDown(),
		PID:             os.Getpid(),
		DatabasePath:    d.cfg.DatabasePath(),
		LockFilePath:    d.lockPath,
		PollInterval:    d.scheduler.Interval(),
		InboxWatching:   d.inbox.Watching(),
		Pipelines:       summary,
		PendingMappings: pendingMappings,
		PendingReview:   pendingReview,
		Checkpoint:      checkpoint,
	}
	if checkpoint != nil {
		if message, ok := checkpoint.Metadata["error"].(string); ok {
			status.LastError = message
		}
	}
	return status, nil
}

// IngestFile registers a source file through the ingest service.
func (d *Daemon) IngestFile(ctx context.Context, sourcePath string, opts ingest.Options) (*documents.Document, *pipeline.Pipeline, error) {
	if d.ingestor == nil {
		return nil, nil, errors.New("ingest service unavailable")
	}
	trimmed := strings.TrimSpace(sourcePath)
	if trimmed == "" {
		return nil, nil, errors.New("source path is required")
	}
	absPath, err := filepath.Abs(trimmed)
	if err != nil {
		return nil, nil, fmt.Errorf("resolve source path: %w", err)
	}
	return d.ingestor.IngestFile(ctx, absPath, opts)
}

// LatestCheckpoint returns the most recent worker checkpoint, or nil when
// the loop has never run.
func (d *Daemon) LatestCheckpoint(ctx context.Context) (*pipeline.Checkpoint, error) {
	return d.pipelines.LatestCheckpoint(ctx)
}

// TestNotification publishes a test event using the current configuration.
func (d *Daemon) TestNotification(ctx context.Context) (bool, string, error) {
	if strings.TrimSpace(d.cfg.Notifications.NtfyTopic) == "" {
		return false, "ntfy topic not configured", nil
	}
	notifier := d.notifier
	if notifier == nil {
		notifier = notifications.NewService(d.cfg)
	}
	if err := notifier.Publish(ctx, notifications.EventTest, nil); err != nil {
		return false, "failed to send notification", err
	}
	return true, "test notification sent", nil
}
