package daemonrun

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"lectern/internal/config"
	"lectern/internal/daemon"
	"lectern/internal/db"
	"lectern/internal/documents"
	"lectern/internal/ipc"
	"lectern/internal/lifecycle"
	"lectern/internal/logging"
	"lectern/internal/notifications"
	"lectern/internal/pipeline"
	"lectern/internal/preflight"
	"lectern/internal/worker"
	"lectern/internal/workqueue"
)

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel    string
	Development bool
}

// Run starts the lectern daemon runtime loop and blocks until a shutdown
// signal arrives. The worker loop runs under its own context so an in-flight
// tick can drain after the signal; the signal context only wakes this
// function and the IPC accept loop.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := cfg.EnsureDirectories(); err != nil {
		return fmt.Errorf("prepare directories: %w", err)
	}

	runID := time.Now().UTC().Format("20060102T150405.000Z")
	logPath := filepath.Join(cfg.Paths.LogDir, fmt.Sprintf("lectern-%s.log", runID))

	logger, err := logging.New(logging.Options{
		Level:            opts.LogLevel,
		Format:           cfg.Logging.Format,
		OutputPaths:      []string{"stdout", logPath},
		ErrorOutputPaths: []string{"stderr", logPath},
		Development:      opts.Development,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	if err := ensureCurrentLogPointer(cfg.Paths.LogDir, logPath); err != nil {
		fmt.Fprintf(os.Stderr, "warn: unable to update lectern.log link: %v\n", err)
	}
	logging.CleanupOldLogs(logger, cfg.Logging.RetentionDays,
		logging.RetentionTarget{Dir: cfg.Paths.LogDir, Pattern: "lectern-*.log", Exclude: []string{logPath}},
	)

	pidPath := filepath.Join(cfg.Paths.LogDir, "lectern.pid")
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	results := preflight.RunAll(signalCtx, cfg)
	logPreflight(logger, results)
	if failed := preflight.Failed(results); len(failed) > 0 {
		return fmt.Errorf("preflight: %d check(s) failed, refusing to start", len(failed))
	}

	handle, err := db.Open(cfg)
	if err != nil {
		logger.Error("open database", logging.Error(err))
		return err
	}
	defer handle.Close()

	pipelines := pipeline.NewStore(handle, logger)
	docs := documents.NewStore(handle, logger)
	life := lifecycle.NewStore(handle, logger)

	notifier := notifications.NewService(cfg)
	services := buildServices(cfg, pipelines, docs, life, notifier, logger)
	queue := workqueue.NewQueue(handle, logger)
	registerMaintenanceJobs(queue, pipelines)
	scheduler := worker.NewSchedulerWithNotifier(cfg, pipelines, services.advancer, queue, services.promoter, services.ingestor, notifier, logger)

	d, err := daemon.New(cfg, handle, pipelines, docs, life, scheduler, services.ingestor, notifier, logger)
	if err != nil {
		return fmt.Errorf("create daemon: %w", err)
	}
	defer d.Close()

	socketPath := filepath.Join(cfg.Paths.LogDir, "lectern.sock")
	ipcServer, err := ipc.NewServer(signalCtx, socketPath, d, logger)
	if err != nil {
		return fmt.Errorf("start IPC server: %w", err)
	}
	defer ipcServer.Close()
	ipcServer.Serve()

	if err := d.Start(context.Background()); err != nil {
		logger.Warn("daemon start failed",
			logging.Error(err),
			logging.String(logging.FieldEventType, "daemon_start_failed"),
			logging.String(logging.FieldErrorHint, "check configuration and database access; the IPC start command can retry"),
		)
	}

	<-signalCtx.Done()
	logger.Info("lectern daemon shutting down",
		logging.String(logging.FieldEventType, "daemon_shutdown"))
	d.RequestShutdown()
	return nil
}

func logPreflight(logger *slog.Logger, results []preflight.Result) {
	for _, r := range results {
		attrs := []logging.Attr{
			logging.String(logging.FieldEventType, "preflight_check"),
			logging.String("check", r.Name),
			logging.Bool("passed", r.Passed),
		}
		if r.Detail != "" {
			attrs = append(attrs, logging.String("detail", r.Detail))
		}
		if r.Passed {
			logger.Info("preflight check", logging.Args(attrs...)...)
		} else {
			logger.Error("preflight check failed", logging.Args(attrs...)...)
		}
	}
}

func ensureCurrentLogPointer(logDir, target string) error {
	if logDir == "" || target == "" {
		return nil
	}
	current := filepath.Join(logDir, "lectern.log")
	if err := os.Remove(current); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove existing log pointer: %w", err)
	}
	if err := os.Symlink(target, current); err == nil {
		return nil
	}
	if err := os.Link(target, current); err != nil {
		return fmt.Errorf("link log pointer: %w", err)
	}
	return nil
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}
