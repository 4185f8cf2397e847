package daemon

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"log/slog"

	"github.com/fsnotify/fsnotify"

	"lectern/internal/config"
	"lectern/internal/documents"
	"lectern/internal/ingest"
	"lectern/internal/logging"
	"lectern/internal/pipeline"
)

const (
	// inboxSettleDelay is how long a dropped file must sit unchanged before
	// it is ingested. Copies into the inbox are not atomic.
	inboxSettleDelay = 2 * time.Second
	// inboxRescanInterval backstops missed filesystem events.
	inboxRescanInterval = 30 * time.Second
)

type fileIngestor interface {
	IngestFile(ctx context.Context, sourcePath string, opts ingest.Options) (*documents.Document, *pipeline.Pipeline, error)
}

// inboxAttempt remembers a failed ingest so the sweep does not retry the
// same bytes forever. A rewritten file clears the block.
type inboxAttempt struct {
	modTime time.Time
	size    int64
}

// inboxMonitor watches the inbox directory and ingests files dropped into
// it. Sources are removed after a verified copy into the library.
type inboxMonitor struct {
	cfg      *config.Config
	logger   *slog.Logger
	ingestor fileIngestor
	dir      string
	settle   time.Duration
	rescan   time.Duration

	failed map[string]inboxAttempt

	mu      sync.Mutex
	running bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func newInboxMonitor(cfg *config.Config, ingestor fileIngestor, logger *slog.Logger) *inboxMonitor {
	if cfg == nil || ingestor == nil {
		return nil
	}
	if !cfg.Ingest.InboxEnabled {
		return nil
	}
	dir := strings.TrimSpace(cfg.Paths.InboxDir)
	if dir == "" {
		return nil
	}

	return &inboxMonitor{
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, "inbox"),
		ingestor: ingestor,
		dir:      dir,
		settle:   inboxSettleDelay,
		rescan:   inboxRescanInterval,
		failed:   make(map[string]inboxAttempt),
	}
}

func (m *inboxMonitor) Start(ctx context.Context) error {
	if m == nil {
		return errors.New("inbox monitor unavailable")
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return errors.New("inbox monitor already running")
	}

	if err := os.MkdirAll(m.dir, 0o755); err != nil {
		return fmt.Errorf("ensure inbox directory: %w", err)
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create inbox watcher: %w", err)
	}
	if err := watcher.Add(m.dir); err != nil {
		watcher.Close()
		return fmt.Errorf("watch inbox directory: %w", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	m.ctx = runCtx
	m.cancel = cancel
	m.running = true

	m.wg.Add(1)
	go m.loop(watcher)

	m.logger.Info("inbox monitor watching",
		logging.String(logging.FieldEventType, "inbox_monitor_started"),
		logging.String("dir", m.dir))
	return nil
}

func (m *inboxMonitor) Stop() {
	if m == nil {
		return
	}
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	cancel := m.cancel
	m.running = false
	m.cancel = nil
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	m.wg.Wait()
}

// Watching reports whether the monitor loop is active.
func (m *inboxMonitor) Watching() bool {
	if m == nil {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// loop turns watcher events into delayed sweeps. Every event restarts the
// settle timer; the ticker catches files the watcher never reported.
func (m *inboxMonitor) loop(watcher *fsnotify.Watcher) {
	defer m.wg.Done()
	defer watcher.Close()

	settle := time.NewTimer(m.settle)
	defer settle.Stop()

	ticker := time.NewTicker(m.rescan)
	defer ticker.Stop()

	for {
		select {
		case <-m.ctx.Done():
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
				continue
			}
			settle.Reset(m.settle)
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			m.logger.Warn("inbox watch error",
				logging.Error(err),
				logging.String(logging.FieldEventType, "inbox_watch_error"),
				logging.String(logging.FieldErrorHint, "periodic rescans continue; check inotify limits if this repeats"))
		case <-settle.C:
			m.sweep()
		case <-ticker.C:
			m.sweep()
		}
	}
}

// sweep ingests every settled, allowed file currently in the inbox.
func (m *inboxMonitor) sweep() {
	ctx := m.ctx
	if ctx == nil || ctx.Err() != nil {
		return
	}

	entries, err := os.ReadDir(m.dir)
	if err != nil {
		m.logger.Warn("read inbox directory",
			logging.Error(err),
			logging.String("dir", m.dir))
		return
	}

	for _, entry := range entries {
		if ctx.Err() != nil {
			return
		}
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if strings.HasPrefix(name, ".") {
			continue
		}
		if !m.cfg.ExtensionAllowed(name) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		// Zero-size files are either still arriving or junk; either way
		// the next sweep sees them again.
		if info.Size() == 0 {
			continue
		}
		if time.Since(info.ModTime()) < m.settle {
			continue
		}

		path := filepath.Join(m.dir, name)
		if attempt, ok := m.failed[path]; ok {
			if attempt.modTime.Equal(info.ModTime()) && attempt.size == info.Size() {
				continue
			}
			delete(m.failed, path)
		}

		doc, _, err := m.ingestor.IngestFile(ctx, path, ingest.Options{RemoveSource: true})
		if err != nil {
			m.failed[path] = inboxAttempt{modTime: info.ModTime(), size: info.Size()}
			m.logger.Warn("inbox ingest failed",
				logging.Error(err),
				logging.String(logging.FieldEventType, "inbox_ingest_failed"),
				logging.String("path", path),
				logging.String(logging.FieldErrorHint, "fix or remove the file; it is retried only after it changes"))
			continue
		}
		m.logger.Info("inbox file ingested",
			logging.String(logging.FieldEventType, "inbox_file_ingested"),
			logging.Int64(logging.FieldDocumentID, doc.ID),
			logging.String("title", doc.Title),
			logging.String("path", path))
	}
}
