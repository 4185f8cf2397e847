package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pelletier/go-toml/v2"

	"lectern/internal/config"
	"lectern/internal/daemon"
	"lectern/internal/documents"
	"lectern/internal/ingest"
	"lectern/internal/ipc"
	"lectern/internal/lifecycle"
	"lectern/internal/logging"
	"lectern/internal/pipeline"
	"lectern/internal/services/chunking"
	"lectern/internal/services/extraction"
	"lectern/internal/testsupport"
	"lectern/internal/worker"
)

type noopAdvancer struct{}

func (noopAdvancer) StartPipeline(context.Context, int64) (bool, error)   { return false, nil }
func (noopAdvancer) ProcessPipeline(context.Context, int64) (bool, error) { return false, nil }

type cliTestEnv struct {
	cfg        *config.Config
	pipelines  *pipeline.Store
	docs       *documents.Store
	life       *lifecycle.Store
	daemon     *daemon.Daemon
	server     *ipc.Server
	socketPath string
	configPath string
	baseDir    string
	cancel     context.CancelFunc
}

func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()

	base := t.TempDir()
	homeDir := filepath.Join(base, "home")
	if err := os.MkdirAll(homeDir, 0o755); err != nil {
		t.Fatalf("mkdir home: %v", err)
	}
	t.Setenv("HOME", homeDir)

	cfg := testsupport.NewConfig(t)
	configPath := filepath.Join(homeDir, ".config", "lectern", "config.toml")
	if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
		t.Fatalf("mkdir config dir: %v", err)
	}
	writeTestConfig(t, configPath, cfg)

	handle := testsupport.MustOpenDB(t, cfg)
	pipelines := pipeline.NewStore(handle, nil)
	docs := documents.NewStore(handle, nil)
	life := lifecycle.NewStore(handle, nil)
	logger := logging.NewNop()

	sched := worker.NewScheduler(cfg, pipelines, noopAdvancer{}, nil, nil, nil, nil)
	ingestor := ingest.NewService(cfg, docs, pipelines, extraction.NewService(nil), chunking.NewService(nil), nil)
	d, err := daemon.New(cfg, handle, pipelines, docs, life, sched, ingestor, nil, logger)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	socketPath := filepath.Join(cfg.Paths.LogDir, "cli.sock")
	srv, err := ipc.NewServer(ctx, socketPath, d, logger)
	if err != nil {
		cancel()
		_ = d.Close()
		if strings.Contains(err.Error(), "operation not permitted") {
			t.Skipf("skipping CLI test: %v", err)
		}
		t.Fatalf("ipc.NewServer: %v", err)
	}
	srv.Serve()

	env := &cliTestEnv{
		cfg:        cfg,
		pipelines:  pipelines,
		docs:       docs,
		life:       life,
		daemon:     d,
		server:     srv,
		socketPath: socketPath,
		configPath: configPath,
		baseDir:    base,
		cancel:     cancel,
	}

	t.Cleanup(func() {
		cancel()
		srv.Close()
		d.Close()
	})

	return env
}

func runCLI(t *testing.T, args []string, socket, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	flags := []string{"--socket", socket}
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func writeTestConfig(t *testing.T, path string, cfg *config.Config) {
	t.Helper()
	encoded, err := toml.Marshal(*cfg)
	if err != nil {
		t.Fatalf("encode config: %v", err)
	}
	if err := os.WriteFile(path, encoded, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func waitFor(t *testing.T, duration time.Duration, fn func() bool) {
	t.Helper()
	deadline := time.Now().Add(duration)
	for time.Now().Before(deadline) {
		if fn() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("condition not met within %s", duration)
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}
