package daemonrun_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"lectern/internal/daemonrun"
	"lectern/internal/ipc"
	"lectern/internal/testsupport"
)

func TestRunStartsAndShutsDownCleanly(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithMappingDisabled())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- daemonrun.Run(ctx, cfg, daemonrun.Options{LogLevel: "error"})
	}()

	socket := filepath.Join(cfg.Paths.LogDir, "lectern.sock")
	var client *ipc.Client
	deadline := time.Now().Add(10 * time.Second)
	for client == nil {
		select {
		case err := <-done:
			if err != nil && strings.Contains(err.Error(), "operation not permitted") {
				t.Skipf("skipping daemon run test: %v", err)
			}
			t.Fatalf("daemon exited before startup completed: %v", err)
		default:
		}
		c, err := ipc.Dial(socket)
		if err == nil {
			client = c
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("daemon did not come up: %v", err)
		}
		time.Sleep(50 * time.Millisecond)
	}
	defer client.Close()

	// The socket listens before the worker loop is started, so poll until
	// the daemon reports running.
	var status *ipc.StatusResponse
	for {
		st, err := client.Status()
		if err != nil {
			t.Fatalf("Status RPC failed: %v", err)
		}
		if st.Running {
			status = st
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("daemon never reported running")
		}
		time.Sleep(20 * time.Millisecond)
	}
	if status.PID != os.Getpid() {
		t.Fatalf("expected pid %d, got %d", os.Getpid(), status.PID)
	}

	pidPath := filepath.Join(cfg.Paths.LogDir, "lectern.pid")
	if _, err := os.Stat(pidPath); err != nil {
		t.Fatalf("expected pid file: %v", err)
	}
	if _, err := os.Stat(filepath.Join(cfg.Paths.LogDir, "lectern.log")); err != nil {
		t.Fatalf("expected current log pointer: %v", err)
	}

	// The server drains open connections on shutdown, so disconnect before
	// cancelling or Run would wait on this test's client.
	_ = client.Close()

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned error: %v", err)
		}
	case <-time.After(15 * time.Second):
		t.Fatal("daemon did not shut down in time")
	}

	if _, err := os.Stat(pidPath); !os.IsNotExist(err) {
		t.Fatalf("expected pid file removed, got %v", err)
	}
}

func TestRunRequiresConfig(t *testing.T) {
	if err := daemonrun.Run(context.Background(), nil, daemonrun.Options{}); err == nil {
		t.Fatal("expected error for nil config")
	}
}
