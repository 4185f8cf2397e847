package ipc_test

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

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

func TestIPCServerClient(t *testing.T) {
	cfg := testsupport.NewConfig(t)
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
	t.Cleanup(func() {
		_ = d.Close()
	})

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	socket := filepath.Join(cfg.Paths.LogDir, "lectern.sock")
	srv, err := ipc.NewServer(ctx, socket, d, logger)
	if err != nil {
		if strings.Contains(err.Error(), "operation not permitted") {
			t.Skipf("skipping IPC server test: %v", err)
		}
		t.Fatalf("ipc.NewServer: %v", err)
	}
	srv.Serve()
	t.Cleanup(func() {
		srv.Close()
	})

	time.Sleep(50 * time.Millisecond)

	client, err := ipc.Dial(socket)
	if err != nil {
		t.Fatalf("ipc.Dial: %v", err)
	}
	t.Cleanup(func() {
		client.Close()
	})

	startResp, err := client.Start()
	if err != nil {
		t.Fatalf("Start RPC failed: %v", err)
	}
	if !startResp.Started {
		t.Fatalf("expected Started=true, message=%s", startResp.Message)
	}

	status, err := client.Status()
	if err != nil {
		t.Fatalf("Status RPC failed: %v", err)
	}
	if !status.Running || status.PID <= 0 {
		t.Fatalf("unexpected status: %#v", status)
	}
	if status.DatabasePath != cfg.DatabasePath() {
		t.Fatalf("unexpected database path %q", status.DatabasePath)
	}
	if status.LogPath == "" {
		t.Fatal("expected log path in status")
	}

	source := filepath.Join(testsupport.BaseDir(cfg), "aula1.txt")
	testsupport.WriteTextFile(t, source, "Hola. ¿Cómo te llamas?\n\nMe llamo Ana.")

	ingestResp, err := client.Ingest(ipc.IngestRequest{Path: source, Title: "Aula 1"})
	if err != nil {
		t.Fatalf("Ingest RPC failed: %v", err)
	}
	if ingestResp.Document.Title != "Aula 1" {
		t.Fatalf("unexpected document title %q", ingestResp.Document.Title)
	}
	if ingestResp.Pipeline.Status != string(pipeline.StatusPending) {
		t.Fatalf("expected pending pipeline, got %q", ingestResp.Pipeline.Status)
	}

	if _, err := client.Ingest(ipc.IngestRequest{}); err == nil {
		t.Fatal("expected ingest without a path to fail")
	}

	listResp, err := client.PipelineList(nil)
	if err != nil {
		t.Fatalf("PipelineList failed: %v", err)
	}
	if len(listResp.Pipelines) != 1 || listResp.Pipelines[0].ID != ingestResp.Pipeline.ID {
		t.Fatalf("unexpected pipeline list: %#v", listResp.Pipelines)
	}
	failedResp, err := client.PipelineList([]string{string(pipeline.StatusFailed)})
	if err != nil {
		t.Fatalf("PipelineList filtered failed: %v", err)
	}
	if len(failedResp.Pipelines) != 0 {
		t.Fatalf("expected no failed pipelines, got %d", len(failedResp.Pipelines))
	}

	describeResp, err := client.PipelineDescribe(ingestResp.Pipeline.ID)
	if err != nil {
		t.Fatalf("PipelineDescribe failed: %v", err)
	}
	if describeResp.Pipeline.ID != ingestResp.Pipeline.ID {
		t.Fatalf("unexpected pipeline %d", describeResp.Pipeline.ID)
	}
	if describeResp.Document == nil || describeResp.Document.ID != ingestResp.Document.ID {
		t.Fatalf("expected document on describe response, got %#v", describeResp.Document)
	}
	if _, err := client.PipelineDescribe(9999); err == nil {
		t.Fatal("expected describe of unknown pipeline to fail")
	}

	tasksResp, err := client.TaskList(ingestResp.Pipeline.ID)
	if err != nil {
		t.Fatalf("TaskList failed: %v", err)
	}
	if len(tasksResp.Tasks) != 0 {
		t.Fatalf("expected no tasks before processing, got %d", len(tasksResp.Tasks))
	}

	retryResp, err := client.RetryFailed(ingestResp.Pipeline.ID)
	if err != nil {
		t.Fatalf("RetryFailed failed: %v", err)
	}
	if retryResp.Updated != 0 {
		t.Fatalf("expected 0 retried tasks, got %d", retryResp.Updated)
	}

	ctxBg := context.Background()
	chunks, err := docs.Chunks(ctxBg, ingestResp.Document.ID)
	if err != nil || len(chunks) == 0 {
		t.Fatalf("Chunks failed: %v (%d chunks)", err, len(chunks))
	}
	topic, err := docs.EnsureTopic(ctxBg, "Presentaciones", "es", nil)
	if err != nil {
		t.Fatalf("EnsureTopic failed: %v", err)
	}
	mapping, err := docs.CreateMapping(ctxBg, chunks[0].ID, ingestResp.Document.ID, topic.ID, 0.85, "introductions")
	if err != nil {
		t.Fatalf("CreateMapping failed: %v", err)
	}

	mappingsResp, err := client.MappingList(0)
	if err != nil {
		t.Fatalf("MappingList failed: %v", err)
	}
	if len(mappingsResp.Mappings) != 1 {
		t.Fatalf("expected 1 pending mapping, got %d", len(mappingsResp.Mappings))
	}
	if mappingsResp.Mappings[0].TopicName != "Presentaciones" {
		t.Fatalf("unexpected topic name %q", mappingsResp.Mappings[0].TopicName)
	}
	if mappingsResp.Mappings[0].ChunkExcerpt == "" {
		t.Fatal("expected chunk excerpt on mapping")
	}

	confirmResp, err := client.MappingConfirm(mapping.ID)
	if err != nil {
		t.Fatalf("MappingConfirm failed: %v", err)
	}
	if !confirmResp.Confirmed {
		t.Fatal("expected mapping to be confirmed")
	}
	if _, err := client.MappingConfirm(mapping.ID); err == nil {
		t.Fatal("expected confirming twice to fail")
	}

	draft, _, err := life.CreateDraft(ctxBg, topic.ID,
		lifecycle.MeaningPayload{Word: "hola", Translation: "hello"}, nil, nil, nil)
	if err != nil {
		t.Fatalf("CreateDraft failed: %v", err)
	}
	candidate, _, err := life.PromoteDraftToCandidate(ctxBg, draft.ID)
	if err != nil {
		t.Fatalf("PromoteDraftToCandidate failed: %v", err)
	}
	validated, _, err := life.PromoteCandidateToValidated(ctxBg, candidate.ID, nil)
	if err != nil {
		t.Fatalf("PromoteCandidateToValidated failed: %v", err)
	}
	if err := life.EnqueueForReview(ctxBg, validated.ID, validated.DataType, lifecycle.ReviewPriority(validated.DataType)); err != nil {
		t.Fatalf("EnqueueForReview failed: %v", err)
	}

	reviewResp, err := client.ReviewList(0)
	if err != nil {
		t.Fatalf("ReviewList failed: %v", err)
	}
	if len(reviewResp.Items) != 1 || reviewResp.Items[0].ValidatedID != validated.ID {
		t.Fatalf("unexpected review list: %#v", reviewResp.Items)
	}
	if reviewResp.Items[0].Summary != "hola" {
		t.Fatalf("unexpected review summary %q", reviewResp.Items[0].Summary)
	}

	if _, err := client.ReviewReject(validated.ID, "", "reviewer"); err == nil {
		t.Fatal("expected rejection without a reason to fail")
	}

	approveResp, err := client.ReviewApprove(validated.ID, "ana")
	if err != nil {
		t.Fatalf("ReviewApprove failed: %v", err)
	}
	if approveResp.ApprovedID <= 0 {
		t.Fatalf("expected approved item id, got %d", approveResp.ApprovedID)
	}

	reviewResp, err = client.ReviewList(0)
	if err != nil {
		t.Fatalf("ReviewList after approve failed: %v", err)
	}
	if len(reviewResp.Items) != 0 {
		t.Fatalf("expected empty review queue, got %d items", len(reviewResp.Items))
	}

	cancelResp, err := client.CancelPipeline(ingestResp.Pipeline.ID)
	if err != nil {
		t.Fatalf("CancelPipeline failed: %v", err)
	}
	if !cancelResp.Cancelled {
		t.Fatal("expected pending pipeline to be cancellable")
	}
	cancelResp, err = client.CancelPipeline(ingestResp.Pipeline.ID)
	if err != nil {
		t.Fatalf("second CancelPipeline failed: %v", err)
	}
	if cancelResp.Cancelled {
		t.Fatal("expected cancelling twice to report no change")
	}
	if _, err := client.CancelPipeline(0); err == nil {
		t.Fatal("expected cancel with an invalid id to fail")
	}

	checkpointResp, err := client.Checkpoint()
	if err != nil {
		t.Fatalf("Checkpoint failed: %v", err)
	}
	if checkpointResp.Checkpoint != nil {
		t.Fatalf("expected no checkpoint yet, got %#v", checkpointResp.Checkpoint)
	}

	notifyResp, err := client.TestNotification()
	if err != nil {
		t.Fatalf("TestNotification failed: %v", err)
	}
	if notifyResp.Sent || notifyResp.Message != "ntfy topic not configured" {
		t.Fatalf("unexpected notification response: %#v", notifyResp)
	}

	stopResp, err := client.Stop()
	if err != nil {
		t.Fatalf("Stop RPC failed: %v", err)
	}
	if !stopResp.Stopped {
		t.Fatal("expected stop response to be true")
	}

	status2, err := client.Status()
	if err != nil {
		t.Fatalf("Status RPC failed: %v", err)
	}
	if status2.Running {
		t.Fatal("expected daemon to be stopped")
	}
}

func TestDialFailsWithoutSocket(t *testing.T) {
	if _, err := ipc.Dial(filepath.Join(t.TempDir(), "missing.sock")); err == nil {
		t.Fatal("expected dial to fail for a missing socket")
	}
}
