package worker

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"lectern/internal/config"
	"lectern/internal/documents"
	"lectern/internal/notifications"
	"lectern/internal/pipeline"
	"lectern/internal/testsupport"
	"lectern/internal/workqueue"
)

type scriptedAdvancer struct {
	calls   *[]string
	moved   bool
	started bool
}

func (a *scriptedAdvancer) ProcessPipeline(ctx context.Context, id int64) (bool, error) {
	if a.calls != nil {
		*a.calls = append(*a.calls, fmt.Sprintf("process:%d", id))
	}
	return a.moved, nil
}

func (a *scriptedAdvancer) StartPipeline(ctx context.Context, id int64) (bool, error) {
	if a.calls != nil {
		*a.calls = append(*a.calls, fmt.Sprintf("start:%d", id))
	}
	return a.started, nil
}

type scriptedQueue struct {
	calls *[]string
	item  *workqueue.Item
}

func (q *scriptedQueue) DrainOne(ctx context.Context) (*workqueue.Item, error) {
	if q.calls != nil {
		*q.calls = append(*q.calls, "drain")
	}
	return q.item, nil
}

type scriptedPromoter struct {
	calls    *[]string
	advanced int
	err      error
}

func (p *scriptedPromoter) ProcessBatch(ctx context.Context, limit int) (int, error) {
	if p.calls != nil {
		*p.calls = append(*p.calls, fmt.Sprintf("promote:%d", limit))
	}
	return p.advanced, p.err
}

type scriptedRawDocs struct {
	calls     *[]string
	processed int
}

func (r *scriptedRawDocs) ProcessPending(ctx context.Context, limit int) (int, error) {
	if r.calls != nil {
		*r.calls = append(*r.calls, fmt.Sprintf("documents:%d", limit))
	}
	return r.processed, nil
}

type capturedEvent struct {
	event   notifications.Event
	payload notifications.Payload
}

type stubNotifier struct {
	events []capturedEvent
}

func (n *stubNotifier) Publish(ctx context.Context, event notifications.Event, payload notifications.Payload) error {
	n.events = append(n.events, capturedEvent{event: event, payload: payload})
	return nil
}

type fixture struct {
	cfg       *config.Config
	pipelines *pipeline.Store
	docs      *documents.Store
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	handle := testsupport.MustOpenDB(t, cfg)
	return &fixture{
		cfg:       cfg,
		pipelines: pipeline.NewStore(handle, nil),
		docs:      documents.NewStore(handle, nil),
	}
}

// pipelineInStatus creates a document plus pipeline and walks it to the
// wanted status through the store transitions.
func (fx *fixture) pipelineInStatus(t *testing.T, title string, status pipeline.Status) *pipeline.Pipeline {
	t.Helper()
	ctx := context.Background()

	doc, err := fx.docs.CreateDocument(ctx, title, "/library/"+title+".txt", "es", "A1")
	if err != nil {
		t.Fatalf("CreateDocument failed: %v", err)
	}
	pl, _, err := fx.pipelines.GetOrCreatePipeline(ctx, doc.ID)
	if err != nil {
		t.Fatalf("GetOrCreatePipeline failed: %v", err)
	}

	switch status {
	case pipeline.StatusPending:
	case pipeline.StatusProcessing:
		if _, err := fx.pipelines.StartPipeline(ctx, pl.ID); err != nil {
			t.Fatalf("StartPipeline failed: %v", err)
		}
	case pipeline.StatusCompleted:
		if _, err := fx.pipelines.StartPipeline(ctx, pl.ID); err != nil {
			t.Fatalf("StartPipeline failed: %v", err)
		}
		if err := fx.pipelines.CompletePipeline(ctx, pl.ID, true, ""); err != nil {
			t.Fatalf("CompletePipeline failed: %v", err)
		}
	default:
		t.Fatalf("unsupported fixture status %s", status)
	}
	return pl
}

func TestTickRunsStepsInFixedOrder(t *testing.T) {
	fx := newFixture(t)
	processing := fx.pipelineInStatus(t, "curso-1", pipeline.StatusProcessing)
	completed := fx.pipelineInStatus(t, "curso-2", pipeline.StatusCompleted)
	pending := fx.pipelineInStatus(t, "curso-3", pipeline.StatusPending)

	var calls []string
	s := NewScheduler(fx.cfg, fx.pipelines,
		&scriptedAdvancer{calls: &calls, moved: true, started: true},
		&scriptedQueue{calls: &calls, item: &workqueue.Item{ID: 7}},
		&scriptedPromoter{calls: &calls, advanced: 1},
		&scriptedRawDocs{calls: &calls, processed: 1},
		nil)

	s.tick(context.Background())

	want := []string{
		fmt.Sprintf("process:%d", processing.ID),
		fmt.Sprintf("process:%d", completed.ID),
		fmt.Sprintf("start:%d", pending.ID),
		"drain",
		fmt.Sprintf("promote:%d", fx.cfg.Workflow.PromotionBatch),
		fmt.Sprintf("documents:%d", fx.cfg.Workflow.DocumentBatch),
	}
	if len(calls) != len(want) {
		t.Fatalf("calls = %v, want %v", calls, want)
	}
	for i := range want {
		if calls[i] != want[i] {
			t.Fatalf("calls = %v, want %v", calls, want)
		}
	}
}

func TestIdleTicksBackOffAndCap(t *testing.T) {
	fx := newFixture(t)
	fx.cfg.Workflow.PollInterval = 5

	s := NewScheduler(fx.cfg, fx.pipelines, &scriptedAdvancer{}, nil, nil, nil, nil)
	if s.Interval() != 5*time.Second {
		t.Fatalf("baseline = %s, want 5s", s.Interval())
	}

	s.tick(context.Background())
	if s.Interval() != 7500*time.Millisecond {
		t.Fatalf("after one idle tick interval = %s, want 7.5s", s.Interval())
	}

	for i := 0; i < 10; i++ {
		s.tick(context.Background())
	}
	if s.Interval() != 30*time.Second {
		t.Fatalf("interval should cap at 30s, got %s", s.Interval())
	}
}

func TestProductiveTickResetsIntervalAndCheckpoints(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	advancer := &scriptedAdvancer{}
	s := NewScheduler(fx.cfg, fx.pipelines, advancer, nil, nil, nil, nil)

	s.tick(ctx)
	s.tick(ctx)
	if s.Interval() == s.baseInterval {
		t.Fatal("idle ticks should have raised the interval")
	}

	pending := fx.pipelineInStatus(t, "curso-1", pipeline.StatusPending)
	advancer.started = true
	s.tick(ctx)

	if s.Interval() != s.baseInterval {
		t.Fatalf("interval = %s, want baseline %s", s.Interval(), s.baseInterval)
	}
	cp, err := fx.pipelines.LatestCheckpoint(ctx)
	if err != nil {
		t.Fatalf("LatestCheckpoint failed: %v", err)
	}
	if cp == nil || cp.LastProcessedID == nil || *cp.LastProcessedID != pending.ID {
		t.Fatalf("checkpoint should carry the started pipeline, got %#v", cp)
	}
	if cp.LastProcessedType != checkpointPipeline {
		t.Fatalf("checkpoint type = %q", cp.LastProcessedType)
	}
	if got, ok := cp.Metadata["started"].(float64); !ok || got != 1 {
		t.Fatalf("checkpoint metadata = %#v", cp.Metadata)
	}
}

func TestPromotionOnlyTickResetsInterval(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	promoter := &scriptedPromoter{}
	s := NewScheduler(fx.cfg, fx.pipelines, &scriptedAdvancer{}, nil, promoter, nil, nil)

	s.tick(ctx)
	s.tick(ctx)
	if s.Interval() == s.baseInterval {
		t.Fatal("idle ticks should have raised the interval")
	}

	// A batch can advance candidates by recording gate failures alone. The
	// loop treats that as work, not an idle tick.
	promoter.advanced = 2
	s.tick(ctx)

	if s.Interval() != s.baseInterval {
		t.Fatalf("interval = %s, want baseline %s", s.Interval(), s.baseInterval)
	}
	cp, err := fx.pipelines.LatestCheckpoint(ctx)
	if err != nil {
		t.Fatalf("LatestCheckpoint failed: %v", err)
	}
	if cp == nil || cp.LastProcessedID != nil || cp.LastProcessedType != "" {
		t.Fatalf("promotion work has no item identity, got %#v", cp)
	}
	if got, ok := cp.Metadata["promoted"].(float64); !ok || got != 2 {
		t.Fatalf("checkpoint metadata = %#v", cp.Metadata)
	}
}

func TestDrainedWorkItemWinsCheckpointIdentity(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	fx.pipelineInStatus(t, "curso-1", pipeline.StatusPending)
	s := NewScheduler(fx.cfg, fx.pipelines,
		&scriptedAdvancer{started: true},
		&scriptedQueue{item: &workqueue.Item{ID: 42}},
		nil, nil, nil)

	s.tick(ctx)

	cp, err := fx.pipelines.LatestCheckpoint(ctx)
	if err != nil {
		t.Fatalf("LatestCheckpoint failed: %v", err)
	}
	if cp == nil || cp.LastProcessedType != checkpointWorkItem {
		t.Fatalf("expected work item checkpoint, got %#v", cp)
	}
	if cp.LastProcessedID == nil || *cp.LastProcessedID != 42 {
		t.Fatalf("checkpoint id = %v, want 42", cp.LastProcessedID)
	}
	if got, ok := cp.Metadata["drained"].(float64); !ok || got != 1 {
		t.Fatalf("checkpoint metadata = %#v", cp.Metadata)
	}
}

func TestLongIdleWritesHeartbeatOnce(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	s := NewScheduler(fx.cfg, fx.pipelines, &scriptedAdvancer{}, nil, nil, nil, nil)
	s.mu.Lock()
	s.lastCheckpoint = time.Now().Add(-3 * time.Minute)
	s.mu.Unlock()

	s.tick(ctx)
	cp, err := fx.pipelines.LatestCheckpoint(ctx)
	if err != nil {
		t.Fatalf("LatestCheckpoint failed: %v", err)
	}
	if cp == nil || !cp.IsHeartbeat() {
		t.Fatalf("expected heartbeat checkpoint, got %#v", cp)
	}

	// The heartbeat refreshed the clock: the next idle tick stays quiet.
	s.tick(ctx)
	again, err := fx.pipelines.LatestCheckpoint(ctx)
	if err != nil {
		t.Fatalf("LatestCheckpoint failed: %v", err)
	}
	if again.ID != cp.ID {
		t.Fatalf("idle tick wrote another checkpoint: %#v", again)
	}
}

func TestTickErrorWritesErrorCheckpointAndKeepsInterval(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	notifier := &stubNotifier{}
	s := NewSchedulerWithNotifier(fx.cfg, fx.pipelines, &scriptedAdvancer{}, nil,
		&scriptedPromoter{err: errors.New("gate backend down")}, nil, notifier, nil)
	before := s.Interval()

	s.tick(ctx)

	if s.Interval() != before {
		t.Fatalf("failed tick must not touch the interval, got %s", s.Interval())
	}
	cp, err := fx.pipelines.LatestCheckpoint(ctx)
	if err != nil {
		t.Fatalf("LatestCheckpoint failed: %v", err)
	}
	if cp == nil {
		t.Fatal("expected an error checkpoint")
	}
	msg, ok := cp.Metadata["error"].(string)
	if !ok || msg != "gate backend down" {
		t.Fatalf("checkpoint metadata = %#v", cp.Metadata)
	}
	if len(notifier.events) != 1 || notifier.events[0].event != notifications.EventDaemonError {
		t.Fatalf("expected one daemon error notification, got %#v", notifier.events)
	}

	// The loop survives: the next tick runs normally.
	s.promoter = nil
	s.tick(ctx)
	if s.Interval() <= before {
		t.Fatalf("idle tick after recovery should back off, got %s", s.Interval())
	}
}

func TestStartAndStop(t *testing.T) {
	fx := newFixture(t)

	s := NewScheduler(fx.cfg, fx.pipelines, &scriptedAdvancer{}, nil, nil, nil, nil)
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if !s.Running() {
		t.Fatal("scheduler should report running")
	}
	if err := s.Start(context.Background()); err == nil {
		t.Fatal("second Start should fail")
	}

	s.Stop()
	if s.Running() {
		t.Fatal("scheduler should report stopped")
	}
	if !s.ShuttingDown() {
		t.Fatal("stop should leave the shutdown flag set")
	}

	// Stopping twice is safe.
	s.Stop()
}
