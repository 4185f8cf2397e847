package pipeline

import "testing"

func TestParseStatus(t *testing.T) {
	cases := []struct {
		input string
		want  Status
		ok    bool
	}{
		{"pending", StatusPending, true},
		{" Processing ", StatusProcessing, true},
		{"COMPLETED", StatusCompleted, true},
		{"cancelled", StatusCancelled, true},
		{"bogus", "", false},
		{"", "", false},
	}
	for _, tc := range cases {
		got, ok := ParseStatus(tc.input)
		if ok != tc.ok {
			t.Errorf("ParseStatus(%q) ok = %v, want %v", tc.input, ok, tc.ok)
			continue
		}
		if ok && got != tc.want {
			t.Errorf("ParseStatus(%q) = %q, want %q", tc.input, got, tc.want)
		}
	}
}

func TestParseTaskType(t *testing.T) {
	if got, ok := ParseTaskType("Transform"); !ok || got != TaskTransform {
		t.Fatalf("ParseTaskType(Transform) = %q, %v", got, ok)
	}
	if _, ok := ParseTaskType("reticulate"); ok {
		t.Fatal("expected unknown task type to be rejected")
	}
}

func TestTaskIsRetryable(t *testing.T) {
	task := Task{Status: TaskFailed, RetryCount: MaxTaskRetries - 1}
	if !task.IsRetryable() {
		t.Fatal("expected failed task under the retry budget to be retryable")
	}
	task.RetryCount = MaxTaskRetries
	if task.IsRetryable() {
		t.Fatal("expected exhausted task to be unretryable")
	}
	task.Status = TaskPending
	task.RetryCount = 0
	if task.IsRetryable() {
		t.Fatal("expected pending task to be unretryable")
	}
}

func TestPipelineStateHelpers(t *testing.T) {
	active := Pipeline{Status: StatusProcessing}
	if !active.IsActive() || active.IsTerminal() {
		t.Fatal("processing pipeline should be active, not terminal")
	}
	done := Pipeline{Status: StatusCompleted}
	if done.IsActive() || !done.IsTerminal() {
		t.Fatal("completed pipeline should be terminal")
	}
}

func TestCheckpointIsHeartbeat(t *testing.T) {
	cp := Checkpoint{Metadata: map[string]any{"heartbeat": true}}
	if !cp.IsHeartbeat() {
		t.Fatal("expected heartbeat detection")
	}
	cp.Metadata = map[string]any{"heartbeat": "yes"}
	if cp.IsHeartbeat() {
		t.Fatal("expected non-bool heartbeat value to be ignored")
	}
	if (Checkpoint{}).IsHeartbeat() {
		t.Fatal("expected empty metadata to not read as heartbeat")
	}
}
