package pipeline

import (
	"strings"
	"time"
)

// Status represents the lifecycle of a document pipeline.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
)

var allStatuses = []Status{
	StatusPending,
	StatusProcessing,
	StatusCompleted,
	StatusFailed,
	StatusCancelled,
}

var statusSet = func() map[Status]struct{} {
	set := make(map[Status]struct{}, len(allStatuses))
	for _, status := range allStatuses {
		set[status] = struct{}{}
	}
	return set
}()

// Stage is the advisory progress label on a pipeline. It is updated
// opportunistically as tasks are created, not guarded by a transition table;
// reopening depends on that looseness.
type Stage string

const (
	StageCreated      Stage = "created"
	StageExtracting   Stage = "extracting"
	StageChunking     Stage = "chunking"
	StageMapping      Stage = "mapping"
	StageTransforming Stage = "transforming"
	StageValidating   Stage = "validating"
	StageCompleted    Stage = "completed"
)

// TaskType identifies the stage a task belongs to.
type TaskType string

const (
	TaskExtract   TaskType = "extract"
	TaskChunk     TaskType = "chunk"
	TaskMap       TaskType = "map"
	TaskTransform TaskType = "transform"
	TaskValidate  TaskType = "validate"
	TaskApprove   TaskType = "approve"
)

var allTaskTypes = []TaskType{
	TaskExtract,
	TaskChunk,
	TaskMap,
	TaskTransform,
	TaskValidate,
	TaskApprove,
}

var taskTypeSet = func() map[TaskType]struct{} {
	set := make(map[TaskType]struct{}, len(allTaskTypes))
	for _, taskType := range allTaskTypes {
		set[taskType] = struct{}{}
	}
	return set
}()

// TaskStatus represents a task's position in its own lifecycle.
type TaskStatus string

const (
	TaskPending    TaskStatus = "pending"
	TaskProcessing TaskStatus = "processing"
	TaskCompleted  TaskStatus = "completed"
	TaskFailed     TaskStatus = "failed"
)

// Item types recorded on tasks. The item id is an opaque reference whose
// meaning depends on the task type.
const (
	ItemTypeDocument = "document"
	ItemTypeChunk    = "chunk"
	ItemTypeMapping  = "mapping"
	ItemTypeDraft    = "draft"
)

// MaxTaskRetries bounds how often a failed task may be reset to pending.
const MaxTaskRetries = 3

// Pipeline is the per-document workflow row.
type Pipeline struct {
	ID             int64
	DocumentID     int64
	Status         Status
	CurrentStage   Stage
	TotalTasks     int
	CompletedTasks int
	FailedTasks    int
	ErrorMessage   string
	StartedAt      *time.Time
	CompletedAt    *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Task is one node of a pipeline's dependency graph. Tasks have at most one
// predecessor and are never deleted, only transitioned.
type Task struct {
	ID              int64
	PipelineID      int64
	ItemID          int64
	ItemType        string
	Type            TaskType
	Status          TaskStatus
	RetryCount      int
	DependsOnTaskID *int64
	ErrorMessage    string
	StartedAt       *time.Time
	CompletedAt     *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Checkpoint records the most recent unit of completed work, plus heartbeat
// and error markers, for restart continuity and liveness monitoring.
type Checkpoint struct {
	ID                int64
	LastProcessedID   *int64
	LastProcessedType string
	Metadata          map[string]any
	CreatedAt         time.Time
}

// Summary aggregates pipeline counts per status for presentation.
type Summary struct {
	Total      int
	Pending    int
	Processing int
	Completed  int
	Failed     int
	Cancelled  int
}

// AllStatuses returns the ordered list of known pipeline statuses.
func AllStatuses() []Status {
	cp := make([]Status, len(allStatuses))
	copy(cp, allStatuses)
	return cp
}

// ParseStatus converts a string into a known Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := statusSet[normalized]
	return normalized, ok
}

// ParseTaskType converts a string into a known TaskType.
func ParseTaskType(value string) (TaskType, bool) {
	normalized := TaskType(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := taskTypeSet[normalized]
	return normalized, ok
}

// IsActive reports whether the pipeline still expects worker attention.
func (p Pipeline) IsActive() bool {
	return p.Status == StatusPending || p.Status == StatusProcessing
}

// IsTerminal reports whether the pipeline reached an end state. Completed is
// terminal here even though reopening can pull it back to processing.
func (p Pipeline) IsTerminal() bool {
	switch p.Status {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

// IsRetryable reports whether a failed task may still be reset to pending.
func (t Task) IsRetryable() bool {
	return t.Status == TaskFailed && t.RetryCount < MaxTaskRetries
}

// IsHeartbeat reports whether the checkpoint is a liveness marker rather than
// a record of completed work.
func (c Checkpoint) IsHeartbeat() bool {
	v, ok := c.Metadata["heartbeat"]
	if !ok {
		return false
	}
	b, ok := v.(bool)
	return ok && b
}
