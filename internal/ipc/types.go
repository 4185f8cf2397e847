package ipc

import (
	"encoding/json"
	"time"

	"lectern/internal/daemon"
	"lectern/internal/documents"
	"lectern/internal/pipeline"
)

// dateTimeFormat is used for RFC3339 timestamps in IPC payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// FormatTime converts a time to RFC3339 or returns empty string.
func FormatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(dateTimeFormat)
}

func formatTimePtr(t *time.Time) string {
	if t == nil {
		return ""
	}
	return FormatTime(*t)
}

// Pipeline is the wire representation of a document pipeline.
type Pipeline struct {
	ID             int64  `json:"id"`
	DocumentID     int64  `json:"document_id"`
	Status         string `json:"status"`
	CurrentStage   string `json:"current_stage"`
	TotalTasks     int    `json:"total_tasks"`
	CompletedTasks int    `json:"completed_tasks"`
	FailedTasks    int    `json:"failed_tasks"`
	ErrorMessage   string `json:"error_message,omitempty"`
	StartedAt      string `json:"started_at,omitempty"`
	CompletedAt    string `json:"completed_at,omitempty"`
	CreatedAt      string `json:"created_at"`
	UpdatedAt      string `json:"updated_at"`
}

// Task is the wire representation of one pipeline task.
type Task struct {
	ID           int64  `json:"id"`
	PipelineID   int64  `json:"pipeline_id"`
	ItemID       int64  `json:"item_id"`
	ItemType     string `json:"item_type"`
	Type         string `json:"type"`
	Status       string `json:"status"`
	RetryCount   int    `json:"retry_count"`
	DependsOn    *int64 `json:"depends_on,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`
	StartedAt    string `json:"started_at,omitempty"`
	CompletedAt  string `json:"completed_at,omitempty"`
	CreatedAt    string `json:"created_at"`
}

// Document is the wire representation of an ingested source document.
type Document struct {
	ID           int64  `json:"id"`
	Title        string `json:"title"`
	SourcePath   string `json:"source_path"`
	Language     string `json:"language"`
	TargetLevel  string `json:"target_level"`
	Status       string `json:"status"`
	ErrorMessage string `json:"error_message,omitempty"`
	PageCount    int    `json:"page_count"`
	WordCount    int    `json:"word_count"`
	CreatedAt    string `json:"created_at"`
}

// Mapping is a pending chunk-topic mapping decorated for review.
type Mapping struct {
	ID            int64   `json:"id"`
	ChunkID       int64   `json:"chunk_id"`
	DocumentID    int64   `json:"document_id"`
	TopicID       int64   `json:"topic_id"`
	TopicName     string  `json:"topic_name,omitempty"`
	DocumentTitle string  `json:"document_title,omitempty"`
	ChunkExcerpt  string  `json:"chunk_excerpt,omitempty"`
	Status        string  `json:"status"`
	Confidence    float64 `json:"confidence"`
	Rationale     string  `json:"rationale,omitempty"`
	CreatedAt     string  `json:"created_at"`
}

// ReviewItem is a validated learning item awaiting approval.
type ReviewItem struct {
	ValidatedID int64           `json:"validated_id"`
	TopicID     int64           `json:"topic_id"`
	DataType    string          `json:"data_type"`
	Priority    int             `json:"priority"`
	Summary     string          `json:"summary,omitempty"`
	Payload     json.RawMessage `json:"payload,omitempty"`
	QueuedAt    string          `json:"queued_at"`
}

// Checkpoint is the wire representation of the worker's latest checkpoint.
type Checkpoint struct {
	ID                int64  `json:"id"`
	LastProcessedID   *int64 `json:"last_processed_id,omitempty"`
	LastProcessedType string `json:"last_processed_type,omitempty"`
	Heartbeat         bool   `json:"heartbeat"`
	Error             string `json:"error,omitempty"`
	CreatedAt         string `json:"created_at"`
}

// PipelineSummary aggregates pipeline counts per status.
type PipelineSummary struct {
	Total      int `json:"total"`
	Pending    int `json:"pending"`
	Processing int `json:"processing"`
	Completed  int `json:"completed"`
	Failed     int `json:"failed"`
	Cancelled  int `json:"cancelled"`
}

// FromPipeline converts a pipeline record to its wire representation.
func FromPipeline(p *pipeline.Pipeline) Pipeline {
	if p == nil {
		return Pipeline{}
	}
	return Pipeline{
		ID:             p.ID,
		DocumentID:     p.DocumentID,
		Status:         string(p.Status),
		CurrentStage:   string(p.CurrentStage),
		TotalTasks:     p.TotalTasks,
		CompletedTasks: p.CompletedTasks,
		FailedTasks:    p.FailedTasks,
		ErrorMessage:   p.ErrorMessage,
		StartedAt:      formatTimePtr(p.StartedAt),
		CompletedAt:    formatTimePtr(p.CompletedAt),
		CreatedAt:      FormatTime(p.CreatedAt),
		UpdatedAt:      FormatTime(p.UpdatedAt),
	}
}

// FromPipelines converts a slice of pipeline records into wire DTOs.
func FromPipelines(pipelines []*pipeline.Pipeline) []Pipeline {
	if len(pipelines) == 0 {
		return nil
	}
	out := make([]Pipeline, 0, len(pipelines))
	for _, p := range pipelines {
		if p == nil {
			continue
		}
		out = append(out, FromPipeline(p))
	}
	return out
}

// FromTask converts a task record to its wire representation.
func FromTask(t *pipeline.Task) Task {
	if t == nil {
		return Task{}
	}
	dto := Task{
		ID:           t.ID,
		PipelineID:   t.PipelineID,
		ItemID:       t.ItemID,
		ItemType:     t.ItemType,
		Type:         string(t.Type),
		Status:       string(t.Status),
		RetryCount:   t.RetryCount,
		ErrorMessage: t.ErrorMessage,
		StartedAt:    formatTimePtr(t.StartedAt),
		CompletedAt:  formatTimePtr(t.CompletedAt),
		CreatedAt:    FormatTime(t.CreatedAt),
	}
	if t.DependsOnTaskID != nil {
		dep := *t.DependsOnTaskID
		dto.DependsOn = &dep
	}
	return dto
}

// FromTasks converts a slice of task records into wire DTOs.
func FromTasks(tasks []*pipeline.Task) []Task {
	if len(tasks) == 0 {
		return nil
	}
	out := make([]Task, 0, len(tasks))
	for _, t := range tasks {
		if t == nil {
			continue
		}
		out = append(out, FromTask(t))
	}
	return out
}

// FromDocument converts a document record to its wire representation.
func FromDocument(d *documents.Document) Document {
	if d == nil {
		return Document{}
	}
	return Document{
		ID:           d.ID,
		Title:        d.Title,
		SourcePath:   d.SourcePath,
		Language:     d.Language,
		TargetLevel:  d.TargetLevel,
		Status:       string(d.Status),
		ErrorMessage: d.ErrorMessage,
		PageCount:    d.PageCount,
		WordCount:    d.WordCount,
		CreatedAt:    FormatTime(d.CreatedAt),
	}
}

// FromMappingDetail flattens a decorated mapping into its wire form.
func FromMappingDetail(detail daemon.MappingDetail) Mapping {
	m := detail.Mapping
	if m == nil {
		return Mapping{}
	}
	return Mapping{
		ID:            m.ID,
		ChunkID:       m.ChunkID,
		DocumentID:    m.DocumentID,
		TopicID:       m.TopicID,
		TopicName:     detail.TopicName,
		DocumentTitle: detail.DocumentTitle,
		ChunkExcerpt:  detail.ChunkExcerpt,
		Status:        string(m.Status),
		Confidence:    m.Confidence,
		Rationale:     m.Rationale,
		CreatedAt:     FormatTime(m.CreatedAt),
	}
}

// FromReviewItem flattens a review queue entry plus payload into wire form.
func FromReviewItem(item daemon.ReviewItem) ReviewItem {
	dto := ReviewItem{Summary: item.Summary}
	if item.Entry != nil {
		dto.ValidatedID = item.Entry.ValidatedID
		dto.DataType = string(item.Entry.DataType)
		dto.Priority = item.Entry.Priority
		dto.QueuedAt = FormatTime(item.Entry.QueuedAt)
	}
	if item.Validated != nil {
		dto.TopicID = item.Validated.TopicID
		if raw := item.Validated.PayloadJSON; raw != "" {
			dto.Payload = json.RawMessage(raw)
		}
	}
	return dto
}

// FromCheckpoint converts a checkpoint record to its wire representation.
func FromCheckpoint(c *pipeline.Checkpoint) *Checkpoint {
	if c == nil {
		return nil
	}
	dto := &Checkpoint{
		ID:                c.ID,
		LastProcessedType: c.LastProcessedType,
		Heartbeat:         c.IsHeartbeat(),
		CreatedAt:         FormatTime(c.CreatedAt),
	}
	if c.LastProcessedID != nil {
		id := *c.LastProcessedID
		dto.LastProcessedID = &id
	}
	if msg, ok := c.Metadata["error"].(string); ok {
		dto.Error = msg
	}
	return dto
}

// FromSummary converts pipeline counts into wire form.
func FromSummary(s pipeline.Summary) PipelineSummary {
	return PipelineSummary{
		Total:      s.Total,
		Pending:    s.Pending,
		Processing: s.Processing,
		Completed:  s.Completed,
		Failed:     s.Failed,
		Cancelled:  s.Cancelled,
	}
}

// StartRequest triggers daemon startup.
type StartRequest struct{}

// StartResponse indicates whether the daemon was started.
type StartResponse struct {
	Started bool   `json:"started"`
	Message string `json:"message"`
}

// StopRequest stops the daemon's background work.
type StopRequest struct{}

// StopResponse indicates stop result.
type StopResponse struct {
	Stopped bool `json:"stopped"`
}

// StatusRequest fetches daemon status.
type StatusRequest struct{}

// StatusResponse represents combined daemon and worker status information.
type StatusResponse struct {
	Running         bool            `json:"running"`
	ShuttingDown    bool            `json:"shutting_down"`
	PID             int             `json:"pid"`
	DatabasePath    string          `json:"database_path"`
	LockPath        string          `json:"lock_path"`
	LogPath         string          `json:"log_path"`
	PollInterval    string          `json:"poll_interval"`
	InboxWatching   bool            `json:"inbox_watching"`
	Pipelines       PipelineSummary `json:"pipelines"`
	PendingMappings int             `json:"pending_mappings"`
	PendingReview   int             `json:"pending_review"`
	Checkpoint      *Checkpoint     `json:"checkpoint,omitempty"`
	LastError       string          `json:"last_error,omitempty"`
}

// PipelineListRequest filters pipeline listing by status.
type PipelineListRequest struct {
	Statuses []string `json:"statuses"`
}

// PipelineListResponse contains pipeline entries.
type PipelineListResponse struct {
	Pipelines []Pipeline `json:"pipelines"`
}

// PipelineDescribeRequest fetches a single pipeline with its tasks.
type PipelineDescribeRequest struct {
	ID int64 `json:"id"`
}

// PipelineDescribeResponse contains one pipeline, its document, and tasks.
type PipelineDescribeResponse struct {
	Pipeline Pipeline  `json:"pipeline"`
	Document *Document `json:"document,omitempty"`
	Tasks    []Task    `json:"tasks"`
}

// TaskListRequest fetches the tasks of one pipeline.
type TaskListRequest struct {
	PipelineID int64 `json:"pipeline_id"`
}

// TaskListResponse contains task entries.
type TaskListResponse struct {
	Tasks []Task `json:"tasks"`
}

// RetryFailedRequest resets retryable failed tasks on a pipeline.
type RetryFailedRequest struct {
	PipelineID int64 `json:"pipeline_id"`
}

// RetryFailedResponse reports how many tasks were reset.
type RetryFailedResponse struct {
	Updated int64 `json:"updated"`
}

// CancelPipelineRequest stops a pipeline that has not completed.
type CancelPipelineRequest struct {
	PipelineID int64 `json:"pipeline_id"`
}

// CancelPipelineResponse reports whether the pipeline changed state.
type CancelPipelineResponse struct {
	Cancelled bool `json:"cancelled"`
}

// MappingListRequest fetches pending chunk-topic mappings.
type MappingListRequest struct {
	Limit int `json:"limit"`
}

// MappingListResponse contains pending mapping entries.
type MappingListResponse struct {
	Mappings []Mapping `json:"mappings"`
}

// MappingConfirmRequest confirms a proposed mapping.
type MappingConfirmRequest struct {
	ID int64 `json:"id"`
}

// MappingConfirmResponse reports confirmation outcome.
type MappingConfirmResponse struct {
	Confirmed bool `json:"confirmed"`
}

// MappingRejectRequest rejects a proposed mapping.
type MappingRejectRequest struct {
	ID int64 `json:"id"`
}

// MappingRejectResponse reports rejection outcome.
type MappingRejectResponse struct {
	Rejected bool `json:"rejected"`
}

// ReviewListRequest fetches validated items awaiting review.
type ReviewListRequest struct {
	Limit int `json:"limit"`
}

// ReviewListResponse contains review queue entries.
type ReviewListResponse struct {
	Items []ReviewItem `json:"items"`
}

// ReviewApproveRequest approves a validated item.
type ReviewApproveRequest struct {
	ValidatedID int64  `json:"validated_id"`
	ApprovedBy  string `json:"approved_by"`
}

// ReviewApproveResponse reports the created approved item.
type ReviewApproveResponse struct {
	ApprovedID int64 `json:"approved_id"`
}

// ReviewRejectRequest rejects a validated item with a reason.
type ReviewRejectRequest struct {
	ValidatedID int64  `json:"validated_id"`
	Reason      string `json:"reason"`
	RejectedBy  string `json:"rejected_by"`
}

// ReviewRejectResponse reports rejection outcome.
type ReviewRejectResponse struct {
	Rejected bool `json:"rejected"`
}

// IngestRequest registers a source file for processing.
type IngestRequest struct {
	Path     string `json:"path"`
	Title    string `json:"title"`
	Language string `json:"language"`
	Level    string `json:"level"`
}

// IngestResponse contains the registered document and its pipeline.
type IngestResponse struct {
	Document Document `json:"document"`
	Pipeline Pipeline `json:"pipeline"`
}

// CheckpointRequest fetches the worker's latest checkpoint.
type CheckpointRequest struct{}

// CheckpointResponse contains the latest checkpoint, if any.
type CheckpointResponse struct {
	Checkpoint *Checkpoint `json:"checkpoint,omitempty"`
}

// TestNotificationRequest triggers a notification test.
type TestNotificationRequest struct{}

// TestNotificationResponse reports notification test outcome.
type TestNotificationResponse struct {
	Sent    bool   `json:"sent"`
	Message string `json:"message"`
}
