package lifecycle

import "time"

// ItemState names one rung of the content lifecycle chain.
type ItemState string

const (
	StateDraft     ItemState = "draft"
	StateCandidate ItemState = "candidate"
	StateValidated ItemState = "validated"
	StateApproved  ItemState = "approved"
	StateRejected  ItemState = "rejected"
)

// Event types appended to the lifecycle log.
const (
	EventDraftCreated        = "draft_created"
	EventDraftSkipped        = "draft_skipped_duplicate"
	EventPromotedToCandidate = "promoted_to_candidate"
	EventCandidateSkipped    = "candidate_skipped_duplicate"
	EventPromotedToValidated = "promoted_to_validated"
	EventGatesFailed         = "quality_gates_failed"
	EventApproved            = "approved"
	EventRejected            = "rejected"
	EventEnqueuedForReview   = "enqueued_for_review"
)

// JobStatus tracks a transformation attempt.
type JobStatus string

const (
	JobProcessing JobStatus = "processing"
	JobCompleted  JobStatus = "completed"
	JobFailed     JobStatus = "failed"
)

// Draft is raw transformation output, the first rung of the chain.
type Draft struct {
	ID                  int64
	TopicID             int64
	DataType            DataType
	PayloadJSON         string
	DedupKey            string
	DocumentID          *int64
	ChunkID             *int64
	TransformationJobID *int64
	CreatedAt           time.Time
}

// Payload decodes the draft's stored payload.
func (d *Draft) Payload() (Payload, error) {
	return DecodePayload(d.DataType, d.PayloadJSON)
}

// Candidate is a draft admitted to gate evaluation.
type Candidate struct {
	ID          int64
	DraftID     int64
	TopicID     int64
	DataType    DataType
	PayloadJSON string
	DedupKey    string
	CreatedAt   time.Time
}

// Payload decodes the candidate's stored payload.
func (c *Candidate) Payload() (Payload, error) {
	return DecodePayload(c.DataType, c.PayloadJSON)
}

// ValidatedItem is a candidate that passed every quality gate.
type ValidatedItem struct {
	ID              int64
	CandidateID     int64
	TopicID         int64
	DataType        DataType
	PayloadJSON     string
	DedupKey        string
	GateResultsJSON string
	CreatedAt       time.Time
}

// ApprovedItem is a validated item a human accepted.
type ApprovedItem struct {
	ID          int64
	ValidatedID int64
	TopicID     int64
	DataType    DataType
	PayloadJSON string
	DedupKey    string
	ApprovedBy  string
	CreatedAt   time.Time
}

// RejectedItem blocks its (topic, data type, dedup key) tuple from ever
// re-entering the chain. ValidatedID is nil for administrative rejections
// that never reached validation.
type RejectedItem struct {
	ID          int64
	ValidatedID *int64
	TopicID     int64
	DataType    DataType
	DedupKey    string
	Reason      string
	RejectedBy  string
	CreatedAt   time.Time
}

// ReviewQueueEntry is a validated item awaiting human review.
type ReviewQueueEntry struct {
	ID          int64
	ValidatedID int64
	DataType    DataType
	Priority    int
	QueuedAt    time.Time
	ReviewedAt  *time.Time
}

// TransformationJob is one transformation attempt with its usage audit.
type TransformationJob struct {
	ID               int64
	MappingID        int64
	Status           JobStatus
	Model            string
	PromptTokens     int64
	CompletionTokens int64
	DurationMS       int64
	RetryCount       int
	ErrorMessage     string
	CreatedAt        time.Time
	CompletedAt      *time.Time
}

// GateFailure records one failing gate for a candidate.
type GateFailure struct {
	ID          int64
	CandidateID int64
	GateName    string
	Tier        int
	Reason      string
	Score       float64
	CreatedAt   time.Time
}

// Event is one append-only lifecycle log row.
type Event struct {
	ID        int64
	EventType string
	ItemID    int64
	DataType  DataType
	FromStage ItemState
	ToStage   ItemState
	Success   bool
	Detail    string
	CreatedAt time.Time
}
