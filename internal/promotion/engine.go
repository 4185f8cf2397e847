package promotion

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"lectern/internal/documents"
	"lectern/internal/gates"
	"lectern/internal/lifecycle"
	"lectern/internal/logging"
)

const defaultBatchLimit = 10

// TopicDirectory resolves topics and levels for gate input. The documents
// store satisfies this.
type TopicDirectory interface {
	GetTopic(ctx context.Context, id int64) (*documents.Topic, error)
	LevelByID(ctx context.Context, id int64) (*documents.Level, error)
}

// GateOutcome records one gate's verdict for the validated item's audit
// trail.
type GateOutcome struct {
	Name   string  `json:"name"`
	Tier   int     `json:"tier"`
	Passed bool    `json:"passed"`
	Score  float64 `json:"score"`
	Reason string  `json:"reason,omitempty"`
}

// Engine runs candidates through the gate chain.
type Engine struct {
	store  *lifecycle.Store
	topics TopicDirectory
	gates  []gates.Gate
	logger *slog.Logger
}

// NewEngine constructs a promotion engine. The gate list is re-sorted by
// tier so callers cannot accidentally run an expensive gate first.
func NewEngine(store *lifecycle.Store, topics TopicDirectory, gateList []gates.Gate, logger *slog.Logger) *Engine {
	ordered := make([]gates.Gate, len(gateList))
	copy(ordered, gateList)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Tier() < ordered[j].Tier() })
	return &Engine{
		store:  store,
		topics: topics,
		gates:  ordered,
		logger: logging.NewComponentLogger(logger, "promotion"),
	}
}

// ProcessBatch examines up to limit candidates and returns how many
// advanced: promoted into the validated pool, or failed with the verdict
// recorded. Candidates whose tuple was rejected are skipped without
// counting; failed candidates stay selectable for later batches.
func (e *Engine) ProcessBatch(ctx context.Context, limit int) (int, error) {
	if limit <= 0 {
		limit = defaultBatchLimit
	}

	candidates, err := e.store.UnvalidatedCandidates(ctx, limit)
	if err != nil {
		return 0, fmt.Errorf("select candidates: %w", err)
	}

	advanced := 0
	for _, candidate := range candidates {
		counted, err := e.processCandidate(ctx, candidate)
		if err != nil {
			return advanced, err
		}
		if counted {
			advanced++
		}
	}
	return advanced, nil
}

// processCandidate reports whether the candidate advanced: promoted, or
// failed with gate verdicts on record. Skipped candidates do not advance.
func (e *Engine) processCandidate(ctx context.Context, candidate *lifecycle.Candidate) (bool, error) {
	rejected, err := e.store.IsRejected(ctx, candidate.TopicID, candidate.DataType, candidate.DedupKey)
	if err != nil {
		return false, fmt.Errorf("rejection lookup for candidate %d: %w", candidate.ID, err)
	}
	if rejected {
		e.logger.Info("candidate skipped, tuple rejected",
			logging.Int64("candidate_id", candidate.ID),
			logging.String("dedup_key", candidate.DedupKey))
		return false, nil
	}

	input, err := e.gateInput(ctx, candidate)
	if err != nil {
		e.logger.Warn("candidate skipped, gate input unavailable",
			logging.Int64("candidate_id", candidate.ID),
			logging.Error(err))
		return false, nil
	}

	outcomes, passed := e.runGates(ctx, input)
	if !passed {
		if err := e.recordFailure(ctx, candidate, outcomes); err != nil {
			return false, err
		}
		return true, nil
	}

	item, promoted, err := e.store.PromoteCandidateToValidated(ctx, candidate.ID, outcomes)
	if err != nil {
		return false, fmt.Errorf("promote candidate %d: %w", candidate.ID, err)
	}
	if !promoted {
		return false, nil
	}

	priority := lifecycle.ReviewPriority(candidate.DataType)
	if err := e.store.EnqueueForReview(ctx, item.ID, candidate.DataType, priority); err != nil {
		return false, fmt.Errorf("enqueue validated item %d: %w", item.ID, err)
	}

	e.logger.Info("candidate validated",
		logging.String(logging.FieldEventType, "candidate_validated"),
		logging.Int64("candidate_id", candidate.ID),
		logging.Int64("validated_id", item.ID),
		logging.String("data_type", string(candidate.DataType)),
		logging.Int("review_priority", priority),
		logging.Int("gates_run", len(outcomes)))
	return true, nil
}

// gateInput assembles the text and level context the gates inspect.
func (e *Engine) gateInput(ctx context.Context, candidate *lifecycle.Candidate) (gates.Input, error) {
	payload, err := candidate.Payload()
	if err != nil {
		return gates.Input{}, fmt.Errorf("decode payload: %w", err)
	}

	input := gates.Input{
		Text:        payload.PrimaryText(),
		ContentType: string(candidate.DataType),
		TopicID:     candidate.TopicID,
	}

	topic, err := e.topics.GetTopic(ctx, candidate.TopicID)
	if err != nil {
		return gates.Input{}, fmt.Errorf("resolve topic %d: %w", candidate.TopicID, err)
	}
	if topic == nil {
		return gates.Input{}, fmt.Errorf("topic %d not found", candidate.TopicID)
	}
	input.Language = topic.Language

	if topic.LevelID != nil {
		level, err := e.topics.LevelByID(ctx, *topic.LevelID)
		if err != nil {
			return gates.Input{}, fmt.Errorf("resolve level %d: %w", *topic.LevelID, err)
		}
		if level != nil {
			input.Level = level.Code
		}
	}
	return input, nil
}

// runGates executes the chain in tier order and stops at the first failure.
// The returned outcomes cover only the gates that actually ran.
func (e *Engine) runGates(ctx context.Context, input gates.Input) ([]GateOutcome, bool) {
	outcomes := make([]GateOutcome, 0, len(e.gates))
	for _, gate := range e.gates {
		result := gate.Check(ctx, input)
		outcomes = append(outcomes, GateOutcome{
			Name:   gate.Name(),
			Tier:   gate.Tier(),
			Passed: result.Passed,
			Score:  result.Score,
			Reason: result.Reason,
		})
		if !result.Passed {
			return outcomes, false
		}
	}
	return outcomes, true
}

func (e *Engine) recordFailure(ctx context.Context, candidate *lifecycle.Candidate, outcomes []GateOutcome) error {
	var failures []lifecycle.GateFailureInput
	for _, outcome := range outcomes {
		if outcome.Passed {
			continue
		}
		failures = append(failures, lifecycle.GateFailureInput{
			GateName: outcome.Name,
			Tier:     outcome.Tier,
			Reason:   outcome.Reason,
			Score:    outcome.Score,
		})
	}
	if err := e.store.RecordGateFailures(ctx, candidate.ID, failures); err != nil {
		return fmt.Errorf("record gate failures for candidate %d: %w", candidate.ID, err)
	}

	last := outcomes[len(outcomes)-1]
	e.logger.Warn("candidate failed gates",
		logging.String(logging.FieldEventType, "gates_failed"),
		logging.Int64("candidate_id", candidate.ID),
		logging.String("gate", last.Name),
		logging.Int("tier", last.Tier),
		logging.Alert("gate_failure"),
		logging.String("reason", last.Reason))
	return nil
}
