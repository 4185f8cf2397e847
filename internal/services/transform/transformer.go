package transform

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"lectern/internal/config"
	"lectern/internal/documents"
	"lectern/internal/lifecycle"
	"lectern/internal/logging"
	"lectern/internal/services"
	"lectern/internal/services/llm"
)

// CompletionClient is the part of the LLM client the transformer needs.
type CompletionClient interface {
	CompleteJSON(ctx context.Context, req llm.Request) (*llm.Completion, error)
	Model() string
}

// Service transforms confirmed mappings into draft learning items.
type Service struct {
	docs        *documents.Store
	life        *lifecycle.Store
	client      CompletionClient
	maxItems    int
	temperature float64
	logger      *slog.Logger
}

func NewService(docs *documents.Store, life *lifecycle.Store, client CompletionClient, cfg *config.Config, logger *slog.Logger) *Service {
	return &Service{
		docs:        docs,
		life:        life,
		client:      client,
		maxItems:    cfg.Transform.MaxItemsPerMapping,
		temperature: cfg.Transform.Temperature,
		logger:      logging.NewComponentLogger(logger, "transform"),
	}
}

// Result reports one transformation attempt.
type Result struct {
	JobID      int64
	DataType   lifecycle.DataType
	Drafts     []*lifecycle.Draft
	Duplicates int
}

// targetDataType picks the learning-item type a chunk transforms into.
func targetDataType(ct documents.ChunkType) lifecycle.DataType {
	switch ct {
	case documents.ChunkList:
		return lifecycle.TypeMeaning
	case documents.ChunkDialogue:
		return lifecycle.TypeUtterance
	case documents.ChunkExercise:
		return lifecycle.TypeExercise
	default:
		return lifecycle.TypeRule
	}
}

// TransformMapping asks the model to produce learning items for one
// confirmed mapping and stores them as drafts. Items the lifecycle
// store's dedup guard refuses are counted, not failed. Every attempt
// leaves a transformation job row; on error the job is marked failed
// with the cause before the error is returned.
func (s *Service) TransformMapping(ctx context.Context, mapping *documents.Mapping) (*Result, error) {
	if mapping == nil {
		return nil, fmt.Errorf("transform: nil mapping")
	}

	chunk, err := s.docs.GetChunk(ctx, mapping.ChunkID)
	if err != nil {
		return nil, fmt.Errorf("load chunk %d: %w", mapping.ChunkID, err)
	}
	if chunk == nil {
		return nil, services.Wrap(services.ErrNotFound, "transform", "load", fmt.Sprintf("chunk %d", mapping.ChunkID), nil)
	}
	topic, err := s.docs.GetTopic(ctx, mapping.TopicID)
	if err != nil {
		return nil, fmt.Errorf("load topic %d: %w", mapping.TopicID, err)
	}
	if topic == nil {
		return nil, services.Wrap(services.ErrNotFound, "transform", "load", fmt.Sprintf("topic %d", mapping.TopicID), nil)
	}
	doc, err := s.docs.GetDocument(ctx, mapping.DocumentID)
	if err != nil {
		return nil, fmt.Errorf("load document %d: %w", mapping.DocumentID, err)
	}
	if doc == nil {
		return nil, services.Wrap(services.ErrNotFound, "transform", "load", fmt.Sprintf("document %d", mapping.DocumentID), nil)
	}

	dt := targetDataType(chunk.Type)
	system, err := promptFor(dt)
	if err != nil {
		return nil, err
	}

	job, err := s.life.CreateTransformationJob(ctx, mapping.ID, s.client.Model())
	if err != nil {
		return nil, fmt.Errorf("create transformation job: %w", err)
	}

	completion, err := s.client.CompleteJSON(ctx, llm.Request{
		System:      system,
		User:        buildUserPrompt(doc.Language, doc.TargetLevel, topic.Name, s.maxItems, chunk.Text),
		Temperature: s.temperature,
	})
	if err != nil {
		s.failJob(ctx, job.ID, err)
		return nil, fmt.Errorf("transformation for mapping %d: %w", mapping.ID, err)
	}

	var raw json.RawMessage
	if err := llm.DecodeJSON(completion.Content, &raw); err != nil {
		s.failJob(ctx, job.ID, err)
		return nil, fmt.Errorf("parse transformation reply for mapping %d: %w", mapping.ID, err)
	}
	if err := validateReply(dt, raw); err != nil {
		s.failJob(ctx, job.ID, err)
		return nil, fmt.Errorf("transformation reply for mapping %d: %w", mapping.ID, err)
	}
	payloads, err := decodeItems(dt, raw)
	if err != nil {
		s.failJob(ctx, job.ID, err)
		return nil, fmt.Errorf("transformation reply for mapping %d: %w", mapping.ID, err)
	}
	if len(payloads) > s.maxItems {
		s.logger.Warn("transformation reply over item cap",
			logging.Int64("mapping_id", mapping.ID),
			logging.Int("items", len(payloads)),
			logging.Int("cap", s.maxItems))
		payloads = payloads[:s.maxItems]
	}

	result := &Result{JobID: job.ID, DataType: dt}
	for _, payload := range payloads {
		draft, created, err := s.life.CreateDraft(ctx, mapping.TopicID, payload, &mapping.DocumentID, &mapping.ChunkID, &job.ID)
		if err != nil {
			s.failJob(ctx, job.ID, err)
			return nil, fmt.Errorf("create draft for mapping %d: %w", mapping.ID, err)
		}
		if !created {
			result.Duplicates++
			continue
		}
		result.Drafts = append(result.Drafts, draft)
	}

	if err := s.life.CompleteTransformationJob(ctx, job.ID, completion.PromptTokens, completion.CompletionTokens, completion.Duration); err != nil {
		return nil, fmt.Errorf("complete transformation job %d: %w", job.ID, err)
	}

	s.logger.Info("mapping transformed",
		logging.String(logging.FieldEventType, "mapping_transformed"),
		logging.Int64("mapping_id", mapping.ID),
		logging.Int64("job_id", job.ID),
		logging.String("data_type", string(dt)),
		logging.Int("drafts", len(result.Drafts)),
		logging.Int("duplicates", result.Duplicates),
		logging.String("model", completion.Model),
		logging.Int64("prompt_tokens", completion.PromptTokens),
		logging.Int64("completion_tokens", completion.CompletionTokens))
	return result, nil
}

func (s *Service) failJob(ctx context.Context, jobID int64, cause error) {
	if err := s.life.FailTransformationJob(ctx, jobID, cause.Error()); err != nil {
		s.logger.Warn("could not record job failure",
			logging.Int64("job_id", jobID),
			logging.Error(err))
	}
}
