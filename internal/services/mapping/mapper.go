package mapping

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"lectern/internal/config"
	"lectern/internal/documents"
	"lectern/internal/logging"
	"lectern/internal/services/llm"
)

// CompletionClient is the part of the LLM client the mapper needs.
type CompletionClient interface {
	CompleteJSON(ctx context.Context, req llm.Request) (*llm.Completion, error)
}

// Service assigns document chunks to topics.
type Service struct {
	docs          *documents.Store
	client        CompletionClient
	minConfidence float64
	logger        *slog.Logger
}

func NewService(docs *documents.Store, client CompletionClient, cfg *config.Config, logger *slog.Logger) *Service {
	return &Service{
		docs:          docs,
		client:        client,
		minConfidence: cfg.Mapping.MinConfidence,
		logger:        logging.NewComponentLogger(logger, "mapping"),
	}
}

type assignment struct {
	ChunkIndex int     `json:"chunk_index"`
	Topic      string  `json:"topic"`
	Confidence float64 `json:"confidence"`
	Rationale  string  `json:"rationale"`
}

type assignmentResponse struct {
	Assignments []assignment `json:"assignments"`
}

// MapChunks asks the model for one topic per chunk and stores the accepted
// assignments as pending mappings. It returns the number of mappings
// created. Assignments below the configured confidence floor and
// assignments for unknown chunk indexes are skipped, not failed.
func (s *Service) MapChunks(ctx context.Context, doc *documents.Document, chunks []*documents.Chunk) (int, error) {
	if doc == nil {
		return 0, fmt.Errorf("map chunks: nil document")
	}
	if len(chunks) == 0 {
		return 0, nil
	}

	level, err := s.docs.ResolveLevel(ctx, doc.Language, doc.TargetLevel)
	if err != nil {
		return 0, fmt.Errorf("resolve level for document %d: %w", doc.ID, err)
	}

	topics, err := s.docs.ListTopics(ctx, doc.Language)
	if err != nil {
		return 0, fmt.Errorf("list topics for %s: %w", doc.Language, err)
	}
	catalog := make([]string, 0, len(topics))
	for _, topic := range topics {
		catalog = append(catalog, topic.Name)
	}

	digests := make(map[int]string, len(chunks))
	byIndex := make(map[int]*documents.Chunk, len(chunks))
	for _, chunk := range chunks {
		digests[chunk.Index] = digest(chunk.Text)
		byIndex[chunk.Index] = chunk
	}

	completion, err := s.client.CompleteJSON(ctx, llm.Request{
		System:      topicAssignmentPrompt,
		User:        buildUserPrompt(doc.Language, level.Code, catalog, digests),
		Temperature: 0,
	})
	if err != nil {
		return 0, fmt.Errorf("topic assignment for document %d: %w", doc.ID, err)
	}

	var resp assignmentResponse
	if err := llm.DecodeJSON(completion.Content, &resp); err != nil {
		return 0, fmt.Errorf("decode topic assignments for document %d: %w", doc.ID, err)
	}

	created := 0
	skipped := 0
	for _, a := range resp.Assignments {
		name := strings.TrimSpace(a.Topic)
		if name == "" {
			skipped++
			continue
		}
		chunk, ok := byIndex[a.ChunkIndex]
		if !ok {
			s.logger.Warn("assignment references unknown chunk",
				logging.Int64("document_id", doc.ID),
				logging.Int("chunk_index", a.ChunkIndex))
			skipped++
			continue
		}
		confidence := clamp01(a.Confidence)
		if confidence < s.minConfidence {
			s.logger.Debug("assignment below confidence floor",
				logging.Int64("document_id", doc.ID),
				logging.Int("chunk_index", a.ChunkIndex),
				logging.String("topic", name),
				logging.Float64("confidence", confidence))
			skipped++
			continue
		}

		topic, err := s.docs.EnsureTopic(ctx, name, doc.Language, &level.ID)
		if err != nil {
			return created, fmt.Errorf("ensure topic %q: %w", name, err)
		}
		if _, err := s.docs.CreateMapping(ctx, chunk.ID, doc.ID, topic.ID, confidence, a.Rationale); err != nil {
			return created, fmt.Errorf("create mapping for chunk %d: %w", chunk.ID, err)
		}
		created++
	}

	s.logger.Info("chunks mapped",
		logging.Int64("document_id", doc.ID),
		logging.Int("chunks", len(chunks)),
		logging.Int("mappings", created),
		logging.Int("skipped", skipped),
		logging.String("model", completion.Model),
		logging.Int64("prompt_tokens", completion.PromptTokens),
		logging.Int64("completion_tokens", completion.CompletionTokens))
	return created, nil
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
