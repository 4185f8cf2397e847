package mapping_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"lectern/internal/config"
	"lectern/internal/documents"
	"lectern/internal/services/llm"
	"lectern/internal/services/mapping"
	"lectern/internal/testsupport"
)

type stubClient struct {
	content  string
	err      error
	requests []llm.Request
}

func (c *stubClient) CompleteJSON(ctx context.Context, req llm.Request) (*llm.Completion, error) {
	c.requests = append(c.requests, req)
	if c.err != nil {
		return nil, c.err
	}
	return &llm.Completion{
		Content:          c.content,
		Model:            "test-model",
		PromptTokens:     100,
		CompletionTokens: 40,
	}, nil
}

type fixture struct {
	cfg    *config.Config
	docs   *documents.Store
	doc    *documents.Document
	chunks []*documents.Chunk
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	cfg := testsupport.NewConfig(t)
	handle := testsupport.MustOpenDB(t, cfg)
	docs := documents.NewStore(handle, nil)

	doc, err := docs.CreateDocument(ctx, "Aula 1", "/inbox/aula1.pdf", "es", "A1")
	if err != nil {
		t.Fatalf("CreateDocument failed: %v", err)
	}
	pages := []documents.PageInput{{Number: 1, Text: "Hola. Me llamo Ana.\n\nel perro - the dog"}}
	inputs := []documents.ChunkInput{
		{Index: 0, PageNumber: 1, Type: documents.ChunkParagraph, Text: "Hola. Me llamo Ana. Soy de Madrid.", Confidence: 0.6, WordCount: 7, CharCount: 34},
		{Index: 1, PageNumber: 1, Type: documents.ChunkList, Text: "el perro - the dog\nel gato - the cat", Confidence: 0.8, WordCount: 10, CharCount: 36},
	}
	if err := docs.SaveExtraction(ctx, doc.ID, pages, inputs); err != nil {
		t.Fatalf("SaveExtraction failed: %v", err)
	}
	chunks, err := docs.Chunks(ctx, doc.ID)
	if err != nil {
		t.Fatalf("Chunks failed: %v", err)
	}
	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunks, got %d", len(chunks))
	}

	return &fixture{cfg: cfg, docs: docs, doc: doc, chunks: chunks}
}

func TestMapChunksCreatesPendingMappings(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	client := &stubClient{content: `{"assignments": [
		{"chunk_index": 0, "topic": "Presentaciones", "confidence": 0.9, "rationale": "introductions dialogue"},
		{"chunk_index": 1, "topic": "Animales", "confidence": 0.8, "rationale": "animal vocabulary"}
	]}`}
	svc := mapping.NewService(fx.docs, client, fx.cfg, nil)

	created, err := svc.MapChunks(ctx, fx.doc, fx.chunks)
	if err != nil {
		t.Fatalf("MapChunks failed: %v", err)
	}
	if created != 2 {
		t.Fatalf("expected 2 mappings, got %d", created)
	}

	mappings, err := fx.docs.MappingsForDocument(ctx, fx.doc.ID)
	if err != nil {
		t.Fatalf("MappingsForDocument failed: %v", err)
	}
	if len(mappings) != 2 {
		t.Fatalf("expected 2 stored mappings, got %d", len(mappings))
	}
	for _, m := range mappings {
		if m.Status != documents.MappingPending {
			t.Fatalf("expected pending mapping, got %s", m.Status)
		}
	}

	topic, err := fx.docs.TopicByName(ctx, "Presentaciones", "es")
	if err != nil {
		t.Fatalf("TopicByName failed: %v", err)
	}
	if topic == nil {
		t.Fatal("expected new topic to be created")
	}
	if topic.LevelID == nil {
		t.Fatal("expected new topic to carry the document's level")
	}
}

func TestMapChunksPromptCarriesCatalogAndDigests(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	if _, err := fx.docs.EnsureTopic(ctx, "Saludos", "es", nil); err != nil {
		t.Fatalf("EnsureTopic failed: %v", err)
	}

	client := &stubClient{content: `{"assignments": []}`}
	svc := mapping.NewService(fx.docs, client, fx.cfg, nil)

	if _, err := svc.MapChunks(ctx, fx.doc, fx.chunks); err != nil {
		t.Fatalf("MapChunks failed: %v", err)
	}
	if len(client.requests) != 1 {
		t.Fatalf("expected one completion request, got %d", len(client.requests))
	}

	prompt := client.requests[0].User
	for _, want := range []string{"Target level: A1", "- Saludos", "[0] Hola. Me llamo Ana.", "[1] el perro - the dog"} {
		if !strings.Contains(prompt, want) {
			t.Fatalf("prompt missing %q:\n%s", want, prompt)
		}
	}
	if client.requests[0].Temperature != 0 {
		t.Fatalf("expected temperature 0, got %v", client.requests[0].Temperature)
	}
}

func TestMapChunksSkipsLowConfidenceAssignments(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	client := &stubClient{content: `{"assignments": [
		{"chunk_index": 0, "topic": "Presentaciones", "confidence": 0.9, "rationale": "clear"},
		{"chunk_index": 1, "topic": "Portada", "confidence": 0.2, "rationale": "probably front matter"}
	]}`}
	svc := mapping.NewService(fx.docs, client, fx.cfg, nil)

	created, err := svc.MapChunks(ctx, fx.doc, fx.chunks)
	if err != nil {
		t.Fatalf("MapChunks failed: %v", err)
	}
	if created != 1 {
		t.Fatalf("expected 1 mapping, got %d", created)
	}

	if topic, err := fx.docs.TopicByName(ctx, "Portada", "es"); err != nil {
		t.Fatalf("TopicByName failed: %v", err)
	} else if topic != nil {
		t.Fatal("low-confidence assignment should not create its topic")
	}
}

func TestMapChunksIgnoresUnknownChunkIndexes(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	client := &stubClient{content: `{"assignments": [
		{"chunk_index": 7, "topic": "Presentaciones", "confidence": 0.9, "rationale": "x"},
		{"chunk_index": 1, "topic": "", "confidence": 0.9, "rationale": "x"}
	]}`}
	svc := mapping.NewService(fx.docs, client, fx.cfg, nil)

	created, err := svc.MapChunks(ctx, fx.doc, fx.chunks)
	if err != nil {
		t.Fatalf("MapChunks failed: %v", err)
	}
	if created != 0 {
		t.Fatalf("expected 0 mappings, got %d", created)
	}

	mappings, err := fx.docs.MappingsForDocument(ctx, fx.doc.ID)
	if err != nil {
		t.Fatalf("MappingsForDocument failed: %v", err)
	}
	if len(mappings) != 0 {
		t.Fatalf("expected no stored mappings, got %d", len(mappings))
	}
}

func TestMapChunksClampsConfidence(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	client := &stubClient{content: `{"assignments": [
		{"chunk_index": 0, "topic": "Presentaciones", "confidence": 3.5, "rationale": "overshoot"}
	]}`}
	svc := mapping.NewService(fx.docs, client, fx.cfg, nil)

	if _, err := svc.MapChunks(ctx, fx.doc, fx.chunks); err != nil {
		t.Fatalf("MapChunks failed: %v", err)
	}

	mappings, err := fx.docs.MappingsForDocument(ctx, fx.doc.ID)
	if err != nil {
		t.Fatalf("MappingsForDocument failed: %v", err)
	}
	if len(mappings) != 1 || mappings[0].Confidence != 1 {
		t.Fatalf("expected one mapping with confidence clamped to 1, got %#v", mappings)
	}
}

func TestMapChunksPropagatesClientErrors(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	client := &stubClient{err: errors.New("model unavailable")}
	svc := mapping.NewService(fx.docs, client, fx.cfg, nil)

	if _, err := svc.MapChunks(ctx, fx.doc, fx.chunks); err == nil {
		t.Fatal("expected error from failing client")
	}
}

func TestMapChunksWithNoChunksSkipsModel(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	client := &stubClient{content: `{"assignments": []}`}
	svc := mapping.NewService(fx.docs, client, fx.cfg, nil)

	created, err := svc.MapChunks(ctx, fx.doc, nil)
	if err != nil {
		t.Fatalf("MapChunks failed: %v", err)
	}
	if created != 0 {
		t.Fatalf("expected 0 mappings, got %d", created)
	}
	if len(client.requests) != 0 {
		t.Fatalf("expected no completion requests, got %d", len(client.requests))
	}
}
