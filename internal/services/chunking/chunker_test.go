package chunking

import (
	"strings"
	"testing"

	"lectern/internal/documents"
	"lectern/internal/logging"
)

func TestChunkSplitsAndAttributesPages(t *testing.T) {
	svc := NewService(logging.NewNop())
	pages := []documents.PageInput{
		{Number: 1, Text: "# Unidad 1\n\nHola, me llamo Ana. Vivo en Madrid con mi familia."},
		{Number: 2, Text: "El fin de semana me gusta pasear por el parque."},
	}

	chunks := svc.Chunk(pages)
	if len(chunks) != 3 {
		t.Fatalf("chunks = %d, want 3", len(chunks))
	}
	for i, chunk := range chunks {
		if chunk.Index != i {
			t.Fatalf("chunk %d has index %d", i, chunk.Index)
		}
	}
	if chunks[0].PageNumber != 1 || chunks[2].PageNumber != 2 {
		t.Fatalf("page attribution %d/%d", chunks[0].PageNumber, chunks[2].PageNumber)
	}
	if chunks[1].WordCount != 10 {
		t.Fatalf("word count = %d, want 10", chunks[1].WordCount)
	}
	if chunks[1].CharCount != len([]rune(pages[0].Text))-len([]rune("# Unidad 1\n\n")) {
		t.Fatalf("char count = %d", chunks[1].CharCount)
	}
}

func TestClassifyHeading(t *testing.T) {
	cases := []string{
		"# Unidad 3",
		"Unidad 3: La familia",
		"2.1 Los verbos regulares",
	}
	for _, block := range cases {
		chunkType, confidence := classify(block)
		if chunkType != documents.ChunkHeading {
			t.Errorf("%q classified as %s", block, chunkType)
		}
		if confidence <= 0 {
			t.Errorf("%q confidence %f", block, confidence)
		}
	}

	if chunkType, _ := classify("Me gusta el verano."); chunkType != documents.ChunkParagraph {
		t.Errorf("sentence classified as %s", chunkType)
	}
}

func TestClassifyDialogue(t *testing.T) {
	block := "— ¿Cómo te llamas?\n— Me llamo Juan.\n— Mucho gusto."
	chunkType, confidence := classify(block)
	if chunkType != documents.ChunkDialogue {
		t.Fatalf("classified as %s", chunkType)
	}
	if confidence < 0.8 {
		t.Fatalf("confidence %f", confidence)
	}

	speakers := "Ana: ¿Qué hora es?\nJuan: Son las tres."
	if chunkType, _ := classify(speakers); chunkType != documents.ChunkDialogue {
		t.Fatalf("speaker lines classified as %s", chunkType)
	}
}

func TestClassifyVocabularyList(t *testing.T) {
	block := "la casa - the house\nel perro - the dog\nel gato - the cat"
	chunkType, _ := classify(block)
	if chunkType != documents.ChunkList {
		t.Fatalf("classified as %s", chunkType)
	}

	bulleted := "• la mesa: the table\n• la silla: the chair"
	if chunkType, _ := classify(bulleted); chunkType != documents.ChunkList {
		t.Fatalf("bulleted list classified as %s", chunkType)
	}
}

func TestClassifyExercise(t *testing.T) {
	cases := []string{
		"Completa las frases con la forma correcta del verbo.",
		"Yo ___ estudiante y tú ___ profesor.",
		"Ejercicio 2. Traduce las siguientes palabras al español.",
	}
	for _, block := range cases {
		chunkType, _ := classify(block)
		if chunkType != documents.ChunkExercise {
			t.Errorf("%q classified as %s", block, chunkType)
		}
	}
}

func TestClassifyInstructionLeadInIsNotHeading(t *testing.T) {
	chunkType, _ := classify("Completa las frases:")
	if chunkType != documents.ChunkExercise {
		t.Fatalf("classified as %s", chunkType)
	}
}

func TestChunkSkipsEmptyBlocks(t *testing.T) {
	svc := NewService(logging.NewNop())
	chunks := svc.Chunk([]documents.PageInput{{Number: 1, Text: "Hola.\n\n   \n\nAdiós."}})
	if len(chunks) != 2 {
		t.Fatalf("chunks = %d, want 2", len(chunks))
	}
	for _, chunk := range chunks {
		if strings.TrimSpace(chunk.Text) == "" {
			t.Fatal("empty chunk survived")
		}
	}
}
