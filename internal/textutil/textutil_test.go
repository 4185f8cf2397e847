package textutil

import "testing"

func TestNormalizeKey(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"  Hola  ", "hola"},
		{"¿Cómo estás?", "cómo estás"},
		{"HELLO   world", "hello world"},
		{"'quoted'", "quoted"},
		{"", ""},
		{"!!!", ""},
	}
	for _, tc := range cases {
		if got := NormalizeKey(tc.in); got != tc.want {
			t.Errorf("NormalizeKey(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestNormalizeKeyIdempotent(t *testing.T) {
	key := NormalizeKey("  El Perro Grande!  ")
	if NormalizeKey(key) != key {
		t.Fatalf("normalization should be idempotent, got %q", NormalizeKey(key))
	}
}

func TestTokenizeKeepsAccents(t *testing.T) {
	tokens := Tokenize("La niña comió manzanas.")
	want := []string{"la", "niña", "comió", "manzanas"}
	if len(tokens) != len(want) {
		t.Fatalf("tokens = %v", tokens)
	}
	for i := range want {
		if tokens[i] != want[i] {
			t.Fatalf("tokens[%d] = %q, want %q", i, tokens[i], want[i])
		}
	}
}

func TestCosineSimilarity(t *testing.T) {
	a := NewFingerprint("el perro grande corre por el parque")
	b := NewFingerprint("el perro grande corre por el parque")
	if a.TokenCount() != 6 {
		t.Fatalf("expected 6 distinct tokens, got %d", a.TokenCount())
	}
	if sim := CosineSimilarity(a, b); sim < 0.999 {
		t.Fatalf("identical texts similarity = %f", sim)
	}

	c := NewFingerprint("mathematik ist wunderbar heute")
	if sim := CosineSimilarity(a, c); sim > 0.1 {
		t.Fatalf("unrelated texts similarity = %f", sim)
	}

	if sim := CosineSimilarity(nil, a); sim != 0 {
		t.Fatalf("nil fingerprint similarity = %f", sim)
	}
	if NewFingerprint("   ") != nil {
		t.Fatal("blank text should produce nil fingerprint")
	}
}

func TestSanitizeFileName(t *testing.T) {
	if got := SanitizeFileName(`unit 1: "verbs" <draft>`); got != "unit 1- verbs draft" {
		t.Fatalf("sanitized = %q", got)
	}
	if got := SanitizeFileName("  "); got != "" {
		t.Fatalf("blank sanitized = %q", got)
	}
}

func TestExcerpt(t *testing.T) {
	cases := []struct {
		in   string
		max  int
		want string
	}{
		{"hola   que\ntal", 20, "hola que tal"},
		{"abcdefghij", 5, "abcde..."},
		{"hola que tal", 8, "hola que..."},
		{"corto", 0, "corto"},
		{"", 10, ""},
	}
	for _, tc := range cases {
		if got := Excerpt(tc.in, tc.max); got != tc.want {
			t.Errorf("Excerpt(%q, %d) = %q, want %q", tc.in, tc.max, got, tc.want)
		}
	}
}
