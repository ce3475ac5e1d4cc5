package usecase

import (
	"strings"
	"testing"
	"unicode"
	"unicode/utf8"

	"vetrag/internal/domain"
)

func TestSynthesize_NoDocs(t *testing.T) {
	s := NewSynthesizer()
	if got := s.Synthesize("mastitis", nil); got != NoContextAnswer {
		t.Fatalf("expected no-context answer, got %q", got)
	}
}

func TestSynthesize_CitesTopThree(t *testing.T) {
	docs := []domain.ScoredChunk{
		{Chunk: domain.Chunk{DiseaseName: "Mastitis", SectionType: "treatment", SectionText: "Intramammary antibiotics."}},
		{Chunk: domain.Chunk{DiseaseName: "Mastitis", SectionType: "prevention", SectionText: "Milking hygiene."}},
		{Chunk: domain.Chunk{SectionText: "Unlabelled passage."}},
		{Chunk: domain.Chunk{DiseaseName: "BVD", SectionType: "diagnosis", SectionText: "PCR testing."}},
	}

	got := NewSynthesizer().Synthesize("mastitis treatment", docs)
	parts := strings.Split(got, "\n\n")
	if len(parts) != 5 {
		t.Fatalf("expected header, 3 citations and closing, got %d parts:\n%s", len(parts), got)
	}

	if parts[0] != "Summary of the main information found about 'mastitis treatment':" {
		t.Errorf("unexpected header %q", parts[0])
	}
	if parts[1] != "• Source: Mastitis (treatment)\n  Intramammary antibiotics." {
		t.Errorf("unexpected first citation %q", parts[1])
	}
	if parts[3] != "• Source: Unidentified disease (section)\n  Unlabelled passage." {
		t.Errorf("defaults not applied: %q", parts[3])
	}
	if parts[4] != ClosingRecommendation {
		t.Errorf("unexpected closing %q", parts[4])
	}
	if strings.Contains(got, "BVD") {
		t.Error("fourth document must not be cited")
	}
}

func TestSynthesize_EmptyText(t *testing.T) {
	got := NewSynthesizer().Synthesize("q", []domain.ScoredChunk{{Chunk: domain.Chunk{DiseaseName: "Mastitis"}}})
	if !strings.Contains(got, "• Source: Mastitis (section)\n  \n\n") {
		t.Errorf("empty text should yield an empty snippet: %q", got)
	}
}

func TestSnippet(t *testing.T) {
	short := "A short passage about udder health."
	if got := Snippet(short, MaxSnippetChars); got != short {
		t.Errorf("short text changed: %q", got)
	}

	exact := strings.Repeat("a", MaxSnippetChars)
	if got := Snippet(exact, MaxSnippetChars); got != exact {
		t.Error("text at the limit must not be truncated")
	}

	long := strings.Repeat("mastitis ", 100)
	got := Snippet(long, MaxSnippetChars)
	if utf8.RuneCountInString(got) > MaxSnippetChars {
		t.Fatalf("snippet has %d runes, limit %d", utf8.RuneCountInString(got), MaxSnippetChars)
	}
	if !strings.HasSuffix(got, "...") {
		t.Fatalf("truncated snippet must end with ellipsis: %q", got)
	}
	body := strings.TrimSuffix(got, "...")
	if !strings.HasPrefix(long, body) {
		t.Fatal("snippet must be a prefix of the text")
	}
	next, _ := utf8.DecodeRuneInString(long[len(body):])
	if !unicode.IsSpace(next) {
		t.Errorf("snippet cut mid-word: next rune %q", next)
	}
	if strings.HasSuffix(body, " ") {
		t.Error("snippet must not end with whitespace before the ellipsis")
	}

	noSpace := strings.Repeat("é", 1000)
	got = Snippet(noSpace, MaxSnippetChars)
	if utf8.RuneCountInString(got) != MaxSnippetChars {
		t.Errorf("hard cut should use the whole budget, got %d runes", utf8.RuneCountInString(got))
	}

	leading := " " + strings.Repeat("a", 500)
	if got := Snippet(leading, MaxSnippetChars); got != "..." {
		t.Errorf("leading whitespace is the only word boundary, got %q", got)
	}
}

func TestPreview(t *testing.T) {
	text := strings.Repeat("ç", 250)
	if got := Preview(text, MaxPreviewChars); utf8.RuneCountInString(got) != MaxPreviewChars {
		t.Errorf("expected %d runes, got %d", MaxPreviewChars, utf8.RuneCountInString(got))
	}
	if got := Preview("short", MaxPreviewChars); got != "short" {
		t.Errorf("short text changed: %q", got)
	}
}
