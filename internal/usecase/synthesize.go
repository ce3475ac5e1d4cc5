package usecase

import (
	"fmt"
	"strings"
	"unicode"

	"vetrag/internal/domain"
)

const (
	// NoContextAnswer is returned when there is nothing to cite.
	NoContextAnswer = "I did not find relevant information to answer this question in the diagnostic knowledge base."

	// ClosingRecommendation ends every grounded answer.
	ClosingRecommendation = "I recommend reviewing the sources cited above for additional details."

	MaxCitedDocs    = 3
	MaxSnippetChars = 400
	ellipsis        = "..."
)

// Synthesizer builds an extractive, citation-bearing answer from ranked
// chunks. It performs no I/O.
type Synthesizer struct{}

func NewSynthesizer() *Synthesizer {
	return &Synthesizer{}
}

// Synthesize cites the first MaxCitedDocs chunks in the order given.
func (s *Synthesizer) Synthesize(query string, docs []domain.ScoredChunk) string {
	if len(docs) == 0 {
		return NoContextAnswer
	}

	parts := []string{fmt.Sprintf("Summary of the main information found about '%s':", query)}
	for _, d := range docs[:min(MaxCitedDocs, len(docs))] {
		parts = append(parts, fmt.Sprintf("• Source: %s (%s)\n  %s",
			d.Chunk.DisplayName(),
			d.Chunk.DisplaySection(),
			Snippet(d.Chunk.SectionText, MaxSnippetChars),
		))
	}
	parts = append(parts, ClosingRecommendation)

	return strings.Join(parts, "\n\n")
}

// Snippet shortens text to at most limit runes, ellipsis included. The cut
// lands on the last whitespace inside the budget; text without any
// whitespace there is cut hard. When the only whitespace is a leading one
// the snippet is just the ellipsis.
func Snippet(text string, limit int) string {
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}

	budget := limit - len(ellipsis)
	if budget <= 0 {
		return ellipsis[:limit]
	}

	cut := runes[:budget]
	if !unicode.IsSpace(runes[budget]) {
		last := -1
		for i := len(cut) - 1; i >= 0; i-- {
			if unicode.IsSpace(cut[i]) {
				last = i
				break
			}
		}
		if last >= 0 {
			cut = cut[:last]
		}
	}

	return strings.TrimRightFunc(string(cut), unicode.IsSpace) + ellipsis
}

// Preview is a hard cut to at most limit runes.
func Preview(text string, limit int) string {
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit])
}
