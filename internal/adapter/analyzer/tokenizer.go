package analyzer

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Tokenizer splits passage text into normalized terms: lowercased, accents
// folded, stopwords dropped and regular plurals reduced to their singular.
// The knowledge base mixes English and Portuguese sources, so both stopword
// lists apply.
type Tokenizer struct {
	stopwords map[string]struct{}
	fold      bool
}

// NewTokenizer creates a new Tokenizer. When foldPlurals is set, trailing
// plural suffixes are stripped so "cows" and "cow" share a term.
func NewTokenizer(foldPlurals bool) *Tokenizer {
	return &Tokenizer{
		stopwords: defaultStopwords(),
		fold:      foldPlurals,
	}
}

// Tokenize splits text into terms.
func (t *Tokenizer) Tokenize(text string) []string {
	words := splitWords(foldAccents(text))
	tokens := make([]string, 0, len(words))

	for _, word := range words {
		word = strings.ToLower(word)
		if len([]rune(word)) < 2 {
			continue
		}
		if _, isStop := t.stopwords[word]; isStop {
			continue
		}
		if t.fold {
			word = singular(word)
		}
		tokens = append(tokens, word)
	}

	return tokens
}

// TermFrequencies counts the terms of text.
func (t *Tokenizer) TermFrequencies(text string) map[string]int {
	tf := make(map[string]int)
	for _, tok := range t.Tokenize(text) {
		tf[tok]++
	}
	return tf
}

func foldAccents(text string) string {
	tr := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(tr, text)
	if err != nil {
		return text
	}
	return out
}

// singular strips the common English and Portuguese plural endings. It is
// conservative: words shorter than four letters are kept as-is.
func singular(word string) string {
	n := len(word)
	if n < 4 {
		return word
	}
	switch {
	case strings.HasSuffix(word, "ies"):
		return word[:n-3] + "y"
	case n >= 6 && (strings.HasSuffix(word, "oes") || strings.HasSuffix(word, "aes")):
		// Portuguese "-ões"/"-ães" after accent folding
		return word[:n-3] + "ao"
	case strings.HasSuffix(word, "sses"), strings.HasSuffix(word, "xes"), strings.HasSuffix(word, "ches"):
		return word[:n-2]
	case strings.HasSuffix(word, "ss"), strings.HasSuffix(word, "us"), strings.HasSuffix(word, "is"):
		return word
	case strings.HasSuffix(word, "s"):
		return word[:n-1]
	}
	return word
}

// splitWords splits text into words using unicode letter/digit classes.
func splitWords(text string) []string {
	var words []string
	var current strings.Builder

	for _, r := range text {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			current.WriteRune(r)
			continue
		}
		if current.Len() > 0 {
			words = append(words, current.String())
			current.Reset()
		}
	}
	if current.Len() > 0 {
		words = append(words, current.String())
	}

	return words
}

func defaultStopwords() map[string]struct{} {
	english := []string{
		"a", "an", "and", "are", "as", "at", "be", "by", "for",
		"from", "has", "he", "in", "is", "it", "its", "of", "on",
		"that", "the", "to", "was", "were", "will", "with", "this",
		"have", "had", "but", "not", "or", "so", "no", "can", "do",
		"does", "did", "been", "which", "what", "when", "where", "how",
		"into", "than", "also", "may", "these", "those", "there",
	}
	portuguese := []string{
		"de", "da", "do", "das", "dos", "em", "na", "no", "nas", "nos",
		"um", "uma", "uns", "umas", "para", "por", "com", "sem", "que",
		"se", "ao", "aos", "os", "as", "como", "mais", "mas", "ou",
		"sao", "ser", "foi", "pela", "pelo", "pelas", "pelos", "sua", "seu",
		"qual", "quais", "sobre", "entre",
	}
	m := make(map[string]struct{}, len(english)+len(portuguese))
	for _, s := range english {
		m[s] = struct{}{}
	}
	for _, s := range portuguese {
		m[s] = struct{}{}
	}
	return m
}
