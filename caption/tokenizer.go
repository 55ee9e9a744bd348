package caption

import "strings"

// DefaultTokenizer is a plain ASCII whitespace/punctuation splitter that
// lower-cases each token. It is intentionally not Unicode-aware (spec.md's
// Non-goals exclude Unicode-aware tokenization); it exists purely as a
// reference implementation so the pipeline can be exercised end to end
// without depending on an NLP library that belongs to a different layer.
type DefaultTokenizer struct{}

var _ Tokenizer = DefaultTokenizer{}

// Tokenize splits text on runs of non-alphanumeric ASCII characters.
func (DefaultTokenizer) Tokenize(text string) []string {
	isWord := func(r rune) bool {
		return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
	}
	var tokens []string
	start := -1
	for i, r := range text {
		if isWord(r) {
			if start < 0 {
				start = i
			}
			continue
		}
		if start >= 0 {
			tokens = append(tokens, strings.ToLower(text[start:i]))
			start = -1
		}
	}
	if start >= 0 {
		tokens = append(tokens, strings.ToLower(text[start:]))
	}
	return tokens
}
