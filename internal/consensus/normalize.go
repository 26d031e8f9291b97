package consensus

import (
	"regexp"
	"strings"
)

// fillerPhrases are removed from lower-cased answers by plain substring
// replacement, in this order. Removal is not word-boundary aware: "is" is
// also stripped from inside words such as "this".
var fillerPhrases = []string{
	"the answer is",
	"we get",
	"we have",
	"equals",
	"equal to",
	"is equal to",
	"is",
	"the result is",
	"final answer",
	"=",
	":",
}

var (
	strayPunctuation = regexp.MustCompile(`[,;]`)
	whitespaceRun    = regexp.MustCompile(`\s+`)
)

// CleanAnswer strips explanatory wording and punctuation from an answer.
func CleanAnswer(answer string) string {
	cleaned := strings.ToLower(answer)
	for _, phrase := range fillerPhrases {
		cleaned = strings.ReplaceAll(cleaned, phrase, "")
	}
	cleaned = strayPunctuation.ReplaceAllString(cleaned, "")
	cleaned = whitespaceRun.ReplaceAllString(cleaned, " ")
	return strings.TrimSpace(cleaned)
}

// Normalizer converts extracted answers into comparable values.
type Normalizer struct {
	parse Parser
}

// NewNormalizer returns a Normalizer using parse; nil selects ParseSymbolic.
func NewNormalizer(parse Parser) *Normalizer {
	if parse == nil {
		parse = ParseSymbolic
	}
	return &Normalizer{parse: parse}
}

// Normalize cleans an extracted answer and parses it. When parsing fails
// the cleaned text is kept as-is. Absence propagates.
func (n *Normalizer) Normalize(extracted Optional[string]) Answer {
	text, ok := extracted.Get()
	if !ok {
		return None[Value]()
	}
	cleaned := CleanAnswer(text)
	if expr, err := n.parse(cleaned); err == nil && expr != nil {
		return Some[Value](expr)
	}
	return Some[Value](Text(cleaned))
}

// NormalizeAll normalizes every backend independently, preserving order.
func (n *Normalizer) NormalizeAll(answers Answers) Ordered[Answer] {
	var out Ordered[Answer]
	for backend, extracted := range answers.All() {
		out.Set(backend, n.Normalize(extracted))
	}
	return out
}
