package consensus

import (
	"regexp"
	"strings"
)

// ErrorPrefix marks a backend response that is a failure, not an answer.
const ErrorPrefix = "Error"

// ErrorMarker renders err as a response string that extraction treats as absent.
func ErrorMarker(err error) string {
	return ErrorPrefix + ": " + err.Error()
}

// IsErrorMarker reports whether response denotes a failed backend query.
func IsErrorMarker(response string) bool {
	return strings.HasPrefix(response, ErrorPrefix)
}

// An answer ends at a sentence period, a newline, or the end of the text.
// A period followed by a digit does not end it, so decimals survive.
const answerEnd = `(?:\.(?:\s|$)|\n|$)`

// answerPatterns are tried in order; the first pattern with any match wins
// and its last match is used.
var answerPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)final answer\s*(?:is\s*[:=]?|[:=])\s*(.+?)` + answerEnd),
	regexp.MustCompile(`(?i)answer\s*[:=]\s*(.+?)` + answerEnd),
	regexp.MustCompile(`(?i)result\s*[:=]\s*(.+?)` + answerEnd),
	regexp.MustCompile(`(?i)solution\s*[:=]\s*(.+?)` + answerEnd),
	regexp.MustCompile(`(?i)therefore,\s*(.+?)` + answerEnd),
	regexp.MustCompile(`(?i)thus,\s*(.+?)` + answerEnd),
	regexp.MustCompile(`=\s*(.+?)` + answerEnd),
}

// ExtractAnswer returns the best guess at the final answer in one response.
// Empty responses and error markers yield an absent answer.
func ExtractAnswer(response string) Optional[string] {
	if strings.TrimSpace(response) == "" || IsErrorMarker(response) {
		return None[string]()
	}

	for _, re := range answerPatterns {
		matches := re.FindAllStringSubmatch(response, -1)
		if len(matches) == 0 {
			continue
		}
		last := matches[len(matches)-1]
		return Some(strings.TrimSpace(last[1]))
	}

	lines := strings.Split(response, "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if line := strings.TrimSpace(lines[i]); line != "" {
			return Some(line)
		}
	}
	return None[string]()
}

// ExtractAnswers applies ExtractAnswer to every backend, preserving order.
func ExtractAnswers(responses Responses) Answers {
	var out Answers
	for backend, response := range responses.All() {
		out.Set(backend, ExtractAnswer(response))
	}
	return out
}
