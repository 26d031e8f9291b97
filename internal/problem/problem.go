// Package problem turns raw problem text into the prompt sent to every
// backend.
package problem

import (
	"bytes"
	"errors"
	"strings"
	"text/template"
	"unicode/utf8"
)

// ErrEmpty is returned when the problem text is blank.
var ErrEmpty = errors.New("problem text is empty")

const (
	terminators  = "?.:;"
	mathChars    = "+-*/=()[]{}^√∫∑π"
	solvePreface = "Solve the following math problem: "
)

const promptTemplate = `MATH PROBLEM:
{{.Text}}

INSTRUCTIONS:
1. Solve this step-by-step
2. Show all your work and calculations
3. Clearly indicate the final answer
4. Use mathematical notation where appropriate
`

var tmpl = template.Must(template.New("problem").Parse(promptTemplate))

// Problem is a prepared math problem.
type Problem struct {
	// Text is the cleaned problem as shown to the user and stored in history.
	Text string
}

// Prepare trims raw text, terminates it with a period when it has no
// closing punctuation, and prefixes an explicit instruction when the text
// contains no mathematical notation.
func Prepare(raw string) (Problem, error) {
	text := strings.TrimSpace(raw)
	if text == "" {
		return Problem{}, ErrEmpty
	}
	if last, _ := utf8.DecodeLastRuneInString(text); !strings.ContainsRune(terminators, last) {
		text += "."
	}
	if !strings.ContainsAny(text, mathChars) {
		text = solvePreface + text
	}
	return Problem{Text: text}, nil
}

// Prompt renders the instructions sent to the backends.
func (p Problem) Prompt() string {
	var buf bytes.Buffer
	// The template has a single string field; execution cannot fail.
	_ = tmpl.Execute(&buf, p)
	return buf.String()
}
