package consensus

import (
	"bytes"
	"encoding/json"
	"strings"
	"unicode/utf8"
)

const (
	stepBonus        = 200
	reasoningBonus   = 100
	mathSymbolBonus  = 5
	mathSymbols      = "+-*/=^√∫∑π"
	noExplanationMsg = "No valid explanations available"
)

// BestExplanation is the single response surfaced when backends agree.
type BestExplanation struct {
	Text  string `json:"best_explanation"`
	Model string `json:"model"`
}

// Explanation is what the caller shows the user: one best response when
// backends agree, otherwise every raw response.
type Explanation struct {
	Best      *BestExplanation
	Responses *Responses
}

// MarshalJSON encodes the best explanation object, the response map, or a
// plain message when neither is available.
func (e Explanation) MarshalJSON() ([]byte, error) {
	switch {
	case e.Best != nil:
		return json.Marshal(e.Best)
	case e.Responses != nil:
		return json.Marshal(e.Responses)
	default:
		return json.Marshal(noExplanationMsg)
	}
}

// UnmarshalJSON accepts any of the shapes produced by MarshalJSON.
func (e *Explanation) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if bytes.Equal(trimmed, []byte("null")) || (len(trimmed) > 0 && trimmed[0] == '"') {
		*e = Explanation{}
		return nil
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &fields); err != nil {
		return err
	}
	if _, ok := fields["best_explanation"]; ok && len(fields) == 2 {
		var best BestExplanation
		if err := json.Unmarshal(trimmed, &best); err == nil {
			if _, hasModel := fields["model"]; hasModel {
				*e = Explanation{Best: &best}
				return nil
			}
		}
	}

	var all Responses
	if err := json.Unmarshal(trimmed, &all); err != nil {
		return err
	}
	*e = Explanation{Responses: &all}
	return nil
}

// DetailScore rates how detailed a response is. Error markers score zero.
func DetailScore(response string) int {
	if response == "" || IsErrorMarker(response) {
		return 0
	}
	score := utf8.RuneCountInString(response)
	lower := strings.ToLower(response)
	if strings.Contains(lower, "step") {
		score += stepBonus
	}
	if strings.Contains(lower, "because") || strings.Contains(lower, "since") {
		score += reasoningBonus
	}
	for _, r := range response {
		if strings.ContainsRune(mathSymbols, r) {
			score += mathSymbolBonus
		}
	}
	return score
}

// mostDetailed returns the highest scoring response; the first one seen
// wins ties.
func mostDetailed(responses Responses) Explanation {
	best := -1
	var pick Entry[string]
	for backend, response := range responses.All() {
		if s := DetailScore(response); s > best {
			best = s
			pick = Entry[string]{Backend: backend, Value: response}
		}
	}
	if best < 0 {
		return Explanation{}
	}
	return Explanation{Best: &BestExplanation{Text: pick.Value, Model: pick.Backend}}
}

// SelectExplanation chooses what to show for a verdict. Full consensus
// scores every response, majority consensus only the agreeing backends, and
// any other status returns all responses unfiltered.
func SelectExplanation(responses Responses, verdict Verdict) Explanation {
	switch verdict.Status {
	case StatusFullConsensus:
		return mostDetailed(responses)
	case StatusMajorityConsensus:
		agreeing := make(map[string]bool, len(verdict.AgreeingModels))
		for _, m := range verdict.AgreeingModels {
			agreeing[m] = true
		}
		return mostDetailed(responses.Filter(func(b string) bool { return agreeing[b] }))
	default:
		all := responses.Filter(func(string) bool { return true })
		return Explanation{Responses: &all}
	}
}
