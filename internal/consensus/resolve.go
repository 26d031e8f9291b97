package consensus

// Status is the agreement state among backends.
type Status string

const (
	StatusNoModels          Status = "no_models"
	StatusNoConsensus       Status = "no_consensus"
	StatusSingleModel       Status = "single_model"
	StatusFullConsensus     Status = "full_consensus"
	StatusMajorityConsensus Status = "majority_consensus"
)

// Agreed reports whether the status carries an agreed answer.
func (s Status) Agreed() bool {
	return s == StatusFullConsensus || s == StatusMajorityConsensus
}

// Confidence grades a verdict.
type Confidence string

const (
	ConfidenceLow    Confidence = "low"
	ConfidenceMedium Confidence = "medium"
	ConfidenceHigh   Confidence = "high"
)

// Verdict is the outcome of consensus resolution.
type Verdict struct {
	Status     Status     `json:"status"`
	Confidence Confidence `json:"confidence"`
	// Answer is the agreed (or single) answer in string form.
	Answer *string `json:"answer,omitempty"`
	// Model is set for single_model verdicts.
	Model string `json:"model,omitempty"`
	// AgreeingModels lists the backends that hold Answer.
	AgreeingModels []string `json:"agreeing_models,omitempty"`
	// Answers carries every backend's stringified answer when no consensus
	// was found, for diagnostics.
	Answers *Answers `json:"answers,omitempty"`

	value Value
}

// Value returns the agreed normalized value. It is only available on
// verdicts produced in-process, not on decoded ones.
func (v Verdict) Value() (Value, bool) {
	return v.value, v.value != nil
}

func agreed(status Status, confidence Confidence, value Value) Verdict {
	s := value.String()
	return Verdict{
		Status:     status,
		Confidence: confidence,
		Answer:     &s,
		value:      value,
	}
}

// FindConsensus aggregates normalized answers into exactly one Verdict. It
// never fails: every input, including one with no usable answers, yields a
// well-formed verdict.
func FindConsensus(answers Ordered[Answer]) Verdict {
	entries := answers.Entries()
	n := len(entries)

	switch n {
	case 0:
		return Verdict{Status: StatusNoModels, Confidence: ConfidenceLow}
	case 1:
		v, ok := entries[0].Value.Get()
		if !ok {
			return Verdict{Status: StatusNoConsensus, Confidence: ConfidenceLow}
		}
		verdict := agreed(StatusSingleModel, ConfidenceMedium, v)
		verdict.Model = entries[0].Backend
		return verdict
	}

	ref := -1
	for i, e := range entries {
		if e.Value.Present() {
			ref = i
			break
		}
	}
	if ref < 0 {
		return Verdict{Status: StatusNoConsensus, Confidence: ConfidenceLow}
	}

	allAgree := true
	holders := []string{entries[ref].Backend}
	for i, e := range entries {
		if i == ref || !e.Value.Present() {
			continue
		}
		if !Equivalent(entries[ref].Value, e.Value) {
			allAgree = false
			break
		}
		holders = append(holders, e.Backend)
	}

	if allAgree {
		v, _ := entries[ref].Value.Get()
		verdict := agreed(StatusFullConsensus, ConfidenceHigh, v)
		verdict.AgreeingModels = holders
		return verdict
	}

	if n >= 3 {
		for i, candidate := range entries {
			if !candidate.Value.Present() {
				continue
			}
			agreeing := []string{candidate.Backend}
			for j, other := range entries {
				if i == j || !other.Value.Present() {
					continue
				}
				if Equivalent(candidate.Value, other.Value) {
					agreeing = append(agreeing, other.Backend)
				}
			}
			if 2*len(agreeing) > n {
				v, _ := candidate.Value.Get()
				verdict := agreed(StatusMajorityConsensus, ConfidenceMedium, v)
				verdict.AgreeingModels = agreeing
				return verdict
			}
		}
	}

	var diagnostics Answers
	for _, e := range entries {
		if v, ok := e.Value.Get(); ok {
			diagnostics.Set(e.Backend, Some(v.String()))
		} else {
			diagnostics.Set(e.Backend, None[string]())
		}
	}
	return Verdict{
		Status:     StatusNoConsensus,
		Confidence: ConfidenceLow,
		Answers:    &diagnostics,
	}
}
