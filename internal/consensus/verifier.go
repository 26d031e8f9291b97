package consensus

// Result is the outcome of reconciling one problem's backend responses.
type Result struct {
	Consensus    Verdict     `json:"consensus"`
	Explanation  Explanation `json:"explanation"`
	RawAnswers   Answers     `json:"raw_answers"`
	RawResponses Responses   `json:"raw_responses"`
}

// Option configures a Verifier.
type Option func(*Verifier)

// WithParser replaces the symbolic parser used during normalization.
func WithParser(p Parser) Option {
	return func(v *Verifier) {
		v.normalizer = NewNormalizer(p)
	}
}

// Verifier reconciles backend responses into a single verdict. It holds no
// per-request state and is safe for concurrent use.
type Verifier struct {
	normalizer *Normalizer
}

// New creates a Verifier.
func New(opts ...Option) *Verifier {
	v := &Verifier{normalizer: NewNormalizer(nil)}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Reconcile runs extraction, normalization, consensus resolution and
// explanation selection in that order. It performs no I/O and never fails.
func (v *Verifier) Reconcile(responses Responses) *Result {
	extracted := ExtractAnswers(responses)
	normalized := v.normalizer.NormalizeAll(extracted)
	verdict := FindConsensus(normalized)

	return &Result{
		Consensus:    verdict,
		Explanation:  SelectExplanation(responses, verdict),
		RawAnswers:   extracted,
		RawResponses: responses,
	}
}
