package consensus

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type brokenExpr struct{}

func (brokenExpr) String() string { return "broken" }
func (brokenExpr) IsZero() bool   { return false }
func (brokenExpr) Difference(Expression) (Expression, error) {
	return nil, errors.New("cannot simplify")
}

func expr(t *testing.T, s string) Answer {
	t.Helper()
	e, err := ParseSymbolic(s)
	require.NoError(t, err)
	return Some[Value](e)
}

func text(s string) Answer {
	return Some[Value](Text(s))
}

func TestEquivalent(t *testing.T) {
	tests := []struct {
		name string
		a, b Answer
		want bool
	}{
		{"equal expressions", expr(t, "1/2"), expr(t, "0.5"), true},
		{"algebraic identity", expr(t, "(x+1)^2"), expr(t, "x**2 + 2*x + 1"), true},
		{"different expressions", expr(t, "4"), expr(t, "5"), false},
		{"equal text", text("x 5"), text("x 5"), true},
		{"different text", text("x 5"), text("x 6"), false},
		{"mixed kinds compare strings", expr(t, "4"), text("4"), true},
		{"mixed kinds rarely match", expr(t, "0.5"), text("0.5"), false},
		{"absent left", None[Value](), expr(t, "4"), false},
		{"absent right", expr(t, "4"), None[Value](), false},
		{"absent both", None[Value](), None[Value](), false},
		{"simplification error", Some[Value](brokenExpr{}), Some[Value](brokenExpr{}), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Equivalent(tt.a, tt.b))
		})
	}
}

func TestEquivalent_Reflexive(t *testing.T) {
	for _, a := range []Answer{expr(t, "sqrt(8)"), expr(t, "pi/2"), text("no idea")} {
		assert.True(t, Equivalent(a, a), a)
	}
}

func answers(entries ...Entry[Answer]) Ordered[Answer] {
	return OrderedOf(entries...)
}

func TestFindConsensus(t *testing.T) {
	tests := []struct {
		name       string
		in         Ordered[Answer]
		status     Status
		confidence Confidence
		answer     string
		agreeing   []string
		model      string
	}{
		{
			name:       "no backends",
			in:         answers(),
			status:     StatusNoModels,
			confidence: ConfidenceLow,
		},
		{
			name:       "single backend",
			in:         answers(Entry[Answer]{"a", expr(t, "7")}),
			status:     StatusSingleModel,
			confidence: ConfidenceMedium,
			answer:     "7",
			model:      "a",
		},
		{
			name:       "single absent backend",
			in:         answers(Entry[Answer]{"a", None[Value]()}),
			status:     StatusNoConsensus,
			confidence: ConfidenceLow,
		},
		{
			name: "all absent",
			in: answers(
				Entry[Answer]{"a", None[Value]()},
				Entry[Answer]{"b", None[Value]()},
			),
			status:     StatusNoConsensus,
			confidence: ConfidenceLow,
		},
		{
			name: "full consensus ignores absent",
			in: answers(
				Entry[Answer]{"a", None[Value]()},
				Entry[Answer]{"b", expr(t, "4")},
				Entry[Answer]{"c", expr(t, "2+2")},
			),
			status:     StatusFullConsensus,
			confidence: ConfidenceHigh,
			answer:     "4",
			agreeing:   []string{"b", "c"},
		},
		{
			name: "majority",
			in: answers(
				Entry[Answer]{"a", expr(t, "4")},
				Entry[Answer]{"b", expr(t, "5")},
				Entry[Answer]{"c", expr(t, "4")},
			),
			status:     StatusMajorityConsensus,
			confidence: ConfidenceMedium,
			answer:     "4",
			agreeing:   []string{"a", "c"},
		},
		{
			name: "majority found later in scan",
			in: answers(
				Entry[Answer]{"a", expr(t, "1")},
				Entry[Answer]{"b", expr(t, "2")},
				Entry[Answer]{"c", expr(t, "2")},
			),
			status:     StatusMajorityConsensus,
			confidence: ConfidenceMedium,
			answer:     "2",
			agreeing:   []string{"b", "c"},
		},
		{
			name: "two disagreeing",
			in: answers(
				Entry[Answer]{"a", expr(t, "4")},
				Entry[Answer]{"b", expr(t, "5")},
			),
			status:     StatusNoConsensus,
			confidence: ConfidenceLow,
		},
		{
			name: "absent backends count toward the threshold",
			in: answers(
				Entry[Answer]{"a", expr(t, "4")},
				Entry[Answer]{"b", expr(t, "5")},
				Entry[Answer]{"c", None[Value]()},
				Entry[Answer]{"d", None[Value]()},
			),
			status:     StatusNoConsensus,
			confidence: ConfidenceLow,
		},
		{
			name: "three way split",
			in: answers(
				Entry[Answer]{"a", expr(t, "1")},
				Entry[Answer]{"b", expr(t, "2")},
				Entry[Answer]{"c", text("three")},
			),
			status:     StatusNoConsensus,
			confidence: ConfidenceLow,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FindConsensus(tt.in)

			assert.Equal(t, tt.status, got.Status)
			assert.Equal(t, tt.confidence, got.Confidence)
			assert.Equal(t, tt.model, got.Model)
			assert.Equal(t, tt.agreeing, got.AgreeingModels)
			if tt.answer == "" {
				assert.Nil(t, got.Answer)
				return
			}
			require.NotNil(t, got.Answer)
			assert.Equal(t, tt.answer, *got.Answer)
			v, ok := got.Value()
			require.True(t, ok)
			assert.Equal(t, tt.answer, v.String())
		})
	}
}

func TestFindConsensus_Diagnostics(t *testing.T) {
	got := FindConsensus(answers(
		Entry[Answer]{"a", expr(t, "4")},
		Entry[Answer]{"b", text("five")},
		Entry[Answer]{"c", None[Value]()},
	))

	require.Equal(t, StatusNoConsensus, got.Status)
	require.NotNil(t, got.Answers)
	assert.Equal(t, []string{"a", "b", "c"}, got.Answers.Backends())
	b, _ := got.Answers.Get("b")
	assert.Equal(t, Some("five"), b)
	c, _ := got.Answers.Get("c")
	assert.False(t, c.Present())
}

func TestStatus_Agreed(t *testing.T) {
	assert.True(t, StatusFullConsensus.Agreed())
	assert.True(t, StatusMajorityConsensus.Agreed())
	assert.False(t, StatusSingleModel.Agreed())
	assert.False(t, StatusNoConsensus.Agreed())
	assert.False(t, StatusNoModels.Agreed())
}
