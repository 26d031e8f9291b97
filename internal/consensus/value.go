package consensus

import (
	"fmt"

	"github.com/johnayoung/math-consensus/internal/symbolic"
)

// Value is a normalized answer: either an Expression or opaque Text.
type Value interface {
	String() string
}

// Expression is a Value that supports difference-and-simplify.
type Expression interface {
	Value
	// Difference returns the simplified value of the receiver minus other.
	Difference(other Expression) (Expression, error)
	IsZero() bool
}

// Text is an answer that could not be parsed. It only supports equality.
type Text string

func (t Text) String() string { return string(t) }

// Answer is a normalized answer, absent when nothing was extracted.
type Answer = Optional[Value]

// Parser turns cleaned answer text into an Expression.
type Parser func(s string) (Expression, error)

// ParseSymbolic is the default Parser, backed by the symbolic package.
func ParseSymbolic(s string) (Expression, error) {
	e, err := symbolic.Parse(s)
	if err != nil {
		return nil, err
	}
	return symbolicExpr{e: e}, nil
}

type symbolicExpr struct {
	e *symbolic.Expr
}

func (s symbolicExpr) String() string { return s.e.String() }

func (s symbolicExpr) IsZero() bool { return s.e.IsZero() }

func (s symbolicExpr) Difference(other Expression) (Expression, error) {
	o, ok := other.(symbolicExpr)
	if !ok {
		return nil, fmt.Errorf("cannot subtract %T from symbolic expression", other)
	}
	d, err := s.e.Sub(o.e)
	if err != nil {
		return nil, err
	}
	return symbolicExpr{e: d}, nil
}
