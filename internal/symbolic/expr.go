// Package symbolic implements a small exact algebra for comparing answers.
//
// An Expr is a rational function num/den over atoms (symbols, constants such
// as pi, unevaluated function applications) with rational coefficients.
// Two expressions denote the same value iff their difference has a zero
// numerator, which is decided exactly by cross-multiplication.
package symbolic

import (
	"errors"
	"math/big"
	"strings"
)

// ErrDivisionByZero is returned when dividing by an expression that is
// identically zero.
var ErrDivisionByZero = errors.New("division by zero")

// Expr is an immutable canonical expression.
type Expr struct {
	num poly
	den poly
}

// Number returns the constant expression r.
func Number(r *big.Rat) *Expr {
	return &Expr{num: constPoly(r), den: constPoly(big.NewRat(1, 1))}
}

// Int returns the constant expression n.
func Int(n int64) *Expr {
	return Number(big.NewRat(n, 1))
}

// Symbol returns the expression consisting of the single atom name.
func Symbol(name string) *Expr {
	return fromAtom(factor{atom: name, exp: 1})
}

func fromAtom(f factor) *Expr {
	return &Expr{num: atomPoly(f), den: constPoly(big.NewRat(1, 1))}
}

func build(num, den poly) (*Expr, error) {
	if den.isZero() {
		return nil, ErrDivisionByZero
	}
	if num.isZero() {
		return &Expr{num: newPoly(), den: constPoly(big.NewRat(1, 1))}, nil
	}
	if c, ok := den.constant(); ok {
		return &Expr{num: num.scale(new(big.Rat).Inv(c)), den: constPoly(big.NewRat(1, 1))}, nil
	}
	return &Expr{num: num, den: den}, nil
}

// Add returns e + o.
func (e *Expr) Add(o *Expr) (*Expr, error) {
	if _, ok := e.den.constant(); ok {
		if _, ok := o.den.constant(); ok {
			return build(e.num.add(o.num), e.den)
		}
	}
	a, err := e.num.mul(o.den)
	if err != nil {
		return nil, err
	}
	b, err := o.num.mul(e.den)
	if err != nil {
		return nil, err
	}
	den, err := e.den.mul(o.den)
	if err != nil {
		return nil, err
	}
	return build(a.add(b), den)
}

// Neg returns -e.
func (e *Expr) Neg() *Expr {
	return &Expr{num: e.num.neg(), den: e.den}
}

// Sub returns e - o.
func (e *Expr) Sub(o *Expr) (*Expr, error) {
	return e.Add(o.Neg())
}

// Mul returns e * o.
func (e *Expr) Mul(o *Expr) (*Expr, error) {
	num, err := e.num.mul(o.num)
	if err != nil {
		return nil, err
	}
	den, err := e.den.mul(o.den)
	if err != nil {
		return nil, err
	}
	return build(num, den)
}

// Quo returns e / o.
func (e *Expr) Quo(o *Expr) (*Expr, error) {
	if o.IsZero() {
		return nil, ErrDivisionByZero
	}
	num, err := e.num.mul(o.den)
	if err != nil {
		return nil, err
	}
	den, err := e.den.mul(o.num)
	if err != nil {
		return nil, err
	}
	return build(num, den)
}

// PowInt returns e raised to the integer power n.
func (e *Expr) PowInt(n int) (*Expr, error) {
	if n > maxExponent || n < -maxExponent {
		return nil, ErrTooComplex
	}
	if n < 0 {
		p, err := e.PowInt(-n)
		if err != nil {
			return nil, err
		}
		return Int(1).Quo(p)
	}
	result := Int(1)
	base := e
	for n > 0 {
		var err error
		if n&1 == 1 {
			if result, err = result.Mul(base); err != nil {
				return nil, err
			}
		}
		n >>= 1
		if n > 0 {
			if base, err = base.Mul(base); err != nil {
				return nil, err
			}
		}
	}
	return result, nil
}

// Pow returns e raised to exp. Integer exponents are expanded exactly; a
// one-half exponent goes through Sqrt; anything else stays an opaque atom.
func (e *Expr) Pow(exp *Expr) (*Expr, error) {
	if c, ok := exp.Constant(); ok {
		if c.IsInt() {
			if !c.Num().IsInt64() {
				return nil, ErrTooComplex
			}
			return e.PowInt(int(c.Num().Int64()))
		}
		if c.Cmp(big.NewRat(1, 2)) == 0 {
			return Sqrt(e), nil
		}
	}
	return fromAtom(factor{atom: "(" + e.String() + ")**(" + exp.String() + ")", exp: 1}), nil
}

// IsZero reports whether e is identically zero.
func (e *Expr) IsZero() bool {
	return e.num.isZero()
}

// Constant returns the rational value of e when e contains no atoms.
func (e *Expr) Constant() (*big.Rat, bool) {
	n, ok := e.num.constant()
	if !ok {
		return nil, false
	}
	d, ok := e.den.constant()
	if !ok {
		return nil, false
	}
	return n.Quo(n, d), true
}

// Equal reports whether e and o denote the same value.
func (e *Expr) Equal(o *Expr) bool {
	d, err := e.Sub(o)
	if err != nil {
		return false
	}
	return d.IsZero()
}

// String renders e in a canonical, deterministic form.
func (e *Expr) String() string {
	if c, ok := e.Constant(); ok {
		return c.RatString()
	}
	num := e.num.String()
	if _, ok := e.den.constant(); ok {
		return num
	}
	if len(e.num.terms) > 1 {
		num = "(" + num + ")"
	}
	den := e.den.String()
	if len(e.den.terms) > 1 || strings.ContainsAny(den, "*/") {
		den = "(" + den + ")"
	}
	return num + "/" + den
}
