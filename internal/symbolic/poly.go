package symbolic

import (
	"errors"
	"math/big"
	"sort"
	"strings"
)

// ErrTooComplex is returned when an operation would grow an expression past
// the supported size.
var ErrTooComplex = errors.New("expression too complex")

const (
	maxTerms    = 512
	maxExponent = 64
	maxDegree   = 4096
	maxCoefBits = 4096
)

// coefBits is the combined size of a coefficient's numerator and denominator.
func coefBits(r *big.Rat) int {
	return r.Num().BitLen() + r.Denom().BitLen()
}

// factor is one atom raised to a positive integer power. When square is set
// the atom denotes a square root whose square is that rational, so pairs of
// the atom collapse into a coefficient.
type factor struct {
	atom   string
	exp    int
	square *big.Rat
}

// monomial is a product of factors sorted by atom name.
type monomial []factor

func (m monomial) key() string {
	if len(m) == 0 {
		return ""
	}
	var b strings.Builder
	for i, f := range m {
		if i > 0 {
			b.WriteByte('*')
		}
		b.WriteString(f.atom)
		if f.exp != 1 {
			b.WriteString("**")
			b.WriteString(big.NewInt(int64(f.exp)).String())
		}
	}
	return b.String()
}

func (m monomial) degree() int {
	d := 0
	for _, f := range m {
		d += f.exp
	}
	return d
}

// mul merges two monomials. The returned rational is the coefficient released
// by collapsing square-root atoms.
func (m monomial) mul(o monomial) (monomial, *big.Rat, error) {
	out := make(monomial, 0, len(m)+len(o))
	coef := big.NewRat(1, 1)
	i, j := 0, 0
	for i < len(m) || j < len(o) {
		switch {
		case j >= len(o) || (i < len(m) && m[i].atom < o[j].atom):
			out = append(out, m[i])
			i++
		case i >= len(m) || o[j].atom < m[i].atom:
			out = append(out, o[j])
			j++
		default:
			f := m[i]
			f.exp += o[j].exp
			if f.exp > maxDegree {
				return nil, nil, ErrTooComplex
			}
			if f.square != nil && f.exp >= 2 {
				pairs := f.exp / 2
				if coefBits(f.square)*pairs > maxCoefBits {
					return nil, nil, ErrTooComplex
				}
				f.exp %= 2
				coef.Mul(coef, ratPow(f.square, pairs))
			}
			if f.exp > 0 {
				out = append(out, f)
			}
			i++
			j++
		}
	}
	return out, coef, nil
}

type term struct {
	mono monomial
	coef *big.Rat
}

// poly is a sparse multivariate polynomial with rational coefficients.
type poly struct {
	terms map[string]term
}

func newPoly() poly {
	return poly{terms: make(map[string]term)}
}

func constPoly(r *big.Rat) poly {
	p := newPoly()
	if r.Sign() != 0 {
		p.terms[""] = term{coef: new(big.Rat).Set(r)}
	}
	return p
}

func atomPoly(f factor) poly {
	p := newPoly()
	m := monomial{f}
	p.terms[m.key()] = term{mono: m, coef: big.NewRat(1, 1)}
	return p
}

func (p poly) isZero() bool {
	return len(p.terms) == 0
}

func (p poly) constant() (*big.Rat, bool) {
	switch len(p.terms) {
	case 0:
		return new(big.Rat), true
	case 1:
		t, ok := p.terms[""]
		if !ok {
			return nil, false
		}
		return new(big.Rat).Set(t.coef), true
	}
	return nil, false
}

func (p poly) addTerm(mono monomial, coef *big.Rat) {
	if coef.Sign() == 0 {
		return
	}
	k := mono.key()
	if t, ok := p.terms[k]; ok {
		sum := new(big.Rat).Add(t.coef, coef)
		if sum.Sign() == 0 {
			delete(p.terms, k)
			return
		}
		p.terms[k] = term{mono: t.mono, coef: sum}
		return
	}
	p.terms[k] = term{mono: mono, coef: new(big.Rat).Set(coef)}
}

func (p poly) add(q poly) poly {
	out := newPoly()
	for _, t := range p.terms {
		out.addTerm(t.mono, t.coef)
	}
	for _, t := range q.terms {
		out.addTerm(t.mono, t.coef)
	}
	return out
}

func (p poly) scale(r *big.Rat) poly {
	out := newPoly()
	for _, t := range p.terms {
		out.addTerm(t.mono, new(big.Rat).Mul(t.coef, r))
	}
	return out
}

func (p poly) neg() poly {
	return p.scale(big.NewRat(-1, 1))
}

func (p poly) mul(q poly) (poly, error) {
	if len(p.terms)*len(q.terms) > maxTerms*maxTerms {
		return poly{}, ErrTooComplex
	}
	out := newPoly()
	for _, a := range p.terms {
		for _, b := range q.terms {
			if coefBits(a.coef)+coefBits(b.coef) > maxCoefBits {
				return poly{}, ErrTooComplex
			}
			mono, extra, err := a.mono.mul(b.mono)
			if err != nil {
				return poly{}, err
			}
			c := new(big.Rat).Mul(a.coef, b.coef)
			c.Mul(c, extra)
			if coefBits(c) > maxCoefBits {
				return poly{}, ErrTooComplex
			}
			out.addTerm(mono, c)
		}
	}
	if len(out.terms) > maxTerms {
		return poly{}, ErrTooComplex
	}
	return out, nil
}

func (p poly) sortedTerms() []term {
	ts := make([]term, 0, len(p.terms))
	for _, t := range p.terms {
		ts = append(ts, t)
	}
	sort.Slice(ts, func(i, j int) bool {
		di, dj := ts[i].mono.degree(), ts[j].mono.degree()
		if di != dj {
			return di > dj
		}
		return ts[i].mono.key() < ts[j].mono.key()
	})
	return ts
}

func (p poly) String() string {
	if p.isZero() {
		return "0"
	}
	var b strings.Builder
	for i, t := range p.sortedTerms() {
		coef := new(big.Rat).Set(t.coef)
		if i == 0 {
			if coef.Sign() < 0 {
				b.WriteByte('-')
				coef.Neg(coef)
			}
		} else if coef.Sign() < 0 {
			b.WriteString(" - ")
			coef.Neg(coef)
		} else {
			b.WriteString(" + ")
		}
		key := t.mono.key()
		switch {
		case key == "":
			b.WriteString(coef.RatString())
		case coef.Cmp(big.NewRat(1, 1)) == 0:
			b.WriteString(key)
		default:
			b.WriteString(coef.RatString())
			b.WriteByte('*')
			b.WriteString(key)
		}
	}
	return b.String()
}

func ratPow(r *big.Rat, n int) *big.Rat {
	num := new(big.Int).Exp(r.Num(), big.NewInt(int64(n)), nil)
	den := new(big.Int).Exp(r.Denom(), big.NewInt(int64(n)), nil)
	return new(big.Rat).SetFrac(num, den)
}
