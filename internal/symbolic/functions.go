package symbolic

import (
	"math/big"
	"strings"
)

// Pi is the circle constant, kept as an atom.
var Pi = Symbol("pi")

const trialDivisionLimit = 100000

// Sqrt returns the principal square root of e. Non-negative rationals are
// reduced to k*sqrt(m) with m square-free; everything else is an atom.
func Sqrt(e *Expr) *Expr {
	c, ok := e.Constant()
	if !ok {
		return fromAtom(factor{atom: "sqrt(" + e.String() + ")", exp: 1})
	}
	if c.Sign() < 0 {
		return fromAtom(factor{atom: "sqrt(" + c.RatString() + ")", exp: 1, square: c})
	}
	if c.Sign() == 0 {
		return Int(0)
	}
	// sqrt(a/b) = sqrt(a*b)/b
	n := new(big.Int).Mul(c.Num(), c.Denom())
	k, m := splitSquare(n)
	coef := new(big.Rat).SetFrac(k, c.Denom())
	if m.Cmp(big.NewInt(1)) == 0 {
		return Number(coef)
	}
	root := fromAtom(factor{atom: "sqrt(" + m.String() + ")", exp: 1, square: new(big.Rat).SetInt(m)})
	out, err := Number(coef).Mul(root)
	if err != nil {
		return fromAtom(factor{atom: "sqrt(" + c.RatString() + ")", exp: 1, square: c})
	}
	return out
}

// splitSquare returns k, m with n = k*k*m and m free of small square factors.
func splitSquare(n *big.Int) (*big.Int, *big.Int) {
	k := big.NewInt(1)
	m := new(big.Int).Set(n)
	if r := new(big.Int).Sqrt(m); new(big.Int).Mul(r, r).Cmp(m) == 0 {
		return r, big.NewInt(1)
	}
	sq := new(big.Int)
	mod := new(big.Int)
	for i := int64(2); i <= trialDivisionLimit; i++ {
		sq.SetInt64(i * i)
		if sq.Cmp(m) > 0 {
			break
		}
		for mod.Mod(m, sq).Sign() == 0 {
			m.Quo(m, sq)
			k.Mul(k, big.NewInt(i))
		}
	}
	if r := new(big.Int).Sqrt(m); new(big.Int).Mul(r, r).Cmp(m) == 0 {
		k.Mul(k, r)
		m.SetInt64(1)
	}
	return k, m
}

// Apply evaluates the named function. Known identities on constant
// arguments are folded; other applications become atoms.
func Apply(name string, args []*Expr) (*Expr, error) {
	if name == "ln" {
		name = "log"
	}
	if len(args) == 1 {
		arg := args[0]
		c, isConst := arg.Constant()
		switch name {
		case "sqrt":
			return Sqrt(arg), nil
		case "abs":
			if isConst {
				return Number(new(big.Rat).Abs(c)), nil
			}
		case "exp", "cos":
			if isConst && c.Sign() == 0 {
				return Int(1), nil
			}
		case "sin", "tan":
			if isConst && c.Sign() == 0 {
				return Int(0), nil
			}
		case "log":
			if isConst && c.Cmp(big.NewRat(1, 1)) == 0 {
				return Int(0), nil
			}
		}
	}
	parts := make([]string, len(args))
	for i, a := range args {
		parts[i] = a.String()
	}
	return fromAtom(factor{atom: name + "(" + strings.Join(parts, ", ") + ")", exp: 1}), nil
}
