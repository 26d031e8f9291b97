package consensus

// Equivalent reports whether two normalized answers denote the same value.
//
// Absent answers are never equivalent, not even to each other. Two
// expressions are equivalent iff their simplified difference is zero; a
// simplification error means not equivalent. Two texts compare exactly.
// Mixed kinds fall back to comparing string forms, so equal values that
// took different normalization paths usually do not match.
func Equivalent(a, b Answer) bool {
	va, ok := a.Get()
	if !ok {
		return false
	}
	vb, ok := b.Get()
	if !ok {
		return false
	}

	ea, aExpr := va.(Expression)
	eb, bExpr := vb.(Expression)
	if aExpr && bExpr {
		diff, err := ea.Difference(eb)
		if err != nil {
			return false
		}
		return diff.IsZero()
	}

	return va.String() == vb.String()
}
