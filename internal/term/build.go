package term

import "math/big"

var (
	True  Term = BoolLit{Val: true}
	False Term = BoolLit{Val: false}

	FullPerm Term = PermLit{Num: 1, Den: 1}
	NoPerm   Term = PermLit{Num: 0, Den: 1}
)

// Perm returns the normalised permission literal num/den.
func Perm(num, den int64) Term {
	r := big.NewRat(num, den)
	return fromRat(r, SortPerm)
}

// Int returns an integer literal.
func Int(v int64) Term {
	return IntLit{Val: v}
}

// Bool returns a boolean literal.
func Bool(v bool) Term {
	return BoolLit{Val: v}
}

// Rat returns the numeric value of an integer or permission literal.
func Rat(t Term) (*big.Rat, bool) {
	switch l := t.(type) {
	case IntLit:
		return new(big.Rat).SetInt64(l.Val), true
	case PermLit:
		return big.NewRat(l.Num, l.Den), true
	}
	return nil, false
}

func fromRat(r *big.Rat, s Sort) Term {
	if s == SortInt && r.IsInt() {
		return IntLit{Val: r.Num().Int64()}
	}
	return PermLit{Num: r.Num().Int64(), Den: r.Denom().Int64()}
}

func literalEqual(a, b Term) (bool, bool) {
	if ra, ok := Rat(a); ok {
		if rb, ok := Rat(b); ok {
			return ra.Cmp(rb) == 0, true
		}
		return false, false
	}
	if !IsLiteral(a) || !IsLiteral(b) {
		return false, false
	}
	return a.String() == b.String(), true
}

// Eq builds a == b.
func Eq(a, b Term) Term {
	if Same(a, b) {
		return True
	}
	if eq, ok := literalEqual(a, b); ok {
		return Bool(eq)
	}
	if a.Sort() == SortBool {
		if l, ok := b.(BoolLit); ok {
			if l.Val {
				return a
			}
			return Not{Operand: a}
		}
	}
	return Binary{Op: OpEq, Left: a, Right: b}
}

// Ne builds a != b.
func Ne(a, b Term) Term {
	return Negate(Eq(a, b))
}

// Negate builds !t, removing double negations.
func Negate(t Term) Term {
	switch n := t.(type) {
	case BoolLit:
		return Bool(!n.Val)
	case Not:
		return n.Operand
	}
	return Not{Operand: t}
}

// And builds the conjunction of ts. Nested conjunctions are flattened and
// duplicates dropped.
func And(ts ...Term) Term {
	var parts []Term
	seen := make(map[string]bool)
	for _, t := range ts {
		for _, c := range Conjuncts(t) {
			if l, ok := c.(BoolLit); ok {
				if !l.Val {
					return False
				}
				continue
			}
			if seen[c.String()] {
				continue
			}
			seen[c.String()] = true
			parts = append(parts, c)
		}
	}
	return chain(OpAnd, parts, True)
}

// Or builds the disjunction of ts.
func Or(ts ...Term) Term {
	var parts []Term
	seen := make(map[string]bool)
	for _, t := range ts {
		for _, c := range Disjuncts(t) {
			if l, ok := c.(BoolLit); ok {
				if l.Val {
					return True
				}
				continue
			}
			if seen[c.String()] {
				continue
			}
			seen[c.String()] = true
			parts = append(parts, c)
		}
	}
	return chain(OpOr, parts, False)
}

func chain(op Op, parts []Term, empty Term) Term {
	if len(parts) == 0 {
		return empty
	}
	acc := parts[0]
	for _, p := range parts[1:] {
		acc = Binary{Op: op, Left: acc, Right: p}
	}
	return acc
}

// Conjuncts flattens nested conjunctions.
func Conjuncts(t Term) []Term {
	if b, ok := t.(Binary); ok && b.Op == OpAnd {
		return append(Conjuncts(b.Left), Conjuncts(b.Right)...)
	}
	return []Term{t}
}

// Disjuncts flattens nested disjunctions.
func Disjuncts(t Term) []Term {
	if b, ok := t.(Binary); ok && b.Op == OpOr {
		return append(Disjuncts(b.Left), Disjuncts(b.Right)...)
	}
	return []Term{t}
}

// Implies builds a ==> b.
func Implies(a, b Term) Term {
	if l, ok := a.(BoolLit); ok {
		if l.Val {
			return b
		}
		return True
	}
	if l, ok := b.(BoolLit); ok && l.Val {
		return True
	}
	if Same(a, b) {
		return True
	}
	return Binary{Op: OpImplies, Left: a, Right: b}
}

// Lt builds a < b.
func Lt(a, b Term) Term {
	if ra, ok := Rat(a); ok {
		if rb, ok := Rat(b); ok {
			return Bool(ra.Cmp(rb) < 0)
		}
	}
	if Same(a, b) {
		return False
	}
	return Binary{Op: OpLt, Left: a, Right: b}
}

// Le builds a <= b.
func Le(a, b Term) Term {
	if ra, ok := Rat(a); ok {
		if rb, ok := Rat(b); ok {
			return Bool(ra.Cmp(rb) <= 0)
		}
	}
	if Same(a, b) {
		return True
	}
	return Binary{Op: OpLe, Left: a, Right: b}
}

// Gt builds a > b.
func Gt(a, b Term) Term { return Lt(b, a) }

// Ge builds a >= b.
func Ge(a, b Term) Term { return Le(b, a) }

func resultSort(a, b Term) Sort {
	if a.Sort() == SortPerm || b.Sort() == SortPerm {
		return SortPerm
	}
	return SortInt
}

func isZero(t Term) bool {
	r, ok := Rat(t)
	return ok && r.Sign() == 0
}

func isOne(t Term) bool {
	r, ok := Rat(t)
	return ok && r.Cmp(big.NewRat(1, 1)) == 0
}

// Add builds a + b.
func Add(a, b Term) Term {
	if ra, ok := Rat(a); ok {
		if rb, ok := Rat(b); ok {
			return fromRat(new(big.Rat).Add(ra, rb), resultSort(a, b))
		}
	}
	if isZero(a) && a.Sort() == b.Sort() {
		return b
	}
	if isZero(b) && a.Sort() == b.Sort() {
		return a
	}
	return Binary{Op: OpAdd, Left: a, Right: b}
}

// Sub builds a - b. Permission subtraction may go below zero only
// symbolically; literal results are clamped by callers.
func Sub(a, b Term) Term {
	if ra, ok := Rat(a); ok {
		if rb, ok := Rat(b); ok {
			r := new(big.Rat).Sub(ra, rb)
			if resultSort(a, b) == SortPerm && r.Sign() < 0 {
				return Binary{Op: OpSub, Left: a, Right: b}
			}
			return fromRat(r, resultSort(a, b))
		}
	}
	if isZero(b) && a.Sort() == b.Sort() {
		return a
	}
	if Same(a, b) {
		return fromRat(new(big.Rat), a.Sort())
	}
	return Binary{Op: OpSub, Left: a, Right: b}
}

// Mul builds a * b.
func Mul(a, b Term) Term {
	s := resultSort(a, b)
	if ra, ok := Rat(a); ok {
		if rb, ok := Rat(b); ok {
			return fromRat(new(big.Rat).Mul(ra, rb), s)
		}
	}
	if isOne(a) && b.Sort() == s {
		return b
	}
	if isOne(b) && a.Sort() == s {
		return a
	}
	if isZero(a) || isZero(b) {
		return fromRat(new(big.Rat), s)
	}
	return Binary{Op: OpMul, Left: a, Right: b}
}

// Div builds a / b. Integer division truncates towards zero. Division of
// two integers where a permission is expected is built with Frac.
func Div(a, b Term) Term {
	if la, ok := a.(IntLit); ok {
		if lb, ok := b.(IntLit); ok && lb.Val != 0 {
			return Int(la.Val / lb.Val)
		}
	}
	if ra, ok := Rat(a); ok && a.Sort() == SortPerm {
		if rb, ok := Rat(b); ok && rb.Sign() != 0 {
			return fromRat(new(big.Rat).Quo(ra, rb), SortPerm)
		}
	}
	if isOne(b) {
		return a
	}
	return Binary{Op: OpDiv, Left: a, Right: b}
}

// Frac builds the permission a/b from two integer terms.
func Frac(a, b Term) Term {
	if ra, ok := Rat(a); ok {
		if rb, ok := Rat(b); ok && rb.Sign() != 0 {
			return fromRat(new(big.Rat).Quo(ra, rb), SortPerm)
		}
	}
	return Binary{Op: OpDiv, Left: Mul(FullPerm, a), Right: b}
}

// Mod builds a % b.
func Mod(a, b Term) Term {
	if la, ok := a.(IntLit); ok {
		if lb, ok := b.(IntLit); ok && lb.Val != 0 {
			return Int(la.Val % lb.Val)
		}
	}
	return Binary{Op: OpMod, Left: a, Right: b}
}

// Apply rebuilds a binary term through its simplifying constructor.
func Apply(op Op, a, b Term) Term {
	switch op {
	case OpAdd:
		return Add(a, b)
	case OpSub:
		return Sub(a, b)
	case OpMul:
		return Mul(a, b)
	case OpDiv:
		return Div(a, b)
	case OpMod:
		return Mod(a, b)
	case OpEq:
		return Eq(a, b)
	case OpLt:
		return Lt(a, b)
	case OpLe:
		return Le(a, b)
	case OpAnd:
		return And(a, b)
	case OpOr:
		return Or(a, b)
	case OpImplies:
		return Implies(a, b)
	default:
		return Binary{Op: op, Left: a, Right: b}
	}
}
