package term

import (
	"fmt"
	"strings"
)

// Sort classifies terms.
type Sort int

const (
	SortInt Sort = iota
	SortBool
	SortRef
	SortPerm
	// SortWand is the sort of magic-wand handles. Variables of this sort
	// are never havocked by loops.
	SortWand
)

func (s Sort) String() string {
	switch s {
	case SortInt:
		return "Int"
	case SortBool:
		return "Bool"
	case SortRef:
		return "Ref"
	case SortPerm:
		return "Perm"
	case SortWand:
		return "Wand"
	default:
		return "?"
	}
}

// Term is a symbolic value. Terms are immutable and compared by their
// canonical string form.
type Term interface {
	isTerm()
	Sort() Sort
	String() string
}

// Var is an uninterpreted symbolic constant.
type Var struct {
	Name string
	S    Sort
}

func (Var) isTerm()          {}
func (v Var) Sort() Sort     { return v.S }
func (v Var) String() string { return v.Name }

// IntLit is an integer constant.
type IntLit struct {
	Val int64
}

func (IntLit) isTerm()          {}
func (IntLit) Sort() Sort       { return SortInt }
func (l IntLit) String() string { return fmt.Sprintf("%d", l.Val) }

// BoolLit is a boolean constant.
type BoolLit struct {
	Val bool
}

func (BoolLit) isTerm()    {}
func (BoolLit) Sort() Sort { return SortBool }
func (l BoolLit) String() string {
	if l.Val {
		return "true"
	}
	return "false"
}

// Null is the null reference.
type Null struct{}

func (Null) isTerm()        {}
func (Null) Sort() Sort     { return SortRef }
func (Null) String() string { return "null" }

// PermLit is an exact, normalised, non-negative permission amount Num/Den.
type PermLit struct {
	Num int64
	Den int64
}

func (PermLit) isTerm()    {}
func (PermLit) Sort() Sort { return SortPerm }
func (p PermLit) String() string {
	switch {
	case p.Num == 0:
		return "none"
	case p.Num == p.Den:
		return "write"
	default:
		return fmt.Sprintf("%d/%d", p.Num, p.Den)
	}
}

// Op is a binary term operator.
type Op int

const (
	_ Op = iota
	OpAdd
	OpSub
	OpMul
	OpDiv
	OpMod
	OpEq
	OpLt
	OpLe
	OpAnd
	OpOr
	OpImplies
)

func (op Op) String() string {
	switch op {
	case OpAdd:
		return "+"
	case OpSub:
		return "-"
	case OpMul:
		return "*"
	case OpDiv:
		return "/"
	case OpMod:
		return "%"
	case OpEq:
		return "=="
	case OpLt:
		return "<"
	case OpLe:
		return "<="
	case OpAnd:
		return "&&"
	case OpOr:
		return "||"
	case OpImplies:
		return "==>"
	default:
		return "?"
	}
}

// IsArith reports whether op is an arithmetic operator.
func (op Op) IsArith() bool {
	return op == OpAdd || op == OpSub || op == OpMul || op == OpDiv || op == OpMod
}

// Binary is an application of a binary operator. Build it through the
// constructors in this package so constants get folded.
type Binary struct {
	Op    Op
	Left  Term
	Right Term
}

func (Binary) isTerm() {}

func (b Binary) Sort() Sort {
	if !b.Op.IsArith() {
		return SortBool
	}
	if b.Left.Sort() == SortPerm || b.Right.Sort() == SortPerm {
		return SortPerm
	}
	return b.Left.Sort()
}

func (b Binary) String() string {
	return "(" + b.Left.String() + " " + b.Op.String() + " " + b.Right.String() + ")"
}

// Not is boolean negation.
type Not struct {
	Operand Term
}

func (Not) isTerm()          {}
func (Not) Sort() Sort       { return SortBool }
func (n Not) String() string { return "!" + n.Operand.String() }

// Same reports syntactic identity.
func Same(a, b Term) bool {
	return a.String() == b.String()
}

// IsLiteral reports whether t is a constant.
func IsLiteral(t Term) bool {
	switch t.(type) {
	case IntLit, BoolLit, Null, PermLit:
		return true
	}
	return false
}

// Join renders a term list separated by commas.
func Join(ts []Term) string {
	parts := make([]string, len(ts))
	for i, t := range ts {
		parts[i] = t.String()
	}
	return strings.Join(parts, ", ")
}
