package ast

import (
	"fmt"
	"go/token"
	"strings"

	"github.com/gnoswap-labs/sepexec/internal/term"
)

// Type is the declared type of a program variable or field.
type Type int

const (
	TypeInt Type = iota
	TypeBool
	TypeRef
	TypePerm
	TypeWand
)

func (t Type) String() string {
	return t.Sort().String()
}

// Sort maps a program type onto the sort of its symbolic values.
func (t Type) Sort() term.Sort {
	switch t {
	case TypeBool:
		return term.SortBool
	case TypeRef:
		return term.SortRef
	case TypePerm:
		return term.SortPerm
	case TypeWand:
		return term.SortWand
	default:
		return term.SortInt
	}
}

// ParseType resolves a type name.
func ParseType(name string) (Type, bool) {
	switch name {
	case "Int", "int":
		return TypeInt, true
	case "Bool", "bool":
		return TypeBool, true
	case "Ref", "ref":
		return TypeRef, true
	case "Perm", "perm":
		return TypePerm, true
	case "Wand", "wand":
		return TypeWand, true
	}
	return 0, false
}

// Node is anything with a source position.
type Node interface {
	Position() token.Position
	String() string
}

// Pos is embedded by every node.
type Pos struct {
	At token.Position
}

func (p Pos) Position() token.Position { return p.At }

// Expr is a pure expression or an assertion.
type Expr interface {
	Node
	isExpr()
}

// IntLit is an integer literal.
type IntLit struct {
	Pos
	Val int64
}

// BoolLit is true or false.
type BoolLit struct {
	Pos
	Val bool
}

// NullLit is the null reference.
type NullLit struct {
	Pos
}

// PermLit is a constant permission amount such as write, none or 1/2.
type PermLit struct {
	Pos
	Num int64
	Den int64
}

// Var is a program variable reference. Type is filled in by the parser.
type Var struct {
	Pos
	Name string
	Type Type
}

// FieldAccess reads Recv.Field.
type FieldAccess struct {
	Pos
	Recv  Expr
	Field string
}

// BinOp is a binary operator.
type BinOp int

const (
	_ BinOp = iota
	OpAdd
	OpSub
	OpMul
	OpDiv
	OpMod
	OpEq
	OpNe
	OpLt
	OpLe
	OpGt
	OpGe
	OpAnd
	OpOr
	OpImplies
)

func (op BinOp) String() string {
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
	case OpNe:
		return "!="
	case OpLt:
		return "<"
	case OpLe:
		return "<="
	case OpGt:
		return ">"
	case OpGe:
		return ">="
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

// Binary is a binary expression. && and ==> also combine assertions.
type Binary struct {
	Pos
	Op    BinOp
	Left  Expr
	Right Expr
}

// UnOp is a unary operator.
type UnOp int

const (
	OpNot UnOp = iota
	OpNeg
)

// Unary is !x or -x.
type Unary struct {
	Pos
	Op UnOp
	X  Expr
}

// Old evaluates X in a labelled earlier heap: "" is the method pre-state,
// "lhs" the left-hand heap of the wand being applied.
type Old struct {
	Pos
	Label string
	X     Expr
}

// LabelLHS names the left-hand heap of a wand application.
const LabelLHS = "lhs"

// PermOf is perm(e.f), the currently held amount.
type PermOf struct {
	Pos
	Loc *FieldAccess
}

// FieldAcc is the accessibility predicate acc(e.f, p).
type FieldAcc struct {
	Pos
	Loc  *FieldAccess
	Perm Expr
}

// PredicateAcc is acc(P(args), p).
type PredicateAcc struct {
	Pos
	Name string
	Args []Expr
	Perm Expr
}

// Wand is the magic wand Left --* Right.
type Wand struct {
	Pos
	Left  Expr
	Right Expr
}

func (*IntLit) isExpr()       {}
func (*BoolLit) isExpr()      {}
func (*NullLit) isExpr()      {}
func (*PermLit) isExpr()      {}
func (*Var) isExpr()          {}
func (*FieldAccess) isExpr()  {}
func (*Binary) isExpr()       {}
func (*Unary) isExpr()        {}
func (*Old) isExpr()          {}
func (*PermOf) isExpr()       {}
func (*FieldAcc) isExpr()     {}
func (*PredicateAcc) isExpr() {}
func (*Wand) isExpr()         {}

func (e *IntLit) String() string { return fmt.Sprintf("%d", e.Val) }

func (e *BoolLit) String() string {
	if e.Val {
		return "true"
	}
	return "false"
}

func (*NullLit) String() string { return "null" }

func (e *PermLit) String() string {
	return term.PermLit{Num: e.Num, Den: e.Den}.String()
}

func (e *Var) String() string { return e.Name }

func (e *FieldAccess) String() string { return e.Recv.String() + "." + e.Field }

func (e *Binary) String() string {
	return "(" + e.Left.String() + " " + e.Op.String() + " " + e.Right.String() + ")"
}

func (e *Unary) String() string {
	if e.Op == OpNeg {
		return "-" + e.X.String()
	}
	return "!" + e.X.String()
}

func (e *Old) String() string {
	if e.Label == "" {
		return "old(" + e.X.String() + ")"
	}
	return "old[" + e.Label + "](" + e.X.String() + ")"
}

func (e *PermOf) String() string { return "perm(" + e.Loc.String() + ")" }

func (e *FieldAcc) String() string {
	return "acc(" + e.Loc.String() + ", " + e.Perm.String() + ")"
}

func (e *PredicateAcc) String() string {
	return "acc(" + e.Name + "(" + joinExprs(e.Args) + "), " + e.Perm.String() + ")"
}

func (e *Wand) String() string {
	return e.Left.String() + " --* " + e.Right.String()
}

func joinExprs(es []Expr) string {
	parts := make([]string, len(es))
	for i, e := range es {
		parts[i] = e.String()
	}
	return strings.Join(parts, ", ")
}

// IsPure reports whether e mentions no resources.
func IsPure(e Expr) bool {
	switch e := e.(type) {
	case *FieldAcc, *PredicateAcc, *Wand:
		return false
	case *Binary:
		return IsPure(e.Left) && IsPure(e.Right)
	case *Unary:
		return IsPure(e.X)
	case *Old:
		return IsPure(e.X)
	}
	return true
}

// IsFalse reports whether e is the literal false.
func IsFalse(e Expr) bool {
	b, ok := e.(*BoolLit)
	return ok && !b.Val
}

// IsTrue reports whether e is the literal true.
func IsTrue(e Expr) bool {
	b, ok := e.(*BoolLit)
	return ok && b.Val
}

// FreeVars returns the variables e mentions, in first-occurrence order.
func FreeVars(e Expr) []*Var {
	var out []*Var
	seen := make(map[string]bool)
	var walk func(Expr)
	walk = func(e Expr) {
		switch e := e.(type) {
		case *Var:
			if !seen[e.Name] {
				seen[e.Name] = true
				out = append(out, e)
			}
		case *FieldAccess:
			walk(e.Recv)
		case *Binary:
			walk(e.Left)
			walk(e.Right)
		case *Unary:
			walk(e.X)
		case *Old:
			walk(e.X)
		case *PermOf:
			walk(e.Loc)
		case *FieldAcc:
			walk(e.Loc)
			walk(e.Perm)
		case *PredicateAcc:
			for _, a := range e.Args {
				walk(a)
			}
			walk(e.Perm)
		case *Wand:
			walk(e.Left)
			walk(e.Right)
		}
	}
	walk(e)
	return out
}
