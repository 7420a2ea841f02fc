package ast

import "strings"

// Stmt is a statement. Only the lowered kinds reach the executor; If,
// While, Label and Goto exist for lowering and are rejected at dispatch.
type Stmt interface {
	Node
	isStmt()
}

// Seqn is a statement sequence.
type Seqn struct {
	Pos
	Stmts []Stmt
}

// LocalAssign is x := e. A wand-typed target takes a *Wand value.
type LocalAssign struct {
	Pos
	Target *Var
	Value  Expr
}

// FieldAssign is e.f := e.
type FieldAssign struct {
	Pos
	Target *FieldAccess
	Value  Expr
}

// New is x := new(fields...).
type New struct {
	Pos
	Target *Var
	Fields []string
}

// Fresh introduces fresh values for Vars.
type Fresh struct {
	Pos
	Vars []*Var
}

// Inhale adds the resources and facts of Expr.
type Inhale struct {
	Pos
	Expr Expr
}

// Exhale removes the resources of Expr and checks its facts.
type Exhale struct {
	Pos
	Expr Expr
}

// Assert checks Expr without removing resources.
type Assert struct {
	Pos
	Expr Expr
}

// MethodCall is targets := m(args).
type MethodCall struct {
	Pos
	Method  string
	Args    []Expr
	Targets []*Var
}

// Fold exchanges a predicate body for the predicate.
type Fold struct {
	Pos
	Acc *PredicateAcc
}

// Unfold exchanges a predicate for its body.
type Unfold struct {
	Pos
	Acc *PredicateAcc
}

// Package constructs a magic wand.
type Package struct {
	Pos
	Wand *Wand
}

// Apply applies a magic wand given inline (*Wand) or by name (*Var).
type Apply struct {
	Pos
	Wand Expr
}

// Constraining marks Vars as constrainable while Body executes.
type Constraining struct {
	Pos
	Vars []*Var
	Body *Seqn
}

// If is a structured conditional.
type If struct {
	Pos
	Cond Expr
	Then *Seqn
	Else *Seqn
}

// While is a structured loop.
type While struct {
	Pos
	Cond       Expr
	Invariants []Expr
	Body       *Seqn
}

// Label marks a jump target.
type Label struct {
	Pos
	Name string
}

// Goto jumps to a label.
type Goto struct {
	Pos
	Target string
}

func (*Seqn) isStmt()         {}
func (*LocalAssign) isStmt()  {}
func (*FieldAssign) isStmt()  {}
func (*New) isStmt()          {}
func (*Fresh) isStmt()        {}
func (*Inhale) isStmt()       {}
func (*Exhale) isStmt()       {}
func (*Assert) isStmt()       {}
func (*MethodCall) isStmt()   {}
func (*Fold) isStmt()         {}
func (*Unfold) isStmt()       {}
func (*Package) isStmt()      {}
func (*Apply) isStmt()        {}
func (*Constraining) isStmt() {}
func (*If) isStmt()           {}
func (*While) isStmt()        {}
func (*Label) isStmt()        {}
func (*Goto) isStmt()         {}

func (s *Seqn) String() string {
	parts := make([]string, len(s.Stmts))
	for i, st := range s.Stmts {
		parts[i] = st.String()
	}
	return "{ " + strings.Join(parts, "; ") + " }"
}

func (s *LocalAssign) String() string { return s.Target.Name + " := " + s.Value.String() }
func (s *FieldAssign) String() string { return s.Target.String() + " := " + s.Value.String() }

func (s *New) String() string {
	return s.Target.Name + " := new(" + strings.Join(s.Fields, ", ") + ")"
}

func (s *Fresh) String() string { return "fresh " + joinVars(s.Vars) }
func (s *Inhale) String() string { return "inhale " + s.Expr.String() }
func (s *Exhale) String() string { return "exhale " + s.Expr.String() }
func (s *Assert) String() string { return "assert " + s.Expr.String() }

func (s *MethodCall) String() string {
	call := s.Method + "(" + joinExprs(s.Args) + ")"
	if len(s.Targets) == 0 {
		return call
	}
	return joinVars(s.Targets) + " := " + call
}

func (s *Fold) String() string    { return "fold " + s.Acc.String() }
func (s *Unfold) String() string  { return "unfold " + s.Acc.String() }
func (s *Package) String() string { return "package " + s.Wand.String() }
func (s *Apply) String() string   { return "apply " + s.Wand.String() }

func (s *Constraining) String() string {
	return "constraining(" + joinVars(s.Vars) + ") " + s.Body.String()
}

func (s *If) String() string {
	out := "if (" + s.Cond.String() + ") " + s.Then.String()
	if s.Else != nil && len(s.Else.Stmts) > 0 {
		out += " else " + s.Else.String()
	}
	return out
}

func (s *While) String() string { return "while (" + s.Cond.String() + ") " + s.Body.String() }
func (s *Label) String() string { return "label " + s.Name }
func (s *Goto) String() string  { return "goto " + s.Target }

func joinVars(vs []*Var) string {
	parts := make([]string, len(vs))
	for i, v := range vs {
		parts[i] = v.Name
	}
	return strings.Join(parts, ", ")
}
