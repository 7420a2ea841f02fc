package ast

// Helper functions to construct AST nodes without positions.

// Int creates an integer literal.
func Int(v int64) Expr { return &IntLit{Val: v} }

// Bool creates a boolean literal.
func Bool(v bool) Expr { return &BoolLit{Val: v} }

// Null creates the null literal.
func Null() Expr { return &NullLit{} }

// Write is the full permission.
func Write() Expr { return &PermLit{Num: 1, Den: 1} }

// NoPerm is the empty permission.
func NoPerm() Expr { return &PermLit{Num: 0, Den: 1} }

// Frac creates the permission literal num/den.
func Frac(num, den int64) Expr { return &PermLit{Num: num, Den: den} }

// V creates a typed variable.
func V(name string, typ Type) *Var { return &Var{Name: name, Type: typ} }

// Dot creates recv.field.
func Dot(recv Expr, field string) *FieldAccess { return &FieldAccess{Recv: recv, Field: field} }

// Acc creates acc(loc, perm).
func Acc(loc *FieldAccess, perm Expr) *FieldAcc { return &FieldAcc{Loc: loc, Perm: perm} }

// PredAcc creates acc(name(args), perm).
func PredAcc(name string, perm Expr, args ...Expr) *PredicateAcc {
	return &PredicateAcc{Name: name, Args: args, Perm: perm}
}

// Bin creates a binary expression.
func Bin(op BinOp, left, right Expr) Expr { return &Binary{Op: op, Left: left, Right: right} }

// Not creates !x.
func Not(x Expr) Expr { return &Unary{Op: OpNot, X: x} }

// Conj folds es with &&. An empty list is true.
func Conj(es ...Expr) Expr {
	if len(es) == 0 {
		return Bool(true)
	}
	acc := es[0]
	for _, e := range es[1:] {
		acc = Bin(OpAnd, acc, e)
	}
	return acc
}

// Seq creates a statement sequence.
func Seq(stmts ...Stmt) *Seqn { return &Seqn{Stmts: stmts} }
