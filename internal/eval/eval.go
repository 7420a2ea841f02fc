package eval

import (
	"go.uber.org/zap"

	"github.com/gnoswap-labs/sepexec/internal/ast"
	"github.com/gnoswap-labs/sepexec/internal/decider"
	"github.com/gnoswap-labs/sepexec/internal/result"
	"github.com/gnoswap-labs/sepexec/internal/state"
	"github.com/gnoswap-labs/sepexec/internal/term"
)

// Continuation receives the value of an evaluated expression.
type Continuation func(state.State, term.Term, state.Context) result.Result

// ListContinuation receives the values of several evaluated expressions.
type ListContinuation func(state.State, []term.Term, state.Context) result.Result

// Evaluator evaluates pure expressions to symbolic terms.
type Evaluator struct {
	decider *decider.Decider
	logger  *zap.Logger
}

// New creates an evaluator. A nil logger disables logging.
func New(d *decider.Decider, logger *zap.Logger) *Evaluator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Evaluator{decider: d, logger: logger}
}

// Eval evaluates e in s. Failures are reported through pve.
func (ev *Evaluator) Eval(s state.State, e ast.Expr, pve result.Partial, ctx state.Context, Q Continuation) result.Result {
	switch e := e.(type) {
	case *ast.IntLit:
		return Q(s, term.Int(e.Val), ctx)

	case *ast.BoolLit:
		return Q(s, term.Bool(e.Val), ctx)

	case *ast.NullLit:
		return Q(s, term.Null{}, ctx)

	case *ast.PermLit:
		if e.Den == 0 {
			return pve.Fail(result.DivisionByZero, e)
		}
		return Q(s, term.Perm(e.Num, e.Den), ctx)

	case *ast.Var:
		t, ok := s.Store.Get(e.Name)
		if !ok {
			panic(result.Internalf(e, "variable %s is not bound", e.Name))
		}
		return Q(s, t, ctx)

	case *ast.FieldAccess:
		return ev.Eval(s, e.Recv, pve, ctx, func(s1 state.State, recv term.Term, ctx1 state.Context) result.Result {
			v, ok := ev.read(s1, recv, e.Field)
			if !ok {
				return pve.Fail(result.InsufficientPermission, e)
			}
			return Q(s1, v, ctx1)
		})

	case *ast.PermOf:
		return ev.Eval(s, e.Loc.Recv, pve, ctx, func(s1 state.State, recv term.Term, ctx1 state.Context) result.Result {
			return Q(s1, ev.held(s1, recv, e.Loc.Field), ctx1)
		})

	case *ast.Old:
		return ev.evalOld(s, e, pve, ctx, Q)

	case *ast.Unary:
		return ev.Eval(s, e.X, pve, ctx, func(s1 state.State, x term.Term, ctx1 state.Context) result.Result {
			if e.Op == ast.OpNeg {
				return Q(s1, term.Sub(term.Int(0), x), ctx1)
			}
			return Q(s1, term.Negate(x), ctx1)
		})

	case *ast.Binary:
		return ev.evalBinary(s, e, pve, ctx, Q)

	case *ast.FieldAcc, *ast.PredicateAcc, *ast.Wand:
		panic(result.Internalf(e, "resource assertion %s in expression position", e))
	}
	panic(result.Internalf(e, "unexpected expression %T", e))
}

// Evals evaluates es left to right.
func (ev *Evaluator) Evals(s state.State, es []ast.Expr, pve result.Partial, ctx state.Context, Q ListContinuation) result.Result {
	var loop func(i int, s state.State, acc []term.Term, ctx state.Context) result.Result
	loop = func(i int, s state.State, acc []term.Term, ctx state.Context) result.Result {
		if i == len(es) {
			return Q(s, acc, ctx)
		}
		return ev.Eval(s, es[i], pve, ctx, func(s1 state.State, t term.Term, ctx1 state.Context) result.Result {
			next := append(append([]term.Term(nil), acc...), t)
			return loop(i+1, s1, next, ctx1)
		})
	}
	return loop(0, s, nil, ctx)
}

func (ev *Evaluator) evalOld(s state.State, e *ast.Old, pve result.Partial, ctx state.Context, Q Continuation) result.Result {
	h := s.OldHeap
	if e.Label == ast.LabelLHS {
		lhs, ok := ctx.LHSHeap()
		if !ok {
			panic(result.Internalf(e, "old[lhs] outside of a wand application"))
		}
		h = lhs
	} else if e.Label != "" {
		panic(result.Internalf(e, "unknown label %s", e.Label))
	}
	current := s.Heap
	return ev.Eval(s.WithHeap(h), e.X, pve, ctx, func(s1 state.State, t term.Term, ctx1 state.Context) result.Result {
		return Q(s1.WithHeap(current), t, ctx1)
	})
}

func (ev *Evaluator) evalBinary(s state.State, e *ast.Binary, pve result.Partial, ctx state.Context, Q Continuation) result.Result {
	switch e.Op {
	case ast.OpAnd, ast.OpImplies:
		// The right operand is only evaluated where the left one holds.
		return ev.Eval(s, e.Left, pve, ctx, func(s1 state.State, l term.Term, ctx1 state.Context) result.Result {
			return ev.guarded(s1, l, e.Right, pve, ctx1, func(s2 state.State, r term.Term, ctx2 state.Context) result.Result {
				if e.Op == ast.OpAnd {
					return Q(s2, term.And(l, r), ctx2)
				}
				return Q(s2, term.Implies(l, r), ctx2)
			})
		})
	case ast.OpOr:
		return ev.Eval(s, e.Left, pve, ctx, func(s1 state.State, l term.Term, ctx1 state.Context) result.Result {
			return ev.guarded(s1, term.Negate(l), e.Right, pve, ctx1, func(s2 state.State, r term.Term, ctx2 state.Context) result.Result {
				return Q(s2, term.Or(l, r), ctx2)
			})
		})
	}

	return ev.Eval(s, e.Left, pve, ctx, func(s1 state.State, l term.Term, ctx1 state.Context) result.Result {
		return ev.Eval(s1, e.Right, pve, ctx1, func(s2 state.State, r term.Term, ctx2 state.Context) result.Result {
			switch e.Op {
			case ast.OpDiv, ast.OpMod:
				if !ev.decider.Check(s2, term.Ne(r, zeroOf(r))) {
					return pve.Fail(result.DivisionByZero, e.Right)
				}
			}
			return Q(s2, apply(e.Op, l, r), ctx2)
		})
	})
}

// guarded evaluates e on the branch where guard holds. Facts learned
// while doing so are kept only under the guard.
func (ev *Evaluator) guarded(s state.State, guard term.Term, e ast.Expr, pve result.Partial, ctx state.Context, Q Continuation) result.Result {
	if ev.decider.Check(s, term.Negate(guard)) {
		// The operand is irrelevant; any value does.
		return Q(s, term.True, ctx)
	}
	inner := ev.decider.Assume(s, guard)
	return ev.Eval(inner, e, pve, ctx, func(s1 state.State, t term.Term, ctx1 state.Context) result.Result {
		learned := s1.PCs.All()[inner.PCs.Len():]
		out := s1.WithPCs(s.PCs)
		if len(learned) > 0 {
			out = ev.decider.Assume(out, term.Implies(guard, term.And(learned...)))
		}
		return Q(out, t, ctx1)
	})
}

// read returns the value of recv.field held at positive permission.
func (ev *Evaluator) read(s state.State, recv term.Term, field string) (term.Term, bool) {
	for _, c := range s.Heap.Chunks() {
		fc, ok := c.(state.FieldChunk)
		if !ok || fc.Field != field || !ev.decider.Equal(s, fc.Receiver, recv) {
			continue
		}
		if ev.decider.Check(s, term.Lt(term.NoPerm, fc.Perm)) {
			return fc.Value, true
		}
	}
	ev.logger.Debug("read without permission", zap.Stringer("recv", recv), zap.String("field", field))
	return nil, false
}

// held sums the permission to recv.field held across matching chunks.
func (ev *Evaluator) held(s state.State, recv term.Term, field string) term.Term {
	total := term.NoPerm
	for _, c := range s.Heap.Chunks() {
		fc, ok := c.(state.FieldChunk)
		if ok && fc.Field == field && ev.decider.Equal(s, fc.Receiver, recv) {
			total = term.Add(total, fc.Perm)
		}
	}
	return total
}

func zeroOf(t term.Term) term.Term {
	if t.Sort() == term.SortPerm {
		return term.NoPerm
	}
	return term.Int(0)
}

func apply(op ast.BinOp, l, r term.Term) term.Term {
	switch op {
	case ast.OpAdd:
		return term.Add(l, r)
	case ast.OpSub:
		return term.Sub(l, r)
	case ast.OpMul:
		return term.Mul(l, r)
	case ast.OpDiv:
		return term.Div(l, r)
	case ast.OpMod:
		return term.Mod(l, r)
	case ast.OpEq:
		return term.Eq(l, r)
	case ast.OpNe:
		return term.Ne(l, r)
	case ast.OpLt:
		return term.Lt(l, r)
	case ast.OpLe:
		return term.Le(l, r)
	case ast.OpGt:
		return term.Gt(l, r)
	case ast.OpGe:
		return term.Ge(l, r)
	}
	panic(result.Internalf(nil, "unexpected operator %s", op))
}
