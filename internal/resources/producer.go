package resources

import (
	"go.uber.org/zap"

	"github.com/gnoswap-labs/sepexec/internal/ast"
	"github.com/gnoswap-labs/sepexec/internal/decider"
	"github.com/gnoswap-labs/sepexec/internal/eval"
	"github.com/gnoswap-labs/sepexec/internal/result"
	"github.com/gnoswap-labs/sepexec/internal/state"
	"github.com/gnoswap-labs/sepexec/internal/term"
)

// Producer adds the resources and facts of an assertion to a state.
type Producer struct {
	decider *decider.Decider
	eval    *eval.Evaluator
	logger  *zap.Logger
}

// NewProducer creates a producer. A nil logger disables logging.
func NewProducer(d *decider.Decider, ev *eval.Evaluator, logger *zap.Logger) *Producer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Producer{decider: d, eval: ev, logger: logger}
}

// Produce adds a, scaled by p, to s. Field values and predicate
// snapshots are taken from snap where it holds a matching location.
func (pr *Producer) Produce(s state.State, snap state.Snapshot, p term.Term, a ast.Expr, pve result.Partial, ctx state.Context, Q state.Continuation) result.Result {
	if ast.IsPure(a) {
		return pr.eval.Eval(s, a, pve, ctx, func(s1 state.State, t term.Term, ctx1 state.Context) result.Result {
			return Q(pr.decider.Assume(s1, t), ctx1)
		})
	}

	switch a := a.(type) {
	case *ast.Binary:
		switch a.Op {
		case ast.OpAnd:
			return pr.Produce(s, snap, p, a.Left, pve, ctx, func(s1 state.State, ctx1 state.Context) result.Result {
				return pr.Produce(s1, snap, p, a.Right, pve, ctx1, Q)
			})
		case ast.OpImplies:
			return pr.eval.Eval(s, a.Left, pve, ctx, func(s1 state.State, cond term.Term, ctx1 state.Context) result.Result {
				return pr.decider.Branch(s1, ctx1, cond,
					func(s2 state.State, ctx2 state.Context) result.Result {
						return pr.Produce(s2, snap, p, a.Right, pve, ctx2, Q)
					},
					Q)
			})
		}

	case *ast.FieldAcc:
		return pr.produceField(s, snap, p, a, pve, ctx, Q)

	case *ast.PredicateAcc:
		return pr.producePredicate(s, snap, p, a, pve, ctx, Q)

	case *ast.Wand:
		bindings := Bindings(s.Store, a)
		handle := ctx.Fresh.Fresh("wand", term.SortWand)
		c := state.WandChunk{Wand: a, Handle: handle, Bindings: bindings, Perm: p}
		return Q(s.WithHeap(s.Heap.Add(c)), record(ctx, c))
	}
	panic(result.Internalf(a, "cannot produce %s", a))
}

func (pr *Producer) produceField(s state.State, snap state.Snapshot, p term.Term, a *ast.FieldAcc, pve result.Partial, ctx state.Context, Q state.Continuation) result.Result {
	field, ok := ctx.Program.FindField(a.Loc.Field)
	if !ok {
		panic(result.Internalf(a, "unknown field %s", a.Loc.Field))
	}
	return pr.eval.Eval(s, a.Loc.Recv, pve, ctx, func(s1 state.State, recv term.Term, ctx1 state.Context) result.Result {
		return pr.eval.Eval(s1, a.Perm, pve, ctx1, func(s2 state.State, perm term.Term, ctx2 state.Context) result.Result {
			amount := term.Mul(p, perm)
			if !pr.decider.Check(s2, term.Ge(amount, term.NoPerm)) {
				return pve.Fail(result.NegativePermission, a.Perm)
			}
			s2 = pr.assumeNonNull(s2, recv, amount)

			value, found := snapshotValue(pr.decider, s2, snap, recv, field.Name)
			if !found {
				value = ctx2.Fresh.Fresh(field.Name, field.Type.Sort())
			}
			c := state.FieldChunk{Receiver: recv, Field: field.Name, Value: value, Perm: amount}
			s3 := pr.add(s2, c)
			return Q(s3, record(ctx2, c))
		})
	})
}

func (pr *Producer) producePredicate(s state.State, snap state.Snapshot, p term.Term, a *ast.PredicateAcc, pve result.Partial, ctx state.Context, Q state.Continuation) result.Result {
	if _, ok := ctx.Program.FindPredicate(a.Name); !ok {
		panic(result.Internalf(a, "unknown predicate %s", a.Name))
	}
	return pr.eval.Evals(s, a.Args, pve, ctx, func(s1 state.State, args []term.Term, ctx1 state.Context) result.Result {
		return pr.eval.Eval(s1, a.Perm, pve, ctx1, func(s2 state.State, perm term.Term, ctx2 state.Context) result.Result {
			amount := term.Mul(p, perm)
			if !pr.decider.Check(s2, term.Ge(amount, term.NoPerm)) {
				return pve.Fail(result.NegativePermission, a.Perm)
			}
			var nested []state.Chunk
			loc := state.PredicateChunk{Name: a.Name, Args: args}
			for _, c := range snap {
				if pc, ok := c.(state.PredicateChunk); ok && pr.decider.SameLocation(s2, pc, loc) {
					nested = pc.Snapshot
					break
				}
			}
			c := state.PredicateChunk{Name: a.Name, Args: args, Perm: amount, Snapshot: nested}
			return Q(pr.add(s2, c), record(ctx2, c))
		})
	})
}

func (pr *Producer) assumeNonNull(s state.State, recv term.Term, amount term.Term) state.State {
	nonNull := term.Ne(recv, term.Null{})
	if pr.decider.Check(s, term.Lt(term.NoPerm, amount)) {
		return pr.decider.Assume(s, nonNull)
	}
	return pr.decider.Assume(s, term.Implies(term.Lt(term.NoPerm, amount), nonNull))
}

// add inserts c, merging it into a chunk for the same location when both
// amounts are provably positive.
func (pr *Producer) add(s state.State, c state.Chunk) state.State {
	positive := func(t term.Term) bool { return pr.decider.Check(s, term.Lt(term.NoPerm, t)) }
	i, existing, ok := s.Heap.Find(func(o state.Chunk) bool {
		return pr.decider.SameLocation(s, o, c)
	})
	if !ok || !positive(existing.Amount()) || !positive(c.Amount()) {
		return s.WithHeap(s.Heap.Add(c))
	}

	merged := existing.WithAmount(term.Add(existing.Amount(), c.Amount()))
	switch e := existing.(type) {
	case state.FieldChunk:
		s = pr.decider.Assume(s, term.Eq(e.Value, c.(state.FieldChunk).Value))
	case state.PredicateChunk:
		if e.Snapshot == nil {
			pc := merged.(state.PredicateChunk)
			pc.Snapshot = c.(state.PredicateChunk).Snapshot
			merged = pc
		}
	case state.WandChunk:
		return s.WithHeap(s.Heap.Add(c))
	}
	pr.logger.Debug("merged chunk", zap.String("chunk", merged.String()))
	return s.WithHeap(s.Heap.Replace(i, merged))
}

func record(ctx state.Context, c state.Chunk) state.Context {
	if !ctx.Packaging() {
		return ctx
	}
	return ctx.RecordProduced(c)
}

// snapshotValue finds the value recorded for recv.field in snap.
func snapshotValue(d *decider.Decider, s state.State, snap state.Snapshot, recv term.Term, field string) (term.Term, bool) {
	for _, c := range snap {
		if fc, ok := c.(state.FieldChunk); ok && fc.Field == field && d.Equal(s, fc.Receiver, recv) {
			return fc.Value, true
		}
	}
	return nil, false
}

// Bindings captures the current values of the free variables of w.
func Bindings(st state.Store, w *ast.Wand) state.Store {
	var names []string
	var vals []term.Term
	for _, v := range ast.FreeVars(w) {
		if t, ok := st.Get(v.Name); ok {
			names = append(names, v.Name)
			vals = append(vals, t)
		}
	}
	return state.NewStore(names, vals)
}
