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

// ConsumeContinuation receives the state after consumption together with
// the chunks that were removed, each at the amount removed.
type ConsumeContinuation func(state.State, []state.Chunk, state.Context) result.Result

// Consumer removes the resources of an assertion from a state and checks
// its pure parts.
type Consumer struct {
	decider *decider.Decider
	eval    *eval.Evaluator
	logger  *zap.Logger
}

// NewConsumer creates a consumer. A nil logger disables logging.
func NewConsumer(d *decider.Decider, ev *eval.Evaluator, logger *zap.Logger) *Consumer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Consumer{decider: d, eval: ev, logger: logger}
}

// Consume removes a, scaled by p, from s. Expressions inside a are
// evaluated in the heap as it was before consumption started; while a
// wand is being packaged that heap includes the reserve.
func (cs *Consumer) Consume(s state.State, p term.Term, a ast.Expr, pve result.Partial, ctx state.Context, Q ConsumeContinuation) result.Result {
	evalHeap := s.Heap
	if ctx.Packaging() {
		evalHeap = evalHeap.Concat(ctx.Scope().Reserve)
	}
	return cs.consume(s, evalHeap, p, a, pve, ctx, Q)
}

func (cs *Consumer) consume(s state.State, evalHeap state.Heap, p term.Term, a ast.Expr, pve result.Partial, ctx state.Context, Q ConsumeContinuation) result.Result {
	if ast.IsPure(a) {
		if v, ok := a.(*ast.Var); ok && v.Type == ast.TypeWand {
			return cs.consumeHandle(s, v, pve, ctx, Q)
		}
		return cs.evalIn(s, evalHeap, a, pve, ctx, func(s1 state.State, t term.Term, ctx1 state.Context) result.Result {
			if !cs.decider.Check(s1, t) {
				return pve.Fail(result.AssertionFalse, a)
			}
			return Q(cs.decider.Assume(s1, t), nil, ctx1)
		})
	}

	switch a := a.(type) {
	case *ast.Binary:
		switch a.Op {
		case ast.OpAnd:
			return cs.consume(s, evalHeap, p, a.Left, pve, ctx, func(s1 state.State, left []state.Chunk, ctx1 state.Context) result.Result {
				return cs.consume(s1, evalHeap, p, a.Right, pve, ctx1, func(s2 state.State, right []state.Chunk, ctx2 state.Context) result.Result {
					return Q(s2, append(append([]state.Chunk(nil), left...), right...), ctx2)
				})
			})
		case ast.OpImplies:
			return cs.evalIn(s, evalHeap, a.Left, pve, ctx, func(s1 state.State, cond term.Term, ctx1 state.Context) result.Result {
				return cs.decider.Branch(s1, ctx1, cond,
					func(s2 state.State, ctx2 state.Context) result.Result {
						return cs.consume(s2, evalHeap, p, a.Right, pve, ctx2, Q)
					},
					func(s2 state.State, ctx2 state.Context) result.Result {
						return Q(s2, nil, ctx2)
					})
			})
		}

	case *ast.FieldAcc:
		return cs.evalIn(s, evalHeap, a.Loc.Recv, pve, ctx, func(s1 state.State, recv term.Term, ctx1 state.Context) result.Result {
			return cs.evalIn(s1, evalHeap, a.Perm, pve, ctx1, func(s2 state.State, perm term.Term, ctx2 state.Context) result.Result {
				loc := state.FieldChunk{Receiver: recv, Field: a.Loc.Field}
				if ctx2.IsConstrainable(perm) {
					return cs.constrain(s2, loc, perm, a, pve, ctx2, Q)
				}
				return cs.take(s2, loc, term.Mul(p, perm), a, pve, ctx2, Q)
			})
		})

	case *ast.PredicateAcc:
		return cs.evalsIn(s, evalHeap, a.Args, pve, ctx, func(s1 state.State, args []term.Term, ctx1 state.Context) result.Result {
			return cs.evalIn(s1, evalHeap, a.Perm, pve, ctx1, func(s2 state.State, perm term.Term, ctx2 state.Context) result.Result {
				loc := state.PredicateChunk{Name: a.Name, Args: args}
				return cs.take(s2, loc, term.Mul(p, perm), a, pve, ctx2, Q)
			})
		})

	case *ast.Wand:
		return cs.consumeWand(s, a, pve, ctx, Q)
	}
	panic(result.Internalf(a, "cannot consume %s", a))
}

// take removes amount of the location loc stands for. Inside a packaging
// scope whatever the heap lacks is drawn from the reserve and recorded in
// the scope.
func (cs *Consumer) take(s state.State, loc state.Chunk, amount term.Term, node ast.Expr, pve result.Partial, ctx state.Context, Q ConsumeContinuation) result.Result {
	if !cs.decider.Check(s, term.Ge(amount, term.NoPerm)) {
		return pve.Fail(result.NegativePermission, node)
	}
	if cs.decider.Check(s, term.Eq(amount, term.NoPerm)) {
		return Q(s, nil, ctx)
	}

	match := func(c state.Chunk) bool { return cs.decider.SameLocation(s, c, loc) }
	i, c, found := s.Heap.Find(match)
	if found && cs.decider.Check(s, term.Le(amount, c.Amount())) {
		s1, heap := cs.reduce(s, s.Heap, i, c, amount)
		return Q(s1.WithHeap(heap), []state.Chunk{c.WithAmount(amount)}, ctx)
	}
	if !ctx.Packaging() {
		cs.logger.Debug("insufficient permission", zap.String("location", node.String()))
		return pve.Fail(result.InsufficientPermission, node)
	}

	// Take what the heap holds, then the rest from the reserve.
	heap := s.Heap
	need := amount
	var taken []state.Chunk
	if found {
		heap = heap.Remove(i)
		need = term.Sub(amount, c.Amount())
		taken = append(taken, c)
	}
	sc := ctx.Scope()
	j, rc, ok := sc.Reserve.Find(match)
	if !ok || !cs.decider.Check(s, term.Le(need, rc.Amount())) {
		return pve.Fail(result.InsufficientPermission, node)
	}
	s, sc.Reserve = cs.reduce(s, sc.Reserve, j, rc, need)
	drawn := rc.WithAmount(need)
	taken = append(taken, drawn)

	s1 := s.WithHeap(heap)
	if found {
		if hf, isField := c.(state.FieldChunk); isField {
			s1 = cs.decider.Assume(s1, term.Eq(hf.Value, rc.(state.FieldChunk).Value))
		}
	}
	ctx1 := ctx.WithScope(sc).RecordConsumed(drawn)
	return Q(s1, taken, ctx1)
}

// constrain consumes a constrainable amount v at loc by assuming it is a
// positive share of what is held.
func (cs *Consumer) constrain(s state.State, loc state.Chunk, v term.Term, node ast.Expr, pve result.Partial, ctx state.Context, Q ConsumeContinuation) result.Result {
	i, c, found := s.Heap.Find(func(c state.Chunk) bool {
		return cs.decider.SameLocation(s, c, loc) && cs.decider.Check(s, term.Lt(term.NoPerm, c.Amount()))
	})
	if !found {
		return pve.Fail(result.InsufficientPermission, node)
	}
	s1 := cs.decider.Assume(s, term.Lt(term.NoPerm, v), term.Lt(v, c.Amount()))
	return Q(s1.WithHeap(s1.Heap.Replace(i, c.WithAmount(term.Sub(c.Amount(), v)))), []state.Chunk{c.WithAmount(v)}, ctx)
}

func (cs *Consumer) consumeWand(s state.State, w *ast.Wand, pve result.Partial, ctx state.Context, Q ConsumeContinuation) result.Result {
	want := Bindings(s.Store, w)
	i, c, found := s.Heap.Find(func(c state.Chunk) bool {
		wc, ok := c.(state.WandChunk)
		if !ok || wc.Wand.String() != w.String() {
			return false
		}
		for _, name := range want.Names() {
			have, bound := wc.Bindings.Get(name)
			expect, _ := want.Get(name)
			if !bound || !cs.decider.Equal(s, have, expect) {
				return false
			}
		}
		return true
	})
	if !found {
		return pve.Fail(result.MagicWandChunkNotFound, w)
	}
	return Q(s.WithHeap(s.Heap.Remove(i)), []state.Chunk{c}, ctx)
}

func (cs *Consumer) consumeHandle(s state.State, v *ast.Var, pve result.Partial, ctx state.Context, Q ConsumeContinuation) result.Result {
	handle, ok := s.Store.Get(v.Name)
	if !ok {
		panic(result.Internalf(v, "variable %s is not bound", v.Name))
	}
	i, c, found := s.Heap.FindWand(handle)
	if !found {
		return pve.Fail(result.NamedMagicWandChunkNotFound, v)
	}
	return Q(s.WithHeap(s.Heap.Remove(i)), []state.Chunk{c}, ctx)
}

// reduce takes amount from chunk i of h, dropping the chunk when nothing
// is left. The remainder is assumed non-negative.
func (cs *Consumer) reduce(s state.State, h state.Heap, i int, c state.Chunk, amount term.Term) (state.State, state.Heap) {
	rest := term.Sub(c.Amount(), amount)
	if cs.decider.Check(s, term.Eq(rest, term.NoPerm)) {
		return s, h.Remove(i)
	}
	return cs.decider.Assume(s, term.Ge(rest, term.NoPerm)), h.Replace(i, c.WithAmount(rest))
}

func (cs *Consumer) evalIn(s state.State, h state.Heap, e ast.Expr, pve result.Partial, ctx state.Context, Q eval.Continuation) result.Result {
	current := s.Heap
	return cs.eval.Eval(s.WithHeap(h), e, pve, ctx, func(s1 state.State, t term.Term, ctx1 state.Context) result.Result {
		return Q(s1.WithHeap(current), t, ctx1)
	})
}

func (cs *Consumer) evalsIn(s state.State, h state.Heap, es []ast.Expr, pve result.Partial, ctx state.Context, Q eval.ListContinuation) result.Result {
	current := s.Heap
	return cs.eval.Evals(s.WithHeap(h), es, pve, ctx, func(s1 state.State, ts []term.Term, ctx1 state.Context) result.Result {
		return Q(s1.WithHeap(current), ts, ctx1)
	})
}
