package exec

import (
	"go.uber.org/zap"

	"github.com/gnoswap-labs/sepexec/internal/analysis/cfg"
	"github.com/gnoswap-labs/sepexec/internal/ast"
	"github.com/gnoswap-labs/sepexec/internal/result"
	"github.com/gnoswap-labs/sepexec/internal/state"
	"github.com/gnoswap-labs/sepexec/internal/term"
)

// Exec executes g from its entry block. Q is invoked on every path that
// leaves the graph.
func (x *Executor) Exec(s state.State, ctx state.Context, g *cfg.Graph, Q state.Continuation) result.Result {
	return x.ExecBlock(s, ctx, g, g.Entry, Q)
}

// ExecBlock executes b and then follows its successor edges.
func (x *Executor) ExecBlock(s state.State, ctx state.Context, g *cfg.Graph, b cfg.Block, Q state.Continuation) result.Result {
	x.logger.Debug("block", zap.Int("id", b.ID()))
	switch b := b.(type) {
	case *cfg.StatementBlock:
		return x.Execs(s, ctx, b.Stmts, func(s1 state.State, ctx1 state.Context) result.Result {
			return x.leaveBlock(s1, ctx1, g, b, Q)
		})
	case *cfg.LoopBlock:
		return x.execLoop(s, ctx, g, b, Q)
	}
	panic(result.Internalf(nil, "unexpected block %T", b))
}

func (x *Executor) leaveBlock(s state.State, ctx state.Context, g *cfg.Graph, b cfg.Block, Q state.Continuation) result.Result {
	edges := g.Succs(b)
	if len(edges) == 0 {
		return Q(s, ctx)
	}
	return x.followEdges(s, ctx, g, edges, Q)
}

func (x *Executor) followEdges(s state.State, ctx state.Context, g *cfg.Graph, edges []cfg.Edge, Q state.Continuation) result.Result {
	r := result.Success()
	for _, e := range edges {
		e := e
		r = x.combine(r, func() result.Result {
			return x.followEdge(s, ctx, g, e, Q)
		})
	}
	return r
}

func (x *Executor) followEdge(s state.State, ctx state.Context, g *cfg.Graph, e cfg.Edge, Q state.Continuation) result.Result {
	switch e := e.(type) {
	case *cfg.UnconditionalEdge:
		return x.ExecBlock(s, ctx, g, e.To, Q)
	case *cfg.ConditionalEdge:
		pve := result.For(result.IfFailed, e.Cond)
		return x.Evaluator.Eval(s, e.Cond, pve, ctx, func(s1 state.State, guard term.Term, ctx1 state.Context) result.Result {
			x.logger.Debug("branch", zap.Stringer("guard", guard), zap.Int("to", e.To.ID()))
			return x.Decider.Branch(s1, ctx1, guard,
				func(s2 state.State, ctx2 state.Context) result.Result {
					return x.ExecBlock(s2, ctx2, g, e.To, Q)
				},
				// The complement is the business of a sibling edge.
				func(state.State, state.Context) result.Result {
					return result.Success()
				})
		})
	}
	panic(result.Internalf(nil, "unexpected edge %T", e))
}

// execLoop proves a loop correct in two independent parts: one arbitrary
// iteration preserves the invariant, and the invariant holds on entry,
// after which execution continues past the loop assuming the invariant
// and the negated guard.
func (x *Executor) execLoop(s state.State, ctx state.Context, g *cfg.Graph, b *cfg.LoopBlock, Q state.Continuation) result.Result {
	inv := ast.Conj(b.Invariants...)
	havocked := havocable(b.Written)
	wellFormed := result.For(result.WhileFailed, b.While)

	preservation := func() result.Result {
		x.logger.Debug("loop preservation", zap.Int("id", b.ID()))
		s0 := x.havoc(s, ctx, havocked).WithHeap(state.NewHeap())
		return x.Producer.Produce(s0, nil, term.FullPerm, inv, wellFormed, ctx, func(s1 state.State, ctx1 state.Context) result.Result {
			return x.Evaluator.Eval(s1, b.Cond, wellFormed, ctx1, func(s2 state.State, guard term.Term, ctx2 state.Context) result.Result {
				s3 := x.Decider.Assume(s2, guard)
				if x.Decider.CheckSmoke(s3) {
					return result.Success()
				}
				return x.Exec(s3, ctx2, b.Body, func(s4 state.State, ctx4 state.Context) result.Result {
					pve := result.For(result.LoopInvariantNotPreserved, b.While)
					return x.Consumer.Consume(s4, term.FullPerm, inv, pve, ctx4, func(state.State, []state.Chunk, state.Context) result.Result {
						return result.Success()
					})
				})
			})
		})
	}

	establishment := func() result.Result {
		x.logger.Debug("loop establishment", zap.Int("id", b.ID()))
		pve := result.For(result.LoopInvariantNotEstablished, b.While)
		return x.Consumer.Consume(s, term.FullPerm, inv, pve, ctx, func(s1 state.State, _ []state.Chunk, ctx1 state.Context) result.Result {
			s2 := x.havoc(s1.WithStore(s.Store), ctx1, havocked)
			return x.Producer.Produce(s2, nil, term.FullPerm, inv, wellFormed, ctx1, func(s3 state.State, ctx3 state.Context) result.Result {
				return x.Evaluator.Eval(s3, b.Cond, wellFormed, ctx3, func(s4 state.State, guard term.Term, ctx4 state.Context) result.Result {
					s5 := x.Decider.Assume(s4, term.Negate(guard))
					if x.Decider.CheckSmoke(s5) {
						return result.Success()
					}
					return x.leaveBlock(s5, ctx4, g, b, Q)
				})
			})
		})
	}

	return x.combine(preservation(), establishment)
}

// havocable drops variables of wand sort, which are never havocked.
func havocable(vs []*ast.Var) []*ast.Var {
	out := make([]*ast.Var, 0, len(vs))
	for _, v := range vs {
		if v.Type != ast.TypeWand {
			out = append(out, v)
		}
	}
	return out
}

// havoc binds every variable of vs to a fresh value.
func (x *Executor) havoc(s state.State, ctx state.Context, vs []*ast.Var) state.State {
	if len(vs) == 0 {
		return s
	}
	names := make([]string, len(vs))
	vals := make([]term.Term, len(vs))
	for i, v := range vs {
		names[i] = v.Name
		vals[i] = x.Decider.Fresh(ctx, v.Name, v.Type.Sort())
	}
	return s.WithStore(s.Store.SetAll(names, vals))
}
