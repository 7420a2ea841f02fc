package exec

import (
	"go.uber.org/zap"

	"github.com/gnoswap-labs/sepexec/internal/ast"
	"github.com/gnoswap-labs/sepexec/internal/resources"
	"github.com/gnoswap-labs/sepexec/internal/result"
	"github.com/gnoswap-labs/sepexec/internal/state"
	"github.com/gnoswap-labs/sepexec/internal/term"
)

// Execs executes stmts left to right.
func (x *Executor) Execs(s state.State, ctx state.Context, stmts []ast.Stmt, Q state.Continuation) result.Result {
	if len(stmts) == 0 {
		return Q(s, ctx)
	}
	return x.ExecStmt(s, ctx, stmts[0], func(s1 state.State, ctx1 state.Context) result.Result {
		return x.Execs(s1, ctx1, stmts[1:], Q)
	})
}

// ExecStmt executes a single lowered statement. Structured statements
// must have been lowered into the graph; reaching one here is a bug in
// the caller and panics with a *result.InternalError.
func (x *Executor) ExecStmt(s state.State, ctx state.Context, stmt ast.Stmt, Q state.Continuation) result.Result {
	x.logger.Debug("exec", zap.String("stmt", stmt.String()), zap.Stringer("pos", stmt.Position()))

	switch stmt := stmt.(type) {
	case *ast.Seqn:
		return x.Execs(s, ctx, stmt.Stmts, Q)

	case *ast.LocalAssign:
		if stmt.Target.Type == ast.TypeWand {
			return x.letWand(s, ctx, stmt, Q)
		}
		pve := result.For(result.AssignmentFailed, stmt)
		return x.Evaluator.Eval(s, stmt.Value, pve, ctx, func(s1 state.State, t term.Term, ctx1 state.Context) result.Result {
			return Q(s1.WithStore(s1.Store.Set(stmt.Target.Name, t)), ctx1)
		})

	case *ast.FieldAssign:
		return x.fieldAssign(s, ctx, stmt, Q)

	case *ast.New:
		return x.newObject(s, ctx, stmt, Q)

	case *ast.Fresh:
		names := make([]string, len(stmt.Vars))
		vals := make([]term.Term, len(stmt.Vars))
		var constraints []term.Term
		for i, v := range stmt.Vars {
			t := x.Decider.Fresh(ctx, v.Name, v.Type.Sort())
			names[i], vals[i] = v.Name, t
			constraints = append(constraints, freshConstraints(t)...)
		}
		s1 := s.WithStore(s.Store.SetAll(names, vals))
		return Q(x.Decider.Assume(s1, constraints...), ctx)

	case *ast.Inhale:
		if ast.IsFalse(stmt.Expr) {
			return result.Success()
		}
		pve := result.For(result.InhaleFailed, stmt)
		return x.Producer.Produce(s, nil, term.FullPerm, stmt.Expr, pve, ctx, Q)

	case *ast.Exhale:
		pve := result.For(result.ExhaleFailed, stmt)
		return x.Consumer.Consume(s, term.FullPerm, stmt.Expr, pve, ctx, func(s1 state.State, _ []state.Chunk, ctx1 state.Context) result.Result {
			return Q(s1, ctx1)
		})

	case *ast.Assert:
		return x.assert(s, ctx, stmt, Q)

	case *ast.MethodCall:
		return x.call(s, ctx, stmt, Q)

	case *ast.Fold:
		pve := result.For(result.FoldFailed, stmt)
		return x.predicateOp(s, ctx, stmt.Acc, pve, func(s1 state.State, ctx1 state.Context, pred *ast.Predicate, args []term.Term, p term.Term) result.Result {
			return x.Predicates.Fold(s1, pred, args, p, pve, ctx1, Q)
		})

	case *ast.Unfold:
		pve := result.For(result.UnfoldFailed, stmt)
		return x.predicateOp(s, ctx, stmt.Acc, pve, func(s1 state.State, ctx1 state.Context, pred *ast.Predicate, args []term.Term, p term.Term) result.Result {
			return x.Predicates.Unfold(s1, pred, stmt.Acc, args, p, pve, ctx1, Q)
		})

	case *ast.Package:
		pve := result.For(result.PackageFailed, stmt)
		return x.packageWand(s, ctx, stmt.Wand, pve, func(s1 state.State, c state.WandChunk, ctx1 state.Context) result.Result {
			return Q(s1.WithHeap(s1.Heap.Add(c)), ctx1)
		})

	case *ast.Apply:
		return x.apply(s, ctx, stmt, Q)

	case *ast.Constraining:
		vars := make([]term.Term, len(stmt.Vars))
		for i, v := range stmt.Vars {
			vars[i] = lookup(s, v)
		}
		var body []ast.Stmt
		if stmt.Body != nil {
			body = stmt.Body.Stmts
		}
		return x.Execs(s, ctx.WithConstrainable(vars...), body, func(s1 state.State, ctx1 state.Context) result.Result {
			return Q(s1, ctx1.WithoutConstrainable(vars...))
		})

	case *ast.If, *ast.While, *ast.Label, *ast.Goto:
		panic(result.Internalf(stmt, "unlowered statement %s", stmt))
	}
	panic(result.Internalf(stmt, "unexpected statement %T", stmt))
}

func (x *Executor) fieldAssign(s state.State, ctx state.Context, stmt *ast.FieldAssign, Q state.Continuation) result.Result {
	pve := result.For(result.AssignmentFailed, stmt)
	loc := stmt.Target
	return x.Evaluator.Eval(s, loc.Recv, pve, ctx, func(s1 state.State, recv term.Term, ctx1 state.Context) result.Result {
		if !x.Decider.Check(s1, term.Ne(recv, term.Null{})) {
			return pve.Fail(result.ReceiverNull, loc)
		}
		return x.Evaluator.Eval(s1, stmt.Value, pve, ctx1, func(s2 state.State, v term.Term, ctx2 state.Context) result.Result {
			i, c, ok := x.Decider.FindField(s2, s2.Heap, recv, loc.Field)
			if !ok || !x.Decider.Check(s2, term.Le(term.FullPerm, c.Perm)) {
				return pve.Fail(result.InsufficientPermission, loc)
			}
			c.Value = v
			return Q(s2.WithHeap(s2.Heap.Replace(i, c)), ctx2)
		})
	})
}

func (x *Executor) newObject(s state.State, ctx state.Context, stmt *ast.New, Q state.Continuation) result.Result {
	ref := x.Decider.Fresh(ctx, stmt.Target.Name, term.SortRef)
	facts := []term.Term{term.Ne(ref, term.Null{})}
	for _, r := range s.References() {
		facts = append(facts, term.Ne(ref, r))
	}

	chunks := make([]state.Chunk, 0, len(stmt.Fields))
	for _, name := range stmt.Fields {
		f, ok := ctx.Program.FindField(name)
		if !ok {
			panic(result.Internalf(stmt, "unknown field %s", name))
		}
		chunks = append(chunks, state.FieldChunk{
			Receiver: ref,
			Field:    f.Name,
			Value:    x.Decider.Fresh(ctx, f.Name, f.Type.Sort()),
			Perm:     term.FullPerm,
		})
	}

	s1 := x.Decider.Assume(s, facts...)
	s1 = s1.WithHeap(s1.Heap.Add(chunks...)).WithStore(s1.Store.Set(stmt.Target.Name, ref))
	return Q(s1, ctx)
}

func (x *Executor) assert(s state.State, ctx state.Context, stmt *ast.Assert, Q state.Continuation) result.Result {
	pve := result.For(result.AssertFailed, stmt)
	switch {
	case ast.IsTrue(stmt.Expr):
		return Q(x.Compressor.Compress(s), ctx)

	case ast.IsFalse(stmt.Expr):
		if x.Decider.CheckSmoke(s) {
			return result.Success()
		}
		return pve.Fail(result.AssertionFalse, stmt.Expr)
	}

	if !x.config.Subsumption {
		r := x.Consumer.Consume(s, term.FullPerm, stmt.Expr, pve, ctx, func(state.State, []state.Chunk, state.Context) result.Result {
			return result.Success()
		})
		return r.And(func() result.Result { return Q(s, ctx) })
	}
	return x.Consumer.Consume(s, term.FullPerm, stmt.Expr, pve, ctx, func(s1 state.State, _ []state.Chunk, ctx1 state.Context) result.Result {
		// Keep what was learned, not what was removed.
		return Q(s1.WithHeap(s.Heap), ctx1)
	})
}

func (x *Executor) call(s state.State, ctx state.Context, stmt *ast.MethodCall, Q state.Continuation) result.Result {
	m, ok := ctx.Program.FindMethod(stmt.Method)
	if !ok {
		panic(result.Internalf(stmt, "unknown method %s", stmt.Method))
	}
	if len(stmt.Args) != len(m.Formals) || len(stmt.Targets) != len(m.Returns) {
		panic(result.Internalf(stmt, "call to %s does not match its signature", m.Name))
	}
	pve := result.For(result.CallFailed, stmt)
	pvePre := result.For(result.PreconditionInCallFalse, stmt)

	return x.Evaluator.Evals(s, stmt.Args, pve, ctx, func(s1 state.State, args []term.Term, ctx1 state.Context) result.Result {
		scope := state.NewStore(varNames(m.Formals), args)
		callee := s1.WithStore(scope)
		return x.Consumer.Consume(callee, term.FullPerm, ast.Conj(m.Pres...), pvePre, ctx1, func(s2 state.State, _ []state.Chunk, ctx2 state.Context) result.Result {
			rets := make([]term.Term, len(m.Returns))
			for i, r := range m.Returns {
				rets[i] = x.Decider.Fresh(ctx2, r.Name, r.Type.Sort())
			}
			post := s2.WithStore(scope.SetAll(varNames(m.Returns), rets)).WithOldHeap(s1.Heap)
			return x.Producer.Produce(post, nil, term.FullPerm, ast.Conj(m.Posts...), pve, ctx2, func(s3 state.State, ctx3 state.Context) result.Result {
				caller := s1.Store.SetAll(varNames(stmt.Targets), rets)
				return Q(s3.WithStore(caller).WithOldHeap(s1.OldHeap), ctx3)
			})
		})
	})
}

// predicateOp resolves and evaluates the operands of a fold or unfold.
func (x *Executor) predicateOp(s state.State, ctx state.Context, acc *ast.PredicateAcc, pve result.Partial, k func(state.State, state.Context, *ast.Predicate, []term.Term, term.Term) result.Result) result.Result {
	pred, ok := ctx.Program.FindPredicate(acc.Name)
	if !ok {
		panic(result.Internalf(acc, "unknown predicate %s", acc.Name))
	}
	return x.Evaluator.Evals(s, acc.Args, pve, ctx, func(s1 state.State, args []term.Term, ctx1 state.Context) result.Result {
		return x.Evaluator.Eval(s1, acc.Perm, pve, ctx1, func(s2 state.State, p term.Term, ctx2 state.Context) result.Result {
			if !x.Decider.Check(s2, term.Lt(term.NoPerm, p)) {
				return pve.Fail(result.NegativePermission, acc.Perm)
			}
			return k(s2, ctx2, pred, args, p)
		})
	})
}

// packageWand runs the wand support inside a fresh packaging scope whose
// reserve is the current heap. Afterwards the heap is what is left of the
// reserve; the path conditions and store are those from before.
func (x *Executor) packageWand(s state.State, ctx state.Context, w *ast.Wand, pve result.Partial, Q resources.WandContinuation) result.Result {
	inner := ctx.PushPackaging(s.Heap)
	hypothetical := s.WithHeap(state.NewHeap())
	return x.Wands.Package(hypothetical, w, pve, inner, func(s1 state.State, c state.WandChunk, ctx1 state.Context) result.Result {
		outer, scope := ctx1.PopPackaging()
		s2 := s.WithHeap(scope.Reserve)
		x.logger.Debug("packaged wand", zap.String("wand", w.String()), zap.Int("residual", scope.Reserve.Len()))
		return Q(s2, c, outer)
	})
}

func (x *Executor) letWand(s state.State, ctx state.Context, stmt *ast.LocalAssign, Q state.Continuation) result.Result {
	w, ok := stmt.Value.(*ast.Wand)
	if !ok {
		panic(result.Internalf(stmt, "wand variable %s assigned a non-wand", stmt.Target.Name))
	}
	pve := result.For(result.LetWandFailed, stmt)
	return x.packageWand(s, ctx, w, pve, func(s1 state.State, c state.WandChunk, _ state.Context) result.Result {
		s2 := s1.WithHeap(s1.Heap.Add(c)).WithStore(s1.Store.Set(stmt.Target.Name, c.Handle))
		return Q(s2, ctx)
	})
}

func (x *Executor) apply(s state.State, ctx state.Context, stmt *ast.Apply, Q state.Continuation) result.Result {
	pve := result.For(result.ApplyFailed, stmt)
	switch w := stmt.Wand.(type) {
	case *ast.Var:
		handle := lookup(s, w)
		i, c, ok := s.Heap.FindWand(handle)
		if !ok {
			return pve.Fail(result.NamedMagicWandChunkNotFound, w)
		}
		return x.applyChunk(s.WithHeap(s.Heap.Remove(i)), ctx, c, pve, Q)

	case *ast.Wand:
		return x.Consumer.Consume(s, term.FullPerm, w, pve, ctx, func(s1 state.State, chunks []state.Chunk, ctx1 state.Context) result.Result {
			c, ok := chunks[0].(state.WandChunk)
			if !ok {
				panic(result.Internalf(w, "consuming a wand yielded %s", chunks[0]))
			}
			return x.applyChunk(s1, ctx1, c, pve, Q)
		})
	}
	panic(result.Internalf(stmt, "cannot apply %s", stmt.Wand))
}

// applyChunk exchanges the left side of an already removed wand chunk for
// its right side. The right side is framed by the heap the left side was
// consumed from and reuses the values of the wand's footprint.
func (x *Executor) applyChunk(s state.State, ctx state.Context, c state.WandChunk, pve result.Partial, Q state.Continuation) result.Result {
	caller := s.Store
	inner := s.WithStore(c.Bindings)
	lhs := inner.Heap
	return x.Consumer.Consume(inner, term.FullPerm, c.Wand.Left, pve, ctx, func(s1 state.State, consumed []state.Chunk, ctx1 state.Context) result.Result {
		snap := make(state.Snapshot, 0, len(c.Footprint)+len(consumed))
		snap = append(snap, c.Footprint...)
		snap = append(snap, consumed...)
		return x.Producer.Produce(s1, snap, term.FullPerm, c.Wand.Right, pve, ctx1.WithLHSHeap(lhs), func(s2 state.State, ctx2 state.Context) result.Result {
			return Q(s2.WithStore(caller), ctx2.WithoutLHSHeap())
		})
	})
}

// freshConstraints are the side conditions of a fresh value: a fresh
// permission is a positive amount below write.
func freshConstraints(t term.Var) []term.Term {
	if t.Sort() != term.SortPerm {
		return nil
	}
	return []term.Term{term.Lt(term.NoPerm, t), term.Lt(t, term.FullPerm)}
}

func lookup(s state.State, v *ast.Var) term.Term {
	t, ok := s.Store.Get(v.Name)
	if !ok {
		panic(result.Internalf(v, "variable %s is not bound", v.Name))
	}
	return t
}

func varNames(vs []*ast.Var) []string {
	names := make([]string, len(vs))
	for i, v := range vs {
		names[i] = v.Name
	}
	return names
}
