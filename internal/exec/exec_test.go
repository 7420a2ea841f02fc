package exec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gnoswap-labs/sepexec/internal/analysis/cfg"
	"github.com/gnoswap-labs/sepexec/internal/ast"
	"github.com/gnoswap-labs/sepexec/internal/decider"
	"github.com/gnoswap-labs/sepexec/internal/resources"
	"github.com/gnoswap-labs/sepexec/internal/result"
	"github.com/gnoswap-labs/sepexec/internal/state"
	"github.com/gnoswap-labs/sepexec/internal/term"
)

var (
	x = ast.V("x", ast.TypeRef)
	y = ast.V("y", ast.TypeRef)
	i = ast.V("i", ast.TypeInt)
	b = ast.V("b", ast.TypeBool)
	p = ast.V("p", ast.TypePerm)
	w = ast.V("w", ast.TypeWand)

	xRef = term.Var{Name: "x@0", S: term.SortRef}
	iVal = term.Var{Name: "i@0", S: term.SortInt}
	bVal = term.Var{Name: "b@0", S: term.SortBool}
)

func testProgram() *ast.Program {
	r := ast.V("r", ast.TypeRef)
	m := &ast.Method{
		Name:    "set",
		Formals: []*ast.Var{r},
		Pres:    []ast.Expr{ast.Acc(ast.Dot(r, "f"), ast.Write())},
		Posts: []ast.Expr{
			ast.Acc(ast.Dot(r, "f"), ast.Write()),
			ast.Bin(ast.OpEq, ast.Dot(r, "f"), ast.Int(3)),
		},
	}
	return ast.NewProgram(
		[]*ast.Field{{Name: "f", Type: ast.TypeInt}, {Name: "g", Type: ast.TypeInt}},
		[]*ast.Predicate{{Name: "P", Formals: []*ast.Var{r}, Body: ast.Acc(ast.Dot(r, "f"), ast.Write())}},
		[]*ast.Method{m},
	)
}

func newExecutor(config Config) *Executor {
	return NewDefault(config, decider.New(decider.DefaultConfig(), nil), nil)
}

func start() (state.State, state.Context) {
	s := state.State{Store: state.NewStore(
		[]string{"x", "i", "b"},
		[]term.Term{xRef, iVal, bVal},
	)}
	return s, state.NewContext(testProgram(), term.NewGenerator())
}

// run executes body from the start state and returns the result together
// with the final state of every path that reached the exit.
func run(t *testing.T, ex *Executor, body ...ast.Stmt) (result.Result, []state.State) {
	t.Helper()
	g, err := cfg.Build(ast.Seq(body...))
	require.NoError(t, err)
	s, ctx := start()
	var finals []state.State
	r := ex.Exec(s, ctx, g, func(s1 state.State, _ state.Context) result.Result {
		finals = append(finals, s1)
		return result.Success()
	})
	return r, finals
}

func accF(recv ast.Expr) ast.Expr { return ast.Acc(ast.Dot(recv, "f"), ast.Write()) }

func assign(v *ast.Var, e ast.Expr) ast.Stmt { return &ast.LocalAssign{Target: v, Value: e} }

func requireFailure(t *testing.T, r result.Result, id string) {
	t.Helper()
	require.True(t, r.IsFailure(), "expected %s, got Success", id)
	assert.Equal(t, id, r.Err().ID(), r.String())
}

func TestFieldAssign(t *testing.T) {
	t.Parallel()
	ex := newExecutor(DefaultConfig())
	r, finals := run(t, ex,
		&ast.Inhale{Expr: accF(x)},
		&ast.FieldAssign{Target: ast.Dot(x, "f"), Value: ast.Int(5)},
	)
	require.True(t, r.IsSuccess(), r.String())
	require.Len(t, finals, 1)

	chunks := finals[0].Heap.Chunks()
	require.Len(t, chunks, 1)
	c, ok := chunks[0].(state.FieldChunk)
	require.True(t, ok)
	assert.Equal(t, "f", c.Field)
	assert.Equal(t, term.Int(5), c.Value)
	assert.Equal(t, term.FullPerm, c.Perm)
}

func TestFieldAssignFailures(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		body []ast.Stmt
		want string
	}{
		{
			name: "NullReceiver",
			body: []ast.Stmt{
				assign(x, ast.Null()),
				&ast.FieldAssign{Target: ast.Dot(x, "f"), Value: ast.Int(5)},
			},
			want: "assignment.failed:receiver.null",
		},
		{
			name: "NoPermission",
			body: []ast.Stmt{
				&ast.Inhale{Expr: ast.Bin(ast.OpNe, x, ast.Null())},
				&ast.FieldAssign{Target: ast.Dot(x, "f"), Value: ast.Int(5)},
			},
			want: "assignment.failed:insufficient.permission",
		},
		{
			name: "ReadPermissionOnly",
			body: []ast.Stmt{
				&ast.Inhale{Expr: ast.Acc(ast.Dot(x, "f"), ast.Frac(1, 2))},
				&ast.FieldAssign{Target: ast.Dot(x, "f"), Value: ast.Int(5)},
			},
			want: "assignment.failed:insufficient.permission",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			r, _ := run(t, newExecutor(DefaultConfig()), tt.body...)
			requireFailure(t, r, tt.want)
		})
	}
}

func TestAssert(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		body []ast.Stmt
		want string
	}{
		{
			name: "InfeasiblePath",
			body: []ast.Stmt{&ast.Inhale{Expr: ast.Bool(false)}, &ast.Assert{Expr: ast.Bool(false)}},
		},
		{
			name: "ContradictoryFacts",
			body: []ast.Stmt{
				&ast.Inhale{Expr: ast.Bin(ast.OpGt, i, ast.Int(0))},
				&ast.Inhale{Expr: ast.Bin(ast.OpLt, i, ast.Int(0))},
				&ast.Assert{Expr: ast.Bool(false)},
			},
		},
		{
			name: "ReachableFalse",
			body: []ast.Stmt{&ast.Assert{Expr: ast.Bool(false)}},
			want: "assert.failed:assertion.false",
		},
		{
			name: "KnownFact",
			body: []ast.Stmt{
				&ast.Inhale{Expr: ast.Bin(ast.OpGe, i, ast.Int(2))},
				&ast.Assert{Expr: ast.Bin(ast.OpGt, i, ast.Int(1))},
			},
		},
		{
			name: "UnknownFact",
			body: []ast.Stmt{&ast.Assert{Expr: ast.Bin(ast.OpGt, i, ast.Int(1))}},
			want: "assert.failed:assertion.false",
		},
		{
			name: "HeldPermission",
			body: []ast.Stmt{&ast.Inhale{Expr: accF(x)}, &ast.Assert{Expr: accF(x)}, &ast.Assert{Expr: accF(x)}},
		},
		{
			name: "MissingPermission",
			body: []ast.Stmt{&ast.Assert{Expr: accF(x)}},
			want: "assert.failed:insufficient.permission",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			r, _ := run(t, newExecutor(DefaultConfig()), tt.body...)
			if tt.want == "" {
				assert.True(t, r.IsSuccess(), r.String())
				return
			}
			requireFailure(t, r, tt.want)
		})
	}
}

func TestAssertFalseTwice(t *testing.T) {
	t.Parallel()
	ex := newExecutor(DefaultConfig())
	assertFalse := &ast.Assert{Expr: ast.Bool(false)}
	twice := func(s state.State, ctx state.Context) (result.Result, result.Result) {
		done := func(state.State, state.Context) result.Result { return result.Success() }
		return ex.ExecStmt(s, ctx, assertFalse, done), ex.ExecStmt(s, ctx, assertFalse, done)
	}

	t.Run("FeasiblePath", func(t *testing.T) {
		t.Parallel()
		s, ctx := start()
		first, second := twice(s, ctx)
		require.True(t, first.IsFailure())
		require.True(t, second.IsFailure())
		assert.Equal(t, "assert.failed:assertion.false", first.Err().ID())
		assert.Equal(t, first.Err().ID(), second.Err().ID())
	})

	t.Run("InfeasiblePath", func(t *testing.T) {
		t.Parallel()
		s, ctx := start()
		s = decider.New(decider.DefaultConfig(), nil).Assume(s, term.Gt(iVal, term.Int(0)), term.Lt(iVal, term.Int(0)))
		first, second := twice(s, ctx)
		assert.True(t, first.IsSuccess(), first.String())
		assert.True(t, second.IsSuccess(), second.String())
	})
}

func TestDeterministicFailure(t *testing.T) {
	t.Parallel()
	body := []ast.Stmt{
		&ast.Inhale{Expr: accF(x)},
		&ast.If{Cond: b, Then: ast.Seq(&ast.Assert{Expr: ast.Bin(ast.OpEq, i, ast.Int(1))})},
		&ast.Assert{Expr: ast.Bool(false)},
	}
	r1, _ := run(t, newExecutor(DefaultConfig()), body...)
	r2, _ := run(t, newExecutor(DefaultConfig()), body...)
	require.True(t, r1.IsFailure())
	assert.Equal(t, r1.String(), r2.String())
	assert.Same(t, r1.Err().Node, r2.Err().Node)
}

func TestExhale(t *testing.T) {
	t.Parallel()
	ex := newExecutor(DefaultConfig())
	r, finals := run(t, ex,
		&ast.Inhale{Expr: accF(x)},
		&ast.Exhale{Expr: ast.Acc(ast.Dot(x, "f"), ast.Frac(1, 2))},
	)
	require.True(t, r.IsSuccess(), r.String())
	require.Len(t, finals, 1)
	require.Equal(t, 1, finals[0].Heap.Len())
	assert.Equal(t, term.Perm(1, 2), finals[0].Heap.Chunks()[0].Amount())

	r, _ = run(t, ex,
		&ast.Inhale{Expr: accF(x)},
		&ast.Exhale{Expr: accF(x)},
		&ast.Exhale{Expr: accF(x)},
	)
	requireFailure(t, r, "exhale.failed:insufficient.permission")
}

func TestConditional(t *testing.T) {
	t.Parallel()
	t.Run("BothSidesHold", func(t *testing.T) {
		t.Parallel()
		r, finals := run(t, newExecutor(DefaultConfig()),
			&ast.If{
				Cond: b,
				Then: ast.Seq(&ast.Assert{Expr: b}, assign(i, ast.Int(1))),
				Else: ast.Seq(&ast.Assert{Expr: ast.Not(b)}, assign(i, ast.Int(2))),
			},
			&ast.Assert{Expr: ast.Bin(ast.OpGt, i, ast.Int(0))},
		)
		assert.True(t, r.IsSuccess(), r.String())
		assert.Len(t, finals, 2)
	})

	t.Run("DecidedGuard", func(t *testing.T) {
		t.Parallel()
		r, finals := run(t, newExecutor(DefaultConfig()),
			&ast.Inhale{Expr: b},
			&ast.If{Cond: b, Then: ast.Seq(), Else: ast.Seq(&ast.Assert{Expr: ast.Bool(false)})},
		)
		assert.True(t, r.IsSuccess(), r.String())
		assert.Len(t, finals, 1)
	})

	t.Run("FactsDoNotLeak", func(t *testing.T) {
		t.Parallel()
		r, _ := run(t, newExecutor(DefaultConfig()),
			&ast.If{Cond: b, Then: ast.Seq(&ast.Inhale{Expr: ast.Bin(ast.OpEq, i, ast.Int(1))})},
			&ast.Assert{Expr: ast.Bin(ast.OpEq, i, ast.Int(1))},
		)
		requireFailure(t, r, "assert.failed:assertion.false")
	})

	t.Run("GuardNotWellFormed", func(t *testing.T) {
		t.Parallel()
		r, _ := run(t, newExecutor(DefaultConfig()),
			&ast.If{Cond: ast.Bin(ast.OpGt, ast.Dot(x, "f"), ast.Int(0)), Then: ast.Seq()},
		)
		requireFailure(t, r, "if.failed:insufficient.permission")
	})
}

func TestReportAll(t *testing.T) {
	t.Parallel()
	body := []ast.Stmt{&ast.If{
		Cond: b,
		Then: ast.Seq(&ast.Assert{Expr: ast.Bool(false)}),
		Else: ast.Seq(&ast.Assert{Expr: ast.Bool(false)}),
	}}

	r, _ := run(t, newExecutor(DefaultConfig()), body...)
	require.True(t, r.IsFailure())
	assert.Len(t, r.Errors, 1)

	r, _ = run(t, newExecutor(Config{Subsumption: true, ReportAll: true}), body...)
	require.True(t, r.IsFailure())
	assert.Len(t, r.Errors, 2)
}

func TestGoto(t *testing.T) {
	t.Parallel()
	r, _ := run(t, newExecutor(DefaultConfig()),
		assign(i, ast.Int(1)),
		&ast.Goto{Target: "end"},
		&ast.Assert{Expr: ast.Bool(false)},
		&ast.Label{Name: "end"},
		&ast.Assert{Expr: ast.Bin(ast.OpEq, i, ast.Int(1))},
	)
	assert.True(t, r.IsSuccess(), r.String())
}

func TestLoop(t *testing.T) {
	t.Parallel()
	nonNegative := ast.Bin(ast.OpGe, i, ast.Int(0))
	loop := func(entry int64, body ...ast.Stmt) []ast.Stmt {
		return []ast.Stmt{
			assign(i, ast.Int(entry)),
			&ast.While{Cond: ast.Bin(ast.OpLt, i, ast.Int(10)), Invariants: []ast.Expr{nonNegative}, Body: ast.Seq(body...)},
		}
	}

	tests := []struct {
		name   string
		body   []ast.Stmt
		config Config
		want   []string
	}{
		{
			name: "Verified",
			body: append(loop(0, assign(i, ast.Bin(ast.OpAdd, i, ast.Int(1)))), &ast.Assert{Expr: ast.Bin(ast.OpGe, i, ast.Int(10))}),
		},
		{
			name: "NotEstablished",
			body: loop(-1, assign(i, ast.Int(5))),
			want: []string{"invariant.not.established:assertion.false"},
		},
		{
			name: "NotPreserved",
			body: loop(0, assign(i, ast.Int(-1))),
			want: []string{"invariant.not.preserved:assertion.false"},
		},
		{
			name:   "NotPreservedReportsOnlyPreservation",
			body:   loop(0, assign(i, ast.Int(-1))),
			config: Config{ReportAll: true},
			want:   []string{"invariant.not.preserved:assertion.false"},
		},
		{
			name:   "BothReported",
			body:   loop(-1, assign(i, ast.Int(-1))),
			config: Config{ReportAll: true},
			want: []string{
				"invariant.not.preserved:assertion.false",
				"invariant.not.established:assertion.false",
			},
		},
		{
			name: "BodySeesOnlyInvariant",
			body: append([]ast.Stmt{assign(b, ast.Bool(true))},
				loop(0, &ast.Assert{Expr: b})...),
			// i is havocked but b is not written by the body.
		},
		{
			name: "HeapIsFramedAway",
			body: append([]ast.Stmt{&ast.Inhale{Expr: accF(x)}},
				loop(0, &ast.Assert{Expr: accF(x)})...),
			want: []string{"assert.failed:insufficient.permission"},
		},
		{
			name: "InfeasibleBody",
			body: loop(0, &ast.Inhale{Expr: ast.Bin(ast.OpLt, i, ast.Int(0))}, &ast.Assert{Expr: ast.Bool(false)}),
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			r, _ := run(t, newExecutor(tt.config), tt.body...)
			if len(tt.want) == 0 {
				assert.True(t, r.IsSuccess(), r.String())
				return
			}
			require.True(t, r.IsFailure())
			var got []string
			for _, e := range r.Errors {
				got = append(got, e.ID())
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLoopCounter(t *testing.T) {
	t.Parallel()
	bounded := ast.Bin(ast.OpLe, i, ast.Int(10))
	counter := func(guard ast.Expr) []ast.Stmt {
		return []ast.Stmt{
			assign(i, ast.Int(0)),
			&ast.While{
				Cond:       guard,
				Invariants: []ast.Expr{bounded},
				Body:       ast.Seq(assign(i, ast.Bin(ast.OpAdd, i, ast.Int(1)))),
			},
			&ast.Assert{Expr: ast.Bin(ast.OpEq, i, ast.Int(10))},
		}
	}

	r, _ := run(t, newExecutor(DefaultConfig()), counter(ast.Bin(ast.OpLt, i, ast.Int(10)))...)
	assert.True(t, r.IsSuccess(), r.String())

	r, _ = run(t, newExecutor(DefaultConfig()), counter(ast.Bin(ast.OpLe, i, ast.Int(10)))...)
	requireFailure(t, r, "invariant.not.preserved:assertion.false")
}

func TestLoopHavocsWrittenVariables(t *testing.T) {
	t.Parallel()
	r, _ := run(t, newExecutor(DefaultConfig()),
		assign(i, ast.Int(0)),
		&ast.While{Cond: b, Body: ast.Seq(assign(i, ast.Int(1)))},
		&ast.Assert{Expr: ast.Bin(ast.OpEq, i, ast.Int(0))},
	)
	requireFailure(t, r, "assert.failed:assertion.false")
}

func TestNew(t *testing.T) {
	t.Parallel()
	r, finals := run(t, newExecutor(DefaultConfig()),
		&ast.Inhale{Expr: accF(x)},
		&ast.New{Target: y, Fields: []string{"f", "g"}},
		&ast.Assert{Expr: ast.Bin(ast.OpNe, y, x)},
		&ast.Assert{Expr: ast.Bin(ast.OpNe, y, ast.Null())},
		&ast.FieldAssign{Target: ast.Dot(y, "g"), Value: ast.Int(1)},
	)
	require.True(t, r.IsSuccess(), r.String())
	require.Len(t, finals, 1)
	assert.Equal(t, 3, finals[0].Heap.Len())
}

func TestFresh(t *testing.T) {
	t.Parallel()
	r, _ := run(t, newExecutor(DefaultConfig()),
		&ast.Fresh{Vars: []*ast.Var{p, i}},
		&ast.Assert{Expr: ast.Bin(ast.OpLt, ast.NoPerm(), p)},
		&ast.Assert{Expr: ast.Bin(ast.OpLt, p, ast.Write())},
	)
	assert.True(t, r.IsSuccess(), r.String())

	r, _ = run(t, newExecutor(DefaultConfig()),
		assign(i, ast.Int(0)),
		&ast.Fresh{Vars: []*ast.Var{i}},
		&ast.Assert{Expr: ast.Bin(ast.OpEq, i, ast.Int(0))},
	)
	requireFailure(t, r, "assert.failed:assertion.false")
}

func TestConstraining(t *testing.T) {
	t.Parallel()
	half := ast.Acc(ast.Dot(x, "f"), ast.Frac(1, 2))
	exhaleP := &ast.Exhale{Expr: ast.Acc(ast.Dot(x, "f"), p)}

	r, _ := run(t, newExecutor(DefaultConfig()),
		&ast.Fresh{Vars: []*ast.Var{p}},
		&ast.Inhale{Expr: half},
		exhaleP,
	)
	requireFailure(t, r, "exhale.failed:insufficient.permission")

	r, _ = run(t, newExecutor(DefaultConfig()),
		&ast.Fresh{Vars: []*ast.Var{p}},
		&ast.Inhale{Expr: half},
		&ast.Constraining{Vars: []*ast.Var{p}, Body: ast.Seq(exhaleP)},
		&ast.Assert{Expr: ast.Bin(ast.OpLt, p, ast.Frac(1, 2))},
	)
	assert.True(t, r.IsSuccess(), r.String())
}

func TestMethodCall(t *testing.T) {
	t.Parallel()
	call := &ast.MethodCall{Method: "set", Args: []ast.Expr{x}}

	t.Run("PreconditionHolds", func(t *testing.T) {
		t.Parallel()
		r, finals := run(t, newExecutor(DefaultConfig()),
			&ast.Inhale{Expr: accF(x)},
			call,
			&ast.Assert{Expr: ast.Bin(ast.OpEq, ast.Dot(x, "f"), ast.Int(3))},
		)
		require.True(t, r.IsSuccess(), r.String())
		require.Len(t, finals, 1)
		got, ok := finals[0].Store.Get("x")
		require.True(t, ok)
		assert.Equal(t, xRef, got)
	})

	t.Run("PreconditionFails", func(t *testing.T) {
		t.Parallel()
		r, _ := run(t, newExecutor(DefaultConfig()), call)
		requireFailure(t, r, "call.precondition:insufficient.permission")
	})
}

func TestFoldUnfold(t *testing.T) {
	t.Parallel()
	pred := ast.PredAcc("P", ast.Write(), x)

	r, finals := run(t, newExecutor(DefaultConfig()),
		&ast.Inhale{Expr: accF(x)},
		&ast.FieldAssign{Target: ast.Dot(x, "f"), Value: ast.Int(7)},
		&ast.Fold{Acc: pred},
		&ast.Unfold{Acc: pred},
		&ast.Assert{Expr: ast.Bin(ast.OpEq, ast.Dot(x, "f"), ast.Int(7))},
	)
	require.True(t, r.IsSuccess(), r.String())
	require.Len(t, finals, 1)
	assert.Equal(t, 1, finals[0].Heap.Len())

	r, _ = run(t, newExecutor(DefaultConfig()), &ast.Unfold{Acc: pred})
	requireFailure(t, r, "unfold.failed:insufficient.permission")

	r, _ = run(t, newExecutor(DefaultConfig()), &ast.Fold{Acc: ast.PredAcc("P", ast.NoPerm(), x)})
	requireFailure(t, r, "fold.failed:negative.permission")
}

func TestWands(t *testing.T) {
	t.Parallel()
	wand := func() *ast.Wand { return &ast.Wand{Left: ast.Bool(true), Right: accF(x)} }

	tests := []struct {
		name string
		body []ast.Stmt
		want string
	}{
		{
			name: "PackageMovesFootprint",
			body: []ast.Stmt{
				&ast.Inhale{Expr: accF(x)},
				&ast.Package{Wand: wand()},
				&ast.Assert{Expr: accF(x)},
			},
			want: "assert.failed:insufficient.permission",
		},
		{
			name: "PackageThenApply",
			body: []ast.Stmt{
				&ast.Inhale{Expr: accF(x)},
				&ast.FieldAssign{Target: ast.Dot(x, "f"), Value: ast.Int(4)},
				&ast.Package{Wand: wand()},
				&ast.Apply{Wand: wand()},
				&ast.Assert{Expr: ast.Bin(ast.OpEq, ast.Dot(x, "f"), ast.Int(4))},
			},
		},
		{
			name: "ApplyTwice",
			body: []ast.Stmt{
				&ast.Inhale{Expr: accF(x)},
				&ast.Package{Wand: wand()},
				&ast.Apply{Wand: wand()},
				&ast.Apply{Wand: wand()},
			},
			want: "apply.failed:wand.chunk.not.found",
		},
		{
			name: "PackageWithoutFootprint",
			body: []ast.Stmt{&ast.Package{Wand: wand()}},
			want: "package.failed:insufficient.permission",
		},
		{
			name: "LetWandThenApply",
			body: []ast.Stmt{
				&ast.Inhale{Expr: accF(x)},
				assign(w, wand()),
				&ast.Apply{Wand: w},
				&ast.Assert{Expr: accF(x)},
			},
		},
		{
			name: "LetWandFails",
			body: []ast.Stmt{assign(w, wand())},
			want: "letwand.failed:insufficient.permission",
		},
		{
			name: "NamedWandNotFound",
			body: []ast.Stmt{
				&ast.Fresh{Vars: []*ast.Var{w}},
				&ast.Apply{Wand: w},
			},
			want: "apply.failed:wand.not.found",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			r, _ := run(t, newExecutor(DefaultConfig()), tt.body...)
			if tt.want == "" {
				assert.True(t, r.IsSuccess(), r.String())
				return
			}
			requireFailure(t, r, tt.want)
		})
	}
}

func TestExecsComposes(t *testing.T) {
	t.Parallel()
	first := assign(i, ast.Int(1))
	second := &ast.Inhale{Expr: accF(x)}
	ex := newExecutor(DefaultConfig())

	s, ctx := start()
	var seq state.State
	ex.Execs(s, ctx, []ast.Stmt{first, second}, func(s1 state.State, _ state.Context) result.Result {
		seq = s1
		return result.Success()
	})

	s, ctx = start()
	var nested state.State
	ex.ExecStmt(s, ctx, first, func(s1 state.State, ctx1 state.Context) result.Result {
		return ex.ExecStmt(s1, ctx1, second, func(s2 state.State, _ state.Context) result.Result {
			nested = s2
			return result.Success()
		})
	})

	assert.Equal(t, nested.Store.String(), seq.Store.String())
	assert.Equal(t, nested.Heap.String(), seq.Heap.String())
	assert.Equal(t, nested.PCs.All(), seq.PCs.All())
}

// learningConsumer pretends to learn fact and drop every chunk.
type learningConsumer struct {
	fact term.Term
}

func (c learningConsumer) Consume(s state.State, _ term.Term, _ ast.Expr, _ result.Partial, ctx state.Context, Q resources.ConsumeContinuation) result.Result {
	return Q(s.WithHeap(state.NewHeap()).WithPCs(s.PCs.Add(c.fact)), nil, ctx)
}

type countingCompressor struct {
	calls *int
}

func (c countingCompressor) Compress(s state.State) state.State {
	*c.calls++
	return s
}

func TestAssertSubsumption(t *testing.T) {
	t.Parallel()
	learned := term.Var{Name: "learned", S: term.SortBool}
	chunk := state.FieldChunk{Receiver: xRef, Field: "f", Value: iVal, Perm: term.FullPerm}

	for _, subsumption := range []bool{true, false} {
		ex := newExecutor(Config{Subsumption: subsumption})
		ex.Consumer = learningConsumer{fact: learned}

		s, ctx := start()
		s = s.WithHeap(state.NewHeap(chunk))
		var after state.State
		r := ex.ExecStmt(s, ctx, &ast.Assert{Expr: b}, func(s1 state.State, _ state.Context) result.Result {
			after = s1
			return result.Success()
		})
		require.True(t, r.IsSuccess())
		assert.Equal(t, 1, after.Heap.Len(), "assert must not remove chunks")
		assert.Equal(t, subsumption, containsTerm(after.PCs.All(), learned), "subsumption=%v", subsumption)
	}
}

func TestAssertTrueCompresses(t *testing.T) {
	t.Parallel()
	var calls int
	ex := newExecutor(DefaultConfig())
	ex.Compressor = countingCompressor{calls: &calls}

	s, ctx := start()
	r := ex.ExecStmt(s, ctx, &ast.Assert{Expr: ast.Bool(true)}, func(state.State, state.Context) result.Result {
		return result.Success()
	})
	assert.True(t, r.IsSuccess())
	assert.Equal(t, 1, calls)
}

func TestUnloweredStatementsPanic(t *testing.T) {
	t.Parallel()
	stmts := []ast.Stmt{
		&ast.If{Cond: b, Then: ast.Seq()},
		&ast.While{Cond: b, Body: ast.Seq()},
		&ast.Label{Name: "l"},
		&ast.Goto{Target: "l"},
	}
	ex := newExecutor(DefaultConfig())
	for _, st := range stmts {
		st := st
		t.Run(st.String(), func(t *testing.T) {
			t.Parallel()
			s, ctx := start()
			var got any
			func() {
				defer func() { got = recover() }()
				ex.ExecStmt(s, ctx, st, func(state.State, state.Context) result.Result {
					return result.Success()
				})
			}()
			_, ok := got.(*result.InternalError)
			assert.True(t, ok, "expected an internal error, got %v", got)
		})
	}
}

func containsTerm(ts []term.Term, t term.Term) bool {
	for _, u := range ts {
		if term.Same(u, t) {
			return true
		}
	}
	return false
}
