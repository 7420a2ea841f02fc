package eval

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gnoswap-labs/sepexec/internal/ast"
	"github.com/gnoswap-labs/sepexec/internal/decider"
	"github.com/gnoswap-labs/sepexec/internal/result"
	"github.com/gnoswap-labs/sepexec/internal/state"
	"github.com/gnoswap-labs/sepexec/internal/term"
)

var (
	xRef = term.Var{Name: "x@1", S: term.SortRef}
	nInt = term.Var{Name: "n@2", S: term.SortInt}
	vInt = term.Var{Name: "v@3", S: term.SortInt}
	pve  = result.For(result.AssertFailed, nil)
)

func setup() (*Evaluator, state.State, state.Context) {
	d := decider.New(decider.DefaultConfig(), nil)
	s := state.State{
		Store: state.NewStore([]string{"x", "n"}, []term.Term{xRef, nInt}),
		Heap:  state.NewHeap(state.FieldChunk{Receiver: xRef, Field: "f", Value: vInt, Perm: term.Perm(1, 2)}),
	}
	s.OldHeap = state.NewHeap(state.FieldChunk{Receiver: xRef, Field: "f", Value: term.Int(7), Perm: term.FullPerm})
	return New(d, nil), s, state.NewContext(nil, term.NewGenerator())
}

// value evaluates e and returns its term, or the failure.
func value(t *testing.T, ev *Evaluator, s state.State, ctx state.Context, e ast.Expr) (term.Term, result.Result) {
	t.Helper()
	var got term.Term
	r := ev.Eval(s, e, pve, ctx, func(_ state.State, v term.Term, _ state.Context) result.Result {
		got = v
		return result.Success()
	})
	return got, r
}

func TestEvalPure(t *testing.T) {
	t.Parallel()
	ev, s, ctx := setup()
	x := ast.V("x", ast.TypeRef)
	n := ast.V("n", ast.TypeInt)

	tests := []struct {
		name     string
		expr     ast.Expr
		expected string
	}{
		{"literal", ast.Int(3), "3"},
		{"variable", n, "n@2"},
		{"arith", ast.Bin(ast.OpAdd, n, ast.Int(0)), "n@2"},
		{"fold", ast.Bin(ast.OpMul, ast.Int(2), ast.Int(3)), "6"},
		{"field", ast.Dot(x, "f"), "v@3"},
		{"old field", &ast.Old{X: ast.Dot(x, "f")}, "7"},
		{"perm", &ast.PermOf{Loc: ast.Dot(x, "f")}, "1/2"},
		{"perm elsewhere", &ast.PermOf{Loc: ast.Dot(x, "g")}, "none"},
		{"not equal", ast.Bin(ast.OpNe, x, ast.Null()), "!(x@1 == null)"},
		{"negation", &ast.Unary{Op: ast.OpNeg, X: ast.Int(4)}, "-4"},
		{"fraction", ast.Frac(2, 4), "1/2"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, r := value(t, ev, s, ctx, tt.expr)
			require.True(t, r.IsSuccess(), r.String())
			assert.Equal(t, tt.expected, got.String())
		})
	}
}

func TestEvalFieldWithoutPermission(t *testing.T) {
	t.Parallel()
	ev, s, ctx := setup()
	loc := ast.Dot(ast.V("x", ast.TypeRef), "g")

	_, r := value(t, ev, s, ctx, loc)
	require.True(t, r.IsFailure())
	assert.Equal(t, result.InsufficientPermission, r.Err().Reason.Kind)
	assert.Equal(t, loc, r.Err().Reason.Offending)
}

func TestEvalDivisionByZero(t *testing.T) {
	t.Parallel()
	ev, s, ctx := setup()
	n := ast.V("n", ast.TypeInt)

	_, r := value(t, ev, s, ctx, ast.Bin(ast.OpDiv, ast.Int(1), n))
	require.True(t, r.IsFailure())
	assert.Equal(t, result.DivisionByZero, r.Err().Reason.Kind)

	guarded := ast.Bin(ast.OpImplies,
		ast.Bin(ast.OpNe, n, ast.Int(0)),
		ast.Bin(ast.OpEq, ast.Bin(ast.OpDiv, n, n), ast.Int(1)))
	_, r = value(t, ev, s, ctx, guarded)
	assert.True(t, r.IsSuccess(), r.String())
}

func TestEvalDoesNotLeakGuard(t *testing.T) {
	t.Parallel()
	ev, s, ctx := setup()
	d := decider.New(decider.DefaultConfig(), nil)
	n := ast.V("n", ast.TypeInt)
	e := ast.Bin(ast.OpAnd, ast.Bin(ast.OpGt, n, ast.Int(0)), ast.Bool(true))

	r := ev.Eval(s, e, pve, ctx, func(s1 state.State, _ term.Term, _ state.Context) result.Result {
		assert.False(t, d.Check(s1, term.Gt(nInt, term.Int(0))))
		return result.Success()
	})
	assert.True(t, r.IsSuccess())
}

func TestEvalOldLHSRequiresApplication(t *testing.T) {
	t.Parallel()
	ev, s, ctx := setup()
	e := &ast.Old{Label: ast.LabelLHS, X: ast.Dot(ast.V("x", ast.TypeRef), "f")}

	assert.Panics(t, func() { value(t, ev, s, ctx, e) })

	lhs := state.NewHeap(state.FieldChunk{Receiver: xRef, Field: "f", Value: term.Int(9), Perm: term.FullPerm})
	got, r := value(t, ev, s, ctx.WithLHSHeap(lhs), e)
	require.True(t, r.IsSuccess())
	assert.Equal(t, "9", got.String())
}

func TestEvals(t *testing.T) {
	t.Parallel()
	ev, s, ctx := setup()

	var got []term.Term
	r := ev.Evals(s, []ast.Expr{ast.Int(1), ast.V("n", ast.TypeInt)}, pve, ctx,
		func(_ state.State, ts []term.Term, _ state.Context) result.Result {
			got = ts
			return result.Success()
		})
	require.True(t, r.IsSuccess())
	assert.Equal(t, []term.Term{term.Int(1), nInt}, got)
}
