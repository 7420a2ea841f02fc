package decider

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/gnoswap-labs/sepexec/internal/result"
	"github.com/gnoswap-labs/sepexec/internal/state"
	"github.com/gnoswap-labs/sepexec/internal/term"
)

var (
	x = term.Var{Name: "x", S: term.SortInt}
	y = term.Var{Name: "y", S: term.SortInt}
	r = term.Var{Name: "r", S: term.SortRef}
	q = term.Var{Name: "q", S: term.SortRef}
	p = term.Var{Name: "p", S: term.SortPerm}
	o = term.Var{Name: "o", S: term.SortPerm}
	z = term.Var{Name: "z", S: term.SortInt}
	b = term.Var{Name: "b", S: term.SortBool}
)

func assumed(ts ...term.Term) state.State {
	d := New(DefaultConfig(), nil)
	return d.Assume(state.State{}, ts...)
}

func TestCheck(t *testing.T) {
	t.Parallel()
	d := New(DefaultConfig(), nil)

	tests := []struct {
		name     string
		pcs      []term.Term
		goal     term.Term
		expected bool
	}{
		{"trivial", nil, term.True, true},
		{"unknown", nil, term.Gt(x, term.Int(0)), false},
		{"assumed", []term.Term{term.Gt(x, term.Int(0))}, term.Gt(x, term.Int(0)), true},
		{"integer strengthening", []term.Term{term.Gt(x, term.Int(0))}, term.Ge(x, term.Int(1)), true},
		{"weaker bound", []term.Term{term.Gt(x, term.Int(3))}, term.Gt(x, term.Int(1)), true},
		{"not stronger", []term.Term{term.Gt(x, term.Int(1))}, term.Gt(x, term.Int(3)), false},
		{"constant propagation", []term.Term{term.Eq(x, term.Int(4))}, term.Lt(term.Add(x, term.Int(1)), term.Int(6)), true},
		{"transitive equality", []term.Term{term.Eq(x, y), term.Eq(y, term.Int(2))}, term.Eq(x, term.Int(2)), true},
		{"non-null", []term.Term{term.Ne(r, term.Null{})}, term.Ne(r, term.Null{}), true},
		{"disequality", []term.Term{term.Ne(r, q)}, term.Eq(r, q), false},
		{"implication", []term.Term{term.Implies(b, term.Eq(x, term.Int(1))), b}, term.Eq(x, term.Int(1)), true},
		{"case split", []term.Term{term.Or(term.Eq(x, term.Int(1)), term.Eq(x, term.Int(2)))}, term.Gt(x, term.Int(0)), true},
		{"perm below write", []term.Term{term.Lt(term.NoPerm, p), term.Lt(p, term.FullPerm)}, term.Le(p, term.FullPerm), true},
		{"perm positive", []term.Term{term.Lt(term.NoPerm, p)}, term.Lt(term.NoPerm, p), true},
		{"perm literals", nil, term.Ge(term.FullPerm, term.Perm(1, 2)), true},
		{"perm variable may be negative", nil, term.Ge(p, term.NoPerm), false},
		{"perm difference may be negative", []term.Term{term.Lt(p, o)}, term.Ge(term.Sub(p, o), term.NoPerm), false},
		{"perm difference", []term.Term{term.Lt(p, o)}, term.Lt(term.Sub(p, o), term.NoPerm), true},
		{"perm halves", []term.Term{term.Le(term.FullPerm, term.Add(p, p))}, term.Le(term.Perm(1, 2), p), true},
		{"offset lower bound", []term.Term{term.Ge(x, term.Int(0))}, term.Ge(term.Add(x, term.Int(1)), term.Int(0)), true},
		{"offset upper bound", []term.Term{term.Lt(x, term.Int(10))}, term.Le(term.Add(x, term.Int(1)), term.Int(10)), true},
		{"offset too weak", []term.Term{term.Le(x, term.Int(10))}, term.Le(term.Add(x, term.Int(1)), term.Int(10)), false},
		{"difference bound", []term.Term{term.Lt(x, y)}, term.Le(term.Add(x, term.Int(1)), y), true},
		{"transitive bound", []term.Term{term.Lt(x, y), term.Le(y, z)}, term.Lt(x, z), true},
		{"not transitive", []term.Term{term.Lt(x, y), term.Lt(z, y)}, term.Lt(x, z), false},
		{"pinned value", []term.Term{term.Le(x, term.Int(10)), term.Ge(x, term.Int(10))}, term.Eq(x, term.Int(10)), true},
		{"pinned by loop exit", []term.Term{term.Le(x, term.Int(10)), term.Negate(term.Lt(x, term.Int(10)))}, term.Eq(x, term.Int(10)), true},
		{"linear equality", []term.Term{term.Eq(y, term.Add(x, term.Int(1)))}, term.Lt(x, y), true},
		{"scaled sum", []term.Term{term.Le(term.Add(x, y), term.Int(3))}, term.Le(term.Mul(term.Int(2), term.Add(x, y)), term.Int(6)), true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.expected, d.Check(assumed(tt.pcs...), tt.goal))
		})
	}
}

func TestCheckSmoke(t *testing.T) {
	t.Parallel()
	d := New(DefaultConfig(), nil)

	assert.False(t, d.CheckSmoke(state.State{}))
	assert.False(t, d.CheckSmoke(assumed(term.Gt(x, term.Int(0)))))
	assert.True(t, d.CheckSmoke(assumed(term.False)))
	assert.True(t, d.CheckSmoke(assumed(b, term.Negate(b))))
	assert.True(t, d.CheckSmoke(assumed(term.Gt(x, term.Int(0)), term.Le(x, term.Int(0)))))
	assert.True(t, d.CheckSmoke(assumed(term.Eq(x, term.Int(1)), term.Eq(x, term.Int(2)))))
	assert.True(t, d.CheckSmoke(assumed(term.Eq(r, q), term.Ne(r, q))))
	assert.True(t, d.CheckSmoke(assumed(term.Lt(x, y), term.Lt(y, x))))
	assert.True(t, d.CheckSmoke(assumed(term.Lt(x, term.Int(1)), term.Gt(x, term.Int(0)))))
	assert.False(t, d.CheckSmoke(assumed(term.Lt(p, term.NoPerm))), "negative permissions are not contradictory on their own")
	assert.False(t, d.CheckSmoke(assumed(term.Lt(p, o), term.Lt(term.NoPerm, p))))
	assert.False(t, d.CheckSmoke(assumed(term.Lt(term.Perm(1, 2), p), term.Lt(p, term.Perm(2, 3)))), "permissions are not integers")
}

func TestAssumeIsBranchLocal(t *testing.T) {
	t.Parallel()
	d := New(DefaultConfig(), nil)
	base := state.State{}
	left := d.Assume(base, term.Gt(x, term.Int(0)))

	assert.Equal(t, 0, base.PCs.Len())
	assert.Equal(t, 1, left.PCs.Len())
	assert.Equal(t, left, d.Assume(left, term.True))
}

func TestBranchReportAll(t *testing.T) {
	t.Parallel()
	ctx := state.NewContext(nil, term.NewGenerator())
	cond := term.Gt(x, term.Int(0))
	fail := func(state.State, state.Context) result.Result {
		return result.For(result.AssertFailed, nil).Fail(result.AssertionFalse, nil)
	}

	r := New(DefaultConfig(), nil).Branch(state.State{}, ctx, cond, fail, fail)
	assert.Len(t, r.Errors, 1)

	config := DefaultConfig()
	config.ReportAll = true
	r = New(config, nil).Branch(state.State{}, ctx, cond, fail, fail)
	assert.Len(t, r.Errors, 2)
}

func TestBranchPrunesInfeasibleSide(t *testing.T) {
	t.Parallel()
	d := New(DefaultConfig(), nil)
	ctx := state.NewContext(nil, term.NewGenerator())
	cond := term.Gt(x, term.Int(0))
	fail := result.For(result.AssertFailed, nil).Fail(result.AssertionFalse, nil)

	var visited []string
	then := func(s state.State, _ state.Context) result.Result {
		visited = append(visited, "then")
		assert.True(t, d.Check(s, cond))
		return result.Success()
	}
	els := func(s state.State, _ state.Context) result.Result {
		visited = append(visited, "else")
		return fail
	}

	r := d.Branch(state.State{}, ctx, cond, then, els)
	assert.Equal(t, []string{"then", "else"}, visited)
	assert.True(t, r.IsFailure())

	visited = nil
	r = d.Branch(assumed(cond), ctx, cond, then, els)
	assert.Equal(t, []string{"then"}, visited)
	assert.True(t, r.IsSuccess())
}
