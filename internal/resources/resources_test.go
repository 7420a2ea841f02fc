package resources

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gnoswap-labs/sepexec/internal/ast"
	"github.com/gnoswap-labs/sepexec/internal/decider"
	"github.com/gnoswap-labs/sepexec/internal/eval"
	"github.com/gnoswap-labs/sepexec/internal/result"
	"github.com/gnoswap-labs/sepexec/internal/state"
	"github.com/gnoswap-labs/sepexec/internal/term"
)

type fixture struct {
	decider    *decider.Decider
	producer   *Producer
	consumer   *Consumer
	predicates *Predicates
	wands      *Wands
	compressor *Compressor
	program    *ast.Program
}

var (
	xRef = term.Var{Name: "x@1", S: term.SortRef}
	yRef = term.Var{Name: "y@2", S: term.SortRef}
	pve  = result.For(result.ExhaleFailed, nil)
	x    = ast.V("x", ast.TypeRef)
	y    = ast.V("y", ast.TypeRef)
)

func newFixture() fixture {
	d := decider.New(decider.DefaultConfig(), nil)
	ev := eval.New(d, nil)
	pr := NewProducer(d, ev, nil)
	cs := NewConsumer(d, ev, nil)
	r := ast.V("r", ast.TypeRef)
	program := ast.NewProgram(
		[]*ast.Field{{Name: "f", Type: ast.TypeInt}, {Name: "g", Type: ast.TypeInt}},
		[]*ast.Predicate{{Name: "P", Formals: []*ast.Var{r}, Body: ast.Acc(ast.Dot(r, "f"), ast.Write())}},
		nil,
	)
	return fixture{
		decider:    d,
		producer:   pr,
		consumer:   cs,
		predicates: NewPredicates(pr, cs, nil),
		wands:      NewWands(pr, cs, nil),
		compressor: NewCompressor(d),
		program:    program,
	}
}

func (f fixture) start() (state.State, state.Context) {
	s := state.State{Store: state.NewStore([]string{"x", "y"}, []term.Term{xRef, yRef})}
	return s, state.NewContext(f.program, term.NewGenerator())
}

// produce runs Produce and returns the resulting state.
func (f fixture) produce(t *testing.T, s state.State, ctx state.Context, a ast.Expr) (state.State, state.Context) {
	t.Helper()
	var out state.State
	var outCtx state.Context
	r := f.producer.Produce(s, nil, term.FullPerm, a, pve, ctx, func(s1 state.State, ctx1 state.Context) result.Result {
		out, outCtx = s1, ctx1
		return result.Success()
	})
	require.True(t, r.IsSuccess(), r.String())
	return out, outCtx
}

func heapStrings(h state.Heap) []string {
	out := make([]string, 0, h.Len())
	for _, c := range h.Chunks() {
		out = append(out, c.String())
	}
	return out
}

func TestProduceFieldAssumesNonNull(t *testing.T) {
	t.Parallel()
	f := newFixture()
	s, ctx := f.start()

	s, _ = f.produce(t, s, ctx, ast.Conj(ast.Acc(ast.Dot(x, "f"), ast.Write()), ast.Bin(ast.OpEq, ast.Dot(x, "f"), ast.Int(3))))
	require.Equal(t, 1, s.Heap.Len())
	c := s.Heap.Chunks()[0].(state.FieldChunk)
	assert.True(t, f.decider.Check(s, term.Ne(xRef, term.Null{})))
	assert.True(t, f.decider.Check(s, term.Eq(c.Value, term.Int(3))))
}

func TestProduceMergesSameLocation(t *testing.T) {
	t.Parallel()
	f := newFixture()
	s, ctx := f.start()
	half := ast.Acc(ast.Dot(x, "f"), ast.Frac(1, 2))

	s, ctx = f.produce(t, s, ctx, half)
	s, _ = f.produce(t, s, ctx, half)
	require.Equal(t, 1, s.Heap.Len())
	assert.Equal(t, term.FullPerm, s.Heap.Chunks()[0].Amount())
}

func TestProduceNegativePermission(t *testing.T) {
	t.Parallel()
	f := newFixture()
	s, ctx := f.start()
	neg := &ast.Unary{Op: ast.OpNeg, X: ast.Int(1)}

	r := f.producer.Produce(s, nil, term.FullPerm, ast.Acc(ast.Dot(x, "f"), neg), pve, ctx,
		func(state.State, state.Context) result.Result { return result.Success() })
	require.True(t, r.IsFailure())
	assert.Equal(t, result.NegativePermission, r.Err().Reason.Kind)
}

func TestConsume(t *testing.T) {
	t.Parallel()
	f := newFixture()
	s, ctx := f.start()
	s, ctx = f.produce(t, s, ctx, ast.Acc(ast.Dot(x, "f"), ast.Write()))

	tests := []struct {
		name   string
		a      ast.Expr
		reason result.ReasonKind
		left   int
	}{
		{"full", ast.Acc(ast.Dot(x, "f"), ast.Write()), 0, 0},
		{"half", ast.Acc(ast.Dot(x, "f"), ast.Frac(1, 2)), 0, 1},
		{"none", ast.Acc(ast.Dot(y, "f"), ast.NoPerm()), 0, 1},
		{"twice", ast.Conj(ast.Acc(ast.Dot(x, "f"), ast.Write()), ast.Acc(ast.Dot(x, "f"), ast.Frac(1, 2))), result.InsufficientPermission, 0},
		{"other location", ast.Acc(ast.Dot(y, "f"), ast.Write()), result.InsufficientPermission, 0},
		{"pure uses pre-state", ast.Conj(ast.Acc(ast.Dot(x, "f"), ast.Write()), ast.Bin(ast.OpEq, ast.Dot(x, "f"), ast.Dot(x, "f"))), 0, 0},
		{"false fact", ast.Bin(ast.OpEq, ast.Dot(x, "f"), ast.Int(1)), result.AssertionFalse, 0},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			r := f.consumer.Consume(s, term.FullPerm, tt.a, pve, ctx, func(s1 state.State, _ []state.Chunk, _ state.Context) result.Result {
				assert.Equal(t, tt.left, s1.Heap.Len())
				return result.Success()
			})
			if tt.reason == 0 {
				assert.True(t, r.IsSuccess(), r.String())
				return
			}
			require.True(t, r.IsFailure())
			assert.Equal(t, tt.reason, r.Err().Reason.Kind)
		})
	}
}

func TestConsumeConstrainable(t *testing.T) {
	t.Parallel()
	f := newFixture()
	s, ctx := f.start()
	s, ctx = f.produce(t, s, ctx, ast.Acc(ast.Dot(x, "f"), ast.Write()))

	v := term.Var{Name: "v@9", S: term.SortPerm}
	s = s.WithStore(s.Store.Set("v", v))
	a := ast.Acc(ast.Dot(x, "f"), ast.V("v", ast.TypePerm))

	r := f.consumer.Consume(s, term.FullPerm, a, pve, ctx, func(state.State, []state.Chunk, state.Context) result.Result {
		return result.Success()
	})
	assert.True(t, r.IsFailure(), "an unconstrained amount cannot be proved held")

	r = f.consumer.Consume(s, term.FullPerm, a, pve, ctx.WithConstrainable(v), func(s1 state.State, _ []state.Chunk, _ state.Context) result.Result {
		assert.True(t, f.decider.Check(s1, term.Lt(term.NoPerm, v)))
		assert.True(t, f.decider.Check(s1, term.Lt(v, term.FullPerm)))
		require.Equal(t, 1, s1.Heap.Len())
		return result.Success()
	})
	assert.True(t, r.IsSuccess(), r.String())
}

func TestFoldUnfoldRoundTrip(t *testing.T) {
	t.Parallel()
	f := newFixture()
	s, ctx := f.start()
	s, ctx = f.produce(t, s, ctx, ast.Acc(ast.Dot(x, "f"), ast.Write()))
	before := heapStrings(s.Heap)
	pred, _ := f.program.FindPredicate("P")
	acc := ast.PredAcc("P", ast.Write(), x)
	args := []term.Term{xRef}

	r := f.predicates.Fold(s, pred, args, term.FullPerm, pve, ctx, func(s1 state.State, ctx1 state.Context) result.Result {
		require.Equal(t, 1, s1.Heap.Len())
		assert.Equal(t, "P(x@1) # write", s1.Heap.Chunks()[0].String())
		return f.predicates.Unfold(s1, pred, acc, args, term.FullPerm, pve, ctx1, func(s2 state.State, _ state.Context) result.Result {
			if diff := cmp.Diff(before, heapStrings(s2.Heap)); diff != "" {
				t.Errorf("heap after round trip mismatch (-want +got):\n%s", diff)
			}
			return result.Success()
		})
	})
	assert.True(t, r.IsSuccess(), r.String())
}

func TestFoldWithoutResources(t *testing.T) {
	t.Parallel()
	f := newFixture()
	s, ctx := f.start()
	pred, _ := f.program.FindPredicate("P")

	r := f.predicates.Fold(s, pred, []term.Term{xRef}, term.FullPerm, pve, ctx,
		func(state.State, state.Context) result.Result { return result.Success() })
	require.True(t, r.IsFailure())
	assert.Equal(t, result.InsufficientPermission, r.Err().Reason.Kind)
}

func TestPackageDrawsFromReserve(t *testing.T) {
	t.Parallel()
	f := newFixture()
	s, ctx := f.start()
	s, ctx = f.produce(t, s, ctx, ast.Acc(ast.Dot(x, "f"), ast.Write()))

	w := &ast.Wand{Left: ast.Acc(ast.Dot(y, "g"), ast.Write()), Right: ast.Conj(ast.Acc(ast.Dot(y, "g"), ast.Write()), ast.Acc(ast.Dot(x, "f"), ast.Write()))}
	pkg := ctx.PushPackaging(s.Heap)
	r := f.wands.Package(s.WithHeap(state.NewHeap()), w, pve, pkg, func(s1 state.State, c state.WandChunk, ctx1 state.Context) result.Result {
		assert.Equal(t, 0, s1.Heap.Len())
		require.Len(t, c.Footprint, 1)
		assert.Equal(t, 0, ctx1.Scope().Reserve.Len())
		_, hasLHS := ctx1.LHSHeap()
		assert.False(t, hasLHS)
		assert.ElementsMatch(t, []string{"x", "y"}, c.Bindings.Names())
		return result.Success()
	})
	assert.True(t, r.IsSuccess(), r.String())
}

func TestCompressMergesChunks(t *testing.T) {
	t.Parallel()
	f := newFixture()
	v1 := term.Var{Name: "v@1", S: term.SortInt}
	v2 := term.Var{Name: "v@2", S: term.SortInt}
	s := state.State{Heap: state.NewHeap(
		state.FieldChunk{Receiver: xRef, Field: "f", Value: v1, Perm: term.Perm(1, 2)},
		state.FieldChunk{Receiver: xRef, Field: "f", Value: v2, Perm: term.Perm(1, 2)},
		state.FieldChunk{Receiver: yRef, Field: "g", Value: v1, Perm: term.NoPerm},
	)}

	out := f.compressor.Compress(s)
	assert.Equal(t, []string{"x@1.f -> v@1 # write"}, heapStrings(out.Heap))
	assert.True(t, f.decider.Check(out, term.Eq(v1, v2)))
	assert.Equal(t, 3, s.Heap.Len())
}
