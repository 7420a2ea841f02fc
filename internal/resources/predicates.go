package resources

import (
	"go.uber.org/zap"

	"github.com/gnoswap-labs/sepexec/internal/ast"
	"github.com/gnoswap-labs/sepexec/internal/result"
	"github.com/gnoswap-labs/sepexec/internal/state"
	"github.com/gnoswap-labs/sepexec/internal/term"
)

// Predicates exchanges predicate bodies for predicate chunks and back.
type Predicates struct {
	producer *Producer
	consumer *Consumer
	logger   *zap.Logger
}

// NewPredicates creates the predicate support. A nil logger disables
// logging.
func NewPredicates(pr *Producer, cs *Consumer, logger *zap.Logger) *Predicates {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Predicates{producer: pr, consumer: cs, logger: logger}
}

// Fold consumes the body of pred instantiated with args at amount p and
// adds a chunk for pred(args) whose snapshot records what was consumed.
func (ps *Predicates) Fold(s state.State, pred *ast.Predicate, args []term.Term, p term.Term, pve result.Partial, ctx state.Context, Q state.Continuation) result.Result {
	if pred.Body == nil {
		panic(result.Internalf(pred, "cannot fold abstract predicate %s", pred.Name))
	}
	caller := s.Store
	inner := s.WithStore(formals(pred, args))
	return ps.consumer.Consume(inner, p, pred.Body, pve, ctx, func(s1 state.State, consumed []state.Chunk, ctx1 state.Context) result.Result {
		c := state.PredicateChunk{Name: pred.Name, Args: args, Perm: p, Snapshot: consumed}
		s2 := ps.producer.add(s1.WithStore(caller), c)
		ps.logger.Debug("folded", zap.String("chunk", c.String()), zap.Int("snapshot", len(consumed)))
		return Q(s2, record(ctx1, c))
	})
}

// Unfold consumes pred(args) at amount p and produces its body at the
// same amount, reusing the values recorded when it was folded.
func (ps *Predicates) Unfold(s state.State, pred *ast.Predicate, acc *ast.PredicateAcc, args []term.Term, p term.Term, pve result.Partial, ctx state.Context, Q state.Continuation) result.Result {
	if pred.Body == nil {
		panic(result.Internalf(pred, "cannot unfold abstract predicate %s", pred.Name))
	}
	loc := state.PredicateChunk{Name: pred.Name, Args: args}
	return ps.consumer.take(s, loc, p, acc, pve, ctx, func(s1 state.State, consumed []state.Chunk, ctx1 state.Context) result.Result {
		var snap state.Snapshot
		for _, c := range consumed {
			if pc, ok := c.(state.PredicateChunk); ok {
				snap = append(snap, pc.Snapshot...)
			}
		}
		caller := s1.Store
		inner := s1.WithStore(formals(pred, args))
		return ps.producer.Produce(inner, snap, p, pred.Body, pve, ctx1, func(s2 state.State, ctx2 state.Context) result.Result {
			return Q(s2.WithStore(caller), ctx2)
		})
	})
}

func formals(pred *ast.Predicate, args []term.Term) state.Store {
	names := make([]string, len(pred.Formals))
	for i, f := range pred.Formals {
		names[i] = f.Name
	}
	return state.NewStore(names, args)
}
