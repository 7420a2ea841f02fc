package resources

import (
	"go.uber.org/zap"

	"github.com/gnoswap-labs/sepexec/internal/ast"
	"github.com/gnoswap-labs/sepexec/internal/result"
	"github.com/gnoswap-labs/sepexec/internal/state"
	"github.com/gnoswap-labs/sepexec/internal/term"
)

// WandContinuation receives the state after packaging and the new wand
// chunk, which is not yet part of any heap.
type WandContinuation func(state.State, state.WandChunk, state.Context) result.Result

// Wands packages magic wands.
type Wands struct {
	producer *Producer
	consumer *Consumer
	logger   *zap.Logger
}

// NewWands creates the wand support. A nil logger disables logging.
func NewWands(pr *Producer, cs *Consumer, logger *zap.Logger) *Wands {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Wands{producer: pr, consumer: cs, logger: logger}
}

// Package proves w inside the innermost packaging scope of ctx. The left
// side is produced into the heap of s, which the caller has emptied, and
// the right side is consumed from it; whatever the left side does not
// provide is drawn from the scope's reserve and becomes the footprint.
func (ws *Wands) Package(s state.State, w *ast.Wand, pve result.Partial, ctx state.Context, Q WandContinuation) result.Result {
	if !ctx.Packaging() {
		panic(result.Internalf(w, "package outside of a packaging scope"))
	}
	return ws.producer.Produce(s, nil, term.FullPerm, w.Left, pve, ctx, func(s1 state.State, ctx1 state.Context) result.Result {
		lhs := s1.Heap
		outerLHS, hadLHS := ctx1.LHSHeap()
		return ws.consumer.Consume(s1, term.FullPerm, w.Right, pve, ctx1.WithLHSHeap(lhs), func(s2 state.State, _ []state.Chunk, ctx2 state.Context) result.Result {
			if hadLHS {
				ctx2 = ctx2.WithLHSHeap(outerLHS)
			} else {
				ctx2 = ctx2.WithoutLHSHeap()
			}
			c := state.WandChunk{
				Wand:      w,
				Handle:    ctx2.Fresh.Fresh("wand", term.SortWand),
				Bindings:  Bindings(s2.Store, w),
				Perm:      term.FullPerm,
				Footprint: ctx2.Scope().Consumed,
			}
			ws.logger.Debug("packaged", zap.String("wand", c.String()), zap.Int("footprint", len(c.Footprint)))
			return Q(s2, c, ctx2)
		})
	})
}
