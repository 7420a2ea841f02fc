package decider

import (
	"github.com/gnoswap-labs/sepexec/internal/state"
	"github.com/gnoswap-labs/sepexec/internal/term"
)

// FindField locates a chunk for recv.field in h whose receiver is
// provably recv. Absence is a normal outcome.
func (d *Decider) FindField(s state.State, h state.Heap, recv term.Term, field string) (int, state.FieldChunk, bool) {
	i, c, ok := h.Find(func(c state.Chunk) bool {
		fc, isField := c.(state.FieldChunk)
		return isField && fc.Field == field && d.Equal(s, fc.Receiver, recv)
	})
	if !ok {
		return -1, state.FieldChunk{}, false
	}
	return i, c.(state.FieldChunk), true
}

// FindPredicate locates a chunk for name(args) in h whose arguments are
// provably args.
func (d *Decider) FindPredicate(s state.State, h state.Heap, name string, args []term.Term) (int, state.PredicateChunk, bool) {
	i, c, ok := h.Find(func(c state.Chunk) bool {
		pc, isPred := c.(state.PredicateChunk)
		return isPred && pc.Name == name && d.equalAll(s, pc.Args, args)
	})
	if !ok {
		return -1, state.PredicateChunk{}, false
	}
	return i, c.(state.PredicateChunk), true
}

// SameLocation reports whether a and b provably describe the same
// resource. Wand chunks match by handle.
func (d *Decider) SameLocation(s state.State, a, b state.Chunk) bool {
	switch a := a.(type) {
	case state.FieldChunk:
		bf, ok := b.(state.FieldChunk)
		return ok && a.Field == bf.Field && d.Equal(s, a.Receiver, bf.Receiver)
	case state.PredicateChunk:
		bp, ok := b.(state.PredicateChunk)
		return ok && a.Name == bp.Name && d.equalAll(s, a.Args, bp.Args)
	case state.WandChunk:
		bw, ok := b.(state.WandChunk)
		return ok && term.Same(a.Handle, bw.Handle)
	}
	return false
}

func (d *Decider) equalAll(s state.State, as, bs []term.Term) bool {
	if len(as) != len(bs) {
		return false
	}
	for i := range as {
		if !d.Equal(s, as[i], bs[i]) {
			return false
		}
	}
	return true
}
