package resources

import (
	"github.com/gnoswap-labs/sepexec/internal/decider"
	"github.com/gnoswap-labs/sepexec/internal/state"
	"github.com/gnoswap-labs/sepexec/internal/term"
)

// Compressor normalises heaps.
type Compressor struct {
	decider *decider.Decider
}

// NewCompressor creates a compressor.
func NewCompressor(d *decider.Decider) *Compressor {
	return &Compressor{decider: d}
}

// Compress merges chunks for provably equal locations and drops chunks
// held at no permission. Two field chunks whose amounts add up to more
// than write must have distinct receivers; that is assumed. The result
// describes the same resources as s.
func (cp *Compressor) Compress(s state.State) state.State {
	var out []state.Chunk
	for _, c := range s.Heap.Chunks() {
		if cp.decider.Check(s, term.Eq(c.Amount(), term.NoPerm)) {
			continue
		}
		merged := false
		for i, o := range out {
			if _, isWand := o.(state.WandChunk); isWand || !cp.decider.SameLocation(s, o, c) {
				continue
			}
			if !cp.positive(s, o) || !cp.positive(s, c) {
				continue
			}
			if of, ok := o.(state.FieldChunk); ok {
				s = cp.decider.Assume(s, term.Eq(of.Value, c.(state.FieldChunk).Value))
			}
			out[i] = o.WithAmount(term.Add(o.Amount(), c.Amount()))
			merged = true
			break
		}
		if !merged {
			out = append(out, c)
		}
	}

	for i := range out {
		fi, ok := out[i].(state.FieldChunk)
		if !ok {
			continue
		}
		for _, o := range out[i+1:] {
			fo, ok := o.(state.FieldChunk)
			if !ok || fo.Field != fi.Field || term.Same(fi.Receiver, fo.Receiver) {
				continue
			}
			if cp.decider.Check(s, term.Lt(term.FullPerm, term.Add(fi.Perm, fo.Perm))) {
				s = cp.decider.Assume(s, term.Ne(fi.Receiver, fo.Receiver))
			}
		}
	}
	return s.WithHeap(state.NewHeap(out...))
}

func (cp *Compressor) positive(s state.State, c state.Chunk) bool {
	return cp.decider.Check(s, term.Lt(term.NoPerm, c.Amount()))
}
