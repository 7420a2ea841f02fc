package state

import (
	"strings"

	"github.com/gnoswap-labs/sepexec/internal/ast"
	"github.com/gnoswap-labs/sepexec/internal/term"
)

// Chunk is a unit of resource ownership held at some permission amount.
type Chunk interface {
	isChunk()
	Amount() term.Term
	WithAmount(p term.Term) Chunk
	String() string
}

// FieldChunk grants Perm to Receiver.Field, which holds Value.
type FieldChunk struct {
	Receiver term.Term
	Field    string
	Value    term.Term
	Perm     term.Term
}

// PredicateChunk grants Perm to the predicate instance Name(Args).
// Snapshot holds the body resources consumed when it was folded, if known.
type PredicateChunk struct {
	Name     string
	Args     []term.Term
	Perm     term.Term
	Snapshot []Chunk
}

// WandChunk is a packaged magic wand. Bindings captures the free variables
// of Wand at packaging time; Footprint holds the resources the wand took
// from the outer heap.
type WandChunk struct {
	Wand      *ast.Wand
	Handle    term.Term
	Bindings  Store
	Perm      term.Term
	Footprint []Chunk
}

func (FieldChunk) isChunk()     {}
func (PredicateChunk) isChunk() {}
func (WandChunk) isChunk()      {}

func (c FieldChunk) Amount() term.Term     { return c.Perm }
func (c PredicateChunk) Amount() term.Term { return c.Perm }
func (c WandChunk) Amount() term.Term      { return c.Perm }

func (c FieldChunk) WithAmount(p term.Term) Chunk     { c.Perm = p; return c }
func (c PredicateChunk) WithAmount(p term.Term) Chunk { c.Perm = p; return c }
func (c WandChunk) WithAmount(p term.Term) Chunk      { c.Perm = p; return c }

func (c FieldChunk) String() string {
	return c.Receiver.String() + "." + c.Field + " -> " + c.Value.String() + " # " + c.Perm.String()
}

func (c PredicateChunk) String() string {
	return c.Name + "(" + term.Join(c.Args) + ") # " + c.Perm.String()
}

func (c WandChunk) String() string {
	return c.Handle.String() + ": " + c.Wand.String() + " " + c.Bindings.String() + " # " + c.Perm.String()
}

// Heap is an unordered multiset of chunks. Heaps are values; every update
// returns a new Heap.
type Heap struct {
	chunks []Chunk
}

// NewHeap returns a heap holding chunks.
func NewHeap(chunks ...Chunk) Heap {
	return Heap{chunks: append([]Chunk(nil), chunks...)}
}

// Chunks returns the chunks. The slice must not be modified.
func (h Heap) Chunks() []Chunk {
	return h.chunks
}

// Len is the number of chunks.
func (h Heap) Len() int {
	return len(h.chunks)
}

// Add returns h with cs added.
func (h Heap) Add(cs ...Chunk) Heap {
	out := make([]Chunk, 0, len(h.chunks)+len(cs))
	out = append(out, h.chunks...)
	out = append(out, cs...)
	return Heap{chunks: out}
}

// Concat returns the union of h and o.
func (h Heap) Concat(o Heap) Heap {
	return h.Add(o.chunks...)
}

// Remove returns h without the chunk at index i.
func (h Heap) Remove(i int) Heap {
	out := make([]Chunk, 0, len(h.chunks)-1)
	out = append(out, h.chunks[:i]...)
	out = append(out, h.chunks[i+1:]...)
	return Heap{chunks: out}
}

// Replace returns h with the chunk at index i replaced by c.
func (h Heap) Replace(i int, c Chunk) Heap {
	out := append([]Chunk(nil), h.chunks...)
	out[i] = c
	return Heap{chunks: out}
}

// Find returns the first chunk satisfying match.
func (h Heap) Find(match func(Chunk) bool) (int, Chunk, bool) {
	for i, c := range h.chunks {
		if match(c) {
			return i, c, true
		}
	}
	return -1, nil, false
}

// FindWand locates a wand chunk by its handle. Absence is a normal outcome.
func (h Heap) FindWand(handle term.Term) (int, WandChunk, bool) {
	for i, c := range h.chunks {
		if w, ok := c.(WandChunk); ok && term.Same(w.Handle, handle) {
			return i, w, true
		}
	}
	return -1, WandChunk{}, false
}

func (h Heap) String() string {
	parts := make([]string, len(h.chunks))
	for i, c := range h.chunks {
		parts[i] = c.String()
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

// Snapshot lists chunks whose values production reuses for matching
// locations instead of inventing fresh ones. A nil Snapshot means every
// produced value is fresh.
type Snapshot []Chunk
