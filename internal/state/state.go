package state

import (
	"github.com/gnoswap-labs/sepexec/internal/result"
	"github.com/gnoswap-labs/sepexec/internal/term"
)

// PathConditions is the conjunction of facts assumed on the current branch.
type PathConditions struct {
	conds []term.Term
}

// Add returns the path conditions extended with ts.
func (pc PathConditions) Add(ts ...term.Term) PathConditions {
	out := make([]term.Term, 0, len(pc.conds)+len(ts))
	out = append(out, pc.conds...)
	out = append(out, ts...)
	return PathConditions{conds: out}
}

// All returns the assumed facts. The slice must not be modified.
func (pc PathConditions) All() []term.Term {
	return pc.conds
}

// Len is the number of assumed facts.
func (pc PathConditions) Len() int {
	return len(pc.conds)
}

// State is the symbolic state of one branch. States are values: every
// transition returns a new State and never touches the old one.
//
// Path conditions travel with the state so that forked branches never
// observe each other's assumptions.
type State struct {
	Store   Store
	Heap    Heap
	OldHeap Heap
	PCs     PathConditions
}

// WithStore returns s with its store replaced.
func (s State) WithStore(st Store) State {
	s.Store = st
	return s
}

// WithHeap returns s with its heap replaced.
func (s State) WithHeap(h Heap) State {
	s.Heap = h
	return s
}

// WithOldHeap returns s with its old-heap replaced.
func (s State) WithOldHeap(h Heap) State {
	s.OldHeap = h
	return s
}

// WithPCs returns s with its path conditions replaced.
func (s State) WithPCs(pc PathConditions) State {
	s.PCs = pc
	return s
}

// References returns every reference-sorted term reachable from s.
func (s State) References() []term.Term {
	var refs []term.Term
	seen := make(map[string]bool)
	add := func(t term.Term) {
		if t == nil || t.Sort() != term.SortRef {
			return
		}
		if _, isNull := t.(term.Null); isNull || seen[t.String()] {
			return
		}
		seen[t.String()] = true
		refs = append(refs, t)
	}
	for _, v := range s.Store.Values() {
		add(v)
	}
	for _, c := range s.Heap.Chunks() {
		switch c := c.(type) {
		case FieldChunk:
			add(c.Receiver)
			add(c.Value)
		case PredicateChunk:
			for _, a := range c.Args {
				add(a)
			}
		case WandChunk:
			for _, v := range c.Bindings.Values() {
				add(v)
			}
		}
	}
	return refs
}

// Continuation is what happens next on a branch.
type Continuation func(State, Context) result.Result
