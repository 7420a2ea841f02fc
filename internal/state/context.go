package state

import (
	"github.com/gnoswap-labs/sepexec/internal/ast"
	"github.com/gnoswap-labs/sepexec/internal/term"
)

// Scope is the bookkeeping of one wand packaging in progress.
type Scope struct {
	// Reserve is the outer heap permissions may be drawn from.
	Reserve Heap
	// Produced records the chunks produced for the wand's left-hand side.
	Produced []Chunk
	// Consumed records the chunks moved from Reserve into the wand.
	Consumed []Chunk
}

// Context is the per-branch bookkeeping that accompanies a State. Like
// State it is a value: forking a branch copies it and updates in one
// branch are invisible to its siblings.
type Context struct {
	Program *ast.Program
	Fresh   *term.Generator

	constrainable map[string]bool
	packaging     []Scope
	lhsHeap       *Heap
}

// NewContext returns the context at method entry.
func NewContext(program *ast.Program, fresh *term.Generator) Context {
	return Context{Program: program, Fresh: fresh}
}

// IsConstrainable reports whether t is a constrainable permission variable.
func (c Context) IsConstrainable(t term.Term) bool {
	v, ok := t.(term.Var)
	return ok && c.constrainable[v.Name]
}

// WithConstrainable marks ts as constrainable.
func (c Context) WithConstrainable(ts ...term.Term) Context {
	next := make(map[string]bool, len(c.constrainable)+len(ts))
	for k := range c.constrainable {
		next[k] = true
	}
	for _, t := range ts {
		if v, ok := t.(term.Var); ok {
			next[v.Name] = true
		}
	}
	c.constrainable = next
	return c
}

// WithoutConstrainable unmarks ts.
func (c Context) WithoutConstrainable(ts ...term.Term) Context {
	next := make(map[string]bool, len(c.constrainable))
	for k := range c.constrainable {
		next[k] = true
	}
	for _, t := range ts {
		if v, ok := t.(term.Var); ok {
			delete(next, v.Name)
		}
	}
	c.constrainable = next
	return c
}

// Packaging reports whether a wand is being packaged.
func (c Context) Packaging() bool {
	return len(c.packaging) > 0
}

// PackagingDepth is the number of nested packaging scopes.
func (c Context) PackagingDepth() int {
	return len(c.packaging)
}

// PushPackaging opens a packaging scope with the given reserve heap and
// empty produced/consumed records.
func (c Context) PushPackaging(reserve Heap) Context {
	next := make([]Scope, len(c.packaging), len(c.packaging)+1)
	copy(next, c.packaging)
	c.packaging = append(next, Scope{Reserve: reserve})
	return c
}

// PopPackaging closes the innermost packaging scope and returns it.
func (c Context) PopPackaging() (Context, Scope) {
	top := c.packaging[len(c.packaging)-1]
	c.packaging = append([]Scope(nil), c.packaging[:len(c.packaging)-1]...)
	return c, top
}

// Scope returns the innermost packaging scope.
func (c Context) Scope() Scope {
	return c.packaging[len(c.packaging)-1]
}

// WithScope replaces the innermost packaging scope.
func (c Context) WithScope(sc Scope) Context {
	next := append([]Scope(nil), c.packaging...)
	next[len(next)-1] = sc
	c.packaging = next
	return c
}

// RecordProduced appends cs to the innermost scope's produced chunks.
func (c Context) RecordProduced(cs ...Chunk) Context {
	sc := c.Scope()
	sc.Produced = append(append([]Chunk(nil), sc.Produced...), cs...)
	return c.WithScope(sc)
}

// RecordConsumed appends cs to the innermost scope's consumed chunks.
func (c Context) RecordConsumed(cs ...Chunk) Context {
	sc := c.Scope()
	sc.Consumed = append(append([]Chunk(nil), sc.Consumed...), cs...)
	return c.WithScope(sc)
}

// LHSHeap returns the left-hand heap of the wand being applied.
func (c Context) LHSHeap() (Heap, bool) {
	if c.lhsHeap == nil {
		return Heap{}, false
	}
	return *c.lhsHeap, true
}

// WithLHSHeap sets the left-hand heap.
func (c Context) WithLHSHeap(h Heap) Context {
	c.lhsHeap = &h
	return c
}

// WithoutLHSHeap clears the left-hand heap.
func (c Context) WithoutLHSHeap() Context {
	c.lhsHeap = nil
	return c
}
