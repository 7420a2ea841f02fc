// Package eval turns pure expressions into symbolic terms.
//
// Evaluation is written in continuation-passing style like the rest of
// the executor: a caller hands in what to do with the value and gets a
// verification result back. Evaluation never changes the heap, but it may
// extend the path conditions, for instance with facts learned while
// evaluating the right operand of a conjunction.
//
// Field reads need a chunk of positive permission for the location.
// old(e) reads from the method pre-state and old[lhs](e) from the heap
// a magic wand was applied to.
package eval
