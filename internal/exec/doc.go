// Package exec symbolically executes lowered method bodies.
//
// An Executor walks a control flow graph built by the cfg package in
// continuation-passing style. Every statement is executed against an
// immutable state.State and state.Context; the continuation receives the
// successor state and its result is the result of the whole path. Sibling
// paths are explored independently and their results are combined, so a
// failure on one branch never leaks facts into another.
//
// Loops are proved modularly: one arbitrary iteration must preserve the
// invariant, the invariant must hold on entry, and execution continues past
// the loop from a state that knows only the invariant and the negated guard.
//
// The executor owns sequencing only. Evaluation, production, consumption,
// predicates, wands and heap compression are delegated to the collaborators
// in Collaborators, which NewDefault wires to the eval and resources
// packages.
package exec
