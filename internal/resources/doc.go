// Package resources implements the heap side of verification: producing
// and consuming assertions, folding and unfolding predicates, packaging
// magic wands and compressing heaps.
//
// A Producer adds chunks for accessibility predicates and assumes pure
// facts. A Consumer removes chunks and proves pure facts; inside a
// packaging scope it draws missing permission from the scope's reserve.
// Predicates and Wands are built on top of the two.
package resources
