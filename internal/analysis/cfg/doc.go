// # Description
//
// Package cfg lowers structured method bodies into Control Flow Graphs (CFG) for symbolic execution.
//
// ## Control Flow Graph (CFG)
//
// A CFG is a representation, using graph notation, of all paths that might be traversed
// through a method body during its execution. In a CFG:
//
//   - Each statement block holds a straight-line list of lowered statements.
//   - Each loop block stands for a whole loop: its body is a graph of its own, and the
//     block carries the loop invariants, the guard and the variables the body writes.
//   - The directed edges represent jumps in the control flow. A conditional edge is taken
//     when its guard holds; an unconditional edge is always taken.
//
// ## Package Functionality
//
// The main features of this package include:
//
//  1. CFG Construction: use `Build` to lower an `ast.Seqn` into a graph. `if` becomes a pair
//     of conditional edges, `while` becomes a loop block, labels and forward gotos become
//     unconditional edges.
//  2. Written-variable analysis: `Written` lists what a statement sequence may assign.
//  3. Rendering: `PrintDot` writes the graph in Graphviz DOT format.
package cfg
