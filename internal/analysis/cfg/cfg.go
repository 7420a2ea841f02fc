package cfg

import (
	"fmt"
	"io"
	"strings"

	"github.com/gnoswap-labs/sepexec/internal/ast"
)

// Block is a node of the graph.
type Block interface {
	ID() int
	String() string
	isBlock()
}

// StatementBlock is a straight-line list of lowered statements.
type StatementBlock struct {
	id    int
	Stmts []ast.Stmt
}

// LoopBlock is a whole loop. Its body is a graph of its own; the loop's
// successors are where control goes once the loop has terminated.
type LoopBlock struct {
	id         int
	While      *ast.While
	Cond       ast.Expr
	Invariants []ast.Expr
	Body       *Graph
	// Written are the variables the body may assign, in first-write order.
	Written []*ast.Var
}

func (b *StatementBlock) ID() int { return b.id }
func (b *LoopBlock) ID() int      { return b.id }

func (*StatementBlock) isBlock() {}
func (*LoopBlock) isBlock()      {}

func (b *StatementBlock) String() string {
	if len(b.Stmts) == 0 {
		return fmt.Sprintf("block %d", b.id)
	}
	parts := make([]string, len(b.Stmts))
	for i, s := range b.Stmts {
		parts[i] = s.String()
	}
	return fmt.Sprintf("block %d: %s", b.id, strings.Join(parts, "; "))
}

func (b *LoopBlock) String() string {
	return fmt.Sprintf("loop %d: while (%s)", b.id, b.Cond)
}

// Edge connects two blocks.
type Edge interface {
	Source() Block
	Target() Block
	isEdge()
}

// ConditionalEdge is taken when Cond holds.
type ConditionalEdge struct {
	From, To Block
	Cond     ast.Expr
}

// UnconditionalEdge is always taken.
type UnconditionalEdge struct {
	From, To Block
}

func (e *ConditionalEdge) Source() Block   { return e.From }
func (e *ConditionalEdge) Target() Block   { return e.To }
func (e *UnconditionalEdge) Source() Block { return e.From }
func (e *UnconditionalEdge) Target() Block { return e.To }

func (*ConditionalEdge) isEdge()   {}
func (*UnconditionalEdge) isEdge() {}

// Graph is the control-flow graph of one statement sequence.
type Graph struct {
	Entry Block
	Exit  Block

	blocks []Block
	succs  map[int][]Edge
	preds  map[int][]Edge
}

// Blocks returns every block in creation order.
func (g *Graph) Blocks() []Block {
	return g.blocks
}

// Succs returns the outgoing edges of b in declaration order.
func (g *Graph) Succs(b Block) []Edge {
	return g.succs[b.ID()]
}

// Preds returns the incoming edges of b.
func (g *Graph) Preds(b Block) []Edge {
	return g.preds[b.ID()]
}

func (g *Graph) connect(e Edge) {
	from, to := e.Source().ID(), e.Target().ID()
	g.succs[from] = append(g.succs[from], e)
	g.preds[to] = append(g.preds[to], e)
}

// PrintDot writes g in Graphviz DOT format.
func (g *Graph) PrintDot(w io.Writer) error {
	var sb strings.Builder
	sb.WriteString("digraph mgraph {\n")
	sb.WriteString("\tmode=\"heir\";\n")
	sb.WriteString("\tsplines=\"ortho\";\n\n")
	g.writeDot(&sb, "\t", "")
	sb.WriteString("}\n")
	_, err := io.WriteString(w, sb.String())
	return err
}

func (g *Graph) writeDot(sb *strings.Builder, indent, prefix string) {
	name := func(b Block) string {
		switch {
		case b == g.Entry && prefix == "":
			return `"ENTRY"`
		case b == g.Exit:
			return fmt.Sprintf("%q", prefix+"EXIT")
		}
		return fmt.Sprintf("%q", prefix+b.String())
	}
	for _, b := range g.blocks {
		for _, e := range g.succs[b.ID()] {
			fmt.Fprintf(sb, "%s%s -> %s", indent, name(e.Source()), name(e.Target()))
			if ce, ok := e.(*ConditionalEdge); ok {
				fmt.Fprintf(sb, " [label=%q]", ce.Cond.String())
			}
			sb.WriteString("\n")
		}
		if lb, ok := b.(*LoopBlock); ok {
			fmt.Fprintf(sb, "%ssubgraph \"cluster_%d\" {\n", indent, lb.id)
			fmt.Fprintf(sb, "%s\tlabel=%q;\n", indent, lb.String())
			lb.Body.writeDot(sb, indent+"\t", fmt.Sprintf("%d/", lb.id))
			fmt.Fprintf(sb, "%s}\n", indent)
		}
	}
}
