package cfg

import (
	"fmt"

	"github.com/gnoswap-labs/sepexec/internal/ast"
)

// Build lowers a structured statement sequence into a graph. Conditionals
// become pairs of conditional edges, loops become loop blocks with their
// own body graph, and labels start new blocks that gotos jump to. Only
// forward gotos within the same loop level are supported.
func Build(body *ast.Seqn) (*Graph, error) {
	var next int
	return build(body, &next)
}

type builder struct {
	g       *Graph
	next    *int
	cur     *StatementBlock
	labels  map[string]Block
	pending []pendingGoto
	seen    map[string]bool
}

type pendingGoto struct {
	from *StatementBlock
	stmt *ast.Goto
}

func build(body *ast.Seqn, next *int) (*Graph, error) {
	b := &builder{
		g:      &Graph{succs: make(map[int][]Edge), preds: make(map[int][]Edge)},
		next:   next,
		labels: make(map[string]Block),
		seen:   make(map[string]bool),
	}
	entry := b.newBlock()
	b.g.Entry = entry
	b.cur = entry

	if body != nil {
		if err := b.seqn(body); err != nil {
			return nil, err
		}
	}

	exit := b.newBlock()
	b.jump(exit)
	b.g.Exit = exit

	for _, p := range b.pending {
		target, ok := b.labels[p.stmt.Target]
		if !ok {
			return nil, fmt.Errorf("%s: goto %s: no such label", p.stmt.Position(), p.stmt.Target)
		}
		b.g.connect(&UnconditionalEdge{From: p.from, To: target})
	}
	return b.g, nil
}

func (b *builder) newBlock() *StatementBlock {
	*b.next++
	blk := &StatementBlock{id: *b.next}
	b.g.blocks = append(b.g.blocks, blk)
	return blk
}

// jump ends the current block with an unconditional edge to to.
func (b *builder) jump(to Block) {
	b.g.connect(&UnconditionalEdge{From: b.cur, To: to})
}

func (b *builder) seqn(s *ast.Seqn) error {
	for _, st := range s.Stmts {
		if err := b.stmt(st); err != nil {
			return err
		}
	}
	return nil
}

func (b *builder) stmt(st ast.Stmt) error {
	switch st := st.(type) {
	case *ast.Seqn:
		return b.seqn(st)

	case *ast.If:
		from := b.cur
		then, els, join := b.newBlock(), b.newBlock(), b.newBlock()
		b.g.connect(&ConditionalEdge{From: from, To: then, Cond: st.Cond})
		b.g.connect(&ConditionalEdge{From: from, To: els, Cond: &ast.Unary{Pos: ast.Pos{At: st.Cond.Position()}, Op: ast.OpNot, X: st.Cond}})

		b.cur = then
		if st.Then != nil {
			if err := b.seqn(st.Then); err != nil {
				return err
			}
		}
		b.jump(join)

		b.cur = els
		if st.Else != nil {
			if err := b.seqn(st.Else); err != nil {
				return err
			}
		}
		b.jump(join)
		b.cur = join
		return nil

	case *ast.While:
		body, err := build(st.Body, b.next)
		if err != nil {
			return err
		}
		*b.next++
		loop := &LoopBlock{
			id:         *b.next,
			While:      st,
			Cond:       st.Cond,
			Invariants: st.Invariants,
			Body:       body,
			Written:    Written(st.Body),
		}
		b.g.blocks = append(b.g.blocks, loop)
		b.jump(loop)
		after := b.newBlock()
		b.g.connect(&UnconditionalEdge{From: loop, To: after})
		b.cur = after
		return nil

	case *ast.Label:
		if b.seen[st.Name] {
			return fmt.Errorf("%s: duplicate label %s", st.Position(), st.Name)
		}
		b.seen[st.Name] = true
		target := b.newBlock()
		b.jump(target)
		b.labels[st.Name] = target
		b.cur = target
		return nil

	case *ast.Goto:
		if b.seen[st.Target] {
			return fmt.Errorf("%s: goto %s: backward jumps are not supported", st.Position(), st.Target)
		}
		b.pending = append(b.pending, pendingGoto{from: b.cur, stmt: st})
		// Whatever follows the goto up to the next label is unreachable.
		b.cur = b.newBlock()
		return nil

	case *ast.Constraining:
		if st.Body != nil && !straightLine(st.Body) {
			return fmt.Errorf("%s: control flow inside a constraining block is not supported", st.Position())
		}
	}

	b.cur.Stmts = append(b.cur.Stmts, st)
	return nil
}

func straightLine(s *ast.Seqn) bool {
	for _, st := range s.Stmts {
		switch st := st.(type) {
		case *ast.If, *ast.While, *ast.Label, *ast.Goto:
			return false
		case *ast.Seqn:
			if !straightLine(st) {
				return false
			}
		case *ast.Constraining:
			if st.Body != nil && !straightLine(st.Body) {
				return false
			}
		}
	}
	return true
}

// Written returns the variables s may assign, in first-write order.
func Written(s *ast.Seqn) []*ast.Var {
	var out []*ast.Var
	seen := make(map[string]bool)
	add := func(vs ...*ast.Var) {
		for _, v := range vs {
			if !seen[v.Name] {
				seen[v.Name] = true
				out = append(out, v)
			}
		}
	}
	var walk func(ast.Stmt)
	walk = func(st ast.Stmt) {
		switch st := st.(type) {
		case *ast.Seqn:
			for _, c := range st.Stmts {
				walk(c)
			}
		case *ast.LocalAssign:
			add(st.Target)
		case *ast.New:
			add(st.Target)
		case *ast.Fresh:
			add(st.Vars...)
		case *ast.MethodCall:
			add(st.Targets...)
		case *ast.If:
			if st.Then != nil {
				walk(st.Then)
			}
			if st.Else != nil {
				walk(st.Else)
			}
		case *ast.While:
			if st.Body != nil {
				walk(st.Body)
			}
		case *ast.Constraining:
			if st.Body != nil {
				walk(st.Body)
			}
		}
	}
	if s != nil {
		walk(s)
	}
	return out
}
