package decider

import (
	"github.com/gnoswap-labs/sepexec/internal/term"
)

// solver refutes conjunctions of facts. It is deliberately incomplete: a
// set it cannot refute is treated as satisfiable, so checks fail rather
// than succeed when it runs out of reasoning.
type solver struct {
	maxSplits int
}

// unsat reports whether the conjunction of facts is provably unsatisfiable.
func (sv solver) unsat(facts []term.Term) bool {
	normal := make([]term.Term, 0, len(facts))
	for _, f := range facts {
		normal = append(normal, nnf(f, true))
	}
	return sv.refute(normal, 0)
}

// nnf pushes negations down to atoms.
func nnf(t term.Term, positive bool) term.Term {
	switch n := t.(type) {
	case term.BoolLit:
		return term.Bool(n.Val == positive)
	case term.Not:
		return nnf(n.Operand, !positive)
	case term.Binary:
		switch n.Op {
		case term.OpAnd:
			if positive {
				return term.And(nnf(n.Left, true), nnf(n.Right, true))
			}
			return term.Or(nnf(n.Left, false), nnf(n.Right, false))
		case term.OpOr:
			if positive {
				return term.Or(nnf(n.Left, true), nnf(n.Right, true))
			}
			return term.And(nnf(n.Left, false), nnf(n.Right, false))
		case term.OpImplies:
			if positive {
				return term.Or(nnf(n.Left, false), nnf(n.Right, true))
			}
			return term.And(nnf(n.Left, true), nnf(n.Right, false))
		}
	}
	if positive {
		return t
	}
	return term.Negate(t)
}

func (sv solver) refute(facts []term.Term, depth int) bool {
	var lits, disjs []term.Term
	for _, f := range facts {
		for _, c := range term.Conjuncts(f) {
			if b, ok := c.(term.Binary); ok && b.Op == term.OpOr {
				disjs = append(disjs, c)
				continue
			}
			lits = append(lits, c)
		}
	}

	if contradicts(lits) {
		return true
	}
	if len(disjs) == 0 || depth >= sv.maxSplits {
		return false
	}

	split, rest := disjs[0], disjs[1:]
	for _, d := range term.Disjuncts(split) {
		branch := make([]term.Term, 0, len(lits)+len(rest)+1)
		branch = append(branch, lits...)
		branch = append(branch, rest...)
		branch = append(branch, d)
		if !sv.refute(branch, depth+1) {
			return false
		}
	}
	return true
}

// literal is an atom with a polarity.
type literal struct {
	atom     term.Term
	positive bool
}

func asLiteral(t term.Term) literal {
	if n, ok := t.(term.Not); ok {
		return literal{atom: n.Operand, positive: false}
	}
	return literal{atom: t, positive: true}
}

// classes is a union-find over terms keyed by their canonical string.
type classes struct {
	parent map[string]string
	terms  map[string]term.Term
}

func newClasses() *classes {
	return &classes{parent: make(map[string]string), terms: make(map[string]term.Term)}
}

func (c *classes) add(t term.Term) string {
	k := t.String()
	if _, ok := c.parent[k]; !ok {
		c.parent[k] = k
		c.terms[k] = t
	}
	return k
}

func (c *classes) find(k string) string {
	for c.parent[k] != k {
		c.parent[k] = c.parent[c.parent[k]]
		k = c.parent[k]
	}
	return k
}

func (c *classes) union(a, b term.Term) {
	ra, rb := c.find(c.add(a)), c.find(c.add(b))
	if ra != rb {
		c.parent[ra] = rb
	}
}

// constants maps each class root to its literal member. ok is false if a
// class holds two different literals.
func (c *classes) constants() (map[string]term.Term, bool) {
	out := make(map[string]term.Term)
	for k, t := range c.terms {
		if !term.IsLiteral(t) {
			continue
		}
		root := c.find(k)
		if prev, seen := out[root]; seen {
			if eq := term.Eq(prev, t); eq != term.True {
				return nil, false
			}
			continue
		}
		out[root] = t
	}
	return out, true
}

func contradicts(lits []term.Term) bool {
	cls := newClasses()
	cls.add(term.True)
	cls.add(term.False)

	var facts []literal
	for _, l := range lits {
		if b, ok := l.(term.BoolLit); ok {
			if !b.Val {
				return true
			}
			continue
		}
		lit := asLiteral(l)
		facts = append(facts, lit)
		cls.union(lit.atom, term.Bool(lit.positive))
		if b, ok := lit.atom.(term.Binary); ok && b.Op == term.OpEq && lit.positive {
			cls.union(b.Left, b.Right)
		}
	}

	consts, ok := cls.constants()
	if !ok {
		return true
	}

	subst := func(t term.Term) term.Term {
		return term.Rewrite(t, func(n term.Term) (term.Term, bool) {
			if term.IsLiteral(n) {
				return n, true
			}
			k := n.String()
			if _, known := cls.parent[k]; !known {
				return nil, false
			}
			if c, has := consts[cls.find(k)]; has {
				return c, true
			}
			return nil, false
		})
	}

	ar := &arith{}
	for _, f := range facts {
		atom, ok := f.atom.(term.Binary)
		if !ok {
			continue
		}
		switch atom.Op {
		case term.OpEq:
			if !f.positive && cls.find(cls.add(atom.Left)) == cls.find(cls.add(atom.Right)) {
				return true
			}
			left, right := subst(atom.Left), subst(atom.Right)
			eq := term.Eq(left, right)
			if lit, isLit := eq.(term.BoolLit); isLit {
				if lit.Val != f.positive {
					return true
				}
				continue
			}
			if !numeric(left) {
				continue
			}
			if f.positive && !ar.equal(left, right) {
				return true
			}
			if !f.positive && !ar.distinct(left, right) {
				return true
			}
		case term.OpLt, term.OpLe:
			left, right := subst(atom.Left), subst(atom.Right)
			cmp := term.Apply(atom.Op, left, right)
			if lit, isLit := cmp.(term.BoolLit); isLit {
				if lit.Val != f.positive {
					return true
				}
				continue
			}
			strict := atom.Op == term.OpLt
			if !f.positive {
				// !(l < r) is r <= l and !(l <= r) is r < l.
				left, right = right, left
				strict = !strict
			}
			if !ar.less(left, right, strict) {
				return true
			}
		}
	}
	return ar.infeasible()
}
