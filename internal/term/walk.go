package term

import "fmt"

// Rewrite rebuilds t bottom-up. f is offered every node first; if it
// returns ok the replacement is used as-is and the node is not descended.
func Rewrite(t Term, f func(Term) (Term, bool)) Term {
	if r, ok := f(t); ok {
		return r
	}
	switch n := t.(type) {
	case Binary:
		return Apply(n.Op, Rewrite(n.Left, f), Rewrite(n.Right, f))
	case Not:
		return Negate(Rewrite(n.Operand, f))
	}
	return t
}

// Visit calls f on t and every subterm, outermost first.
func Visit(t Term, f func(Term)) {
	f(t)
	switch n := t.(type) {
	case Binary:
		Visit(n.Left, f)
		Visit(n.Right, f)
	case Not:
		Visit(n.Operand, f)
	}
}

// Generator produces fresh symbolic variables. A generator is owned by a
// single verification pass and is not safe for concurrent use.
type Generator struct {
	next int
}

// NewGenerator returns a generator starting at zero.
func NewGenerator() *Generator {
	return &Generator{}
}

// Fresh returns a variable of sort s that no earlier call returned.
func (g *Generator) Fresh(name string, s Sort) Var {
	g.next++
	return Var{Name: fmt.Sprintf("%s@%d", name, g.next), S: s}
}
