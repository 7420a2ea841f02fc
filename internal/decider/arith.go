package decider

import (
	"math/big"
	"sort"
	"strings"

	"github.com/gnoswap-labs/sepexec/internal/term"
)

// linear is the sum of coeffs[k] * atoms[k] plus konst. Atoms are the
// non-arithmetic subterms of a numeric term, and products or quotients
// of two non-constants.
type linear struct {
	coeffs map[string]*big.Rat
	atoms  map[string]term.Term
	konst  *big.Rat
}

func newLinear() linear {
	return linear{
		coeffs: make(map[string]*big.Rat),
		atoms:  make(map[string]term.Term),
		konst:  new(big.Rat),
	}
}

// difference returns the linear form of left - right.
func difference(left, right term.Term) linear {
	l := newLinear()
	l.add(left, big.NewRat(1, 1))
	l.add(right, big.NewRat(-1, 1))
	return l
}

func (l linear) add(t term.Term, scale *big.Rat) {
	if c, ok := term.Rat(t); ok {
		l.konst.Add(l.konst, new(big.Rat).Mul(scale, c))
		return
	}
	if b, ok := t.(term.Binary); ok {
		switch b.Op {
		case term.OpAdd:
			l.add(b.Left, scale)
			l.add(b.Right, scale)
			return
		case term.OpSub:
			l.add(b.Left, scale)
			l.add(b.Right, new(big.Rat).Neg(scale))
			return
		case term.OpMul:
			if c, ok := term.Rat(b.Left); ok {
				l.add(b.Right, new(big.Rat).Mul(scale, c))
				return
			}
			if c, ok := term.Rat(b.Right); ok {
				l.add(b.Left, new(big.Rat).Mul(scale, c))
				return
			}
		case term.OpDiv:
			// Integer division truncates, so only permission quotients are linear.
			if c, ok := term.Rat(b.Right); ok && c.Sign() != 0 && b.Sort() == term.SortPerm {
				l.add(b.Left, new(big.Rat).Quo(scale, c))
				return
			}
		}
	}

	k := t.String()
	sum := new(big.Rat).Set(scale)
	if prev, ok := l.coeffs[k]; ok {
		sum.Add(sum, prev)
	}
	if sum.Sign() == 0 {
		delete(l.coeffs, k)
		delete(l.atoms, k)
		return
	}
	l.coeffs[k] = sum
	l.atoms[k] = t
}

// form is a linear combination of atoms without constant whose first
// coefficient (in key order) is 1.
type form struct {
	keys   []string
	coeffs []*big.Rat
	atoms  []term.Term
}

func (f form) String() string {
	var sb strings.Builder
	for i, k := range f.keys {
		if i > 0 {
			sb.WriteString(" + ")
		}
		sb.WriteString(f.coeffs[i].RatString())
		sb.WriteString("*")
		sb.WriteString(k)
	}
	return sb.String()
}

// integral reports whether f only takes integer values.
func (f form) integral() bool {
	for i, a := range f.atoms {
		if a.Sort() != term.SortInt || !f.coeffs[i].IsInt() {
			return false
		}
	}
	return true
}

type bound struct {
	val    *big.Rat
	strict bool
}

func (a bound) plus(b bound) bound {
	return bound{val: new(big.Rat).Add(a.val, b.val), strict: a.strict || b.strict}
}

// tighter reports whether a bounds more than b.
func (a bound) tighter(b bound) bool {
	cmp := a.val.Cmp(b.val)
	return cmp < 0 || (cmp == 0 && a.strict && !b.strict)
}

// constraint bounds a form from above (form <= bound) or below.
type constraint struct {
	form  form
	upper bool
	bound bound
}

// normalize turns lin < 0 (strict) or lin <= 0 into a constraint. ok is
// false when lin has no atoms; holds then reports whether the constant
// comparison is true.
func normalize(lin linear, strict bool) (c constraint, ok, holds bool) {
	if len(lin.coeffs) == 0 {
		sign := lin.konst.Sign()
		return constraint{}, false, sign < 0 || (sign == 0 && !strict)
	}

	keys := make([]string, 0, len(lin.coeffs))
	for k := range lin.coeffs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	lead := lin.coeffs[keys[0]]
	f := form{keys: keys}
	for _, k := range keys {
		f.coeffs = append(f.coeffs, new(big.Rat).Quo(lin.coeffs[k], lead))
		f.atoms = append(f.atoms, lin.atoms[k])
	}
	// a*F + k < 0 bounds F by -k/a, from above when a is positive.
	val := new(big.Rat).Neg(new(big.Rat).Quo(lin.konst, lead))
	c = constraint{form: f, upper: lead.Sign() > 0, bound: bound{val: val, strict: strict}}
	return c, true, true
}

// roundBound makes a bound on an integer quantity non-strict.
func roundBound(b bound, upper bool) bound {
	var v *big.Int
	if upper {
		v = floor(b.val)
		if b.strict && b.val.IsInt() {
			v.Sub(v, big.NewInt(1))
		}
	} else {
		v = ceil(b.val)
		if b.strict && b.val.IsInt() {
			v.Add(v, big.NewInt(1))
		}
	}
	return bound{val: new(big.Rat).SetInt(v)}
}

func floor(r *big.Rat) *big.Int {
	// Euclidean division by a positive denominator rounds down.
	return new(big.Int).Div(r.Num(), r.Denom())
}

func ceil(r *big.Rat) *big.Int {
	f := floor(new(big.Rat).Neg(r))
	return f.Neg(f)
}

// zeroNode stands for the constant 0 in the difference graph.
const zeroNode = ""

// arith collects numeric constraints as a difference graph: an edge
// u -> v of weight w states v - u <= w. Forms other than a single atom
// or a difference of two atoms become nodes of their own.
type arith struct {
	edges  []arithEdge
	diseqs []constraint
}

type arithEdge struct {
	from, to string
	w        bound
}

// ends returns the nodes from and to such that the form equals to - from.
func ends(f form) (from, to string) {
	if len(f.keys) == 2 && f.coeffs[1].Cmp(big.NewRat(-1, 1)) == 0 {
		return f.keys[1], f.keys[0]
	}
	if len(f.keys) == 1 {
		return zeroNode, f.keys[0]
	}
	return zeroNode, f.String()
}

func (a *arith) add(c constraint) {
	from, to := ends(c.form)
	if c.upper {
		a.edges = append(a.edges, arithEdge{from: from, to: to, w: c.bound})
		return
	}
	neg := bound{val: new(big.Rat).Neg(c.bound.val), strict: c.bound.strict}
	a.edges = append(a.edges, arithEdge{from: to, to: from, w: neg})
}

// less records left < right (strict) or left <= right. It reports false
// if the comparison is constant and false.
func (a *arith) less(left, right term.Term, strict bool) bool {
	c, ok, holds := normalize(difference(left, right), strict)
	if !ok {
		return holds
	}
	if c.form.integral() {
		c.bound = roundBound(c.bound, c.upper)
	}
	a.add(c)
	return true
}

// equal records left == right.
func (a *arith) equal(left, right term.Term) bool {
	return a.less(left, right, false) && a.less(right, left, false)
}

// distinct records left != right. It reports false if both sides are the
// same constant.
func (a *arith) distinct(left, right term.Term) bool {
	c, ok, _ := normalize(difference(left, right), false)
	if !ok {
		return difference(left, right).konst.Sign() != 0
	}
	a.diseqs = append(a.diseqs, c)
	return true
}

// infeasible reports whether the recorded constraints have no solution:
// a cycle of negative weight (or zero weight through a strict edge), or a
// disequality whose form is pinned to the excluded value.
func (a *arith) infeasible() bool {
	if len(a.edges) == 0 {
		return false
	}
	index := map[string]int{}
	node := func(k string) int {
		if i, ok := index[k]; ok {
			return i
		}
		index[k] = len(index)
		return index[k]
	}
	node(zeroNode)
	for _, e := range a.edges {
		node(e.from)
		node(e.to)
	}
	for _, c := range a.diseqs {
		from, to := ends(c.form)
		node(from)
		node(to)
	}

	n := len(index)
	dist := make([][]*bound, n)
	for i := range dist {
		dist[i] = make([]*bound, n)
		dist[i][i] = &bound{val: new(big.Rat)}
	}
	for _, e := range a.edges {
		i, j := index[e.from], index[e.to]
		if dist[i][j] == nil || e.w.tighter(*dist[i][j]) {
			w := e.w
			dist[i][j] = &w
		}
	}
	for k := 0; k < n; k++ {
		for i := 0; i < n; i++ {
			if dist[i][k] == nil {
				continue
			}
			for j := 0; j < n; j++ {
				if dist[k][j] == nil {
					continue
				}
				via := dist[i][k].plus(*dist[k][j])
				if dist[i][j] == nil || via.tighter(*dist[i][j]) {
					dist[i][j] = &via
				}
			}
		}
	}

	zero := bound{val: new(big.Rat)}
	for i := 0; i < n; i++ {
		if dist[i][i].tighter(zero) {
			return true
		}
	}

	for _, c := range a.diseqs {
		from, to := ends(c.form)
		up, down := dist[index[from]][index[to]], dist[index[to]][index[from]]
		if up == nil || down == nil || up.strict || down.strict {
			continue
		}
		// to - from <= up and from - to <= down pin the form to up.
		if up.val.Cmp(c.bound.val) == 0 && new(big.Rat).Neg(down.val).Cmp(c.bound.val) == 0 {
			return true
		}
	}
	return false
}

func numeric(t term.Term) bool {
	return t.Sort() == term.SortInt || t.Sort() == term.SortPerm
}
